// Command devtoken mints an HS256 bearer token signed with JWT_SECRET, for
// exercising internal/facade/httpapi locally when CLERK_JWKS_URL is unset.
// Grounded on the teacher's AuthUsecase.VerifyMagicLink, which signs the
// same kind of MapClaims token with golang-jwt/jwt/v5.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/cobra"
)

func main() {
	var secret string
	var subject string
	var ttl time.Duration

	root := &cobra.Command{
		Use:   "devtoken",
		Short: "Mint an HS256 bearer token for local httpapi testing",
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				secret = os.Getenv("JWT_SECRET")
			}
			if secret == "" {
				return fmt.Errorf("secret is required: pass --secret or set JWT_SECRET")
			}
			if subject == "" {
				return fmt.Errorf("subject is required: pass --subject")
			}

			now := time.Now()
			claims := jwt.MapClaims{
				"sub": subject,
				"iat": now.Unix(),
				"exp": now.Add(ttl).Unix(),
			}
			token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
			signed, err := token.SignedString([]byte(secret))
			if err != nil {
				return fmt.Errorf("sign token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), signed)
			return nil
		},
	}

	root.Flags().StringVar(&secret, "secret", "", "HS256 signing secret (defaults to JWT_SECRET)")
	root.Flags().StringVar(&subject, "subject", "", "token subject (caller id)")
	root.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
