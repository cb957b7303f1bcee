package listener

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cug2104518294/quartz-explained/internal/email"
)

// EmailNotifyListener is a JobListener that emails an operator whenever a
// job finishes with an error — the one concrete listener this module
// ships out of the box, grounded on the teacher's internal/email.Sender
// (originally used for magic-link auth mail, reused here for operational
// alerts).
type EmailNotifyListener struct {
	sender email.Sender
	to     string
	logger *slog.Logger
}

func NewEmailNotifyListener(sender email.Sender, to string, logger *slog.Logger) *EmailNotifyListener {
	if logger == nil {
		logger = slog.Default()
	}
	return &EmailNotifyListener{sender: sender, to: to, logger: logger.With("component", "emailnotifylistener")}
}

func (l *EmailNotifyListener) Name() string { return "email-notify" }

func (l *EmailNotifyListener) JobToBeExecuted(FireEvent)  {}
func (l *EmailNotifyListener) JobExecutionVetoed(FireEvent) {}

func (l *EmailNotifyListener) JobWasExecuted(ev FireEvent, execErr error) {
	if execErr == nil {
		return
	}
	subject := fmt.Sprintf("job %s failed", ev.JobKey)
	body := fmt.Sprintf("Job %s (trigger %s) failed: %s", ev.JobKey, ev.TriggerKey, execErr.Error())
	if err := l.sender.Send(context.Background(), l.to, subject, body); err != nil {
		l.logger.Error("failed to send job-failure notification", "job", ev.JobKey, "error", err)
	}
}

var _ JobListener = (*EmailNotifyListener)(nil)
