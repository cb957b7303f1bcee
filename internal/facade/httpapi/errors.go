package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cug2104518294/quartz-explained/internal/facade"
)

const errInternalServer = "internal server error"

// writeError maps a facade.SchedulerError's Kind onto an HTTP status; any
// other error (should not normally reach here — the façade wraps its own)
// falls back to 500.
func writeError(c *gin.Context, op string, err error) {
	var se *facade.SchedulerError
	if !errors.As(err, &se) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}

	status := http.StatusInternalServerError
	switch se.Kind {
	case facade.KindInput, facade.KindConfig:
		status = http.StatusBadRequest
	case facade.KindNotFound:
		status = http.StatusNotFound
	case facade.KindDuplicate:
		status = http.StatusConflict
	case facade.KindFatal:
		status = http.StatusServiceUnavailable
	case facade.KindStoreFault, facade.KindJobFault:
		status = http.StatusInternalServerError
	}
	c.JSON(status, gin.H{"error": se.Error()})
}
