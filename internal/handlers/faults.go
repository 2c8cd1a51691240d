package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/Brownie44l1/imgclass-api/internal/labels"
	"github.com/Brownie44l1/imgclass-api/internal/metrics"
	"github.com/Brownie44l1/imgclass-api/internal/model"
	"github.com/Brownie44l1/imgclass-api/internal/preprocess"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var errPanic = errors.New("handler panic")

// Fault kinds, used as log fields and metric labels.
const (
	KindMissingFile  = "missing_file"
	KindDecode       = "decode"
	KindInference    = "inference"
	KindUnknownIndex = "unknown_index"
	KindPanic        = "panic"
	KindOther        = "other"
)

func FaultKind(err error) string {
	switch {
	case errors.Is(err, ErrMissingFile):
		return KindMissingFile
	case errors.Is(err, preprocess.ErrDecode):
		return KindDecode
	case errors.Is(err, model.ErrInference):
		return KindInference
	case errors.Is(err, labels.ErrUnknownIndex):
		return KindUnknownIndex
	case errors.Is(err, errPanic):
		return KindPanic
	default:
		return KindOther
	}
}

// Faults is the one place where request errors turn into responses. Every
// kind gets the same plain 500; errors are not mapped to client statuses.
func Faults(log *zap.Logger, m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}
		err := c.Errors.Last().Err
		kind := FaultKind(err)
		if m != nil {
			m.Faults.WithLabelValues(kind).Inc()
		}
		log.Error("request failed",
			zap.String("request_id", c.GetString(requestIDKey)),
			zap.String("path", c.Request.URL.Path),
			zap.String("kind", kind),
			zap.Error(err))

		if !c.Writer.Written() {
			c.String(http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
		}
	}
}

// Recovery turns a panic into a fault for the Faults middleware.
func Recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		_ = c.Error(fmt.Errorf("%w: %v", errPanic, recovered))
		c.Abort()
	})
}
