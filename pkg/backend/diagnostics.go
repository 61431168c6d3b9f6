package backend

import (
	"context"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
)

// DiagnosticRecord is the wire shape of one client-side failure report.
type DiagnosticRecord struct {
	Level   string `json:"level"`
	Message string `json:"message"`
	Stack   string `json:"stack"`
	Where   string `json:"where"`
}

// Reporter ships diagnostic records to the gateway's client-log
// endpoint. Delivery is best effort: Report never blocks the caller and
// never surfaces a failure beyond a debug log line.
type Reporter struct {
	http   *resty.Client
	logger *logrus.Logger
}

func NewReporter(baseURL string, logger *logrus.Logger) *Reporter {
	return &Reporter{
		http: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(5 * time.Second),
		logger: logger,
	}
}

func (r *Reporter) Report(level, message, stack, where string) {
	record := DiagnosticRecord{Level: level, Message: message, Stack: stack, Where: where}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_, err := r.http.R().
			SetContext(ctx).
			SetHeader("Content-Type", "application/json").
			SetBody(record).
			Post("/api/client-log")
		if err != nil {
			r.logger.WithError(err).Debug("Failed to deliver diagnostic record")
		}
	}()
}
