package internal

import (
	"context"
	"os"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5/middleware"
)

var _logHandler = log.NewWithOptions(os.Stderr, log.Options{
	ReportTimestamp: true,
	ReportCaller:    false,
})

// SetVerbose raises or lowers the package-wide log level at runtime, the
// way the CLI's -v flag does.
func SetVerbose(v bool) {
	if v {
		_logHandler.SetLevel(log.DebugLevel)
		return
	}
	_logHandler.SetLevel(log.InfoLevel)
}

// Log returns a logger carrying the request ID from ctx (if any) as a
// structured field, so every log line inside a request/message handler can
// be correlated without threading an explicit logger argument everywhere.
func Log(ctx context.Context) *log.Logger {
	reqID, _ := ctx.Value(middleware.RequestIDKey).(string)
	if reqID == "" {
		return _logHandler
	}
	return _logHandler.With("request_id", reqID)
}
