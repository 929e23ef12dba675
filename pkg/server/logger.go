package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// httpLogger redirects net/http server errors to the logger.
type httpLogger struct {
	logger *zap.SugaredLogger
}

func newHTTPLogger(logger *zap.SugaredLogger) *httpLogger {
	return &httpLogger{logger}
}

var _ io.Writer = &httpLogger{}

func (l *httpLogger) Write(message []byte) (int, error) {
	size := len(message)
	text := strings.TrimRight(string(message), "\n")

	level := zapcore.ErrorLevel
	if strings.Contains(text, "TLS handshake error") || strings.Contains(text, "on hijacked connection") {
		level = zapcore.DebugLevel
	}

	l.logger.Logf(level, "%s.", text)
	return size, nil
}

type prometheusLogger struct {
	logger *zap.SugaredLogger
}

func newPrometheusLogger(logger *zap.SugaredLogger) *prometheusLogger {
	return &prometheusLogger{logger}
}

var _ promhttp.Logger = prometheusLogger{}

func (l prometheusLogger) Println(v ...any) {
	level := zapcore.ErrorLevel

	for _, value := range v {
		if err, ok := value.(error); ok {
			if isClientGone(err) {
				level = zap.DebugLevel
			}
			break
		}
	}

	l.logger.Logf(level, "Prometheus: %s.", strings.TrimRight(fmt.Sprint(v...), "\n"))
}

// isClientGone reports whether the error is caused by the client which has closed the connection or has stopped
// reading from it.
func isClientGone(err error) bool {
	var netErr *net.OpError
	if errors.As(err, &netErr) && netErr.Op == "write" &&
		(netErr.Timeout() || errors.Is(netErr.Err, syscall.EPIPE) || errors.Is(netErr.Err, syscall.ECONNRESET)) {
		return true
	}
	return errors.Is(err, context.Canceled)
}
