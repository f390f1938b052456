package middlewares

import (
	"context"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/jake-scott/dahua-bridge/internal/pkg/logging"
	"github.com/jake-scott/dahua-bridge/internal/pkg/metrics"
)

// textual reports whether a body of contentType is worth dumping to the
// debug log.  Snapshots and audio clips are not.
func textual(contentType string) bool {
	if contentType == "" {
		return false
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return strings.HasPrefix(mt, "text/") || mt == "application/json"
}

type responseWriterEx struct {
	http.ResponseWriter

	statusCode  int
	size        int
	logData     bool
	ctx         context.Context
	wroteHeader bool
}

func newResponseWriterEx(ctx context.Context, logData bool, rw http.ResponseWriter) *responseWriterEx {
	return &responseWriterEx{
		ResponseWriter: rw,
		statusCode:     http.StatusOK,
		logData:        logData,
		ctx:            ctx,
	}
}

func (rw *responseWriterEx) WriteHeader(statusCode int) {
	if !rw.wroteHeader {
		rw.statusCode = statusCode
		rw.wroteHeader = true
		if rw.logData {
			logging.Logger(rw.ctx).Debugf("response headers: %+v", rw.ResponseWriter.Header())
		}
	}
	rw.ResponseWriter.WriteHeader(statusCode)
}

func (rw *responseWriterEx) Write(b []byte) (int, error) {
	if !rw.wroteHeader {
		rw.WriteHeader(http.StatusOK)
	}

	size, err := rw.ResponseWriter.Write(b)
	rw.size += size

	if err == nil && rw.logData && textual(rw.Header().Get("Content-Type")) {
		logging.Logger(rw.ctx).Debugf("wrote %d bytes: %s", size, b[:size])
	}
	return size, err
}

// loggingReader dumps every read of a request body
type loggingReader struct {
	io.ReadCloser
	ctx context.Context
}

func (lr loggingReader) Read(b []byte) (size int, err error) {
	size, err = lr.ReadCloser.Read(b)
	if size > 0 {
		logging.Logger(lr.ctx).Debugf("read %d bytes: --:--%s--:--", size, b[:size])
	}

	return size, err
}

// LoggingMw assigns each request a transaction ID, writes an audit log
// line and counts the request by route template
type LoggingMw struct {
	logRequests bool
	next        http.Handler
}

func NewLoggingMw(reqLogging bool) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return NewLogging(reqLogging, next)
	}
}

func NewLogging(reqLogging bool, next http.Handler) *LoggingMw {
	return &LoggingMw{next: next, logRequests: reqLogging}
}

func (mw *LoggingMw) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	txnID := uuid.New().String()
	startTime := time.Now()

	// set before anything writes the response body
	rw.Header().Set("X-Txn-ID", txnID)

	r = r.WithContext(logging.WithTxnID(r.Context(), txnID))

	if mw.logRequests {
		logging.Logger(r.Context()).Debugf("request headers: %+v", r.Header)
		if textual(r.Header.Get("Content-Type")) {
			r.Body = loggingReader{ReadCloser: r.Body, ctx: r.Context()}
		}
	}

	rwex := newResponseWriterEx(r.Context(), mw.logRequests, rw)
	mw.next.ServeHTTP(rwex, r)

	route := "unmatched"
	if cr := mux.CurrentRoute(r); cr != nil {
		if tmpl, err := cr.GetPathTemplate(); err == nil {
			route = tmpl
		}
	}
	metrics.ObserveHTTPRequest(route, r.Method, rwex.statusCode)

	logging.Logger(r.Context()).WithFields(
		logrus.Fields{
			"entrytype": "audit",
			"status":    rwex.statusCode,
			"method":    r.Method,
			"proto":     r.Proto,
			"remote":    r.RemoteAddr,
			"duration":  time.Since(startTime),
			"path":      r.URL.String(),
			"route":     route,
			"size":      rwex.size,
		},
	).Info(http.StatusText(rwex.statusCode))
}
