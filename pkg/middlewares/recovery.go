package middlewares

import (
	"encoding/json"
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/jake-scott/dahua-bridge/internal/pkg/logging"
)

// panicResponse has the same shape as the handlers' error bodies, plus the
// transaction ID to look the stack trace up by
type panicResponse struct {
	Error string `json:"error"`
	TxnID string `json:"txnid,omitempty"`
}

// RecoveryMw turns a panicking handler into a 500 JSON response
type RecoveryMw struct {
	next http.Handler
}

func NewRecoveryMw() mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return NewRecovery(next)
	}
}

func NewRecovery(next http.Handler) *RecoveryMw {
	return &RecoveryMw{next: next}
}

func (mw *RecoveryMw) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	defer func() {
		p := recover()
		if p == nil {
			return
		}
		// the server aborts the connection quietly for this one
		if p == http.ErrAbortHandler {
			panic(p)
		}

		logging.Logger(r.Context()).WithFields(logrus.Fields{
			"panic": fmt.Sprint(p),
			"route": r.URL.Path,
		}).Errorf("caught panic: %s", debug.Stack())

		// too late to change the status once the handler has started replying
		if ex, ok := rw.(*responseWriterEx); ok && ex.wroteHeader {
			return
		}

		rw.Header().Set("Content-Type", "application/json")
		rw.WriteHeader(http.StatusInternalServerError)
		if err := json.NewEncoder(rw).Encode(panicResponse{
			Error: "internal_error",
			TxnID: logging.TxnID(r.Context()),
		}); err != nil {
			logging.Logger(r.Context()).WithError(err).Warn("writing panic response")
		}
	}()

	mw.next.ServeHTTP(rw, r)
}
