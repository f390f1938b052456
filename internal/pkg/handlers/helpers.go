package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/go-openapi/runtime/middleware/header"

	"github.com/jake-scott/dahua-bridge/internal/pkg/dahuaapi"
	"github.com/jake-scott/dahua-bridge/internal/pkg/logging"
)

type errorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

// decodeJSONBody reads one JSON object of at most 100kb.  An empty body
// leaves dst untouched.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	if r.Header.Get("Content-Type") != "" {
		value, _ := header.ParseValueAndParams(r.Header, "Content-Type")
		if value != "application/json" {
			return fmt.Errorf("expected JSON request, got %s", value)
		}
	}

	reader := http.MaxBytesReader(w, r.Body, 100*1024)
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		if err == io.EOF {
			return nil
		}
		return err
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return fmt.Errorf("request body must only contain a single JSON object")
	}

	return nil
}

func sendJSONResponse(w http.ResponseWriter, r *http.Request, status int, d interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	enc := json.NewEncoder(w)
	if err := enc.Encode(d); err != nil {
		logging.Logger(r.Context()).WithError(err).Error("sending json response")
	}
}

func sendError(w http.ResponseWriter, r *http.Request, status int, kind string, detail string) {
	sendJSONResponse(w, r, status, errorResponse{Error: kind, Detail: detail})
}

// sendCommandError reports a failed device call using the command error
// taxonomy
func sendCommandError(w http.ResponseWriter, r *http.Request, err error) {
	logging.Logger(r.Context()).WithError(err).Error("device command failed")

	ce, ok := dahuaapi.NormalizeCommandError(err).(*dahuaapi.CommandError)
	if !ok {
		sendError(w, r, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}

	status := http.StatusBadGateway
	switch ce.Kind {
	case dahuaapi.TimeoutError:
		status = http.StatusGatewayTimeout
	case dahuaapi.CommandFailed:
		status = http.StatusConflict
	}

	sendError(w, r, status, string(ce.Kind), ce.Detail)
}
