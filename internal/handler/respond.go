package handler

import (
	"net/http"

	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// respondJSON writes the encoder's buffer with the given status.
func respondJSON(w http.ResponseWriter, status int, e *jx.Encoder) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

// respondError writes a {code, message} error payload.
func respondError(w http.ResponseWriter, status int, message string) {
	e := &jx.Encoder{}
	e.ObjStart()
	e.FieldStart("code")
	e.Int(status)
	e.FieldStart("message")
	e.Str(message)
	e.ObjEnd()
	respondJSON(w, status, e)
}

// respondIneligible writes the structured {valid:false, error} payload.
// Ineligibility is an expected outcome, so the status is 200.
func respondIneligible(w http.ResponseWriter, reason string) {
	e := &jx.Encoder{}
	e.ObjStart()
	e.FieldStart("valid")
	e.Bool(false)
	e.FieldStart("error")
	e.Str(reason)
	e.ObjEnd()
	respondJSON(w, http.StatusOK, e)
}

// internalError logs the failure and responds with an opaque 500. Raw store
// errors never reach the client.
func internalError(w http.ResponseWriter, r *http.Request, op string, err error) {
	zctx.From(r.Context()).Error(op, zap.Error(err))
	respondError(w, http.StatusInternalServerError, "internal error")
}
