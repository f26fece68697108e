// Package api exposes the core's operations over HTTP, translating
// between the apierr/contracts types and RFC 7807 Problem Details JSON.
package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/Connerlevi/capnet/pkg/apierr"
)

// ProblemDetail implements RFC 7807 (Problem Details for HTTP APIs).
type ProblemDetail struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
	Code     string `json:"code,omitempty"`
}

func (p *ProblemDetail) Error() string {
	return fmt.Sprintf("%s: %s", p.Title, p.Detail)
}

func writeProblem(w http.ResponseWriter, status int, title, code, detail string) {
	problem := &ProblemDetail{
		Type:   fmt.Sprintf("https://capnet.example/errors/%d", status),
		Title:  title,
		Status: status,
		Code:   code,
		Detail: detail,
	}
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(problem)
}

// WriteStructuralError translates a caller-fault error into its RFC 7807
// response, using the status the error itself carries.
func WriteStructuralError(w http.ResponseWriter, err *apierr.StructuralError) {
	title := http.StatusText(err.StatusCode())
	writeProblem(w, err.StatusCode(), title, string(err.Code), err.Detail)
}

// WriteCoreFault logs err's full cause internally and returns an opaque
// 500; the cause is never exposed to the caller.
func WriteCoreFault(w http.ResponseWriter, log *slog.Logger, err *apierr.CoreFault) {
	if log == nil {
		log = slog.Default()
	}
	log.Error("core fault", "code", err.Code, "cause", err.Cause)
	writeProblem(w, http.StatusInternalServerError, "Internal Server Error", string(err.Code),
		"an internal error occurred")
}

// WriteError dispatches err to the right writer based on its concrete
// type, falling back to an opaque 500 for anything unrecognized.
func WriteError(w http.ResponseWriter, log *slog.Logger, err error) {
	var structural *apierr.StructuralError
	var coreFault *apierr.CoreFault
	switch e := err.(type) {
	case *apierr.StructuralError:
		structural = e
	case *apierr.CoreFault:
		coreFault = e
	}

	if structural != nil {
		WriteStructuralError(w, structural)
		return
	}
	if coreFault != nil {
		WriteCoreFault(w, log, coreFault)
		return
	}
	WriteCoreFault(w, log, apierr.StoreError(err))
}

// WriteMethodNotAllowed writes a 405 response.
func WriteMethodNotAllowed(w http.ResponseWriter) {
	writeProblem(w, http.StatusMethodNotAllowed, "Method Not Allowed", "", "method not supported for this endpoint")
}

// WriteBadRequest writes a 400 response with a free-form detail, for
// request bodies that fail before they ever reach a StructuralError
// (e.g. oversized bodies rejected by http.MaxBytesReader).
func WriteBadRequest(w http.ResponseWriter, detail string) {
	writeProblem(w, http.StatusBadRequest, "Bad Request", string(apierr.CodeInvalidInput), detail)
}

// WriteTooManyRequests writes a 429 response with a Retry-After header.
func WriteTooManyRequests(w http.ResponseWriter, retryAfterSecs int) {
	w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfterSecs))
	writeProblem(w, http.StatusTooManyRequests, "Too Many Requests", "", "rate limit exceeded")
}
