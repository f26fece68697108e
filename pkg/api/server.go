package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Connerlevi/capnet/pkg/apierr"
	"github.com/Connerlevi/capnet/pkg/contracts"
	"github.com/Connerlevi/capnet/pkg/enforcement"
	"github.com/Connerlevi/capnet/pkg/issuer"
	"github.com/Connerlevi/capnet/pkg/schema"
	"github.com/Connerlevi/capnet/pkg/store"
)

// Server wires the store, issuer, and enforcement engine to the HTTP
// operations named in the external-interface surface.
type Server struct {
	store  *store.Store
	issuer *issuer.Issuer
	engine *enforcement.Engine
	log    *slog.Logger
}

// New builds a Server over the given components.
func New(s *store.Store, iss *issuer.Issuer, eng *enforcement.Engine, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{store: s, issuer: iss, engine: eng, log: log}
}

// Routes returns the mux the server answers requests on.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/issue_spend_capability", s.handleIssueSpend)
	mux.HandleFunc("/issue_tool_call_capability", s.handleIssueToolCall)
	mux.HandleFunc("/enforce_spend", s.handleEnforceSpend)
	mux.HandleFunc("/enforce_tool_call", s.handleEnforceToolCall)
	mux.HandleFunc("/revoke", s.handleRevoke)
	mux.HandleFunc("/list_capabilities", s.handleListCapabilities)
	mux.HandleFunc("/list_receipts", s.handleListReceipts)
	return mux
}

func (s *Server) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		WriteBadRequest(w, "body exceeds the maximum allowed size or could not be read")
		return nil, false
	}
	return data, true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// healthStatus reports process and store health separately, so a
// supervisor can distinguish "process up" from "process usable."
type healthStatus struct {
	Status          string `json:"status"`
	StoreWritable   bool   `json:"store_writable"`
	IssuerKeyPresent bool  `json:"issuer_key_present"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteMethodNotAllowed(w)
		return
	}
	writable := s.store.Probe() == nil
	hs := healthStatus{
		StoreWritable:    writable,
		IssuerKeyPresent: s.store.IssuerKeypair() != nil,
	}
	if writable && hs.IssuerKeyPresent {
		hs.Status = "ok"
	} else {
		hs.Status = "degraded"
	}
	s.writeJSON(w, http.StatusOK, hs)
}

func (s *Server) handleIssueSpend(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteMethodNotAllowed(w)
		return
	}
	body, ok := s.readBody(w, r)
	if !ok {
		return
	}
	in, err := schema.ValidateIssueSpend(body)
	if err != nil {
		WriteError(w, s.log, err)
		return
	}
	cap, err := s.issuer.IssueSpend(in)
	if err != nil {
		WriteError(w, s.log, err)
		return
	}
	s.writeJSON(w, http.StatusOK, cap)
}

func (s *Server) handleIssueToolCall(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteMethodNotAllowed(w)
		return
	}
	body, ok := s.readBody(w, r)
	if !ok {
		return
	}
	in, err := schema.ValidateIssueToolCall(body)
	if err != nil {
		WriteError(w, s.log, err)
		return
	}
	cap, err := s.issuer.IssueToolCall(in)
	if err != nil {
		WriteError(w, s.log, err)
		return
	}
	s.writeJSON(w, http.StatusOK, cap)
}

func (s *Server) handleEnforceSpend(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteMethodNotAllowed(w)
		return
	}
	body, ok := s.readBody(w, r)
	if !ok {
		return
	}
	req, err := schema.ValidateSpendRequest(body)
	if err != nil {
		WriteError(w, s.log, err)
		return
	}
	decision, err := s.engine.EvaluateSpend(req)
	if err != nil {
		WriteError(w, s.log, err)
		return
	}
	s.writeJSON(w, http.StatusOK, decision)
}

func (s *Server) handleEnforceToolCall(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteMethodNotAllowed(w)
		return
	}
	body, ok := s.readBody(w, r)
	if !ok {
		return
	}
	req, err := schema.ValidateToolCallRequest(body)
	if err != nil {
		WriteError(w, s.log, err)
		return
	}
	decision, err := s.engine.EvaluateToolCall(req)
	if err != nil {
		WriteError(w, s.log, err)
		return
	}
	s.writeJSON(w, http.StatusOK, decision)
}

type revokeRequest struct {
	CapID string `json:"cap_id"`
}

func (s *Server) handleRevoke(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteMethodNotAllowed(w)
		return
	}
	body, ok := s.readBody(w, r)
	if !ok {
		return
	}
	var req revokeRequest
	if err := json.Unmarshal(body, &req); err != nil || req.CapID == "" {
		WriteError(w, s.log, apierr.InvalidInput("cap_id", "required"))
		return
	}
	if err := s.issuer.Revoke(req.CapID); err != nil {
		WriteError(w, s.log, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "revoked", "cap_id": req.CapID})
}

type taggedCapability struct {
	*contracts.Capability
	IsRevoked bool `json:"is_revoked"`
}

func (s *Server) handleListCapabilities(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteMethodNotAllowed(w)
		return
	}
	caps := s.store.ListCapabilities()
	tagged := make([]taggedCapability, 0, len(caps))
	for _, c := range caps {
		tagged = append(tagged, taggedCapability{Capability: c, IsRevoked: s.store.IsRevoked(c.CapID)})
	}
	s.writeJSON(w, http.StatusOK, tagged)
}

func (s *Server) handleListReceipts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteMethodNotAllowed(w)
		return
	}
	q := r.URL.Query()

	limit := 100
	if l := q.Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			limit = n
		}
	}

	since := time.Time{}
	if sv := q.Get("since"); sv != "" {
		t, err := time.Parse(time.RFC3339, sv)
		if err != nil {
			WriteError(w, s.log, apierr.InvalidInput("since", "must be RFC3339"))
			return
		}
		since = t
	}

	receipts, err := s.store.ListReceiptsPage(since, q.Get("cursor"), limit)
	if err != nil {
		WriteError(w, s.log, apierr.StoreError(err))
		return
	}
	s.writeJSON(w, http.StatusOK, receipts)
}
