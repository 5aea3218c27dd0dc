package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/flowrise/focusync/internal/collector"
	"github.com/flowrise/focusync/internal/log"
	"github.com/flowrise/focusync/internal/recorder"
	"github.com/flowrise/focusync/internal/session"
)

const maxBodyBytes = 1 << 20

type errorResponse struct {
	Error string `json:"error"`
}

type statusResponse struct {
	Active  bool             `json:"active"`
	Session *session.Session `json:"session,omitempty"`
}

type learningRequest struct {
	SessionID string `json:"sessionId"`
	Content   string `json:"content"`
	Role      string `json:"role"`
}

type learningResponse struct {
	Status string `json:"status"` // "delivered" or "queued"
}

type syncStatusResponse struct {
	QueueDepth    int                   `json:"queueDepth"`
	PendingCount  int                   `json:"pendingCount"`
	TransportMode string                `json:"transportMode"`
	Connected     bool                  `json:"connected"`
	LastFlush     recorder.FlushOutcome `json:"lastFlush"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func decodeBody(w http.ResponseWriter, r *http.Request, out any) bool {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable request body")
		return false
	}
	if err := json.Unmarshal(body, out); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	res := s.collector.Dispatch(r.Context(), collector.Command{
		Name:          collector.CmdStartFocus,
		CorrelationID: log.CorrelationIDFromContext(r.Context()),
	})
	if res.Err != nil {
		if errors.Is(res.Err, session.ErrAlreadyActive) {
			writeError(w, http.StatusConflict, res.Err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, res.Err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, res.Session)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	res := s.collector.Dispatch(r.Context(), collector.Command{
		Name:          collector.CmdStopFocus,
		CorrelationID: log.CorrelationIDFromContext(r.Context()),
	})
	if res.Err != nil {
		if errors.Is(res.Err, session.ErrNotActive) {
			writeError(w, http.StatusConflict, res.Err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, res.Err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res.Session)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	res := s.collector.Dispatch(r.Context(), collector.Command{
		Name:          collector.CmdGetSessionStatus,
		CorrelationID: log.CorrelationIDFromContext(r.Context()),
	})
	if res.Err != nil {
		writeError(w, http.StatusInternalServerError, res.Err.Error())
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Active: res.Active, Session: res.Session})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	history, err := s.store.ListHistory(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "history read failed")
		return
	}
	if history == nil {
		history = []session.Session{}
	}
	writeJSON(w, http.StatusOK, history)
}

func (s *Server) handleSignal(w http.ResponseWriter, r *http.Request) {
	var sig collector.BrowserSignal
	if !decodeBody(w, r, &sig) {
		return
	}
	switch sig.Kind {
	case collector.SignalTabActivated, collector.SignalNavigation, collector.SignalIdleState:
	default:
		writeError(w, http.StatusBadRequest, "unknown signal kind")
		return
	}
	s.collector.Offer(sig)
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleSubmitLearning(w http.ResponseWriter, r *http.Request) {
	var req learningRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Content == "" {
		writeError(w, http.StatusBadRequest, "content is required")
		return
	}
	if req.SessionID == "" {
		status := s.collector.Dispatch(r.Context(), collector.Command{Name: collector.CmdGetSessionStatus})
		if status.Session == nil {
			writeError(w, http.StatusBadRequest, "sessionId is required while no session is active")
			return
		}
		req.SessionID = status.Session.ID
	}

	ctx := log.ContextWithSessionID(r.Context(), req.SessionID)
	res := s.collector.Dispatch(ctx, collector.Command{
		Name:          collector.CmdSubmitLearning,
		CorrelationID: log.CorrelationIDFromContext(ctx),
		SessionID:     req.SessionID,
		Content:       req.Content,
		Role:          req.Role,
	})
	if res.Err != nil {
		writeError(w, http.StatusInternalServerError, res.Err.Error())
		return
	}
	if res.Delivered {
		writeJSON(w, http.StatusCreated, learningResponse{Status: "delivered"})
		return
	}
	writeJSON(w, http.StatusAccepted, learningResponse{Status: "queued"})
}

func (s *Server) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	depth, err := s.store.QueueDepth(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "queue read failed")
		return
	}
	pending, err := s.store.ListPending(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "pending read failed")
		return
	}
	writeJSON(w, http.StatusOK, syncStatusResponse{
		QueueDepth:    depth,
		PendingCount:  len(pending),
		TransportMode: string(s.transport.Mode()),
		Connected:     s.transport.Connected(),
		LastFlush:     s.recorder.LastFlush(),
	})
}

func (s *Server) handleGetPrefs(w http.ResponseWriter, r *http.Request) {
	doc, err := s.store.GetPrefs(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "prefs read failed")
		return
	}
	if doc == nil {
		doc = json.RawMessage(`{}`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc)
}

func (s *Server) handlePutPrefs(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil || !json.Valid(body) {
		writeError(w, http.StatusBadRequest, "prefs must be a valid JSON document")
		return
	}
	if err := s.store.PutPrefs(r.Context(), body); err != nil {
		writeError(w, http.StatusInternalServerError, "prefs write failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleReconnect(w http.ResponseWriter, _ *http.Request) {
	s.transport.Reconnect()
	w.WriteHeader(http.StatusAccepted)
}
