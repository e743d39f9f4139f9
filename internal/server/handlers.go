package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/rickgao/portfolio-tracker/internal/api"
	"github.com/rickgao/portfolio-tracker/internal/dispatch"
	"github.com/rickgao/portfolio-tracker/internal/portfolio"
	"github.com/rickgao/portfolio-tracker/internal/watch"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("write response", "err", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, errorResponse{Error: msg})
}

// writeServiceError maps domain errors to HTTP status codes.
func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	var apiErr *api.APIError
	switch {
	case errors.Is(err, portfolio.ErrInvalidHolding),
		errors.Is(err, watch.ErrInvalidSymbol):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, portfolio.ErrHoldingNotFound),
		errors.Is(err, api.ErrSymbolNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, watch.ErrCapacityExceeded):
		s.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, dispatch.ErrRetryBudgetExhausted),
		errors.Is(err, dispatch.ErrStopped),
		errors.Is(err, watch.ErrClosed):
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		s.writeError(w, http.StatusGatewayTimeout, err.Error())
	case errors.As(err, &apiErr):
		s.writeError(w, http.StatusBadGateway, err.Error())
	default:
		s.logger.Error("request failed", "err", err)
		s.writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
}

func (s *Server) pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid holding id")
		return uuid.Nil, false
	}
	return id, true
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	health := struct {
		Status     string         `json:"status"`
		Components map[string]any `json:"components"`
	}{
		Status:     "healthy",
		Components: make(map[string]any),
	}

	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			health.Status = "unhealthy"
			health.Components[name] = map[string]string{
				"status": "disconnected",
				"error":  err.Error(),
			}
			continue
		}
		health.Components[name] = "connected"
	}

	if s.dispatcher != nil {
		st := s.dispatcher.Stats()
		health.Components["dispatcher"] = map[string]any{
			"running": st.Running,
			"queued":  st.Queued,
		}
		if !st.Running && health.Status == "healthy" {
			health.Status = "degraded"
		}
	}

	status := http.StatusOK
	if health.Status == "unhealthy" {
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, health)
}

func (s *Server) handleListHoldings(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.portfolio.Holdings())
}

func (s *Server) handleGetHolding(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	h, found := s.portfolio.Get(id)
	if !found {
		s.writeError(w, http.StatusNotFound, portfolio.ErrHoldingNotFound.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, h)
}

func (s *Server) handleAddHolding(w http.ResponseWriter, r *http.Request) {
	var in portfolio.NewHolding
	if err := decodeBody(w, r, &in); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	h, err := s.portfolio.Add(r.Context(), in)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, h)
}

func (s *Server) handleUpdateHolding(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}

	var in portfolio.HoldingUpdate
	if err := decodeBody(w, r, &in); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	h, err := s.portfolio.Update(r.Context(), id, in)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, h)
}

func (s *Server) handleDeleteHolding(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	if err := s.portfolio.Delete(r.Context(), id); err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.portfolio.Metrics())
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	q, err := s.quotes.GetQuote(r.Context(), r.PathValue("symbol"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, q)
}

func (s *Server) handleDispatcher(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.dispatcher.Stats())
}
