package server

import (
	"encoding/json"
	"errors"
	"io"
	"maps"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/blackwhitehere/acme-data-dash/internal/check"
	"github.com/blackwhitehere/acme-data-dash/internal/runner"
	"github.com/blackwhitehere/acme-data-dash/internal/storage"
)

const (
	defaultLimit = 50
	maxLimit     = 1000
	// successWindow is how many recent results feed success_rate.
	successWindow = 100
)

type checkSummary struct {
	ID          string                      `json:"id"`
	Description string                      `json:"description"`
	Parameters  []check.ParameterDefinition `json:"parameters"`
	Status      string                      `json:"status"`
	LastRun     *time.Time                  `json:"last_run"`
	SuccessRate float64                     `json:"success_rate"`
}

func (s *Server) summarize(r *http.Request, c check.Check, latest map[string]storage.LatestStatus) checkSummary {
	sum := checkSummary{
		ID:          c.ID(),
		Description: c.Description(),
		Parameters:  c.Parameters(),
		Status:      "unknown",
	}
	if sum.Parameters == nil {
		sum.Parameters = []check.ParameterDefinition{}
	}
	if st, ok := latest[c.ID()]; ok {
		sum.Status = st.Status
		t := st.ExecutedAt
		sum.LastRun = &t
		pct, _ := s.store.SuccessRate(r.Context(), c.ID(), successWindow)
		sum.SuccessRate = pct
	}
	return sum
}

func (s *Server) handleListChecks(w http.ResponseWriter, r *http.Request) {
	latest, err := s.store.LatestStatuses(r.Context())
	if err != nil {
		s.logger.Error("LatestStatuses", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	all := s.registry.All()
	out := make([]checkSummary, 0, len(all))
	for _, c := range all {
		out = append(out, s.summarize(r, c, latest))
	}
	writeJSON(w, http.StatusOK, out)
}

type checkDetail struct {
	checkSummary
	RecentResults []storage.Record `json:"recent_results"`
}

func (s *Server) handleGetCheck(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	c, ok := s.registry.Lookup(id)
	if !ok {
		writeError(w, http.StatusNotFound, "check not found")
		return
	}

	latest, err := s.store.LatestStatuses(r.Context())
	if err != nil {
		s.logger.Error("LatestStatuses", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	recent, _, err := s.store.CheckHistory(r.Context(), id, 10, 0)
	if err != nil {
		s.logger.Error("CheckHistory", "check_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, checkDetail{
		checkSummary:  s.summarize(r, c, latest),
		RecentResults: recent,
	})
}

type executeRequest struct {
	Params check.Params `json:"params"`
}

type executeResponse struct {
	RunID      string       `json:"run_id"`
	RecordID   int64        `json:"record_id,omitempty"`
	CheckID    string       `json:"check_id"`
	Result     check.Result `json:"result"`
	ExecutedAt time.Time    `json:"executed_at"`
	DurationMs int64        `json:"duration_ms"`
}

func (s *Server) handleExecuteCheck(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req executeRequest
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	o, err := s.exec.Run(r.Context(), id, req.Params)
	if errors.Is(err, runner.ErrCheckNotFound) {
		writeError(w, http.StatusNotFound, "check not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, executeResponse{
		RunID:      o.RunID.String(),
		RecordID:   o.RecordID,
		CheckID:    o.CheckID,
		Result:     o.Result,
		ExecutedAt: o.ExecutedAt,
		DurationMs: o.Duration.Milliseconds(),
	})
}

type historyResponse struct {
	Results []storage.Record `json:"results"`
	Total   int              `json:"total"`
}

func (s *Server) handleCheckHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := s.registry.Lookup(id); !ok {
		writeError(w, http.StatusNotFound, "check not found")
		return
	}

	limit, ok := queryInt(w, r, "limit", defaultLimit)
	if !ok {
		return
	}
	offset, ok := queryInt(w, r, "offset", 0)
	if !ok {
		return
	}

	results, total, err := s.store.CheckHistory(r.Context(), id, limit, offset)
	if err != nil {
		s.logger.Error("CheckHistory", "check_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, historyResponse{Results: results, Total: total})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(w, r, "limit", defaultLimit)
	if !ok {
		return
	}

	results, err := s.store.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error("Recent", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	latest, err := s.store.LatestStatuses(r.Context())
	if err != nil {
		s.logger.Error("LatestStatuses", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	out := make([]storage.LatestStatus, 0, len(latest))
	for _, id := range slices.Sorted(maps.Keys(latest)) {
		out = append(out, latest[id])
	}
	writeJSON(w, http.StatusOK, out)
}

// queryInt reads a non-negative integer query parameter, capping limit at
// maxLimit. On a bad value it writes a 400 and returns false.
func queryInt(w http.ResponseWriter, r *http.Request, name string, def int) (int, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		writeError(w, http.StatusBadRequest, "invalid "+name+" parameter")
		return 0, false
	}
	if name == "limit" && n > maxLimit {
		n = maxLimit
	}
	return n, true
}
