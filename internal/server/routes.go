package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/lazypower/homeostat/internal/engine"
	"github.com/lazypower/homeostat/internal/telemetry"
)

const defaultJournalLimit = 20

func (s *Server) handleManifest(w http.ResponseWriter, r *http.Request) {
	s.engine.Tick(s.now())
	writeJSON(w, http.StatusOK, s.engine.Manifest())
}

// StateResponse is the body of GET /api/state.
type StateResponse struct {
	State engine.State `json:"state"`
	Stats engine.Stats `json:"stats"`
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StateResponse{State: s.engine.State(), Stats: s.engine.Stats()})
}

// TickResponse is the body of POST /api/tick.
type TickResponse struct {
	Elapsed float64      `json:"elapsed"`
	State   engine.State `json:"state"`
}

func (s *Server) handleTick(w http.ResponseWriter, r *http.Request) {
	elapsed := s.engine.Tick(s.now())
	writeJSON(w, http.StatusOK, TickResponse{Elapsed: elapsed, State: s.engine.State()})
}

// StimulusRequest is the body of POST /api/stimulate.
type StimulusRequest struct {
	Kind      string   `json:"kind" validate:"required"`
	Intensity *float64 `json:"intensity" validate:"required"`
}

func (s *Server) handleStimulate(w http.ResponseWriter, r *http.Request) {
	var req StimulusRequest
	if !decode(w, r, &req, false) {
		return
	}
	kind, err := engine.ParseStimulus(req.Kind)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.engine.Tick(s.now())
	res, err := s.engine.Stimulate(kind, *req.Intensity)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleVisual(w http.ResponseWriter, r *http.Request) {
	var req engine.VisualInput
	if !decode(w, r, &req, false) {
		return
	}
	s.engine.Tick(s.now())
	writeJSON(w, http.StatusOK, s.engine.PerceiveVisual(req))
}

// InterventionRequest is the body of POST /api/interventions.
type InterventionRequest struct {
	Kind string `json:"kind" validate:"required"`
}

func (s *Server) handleIntervene(w http.ResponseWriter, r *http.Request) {
	var req InterventionRequest
	if !decode(w, r, &req, false) {
		return
	}
	kind, err := engine.ParseIntervention(req.Kind)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.engine.Tick(s.now())
	if err := s.engine.Intervene(kind); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "kind": string(kind)})
}

// DeltasRequest is the body of POST /api/deltas.
type DeltasRequest struct {
	Deltas []engine.Delta `json:"deltas" validate:"required,min=1"`
}

func (s *Server) handleDeltas(w http.ResponseWriter, r *http.Request) {
	var req DeltasRequest
	if !decode(w, r, &req, false) {
		return
	}
	s.engine.Tick(s.now())
	writeJSON(w, http.StatusOK, s.engine.ApplyDeltas(req.Deltas))
}

// SkillRequest is the optional body of POST /api/skills/{skill}/use.
type SkillRequest struct {
	Cost *float64 `json:"cost"`
}

func (s *Server) handleUseSkill(w http.ResponseWriter, r *http.Request) {
	var req SkillRequest
	if !decode(w, r, &req, true) {
		return
	}
	cost := engine.DefaultSkillCost
	if req.Cost != nil {
		cost = *req.Cost
	}
	s.engine.Tick(s.now())
	out, err := s.engine.UseSkill(chi.URLParam(r, "skill"), cost)
	if err != nil {
		writeEnergyError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleUseResource(w http.ResponseWriter, r *http.Request) {
	s.engine.Tick(s.now())
	out, err := s.engine.UseResource(chi.URLParam(r, "class"))
	if err != nil {
		writeEnergyError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func writeEnergyError(w http.ResponseWriter, err error) {
	if errors.Is(err, engine.ErrInsufficientEnergy) {
		writeError(w, http.StatusPaymentRequired, err.Error())
		return
	}
	writeError(w, http.StatusBadRequest, err.Error())
}

func (s *Server) handleConsolidate(w http.ResponseWriter, r *http.Request) {
	s.engine.Tick(s.now())
	rep, err := s.regulator.Sleep(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// PerceiveRequest is the body of POST /api/perceive.
type PerceiveRequest struct {
	Text string `json:"text" validate:"required"`
}

func (s *Server) handlePerceive(w http.ResponseWriter, r *http.Request) {
	var req PerceiveRequest
	if !decode(w, r, &req, false) {
		return
	}
	p, err := s.regulator.Perceive(r.Context(), req.Text)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// RefineRequest is the body of POST /api/refine.
type RefineRequest struct {
	Draft string `json:"draft" validate:"required"`
}

func (s *Server) handleRefine(w http.ResponseWriter, r *http.Request) {
	var req RefineRequest
	if !decode(w, r, &req, false) {
		return
	}
	s.engine.Tick(s.now())
	writeJSON(w, http.StatusOK, s.filter.Refine(r.Context(), req.Draft, s.engine.Manifest()))
}

// JournalResponse is the body of GET /api/journal. Entries come from the
// ledger when one is configured, otherwise from the live state.
type JournalResponse struct {
	Source  string                `json:"source"`
	Entries []engine.JournalEntry `json:"entries"`
}

func (s *Server) handleJournal(w http.ResponseWriter, r *http.Request) {
	limit := defaultJournalLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	resp := JournalResponse{Source: "state", Entries: []engine.JournalEntry{}}
	if s.ledger != nil {
		recs, err := s.ledger.ListJournal(limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		resp.Source = "ledger"
		for _, rec := range recs {
			resp.Entries = append(resp.Entries, engine.JournalEntry{Date: rec.Date, Text: rec.Text, Baselines: rec.Baselines})
		}
		writeJSON(w, http.StatusOK, resp)
		return
	}

	journal := s.engine.State().Journal
	// Newest first, matching the ledger.
	for i := len(journal) - 1; i >= 0 && len(resp.Entries) < limit; i-- {
		resp.Entries = append(resp.Entries, journal[i])
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListCheckpoints(w http.ResponseWriter, r *http.Request) {
	if s.checkpoints == nil {
		writeError(w, http.StatusNotImplemented, "checkpoints not configured")
		return
	}
	list, err := s.checkpoints.List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleSaveCheckpoint(w http.ResponseWriter, r *http.Request) {
	if s.checkpoints == nil {
		writeError(w, http.StatusNotImplemented, "checkpoints not configured")
		return
	}
	if err := s.engine.Flush(); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	rep, err := s.checkpoints.Save(s.now())
	telemetry.RecordCheckpoint("save", len(rep.Failed), err)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, rep)
}
