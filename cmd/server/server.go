package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Simplici0/fieldquote/internal/costing"
	"github.com/Simplici0/fieldquote/internal/costrate"
	"github.com/Simplici0/fieldquote/internal/pricing"
	"github.com/Simplici0/fieldquote/internal/quote"
	"github.com/Simplici0/fieldquote/internal/store"
	"github.com/Simplici0/fieldquote/internal/timetrack"
	"github.com/Simplici0/fieldquote/internal/workvolume"
)

type server struct {
	svc     *costing.Service
	store   *store.Store
	logger  *zap.Logger
	metrics http.Handler
}

func newServer(svc *costing.Service, st *store.Store, logger *zap.Logger, metrics http.Handler) *server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &server{svc: svc, store: st, logger: logger, metrics: metrics}
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(s.logger))
	r.Use(orgScope)

	r.Get("/healthz", s.handleHealth)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}

	r.Post("/score", s.handleScore)
	r.Post("/multiplier", s.handleMultiplier)

	r.Post("/equipment", s.handleEquipmentUpsert)
	r.Post("/employees", s.handleEmployeeUpsert)

	r.Post("/loadouts/cost", s.handleAdHocLoadoutCost)
	r.Post("/loadouts/{id}/members", s.handleLoadoutMembers)
	r.Get("/loadouts/{id}/cost", s.handleLoadoutCost)

	r.Post("/jobs", s.handleJobCreate)
	r.Route("/jobs/{id}", func(r chi.Router) {
		r.Post("/items", s.handleWorkItemCreate)
		r.Put("/loadout", s.handleJobLoadout)
		r.Post("/estimate", s.handleJobEstimate)
		r.Get("/estimate", s.handleLockedEstimate)
		r.Post("/accept", s.handleJobAccept)
		r.Post("/switch", s.handleTaskSwitch)
		r.Post("/stop", s.handleTaskStop)
		r.Get("/records", s.handleTimeRecords)
		r.Post("/reconcile", s.handleJobReconcile)
		r.Get("/performance", s.handlePerformanceRecord)
	})
	r.Patch("/performance/{id}", s.handlePerformanceReview)

	return r
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		s.httpError(w, "database unavailable", http.StatusServiceUnavailable)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type scoreRequest struct {
	ServiceType workvolume.ServiceType `json:"service_type"`
	Inputs      workvolume.Inputs      `json:"inputs"`
}

type scoreResponse struct {
	ServiceType workvolume.ServiceType `json:"service_type"`
	BaseScore   float64                `json:"base_score"`
}

func (s *server) handleScore(w http.ResponseWriter, r *http.Request) {
	var req scoreRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	score, err := s.svc.ScoreWork(req.ServiceType, req.Inputs)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, scoreResponse{ServiceType: req.ServiceType, BaseScore: score})
}

type multiplierRequest struct {
	ServiceType string   `json:"service_type"`
	FactorIDs   []string `json:"factor_ids"`
}

func (s *server) handleMultiplier(w http.ResponseWriter, r *http.Request) {
	var req multiplierRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	res, err := s.svc.ComputeMultiplier(r.Context(), orgIDFromContext(r.Context()), req.FactorIDs, req.ServiceType)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, res)
}

func (s *server) handleEquipmentUpsert(w http.ResponseWriter, r *http.Request) {
	var e costrate.Equipment
	if err := decodeJSON(r, &e); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := requireField("id", e.ID); err != nil {
		s.fail(w, r, err)
		return
	}
	cost, err := costrate.EquipmentRate(e)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.store.UpsertEquipment(r.Context(), orgIDFromContext(r.Context()), e); err != nil {
		s.fail(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, cost)
}

func (s *server) handleEmployeeUpsert(w http.ResponseWriter, r *http.Request) {
	var e costrate.Employee
	if err := decodeJSON(r, &e); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := requireField("id", e.ID); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.store.UpsertEmployee(r.Context(), orgIDFromContext(r.Context()), e); err != nil {
		s.fail(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, e)
}

type membersRequest struct {
	Name            string             `json:"name"`
	EquipmentIDs    []string           `json:"equipment_ids"`
	EmployeeIDs     []string           `json:"employee_ids"`
	ProductionRates map[string]float64 `json:"production_rates,omitempty"`
}

func (s *server) handleAdHocLoadoutCost(w http.ResponseWriter, r *http.Request) {
	var req membersRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	cost, err := s.svc.AggregateLoadoutCost(r.Context(), req.EquipmentIDs, req.EmployeeIDs)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, cost)
}

// handleLoadoutMembers stores the new membership and recomputes the cost in
// the same request.
func (s *server) handleLoadoutMembers(w http.ResponseWriter, r *http.Request) {
	var req membersRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	id := chi.URLParam(r, "id")
	if _, err := s.svc.SetLoadoutMembers(r.Context(), costing.LoadoutInput{
		ID:              id,
		OrgID:           orgIDFromContext(r.Context()),
		Name:            req.Name,
		EquipmentIDs:    req.EquipmentIDs,
		EmployeeIDs:     req.EmployeeIDs,
		ProductionRates: req.ProductionRates,
	}); err != nil {
		s.fail(w, r, err)
		return
	}
	l, err := s.svc.RecomputeLoadout(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	cost, err := l.Cost()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, cost)
}

func (s *server) handleLoadoutCost(w http.ResponseWriter, r *http.Request) {
	cost, err := s.svc.LoadoutCost(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, cost)
}

func (s *server) handleJobCreate(w http.ResponseWriter, r *http.Request) {
	var job quote.Job
	if err := decodeJSON(r, &job); err != nil {
		s.fail(w, r, err)
		return
	}
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	job.OrgID = orgIDFromContext(r.Context())
	job.Status = quote.StatusDraft
	if err := s.store.CreateJob(r.Context(), job); err != nil {
		s.fail(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, job)
}

func (s *server) handleWorkItemCreate(w http.ResponseWriter, r *http.Request) {
	var item quote.WorkItem
	if err := decodeJSON(r, &item); err != nil {
		s.fail(w, r, err)
		return
	}
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	item.JobID = chi.URLParam(r, "id")
	item.Source = item.PricingSource()
	if err := s.store.AddWorkItem(r.Context(), item); err != nil {
		s.fail(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, item)
}

type jobLoadoutRequest struct {
	LoadoutID string `json:"loadout_id"`
}

func (s *server) handleJobLoadout(w http.ResponseWriter, r *http.Request) {
	var req jobLoadoutRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := requireField("loadout_id", req.LoadoutID); err != nil {
		s.fail(w, r, err)
		return
	}
	if _, err := s.store.GetLoadout(r.Context(), req.LoadoutID); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.store.AssignLoadout(r.Context(), chi.URLParam(r, "id"), req.LoadoutID); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleJobEstimate(w http.ResponseWriter, r *http.Request) {
	q, err := s.svc.EstimateJob(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, q)
}

type lockedResponse struct {
	Created bool                   `json:"created"`
	Locked  pricing.LockedEstimate `json:"locked_estimate"`
	Summary pricing.Summary        `json:"summary"`
}

func (s *server) handleJobAccept(w http.ResponseWriter, r *http.Request) {
	locked, created, err := s.svc.AcceptQuote(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	s.respondJSON(w, status, lockedResponse{
		Created: created,
		Locked:  locked,
		Summary: pricing.Summarize(locked.Estimate()),
	})
}

// handleLockedEstimate serves the stored snapshot without recalculation.
func (s *server) handleLockedEstimate(w http.ResponseWriter, r *http.Request) {
	locked, err := s.svc.LockedEstimate(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, lockedResponse{
		Locked:  locked,
		Summary: pricing.Summarize(locked.Estimate()),
	})
}

func (s *server) handleTaskSwitch(w http.ResponseWriter, r *http.Request) {
	var req timetrack.SwitchRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	req.JobID = chi.URLParam(r, "id")
	res, err := s.svc.SwitchTask(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, res)
}

type stopRequest struct {
	EmployeeID string `json:"employee_id"`
}

func (s *server) handleTaskStop(w http.ResponseWriter, r *http.Request) {
	var req stopRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	res, err := s.svc.StopTask(r.Context(), chi.URLParam(r, "id"), req.EmployeeID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, res)
}

func (s *server) handleTimeRecords(w http.ResponseWriter, r *http.Request) {
	records, err := s.svc.TimeRecords(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if records == nil {
		records = []timetrack.Record{}
	}
	s.respondJSON(w, http.StatusOK, records)
}

func (s *server) handleJobReconcile(w http.ResponseWriter, r *http.Request) {
	rec, err := s.svc.ReconcileJob(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, rec)
}

func (s *server) handlePerformanceRecord(w http.ResponseWriter, r *http.Request) {
	rec, err := s.store.GetPerformanceRecord(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, rec)
}

type reviewRequest struct {
	Outlier                 *bool `json:"outlier"`
	IncludeInTemplateRecalc *bool `json:"include_in_template_recalc"`
}

// handlePerformanceReview changes only the review flags of a performance record.
func (s *server) handlePerformanceReview(w http.ResponseWriter, r *http.Request) {
	var req reviewRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	id := chi.URLParam(r, "id")
	if req.Outlier != nil {
		if err := s.store.MarkOutlier(r.Context(), id, *req.Outlier); err != nil {
			s.fail(w, r, err)
			return
		}
	}
	if req.IncludeInTemplateRecalc != nil {
		if err := s.store.SetIncludeInRecalc(r.Context(), id, *req.IncludeInTemplateRecalc); err != nil {
			s.fail(w, r, err)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}
