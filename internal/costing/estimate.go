package costing

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/Simplici0/fieldquote/internal/apperr"
	"github.com/Simplici0/fieldquote/internal/complexity"
	"github.com/Simplici0/fieldquote/internal/loadout"
	"github.com/Simplici0/fieldquote/internal/pricing"
	"github.com/Simplici0/fieldquote/internal/quote"
	"github.com/Simplici0/fieldquote/internal/workvolume"
)

// MultiplierResult is a computed complexity multiplier with the factors that fed it.
type MultiplierResult struct {
	Strategy   string              `json:"strategy"`
	Multiplier float64             `json:"multiplier"`
	Factors    []complexity.Factor `json:"factors"`
}

// Quote is the live, unlocked estimate for a job.
type Quote struct {
	JobID    string                         `json:"job_id"`
	Strategy string                         `json:"strategy"`
	Estimate pricing.JobEstimate            `json:"estimate"`
	Summary  pricing.Summary                `json:"summary"`
	Factors  map[string][]complexity.Factor `json:"factors"`
	// CrewComparison costs template-priced lines with the assigned loadout.
	CrewComparison []pricing.TwoTier `json:"crew_comparison,omitempty"`
}

// ScoreWork returns the base work-volume score of a single item.
func (s *Service) ScoreWork(serviceType workvolume.ServiceType, in workvolume.Inputs) (float64, error) {
	return workvolume.Score(serviceType, in)
}

// ComputeMultiplier resolves factor ids for an organization and combines them
// with the configured strategy.
func (s *Service) ComputeMultiplier(ctx context.Context, orgID string, factorIDs []string, serviceType string) (MultiplierResult, error) {
	if s.settings.Strategy == nil {
		return MultiplierResult{}, apperr.Configuration("multiplier_strategy", "no strategy configured")
	}
	catalog, err := s.repo.Catalog(ctx, orgID)
	if err != nil {
		return MultiplierResult{}, err
	}
	m, factors := complexity.Compute(catalog, s.settings.Strategy, factorIDs, serviceType)
	return MultiplierResult{
		Strategy:   s.settings.Strategy.Name(),
		Multiplier: m,
		Factors:    factors,
	}, nil
}

// EstimateJob prices every work item of a job and adds transport and buffer.
// Nothing is stored.
func (s *Service) EstimateJob(ctx context.Context, jobID string) (Quote, error) {
	if s.settings.Strategy == nil {
		return Quote{}, apperr.Configuration("multiplier_strategy", "no strategy configured")
	}
	job, err := s.repo.GetJob(ctx, jobID)
	if err != nil {
		return Quote{}, err
	}
	items, err := s.repo.ListWorkItems(ctx, jobID)
	if err != nil {
		return Quote{}, err
	}
	if len(items) == 0 {
		return Quote{}, apperr.Validation("work_items", "job %s has no work items", jobID)
	}
	catalog, err := s.repo.Catalog(ctx, job.OrgID)
	if err != nil {
		return Quote{}, err
	}

	var crew *loadout.Loadout
	if job.LoadoutID != "" {
		if crew, err = s.repo.GetLoadout(ctx, job.LoadoutID); err != nil {
			return Quote{}, err
		}
	}

	q := Quote{
		JobID:    job.ID,
		Strategy: s.settings.Strategy.Name(),
		Factors:  make(map[string][]complexity.Factor, len(items)),
	}
	lines := make([]pricing.Line, 0, len(items))
	for _, item := range items {
		in, factors, err := s.lineInput(catalog, item)
		if err != nil {
			return Quote{}, err
		}
		rates, err := s.rates(ctx, item.PricingSource(), item.ServiceType, crew)
		if err != nil {
			return Quote{}, err
		}
		line, err := pricing.AssembleLine(in, rates, s.lineOptions())
		if err != nil {
			return Quote{}, err
		}
		lines = append(lines, line)
		q.Factors[item.ID] = factors

		if crew != nil && rates.Source == pricing.SourceTemplate {
			if tt, ok := s.crewComparison(ctx, in, rates, crew); ok {
				q.CrewComparison = append(q.CrewComparison, tt)
			}
		}
	}

	q.Estimate, err = pricing.AssembleJob(lines, pricing.JobParams{
		DriveTimeMinutes:    job.DriveTimeMinutes,
		TransportRateFactor: s.settings.TransportRateFactor,
		BufferFraction:      s.settings.BufferFraction,
	})
	if err != nil {
		return Quote{}, err
	}
	q.Summary = pricing.Summarize(q.Estimate)

	for _, line := range lines {
		s.metrics.EstimateAssembled(ctx, string(line.Rates.Source))
	}
	return q, nil
}

// AcceptQuote locks the job's estimate and moves it to accepted. Accepting an
// already accepted job returns the original snapshot with created false.
func (s *Service) AcceptQuote(ctx context.Context, jobID string) (pricing.LockedEstimate, bool, error) {
	job, err := s.repo.GetJob(ctx, jobID)
	if err != nil {
		return pricing.LockedEstimate{}, false, err
	}
	if job.Status != quote.StatusDraft {
		locked, err := s.repo.GetLockedEstimate(ctx, jobID)
		return locked, false, err
	}

	q, err := s.EstimateJob(ctx, jobID)
	if err != nil {
		return pricing.LockedEstimate{}, false, err
	}
	locked, created, err := s.repo.LockEstimate(ctx, pricing.Lock(job.ID, job.LoadoutID, q.Estimate, s.now()))
	if err != nil {
		return pricing.LockedEstimate{}, false, err
	}
	if created {
		s.metrics.QuoteAccepted(ctx)
		s.logger.Info("quote accepted",
			zap.String("job_id", job.ID),
			zap.String("total_price", pricing.FormatMoney(locked.Price())))
	}
	return locked, created, nil
}

// LockedEstimate returns the snapshot written when the job was accepted.
func (s *Service) LockedEstimate(ctx context.Context, jobID string) (pricing.LockedEstimate, error) {
	return s.repo.GetLockedEstimate(ctx, jobID)
}

func (s *Service) lineOptions() pricing.Options {
	return pricing.Options{HoursPerDay: s.settings.HoursPerDay}
}

func (s *Service) lineInput(catalog *complexity.Catalog, item quote.WorkItem) (pricing.LineInput, []complexity.Factor, error) {
	if err := item.Validate(); err != nil {
		return pricing.LineInput{}, nil, err
	}
	base, err := workvolume.Score(item.ServiceType, item.Inputs)
	if err != nil {
		return pricing.LineInput{}, nil, err
	}
	m, factors := complexity.Compute(catalog, s.settings.Strategy, item.FactorIDs, string(item.ServiceType))
	return pricing.LineInput{
		ID:          item.ID,
		ServiceType: item.ServiceType,
		BaseScore:   base,
		Multiplier:  m,
	}, factors, nil
}

// rates resolves the pricing source for one line. Loadout lines bill at the
// template's target margin, or DefaultLoadoutMargin without a template, and
// take the loadout's PPH override before the template PPH.
func (s *Service) rates(ctx context.Context, source pricing.SourceKind, serviceType workvolume.ServiceType, crew *loadout.Loadout) (pricing.Rates, error) {
	tmpl, err := s.repo.GetTemplate(ctx, string(serviceType))
	if source == pricing.SourceTemplate {
		if err != nil {
			return pricing.Rates{}, err
		}
		return pricing.Rates{
			Source:      pricing.SourceTemplate,
			SourceID:    tmpl.ServiceType,
			PPH:         tmpl.StandardPPH,
			CostPerHour: tmpl.StandardCostPerHour,
			BillingRate: tmpl.StandardBillingRate,
		}, nil
	}

	hasTemplate := err == nil
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return pricing.Rates{}, err
	}
	if crew == nil {
		return pricing.Rates{}, apperr.Configuration("loadout_id", "no loadout assigned for a loadout-priced %s line", serviceType)
	}
	cost, err := crew.Cost()
	if err != nil {
		return pricing.Rates{}, err
	}

	margin := DefaultLoadoutMargin
	pph, ok := crew.ProductionRate(string(serviceType))
	if hasTemplate {
		margin = tmpl.TargetMargin
		if !ok {
			pph = tmpl.StandardPPH
		}
	}
	billing, err := cost.BillingRate(margin)
	if err != nil {
		return pricing.Rates{}, err
	}
	return pricing.Rates{
		Source:      pricing.SourceLoadout,
		SourceID:    crew.ID,
		PPH:         pph,
		CostPerHour: cost.TotalCostPerHour,
		BillingRate: billing,
	}, nil
}

func (s *Service) crewComparison(ctx context.Context, in pricing.LineInput, standard pricing.Rates, crew *loadout.Loadout) (pricing.TwoTier, bool) {
	crewRates, err := s.rates(ctx, pricing.SourceLoadout, in.ServiceType, crew)
	if err != nil {
		s.logger.Debug("skipping crew comparison",
			zap.String("loadout_id", crew.ID),
			zap.String("line_id", in.ID),
			zap.Error(err))
		return pricing.TwoTier{}, false
	}
	tt, err := pricing.AssembleTwoTier(in, standard, crewRates, s.lineOptions())
	if err != nil {
		return pricing.TwoTier{}, false
	}
	return tt, true
}
