package channels

import (
	"context"
	"fmt"
	"time"

	"github.com/vantico/pulse/internal/metrics"
	"github.com/vantico/pulse/internal/models"
	"github.com/vantico/pulse/internal/registry"
	"go.uber.org/zap"
)

// CRMRepo reads a tenant's CRM deals and funnel stages. Unlike the ad
// channels, the CRM tables are fixed (crm_deals, crm_funnel_stages)
// and filtered by tenant_id; the registry only gates whether the
// tenant has a CRM integration at all (channel key "moskit").
type CRMRepo struct {
	db       Querier
	registry *registry.Cache
	logger   *zap.Logger
	metrics  *metrics.Metrics
	timeout  time.Duration
}

func NewCRMRepo(db Querier, reg *registry.Cache, logger *zap.Logger, m *metrics.Metrics, timeout time.Duration) *CRMRepo {
	return &CRMRepo{db: db, registry: reg, logger: logger, metrics: m, timeout: timeout}
}

// ReadRange returns deal counts for deals created in the range,
// classified against their current stage.
func (r *CRMRepo) ReadRange(ctx context.Context, tenantID string, rng Range) (models.CRMSummary, FetchStatus) {
	start := time.Now()
	summary, status := r.readRange(ctx, tenantID, rng)
	r.metrics.RecordFetch(string(models.ChannelMoskit), string(status.Outcome), time.Since(start))
	if status.Outcome == OutcomeFailed {
		r.logger.Error("crm fetch failed",
			zap.String("tenant_id", tenantID),
			zap.Error(status.Err),
		)
	}
	return summary, status
}

func (r *CRMRepo) readRange(ctx context.Context, tenantID string, rng Range) (models.CRMSummary, FetchStatus) {
	var summary models.CRMSummary

	ctx, cancel := fetchContext(ctx, r.timeout)
	defer cancel()

	configured, err := r.registry.HasIntegration(ctx, tenantID, models.ChannelMoskit)
	if err != nil {
		return summary, statusFailed(err)
	}
	if !configured {
		return summary, statusUnconfigured()
	}

	stages, err := r.loadStages(ctx, tenantID)
	if err != nil {
		return summary, statusFailed(err)
	}

	deals, err := r.loadDeals(ctx, tenantID, rng)
	if err != nil {
		return summary, statusFailed(err)
	}

	return ClassifyDeals(deals, stages), statusOK()
}

func (r *CRMRepo) loadStages(ctx context.Context, tenantID string) (map[string]models.FunnelStage, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, name, "order", is_won, is_lost
		FROM crm_funnel_stages WHERE tenant_id = $1
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query funnel stages: %w", err)
	}
	defer rows.Close()

	stages := make(map[string]models.FunnelStage)
	for rows.Next() {
		var s models.FunnelStage
		if err := rows.Scan(&s.ID, &s.Name, &s.Order, &s.IsWon, &s.IsLost); err != nil {
			return nil, err
		}
		stages[s.ID] = s
	}
	return stages, rows.Err()
}

func (r *CRMRepo) loadDeals(ctx context.Context, tenantID string, rng Range) ([]models.Deal, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, stage_id, COALESCE(value, 0), COALESCE(source, ''), created_at
		FROM crm_deals
		WHERE tenant_id = $1 AND created_at >= $2 AND created_at <= $3
	`, tenantID, rng.Start, rng.EndOfDay())
	if err != nil {
		return nil, fmt.Errorf("failed to query deals: %w", err)
	}
	defer rows.Close()

	var deals []models.Deal
	for rows.Next() {
		var d models.Deal
		if err := rows.Scan(&d.ID, &d.StageID, &d.Value, &d.Source, &d.CreatedAt); err != nil {
			return nil, err
		}
		deals = append(deals, d)
	}
	return deals, rows.Err()
}

// ClassifyDeals reduces deals against their current stages. Every deal
// created in the period counts as a lead. A deal whose current stage
// has order >= 2, or that reached a won/lost stage, counts as an
// opportunity: a closed deal necessarily passed through the
// opportunity phase even when its stage history is not tracked. Only
// deals sitting in a won stage count as sales.
//
// A deal referencing an unknown stage still counts as a lead but is
// never an opportunity or sale. Leads additionally group by their
// acquisition source, blank sources under "unknown".
func ClassifyDeals(deals []models.Deal, stages map[string]models.FunnelStage) models.CRMSummary {
	var s models.CRMSummary
	for _, d := range deals {
		s.Leads++

		source := d.Source
		if source == "" {
			source = "unknown"
		}
		if s.LeadsBySource == nil {
			s.LeadsBySource = make(map[string]int64)
		}
		s.LeadsBySource[source]++

		stage, ok := stages[d.StageID]
		if !ok {
			s.OpenValue += d.Value
			continue
		}

		if d.IsOpportunity(stage) {
			s.Opportunities++
		}
		if d.IsSale(stage) {
			s.Sales++
			s.WonRevenue += d.Value
		}
		if !stage.Closed() {
			s.OpenValue += d.Value
		}
	}
	return s
}
