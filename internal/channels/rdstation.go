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

// RDStationRepo reads a tenant's RD Station lead data. Two strategies
// exist: the granular per-lead table, preferred because it supports
// per-source breakdowns, and a pre-aggregated monthly summary table
// for tenants without granular sync. The fallback applies only when
// the granular registry entry is absent, never on a query failure.
type RDStationRepo struct {
	db       Querier
	registry *registry.Cache
	logger   *zap.Logger
	metrics  *metrics.Metrics
	timeout  time.Duration
}

func NewRDStationRepo(db Querier, reg *registry.Cache, logger *zap.Logger, m *metrics.Metrics, timeout time.Duration) *RDStationRepo {
	return &RDStationRepo{db: db, registry: reg, logger: logger, metrics: m, timeout: timeout}
}

type rdLeadRow struct {
	Source string
}

// ReadRange returns the tenant's RD Station lead totals for the range.
func (r *RDStationRepo) ReadRange(ctx context.Context, tenantID string, rng Range) (models.RDStationSummary, FetchStatus) {
	start := time.Now()
	summary, status := r.readRange(ctx, tenantID, rng)
	r.metrics.RecordFetch(string(models.ChannelRDStation), string(status.Outcome), time.Since(start))
	if status.Outcome == OutcomeFailed {
		r.logger.Error("rdstation fetch failed",
			zap.String("tenant_id", tenantID),
			zap.Error(status.Err),
		)
	}
	return summary, status
}

func (r *RDStationRepo) readRange(ctx context.Context, tenantID string, rng Range) (models.RDStationSummary, FetchStatus) {
	var summary models.RDStationSummary

	ctx, cancel := fetchContext(ctx, r.timeout)
	defer cancel()

	granular, err := r.registry.Resolve(ctx, tenantID, models.ChannelRDStation, models.TableTypeLeads)
	if err != nil {
		return summary, statusFailed(err)
	}
	if granular != "" {
		return r.readGranular(ctx, granular, rng)
	}

	monthly, err := r.registry.Resolve(ctx, tenantID, models.ChannelRDStation, models.TableTypeDashboardSummary)
	if err != nil {
		return summary, statusFailed(err)
	}
	if monthly != "" {
		return r.readMonthly(ctx, monthly, rng)
	}

	return summary, statusUnconfigured()
}

func (r *RDStationRepo) readGranular(ctx context.Context, table string, rng Range) (models.RDStationSummary, FetchStatus) {
	query := fmt.Sprintf(`
		SELECT COALESCE(source, '') FROM %s
		WHERE created_at >= $1 AND created_at <= $2
	`, sanitizeTable(table))

	rows, err := r.db.Query(ctx, query, rng.Start, rng.EndOfDay())
	if err != nil {
		return models.RDStationSummary{}, statusFailed(fmt.Errorf("failed to query rdstation leads: %w", err))
	}
	defer rows.Close()

	var raw []rdLeadRow
	for rows.Next() {
		var row rdLeadRow
		if err := rows.Scan(&row.Source); err != nil {
			return models.RDStationSummary{}, statusFailed(err)
		}
		raw = append(raw, row)
	}
	if err := rows.Err(); err != nil {
		return models.RDStationSummary{}, statusFailed(err)
	}

	return reduceRDLeadRows(raw), statusOK()
}

func (r *RDStationRepo) readMonthly(ctx context.Context, table string, rng Range) (models.RDStationSummary, FetchStatus) {
	var summary models.RDStationSummary

	// The summary table holds one row per calendar month; include every
	// month the range touches.
	monthStart := time.Date(rng.Start.Year(), rng.Start.Month(), 1, 0, 0, 0, 0, rng.Start.Location())

	query := fmt.Sprintf(`
		SELECT COALESCE(leads, 0) FROM %s
		WHERE month >= $1 AND month <= $2
	`, sanitizeTable(table))

	rows, err := r.db.Query(ctx, query, monthStart, rng.EndOfDay())
	if err != nil {
		return summary, statusFailed(fmt.Errorf("failed to query rdstation monthly summary: %w", err))
	}
	defer rows.Close()

	for rows.Next() {
		var leads int64
		if err := rows.Scan(&leads); err != nil {
			return models.RDStationSummary{}, statusFailed(err)
		}
		summary.Leads += leads
	}
	if err := rows.Err(); err != nil {
		return models.RDStationSummary{}, statusFailed(err)
	}

	summary.Granular = false
	return summary, statusOK()
}

func reduceRDLeadRows(rows []rdLeadRow) models.RDStationSummary {
	s := models.RDStationSummary{Granular: true}
	for _, row := range rows {
		s.Leads++
		source := row.Source
		if source == "" {
			source = "unknown"
		}
		if s.LeadsBySource == nil {
			s.LeadsBySource = make(map[string]int64)
		}
		s.LeadsBySource[source]++
	}
	return s
}
