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

// EduzzRepo reads a tenant's Eduzz invoices table.
type EduzzRepo struct {
	db       Querier
	registry *registry.Cache
	logger   *zap.Logger
	metrics  *metrics.Metrics
	timeout  time.Duration
}

func NewEduzzRepo(db Querier, reg *registry.Cache, logger *zap.Logger, m *metrics.Metrics, timeout time.Duration) *EduzzRepo {
	return &EduzzRepo{db: db, registry: reg, logger: logger, metrics: m, timeout: timeout}
}

type eduzzInvoiceRow struct {
	Value float64
}

// ReadRange returns the tenant's paid Eduzz invoice totals for the range.
func (r *EduzzRepo) ReadRange(ctx context.Context, tenantID string, rng Range) (models.EduzzSummary, FetchStatus) {
	start := time.Now()
	summary, status := r.readRange(ctx, tenantID, rng)
	r.metrics.RecordFetch(string(models.ChannelEduzz), string(status.Outcome), time.Since(start))
	if status.Outcome == OutcomeFailed {
		r.logger.Error("eduzz fetch failed",
			zap.String("tenant_id", tenantID),
			zap.Error(status.Err),
		)
	}
	return summary, status
}

func (r *EduzzRepo) readRange(ctx context.Context, tenantID string, rng Range) (models.EduzzSummary, FetchStatus) {
	var summary models.EduzzSummary

	ctx, cancel := fetchContext(ctx, r.timeout)
	defer cancel()

	table, err := r.registry.Resolve(ctx, tenantID, models.ChannelEduzz, models.TableTypeInvoices)
	if err != nil {
		return summary, statusFailed(err)
	}
	if table == "" {
		return summary, statusUnconfigured()
	}

	query := fmt.Sprintf(`
		SELECT COALESCE(value, 0) FROM %s
		WHERE status = 'paid' AND paid_at >= $1 AND paid_at <= $2
	`, sanitizeTable(table))

	rows, err := r.db.Query(ctx, query, rng.Start, rng.EndOfDay())
	if err != nil {
		return summary, statusFailed(fmt.Errorf("failed to query eduzz invoices: %w", err))
	}
	defer rows.Close()

	var raw []eduzzInvoiceRow
	for rows.Next() {
		var row eduzzInvoiceRow
		if err := rows.Scan(&row.Value); err != nil {
			return models.EduzzSummary{}, statusFailed(err)
		}
		raw = append(raw, row)
	}
	if err := rows.Err(); err != nil {
		return models.EduzzSummary{}, statusFailed(err)
	}

	return reduceEduzzRows(raw), statusOK()
}

func reduceEduzzRows(rows []eduzzInvoiceRow) models.EduzzSummary {
	var s models.EduzzSummary
	for _, row := range rows {
		s.Sales++
		s.Revenue += row.Value
	}
	return s
}
