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

// GoogleAdsRepo reads a tenant's Google Ads metrics table. The
// physical table name is resolved through the registry and never
// leaves this type.
type GoogleAdsRepo struct {
	db       Querier
	registry *registry.Cache
	logger   *zap.Logger
	metrics  *metrics.Metrics
	timeout  time.Duration
}

func NewGoogleAdsRepo(db Querier, reg *registry.Cache, logger *zap.Logger, m *metrics.Metrics, timeout time.Duration) *GoogleAdsRepo {
	return &GoogleAdsRepo{db: db, registry: reg, logger: logger, metrics: m, timeout: timeout}
}

type googleAdsRow struct {
	Cost        float64
	Impressions int64
	Clicks      int64
	Conversions int64
}

// ReadRange returns the tenant's Google Ads totals for the range. It
// never returns an error: an unconfigured integration or a failed
// query both degrade to a zero summary, distinguished by the status.
func (r *GoogleAdsRepo) ReadRange(ctx context.Context, tenantID string, rng Range) (models.GoogleAdsSummary, FetchStatus) {
	start := time.Now()
	summary, status := r.readRange(ctx, tenantID, rng)
	r.metrics.RecordFetch(string(models.ChannelGoogleAds), string(status.Outcome), time.Since(start))
	if status.Outcome == OutcomeFailed {
		r.logger.Error("google ads fetch failed",
			zap.String("tenant_id", tenantID),
			zap.Error(status.Err),
		)
	}
	return summary, status
}

func (r *GoogleAdsRepo) readRange(ctx context.Context, tenantID string, rng Range) (models.GoogleAdsSummary, FetchStatus) {
	var summary models.GoogleAdsSummary

	ctx, cancel := fetchContext(ctx, r.timeout)
	defer cancel()

	table, err := r.registry.Resolve(ctx, tenantID, models.ChannelGoogleAds, models.TableTypeAdMetrics)
	if err != nil {
		return summary, statusFailed(err)
	}
	if table == "" {
		return summary, statusUnconfigured()
	}

	query := fmt.Sprintf(`
		SELECT COALESCE(cost, 0), COALESCE(impressions, 0),
		       COALESCE(clicks, 0), COALESCE(conversions, 0)
		FROM %s WHERE date >= $1 AND date <= $2
	`, sanitizeTable(table))

	rows, err := r.db.Query(ctx, query, rng.Start, rng.EndOfDay())
	if err != nil {
		return summary, statusFailed(fmt.Errorf("failed to query google ads metrics: %w", err))
	}
	defer rows.Close()

	var raw []googleAdsRow
	for rows.Next() {
		var row googleAdsRow
		if err := rows.Scan(&row.Cost, &row.Impressions, &row.Clicks, &row.Conversions); err != nil {
			return models.GoogleAdsSummary{}, statusFailed(err)
		}
		raw = append(raw, row)
	}
	if err := rows.Err(); err != nil {
		return models.GoogleAdsSummary{}, statusFailed(err)
	}

	return reduceGoogleAdsRows(raw), statusOK()
}

func reduceGoogleAdsRows(rows []googleAdsRow) models.GoogleAdsSummary {
	var s models.GoogleAdsSummary
	for _, row := range rows {
		s.Cost += row.Cost
		s.Impressions += row.Impressions
		s.Clicks += row.Clicks
		s.Conversions += row.Conversions
	}
	return s
}
