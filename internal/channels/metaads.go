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

// MetaAdsRepo reads a tenant's Meta Ads metrics table.
type MetaAdsRepo struct {
	db       Querier
	registry *registry.Cache
	logger   *zap.Logger
	metrics  *metrics.Metrics
	timeout  time.Duration
}

func NewMetaAdsRepo(db Querier, reg *registry.Cache, logger *zap.Logger, m *metrics.Metrics, timeout time.Duration) *MetaAdsRepo {
	return &MetaAdsRepo{db: db, registry: reg, logger: logger, metrics: m, timeout: timeout}
}

type metaAdsRow struct {
	Spend       float64
	Impressions int64
	Clicks      int64
	Reach       int64
	Results     int64
}

// ReadRange returns the tenant's Meta Ads totals for the range.
func (r *MetaAdsRepo) ReadRange(ctx context.Context, tenantID string, rng Range) (models.MetaAdsSummary, FetchStatus) {
	start := time.Now()
	summary, status := r.readRange(ctx, tenantID, rng)
	r.metrics.RecordFetch(string(models.ChannelMetaAds), string(status.Outcome), time.Since(start))
	if status.Outcome == OutcomeFailed {
		r.logger.Error("meta ads fetch failed",
			zap.String("tenant_id", tenantID),
			zap.Error(status.Err),
		)
	}
	return summary, status
}

func (r *MetaAdsRepo) readRange(ctx context.Context, tenantID string, rng Range) (models.MetaAdsSummary, FetchStatus) {
	var summary models.MetaAdsSummary

	ctx, cancel := fetchContext(ctx, r.timeout)
	defer cancel()

	table, err := r.registry.Resolve(ctx, tenantID, models.ChannelMetaAds, models.TableTypeAdMetrics)
	if err != nil {
		return summary, statusFailed(err)
	}
	if table == "" {
		// Some tenants only sync the campaigns table.
		table, err = r.registry.Resolve(ctx, tenantID, models.ChannelMetaAds, models.TableTypeCampaigns)
		if err != nil {
			return summary, statusFailed(err)
		}
	}
	if table == "" {
		return summary, statusUnconfigured()
	}

	query := fmt.Sprintf(`
		SELECT COALESCE(spend, 0), COALESCE(impressions, 0),
		       COALESCE(clicks, 0), COALESCE(reach, 0), COALESCE(results, 0)
		FROM %s WHERE date_start >= $1 AND date_start <= $2
	`, sanitizeTable(table))

	rows, err := r.db.Query(ctx, query, rng.Start, rng.EndOfDay())
	if err != nil {
		return summary, statusFailed(fmt.Errorf("failed to query meta ads metrics: %w", err))
	}
	defer rows.Close()

	var raw []metaAdsRow
	for rows.Next() {
		var row metaAdsRow
		if err := rows.Scan(&row.Spend, &row.Impressions, &row.Clicks, &row.Reach, &row.Results); err != nil {
			return models.MetaAdsSummary{}, statusFailed(err)
		}
		raw = append(raw, row)
	}
	if err := rows.Err(); err != nil {
		return models.MetaAdsSummary{}, statusFailed(err)
	}

	return reduceMetaAdsRows(raw), statusOK()
}

// reduceMetaAdsRows sums the additive fields. Reach takes the maximum:
// rows describe overlapping audiences, so summing would overcount.
func reduceMetaAdsRows(rows []metaAdsRow) models.MetaAdsSummary {
	var s models.MetaAdsSummary
	for _, row := range rows {
		s.Spend += row.Spend
		s.Impressions += row.Impressions
		s.Clicks += row.Clicks
		s.Results += row.Results
		if row.Reach > s.Reach {
			s.Reach = row.Reach
		}
	}
	return s
}
