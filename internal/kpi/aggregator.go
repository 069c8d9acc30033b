package kpi

import (
	"context"
	"time"

	"github.com/vantico/pulse/internal/channels"
	"github.com/vantico/pulse/internal/metrics"
	"github.com/vantico/pulse/internal/models"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Reader interfaces, one per channel. The concrete types live in
// internal/channels; the aggregator only depends on these.

type GoogleAdsReader interface {
	ReadRange(ctx context.Context, tenantID string, rng channels.Range) (models.GoogleAdsSummary, channels.FetchStatus)
}

type MetaAdsReader interface {
	ReadRange(ctx context.Context, tenantID string, rng channels.Range) (models.MetaAdsSummary, channels.FetchStatus)
}

type RDStationReader interface {
	ReadRange(ctx context.Context, tenantID string, rng channels.Range) (models.RDStationSummary, channels.FetchStatus)
}

type EduzzReader interface {
	ReadRange(ctx context.Context, tenantID string, rng channels.Range) (models.EduzzSummary, channels.FetchStatus)
}

type CRMReader interface {
	ReadRange(ctx context.Context, tenantID string, rng channels.Range) (models.CRMSummary, channels.FetchStatus)
}

// Result bundles the aggregated KPIs with the per-channel outcomes so
// the HTTP layer can surface "zero because unconfigured" separately
// from "zero because the query failed".
type Result struct {
	Kpis     models.AggregatedKpis               `json:"kpis"`
	Outcomes map[models.Channel]channels.Outcome `json:"outcomes"`
}

// Degraded reports whether any channel fetch failed outright. Degraded
// results are served but never cached: pinning a transient zero for the
// snapshot TTL would hide the recovery.
func (r Result) Degraded() bool {
	for _, outcome := range r.Outcomes {
		if outcome == channels.OutcomeFailed {
			return true
		}
	}
	return false
}

// Service fans the per-channel fetches out in parallel and combines
// them into the derived KPIs used by dashboards.
type Service struct {
	google GoogleAdsReader
	meta   MetaAdsReader
	rd     RDStationReader
	eduzz  EduzzReader
	crm    CRMReader

	logger  *zap.Logger
	metrics *metrics.Metrics
}

func NewService(google GoogleAdsReader, meta MetaAdsReader, rd RDStationReader, eduzz EduzzReader, crm CRMReader, logger *zap.Logger, m *metrics.Metrics) *Service {
	return &Service{
		google:  google,
		meta:    meta,
		rd:      rd,
		eduzz:   eduzz,
		crm:     crm,
		logger:  logger,
		metrics: m,
	}
}

// Aggregate computes the tenant's KPIs over the range. The five
// channel fetches run concurrently; each one degrades to a zero
// summary on its own, so Aggregate itself never fails on a broken
// integration.
func (s *Service) Aggregate(ctx context.Context, tenantID string, rng channels.Range) (Result, error) {
	if s.metrics != nil {
		s.metrics.KpiRequests.WithLabelValues("summary").Inc()
	}

	var (
		google models.GoogleAdsSummary
		meta   models.MetaAdsSummary
		rd     models.RDStationSummary
		eduzz  models.EduzzSummary
		crm    models.CRMSummary

		googleSt, metaSt, rdSt, eduzzSt, crmSt channels.FetchStatus
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		google, googleSt = s.google.ReadRange(ctx, tenantID, rng)
		return nil
	})
	g.Go(func() error {
		meta, metaSt = s.meta.ReadRange(ctx, tenantID, rng)
		return nil
	})
	g.Go(func() error {
		rd, rdSt = s.rd.ReadRange(ctx, tenantID, rng)
		return nil
	})
	g.Go(func() error {
		eduzz, eduzzSt = s.eduzz.ReadRange(ctx, tenantID, rng)
		return nil
	})
	g.Go(func() error {
		crm, crmSt = s.crm.ReadRange(ctx, tenantID, rng)
		return nil
	})
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	kpis := combine(tenantID, rng, google, meta, rd, eduzz, crm, crmSt)

	return Result{
		Kpis: kpis,
		Outcomes: map[models.Channel]channels.Outcome{
			models.ChannelGoogleAds: googleSt.Outcome,
			models.ChannelMetaAds:   metaSt.Outcome,
			models.ChannelRDStation: rdSt.Outcome,
			models.ChannelEduzz:     eduzzSt.Outcome,
			models.ChannelMoskit:    crmSt.Outcome,
		},
	}, nil
}

// combine folds the channel summaries into the derived value object.
// Leads come from the CRM when the tenant has one; tenants without a
// CRM integration fall back to RD Station lead counts. Sales and
// revenue combine CRM won deals with paid Eduzz invoices.
func combine(tenantID string, rng channels.Range, google models.GoogleAdsSummary, meta models.MetaAdsSummary, rd models.RDStationSummary, eduzz models.EduzzSummary, crm models.CRMSummary, crmSt channels.FetchStatus) models.AggregatedKpis {
	totalCost := google.Cost + meta.Spend

	totalLeads := crm.Leads
	if crmSt.Outcome != channels.OutcomeOK {
		totalLeads = rd.Leads
	}

	wonCount := crm.Sales + eduzz.Sales
	wonRevenue := crm.WonRevenue + eduzz.Revenue

	return models.AggregatedKpis{
		TenantID: tenantID,
		Start:    rng.Start.Format("2006-01-02"),
		End:      rng.End.Format("2006-01-02"),

		GoogleCost: google.Cost,
		MetaCost:   meta.Spend,
		TotalCost:  totalCost,

		TotalLeads:    totalLeads,
		Opportunities: crm.Opportunities,
		WonCount:      wonCount,
		WonRevenue:    wonRevenue,

		CostPerLead:    Ratio(totalCost, float64(totalLeads)),
		CostPerSale:    Ratio(totalCost, float64(wonCount)),
		ROAS:           Ratio(wonRevenue, totalCost),
		ConversionRate: Ratio(float64(wonCount)*100, float64(totalLeads)),
		AverageTicket:  Ratio(wonRevenue, float64(wonCount)),

		Google:    google,
		Meta:      meta,
		RDStation: rd,
		Eduzz:     eduzz,
		CRM:       crm,
	}
}

// Ratio returns numerator/denominator, or nil when the denominator is
// zero. A nil ratio renders as a placeholder; it must never surface as
// NaN, Inf, or a silent zero.
func Ratio(numerator, denominator float64) *float64 {
	if denominator == 0 {
		return nil
	}
	v := numerator / denominator
	return &v
}

// observeRollup records rollup build latency when metrics are wired.
func (s *Service) observeRollup(granularity string, start time.Time) {
	if s.metrics != nil {
		s.metrics.RollupBuckets.WithLabelValues(granularity).Observe(time.Since(start).Seconds())
	}
}
