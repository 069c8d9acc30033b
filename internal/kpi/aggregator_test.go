package kpi

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vantico/pulse/internal/channels"
	"github.com/vantico/pulse/internal/models"
	"go.uber.org/zap"
)

// Function-typed fakes so each test can shape per-range behavior.

type googleFunc func(ctx context.Context, tenantID string, rng channels.Range) (models.GoogleAdsSummary, channels.FetchStatus)

func (f googleFunc) ReadRange(ctx context.Context, tenantID string, rng channels.Range) (models.GoogleAdsSummary, channels.FetchStatus) {
	return f(ctx, tenantID, rng)
}

type metaFunc func(ctx context.Context, tenantID string, rng channels.Range) (models.MetaAdsSummary, channels.FetchStatus)

func (f metaFunc) ReadRange(ctx context.Context, tenantID string, rng channels.Range) (models.MetaAdsSummary, channels.FetchStatus) {
	return f(ctx, tenantID, rng)
}

type rdFunc func(ctx context.Context, tenantID string, rng channels.Range) (models.RDStationSummary, channels.FetchStatus)

func (f rdFunc) ReadRange(ctx context.Context, tenantID string, rng channels.Range) (models.RDStationSummary, channels.FetchStatus) {
	return f(ctx, tenantID, rng)
}

type eduzzFunc func(ctx context.Context, tenantID string, rng channels.Range) (models.EduzzSummary, channels.FetchStatus)

func (f eduzzFunc) ReadRange(ctx context.Context, tenantID string, rng channels.Range) (models.EduzzSummary, channels.FetchStatus) {
	return f(ctx, tenantID, rng)
}

type crmFunc func(ctx context.Context, tenantID string, rng channels.Range) (models.CRMSummary, channels.FetchStatus)

func (f crmFunc) ReadRange(ctx context.Context, tenantID string, rng channels.Range) (models.CRMSummary, channels.FetchStatus) {
	return f(ctx, tenantID, rng)
}

func ok() channels.FetchStatus { return channels.FetchStatus{Outcome: channels.OutcomeOK} }
func unconfigured() channels.FetchStatus {
	return channels.FetchStatus{Outcome: channels.OutcomeUnconfigured}
}

func staticService(google models.GoogleAdsSummary, googleSt channels.FetchStatus, meta models.MetaAdsSummary, metaSt channels.FetchStatus, rd models.RDStationSummary, rdSt channels.FetchStatus, eduzz models.EduzzSummary, eduzzSt channels.FetchStatus, crm models.CRMSummary, crmSt channels.FetchStatus) *Service {
	return NewService(
		googleFunc(func(context.Context, string, channels.Range) (models.GoogleAdsSummary, channels.FetchStatus) {
			return google, googleSt
		}),
		metaFunc(func(context.Context, string, channels.Range) (models.MetaAdsSummary, channels.FetchStatus) {
			return meta, metaSt
		}),
		rdFunc(func(context.Context, string, channels.Range) (models.RDStationSummary, channels.FetchStatus) {
			return rd, rdSt
		}),
		eduzzFunc(func(context.Context, string, channels.Range) (models.EduzzSummary, channels.FetchStatus) {
			return eduzz, eduzzSt
		}),
		crmFunc(func(context.Context, string, channels.Range) (models.CRMSummary, channels.FetchStatus) {
			return crm, crmSt
		}),
		zap.NewNop(), nil,
	)
}

func janRange() channels.Range {
	return channels.Range{
		Start: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC),
	}
}

func TestRatioZeroDenominatorIsNil(t *testing.T) {
	assert.Nil(t, Ratio(500, 0), "cost with zero leads must be nil, not Inf")
	assert.Nil(t, Ratio(0, 0), "0/0 must be nil, not NaN")

	v := Ratio(100, 4)
	require.NotNil(t, v)
	assert.Equal(t, 25.0, *v)
}

func TestAggregateMetaOnlyTenant(t *testing.T) {
	svc := staticService(
		models.GoogleAdsSummary{}, unconfigured(),
		models.MetaAdsSummary{Spend: 1234.56, Impressions: 9000}, ok(),
		models.RDStationSummary{}, unconfigured(),
		models.EduzzSummary{}, unconfigured(),
		models.CRMSummary{}, unconfigured(),
	)

	res, err := svc.Aggregate(context.Background(), "t42", janRange())
	require.NoError(t, err)

	assert.Equal(t, 0.0, res.Kpis.GoogleCost)
	assert.Equal(t, 1234.56, res.Kpis.MetaCost)
	assert.Equal(t, 1234.56, res.Kpis.TotalCost)
	assert.Equal(t, channels.OutcomeUnconfigured, res.Outcomes[models.ChannelGoogleAds])
	assert.Equal(t, channels.OutcomeOK, res.Outcomes[models.ChannelMetaAds])

	// Leads are zero, so every lead-denominated ratio is a placeholder.
	assert.Nil(t, res.Kpis.CostPerLead)
	assert.Nil(t, res.Kpis.ConversionRate)
}

func TestAggregateDerivedRatios(t *testing.T) {
	svc := staticService(
		models.GoogleAdsSummary{Cost: 600}, ok(),
		models.MetaAdsSummary{Spend: 400}, ok(),
		models.RDStationSummary{Leads: 999}, ok(),
		models.EduzzSummary{}, unconfigured(),
		models.CRMSummary{Leads: 50, Opportunities: 20, Sales: 5, WonRevenue: 5000}, ok(),
	)

	res, err := svc.Aggregate(context.Background(), "t1", janRange())
	require.NoError(t, err)

	k := res.Kpis
	assert.Equal(t, 1000.0, k.TotalCost)
	assert.Equal(t, int64(50), k.TotalLeads, "CRM leads take precedence over RD Station")
	assert.Equal(t, int64(5), k.WonCount)

	require.NotNil(t, k.CostPerLead)
	assert.Equal(t, 20.0, *k.CostPerLead)
	require.NotNil(t, k.CostPerSale)
	assert.Equal(t, 200.0, *k.CostPerSale)
	require.NotNil(t, k.ROAS)
	assert.Equal(t, 5.0, *k.ROAS)
	require.NotNil(t, k.ConversionRate)
	assert.Equal(t, 10.0, *k.ConversionRate)
	require.NotNil(t, k.AverageTicket)
	assert.Equal(t, 1000.0, *k.AverageTicket)
}

func TestAggregateLeadsFallBackToRDStation(t *testing.T) {
	svc := staticService(
		models.GoogleAdsSummary{}, unconfigured(),
		models.MetaAdsSummary{}, unconfigured(),
		models.RDStationSummary{Leads: 37, Granular: true}, ok(),
		models.EduzzSummary{}, unconfigured(),
		models.CRMSummary{}, unconfigured(),
	)

	res, err := svc.Aggregate(context.Background(), "t1", janRange())
	require.NoError(t, err)

	assert.Equal(t, int64(37), res.Kpis.TotalLeads)
}

func TestAggregateCombinesCRMAndEduzzSales(t *testing.T) {
	svc := staticService(
		models.GoogleAdsSummary{Cost: 100}, ok(),
		models.MetaAdsSummary{}, unconfigured(),
		models.RDStationSummary{}, unconfigured(),
		models.EduzzSummary{Sales: 3, Revenue: 900}, ok(),
		models.CRMSummary{Leads: 10, Sales: 2, WonRevenue: 600}, ok(),
	)

	res, err := svc.Aggregate(context.Background(), "t1", janRange())
	require.NoError(t, err)

	assert.Equal(t, int64(5), res.Kpis.WonCount)
	assert.Equal(t, 1500.0, res.Kpis.WonRevenue)
	require.NotNil(t, res.Kpis.ROAS)
	assert.Equal(t, 15.0, *res.Kpis.ROAS)
}

func TestAggregateFailedChannelDegradesToZero(t *testing.T) {
	failed := channels.FetchStatus{Outcome: channels.OutcomeFailed, Err: errors.New("connection refused")}

	svc := staticService(
		models.GoogleAdsSummary{}, failed,
		models.MetaAdsSummary{Spend: 250}, ok(),
		models.RDStationSummary{}, unconfigured(),
		models.EduzzSummary{}, unconfigured(),
		models.CRMSummary{Leads: 4}, ok(),
	)

	res, err := svc.Aggregate(context.Background(), "t1", janRange())
	require.NoError(t, err, "a broken integration must not blank the dashboard")

	assert.Equal(t, 0.0, res.Kpis.GoogleCost)
	assert.Equal(t, 250.0, res.Kpis.TotalCost)
	assert.Equal(t, channels.OutcomeFailed, res.Outcomes[models.ChannelGoogleAds],
		"the failure stays visible to observability even though the value is zero")
	assert.True(t, res.Degraded(),
		"a failed channel marks the result degraded so it is never snapshotted")
}

func TestResultDegraded(t *testing.T) {
	healthy := Result{Outcomes: map[models.Channel]channels.Outcome{
		models.ChannelGoogleAds: channels.OutcomeOK,
		models.ChannelMetaAds:   channels.OutcomeUnconfigured,
	}}
	assert.False(t, healthy.Degraded(),
		"unconfigured is a steady state, not a degradation")

	broken := Result{Outcomes: map[models.Channel]channels.Outcome{
		models.ChannelGoogleAds: channels.OutcomeOK,
		models.ChannelEduzz:     channels.OutcomeFailed,
	}}
	assert.True(t, broken.Degraded())

	assert.False(t, Result{}.Degraded())
}
