package channels

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vantico/pulse/internal/models"
	"github.com/vantico/pulse/internal/registry"
	"go.uber.org/zap"
)

// fakeRegistryStore serves registry entries from a slice.
type fakeRegistryStore struct {
	entries []models.TableEntry
}

func (f *fakeRegistryStore) ListByTenant(ctx context.Context, tenantID string) ([]models.TableEntry, error) {
	var out []models.TableEntry
	for _, e := range f.entries {
		if e.TenantID == tenantID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeRegistryStore) ListByChannel(ctx context.Context, tenantID string, channel models.Channel) ([]models.TableEntry, error) {
	var out []models.TableEntry
	for _, e := range f.entries {
		if e.TenantID == tenantID && e.Channel == channel {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeRegistryStore) Lookup(ctx context.Context, tenantID string, channel models.Channel, tableType string) (string, bool, error) {
	for _, e := range f.entries {
		if e.TenantID == tenantID && e.Channel == channel && e.TableType == tableType {
			return e.TableName, true, nil
		}
	}
	return "", false, nil
}

func (f *fakeRegistryStore) CountByChannel(ctx context.Context, tenantID string, channel models.Channel) (int64, error) {
	var n int64
	for _, e := range f.entries {
		if e.TenantID == tenantID && e.Channel == channel {
			n++
		}
	}
	return n, nil
}

// fakeQuerier routes queries by the table name embedded in the SQL and
// records every statement so tests can assert which tables were hit.
type fakeQuerier struct {
	mu      sync.Mutex
	queries []string
	results map[string][][]any
	errs    map[string]error
}

func (q *fakeQuerier) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	q.mu.Lock()
	q.queries = append(q.queries, sql)
	q.mu.Unlock()

	for table, err := range q.errs {
		if strings.Contains(sql, table) {
			return nil, err
		}
	}
	for table, rows := range q.results {
		if strings.Contains(sql, table) {
			return &fakeRows{rows: rows}, nil
		}
	}
	return &fakeRows{}, nil
}

func (q *fakeQuerier) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return fakeRow{}
}

func (q *fakeQuerier) queried(table string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, sql := range q.queries {
		if strings.Contains(sql, table) {
			return true
		}
	}
	return false
}

func (q *fakeQuerier) queryCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queries)
}

type fakeRow struct{}

func (fakeRow) Scan(dest ...any) error { return pgx.ErrNoRows }

// fakeRows implements pgx.Rows over literal row values.
type fakeRows struct {
	rows [][]any
	idx  int
}

func (r *fakeRows) Close()                                       {}
func (r *fakeRows) Err() error                                   { return nil }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Conn() *pgx.Conn                              { return nil }

func (r *fakeRows) Next() bool {
	if r.idx < len(r.rows) {
		r.idx++
		return true
	}
	return false
}

func (r *fakeRows) Values() ([]any, error) {
	return r.rows[r.idx-1], nil
}

func (r *fakeRows) Scan(dest ...any) error {
	row := r.rows[r.idx-1]
	if len(dest) != len(row) {
		return fmt.Errorf("scan expects %d destinations, got %d", len(row), len(dest))
	}
	for i, d := range dest {
		if err := assignValue(d, row[i]); err != nil {
			return err
		}
	}
	return nil
}

func assignValue(dest, val any) error {
	switch d := dest.(type) {
	case *float64:
		d2, ok := val.(float64)
		if !ok {
			return fmt.Errorf("cannot assign %T to *float64", val)
		}
		*d = d2
	case *int64:
		d2, ok := val.(int64)
		if !ok {
			return fmt.Errorf("cannot assign %T to *int64", val)
		}
		*d = d2
	case *int:
		d2, ok := val.(int)
		if !ok {
			return fmt.Errorf("cannot assign %T to *int", val)
		}
		*d = d2
	case *string:
		d2, ok := val.(string)
		if !ok {
			return fmt.Errorf("cannot assign %T to *string", val)
		}
		*d = d2
	case *bool:
		d2, ok := val.(bool)
		if !ok {
			return fmt.Errorf("cannot assign %T to *bool", val)
		}
		*d = d2
	case *time.Time:
		d2, ok := val.(time.Time)
		if !ok {
			return fmt.Errorf("cannot assign %T to *time.Time", val)
		}
		*d = d2
	default:
		return fmt.Errorf("unsupported scan destination %T", dest)
	}
	return nil
}

func testRegistry(entries ...models.TableEntry) *registry.Cache {
	return registry.NewCache(&fakeRegistryStore{entries: entries}, zap.NewNop(), nil)
}

func regEntry(tenant string, ch models.Channel, tt, name string) models.TableEntry {
	return models.TableEntry{TenantID: tenant, Channel: ch, TableType: tt, TableName: name}
}

func testRange() Range {
	return Range{
		Start: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC),
	}
}

// ---- RD Station ----

func TestRDStationPrefersGranularTable(t *testing.T) {
	reg := testRegistry(
		regEntry("t1", models.ChannelRDStation, models.TableTypeLeads, "client_1_rd_leads"),
		regEntry("t1", models.ChannelRDStation, models.TableTypeDashboardSummary, "client_1_rd_monthly"),
	)
	db := &fakeQuerier{results: map[string][][]any{
		"client_1_rd_leads": {{"facebook"}, {"organic"}, {"facebook"}},
	}}
	repo := NewRDStationRepo(db, reg, zap.NewNop(), nil, 0)

	summary, status := repo.ReadRange(context.Background(), "t1", testRange())

	assert.Equal(t, OutcomeOK, status.Outcome)
	assert.True(t, summary.Granular)
	assert.Equal(t, int64(3), summary.Leads)
	assert.Equal(t, int64(2), summary.LeadsBySource["facebook"])
	assert.True(t, db.queried("client_1_rd_leads"))
	assert.False(t, db.queried("client_1_rd_monthly"),
		"the monthly table is a fallback, not a second source")
}

func TestRDStationFallsBackToMonthlyOnRegistryAbsence(t *testing.T) {
	reg := testRegistry(
		regEntry("t1", models.ChannelRDStation, models.TableTypeDashboardSummary, "client_1_rd_monthly"),
	)
	db := &fakeQuerier{results: map[string][][]any{
		"client_1_rd_monthly": {{int64(5)}, {int64(7)}},
	}}
	repo := NewRDStationRepo(db, reg, zap.NewNop(), nil, 0)

	summary, status := repo.ReadRange(context.Background(), "t1", testRange())

	assert.Equal(t, OutcomeOK, status.Outcome)
	assert.False(t, summary.Granular)
	assert.Equal(t, int64(12), summary.Leads)
	assert.True(t, db.queried("client_1_rd_monthly"))
}

func TestRDStationGranularFailureDoesNotFallBack(t *testing.T) {
	reg := testRegistry(
		regEntry("t1", models.ChannelRDStation, models.TableTypeLeads, "client_1_rd_leads"),
		regEntry("t1", models.ChannelRDStation, models.TableTypeDashboardSummary, "client_1_rd_monthly"),
	)
	db := &fakeQuerier{errs: map[string]error{
		"client_1_rd_leads": errors.New("connection refused"),
	}}
	repo := NewRDStationRepo(db, reg, zap.NewNop(), nil, 0)

	summary, status := repo.ReadRange(context.Background(), "t1", testRange())

	assert.Equal(t, OutcomeFailed, status.Outcome)
	require.Error(t, status.Err)
	assert.Zero(t, summary.Leads, "a failed query degrades to zero, it does not reroute")
	assert.False(t, db.queried("client_1_rd_monthly"),
		"fallback applies only on registry absence, never on query failure")
}

func TestRDStationUnconfigured(t *testing.T) {
	db := &fakeQuerier{}
	repo := NewRDStationRepo(db, testRegistry(), zap.NewNop(), nil, 0)

	summary, status := repo.ReadRange(context.Background(), "t1", testRange())

	assert.Equal(t, OutcomeUnconfigured, status.Outcome)
	assert.NoError(t, status.Err)
	assert.Zero(t, summary.Leads)
	assert.Zero(t, db.queryCount(), "no registry entry means no table to query")
}

// ---- Meta Ads ----

func TestMetaAdsPrefersAdMetricsTable(t *testing.T) {
	reg := testRegistry(
		regEntry("t1", models.ChannelMetaAds, models.TableTypeAdMetrics, "client_1_meta_metrics"),
		regEntry("t1", models.ChannelMetaAds, models.TableTypeCampaigns, "client_1_meta_campaigns"),
	)
	db := &fakeQuerier{results: map[string][][]any{
		"client_1_meta_metrics": {{100.0, int64(1000), int64(50), int64(800), int64(5)}},
	}}
	repo := NewMetaAdsRepo(db, reg, zap.NewNop(), nil, 0)

	summary, status := repo.ReadRange(context.Background(), "t1", testRange())

	assert.Equal(t, OutcomeOK, status.Outcome)
	assert.Equal(t, 100.0, summary.Spend)
	assert.True(t, db.queried("client_1_meta_metrics"))
	assert.False(t, db.queried("client_1_meta_campaigns"))
}

func TestMetaAdsFallsBackToCampaignsTable(t *testing.T) {
	reg := testRegistry(
		regEntry("t1", models.ChannelMetaAds, models.TableTypeCampaigns, "client_1_meta_campaigns"),
	)
	db := &fakeQuerier{results: map[string][][]any{
		"client_1_meta_campaigns": {
			{60.0, int64(500), int64(20), int64(400), int64(2)},
			{40.0, int64(300), int64(10), int64(450), int64(1)},
		},
	}}
	repo := NewMetaAdsRepo(db, reg, zap.NewNop(), nil, 0)

	summary, status := repo.ReadRange(context.Background(), "t1", testRange())

	assert.Equal(t, OutcomeOK, status.Outcome)
	assert.Equal(t, 100.0, summary.Spend)
	assert.Equal(t, int64(450), summary.Reach)
	assert.True(t, db.queried("client_1_meta_campaigns"))
}

func TestMetaAdsQueryErrorDegradesToZeros(t *testing.T) {
	reg := testRegistry(
		regEntry("t1", models.ChannelMetaAds, models.TableTypeAdMetrics, "client_1_meta_metrics"),
	)
	db := &fakeQuerier{errs: map[string]error{
		"client_1_meta_metrics": errors.New("timeout"),
	}}
	repo := NewMetaAdsRepo(db, reg, zap.NewNop(), nil, 0)

	summary, status := repo.ReadRange(context.Background(), "t1", testRange())

	assert.Equal(t, OutcomeFailed, status.Outcome)
	require.Error(t, status.Err)
	assert.Equal(t, models.MetaAdsSummary{}, summary)
}

// ---- Google Ads ----

func TestGoogleAdsReadRange(t *testing.T) {
	reg := testRegistry(
		regEntry("t1", models.ChannelGoogleAds, models.TableTypeAdMetrics, "client_1_google_metrics"),
	)
	db := &fakeQuerier{results: map[string][][]any{
		"client_1_google_metrics": {
			{12.5, int64(100), int64(10), int64(2)},
			{7.5, int64(50), int64(5), int64(1)},
		},
	}}
	repo := NewGoogleAdsRepo(db, reg, zap.NewNop(), nil, 0)

	summary, status := repo.ReadRange(context.Background(), "t1", testRange())

	assert.Equal(t, OutcomeOK, status.Outcome)
	assert.Equal(t, 20.0, summary.Cost)
	assert.Equal(t, int64(3), summary.Conversions)
}

func TestGoogleAdsUnconfiguredReturnsZeros(t *testing.T) {
	db := &fakeQuerier{}
	repo := NewGoogleAdsRepo(db, testRegistry(), zap.NewNop(), nil, 0)

	summary, status := repo.ReadRange(context.Background(), "t1", testRange())

	assert.Equal(t, OutcomeUnconfigured, status.Outcome)
	assert.Equal(t, models.GoogleAdsSummary{}, summary)
	assert.Zero(t, db.queryCount())
}

func TestGoogleAdsQueryErrorDegradesToZeros(t *testing.T) {
	reg := testRegistry(
		regEntry("t1", models.ChannelGoogleAds, models.TableTypeAdMetrics, "client_1_google_metrics"),
	)
	db := &fakeQuerier{errs: map[string]error{
		"client_1_google_metrics": errors.New("relation does not exist"),
	}}
	repo := NewGoogleAdsRepo(db, reg, zap.NewNop(), nil, 0)

	summary, status := repo.ReadRange(context.Background(), "t1", testRange())

	assert.Equal(t, OutcomeFailed, status.Outcome)
	assert.Equal(t, models.GoogleAdsSummary{}, summary)
}
