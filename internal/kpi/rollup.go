package kpi

import (
	"context"
	"fmt"
	"time"

	"github.com/vantico/pulse/internal/channels"
	"github.com/vantico/pulse/internal/models"
	"golang.org/x/sync/errgroup"
)

// MonthlySeries computes one KPI bucket per calendar month of the
// year, in order. All twelve buckets are structurally present even
// when a month has no matching rows. Buckets are computed in parallel;
// each is independent of its neighbors.
func (s *Service) MonthlySeries(ctx context.Context, tenantID string, year int) ([]models.KpiBucket, error) {
	start := time.Now()
	defer s.observeRollup("monthly", start)
	if s.metrics != nil {
		s.metrics.KpiRequests.WithLabelValues("monthly").Inc()
	}

	buckets := make([]models.KpiBucket, 12)

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < 12; i++ {
		i := i
		g.Go(func() error {
			monthStart := time.Date(year, time.Month(i+1), 1, 0, 0, 0, 0, time.UTC)
			monthEnd := monthStart.AddDate(0, 1, -1)

			res, err := s.Aggregate(ctx, tenantID, channels.Range{Start: monthStart, End: monthEnd})
			if err != nil {
				return err
			}
			buckets[i] = models.KpiBucket{
				Label: fmt.Sprintf("%04d-%02d", year, i+1),
				Start: monthStart,
				End:   monthEnd,
				Kpis:  res.Kpis,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return buckets, nil
}

// WeeklySeries computes one KPI bucket per ISO week touching the
// range, in order. The first bucket starts on the Monday of the week
// containing the range start.
func (s *Service) WeeklySeries(ctx context.Context, tenantID string, rng channels.Range) ([]models.KpiBucket, error) {
	start := time.Now()
	defer s.observeRollup("weekly", start)
	if s.metrics != nil {
		s.metrics.KpiRequests.WithLabelValues("weekly").Inc()
	}

	weekStarts := weekStartsIn(rng)
	buckets := make([]models.KpiBucket, len(weekStarts))

	g, ctx := errgroup.WithContext(ctx)
	for i, ws := range weekStarts {
		i, ws := i, ws
		g.Go(func() error {
			weekEnd := ws.AddDate(0, 0, 6)
			res, err := s.Aggregate(ctx, tenantID, channels.Range{Start: ws, End: weekEnd})
			if err != nil {
				return err
			}
			year, week := ws.ISOWeek()
			buckets[i] = models.KpiBucket{
				Label: fmt.Sprintf("%04d-W%02d", year, week),
				Start: ws,
				End:   weekEnd,
				Kpis:  res.Kpis,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return buckets, nil
}

// weekStartsIn returns the Mondays of every ISO week the range touches.
func weekStartsIn(rng channels.Range) []time.Time {
	start := mondayOf(rng.Start)
	var out []time.Time
	for d := start; !d.After(rng.End); d = d.AddDate(0, 0, 7) {
		out = append(out, d)
	}
	return out
}

func mondayOf(t time.Time) time.Time {
	y, m, d := t.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, t.Location())
	offset := (int(day.Weekday()) + 6) % 7 // Monday = 0
	return day.AddDate(0, 0, -offset)
}

// WithRunningTotals returns a copy of the series where costs, leads,
// wins and revenue accumulate across buckets, with the ratios
// re-derived from the cumulative values. It is a pure post-processing
// pass over already-computed buckets; the fetch layer never sees it.
func WithRunningTotals(series []models.KpiBucket) []models.KpiBucket {
	out := make([]models.KpiBucket, len(series))

	var (
		cost, googleCost, metaCost, revenue float64
		leads, opportunities, won           int64
	)
	for i, b := range series {
		googleCost += b.Kpis.GoogleCost
		metaCost += b.Kpis.MetaCost
		cost += b.Kpis.TotalCost
		leads += b.Kpis.TotalLeads
		opportunities += b.Kpis.Opportunities
		won += b.Kpis.WonCount
		revenue += b.Kpis.WonRevenue

		k := b.Kpis
		k.GoogleCost = googleCost
		k.MetaCost = metaCost
		k.TotalCost = cost
		k.TotalLeads = leads
		k.Opportunities = opportunities
		k.WonCount = won
		k.WonRevenue = revenue
		k.CostPerLead = Ratio(cost, float64(leads))
		k.CostPerSale = Ratio(cost, float64(won))
		k.ROAS = Ratio(revenue, cost)
		k.ConversionRate = Ratio(float64(won)*100, float64(leads))
		k.AverageTicket = Ratio(revenue, float64(won))

		out[i] = models.KpiBucket{Label: b.Label, Start: b.Start, End: b.End, Kpis: k}
	}
	return out
}
