package models

import "time"

// GoogleAdsSummary holds totals reduced from a tenant's Google Ads
// metrics table over a date range.
type GoogleAdsSummary struct {
	Cost        float64 `json:"cost"`
	Impressions int64   `json:"impressions"`
	Clicks      int64   `json:"clicks"`
	Conversions int64   `json:"conversions"`
}

// MetaAdsSummary holds totals reduced from a tenant's Meta Ads tables.
// Reach is a MAX, not a SUM: rows describe overlapping audiences and
// adding them would overcount.
type MetaAdsSummary struct {
	Spend       float64 `json:"spend"`
	Impressions int64   `json:"impressions"`
	Clicks      int64   `json:"clicks"`
	Reach       int64   `json:"reach"`
	Results     int64   `json:"results"`
}

// RDStationSummary holds lead counts from RD Station. When the tenant
// has the granular leads table, LeadsBySource carries the per-source
// breakdown; the monthly fallback only fills Leads.
type RDStationSummary struct {
	Leads         int64            `json:"leads"`
	LeadsBySource map[string]int64 `json:"leads_by_source,omitempty"`
	Granular      bool             `json:"granular"`
}

// EduzzSummary holds paid-invoice totals from Eduzz.
type EduzzSummary struct {
	Sales   int64   `json:"sales"`
	Revenue float64 `json:"revenue"`
}

// CRMSummary holds deal counts classified against the pipeline stages.
// LeadsBySource groups the period's deals by acquisition source, the
// CRM counterpart of the RD Station breakdown.
type CRMSummary struct {
	Leads         int64            `json:"leads"`
	LeadsBySource map[string]int64 `json:"leads_by_source,omitempty"`
	Opportunities int64            `json:"opportunities"`
	Sales         int64            `json:"sales"`
	WonRevenue    float64          `json:"won_revenue"`
	OpenValue     float64          `json:"open_value"`
}

// AggregatedKpis is the derived value object returned to dashboards.
// It is computed per request and never persisted. Every ratio is a
// pointer: nil means the denominator was zero and the UI should render
// a placeholder instead of a number.
type AggregatedKpis struct {
	TenantID string `json:"tenant_id"`
	Start    string `json:"start"`
	End      string `json:"end"`

	GoogleCost float64 `json:"google_cost"`
	MetaCost   float64 `json:"meta_cost"`
	TotalCost  float64 `json:"total_cost"`

	TotalLeads    int64   `json:"total_leads"`
	Opportunities int64   `json:"opportunities"`
	WonCount      int64   `json:"won_count"`
	WonRevenue    float64 `json:"won_revenue"`

	CostPerLead    *float64 `json:"cost_per_lead"`    // CAL
	CostPerSale    *float64 `json:"cost_per_sale"`    // CAV
	ROAS           *float64 `json:"roas"`             // revenue / cost
	ConversionRate *float64 `json:"conversion_rate"`  // won / leads, percent
	AverageTicket  *float64 `json:"average_ticket"`   // revenue / won

	Google    GoogleAdsSummary `json:"google_ads"`
	Meta      MetaAdsSummary   `json:"meta_ads"`
	RDStation RDStationSummary `json:"rdstation"`
	Eduzz     EduzzSummary     `json:"eduzz"`
	CRM       CRMSummary       `json:"crm"`
}

// KpiBucket is one calendar bucket of a rollup series.
type KpiBucket struct {
	Label string         `json:"label"` // "2025-01" or "2025-W03"
	Start time.Time      `json:"start"`
	End   time.Time      `json:"end"`
	Kpis  AggregatedKpis `json:"kpis"`
}
