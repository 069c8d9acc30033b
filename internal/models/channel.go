package models

// Channel identifies a data source feeding the KPI pipeline.
type Channel string

const (
	ChannelGoogleAds Channel = "google_ads"
	ChannelMetaAds   Channel = "meta_ads"
	ChannelMoskit    Channel = "moskit"
	ChannelRDStation Channel = "rdstation"
	ChannelEduzz     Channel = "eduzz"
)

// AllChannels lists every channel the registry can hold entries for.
var AllChannels = []Channel{
	ChannelGoogleAds,
	ChannelMetaAds,
	ChannelMoskit,
	ChannelRDStation,
	ChannelEduzz,
}

// Valid reports whether c is one of the known channels.
func (c Channel) Valid() bool {
	switch c {
	case ChannelGoogleAds, ChannelMetaAds, ChannelMoskit, ChannelRDStation, ChannelEduzz:
		return true
	}
	return false
}

// Table types are channel-specific. The registry treats them as opaque
// strings; the constants below cover the types the fetchers resolve.
const (
	TableTypeAdMetrics        = "ad_metrics"
	TableTypeCampaigns        = "campaigns"
	TableTypeLeads            = "leads"
	TableTypeInvoices         = "invoices"
	TableTypeDashboardSummary = "dashboard_summary"
)

// TableEntry is one row of the tenant table registry: it maps a
// (tenant, channel, table type) tuple to the physical table holding
// that tenant's data. Absence of an entry means the tenant has no
// integration for that channel/type, which is a valid state.
type TableEntry struct {
	TenantID  string  `json:"tenant_id"`
	Channel   Channel `json:"channel"`
	TableType string  `json:"table_type"`
	TableName string  `json:"table_name"`
}
