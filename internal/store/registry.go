// Package store is the canonical-store write path: the table registry
// describing every staging table's natural key and payload, and the
// hash-gated batch upsert loader built on top of it.
package store

import "fundsync/internal/coerce"

// TableSpec describes one canonical table: its natural key (the upsert
// conflict target), payload columns, and per-column coercion types.
type TableSpec struct {
	Name     string
	Key      []string
	Payload  []string
	Types    map[string]coerce.Type
	Conflict string // name of the unique constraint over Key
}

// InsertColumns returns the columns the loader writes, key first, then
// payload, then the fingerprint.
func (s TableSpec) InsertColumns() []string {
	cols := make([]string, 0, len(s.Key)+len(s.Payload)+1)
	cols = append(cols, s.Key...)
	cols = append(cols, s.Payload...)
	cols = append(cols, "row_hash")
	return cols
}

// TypeOf returns the coercion type for a column, text when undeclared.
func (s TableSpec) TypeOf(col string) coerce.Type {
	if t, ok := s.Types[col]; ok {
		return t
	}
	return coerce.Text
}

var entityKey = []string{"ticker", "asset_type", "source"}

// Tables is the canonical table registry. Key order matches the unique
// constraints in the migrations.
var Tables = map[string]TableSpec{
	"stg_security_master": {
		Name:     "stg_security_master",
		Key:      entityKey,
		Payload:  []string{"name", "status", "first_seen", "last_seen"},
		Conflict: "uq_stg_master_key",
		Types: map[string]coerce.Type{
			"first_seen": coerce.Date,
			"last_seen":  coerce.Date,
		},
	},
	"stg_daily_nav": {
		Name:     "stg_daily_nav",
		Key:      []string{"ticker", "asset_type", "source", "as_of_date"},
		Payload:  []string{"nav_price", "currency", "scrape_date"},
		Conflict: "uq_stg_daily_nav_key",
		Types: map[string]coerce.Type{
			"as_of_date":  coerce.Date,
			"nav_price":   coerce.Numeric,
			"scrape_date": coerce.Date,
		},
	},
	"stg_price_history": {
		Name:     "stg_price_history",
		Key:      []string{"ticker", "asset_type", "source", "date"},
		Payload:  []string{"open", "high", "low", "close", "adj_close", "volume"},
		Conflict: "uq_stg_price_key",
		Types: map[string]coerce.Type{
			"date":      coerce.Date,
			"open":      coerce.Numeric,
			"high":      coerce.Numeric,
			"low":       coerce.Numeric,
			"close":     coerce.Numeric,
			"adj_close": coerce.Numeric,
			"volume":    coerce.Integer,
		},
	},
	"stg_dividend_history": {
		Name:     "stg_dividend_history",
		Key:      []string{"ticker", "asset_type", "source", "ex_date", "payment_date", "amount", "type"},
		Payload:  []string{"currency"},
		Conflict: "uq_stg_dividend_key",
		Types: map[string]coerce.Type{
			"ex_date":      coerce.Date,
			"payment_date": coerce.Date,
			"amount":       coerce.Numeric,
		},
	},
	"stg_fund_info": {
		Name: "stg_fund_info",
		Key:  entityKey,
		Payload: []string{
			"name", "isin_number", "cusip_number", "issuer", "category",
			"index_benchmark", "inception_date", "exchange", "region", "country",
			"leverage", "options", "shares_out", "market_cap_size", "investment_style",
		},
		Conflict: "uq_stg_fund_info_key",
		Types: map[string]coerce.Type{
			"inception_date": coerce.Date,
			"shares_out":     coerce.Numeric,
		},
	},
	"stg_fund_fees": {
		Name: "stg_fund_fees",
		Key:  entityKey,
		Payload: []string{
			"expense_ratio", "initial_charge", "exit_charge", "assets_aum",
			"top_10_hold_pct", "holdings_count", "holdings_turnover",
		},
		Conflict: "uq_stg_fund_fees_key",
		Types: map[string]coerce.Type{
			"expense_ratio":     coerce.Numeric,
			"initial_charge":    coerce.Numeric,
			"exit_charge":       coerce.Numeric,
			"assets_aum":        coerce.Numeric,
			"top_10_hold_pct":   coerce.Numeric,
			"holdings_count":    coerce.Integer,
			"holdings_turnover": coerce.Numeric,
		},
	},
	"stg_fund_risk": {
		Name: "stg_fund_risk",
		Key:  entityKey,
		Payload: []string{
			"sharpe_ratio_1y", "sharpe_ratio_3y", "sharpe_ratio_5y", "sharpe_ratio_10y",
			"beta_1y", "beta_3y", "beta_5y", "beta_10y",
			"alpha_1y", "alpha_3y", "alpha_5y", "alpha_10y",
			"standard_dev_1y", "standard_dev_3y", "standard_dev_5y", "standard_dev_10y",
			"r_squared_1y", "r_squared_3y", "r_squared_5y", "r_squared_10y",
			"rsi_daily", "moving_avg_200", "morningstar_rating",
		},
		Conflict: "uq_stg_fund_risk_key",
		Types: riskTypes(),
	},
	"stg_fund_policy": {
		Name: "stg_fund_policy",
		Key:  entityKey,
		Payload: []string{
			"dividend_yield", "dividend_growth_1y", "dividend_growth_3y",
			"dividend_growth_5y", "dividend_growth_10y", "dividend_consecutive_years",
			"payout_ratio", "total_return_ytd", "total_return_1y", "pe_ratio",
		},
		Conflict: "uq_stg_fund_policy_key",
		Types: map[string]coerce.Type{
			"dividend_yield":             coerce.Numeric,
			"dividend_growth_1y":         coerce.Numeric,
			"dividend_growth_3y":         coerce.Numeric,
			"dividend_growth_5y":         coerce.Numeric,
			"dividend_growth_10y":        coerce.Numeric,
			"dividend_consecutive_years": coerce.Integer,
			"payout_ratio":               coerce.Numeric,
			"total_return_ytd":           coerce.Numeric,
			"total_return_1y":            coerce.Numeric,
			"pe_ratio":                   coerce.Numeric,
		},
	},
	"stg_fund_holdings": {
		Name: "stg_fund_holdings",
		Key:  []string{"ticker", "asset_type", "source", "holding_name", "as_of_date"},
		Payload: []string{
			"holding_ticker", "holding_percentage", "shares_held",
			"market_value", "sector", "country",
		},
		Conflict: "uq_stg_holdings_key",
		Types: map[string]coerce.Type{
			"as_of_date":         coerce.Date,
			"holding_percentage": coerce.Numeric,
			"shares_held":        coerce.Numeric,
			"market_value":       coerce.Numeric,
		},
	},
	"stg_allocations": {
		Name: "stg_allocations",
		Key:  []string{"ticker", "asset_type", "source", "allocation_type", "item_name", "as_of_date"},
		Payload: []string{
			"value_net", "value_category_avg", "value_long", "value_short",
		},
		Conflict: "uq_stg_allocations_key",
		Types: map[string]coerce.Type{
			"as_of_date":         coerce.Date,
			"value_net":          coerce.Numeric,
			"value_category_avg": coerce.Numeric,
			"value_long":         coerce.Numeric,
			"value_short":        coerce.Numeric,
		},
	},
	"stg_fund_metrics": {
		Name:     "stg_fund_metrics",
		Key:      []string{"ticker", "asset_type", "source", "metric_type", "metric_name", "column_name", "as_of_date"},
		Payload:  []string{"value_raw", "value_num"},
		Conflict: "uq_stg_fund_metrics_key",
		Types: map[string]coerce.Type{
			"as_of_date": coerce.Date,
			"value_num":  coerce.Numeric,
		},
	},
}

func riskTypes() map[string]coerce.Type {
	types := map[string]coerce.Type{"morningstar_rating": coerce.Integer}
	for _, col := range []string{
		"sharpe_ratio", "beta", "alpha", "standard_dev", "r_squared",
	} {
		for _, horizon := range []string{"_1y", "_3y", "_5y", "_10y"} {
			types[col+horizon] = coerce.Numeric
		}
	}
	types["rsi_daily"] = coerce.Numeric
	types["moving_avg_200"] = coerce.Numeric
	return types
}

// Lookup returns the spec for a canonical table name.
func Lookup(name string) (TableSpec, bool) {
	spec, ok := Tables[name]
	return spec, ok
}

// ColumnNames returns every canonical table's column set, used by the
// schema-import path to score foreign tables against targets.
func ColumnNames() map[string][]string {
	out := make(map[string][]string, len(Tables))
	for name, spec := range Tables {
		out[name] = spec.InsertColumns()
	}
	return out
}
