package archive

import (
	"io/fs"
	"path/filepath"
	"strings"
)

// Canonical housekeeping scopes.
const (
	ScopePriceHistory    = "price_history"
	ScopeDividendHistory = "dividend_history"
	ScopeStaticDetails   = "static_details"
	ScopeDailyNAV        = "daily_nav"
)

// AllScopes lists every housekeeping scope in processing order.
var AllScopes = []string{
	ScopePriceHistory, ScopeDividendHistory, ScopeStaticDetails, ScopeDailyNAV,
}

var scopeAliases = map[string]string{
	"price":            ScopePriceHistory,
	"prices":           ScopePriceHistory,
	"price_history":    ScopePriceHistory,
	"div":              ScopeDividendHistory,
	"dividend":         ScopeDividendHistory,
	"dividend_history": ScopeDividendHistory,
	"static":           ScopeStaticDetails,
	"details":          ScopeStaticDetails,
	"static_details":   ScopeStaticDetails,
	"nav":              ScopeDailyNAV,
	"daily_nav":        ScopeDailyNAV,
}

// NormalizeScopes resolves comma-separated scope arguments to canonical
// scope names, defaulting to all scopes. Unknown aliases are dropped.
func NormalizeScopes(values []string) []string {
	if len(values) == 0 {
		return append([]string(nil), AllScopes...)
	}
	var scopes []string
	seen := make(map[string]bool)
	for _, item := range values {
		for _, part := range strings.Split(item, ",") {
			key := strings.ToLower(strings.TrimSpace(part))
			if key == "" {
				continue
			}
			if canonical, ok := scopeAliases[key]; ok && !seen[canonical] {
				seen[canonical] = true
				scopes = append(scopes, canonical)
			}
		}
	}
	return scopes
}

// SourceNameByKey maps provider directory keys to the source labels used
// in the canonical store.
var SourceNameByKey = map[string]string{
	"ft": "Financial Times",
	"sa": "Stock Analysis",
	"yf": "Yahoo Finance",
}

var sourceKeyAliases = map[string]string{
	"ft":              "ft",
	"sa":              "sa",
	"yf":              "yf",
	"stock":           "sa",
	"yahoo":           "yf",
	"financial_times": "ft",
	"stock_analysis":  "sa",
	"yahoo_finance":   "yf",
}

// DetectSourceKey finds the provider key embedded in an artifact path,
// empty when no path segment matches a known alias.
func DetectSourceKey(path string) string {
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if key, ok := sourceKeyAliases[strings.ToLower(part)]; ok {
			return key
		}
	}
	return ""
}

// ExtractTicker pulls the leading ticker out of a per-ticker artifact
// filename like ABC_price_history.csv.
func ExtractTicker(path string) string {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	idx := strings.Index(stem, "_")
	if idx <= 0 {
		return ""
	}
	return strings.ToUpper(strings.TrimSpace(stem[:idx]))
}

// CollectTickers walks a scope directory and groups the tickers it finds
// per provider key. Files whose provider cannot be determined land in the
// "unknown" bucket, which is diagnostic only and never fails verification.
func CollectTickers(root string) map[string]map[string]bool {
	tickers := map[string]map[string]bool{"unknown": {}}
	for key := range SourceNameByKey {
		tickers[key] = map[string]bool{}
	}

	filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".csv") {
			return nil
		}
		ticker := ExtractTicker(path)
		if ticker == "" {
			return nil
		}
		key := DetectSourceKey(path)
		if _, known := SourceNameByKey[key]; !known {
			key = "unknown"
		}
		tickers[key][ticker] = true
		return nil
	})
	return tickers
}
