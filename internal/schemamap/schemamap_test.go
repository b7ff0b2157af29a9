package schemamap

import "testing"

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"NAV_Date":     "navdate",
		"nav date":     "navdate",
		"Nav-Date (T)": "navdatet",
		"amc":          "amc",
	}
	for in, want := range cases {
		if got := Normalize(in); got != want {
			t.Errorf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRatio(t *testing.T) {
	if got := Ratio("abc", "abc"); got != 1 {
		t.Errorf("identical strings should score 1, got %v", got)
	}
	if got := Ratio("abc", "xyz"); got != 0 {
		t.Errorf("disjoint strings should score 0, got %v", got)
	}
	got := Ratio("navvalue", "navprice")
	if got <= 0 || got >= 1 {
		t.Errorf("partial overlap should score strictly between 0 and 1, got %v", got)
	}
}

func TestMapColumnsSynonymAndExact(t *testing.T) {
	m := New(DefaultHints())
	source := []string{"AMC", "NAV_Date", "NAV_Value"}
	target := []string{"asset_management_co", "nav_date", "nav_value"}

	matches := m.MapColumns(source, target)
	want := map[string]struct {
		target string
		reason string
	}{
		"AMC":       {"asset_management_co", ReasonSynonym},
		"NAV_Date":  {"nav_date", ReasonExact},
		"NAV_Value": {"nav_value", ReasonExact},
	}
	for _, match := range matches {
		exp := want[match.Source]
		if match.Target != exp.target || match.Reason != exp.reason {
			t.Errorf("%s mapped to (%s, %s), want (%s, %s)",
				match.Source, match.Target, match.Reason, exp.target, exp.reason)
		}
	}
}

func TestMapColumnsOneToOne(t *testing.T) {
	m := New(DefaultHints())
	matches := m.MapColumns([]string{"nav_value", "nav"}, []string{"nav_value"})

	claimed := map[string]int{}
	for _, match := range matches {
		if match.Reason != ReasonUnmapped {
			claimed[match.Target]++
		}
	}
	for target, n := range claimed {
		if n > 1 {
			t.Errorf("target %q claimed %d times", target, n)
		}
	}
}

func TestMapColumnsThreshold(t *testing.T) {
	m := New(DefaultHints())
	matches := m.MapColumns([]string{"zzqx"}, []string{"ticker", "nav_value"})
	if len(matches) != 1 {
		t.Fatalf("expected one match entry, got %d", len(matches))
	}
	if matches[0].Reason != ReasonUnmapped {
		t.Errorf("low-confidence column must be unmapped, got %q with score %v",
			matches[0].Reason, matches[0].Score)
	}
}

func TestPickTableHintBonus(t *testing.T) {
	m := New(DefaultHints())
	targets := map[string][]string{
		"stg_fund_holdings": {"ticker", "holding_name", "percent_weight"},
		"stg_allocations":   {"ticker", "allocation_type", "category", "percent_weight"},
	}
	got, score, ok := m.PickTable("funds_holding", []string{"ticker", "holding_name", "percent_weight"}, targets)
	if !ok {
		t.Fatalf("expected a table match, best score %v", score)
	}
	if got != "stg_fund_holdings" {
		t.Errorf("picked %q, want stg_fund_holdings", got)
	}
}

func TestPickTableRejectsWeakMatch(t *testing.T) {
	m := New(DefaultHints())
	targets := map[string][]string{
		"stg_daily_nav": {"ticker", "nav_date", "nav_value"},
	}
	if got, score, ok := m.PickTable("web_sessions", []string{"session_id", "user_agent"}, targets); ok {
		t.Errorf("unrelated table should not match, got %q (score %v)", got, score)
	}
}

func TestDefaultsForUncoveredColumns(t *testing.T) {
	m := New(DefaultHints())
	target := []string{"ticker", "currency", "data_source", "nav_value"}
	mapped := map[string]bool{"ticker": true, "nav_value": true}

	defaults := m.Defaults(target, mapped)
	if defaults["currency"] != "THB" {
		t.Errorf("currency default = %q, want THB", defaults["currency"])
	}
	if defaults["data_source"] != "Thai_Web" {
		t.Errorf("data_source default = %q, want Thai_Web", defaults["data_source"])
	}
	if _, present := defaults["ticker"]; present {
		t.Errorf("mapped columns must not receive defaults")
	}
}
