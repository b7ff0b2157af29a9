// Package schemamap resolves a foreign column set to a canonical column set.
// It drives the one-time schema import path: the produced mapping plan is
// ephemeral and only used to shape the load, never persisted.
package schemamap

import (
	"regexp"
	"sort"
	"strings"
)

// Match reason codes, in descending confidence order.
const (
	ReasonExact     = "exact"
	ReasonSynonym   = "synonym"
	ReasonSubstring = "substring"
	ReasonFuzzy     = "fuzzy"
	ReasonUnmapped  = "unmapped"
)

// AcceptThreshold is the minimum confidence for a column match; anything
// below it is reported as unmapped.
const AcceptThreshold = 0.75

// tableAcceptThreshold is the minimum blended score for a table match.
const tableAcceptThreshold = 0.3

// Hints is the static matching configuration injected at construction.
// It is never mutated after New.
type Hints struct {
	// Synonyms maps a source concept to the target column names it may
	// appear as, all compared in normalized form.
	Synonyms map[string][]string
	// Tables maps a source table name to candidate target table names.
	Tables map[string][]string
	// Defaults supplies values for known business columns absent from the
	// source, keyed by normalized target column name.
	Defaults map[string]string
}

// DefaultHints returns the matching configuration for the Thai fund corpus.
func DefaultHints() Hints {
	return Hints{
		Synonyms: map[string][]string{
			"amc":                 {"asset_management_co", "asset_management_company", "management_company"},
			"nav_value":           {"nav_value", "nav_price", "nav"},
			"nav_date":            {"nav_date", "as_of_date", "date"},
			"fund_code":           {"fund_code", "fund_id", "fundid"},
			"isin":                {"isin_code", "isin"},
			"cusip":               {"cusip_number", "cusip"},
			"management_fee":      {"management_fee", "management_actual", "management_max"},
			"total_expense_ratio": {"total_expense_ratio", "expense_ratio"},
			"risk_level":          {"risk_level", "risk_rating"},
			"base_currency":       {"base_currency", "currency", "ccy"},
			"data_source":         {"data_source", "source", "source_name"},
		},
		Tables: map[string][]string{
			"funds_master_info": {"stg_security_master", "stg_fund_info"},
			"funds_daily":       {"stg_daily_nav", "stg_price_history"},
			"funds_statistics":  {"stg_fund_risk", "stg_fund_metrics"},
			"funds_holding":     {"stg_fund_holdings"},
			"funds_allocations": {"stg_allocations"},
			"funds_fee":         {"stg_fund_fees"},
			"funds_codes":       {"stg_security_master"},
		},
		Defaults: map[string]string{
			"basecurrency": "THB",
			"currency":     "THB",
			"datasource":   "Thai_Web",
			"country":      "Thailand",
			"countrycode":  "TH",
			"domicile":     "Thailand",
		},
	}
}

// ColumnMatch records one resolved (or unresolved) source column.
type ColumnMatch struct {
	Source string
	Target string
	Reason string
	Score  float64
}

// Plan is the outcome of mapping one source table.
type Plan struct {
	SourceTable string
	TargetTable string
	TableScore  float64
	Columns     []ColumnMatch
	Unmapped    []string
	// Defaults are values to inject for target columns the source lacks.
	Defaults map[string]string
}

// Mapped returns the source-to-target pairs with confidence at or above
// the accept threshold.
func (p *Plan) Mapped() map[string]string {
	out := make(map[string]string, len(p.Columns))
	for _, c := range p.Columns {
		if c.Reason != ReasonUnmapped {
			out[c.Source] = c.Target
		}
	}
	return out
}

// Mapper scores source columns and tables against canonical targets.
type Mapper struct {
	synonyms map[string][]string
	tables   map[string][]string
	defaults map[string]string
}

// New builds a Mapper with normalized hint tables.
func New(hints Hints) *Mapper {
	m := &Mapper{
		synonyms: make(map[string][]string, len(hints.Synonyms)),
		tables:   make(map[string][]string, len(hints.Tables)),
		defaults: make(map[string]string, len(hints.Defaults)),
	}
	for key, values := range hints.Synonyms {
		normed := make([]string, len(values))
		for i, v := range values {
			normed[i] = Normalize(v)
		}
		m.synonyms[Normalize(key)] = normed
	}
	for key, values := range hints.Tables {
		normed := make([]string, len(values))
		for i, v := range values {
			normed[i] = Normalize(v)
		}
		m.tables[Normalize(key)] = normed
	}
	for key, value := range hints.Defaults {
		m.defaults[Normalize(key)] = value
	}
	return m
}

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// Normalize lowercases a name and strips everything except letters and
// digits, so NAV_Date and nav_date compare equal.
func Normalize(name string) string {
	return nonAlnum.ReplaceAllString(strings.ToLower(name), "")
}

// MapColumns resolves each source column to at most one target column.
// Targets are claimed one-to-one in source order; a claimed target is
// invisible to later source columns.
func (m *Mapper) MapColumns(sourceCols, targetCols []string) []ColumnMatch {
	targetByNorm := make(map[string][]string, len(targetCols))
	for _, col := range targetCols {
		norm := Normalize(col)
		targetByNorm[norm] = append(targetByNorm[norm], col)
	}

	used := make(map[string]bool, len(targetCols))
	matches := make([]ColumnMatch, 0, len(sourceCols))

	for _, src := range sourceCols {
		srcNorm := Normalize(src)
		best := ColumnMatch{Source: src, Reason: ReasonUnmapped}

		for _, candidate := range targetByNorm[srcNorm] {
			if !used[candidate] {
				best = ColumnMatch{Source: src, Target: candidate, Reason: ReasonExact, Score: 1.0}
				break
			}
		}

		if best.Reason == ReasonUnmapped {
			for _, synonym := range m.synonyms[srcNorm] {
				for _, candidate := range targetByNorm[synonym] {
					if !used[candidate] {
						best = ColumnMatch{Source: src, Target: candidate, Reason: ReasonSynonym, Score: 0.95}
						break
					}
				}
				if best.Reason != ReasonUnmapped {
					break
				}
			}
		}

		if best.Reason == ReasonUnmapped {
			for _, tgt := range targetCols {
				if used[tgt] {
					continue
				}
				tgtNorm := Normalize(tgt)
				if strings.Contains(tgtNorm, srcNorm) || strings.Contains(srcNorm, tgtNorm) {
					if 0.85 > best.Score {
						best = ColumnMatch{Source: src, Target: tgt, Reason: ReasonSubstring, Score: 0.85}
					}
				} else if score := Ratio(srcNorm, tgtNorm); score > best.Score {
					best = ColumnMatch{Source: src, Target: tgt, Reason: ReasonFuzzy, Score: score}
				}
			}
		}

		if best.Target == "" || best.Score < AcceptThreshold {
			best = ColumnMatch{Source: src, Reason: ReasonUnmapped, Score: best.Score}
		} else {
			used[best.Target] = true
		}
		matches = append(matches, best)
	}
	return matches
}

// PickTable chooses the best canonical table for a source table by blending
// name similarity (0.4) with column overlap (0.6), plus a fixed bonus when
// the target appears in the table hints. Returns false below the accept
// threshold.
func (m *Mapper) PickTable(sourceTable string, sourceCols []string, targets map[string][]string) (string, float64, bool) {
	hintTargets := m.tables[Normalize(sourceTable)]

	// Deterministic iteration so ties resolve the same way every run.
	names := make([]string, 0, len(targets))
	for name := range targets {
		names = append(names, name)
	}
	sort.Strings(names)

	bestTable := ""
	bestScore := 0.0
	for _, targetTable := range names {
		score := 0.4*Ratio(Normalize(sourceTable), Normalize(targetTable)) +
			0.6*columnOverlap(sourceCols, targets[targetTable])
		for _, hint := range hintTargets {
			if Normalize(targetTable) == hint {
				score += 0.2
				break
			}
		}
		if score > bestScore {
			bestScore = score
			bestTable = targetTable
		}
	}
	if bestScore < tableAcceptThreshold {
		return "", bestScore, false
	}
	return bestTable, bestScore, true
}

// Defaults returns injected values for target columns the mapping left
// uncovered, restricted to columns the target table actually has.
func (m *Mapper) Defaults(targetCols []string, mappedTargets map[string]bool) map[string]string {
	out := make(map[string]string)
	for _, col := range targetCols {
		if mappedTargets[col] {
			continue
		}
		if value, ok := m.defaults[Normalize(col)]; ok {
			out[col] = value
		}
	}
	return out
}

// columnOverlap is the fraction of source columns whose best similarity
// against any target column reaches 0.85.
func columnOverlap(sourceCols, targetCols []string) float64 {
	if len(sourceCols) == 0 {
		return 0
	}
	targetNorms := make([]string, len(targetCols))
	for i, col := range targetCols {
		targetNorms[i] = Normalize(col)
	}
	matched := 0
	for _, col := range sourceCols {
		srcNorm := Normalize(col)
		best := 0.0
		for _, tgtNorm := range targetNorms {
			if score := Ratio(srcNorm, tgtNorm); score > best {
				best = score
			}
		}
		if best >= 0.85 {
			matched++
		}
	}
	return float64(matched) / float64(len(sourceCols))
}

// Ratio is a similarity measure in [0,1]: twice the total length of the
// matching blocks over the combined length. Matching blocks are found by
// taking the longest common substring and recursing on both sides.
func Ratio(a, b string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	return 2 * float64(matchingChars(a, b)) / float64(len(a)+len(b))
}

func matchingChars(a, b string) int {
	ai, bi, n := longestCommonBlock(a, b)
	if n == 0 {
		return 0
	}
	return n + matchingChars(a[:ai], b[:bi]) + matchingChars(a[ai+n:], b[bi+n:])
}

func longestCommonBlock(a, b string) (int, int, int) {
	bestA, bestB, bestN := 0, 0, 0
	// lengths[j] is the common-suffix length ending at a[i-1], b[j-1].
	lengths := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		prev := 0
		for j := 1; j <= len(b); j++ {
			cur := lengths[j]
			if a[i-1] == b[j-1] {
				lengths[j] = prev + 1
				if lengths[j] > bestN {
					bestN = lengths[j]
					bestA = i - bestN
					bestB = j - bestN
				}
			} else {
				lengths[j] = 0
			}
			prev = cur
		}
	}
	return bestA, bestB, bestN
}
