package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"fundsync/internal/integrity"
	"fundsync/internal/lifecycle"
	"fundsync/internal/stage"
	"fundsync/internal/store"
	"fundsync/platform/apperr"
	"fundsync/platform/logger"
	"fundsync/platform/validator"
)

// Pipeline names as they appear in directory layout and logs.
const (
	PipelineMaster      = "master"
	PipelinePerformance = "performance"
	PipelineDetail      = "detail"
	PipelineHoldings    = "holdings"
)

// Sync builds the concrete pipeline steps over the hot-storage layout and
// the canonical store.
type Sync struct {
	dataDir   string
	loader    *store.Loader
	writer    *stage.Writer
	validate  *validator.Validator
	lifecycle *lifecycle.Manager
	gate      *integrity.Gate
	log       *logger.Logger
	browsers  int
	today     func() time.Time
}

func NewSync(
	dataDir string,
	loader *store.Loader,
	writer *stage.Writer,
	v *validator.Validator,
	lc *lifecycle.Manager,
	gate *integrity.Gate,
	log *logger.Logger,
	browserConcurrency int,
	today func() time.Time,
) *Sync {
	if browserConcurrency <= 0 {
		browserConcurrency = DefaultBrowserConcurrency
	}
	if today == nil {
		today = time.Now
	}
	return &Sync{
		dataDir:   dataDir,
		loader:    loader,
		writer:    writer,
		validate:  v,
		lifecycle: lc,
		gate:      gate,
		log:       log,
		browsers:  browserConcurrency,
		today:     today,
	}
}

// Stages assembles the four pipeline steps in global order.
func (s *Sync) Stages() Stages {
	return Stages{
		Master:      StepFunc{StepName: PipelineMaster, Fn: s.runMaster},
		Performance: StepFunc{StepName: PipelinePerformance, Fn: s.runPerformance},
		Detail:      s.detailGroup(),
		Holdings:    s.holdingsGroup(),
	}
}

// runMaster ingests the latest master-list artifact: clean, validate,
// fingerprint, upsert into the entity table, then advance the lifecycle.
func (s *Sync) runMaster(ctx context.Context) (int, error) {
	today := s.today()
	todayStr := today.Format(stage.DateLayout)

	masterRoot := stage.StagingDir(s.dataDir, PipelineMaster)
	date, ok, err := stage.LatestDate(masterRoot)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, apperr.NotFound("no master-list artifact to load").WithOp("master sync")
	}

	path := filepath.Join(masterRoot, date, stage.MasterArtifact)
	table, err := stage.ReadCSV(path)
	if err != nil {
		return 0, err
	}
	if len(table.Rows) == 0 {
		return 0, apperr.NotFound("master-list artifact is empty").WithOp("master sync")
	}

	stage.Clean(table, "Thai_Web", stage.CleanSpec{})
	report := stage.Validate(table, s.validate)
	if report.OK == 0 {
		return 0, apperr.Validation(fmt.Sprintf(
			"no loadable master rows: %d failed, %d blank", report.Failed, report.Skipped))
	}
	if report.Failed > 0 || report.Skipped > 0 {
		s.log.Warn("master rows with incomplete keys excluded",
			"failed", report.Failed, "skipped", report.Skipped)
		keepCompleteKeys(table)
	}

	store.PrepareMaster(table, todayStr)
	if _, err := s.writer.Append(stage.HashedDirName, todayStr, "master_list", table); err != nil {
		return 0, err
	}

	res, err := s.loader.LoadMaster(ctx, table)
	if err != nil {
		return res.Inserted + res.Updated, err
	}
	if _, err := s.lifecycle.Run(ctx, today); err != nil {
		return res.Inserted + res.Updated, err
	}
	return res.Inserted + res.Updated + res.Skipped, nil
}

// runPerformance ingests the daily NAV artifact and any per-date price
// and dividend history artifacts present in hot storage.
func (s *Sync) runPerformance(ctx context.Context) (int, error) {
	total := 0

	navTable, err := s.readNAV()
	if err != nil {
		return 0, err
	}
	stage.Clean(navTable, "Thai_Web", stage.CleanSpec{NumericCols: []string{"nav_price"}})
	stage.Fingerprint(navTable)
	res, err := s.loader.Load(ctx, store.Tables["stg_daily_nav"], navTable)
	total += res.Inserted + res.Updated + res.Skipped
	if err != nil {
		return total, err
	}

	for _, family := range []struct {
		pipeline string
		table    string
	}{
		{"price_history", "stg_price_history"},
		{"dividend_history", "stg_dividend_history"},
	} {
		n, err := s.loadHashedFamily(ctx, family.pipeline, family.table)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func (s *Sync) readNAV() (*stage.Table, error) {
	root := stage.StagingDir(s.dataDir, PipelinePerformance)
	for _, name := range []string{stage.NAVArtifactPreferred, stage.NAVArtifactFallback} {
		path := filepath.Join(root, name)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		return stage.ReadCSV(path)
	}
	return nil, apperr.NotFound("no daily NAV artifact in staging").WithOp("performance sync")
}

// loadHashedFamily loads every artifact under the latest hashed date
// directory of one pipeline family. A malformed artifact is logged and
// skipped; the rest of the family still loads.
func (s *Sync) loadHashedFamily(ctx context.Context, pipeline, tableName string) (int, error) {
	root := filepath.Join(s.dataDir, stage.HashedDirName, pipeline)
	date, ok, err := stage.LatestDate(root)
	if err != nil || !ok {
		return 0, err
	}

	files, err := stage.ListArtifacts(filepath.Join(root, date))
	if err != nil {
		return 0, err
	}

	spec := store.Tables[tableName]
	total := 0
	for _, file := range files {
		table, err := stage.ReadCSV(file)
		if err != nil {
			s.log.Warn("skipping unreadable artifact", "file", file, "error", err)
			continue
		}
		if !table.HasColumn("row_hash") {
			stage.Fingerprint(table)
		}
		res, err := s.loader.Load(ctx, spec, table)
		total += res.Inserted + res.Updated + res.Skipped
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// detailFamilies maps static-detail artifacts to their tables and
// normalization rules.
var detailFamilies = []struct {
	artifact string
	table    string
	spec     stage.CleanSpec
}{
	{"fund_info_clean.csv", "stg_fund_info", stage.CleanSpec{
		NumericCols: []string{"shares_out"},
	}},
	{"fund_fees_clean.csv", "stg_fund_fees", stage.CleanSpec{
		PercentCols: []string{"expense_ratio", "initial_charge", "exit_charge", "top_10_hold_pct", "holdings_turnover"},
		NumericCols: []string{"assets_aum", "holdings_count"},
		RatioCols:   []string{"expense_ratio", "initial_charge", "exit_charge"},
	}},
	{"fund_risk_clean.csv", "stg_fund_risk", stage.CleanSpec{
		NumericCols: riskNumericCols(),
		OutlierCols: []string{"standard_dev_1y", "standard_dev_3y", "standard_dev_5y", "standard_dev_10y"},
	}},
	{"fund_policy_clean.csv", "stg_fund_policy", stage.CleanSpec{
		PercentCols: []string{"dividend_yield", "payout_ratio", "total_return_ytd", "total_return_1y"},
		OutlierCols: []string{"total_return_1y", "total_return_ytd"},
	}},
}

func riskNumericCols() []string {
	var cols []string
	for _, base := range []string{"sharpe_ratio", "beta", "alpha", "standard_dev", "r_squared"} {
		for _, horizon := range []string{"_1y", "_3y", "_5y", "_10y"} {
			cols = append(cols, base+horizon)
		}
	}
	return append(cols, "rsi_daily", "moving_avg_200", "morningstar_rating")
}

func (s *Sync) detailGroup() Step {
	steps := make([]Step, 0, len(detailFamilies))
	for _, family := range detailFamilies {
		steps = append(steps, StepFunc{
			StepName: PipelineDetail + "/" + family.table,
			Fn: func(ctx context.Context) (int, error) {
				return s.loadStaticFamily(ctx, "static_details", family.artifact, family.table, family.spec)
			},
		})
	}
	return Group{GroupName: PipelineDetail, Limit: s.browsers, Pace: NewFetchLimiter(s.browsers), Steps: steps}
}

var holdingsFamilies = []struct {
	artifact string
	table    string
	spec     stage.CleanSpec
}{
	{"fund_holdings_clean.csv", "stg_fund_holdings", stage.CleanSpec{
		PercentCols: []string{"holding_percentage"},
		NumericCols: []string{"shares_held", "market_value"},
	}},
	{"allocations_clean.csv", "stg_allocations", stage.CleanSpec{
		NumericCols: []string{"value_net", "value_category_avg", "value_long", "value_short"},
	}},
	{"fund_metrics_clean.csv", "stg_fund_metrics", stage.CleanSpec{
		NumericCols: []string{"value_num"},
	}},
}

func (s *Sync) holdingsGroup() Step {
	steps := make([]Step, 0, len(holdingsFamilies))
	for _, family := range holdingsFamilies {
		steps = append(steps, StepFunc{
			StepName: PipelineHoldings + "/" + family.table,
			Fn: func(ctx context.Context) (int, error) {
				return s.loadStaticFamily(ctx, "holdings", family.artifact, family.table, family.spec)
			},
		})
	}
	return Group{GroupName: PipelineHoldings, Limit: s.browsers, Pace: NewFetchLimiter(s.browsers), Steps: steps}
}

// loadStaticFamily ingests one consolidated artifact: clean, validate,
// fingerprint, load. A missing artifact skips the family rather than
// failing the stage.
func (s *Sync) loadStaticFamily(ctx context.Context, pipeline, artifact, tableName string, cleanSpec stage.CleanSpec) (int, error) {
	path := filepath.Join(stage.StagingDir(s.dataDir, pipeline), artifact)
	if _, err := os.Stat(path); err != nil {
		s.log.Info("no artifact for family", "artifact", artifact, "table", tableName)
		return 0, nil
	}

	table, err := stage.ReadCSV(path)
	if err != nil {
		return 0, err
	}
	stage.Clean(table, "Thai_Web", cleanSpec)

	report := stage.Validate(table, s.validate)
	if report.Failed > 0 {
		s.log.Warn("rows with incomplete keys excluded",
			"artifact", artifact, "failed", report.Failed)
		keepCompleteKeys(table)
	}
	stage.Fingerprint(table)

	res, err := s.loader.Load(ctx, store.Tables[tableName], table)
	return res.Inserted + res.Updated + res.Skipped, err
}

func keepCompleteKeys(t *stage.Table) {
	kept := t.Rows[:0]
	for _, row := range t.Rows {
		if row["ticker"] != "" && row["asset_type"] != "" && row["source"] != "" {
			kept = append(kept, row)
		}
	}
	t.Rows = kept
}

// GateFunc evaluates the integrity gate from the latest hashed master
// artifact and the staged NAV artifact.
func (s *Sync) GateFunc(ctx context.Context) (GateState, error) {
	var state GateState
	today := s.today()

	masterRoot := filepath.Join(s.dataDir, stage.HashedDirName)
	date, ok, err := stage.LatestDate(masterRoot)
	if err != nil {
		return state, err
	}
	if ok {
		path := filepath.Join(masterRoot, date, "master_list.csv")
		if table, err := stage.ReadCSV(path); err == nil {
			fileDate, _ := time.Parse(stage.DateLayout, date)
			masterOK, _, err := s.gate.CheckMaster(ctx, integrity.EntityKeys(table), fileDate, today)
			if err != nil {
				return state, err
			}
			state.MasterOK = masterOK
		}
	}

	if navTable, err := s.readNAV(); err == nil {
		perfOK, _, err := s.gate.CheckPerformance(ctx, integrity.ObservationKeys(navTable))
		if err != nil {
			return state, err
		}
		state.PerformanceOK = perfOK
	}

	navOK, _, err := s.gate.CheckObservations(ctx, integrity.LastBusinessDay(today))
	if err != nil {
		return state, err
	}
	state.ObservationsOK = navOK
	return state, nil
}
