package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/ownership-cli/internal/aggregate"
	"github.com/sells-group/ownership-cli/internal/model"
	"github.com/sells-group/ownership-cli/internal/reconcile"
	"github.com/sells-group/ownership-cli/internal/runlog"
	"github.com/sells-group/ownership-cli/internal/scheme"
	"github.com/sells-group/ownership-cli/internal/snapshot"
)

// Recorder journals the stages of one run. *runlog.Run implements it.
type Recorder interface {
	Start(ctx context.Context, stage string) (int64, error)
	Complete(ctx context.Context, id int64, res *runlog.Result) error
	Fail(ctx context.Context, id int64, msg string) error
}

// Stage names written to the run log.
const (
	StageClassify  = "classify"
	StageRollup    = "rollup"
	StageSchemes   = "schemes"
	StageCombine   = "combine"
	StageFilings   = "filing_series"
	StageFunds     = "fund_series"
	StageAggregate = "aggregate"
)

// Output is the result of a run.
type Output struct {
	// Panel is the company-level panel. It is empty for the shares
	// measure, which stops at security level.
	Panel []model.PanelRow
	// Positions is the security-level panel the company panel was built
	// from.
	Positions []model.Position
	Stats     Stats
}

// Engine runs the ownership pipeline over a snapshot.
type Engine struct {
	policy Policy
	rec    Recorder
	log    *zap.Logger
}

// New creates an Engine. A nil recorder journals nothing.
func New(policy Policy, rec Recorder) *Engine {
	if rec == nil {
		rec = runlog.NewRun(nil)
	}
	return &Engine{
		policy: policy,
		rec:    rec,
		log:    zap.L().With(zap.String("component", "pipeline")),
	}
}

// Policy returns the policy the engine runs with.
func (e *Engine) Policy() Policy { return e.policy }

// env is the read-only state shared by every stage of one run.
type env struct {
	snap       *snapshot.Snapshot
	classifier *scheme.Classifier
	prices     map[reconcile.PriceKey]model.Price
	valuer     *reconcile.Valuer
}

// Run executes the configured method over the snapshot.
func (e *Engine) Run(ctx context.Context, snap *snapshot.Snapshot) (*Output, error) {
	if snap == nil {
		return nil, eris.New("pipeline: nil snapshot")
	}
	if e.policy.Method == MethodFerreiraMatos && e.policy.Measure != model.MeasureMarketValue {
		return nil, eris.New("pipeline: ferreira_matos requires the market_value measure")
	}
	start := time.Now()
	e.log.Info("pipeline: starting run",
		zap.String("method", string(e.policy.Method)),
		zap.String("measure", string(e.policy.Measure)),
		zap.Stringer("start", e.policy.Start),
		zap.Stringer("end", e.policy.End),
	)

	prices := reconcile.QuarterPrices(snap.Prices)
	en := &env{
		snap:       snap,
		classifier: scheme.NewClassifier(snap.Holders, snap.Securities),
		prices:     prices,
		valuer:     reconcile.NewValuer(e.policy.Measure, prices),
	}

	var (
		out *Output
		err error
	)
	switch e.policy.Method {
	case MethodScheme:
		out, err = e.runSchemes(ctx, en)
	case MethodFerreiraMatos:
		out, err = e.runFerreiraMatos(ctx, en)
	default:
		return nil, eris.Errorf("pipeline: unknown method %q", e.policy.Method)
	}
	if err != nil {
		return nil, err
	}

	e.log.Info("pipeline: run complete",
		zap.Int("panel_rows", len(out.Panel)),
		zap.Int("positions", len(out.Positions)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return out, nil
}

// track journals one stage around fn. Journal failures are logged and do
// not fail the stage.
func (e *Engine) track(ctx context.Context, stage string, fn func() (*runlog.Result, error)) error {
	id, jerr := e.rec.Start(ctx, stage)
	if jerr != nil {
		e.log.Warn("pipeline: failed to record stage start", zap.String("stage", stage), zap.Error(jerr))
	}

	started := time.Now()
	res, err := fn()
	elapsed := time.Since(started)

	if err != nil {
		e.log.Error("pipeline: stage failed", zap.String("stage", stage), zap.Duration("elapsed", elapsed), zap.Error(err))
		if jerr == nil {
			if ferr := e.rec.Fail(ctx, id, err.Error()); ferr != nil {
				e.log.Warn("pipeline: failed to record stage failure", zap.String("stage", stage), zap.Error(ferr))
			}
		}
		return err
	}

	if res == nil {
		res = &runlog.Result{}
	}
	e.log.Info("pipeline: stage complete",
		zap.String("stage", stage),
		zap.Int64("rows", res.Rows),
		zap.Duration("elapsed", elapsed),
	)
	if jerr == nil {
		if cerr := e.rec.Complete(ctx, id, res); cerr != nil {
			e.log.Warn("pipeline: failed to record stage completion", zap.String("stage", stage), zap.Error(cerr))
		}
	}
	return nil
}

// aggregator builds market caps and the company aggregator for a run.
func (e *Engine) aggregator(en *env) (*aggregate.Aggregator, aggregate.CapStats) {
	companies := aggregate.NewCompanyMap(en.snap.CompanyLinks, en.snap.Securities)
	caps, cst := aggregate.BuildMarketCaps(en.prices, en.snap.Securities, companies, e.policy.Exclusions)
	countries := aggregate.CompanyCountries(en.snap.Securities, companies)
	agg := aggregate.New(caps, companies, countries, e.policy.HomeCountry)
	agg.HolderRatioCap = e.policy.HolderRatioCap
	return agg, cst
}

// clip keeps positions inside the policy's quarter range.
func (e *Engine) clip(ps []model.Position) []model.Position {
	out := make([]model.Position, 0, len(ps))
	for _, p := range ps {
		if p.Quarter >= e.policy.Start && p.Quarter <= e.policy.End {
			out = append(out, p)
		}
	}
	return out
}
