// Package report runs configured report jobs: each job loads a formula sheet
// and a raw sheet, evaluates them and writes the output grid. a job that
// fails leaves an error artifact next to its output instead.
package report

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vogtb/sheetcalc/packages/config"
	"github.com/vogtb/sheetcalc/packages/spreadsheet"
	"github.com/vogtb/sheetcalc/packages/tsv"
	"github.com/vogtb/sheetcalc/packages/xlsx"
)

// Options configures a Runner
type Options struct {
	Logger *zap.Logger

	// Parallel bounds how many jobs run at once; 0 or less means one
	Parallel int
}

// Runner executes jobs. jobs are independent: one failing does not stop
// the others.
type Runner struct {
	logger   *zap.Logger
	parallel int
}

func NewRunner(opts Options) *Runner {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Parallel <= 0 {
		opts.Parallel = 1
	}
	return &Runner{logger: opts.Logger, parallel: opts.Parallel}
}

// JobResult is the outcome of one job
type JobResult struct {
	Job    string
	Output string

	// ErrorArtifact is the path of the error file written when Err is set
	ErrorArtifact string

	// Result is the evaluated sheet, nil when evaluation failed
	Result *spreadsheet.Result

	Diagnostics []spreadsheet.Diagnostic
	Duration    time.Duration
	Err         error
}

// Summary is the outcome of a run, with results in job order
type Summary struct {
	RunID   string
	Results []JobResult
}

// Failed returns the results of jobs that did not produce output
func (s *Summary) Failed() []JobResult {
	var failed []JobResult
	for _, r := range s.Results {
		if r.Err != nil {
			failed = append(failed, r)
		}
	}
	return failed
}

// Run executes jobs and returns every job's result. the error joins the
// errors of all failed jobs.
func (r *Runner) Run(ctx context.Context, jobs []config.JobConfig) (*Summary, error) {
	summary := &Summary{
		RunID:   uuid.NewString(),
		Results: make([]JobResult, len(jobs)),
	}
	logger := r.logger.With(zap.String("run_id", summary.RunID))
	logger.Info("run started", zap.Int("jobs", len(jobs)), zap.Int("parallel", r.parallel))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.parallel)
	for i, job := range jobs {
		g.Go(func() error {
			summary.Results[i] = r.runJob(gctx, job, logger.With(zap.String("job", job.Name)))
			return nil
		})
	}
	_ = g.Wait()

	var errs []error
	for _, res := range summary.Results {
		if res.Err != nil {
			errs = append(errs, fmt.Errorf("job %s: %w", res.Job, res.Err))
		}
	}
	logger.Info("run finished",
		zap.Int("jobs", len(jobs)),
		zap.Int("failed", len(errs)))
	return summary, errors.Join(errs...)
}

// RunJob executes a single job
func (r *Runner) RunJob(ctx context.Context, job config.JobConfig) JobResult {
	logger := r.logger.With(zap.String("run_id", uuid.NewString()), zap.String("job", job.Name))
	return r.runJob(ctx, job, logger)
}

func (r *Runner) runJob(ctx context.Context, job config.JobConfig, logger *zap.Logger) JobResult {
	start := time.Now()
	res := JobResult{Job: job.Name, Output: job.Output}

	logger.Info("job started",
		zap.String("formula", job.Formula),
		zap.String("raw", job.Raw),
		zap.String("output", job.Output))

	result, err := r.evaluate(ctx, job, logger)
	if err == nil {
		res.Result = result
		res.Diagnostics = result.Diagnostics
		err = writeOutput(job, result)
	}
	res.Duration = time.Since(start)

	if err != nil {
		res.Err = err
		logger.Error("job failed", zap.Error(err))
		if job.Output != "" {
			path, werr := tsv.WriteErrorArtifact(job.Output, err.Error())
			if werr != nil {
				logger.Error("writing error artifact", zap.Error(werr))
			} else {
				res.ErrorArtifact = path
				logger.Info("error artifact written", zap.String("path", path))
			}
		}
		return res
	}

	for _, d := range res.Diagnostics {
		logger.Debug("diagnostic",
			zap.String("cell", d.Address.String()),
			zap.String("code", d.Code.String()),
			zap.String("message", d.Message))
	}
	logger.Info("job finished",
		zap.String("output", job.Output),
		zap.Int("diagnostics", len(res.Diagnostics)),
		zap.Duration("duration", res.Duration))
	return res
}

func (r *Runner) evaluate(ctx context.Context, job config.JobConfig, logger *zap.Logger) (*spreadsheet.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := job.Validate(); err != nil {
		return nil, spreadsheet.NewApplicationError(spreadsheet.InvalidArgument, err.Error())
	}

	policy, err := spreadsheet.PolicyByName(job.ReferencePolicy)
	if err != nil {
		return nil, err
	}

	formula, err := loadFormulaSheet(job)
	if err != nil {
		return nil, err
	}
	raw, err := loadRawSheet(job)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	engine := spreadsheet.NewEngine(spreadsheet.EngineOptions{
		RawSheetName: job.RawSheet,
		Policy:       policy,
		Logger:       logger.Named("engine"),
	})
	return engine.Evaluate(formula, raw)
}

func isWorkbook(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".xlsx")
}

func loadFormulaSheet(job config.JobConfig) (spreadsheet.SheetSource, error) {
	if isWorkbook(job.Formula) {
		wb, err := xlsx.Open(job.Formula)
		if err != nil {
			return nil, fmt.Errorf("opening formula workbook: %w", err)
		}
		defer wb.Close()

		return wb.FormulaSheet(job.Sheet)
	}

	table, err := tsv.ReadFile(job.Formula, tsv.ReadOptions{Encoding: job.InputEncoding})
	if err != nil {
		return nil, fmt.Errorf("loading formula sheet: %w", err)
	}
	return spreadsheet.NewWorksheet(job.Sheet, table.Rows), nil
}

// loadRawSheet returns nil when the job has no raw input. a workbook
// without a worksheet named RawSheet contributes its first worksheet.
func loadRawSheet(job config.JobConfig) (spreadsheet.SheetSource, error) {
	if job.Raw == "" {
		return nil, nil
	}

	if isWorkbook(job.Raw) {
		wb, err := xlsx.Open(job.Raw)
		if err != nil {
			return nil, fmt.Errorf("opening raw workbook: %w", err)
		}
		defer wb.Close()

		raw, err := wb.RawSheet(job.RawSheet, job.RawHasHeader)
		var appErr *spreadsheet.AppError
		if errors.As(err, &appErr) && appErr.Code == spreadsheet.NotFound {
			raw, err = wb.RawSheet("", job.RawHasHeader)
		}
		if err != nil {
			return nil, err
		}
		return raw, nil
	}

	table, err := tsv.ReadFile(job.Raw, tsv.ReadOptions{
		Encoding:   job.InputEncoding,
		SkipHeader: job.RawHasHeader,
	})
	if err != nil {
		return nil, fmt.Errorf("loading raw sheet: %w", err)
	}
	return spreadsheet.NewWorksheet(job.RawSheet, table.Rows), nil
}

func writeOutput(job config.JobConfig, result *spreadsheet.Result) error {
	if isWorkbook(job.Output) {
		return xlsx.WriteResult(job.Output, job.Sheet, result)
	}
	return tsv.WriteFile(job.Output, result.Rows())
}
