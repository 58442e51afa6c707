package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/vogtb/sheetcalc/packages/config"
	"github.com/vogtb/sheetcalc/packages/report"
	"github.com/vogtb/sheetcalc/packages/spreadsheet"
	"github.com/vogtb/sheetcalc/packages/tsv"
)

var version = "dev"

// app holds state shared by the commands of one invocation
type app struct {
	verbose bool
	level   zap.AtomicLevel
	logger  *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{level: zap.NewAtomicLevelAt(zapcore.InfoLevel)}

	root := &cobra.Command{
		Use:   "sheetcalc",
		Short: "Evaluate timesheet formula sheets against raw data",
		Long: `sheetcalc evaluates a formula sheet, whose cells are literals or
formulas starting with "=", against a raw data sheet and writes the
computed grid.

Formulas read the raw data through the raw sheet name (ローデータ style
names are fine, quote names with spaces: 'Raw Data'!A1). Inputs and
outputs ending in .xlsx are workbooks; anything else is tab separated.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg := zap.NewProductionConfig()
			if a.verbose {
				a.level.SetLevel(zapcore.DebugLevel)
			}
			core := zapcore.NewCore(
				zapcore.NewJSONEncoder(cfg.EncoderConfig),
				zapcore.AddSync(cmd.ErrOrStderr()),
				a.level,
			)
			a.logger = zap.New(core)
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Enable verbose logging")

	root.AddCommand(a.newEvalCmd())
	root.AddCommand(a.newRunCmd())
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "sheetcalc", version)
		},
	})
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func signalContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
}

func (a *app) newEvalCmd() *cobra.Command {
	job := config.JobConfig{Name: "eval"}
	var trace bool

	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Evaluate one formula sheet",
		Example: `  sheetcalc eval --formula Project_List_Formula.tsv --raw Raw_Data.tsv \
    --raw-has-header --raw-sheet ローデータ --out Project_List.tsv`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			runner := report.NewRunner(report.Options{Logger: a.logger, Parallel: 1})
			res := runner.RunJob(ctx, job)
			if res.Err != nil {
				if res.ErrorArtifact != "" {
					fmt.Fprintf(cmd.OutOrStdout(), "error written to %s\n", res.ErrorArtifact)
				}
				return res.Err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "wrote %s\n", res.Output)
			for _, d := range res.Diagnostics {
				fmt.Fprintln(out, d)
			}
			if trace {
				printTrace(out, res.Result)
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&job.Formula, "formula", "f", "", "Formula sheet (.tsv or .xlsx)")
	flags.StringVarP(&job.Raw, "raw", "r", "", "Raw data sheet (.tsv or .xlsx)")
	flags.BoolVar(&job.RawHasHeader, "raw-has-header", false, "Drop the first row of the raw sheet")
	flags.StringVarP(&job.Output, "out", "o", "", "Output file (.tsv or .xlsx)")
	flags.StringVar(&job.Sheet, "sheet", config.DefaultSheet, "Formula sheet name")
	flags.StringVar(&job.RawSheet, "raw-sheet", spreadsheet.DefaultRawSheetName, "Sheet name formulas use for raw data")
	flags.StringVar(&job.ReferencePolicy, "policy", spreadsheet.PolicyAny, "Reference policy: any, same_row_leftward")
	flags.StringVar(&job.InputEncoding, "encoding", tsv.EncodingAuto, "Input encoding: "+strings.Join(config.ValidEncodings, ", "))
	flags.BoolVar(&trace, "trace", false, "Print the cells each formula read")
	_ = cmd.MarkFlagRequired("formula")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}

// printTrace lists the formula cells in calculation order with the cells and
// ranges each one read
func printTrace(w io.Writer, result *spreadsheet.Result) {
	graph := result.DependencyGraph()
	for _, addr := range result.CalculationOrder() {
		formula, _ := graph.GetFormula(addr)

		var reads []string
		for _, p := range graph.GetDirectPrecedents(addr) {
			reads = append(reads, p.String())
		}
		for _, r := range graph.GetRangePrecedents(addr) {
			reads = append(reads, r.String())
		}
		fmt.Fprintf(w, "%s %s <- %s\n", addr, formula, strings.Join(reads, ", "))
	}
}

func (a *app) newRunCmd() *cobra.Command {
	var (
		configPath string
		only       []string
		parallel   int
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the jobs of a YAML config file",
		Example: `  sheetcalc run --config jobs.yaml
  sheetcalc run --config jobs.yaml --only project_list,staff_list`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if len(only) > 0 {
				var jobs []config.JobConfig
				for _, name := range only {
					job, err := cfg.Job(name)
					if err != nil {
						return err
					}
					jobs = append(jobs, *job)
				}
				cfg.Jobs = jobs
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config %s: %w", configPath, err)
			}
			if !a.verbose {
				level, _ := cfg.Logging.ZapLevel()
				a.level.SetLevel(level)
			}

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			runner := report.NewRunner(report.Options{Logger: a.logger, Parallel: parallel})
			summary, err := runner.Run(ctx, cfg.Jobs)

			out := cmd.OutOrStdout()
			for _, res := range summary.Results {
				if res.Err != nil {
					fmt.Fprintf(out, "FAIL %s: %s\n", res.Job, res.ErrorArtifact)
					continue
				}
				fmt.Fprintf(out, "ok   %s: %s (%d diagnostics)\n", res.Job, res.Output, len(res.Diagnostics))
			}
			return err
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&configPath, "config", "c", "", "YAML job file")
	flags.StringSliceVar(&only, "only", nil, "Run only the named jobs")
	flags.IntVarP(&parallel, "parallel", "p", 4, "Jobs to run at once")
	_ = cmd.MarkFlagRequired("config")
	return cmd
}
