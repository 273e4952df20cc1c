// BarCut: 1-D bar cutting optimizer
//
// Reads a demand list (CSV or XLSX), screens it through the validation
// rules, picks an algorithm for the workload and writes the cut plan.
//
// Build:
//   go build -o barcut ./cmd/barcut
//
// Example:
//   barcut -demand orders.csv -catalog catalog.json -pdf plan.pdf -labels labels.pdf

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"

	"go.uber.org/zap"

	"github.com/piwi3910/BarCut/internal/config"
	"github.com/piwi3910/BarCut/internal/engine"
	"github.com/piwi3910/BarCut/internal/export"
	"github.com/piwi3910/BarCut/internal/importer"
	"github.com/piwi3910/BarCut/internal/logging"
	"github.com/piwi3910/BarCut/internal/metrics"
	"github.com/piwi3910/BarCut/internal/model"
	"github.com/piwi3910/BarCut/internal/project"
	"github.com/piwi3910/BarCut/internal/selection"
	"github.com/piwi3910/BarCut/internal/validation"
)

// Exit codes.
const (
	exitOK         = 0
	exitValidation = 1
	exitSolver     = 2
	exitUsage      = 64
)

type options struct {
	configPath  string
	demandPath  string
	catalogPath string
	algorithm   string
	compare     bool
	pdfPath     string
	xlsxPath    string
	dxfPath     string
	labelsPath  string
	jsonPath    string
	projectPath string
	metricsPath string
	logLevel    string
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var o options
	fs := flag.NewFlagSet("barcut", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.configPath, "config", "", "YAML configuration file")
	fs.StringVar(&o.demandPath, "demand", "", "demand list (.csv or .xlsx)")
	fs.StringVar(&o.catalogPath, "catalog", "", "stock catalog (.json); defaults to the configured or ~/.barcut catalog")
	fs.StringVar(&o.algorithm, "algorithm", "", "run this algorithm instead of automatic selection")
	fs.BoolVar(&o.compare, "compare", false, "run every algorithm and print a comparison")
	fs.StringVar(&o.pdfPath, "pdf", "", "write the cut plan as PDF")
	fs.StringVar(&o.xlsxPath, "xlsx", "", "write the cut plan as XLSX")
	fs.StringVar(&o.dxfPath, "dxf", "", "write the cut plan as DXF")
	fs.StringVar(&o.labelsPath, "labels", "", "write piece labels as PDF")
	fs.StringVar(&o.jsonPath, "json", "", "write the result as JSON (- for stdout)")
	fs.StringVar(&o.projectPath, "save", "", "save demand, catalog and result as a project file")
	fs.StringVar(&o.metricsPath, "metrics", "", "write Prometheus metrics to this textfile")
	fs.StringVar(&o.logLevel, "log-level", "", "override the configured log level")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if o.demandPath == "" {
		fs.Usage()
		return o, fmt.Errorf("-demand is required")
	}
	return o, nil
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// output is what -json writes.
type output struct {
	Result      model.OptimizationResult  `json:"result"`
	Selection   *model.AlgorithmSelection `json:"selection,omitempty"`
	Comparison  *engine.Comparison        `json:"comparison,omitempty"`
	Remnants    []model.Remnant           `json:"remnants,omitempty"`
	Validation  validationSummary         `json:"validation"`
	ImportNotes []string                  `json:"import_warnings,omitempty"`
}

type validationSummary struct {
	Accepted    int                  `json:"accepted"`
	Fixed       []validation.Outcome `json:"fixed,omitempty"`
	Quarantined []validation.Outcome `json:"quarantined,omitempty"`
	Warnings    []validation.Finding `json:"warnings,omitempty"`
}

func run(args []string, stdout, stderr io.Writer) int {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		return exitUsage
	}

	cfg, err := config.LoadConfiguration(opts.configPath)
	if err != nil {
		fmt.Fprintf(stderr, "config: %v\n", err)
		return exitUsage
	}
	logger, err := logging.New(cfg.Logging, opts.logLevel)
	if err != nil {
		fmt.Fprintf(stderr, "logging: %v\n", err)
		return exitUsage
	}
	defer func() { _ = logger.Sync() }()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(cfg.Metrics)
	}
	metricsPath := opts.metricsPath
	if metricsPath == "" {
		metricsPath = cfg.Metrics.Textfile
	}
	if metricsPath != "" && m != nil {
		defer func() {
			if err := m.WriteTextfile(metricsPath); err != nil {
				logger.Error("failed to write metrics", zap.String("path", metricsPath), zap.Error(err))
			}
		}()
	}

	catalogPath := opts.catalogPath
	if catalogPath == "" {
		catalogPath = cfg.Catalog.Path
	}
	if catalogPath == "" {
		catalogPath = project.DefaultCatalogPath()
	}
	catalog, err := project.LoadCatalog(catalogPath)
	if err != nil {
		logger.Error("failed to load catalog", zap.String("path", catalogPath), zap.Error(err))
		return exitValidation
	}

	imported := importer.Import(opts.demandPath)
	for _, w := range imported.Warnings {
		logger.Debug("import", zap.String("warning", w))
	}
	if len(imported.Errors) > 0 {
		for _, e := range imported.Errors {
			fmt.Fprintf(stderr, "import: %s\n", e)
		}
		return exitValidation
	}

	pipeline, err := validation.NewPipeline(logger, cfg.Validation, validation.WithMetrics(m))
	if err != nil {
		logger.Error("failed to build validation rules", zap.Error(err))
		return exitUsage
	}
	report := pipeline.Process(imported.Records)
	for _, out := range report.Quarantined {
		for _, f := range out.Findings {
			fmt.Fprintf(stderr, "quarantined %s\n", f)
		}
	}
	if len(report.Rejected) > 0 {
		for _, out := range report.Rejected {
			for _, f := range out.Findings {
				fmt.Fprintf(stderr, "rejected %s\n", f)
			}
		}
		return exitValidation
	}

	items, errs := report.Items()
	for _, e := range errs {
		fmt.Fprintf(stderr, "demand: %v\n", e)
	}
	if len(errs) > 0 || len(items) == 0 {
		if len(items) == 0 {
			fmt.Fprintln(stderr, "demand: no records left to optimize")
		}
		return exitValidation
	}

	oc, err := engine.NewOptimizationContext(items, catalog, cfg.Constraints, cfg.ContextOptions()...)
	if err != nil {
		fmt.Fprintf(stderr, "demand: %v\n", err)
		return exitValidation
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	optimizer := engine.New(logger, cfg.OptimizerOptions()...)
	out := output{
		Validation: validationSummary{
			Accepted:    len(report.Accepted),
			Fixed:       report.Fixed,
			Quarantined: report.Quarantined,
			Warnings:    report.Warnings,
		},
		ImportNotes: imported.Warnings,
	}

	if opts.algorithm != "" {
		t, deprecated, err := model.ParseAlgorithmType(opts.algorithm)
		if err != nil {
			fmt.Fprintf(stderr, "algorithm: %v\n", err)
			return exitUsage
		}
		if deprecated {
			logger.Warn("deprecated algorithm name", zap.String("requested", opts.algorithm), zap.String("using", string(t)))
		}
		out.Result, err = optimizer.Run(ctx, t, oc)
		if err != nil {
			logger.Error("optimization failed", zap.String("algorithm", string(t)), zap.Error(err))
			return exitSolver
		}
	} else {
		policies, err := cfg.SelectionPolicies()
		if err != nil {
			fmt.Fprintf(stderr, "selection: %v\n", err)
			return exitUsage
		}
		selector := selection.New(logger, optimizer,
			selection.WithPolicies(policies),
			selection.WithMetrics(m),
			selection.WithBreakerConfig(cfg.Selection.Breaker),
		)
		outcome, err := selector.Optimize(ctx, oc)
		if err != nil {
			logger.Error("optimization failed", zap.Error(err))
			return exitSolver
		}
		out.Result = outcome.Result
		out.Selection = &outcome.Selection
	}
	out.Remnants = model.DetectRemnants(out.Result, oc.Constraints())

	if opts.compare {
		cmp := engine.CompareAlgorithms(ctx, optimizer, oc, model.AlgorithmTypes())
		out.Comparison = &cmp
		printComparison(stdout, cmp)
	}

	if err := writeOutputs(stdout, opts, out, oc, catalog); err != nil {
		logger.Error("export failed", zap.Error(err))
		return exitSolver
	}

	printSummary(stdout, out)
	if out.Result.HasUnplaced() {
		logger.Warn("demand left unplaced", zap.Int("items", len(out.Result.Unplaced)))
	}
	return exitOK
}

func writeOutputs(stdout io.Writer, opts options, out output, oc *engine.OptimizationContext, catalog model.StockCatalog) error {
	r := out.Result
	c := oc.Constraints()
	if opts.pdfPath != "" {
		if err := export.ExportPDF(opts.pdfPath, r, c); err != nil {
			return fmt.Errorf("pdf: %w", err)
		}
	}
	if opts.labelsPath != "" {
		if err := export.ExportLabels(opts.labelsPath, r); err != nil {
			return fmt.Errorf("labels: %w", err)
		}
	}
	if opts.xlsxPath != "" {
		if err := export.ExportXLSX(opts.xlsxPath, r); err != nil {
			return fmt.Errorf("xlsx: %w", err)
		}
	}
	if opts.dxfPath != "" {
		if err := export.ExportDXF(opts.dxfPath, r, c); err != nil {
			return fmt.Errorf("dxf: %w", err)
		}
	}
	if opts.projectPath != "" {
		p := model.NewProject()
		p.Name = opts.demandPath
		p.Items = oc.Items()
		p.Catalog = catalog
		p.Constraints = c
		p.Result = &r
		if err := project.SaveProject(opts.projectPath, p); err != nil {
			return fmt.Errorf("project: %w", err)
		}
	}
	if opts.jsonPath != "" {
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return fmt.Errorf("json: %w", err)
		}
		if opts.jsonPath == "-" {
			_, err = stdout.Write(append(data, '\n'))
			return err
		}
		if err := os.WriteFile(opts.jsonPath, data, 0644); err != nil {
			return fmt.Errorf("json: %w", err)
		}
	}
	return nil
}

func printSummary(w io.Writer, out output) {
	r := out.Result
	fmt.Fprintf(w, "algorithm:  %s\n", r.Algorithm)
	if s := out.Selection; s != nil {
		fmt.Fprintf(w, "workload:   %s (%d pieces)\n", s.WorkloadClass, s.PieceCount)
		if s.FallbackTriggered {
			fmt.Fprintf(w, "fallback:   %s -> %s\n", s.FallbackTrigger, s.FallbackAlgorithm)
		}
	}
	fmt.Fprintf(w, "bars:       %d (%.0f mm)\n", r.StockCount, r.TotalStockLength)
	fmt.Fprintf(w, "pieces:     %d\n", r.TotalPieces())
	fmt.Fprintf(w, "efficiency: %.2f%%\n", r.Efficiency)
	fmt.Fprintf(w, "waste:      %.0f mm (%.2f%%)\n", r.TotalWaste, r.WastePercentage)
	fmt.Fprintf(w, "cost:       %.2f\n", r.TotalCost)
	if len(out.Remnants) > 0 {
		fmt.Fprintf(w, "remnants:   %d (%.0f mm)\n", len(out.Remnants), model.RemnantLength(out.Remnants))
	}
	for _, u := range r.Unplaced {
		fmt.Fprintf(w, "unplaced:   %s %.1f mm x %d (%s)\n", u.ProfileType, u.Length, u.Quantity, u.Reason)
	}
}

func printComparison(w io.Writer, cmp engine.Comparison) {
	fmt.Fprintf(w, "%-10s %6s %8s %10s %9s\n", "algorithm", "bars", "waste%", "cost", "unplaced")
	for _, c := range cmp.Results {
		if c.Err != nil {
			fmt.Fprintf(w, "%-10s error: %v\n", c.Algorithm, c.Err)
			continue
		}
		fmt.Fprintf(w, "%-10s %6d %8.2f %10.2f %9d\n", c.Algorithm, c.StockCount, c.WastePercent, c.TotalCost, c.UnplacedCount)
	}
	if best, ok := cmp.Best(); ok {
		fmt.Fprintf(w, "best: %s\n", best.Algorithm)
	}
}
