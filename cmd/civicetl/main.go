// Command civicetl fetches, cleans and summarizes the datasets listed in a
// pipeline file and prints count tables or a JSON report.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/advanced-computing/sleepy-narwhal/internal/cache"
	"github.com/advanced-computing/sleepy-narwhal/internal/config"
	"github.com/advanced-computing/sleepy-narwhal/internal/metrics"
	"github.com/advanced-computing/sleepy-narwhal/internal/metrics/datadog"
	"github.com/advanced-computing/sleepy-narwhal/internal/metrics/prompush"
	"github.com/advanced-computing/sleepy-narwhal/internal/pipeline"
	"github.com/advanced-computing/sleepy-narwhal/internal/report"

	// register every cache backend; the pipeline file picks one.
	_ "github.com/advanced-computing/sleepy-narwhal/internal/cache/all"
)

type options struct {
	configPath     string
	dataset        string
	format         string
	metricsBackend string
	pushgatewayURL string
	validate       bool
	verbose        bool
	invalidate     bool
	probeBytes     int
}

func main() {
	var o options
	flag.StringVar(&o.configPath, "config", "configs/pipelines/civic.yaml", "pipeline config path (.json, .yaml)")
	flag.StringVar(&o.dataset, "dataset", "", "run only the named dataset")
	flag.StringVar(&o.format, "format", "markdown", "report format: markdown or json")
	flag.StringVar(&o.metricsBackend, "metrics-backend", "", "metrics backend: pushgateway, datadog, none (overrides config and METRICS_BACKEND)")
	flag.StringVar(&o.pushgatewayURL, "pushgateway-url", "", "Pushgateway base URL (overrides config and PUSHGATEWAY_URL)")
	flag.BoolVar(&o.validate, "validate", false, "validate the configuration and exit")
	flag.BoolVar(&o.verbose, "v", false, "enable verbose logs")
	flag.BoolVar(&o.invalidate, "invalidate-cache", false, "drop cached source bytes before running")
	flag.IntVar(&o.probeBytes, "probe", 0, "fetch the first N bytes of each source, report resolved roles and exit")
	flag.Parse()

	log.SetOutput(os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	if err := run(ctx, o, os.Stdout, os.LookupEnv); err != nil {
		stop()
		fatalf("%v", err)
	}
	if o.verbose {
		log.Printf("completed in %s", time.Since(start).Truncate(time.Millisecond))
	}
}

// run executes one CLI invocation. Report output goes to stdout; issues and
// logs go to stderr.
func run(ctx context.Context, o options, stdout io.Writer, lookup func(string) (string, bool)) error {
	if o.format != "markdown" && o.format != "json" {
		return fmt.Errorf("unknown -format %q (want markdown or json)", o.format)
	}

	p, err := config.Load(o.configPath)
	if err != nil {
		return err
	}
	if err := config.ApplyEnv(&p, lookup); err != nil {
		return err
	}

	issues := config.ValidatePipeline(p)
	for _, iss := range issues {
		fmt.Fprintf(os.Stderr, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
	}
	if config.HasErrors(issues) {
		return fmt.Errorf("configuration is invalid: %s", o.configPath)
	}
	if o.validate {
		log.Printf("configuration is valid: %s", o.configPath)
		return nil
	}

	datasets, err := selectDatasets(p, o.dataset)
	if err != nil {
		return err
	}
	if o.probeBytes > 0 {
		return probe(ctx, stdout, datasets, o.probeBytes)
	}

	job := p.Job
	if job == "" {
		job = "civic"
	}
	flush := setupMetrics(p.Metrics, job, o.metricsBackend, o.pushgatewayURL, o.verbose)
	defer flush()

	store, err := openCache(ctx, p.Cache)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}

	runner, err := pipeline.NewRunner(p, store)
	if err != nil {
		return err
	}
	runner.Verbose = o.verbose
	if o.invalidate {
		if err := runner.Invalidate(ctx, datasets); err != nil {
			return err
		}
	}

	results, runErr := runner.RunAll(ctx, datasets)
	switch o.format {
	case "json":
		err = report.JSON(stdout, runner.Job, results, splitErrors(runErr))
	default:
		err = report.Markdown(stdout, results)
	}
	if err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return runErr
}

// selectDatasets returns every dataset, or only the one called name.
func selectDatasets(p config.Pipeline, name string) ([]config.Dataset, error) {
	if name == "" {
		return p.Datasets, nil
	}
	ds, ok := p.Dataset(name)
	if !ok {
		names := make([]string, 0, len(p.Datasets))
		for _, d := range p.Datasets {
			names = append(names, d.Name)
		}
		return nil, fmt.Errorf("no dataset %q (have %v)", name, names)
	}
	return []config.Dataset{ds}, nil
}

// setupMetrics installs the metrics backend and returns the function that
// flushes it. The backend name comes from the flag, then the config (which
// already carries METRICS_BACKEND); an unusable backend leaves metrics off.
func setupMetrics(m config.Metrics, job, backendFlag, gwURLFlag string, verbose bool) func() {
	name := backendFlag
	if name == "" {
		name = m.Backend
	}

	var b metrics.Backend
	switch name {
	case "pushgateway":
		gwURL := gwURLFlag
		if gwURL == "" {
			gwURL = m.PushgatewayURL
		}
		if gwURL == "" {
			gwURL = "http://localhost:9091"
		}
		pb, err := prompush.NewBackend(job, gwURL)
		if err != nil {
			log.Printf("metrics: failed to init prom push backend: %v; using nop", err)
			return func() {}
		}
		log.Printf("metrics: backend=%s url=%s job=%s", name, gwURL, job)
		b = pb

	case "datadog":
		addr := m.DatadogAddr
		if addr == "" {
			addr = "127.0.0.1:8125"
		}
		db, err := datadog.NewBackend(datadog.Config{
			Addr:       addr,
			Namespace:  "civic.",
			GlobalTags: []string{"job:" + job},
		})
		if err != nil {
			log.Printf("metrics: failed to init datadog backend: %v; using nop", err)
			return func() {}
		}
		log.Printf("metrics: backend=%s addr=%s job=%s", name, addr, job)
		b = db

	case "", "none":
		if verbose {
			log.Printf("metrics: disabled (backend=%q)", name)
		}
		return func() {}

	default:
		log.Printf("metrics: unknown backend %q; metrics disabled", name)
		return func() {}
	}

	metrics.SetBackend(b)
	return func() {
		if err := metrics.Flush(); err != nil {
			log.Printf("metrics: flush error: %v", err)
		}
	}
}

// openCache opens the configured store; a nil Store means caching is off.
func openCache(ctx context.Context, c config.Cache) (cache.Store, error) {
	cfg := cache.Config{Kind: c.Kind, DSN: c.DSN, Table: c.Table}
	if c.TTL != "" {
		d, err := time.ParseDuration(c.TTL)
		if err != nil {
			return nil, fmt.Errorf("cache.ttl: %w", err)
		}
		cfg.TTL = d
	}
	return cache.Open(ctx, cfg)
}

// splitErrors undoes errors.Join so each dataset failure is reported on its
// own.
func splitErrors(err error) []error {
	if err == nil {
		return nil
	}
	var j interface{ Unwrap() []error }
	if errors.As(err, &j) {
		return j.Unwrap()
	}
	return []error{err}
}

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}
