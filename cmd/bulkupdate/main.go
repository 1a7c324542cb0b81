// Command bulkupdate applies CSV files to existing database tables. Each
// -config names a job file (YAML or JSON) describing the source file, the
// parser and coercion rules and the destination table and its keys. Every
// job stages its rows and runs one correlated UPDATE.
//
//	bulkupdate -config prices.yaml -config stock.yaml -parallel 2
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"bulkupdate/internal/config"
	"bulkupdate/internal/metrics"
	"bulkupdate/internal/metrics/datadog"
	"bulkupdate/internal/metrics/prompush"

	// register all backends with the storage factory.
	// a job file names the one it uses.
	_ "bulkupdate/internal/storage/all"
)

// stringList is a repeatable string flag.
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

type options struct {
	configs        stringList
	metricsBackend string
	pushGatewayURL string
	dogStatsDAddr  string
	parallel       int
	failFast       bool
	validate       bool
	verbose        bool
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var o options
	fs := flag.NewFlagSet("bulkupdate", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Var(&o.configs, "config", "job config path (YAML or JSON); repeatable")
	fs.StringVar(&o.metricsBackend, "metrics-backend", "", "metrics backend: pushgateway, datadog or none (overrides env METRICS_BACKEND)")
	fs.StringVar(&o.pushGatewayURL, "pushgateway-url", "", "Pushgateway base URL (overrides env PUSHGATEWAY_URL)")
	fs.StringVar(&o.dogStatsDAddr, "dogstatsd-addr", "", "DogStatsD address (overrides env DD_DOGSTATSD_ADDR)")
	fs.IntVar(&o.parallel, "parallel", 1, "number of jobs to run at once")
	fs.BoolVar(&o.failFast, "fail-fast", false, "cancel remaining jobs after the first failure")
	fs.BoolVar(&o.validate, "validate", false, "validate the job configs and exit")
	fs.BoolVar(&o.verbose, "v", false, "enable verbose logs")

	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if len(o.configs) == 0 {
		return o, errors.New("at least one -config is required")
	}
	if o.parallel < 1 {
		return o, fmt.Errorf("-parallel must be at least 1, got %d", o.parallel)
	}
	return o, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run is main without the process exit. It returns 0 on success, 1 when a
// job or its config failed and 2 on bad flags.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	o, err := parseFlags(args, stderr)
	if err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintf(stderr, "bulkupdate: %v\n", err)
		}
		return 2
	}

	level := slog.LevelInfo
	if o.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	jobs, ok := loadJobs(o.configs, stderr)
	if !ok {
		return 1
	}
	if o.validate {
		for _, j := range jobs {
			fmt.Fprintf(stderr, "configuration is valid: %s\n", j.path)
		}
		return 0
	}

	closeMetrics := setupMetrics(o, stderr)
	defer closeMetrics()

	start := time.Now()
	results := runAll(ctx, jobs, o.parallel, o.failFast, logger)
	printSummary(stdout, results)
	if o.verbose {
		fmt.Fprintf(stderr, "completed %d job(s) in %s\n", len(results), time.Since(start).Truncate(time.Millisecond))
	}

	for _, r := range results {
		if r.Err != nil {
			return 1
		}
	}
	return 0
}

// loadJobs decodes and validates every config, printing each issue. ok is
// false if any config failed to load or has an error-severity issue.
func loadJobs(paths []string, stderr io.Writer) (jobs []job, ok bool) {
	ok = true
	for _, path := range paths {
		p, err := config.Load(path)
		if err != nil {
			fmt.Fprintf(stderr, "%s: %v\n", path, err)
			ok = false
			continue
		}
		issues := config.ValidatePipeline(p)
		for _, iss := range issues {
			fmt.Fprintf(stderr, "%s: %s: %s: %s\n", path, iss.Severity, iss.Path, iss.Message)
		}
		if config.Err(issues) != nil {
			fmt.Fprintf(stderr, "configuration is invalid: %s\n", path)
			ok = false
			continue
		}
		jobs = append(jobs, job{path: path, p: p})
	}
	return jobs, ok
}

// setupMetrics installs the selected backend and returns the function that
// flushes and closes it. An unusable backend leaves the nop backend in place.
func setupMetrics(o options, stderr io.Writer) func() {
	logf := log.New(stderr, "", log.LstdFlags).Printf
	nop := func() {}

	// flag → env → default.
	name := o.metricsBackend
	if name == "" {
		name = os.Getenv("METRICS_BACKEND")
	}

	switch name {
	case "pushgateway":
		url := firstNonEmpty(o.pushGatewayURL, os.Getenv("PUSHGATEWAY_URL"), "http://localhost:9091")
		b, err := prompush.NewBackend("bulkupdate", url)
		if err != nil {
			logf("metrics: failed to init prom push backend: %v; using nop", err)
			return nop
		}
		logf("metrics: backend=%s url=%s", name, url)
		metrics.SetBackend(b)
		return func() {
			if err := metrics.Flush(); err != nil {
				logf("metrics: flush error: %v", err)
			}
		}

	case "datadog":
		addr := firstNonEmpty(o.dogStatsDAddr, os.Getenv("DD_DOGSTATSD_ADDR"), "127.0.0.1:8125")
		b, err := datadog.NewBackend(datadog.Config{Addr: addr, Namespace: "bulkupdate."})
		if err != nil {
			logf("metrics: failed to init datadog backend: %v; using nop", err)
			return nop
		}
		logf("metrics: backend=%s addr=%s", name, addr)
		metrics.SetBackend(b)
		return func() {
			if err := metrics.Flush(); err != nil {
				logf("metrics: flush error: %v", err)
			}
			if err := b.Close(); err != nil {
				logf("metrics: close error: %v", err)
			}
		}

	case "", "none":
		return nop

	default:
		logf("metrics: unknown backend %q; metrics disabled", name)
		return nop
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
