package main

import (
	"context"
	"log"
	"log/slog"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"bulkupdate/internal/bulkupdate"
	"bulkupdate/internal/config"
	"bulkupdate/internal/datasource"
	"bulkupdate/internal/datasource/file"
	"bulkupdate/internal/datasource/httpds"
	csvparser "bulkupdate/internal/parser/csv"
	"bulkupdate/internal/rows"
	"bulkupdate/internal/transformer"
)

// job is one validated job file.
type job struct {
	path string
	p    config.Pipeline
}

// jobResult is one row of the run summary.
type jobResult struct {
	Config  string
	Job     string
	Table   string
	Loaded  int64
	Updated int64
	Dropped int64
	Elapsed time.Duration
	Err     error
}

// runAll runs jobs with at most parallel in flight. Results keep the order
// of jobs. With failFast the first failure cancels the jobs still running or
// waiting.
func runAll(ctx context.Context, jobs []job, parallel int, failFast bool, logger *slog.Logger) []jobResult {
	results := make([]jobResult, len(jobs))

	g := new(errgroup.Group)
	gctx := ctx
	if failFast {
		g, gctx = errgroup.WithContext(ctx)
	}
	g.SetLimit(parallel)

	for i, j := range jobs {
		g.Go(func() error {
			results[i] = runJob(gctx, j, logger)
			if failFast {
				return results[i].Err
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// runJob reads the job's CSV file through the coerce transforms into the
// updater. It never returns a partial result without an error.
func runJob(ctx context.Context, j job, logger *slog.Logger) (res jobResult) {
	p := j.p
	res = jobResult{Config: j.path, Job: p.JobName(), Table: p.Storage.DB.Table}
	start := time.Now()
	defer func() { res.Elapsed = time.Since(start) }()

	if err := ctx.Err(); err != nil {
		res.Err = err
		return res
	}

	jlog := logger.With("job", res.Job)
	cur, dropped, err := openCursor(ctx, j, jlog)
	if err != nil {
		res.Err = err
		return res
	}

	opts := []bulkupdate.Option{
		bulkupdate.WithDestination(p.Storage.DB.Table),
		bulkupdate.WithPrimaryKeyColumns(p.Storage.DB.KeyColumns...),
		bulkupdate.WithImplicitTransaction(p.Storage.DB.ImplicitTransaction),
		bulkupdate.WithJob(res.Job),
		bulkupdate.WithLogger(jlog),
	}
	if p.Runtime.BatchSize > 0 {
		opts = append(opts, bulkupdate.WithBatchSize(p.Runtime.BatchSize))
	}
	u, err := bulkupdate.Open(ctx, p.Storage.Kind, p.Storage.DB.DSN, opts...)
	if err != nil {
		_ = cur.Close()
		res.Err = err
		return res
	}
	defer func() {
		if cerr := u.Close(); cerr != nil {
			log.Printf("job %s: close: %v", res.Job, cerr)
		}
	}()

	r, err := u.Update(ctx, cur)
	res.Loaded, res.Updated = r.Loaded, r.Updated
	res.Dropped = dropped()
	res.Err = err
	return res
}

// newSource picks the source for the job. Relative file paths resolve
// against the job file's directory.
func newSource(j job) datasource.Source {
	src := j.p.Source
	if src.Kind == "http" {
		client := httpds.NewClient(httpds.Config{
			Timeout:            time.Duration(src.HTTP.TimeoutSeconds) * time.Second,
			MaxRetries:         src.HTTP.MaxRetries,
			InsecureSkipVerify: src.HTTP.InsecureSkipVerify,
		})
		return httpds.NewSource(src.HTTP.URL, client)
	}
	path := src.File.Path
	if !filepath.IsAbs(path) {
		path = filepath.Join(filepath.Dir(j.path), path)
	}
	return file.NewLocal(path)
}

// openCursor builds source → CSV cursor → coerce transforms. dropped
// reports how many records the CSV reader and the transforms skipped.
func openCursor(ctx context.Context, j job, logger *slog.Logger) (cur rows.Cursor, dropped func() int64, err error) {
	p := j.p

	rc, err := newSource(j).Open(ctx)
	if err != nil {
		return nil, nil, err
	}

	opt := csvparser.OptionsFrom(p.Parser.Options)
	opt.Columns = p.Storage.DB.Columns
	opt.OnError = func(line int, err error) {
		log.Printf("csv: job=%s skipped line %d: %v", p.JobName(), line, err)
	}
	csvCur, err := csvparser.NewCursor(rc, opt)
	if err != nil {
		return nil, nil, err
	}

	counters := []func() int64{csvCur.Dropped}
	cur = csvCur
	for _, t := range p.Transform {
		spec := transformer.SpecFromOptions(t.Options)
		logger.Debug("coerce", "spec", spec.String())
		tc, err := transformer.Coerce(cur, spec, transformer.Options{
			DropInvalid: t.Options.Bool("drop_invalid", false),
			OnError: func(row int64, err error) {
				log.Printf("coerce: job=%s skipped row %d: %v", p.JobName(), row, err)
			},
		})
		if err != nil {
			_ = cur.Close()
			return nil, nil, err
		}
		counters = append(counters, tc.Dropped)
		cur = tc
	}

	return cur, func() int64 {
		var n int64
		for _, c := range counters {
			n += c()
		}
		return n
	}, nil
}
