package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"text/tabwriter"

	"github.com/alexshd/biasgen"
	"github.com/alexshd/biasgen/sink"
	"github.com/alexshd/biasgen/template"
)

// generation is one template run with its sinks. The runner and sinks are
// built at the template's operand width; generation only sees them through
// width-independent views.
type generation struct {
	tmpl   *template.Template
	cfg    biasgen.Config
	job    biasgen.Job
	digest summer
	flush  []func(context.Context) error
	runID  int64
	stored bool
	output string
}

// summer is what the report needs from a sink.Digest.
type summer interface {
	Sum() string
	Count() uint64
}

// generate runs the three generation stages: prepare the output directory,
// run every template, then record the results.
func generate(ctx context.Context, stdout io.Writer, log *slog.Logger, opts options) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	files, err := template.Glob(opts.templates...)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no template files found in %v", opts.templates)
	}

	templates := make([]*template.Template, 0, len(files))
	seen := make(map[string]string, len(files))
	for _, f := range files {
		tmpl, err := template.Load(f)
		if err != nil {
			return err
		}
		if prev, dup := seen[tmpl.Name]; dup {
			return fmt.Errorf("template name %q used by both %s and %s", tmpl.Name, prev, f)
		}
		seen[tmpl.Name] = f
		templates = append(templates, tmpl)
	}

	seed := opts.seed
	if !opts.seedSet {
		seed = biasgen.EntropySeed()
	}
	log.Info("generation started", "templates", len(templates), "seed", seed, "jobs", opts.jobs)

	if err := prepareOutputDir(opts.outDir); err != nil {
		return err
	}

	var db *sink.DB
	if opts.dbPath != "" {
		if db, err = sink.OpenDB(opts.dbPath); err != nil {
			return err
		}
		defer db.Close()
	}

	base := biasgen.DefaultConfig()
	base.Seed = seed
	base.Iterations = opts.count
	base.OnEmissionError = biasgen.ErrorPolicy(opts.onError)
	base.Logger = log

	gens := make([]*generation, 0, len(templates))
	jobs := make([]biasgen.Job, 0, len(templates))
	for _, tmpl := range templates {
		cfg := tmpl.Config(base)
		if opts.seedSet {
			cfg.Seed = opts.seed
		} else if !tmpl.HasSeed {
			log.Info("template has no seed, using run seed", "template", tmpl.Name, "seed", cfg.Seed)
		}
		if opts.countSet {
			cfg.Iterations = opts.count
		}
		if opts.onErrorSet {
			cfg.OnEmissionError = biasgen.ErrorPolicy(opts.onError)
		}

		g, err := newGeneration(ctx, tmpl, cfg, db, opts, log)
		if err != nil {
			return err
		}
		gens = append(gens, g)
		jobs = append(jobs, g.job)
	}

	results, runErr := biasgen.RunParallel(ctx, opts.jobs, jobs...)

	// Results are persisted even when ctx was cancelled.
	persist := context.Background()

	entries := sink.RegressList{TestPath: opts.outDir, Tests: map[string]sink.RegressEntry{}}
	for i, g := range gens {
		res := results[i]
		if err := g.close(persist); err != nil {
			runErr = errors.Join(runErr, fmt.Errorf("%s: %w", g.tmpl.Name, err))
		}
		if g.stored {
			if err := db.FinishRun(persist, g.runID, res, g.digest.Sum()); err != nil {
				runErr = errors.Join(runErr, err)
			}
		}
		entries.Tests[g.tmpl.Name] = sink.RegressEntry{
			Seed:       g.cfg.Seed,
			Iterations: g.cfg.Iterations,
			Emitted:    res.Emitted,
			State:      string(res.State),
			Digest:     g.digest.Sum(),
			Output:     g.output,
		}
	}

	if opts.regress != "" {
		if err := sink.WriteRegressList(opts.regress, entries); err != nil {
			return fmt.Errorf("write regress list: %w", err)
		}
		log.Info("regress list updated", "path", opts.regress, "tests", len(entries.Tests))
	}

	printResults(stdout, gens, results)

	sum := biasgen.Summarize(results)
	log.Info("generation finished",
		"completed", sum.Completed,
		"cancelled", sum.Cancelled,
		"failed", sum.Failed,
		"emitted", sum.Emitted,
		"throughput", fmt.Sprintf("%.0f/s", sum.Throughput))

	if runErr != nil {
		return runErr
	}
	if sum.Cancelled > 0 {
		return fmt.Errorf("%d of %d runs: %w", sum.Cancelled, sum.Runs, biasgen.ErrRunCancelled)
	}
	return nil
}

func newGeneration(ctx context.Context, tmpl *template.Template, cfg biasgen.Config, db *sink.DB, opts options, log *slog.Logger) (*generation, error) {
	g := &generation{tmpl: tmpl, cfg: cfg}
	var err error
	if tmpl.Unsigned != nil {
		err = wire(ctx, g, tmpl.Unsigned, db, opts, log)
	} else {
		err = wire(ctx, g, tmpl.Signed, db, opts, log)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", tmpl.Name, err)
	}
	return g, nil
}

// wire builds the sinks and runner for p. The digest is the last sink in
// the chain, so it only hashes instances every other sink accepted.
func wire[T biasgen.Integer](ctx context.Context, g *generation, p *template.Program[T], db *sink.DB, opts options, log *slog.Logger) error {
	var emitters []biasgen.Emitter[T]

	if opts.outDir != "" {
		g.output = filepath.Join(opts.outDir, g.tmpl.Name+".jsonl")
		jsonl, err := sink.CreateJSONLines[T](g.output)
		if err != nil {
			return err
		}
		emitters = append(emitters, jsonl)
		g.flush = append(g.flush, func(context.Context) error { return jsonl.Close() })
	}

	if db != nil {
		id, err := db.BeginRun(ctx, sink.RunInfo{
			Name:       g.tmpl.Name,
			Op:         p.Body.Op(),
			Seed:       g.cfg.Seed,
			Iterations: g.cfg.Iterations,
		})
		if err != nil {
			return err
		}
		// A failed batch is dropped whole; under skip only the failing
		// instance may be lost.
		batch := 0
		if g.cfg.OnEmissionError == biasgen.OnErrorSkip {
			batch = 1
		}
		store := sink.NewSQLite[T](db, id, batch)
		emitters = append(emitters, store)
		g.flush = append(g.flush, store.Flush)
		g.runID, g.stored = id, true
	}

	digest := sink.NewDigest[T]()
	emitters = append(emitters, digest)
	g.digest = digest

	situations := biasgen.NewSituationRegistry[T]()
	situations.SetFallback(biasgen.SituationFunc[T](func(strategy string, _ *biasgen.Distribution[T], inst biasgen.Instance[T]) {
		log.Debug("situation", "strategy", strategy, "instance", inst.String())
	}))

	runOpts := []biasgen.Option[T]{
		biasgen.WithSituation[T](situations),
		biasgen.WithAllocator[T](newFreeRegisters()),
	}
	if opts.lcg48 {
		runOpts = append(runOpts, biasgen.WithSampler[T](biasgen.NewSampler(biasgen.NewLCG48Source(g.cfg.Seed))))
	}

	r, err := biasgen.NewRunner(p.Body, biasgen.Emitter[T](sink.NewTee(emitters...)), g.cfg, runOpts...)
	if err != nil {
		return err
	}
	g.job = r
	return nil
}

// close flushes the run's file and database sinks.
func (g *generation) close(ctx context.Context) error {
	var errs []error
	for _, flush := range g.flush {
		errs = append(errs, flush(ctx))
	}
	return errors.Join(errs...)
}

// prepareOutputDir removes and recreates dir so it only holds this
// generation's output.
func prepareOutputDir(dir string) error {
	if dir == "" {
		return nil
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("clean output dir: %w", err)
	}
	return os.MkdirAll(dir, 0o755)
}

func printResults(w io.Writer, gens []*generation, results []biasgen.Result) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TEMPLATE\tSTATE\tSEED\tEMITTED\tSKIPPED\tDIGEST")
	for i, g := range gens {
		res := results[i]
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%.16s\n",
			g.tmpl.Name, res.State, g.cfg.Seed, res.Emitted, res.Skipped, g.digest.Sum())
	}
	tw.Flush()
}
