package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/ngramcount/internal/counts"
	"github.com/Adithya-Monish-Kumar-K/ngramcount/internal/events"
	"github.com/Adithya-Monish-Kumar-K/ngramcount/internal/lookup"
	"github.com/Adithya-Monish-Kumar-K/ngramcount/internal/pattern"
	"github.com/Adithya-Monish-Kumar-K/ngramcount/internal/pipeline"
	"github.com/Adithya-Monish-Kumar-K/ngramcount/internal/runlog"
	"github.com/Adithya-Monish-Kumar-K/ngramcount/internal/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/ngramcount/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/ngramcount/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/ngramcount/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/ngramcount/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/ngramcount/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/ngramcount/pkg/redis"
)

type flags struct {
	config    string
	corpus    string
	workDir   string
	patterns  string
	filter    string
	filterOut string
	history   int
}

func main() {
	var f flags
	flag.StringVar(&f.config, "config", "", "path to config file")
	flag.StringVar(&f.corpus, "corpus", "", "corpus file, overrides paths.corpus")
	flag.StringVar(&f.workDir, "workdir", "", "working directory, overrides paths.workDir")
	flag.StringVar(&f.patterns, "patterns", "", "comma-separated patterns, overrides counting.patterns")
	flag.StringVar(&f.filter, "filter", "", "test file whose needed sequences are copied out after counting")
	flag.StringVar(&f.filterOut, "filter-out", "filtered", "output directory for -filter")
	flag.IntVar(&f.history, "history", 0, "print the last N runs of the working directory and exit")
	flag.Parse()

	cfg, err := config.Load(f.config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if f.corpus != "" {
		cfg.Paths.Corpus = f.corpus
	}
	if f.workDir != "" {
		cfg.Paths.WorkDir = f.workDir
	}
	if f.patterns != "" {
		cfg.Counting.Patterns = strings.Split(f.patterns, ",")
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, f); err != nil {
		slog.Error("ngramcount failed", "error", err)
		os.Exit(apperrors.ExitCode(err))
	}
}

func run(ctx context.Context, cfg *config.Config, f flags) error {
	var history runlog.Recorder = runlog.Nop{}
	if cfg.Postgres.Enabled {
		db, err := postgres.New(ctx, cfg.Postgres)
		if err != nil {
			return err
		}
		defer db.Close()
		store := runlog.NewStore(db)
		if err := store.EnsureSchema(ctx); err != nil {
			return err
		}
		if f.history > 0 {
			return printHistory(ctx, store, cfg.Paths.WorkDir, f.history)
		}
		history = store
	} else if f.history > 0 {
		return fmt.Errorf("%w: -history needs postgres.enabled", apperrors.ErrInvalidInput)
	}

	requested, err := requestedPatterns(cfg.Counting)
	if err != nil {
		return err
	}
	opts, err := pipeline.OptionsFromConfig(cfg)
	if err != nil {
		return err
	}

	m := metrics.NewNop()
	if cfg.Metrics.Enabled {
		m = metrics.New(nil)
		shutdown := metrics.StartServer(cfg.Metrics.Port, nil)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			shutdown(shutdownCtx)
		}()
	}

	var pub events.Publisher = events.Nop{}
	if cfg.Kafka.Enabled {
		pub = events.NewKafka(cfg.Kafka)
	}
	defer pub.Close()

	slog.Info("starting ngramcount",
		"corpus", opts.Corpus,
		"work_dir", opts.WorkDir,
		"patterns", len(requested),
		"cores", opts.Cores,
	)
	counter := pipeline.NewCounter(opts, m, pub, history)
	rep, err := counter.Run(ctx, requested)
	if err != nil {
		return err
	}
	slog.Info("counting complete", "run_id", rep.RunID, "tasks", rep.TasksRun(), "waves", rep.Waves)

	absolute, err := pattern.ParseAll(rep.Absolute)
	if err != nil {
		return err
	}
	continuation, err := pattern.ParseAll(rep.Continuation)
	if err != nil {
		return err
	}

	if cfg.Redis.Enabled {
		if err := publish(ctx, cfg.Redis, counter.Layout(), absolute, continuation); err != nil {
			return err
		}
	}
	if f.filter != "" {
		if err := filter(ctx, opts, counter.Layout(), absolute, continuation, f.filter, f.filterOut); err != nil {
			return err
		}
	}
	return nil
}

func requestedPatterns(cfg config.CountingConfig) ([]pattern.Pattern, error) {
	if len(cfg.Patterns) > 0 {
		return pattern.ParseAll(cfg.Patterns)
	}
	set, err := pattern.ForPreset(cfg.PatternSet, cfg.Order)
	if err != nil {
		return nil, err
	}
	return set.Sorted(), nil
}

func printHistory(ctx context.Context, store *runlog.Store, workDir string, limit int) error {
	runs, err := store.Recent(ctx, workDir, limit)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(os.Stdout)
	defer w.Flush()
	for _, r := range runs {
		finished := "-"
		if !r.FinishedAt.IsZero() {
			finished = r.FinishedAt.Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\ttasks=%d\twaves=%d\t%s\n",
			r.RunID, r.Status, r.StartedAt.Format(time.RFC3339), finished, r.TasksRun, r.Waves, r.Error)
	}
	return nil
}

// publish replaces the shared lookup cache with the counts of this run.
func publish(ctx context.Context, cfg config.RedisConfig, l pipeline.Layout, absolute, continuation []pattern.Pattern) error {
	client, err := pkgredis.NewClient(ctx, cfg)
	if err != nil {
		return err
	}
	defer client.Close()
	cache := lookup.NewRedis(client, cfg)
	if _, err := cache.Invalidate(ctx); err != nil {
		return err
	}
	var total int64
	for _, group := range []struct {
		kind counts.Kind
		ps   []pattern.Pattern
	}{{counts.Absolute, absolute}, {counts.Continuation, continuation}} {
		for _, p := range group.ps {
			n, err := cache.Publish(ctx, l, group.kind, p)
			if err != nil {
				return fmt.Errorf("publishing %s/%s: %w", group.kind, p, err)
			}
			total += n
		}
	}
	times, err := counts.ReadNGramTimes(l.NGramTimesPath())
	if err != nil {
		return err
	}
	if err := cache.PublishNGramTimes(ctx, times); err != nil {
		return err
	}
	slog.Info("counts published to redis", "patterns", len(absolute)+len(continuation), "sequences", total)
	return nil
}

// filter copies the sequences a test file needs out of every counted
// pattern, tokenizing the test file like the training corpus.
func filter(ctx context.Context, opts pipeline.Options, l pipeline.Layout, absolute, continuation []pattern.Pattern, testPath, outDir string) error {
	in, err := os.Open(testPath)
	if err != nil {
		return fmt.Errorf("opening test file: %w", err)
	}
	defer in.Close()

	topts := tokenizer.Options{
		Boundaries: opts.SentenceBoundaries,
		Policy:     opts.ReservedPolicy,
		Tagged:     opts.Tagged,
	}
	var sentences [][]string
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		tokens, err := tokenizer.Prepare(sc.Text(), topts)
		if err != nil {
			return fmt.Errorf("%s: %w", testPath, err)
		}
		if len(tokens) > 0 {
			sentences = append(sentences, tokens)
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("reading test file: %w", err)
	}

	na, err := lookup.FilterPatterns(ctx, l, counts.Absolute, absolute, sentences, opts.Tagged, outDir)
	if err != nil {
		return err
	}
	nc, err := lookup.FilterPatterns(ctx, l, counts.Continuation, continuation, sentences, opts.Tagged, outDir)
	if err != nil {
		return err
	}
	slog.Info("test-set counts filtered", "out", outDir, "sentences", len(sentences), "absolute", na, "continuation", nc)
	return nil
}
