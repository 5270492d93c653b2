package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fknsrs.biz/p/sorm"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/urfave/negroni/v2"

	"fknsrs.biz/p/clipcatalog/handlers"
	"fknsrs.biz/p/clipcatalog/internal/catalog"
	"fknsrs.biz/p/clipcatalog/internal/catalogdb"
	"fknsrs.biz/p/clipcatalog/internal/config"
	"fknsrs.biz/p/clipcatalog/internal/configreader"
	"fknsrs.biz/p/clipcatalog/internal/ctxclock"
	"fknsrs.biz/p/clipcatalog/internal/ctxconfig"
	"fknsrs.biz/p/clipcatalog/internal/ctxdb"
	"fknsrs.biz/p/clipcatalog/internal/ctxhttpclient"
	"fknsrs.biz/p/clipcatalog/internal/ctxjobqueue"
	"fknsrs.biz/p/clipcatalog/internal/ctxlogger"
	"fknsrs.biz/p/clipcatalog/internal/ctxregistry"
	"fknsrs.biz/p/clipcatalog/internal/ctxtimer"
	"fknsrs.biz/p/clipcatalog/internal/jobqueue"
	"fknsrs.biz/p/clipcatalog/internal/logrusstackhook"
	"fknsrs.biz/p/clipcatalog/internal/pipeline"
	"fknsrs.biz/p/clipcatalog/internal/tasks"
	"fknsrs.biz/p/clipcatalog/internal/youtube"
)

func init() {
	sorm.SetParameterPrefix("?")
}

var cfg = config.Config{
	LogLevel:          logrus.InfoLevel,
	LogDebugLevels:    config.LevelList{logrus.DebugLevel, logrus.TraceLevel},
	LogQueries:        config.LogQueries{Enabled: true, SlowerThan: time.Millisecond * 100},
	LogSORM:           false,
	MusicRoot:         "music",
	InputPath:         "input.json",
	MinClipsPath:      "min/clips.min.json",
	MinVideosPath:     "min/videos.min.json",
	ArtistsPath:       "artists.json",
	MetadataSource:    config.MetadataSourceAPI,
	CachePath:         "cache.db",
	CacheMaxAge:       time.Hour * 12,
	RequestInterval:   time.Millisecond * 200,
	RequestRetries:    3,
	DatabasePath:      "mirror.db",
	ListMaxTop:        500,
	ApplicationAddr:   ":8080",
	SyncWorkers:       4,
	BackgroundWorkers: 1,
}

func init() {
	for _, configPath := range []string{"config.toml", "config.yaml", "config.yml"} {
		if st, err := os.Stat(configPath); err == nil && st != nil && !st.IsDir() {
			cfg.Config = configPath
		}
	}
}

type simpleQueryLogger struct {
	logger logrus.FieldLogger
}

func (s *simpleQueryLogger) LogQuery(query string, args []interface{}) {
	fields := logrus.Fields{
		"db.query":      query,
		"db.args.count": len(args),
	}

	for i, e := range args {
		fields[fmt.Sprintf("db.args.%d", i)] = e
	}

	s.logger.WithFields(fields).Debug("sorm query start")
}

func (s *simpleQueryLogger) LogQueryAfter(query string, args []interface{}, duration time.Duration, err error) {
	fields := logrus.Fields{
		"db.query":      query,
		"db.duration":   duration,
		"db.error":      err,
		"db.args.count": len(args),
	}

	for i, e := range args {
		fields[fmt.Sprintf("db.args.%d", i)] = e
	}

	s.logger.WithFields(fields).Debug("sorm query finish")
}

func main() {
	root := &cobra.Command{
		Use:           "clipcatalog",
		Short:         "Maintain a catalog of song clips cut from YouTube streams",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		command("new", "Add the submissions in input_path to the catalog", runNew),
		command("update", "Rewrite every month file in canonical form and regenerate the min files", runUpdate),
		command("sync", "Refresh video attributes for sync_partitions, or every partition", runSync),
		command("min", "Regenerate the min files", runMin),
		command("validate", "Load the catalog and report every problem found", runValidate),
		command("stats", "Print clip and video statistics", runStats),
		command("serve", "Serve the catalog mirror as JSON and run background jobs", runServe),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", err)
		stop()
		os.Exit(1)
	}
}

// command wraps a subcommand so that its arguments go to configreader rather
// than cobra, keeping one set of option names for flags, files and the
// environment.
func command(use, short string, run func(ctx context.Context, p *pipeline.Pipeline) error) *cobra.Command {
	return &cobra.Command{
		Use:                use + " [OPTIONS]",
		Short:              short,
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, p, cleanup, err := setup(cmd.Context(), cmd.CommandPath(), args)
			if errors.Is(err, configreader.ErrHelp) {
				return nil
			} else if err != nil {
				return err
			}
			defer cleanup()

			done := ctxtimer.Stage(ctx, use)
			defer done()

			return run(ctx, p)
		},
	}
}

func setup(ctx context.Context, program string, args []string) (context.Context, *pipeline.Pipeline, func(), error) {
	if err := configreader.Read(program, args, os.Environ(), &cfg); err != nil {
		return nil, nil, nil, err
	}

	logger := logrus.New()

	logger.SetLevel(cfg.LogLevel)
	if len(cfg.LogDebugLevels) > 0 {
		logger.AddHook(logrusstackhook.New(cfg.LogDebugLevels))
	}

	logger.WithFields(logrus.Fields{
		"config.config":             cfg.Config,
		"config.log_level":          cfg.LogLevel,
		"config.log_debug_levels":   cfg.LogDebugLevels,
		"config.log_queries":        cfg.LogQueries,
		"config.log_sorm":           cfg.LogSORM,
		"config.music_root":         cfg.MusicRoot,
		"config.artists_path":       cfg.ArtistsPath,
		"config.youtube_api_key":    cfg.YouTubeAPIKey,
		"config.metadata_source":    cfg.MetadataSource,
		"config.cache_path":         cfg.CachePath,
		"config.database_path":      cfg.DatabasePath,
		"config.application_addr":   cfg.ApplicationAddr,
		"config.sync_workers":       cfg.SyncWorkers,
		"config.background_workers": cfg.BackgroundWorkers,
		"config.dry_run":            cfg.DryRun,
	}).Info("program starting")

	if cfg.LogSORM {
		sorm.SetQueryLogger(&simpleQueryLogger{logger})
	}

	ctx = ctxconfig.WithConfig(ctx, cfg)
	ctx = ctxclock.WithClock(ctx, ctxclock.NewRealClock())
	ctx = ctxlogger.WithLogger(ctx, logger)
	ctx = ctxtimer.WithTimer(ctx, nil)

	registry, err := catalog.LoadArtistRegistry(cfg.ArtistsPath)
	if err != nil {
		return nil, nil, nil, err
	}

	ctx = ctxregistry.WithRegistry(ctx, registry)

	httpClient, closeCache, err := ctxhttpclient.NewCaching(cfg.CachePath, cfg.CacheMaxAge, nil)
	if err != nil {
		return nil, nil, nil, err
	}

	ctx = ctxhttpclient.WithHTTPClient(ctx, httpClient)

	cleanup := func() {
		if err := closeCache(); err != nil {
			logger.WithError(err).Warn("could not close http cache")
		}
	}

	p := pipeline.New(pipeline.OptionsFromConfig(cfg), registry, youtube.New(cfg))

	return ctx, p, cleanup, nil
}

func runNew(ctx context.Context, p *pipeline.Pipeline) error {
	report, err := p.AddSubmissions(ctx, ctxconfig.GetConfig(ctx).InputPath)
	if err != nil {
		return err
	}

	fmt.Printf("added %d videos, extended %d videos, %d clips\n", len(report.Added), len(report.Extended), report.Clips)

	return nil
}

func runUpdate(ctx context.Context, p *pipeline.Pipeline) error {
	lib, err := p.Update(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("rewrote %d videos in %d partitions\n", lib.Len(), len(lib.Partitions()))

	return nil
}

func runSync(ctx context.Context, p *pipeline.Pipeline) error {
	keys, err := tasks.ParsePartitions(ctxconfig.GetConfig(ctx).SyncPartitions)
	if err != nil {
		return err
	}

	report, err := p.Sync(ctx, keys)
	if report != nil {
		fmt.Printf(
			"%d partitions, %d refreshed, %d changed, %d failed\n",
			len(report.Partitions), report.Refreshed, len(report.Changed), len(report.Failed),
		)
	}

	return err
}

func runMin(ctx context.Context, p *pipeline.Pipeline) error {
	return p.Min(ctx)
}

func runValidate(ctx context.Context, p *pipeline.Pipeline) error {
	return p.Validate(ctx, os.Stdout)
}

func runStats(ctx context.Context, p *pipeline.Pipeline) error {
	return p.Stats(ctx, os.Stdout)
}

func runServe(ctx context.Context, p *pipeline.Pipeline) error {
	c := ctxconfig.GetConfig(ctx)

	db, err := catalogdb.Open(ctx, c.DatabasePath, c.LogQueries)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx = ctxdb.WithDB(ctx, db)

	w := jobqueue.NewWorker(nil)
	if err := tasks.Register(w, p); err != nil {
		return err
	}

	ctx = ctxjobqueue.WithWorker(ctx, w)

	if err := ctxjobqueue.Enqueue(ctx, tasks.MirrorJob()); err != nil {
		return err
	}

	workers := []worker{
		{
			name: "application",
			run: func(ctx context.Context) error {
				return runApplicationWorker(ctx, c.ApplicationAddr)
			},
		},
	}

	for i := 0; i < c.BackgroundWorkers; i++ {
		workers = append(workers, worker{
			name: fmt.Sprintf("job_queue.%d", i),
			run: func(ctx context.Context) error {
				return runJobQueueWorker(ctx)
			},
		})
	}

	return runAllWorkers(ctx, workers)
}

type worker struct {
	name string
	run  func(ctx context.Context) error
}

// runAllWorkers restarts workers that return cleanly, and stops all of them
// when one fails or ctx is cancelled.
func runAllWorkers(ctx context.Context, workers []worker) error {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	done := make(chan error, len(workers))

	for id, w := range workers {
		go func(id int, w worker) {
			l := ctxlogger.GetLogger(ctx).WithFields(logrus.Fields{
				"worker.id":   id + 1,
				"worker.name": w.name,
			})

			ctx := ctxlogger.WithLogger(ctx, l)

			for {
				err := w.run(ctx)

				if ctx.Err() != nil {
					done <- nil
					return
				}

				if err != nil {
					l.WithError(err).Error("worker failed")

					err = fmt.Errorf("worker %d (%s) failed: %w", id+1, w.name, err)
					cancel(err)
					done <- err

					return
				}

				l.Info("worker restarted")

				select {
				case <-ctx.Done():
				case <-time.After(time.Second):
				}
			}
		}(id, w)
	}

	var errs []error
	for range workers {
		if err := <-done; err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func runApplicationWorker(ctx context.Context, addr string) error {
	l := ctxlogger.GetLogger(ctx)

	l.WithFields(logrus.Fields{
		"args.addr": addr,
	}).Info("running application worker")

	n := negroni.New()
	n.Use(negroni.NewRecovery())
	n.UseFunc(ctxlogger.Register(l))
	n.UseFunc(ctxtimer.Register(nil))
	n.UseFunc(ctxclock.Register(ctxclock.GetClock(ctx)))
	n.UseFunc(ctxconfig.Register(ctxconfig.GetConfig(ctx)))
	n.UseFunc(ctxdb.Register(ctxdb.GetDB(ctx)))
	n.UseFunc(ctxjobqueue.Register(ctxjobqueue.GetWorker(ctx)))
	n.UseFunc(ctxregistry.Register(ctxregistry.GetRegistry(ctx)))
	n.UseFunc(ctxtimer.AddLoggerHooks())
	n.UseFunc(ctxclock.AddLoggerHooks())
	n.UseFunc(ctxlogger.Log())
	n.UseHandler(handlers.NewRouter())

	s := &http.Server{
		Addr:              addr,
		Handler:           n,
		BaseContext:       func(l net.Listener) context.Context { return ctx },
		ReadHeaderTimeout: time.Second * 10,
	}

	errs := make(chan error, 1)
	go func() {
		l.Info("starting server")
		errs <- s.ListenAndServe()
	}()

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second*10)
		defer cancel()

		return s.Shutdown(shutdownCtx)
	}
}

func runJobQueueWorker(ctx context.Context) error {
	l := ctxlogger.GetLogger(ctx)

	l.Info("running job queue worker")

	w := ctxjobqueue.GetWorker(ctx)
	if w == nil {
		return fmt.Errorf("job queue worker not available in context")
	}

	return w.Run(ctx)
}
