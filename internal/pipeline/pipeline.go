// Package pipeline implements the catalog maintenance commands on top of the
// music root, the metadata provider and the refresh pool.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/sirupsen/logrus"

	"fknsrs.biz/p/clipcatalog/internal/catalog"
	"fknsrs.biz/p/clipcatalog/internal/config"
	"fknsrs.biz/p/clipcatalog/internal/ctxlogger"
	"fknsrs.biz/p/clipcatalog/internal/ctxtimer"
	"fknsrs.biz/p/clipcatalog/internal/musicfile"
	"fknsrs.biz/p/clipcatalog/internal/refresh"
	"fknsrs.biz/p/clipcatalog/internal/youtube"
)

type Options struct {
	MusicRoot     string
	MinClipsPath  string
	MinVideosPath string
	Workers       int
	DryRun        bool
}

func OptionsFromConfig(cfg config.Config) Options {
	return Options{
		MusicRoot:     cfg.MusicRoot,
		MinClipsPath:  cfg.MinClipsPath,
		MinVideosPath: cfg.MinVideosPath,
		Workers:       cfg.SyncWorkers,
		DryRun:        cfg.DryRun,
	}
}

type Pipeline struct {
	opts     Options
	registry *catalog.ArtistRegistry
	provider youtube.Provider
}

func New(opts Options, registry *catalog.ArtistRegistry, provider youtube.Provider) *Pipeline {
	return &Pipeline{opts: opts, registry: registry, provider: provider}
}

// Load reads the whole library. A music root that does not exist yet is an
// empty library.
func (p *Pipeline) Load(ctx context.Context) (*catalog.Library, error) {
	defer ctxtimer.Stage(ctx, "load")()

	if _, err := os.Stat(p.opts.MusicRoot); errors.Is(err, os.ErrNotExist) {
		ctxlogger.GetLogger(ctx).WithField("music_root", p.opts.MusicRoot).Info("pipeline: music root does not exist, starting empty")
		return catalog.NewLibrary(), nil
	}

	lib, err := musicfile.Load(ctx, p.opts.MusicRoot, p.registry)
	if err != nil {
		return nil, fmt.Errorf("pipeline.Load: %w", err)
	}

	return lib, nil
}

func (p *Pipeline) save(ctx context.Context, lib *catalog.Library, keys []catalog.PartitionKey) error {
	l := ctxlogger.GetLogger(ctx)

	if p.opts.DryRun {
		l.WithField("partitions", len(keys)).Info("pipeline: dry run, not writing month files")
		return nil
	}

	defer ctxtimer.Stage(ctx, "save")()

	if keys == nil {
		return musicfile.Save(ctx, p.opts.MusicRoot, lib)
	}

	if len(keys) == 0 {
		return nil
	}

	return musicfile.SavePartitions(ctx, p.opts.MusicRoot, lib, keys)
}

func (p *Pipeline) writeMin(ctx context.Context, lib *catalog.Library) error {
	if p.opts.DryRun {
		ctxlogger.GetLogger(ctx).Info("pipeline: dry run, not writing min files")
		return nil
	}

	defer ctxtimer.Stage(ctx, "min")()

	return musicfile.WriteMinFiles(ctx, lib, p.opts.MinClipsPath, p.opts.MinVideosPath)
}

type AddReport struct {
	Added    []catalog.VideoID
	Extended []catalog.VideoID
	Clips    int
}

// AddSubmissions verifies every submission in the file at path and adds it
// to the library. A submission for a video that is already catalogued adds
// its clips to that video. Nothing is written unless every submission is
// valid.
func (p *Pipeline) AddSubmissions(ctx context.Context, path string) (*AddReport, error) {
	l := ctxlogger.GetLogger(ctx)

	subs, err := musicfile.ReadSubmissions(path, p.registry)
	if err != nil {
		return nil, fmt.Errorf("pipeline.AddSubmissions: %w", err)
	}

	lib, err := p.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("pipeline.AddSubmissions: %w", err)
	}

	var fresh []catalog.VideoID
	for _, s := range subs {
		if !lib.Has(s.VideoID()) {
			fresh = append(fresh, s.VideoID())
		}
	}

	var (
		res  youtube.Result
		errs []error
	)

	if len(fresh) > 0 {
		done := ctxtimer.Stage(ctx, "fetch")
		r, err := p.provider.Fetch(ctx, fresh)
		done()
		if err != nil {
			if r == nil {
				return nil, fmt.Errorf("pipeline.AddSubmissions: %w", err)
			}

			errs = append(errs, err)
		}

		res = r
	}

	if missing := res.Missing(); len(missing) > 0 {
		errs = append(errs, &catalog.MissingMetadataError{IDs: missing})
	}

	var (
		report  AddReport
		touched = make(map[catalog.PartitionKey]bool)
		videos  []*catalog.Video
	)

	for _, s := range subs {
		if existing, ok := lib.Get(s.VideoID()); ok {
			v, err := existing.WithClips(s.Drafts)
			if err != nil {
				errs = append(errs, &catalog.VideoError{VideoID: s.VideoID(), Err: err})
				continue
			}

			videos = append(videos, v)
			report.Extended = append(report.Extended, v.ID())
			report.Clips += len(s.Drafts)
			continue
		}

		attrs := res[s.VideoID()]
		if attrs == nil {
			continue
		}

		v, err := catalog.NewVideo(*attrs, s.Local, s.Drafts)
		if err != nil {
			errs = append(errs, &catalog.VideoError{VideoID: s.VideoID(), Err: err})
			continue
		}

		videos = append(videos, v)
		report.Added = append(report.Added, v.ID())
		report.Clips += len(s.Drafts)
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("pipeline.AddSubmissions: %w", errors.Join(errs...))
	}

	for _, v := range videos {
		lib.Insert(v)
		touched[v.Partition()] = true
	}

	if err := p.save(ctx, lib, sortedKeys(touched)); err != nil {
		return nil, fmt.Errorf("pipeline.AddSubmissions: %w", err)
	}

	if err := p.writeMin(ctx, lib); err != nil {
		return nil, fmt.Errorf("pipeline.AddSubmissions: %w", err)
	}

	l.WithFields(logrus.Fields{
		"videos.added":    len(report.Added),
		"videos.extended": len(report.Extended),
		"clips.added":     report.Clips,
	}).Info("pipeline: added submissions")

	return &report, nil
}

// Update loads and rewrites the whole library, which puts every file in
// canonical order, then regenerates the min files.
func (p *Pipeline) Update(ctx context.Context) (*catalog.Library, error) {
	lib, err := p.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("pipeline.Update: %w", err)
	}

	if err := p.save(ctx, lib, nil); err != nil {
		return nil, fmt.Errorf("pipeline.Update: %w", err)
	}

	if err := p.writeMin(ctx, lib); err != nil {
		return nil, fmt.Errorf("pipeline.Update: %w", err)
	}

	return lib, nil
}

// Min regenerates only the min files.
func (p *Pipeline) Min(ctx context.Context) error {
	lib, err := p.Load(ctx)
	if err != nil {
		return fmt.Errorf("pipeline.Min: %w", err)
	}

	if err := p.writeMin(ctx, lib); err != nil {
		return fmt.Errorf("pipeline.Min: %w", err)
	}

	return nil
}

type SyncReport struct {
	Partitions []catalog.PartitionKey
	Refreshed  int
	Changed    []catalog.VideoID
	Failed     []catalog.VideoID
}

// Sync fetches fresh attributes for the videos in the given partitions, or
// in every partition when keys is empty, and re-verifies them. Videos that
// fail keep their stored data; their errors are returned together after the
// successful ones have been saved.
func (p *Pipeline) Sync(ctx context.Context, keys []catalog.PartitionKey) (*SyncReport, error) {
	lib, err := p.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("pipeline.Sync: %w", err)
	}

	var partitions []*catalog.Partition
	if len(keys) == 0 {
		partitions = lib.Partitions()
	} else {
		for _, k := range keys {
			if part, ok := lib.Partition(k); ok {
				partitions = append(partitions, part)
			}
		}
	}

	var (
		report  SyncReport
		errs    []error
		touched = make(map[catalog.PartitionKey]bool)
	)

	for _, part := range partitions {
		l := ctxlogger.GetLogger(ctx).WithField("partition.key", part.Key().String())

		done := ctxtimer.Stage(ctx, "sync "+part.Key().String())

		res, err := p.provider.Fetch(ctx, part.IDs())
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", part.Key(), err))
			if res == nil {
				done()
				continue
			}
		}

		outcomes := refresh.Run(ctx, p.opts.Workers, part.Videos(), res)

		for _, o := range outcomes {
			if o.Err != nil {
				report.Failed = append(report.Failed, o.ID)
				errs = append(errs, o.Err)
				continue
			}

			lib.Insert(o.Video)
			touched[o.Video.Partition()] = true
			report.Refreshed++

			if o.Changed {
				report.Changed = append(report.Changed, o.ID)
				l.WithField("video.id", o.ID).Info("pipeline: video attributes changed")
			}
		}

		report.Partitions = append(report.Partitions, part.Key())

		done()
	}

	if err := p.save(ctx, lib, sortedKeys(touched)); err != nil {
		errs = append(errs, err)
	} else if len(touched) > 0 {
		if err := p.writeMin(ctx, lib); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return &report, fmt.Errorf("pipeline.Sync: %w", errors.Join(errs...))
	}

	return &report, nil
}

func sortedKeys(m map[catalog.PartitionKey]bool) []catalog.PartitionKey {
	keys := make([]catalog.PartitionKey, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })

	return keys
}
