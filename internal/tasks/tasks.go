// Package tasks holds the job queue functions that serve mode runs in the
// background.
package tasks

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"

	"fknsrs.biz/p/clipcatalog/internal/catalog"
	"fknsrs.biz/p/clipcatalog/internal/catalogdb"
	"fknsrs.biz/p/clipcatalog/internal/ctxdb"
	"fknsrs.biz/p/clipcatalog/internal/ctxlogger"
	"fknsrs.biz/p/clipcatalog/internal/jobqueue"
	"fknsrs.biz/p/clipcatalog/internal/pipeline"
	"fknsrs.biz/p/clipcatalog/internal/queuenames"
)

// ParsePartitions reads a comma separated list of YYYY-MM partition keys.
// An empty string or "all" means every partition and returns nil.
func ParsePartitions(s string) ([]catalog.PartitionKey, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "all" {
		return nil, nil
	}

	var keys []catalog.PartitionKey
	for _, e := range strings.Split(s, ",") {
		if e = strings.TrimSpace(e); e == "" {
			continue
		}

		k, err := catalog.ParsePartitionKey(e)
		if err != nil {
			return nil, fmt.Errorf("tasks.ParsePartitions: %w", err)
		}

		keys = append(keys, k)
	}

	return keys, nil
}

func SyncPayload(keys []catalog.PartitionKey, mirror bool) string {
	target := "all"
	if len(keys) > 0 {
		a := make([]string, len(keys))
		for i, k := range keys {
			a[i] = fmt.Sprintf("%04d-%02d", k.Year, int(k.Month))
		}
		target = strings.Join(a, ",")
	}

	var params url.Values
	if !mirror {
		params = url.Values{"mirror": {"false"}}
	}

	return jobqueue.FormatPayload(target, params)
}

func ParseSyncPayload(payload string) ([]catalog.PartitionKey, bool, error) {
	target, params, err := jobqueue.ParsePayload(payload)
	if err != nil {
		return nil, false, fmt.Errorf("tasks.ParseSyncPayload: %w", err)
	}

	keys, err := ParsePartitions(target)
	if err != nil {
		return nil, false, fmt.Errorf("tasks.ParseSyncPayload: %w", err)
	}

	return keys, params.Get("mirror") != "false", nil
}

func MirrorJob() *jobqueue.Job {
	return &jobqueue.Job{QueueName: queuenames.LibraryMirror, Payload: "all"}
}

func Register(w *jobqueue.Worker, p *pipeline.Pipeline) error {
	if err := w.RegisterAll(map[string]jobqueue.WorkerFunction{
		queuenames.LibrarySync:   LibrarySync(p),
		queuenames.LibraryMirror: LibraryMirror(p),
	}); err != nil {
		return fmt.Errorf("tasks.Register: %w", err)
	}

	w.SetPriority(queuenames.Priority)

	return nil
}

// LibrarySync refreshes the requested partitions and then queues a mirror
// rebuild unless the payload asks not to. A sync that partly fails still
// queues the rebuild, since whatever succeeded has been saved.
func LibrarySync(p *pipeline.Pipeline) jobqueue.WorkerFunction {
	return func(ctx context.Context, w *jobqueue.Worker, j *jobqueue.Job) (string, error) {
		keys, mirror, err := ParseSyncPayload(j.Payload)
		if err != nil {
			return "", err
		}

		report, syncErr := p.Sync(ctx, keys)
		if report == nil {
			return "", syncErr
		}

		ctxlogger.GetLogger(ctx).WithFields(logrus.Fields{
			"sync.partitions": len(report.Partitions),
			"sync.refreshed":  report.Refreshed,
			"sync.changed":    len(report.Changed),
			"sync.failed":     len(report.Failed),
		}).Info("tasks: library sync finished")

		if mirror {
			if err := ctxdb.UsingTx(ctx, nil, func(ctx context.Context, tx *sql.Tx) error {
				return w.Add(ctx, tx, MirrorJob())
			}); err != nil {
				return summary(report), fmt.Errorf("could not queue mirror rebuild: %w", err)
			}
		}

		return summary(report), syncErr
	}
}

func summary(r *pipeline.SyncReport) string {
	return fmt.Sprintf(
		"%d partitions, %d refreshed, %d changed, %d failed",
		len(r.Partitions), r.Refreshed, len(r.Changed), len(r.Failed),
	)
}

// LibraryMirror reloads the music root and replaces the mirror tables with
// it.
func LibraryMirror(p *pipeline.Pipeline) jobqueue.WorkerFunction {
	return func(ctx context.Context, w *jobqueue.Worker, j *jobqueue.Job) (string, error) {
		lib, err := p.Load(ctx)
		if err != nil {
			return "", err
		}

		if err := catalogdb.Replace(ctx, lib); err != nil {
			return "", err
		}

		return fmt.Sprintf("%d videos in %d partitions", lib.Len(), len(lib.Partitions())), nil
	}
}
