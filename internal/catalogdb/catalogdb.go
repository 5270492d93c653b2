// Package catalogdb mirrors the file based catalog into sqlite so serve mode
// can filter and page through it.
package catalogdb

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"

	"fknsrs.biz/p/sorm"
	"github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"

	"fknsrs.biz/p/clipcatalog/internal/catalog"
	"fknsrs.biz/p/clipcatalog/internal/config"
	"fknsrs.biz/p/clipcatalog/internal/ctxdb"
	"fknsrs.biz/p/clipcatalog/internal/ctxlogger"
	"fknsrs.biz/p/clipcatalog/internal/sqlitelogger"
	"fknsrs.biz/p/clipcatalog/models"
)

func init() {
	sorm.SetParameterPrefix("?")
}

const schema = `
create table if not exists videos (
  id integer primary key autoincrement,
  video_id text not null unique,
  title text not null,
  channel_id text not null,
  uploader_name text not null default '',
  published_at datetime not null,
  synced_at datetime not null,
  duration_secs integer not null,
  privacy_status text not null,
  embeddable boolean not null,
  video_tags text not null default '[]',
  artists text not null default '[]',
  clip_count integer not null default 0
);

create table if not exists clips (
  id integer primary key autoincrement,
  uuid text not null unique,
  video_id text not null references videos (video_id) on delete cascade,
  song_title text not null,
  artists text not null default '[]',
  external_artists text not null default '[]',
  is_clipped boolean not null,
  start_time_secs integer not null,
  end_time_secs integer not null,
  clip_tags text not null default '[]',
  volume_percent integer
);

create index if not exists clips_video_id on clips (video_id);

create table if not exists jobs (
  id integer primary key autoincrement,
  created_at datetime not null,
  queue_name text not null,
  payload text not null,
  run_after datetime not null,
  failure_delay integer not null,
  attempts_remaining integer not null,
  reserved_at datetime,
  reserved_until datetime,
  finished_at datetime,
  error_messages text not null default '[]',
  output_messages text not null default '[]'
);

create index if not exists jobs_pending on jobs (queue_name, run_after) where finished_at is null;

create view if not exists clip_search as
select
  c.id as clip_id,
  c.uuid as clip_uuid,
  c.song_title as clip_song_title,
  c.artists as clip_artists,
  c.is_clipped as clip_is_clipped,
  c.start_time_secs as clip_start_time_secs,
  c.end_time_secs as clip_end_time_secs,
  c.clip_tags as clip_tags,
  v.video_id as video_id,
  v.title as video_title,
  v.channel_id as video_channel_id,
  v.published_at as video_published_at,
  v.privacy_status as video_privacy_status
from clips c
inner join videos v on v.video_id = c.video_id;
`

const (
	driverName       = "sqlite3"
	loggedDriverName = "sqlite3:logged"
)

var registerLogged sync.Once

// Driver returns the database/sql driver name to open the mirror with. When
// query logging is enabled the sqlite driver is wrapped by sqlitelogger.
func Driver(logQueries config.LogQueries) string {
	if logQueries.IsZero() {
		return driverName
	}

	registerLogged.Do(func() {
		sql.Register(loggedDriverName, sqlitelogger.New(
			loggedDriverName,
			&sqlite3.SQLiteDriver{},
			&sqlitelogger.BasicFilter{
				LogSlowerThan: logQueries.SlowerThan,
				IgnorePackageStackFrames: []string{
					// standard library
					"database/sql",
					"net/http",
					"runtime",
					// libraries
					"fknsrs.biz/p/sorm",
					"github.com/gorilla/mux",
					"github.com/shogo82148/go-sql-proxy",
					"github.com/urfave/negroni/v2",
					// middleware
					"fknsrs.biz/p/clipcatalog/internal/ctxclock",
					"fknsrs.biz/p/clipcatalog/internal/ctxdb",
					"fknsrs.biz/p/clipcatalog/internal/ctxjobqueue",
					"fknsrs.biz/p/clipcatalog/internal/ctxlogger",
					"fknsrs.biz/p/clipcatalog/internal/ctxtimer",
					"fknsrs.biz/p/clipcatalog/internal/sqlitelogger",
				},
				IgnoreFunctionQueries: []string{
					"fknsrs.biz/p/clipcatalog/internal/jobqueue.(*Worker).Run",
				},
			},
		))
	})

	return loggedDriverName
}

// Open opens the mirror database at path and brings its schema up to date.
func Open(ctx context.Context, path string, logQueries config.LogQueries) (*sql.DB, error) {
	db, err := sql.Open(Driver(logQueries), path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("catalogdb.Open: %w", err)
	}

	if err := Migrate(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("catalogdb.Open: %w", err)
	}

	return db, nil
}

func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("catalogdb.Migrate: %w", err)
	}

	return nil
}

// Replace swaps the mirrored videos and clips for the contents of lib in a
// single transaction. Jobs are left alone.
func Replace(ctx context.Context, lib *catalog.Library) error {
	videos, clips := Records(lib)

	if err := ctxdb.UsingTx(ctx, nil, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "delete from clips"); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "delete from videos"); err != nil {
			return err
		}

		for i := range videos {
			if err := sorm.CreateRecord(ctx, tx, &videos[i]); err != nil {
				return fmt.Errorf("video %s: %w", videos[i].VideoID, err)
			}
		}

		for i := range clips {
			if err := sorm.CreateRecord(ctx, tx, &clips[i]); err != nil {
				return fmt.Errorf("clip %s: %w", clips[i].UUID, err)
			}
		}

		return nil
	}); err != nil {
		return fmt.Errorf("catalogdb.Replace: %w", err)
	}

	ctxlogger.GetLogger(ctx).WithFields(logrus.Fields{
		"mirror.videos": len(videos),
		"mirror.clips":  len(clips),
	}).Info("catalogdb: mirror replaced")

	return nil
}

// Records converts the library into rows, videos by publish time and clips
// by uuid.
func Records(lib *catalog.Library) ([]models.VideoRecord, []models.ClipRecord) {
	flatVideos := catalog.FlatVideos(lib)
	flatClips := catalog.FlatClips(lib)

	videos := make([]models.VideoRecord, 0, len(flatVideos))
	for _, v := range lib.Videos() {
		f := flatVideos[v.ID()]

		videos = append(videos, models.VideoRecord{
			VideoID:       string(v.ID()),
			Title:         f.Title,
			ChannelID:     string(f.ChannelID),
			UploaderName:  f.UploaderName,
			PublishedAt:   f.PublishedAt,
			SyncedAt:      f.SyncedAt,
			DurationSecs:  int(f.DurationSecs),
			PrivacyStatus: string(f.PrivacyStatus),
			Embeddable:    f.Embeddable,
			VideoTags:     f.VideoTags,
			Artists:       f.Artists,
			ClipCount:     len(f.ClipUUIDs),
		})
	}

	uuids := make([]string, 0, len(flatClips))
	for id := range flatClips {
		uuids = append(uuids, id)
	}
	sort.Strings(uuids)

	clips := make([]models.ClipRecord, len(uuids))
	for i, id := range uuids {
		f := flatClips[id]

		clips[i] = models.ClipRecord{
			UUID:            id,
			VideoID:         string(f.VideoID),
			SongTitle:       f.SongTitle,
			Artists:         f.Artists,
			ExternalArtists: f.ExternalArtists,
			IsClipped:       f.IsClipped,
			StartTimeSecs:   int(f.StartTimeSecs),
			EndTimeSecs:     int(f.EndTimeSecs),
			ClipTags:        f.ClipTags,
			VolumePercent:   f.VolumePercent,
		}
	}

	return videos, clips
}
