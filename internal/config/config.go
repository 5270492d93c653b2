package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

type LevelList []logrus.Level

func (a LevelList) MarshalText() ([]byte, error) {
	if len(a) == 0 {
		return []byte("-"), nil
	}

	s := make([]string, len(a))
	for i, e := range a {
		s[i] = e.String()
	}

	return []byte(strings.Join(s, ",")), nil
}

func (a *LevelList) UnmarshalText(d []byte) error {
	if string(d) == "" || string(d) == "-" {
		*a = LevelList{}
		return nil
	}

	var aa LevelList

	for _, e := range strings.Split(string(d), ",") {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}

		l, err := logrus.ParseLevel(e)
		if err != nil {
			return fmt.Errorf("config.LevelList.UnmarshalText: could not parse value as logrus level: %w", err)
		}

		aa = append(aa, l)
	}

	*a = aa

	return nil
}

type LogQueries struct {
	Enabled    bool
	SlowerThan time.Duration
}

func (l LogQueries) String() string {
	if l.Enabled {
		if l.SlowerThan != 0 {
			return ">" + l.SlowerThan.String()
		}

		return "all"
	}

	return "none"
}

func (l LogQueries) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

func (l *LogQueries) UnmarshalText(d []byte) error {
	s := string(d)

	switch s {
	case "all":
		l.Enabled = true
		l.SlowerThan = 0
		return nil
	case "", "none":
		l.Enabled = false
		l.SlowerThan = 0
		return nil
	default:
		if s[0] == '>' && len(s) > 1 {
			d, err := time.ParseDuration(s[1:])
			if err != nil {
				return fmt.Errorf("config.LogQueries.UnmarshalText: could not parse value as duration: %w", err)
			}
			l.Enabled = true
			l.SlowerThan = d
			return nil
		}

		return fmt.Errorf("config.LogQueries.UnmarshalText: unrecognised input %q; valid options are none, all, or >x where x is a duration", s)
	}
}

func (l *LogQueries) IsZero() bool {
	return !l.Enabled && l.SlowerThan == 0
}

// Secret holds a credential. It prints as a fixed mask so it can be logged
// alongside the rest of the configuration; Value returns the real thing.
type Secret struct {
	value string
}

func NewSecret(s string) Secret { return Secret{value: s} }

func (s Secret) Value() string { return s.value }

func (s Secret) IsZero() bool { return s.value == "" }

func (s Secret) String() string {
	if s.value == "" {
		return ""
	}

	return "********"
}

func (s Secret) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Secret) UnmarshalText(d []byte) error {
	s.value = strings.TrimSpace(string(d))
	return nil
}

type MetadataSource string

const (
	MetadataSourceAPI    MetadataSource = "api"
	MetadataSourceScrape MetadataSource = "scrape"
)

func (m MetadataSource) MarshalText() ([]byte, error) {
	return []byte(m), nil
}

func (m *MetadataSource) UnmarshalText(d []byte) error {
	switch v := MetadataSource(strings.ToLower(string(d))); v {
	case MetadataSourceAPI, MetadataSourceScrape:
		*m = v
		return nil
	default:
		return fmt.Errorf("config.MetadataSource.UnmarshalText: unrecognised input %q; valid options are api or scrape", string(d))
	}
}

type Config struct {
	Config            string         `name:"config" toml:"config" yaml:"config" help:"Config file location."`
	LogLevel          logrus.Level   `name:"log_level" toml:"log_level" yaml:"log_level" help:"Global log level."`
	LogDebugLevels    LevelList      `name:"log_debug_levels" toml:"log_debug_levels" yaml:"log_debug_levels" help:"Which log levels to include stack data on."`
	LogQueries        LogQueries     `name:"log_queries" toml:"log_queries" yaml:"log_queries" help:"Log SQL queries against the mirror database."`
	LogSORM           bool           `name:"log_sorm" toml:"log_sorm" yaml:"log_sorm" help:"Log every query built by sorm."`
	MusicRoot         string         `name:"music_root" toml:"music_root" yaml:"music_root" help:"Directory holding the year/month catalog files."`
	InputPath         string         `name:"input_path" toml:"input_path" yaml:"input_path" help:"Submission file read by the new command."`
	MinClipsPath      string         `name:"min_clips_path" toml:"min_clips_path" yaml:"min_clips_path" help:"Output path for the minified clip index."`
	MinVideosPath     string         `name:"min_videos_path" toml:"min_videos_path" yaml:"min_videos_path" help:"Output path for the minified video index."`
	ArtistsPath       string         `name:"artists_path" env:"artist_set_path" toml:"artists_path" yaml:"artists_path" help:"Artist registry file."`
	YouTubeAPIKey     Secret         `name:"youtube_api_key" toml:"youtube_api_key" yaml:"youtube_api_key" help:"YouTube Data API key."`
	MetadataSource    MetadataSource `name:"metadata_source" toml:"metadata_source" yaml:"metadata_source" help:"Where to fetch video metadata from: api or scrape."`
	CachePath         string         `name:"cache_path" toml:"cache_path" yaml:"cache_path" help:"Location for HTTP client cache. Empty disables caching."`
	CacheMaxAge       time.Duration  `name:"cache_max_age" toml:"cache_max_age" yaml:"cache_max_age" help:"How long cached HTTP responses stay fresh."`
	RequestInterval   time.Duration  `name:"request_interval" toml:"request_interval" yaml:"request_interval" help:"Minimum time between metadata requests."`
	RequestRetries    int            `name:"request_retries" toml:"request_retries" yaml:"request_retries" help:"How many times to retry a failed metadata request."`
	DatabasePath      string         `name:"database_path" toml:"database_path" yaml:"database_path" help:"Mirror database location for serve mode."`
	ListMaxTop        int            `name:"list_max_top" toml:"list_max_top" yaml:"list_max_top" help:"Largest $top a listing endpoint will honour."`
	ApplicationAddr   string         `name:"application_addr" toml:"application_addr" yaml:"application_addr" help:"Address to listen on for serve mode."`
	SyncPartitions    string         `name:"sync_partitions" toml:"sync_partitions" yaml:"sync_partitions" help:"Comma separated YYYY-MM partitions for the sync command; empty means all."`
	SyncWorkers       int            `name:"sync_workers" toml:"sync_workers" yaml:"sync_workers" help:"How many videos to refresh concurrently during sync."`
	BackgroundWorkers int            `name:"background_workers" toml:"background_workers" yaml:"background_workers" help:"How many job queue workers to run in serve mode."`
	DryRun            bool           `name:"dry_run" toml:"dry_run" yaml:"dry_run" help:"Validate and report without writing any files."`
}
