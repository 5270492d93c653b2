package stringutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

var caseConversionTests = []struct {
	pascalCase string
	snakeCase  string
}{
	{"ID", "id"},
	{"VideoID", "video_id"},
	{"Title", "title"},
	{"ChannelID", "channel_id"},
	{"PublishedAt", "published_at"},
	{"SyncedAt", "synced_at"},
	{"DurationSeconds", "duration_seconds"},
	{"PrivacyStatus", "privacy_status"},
	{"SongTitle", "song_title"},
	{"StartSeconds", "start_seconds"},
	{"VolumePercent", "volume_percent"},
	{"QueueName", "queue_name"},
	{"RunAfter", "run_after"},
	{"AttemptsRemaining", "attempts_remaining"},
	{"ReservedUntil", "reserved_until"},
	{"HTTPCachePath", "http_cache_path"},
	{"YouTubeAPIKey", "you_tube_api_key"},
	{"Mp3", "mp3"},
	{"Top10Items", "top10_items"},
	{"ÉtatCivil", "état_civil"},
}

func TestPascalToSnake(t *testing.T) {
	for _, tc := range caseConversionTests {
		t.Run(tc.pascalCase, func(t *testing.T) {
			a := assert.New(t)
			a.Equal(tc.snakeCase, PascalToSnake(tc.pascalCase))
		})
	}
}

func BenchmarkPascalToSnake(b *testing.B) {
	for _, tc := range caseConversionTests {
		b.Run(tc.pascalCase, func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				PascalToSnake(tc.pascalCase)
			}
		})
	}
}

func TestLooksTrue(t *testing.T) {
	a := assert.New(t)

	for _, s := range []string{"true", "TRUE", "yes", "1", "on"} {
		a.True(LooksTrue(s), s)
	}
	for _, s := range []string{"false", "0", "", "nope"} {
		a.False(LooksTrue(s), s)
	}
}

var normalizeTextTests = []struct {
	name   string
	input  string
	output string
}{
	{"plain", "Brave Shine", "Brave Shine"},
	{"surrounding space", "  Brave Shine\t", "Brave Shine"},
	{"combining voiced mark", "\u304b\u3099", "\u304c"},
	{"already composed", "\u304c", "\u304c"},
	{"only space", "   ", ""},
}

func TestNormalizeText(t *testing.T) {
	for _, tc := range normalizeTextTests {
		t.Run(tc.name, func(t *testing.T) {
			a := assert.New(t)
			a.Equal(tc.output, NormalizeText(tc.input))
		})
	}
}

var snakeToCamelTests = []struct{ in, out string }{
	{"id", "id"},
	{"published_at", "publishedAt"},
	{"start_time_secs", "startTimeSecs"},
	{"video_id", "videoId"},
	{"_leading", "leading"},
	{"", ""},
}

func TestSnakeToCamel(t *testing.T) {
	for _, tc := range snakeToCamelTests {
		t.Run(tc.in, func(t *testing.T) {
			a := assert.New(t)

			a.Equal(tc.out, SnakeToCamel(tc.in))
		})
	}
}
