package models

import (
	"database/sql"
	"time"

	"fknsrs.biz/p/clipcatalog/internal/sqlbuilderutil"
	"fknsrs.biz/p/clipcatalog/internal/sqltypes"
)

var (
	ClipSearchTable *sqlbuilderutil.Table
)

func init() {
	ClipSearchTable = sqlbuilderutil.MustMakeTable(ClipSearch{})
}

// ClipSearch is a row of the clip_search view, which joins each clip to the
// video it was cut from.
type ClipSearch struct {
	ClipID             int                      `sql:",table:clip_search" json:"clipId"`
	ClipUUID           string                   `json:"clipUuid"`
	ClipSongTitle      string                   `json:"clipSongTitle"`
	ClipArtists        sqltypes.JSONStringSlice `json:"clipArtists"`
	ClipIsClipped      bool                     `json:"clipIsClipped"`
	ClipStartTimeSecs  int                      `json:"clipStartTimeSecs"`
	ClipEndTimeSecs    int                      `json:"clipEndTimeSecs"`
	ClipTags           sqltypes.JSONStringSlice `json:"clipTags"`
	VideoID            string                   `json:"videoId"`
	VideoTitle         string                   `json:"videoTitle"`
	VideoChannelID     string                   `json:"videoChannelId"`
	VideoPublishedAt   time.Time                `json:"videoPublishedAt"`
	VideoPrivacyStatus string                   `json:"videoPrivacyStatus"`
}

// the view loses the declared column types, so timestamps arrive as text
func (s *ClipSearch) OverrideScan(names []string, scanners []sql.Scanner) error {
	for i, name := range names {
		switch name {
		case "VideoPublishedAt":
			scanners[i] = &sqltypes.TimeScanner{Value: &s.VideoPublishedAt}
		}
	}

	return nil
}
