package models

import (
	"time"

	"fknsrs.biz/p/clipcatalog/internal/sqlbuilderutil"
	"fknsrs.biz/p/clipcatalog/internal/sqltypes"
)

var (
	VideoTable *sqlbuilderutil.Table
)

func init() {
	VideoTable = sqlbuilderutil.MustMakeTable(VideoRecord{})
}

type VideoRecord struct {
	ID            int                      `sql:",table:videos" json:"id"`
	VideoID       string                   `json:"videoId"`
	Title         string                   `json:"title"`
	ChannelID     string                   `json:"channelId"`
	UploaderName  string                   `json:"uploaderName,omitempty"`
	PublishedAt   time.Time                `json:"publishedAt"`
	SyncedAt      time.Time                `json:"syncedAt"`
	DurationSecs  int                      `json:"durationSecs"`
	PrivacyStatus string                   `json:"privacyStatus"`
	Embeddable    bool                     `json:"embeddable"`
	VideoTags     sqltypes.JSONStringSlice `json:"videoTags"`
	Artists       sqltypes.JSONStringSlice `json:"artists"`
	ClipCount     int                      `json:"clipCount"`
}
