package models

import (
	"fknsrs.biz/p/clipcatalog/internal/sqlbuilderutil"
	"fknsrs.biz/p/clipcatalog/internal/sqltypes"
)

var (
	ClipTable *sqlbuilderutil.Table
)

func init() {
	ClipTable = sqlbuilderutil.MustMakeTable(ClipRecord{})
}

type ClipRecord struct {
	ID              int                      `sql:",table:clips" json:"id"`
	UUID            string                   `json:"uuid"`
	VideoID         string                   `json:"videoId"`
	SongTitle       string                   `json:"songTitle"`
	Artists         sqltypes.JSONStringSlice `json:"artists"`
	ExternalArtists sqltypes.JSONStringSlice `json:"externalArtists,omitempty"`
	IsClipped       bool                     `json:"isClipped"`
	StartTimeSecs   int                      `json:"startTimeSecs"`
	EndTimeSecs     int                      `json:"endTimeSecs"`
	ClipTags        sqltypes.JSONStringSlice `json:"clipTags,omitempty"`
	VolumePercent   *int                     `json:"volumePercent,omitempty"`
}
