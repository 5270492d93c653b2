package catalog

import (
	"fknsrs.biz/p/clipcatalog/internal/ytutil"
)

// VideoID is an 11 character YouTube video id.
type VideoID string

func ParseVideoID(s string) (VideoID, error) {
	if !ytutil.ValidVideoID(s) {
		return "", &ParseError{Kind: "video id", Input: s, Reason: "expected 11 characters of [0-9A-Za-z_-]"}
	}

	return VideoID(s), nil
}

// ParseVideoIDOrURL also accepts the url forms understood by ytutil.
func ParseVideoIDOrURL(s string) (VideoID, error) {
	id, err := ytutil.ExtractVideoID(s)
	if err != nil {
		return "", &ParseError{Kind: "video id", Input: s, Reason: err.Error()}
	}

	return VideoID(id), nil
}

func (id *VideoID) UnmarshalText(b []byte) error {
	v, err := ParseVideoID(string(b))
	if err != nil {
		return err
	}

	*id = v

	return nil
}

func (id VideoID) String() string { return string(id) }

// ChannelID is a YouTube channel id: "UC" followed by 22 characters.
type ChannelID string

func ParseChannelID(s string) (ChannelID, error) {
	if !ytutil.ValidChannelID(s) {
		return "", &ParseError{Kind: "channel id", Input: s, Reason: `expected "UC" followed by 22 characters of [0-9A-Za-z_-]`}
	}

	return ChannelID(s), nil
}

func (id *ChannelID) UnmarshalText(b []byte) error {
	v, err := ParseChannelID(string(b))
	if err != nil {
		return err
	}

	*id = v

	return nil
}

func (id ChannelID) String() string { return string(id) }
