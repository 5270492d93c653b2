package catalog

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
)

// DefaultArtistsPath is used when neither the configuration nor the
// ARTIST_SET_PATH environment variable name a registry file.
const DefaultArtistsPath = "./data/artists_data.json"

type Color [3]byte

func (c *Color) UnmarshalText(b []byte) error {
	if len(b) != 6 {
		return &ParseError{Kind: "color", Input: string(b), Reason: "expected 6 hex digits"}
	}

	if _, err := hex.Decode(c[:], b); err != nil {
		return &ParseError{Kind: "color", Input: string(b), Reason: err.Error()}
	}

	return nil
}

func (c Color) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c Color) String() string { return hex.EncodeToString(c[:]) }

type Artist struct {
	ID          string    `json:"-"`
	Ja          string    `json:"ja"`
	Jah         string    `json:"jah"`
	En          string    `json:"en"`
	Aliases     []string  `json:"aliases"`
	ChannelID   ChannelID `json:"channelId"`
	Color       Color     `json:"color"`
	IsGraduated bool      `json:"isGraduated,omitempty"`
}

// ArtistRegistry is the set of artist ids that clips may refer to as
// internal artists.
type ArtistRegistry struct {
	artists map[string]*Artist
}

func NewArtistRegistry(artists ...Artist) *ArtistRegistry {
	r := &ArtistRegistry{artists: make(map[string]*Artist, len(artists))}

	for i := range artists {
		a := artists[i]
		r.artists[a.ID] = &a
	}

	return r
}

func LoadArtistRegistry(path string) (*ArtistRegistry, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog.LoadArtistRegistry: %w", err)
	}

	r, err := ParseArtistRegistry(b)
	if err != nil {
		return nil, fmt.Errorf("catalog.LoadArtistRegistry: %s: %w", path, err)
	}

	return r, nil
}

func ParseArtistRegistry(b []byte) (*ArtistRegistry, error) {
	var raw map[string]*Artist

	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("catalog.ParseArtistRegistry: %w", err)
	}

	r := &ArtistRegistry{artists: make(map[string]*Artist, len(raw))}
	for id, a := range raw {
		if id == "" || a == nil {
			return nil, fmt.Errorf("catalog.ParseArtistRegistry: empty artist entry %q", id)
		}

		a.ID = id
		r.artists[id] = a
	}

	return r, nil
}

func (r *ArtistRegistry) Len() int { return len(r.artists) }

func (r *ArtistRegistry) Has(id string) bool {
	_, ok := r.artists[id]
	return ok
}

func (r *ArtistRegistry) Get(id string) (*Artist, bool) {
	a, ok := r.artists[id]
	return a, ok
}

// List returns every artist sorted by id.
func (r *ArtistRegistry) List() []*Artist {
	l := make([]*Artist, 0, len(r.artists))
	for _, a := range r.artists {
		l = append(l, a)
	}

	sort.Slice(l, func(i, j int) bool { return l[i].ID < l[j].ID })

	return l
}

// InternalArtists validates a list of registry ids. The result is sorted and
// free of duplicates.
func (r *ArtistRegistry) InternalArtists(ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, &ValidationError{Field: "artists", Reason: "list cannot be empty"}
	}

	var unknown []string
	for _, id := range ids {
		if !r.Has(id) {
			unknown = append(unknown, id)
		}
	}
	if len(unknown) > 0 {
		return nil, &ValidationError{Field: "artists", Reason: "unknown artist ids " + quoteAll(unknown)}
	}

	return sortedUnique(ids), nil
}

// ExternalArtists validates a list of free-form artist names. A nil input
// means the field was absent and is returned as nil.
func (r *ArtistRegistry) ExternalArtists(names []string) ([]string, error) {
	if names == nil {
		return nil, nil
	}

	if len(names) == 0 {
		return nil, &ValidationError{Field: "externalArtists", Reason: "list cannot be empty when present"}
	}

	for _, n := range names {
		if strings.TrimSpace(n) == "" {
			return nil, &ValidationError{Field: "externalArtists", Reason: "names cannot be empty"}
		}
		if r.Has(n) {
			return nil, &ValidationError{Field: "externalArtists", Reason: fmt.Sprintf("%q is an internal artist id", n)}
		}
	}

	return sortedUnique(names), nil
}

func sortedUnique(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	sort.Strings(out)

	w := 0
	for i, s := range out {
		if i == 0 || s != out[w-1] {
			out[w] = s
			w++
		}
	}

	return out[:w]
}
