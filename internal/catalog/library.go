package catalog

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// PartitionKey identifies the (year, month) bucket a video is stored in,
// taken from its publish date in UTC.
type PartitionKey struct {
	Year  int
	Month time.Month
}

func PartitionKeyOf(t time.Time) PartitionKey {
	t = t.UTC()
	return PartitionKey{Year: t.Year(), Month: t.Month()}
}

func (k PartitionKey) String() string {
	return fmt.Sprintf("%04d/%02d", k.Year, int(k.Month))
}

// ParsePartitionKey reads YYYY-MM or YYYY/MM.
func ParsePartitionKey(s string) (PartitionKey, error) {
	t, err := time.Parse("2006-01", strings.Replace(s, "/", "-", 1))
	if err != nil {
		return PartitionKey{}, &ParseError{Kind: "partition key", Input: s, Reason: "expected YYYY-MM"}
	}

	return PartitionKey{Year: t.Year(), Month: t.Month()}, nil
}

func (k PartitionKey) Less(o PartitionKey) bool {
	if k.Year != o.Year {
		return k.Year < o.Year
	}

	return k.Month < o.Month
}

// Partition holds the videos published in a single month. Every video in a
// partition has a publish date inside that month.
type Partition struct {
	key    PartitionKey
	videos map[VideoID]*Video
}

// NewPartition checks placement and uniqueness for a month of videos that
// were loaded together, reporting every offending id.
func NewPartition(key PartitionKey, videos []*Video) (*Partition, error) {
	p := &Partition{key: key, videos: make(map[VideoID]*Video, len(videos))}

	var misplaced, duplicated []VideoID
	for _, v := range videos {
		if v.Partition() != key {
			misplaced = append(misplaced, v.ID())
		}

		if _, ok := p.videos[v.ID()]; ok {
			duplicated = append(duplicated, v.ID())
		}

		p.videos[v.ID()] = v
	}

	var errs []error
	if len(misplaced) > 0 {
		errs = append(errs, &PlacementError{Partition: key, IDs: misplaced})
	}
	if len(duplicated) > 0 {
		errs = append(errs, &DuplicateIDError{IDs: duplicated})
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("catalog.NewPartition: %s: %w", key, errors.Join(errs...))
	}

	return p, nil
}

func (p *Partition) Key() PartitionKey { return p.key }

func (p *Partition) Len() int { return len(p.videos) }

func (p *Partition) Get(id VideoID) (*Video, bool) {
	v, ok := p.videos[id]
	return v, ok
}

// Videos returns the videos ordered by publish time, then id.
func (p *Partition) Videos() []*Video {
	return sortVideos(p.videos)
}

func (p *Partition) IDs() []VideoID {
	videos := p.Videos()

	ids := make([]VideoID, len(videos))
	for i, v := range videos {
		ids[i] = v.ID()
	}

	return ids
}

func sortVideos(m map[VideoID]*Video) []*Video {
	l := make([]*Video, 0, len(m))
	for _, v := range m {
		l = append(l, v)
	}

	sort.Slice(l, func(i, j int) bool {
		if !l[i].PublishedAt().Equal(l[j].PublishedAt()) {
			return l[i].PublishedAt().Before(l[j].PublishedAt())
		}
		return l[i].ID() < l[j].ID()
	})

	return l
}

// Library is the whole catalog, keyed by video id and partitioned by publish
// month. It is not safe for concurrent mutation.
type Library struct {
	partitions map[PartitionKey]*Partition
	index      map[VideoID]PartitionKey
}

func NewLibrary() *Library {
	return &Library{
		partitions: make(map[PartitionKey]*Partition),
		index:      make(map[VideoID]PartitionKey),
	}
}

// Insert adds or replaces a video, returning the video it replaced. A
// replacement whose publish month changed moves to its new partition.
func (l *Library) Insert(v *Video) *Video {
	prev := l.Remove(v.ID())

	key := v.Partition()

	p, ok := l.partitions[key]
	if !ok {
		p = &Partition{key: key, videos: make(map[VideoID]*Video)}
		l.partitions[key] = p
	}

	p.videos[v.ID()] = v
	l.index[v.ID()] = key

	return prev
}

// Remove deletes a video, dropping its partition if it becomes empty.
func (l *Library) Remove(id VideoID) *Video {
	key, ok := l.index[id]
	if !ok {
		return nil
	}

	p := l.partitions[key]
	prev := p.videos[id]

	delete(p.videos, id)
	delete(l.index, id)

	if len(p.videos) == 0 {
		delete(l.partitions, key)
	}

	return prev
}

func (l *Library) Get(id VideoID) (*Video, bool) {
	key, ok := l.index[id]
	if !ok {
		return nil, false
	}

	return l.partitions[key].Get(id)
}

func (l *Library) Has(id VideoID) bool {
	_, ok := l.index[id]
	return ok
}

func (l *Library) Len() int { return len(l.index) }

func (l *Library) Partition(key PartitionKey) (*Partition, bool) {
	p, ok := l.partitions[key]
	return p, ok
}

// Partitions returns every non-empty partition in chronological order.
func (l *Library) Partitions() []*Partition {
	ps := make([]*Partition, 0, len(l.partitions))
	for _, p := range l.partitions {
		ps = append(ps, p)
	}

	sort.Slice(ps, func(i, j int) bool { return ps[i].key.Less(ps[j].key) })

	return ps
}

// Years returns the distinct years that have at least one video, ascending.
func (l *Library) Years() []int {
	seen := make(map[int]bool)

	var years []int
	for k := range l.partitions {
		if !seen[k.Year] {
			seen[k.Year] = true
			years = append(years, k.Year)
		}
	}

	sort.Ints(years)

	return years
}

// Videos returns every video ordered by publish time, then id.
func (l *Library) Videos() []*Video {
	all := make(map[VideoID]*Video, len(l.index))
	for _, p := range l.partitions {
		for id, v := range p.videos {
			all[id] = v
		}
	}

	return sortVideos(all)
}

// AddPartition merges a separately loaded partition into the library. A
// video id that is already present elsewhere is a consistency fault since
// partitioning by publish month should make that impossible.
func (l *Library) AddPartition(p *Partition) error {
	var dups []VideoID
	for _, v := range p.Videos() {
		if l.Has(v.ID()) {
			dups = append(dups, v.ID())
		}
	}

	if len(dups) > 0 {
		return &ConsistencyFault{Err: &DuplicateIDError{IDs: dups}}
	}

	for _, v := range p.videos {
		l.Insert(v)
	}

	return nil
}

// Merge combines two libraries into a new one. Both inputs are left
// untouched.
func Merge(a, b *Library) (*Library, error) {
	r := NewLibrary()

	var errs []error
	for _, src := range []*Library{a, b} {
		for _, p := range src.Partitions() {
			if err := r.AddPartition(p); err != nil {
				errs = append(errs, err)
			}
		}
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("catalog.Merge: %w", errors.Join(errs...))
	}

	return r, nil
}
