package musicfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/tdewolff/minify"
	minifyjson "github.com/tdewolff/minify/json"

	"fknsrs.biz/p/clipcatalog/internal/catalog"
	"fknsrs.biz/p/clipcatalog/internal/ctxlogger"
)

// ReadPartition decodes the month document at path and checks that every
// video in it belongs to key. Videos that decode are checked for placement
// even when others in the file failed.
func ReadPartition(path string, key catalog.PartitionKey, reg *catalog.ArtistRegistry) (*catalog.Partition, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, &PathError{Path: path, Err: err}
	}

	videos, decodeErr := catalog.DecodeVideos(b, reg)

	p, placeErr := catalog.NewPartition(key, videos)

	if err := errors.Join(decodeErr, placeErr); err != nil {
		return nil, &PathError{Path: path, Err: err}
	}

	return p, nil
}

// LoadLibrary reads every month document under root. Decoding, placement and
// cross-file duplicate failures are all collected before returning.
func LoadLibrary(ctx context.Context, root *Root, reg *catalog.ArtistRegistry) (*catalog.Library, error) {
	l := ctxlogger.GetLogger(ctx)

	lib := catalog.NewLibrary()

	var errs []error
	for _, e := range root.Entries() {
		p, err := ReadPartition(e.Path, e.Key, reg)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		if err := lib.AddPartition(p); err != nil {
			errs = append(errs, &PathError{Path: e.Path, Err: err})
			continue
		}

		l.WithField("partition.key", e.Key.String()).WithField("partition.videos", p.Len()).Debug("musicfile: loaded partition")
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("musicfile.LoadLibrary: %w", errors.Join(errs...))
	}

	l.WithField("library.videos", lib.Len()).Debug("musicfile: loaded library")

	return lib, nil
}

// Load opens the root at path and reads the whole library from it.
func Load(ctx context.Context, path string, reg *catalog.ArtistRegistry) (*catalog.Library, error) {
	root, err := OpenRoot(path)
	if err != nil {
		return nil, err
	}

	return LoadLibrary(ctx, root, reg)
}

func writeFileAtomic(path string, b []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(f.Name())

	if _, err := f.Write(b); err != nil {
		f.Close()
		return err
	}

	if err := f.Close(); err != nil {
		return err
	}

	return os.Rename(f.Name(), path)
}

// WritePartition encodes videos as a month document at path.
func WritePartition(path string, videos []*catalog.Video) error {
	b, err := catalog.EncodeVideos(videos)
	if err != nil {
		return &PathError{Path: path, Err: err}
	}

	if err := writeFileAtomic(path, b); err != nil {
		return &PathError{Path: path, Err: err}
	}

	return nil
}

func lock(root string) (*flock.Flock, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, err
	}

	fl := flock.New(filepath.Join(root, lockName))

	ok, err := fl.TryLock()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLocked
	}

	return fl, nil
}

func savePartitions(ctx context.Context, root string, lib *catalog.Library, keys []catalog.PartitionKey) error {
	fl, err := lock(root)
	if err != nil {
		return err
	}
	defer fl.Unlock()

	l := ctxlogger.GetLogger(ctx)

	var errs []error
	for _, key := range keys {
		var videos []*catalog.Video
		if p, ok := lib.Partition(key); ok {
			videos = p.Videos()
		}

		path := MonthPath(root, key)

		if err := WritePartition(path, videos); err != nil {
			errs = append(errs, err)
			continue
		}

		l.WithField("partition.key", key.String()).WithField("partition.videos", len(videos)).Debug("musicfile: wrote partition")
	}

	return errors.Join(errs...)
}

func yearKeys(year int) []catalog.PartitionKey {
	keys := make([]catalog.PartitionKey, 0, 12)
	for m := time.January; m <= time.December; m++ {
		keys = append(keys, catalog.PartitionKey{Year: year, Month: m})
	}

	return keys
}

// Save writes every month document for every year present in lib. Months
// with no videos are written as empty arrays.
func Save(ctx context.Context, root string, lib *catalog.Library) error {
	var keys []catalog.PartitionKey
	for _, y := range lib.Years() {
		keys = append(keys, yearKeys(y)...)
	}

	if err := savePartitions(ctx, root, lib, keys); err != nil {
		return fmt.Errorf("musicfile.Save: %w", err)
	}

	return nil
}

// SavePartitions writes only the given months. A year that does not exist on
// disk yet gets all twelve of its documents so the layout stays valid.
func SavePartitions(ctx context.Context, root string, lib *catalog.Library, keys []catalog.PartitionKey) error {
	seen := make(map[catalog.PartitionKey]bool)

	var all []catalog.PartitionKey
	add := func(k catalog.PartitionKey) {
		if !seen[k] {
			seen[k] = true
			all = append(all, k)
		}
	}

	for _, k := range keys {
		if _, err := os.Stat(filepath.Join(root, fmt.Sprintf("%04d", k.Year))); errors.Is(err, os.ErrNotExist) {
			for _, yk := range yearKeys(k.Year) {
				add(yk)
			}
			continue
		}

		add(k)
	}

	if err := savePartitions(ctx, root, lib, all); err != nil {
		return fmt.Errorf("musicfile.SavePartitions: %w", err)
	}

	return nil
}

// SavePartition writes a single month document.
func SavePartition(ctx context.Context, root string, lib *catalog.Library, key catalog.PartitionKey) error {
	return SavePartitions(ctx, root, lib, []catalog.PartitionKey{key})
}

func minified(v interface{}) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	m := minify.New()
	m.AddFunc("application/json", minifyjson.Minify)

	return m.Bytes("application/json", b)
}

// WriteMinFiles writes the flat clip and video indexes as minified JSON.
// An empty path skips that file.
func WriteMinFiles(ctx context.Context, lib *catalog.Library, clipsPath, videosPath string) error {
	outputs := []struct {
		path  string
		value interface{}
	}{
		{clipsPath, catalog.FlatClips(lib)},
		{videosPath, catalog.FlatVideos(lib)},
	}

	var errs []error
	for _, o := range outputs {
		if o.path == "" {
			continue
		}

		b, err := minified(o.value)
		if err != nil {
			errs = append(errs, &PathError{Path: o.path, Err: err})
			continue
		}

		if err := writeFileAtomic(o.path, b); err != nil {
			errs = append(errs, &PathError{Path: o.path, Err: err})
			continue
		}

		ctxlogger.GetLogger(ctx).WithField("file.path", o.path).WithField("file.bytes", len(b)).Debug("musicfile: wrote min file")
	}

	if len(errs) > 0 {
		return fmt.Errorf("musicfile.WriteMinFiles: %w", errors.Join(errs...))
	}

	return nil
}

// ReadSubmissions decodes a submission file.
func ReadSubmissions(path string, reg *catalog.ArtistRegistry) ([]catalog.Submission, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("musicfile.ReadSubmissions: %w", err)
	}

	s, err := catalog.DecodeSubmissions(b, reg)
	if err != nil {
		return nil, fmt.Errorf("musicfile.ReadSubmissions: %s: %w", path, err)
	}

	return s, nil
}
