package httpcache

import (
	"bytes"
	"crypto/sha1"
	"encoding/gob"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
)

// DefaultIgnoredParams are dropped from request URLs before they are used as
// cache keys, so rotating a credential does not invalidate the cache and the
// credential is never written to disk.
var DefaultIgnoredParams = []string{"key"}

type entry struct {
	StoredAt   time.Time
	Status     string
	StatusCode int
	Header     http.Header
	Body       []byte
}

func (e *entry) response(req *http.Request) *http.Response {
	return &http.Response{
		Status:        e.Status,
		StatusCode:    e.StatusCode,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        e.Header.Clone(),
		Body:          io.NopCloser(bytes.NewReader(e.Body)),
		ContentLength: int64(len(e.Body)),
		Request:       req,
	}
}

type Storage interface {
	Fetch(key string) (*entry, error)
	Save(key string, e *entry) error
}

var bucketName = []byte("responses")

type BBoltStorage struct {
	db *bbolt.DB
}

func NewBBoltStorage(db *bbolt.DB) *BBoltStorage {
	return &BBoltStorage{db: db}
}

// Open creates or opens a bbolt database at path for use as cache storage.
func Open(path string) (*BBoltStorage, error) {
	db, err := bbolt.Open(path, 0644, &bbolt.Options{Timeout: time.Second * 5})
	if err != nil {
		return nil, fmt.Errorf("httpcache.Open: %w", err)
	}

	return NewBBoltStorage(db), nil
}

func (s *BBoltStorage) Close() error { return s.db.Close() }

func (s *BBoltStorage) Fetch(key string) (*entry, error) {
	var d []byte

	if err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketName)
		if b == nil {
			return nil
		}

		if v := b.Get([]byte(key)); v != nil {
			d = append([]byte(nil), v...)
		}

		return nil
	}); err != nil {
		return nil, err
	}

	if d == nil {
		return nil, nil
	}

	var e entry
	if err := gob.NewDecoder(bytes.NewReader(d)).Decode(&e); err != nil {
		return nil, err
	}

	return &e, nil
}

func (s *BBoltStorage) Save(key string, e *entry) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(e); err != nil {
		return err
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucketName)
		if err != nil {
			return err
		}

		return b.Put([]byte(key), buf.Bytes())
	})
}

// Key derives the storage key for u, ignoring the named query parameters.
func Key(u *url.URL, ignore []string) string {
	c := *u

	q := c.Query()
	for _, k := range ignore {
		q.Del(k)
	}
	c.RawQuery = q.Encode()
	c.Fragment = ""

	h := sha1.New()
	io.WriteString(h, c.String())

	return filepath.ToSlash(filepath.Join(u.Host, hex.EncodeToString(h.Sum(nil))))
}

// Transport serves successful GET responses from storage while they are
// younger than maxAge.
type Transport struct {
	transport http.RoundTripper
	storage   Storage
	maxAge    time.Duration
	ignore    []string
	now       func() time.Time
}

type Option func(t *Transport)

func WithIgnoredParams(names ...string) Option {
	return func(t *Transport) { t.ignore = names }
}

func WithClock(now func() time.Time) Option {
	return func(t *Transport) { t.now = now }
}

func NewTransport(transport http.RoundTripper, storage Storage, maxAge time.Duration, options ...Option) *Transport {
	if transport == nil {
		transport = http.DefaultTransport
	}

	if maxAge == 0 {
		maxAge = time.Hour * 24
	}

	t := &Transport{
		transport: transport,
		storage:   storage,
		maxAge:    maxAge,
		ignore:    DefaultIgnoredParams,
		now:       time.Now,
	}

	for _, fn := range options {
		fn(t)
	}

	return t
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Method != http.MethodGet {
		return t.transport.RoundTrip(req)
	}

	key := Key(req.URL, t.ignore)

	if e, err := t.storage.Fetch(key); err == nil && e != nil && t.now().Sub(e.StoredAt) < t.maxAge {
		return e.response(req), nil
	}

	res, err := t.transport.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	if res.StatusCode != http.StatusOK {
		return res, nil
	}

	d, err := io.ReadAll(res.Body)
	res.Body.Close()
	if err != nil {
		return nil, err
	}

	e := &entry{
		StoredAt:   t.now(),
		Status:     res.Status,
		StatusCode: res.StatusCode,
		Header:     res.Header,
		Body:       d,
	}

	if err := t.storage.Save(key, e); err != nil {
		return nil, err
	}

	return e.response(req), nil
}
