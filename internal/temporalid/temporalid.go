// Package temporalid implements time-ordered identifiers with the UUIDv7
// layout: a 48 bit big-endian millisecond timestamp, version 7, 12 random
// bits, the RFC 9562 variant and 62 more random bits.
package temporalid

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const maxMillis = 1<<48 - 1

var ErrTimestampOutOfRange = errors.New("timestamp does not fit in 48 bits of milliseconds since the unix epoch")

type ID uuid.UUID

var Nil ID

// Generate builds an ID for the given instant using crypto/rand for the
// random portions.
func Generate(t time.Time) (ID, error) {
	var b [10]byte
	if _, err := rand.Read(b[:]); err != nil {
		return Nil, fmt.Errorf("temporalid.Generate: %w", err)
	}

	randA := binary.BigEndian.Uint16(b[0:2])
	randB := binary.BigEndian.Uint64(b[2:10])

	id, err := GenerateDeterministic(t, randA, randB)
	if err != nil {
		return Nil, fmt.Errorf("temporalid.Generate: %w", err)
	}

	return id, nil
}

// GenerateDeterministic builds an ID from caller-supplied randomness. Only the
// low 12 bits of randA and the low 62 bits of randB are used.
func GenerateDeterministic(t time.Time, randA uint16, randB uint64) (ID, error) {
	ms := t.UnixMilli()
	if ms < 0 || ms > maxMillis {
		return Nil, fmt.Errorf("temporalid.GenerateDeterministic: %s: %w", t.UTC().Format(time.RFC3339Nano), ErrTimestampOutOfRange)
	}

	var id ID

	id[0] = byte(ms >> 40)
	id[1] = byte(ms >> 32)
	id[2] = byte(ms >> 24)
	id[3] = byte(ms >> 16)
	id[4] = byte(ms >> 8)
	id[5] = byte(ms)

	id[6] = 0x70 | byte((randA>>8)&0x0f)
	id[7] = byte(randA)

	binary.BigEndian.PutUint64(id[8:16], randB)
	id[8] = 0x80 | (id[8] & 0x3f)

	return id, nil
}

func Parse(s string) (ID, error) {
	var id ID
	if err := id.UnmarshalText([]byte(s)); err != nil {
		return Nil, fmt.Errorf("temporalid.Parse: %w", err)
	}

	return id, nil
}

func MustParse(s string) ID {
	id, err := Parse(s)
	if err != nil {
		panic(err)
	}

	return id
}

func (id *ID) UnmarshalText(b []byte) error {
	// uuid.ParseBytes also accepts braces, urn prefixes and the unhyphenated
	// form; only the canonical grouped form is valid here.
	if len(b) != 36 {
		return fmt.Errorf("invalid temporal id %q: expected 36 characters, got %d", b, len(b))
	}

	u, err := uuid.ParseBytes(b)
	if err != nil {
		return fmt.Errorf("invalid temporal id %q: %w", b, err)
	}

	if u.Version() != 7 {
		return fmt.Errorf("invalid temporal id %q: expected version 7, got %d", b, u.Version())
	}
	if u.Variant() != uuid.RFC4122 {
		return fmt.Errorf("invalid temporal id %q: unexpected variant %s", b, u.Variant())
	}

	*id = ID(u)

	return nil
}

func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id ID) String() string { return uuid.UUID(id).String() }

func (id ID) IsNil() bool { return id == Nil }

func (id ID) Bytes() []byte { return id[:] }

// Millis returns the embedded timestamp in milliseconds since the unix epoch.
func (id ID) Millis() int64 {
	return int64(id[0])<<40 | int64(id[1])<<32 | int64(id[2])<<24 | int64(id[3])<<16 | int64(id[4])<<8 | int64(id[5])
}

func (id ID) Time() time.Time {
	return time.UnixMilli(id.Millis()).UTC()
}

func (id ID) Compare(o ID) int { return bytes.Compare(id[:], o[:]) }
