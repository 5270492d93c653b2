package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fknsrs.biz/p/clipcatalog/internal/catalog"
	"fknsrs.biz/p/clipcatalog/internal/musicfile"
)

var problemsTests = []struct {
	name string
	err  error
	out  []Problem
}{
	{"nil", nil, nil},
	{"plain", errors.New("boom"), []Problem{{Message: "boom"}}},
	{
		"strips function prefixes",
		fmt.Errorf("pipeline.Load: %w", fmt.Errorf("musicfile.LoadLibrary: %w", errors.New("boom"))),
		[]Problem{{Message: "boom"}},
	},
	{
		"keeps context wrappers",
		fmt.Errorf("2024/01: %w", errors.New("boom")),
		[]Problem{{Message: "2024/01: boom"}},
	},
	{
		"joined with paths",
		fmt.Errorf("musicfile.LoadLibrary: %w", errors.Join(
			&musicfile.PathError{Path: "a.json", Err: errors.Join(errors.New("one"), errors.New("two"))},
			&musicfile.PathError{Path: "b.json", Err: &catalog.ConsistencyFault{Err: &catalog.DuplicateIDError{IDs: []catalog.VideoID{"aaaaaaaaaaa"}}}},
		)),
		[]Problem{
			{Source: "a.json", Message: "one"},
			{Source: "a.json", Message: "two"},
			{Source: "b.json", Message: "consistency fault (this indicates a bug or an incorrect manual modification): duplicate video ids: aaaaaaaaaaa", Fault: true},
		},
	},
}

func TestProblems(t *testing.T) {
	for _, tc := range problemsTests {
		t.Run(tc.name, func(t *testing.T) {
			a := assert.New(t)

			a.Equal(tc.out, Problems(tc.err))
		})
	}
}

func TestValidate(t *testing.T) {
	a := assert.New(t)

	e := newTestEnv(t)

	_, err := e.pipeline.AddSubmissions(context.Background(), e.writeInput(t, "input.json", firstInput))
	require.NoError(t, err)

	var buf bytes.Buffer
	a.NoError(e.pipeline.Validate(context.Background(), &buf))
	a.Equal("ok: 2 videos in 2 partitions\n", buf.String())

	require.NoError(t, os.Remove(musicfile.MonthPath(e.opts.MusicRoot, catalog.PartitionKey{Year: 2024, Month: 7})))
	require.NoError(t, os.WriteFile(filepath.Join(e.opts.MusicRoot, "stray.txt"), nil, 0644))

	buf.Reset()
	err = e.pipeline.Validate(context.Background(), &buf)
	a.ErrorIs(err, ErrInvalid)
	a.EqualError(err, "pipeline.Validate: 2 problems: library is invalid")

	out := buf.String()
	a.Contains(out, "SOURCE")
	a.Contains(out, "PROBLEM")
	a.Contains(out, "missing month file for 2024/07")
	a.Contains(out, "expected a four digit year directory")
	a.NotContains(out, "╭")
}

func TestStats(t *testing.T) {
	a := assert.New(t)

	e := newTestEnv(t)

	_, err := e.pipeline.AddSubmissions(context.Background(), e.writeInput(t, "input.json", firstInput))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, e.pipeline.Stats(context.Background(), &buf))

	out := buf.String()
	a.Contains(out, "Summary")
	a.Contains(out, "57.5s")
	a.Contains(out, "Guest Singer")
	a.Contains(out, "2024")
}
