package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"

	"fknsrs.biz/p/clipcatalog/internal/catalog"
	"fknsrs.biz/p/clipcatalog/internal/musicfile"
)

// Problem is one leaf of a collected error, with the file it came from when
// that is known.
type Problem struct {
	Source  string
	Message string
	Fault   bool
}

var funcPrefix = regexp.MustCompile(`^[a-z][A-Za-z]*(\.[A-Za-z]+)+: $`)

// Problems flattens the tree of joined errors produced by loading and
// verification into a list.
func Problems(err error) []Problem {
	var out []Problem
	collectProblems(err, "", &out)
	return out
}

func collectProblems(err error, source string, out *[]Problem) {
	if err == nil {
		return
	}

	if pe, ok := err.(*musicfile.PathError); ok {
		collectProblems(pe.Err, pe.Path, out)
		return
	}

	if j, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range j.Unwrap() {
			collectProblems(e, source, out)
		}
		return
	}

	// strip "pkg.Func: " wrappers, keep anything that adds real context
	if inner := errors.Unwrap(err); inner != nil {
		msg, innerMsg := err.Error(), inner.Error()
		if strings.HasSuffix(msg, innerMsg) && funcPrefix.MatchString(strings.TrimSuffix(msg, innerMsg)) {
			collectProblems(inner, source, out)
			return
		}
	}

	*out = append(*out, Problem{Source: source, Message: err.Error(), Fault: catalog.IsConsistencyFault(err)})
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}

	fd := f.Fd()

	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func newTable(w io.Writer) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)

	if isTerminal(w) {
		tw.SetStyle(table.StyleRounded)
	} else {
		tw.SetStyle(table.StyleDefault)
	}

	return tw
}

func alignRight(numbers ...int) []table.ColumnConfig {
	a := make([]table.ColumnConfig, len(numbers))
	for i, n := range numbers {
		a[i] = table.ColumnConfig{Number: n, Align: text.AlignRight, AlignHeader: text.AlignLeft}
	}
	return a
}

// ErrInvalid is returned by Validate after the problems have been rendered.
var ErrInvalid = errors.New("library is invalid")

// Validate loads the library and writes a table of every problem found to
// w. It returns nil for a valid library.
func (p *Pipeline) Validate(ctx context.Context, w io.Writer) error {
	lib, err := p.Load(ctx)
	if err == nil {
		fmt.Fprintf(w, "ok: %d videos in %d partitions\n", lib.Len(), len(lib.Partitions()))
		return nil
	}

	problems := Problems(err)

	tw := newTable(w)
	tw.AppendHeader(table.Row{"#", "Source", "Problem"})
	for i, e := range problems {
		msg := e.Message
		if e.Fault {
			msg = "[bug] " + msg
		}
		tw.AppendRow(table.Row{i + 1, e.Source, msg})
	}
	tw.SetColumnConfigs(alignRight(1))
	tw.Render()

	return fmt.Errorf("pipeline.Validate: %d problems: %w", len(problems), ErrInvalid)
}

// Stats loads the library and writes summary, per-year and per-artist
// tables to w.
func (p *Pipeline) Stats(ctx context.Context, w io.Writer) error {
	lib, err := p.Load(ctx)
	if err != nil {
		return fmt.Errorf("pipeline.Stats: %w", err)
	}

	s := catalog.ComputeStats(lib)

	summary := newTable(w)
	summary.SetTitle("Summary")
	summary.AppendHeader(table.Row{"Videos", "Clips", "Mean", "Median", "Std dev"})
	summary.AppendRow(table.Row{s.Videos, s.Clips, seconds(s.MeanLength), seconds(s.MedianLength), seconds(s.StdDevLength)})
	summary.SetColumnConfigs(alignRight(1, 2, 3, 4, 5))
	summary.Render()

	years := newTable(w)
	years.SetTitle("Years")
	years.AppendHeader(table.Row{"Year", "Videos", "Clips"})
	for _, y := range s.Years {
		years.AppendRow(table.Row{y.Year, y.Videos, y.Clips})
	}
	years.SetColumnConfigs(alignRight(2, 3))
	years.Render()

	artists := newTable(w)
	artists.SetTitle("Artists")
	artists.AppendHeader(table.Row{"Artist", "Name", "Videos", "Clips"})
	for _, a := range s.Artists {
		name := ""
		if e, ok := p.registry.Get(a.ArtistID); ok {
			name = e.En
		}
		artists.AppendRow(table.Row{a.ArtistID, name, a.Videos, a.Clips})
	}
	artists.SetColumnConfigs(alignRight(3, 4))
	artists.Render()

	return nil
}

func seconds(f float64) string {
	return fmt.Sprintf("%.1fs", f)
}
