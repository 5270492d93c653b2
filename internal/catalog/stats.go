package catalog

import (
	"sort"

	"gonum.org/v1/gonum/stat"
)

type ArtistStats struct {
	ArtistID string
	Clips    int
	Videos   int
}

type YearStats struct {
	Year   int
	Videos int
	Clips  int
}

// Stats summarizes a library. Lengths are in seconds.
type Stats struct {
	Videos       int
	Clips        int
	MeanLength   float64
	StdDevLength float64
	MedianLength float64
	Artists      []ArtistStats
	Years        []YearStats
}

func ComputeStats(l *Library) Stats {
	s := Stats{Videos: l.Len()}

	artists := make(map[string]*ArtistStats)
	years := make(map[int]*YearStats)

	var lengths []float64
	for _, v := range l.Videos() {
		y, ok := years[v.Partition().Year]
		if !ok {
			y = &YearStats{Year: v.Partition().Year}
			years[y.Year] = y
		}
		y.Videos++

		for _, id := range v.Artists() {
			a, ok := artists[id]
			if !ok {
				a = &ArtistStats{ArtistID: id}
				artists[id] = a
			}
			a.Videos++
		}

		for _, c := range v.sorted {
			s.Clips++
			y.Clips++
			lengths = append(lengths, float64(c.Length().Seconds()))

			for _, id := range c.artists {
				artists[id].Clips++
			}
		}
	}

	if len(lengths) > 0 {
		sort.Float64s(lengths)

		s.MeanLength, s.StdDevLength = stat.MeanStdDev(lengths, nil)
		if len(lengths) == 1 {
			s.StdDevLength = 0
		}
		s.MedianLength = stat.Quantile(0.5, stat.Empirical, lengths, nil)
	}

	for _, a := range artists {
		s.Artists = append(s.Artists, *a)
	}
	sort.Slice(s.Artists, func(i, j int) bool {
		if s.Artists[i].Clips != s.Artists[j].Clips {
			return s.Artists[i].Clips > s.Artists[j].Clips
		}
		return s.Artists[i].ArtistID < s.Artists[j].ArtistID
	})

	for _, y := range years {
		s.Years = append(s.Years, *y)
	}
	sort.Slice(s.Years, func(i, j int) bool { return s.Years[i].Year < s.Years[j].Year })

	return s
}
