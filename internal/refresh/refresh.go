// Package refresh re-verifies stored videos against freshly fetched
// attributes on a bounded pool of goroutines.
package refresh

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"fknsrs.biz/p/clipcatalog/internal/catalog"
	"fknsrs.biz/p/clipcatalog/internal/catchpanic"
	"fknsrs.biz/p/clipcatalog/internal/ctxlogger"
	"fknsrs.biz/p/clipcatalog/internal/youtube"
)

type Outcome struct {
	ID       catalog.VideoID
	Previous *catalog.Video
	// Video is nil when Err is set.
	Video *catalog.Video
	// Changed is true when anything other than the sync time differs.
	Changed bool
	Err     error
}

func one(v *catalog.Video, attrs *catalog.Attributes) (*catalog.Video, error) {
	if attrs == nil {
		return nil, &catalog.MissingMetadataError{IDs: []catalog.VideoID{v.ID()}}
	}

	return v.Refresh(*attrs)
}

// Run refreshes every video with its entry in res. Outcomes come back in
// the same order as videos regardless of which worker handled them.
func Run(ctx context.Context, workers int, videos []*catalog.Video, res youtube.Result) []Outcome {
	if workers < 1 {
		workers = 1
	}

	l := ctxlogger.GetLogger(ctx)

	out := make([]Outcome, len(videos))

	ch := make(chan int)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)

		go func(worker int) {
			defer wg.Done()

			for n := range ch {
				v := videos[n]

				r, err := catchpanic.Call(func() (*catalog.Video, error) { return one(v, res[v.ID()]) })

				o := Outcome{ID: v.ID(), Previous: v, Err: err}
				if err == nil {
					o.Video = r
					o.Changed = !v.Attributes().SameExceptSyncedAt(r.Attributes())
				}

				l.WithFields(logrus.Fields{
					"refresh.worker": worker,
					"video.id":       v.ID(),
					"video.changed":  o.Changed,
				}).Trace("refresh: processed video")

				out[n] = o
			}
		}(i)
	}

	for i := range videos {
		select {
		case ch <- i:
		case <-ctx.Done():
			for j := i; j < len(videos); j++ {
				out[j] = Outcome{ID: videos[j].ID(), Previous: videos[j], Err: fmt.Errorf("refresh.Run: %w", ctx.Err())}
			}
			goto done
		}
	}

done:
	close(ch)
	wg.Wait()

	return out
}
