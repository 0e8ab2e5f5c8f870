package timeline

import (
	"sort"
	"time"

	"github.com/tinytelemetry/satis/internal/model"
)

// DetectGaps returns the intervals between file spans that exceed threshold.
// Spans are ordered by start (ties keep corpus order) and every gap is
// measured from the furthest end seen so far, so no gap overlaps a span.
func DetectGaps(spans []model.FileSpan, threshold time.Duration) []model.LoggingGap {
	if len(spans) < 2 {
		return nil
	}

	ordered := make([]model.FileSpan, len(spans))
	copy(ordered, spans)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Start.Before(ordered[j].Start)
	})

	var gaps []model.LoggingGap
	cover := ordered[0]
	for _, next := range ordered[1:] {
		if next.Start.Sub(cover.End) > threshold {
			gaps = append(gaps, model.LoggingGap{
				Start:      cover.End,
				End:        next.Start,
				AfterFile:  cover.File,
				BeforeFile: next.File,
			})
		}
		if next.End.After(cover.End) {
			cover = next
		}
	}
	return gaps
}

// LongestGap returns the duration of the longest gap, or zero.
func LongestGap(gaps []model.LoggingGap) time.Duration {
	var longest time.Duration
	for _, g := range gaps {
		if d := g.Duration(); d > longest {
			longest = d
		}
	}
	return longest
}
