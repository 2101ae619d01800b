package rank

import (
	"github.com/montanaflynn/stats"
)

// Summary describes the score distribution of a ranking.
type Summary struct {
	N        int
	Positive int
	Negative int
	Zero     int
	Min      float64
	Max      float64
	Median   float64
}

// Summarize computes distribution statistics for l.
func Summarize(l *List) (Summary, error) {
	scores := l.Scores()
	s := Summary{N: len(scores)}
	for _, v := range scores {
		switch {
		case v > 0:
			s.Positive++
		case v < 0:
			s.Negative++
		default:
			s.Zero++
		}
	}

	var err error
	if s.Min, err = stats.Min(scores); err != nil {
		return s, err
	}
	if s.Max, err = stats.Max(scores); err != nil {
		return s, err
	}
	if s.Median, err = stats.Median(scores); err != nil {
		return s, err
	}
	return s, nil
}
