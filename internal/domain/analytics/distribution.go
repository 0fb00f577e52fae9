package analytics

import (
	"math"
	"sort"

	"github.com/naitur/dashboard/internal/domain/dataset"
	"github.com/naitur/dashboard/internal/domain/tracking"
)

// Bin counts how often one score occurred.
type Bin struct {
	Score int `json:"score"`
	Count int `json:"count"`
}

// Distribution describes a set of scores.
type Distribution struct {
	Empty  bool    `json:"empty"`
	N      int     `json:"n"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
	Median float64 `json:"median"`
	Mode   int     `json:"mode"`
	Min    int     `json:"min"`
	Q1     float64 `json:"q1"`
	Q3     float64 `json:"q3"`
	Max    int     `json:"max"`
	// Histogram has one bin per score from 0 to max(MaxScore, Max).
	Histogram []Bin `json:"histogram"`
	// ValueCounts lists the scores that occurred, most frequent first.
	ValueCounts []Bin `json:"value_counts"`
}

// Scores extracts the score of every observation.
func Scores(obs []dataset.Observation) []int {
	out := make([]int, len(obs))
	for i, o := range obs {
		out[i] = o.Score
	}
	return out
}

// Describe summarises scores. Ties for the mode resolve to the lowest score.
func Describe(scores []int) Distribution {
	if len(scores) == 0 {
		return Distribution{Empty: true}
	}

	sorted := append([]int(nil), scores...)
	sort.Ints(sorted)

	d := Distribution{
		N:   len(sorted),
		Min: sorted[0],
		Max: sorted[len(sorted)-1],
	}
	d.Mean, d.StdDev = MeanStdDev(sorted)
	d.Q1 = quantile(sorted, 0.25)
	d.Median = quantile(sorted, 0.5)
	d.Q3 = quantile(sorted, 0.75)

	top := tracking.MaxScore
	if d.Max > top {
		top = d.Max
	}
	counts := make([]int, top+1)
	for _, s := range sorted {
		if s >= 0 {
			counts[s]++
		}
	}
	d.Histogram = make([]Bin, len(counts))
	for s, c := range counts {
		d.Histogram[s] = Bin{Score: s, Count: c}
		if c > 0 {
			d.ValueCounts = append(d.ValueCounts, Bin{Score: s, Count: c})
		}
	}
	sort.SliceStable(d.ValueCounts, func(i, j int) bool {
		return d.ValueCounts[i].Count > d.ValueCounts[j].Count
	})
	if len(d.ValueCounts) > 0 {
		d.Mode = d.ValueCounts[0].Score
	}
	return d
}

// quantile interpolates linearly between closest ranks at (n-1)*p.
func quantile(sorted []int, p float64) float64 {
	if len(sorted) == 1 {
		return float64(sorted[0])
	}
	pos := float64(len(sorted)-1) * p
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	frac := pos - float64(lo)
	return float64(sorted[lo]) + (float64(sorted[hi])-float64(sorted[lo]))*frac
}
