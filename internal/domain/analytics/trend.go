package analytics

import (
	"fmt"
	"math"
	"sort"

	"github.com/naitur/dashboard/internal/domain/dataset"
	"github.com/naitur/dashboard/internal/domain/tracking"
)

// Dimension is the entity a trend is grouped by.
type Dimension string

const (
	ByForm     Dimension = "form"
	ByProtocol Dimension = "protocol"
	ByClient   Dimension = "client"
)

// ParseDimension accepts "form", "protocol" or "client".
func ParseDimension(s string) (Dimension, error) {
	switch d := Dimension(s); d {
	case ByForm, ByProtocol, ByClient:
		return d, nil
	}
	return "", fmt.Errorf("unknown dimension %q", s)
}

func (d Dimension) key(o dataset.Observation) int64 {
	switch d {
	case ByProtocol:
		return o.ProtocolID
	case ByClient:
		return o.ClientID
	default:
		return o.FormID
	}
}

// Point aggregates the scores of one series at one time point.
type Point struct {
	TimePoint     tracking.TimePoint `json:"time_point"`
	Mean          float64            `json:"mean"`
	StdDev        float64            `json:"std_dev"`
	Count         int                `json:"count"`
	Percent       float64            `json:"percent"`
	StdDevPercent float64            `json:"std_dev_percent"`
}

// Series is one line on a trend chart.
type Series struct {
	ID     int64   `json:"id"`
	Name   string  `json:"name"`
	Points []Point `json:"points"`
}

// Trend groups observations by the dimension key and time point. Series are
// ordered by key and their points by the fixed time point sequence; time
// points without observations are omitted.
func Trend(obs []dataset.Observation, dim Dimension, names map[int64]string) []Series {
	type cell struct {
		key int64
		tp  int
	}
	scores := make(map[cell][]int)
	keys := make(map[int64]bool)
	for _, o := range obs {
		idx := o.TimePoint.Index()
		if idx < 0 {
			continue
		}
		k := dim.key(o)
		keys[k] = true
		c := cell{k, idx}
		scores[c] = append(scores[c], o.Score)
	}

	ids := make([]int64, 0, len(keys))
	for k := range keys {
		ids = append(ids, k)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]Series, 0, len(ids))
	for _, id := range ids {
		s := Series{ID: id, Name: names[id]}
		if s.Name == "" {
			s.Name = fmt.Sprintf("#%d", id)
		}
		for i, tp := range tracking.TimePoints {
			vals, ok := scores[cell{id, i}]
			if !ok {
				continue
			}
			s.Points = append(s.Points, NewPoint(tp, vals))
		}
		out = append(out, s)
	}
	return out
}

// NewPoint computes the aggregate of scores at tp.
func NewPoint(tp tracking.TimePoint, scores []int) Point {
	mean, sd := MeanStdDev(scores)
	return Point{
		TimePoint:     tp,
		Mean:          mean,
		StdDev:        sd,
		Count:         len(scores),
		Percent:       ToPercent(mean),
		StdDevPercent: ToPercent(sd),
	}
}

// ToPercent expresses a score on the 0..MaxScore scale as a percentage.
func ToPercent(v float64) float64 {
	return v / tracking.MaxScore * 100
}

// MeanStdDev returns the mean and sample standard deviation (n-1) of xs.
// A single value has standard deviation 0; no values give 0, 0.
func MeanStdDev(xs []int) (mean, sd float64) {
	n := len(xs)
	if n == 0 {
		return 0, 0
	}
	var sum float64
	for _, x := range xs {
		sum += float64(x)
	}
	mean = sum / float64(n)
	if n == 1 {
		return mean, 0
	}
	var ss float64
	for _, x := range xs {
		d := float64(x) - mean
		ss += d * d
	}
	return mean, math.Sqrt(ss / float64(n-1))
}
