package analytics

import (
	"github.com/naitur/dashboard/internal/domain/dataset"
	"github.com/naitur/dashboard/internal/domain/tracking"
)

// Reliability is the internal consistency of one form at one time point.
type Reliability struct {
	Alpha       float64 `json:"alpha"`
	Items       int     `json:"items"`
	Respondents int     `json:"respondents"`
}

// FormReliability computes Cronbach's alpha for the given form items over
// the clients that answered every item at tp. Clients with a missing item
// are left out.
func FormReliability(obs []dataset.Observation, formID int64, items []int64, tp tracking.TimePoint) Reliability {
	col := make(map[int64]int, len(items))
	for i, q := range items {
		col[q] = i
	}

	answers := make(map[int64][]float64)
	seen := make(map[int64][]bool)
	var order []int64
	for _, o := range obs {
		if o.FormID != formID || o.TimePoint != tp {
			continue
		}
		j, ok := col[o.QuestionID]
		if !ok {
			continue
		}
		if _, ok := answers[o.ClientID]; !ok {
			answers[o.ClientID] = make([]float64, len(items))
			seen[o.ClientID] = make([]bool, len(items))
			order = append(order, o.ClientID)
		}
		answers[o.ClientID][j] = float64(o.Score)
		seen[o.ClientID][j] = true
	}

	var matrix [][]float64
	for _, c := range order {
		complete := true
		for _, ok := range seen[c] {
			complete = complete && ok
		}
		if complete {
			matrix = append(matrix, answers[c])
		}
	}

	return Reliability{
		Alpha:       CronbachAlpha(matrix),
		Items:       len(items),
		Respondents: len(matrix),
	}
}

// CronbachAlpha computes Cronbach's alpha for a matrix shaped
// [respondents][items], using population variance throughout. The result is
// clamped to [0, 1]; fewer than two items or no variance gives 0.
func CronbachAlpha(matrix [][]float64) float64 {
	n := len(matrix)
	if n == 0 {
		return 0
	}
	k := len(matrix[0])
	if k < 2 {
		return 0
	}

	means := make([]float64, k)
	totals := make([]float64, n)
	for i, row := range matrix {
		if len(row) != k {
			return 0
		}
		for j, v := range row {
			means[j] += v
			totals[i] += v
		}
	}
	for j := range means {
		means[j] /= float64(n)
	}

	var sumItemVars float64
	for j := 0; j < k; j++ {
		var ss float64
		for i := 0; i < n; i++ {
			d := matrix[i][j] - means[j]
			ss += d * d
		}
		sumItemVars += ss / float64(n)
	}

	var totalMean float64
	for _, t := range totals {
		totalMean += t
	}
	totalMean /= float64(n)
	var totalVar float64
	for _, t := range totals {
		d := t - totalMean
		totalVar += d * d
	}
	totalVar /= float64(n)
	if totalVar == 0 {
		return 0
	}

	kf := float64(k)
	alpha := (kf / (kf - 1)) * (1 - sumItemVars/totalVar)
	if alpha < 0 {
		return 0
	}
	if alpha > 1 {
		return 1
	}
	return alpha
}
