package tracking

import (
	"fmt"
	"strings"
)

// TimePoint labels when a form was answered relative to the client's start.
type TimePoint string

const (
	Baseline    TimePoint = "Baseline"
	OneMonth    TimePoint = "1-Month"
	ThreeMonths TimePoint = "3-Months"
	SixMonths   TimePoint = "6-Months"
	OneYear     TimePoint = "1-Year"
)

const unknownIndex = -1

// TimePoints lists every time point in chronological order. Charts and
// tables always follow this order, never lexical order.
var TimePoints = []TimePoint{Baseline, OneMonth, ThreeMonths, SixMonths, OneYear}

// Index is the position of tp in TimePoints, or -1 when tp is not one of them.
func (tp TimePoint) Index() int {
	for i, p := range TimePoints {
		if p == tp {
			return i
		}
	}
	return unknownIndex
}

func (tp TimePoint) Valid() bool { return tp.Index() != unknownIndex }

func (tp TimePoint) String() string { return string(tp) }

// ParseTimePoint accepts a time point label, ignoring case and surrounding
// space.
func ParseTimePoint(s string) (TimePoint, error) {
	s = strings.TrimSpace(s)
	for _, p := range TimePoints {
		if strings.EqualFold(string(p), s) {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown time point %q", s)
}
