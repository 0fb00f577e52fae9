package dataset

import (
	"sort"

	"github.com/naitur/dashboard/internal/domain/tracking"
)

// IDFilter selects ids. The zero value selects every id; a filter built with
// Only selects exactly the listed ids, so Only() selects nothing.
type IDFilter struct {
	restricted bool
	ids        map[int64]struct{}
}

// All selects every id.
func All() IDFilter { return IDFilter{} }

// Only selects the given ids.
func Only(ids ...int64) IDFilter {
	f := IDFilter{restricted: true, ids: make(map[int64]struct{}, len(ids))}
	for _, id := range ids {
		f.ids[id] = struct{}{}
	}
	return f
}

func (f IDFilter) Match(id int64) bool {
	if !f.restricted {
		return true
	}
	_, ok := f.ids[id]
	return ok
}

// Restricted reports whether f was built with Only.
func (f IDFilter) Restricted() bool { return f.restricted }

// Empty reports whether f selects nothing.
func (f IDFilter) Empty() bool { return f.restricted && len(f.ids) == 0 }

// IDs returns the selected ids in ascending order, or nil for All.
func (f IDFilter) IDs() []int64 {
	if !f.restricted {
		return nil
	}
	ids := make([]int64, 0, len(f.ids))
	for id := range f.ids {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Filter narrows observations by client, form, protocol and time point.
type Filter struct {
	Clients    IDFilter
	Forms      IDFilter
	Protocols  IDFilter
	TimePoints []tracking.TimePoint // nil selects every time point
}

func (f Filter) Match(o Observation) bool {
	if !f.Clients.Match(o.ClientID) || !f.Forms.Match(o.FormID) || !f.Protocols.Match(o.ProtocolID) {
		return false
	}
	if f.TimePoints == nil {
		return true
	}
	for _, tp := range f.TimePoints {
		if tp == o.TimePoint {
			return true
		}
	}
	return false
}
