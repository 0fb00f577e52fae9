package dataset

import (
	"time"

	"github.com/naitur/dashboard/internal/domain/tracking"
)

// Tables holds every row read from the store.
type Tables struct {
	Protocols     []tracking.Protocol
	Clients       []tracking.Client
	Forms         []tracking.Form
	Questions     []tracking.Question
	Responses     []tracking.Response
	Facts         []tracking.ClientFormResponse
	FormQuestions []tracking.FormQuestion
	ProtocolForms []tracking.ProtocolForm
}

// Observation is one fact row joined with its parsed score.
type Observation struct {
	FactID     int64
	ClientID   int64
	FormID     int64
	ProtocolID int64
	QuestionID int64
	ResponseID int64
	TimePoint  tracking.TimePoint
	Score      int
}

// Snapshot is an immutable, indexed view of the store at one version.
type Snapshot struct {
	Tables
	Version  tracking.Version
	LoadedAt time.Time

	// Observations holds the facts whose response parsed as a score in
	// 0..MaxScore and whose time point is known, in fact id order.
	Observations []Observation
	// Skipped counts facts left out of Observations.
	Skipped int

	protocols map[int64]*tracking.Protocol
	clients   map[int64]*tracking.Client
	forms     map[int64]*tracking.Form
	questions map[int64]*tracking.Question
	responses map[int64]*tracking.Response
}

// NewSnapshot indexes t and joins facts with their responses.
func NewSnapshot(t Tables, version tracking.Version, loadedAt time.Time) *Snapshot {
	s := &Snapshot{
		Tables:    t,
		Version:   version,
		LoadedAt:  loadedAt,
		protocols: make(map[int64]*tracking.Protocol, len(t.Protocols)),
		clients:   make(map[int64]*tracking.Client, len(t.Clients)),
		forms:     make(map[int64]*tracking.Form, len(t.Forms)),
		questions: make(map[int64]*tracking.Question, len(t.Questions)),
		responses: make(map[int64]*tracking.Response, len(t.Responses)),
	}
	for i := range s.Tables.Protocols {
		s.protocols[s.Tables.Protocols[i].ID] = &s.Tables.Protocols[i]
	}
	for i := range s.Tables.Clients {
		s.clients[s.Tables.Clients[i].ID] = &s.Tables.Clients[i]
	}
	for i := range s.Tables.Forms {
		s.forms[s.Tables.Forms[i].ID] = &s.Tables.Forms[i]
	}
	for i := range s.Tables.Questions {
		s.questions[s.Tables.Questions[i].ID] = &s.Tables.Questions[i]
	}
	for i := range s.Tables.Responses {
		s.responses[s.Tables.Responses[i].ID] = &s.Tables.Responses[i]
	}

	s.Observations = make([]Observation, 0, len(t.Facts))
	for _, f := range t.Facts {
		r, ok := s.responses[f.ResponseID]
		if !ok || !f.TimePoint.Valid() {
			s.Skipped++
			continue
		}
		score, err := r.Score()
		if err != nil || score > tracking.MaxScore {
			s.Skipped++
			continue
		}
		s.Observations = append(s.Observations, Observation{
			FactID:     f.ID,
			ClientID:   f.ClientID,
			FormID:     f.FormID,
			ProtocolID: f.ProtocolID,
			QuestionID: f.QuestionID,
			ResponseID: f.ResponseID,
			TimePoint:  f.TimePoint,
			Score:      score,
		})
	}
	return s
}

func (s *Snapshot) Protocol(id int64) (*tracking.Protocol, bool) {
	p, ok := s.protocols[id]
	return p, ok
}

func (s *Snapshot) Client(id int64) (*tracking.Client, bool) {
	c, ok := s.clients[id]
	return c, ok
}

func (s *Snapshot) Form(id int64) (*tracking.Form, bool) {
	f, ok := s.forms[id]
	return f, ok
}

func (s *Snapshot) Question(id int64) (*tracking.Question, bool) {
	q, ok := s.questions[id]
	return q, ok
}

func (s *Snapshot) Response(id int64) (*tracking.Response, bool) {
	r, ok := s.responses[id]
	return r, ok
}

// FormNames maps form id to name.
func (s *Snapshot) FormNames() map[int64]string {
	out := make(map[int64]string, len(s.Tables.Forms))
	for _, f := range s.Tables.Forms {
		out[f.ID] = f.Name
	}
	return out
}

// ProtocolNames maps protocol id to name.
func (s *Snapshot) ProtocolNames() map[int64]string {
	out := make(map[int64]string, len(s.Tables.Protocols))
	for _, p := range s.Tables.Protocols {
		out[p.ID] = p.Name
	}
	return out
}

// ClientNames maps client id to name.
func (s *Snapshot) ClientNames() map[int64]string {
	out := make(map[int64]string, len(s.Tables.Clients))
	for _, c := range s.Tables.Clients {
		out[c.ID] = c.Name
	}
	return out
}

// FormQuestionIDs returns the question ids linked to form, in id order.
func (s *Snapshot) FormQuestionIDs(formID int64) []int64 {
	var out []int64
	for _, fq := range s.Tables.FormQuestions {
		if fq.FormID == formID {
			out = append(out, fq.QuestionID)
		}
	}
	return out
}

// Filter returns the observations matching f, preserving order.
func (s *Snapshot) Filter(f Filter) []Observation {
	var out []Observation
	for _, o := range s.Observations {
		if f.Match(o) {
			out = append(out, o)
		}
	}
	return out
}
