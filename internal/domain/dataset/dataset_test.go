package dataset

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/naitur/dashboard/internal/domain/tracking"
)

// mockReader serves fixed tables and counts how often they are read.
type mockReader struct {
	tables     Tables
	version    tracking.Version
	versionErr error
	loads      int
}

func (m *mockReader) ListProtocols(context.Context) ([]tracking.Protocol, error) {
	m.loads++
	return m.tables.Protocols, nil
}
func (m *mockReader) ListClients(context.Context) ([]tracking.Client, error) {
	return m.tables.Clients, nil
}
func (m *mockReader) ListForms(context.Context) ([]tracking.Form, error) { return m.tables.Forms, nil }
func (m *mockReader) ListQuestions(context.Context) ([]tracking.Question, error) {
	return m.tables.Questions, nil
}
func (m *mockReader) ListResponses(context.Context) ([]tracking.Response, error) {
	return m.tables.Responses, nil
}
func (m *mockReader) ListClientFormResponses(context.Context) ([]tracking.ClientFormResponse, error) {
	return m.tables.Facts, nil
}
func (m *mockReader) ListFormQuestions(context.Context) ([]tracking.FormQuestion, error) {
	return m.tables.FormQuestions, nil
}
func (m *mockReader) ListProtocolForms(context.Context) ([]tracking.ProtocolForm, error) {
	return m.tables.ProtocolForms, nil
}
func (m *mockReader) GetClient(_ context.Context, id int64) (*tracking.Client, error) {
	for _, c := range m.tables.Clients {
		if c.ID == id {
			return &c, nil
		}
	}
	return nil, tracking.ErrNotFound
}
func (m *mockReader) Version(context.Context) (tracking.Version, error) {
	return m.version, m.versionErr
}

func sampleTables() Tables {
	return Tables{
		Protocols: []tracking.Protocol{{ID: 1, Name: "Depression Protocol"}},
		Clients:   []tracking.Client{{ID: 1, Name: "Client 1"}, {ID: 2, Name: "Client 2"}},
		Forms:     []tracking.Form{{ID: 10, Name: "Depression Form"}},
		Questions: []tracking.Question{{ID: 100, Text: "q1"}, {ID: 101, Text: "q2"}},
		Responses: []tracking.Response{
			{ID: 1000, Text: "3"},
			{ID: 1001, Text: "not a number"},
			{ID: 1002, Text: "1"},
			{ID: 1003, Text: "0"},
		},
		Facts: []tracking.ClientFormResponse{
			{ID: 1, ClientID: 1, FormID: 10, ProtocolID: 1, QuestionID: 100, ResponseID: 1000, TimePoint: tracking.Baseline},
			{ID: 2, ClientID: 1, FormID: 10, ProtocolID: 1, QuestionID: 101, ResponseID: 1001, TimePoint: tracking.Baseline},
			{ID: 3, ClientID: 2, FormID: 10, ProtocolID: 1, QuestionID: 100, ResponseID: 1002, TimePoint: tracking.OneYear},
			{ID: 4, ClientID: 2, FormID: 10, ProtocolID: 1, QuestionID: 101, ResponseID: 1003, TimePoint: "2-Years"},
			{ID: 5, ClientID: 2, FormID: 10, ProtocolID: 1, QuestionID: 101, ResponseID: 9999, TimePoint: tracking.OneYear},
		},
		FormQuestions: []tracking.FormQuestion{{FormID: 10, QuestionID: 100}, {FormID: 10, QuestionID: 101}},
	}
}

func TestNewSnapshot_JoinsAndSkipsBadRows(t *testing.T) {
	s := NewSnapshot(sampleTables(), "v1", time.Now())

	require.Len(t, s.Observations, 2)
	assert.Equal(t, 3, s.Skipped)
	assert.Equal(t, 3, s.Observations[0].Score)
	assert.Equal(t, tracking.OneYear, s.Observations[1].TimePoint)

	c, ok := s.Client(2)
	require.True(t, ok)
	assert.Equal(t, "Client 2", c.Name)
	_, ok = s.Form(99)
	assert.False(t, ok)

	assert.Equal(t, []int64{100, 101}, s.FormQuestionIDs(10))
	assert.Equal(t, "Depression Form", s.FormNames()[10])
}

func TestNewSnapshot_SkipsScoresAboveLikertRange(t *testing.T) {
	tables := sampleTables()
	tables.Responses = append(tables.Responses, tracking.Response{ID: 1004, Text: "50000000"})
	tables.Facts = append(tables.Facts, tracking.ClientFormResponse{
		ID: 6, ClientID: 1, FormID: 10, ProtocolID: 1, QuestionID: 100, ResponseID: 1004, TimePoint: tracking.OneMonth,
	})

	s := NewSnapshot(tables, "v1", time.Now())

	require.Len(t, s.Observations, 2)
	assert.Equal(t, 4, s.Skipped)
	for _, o := range s.Observations {
		assert.LessOrEqual(t, o.Score, tracking.MaxScore)
	}
}

func TestFilter(t *testing.T) {
	s := NewSnapshot(sampleTables(), "v1", time.Now())

	assert.Len(t, s.Filter(Filter{}), 2)
	assert.Len(t, s.Filter(Filter{Clients: Only(2)}), 1)
	assert.Empty(t, s.Filter(Filter{Forms: Only()}))
	assert.Len(t, s.Filter(Filter{TimePoints: []tracking.TimePoint{tracking.Baseline}}), 1)

	assert.True(t, Only().Empty())
	assert.False(t, All().Empty())
	assert.False(t, All().Restricted())
	assert.Nil(t, All().IDs())
	assert.Equal(t, []int64{1, 3, 7}, Only(7, 1, 3).IDs())
	assert.Empty(t, Only().IDs())
}

type countingObserver struct{ hits, misses, reloads int }

func (o *countingObserver) CacheHit()                 { o.hits++ }
func (o *countingObserver) CacheMiss()                { o.misses++ }
func (o *countingObserver) CacheReload(time.Duration) { o.reloads++ }

func TestCache_ReloadsOnlyWhenVersionChanges(t *testing.T) {
	ctx := context.Background()
	repo := &mockReader{tables: sampleTables(), version: "v1"}
	obs := &countingObserver{}
	cache := NewCache(NewLoader(repo), obs, zerolog.Nop())

	s1, err := cache.Get(ctx)
	require.NoError(t, err)
	s2, err := cache.Get(ctx)
	require.NoError(t, err)
	assert.Same(t, s1, s2)
	assert.Equal(t, 1, repo.loads)

	repo.version = "v2"
	s3, err := cache.Get(ctx)
	require.NoError(t, err)
	assert.NotSame(t, s1, s3)
	assert.Equal(t, tracking.Version("v2"), s3.Version)
	assert.Equal(t, 2, repo.loads)

	cache.Invalidate()
	_, err = cache.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, repo.loads)

	assert.Equal(t, 1, obs.hits)
	assert.Equal(t, 3, obs.misses)
	assert.Equal(t, 3, obs.reloads)
}

func TestCache_VersionError(t *testing.T) {
	repo := &mockReader{versionErr: errors.New("connection refused")}
	cache := NewCache(NewLoader(repo), nil, zerolog.Nop())
	_, err := cache.Get(context.Background())
	assert.Error(t, err)
	assert.Equal(t, 0, repo.loads)
}
