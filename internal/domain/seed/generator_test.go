package seed

import (
	"context"
	"math"
	"math/rand"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/naitur/dashboard/internal/domain/tracking"
	"github.com/naitur/dashboard/internal/platform/db"
)

func newStore(t *testing.T) (db.Store, tracking.Repository) {
	t.Helper()
	ctx := context.Background()
	store, err := db.OpenSQLite(ctx, db.MemoryPath)
	require.NoError(t, err)
	t.Cleanup(store.Close)
	_, err = db.NewMigrator(store, nil).Up(ctx)
	require.NoError(t, err)
	return store, tracking.NewRepository(store)
}

func runGenerator(t *testing.T, clients int, seed int64) tracking.Repository {
	t.Helper()
	store, repo := newStore(t)
	catalog, err := DefaultCatalog()
	require.NoError(t, err)

	g := NewGenerator(store, repo, catalog, Options{
		Clients: clients,
		Rand:    rand.New(rand.NewSource(seed)),
		Logger:  zerolog.Nop(),
	})
	res, err := g.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, clients, res.Clients)
	assert.Equal(t, 5, res.Protocols)
	assert.Equal(t, 8, res.Forms)
	assert.Equal(t, 100, res.Questions)
	return repo
}

func TestGenerator_EveryClientTakesBaselineProtocol(t *testing.T) {
	ctx := context.Background()
	repo := runGenerator(t, 6, 7)

	protocols, err := repo.ListProtocols(ctx)
	require.NoError(t, err)
	var baselineID int64
	for _, p := range protocols {
		if p.Name == "Basic Protocol Template for Group Ceremony" {
			baselineID = p.ID
		}
	}
	require.NotZero(t, baselineID)

	facts, err := repo.ListClientFormResponses(ctx)
	require.NoError(t, err)

	perClient := map[int64]map[int64]bool{}
	for _, f := range facts {
		if perClient[f.ClientID] == nil {
			perClient[f.ClientID] = map[int64]bool{}
		}
		perClient[f.ClientID][f.ProtocolID] = true
	}
	require.Len(t, perClient, 6)
	for client, ps := range perClient {
		assert.Truef(t, ps[baselineID], "client %d missing baseline protocol", client)
		assert.LessOrEqualf(t, len(ps), 3, "client %d has %d protocols", client, len(ps))
	}
}

func TestGenerator_ScoresAndTimePoints(t *testing.T) {
	ctx := context.Background()
	repo := runGenerator(t, 3, 11)

	responses, err := repo.ListResponses(ctx)
	require.NoError(t, err)
	scores := make(map[int64]int, len(responses))
	for _, r := range responses {
		s, err := r.Score()
		require.NoError(t, err)
		scores[r.ID] = s
	}

	facts, err := repo.ListClientFormResponses(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, facts)

	seen := map[tracking.TimePoint]bool{}
	for _, f := range facts {
		seen[f.TimePoint] = true
		s := scores[f.ResponseID]
		assert.GreaterOrEqual(t, s, 0)
		if f.TimePoint == tracking.Baseline {
			assert.LessOrEqual(t, s, tracking.MaxScore)
		} else {
			assert.LessOrEqual(t, s, MaxFollowUpScore)
		}
	}
	assert.Len(t, seen, len(tracking.TimePoints))

	qr, err := repo.ListQuestions(ctx)
	require.NoError(t, err)
	assert.Len(t, qr, 100)
	assert.Equal(t, len(responses), len(facts))
}

func TestGenerator_SameSeedSameData(t *testing.T) {
	ctx := context.Background()
	a := runGenerator(t, 4, 42)
	b := runGenerator(t, 4, 42)

	fa, err := a.ListClientFormResponses(ctx)
	require.NoError(t, err)
	fb, err := b.ListClientFormResponses(ctx)
	require.NoError(t, err)
	require.Equal(t, len(fa), len(fb))

	ra, err := a.ListResponses(ctx)
	require.NoError(t, err)
	rb, err := b.ListResponses(ctx)
	require.NoError(t, err)
	for i := range ra {
		assert.Equal(t, ra[i].Text, rb[i].Text)
	}
	for i := range fa {
		assert.Equal(t, fa[i].ProtocolID, fb[i].ProtocolID)
		assert.Equal(t, fa[i].TimePoint, fb[i].TimePoint)
	}
}

func TestSelectProtocols(t *testing.T) {
	catalog, err := DefaultCatalog()
	require.NoError(t, err)
	rng := rand.New(rand.NewSource(1))

	counts := map[int]int{}
	for i := 0; i < 500; i++ {
		sel := SelectProtocols(rng, catalog)
		require.Equal(t, catalog.BaselineProtocol, sel[0])
		counts[len(sel)-1]++

		uniq := map[string]bool{}
		for _, s := range sel {
			assert.False(t, uniq[s], "duplicate protocol %s", s)
			uniq[s] = true
		}
	}
	for extra := 0; extra <= 2; extra++ {
		assert.Positivef(t, counts[extra], "no selection with %d extra protocols", extra)
	}
	assert.Zero(t, counts[3])
}

func TestReducedScore(t *testing.T) {
	assert.Equal(t, 0, ReducedScore(nil, 0.5))
	assert.Equal(t, 3, ReducedScore([]int{4, 4, 4, 4, 4}, 0.80))
	assert.Equal(t, 0, ReducedScore([]int{4, 4, 4, 4, 4}, 0.05))
	assert.Equal(t, 1, ReducedScore([]int{2, 3, 2, 3, 2}, 0.5))

	rng := rand.New(rand.NewSource(3))
	for i := 0; i < 1000; i++ {
		s := FollowUpScore(rng)
		assert.True(t, s >= 0 && s <= MaxFollowUpScore, "follow-up score %d", s)
		b := BaselineScore(rng)
		assert.True(t, b >= 0 && b <= tracking.MaxScore, "baseline score %d", b)
	}
}

func TestMaxFollowUpScore(t *testing.T) {
	assert.Equal(t, int(math.Floor(tracking.MaxScore*maxReduction)), MaxFollowUpScore)
}

// A follow-up never exceeds the reduced average of the draws it is built
// from, even though it may exceed the client's own baseline answers.
func TestFollowUpScore_NeverAboveReducedDrawAverage(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 5000; i++ {
		draws := make([]int, followUpDraws)
		sum := 0
		for j := range draws {
			draws[j] = BaselineScore(rng)
			sum += draws[j]
		}
		factor := minReduction + rng.Float64()*(maxReduction-minReduction)
		mean := float64(sum) / float64(len(draws))

		got := ReducedScore(draws, factor)
		require.GreaterOrEqual(t, got, 0)
		require.LessOrEqualf(t, float64(got), mean*factor, "draws %v factor %.2f", draws, factor)
		require.LessOrEqualf(t, float64(got), mean, "draws %v factor %.2f", draws, factor)
	}
}
