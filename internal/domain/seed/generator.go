package seed

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/naitur/dashboard/internal/domain/tracking"
	"github.com/naitur/dashboard/internal/platform/db"
)

const (
	maxExtraProtocols = 2
	followUpDraws     = 5
	minReduction      = 0.05
	maxReduction      = 0.80
)

// MaxFollowUpScore bounds every non-baseline score: floor(MaxScore * 0.80).
// Follow-ups are drawn independently of the client's own baseline answers,
// so they are bounded by this ceiling and not by the baseline average.
const MaxFollowUpScore = 3

// Options configure a generator run.
type Options struct {
	Clients int
	// Rand drives every random choice. A fixed seed reproduces a run exactly.
	Rand   *rand.Rand
	Logger zerolog.Logger
}

// Result summarises what a run wrote.
type Result struct {
	RunID     uuid.UUID `json:"run_id"`
	Protocols int       `json:"protocols"`
	Forms     int       `json:"forms"`
	Questions int       `json:"questions"`
	Clients   int       `json:"clients"`
	Answers   int       `json:"answers"`
	Elapsed   string    `json:"elapsed"`
}

// Generator fills an empty store with the catalog and a synthetic panel of
// clients answering it over every time point.
type Generator struct {
	store   db.Store
	repo    tracking.Writer
	catalog *Catalog
	opts    Options

	protocolIDs map[string]int64
	formIDs     map[string]int64
	questionIDs map[string][]int64
}

func NewGenerator(store db.Store, repo tracking.Writer, catalog *Catalog, opts Options) *Generator {
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Generator{
		store:       store,
		repo:        repo,
		catalog:     catalog,
		opts:        opts,
		protocolIDs: make(map[string]int64),
		formIDs:     make(map[string]int64),
		questionIDs: make(map[string][]int64),
	}
}

// Run writes the catalog, then one transaction per client.
func (g *Generator) Run(ctx context.Context) (*Result, error) {
	start := time.Now()
	res := &Result{RunID: uuid.New()}
	log := g.opts.Logger.With().Str("run_id", res.RunID.String()).Logger()

	if err := db.WithTx(ctx, g.store, func(ctx context.Context) error {
		return g.writeCatalog(ctx, res)
	}); err != nil {
		return nil, fmt.Errorf("write catalog: %w", err)
	}
	log.Info().Int("protocols", res.Protocols).Int("forms", res.Forms).
		Int("questions", res.Questions).Msg("catalog written")

	for i := 1; i <= g.opts.Clients; i++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		var answers int
		err := db.WithTx(ctx, g.store, func(ctx context.Context) error {
			var err error
			answers, err = g.writeClient(ctx, i)
			return err
		})
		if err != nil {
			return res, fmt.Errorf("client %d: %w", i, err)
		}
		res.Clients++
		res.Answers += answers
		if i%10 == 0 || i == g.opts.Clients {
			log.Info().Int("clients", res.Clients).Int("answers", res.Answers).Msg("clients written")
		}
	}

	res.Elapsed = time.Since(start).Round(time.Millisecond).String()
	return res, nil
}

func (g *Generator) writeCatalog(ctx context.Context, res *Result) error {
	for _, ps := range g.catalog.Protocols {
		p := &tracking.Protocol{Name: ps.Name, Description: ps.Description}
		if err := g.repo.CreateProtocol(ctx, p); err != nil {
			return err
		}
		g.protocolIDs[ps.Name] = p.ID
		res.Protocols++
	}

	for _, fs := range g.catalog.Forms {
		f := &tracking.Form{Name: fs.Name, Description: fs.Description, Type: fs.Type}
		if err := g.repo.CreateForm(ctx, f); err != nil {
			return err
		}
		g.formIDs[fs.Key] = f.ID
		res.Forms++
	}

	for _, fs := range g.catalog.Forms {
		for _, text := range fs.Questions {
			q := &tracking.Question{Text: text, Description: QuestionDescription(fs.Key)}
			if err := g.repo.CreateQuestion(ctx, q); err != nil {
				return err
			}
			if err := g.repo.LinkFormQuestion(ctx, g.formIDs[fs.Key], q.ID); err != nil {
				return err
			}
			g.questionIDs[fs.Key] = append(g.questionIDs[fs.Key], q.ID)
			res.Questions++
		}
	}

	for _, ps := range g.catalog.Protocols {
		for _, key := range ps.Forms {
			if err := g.repo.LinkProtocolForm(ctx, g.protocolIDs[ps.Name], g.formIDs[key]); err != nil {
				return err
			}
		}
	}
	return nil
}

// SelectProtocols returns the baseline protocol followed by 0 to 2 distinct
// optional protocols drawn uniformly.
func SelectProtocols(rng *rand.Rand, c *Catalog) []string {
	selected := []string{c.BaselineProtocol}
	optional := c.Optional()
	k := rng.Intn(maxExtraProtocols + 1)
	if k > len(optional) {
		k = len(optional)
	}
	for _, idx := range rng.Perm(len(optional))[:k] {
		selected = append(selected, optional[idx].Name)
	}
	return selected
}

func (g *Generator) writeClient(ctx context.Context, i int) (int, error) {
	client := &tracking.Client{
		Name:  fmt.Sprintf("Client %d", i),
		Email: fmt.Sprintf("client%d@example.com", i),
	}
	if err := g.repo.CreateClient(ctx, client); err != nil {
		return 0, err
	}

	rng := g.opts.Rand
	selected := SelectProtocols(rng, g.catalog)
	specs := make(map[string]ProtocolSpec, len(g.catalog.Protocols))
	for _, p := range g.catalog.Protocols {
		specs[p.Name] = p
	}

	answers := 0
	for _, tp := range tracking.TimePoints {
		for _, name := range selected {
			for _, key := range specs[name].Forms {
				for _, qid := range g.questionIDs[key] {
					var score int
					if tp == tracking.Baseline {
						score = BaselineScore(rng)
					} else {
						score = FollowUpScore(rng)
					}
					if err := g.writeAnswer(ctx, client.ID, g.protocolIDs[name], g.formIDs[key], qid, tp, score); err != nil {
						return answers, err
					}
					answers++
				}
			}
		}
	}
	return answers, nil
}

func (g *Generator) writeAnswer(ctx context.Context, clientID, protocolID, formID, questionID int64, tp tracking.TimePoint, score int) error {
	resp := &tracking.Response{Text: strconv.Itoa(score)}
	if err := g.repo.CreateResponse(ctx, resp); err != nil {
		return err
	}
	if err := g.repo.CreateQuestionResponse(ctx, &tracking.QuestionResponse{
		QuestionID: questionID,
		ResponseID: resp.ID,
	}); err != nil {
		return err
	}
	return g.repo.CreateClientFormResponse(ctx, &tracking.ClientFormResponse{
		ClientID:   clientID,
		FormID:     formID,
		ProtocolID: protocolID,
		QuestionID: questionID,
		ResponseID: resp.ID,
		TimePoint:  tp,
	})
}

// BaselineScore draws uniformly from 0..MaxScore.
func BaselineScore(rng *rand.Rand) int {
	return rng.Intn(tracking.MaxScore + 1)
}

// FollowUpScore averages five baseline-like draws and applies a reduction
// factor drawn uniformly from [0.05, 0.80].
func FollowUpScore(rng *rand.Rand) int {
	draws := make([]int, followUpDraws)
	for i := range draws {
		draws[i] = BaselineScore(rng)
	}
	factor := minReduction + rng.Float64()*(maxReduction-minReduction)
	return ReducedScore(draws, factor)
}

// ReducedScore is floor(mean(draws) * factor), never below zero.
func ReducedScore(draws []int, factor float64) int {
	if len(draws) == 0 {
		return 0
	}
	sum := 0
	for _, d := range draws {
		sum += d
	}
	score := int(math.Floor(float64(sum) / float64(len(draws)) * factor))
	if score < 0 {
		return 0
	}
	return score
}
