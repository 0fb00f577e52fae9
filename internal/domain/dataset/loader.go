package dataset

import (
	"context"
	"fmt"
	"time"

	"github.com/naitur/dashboard/internal/domain/tracking"
)

// Loader reads every table the reporting layer needs.
type Loader struct {
	repo tracking.Reader
	now  func() time.Time
}

func NewLoader(repo tracking.Reader) *Loader {
	return &Loader{repo: repo, now: time.Now}
}

// Version asks the store for its current content version.
func (l *Loader) Version(ctx context.Context) (tracking.Version, error) {
	return l.repo.Version(ctx)
}

// Load reads all tables and builds a snapshot tagged with version.
func (l *Loader) Load(ctx context.Context, version tracking.Version) (*Snapshot, error) {
	var (
		t   Tables
		err error
	)
	if t.Protocols, err = l.repo.ListProtocols(ctx); err != nil {
		return nil, fmt.Errorf("load protocols: %w", err)
	}
	if t.Clients, err = l.repo.ListClients(ctx); err != nil {
		return nil, fmt.Errorf("load clients: %w", err)
	}
	if t.Forms, err = l.repo.ListForms(ctx); err != nil {
		return nil, fmt.Errorf("load forms: %w", err)
	}
	if t.Questions, err = l.repo.ListQuestions(ctx); err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	if t.Responses, err = l.repo.ListResponses(ctx); err != nil {
		return nil, fmt.Errorf("load responses: %w", err)
	}
	if t.Facts, err = l.repo.ListClientFormResponses(ctx); err != nil {
		return nil, fmt.Errorf("load client form responses: %w", err)
	}
	if t.FormQuestions, err = l.repo.ListFormQuestions(ctx); err != nil {
		return nil, fmt.Errorf("load form questions: %w", err)
	}
	if t.ProtocolForms, err = l.repo.ListProtocolForms(ctx); err != nil {
		return nil, fmt.Errorf("load protocol forms: %w", err)
	}
	return NewSnapshot(t, version, l.now()), nil
}
