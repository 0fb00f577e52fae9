package tracking

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/naitur/dashboard/internal/platform/db"
)

type sqlRepo struct {
	store db.Store
	now   func() time.Time
}

// NewRepository returns a Repository over store. Statements are portable
// between the postgres and sqlite dialects.
func NewRepository(store db.Store) Repository {
	return &sqlRepo{store: store, now: func() time.Time {
		return time.Now().UTC().Truncate(time.Microsecond)
	}}
}

func (r *sqlRepo) conn(ctx context.Context) db.Conn {
	return db.ConnFor(ctx, r.store)
}

func (r *sqlRepo) insert(ctx context.Context, query string, args ...any) (int64, error) {
	var id int64
	err := r.conn(ctx).QueryRow(ctx, query+" RETURNING id", args...).Scan(&id)
	return id, err
}

func (r *sqlRepo) CreateProtocol(ctx context.Context, p *Protocol) error {
	p.CreatedAt, p.UpdatedAt = r.now(), r.now()
	id, err := r.insert(ctx, `INSERT INTO protocol (name, description, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		p.Name, p.Description, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert protocol %q: %w", p.Name, err)
	}
	p.ID = id
	return nil
}

func (r *sqlRepo) CreateClient(ctx context.Context, c *Client) error {
	c.CreatedAt, c.UpdatedAt = r.now(), r.now()
	id, err := r.insert(ctx, `INSERT INTO client (name, email, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		c.Name, c.Email, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert client %q: %w", c.Name, err)
	}
	c.ID = id
	return nil
}

func (r *sqlRepo) CreateForm(ctx context.Context, f *Form) error {
	f.CreatedAt, f.UpdatedAt = r.now(), r.now()
	id, err := r.insert(ctx, `INSERT INTO form (name, description, type, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		f.Name, f.Description, f.Type, f.CreatedAt, f.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert form %q: %w", f.Name, err)
	}
	f.ID = id
	return nil
}

func (r *sqlRepo) CreateQuestion(ctx context.Context, q *Question) error {
	q.CreatedAt, q.UpdatedAt = r.now(), r.now()
	id, err := r.insert(ctx, `INSERT INTO question (text, description, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		q.Text, q.Description, q.CreatedAt, q.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert question: %w", err)
	}
	q.ID = id
	return nil
}

func (r *sqlRepo) CreateResponse(ctx context.Context, resp *Response) error {
	resp.CreatedAt, resp.UpdatedAt = r.now(), r.now()
	id, err := r.insert(ctx, `INSERT INTO response (text, created_at, updated_at) VALUES (?, ?, ?)`,
		resp.Text, resp.CreatedAt, resp.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert response: %w", err)
	}
	resp.ID = id
	return nil
}

func (r *sqlRepo) CreateQuestionResponse(ctx context.Context, qr *QuestionResponse) error {
	qr.CreatedAt, qr.UpdatedAt = r.now(), r.now()
	id, err := r.insert(ctx, `INSERT INTO question_response (question_id, response_id, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		qr.QuestionID, qr.ResponseID, qr.CreatedAt, qr.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert question_response: %w", err)
	}
	qr.ID = id
	return nil
}

func (r *sqlRepo) CreateClientFormResponse(ctx context.Context, cfr *ClientFormResponse) error {
	if !cfr.TimePoint.Valid() {
		return fmt.Errorf("insert client_form_response: unknown time point %q", cfr.TimePoint)
	}
	cfr.CreatedAt, cfr.UpdatedAt = r.now(), r.now()
	id, err := r.insert(ctx, `
		INSERT INTO client_form_response (client_id, form_id, protocol_id, question_id, response_id,
			time_point, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		cfr.ClientID, cfr.FormID, cfr.ProtocolID, cfr.QuestionID, cfr.ResponseID,
		string(cfr.TimePoint), cfr.CreatedAt, cfr.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert client_form_response: %w", err)
	}
	cfr.ID = id
	return nil
}

func (r *sqlRepo) LinkFormQuestion(ctx context.Context, formID, questionID int64) error {
	now := r.now()
	err := r.conn(ctx).Exec(ctx, `INSERT INTO form_question (form_id, question_id, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		formID, questionID, now, now)
	if err != nil {
		return fmt.Errorf("link form %d question %d: %w", formID, questionID, err)
	}
	return nil
}

func (r *sqlRepo) LinkProtocolForm(ctx context.Context, protocolID, formID int64) error {
	now := r.now()
	err := r.conn(ctx).Exec(ctx, `INSERT INTO protocol_form (protocol_id, form_id, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		protocolID, formID, now, now)
	if err != nil {
		return fmt.Errorf("link protocol %d form %d: %w", protocolID, formID, err)
	}
	return nil
}

// list runs query and scans every row with scan.
func list[T any](ctx context.Context, c db.Conn, table, query string, scan func(db.Row) (T, error)) ([]T, error) {
	rows, err := c.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", table, err)
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", table, err)
	}
	return out, nil
}

const (
	protocolCols = `id, name, description, created_at, updated_at`
	clientCols   = `id, name, email, created_at, updated_at`
	formCols     = `id, name, description, type, created_at, updated_at`
	questionCols = `id, text, description, created_at, updated_at`
	responseCols = `id, text, created_at, updated_at`
	cfrCols      = `id, client_id, form_id, protocol_id, question_id, response_id, time_point, created_at, updated_at`
)

func scanProtocol(row db.Row) (Protocol, error) {
	var p Protocol
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func scanClient(row db.Row) (Client, error) {
	var c Client
	err := row.Scan(&c.ID, &c.Name, &c.Email, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func scanForm(row db.Row) (Form, error) {
	var f Form
	err := row.Scan(&f.ID, &f.Name, &f.Description, &f.Type, &f.CreatedAt, &f.UpdatedAt)
	return f, err
}

func scanQuestion(row db.Row) (Question, error) {
	var q Question
	err := row.Scan(&q.ID, &q.Text, &q.Description, &q.CreatedAt, &q.UpdatedAt)
	return q, err
}

func scanResponse(row db.Row) (Response, error) {
	var resp Response
	err := row.Scan(&resp.ID, &resp.Text, &resp.CreatedAt, &resp.UpdatedAt)
	return resp, err
}

func scanClientFormResponse(row db.Row) (ClientFormResponse, error) {
	var (
		f  ClientFormResponse
		tp string
	)
	err := row.Scan(&f.ID, &f.ClientID, &f.FormID, &f.ProtocolID, &f.QuestionID, &f.ResponseID,
		&tp, &f.CreatedAt, &f.UpdatedAt)
	f.TimePoint = TimePoint(tp)
	return f, err
}

func (r *sqlRepo) ListProtocols(ctx context.Context) ([]Protocol, error) {
	return list(ctx, r.conn(ctx), "protocol", `SELECT `+protocolCols+` FROM protocol ORDER BY id`, scanProtocol)
}

func (r *sqlRepo) ListClients(ctx context.Context) ([]Client, error) {
	return list(ctx, r.conn(ctx), "client", `SELECT `+clientCols+` FROM client ORDER BY id`, scanClient)
}

func (r *sqlRepo) ListForms(ctx context.Context) ([]Form, error) {
	return list(ctx, r.conn(ctx), "form", `SELECT `+formCols+` FROM form ORDER BY id`, scanForm)
}

func (r *sqlRepo) ListQuestions(ctx context.Context) ([]Question, error) {
	return list(ctx, r.conn(ctx), "question", `SELECT `+questionCols+` FROM question ORDER BY id`, scanQuestion)
}

func (r *sqlRepo) ListResponses(ctx context.Context) ([]Response, error) {
	return list(ctx, r.conn(ctx), "response", `SELECT `+responseCols+` FROM response ORDER BY id`, scanResponse)
}

func (r *sqlRepo) ListClientFormResponses(ctx context.Context) ([]ClientFormResponse, error) {
	return list(ctx, r.conn(ctx), "client_form_response",
		`SELECT `+cfrCols+` FROM client_form_response ORDER BY id`, scanClientFormResponse)
}

func (r *sqlRepo) ListFormQuestions(ctx context.Context) ([]FormQuestion, error) {
	return list(ctx, r.conn(ctx), "form_question",
		`SELECT form_id, question_id, created_at, updated_at FROM form_question ORDER BY form_id, question_id`,
		func(row db.Row) (FormQuestion, error) {
			var fq FormQuestion
			err := row.Scan(&fq.FormID, &fq.QuestionID, &fq.CreatedAt, &fq.UpdatedAt)
			return fq, err
		})
}

func (r *sqlRepo) ListProtocolForms(ctx context.Context) ([]ProtocolForm, error) {
	return list(ctx, r.conn(ctx), "protocol_form",
		`SELECT protocol_id, form_id, created_at, updated_at FROM protocol_form ORDER BY protocol_id, form_id`,
		func(row db.Row) (ProtocolForm, error) {
			var pf ProtocolForm
			err := row.Scan(&pf.ProtocolID, &pf.FormID, &pf.CreatedAt, &pf.UpdatedAt)
			return pf, err
		})
}

func (r *sqlRepo) GetClient(ctx context.Context, id int64) (*Client, error) {
	c, err := scanClient(r.conn(ctx).QueryRow(ctx, `SELECT `+clientCols+` FROM client WHERE id = ?`, id))
	if err != nil {
		if db.IsNoRows(err) {
			return nil, fmt.Errorf("client %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("get client %d: %w", id, err)
	}
	return &c, nil
}

var versionTables = []string{
	"protocol", "client", "form", "question", "response", "question_response", "client_form_response",
}

// Version combines the row count and highest id of every id-keyed table
// with the row counts of the link tables. Rows are append-only, so any
// insert or delete changes it.
func (r *sqlRepo) Version(ctx context.Context) (Version, error) {
	var sel []string
	for _, t := range versionTables {
		sel = append(sel, fmt.Sprintf("(SELECT COUNT(*) FROM %s)", t), fmt.Sprintf("(SELECT COALESCE(MAX(id), 0) FROM %s)", t))
	}
	sel = append(sel, "(SELECT COUNT(*) FROM form_question)", "(SELECT COUNT(*) FROM protocol_form)")

	vals := make([]int64, len(sel))
	dest := make([]any, len(sel))
	for i := range vals {
		dest[i] = &vals[i]
	}
	if err := r.conn(ctx).QueryRow(ctx, "SELECT "+strings.Join(sel, ", ")).Scan(dest...); err != nil {
		return "", fmt.Errorf("read store version: %w", err)
	}

	parts := make([]string, 0, len(versionTables)+2)
	for i, t := range versionTables {
		parts = append(parts, fmt.Sprintf("%s:%d/%d", t, vals[2*i], vals[2*i+1]))
	}
	n := len(versionTables) * 2
	parts = append(parts, fmt.Sprintf("form_question:%d", vals[n]), fmt.Sprintf("protocol_form:%d", vals[n+1]))
	return Version(strings.Join(parts, ";")), nil
}
