package tracking

import "context"

// Writer inserts rows. Create methods assign ID and timestamps on the
// argument.
type Writer interface {
	CreateProtocol(ctx context.Context, p *Protocol) error
	CreateClient(ctx context.Context, c *Client) error
	CreateForm(ctx context.Context, f *Form) error
	CreateQuestion(ctx context.Context, q *Question) error
	CreateResponse(ctx context.Context, r *Response) error
	CreateQuestionResponse(ctx context.Context, qr *QuestionResponse) error
	CreateClientFormResponse(ctx context.Context, cfr *ClientFormResponse) error
	LinkFormQuestion(ctx context.Context, formID, questionID int64) error
	LinkProtocolForm(ctx context.Context, protocolID, formID int64) error
}

// Reader reads whole tables. The reporting layer loads everything once per
// content version, so there is no paging here.
type Reader interface {
	ListProtocols(ctx context.Context) ([]Protocol, error)
	ListClients(ctx context.Context) ([]Client, error)
	ListForms(ctx context.Context) ([]Form, error)
	ListQuestions(ctx context.Context) ([]Question, error)
	ListResponses(ctx context.Context) ([]Response, error)
	ListClientFormResponses(ctx context.Context) ([]ClientFormResponse, error)
	ListFormQuestions(ctx context.Context) ([]FormQuestion, error)
	ListProtocolForms(ctx context.Context) ([]ProtocolForm, error)
	GetClient(ctx context.Context, id int64) (*Client, error)
	Version(ctx context.Context) (Version, error)
}

type Repository interface {
	Reader
	Writer
}
