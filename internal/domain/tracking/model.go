package tracking

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrNotFound is returned when a client, form, protocol or question id does
// not exist in the store or snapshot.
var ErrNotFound = errors.New("not found")

// MaxScore is the top of the Likert scale every form uses. Percentages are
// computed against it.
const MaxScore = 4

// Protocol is a named treatment program; it groups forms.
type Protocol struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Client struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Form is a questionnaire instrument such as MAAS or PPS.
type Form struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Type        string    `json:"type"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Question struct {
	ID          int64     `json:"id"`
	Text        string    `json:"text"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type FormQuestion struct {
	FormID     int64     `json:"form_id"`
	QuestionID int64     `json:"question_id"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Response is one recorded answer. Text holds the score as a decimal string.
type Response struct {
	ID        int64     `json:"id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Score parses the response text as a non-negative integer score.
func (r Response) Score() (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(r.Text))
	if err != nil {
		return 0, fmt.Errorf("response %d: score %q: %w", r.ID, r.Text, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("response %d: negative score %d", r.ID, n)
	}
	return n, nil
}

type QuestionResponse struct {
	ID         int64     `json:"id"`
	QuestionID int64     `json:"question_id"`
	ResponseID int64     `json:"response_id"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// ClientFormResponse is the fact row: one answer by one client to one
// question of one form under one protocol at one time point.
type ClientFormResponse struct {
	ID         int64     `json:"id"`
	ClientID   int64     `json:"client_id"`
	FormID     int64     `json:"form_id"`
	ProtocolID int64     `json:"protocol_id"`
	QuestionID int64     `json:"question_id"`
	ResponseID int64     `json:"response_id"`
	TimePoint  TimePoint `json:"time_point"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type ProtocolForm struct {
	ProtocolID int64     `json:"protocol_id"`
	FormID     int64     `json:"form_id"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Version fingerprints the content of the store. Two equal versions mean
// no rows were added or removed in between.
type Version string
