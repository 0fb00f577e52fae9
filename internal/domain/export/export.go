package export

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/naitur/dashboard/internal/domain/dataset"
	"github.com/naitur/dashboard/internal/domain/tracking"
)

// ErrUnknownColumn is returned when a requested column is not in Columns.
var ErrUnknownColumn = errors.New("unknown export column")

// ErrNoColumns is returned when an explicit, empty column choice is exported.
var ErrNoColumns = errors.New("no columns selected")

// Row is one fact row joined with every entity it references.
type Row struct {
	ClientID            int64
	ClientName          string
	Email               string
	FormID              int64
	FormName            string
	FormType            string
	ProtocolID          int64
	ProtocolName        string
	QuestionID          int64
	QuestionText        string
	QuestionDescription string
	ResponseID          int64
	ResponseText        string
	TimePoint           tracking.TimePoint
}

// Column is an exportable field with its display label.
type Column struct {
	Key   string
	Label string
	value func(Row) string
}

// Value renders the column for r.
func (c Column) Value(r Row) string { return c.value(r) }

func id(v int64) string { return strconv.FormatInt(v, 10) }

// Columns is the export catalogue in display order.
var Columns = []Column{
	{"client_name", "Client Name", func(r Row) string { return r.ClientName }},
	{"email", "Email", func(r Row) string { return r.Email }},
	{"form_name", "Form Name", func(r Row) string { return r.FormName }},
	{"protocol_name", "Protocol Name", func(r Row) string { return r.ProtocolName }},
	{"question_text", "Question Text", func(r Row) string { return r.QuestionText }},
	{"response_text", "Response Text", func(r Row) string { return r.ResponseText }},
	{"time_point", "Time Point", func(r Row) string { return string(r.TimePoint) }},
	{"client_id", "Client ID", func(r Row) string { return id(r.ClientID) }},
	{"form_id", "Form ID", func(r Row) string { return id(r.FormID) }},
	{"form_type", "Form Type", func(r Row) string { return r.FormType }},
	{"protocol_id", "Protocol ID", func(r Row) string { return id(r.ProtocolID) }},
	{"question_id", "Question ID", func(r Row) string { return id(r.QuestionID) }},
	{"question_description", "Question Description", func(r Row) string { return r.QuestionDescription }},
	{"response_id", "Response ID", func(r Row) string { return id(r.ResponseID) }},
}

const defaultColumnCount = 7

// DefaultColumns returns the labels selected when the caller picks none.
func DefaultColumns() []string {
	out := make([]string, defaultColumnCount)
	for i := range out {
		out[i] = Columns[i].Label
	}
	return out
}

// Labels returns every column label in catalogue order.
func Labels() []string {
	out := make([]string, len(Columns))
	for i, c := range Columns {
		out[i] = c.Label
	}
	return out
}

// LookupColumns resolves names (labels or keys, case-insensitive) to
// columns in the order given.
func LookupColumns(names []string) ([]Column, error) {
	out := make([]Column, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		found := false
		for _, c := range Columns {
			if strings.EqualFold(c.Label, n) || strings.EqualFold(c.Key, n) {
				out = append(out, c)
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("%w: %q", ErrUnknownColumn, n)
		}
	}
	return out, nil
}

// ClientRows joins every fact row of one client, in fact order. Facts whose
// references are missing keep empty text for the missing side.
func ClientRows(s *dataset.Snapshot, clientID int64) ([]Row, error) {
	client, ok := s.Client(clientID)
	if !ok {
		return nil, fmt.Errorf("client %d: %w", clientID, tracking.ErrNotFound)
	}

	var rows []Row
	for _, f := range s.Facts {
		if f.ClientID != clientID {
			continue
		}
		r := Row{
			ClientID:   client.ID,
			ClientName: client.Name,
			Email:      client.Email,
			FormID:     f.FormID,
			ProtocolID: f.ProtocolID,
			QuestionID: f.QuestionID,
			ResponseID: f.ResponseID,
			TimePoint:  f.TimePoint,
		}
		if form, ok := s.Form(f.FormID); ok {
			r.FormName, r.FormType = form.Name, form.Type
		}
		if p, ok := s.Protocol(f.ProtocolID); ok {
			r.ProtocolName = p.Name
		}
		if q, ok := s.Question(f.QuestionID); ok {
			r.QuestionText, r.QuestionDescription = q.Text, q.Description
		}
		if resp, ok := s.Response(f.ResponseID); ok {
			r.ResponseText = resp.Text
		}
		rows = append(rows, r)
	}
	return rows, nil
}

// WriteCSV writes a header of column labels followed by one record per row.
// A nil column list writes the default columns.
func WriteCSV(w io.Writer, rows []Row, columns []string) error {
	if columns == nil {
		columns = DefaultColumns()
	}
	if len(columns) == 0 {
		return ErrNoColumns
	}
	cols, err := LookupColumns(columns)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	header := make([]string, len(cols))
	for i, c := range cols {
		header[i] = c.Label
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	record := make([]string, len(cols))
	for _, r := range rows {
		for i, c := range cols {
			record[i] = c.Value(r)
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write csv record: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// FileName is the download name for a client's export.
func FileName(clientName string) string {
	name := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', '"', '\n', '\r':
			return '_'
		}
		return r
	}, clientName)
	return name + "_data.csv"
}
