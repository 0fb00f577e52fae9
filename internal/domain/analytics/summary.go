package analytics

import "github.com/naitur/dashboard/internal/domain/dataset"

// Summary is the headline table on the overview page.
type Summary struct {
	TotalClients    int `json:"total_clients"`
	QuestionsFilled int `json:"questions_filled"`
	TotalForms      int `json:"total_forms"`
	TotalProtocols  int `json:"total_protocols"`
	FormsFilled     int `json:"forms_filled"`
}

// Summarize counts the snapshot's clients, fact rows, forms and protocols,
// and the number of distinct forms that received at least one answer.
func Summarize(s *dataset.Snapshot) Summary {
	filled := make(map[int64]struct{})
	for _, f := range s.Facts {
		filled[f.FormID] = struct{}{}
	}
	return Summary{
		TotalClients:    len(s.Clients),
		QuestionsFilled: len(s.Facts),
		TotalForms:      len(s.Forms),
		TotalProtocols:  len(s.Protocols),
		FormsFilled:     len(filled),
	}
}
