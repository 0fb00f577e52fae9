package export

import (
	"errors"
	"fmt"

	"github.com/naitur/dashboard/internal/domain/analytics"
	"github.com/naitur/dashboard/internal/domain/dataset"
	"github.com/naitur/dashboard/internal/domain/tracking"
)

// ReportType names a report preview.
type ReportType string

const (
	ProtocolEfficacy ReportType = "protocol-efficacy"
	ClientReport     ReportType = "client"
)

// ErrPDFNotImplemented is returned for PDF output, which is not built yet.
var ErrPDFNotImplemented = errors.New("pdf report: feature not implemented yet")

// ProtocolEfficacyReport is the trend of each selected protocol.
type ProtocolEfficacyReport struct {
	Protocols []analytics.Series `json:"protocols"`
}

// ClientProgressReport shows one client's trend by form and by protocol.
type ClientProgressReport struct {
	Client     tracking.Client    `json:"client"`
	ByForm     []analytics.Series `json:"by_form"`
	ByProtocol []analytics.Series `json:"by_protocol"`
}

func BuildProtocolEfficacy(s *dataset.Snapshot, protocols dataset.IDFilter) ProtocolEfficacyReport {
	obs := s.Filter(dataset.Filter{Protocols: protocols})
	return ProtocolEfficacyReport{
		Protocols: analytics.Trend(obs, analytics.ByProtocol, s.ProtocolNames()),
	}
}

func BuildClientProgress(s *dataset.Snapshot, clientID int64) (ClientProgressReport, error) {
	c, ok := s.Client(clientID)
	if !ok {
		return ClientProgressReport{}, fmt.Errorf("client %d: %w", clientID, tracking.ErrNotFound)
	}
	obs := s.Filter(dataset.Filter{Clients: dataset.Only(clientID)})
	return ClientProgressReport{
		Client:     *c,
		ByForm:     analytics.Trend(obs, analytics.ByForm, s.FormNames()),
		ByProtocol: analytics.Trend(obs, analytics.ByProtocol, s.ProtocolNames()),
	}, nil
}
