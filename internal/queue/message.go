// Package queue carries pipeline jobs over Kafka.
package queue

import (
	"encoding/json"
	"fmt"

	"github.com/joshsymonds/advisor/internal/database"
	"github.com/joshsymonds/advisor/internal/models"
)

// Kind names a job.
type Kind string

// Job kinds.
const (
	KindIngest       Kind = "ingest"
	KindGenerate     Kind = "generate"
	KindRecategorize Kind = "recategorize"
)

// Message is the JSON body of a job message.
type Message struct {
	Kind       Kind                       `json:"kind"`
	ReportID   string                     `json:"report_id,omitempty"`
	FileRef    string                     `json:"file_ref,omitempty"`
	ReportType models.ReportType          `json:"report_type,omitempty"`
	Filter     database.RecategorizeScope `json:"filter,omitempty"`
}

// Validate checks that m carries what its kind needs.
func (m Message) Validate() error {
	switch m.Kind {
	case KindIngest:
		if m.ReportID == "" {
			return fmt.Errorf("ingest message needs report_id")
		}
	case KindGenerate:
		if m.ReportID == "" {
			return fmt.Errorf("generate message needs report_id")
		}
		if m.ReportType != "" && !m.ReportType.Valid() {
			return fmt.Errorf("unknown report_type %q", m.ReportType)
		}
	case KindRecategorize:
		if m.Filter != "" && !m.Filter.Valid() {
			return fmt.Errorf("unknown filter %q", m.Filter)
		}
	default:
		return fmt.Errorf("unknown message kind %q", m.Kind)
	}
	return nil
}

// Key partitions messages so jobs for one report stay ordered.
func (m Message) Key() []byte {
	if m.ReportID != "" {
		return []byte(m.ReportID)
	}
	return []byte(m.Kind)
}

// ParseMessage decodes and validates a message body.
func ParseMessage(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, fmt.Errorf("failed to parse message as JSON: %w", err)
	}
	if err := m.Validate(); err != nil {
		return Message{}, err
	}
	return m, nil
}
