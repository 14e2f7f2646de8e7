package session

import (
	"context"
	"errors"
)

// ErrUnknownPatient is returned when no snapshot exists for a patient.
var ErrUnknownPatient = errors.New("unknown patient")

// SnapshotProvider fetches the cached patient context for a visit. A failed
// fetch is fatal to that operation only, never to the session.
type SnapshotProvider interface {
	BuildSnapshot(ctx context.Context, patientID int) (map[string]any, error)
}

// StaticSnapshotProvider serves canned records, used for demos and tests.
type StaticSnapshotProvider struct {
	records map[int]map[string]any
}

var _ SnapshotProvider = (*StaticSnapshotProvider)(nil)

// NewStaticSnapshotProvider returns a provider pre-loaded with demo records.
func NewStaticSnapshotProvider() *StaticSnapshotProvider {
	return &StaticSnapshotProvider{
		records: map[int]map[string]any{
			101: {
				"patient_id": 101,
				"name":       "Jordan Avery",
				"age":        54,
				"sex":        "F",
				"allergies":  []string{"penicillin"},
				"medications": []string{
					"lisinopril 10mg daily",
					"metformin 500mg twice daily",
				},
				"conditions":  []string{"hypertension", "type 2 diabetes"},
				"last_visit":  "2026-06-12",
				"vitals_last": map[string]any{"bp": "128/82", "pulse": 74},
			},
		},
	}
}

// Add registers or replaces a record.
func (p *StaticSnapshotProvider) Add(patientID int, record map[string]any) {
	p.records[patientID] = record
}

// BuildSnapshot implements SnapshotProvider.
func (p *StaticSnapshotProvider) BuildSnapshot(_ context.Context, patientID int) (map[string]any, error) {
	record, ok := p.records[patientID]
	if !ok {
		return nil, ErrUnknownPatient
	}
	out := make(map[string]any, len(record))
	for k, v := range record {
		out[k] = v
	}
	return out, nil
}
