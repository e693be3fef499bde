package models

import "time"

// ReportSchema discriminates the two persisted report shapes. Both are
// variants of the one Report type below rather than separate entities.
type ReportSchema string

const (
	// SchemaClinical is the free-form clinical record with a detail bag.
	SchemaClinical ReportSchema = "clinical"
	// SchemaLab is the structured lab-style record with a tests list.
	SchemaLab ReportSchema = "lab"
)

// LabTest is one measured result in a lab-style report.
type LabTest struct {
	Name   string `json:"name" firestore:"name"`
	Value  string `json:"value" firestore:"value"`
	Unit   string `json:"unit" firestore:"unit"`
	Range  string `json:"range" firestore:"range"`
	Status string `json:"status" firestore:"status"`
}

// Report is the persisted clinical-report record.
//
// The clinical variant uses Title/Category/ImageURL/AdditionalDetails; the lab
// variant uses ReportType/Tests/SourceURI. Doctor, Hospital, Date and Summary
// apply to both. A Report never carries a "summary" key inside
// AdditionalDetails; normalization promotes it into the Summary field.
type Report struct {
	ID     string       `json:"id,omitempty" firestore:"-"`
	Schema ReportSchema `json:"schema" firestore:"schema"`

	Title             string            `json:"title" firestore:"title"`
	Category          string            `json:"category" firestore:"category"`
	Doctor            string            `json:"doctor" firestore:"doctor"`
	Hospital          string            `json:"hospital" firestore:"hospital"`
	Date              string            `json:"date" firestore:"date"`
	ImageURL          string            `json:"imageUrl" firestore:"imageUrl"`
	Summary           string            `json:"summary" firestore:"summary"`
	AdditionalDetails map[string]string `json:"additionalDetails,omitempty" firestore:"additionalDetails,omitempty"`

	ReportType string    `json:"reportType,omitempty" firestore:"reportType,omitempty"`
	Tests      []LabTest `json:"tests,omitempty" firestore:"tests,omitempty"`
	SourceURI  string    `json:"sourceURI,omitempty" firestore:"sourceURI,omitempty"`

	CreatedAt time.Time `json:"createdAt" firestore:"createdAt,serverTimestamp"`
	UpdatedAt time.Time `json:"updatedAt" firestore:"updatedAt,serverTimestamp"`
}
