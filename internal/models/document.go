package models

import "time"

// Conversion statuses recorded in Firestore.
const (
	StatusConverting = "CONVERTING"
	StatusConverted  = "CONVERTED"
	StatusFailed     = "FAILED"
)

// Document represents the Firestore record of one uploaded file's conversion.
type Document struct {
	FileHash            string    `firestore:"fileHash,omitempty"`
	OriginalFilename    string    `firestore:"originalFilename,omitempty"`
	Kind                string    `firestore:"kind,omitempty"`
	Status              string    `firestore:"status,omitempty"`
	Method              string    `firestore:"method,omitempty"`
	Repaired            bool      `firestore:"repaired,omitempty"`
	ErrorDetails        string    `firestore:"errorDetails,omitempty"`
	PageCount           int       `firestore:"pageCount,omitempty"`
	OutputURI           string    `firestore:"outputUri,omitempty"`
	WorkflowExecutionID string    `firestore:"workflowExecutionId,omitempty"` // For traceability
	CreatedAt           time.Time `firestore:"createdAt,omitempty"`
}

// ConversionOutcome is what a successful conversion writes back to its record.
type ConversionOutcome struct {
	Method    string
	Repaired  bool
	OutputURI string
	OCRError  string
}
