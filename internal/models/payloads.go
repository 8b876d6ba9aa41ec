package models

// These structs define the JSON payloads the converter hands to downstream
// consumers.

// ConversionWorkflowArgs is the argument of the workflow execution started
// after a document has been converted.
type ConversionWorkflowArgs struct {
	DocumentID   string `json:"documentId"`
	OutputGCSUri string `json:"outputGcsUri"`
	Method       string `json:"method"`
	PageCount    int    `json:"pageCount"`
}

// ConversionManifest is stored next to the converted text.
type ConversionManifest struct {
	DocumentID       string `json:"documentId"`
	OriginalFilename string `json:"originalFilename"`
	FileHash         string `json:"fileHash"`
	Method           string `json:"method"`
	Repaired         bool   `json:"repaired"`
	Pages            int    `json:"pages"`
	OCRError         string `json:"ocrError,omitempty"`
	OutputBytes      int64  `json:"outputBytes"`
}
