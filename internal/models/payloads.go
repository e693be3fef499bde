package models

// These structs define the JSON payloads the HTTP entry points exchange with
// their callers.

// IngestResponse is the body returned by a successful ingestion.
type IngestResponse struct {
	Records []Report `json:"records"`
}

// ListResponse is the body returned by the report listing endpoint,
// ordered newest-first.
type ListResponse struct {
	Reports []Report `json:"reports"`
}

// ErrorResponse is the body returned for any failed request.
type ErrorResponse struct {
	Error string `json:"error"`
	Stage string `json:"stage,omitempty"`
}
