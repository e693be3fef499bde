package models

// CandidateRecord is an unvalidated field bag recovered from the generative
// service's response. Nothing is guaranteed about the presence or shape of
// its fields until normalization runs.
type CandidateRecord map[string]any
