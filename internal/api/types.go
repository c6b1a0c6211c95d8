package api

import "reeler/internal/records"

// ConversionReport is the PUT /converting body. A missing status is a
// heartbeat. Host, when present, must own the claim.
type ConversionReport struct {
	Status *records.ConverterStatus `json:"status,omitempty"`
	Host   string                   `json:"host,omitempty"`
}

// HealthResponse is the GET /health payload.
type HealthResponse struct {
	Status  string `json:"status"`
	Records int    `json:"records"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

const headerRequestID = "X-Request-Id"
