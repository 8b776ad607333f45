package models

import (
	"fmt"
	"time"
)

// RequestRecord captures one HTTP request's security-relevant facts.
// Created by the interceptor at request completion, immutable afterwards,
// and consumed by the telemetry batcher and sink.
type RequestRecord struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	Timestamp time.Time `json:"timestamp" gorm:"index"`

	Method      string `json:"method"`
	Path        string `json:"path" gorm:"index"`
	FullURL     string `json:"full_url"`
	QueryParams string `json:"query_params"`

	ClientIP   string `json:"client_ip" gorm:"index"`
	ClientPort int    `json:"client_port"`

	UserAgent     string `json:"user_agent"`
	Referer       string `json:"referer"`
	Origin        string `json:"origin"`
	ContentType   string `json:"content_type"`
	Authorization string `json:"authorization"` // deterministic hash, never the raw header

	User string `json:"user" gorm:"index"` // authenticated subject, empty if anonymous

	BodyRaw       string `json:"body_raw" gorm:"type:text"`
	BodySanitized string `json:"body_sanitized" gorm:"type:text"` // JSON with sensitive fields hashed
	BodySize      int    `json:"body_size"`

	ResponseStatus   int     `json:"response_status"`
	ResponseSuccess  bool    `json:"response_success"`
	ProcessingTimeMS float64 `json:"processing_time_ms"`
}

// CSVLine renders the record in the classifier's line format:
// "ip,path,method,user,body". The occurrence count is appended separately
// during deduplication.
func (r *RequestRecord) CSVLine() string {
	body := r.BodySanitized
	if body == "" {
		body = "{}"
	}
	return fmt.Sprintf("%s,%s,%s,%s,%s", r.ClientIP, r.Path, r.Method, r.User, body)
}
