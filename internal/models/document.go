package models

import "time"

// Document is a unit of knowledge-base content, typically a single PDF page.
type Document struct {
	ID       string
	Source   string
	Title    string
	Content  string
	Page     int
	Metadata map[string]interface{}
}

type ProcessedDocument struct {
	Document
	Chunks    []string
	Embedding [][]float32
}

// Answer is the final result of running a query through the assistant.
type Answer struct {
	Text       string    `json:"answer"`
	SourceType string    `json:"source_type"`
	Confidence float64   `json:"confidence"`
	Sources    []string  `json:"sources"`
	SearchPath []string  `json:"search_path"`
	Query      string    `json:"query"`
	Attempts   int       `json:"search_attempts"`
	Timestamp  time.Time `json:"timestamp"`
	Err        string    `json:"error,omitempty"`
}

// WebResult is a single hit from the web-search fallback.
type WebResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
	Trusted bool   `json:"is_trusted"`
}
