package models

import "time"

// Source is one cited excerpt in a chat answer.
type Source struct {
	Doc     string `json:"doc"`
	Excerpt string `json:"excerpt"`
}

// History is a persisted chat exchange. UsedDocuments records whether the
// answer was grounded in retrieved excerpts or general model knowledge.
type History struct {
	ID            int64     `json:"id"`
	Query         string    `json:"query"`
	Answer        string    `json:"answer"`
	Sources       []Source  `json:"sources"`
	UsedDocuments bool      `json:"used_documents"`
	CreatedAt     time.Time `json:"created_at"`
}

// HistorySummary is the trimmed listing shape for GET /history.
type HistorySummary struct {
	ID        int64     `json:"id"`
	Query     string    `json:"query"`
	CreatedAt time.Time `json:"created_at"`
}
