package models

import "time"

// EnrichmentStatus tells whether an AI-written part of a response came from the
// model, from a template, or could not be produced at all.
type EnrichmentStatus string

const (
	EnrichmentNone     EnrichmentStatus = ""
	EnrichmentAI       EnrichmentStatus = "ai"
	EnrichmentFallback EnrichmentStatus = "fallback"
	EnrichmentFailed   EnrichmentStatus = "failed"
)

type RagSearchRequest struct {
	Query            string `json:"query"`
	TopK             int    `json:"top_k"`
	Country          string `json:"country,omitempty"`
	HasStartup       *bool  `json:"has_startup,omitempty"`
	GenerateResponse bool   `json:"generate_response"`
}

type RagSearchResult struct {
	ProfileID          int     `json:"profile_id"`
	Name               string  `json:"name"`
	Telegram           string  `json:"telegram"`
	LinkedIn           string  `json:"linkedin"`
	Bio                string  `json:"bio"`
	Skills             string  `json:"skills"`
	LookingFor         string  `json:"looking_for"`
	HasStartup         bool    `json:"has_startup"`
	StartupName        string  `json:"startup_name,omitempty"`
	StartupStage       string  `json:"startup_stage,omitempty"`
	StartupDescription string  `json:"startup_description,omitempty"`
	CanHelp            string  `json:"can_help"`
	NeedsHelp          string  `json:"needs_help"`
	Country            string  `json:"country,omitempty"`
	City               string  `json:"city,omitempty"`
	Similarity         float64 `json:"similarity"`
}

type RagSearchResponse struct {
	Results         []RagSearchResult `json:"results"`
	TotalResults    int               `json:"total_results"`
	Narrative       string            `json:"narrative,omitempty"`
	NarrativeStatus EnrichmentStatus  `json:"narrative_status,omitempty"`
}

type MatchRequest struct {
	MainActivity     string `json:"main_activity"`
	Interests        string `json:"interests"`
	Country          string `json:"country"`
	City             string `json:"city"`
	TopK             int    `json:"top_k"`
	IncludeAISummary bool   `json:"include_ai_summary"`
}

type MatchResult struct {
	ProfileID      int     `json:"profile_id"`
	Name           string  `json:"name"`
	Telegram       string  `json:"telegram"`
	LinkedIn       string  `json:"linkedin"`
	Photo          string  `json:"photo,omitempty"`
	MainActivity   string  `json:"main_activity"`
	Interests      string  `json:"interests"`
	Country        string  `json:"country"`
	City           string  `json:"city"`
	Similarity     float64 `json:"similarity"`
	AISummary      string  `json:"ai_summary,omitempty"`
	StarterMessage string  `json:"starter_message,omitempty"`
}

type MatchResponse struct {
	Matches       []MatchResult    `json:"matches"`
	TotalMatches  int              `json:"total_matches"`
	SummaryStatus EnrichmentStatus `json:"summary_status,omitempty"`
}

// MatchSummary is the AI (or templated) blurb for one matched profile.
type MatchSummary struct {
	ProfileID      int    `json:"profile_id"`
	Summary        string `json:"summary"`
	StarterMessage string `json:"starter_message"`
}

type ImportError struct {
	ProfileID int    `json:"profile_id"`
	Message   string `json:"message"`
}

type BatchImportResult struct {
	TotalProcessed int           `json:"total_processed"`
	Created        int           `json:"created"`
	Updated        int           `json:"updated"`
	Deleted        int           `json:"deleted"`
	Errors         []ImportError `json:"errors"`
	ArchivePath    string        `json:"archive_path,omitempty"`
}

type ParseStatus string

const (
	ParseAI       ParseStatus = "parsed"
	ParseFallback ParseStatus = "fallback"
	ParseFailed   ParseStatus = "failed"
)

// ParseResult is the outcome of a non-persisting parse preview.
type ParseResult struct {
	ProfileID int          `json:"profile_id"`
	Status    ParseStatus  `json:"status"`
	Fields    ParsedFields `json:"fields"`
	Error     string       `json:"error,omitempty"`
	At        time.Time    `json:"at"`
}
