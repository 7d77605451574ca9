package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yoockh/vibematch/internal/metrics"
	"github.com/yoockh/vibematch/internal/models"
	"github.com/yoockh/vibematch/internal/providers/llm"
	"github.com/yoockh/vibematch/internal/utils"
)

const (
	maxSummaryProfiles   = 3
	maxNarrativeProfiles = 5
)

// CompositionService writes the optional AI parts of search responses. It never
// fails a search: on provider errors it returns templated text, and reports
// EnrichmentFailed only when the caller's context is done.
type CompositionService interface {
	MatchSummaries(ctx context.Context, criteria models.MatchRequest, profiles []models.Profile) (map[int]models.MatchSummary, models.EnrichmentStatus)
	Narrative(ctx context.Context, query string, results []models.RagSearchResult) (string, models.EnrichmentStatus)
}

type CompositionOptions struct {
	ChatModel        string
	NarrativeTimeout time.Duration
}

type compositionService struct {
	chat    llm.ChatCompleter
	opts    CompositionOptions
	metrics *metrics.Metrics
	log     *logrus.Logger
}

func NewCompositionService(chat llm.ChatCompleter, opts CompositionOptions, m *metrics.Metrics, log *logrus.Logger) CompositionService {
	if opts.NarrativeTimeout <= 0 {
		opts.NarrativeTimeout = 30 * time.Second
	}
	if log == nil {
		log = logrus.New()
	}
	return &compositionService{chat: chat, opts: opts, metrics: m, log: log}
}

func (s *compositionService) MatchSummaries(ctx context.Context, criteria models.MatchRequest, profiles []models.Profile) (map[int]models.MatchSummary, models.EnrichmentStatus) {
	if len(profiles) > maxSummaryProfiles {
		profiles = profiles[:maxSummaryProfiles]
	}
	if len(profiles) == 0 {
		return map[int]models.MatchSummary{}, models.EnrichmentNone
	}

	raw, err := s.chat.CompleteChat(ctx, llm.ChatRequest{
		Model: s.opts.ChatModel,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: summarySystemPrompt},
			{Role: llm.RoleUser, Content: buildSummaryPrompt(criteria, profiles)},
		},
		Temperature: 0.7,
		MaxTokens:   500,
	})
	if err != nil {
		if ctx.Err() != nil {
			s.metrics.Enrichment("summary", string(models.EnrichmentFailed))
			return nil, models.EnrichmentFailed
		}
		s.log.WithError(err).Warn("match summary generation failed, using templates")
		s.metrics.Enrichment("summary", string(models.EnrichmentFallback))
		return templateSummaries(profiles), models.EnrichmentFallback
	}

	parsed, perr := decodeSummaries(raw)
	if perr != nil {
		s.log.WithError(perr).Warn("match summary response unparseable, using templates")
		s.metrics.Enrichment("summary", string(models.EnrichmentFallback))
		return templateSummaries(profiles), models.EnrichmentFallback
	}

	out := make(map[int]models.MatchSummary, len(profiles))
	status := models.EnrichmentFallback
	for i := range profiles {
		p := &profiles[i]
		if ms, ok := parsed[p.ID]; ok && ms.Summary != "" {
			if ms.StarterMessage == "" {
				ms.StarterMessage = templateStarter(p)
			}
			out[p.ID] = ms
			status = models.EnrichmentAI
			continue
		}
		out[p.ID] = templateSummary(p)
	}
	s.metrics.Enrichment("summary", string(status))
	return out, status
}

func (s *compositionService) Narrative(ctx context.Context, query string, results []models.RagSearchResult) (string, models.EnrichmentStatus) {
	if len(results) == 0 {
		return NoMatchesNarrative, models.EnrichmentFallback
	}

	top := append([]models.RagSearchResult(nil), results...)
	sort.SliceStable(top, func(i, j int) bool { return top[i].Similarity > top[j].Similarity })
	if len(top) > maxNarrativeProfiles {
		top = top[:maxNarrativeProfiles]
	}

	subCtx, cancel := context.WithTimeout(ctx, s.opts.NarrativeTimeout)
	defer cancel()

	text, err := s.chat.CompleteChat(subCtx, llm.ChatRequest{
		Model: s.opts.ChatModel,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: narrativeSystemPrompt},
			{Role: llm.RoleUser, Content: buildNarrativePrompt(query, top)},
		},
		Temperature: 0.2,
		MaxTokens:   1000,
	})
	if err == nil && strings.TrimSpace(text) != "" {
		s.metrics.Enrichment("narrative", string(models.EnrichmentAI))
		return strings.TrimSpace(text), models.EnrichmentAI
	}

	switch {
	case ctx.Err() != nil:
		s.metrics.Enrichment("narrative", string(models.EnrichmentFailed))
		return "", models.EnrichmentFailed
	case errors.Is(subCtx.Err(), context.DeadlineExceeded):
		s.log.WithField("timeout", s.opts.NarrativeTimeout.String()).Warn("narrative generation timed out")
		s.metrics.Enrichment("narrative", "timeout")
		return fallbackNarrative(len(results)) + " (response generation timed out)", models.EnrichmentFallback
	default:
		s.log.WithError(err).Warn("narrative generation failed")
		s.metrics.Enrichment("narrative", string(models.EnrichmentFallback))
		return fallbackNarrative(len(results)), models.EnrichmentFallback
	}
}

func fallbackNarrative(n int) string {
	return fmt.Sprintf("Found %d matching profiles. Check the results list for details.", n)
}

func templateSummary(p *models.Profile) models.MatchSummary {
	return models.MatchSummary{
		ProfileID:      p.ID,
		Summary:        fmt.Sprintf("%s matches your search criteria", displayName(p.Name)),
		StarterMessage: templateStarter(p),
	}
}

func templateStarter(p *models.Profile) string {
	return fmt.Sprintf("Hi %s! I came across your profile and would love to connect and exchange ideas.", displayName(p.Name))
}

func templateSummaries(profiles []models.Profile) map[int]models.MatchSummary {
	out := make(map[int]models.MatchSummary, len(profiles))
	for i := range profiles {
		out[profiles[i].ID] = templateSummary(&profiles[i])
	}
	return out
}

func displayName(name string) string {
	if name = strings.TrimSpace(name); name != "" {
		return name
	}
	return "This person"
}

func buildSummaryPrompt(c models.MatchRequest, profiles []models.Profile) string {
	var b strings.Builder
	var w lineWriter
	w.add("Main activity", c.MainActivity)
	w.add("Interests", c.Interests)
	w.add("Country", c.Country)
	w.add("City", c.City)
	b.WriteString("Searcher criteria:\n")
	b.WriteString(w.String())
	b.WriteString("\n\nCandidates:\n")
	for i := range profiles {
		p := &profiles[i]
		var pw lineWriter
		pw.add("profileId", strconv.Itoa(p.ID))
		pw.add("Name", p.Name)
		pw.add("Summary", p.Parsed.ShortBio)
		pw.add("Main activity", p.Parsed.MainActivity)
		pw.add("Interests", p.Parsed.Interests)
		pw.add("Location", strings.Trim(strings.Join([]string{p.Parsed.City, p.Parsed.Country}, ", "), ", "))
		pw.add("Can help", p.CanHelp)
		pw.add("Needs help", p.NeedsHelp)
		b.WriteString("\n")
		b.WriteString(pw.String())
		b.WriteString("\n")
	}
	return b.String()
}

func buildNarrativePrompt(query string, top []models.RagSearchResult) string {
	var b strings.Builder
	b.WriteString("Request: ")
	b.WriteString(strings.TrimSpace(query))
	b.WriteString("\n\nProfiles:\n")
	for _, r := range top {
		var w lineWriter
		w.add("Name", fmt.Sprintf("%s (similarity %.2f)", displayName(r.Name), r.Similarity))
		w.add("Bio", r.Bio)
		w.add("Skills", r.Skills)
		w.add("Looking for", r.LookingFor)
		if r.HasStartup {
			stage := r.StartupName
			if r.StartupStage != "" {
				stage = strings.TrimSpace(stage + " (" + r.StartupStage + ")")
			}
			w.add("Startup", stage)
		}
		w.add("Can help", r.CanHelp)
		w.add("Needs help", r.NeedsHelp)
		if r.Telegram != "" {
			w.add("Contact", "@"+strings.TrimPrefix(r.Telegram, "@"))
		}
		b.WriteString("\n")
		b.WriteString(w.String())
		b.WriteString("\n")
	}
	return b.String()
}

// decodeSummaries accepts a JSON array with case-insensitive keys and a
// profileId given as number or string. Entries without a usable id are dropped.
func decodeSummaries(raw string) (map[int]models.MatchSummary, error) {
	body := utils.StripCodeFences(raw)
	if i, j := strings.IndexByte(body, '['), strings.LastIndexByte(body, ']'); i >= 0 && j > i {
		body = body[i : j+1]
	}
	var items []map[string]json.RawMessage
	if err := json.Unmarshal([]byte(body), &items); err != nil {
		return nil, fmt.Errorf("decode summaries: %w", err)
	}

	out := make(map[int]models.MatchSummary, len(items))
	for _, it := range items {
		byKey := make(map[string]json.RawMessage, len(it))
		for k, v := range it {
			byKey[strings.ToLower(k)] = v
		}
		id, ok := flexibleInt(byKey["profileid"])
		if !ok {
			continue
		}
		summary, _ := decodeString(byKey["summary"])
		starter, _ := decodeString(byKey["startermessage"])
		out[id] = models.MatchSummary{ProfileID: id, Summary: summary, StarterMessage: starter}
	}
	return out, nil
}

func flexibleInt(raw json.RawMessage) (int, bool) {
	if len(raw) == 0 {
		return 0, false
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		if v, err := strconv.Atoi(n.String()); err == nil {
			return v, true
		}
		if f, err := n.Float64(); err == nil && f == float64(int(f)) {
			return int(f), true
		}
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if v, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return v, true
		}
	}
	return 0, false
}
