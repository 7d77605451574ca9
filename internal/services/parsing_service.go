package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yoockh/vibematch/internal/models"
	"github.com/yoockh/vibematch/internal/providers/llm"
	"github.com/yoockh/vibematch/internal/repositories"
	"github.com/yoockh/vibematch/internal/utils"
)

const (
	shortBioMaxRunes    = 300
	fallbackBioMaxRunes = 500
)

type ParsingService interface {
	// ParseAndUpdate asks the model for structured fields and overwrites all
	// parsed fields of the profile. Errors are returned, not swallowed.
	ParseAndUpdate(ctx context.Context, profileID int) (*models.ParsedFields, error)
	// Preview parses without persisting and falls back to a heuristic on AI failure.
	Preview(ctx context.Context, profileID int) models.ParseResult
}

type ParsingOptions struct {
	Model       string
	Temperature float32
	MaxTokens   int
}

type parsingService struct {
	profiles repositories.ProfileRepository
	chat     llm.ChatCompleter
	opts     ParsingOptions
	log      *logrus.Logger
	now      func() time.Time
}

func NewParsingService(profiles repositories.ProfileRepository, chat llm.ChatCompleter, opts ParsingOptions, log *logrus.Logger) ParsingService {
	if opts.Model == "" {
		opts.Model = "gpt-4.1-nano"
	}
	if opts.Temperature == 0 {
		opts.Temperature = 0.2
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 500
	}
	if log == nil {
		log = logrus.New()
	}
	return &parsingService{profiles: profiles, chat: chat, opts: opts, log: log, now: func() time.Time { return time.Now().UTC() }}
}

func (s *parsingService) load(ctx context.Context, op string, profileID int) (*models.Profile, error) {
	p, err := s.profiles.GetByID(ctx, profileID)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, utils.E(utils.CodeNotFound, op, "profile not found", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to load profile", err)
	}
	return p, nil
}

func (s *parsingService) ParseAndUpdate(ctx context.Context, profileID int) (*models.ParsedFields, error) {
	const op = "ParsingService.ParseAndUpdate"

	p, err := s.load(ctx, op, profileID)
	if err != nil {
		return nil, err
	}
	fields, payload, err := s.parse(ctx, op, p)
	if err != nil {
		return nil, err
	}
	if err := s.profiles.UpdateParsed(ctx, profileID, fields, payload, s.now()); err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, utils.E(utils.CodeNotFound, op, "profile not found", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to save parsed fields", err)
	}
	s.log.WithFields(logrus.Fields{"profile_id": profileID, "country": fields.Country}).Debug("profile parsed")
	return &fields, nil
}

func (s *parsingService) Preview(ctx context.Context, profileID int) models.ParseResult {
	const op = "ParsingService.Preview"

	res := models.ParseResult{ProfileID: profileID, At: s.now()}
	p, err := s.load(ctx, op, profileID)
	if err != nil {
		res.Status = models.ParseFailed
		res.Error = err.Error()
		return res
	}
	fields, _, err := s.parse(ctx, op, p)
	if err != nil {
		res.Status = models.ParseFallback
		res.Fields = FallbackParse(p)
		res.Error = err.Error()
		return res
	}
	res.Status = models.ParseAI
	res.Fields = fields
	return res
}

func (s *parsingService) parse(ctx context.Context, op string, p *models.Profile) (models.ParsedFields, []byte, error) {
	raw, err := s.chat.CompleteChat(ctx, llm.ChatRequest{
		Model: s.opts.Model,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: parseSystemPrompt},
			{Role: llm.RoleUser, Content: BuildParsePrompt(p)},
		},
		Temperature: s.opts.Temperature,
		MaxTokens:   s.opts.MaxTokens,
	})
	if err != nil {
		return models.ParsedFields{}, nil, utils.E(utils.CodeUnavailable, op, "ai parse request failed", err)
	}
	fields, payload, err := DecodeParsedFields(raw)
	if err != nil {
		return models.ParsedFields{}, nil, utils.E(utils.CodeInternal, op, "ai parse response invalid", err)
	}
	return fields, payload, nil
}

// BuildParsePrompt renders the raw profile for the parse request.
func BuildParsePrompt(p *models.Profile) string {
	var w lineWriter
	w.add("Name", p.Name)
	w.add("Bio", p.Bio)
	w.add("Skills", joinValues(p.Values(models.SatelliteSkills)))
	w.add("Looking for", joinValues(p.Values(models.SatelliteLookingFor)))
	if p.HasStartup {
		w.add("Startup", p.StartupName)
		w.add("Startup Description", p.StartupDescription)
		w.add("Stage", p.StartupStage)
	}
	w.add("Can help", p.CanHelp)
	w.add("Needs help", p.NeedsHelp)
	w.add("AI Usage", p.AIUsage)
	return w.String()
}

type parsedPayload struct {
	ShortBio     string   `json:"shortBio"`
	MainActivity string   `json:"mainActivity"`
	Interests    []string `json:"interests"`
	Country      string   `json:"country"`
	City         string   `json:"city"`
}

var parsedKeys = []string{"shortbio", "mainactivity", "interests", "country", "city"}

// DecodeParsedFields validates a model reply. Keys match case-insensitively and
// all five must be present; interests may be an array or a delimited string.
func DecodeParsedFields(raw string) (models.ParsedFields, []byte, error) {
	body := utils.StripCodeFences(raw)
	if i, j := strings.IndexByte(body, '{'), strings.LastIndexByte(body, '}'); i >= 0 && j > i {
		body = body[i : j+1]
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(body), &obj); err != nil {
		return models.ParsedFields{}, nil, fmt.Errorf("decode object: %w", err)
	}
	byKey := make(map[string]json.RawMessage, len(obj))
	for k, v := range obj {
		byKey[strings.ToLower(strings.TrimSpace(k))] = v
	}
	for _, k := range parsedKeys {
		if _, ok := byKey[k]; !ok {
			return models.ParsedFields{}, nil, fmt.Errorf("missing key %q", k)
		}
	}

	var out parsedPayload
	var err error
	if out.ShortBio, err = decodeString(byKey["shortbio"]); err != nil {
		return models.ParsedFields{}, nil, fmt.Errorf("shortBio: %w", err)
	}
	if out.MainActivity, err = decodeString(byKey["mainactivity"]); err != nil {
		return models.ParsedFields{}, nil, fmt.Errorf("mainActivity: %w", err)
	}
	if out.Country, err = decodeString(byKey["country"]); err != nil {
		return models.ParsedFields{}, nil, fmt.Errorf("country: %w", err)
	}
	if out.City, err = decodeString(byKey["city"]); err != nil {
		return models.ParsedFields{}, nil, fmt.Errorf("city: %w", err)
	}
	if out.Interests, err = decodeList(byKey["interests"]); err != nil {
		return models.ParsedFields{}, nil, fmt.Errorf("interests: %w", err)
	}

	interests := utils.NormalizeInterests(out.Interests)
	out.Interests = utils.SplitList(interests)
	for i := range out.Interests {
		out.Interests[i] = strings.TrimSpace(out.Interests[i])
	}
	out.ShortBio = utils.TruncateRunes(out.ShortBio, shortBioMaxRunes)

	payload, err := json.Marshal(out)
	if err != nil {
		return models.ParsedFields{}, nil, err
	}
	return models.ParsedFields{
		ShortBio:     out.ShortBio,
		MainActivity: out.MainActivity,
		Interests:    interests,
		Country:      out.Country,
		City:         out.City,
	}, payload, nil
}

func decodeString(raw json.RawMessage) (string, error) {
	if string(raw) == "null" {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", err
	}
	return strings.TrimSpace(s), nil
}

func decodeList(raw json.RawMessage) ([]string, error) {
	if string(raw) == "null" {
		return nil, nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, nil
	}
	s, err := decodeString(raw)
	if err != nil {
		return nil, errors.New("expected array of strings or string")
	}
	return utils.SplitList(s), nil
}

// FallbackParse is the heuristic used when the model is unavailable.
func FallbackParse(p *models.Profile) models.ParsedFields {
	return models.ParsedFields{
		ShortBio:  utils.TruncateRunes(strings.TrimSpace(p.Bio), fallbackBioMaxRunes),
		Interests: utils.NormalizeInterests(p.Values(models.SatelliteSkills)),
	}
}
