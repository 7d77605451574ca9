package models

import (
	"strings"
	"time"

	"gorm.io/datatypes"
)

// ParsedFields are the AI-derived attributes of a profile. They are empty until
// the first successful parse and are always replaced as a group.
type ParsedFields struct {
	ShortBio     string `gorm:"column:short_bio;type:text" json:"short_bio"`
	MainActivity string `gorm:"column:main_activity;type:text" json:"main_activity"`
	Interests    string `gorm:"column:interests;type:text" json:"interests"` // ", " joined
	Country      string `gorm:"column:country;type:text;index" json:"country"`
	City         string `gorm:"column:city;type:text" json:"city"`
}

func (p ParsedFields) IsEmpty() bool {
	return strings.TrimSpace(p.MainActivity) == "" &&
		strings.TrimSpace(p.Interests) == "" &&
		strings.TrimSpace(p.Country) == "" &&
		strings.TrimSpace(p.City) == ""
}

type Profile struct {
	ID       int    `gorm:"column:id;primaryKey;autoIncrement:false" json:"id"`
	Name     string `gorm:"column:name;type:text" json:"name"`
	Telegram string `gorm:"column:telegram;type:text" json:"telegram"`
	LinkedIn string `gorm:"column:linkedin;type:text" json:"linkedin"`
	Email    string `gorm:"column:email;type:text" json:"email"`
	Photo    string `gorm:"column:photo;type:text" json:"photo"`
	Bio      string `gorm:"column:bio;type:text" json:"bio"`

	HasStartup         bool   `gorm:"column:has_startup;index" json:"has_startup"`
	StartupName        string `gorm:"column:startup_name;type:text" json:"startup_name"`
	StartupStage       string `gorm:"column:startup_stage;type:text" json:"startup_stage"`
	StartupDescription string `gorm:"column:startup_description;type:text" json:"startup_description"`

	CanHelp   string `gorm:"column:can_help;type:text" json:"can_help"`
	NeedsHelp string `gorm:"column:needs_help;type:text" json:"needs_help"`
	AIUsage   string `gorm:"column:ai_usage;type:text" json:"ai_usage"`

	Skills     []ProfileSkill      `gorm:"foreignKey:ProfileID;constraint:OnDelete:CASCADE" json:"-"`
	LookingFor []ProfileLookingFor `gorm:"foreignKey:ProfileID;constraint:OnDelete:CASCADE" json:"-"`

	Parsed        ParsedFields   `gorm:"embedded;embeddedPrefix:parsed_" json:"parsed"`
	ParsedPayload datatypes.JSON `gorm:"column:parsed_payload;type:jsonb" json:"-"`
	ParsedAt      *time.Time     `gorm:"column:parsed_at;type:timestamptz" json:"parsed_at,omitempty"`

	CreatedAt time.Time `gorm:"column:created_at;type:timestamptz" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at;type:timestamptz" json:"updated_at"`
}

func (Profile) TableName() string { return "profiles" }

type ProfileSkill struct {
	ID        int64  `gorm:"column:id;primaryKey" json:"-"`
	ProfileID int    `gorm:"column:profile_id;index;not null" json:"-"`
	Value     string `gorm:"column:value;type:text;not null" json:"value"`
}

func (ProfileSkill) TableName() string { return "profile_skills" }

type ProfileLookingFor struct {
	ID        int64  `gorm:"column:id;primaryKey" json:"-"`
	ProfileID int    `gorm:"column:profile_id;index;not null" json:"-"`
	Value     string `gorm:"column:value;type:text;not null" json:"value"`
}

func (ProfileLookingFor) TableName() string { return "profile_looking_for" }

// SatelliteKind names a multi-valued child collection of a profile.
type SatelliteKind int

const (
	SatelliteSkills SatelliteKind = iota
	SatelliteLookingFor
)

func (k SatelliteKind) String() string {
	switch k {
	case SatelliteSkills:
		return "skills"
	case SatelliteLookingFor:
		return "looking_for"
	default:
		return "unknown"
	}
}

// Values returns the collection's values in stored order.
func (p *Profile) Values(kind SatelliteKind) []string {
	var out []string
	switch kind {
	case SatelliteSkills:
		out = make([]string, 0, len(p.Skills))
		for _, s := range p.Skills {
			out = append(out, s.Value)
		}
	case SatelliteLookingFor:
		out = make([]string, 0, len(p.LookingFor))
		for _, s := range p.LookingFor {
			out = append(out, s.Value)
		}
	}
	return out
}

// SetValues replaces the collection. Values are trimmed, blanks dropped and
// case-insensitive duplicates removed, keeping first occurrence order.
func (p *Profile) SetValues(kind SatelliteKind, values []string) {
	clean := DedupeValues(values)
	switch kind {
	case SatelliteSkills:
		p.Skills = make([]ProfileSkill, 0, len(clean))
		for _, v := range clean {
			p.Skills = append(p.Skills, ProfileSkill{ProfileID: p.ID, Value: v})
		}
	case SatelliteLookingFor:
		p.LookingFor = make([]ProfileLookingFor, 0, len(clean))
		for _, v := range clean {
			p.LookingFor = append(p.LookingFor, ProfileLookingFor{ProfileID: p.ID, Value: v})
		}
	}
}

// DedupeValues trims values and drops blanks and case-insensitive duplicates.
func DedupeValues(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		key := strings.ToLower(v)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, v)
	}
	return out
}

// ProfileInput is the external representation used for create, update and import.
type ProfileInput struct {
	ID                 int      `json:"id"`
	Name               string   `json:"name"`
	Telegram           string   `json:"telegram"`
	LinkedIn           string   `json:"linkedin"`
	Email              string   `json:"email"`
	Photo              string   `json:"photo"`
	Bio                string   `json:"bio"`
	HasStartup         bool     `json:"has_startup"`
	StartupName        string   `json:"startup_name"`
	StartupStage       string   `json:"startup_stage"`
	StartupDescription string   `json:"startup_description"`
	CanHelp            string   `json:"can_help"`
	NeedsHelp          string   `json:"needs_help"`
	AIUsage            string   `json:"ai_usage"`
	Skills             []string `json:"skills"`
	LookingFor         []string `json:"looking_for"`
}

// Apply copies editable fields onto p. Parsed fields and timestamps are left alone.
func (in ProfileInput) Apply(p *Profile) {
	p.Name = strings.TrimSpace(in.Name)
	p.Telegram = strings.TrimSpace(in.Telegram)
	p.LinkedIn = strings.TrimSpace(in.LinkedIn)
	p.Email = strings.TrimSpace(in.Email)
	p.Photo = strings.TrimSpace(in.Photo)
	p.Bio = strings.TrimSpace(in.Bio)
	p.HasStartup = in.HasStartup
	p.StartupName = strings.TrimSpace(in.StartupName)
	p.StartupStage = strings.TrimSpace(in.StartupStage)
	p.StartupDescription = strings.TrimSpace(in.StartupDescription)
	p.CanHelp = strings.TrimSpace(in.CanHelp)
	p.NeedsHelp = strings.TrimSpace(in.NeedsHelp)
	p.AIUsage = strings.TrimSpace(in.AIUsage)
	p.SetValues(SatelliteSkills, in.Skills)
	p.SetValues(SatelliteLookingFor, in.LookingFor)
}

// ProfileView is the API response shape of a profile.
type ProfileView struct {
	*Profile
	Skills     []string `json:"skills"`
	LookingFor []string `json:"looking_for"`
}

func NewProfileView(p *Profile) ProfileView {
	return ProfileView{
		Profile:    p,
		Skills:     p.Values(SatelliteSkills),
		LookingFor: p.Values(SatelliteLookingFor),
	}
}

// CountryCount is one row of the per-country aggregation over parsed profiles.
type CountryCount struct {
	Name      string `gorm:"column:name"`
	UserCount int64  `gorm:"column:user_count"`
}
