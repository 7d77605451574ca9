package services

import (
	"strings"

	"github.com/yoockh/vibematch/internal/models"
	"github.com/yoockh/vibematch/internal/utils"
)

type lineWriter struct {
	b strings.Builder
}

// add writes "label: value" when value is not blank.
func (w *lineWriter) add(label, value string) {
	value = strings.TrimSpace(value)
	if value == "" {
		return
	}
	if w.b.Len() > 0 {
		w.b.WriteByte('\n')
	}
	w.b.WriteString(label)
	w.b.WriteString(": ")
	w.b.WriteString(value)
}

func (w *lineWriter) String() string { return w.b.String() }

func joinValues(values []string) string { return strings.Join(values, ", ") }

// BuildGeneralText renders the broad descriptive text of a profile used for the
// general embedding. Blank fields are omitted; the name goes last so it weighs
// the least.
func BuildGeneralText(p *models.Profile) string {
	var w lineWriter
	w.add("Summary", p.Parsed.ShortBio)
	w.add("Main activity", p.Parsed.MainActivity)
	w.add("Interests", p.Parsed.Interests)
	w.add("Country", p.Parsed.Country)
	w.add("City", p.Parsed.City)
	w.add("Bio", p.Bio)
	w.add("Looking for", joinValues(p.Values(models.SatelliteLookingFor)))
	w.add("Skills", joinValues(p.Values(models.SatelliteSkills)))
	if p.HasStartup {
		w.add("Startup", p.StartupName)
		w.add("Startup stage", p.StartupStage)
		w.add("Startup description", p.StartupDescription)
	}
	w.add("Can help", p.CanHelp)
	w.add("Needs help", p.NeedsHelp)
	w.add("AI usage", p.AIUsage)
	w.add("Name", p.Name)
	return w.String()
}

// BuildMatchingText renders the four matching criteria. Profile-derived and
// query-derived text for the same values are byte-identical.
func BuildMatchingText(mainActivity, interests, country, city string) string {
	var w lineWriter
	w.add("Main activity", mainActivity)
	w.add("Interests", utils.NormalizeInterests(utils.SplitList(interests)))
	w.add("Country", country)
	w.add("City", city)
	return w.String()
}

func BuildProfileMatchingText(p *models.Profile) string {
	return BuildMatchingText(p.Parsed.MainActivity, p.Parsed.Interests, p.Parsed.Country, p.Parsed.City)
}
