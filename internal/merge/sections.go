package merge

import (
	"fmt"
	"strings"

	"github.com/lehigh-university-libraries/shelfscan/internal/models"
)

func isPlaceholder(s string) bool { return models.IsPlaceholder(s) }

// fill sets *dst to v when *dst carries no value yet.
func fill(dst *string, v string) {
	v = strings.TrimSpace(v)
	if isPlaceholder(*dst) && !isPlaceholder(v) {
		*dst = v
	}
}

func compact(list []string) []string {
	out := make([]string, 0, len(list))
	for _, s := range list {
		s = strings.TrimSpace(s)
		if !isPlaceholder(s) {
			out = append(out, s)
		}
	}
	return out
}

// union appends members of add that are not already in base, compared
// case-insensitively; order is preserved.
func union(base, add []string) []string {
	out := compact(base)
	seen := make(map[string]struct{}, len(out))
	for _, s := range out {
		seen[strings.ToLower(s)] = struct{}{}
	}
	for _, s := range compact(add) {
		if _, ok := seen[strings.ToLower(s)]; ok {
			continue
		}
		seen[strings.ToLower(s)] = struct{}{}
		out = append(out, s)
	}
	return out
}

func bestVehicle(vehicles []models.VehicleObservation) (models.VehicleObservation, bool) {
	if len(vehicles) == 0 {
		return models.VehicleObservation{}, false
	}
	best := vehicles[0]
	for _, v := range vehicles[1:] {
		if v.Confidence > best.Confidence {
			best = v
		}
	}
	return best, true
}

func vehicleName(v models.VehicleObservation) string {
	var parts []string
	for _, p := range []string{v.Year, v.Make, v.Model} {
		if p = strings.TrimSpace(p); !isPlaceholder(p) {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}

// MergeItem fills identity fields from the vehicle descriptor and summary.
func MergeItem(s models.ItemSection, obs models.Observations) models.ItemSection {
	if v, ok := bestVehicle(obs.Vehicles); ok {
		fill(&s.Name, vehicleName(v))
		fill(&s.Category, "vehicle")
	} else if len(obs.Objects) > 0 {
		fill(&s.Category, bestObject(obs.Objects))
	}
	fill(&s.Description, obs.Summary)
	return s
}

func bestObject(objects []models.ObjectObservation) string {
	if len(objects) == 0 {
		return ""
	}
	best := objects[0]
	for _, o := range objects[1:] {
		if o.Confidence > best.Confidence {
			best = o
		}
	}
	return strings.TrimSpace(best.Label)
}

var packagingTypes = []struct {
	word  string
	value string
}{
	{"blister", "blister card"},
	{"card", "blister card"},
	{"box", "box"},
	{"window", "window box"},
	{"tin", "tin"},
}

// MergePackaging infers the packaging type from object labels.
func MergePackaging(s models.PackagingSection, obs models.Observations) models.PackagingSection {
	for _, o := range obs.Objects {
		label := strings.ToLower(o.Label)
		for _, pt := range packagingTypes {
			if strings.Contains(label, pt.word) {
				fill(&s.Type, pt.value)
				return s
			}
		}
	}
	return s
}

// MergeAttributes fills descriptive attributes from the most confident
// vehicle and object observations.
func MergeAttributes(s models.AttributesSection, obs models.Observations) models.AttributesSection {
	if v, ok := bestVehicle(obs.Vehicles); ok {
		desc := strings.TrimSpace(v.Description)
		if isPlaceholder(desc) {
			desc = vehicleName(v)
		}
		fill(&s.Vehicle, desc)
		fill(&s.Make, v.Make)
		fill(&s.Model, v.Model)
		fill(&s.Year, v.Year)
		fill(&s.BodyStyle, v.BodyStyle)
		fill(&s.Scale, v.Scale)
	}
	fill(&s.ObjectLabel, bestObject(obs.Objects))
	return s
}

// MergeCompliance unions warnings; the scalar fields belong to extractors.
func MergeCompliance(s models.ComplianceSection, obs models.Observations) models.ComplianceSection {
	s.Standards = compact(s.Standards)
	s.Warnings = union(s.Warnings, obs.Warnings)
	return s
}

var colorSynonyms = map[string]string{
	"grey": "gray", "gunmetal": "gray", "navy": "blue", "crimson": "red", "scarlet": "red",
	"maroon": "red", "burgundy": "red", "lime": "green", "olive": "green", "teal": "teal",
	"turquoise": "teal", "violet": "purple", "magenta": "pink", "cream": "white", "ivory": "white",
	"tan": "beige", "gold": "gold", "golden": "gold", "silver": "silver", "bronze": "bronze",
	"copper": "copper", "red": "red", "blue": "blue", "green": "green", "yellow": "yellow",
	"orange": "orange", "purple": "purple", "pink": "pink", "black": "black", "white": "white",
	"brown": "brown", "gray": "gray", "beige": "beige",
}

var finishes = []string{"spectraflame", "metallic", "pearl", "chrome", "matte", "satin", "gloss", "candy", "chameleon"}

// NormalizeColor reduces a reported color to a base color word; unknown
// colors are lower-cased as reported.
func NormalizeColor(raw string) string {
	lower := strings.ToLower(strings.TrimSpace(raw))
	for _, tok := range strings.FieldsFunc(lower, func(r rune) bool { return r == ' ' || r == '-' || r == '/' }) {
		if c, ok := colorSynonyms[tok]; ok {
			return c
		}
	}
	return lower
}

func finishOf(c models.ColorObservation) string {
	if f := strings.ToLower(strings.TrimSpace(c.Finish)); f != "" {
		return f
	}
	lower := strings.ToLower(c.Name)
	for _, f := range finishes {
		if strings.Contains(lower, f) {
			return f
		}
	}
	return ""
}

func fillVisual(dst *models.VisualField, c models.ColorObservation, value, source string) {
	if !isPlaceholder(dst.Value) || isPlaceholder(value) {
		return
	}
	*dst = models.VisualField{
		Value:      value,
		Raw:        strings.TrimSpace(c.Name),
		Confidence: c.Confidence,
		Source:     source,
	}
}

// MergeVisual sets primary/accent/finish once and unions secondary colors.
func MergeVisual(s models.VisualSection, colors []models.ColorObservation, source string) models.VisualSection {
	var secondary []string
	for _, c := range colors {
		if isPlaceholder(c.Name) {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(c.Role)) {
		case "primary":
			fillVisual(&s.PrimaryColor, c, NormalizeColor(c.Name), source)
		case "accent":
			fillVisual(&s.AccentColor, c, NormalizeColor(c.Name), source)
		default:
			secondary = append(secondary, NormalizeColor(c.Name))
		}
		if f := finishOf(c); f != "" {
			fillVisual(&s.Finish, models.ColorObservation{Name: c.Name, Confidence: c.Confidence}, f, source)
		}
	}
	s.SecondaryColors = union(s.SecondaryColors, secondary)
	return s
}

func entityKey(category, text, side string) string {
	norm := func(s string) string {
		s = strings.ToLower(strings.Join(strings.Fields(s), " "))
		if isPlaceholder(s) {
			return strings.ToLower(models.Placeholder)
		}
		return s
	}
	return norm(category) + "\x00" + norm(text) + "\x00" + norm(side)
}

// MergeObservations replaces the raw text with the pool and unions detected
// text entities by (category, text, side).
func MergeObservations(s models.ObservationsSection, pool *TextPool, fragments []models.TextFragment, side string, obs models.Observations) models.ObservationsSection {
	s.RawText = pool.Lines()

	seen := make(map[string]struct{}, len(s.Entities))
	for _, e := range s.Entities {
		seen[entityKey(e.Category, e.Text, e.Side)] = struct{}{}
	}
	for _, f := range fragments {
		if isPlaceholder(f.Text) {
			continue
		}
		key := entityKey(f.Category, f.Text, side)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		var conf float64
		if f.Confidence != nil {
			conf = *f.Confidence
		}
		s.Entities = append(s.Entities, models.TextEntity{
			Text:       strings.Join(strings.Fields(f.Text), " "),
			Category:   strings.TrimSpace(f.Category),
			Confidence: conf,
			Location:   strings.TrimSpace(f.Location),
			Side:       side,
		})
	}

	fill(&s.Summary, obs.Summary)
	fill(&s.Environment, obs.Environment)
	return s
}

// MergeMedia appends entry unless its key is already present.
func MergeMedia(media []models.MediaEntry, entry models.MediaEntry) ([]models.MediaEntry, bool) {
	for _, m := range media {
		if m.Key == entry.Key {
			return media, false
		}
	}
	return append(media, entry), true
}

// SideTable maps camera indices to side labels.
type SideTable map[int]string

// DefaultSides is the two-camera rig.
var DefaultSides = SideTable{1: "front", 2: "back"}

// Side returns the label for camera; unknown cameras get camera_<n>.
func (t SideTable) Side(camera int) string {
	if s, ok := t[camera]; ok && strings.TrimSpace(s) != "" {
		return s
	}
	return fmt.Sprintf("camera_%d", camera)
}

// BagKey selects the raw passthrough slot for camera.
func (t SideTable) BagKey(camera int) string {
	switch side := t.Side(camera); side {
	case "front", "back":
		return side
	default:
		return "other"
	}
}
