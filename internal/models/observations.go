package models

// Observations is the structured output requested from the vision model for
// one capture.
type Observations struct {
	DetectedText []TextFragment       `json:"detected_text"`
	Summary      string               `json:"summary"`
	Objects      []ObjectObservation  `json:"objects"`
	Vehicles     []VehicleObservation `json:"vehicles"`
	Colors       []ColorObservation   `json:"colors"`
	Environment  string               `json:"environment"`
	Warnings     []string             `json:"warnings"`
}

// TextFragment is one piece of text read from the image
type TextFragment struct {
	Text       string   `json:"text"`
	Category   string   `json:"category,omitempty"` // e.g. "brand", "barcode", "series", "legal"
	Confidence *float64 `json:"confidence,omitempty"`
	Location   string   `json:"location,omitempty"`
}

type ObjectObservation struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

type VehicleObservation struct {
	Make        string  `json:"make"`
	Model       string  `json:"model"`
	Year        string  `json:"year"`
	BodyStyle   string  `json:"body_style"`
	Description string  `json:"description"`
	Scale       string  `json:"scale"`
	Confidence  float64 `json:"confidence"`
}

// ColorObservation is a color seen on the item. Role is "primary", "accent"
// or "secondary"; Finish optionally describes the paint (e.g. "spectraflame").
type ColorObservation struct {
	Name       string  `json:"name"`
	Role       string  `json:"role"`
	Finish     string  `json:"finish,omitempty"`
	Confidence float64 `json:"confidence"`
}

// Empty reports whether o carries no observations at all.
func (o Observations) Empty() bool {
	return len(o.DetectedText) == 0 && o.Summary == "" && len(o.Objects) == 0 &&
		len(o.Vehicles) == 0 && len(o.Colors) == 0 && o.Environment == "" && len(o.Warnings) == 0
}
