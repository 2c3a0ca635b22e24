package models

import "time"

// Placeholder marks any unknown string value in a canonical record.
const Placeholder = "N/A"

// SchemaVersion is written on every persist.
const SchemaVersion = 3

// TimeLayout is the layout of every timestamp string in a record. Fixed-width
// milliseconds keep lexical and chronological ordering identical.
const TimeLayout = "2006-01-02T15:04:05.000Z07:00"

// FormatTime renders t in the record timestamp layout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// Record is the canonical, always-complete representation of one physical item
type Record struct {
	Identifier   string              `json:"identifier" yaml:"identifier"`
	Item         ItemSection         `json:"item" yaml:"item"`
	Packaging    PackagingSection    `json:"packaging" yaml:"packaging"`
	Codes        CodesSection        `json:"codes" yaml:"codes"`
	Brand        BrandSection        `json:"brand" yaml:"brand"`
	Compliance   ComplianceSection   `json:"compliance" yaml:"compliance"`
	Attributes   AttributesSection   `json:"attributes" yaml:"attributes"`
	Visual       VisualSection       `json:"visual" yaml:"visual"`
	Inventory    InventorySection    `json:"inventory" yaml:"inventory"`
	Observations ObservationsSection `json:"observations" yaml:"observations"`
	Media        []MediaEntry        `json:"media" yaml:"media"`
	Scan         ScanSection         `json:"scan" yaml:"scan"`
	Extra        ExtraSection        `json:"extra" yaml:"extra"`
	Meta         MetaSection         `json:"meta" yaml:"meta"`
}

// ItemSection holds identity and description
type ItemSection struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
	Series      string `json:"series" yaml:"series"`
	Category    string `json:"category" yaml:"category"`
}

// PackagingSection holds card/box metadata
type PackagingSection struct {
	Type             string `json:"type" yaml:"type"`
	AssortmentNumber string `json:"assortment_number" yaml:"assortment_number"` // global collector number, e.g. "112/250"
	SeriesNumber     string `json:"series_number" yaml:"series_number"`         // position within a subset, e.g. "3/5"
	Region           string `json:"region" yaml:"region"`
	Language         string `json:"language" yaml:"language"`
}

// CodesSection holds scan codes printed on the packaging
type CodesSection struct {
	UPC       string `json:"upc" yaml:"upc"`
	EAN       string `json:"ean" yaml:"ean"`
	BatchCode string `json:"batch_code" yaml:"batch_code"`
}

type BrandSection struct {
	Name            string `json:"name" yaml:"name"`
	Manufacturer    string `json:"manufacturer" yaml:"manufacturer"`
	Badge           string `json:"badge" yaml:"badge"`
	Website         string `json:"website" yaml:"website"`
	CountryOfOrigin string `json:"country_of_origin" yaml:"country_of_origin"`
}

type ComplianceSection struct {
	AgeGrade  string   `json:"age_grade" yaml:"age_grade"`
	Standards []string `json:"standards" yaml:"standards"`
	Warnings  []string `json:"warnings" yaml:"warnings"`
}

type AttributesSection struct {
	Vehicle     string `json:"vehicle" yaml:"vehicle"`
	Make        string `json:"make" yaml:"make"`
	Model       string `json:"model" yaml:"model"`
	Year        string `json:"year" yaml:"year"`
	BodyStyle   string `json:"body_style" yaml:"body_style"`
	ObjectLabel string `json:"object_label" yaml:"object_label"`
	Scale       string `json:"scale" yaml:"scale"`
}

// VisualField is a visual attribute with provenance
type VisualField struct {
	Value      string  `json:"value" yaml:"value"`
	Raw        string  `json:"raw" yaml:"raw"`
	Confidence float64 `json:"confidence" yaml:"confidence"`
	Source     string  `json:"source" yaml:"source"`
}

type VisualSection struct {
	PrimaryColor    VisualField `json:"primary_color" yaml:"primary_color"`
	AccentColor     VisualField `json:"accent_color" yaml:"accent_color"`
	Finish          VisualField `json:"finish" yaml:"finish"`
	SecondaryColors []string    `json:"secondary_colors" yaml:"secondary_colors"`
}

type InventorySection struct {
	Status    string `json:"status" yaml:"status"`
	Location  string `json:"location" yaml:"location"`
	Condition string `json:"condition" yaml:"condition"`
	Notes     string `json:"notes" yaml:"notes"`
	Quantity  int    `json:"quantity" yaml:"quantity"`
}

// TextEntity is a detected text fragment attributed to a capture side
type TextEntity struct {
	Text       string  `json:"text" yaml:"text"`
	Category   string  `json:"category" yaml:"category"`
	Confidence float64 `json:"confidence" yaml:"confidence"`
	Location   string  `json:"location" yaml:"location"`
	Side       string  `json:"side" yaml:"side"`
}

type ObservationsSection struct {
	RawText     []string     `json:"raw_text" yaml:"raw_text"`
	Entities    []TextEntity `json:"entities" yaml:"entities"`
	Summary     string       `json:"summary" yaml:"summary"`
	Environment string       `json:"environment" yaml:"environment"`
}

// MediaEntry describes one stored capture. Entries are unique by Key.
type MediaEntry struct {
	Key         string `json:"key" yaml:"key"`
	Side        string `json:"side" yaml:"side"`
	Camera      int    `json:"camera" yaml:"camera"`
	ContentType string `json:"content_type" yaml:"content_type"`
	Filename    string `json:"filename" yaml:"filename"`
	CapturedAt  string `json:"captured_at" yaml:"captured_at"`
	AddedAt     string `json:"added_at" yaml:"added_at"`
	Width       int    `json:"width" yaml:"width"`
	Height      int    `json:"height" yaml:"height"`
	SHA256      string `json:"sha256" yaml:"sha256"`
}

// ScanSection records provenance of the most recent capture merged
type ScanSection struct {
	LastKey         string `json:"last_key" yaml:"last_key"`
	LastSide        string `json:"last_side" yaml:"last_side"`
	LastCamera      int    `json:"last_camera" yaml:"last_camera"`
	LastFilename    string `json:"last_filename" yaml:"last_filename"`
	LastCapturedAt  string `json:"last_captured_at" yaml:"last_captured_at"`
	LastContentType string `json:"last_content_type" yaml:"last_content_type"`
	Model           string `json:"model" yaml:"model"`
}

// RawResponse is the full inference envelope of the latest capture
type RawResponse struct {
	ID     string         `json:"id" yaml:"id"`
	Model  string         `json:"model" yaml:"model"`
	Output map[string]any `json:"output" yaml:"output"`
	Text   string         `json:"text" yaml:"text"`
}

// ExtraSection is the raw passthrough bag keyed by capture side
type ExtraSection struct {
	Front       map[string]any `json:"front" yaml:"front"`
	Back        map[string]any `json:"back" yaml:"back"`
	Other       map[string]any `json:"other" yaml:"other"`
	RawResponse RawResponse    `json:"raw_response" yaml:"raw_response"`
}

type MetaSection struct {
	SchemaVersion int    `json:"schema_version" yaml:"schema_version"`
	CreatedAt     string `json:"created_at" yaml:"created_at"`
	UpdatedAt     string `json:"updated_at" yaml:"updated_at"`
}

// NewRecord returns the all-placeholder skeleton for identifier.
func NewRecord(identifier string) *Record {
	r := &Record{Identifier: identifier}
	r.Meta.SchemaVersion = SchemaVersion
	Normalize(r)
	return r
}
