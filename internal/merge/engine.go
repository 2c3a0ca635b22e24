// Package merge combines a canonical record with the observations from one
// capture. Merging is deterministic and idempotent: applying the same capture
// twice changes nothing but meta.updated_at.
package merge

import (
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/lehigh-university-libraries/shelfscan/internal/models"
)

// Capture is one image submitted for analysis plus what was learned about
// the bytes themselves.
type Capture struct {
	BlobKey     string
	ContentType string
	Camera      int
	Filename    string
	CapturedAt  time.Time
	Width       int
	Height      int
	SHA256      string
	// OCRLines is text recognised on the client, pooled with model output.
	OCRLines []string
}

// Envelope is the full inference response kept for diagnostics.
type Envelope struct {
	ID     string
	Model  string
	Output map[string]any
	Text   string
}

// Engine merges captures into records.
type Engine struct {
	sides SideTable
}

// NewEngine builds an engine with the given camera side table; nil means
// DefaultSides.
func NewEngine(sides SideTable) *Engine {
	if len(sides) == 0 {
		sides = DefaultSides
	}
	return &Engine{sides: sides}
}

// Merge returns the updated record. existing is never modified; when nil the
// all-placeholder skeleton for identifier is used.
func (e *Engine) Merge(existing *models.Record, identifier string, c Capture, obs models.Observations, env Envelope, now time.Time) *models.Record {
	var r *models.Record
	if existing != nil {
		r = existing.Clone()
	} else {
		r = models.NewRecord(identifier)
	}
	if isPlaceholder(r.Identifier) {
		r.Identifier = identifier
	}
	side := e.sides.Side(c.Camera)

	pool := NewTextPool(r.Observations.RawText...)
	for _, f := range obs.DetectedText {
		pool.Add(f.Text)
	}
	for _, l := range c.OCRLines {
		pool.Add(l)
	}
	r.Observations = MergeObservations(r.Observations, pool, obs.DetectedText, side, obs)

	applied := RunExtractors(r, pool)

	r.Item = MergeItem(r.Item, obs)
	r.Packaging = MergePackaging(r.Packaging, obs)
	r.Attributes = MergeAttributes(r.Attributes, obs)
	r.Compliance = MergeCompliance(r.Compliance, obs)
	r.Visual = MergeVisual(r.Visual, obs.Colors, "vision:"+side)

	capturedAt := c.CapturedAt
	if capturedAt.IsZero() {
		capturedAt = now
	}
	entry := models.MediaEntry{
		Key:         c.BlobKey,
		Side:        side,
		Camera:      c.Camera,
		ContentType: c.ContentType,
		Filename:    c.Filename,
		CapturedAt:  models.FormatTime(capturedAt),
		AddedAt:     models.FormatTime(now),
		Width:       c.Width,
		Height:      c.Height,
		SHA256:      c.SHA256,
	}
	var added bool
	r.Media, added = MergeMedia(r.Media, entry)
	if !added {
		// a re-ingested blob keeps the capture time it was first seen with
		for _, m := range r.Media {
			if m.Key == entry.Key {
				entry.CapturedAt = m.CapturedAt
				break
			}
		}
	}

	r.Scan = models.ScanSection{
		LastKey:         c.BlobKey,
		LastSide:        side,
		LastCamera:      c.Camera,
		LastFilename:    c.Filename,
		LastCapturedAt:  entry.CapturedAt,
		LastContentType: c.ContentType,
		Model:           env.Model,
	}

	payload := cloneMap(env.Output)
	switch e.sides.BagKey(c.Camera) {
	case "front":
		r.Extra.Front = payload
	case "back":
		r.Extra.Back = payload
	default:
		r.Extra.Other = payload
	}
	r.Extra.RawResponse = models.RawResponse{
		ID:     env.ID,
		Model:  env.Model,
		Output: cloneMap(env.Output),
		Text:   env.Text,
	}

	if isPlaceholder(r.Meta.CreatedAt) {
		r.Meta.CreatedAt = models.FormatTime(now)
	}
	r.Meta.UpdatedAt = models.FormatTime(now)
	r.Meta.SchemaVersion = models.SchemaVersion

	models.Normalize(r)

	slog.Debug("Record merged",
		"identifier", identifier,
		"side", side,
		"media_added", added,
		"extractors", strings.Join(applied, ","),
		"text_lines", pool.Len(),
	)
	return r
}

// cloneMap deep-copies a decoded JSON object so records never share it.
func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	data, err := json.Marshal(m)
	if err != nil {
		return map[string]any{}
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil || out == nil {
		return map[string]any{}
	}
	return out
}
