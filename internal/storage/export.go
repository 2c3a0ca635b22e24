package storage

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/parquet-go/parquet-go"

	"github.com/lehigh-university-libraries/shelfscan/internal/models"
)

// ExportRow is the flattened record layout written to Parquet. The full
// record travels along as JSON for consumers that need every field.
type ExportRow struct {
	Identifier   string `parquet:"identifier"`
	Name         string `parquet:"name"`
	Series       string `parquet:"series"`
	UPC          string `parquet:"upc"`
	EAN          string `parquet:"ean"`
	Brand        string `parquet:"brand"`
	PrimaryColor string `parquet:"primary_color"`
	Vehicle      string `parquet:"vehicle"`
	RawText      string `parquet:"raw_text"`
	MediaCount   int64  `parquet:"media_count"`
	Model        string `parquet:"model"`
	CreatedAt    string `parquet:"created_at"`
	UpdatedAt    string `parquet:"updated_at"`
	Record       string `parquet:"record"`
}

// NewExportRow flattens r.
func NewExportRow(r *models.Record) (ExportRow, error) {
	body, err := json.Marshal(r)
	if err != nil {
		return ExportRow{}, fmt.Errorf("encode record %s: %w", r.Identifier, err)
	}
	return ExportRow{
		Identifier:   r.Identifier,
		Name:         r.Item.Name,
		Series:       r.Item.Series,
		UPC:          r.Codes.UPC,
		EAN:          r.Codes.EAN,
		Brand:        r.Brand.Name,
		PrimaryColor: r.Visual.PrimaryColor.Value,
		Vehicle:      r.Attributes.Vehicle,
		RawText:      strings.Join(r.Observations.RawText, "\n"),
		MediaCount:   int64(len(r.Media)),
		Model:        r.Scan.Model,
		CreatedAt:    r.Meta.CreatedAt,
		UpdatedAt:    r.Meta.UpdatedAt,
		Record:       string(body),
	}, nil
}

// ExportParquet writes records as a single Parquet file.
func ExportParquet(w io.Writer, records []*models.Record) error {
	rows := make([]ExportRow, 0, len(records))
	for _, r := range records {
		row, err := NewExportRow(r)
		if err != nil {
			return err
		}
		rows = append(rows, row)
	}

	writer := parquet.NewGenericWriter[ExportRow](w)
	if _, err := writer.Write(rows); err != nil {
		return fmt.Errorf("failed to write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close parquet writer: %w", err)
	}
	return nil
}

// ExportJSONL writes one record per line.
func ExportJSONL(w io.Writer, records []*models.Record) error {
	enc := json.NewEncoder(w)
	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("failed to encode record %s: %w", r.Identifier, err)
		}
	}
	return nil
}
