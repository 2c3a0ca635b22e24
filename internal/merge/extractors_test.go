package merge

import (
	"testing"

	"github.com/lehigh-university-libraries/shelfscan/internal/models"
)

func TestExtractors(t *testing.T) {
	tests := []struct {
		name      string
		extractor func(*TextPool) (FieldValue, bool)
		lines     []string
		expected  string
		found     bool
	}{
		{"global assortment", extractGlobalAssortment, []string{"3/5 112/250"}, "112/250", true},
		{"subset number", extractSubsetNumber, []string{"3/5 112/250"}, "3/5", true},
		{"leading zeros", extractSubsetNumber, []string{"05/10"}, "5/10", true},
		{"date is not a pair", extractGlobalAssortment, []string{"EXP 10/16/2026"}, "", false},
		{"date is not a subset", extractSubsetNumber, []string{"EXP 10/16/2026"}, "", false},
		{"numerator above denominator", extractSubsetNumber, []string{"9/5"}, "", false},

		{"upc plain", extractUPC, []string{"194735256921"}, "194735256921", true},
		{"upc spaced", extractUPC, []string{"1 94735 25692 1"}, "194735256921", true},
		{"upc next to year", extractUPC, []string{"194735256921 2024"}, "194735256921", true},
		{"upc bad check digit", extractUPC, []string{"194735256922"}, "", false},
		{"ean", extractEAN, []string{"EAN 4006381333931"}, "4006381333931", true},
		{"ean bad check digit", extractEAN, []string{"4006381333932"}, "", false},

		{"batch mattel code", extractBatchCode, []string{"GRK93-N9C0"}, "GRK93-N9C0", true},
		{"batch labelled", extractBatchCode, []string{"Lot: 2024A17"}, "2024A17", true},
		{"batch ignores standards", extractBatchCode, []string{"ASTM F963 EN71"}, "", false},

		{"series case insensitive", extractSeries, []string{"j-imports"}, "J-IMPORTS", true},
		{"series unknown", extractSeries, []string{"Some other line"}, "", false},

		{"badge super treasure hunt", extractBadge, []string{"SUPER TREASURE HUNT"}, "Super Treasure Hunt", true},
		{"badge treasure hunt", extractBadge, []string{"treasure hunt"}, "Treasure Hunt", true},
		{"badge word boundary", extractBadge, []string{"PURCHASE NOW"}, "", false},

		{"brand", extractBrand, []string{"Hot Wheels"}, "Hot Wheels", true},
		{"manufacturer printed", extractManufacturer, []string{"©2024 MATTEL"}, "Mattel", true},
		{"manufacturer from brand", extractManufacturer, []string{"MATCHBOX"}, "Mattel", true},

		{"country", extractCountryOfOrigin, []string{"MADE IN MALAYSIA"}, "Malaysia", true},
		{"country bilingual", extractCountryOfOrigin, []string{"Made in China / Fabriqué en Chine"}, "China", true},
		{"country abbreviation", extractCountryOfOrigin, []string{"MADE IN U.S.A."}, "USA", true},
		{"country two words", extractCountryOfOrigin, []string{"made in hong kong"}, "Hong Kong", true},

		{"region europe", extractRegion, []string{"Mattel Europa B.V."}, "Europe", true},
		{"region international", extractRegion, []string{"INTL CARD"}, "International", true},

		{"website", extractWebsite, []string{"www.HotWheels.com"}, "hotwheels.com", true},
		{"website with scheme", extractWebsite, []string{"Visit https://shop.mattel.com/cars"}, "shop.mattel.com", true},
		{"email is not a website", extractWebsite, []string{"service@mattel.com"}, "", false},

		{"age plus", extractAgeGrade, []string{"AGES 3+"}, "3+", true},
		{"age and up", extractAgeGrade, []string{"Ages 8 and up"}, "8+", true},
		{"age warning", extractAgeGrade, []string{"Not for children under 3 years"}, "3+", true},
		{"age absent", extractAgeGrade, []string{"WARNING: CHOKING HAZARD"}, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, ok := tt.extractor(NewTextPool(tt.lines...))
			if ok != tt.found {
				t.Fatalf("Expected found=%v, got %v (%q)", tt.found, ok, v.Text)
			}
			if v.Text != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, v.Text)
			}
		})
	}
}

func TestExtractComplianceStandards(t *testing.T) {
	v, ok := extractComplianceStandards(NewTextPool("Conforms to ASTM F963-17", "EN 71 / CE"))
	if !ok {
		t.Fatal("Expected standards")
	}
	expected := []string{"ASTM F963", "EN71", "CE"}
	if len(v.List) != len(expected) {
		t.Fatalf("Expected %v, got %v", expected, v.List)
	}
	for i := range expected {
		if v.List[i] != expected[i] {
			t.Errorf("Expected %s at %d, got %s", expected[i], i, v.List[i])
		}
	}
}

func TestValidCheckDigit(t *testing.T) {
	tests := []struct {
		code  string
		valid bool
	}{
		{"194735256921", true},
		{"036000291452", true},
		{"036000291453", false},
		{"4006381333931", true},
		{"5901234123457", true},
		{"1", false},
	}
	for _, tt := range tests {
		if got := validCheckDigit(tt.code); got != tt.valid {
			t.Errorf("validCheckDigit(%s): expected %v, got %v", tt.code, tt.valid, got)
		}
	}
}

func TestExtractorNeverOverwrites(t *testing.T) {
	pool := NewTextPool("194735256921", "J-IMPORTS", "ASTM F963")

	r := models.NewRecord("H10011")
	r.Codes.UPC = "CURATED-UPC"
	r.Item.Series = "Curated Series"
	r.Compliance.Standards = []string{"EN71"}

	applied := RunExtractors(r, pool)

	if r.Codes.UPC != "CURATED-UPC" {
		t.Errorf("UPC overwritten: %s", r.Codes.UPC)
	}
	if r.Item.Series != "Curated Series" {
		t.Errorf("Series overwritten: %s", r.Item.Series)
	}
	if len(r.Compliance.Standards) != 1 || r.Compliance.Standards[0] != "EN71" {
		t.Errorf("Standards overwritten: %v", r.Compliance.Standards)
	}
	for _, name := range applied {
		if name == "upc" || name == "series" || name == "compliance_standards" {
			t.Errorf("Extractor %s reported a write over a curated value", name)
		}
	}
}

func TestExtractorOrder(t *testing.T) {
	expected := []string{
		"global_assortment", "subset_number", "upc", "ean", "batch_code", "series", "badge",
		"brand", "manufacturer", "country_of_origin", "region", "website", "compliance_standards", "age_grade",
	}
	if len(Extractors) != len(expected) {
		t.Fatalf("Expected %d extractors, got %d", len(expected), len(Extractors))
	}
	for i, e := range Extractors {
		if e.Name != expected[i] {
			t.Errorf("Position %d: expected %s, got %s", i, expected[i], e.Name)
		}
	}
}

func TestTextPool(t *testing.T) {
	p := NewTextPool("HOT WHEELS", "  hot   wheels ", "", "N/A", "J-IMPORTS")
	lines := p.Lines()
	if len(lines) != 2 {
		t.Fatalf("Expected 2 lines, got %v", lines)
	}
	if lines[0] != "HOT WHEELS" || lines[1] != "J-IMPORTS" {
		t.Errorf("Unexpected order or spelling: %v", lines)
	}
	if p.Add("j-imports") {
		t.Error("Expected duplicate to be rejected")
	}
}
