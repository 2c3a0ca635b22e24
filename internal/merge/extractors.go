package merge

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/lehigh-university-libraries/shelfscan/internal/models"
)

// FieldValue is what an extractor found: a scalar or, for list fields, List.
type FieldValue struct {
	Text string
	List []string
}

// Extractor is a pure function over the text pool targeting one record field.
// It writes only when the target is a placeholder (or, for lists, empty).
type Extractor struct {
	Name    string
	Field   string
	Extract func(*TextPool) (FieldValue, bool)

	scalar func(*models.Record) *string
	list   func(*models.Record) *[]string
}

// Apply runs the extractor against r, honouring the non-overwrite rule.
// It reports whether r changed.
func (e Extractor) Apply(r *models.Record, pool *TextPool) bool {
	switch {
	case e.scalar != nil:
		dst := e.scalar(r)
		if !isPlaceholder(*dst) {
			return false
		}
		v, ok := e.Extract(pool)
		if !ok || isPlaceholder(v.Text) {
			return false
		}
		*dst = v.Text
		return true
	case e.list != nil:
		dst := e.list(r)
		if len(compact(*dst)) > 0 {
			return false
		}
		v, ok := e.Extract(pool)
		if !ok || len(v.List) == 0 {
			return false
		}
		*dst = append([]string(nil), v.List...)
		return true
	}
	return false
}

// Extractors is the fixed battery, run in this order.
var Extractors = []Extractor{
	{Name: "global_assortment", Field: "packaging.assortment_number", Extract: extractGlobalAssortment,
		scalar: func(r *models.Record) *string { return &r.Packaging.AssortmentNumber }},
	{Name: "subset_number", Field: "packaging.series_number", Extract: extractSubsetNumber,
		scalar: func(r *models.Record) *string { return &r.Packaging.SeriesNumber }},
	{Name: "upc", Field: "codes.upc", Extract: extractUPC,
		scalar: func(r *models.Record) *string { return &r.Codes.UPC }},
	{Name: "ean", Field: "codes.ean", Extract: extractEAN,
		scalar: func(r *models.Record) *string { return &r.Codes.EAN }},
	{Name: "batch_code", Field: "codes.batch_code", Extract: extractBatchCode,
		scalar: func(r *models.Record) *string { return &r.Codes.BatchCode }},
	{Name: "series", Field: "item.series", Extract: extractSeries,
		scalar: func(r *models.Record) *string { return &r.Item.Series }},
	{Name: "badge", Field: "brand.badge", Extract: extractBadge,
		scalar: func(r *models.Record) *string { return &r.Brand.Badge }},
	{Name: "brand", Field: "brand.name", Extract: extractBrand,
		scalar: func(r *models.Record) *string { return &r.Brand.Name }},
	{Name: "manufacturer", Field: "brand.manufacturer", Extract: extractManufacturer,
		scalar: func(r *models.Record) *string { return &r.Brand.Manufacturer }},
	{Name: "country_of_origin", Field: "brand.country_of_origin", Extract: extractCountryOfOrigin,
		scalar: func(r *models.Record) *string { return &r.Brand.CountryOfOrigin }},
	{Name: "region", Field: "packaging.region", Extract: extractRegion,
		scalar: func(r *models.Record) *string { return &r.Packaging.Region }},
	{Name: "website", Field: "brand.website", Extract: extractWebsite,
		scalar: func(r *models.Record) *string { return &r.Brand.Website }},
	{Name: "compliance_standards", Field: "compliance.standards", Extract: extractComplianceStandards,
		list: func(r *models.Record) *[]string { return &r.Compliance.Standards }},
	{Name: "age_grade", Field: "compliance.age_grade", Extract: extractAgeGrade,
		scalar: func(r *models.Record) *string { return &r.Compliance.AgeGrade }},
}

// RunExtractors applies the battery and returns the names that wrote.
func RunExtractors(r *models.Record, pool *TextPool) []string {
	var applied []string
	for _, e := range Extractors {
		if e.Apply(r, pool) {
			applied = append(applied, e.Name)
		}
	}
	return applied
}

func text(s string) (FieldValue, bool) { return FieldValue{Text: s}, true }

var numericPair = regexp.MustCompile(`(\d{1,3})\s*/\s*(\d{1,3})`)

// GlobalAssortmentThreshold splits collector numbers: denominators at or
// above it are the global assortment, smaller ones a subset position.
const GlobalAssortmentThreshold = 50

// findPair returns the first "n/d" pair on the requested side of the
// threshold. Pairs touching another digit or slash (dates) are skipped.
func findPair(pool *TextPool, global bool) (FieldValue, bool) {
	for _, line := range pool.Lines() {
		for _, m := range numericPair.FindAllStringSubmatchIndex(line, -1) {
			if m[0] > 0 && isDigitOrSlash(line[m[0]-1]) || m[1] < len(line) && isDigitOrSlash(line[m[1]]) {
				continue
			}
			n, _ := strconv.Atoi(line[m[2]:m[3]])
			d, _ := strconv.Atoi(line[m[4]:m[5]])
			if n < 1 || d < 2 || n > d {
				continue
			}
			if (d >= GlobalAssortmentThreshold) == global {
				return text(fmt.Sprintf("%d/%d", n, d))
			}
		}
	}
	return FieldValue{}, false
}

func isDigitOrSlash(b byte) bool { return b == '/' || b >= '0' && b <= '9' }

func extractGlobalAssortment(pool *TextPool) (FieldValue, bool) { return findPair(pool, true) }

func extractSubsetNumber(pool *TextPool) (FieldValue, bool) { return findPair(pool, false) }

var digitRun = regexp.MustCompile(`\d+(?:[ -]\d+)*`)

// barcodeCandidates yields digit strings of the requested length, first as
// whole separated runs ("1 94735 25692 1"), then as individual tokens.
func barcodeCandidates(pool *TextPool, length int) []string {
	var out []string
	for _, line := range pool.Lines() {
		for _, run := range digitRun.FindAllString(line, -1) {
			joined := strings.NewReplacer(" ", "", "-", "").Replace(run)
			if len(joined) == length {
				out = append(out, joined)
				continue
			}
			for _, tok := range strings.FieldsFunc(run, func(r rune) bool { return r == ' ' || r == '-' }) {
				if len(tok) == length {
					out = append(out, tok)
				}
			}
		}
	}
	return out
}

// validCheckDigit verifies a GTIN-12/13 check digit.
func validCheckDigit(code string) bool {
	if len(code) < 2 {
		return false
	}
	sum := 0
	body := code[:len(code)-1]
	for i := len(body) - 1; i >= 0; i-- {
		d := int(body[i] - '0')
		if d < 0 || d > 9 {
			return false
		}
		// weight 3 on the digit nearest the check digit, alternating
		if (len(body)-1-i)%2 == 0 {
			d *= 3
		}
		sum += d
	}
	check := int(code[len(code)-1] - '0')
	return (10-sum%10)%10 == check
}

func extractUPC(pool *TextPool) (FieldValue, bool) {
	for _, c := range barcodeCandidates(pool, 12) {
		if validCheckDigit(c) {
			return text(c)
		}
	}
	return FieldValue{}, false
}

func extractEAN(pool *TextPool) (FieldValue, bool) {
	for _, c := range barcodeCandidates(pool, 13) {
		if validCheckDigit(c) {
			return text(c)
		}
	}
	return FieldValue{}, false
}

var (
	labelledBatch = regexp.MustCompile(`\b(?:BATCH|LOT)\b\s*(?:NO\.?|#)?\s*:?\s*([A-Z0-9][A-Z0-9-]{3,})`)
	// Mattel-style production codes, e.g. HCT16 or GRK93-N9C0
	batchPattern = regexp.MustCompile(`\b([A-Z]{3}\d{2,3}(?:-[A-Z0-9]{4})?)\b`)
	hasDigit     = regexp.MustCompile(`\d`)
)

func extractBatchCode(pool *TextPool) (FieldValue, bool) {
	upper := pool.Upper()
	for _, line := range upper {
		if m := labelledBatch.FindStringSubmatch(line); m != nil && hasDigit.MatchString(m[1]) {
			return text(m[1])
		}
	}
	for _, line := range upper {
		if m := batchPattern.FindStringSubmatch(line); m != nil {
			return text(m[1])
		}
	}
	return FieldValue{}, false
}

// keyword is a phrase matched on word boundaries and the value it yields.
type keyword struct {
	phrase string
	value  string
}

func matchKeywords(pool *TextPool, table []keyword) (string, bool) {
	upper := pool.Upper()
	for _, kw := range table {
		for _, line := range upper {
			if containsWord(line, kw.phrase) {
				return kw.value, true
			}
		}
	}
	return "", false
}

func containsWord(line, phrase string) bool {
	for from := 0; ; {
		i := strings.Index(line[from:], phrase)
		if i < 0 {
			return false
		}
		start := from + i
		end := start + len(phrase)
		if (start == 0 || !isWordByte(line[start-1])) && (end == len(line) || !isWordByte(line[end])) {
			return true
		}
		from = start + 1
	}
}

func isWordByte(b byte) bool {
	return b >= 'A' && b <= 'Z' || b >= 'a' && b <= 'z' || b >= '0' && b <= '9'
}

var seriesKeywords = []keyword{
	{"J-IMPORTS", "J-IMPORTS"},
	{"HW EXOTICS", "HW EXOTICS"},
	{"HW SCREEN TIME", "HW SCREEN TIME"},
	{"HW DREAM GARAGE", "HW DREAM GARAGE"},
	{"HW ROLL PATROL", "HW ROLL PATROL"},
	{"HW TURBO", "HW TURBO"},
	{"HW RACE DAY", "HW RACE DAY"},
	{"HW GREEN SPEED", "HW GREEN SPEED"},
	{"MUSCLE MANIA", "MUSCLE MANIA"},
	{"FACTORY FRESH", "FACTORY FRESH"},
	{"NIGHTBURNERZ", "NIGHTBURNERZ"},
	{"TOONED", "TOONED"},
	{"FAST & FURIOUS", "FAST & FURIOUS"},
	{"CAR CULTURE", "CAR CULTURE"},
	{"BOULEVARD", "BOULEVARD"},
	{"MOVING PARTS", "MOVING PARTS"},
}

func extractSeries(pool *TextPool) (FieldValue, bool) {
	if v, ok := matchKeywords(pool, seriesKeywords); ok {
		return text(v)
	}
	return FieldValue{}, false
}

// longer phrases first so "SUPER TREASURE HUNT" is not read as a plain one
var badgeKeywords = []keyword{
	{"SUPER TREASURE HUNT", "Super Treasure Hunt"},
	{"STH", "Super Treasure Hunt"},
	{"TREASURE HUNT", "Treasure Hunt"},
	{"FIRST EDITION", "First Edition"},
	{"NEW MODEL", "New Model"},
	{"ZAMAC", "ZAMAC"},
	{"EXCLUSIVE", "Exclusive"},
	{"CHASE", "Chase"},
}

func extractBadge(pool *TextPool) (FieldValue, bool) {
	if v, ok := matchKeywords(pool, badgeKeywords); ok {
		return text(v)
	}
	return FieldValue{}, false
}

// brands maps a printed brand to its display name and manufacturer.
var brands = []struct {
	phrase       string
	name         string
	manufacturer string
}{
	{"HOT WHEELS", "Hot Wheels", "Mattel"},
	{"MATCHBOX", "Matchbox", "Mattel"},
	{"MAJORETTE", "Majorette", "Majorette"},
	{"TOMICA", "Tomica", "Takara Tomy"},
	{"MINI GT", "Mini GT", "TSM Model"},
	{"GREENLIGHT", "GreenLight", "GreenLight Collectibles"},
	{"M2 MACHINES", "M2 Machines", "M2 Collectibles"},
	{"JOHNNY LIGHTNING", "Johnny Lightning", "Round 2"},
	{"AUTO WORLD", "Auto World", "Round 2"},
	{"MAISTO", "Maisto", "May Cheong Group"},
	{"SIKU", "Siku", "Sieper"},
	{"KYOSHO", "Kyosho", "Kyosho"},
	{"TARMAC WORKS", "Tarmac Works", "Tarmac Works"},
	{"INNO64", "INNO64", "INNO Models"},
}

var manufacturerKeywords = []keyword{
	{"MATTEL", "Mattel"},
	{"TAKARA TOMY", "Takara Tomy"},
	{"ROUND 2", "Round 2"},
	{"JADA TOYS", "Jada Toys"},
}

func extractBrand(pool *TextPool) (FieldValue, bool) {
	table := make([]keyword, len(brands))
	for i, b := range brands {
		table[i] = keyword{b.phrase, b.name}
	}
	if v, ok := matchKeywords(pool, table); ok {
		return text(v)
	}
	return FieldValue{}, false
}

// extractManufacturer prefers an explicitly printed manufacturer and falls
// back to the owner of a recognised brand.
func extractManufacturer(pool *TextPool) (FieldValue, bool) {
	if v, ok := matchKeywords(pool, manufacturerKeywords); ok {
		return text(v)
	}
	table := make([]keyword, len(brands))
	for i, b := range brands {
		table[i] = keyword{b.phrase, b.manufacturer}
	}
	if v, ok := matchKeywords(pool, table); ok {
		return text(v)
	}
	return FieldValue{}, false
}

var (
	madeIn = regexp.MustCompile(`\bMADE\s+IN\s+(?:THE\s+)?([A-Z][A-Z.]*(?:\s+[A-Z][A-Z.]*)?)`)

	twoWordCountries = map[string]bool{
		"HONG KONG": true, "SRI LANKA": true, "UNITED STATES": true, "UNITED KINGDOM": true,
		"SOUTH KOREA": true, "NEW ZEALAND": true,
	}
	countryAliases = map[string]string{
		"U.S.A.": "USA", "U.S.A": "USA", "US": "USA", "USA": "USA", "UNITED STATES": "USA",
		"U.K.": "UK", "UK": "UK", "UNITED KINGDOM": "UK", "PRC": "China",
	}
)

func extractCountryOfOrigin(pool *TextPool) (FieldValue, bool) {
	for _, line := range pool.Upper() {
		m := madeIn.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		country := m[1]
		if !twoWordCountries[country] {
			country = strings.Fields(country)[0]
		}
		country = strings.TrimRight(country, ".")
		if alias, ok := countryAliases[country]; ok {
			return text(alias)
		}
		if alias, ok := countryAliases[country+"."]; ok {
			return text(alias)
		}
		return text(titleCase(country))
	}
	return FieldValue{}, false
}

func titleCase(s string) string {
	words := strings.Fields(strings.ToLower(s))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

var regionKeywords = []keyword{
	{"INTERNATIONAL", "International"},
	{"INTL", "International"},
	{"MATTEL EUROPA", "Europe"},
	{"EUROPE", "Europe"},
	{"MATTEL U.K", "UK"},
	{"MATTEL CANADA", "Canada"},
	{"MATTEL AUSTRALIA", "Australia"},
	{"ASIA PACIFIC", "Asia"},
	{"EL SEGUNDO", "US"},
}

func extractRegion(pool *TextPool) (FieldValue, bool) {
	if v, ok := matchKeywords(pool, regionKeywords); ok {
		return text(v)
	}
	return FieldValue{}, false
}

var website = regexp.MustCompile(`(?:https?://)?(?:www\.)?((?:[a-z0-9-]+\.)+(?:com|net|org|co\.uk|com\.au|de|fr|jp|ca|eu|io))\b`)

func extractWebsite(pool *TextPool) (FieldValue, bool) {
	for _, line := range pool.Lines() {
		lower := strings.ToLower(line)
		for _, m := range website.FindAllStringSubmatchIndex(lower, -1) {
			// skip e-mail addresses
			if m[0] > 0 && lower[m[0]-1] == '@' {
				continue
			}
			return text(lower[m[2]:m[3]])
		}
	}
	return FieldValue{}, false
}

var standards = []struct {
	pattern *regexp.Regexp
	name    string
}{
	{regexp.MustCompile(`\bASTM\s*F\s*-?\s*963\b`), "ASTM F963"},
	{regexp.MustCompile(`\bEN\s*-?\s*71\b`), "EN71"},
	{regexp.MustCompile(`\bISO\s*8124\b`), "ISO 8124"},
	{regexp.MustCompile(`\bCPSIA\b`), "CPSIA"},
	{regexp.MustCompile(`\bUKCA\b`), "UKCA"},
	{regexp.MustCompile(`\bCE\b`), "CE"},
}

func extractComplianceStandards(pool *TextPool) (FieldValue, bool) {
	upper := pool.Upper()
	var found []string
	for _, s := range standards {
		for _, line := range upper {
			if s.pattern.MatchString(line) {
				found = append(found, s.name)
				break
			}
		}
	}
	if len(found) == 0 {
		return FieldValue{}, false
	}
	return FieldValue{List: found}, true
}

var (
	agesPattern  = regexp.MustCompile(`\bAGES?\s*(\d{1,2})\s*(?:\+|AND\s+UP|&\s*UP|YEARS?\s*(?:\+|AND\s+UP|&\s*UP|AND\s+OVER))`)
	underPattern = regexp.MustCompile(`\bNOT\s+(?:SUITABLE\s+)?FOR\s+CHILDREN\s+UNDER\s*(\d{1,2})\s*(?:YEARS?|YRS?)`)
)

func extractAgeGrade(pool *TextPool) (FieldValue, bool) {
	upper := pool.Upper()
	for _, p := range []*regexp.Regexp{agesPattern, underPattern} {
		for _, line := range upper {
			if m := p.FindStringSubmatch(line); m != nil {
				n, _ := strconv.Atoi(m[1])
				return text(fmt.Sprintf("%d+", n))
			}
		}
	}
	return FieldValue{}, false
}
