// Package importer reads demand lists from CSV and Excel files into
// validation records. It detects the delimiter, maps columns by header name
// and leaves the parsing of lengths and quantities to the validation rules.
package importer

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/piwi3910/BarCut/internal/normalize"
	"github.com/piwi3910/BarCut/internal/validation"
)

// ImportResult holds the results of an import operation. Errors are
// structural problems; row content is judged by the validation pipeline.
type ImportResult struct {
	Records  []validation.Record
	Errors   []string
	Warnings []string
}

// ColumnMapping maps semantic column roles to their indices in the data.
// -1 marks an absent column.
type ColumnMapping struct {
	ID          int
	Profile     int
	Length      int
	Quantity    int
	WorkOrder   int
	Unit        int
	Kerf        int
	StockLength int
	Waste       int
	UpdatedAt   int
}

// headerAliases maps canonical column names to their accepted aliases (all lowercase).
var headerAliases = map[string][]string{
	"id":           {"id", "item id", "piece id", "ref", "reference"},
	"profile":      {"profile", "profile type", "profile_type", "profil", "section", "type"},
	"length":       {"length", "len", "size", "uzunluk", "cut length"},
	"quantity":     {"quantity", "qty", "count", "pcs", "pieces", "amount", "adet"},
	"work_order":   {"work order", "work_order", "work order id", "work_order_id", "wo", "order"},
	"unit":         {"unit", "units", "uom"},
	"kerf":         {"kerf", "kerf width", "kerf_width", "blade"},
	"stock_length": {"stock length", "stock_length", "stock", "bar length"},
	"waste":        {"waste", "scrap"},
	"updated_at":   {"updated", "updated at", "updated_at", "modified", "date"},
}

// delimiterCandidates are tried in order; earlier ones win ties.
var delimiterCandidates = []rune{',', ';', '\t', '|'}

func newCSVReader(r io.Reader, delimiter rune) *csv.Reader {
	reader := csv.NewReader(r)
	reader.Comma = delimiter
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1
	return reader
}

// DetectDelimiter parses data with each candidate delimiter and returns the
// delimiter and rows of the parse that reads most like a demand list. When no
// candidate splits the first row, the comma parse and its error are returned.
func DetectDelimiter(data []byte) (rune, [][]string, error) {
	best, bestRows, bestScore := ',', [][]string(nil), -1
	for _, delim := range delimiterCandidates {
		rows, err := newCSVReader(bytes.NewReader(data), delim).ReadAll()
		if err != nil {
			continue
		}
		if score := demandScore(rows); score > bestScore {
			best, bestRows, bestScore = delim, rows, score
		}
	}
	if bestScore < 0 {
		rows, err := newCSVReader(bytes.NewReader(data), ',').ReadAll()
		return ',', rows, err
	}
	return best, bestRows, nil
}

// demandScore rates parsed rows as a demand list: a header naming length and
// quantity counts most, then rows as wide as the first whose length cell looks
// numeric, then the width itself. Rows narrower than two cells score -1.
func demandScore(rows [][]string) int {
	if len(rows) == 0 || len(rows[0]) < 2 {
		return -1
	}
	width := len(rows[0])
	score := width

	mapping, isHeader := DetectColumns(rows[0])
	body := rows
	if isHeader {
		body = rows[1:]
		if mapping.Length >= 0 && mapping.Quantity >= 0 {
			score += 1000
		}
	}
	for _, row := range body {
		if len(row) == width && looksNumeric(getCell(row, mapping.Length)) {
			score += 10
		}
	}
	return score
}

func emptyMapping() ColumnMapping {
	return ColumnMapping{
		ID: -1, Profile: -1, Length: -1, Quantity: -1, WorkOrder: -1,
		Unit: -1, Kerf: -1, StockLength: -1, Waste: -1, UpdatedAt: -1,
	}
}

// positionalMapping is used for files without a header:
// Profile, Length, Quantity, Work order, Unit.
func positionalMapping() ColumnMapping {
	m := emptyMapping()
	m.Profile, m.Length, m.Quantity, m.WorkOrder, m.Unit = 0, 1, 2, 3, 4
	return m
}

func (m *ColumnMapping) slot(role string) *int {
	switch role {
	case "id":
		return &m.ID
	case "profile":
		return &m.Profile
	case "length":
		return &m.Length
	case "quantity":
		return &m.Quantity
	case "work_order":
		return &m.WorkOrder
	case "unit":
		return &m.Unit
	case "kerf":
		return &m.Kerf
	case "stock_length":
		return &m.StockLength
	case "waste":
		return &m.Waste
	case "updated_at":
		return &m.UpdatedAt
	}
	return nil
}

// DetectColumns examines a header row and returns a ColumnMapping.
// Matching is case-insensitive against the known aliases of each role; the
// first matching column wins. Returns the positional mapping and false if no
// header cell was recognised.
func DetectColumns(row []string) (ColumnMapping, bool) {
	mapping := emptyMapping()

	isHeader := false
	for i, cell := range row {
		normalized := strings.ToLower(strings.TrimSpace(cell))
		for role, aliases := range headerAliases {
			for _, alias := range aliases {
				if normalized != alias {
					continue
				}
				isHeader = true
				if idx := mapping.slot(role); idx != nil && *idx == -1 {
					*idx = i
				}
			}
		}
	}

	if !isHeader {
		return positionalMapping(), false
	}
	return mapping, true
}

// getCell safely retrieves a cell value from a row by column index.
// Returns empty string if the index is out of range or negative.
func getCell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

// optionalNumber parses an optional numeric cell. An empty cell is nil.
func optionalNumber(row []string, idx int, name, rowLabel string) (*float64, string) {
	s := getCell(row, idx)
	if s == "" {
		return nil, ""
	}
	v, err := normalize.ParseNumberLike(s)
	if err != nil {
		return nil, fmt.Sprintf("%s: Ignoring invalid %s '%s'", rowLabel, name, s)
	}
	return &v, ""
}

var dateLayouts = []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02", "02.01.2006"}

func parseDate(s string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// parseRow extracts a record from a row using the given column mapping.
// Length and quantity stay raw strings. Unparsable optional cells are
// dropped with a warning.
func parseRow(row []string, mapping ColumnMapping, lineNum int, rowLabel string) (validation.Record, []string) {
	rec := validation.Record{
		ID:          getCell(row, mapping.ID),
		Row:         lineNum,
		ProfileType: getCell(row, mapping.Profile),
		Length:      getCell(row, mapping.Length),
		Quantity:    getCell(row, mapping.Quantity),
		WorkOrderID: getCell(row, mapping.WorkOrder),
		Unit:        getCell(row, mapping.Unit),
	}

	var warnings []string
	var w string
	if rec.KerfWidth, w = optionalNumber(row, mapping.Kerf, "kerf", rowLabel); w != "" {
		warnings = append(warnings, w)
	}
	if rec.StockLength, w = optionalNumber(row, mapping.StockLength, "stock length", rowLabel); w != "" {
		warnings = append(warnings, w)
	}
	if rec.Waste, w = optionalNumber(row, mapping.Waste, "waste", rowLabel); w != "" {
		warnings = append(warnings, w)
	}
	if s := getCell(row, mapping.UpdatedAt); s != "" {
		if t, ok := parseDate(s); ok {
			rec.UpdatedAt = t
		} else {
			warnings = append(warnings, fmt.Sprintf("%s: Ignoring invalid date '%s'", rowLabel, s))
		}
	}
	return rec, warnings
}

// looksNumeric reports whether a cell starts like a number, unit suffix or not.
func looksNumeric(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	c := s[0]
	return (c >= '0' && c <= '9') || c == '-' || c == '+' || c == '.'
}

// isEmptyRow returns true if the row has no meaningful content.
func isEmptyRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// ImportCSV imports demand records from a CSV file.
// It automatically detects the delimiter and maps columns by header names.
func ImportCSV(path string) ImportResult {
	result := ImportResult{}

	data, err := os.ReadFile(path)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("Cannot open file: %v", err))
		return result
	}

	if len(bytes.TrimSpace(data)) == 0 {
		result.Errors = append(result.Errors, "File is empty")
		return result
	}

	delimiter, rows, err := DetectDelimiter(data)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("Cannot read CSV: %v", err))
		return result
	}
	if delimiter != ',' {
		delimName := map[rune]string{';': "semicolon", '\t': "tab", '|': "pipe"}[delimiter]
		result.Warnings = append(result.Warnings, fmt.Sprintf("Detected %s delimiter", delimName))
	}

	if len(rows) == 0 {
		result.Errors = append(result.Errors, "File is empty")
		return result
	}

	return importFromRows(rows, "Line", result.Warnings)
}

// ImportCSVFromReader imports demand records from a CSV reader with a known delimiter.
func ImportCSVFromReader(reader io.Reader, delimiter rune) ImportResult {
	result := ImportResult{}

	rows, err := newCSVReader(reader, delimiter).ReadAll()
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("Cannot read CSV: %v", err))
		return result
	}

	if len(rows) == 0 {
		result.Errors = append(result.Errors, "File is empty")
		return result
	}

	return importFromRows(rows, "Line", nil)
}

// ImportExcel imports demand records from the first sheet of an Excel workbook.
func ImportExcel(path string) ImportResult {
	result := ImportResult{}

	f, err := excelize.OpenFile(path)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("Cannot open Excel file: %v", err))
		return result
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		result.Errors = append(result.Errors, "Excel file has no sheets")
		return result
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("Cannot read Excel data: %v", err))
		return result
	}

	if len(rows) == 0 {
		result.Errors = append(result.Errors, "Sheet is empty")
		return result
	}

	return importFromRows(rows, "Row", nil)
}

// Import picks the reader by file extension.
func Import(path string) ImportResult {
	lower := strings.ToLower(path)
	if strings.HasSuffix(lower, ".xlsx") || strings.HasSuffix(lower, ".xlsm") {
		return ImportExcel(path)
	}
	return ImportCSV(path)
}

// importFromRows is the shared import logic for both CSV and Excel data.
func importFromRows(rows [][]string, rowPrefix string, initialWarnings []string) ImportResult {
	result := ImportResult{
		Warnings: initialWarnings,
	}

	if len(rows) == 0 {
		result.Errors = append(result.Errors, "No data rows found")
		return result
	}

	mapping, hasHeader := DetectColumns(rows[0])
	startRow := 0
	if hasHeader {
		startRow = 1
		result.Warnings = append(result.Warnings, "Detected header row, skipping")

		missing := []string{}
		if mapping.Profile == -1 {
			missing = append(missing, "Profile")
		}
		if mapping.Length == -1 {
			missing = append(missing, "Length")
		}
		if mapping.Quantity == -1 {
			missing = append(missing, "Quantity")
		}
		if len(missing) > 0 {
			result.Errors = append(result.Errors, fmt.Sprintf("Required columns not found in header: %s", strings.Join(missing, ", ")))
			return result
		}
	} else if len(rows[0]) >= 2 {
		// an unrecognised header has no number where the length belongs
		if !looksNumeric(rows[0][1]) {
			startRow = 1
			result.Warnings = append(result.Warnings, "Detected header row, skipping")
		}
	}

	for i := startRow; i < len(rows); i++ {
		row := rows[i]
		lineNum := i + 1

		if isEmptyRow(row) {
			continue
		}

		rec, warnings := parseRow(row, mapping, lineNum, fmt.Sprintf("%s %d", rowPrefix, lineNum))
		result.Warnings = append(result.Warnings, warnings...)
		result.Records = append(result.Records, rec)
	}

	if len(result.Records) == 0 {
		result.Errors = append(result.Errors, "No data rows found")
	}
	return result
}
