package training

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/Veraticus/spice-ledger/internal/model"
	"github.com/gocarina/gocsv"
	"github.com/xuri/excelize/v2"
)

// Layout identifies a training file column signature.
type Layout string

// Supported layouts.
const (
	LayoutPortuguese Layout = "pt-BR"
	LayoutEnglish    Layout = "en"
)

// Required columns per layout. The English layout may also carry "type".
var (
	PortugueseColumns = []string{"Data de Efetivação", "Descrição", "Valor", "Categoria"}
	EnglishColumns    = []string{"date", "description", "value", "category"}
)

// ErrEmptyFile is returned for files without data rows.
var ErrEmptyFile = errors.New("training file has no rows")

// LayoutError reports a header that matches neither layout.
type LayoutError struct {
	MissingPortuguese []string
	MissingEnglish    []string
}

func (e *LayoutError) Error() string {
	return fmt.Sprintf("unrecognized training file layout: missing %s columns [%s] or %s columns [%s]",
		LayoutPortuguese, strings.Join(e.MissingPortuguese, ", "),
		LayoutEnglish, strings.Join(e.MissingEnglish, ", "))
}

// DetectLayout picks the layout whose required columns are all present.
func DetectLayout(header []string) (Layout, error) {
	missingPT := missingColumns(header, PortugueseColumns)
	if len(missingPT) == 0 {
		return LayoutPortuguese, nil
	}
	missingEN := missingColumns(header, EnglishColumns)
	if len(missingEN) == 0 {
		return LayoutEnglish, nil
	}
	return "", &LayoutError{MissingPortuguese: missingPT, MissingEnglish: missingEN}
}

func missingColumns(header, required []string) []string {
	var missing []string
	for _, col := range required {
		if !slices.Contains(header, col) {
			missing = append(missing, col)
		}
	}
	return missing
}

// Table is a raw header plus records, independent of the file format.
type Table struct {
	Header  []string
	Records [][]string
}

// ReadCSV reads a CSV training file. A UTF-8 BOM is dropped, headers are
// trimmed and a semicolon delimiter is detected from the header line.
func ReadCSV(r io.Reader) (*Table, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	text := strings.TrimPrefix(string(content), "\ufeff")

	reader := csv.NewReader(strings.NewReader(text))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	firstLine, _, _ := strings.Cut(text, "\n")
	if strings.Count(firstLine, ";") > strings.Count(firstLine, ",") {
		reader.Comma = ';'
	}

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV: %w", err)
	}
	return newTable(records), nil
}

// ReadXLSX reads the first non-empty sheet of a workbook.
func ReadXLSX(r io.Reader) (*Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer func() { _ = f.Close() }()

	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("failed to read sheet %q: %w", sheet, err)
		}
		if len(rows) > 0 {
			return newTable(rows), nil
		}
	}
	return &Table{}, nil
}

// ReadFile reads a CSV or XLSX file based on its extension.
func ReadFile(path string) (*Table, error) {
	// #nosec G304 - path is supplied by the operator
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return ReadXLSX(f)
	default:
		return ReadCSV(f)
	}
}

func newTable(records [][]string) *Table {
	t := &Table{}
	for i, record := range records {
		if i == 0 {
			t.Header = make([]string, len(record))
			for j, col := range record {
				t.Header[j] = strings.TrimSpace(strings.TrimPrefix(col, "\ufeff"))
			}
			continue
		}
		if isBlank(record) {
			continue
		}
		row := make([]string, len(t.Header))
		copy(row, record)
		t.Records = append(t.Records, row)
	}
	return t
}

func isBlank(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// tableReader feeds a Table to gocsv.
type tableReader struct {
	table *Table
	pos   int
}

func (r *tableReader) Read() ([]string, error) {
	if r.pos == 0 {
		r.pos++
		return r.table.Header, nil
	}
	if r.pos > len(r.table.Records) {
		return nil, io.EOF
	}
	record := r.table.Records[r.pos-1]
	r.pos++
	return record, nil
}

func (r *tableReader) ReadAll() ([][]string, error) {
	var out [][]string
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, record)
	}
}

type portugueseRecord struct {
	Date        string `csv:"Data de Efetivação"`
	Description string `csv:"Descrição"`
	Value       string `csv:"Valor"`
	Category    string `csv:"Categoria"`
}

type englishRecord struct {
	Date        string `csv:"date"`
	Description string `csv:"description"`
	Value       string `csv:"value"`
	Type        string `csv:"type"`
	Category    string `csv:"category"`
}

// Dataset is a decoded training file.
type Dataset struct {
	Layout Layout
	Header []string
	Rows   []model.LabeledTransaction
	// Skipped counts rows dropped for a missing category, date or value.
	Skipped int
	Total   int
}

// Decode maps a table onto labeled transactions.
func Decode(table *Table) (*Dataset, error) {
	layout, err := DetectLayout(table.Header)
	if err != nil {
		return nil, err
	}
	if len(table.Records) == 0 {
		return nil, ErrEmptyFile
	}

	ds := &Dataset{Layout: layout, Header: table.Header, Total: len(table.Records)}

	switch layout {
	case LayoutPortuguese:
		var records []portugueseRecord
		if err := gocsv.UnmarshalCSV(&tableReader{table: table}, &records); err != nil {
			return nil, fmt.Errorf("failed to decode rows: %w", err)
		}
		for _, rec := range records {
			row, ok := portugueseRow(rec)
			if !ok {
				ds.Skipped++
				continue
			}
			ds.Rows = append(ds.Rows, row)
		}
	case LayoutEnglish:
		var records []englishRecord
		if err := gocsv.UnmarshalCSV(&tableReader{table: table}, &records); err != nil {
			return nil, fmt.Errorf("failed to decode rows: %w", err)
		}
		for _, rec := range records {
			row, ok := englishRow(rec)
			if !ok {
				ds.Skipped++
				continue
			}
			ds.Rows = append(ds.Rows, row)
		}
	}

	return ds, nil
}

func portugueseRow(rec portugueseRecord) (model.LabeledTransaction, bool) {
	category := strings.TrimSpace(rec.Category)
	if category == "" {
		return model.LabeledTransaction{}, false
	}
	date, err := ParseBrazilianDate(rec.Date)
	if err != nil {
		return model.LabeledTransaction{}, false
	}
	amount, err := ParseBrazilianAmount(rec.Value)
	if err != nil {
		return model.LabeledTransaction{}, false
	}
	return model.LabeledTransaction{
		Date:        date,
		Description: strings.TrimSpace(rec.Description),
		Amount:      amount,
		Type:        model.TypeForAmount(amount),
		Category:    category,
	}, true
}

func englishRow(rec englishRecord) (model.LabeledTransaction, bool) {
	category := strings.TrimSpace(rec.Category)
	if category == "" {
		return model.LabeledTransaction{}, false
	}
	date, err := ParseISODate(rec.Date)
	if err != nil {
		return model.LabeledTransaction{}, false
	}
	amount, err := ParseAmount(rec.Value)
	if err != nil {
		return model.LabeledTransaction{}, false
	}
	return model.LabeledTransaction{
		Date:        date,
		Description: strings.TrimSpace(rec.Description),
		Amount:      amount,
		Type:        typeOrSign(rec.Type, amount),
		Category:    category,
	}, true
}

// LoadFile reads and decodes a training file.
func LoadFile(path string) (*Dataset, error) {
	table, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Decode(table)
}

func categoryColumn(layout Layout) string {
	if layout == LayoutPortuguese {
		return "Categoria"
	}
	return "category"
}

// ValidateTable lists every problem that would stop training on table.
func ValidateTable(table *Table) []string {
	var problems []string

	layout, err := DetectLayout(table.Header)
	if err != nil {
		return []string{err.Error()}
	}
	if len(table.Records) == 0 {
		problems = append(problems, ErrEmptyFile.Error())
		return problems
	}

	col := slices.Index(table.Header, categoryColumn(layout))
	labeled := 0
	for _, record := range table.Records {
		if strings.TrimSpace(record[col]) != "" {
			labeled++
		}
	}
	if labeled == 0 {
		problems = append(problems, "no row has a category")
	}
	return problems
}

// Validate reads path and lists its problems; an empty list means valid.
func Validate(path string) []string {
	table, err := ReadFile(path)
	if err != nil {
		return []string{fmt.Sprintf("failed to read file: %v", err)}
	}
	return ValidateTable(table)
}

// PreviewResult summarizes the start of a training file.
type PreviewResult struct {
	Layout           Layout              `json:"layout" yaml:"layout"`
	Columns          []string            `json:"columns" yaml:"columns"`
	Rows             []map[string]string `json:"rows" yaml:"rows"`
	SampleCategories []string            `json:"sample_categories" yaml:"sample_categories"`
	TotalRows        int                 `json:"total_rows" yaml:"total_rows"`
	CategoryCount    int                 `json:"category_count" yaml:"category_count"`
}

// PreviewTable returns the first limit rows and category statistics.
func PreviewTable(table *Table, limit int) (*PreviewResult, error) {
	layout, err := DetectLayout(table.Header)
	if err != nil {
		return nil, err
	}

	result := &PreviewResult{
		Layout:    layout,
		Columns:   table.Header,
		TotalRows: len(table.Records),
	}
	for i, record := range table.Records {
		if i >= limit {
			break
		}
		row := make(map[string]string, len(table.Header))
		for j, col := range table.Header {
			row[col] = record[j]
		}
		result.Rows = append(result.Rows, row)
	}

	col := slices.Index(table.Header, categoryColumn(layout))
	seen := make(map[string]bool)
	for _, record := range table.Records {
		category := strings.TrimSpace(record[col])
		if category == "" || seen[category] {
			continue
		}
		seen[category] = true
		if len(result.SampleCategories) < 10 {
			result.SampleCategories = append(result.SampleCategories, category)
		}
	}
	result.CategoryCount = len(seen)

	return result, nil
}

// Preview reads path and previews it.
func Preview(path string, limit int) (*PreviewResult, error) {
	table, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	return PreviewTable(table, limit)
}
