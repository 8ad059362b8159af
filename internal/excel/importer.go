package excel

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/example/cardbot/pkg/models"
)

// errSkipRow marks incomplete rows
var errSkipRow = errors.New("skipping row")

// CardImporter stores imported sets and cards
type CardImporter interface {
	GetOrCreateSet(ctx context.Context, name string) (*models.CardSet, bool, error)
	UpsertCard(ctx context.Context, card *models.Flashcard) (bool, error)
}

// ImportConfig defines the import configuration
type ImportConfig struct {
	FileName      string    // Used to tell CSV from Excel by extension
	Reader        io.Reader // File contents
	FrontColumn   string    // Column with the card front
	BackColumn    string    // Column with the card back
	ExampleColumn string    // Column with an example sentence
	SetColumn     string    // Column with the set name
	DefaultSet    string    // Set used when a row names none
	SheetName     string    // Name of the sheet to import, first sheet when empty
	StartRow      int       // The row to start importing from (1-based index)
}

// DefaultImportConfig returns the default import configuration
func DefaultImportConfig() ImportConfig {
	return ImportConfig{
		FrontColumn:   "A",
		BackColumn:    "B",
		ExampleColumn: "C",
		SetColumn:     "D",
		DefaultSet:    "General",
		StartRow:      2, // By default, start from the second row (skip header)
	}
}

// ImportResult holds the result of an import operation
type ImportResult struct {
	TotalProcessed int
	SetsCreated    int
	Created        int
	Updated        int
	Skipped        int
	Errors         []string
}

// cardRow is one card read from a file
type cardRow struct {
	front, back, example, set string
}

// ImportCards imports flashcards from an Excel or CSV file
func ImportCards(ctx context.Context, config ImportConfig, store CardImporter) (*ImportResult, error) {
	if config.Reader == nil {
		return nil, fmt.Errorf("no file to import")
	}
	if config.StartRow < 1 {
		config.StartRow = 1
	}

	imp := &importer{
		ctx:    ctx,
		config: config,
		store:  store,
		sets:   make(map[string]int64),
		result: &ImportResult{Errors: make([]string, 0)},
	}

	var err error
	if strings.ToLower(filepath.Ext(config.FileName)) == ".csv" {
		err = imp.fromCSV()
	} else {
		err = imp.fromExcel()
	}
	if err != nil {
		return nil, err
	}
	return imp.result, nil
}

type importer struct {
	ctx    context.Context
	config ImportConfig
	store  CardImporter
	sets   map[string]int64 // lower-cased set name -> ID
	result *ImportResult
}

// fromExcel reads rows from an xlsx workbook
func (imp *importer) fromExcel() error {
	f, err := excelize.OpenReader(imp.config.Reader)
	if err != nil {
		return fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	sheet := imp.config.SheetName
	if sheet == "" {
		sheet = f.GetSheetName(0)
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return fmt.Errorf("failed to get rows: %w", err)
	}

	for i, row := range rows {
		if i < imp.config.StartRow-1 {
			continue
		}
		imp.handle(i+1, cardRow{
			front:   cell(row, imp.config.FrontColumn),
			back:    cell(row, imp.config.BackColumn),
			example: cell(row, imp.config.ExampleColumn),
			set:     cell(row, imp.config.SetColumn),
		})
		if err := imp.ctx.Err(); err != nil {
			return err
		}
	}
	return nil
}

// fromCSV reads front,back[,example[,set]] records. A record with only the first
// field filled starts a new set for the records below it.
func (imp *importer) fromCSV() error {
	reader := csv.NewReader(imp.config.Reader)
	reader.FieldsPerRecord = -1 // Allow variable number of fields
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	currentSet := ""
	rowNum := 0
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("error reading CSV: %w", err)
		}

		rowNum++
		if rowNum < imp.config.StartRow {
			continue
		}

		if isSetHeader(row) {
			currentSet = strings.Trim(strings.TrimSpace(row[0]), "\"")
			continue
		}

		rec := cardRow{front: field(row, 0), back: field(row, 1), example: field(row, 2), set: field(row, 3)}
		if rec.set == "" {
			rec.set = currentSet
		}
		imp.handle(rowNum, rec)
		if err := imp.ctx.Err(); err != nil {
			return err
		}
	}
	return nil
}

// handle stores one row and records the outcome
func (imp *importer) handle(rowNum int, rec cardRow) {
	if rec.front == "" && rec.back == "" && rec.example == "" {
		return
	}
	imp.result.TotalProcessed++

	if err := imp.storeRow(rec); err != nil {
		if errors.Is(err, errSkipRow) {
			imp.result.Skipped++
		}
		imp.result.Errors = append(imp.result.Errors, fmt.Sprintf("Row %d: %v", rowNum, err))
	}
}

func (imp *importer) storeRow(rec cardRow) error {
	front := cleanText(rec.front)
	back := strings.TrimSpace(rec.back)
	if front == "" || back == "" {
		return fmt.Errorf("%w: front and back cannot be empty", errSkipRow)
	}

	setName := strings.TrimSpace(rec.set)
	if setName == "" {
		setName = imp.config.DefaultSet
	}
	setID, err := imp.setID(setName)
	if err != nil {
		return err
	}

	card := &models.Flashcard{
		SetID:   setID,
		Front:   front,
		Back:    back,
		Example: strings.TrimSpace(rec.example),
	}
	created, err := imp.store.UpsertCard(imp.ctx, card)
	if err != nil {
		return fmt.Errorf("failed to save card: %w", err)
	}
	if created {
		imp.result.Created++
	} else {
		imp.result.Updated++
	}
	return nil
}

// setID gets a set by name or creates it
func (imp *importer) setID(name string) (int64, error) {
	key := strings.ToLower(name)
	if id, ok := imp.sets[key]; ok {
		return id, nil
	}

	set, created, err := imp.store.GetOrCreateSet(imp.ctx, name)
	if err != nil {
		return 0, fmt.Errorf("failed to process set: %w", err)
	}
	if created {
		imp.result.SetsCreated++
	}
	imp.sets[key] = set.ID
	return set.ID, nil
}

func isSetHeader(row []string) bool {
	if len(row) == 0 || strings.TrimSpace(row[0]) == "" {
		return false
	}
	for _, f := range row[1:] {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

// cleanText drops trailing notes in parentheses, e.g. "go (went, gone)"
func cleanText(s string) string {
	if i := strings.Index(s, "("); i > 0 {
		return strings.TrimSpace(s[:i])
	}
	return strings.TrimSpace(s)
}

func cell(row []string, column string) string {
	if column == "" {
		return ""
	}
	return field(row, columnToIndex(column))
}

func field(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

// columnToIndex converts an Excel column letter to a zero-based index
func columnToIndex(column string) int {
	column = strings.ToUpper(column)
	index := 0
	for i := 0; i < len(column); i++ {
		index = index*26 + int(column[i]-'A'+1)
	}
	return index - 1
}
