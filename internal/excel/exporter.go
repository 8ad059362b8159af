package excel

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/example/cardbot/pkg/models"
)

// progressSheet is the default sheet of a new workbook
const progressSheet = "Sheet1"

var progressHeader = []string{
	"Set", "Front", "Back", "Reviews", "Streak", "Correct", "Incorrect", "Lapses", "Due", "Learned", "Skipped",
}

// ExportProgress writes the rows as an xlsx workbook to w
func ExportProgress(w io.Writer, rows []models.ProgressExportRow) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := setRow(f, 1, toInterfaces(progressHeader)); err != nil {
		return err
	}
	for i, r := range rows {
		learned := ""
		if r.LearnedDate != nil {
			learned = formatDate(*r.LearnedDate, "2006-01-02")
		}
		skipped := "no"
		if r.IsSkipped {
			skipped = "yes"
		}
		values := []interface{}{
			r.SetName, r.Front, r.Back, r.ReviewCount, r.CorrectStreak, r.CorrectCount,
			r.IncorrectCount, r.LapseCount, formatDate(r.DueTime, "2006-01-02 15:04"), learned, skipped,
		}
		if err := setRow(f, i+2, values); err != nil {
			return err
		}
	}

	if err := f.SetColWidth(progressSheet, "A", "C", 24); err != nil {
		return fmt.Errorf("failed to set column width: %w", err)
	}
	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func setRow(f *excelize.File, row int, values []interface{}) error {
	start, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(progressSheet, start, &values); err != nil {
		return fmt.Errorf("failed to write row %d: %w", row, err)
	}
	return nil
}

func formatDate(ts int64, layout string) string {
	if ts <= 0 {
		return ""
	}
	return time.Unix(ts, 0).UTC().Format(layout)
}

func toInterfaces(ss []string) []interface{} {
	out := make([]interface{}, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
