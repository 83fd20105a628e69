package report

import (
	"io"
	"time"

	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"

	"learner-progress-service/internal/domain"
	"learner-progress-service/internal/progress"
)

// SheetName is the worksheet holding one row per catalog module.
const SheetName = "Progress"

var header = []string{
	"Module", "Title", "Unlocked", "Completed", "Progress score",
	"Mastery score", "Mastered", "Days since review", "Review",
}

// Row is one module's line in the report.
type Row struct {
	ModuleID        string
	Title           string
	Unlocked        bool
	Completed       bool
	ProgressScore   int
	MasteryScore    int
	MasteryAchieved bool
	// DaysSinceReview is -1 when the module has no review anchor yet.
	DaysSinceReview int
	ReviewReason    string
}

// Rows builds report rows in catalog order.
func Rows(now time.Time, catalog domain.Catalog, store domain.Store) []Row {
	rows := make([]Row, 0, len(catalog.Modules))
	for _, def := range catalog.Modules {
		mp := store.Module(def.ID)
		row := Row{
			ModuleID:        def.ID,
			Title:           def.Title,
			Unlocked:        mp.Unlocked,
			Completed:       mp.Completed,
			ProgressScore:   mp.ProgressScore,
			MasteryScore:    mp.MasteryScore,
			MasteryAchieved: mp.MasteryAchieved,
			DaysSinceReview: -1,
		}
		if anchor, ok := mp.ReviewAnchor(); ok {
			row.DaysSinceReview = progress.DaysSince(now, anchor)
			if band, due := progress.ReviewBandFor(row.DaysSinceReview); due && mp.Completed {
				row.ReviewReason = band.Reason
			}
		}
		rows = append(rows, row)
	}
	return rows
}

// Workbook renders rows into a new workbook. Callers must Close it.
func Workbook(rows []Row) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		f.Close()
		return nil, errors.Wrap(err, "rename sheet")
	}

	if err := setRow(f, 1, toCells(header)); err != nil {
		f.Close()
		return nil, err
	}
	for i, r := range rows {
		var days any = r.DaysSinceReview
		if r.DaysSinceReview < 0 {
			days = ""
		}
		cells := []any{
			r.ModuleID, r.Title, yesNo(r.Unlocked), yesNo(r.Completed), r.ProgressScore,
			r.MasteryScore, yesNo(r.MasteryAchieved), days, r.ReviewReason,
		}
		if err := setRow(f, i+2, cells); err != nil {
			f.Close()
			return nil, err
		}
	}
	if err := f.SetColWidth(SheetName, "B", "B", 28); err != nil {
		f.Close()
		return nil, errors.Wrap(err, "set column width")
	}
	return f, nil
}

// Write renders the report for store and writes the xlsx bytes to w.
func Write(w io.Writer, now time.Time, catalog domain.Catalog, store domain.Store) error {
	f, err := Workbook(Rows(now, catalog, store))
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.WriteTo(w); err != nil {
		return errors.Wrap(err, "write workbook")
	}
	return nil
}

func setRow(f *excelize.File, row int, cells []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return errors.Wrap(err, "cell name")
	}
	if err := f.SetSheetRow(SheetName, cell, &cells); err != nil {
		return errors.Wrapf(err, "write row %d", row)
	}
	return nil
}

func toCells(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
