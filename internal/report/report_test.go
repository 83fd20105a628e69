package report

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"learner-progress-service/internal/domain"
)

var reportNow = time.Date(2026, 3, 20, 8, 0, 0, 0, time.UTC)

func reportFixture() (domain.Catalog, domain.Store) {
	catalog := domain.Catalog{Modules: []domain.ModuleDef{
		{ID: "module-1", Title: "Wordplay"},
		{ID: "module-2", Title: "Irony"},
		{ID: "module-3", Title: "Satire"},
	}}
	store := domain.NewStore()

	done := domain.NewModuleProgress()
	done.Unlocked = true
	done.Completed = true
	done.MasteryScore = 90
	done.ProgressScore = 100
	done.MasteryAchieved = true
	done.CompletionDate = domain.Ptr(reportNow.Add(-8 * 24 * time.Hour))
	store.Mastery["module-1"] = done

	open := domain.NewModuleProgress()
	open.Unlocked = true
	open.ProgressScore = 35
	store.Mastery["module-2"] = open
	return catalog, store
}

func TestRows(t *testing.T) {
	catalog, store := reportFixture()

	rows := Rows(reportNow, catalog, store)
	require.Len(t, rows, 3)

	assert.Equal(t, Row{
		ModuleID: "module-1", Title: "Wordplay", Unlocked: true, Completed: true,
		ProgressScore: 100, MasteryScore: 90, MasteryAchieved: true,
		DaysSinceReview: 8, ReviewReason: "1-week review",
	}, rows[0])
	assert.Equal(t, -1, rows[1].DaysSinceReview)
	assert.Equal(t, 35, rows[1].ProgressScore)
	assert.False(t, rows[2].Unlocked)
}

func TestWriteProducesProgressSheet(t *testing.T) {
	catalog, store := reportFixture()

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, reportNow, catalog, store))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(SheetName)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, header, rows[0])
	assert.Equal(t, []string{"module-1", "Wordplay", "yes", "yes", "100", "90", "yes", "8", "1-week review"}, rows[1])
	assert.Equal(t, "module-2", rows[2][0])
	// trailing empty cells are not returned
	assert.True(t, len(rows[2]) < 8 || rows[2][7] == "")
}
