package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gmerge/internal/model"
)

func testStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func report(id string, started time.Time) *model.Report {
	return &model.Report{
		RunID:      id,
		Mode:       model.ModeNew,
		Label:      "Leads",
		StartedAt:  started,
		FinishedAt: started.Add(time.Minute),
		Sent:       1,
		SkippedIDs: []string{"bad"},
		Failures:   []model.Failure{{Identifier: "c@x.com", Error: "quota"}},
		Outcomes: []model.Outcome{
			model.SentOutcome(0, "a@x.com", "m1", model.Correlation{ThreadID: "t1", MessageID: "<m1@x>"}),
			model.SkippedOutcome(1, "bad", "invalid email"),
			{Row: 2, Identifier: "c@x.com", Kind: model.OutcomeFailed, Error: "quota"},
		},
		Total: 3,
	}
}

func TestSaveAndListRuns(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	t0 := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)

	require.NoError(t, s.SaveRun(ctx, report("r1", t0)))
	require.NoError(t, s.SaveRun(ctx, report("r2", t0.Add(time.Hour))))

	runs, err := s.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "r2", runs[0].ID)
	assert.Equal(t, 1, runs[0].Sent)
	assert.Equal(t, 1, runs[0].Skipped)
	assert.Equal(t, 1, runs[0].Failed)
	assert.Equal(t, "Processed 1 of 3 emails: 1 skipped, 1 failed", runs[0].Summary)
	assert.True(t, runs[1].Started().Equal(t0))

	runs, err = s.ListRuns(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestOutcomesRoundTrip(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	rep := report("r1", time.Now())
	require.NoError(t, s.SaveRun(ctx, rep))

	// saving again replaces the outcomes instead of duplicating them
	require.NoError(t, s.SaveRun(ctx, rep))

	got, err := s.Outcomes(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, rep.Outcomes, got)
}

func TestLastBackup(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	last, err := s.LastBackup(ctx)
	require.NoError(t, err)
	assert.Nil(t, last)

	t0 := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, s.SaveRun(ctx, report("r1", t0)))
	require.NoError(t, s.SaveRun(ctx, report("r2", t0.Add(time.Hour))))
	require.NoError(t, s.SetBackup(ctx, "r1", "Updated_Leads_1.csv", "/tmp/Updated_Leads_1.csv"))

	last, err = s.LastBackup(ctx)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, "r1", last.ID)
	assert.Equal(t, "Updated_Leads_1.csv", last.BackupName)

	require.Error(t, s.SetBackup(ctx, "missing", "x", "y"))
}

func TestInMemoryStore(t *testing.T) {
	s, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.SaveRun(context.Background(), report("r1", time.Now())))
	runs, err := s.ListRuns(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}
