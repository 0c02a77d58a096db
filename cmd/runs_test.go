package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/pricing-cli/internal/model"
)

func TestFormatRunsList(t *testing.T) {
	now := time.Date(2026, 3, 10, 10, 30, 0, 0, time.UTC)
	done := now.Add(45 * time.Second)
	runs := []model.QueryRun{
		{
			ID: "abc12345-6789-0000-0000-000000000000",
			Input: model.QueryInput{
				StoreID:           "store-1",
				TargetItem:        "Margherita Pizza",
				PositioningIntent: model.IntentBalanced,
			},
			Status:      model.RunStatusCompleted,
			CreatedAt:   now,
			CompletedAt: &done,
		},
		{
			ID: "def12345-6789-0000-0000-000000000000",
			Input: model.QueryInput{
				StoreID:           "store-2",
				TargetItem:        "Double Smash Burger with Extra Pickles",
				PositioningIntent: model.IntentPremium,
			},
			Status:    model.RunStatusRunning,
			CreatedAt: now.Add(-1 * time.Hour),
		},
	}

	var buf bytes.Buffer
	formatRunsList(&buf, runs)

	output := buf.String()
	assert.Contains(t, output, "ID")
	assert.Contains(t, output, "STORE")
	assert.Contains(t, output, "STATUS")
	assert.Contains(t, output, "store-1")
	assert.Contains(t, output, "Margherita Pizza")
	assert.Contains(t, output, "COMPLETED")
	assert.Contains(t, output, "RUNNING")
	assert.Contains(t, output, "2026-03-10 10:30")
	assert.Contains(t, output, "abc12345")
	// Long item names get truncated for the table.
	assert.Contains(t, output, "Double Smash Burger with Ex...")
	assert.NotContains(t, output, "Extra Pickles")
}

func TestRunsStats(t *testing.T) {
	now := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
	done1 := now.Add(2 * time.Minute)
	done2 := now.Add(5*time.Minute + 3*time.Minute)

	runs := []model.QueryRun{
		{
			ID:          "1",
			Status:      model.RunStatusCompleted,
			CreatedAt:   now,
			CompletedAt: &done1,
		},
		{
			ID:          "2",
			Status:      model.RunStatusCompleted,
			CreatedAt:   now.Add(5 * time.Minute),
			CompletedAt: &done2,
		},
		{
			ID:        "3",
			Status:    model.RunStatusFailed,
			CreatedAt: now.Add(10 * time.Minute),
		},
		{
			ID:        "4",
			Status:    model.RunStatusPending,
			CreatedAt: now.Add(15 * time.Minute),
		},
	}

	stats := computeRunStats(runs)
	assert.Equal(t, 4, stats.Total)
	assert.Equal(t, 2, stats.Completed)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 1, stats.Pending)
	// Average duration of the 2 completed runs: (120s + 180s) / 2 = 150s.
	assert.InDelta(t, 150.0, stats.AvgDurSecs, 0.1)

	var buf bytes.Buffer
	formatRunStats(&buf, stats)

	output := buf.String()
	assert.Contains(t, output, "Total runs:")
	assert.Contains(t, output, "4")
	assert.Contains(t, output, "Completed:")
	assert.Contains(t, output, "Failed:")
	assert.Contains(t, output, "150.0s")
}

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "abc12345", truncateID("abc12345-6789-0000-0000-000000000000"))
	assert.Equal(t, "short", truncateID("short"))
}
