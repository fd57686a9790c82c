package agent

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExportICSWritesArtifact(t *testing.T) {
	dir := t.TempDir()
	d, _, _ := testDeps(dir)
	state := responderState()
	state.ItineraryDayTitles = []string{"Arrival", "Ramen crawl"}

	out, err := d.exportICS(context.Background(), state)
	require.NoError(t, err)
	require.NotEmpty(t, out.ICSPath)
	assert.Equal(t, filepath.Join(dir, "artifacts", "tokyo-2026-04-01-itinerary.ics"), out.ICSPath)
	assert.Equal(t, 5, out.ICSEventCount)

	data, err := os.ReadFile(out.ICSPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "BEGIN:VCALENDAR")
	assert.Contains(t, string(data), "Ramen crawl")
}

func TestExportICSSkipsWithoutDates(t *testing.T) {
	d, _, _ := testDeps(t.TempDir())
	state := responderState()
	state.Constraints.EndDate = ""
	state.ICSPath = "stale"

	out, err := d.exportICS(context.Background(), state)
	require.NoError(t, err)
	assert.Empty(t, out.ICSPath)
	assert.Zero(t, out.ICSEventCount)
}

func TestSlug(t *testing.T) {
	assert.Equal(t, "tokyo", slug("Tokyo"))
	assert.Equal(t, "rio-de-janeiro", slug("  Rio de Janeiro! "))
	assert.Equal(t, "trip", slug(""))
	assert.Equal(t, "trip", slug("!!!"))
	long := slug("a very long destination name that keeps going and going and going forever")
	assert.LessOrEqual(t, len(long), 60)
}
