package agent

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/tripwright/tripwright/pkg/models"
	"github.com/tripwright/tripwright/pkg/tools"
)

var slugStripRE = regexp.MustCompile(`[^a-z0-9]+`)

func slug(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		s = "trip"
	}
	s = strings.Trim(slugStripRE.ReplaceAllString(s, "-"), "-")
	if len(s) > 60 {
		s = s[:60]
	}
	if s == "" {
		return "trip"
	}
	return s
}

// exportICS writes the itinerary calendar artifact. Runs without both
// dates skip the export and leave ics_path empty.
func (d *Deps) exportICS(ctx context.Context, state *models.TripState) (*models.TripState, error) {
	state.CurrentStep = &models.PlanStep{StepType: models.StepExportICS, Title: "Export itinerary calendar (.ics)"}
	constraints := state.EnsureConstraints()

	destination := constraints.PrimaryDestination()
	if destination == "" {
		destination = "Trip"
	}
	if constraints.StartDate == "" || constraints.EndDate == "" {
		state.ICSPath = ""
		d.trace("export_ics", map[string]any{
			"skipped": true,
			"reason":  "missing_dates",
		}, logContext(state, NodeExportICS))
		return state, nil
	}

	ics, err := tools.BuildItineraryICS(destination+" trip", constraints.StartDate, constraints.EndDate, state.ItineraryDayTitles)
	if err != nil {
		return nil, fmt.Errorf("build ics: %w", err)
	}
	filename := fmt.Sprintf("%s-%s-itinerary.ics", slug(destination), constraints.StartDate)
	path, err := tools.WriteICS(d.runtimeDir(), filename, ics.Bytes)
	if err != nil {
		return nil, fmt.Errorf("write ics: %w", err)
	}
	state.ICSPath = path
	state.ICSEventCount = ics.EventCount
	d.trace("export_ics", map[string]any{
		"path":        path,
		"event_count": ics.EventCount,
	}, logContext(state, NodeExportICS))
	return state, nil
}
