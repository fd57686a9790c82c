package tools

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

const icsDateLayout = "20060102"

// ICSResult is a generated itinerary calendar.
type ICSResult struct {
	Bytes      []byte
	EventCount int
}

// BuildItineraryICS generates an all-day VEVENT per trip day. Reversed
// date ranges are swapped; missing titles fall back to "Trip day N" and
// short title lists are padded with the last title.
func BuildItineraryICS(tripName, startDate, endDate string, dayTitles []string) (*ICSResult, error) {
	start, err := time.Parse("2006-01-02", startDate)
	if err != nil {
		return nil, fmt.Errorf("parse start date: %w", err)
	}
	end, err := time.Parse("2006-01-02", endDate)
	if err != nil {
		return nil, fmt.Errorf("parse end date: %w", err)
	}
	if end.Before(start) {
		start, end = end, start
	}

	days := int(end.Sub(start).Hours()/24) + 1
	titles := dayTitles
	if len(titles) == 0 {
		titles = make([]string, days)
		for i := range titles {
			titles[i] = fmt.Sprintf("Trip day %d", i+1)
		}
	}
	for len(titles) < days {
		titles = append(titles, titles[len(titles)-1])
	}
	titles = titles[:days]

	stamp := time.Now().UTC().Format("20060102T150405Z")
	var b strings.Builder
	writeLine := func(s string) {
		b.WriteString(s)
		b.WriteString("\r\n")
	}

	writeLine("BEGIN:VCALENDAR")
	writeLine("PRODID:-//TripWright//EN")
	writeLine("VERSION:2.0")
	for i := 0; i < days; i++ {
		d := start.AddDate(0, 0, i)
		writeLine("BEGIN:VEVENT")
		writeLine("UID:" + uuid.New().String())
		writeLine("DTSTAMP:" + stamp)
		writeLine("DTSTART;VALUE=DATE:" + d.Format(icsDateLayout))
		writeLine("DTEND;VALUE=DATE:" + d.AddDate(0, 0, 1).Format(icsDateLayout))
		writeLine("SUMMARY:" + escapeICSText(fmt.Sprintf("%s: %s", tripName, titles[i])))
		writeLine("END:VEVENT")
	}
	writeLine("END:VCALENDAR")

	return &ICSResult{Bytes: []byte(b.String()), EventCount: days}, nil
}

// WriteICS writes calendar bytes under <runtimeDir>/artifacts and
// returns the file path.
func WriteICS(runtimeDir, filename string, icsBytes []byte) (string, error) {
	dir := filepath.Join(runtimeDir, "artifacts")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create artifacts dir: %w", err)
	}
	path := filepath.Join(dir, filename)
	if err := os.WriteFile(path, icsBytes, 0o644); err != nil {
		return "", fmt.Errorf("write ics: %w", err)
	}
	return path, nil
}

// CountICSEvents parses calendar bytes and returns the VEVENT count. An
// error means the bytes are not a well-formed calendar.
func CountICSEvents(icsBytes []byte) (int, error) {
	text := strings.ReplaceAll(string(icsBytes), "\r\n", "\n")
	lines := strings.Split(text, "\n")

	count := 0
	inCalendar := false
	inEvent := false
	closed := false
	for _, line := range lines {
		switch strings.TrimSpace(line) {
		case "BEGIN:VCALENDAR":
			if inCalendar {
				return 0, fmt.Errorf("nested VCALENDAR")
			}
			inCalendar = true
		case "END:VCALENDAR":
			if !inCalendar || inEvent {
				return 0, fmt.Errorf("unbalanced VCALENDAR")
			}
			inCalendar = false
			closed = true
		case "BEGIN:VEVENT":
			if !inCalendar || inEvent {
				return 0, fmt.Errorf("unbalanced VEVENT")
			}
			inEvent = true
		case "END:VEVENT":
			if !inEvent {
				return 0, fmt.Errorf("unbalanced VEVENT")
			}
			inEvent = false
			count++
		}
	}
	if !closed || inCalendar {
		return 0, fmt.Errorf("calendar not terminated")
	}
	return count, nil
}

// escapeICSText escapes text per RFC 5545 section 3.3.11.
func escapeICSText(s string) string {
	r := strings.NewReplacer(
		"\\", "\\\\",
		";", "\\;",
		",", "\\,",
		"\n", "\\n",
	)
	return r.Replace(s)
}
