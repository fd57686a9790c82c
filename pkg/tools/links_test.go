package tools

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGoogleFlightsLink(t *testing.T) {
	tests := []struct {
		name    string
		origin  string
		dest    string
		start   string
		wantURL string
	}{
		{
			name: "full route", origin: "SFO", dest: "Tokyo", start: "2026-04-01",
			wantURL: "https://www.google.com/travel/flights?q=Flights+from+SFO+to+Tokyo+on+2026-04-01",
		},
		{
			name: "no origin", dest: "Tokyo",
			wantURL: "https://www.google.com/travel/flights?q=Flights+to+Tokyo",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantURL, GoogleFlightsLink(tt.origin, tt.dest, tt.start))
		})
	}
}

func TestBookingHotelsLink(t *testing.T) {
	assert.Equal(t,
		"https://www.booking.com/searchresults.html?ss=Hotels+in+Lisbon+2026-05-01+to+2026-05-04",
		BookingHotelsLink("Lisbon", "2026-05-01", "2026-05-04"))

	// Partial dates are dropped entirely.
	assert.Equal(t,
		"https://www.booking.com/searchresults.html?ss=Hotels+in+Lisbon",
		BookingHotelsLink("Lisbon", "2026-05-01", ""))
}

func TestGoogleMapsDirectionsLink(t *testing.T) {
	link := GoogleMapsDirectionsLink("Shinjuku", "Asakusa", "transit")
	assert.Contains(t, link, "https://www.google.com/maps/dir/?")
	assert.Contains(t, link, "api=1")
	assert.Contains(t, link, "origin=Shinjuku")
	assert.Contains(t, link, "destination=Asakusa")
	assert.Contains(t, link, "travelmode=transit")

	assert.NotContains(t, GoogleMapsDirectionsLink("A", "B", ""), "travelmode")
}

func TestSiteSearchLink(t *testing.T) {
	assert.Equal(t,
		"https://www.google.com/search?q=site%3Abooking.com+Kyoto+ryokan",
		SiteSearchLink("booking.com", "Kyoto ryokan"))
}

func TestFlightsSearchLinksResult(t *testing.T) {
	res := FlightsSearchLinks("SFO", "Tokyo", "2026-04-01")
	assert.Contains(t, res["summary"], "Flight search links")
	links := res["links"].([]map[string]string)
	assert.Len(t, links, 2)
	assert.Equal(t, "Google Flights", links[0]["label"])
	assert.Equal(t, "Skyscanner", links[1]["label"])
}

func TestThingsToDoLinksCapsInterests(t *testing.T) {
	interests := []string{"a", "b", "c", "d", "e", "f", "g"}
	res := ThingsToDoLinks("Rome", interests)
	links := res["links"].([]map[string]string)
	assert.Len(t, links, 6, "generic query plus first five interests")
	assert.Equal(t, "Things to do in Rome", links[0]["label"])
	assert.Equal(t, "e in Rome", links[5]["label"])
}

func TestDistanceAndTimeDefaultsMode(t *testing.T) {
	res := DistanceAndTime("Florence", "Siena", "")
	assert.Equal(t, "driving", res["mode"])
	links := res["links"].([]map[string]string)
	assert.Contains(t, links[0]["url"], "travelmode=driving")
}
