// Package tools provides the agent's links-first tool surface: search
// link builders, Open-Meteo weather and geocoding, and ICS calendar
// generation. Tools return deep links into travel sites rather than
// fetched prices or availability.
package tools

import (
	"fmt"
	"net/url"
	"strings"
)

// Link is a labeled URL returned by tool calls.
type Link struct {
	Label string `json:"label"`
	URL   string `json:"url"`
}

func quoteQuery(s string) string {
	return url.QueryEscape(s)
}

// GoogleFlightsLink builds a Google Flights query link. Origin and start
// date are optional.
func GoogleFlightsLink(origin, destination, startDate string) string {
	parts := []string{"Flights"}
	if origin != "" {
		parts = append(parts, "from "+origin)
	}
	parts = append(parts, "to "+destination)
	if startDate != "" {
		parts = append(parts, "on "+startDate)
	}
	return "https://www.google.com/travel/flights?q=" + quoteQuery(strings.Join(parts, " "))
}

// SkyscannerLink builds a Skyscanner flight search link.
func SkyscannerLink(origin, destination, startDate string) string {
	parts := []string{"Skyscanner flights"}
	if origin != "" {
		parts = append(parts, origin)
	}
	parts = append(parts, destination)
	if startDate != "" {
		parts = append(parts, startDate)
	}
	return "https://www.skyscanner.com/transport/flights/?q=" + quoteQuery(strings.Join(parts, " "))
}

// SiteSearchLink builds a Google search scoped to one domain.
func SiteSearchLink(domain, query string) string {
	return "https://www.google.com/search?q=" + quoteQuery(fmt.Sprintf("site:%s %s", domain, query))
}

// BookingHotelsLink builds a Booking.com search link for a destination
// and optional date range.
func BookingHotelsLink(destination, startDate, endDate string) string {
	parts := []string{"Hotels in " + destination}
	if startDate != "" && endDate != "" {
		parts = append(parts, startDate+" to "+endDate)
	}
	return "https://www.booking.com/searchresults.html?ss=" + quoteQuery(strings.Join(parts, " "))
}

// AirbnbSearchLink builds an Airbnb homes search link.
func AirbnbSearchLink(destination string) string {
	return "https://www.airbnb.com/s/" + quoteQuery(destination) + "/homes"
}

// GoogleMapsSearchLink builds a Google Maps place search link.
func GoogleMapsSearchLink(query string) string {
	return "https://www.google.com/maps/search/?api=1&query=" + quoteQuery(query)
}

// GoogleMapsDirectionsLink builds a Google Maps directions link. Mode is
// optional ("driving", "transit", "walking").
func GoogleMapsDirectionsLink(origin, destination, mode string) string {
	params := url.Values{}
	params.Set("api", "1")
	params.Set("origin", origin)
	params.Set("destination", destination)
	if mode != "" {
		params.Set("travelmode", mode)
	}
	return "https://www.google.com/maps/dir/?" + params.Encode()
}

// GoogleWeatherSearchLink builds a plain weather search link used as a
// fallback when live forecasts are unavailable.
func GoogleWeatherSearchLink(query string) string {
	return "https://www.google.com/search?q=" + quoteQuery(query)
}
