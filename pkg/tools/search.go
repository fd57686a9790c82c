package tools

import "fmt"

// FlightsSearchLinks returns flight search deep links for a route.
// Prices and availability are never fetched.
func FlightsSearchLinks(origin, destination, startDate string) map[string]any {
	links := []Link{
		{Label: "Google Flights", URL: GoogleFlightsLink(origin, destination, startDate)},
		{Label: "Skyscanner", URL: SkyscannerLink(origin, destination, startDate)},
	}
	return map[string]any{
		"summary": "Flight search links (prices/availability not fetched).",
		"links":   linkMaps(links),
	}
}

// HotelsSearchLinks returns lodging search links for a destination and
// optional date range or neighborhood.
func HotelsSearchLinks(destination, startDate, endDate, neighborhood string) map[string]any {
	q := "Hotels in " + destination
	if neighborhood != "" {
		q = fmt.Sprintf("%s near %s", q, neighborhood)
	}
	links := []Link{
		{Label: "Booking.com", URL: BookingHotelsLink(destination, startDate, endDate)},
		{Label: "Google Maps (hotels)", URL: GoogleMapsSearchLink(q)},
	}
	return map[string]any{
		"summary": "Hotel search links (no booking).",
		"links":   linkMaps(links),
	}
}

// ThingsToDoLinks returns activity discovery links, one per interest (up
// to five) plus a generic query.
func ThingsToDoLinks(destination string, interests []string) map[string]any {
	queries := []string{"Things to do in " + destination}
	for i, interest := range interests {
		if i >= 5 {
			break
		}
		queries = append(queries, fmt.Sprintf("%s in %s", interest, destination))
	}
	links := make([]Link, 0, len(queries))
	for _, q := range queries {
		links = append(links, Link{Label: q, URL: GoogleMapsSearchLink(q)})
	}
	return map[string]any{
		"summary": "Things-to-do discovery links.",
		"links":   linkMaps(links),
	}
}

// DistanceAndTime returns a directions link. Exact travel time is not
// computed.
func DistanceAndTime(origin, destination, mode string) map[string]any {
	if mode == "" {
		mode = "driving"
	}
	return map[string]any{
		"summary":     "Directions link (exact travel time not computed).",
		"links":       linkMaps([]Link{{Label: "Google Maps directions", URL: GoogleMapsDirectionsLink(origin, destination, mode)}}),
		"mode":        mode,
		"origin":      origin,
		"destination": destination,
	}
}

// linkMaps converts typed links to the generic shape tool results carry.
func linkMaps(links []Link) []map[string]string {
	out := make([]map[string]string, 0, len(links))
	for _, l := range links {
		out = append(out, map[string]string{"label": l.Label, "url": l.URL})
	}
	return out
}
