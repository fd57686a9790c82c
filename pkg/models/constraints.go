package models

// Pace values accepted in TripConstraints.
const (
	PaceRelaxed  = "relaxed"
	PaceBalanced = "balanced"
	PacePacked   = "packed"
)

// TripConstraints is the structured trip request extracted from the user
// query by the intent parser and refined by the validator. Dates are ISO
// YYYY-MM-DD strings.
type TripConstraints struct {
	Origin       string   `json:"origin,omitempty"`
	Destinations []string `json:"destinations"`
	StartDate    string   `json:"start_date,omitempty"`
	EndDate      string   `json:"end_date,omitempty"`
	BudgetUSD    float64  `json:"budget_usd,omitempty"`
	Travelers    int      `json:"travelers,omitempty"`
	Interests    []string `json:"interests"`
	Pace         string   `json:"pace,omitempty"`
	Notes        []string `json:"notes"`
}

// PrimaryDestination returns the first destination or "".
func (c *TripConstraints) PrimaryDestination() string {
	if len(c.Destinations) == 0 {
		return ""
	}
	return c.Destinations[0]
}

// MissingCore lists the core fields still unset, in the fixed order the
// intent parser asks about: destination, start_date, end_date, origin.
func (c *TripConstraints) MissingCore() []string {
	var missing []string
	if len(c.Destinations) == 0 {
		missing = append(missing, "destination")
	}
	if c.StartDate == "" {
		missing = append(missing, "start_date")
	}
	if c.EndDate == "" {
		missing = append(missing, "end_date")
	}
	if c.Origin == "" {
		missing = append(missing, "origin")
	}
	return missing
}

// MissingTokens lists the assumption tokens the responder reports:
// the core fields plus budget and travelers, in display form.
func (c *TripConstraints) MissingTokens() []string {
	var missing []string
	if len(c.Destinations) == 0 {
		missing = append(missing, "destination")
	}
	if c.StartDate == "" {
		missing = append(missing, "start date")
	}
	if c.EndDate == "" {
		missing = append(missing, "end date")
	}
	if c.Origin == "" {
		missing = append(missing, "origin")
	}
	if c.BudgetUSD == 0 {
		missing = append(missing, "budget")
	}
	if c.Travelers == 0 {
		missing = append(missing, "travelers")
	}
	return missing
}

// AddNote appends a provenance note, skipping duplicates.
func (c *TripConstraints) AddNote(note string) {
	for _, n := range c.Notes {
		if n == note {
			return
		}
	}
	c.Notes = append(c.Notes, note)
}

// PlaceCandidate is one geocoding candidate for a place name. IATA is
// set instead of the geographic fields when a 3-letter airport code
// bypassed geocoding.
type PlaceCandidate struct {
	IATA      string  `json:"iata,omitempty"`
	Name      string  `json:"name"`
	Country   string  `json:"country,omitempty"`
	Admin1    string  `json:"admin1,omitempty"`
	Latitude  float64 `json:"latitude,omitempty"`
	Longitude float64 `json:"longitude,omitempty"`
	Timezone  string  `json:"timezone,omitempty"`
}

// GroundedPlaces holds the geocoder-resolved origin and destinations.
type GroundedPlaces struct {
	Origin       *PlaceCandidate  `json:"origin,omitempty"`
	Destinations []PlaceCandidate `json:"destinations"`
}

// PendingDisambiguation asks the user to choose between geocoding
// candidates for a place field ("origin" or "destination").
type PendingDisambiguation struct {
	Field      string           `json:"field"`
	RawValue   string           `json:"raw_value"`
	Options    []string         `json:"options"`
	Candidates []PlaceCandidate `json:"candidates"`
}
