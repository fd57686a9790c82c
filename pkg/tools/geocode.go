package tools

import (
	"context"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/tripwright/tripwright/pkg/models"
)

// GeocodeResult holds the outcome of resolving one place string.
type GeocodeResult struct {
	Query            string
	Candidates       []models.PlaceCandidate
	Best             *models.PlaceCandidate
	Ambiguous        bool
	BestSimilarity   float64
	AutopickedReason string
}

// Geocoder resolves place names through Open-Meteo's geocoding API and
// caches results per query for the life of the process.
type Geocoder struct {
	HTTPClient *http.Client
	BaseURL    string
	Count      int

	mu    sync.Mutex
	cache map[string]*GeocodeResult
}

// NewGeocoder returns a geocoder with production endpoints. A nil
// httpClient gets a default with an 8 second timeout.
func NewGeocoder(httpClient *http.Client) *Geocoder {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: httpTimeout}
	}
	return &Geocoder{
		HTTPClient: httpClient,
		BaseURL:    openMeteoGeocodingURL,
		Count:      5,
		cache:      make(map[string]*GeocodeResult),
	}
}

type geocodePlacesResponse struct {
	Results []struct {
		Name      string  `json:"name"`
		Country   string  `json:"country"`
		Admin1    string  `json:"admin1"`
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
		Timezone  string  `json:"timezone"`
	} `json:"results"`
}

// Geocode resolves a place string. Results are cached; repeated queries
// within a process never refetch.
func (g *Geocoder) Geocode(ctx context.Context, query string) (*GeocodeResult, error) {
	key := strings.ToLower(strings.TrimSpace(query))
	g.mu.Lock()
	if cached, ok := g.cache[key]; ok {
		g.mu.Unlock()
		return cached, nil
	}
	g.mu.Unlock()

	params := url.Values{}
	params.Set("name", query)
	params.Set("count", strconv.Itoa(g.count()))
	params.Set("language", "en")
	params.Set("format", "json")

	var resp geocodePlacesResponse
	if err := getJSON(ctx, g.HTTPClient, g.BaseURL+"?"+params.Encode(), &resp); err != nil {
		return nil, err
	}

	result := buildGeocodeResult(query, resp)
	g.mu.Lock()
	g.cache[key] = result
	g.mu.Unlock()
	return result, nil
}

func (g *Geocoder) count() int {
	if g.Count <= 0 {
		return 5
	}
	return g.Count
}

func buildGeocodeResult(query string, resp geocodePlacesResponse) *GeocodeResult {
	candidates := make([]models.PlaceCandidate, 0, len(resp.Results))
	for _, r := range resp.Results {
		candidates = append(candidates, models.PlaceCandidate{
			Name:      r.Name,
			Country:   r.Country,
			Admin1:    r.Admin1,
			Latitude:  r.Latitude,
			Longitude: r.Longitude,
			Timezone:  r.Timezone,
		})
	}

	result := &GeocodeResult{Query: query, Candidates: candidates}
	if len(candidates) > 0 {
		result.Best = &candidates[0]
	}

	norm := func(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

	// Country queries like "Peru" also return cities named Peru; a single
	// exact country self-match wins outright.
	var countryMatches []*models.PlaceCandidate
	for i := range candidates {
		c := &candidates[i]
		if norm(c.Name) == norm(query) && norm(c.Country) == norm(query) && norm(c.Admin1) == "" {
			countryMatches = append(countryMatches, c)
		}
	}
	if len(countryMatches) == 1 {
		result.Best = countryMatches[0]
		result.AutopickedReason = "country_match"
	}

	// Two same-named candidates in different regions make a bare query
	// ambiguous; "City, Country" queries are taken as already qualified.
	if result.AutopickedReason == "" && len(candidates) >= 2 && !strings.Contains(strings.TrimSpace(query), ",") {
		a, b := candidates[0], candidates[1]
		if strings.EqualFold(a.Name, b.Name) && (a.Country != b.Country || a.Admin1 != b.Admin1) {
			result.Ambiguous = true
		}
	}

	if result.Best != nil {
		result.BestSimilarity = roundTo(similarity(norm(query), norm(result.Best.Name)), 3)
	}
	return result
}

// similarity scores two strings in [0, 1] as twice the longest common
// subsequence over the combined length.
func similarity(a, b string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	ra, rb := []rune(a), []rune(b)
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for i := 1; i <= len(ra); i++ {
		for j := 1; j <= len(rb); j++ {
			if ra[i-1] == rb[j-1] {
				curr[j] = prev[j-1] + 1
			} else if prev[j] >= curr[j-1] {
				curr[j] = prev[j]
			} else {
				curr[j] = curr[j-1]
			}
		}
		prev, curr = curr, prev
	}
	lcs := prev[len(rb)]
	return 2 * float64(lcs) / float64(len(ra)+len(rb))
}

func roundTo(v float64, places int) float64 {
	factor := math.Pow(10, float64(places))
	return math.Round(v*factor) / factor
}
