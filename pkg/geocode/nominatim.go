package geocode

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/siteplan/internal/resilience"
)

const (
	nominatimBaseURL = "https://nominatim.openstreetmap.org"

	// reverseDefaultConfidence applies when a reverse answer carries no importance.
	reverseDefaultConfidence = 0.5
)

type nominatimPlace struct {
	Lat         string   `json:"lat"`
	Lon         string   `json:"lon"`
	Importance  *float64 `json:"importance"`
	BoundingBox []string `json:"boundingbox"`
	DisplayName string   `json:"display_name"`
	Address     struct {
		City         string `json:"city"`
		Town         string `json:"town"`
		Village      string `json:"village"`
		Hamlet       string `json:"hamlet"`
		County       string `json:"county"`
		State        string `json:"state"`
		Country      string `json:"country"`
		Municipality string `json:"municipality"`
	} `json:"address"`
	Error string `json:"error"`
}

// NominatimProvider is the secondary, unauthenticated provider. It also
// serves reverse geocoding.
type NominatimProvider struct {
	httpClient   *http.Client
	baseURL      string
	limiter      *rate.Limiter
	userAgent    string
	countryCodes string
}

// NewNominatimProvider creates the secondary provider.
func NewNominatimProvider(opts ...ProviderOption) *NominatimProvider {
	o := applyProviderOptions(nominatimBaseURL, opts)
	return &NominatimProvider{
		httpClient:   o.httpClient,
		baseURL:      o.baseURL,
		limiter:      o.limiter,
		userAgent:    o.userAgent,
		countryCodes: o.countryCodes,
	}
}

// Name implements Provider.
func (p *NominatimProvider) Name() string { return "nominatim" }

// Available implements Provider.
func (p *NominatimProvider) Available() bool { return true }

// Geocode implements Provider.
func (p *NominatimProvider) Geocode(ctx context.Context, text string) (*Result, error) {
	params := url.Values{
		"q":      {text},
		"format": {"jsonv2"},
		"limit":  {"1"},
	}
	if p.countryCodes != "" {
		params.Set("countrycodes", p.countryCodes)
	}

	body, err := p.get(ctx, "/search", params)
	if err != nil {
		return nil, err
	}

	var places []nominatimPlace
	if err := json.Unmarshal(body, &places); err != nil {
		return nil, eris.Wrap(err, "geocode: nominatim parse search response")
	}
	if len(places) == 0 {
		return nil, nil
	}

	place := places[0]
	lat, lng, err := parseLatLng(place.Lat, place.Lon)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Latitude:  lat,
		Longitude: lng,
		Source:    SourceSecondary,
		Provider:  "nominatim",
	}
	if place.Importance != nil {
		res.Confidence = clamp01(*place.Importance)
	}
	if b, ok := parseBoundingBox(place.BoundingBox); ok {
		res.Bounds = &b
	}
	return res, nil
}

// Reverse implements Reverser. A coordinate Nominatim cannot place returns nil, nil.
func (p *NominatimProvider) Reverse(ctx context.Context, lat, lng float64) (*ReverseResult, error) {
	params := url.Values{
		"lat":            {strconv.FormatFloat(lat, 'f', 6, 64)},
		"lon":            {strconv.FormatFloat(lng, 'f', 6, 64)},
		"format":         {"jsonv2"},
		"addressdetails": {"1"},
	}

	body, err := p.get(ctx, "/reverse", params)
	if err != nil {
		return nil, err
	}

	var place nominatimPlace
	if err := json.Unmarshal(body, &place); err != nil {
		return nil, eris.Wrap(err, "geocode: nominatim parse reverse response")
	}
	if place.Error != "" {
		return nil, nil
	}

	a := place.Address
	city := firstNonEmpty(a.City, a.Town, a.Village, a.Municipality, a.Hamlet)
	if city == "" && a.County == "" && a.State == "" {
		return nil, nil
	}

	conf := reverseDefaultConfidence
	if place.Importance != nil {
		conf = clamp01(*place.Importance)
	}
	return &ReverseResult{
		City:       city,
		County:     a.County,
		State:      a.State,
		Country:    a.Country,
		Confidence: conf,
	}, nil
}

func (p *NominatimProvider) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "geocode: nominatim rate limit")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: nominatim build request")
	}
	req.Header.Set("User-Agent", p.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, unavailable("nominatim", resilience.NewTransientError(eris.Wrap(err, "request"), 0))
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		cause := eris.Errorf("status %d", resp.StatusCode)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, unavailable("nominatim", resilience.NewTransientError(cause, resp.StatusCode))
		}
		return nil, unavailable("nominatim", cause)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: nominatim read body")
	}
	return body, nil
}

func parseLatLng(latStr, lngStr string) (float64, float64, error) {
	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		return 0, 0, eris.Wrapf(err, "geocode: parse latitude %q", latStr)
	}
	lng, err := strconv.ParseFloat(lngStr, 64)
	if err != nil {
		return 0, 0, eris.Wrapf(err, "geocode: parse longitude %q", lngStr)
	}
	return lat, lng, nil
}

// parseBoundingBox reads Nominatim's [south, north, west, east] string array.
func parseBoundingBox(bb []string) (Bounds, bool) {
	if len(bb) != 4 {
		return Bounds{}, false
	}
	var v [4]float64
	for i, s := range bb {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Bounds{}, false
		}
		v[i] = f
	}
	return Bounds{South: v[0], North: v[1], West: v[2], East: v[3]}, true
}

func clamp01(f float64) float64 {
	return min(1, max(0, f))
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
