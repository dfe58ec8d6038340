package geocode

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/siteplan/internal/resilience"
)

const googleGeocodeURL = "https://maps.googleapis.com/maps/api/geocode/json"

type googleLatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type googleGeocodeResponse struct {
	Results []struct {
		Geometry struct {
			Location     googleLatLng `json:"location"`
			LocationType string       `json:"location_type"`
			Viewport     *struct {
				Northeast googleLatLng `json:"northeast"`
				Southwest googleLatLng `json:"southwest"`
			} `json:"viewport"`
		} `json:"geometry"`
		FormattedAddress string `json:"formatted_address"`
	} `json:"results"`
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
}

// GoogleProvider is the primary, keyed provider.
type GoogleProvider struct {
	httpClient *http.Client
	key        string
	baseURL    string
	limiter    *rate.Limiter
}

// NewGoogleProvider creates the primary provider. An empty key leaves it unavailable.
func NewGoogleProvider(key string, opts ...ProviderOption) *GoogleProvider {
	o := applyProviderOptions(googleGeocodeURL, opts)
	return &GoogleProvider{httpClient: o.httpClient, key: key, baseURL: o.baseURL, limiter: o.limiter}
}

// Name implements Provider.
func (p *GoogleProvider) Name() string { return "google" }

// Available implements Provider.
func (p *GoogleProvider) Available() bool { return p.key != "" }

// Geocode implements Provider.
func (p *GoogleProvider) Geocode(ctx context.Context, text string) (*Result, error) {
	if p.key == "" {
		return nil, unavailable("google", eris.New("api key not configured"))
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "geocode: google rate limit")
	}

	params := url.Values{"address": {text}, "key": {p.key}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: google build request")
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, unavailable("google", resilience.NewTransientError(eris.Wrap(err, "request"), 0))
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		cause := eris.Errorf("status %d", resp.StatusCode)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, unavailable("google", resilience.NewTransientError(cause, resp.StatusCode))
		}
		return nil, unavailable("google", cause)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: google read body")
	}

	var gr googleGeocodeResponse
	if err := json.Unmarshal(body, &gr); err != nil {
		return nil, eris.Wrap(err, "geocode: google parse response")
	}

	switch gr.Status {
	case "OK":
	case "ZERO_RESULTS":
		return nil, nil
	case "OVER_QUERY_LIMIT", "OVER_DAILY_LIMIT", "REQUEST_DENIED", "INVALID_REQUEST":
		return nil, unavailable("google", eris.Errorf("status %s: %s", gr.Status, gr.ErrorMessage))
	default:
		return nil, unavailable("google", resilience.NewTransientError(eris.Errorf("status %s", gr.Status), 0))
	}
	if len(gr.Results) == 0 {
		return nil, nil
	}

	first := gr.Results[0]
	res := &Result{
		Latitude:   first.Geometry.Location.Lat,
		Longitude:  first.Geometry.Location.Lng,
		Confidence: googleLocationTypeToConfidence(first.Geometry.LocationType),
		Source:     SourcePrimary,
		Provider:   "google",
	}
	if vp := first.Geometry.Viewport; vp != nil {
		res.Bounds = &Bounds{
			South: vp.Southwest.Lat,
			West:  vp.Southwest.Lng,
			North: vp.Northeast.Lat,
			East:  vp.Northeast.Lng,
		}
	}
	return res, nil
}

// googleLocationTypeToConfidence maps Google's precision marker to a confidence tier.
func googleLocationTypeToConfidence(locType string) float64 {
	switch strings.ToUpper(locType) {
	case "ROOFTOP":
		return 0.99
	case "RANGE_INTERPOLATED":
		return 0.90
	case "GEOMETRIC_CENTER":
		return 0.80
	default:
		return 0.60
	}
}
