package geocode

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/siteplan/internal/resilience"
)

const (
	censusBaseURL   = "https://geocoding.geo.census.gov/geocoder"
	censusBenchmark = "Public_AR_Current"
	censusVintage   = "Current_Current"
)

type censusGeographiesResponse struct {
	Result struct {
		Geographies map[string][]map[string]any `json:"geographies"`
	} `json:"result"`
}

// CensusLocator looks up census tracts with the Census Geographies API.
type CensusLocator struct {
	httpClient *http.Client
	baseURL    string
	limiter    *rate.Limiter
}

// NewCensusLocator creates a CensusLocator.
func NewCensusLocator(opts ...ProviderOption) *CensusLocator {
	o := applyProviderOptions(censusBaseURL, opts)
	return &CensusLocator{httpClient: o.httpClient, baseURL: o.baseURL, limiter: o.limiter}
}

// Tract implements TractLocator. Coordinates outside any block return nil, nil.
func (c *CensusLocator) Tract(ctx context.Context, lat, lng float64) (*Tract, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "geocode: census rate limit")
	}

	params := url.Values{
		"x":         {strconv.FormatFloat(lng, 'f', 6, 64)},
		"y":         {strconv.FormatFloat(lat, 'f', 6, 64)},
		"benchmark": {censusBenchmark},
		"vintage":   {censusVintage},
		"layers":    {"Census Blocks"},
		"format":    {"json"},
	}
	reqURL := c.baseURL + "/geographies/coordinates?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: census build request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, unavailable("census", resilience.NewTransientError(eris.Wrap(err, "request"), 0))
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		cause := eris.Errorf("status %d", resp.StatusCode)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, unavailable("census", resilience.NewTransientError(cause, resp.StatusCode))
		}
		return nil, unavailable("census", cause)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: census read body")
	}

	var cr censusGeographiesResponse
	if err := json.Unmarshal(body, &cr); err != nil {
		return nil, eris.Wrap(err, "geocode: census parse response")
	}
	return tractFromGeographies(cr.Result.Geographies), nil
}

// tractFromGeographies picks the first block layer ("2020 Census Blocks",
// "Census Blocks") and builds the tract identifiers from its FIPS fields.
func tractFromGeographies(geos map[string][]map[string]any) *Tract {
	for layer, features := range geos {
		if !strings.Contains(layer, "Blocks") || len(features) == 0 {
			continue
		}
		f := features[0]
		t := &Tract{
			StateFIPS:  stringField(f, "STATE"),
			CountyFIPS: stringField(f, "COUNTY"),
			TractFIPS:  stringField(f, "TRACT"),
			BlockFIPS:  stringField(f, "BLOCK"),
		}
		if t.StateFIPS == "" || t.CountyFIPS == "" || t.TractFIPS == "" {
			return nil
		}
		t.FullTractFIPS = t.StateFIPS + t.CountyFIPS + t.TractFIPS
		return t
	}
	return nil
}

func stringField(m map[string]any, key string) string {
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}
