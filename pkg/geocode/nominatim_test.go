package geocode

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/siteplan/internal/apperr"
)

func newTestNominatim(t *testing.T, handler http.HandlerFunc) *NominatimProvider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	p := NewNominatimProvider(WithBaseURL(srv.URL), WithUserAgent("siteplan-test"), WithCountryCodes("us"))
	p.limiter = newTestLimiter()
	return p
}

func TestNominatimGeocode_ImportanceAsConfidence(t *testing.T) {
	p := newTestNominatim(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "us", r.URL.Query().Get("countrycodes"))
		assert.Equal(t, "siteplan-test", r.Header.Get("User-Agent"))
		_, _ = io.WriteString(w, `[{
			"lat": "33.0581",
			"lon": "-112.0476",
			"importance": 0.62,
			"boundingbox": ["32.98", "33.10", "-112.10", "-111.95"],
			"display_name": "Maricopa, Pinal County, Arizona"
		}]`)
	})

	res, err := p.Geocode(context.Background(), "Maricopa AZ")
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.InDelta(t, 33.0581, res.Latitude, 0.0001)
	assert.InDelta(t, -112.0476, res.Longitude, 0.0001)
	assert.InDelta(t, 0.62, res.Confidence, 0.0001)
	assert.Equal(t, SourceSecondary, res.Source)
	require.NotNil(t, res.Bounds)
	assert.Equal(t, Bounds{South: 32.98, North: 33.10, West: -112.10, East: -111.95}, *res.Bounds)
}

func TestNominatimGeocode_ClampsImportance(t *testing.T) {
	p := newTestNominatim(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `[{"lat": "1", "lon": "2", "importance": 1.4}]`)
	})

	res, err := p.Geocode(context.Background(), "x")
	require.NoError(t, err)
	assert.InDelta(t, 1.0, res.Confidence, 0.0001)
	assert.Nil(t, res.Bounds)
}

func TestNominatimGeocode_Empty(t *testing.T) {
	p := newTestNominatim(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `[]`)
	})

	res, err := p.Geocode(context.Background(), "nowhere")
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestNominatimGeocode_ServerError(t *testing.T) {
	p := newTestNominatim(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := p.Geocode(context.Background(), "x")
	assert.ErrorIs(t, err, apperr.ErrProviderUnavailable)
}

func TestNominatimReverse(t *testing.T) {
	p := newTestNominatim(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/reverse", r.URL.Path)
		assert.Equal(t, "33.058300", r.URL.Query().Get("lat"))
		assert.Equal(t, "-112.014700", r.URL.Query().Get("lon"))
		_, _ = io.WriteString(w, `{
			"address": {
				"town": "Maricopa",
				"county": "Pinal County",
				"state": "Arizona",
				"country": "United States"
			}
		}`)
	})

	res, err := p.Reverse(context.Background(), 33.0583, -112.0147)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, "Maricopa", res.City)
	assert.Equal(t, "Pinal County", res.County)
	assert.Equal(t, "Arizona", res.State)
	assert.Equal(t, "United States", res.Country)
	assert.InDelta(t, reverseDefaultConfidence, res.Confidence, 0.0001)
}

func TestNominatimReverse_UnableToGeocode(t *testing.T) {
	p := newTestNominatim(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"error": "Unable to geocode"}`)
	})

	res, err := p.Reverse(context.Background(), 0, 0)
	require.NoError(t, err)
	assert.Nil(t, res)
}
