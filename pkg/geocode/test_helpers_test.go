package geocode

import (
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/time/rate"
)

func newTestLimiter() *rate.Limiter {
	return rate.NewLimiter(rate.Inf, 1)
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

// newRewriteClient sends requests under providerBase to the test server,
// keeping the path suffix and query.
func newRewriteClient(serverURL, providerBase string) *http.Client {
	return &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		orig := r.URL.String()
		if !strings.HasPrefix(orig, providerBase) {
			return http.DefaultTransport.RoundTrip(r)
		}
		target, err := url.Parse(serverURL + strings.TrimPrefix(orig, providerBase))
		if err != nil {
			return nil, err
		}
		out := r.Clone(r.Context())
		out.URL = target
		out.Host = target.Host
		return http.DefaultTransport.RoundTrip(out)
	})}
}
