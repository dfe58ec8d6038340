package geocode

import (
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// ProviderOption configures an HTTP-backed provider.
type ProviderOption func(*providerOptions)

type providerOptions struct {
	httpClient   *http.Client
	baseURL      string
	limiter      *rate.Limiter
	userAgent    string
	countryCodes string
}

// WithHTTPClient sets the HTTP client. Its Timeout bounds each call.
func WithHTTPClient(hc *http.Client) ProviderOption {
	return func(o *providerOptions) {
		if hc != nil {
			o.httpClient = hc
		}
	}
}

// WithBaseURL overrides the provider endpoint.
func WithBaseURL(u string) ProviderOption {
	return func(o *providerOptions) {
		if u != "" {
			o.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithRateLimit sets requests per second. Non-positive means unlimited.
func WithRateLimit(rps float64) ProviderOption {
	return func(o *providerOptions) {
		if rps <= 0 {
			o.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		o.limiter = rate.NewLimiter(rate.Limit(rps), max(1, int(rps)))
	}
}

// WithUserAgent sets the User-Agent header, required by Nominatim's usage policy.
func WithUserAgent(ua string) ProviderOption {
	return func(o *providerOptions) {
		if ua != "" {
			o.userAgent = ua
		}
	}
}

// WithCountryCodes restricts Nominatim searches, e.g. "us".
func WithCountryCodes(cc string) ProviderOption {
	return func(o *providerOptions) { o.countryCodes = cc }
}

func applyProviderOptions(defaultURL string, opts []ProviderOption) providerOptions {
	o := providerOptions{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    defaultURL,
		limiter:    rate.NewLimiter(rate.Inf, 1),
		userAgent:  "siteplan/1.0",
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
