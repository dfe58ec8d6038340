package main

import (
	"context"
	"encoding/json"
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/siteplan/internal/apperr"
	"github.com/sells-group/siteplan/internal/monitoring"
	"github.com/sells-group/siteplan/pkg/geocode"
)

var (
	geocodeLat   float64
	geocodeLng   float64
	geocodeTract bool
)

type geocodeOutput struct {
	Query   string                 `json:"query,omitempty"`
	Result  geocode.Result         `json:"result"`
	Zoom    int                    `json:"zoom"`
	Address *geocode.ReverseResult `json:"address,omitempty"`
	Tract   *geocode.Tract         `json:"tract,omitempty"`
}

// lookupGeocoder is the resolver surface the geocode command needs.
type lookupGeocoder interface {
	Resolve(ctx context.Context, description string) (geocode.Result, bool)
	ResolveCoords(lat, lng float64) geocode.Result
	ReverseGeocode(ctx context.Context, lat, lng float64) (*geocode.ReverseResult, error)
	CensusTract(ctx context.Context, lat, lng float64) (*geocode.Tract, error)
}

var geocodeCmd = &cobra.Command{
	Use:   "geocode [location]",
	Short: "Resolve a location description or coordinate",
	Long:  "Resolves free text through the curated table, cache and providers, or wraps --lat/--lng as a manual result. Prints JSON.",
	RunE: func(cmd *cobra.Command, args []string) error {
		resolver, closeFn := buildResolver(cmd.Context(), cfg, monitoring.Nop{})
		defer closeFn()

		var coords *[2]float64
		if cmd.Flags().Changed("lat") || cmd.Flags().Changed("lng") {
			coords = &[2]float64{geocodeLat, geocodeLng}
		}
		return runGeocode(cmd.Context(), cmd.OutOrStdout(), resolver, strings.Join(args, " "), coords, geocodeTract)
	},
}

func runGeocode(ctx context.Context, w io.Writer, g lookupGeocoder, query string, coords *[2]float64, withTract bool) error {
	out := geocodeOutput{Query: strings.TrimSpace(query)}

	switch {
	case coords != nil:
		lat, lng := coords[0], coords[1]
		if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
			return apperr.Validation("coordinates out of range")
		}
		out.Result = g.ResolveCoords(lat, lng)
		addr, err := g.ReverseGeocode(ctx, lat, lng)
		if err != nil {
			zap.L().Warn("reverse geocode failed", zap.Error(err))
		}
		out.Address = addr
	case out.Query != "":
		res, ok := g.Resolve(ctx, out.Query)
		if !ok {
			return eris.Wrapf(apperr.ErrLocationNotFound, "geocode %q", out.Query)
		}
		out.Result = res
	default:
		return apperr.Validation("a location or --lat/--lng is required")
	}

	out.Zoom = geocode.ZoomFor(out.Result)

	if withTract {
		tract, err := g.CensusTract(ctx, out.Result.Latitude, out.Result.Longitude)
		if err != nil {
			zap.L().Warn("census tract lookup failed", zap.Error(err))
		}
		out.Tract = tract
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func init() {
	geocodeCmd.Flags().Float64Var(&geocodeLat, "lat", 0, "latitude for a coordinate lookup")
	geocodeCmd.Flags().Float64Var(&geocodeLng, "lng", 0, "longitude for a coordinate lookup")
	geocodeCmd.Flags().BoolVar(&geocodeTract, "tract", false, "include the census tract")
	rootCmd.AddCommand(geocodeCmd)
}
