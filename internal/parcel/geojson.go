package parcel

import (
	"encoding/json"
	"io"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"
)

// keyAliases are property names accepted as the business key on import,
// checked in order.
var keyAliases = []string{KeyProperty, "APN", "parcel_number", "PARCEL_NUM", "PIN"}

// ToGeoJSON converts a rendered parcel to a GeoJSON feature whose ID is the
// render id and whose properties carry the business key and attributes.
func ToGeoJSON(r Rendered) *geojson.Feature {
	a := r.Attributes
	return &geojson.Feature{
		ID:       strconv.FormatInt(r.RenderID, 10),
		Geometry: r.Geometry,
		Properties: map[string]any{
			KeyProperty:       r.Key,
			"owner":           a.Owner,
			"site_address":    a.SiteAddress,
			"site_city":       a.SiteCity,
			"county":          a.County,
			"gross_acres":     a.GrossAcres,
			"appraised_value": a.AppraisedValue,
			"market_value":    a.MarketValue,
			"conveyance_name": a.ConveyanceName,
			"use_code":        a.UseCode,
			"use_description": a.UseDescription,
		},
	}
}

// Collection converts rendered parcels to a feature collection. A nil or
// empty slice yields an empty collection.
func Collection(rs []Rendered) *geojson.FeatureCollection {
	fc := &geojson.FeatureCollection{Features: make([]*geojson.Feature, 0, len(rs))}
	for _, r := range rs {
		fc.Features = append(fc.Features, ToGeoJSON(r))
	}
	return fc
}

// FromGeoJSON reads a parcel from a GeoJSON feature.
func FromGeoJSON(gf *geojson.Feature) (Feature, error) {
	if gf == nil {
		return Feature{}, eris.New("parcel: nil geojson feature")
	}
	return fromProperties(gf.Properties, gf.Geometry)
}

// fromProperties maps assessor properties, under any of their common
// export names, onto a Feature.
func fromProperties(p map[string]any, g geom.T) (Feature, error) {
	f := Feature{
		Key:      propString(p, keyAliases...),
		Geometry: g,
		Attributes: Attributes{
			Owner:          propString(p, "owner", "OWNER", "owner_name"),
			SiteAddress:    propString(p, "site_address", "SITEADDR", "situs_address"),
			SiteCity:       propString(p, "site_city", "SITECITY", "situs_city"),
			County:         propString(p, "county", "COUNTY"),
			GrossAcres:     propFloat(p, "gross_acres", "GROSSAC", "acres"),
			AppraisedValue: propFloat(p, "appraised_value", "APPRVAL", "full_cash_value"),
			MarketValue:    propFloat(p, "market_value", "MKTVAL"),
			ConveyanceName: propString(p, "conveyance_name", "CNVYNAME"),
			UseCode:        propString(p, "use_code", "USECD"),
			UseDescription: propString(p, "use_description", "USEDSCRP"),
		},
	}
	if err := f.Validate(); err != nil {
		return Feature{}, err
	}
	return f, nil
}

// DecodeCollection reads a GeoJSON FeatureCollection. Features that fail
// validation are skipped and counted.
func DecodeCollection(r io.Reader) ([]Feature, int, error) {
	var fc geojson.FeatureCollection
	if err := json.NewDecoder(r).Decode(&fc); err != nil {
		return nil, 0, eris.Wrap(err, "parcel: decode feature collection")
	}

	out := make([]Feature, 0, len(fc.Features))
	skipped := 0
	for i, gf := range fc.Features {
		f, err := FromGeoJSON(gf)
		if err != nil {
			skipped++
			zap.L().Debug("parcel: skipping invalid feature", zap.Int("index", i), zap.Error(err))
			continue
		}
		out = append(out, f)
	}
	return out, skipped, nil
}

// EncodeCollection writes features as a GeoJSON FeatureCollection. Render ids
// are the 1-based positions.
func EncodeCollection(w io.Writer, features []Feature) error {
	rs := make([]Rendered, len(features))
	for i, f := range features {
		rs[i] = Rendered{Feature: f, RenderID: int64(i + 1)}
	}
	if err := json.NewEncoder(w).Encode(Collection(rs)); err != nil {
		return eris.Wrap(err, "parcel: encode feature collection")
	}
	return nil
}

func propString(p map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := p[k].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}

func propFloat(p map[string]any, keys ...string) float64 {
	for _, k := range keys {
		switch v := p[k].(type) {
		case float64:
			return v
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
				return f
			}
		}
	}
	return 0
}
