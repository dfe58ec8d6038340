package parcel

import (
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"
)

// ReadShapefile reads parcel polygons and their DBF attributes. Coordinates
// must already be WGS84 lng/lat. Records without a key or polygon are skipped
// and counted.
func ReadShapefile(path string) ([]Feature, int, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return nil, 0, eris.Wrapf(err, "parcel: open shapefile %s", path)
	}
	defer func() { _ = reader.Close() }()

	fields := reader.Fields()
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = strings.TrimRight(f.String(), "\x00")
	}

	var out []Feature
	skipped := 0
	for reader.Next() {
		n, shape := reader.Shape()
		poly, ok := shape.(*shp.Polygon)
		if !ok {
			skipped++
			continue
		}

		props := make(map[string]any, len(names))
		for i, name := range names {
			val := strings.TrimSpace(strings.TrimRight(reader.ReadAttribute(n, i), "\x00"))
			if val != "" {
				props[name] = val
			}
		}

		f, err := fromProperties(props, shapePolygon(poly))
		if err != nil {
			skipped++
			continue
		}
		out = append(out, f)
	}

	if skipped > 0 {
		zap.L().Debug("parcel: skipped shapefile records",
			zap.String("path", path),
			zap.Int("skipped", skipped),
		)
	}
	return out, skipped, nil
}

// shapePolygon converts a shapefile polygon: one ring becomes a Polygon,
// several rings a MultiPolygon with one polygon per ring.
func shapePolygon(p *shp.Polygon) geom.T {
	if p == nil || p.NumParts == 0 || len(p.Points) == 0 {
		return nil
	}

	rings := make([][]float64, 0, p.NumParts)
	for i := int32(0); i < p.NumParts; i++ {
		start := p.Parts[i]
		end := int32(len(p.Points))
		if i+1 < p.NumParts {
			end = p.Parts[i+1]
		}
		flat := make([]float64, 0, 2*(end-start))
		for _, pt := range p.Points[start:end] {
			flat = append(flat, pt.X, pt.Y)
		}
		if len(flat) >= 8 {
			rings = append(rings, flat)
		}
	}

	switch len(rings) {
	case 0:
		return nil
	case 1:
		return geom.NewPolygonFlat(geom.XY, rings[0], []int{len(rings[0])})
	}
	mp := geom.NewMultiPolygon(geom.XY)
	for i, flat := range rings {
		poly := geom.NewPolygonFlat(geom.XY, flat, []int{len(flat)})
		if err := mp.Push(poly); err != nil {
			zap.L().Debug("parcel: skipping malformed ring", zap.Int("ring", i), zap.Error(err))
		}
	}
	return mp
}
