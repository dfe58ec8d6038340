package boundary

import (
	"encoding/json"
	"io"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/sells-group/siteplan/internal/parcel"
)

var parcelSheetHeader = []string{
	"APN", "Owner", "Site Address", "Site City", "County",
	"Gross Acres", "Appraised Value", "Market Value",
	"Conveyance", "Use Code", "Use Description",
}

// WriteXLSX writes a workbook with a Summary sheet and one row per parcel on
// a Parcels sheet.
func WriteXLSX(w io.Writer, s *Saved) error {
	f := xlsx.NewFile()

	summary, err := f.AddSheet("Summary")
	if err != nil {
		return eris.Wrap(err, "export: add summary sheet")
	}
	b := s.Boundary
	for _, kv := range [][2]string{
		{"Project", s.ProjectID},
		{"Parcels", strconv.Itoa(b.ParcelCount)},
		{"Total Acres", strconv.FormatFloat(b.TotalAcres, 'f', 4, 64)},
		{"Total Value", strconv.FormatFloat(b.TotalValue, 'f', 2, 64)},
		{"Primary Parcel", b.PrimaryKey},
		{"County", b.County},
		{"City", b.City},
		{"Census Tract", b.CensusTract},
		{"Saved At", s.SavedAt.Format("2006-01-02 15:04:05Z07:00")},
	} {
		row := summary.AddRow()
		row.AddCell().SetString(kv[0])
		row.AddCell().SetString(kv[1])
	}

	sheet, err := f.AddSheet("Parcels")
	if err != nil {
		return eris.Wrap(err, "export: add parcels sheet")
	}
	header := sheet.AddRow()
	for _, h := range parcelSheetHeader {
		header.AddCell().SetString(h)
	}
	for _, p := range s.Parcels {
		a := p.Attributes
		row := sheet.AddRow()
		for _, v := range []string{p.Key, a.Owner, a.SiteAddress, a.SiteCity, a.County} {
			row.AddCell().SetString(v)
		}
		row.AddCell().SetFloat(a.GrossAcres)
		row.AddCell().SetFloat(a.AppraisedValue)
		row.AddCell().SetFloat(a.MarketValue)
		for _, v := range []string{a.ConveyanceName, a.UseCode, a.UseDescription} {
			row.AddCell().SetString(v)
		}
	}

	if err := f.Write(w); err != nil {
		return eris.Wrap(err, "export: write xlsx")
	}
	return nil
}

// WriteGeoJSON writes a FeatureCollection whose first feature is the boundary
// outline, followed by the selected parcels.
func WriteGeoJSON(w io.Writer, s *Saved) error {
	b := s.Boundary
	fc := &geojson.FeatureCollection{}
	fc.Features = append(fc.Features, &geojson.Feature{
		ID:       s.ProjectID,
		Geometry: b.Geometry,
		Properties: map[string]any{
			"kind":           "boundary",
			"project_id":     s.ProjectID,
			"total_acres":    b.TotalAcres,
			"total_value":    b.TotalValue,
			"parcel_count":   b.ParcelCount,
			"primary_parcel": b.PrimaryKey,
			"county":         b.County,
			"city":           b.City,
			"census_tract":   b.CensusTract,
		},
	})
	for i, p := range s.Parcels {
		f := parcel.ToGeoJSON(parcel.Rendered{Feature: p, RenderID: int64(i + 1)})
		f.Properties["kind"] = "parcel"
		fc.Features = append(fc.Features, f)
	}

	if err := json.NewEncoder(w).Encode(fc); err != nil {
		return eris.Wrap(err, "export: write geojson")
	}
	return nil
}
