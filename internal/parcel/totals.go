package parcel

// Totals sums acres and value over a set of parcels.
type Totals struct {
	Count      int     `json:"count"`
	TotalAcres float64 `json:"total_acres"`
	TotalValue float64 `json:"total_value"`
	PrimaryKey string  `json:"primary_key,omitempty"`
}

// Summarize totals fs in order. The primary parcel is the one with the most
// gross acres; ties go to the earliest.
func Summarize(fs []Feature) Totals {
	var t Totals
	best := -1.0
	for _, f := range fs {
		a := f.Attributes
		t.Count++
		t.TotalAcres += a.GrossAcres
		t.TotalValue += a.Value()
		if a.GrossAcres > best {
			best = a.GrossAcres
			t.PrimaryKey = f.Key
		}
	}
	return t
}

// Primary returns the parcel Summarize would pick as primary.
func Primary(fs []Feature) (Feature, bool) {
	key := Summarize(fs).PrimaryKey
	for _, f := range fs {
		if f.Key == key {
			return f, true
		}
	}
	return Feature{}, false
}
