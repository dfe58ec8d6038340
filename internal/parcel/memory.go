package parcel

import (
	"context"
	"os"
	"sort"
	"sync"

	"github.com/dhconnelly/rtreego"
	"github.com/rotisserie/eris"

	"github.com/sells-group/siteplan/internal/mapview"
)

const (
	rtreeDimensions  = 2
	rtreeMinChildren = 25
	rtreeMaxChildren = 50

	// minExtent pads degenerate boxes; rtreego rejects zero-length sides.
	minExtent = 1e-9
)

type indexedParcel struct {
	feature Feature
	rect    *rtreego.Rect
}

func (p *indexedParcel) Bounds() *rtreego.Rect { return p.rect }

// MemorySource is an in-memory Source backed by an R-tree over parcel
// bounding boxes. It serves GeoJSON-file deployments and tests.
type MemorySource struct {
	mu    sync.RWMutex
	tree  *rtreego.Rtree
	byKey map[string]*indexedParcel
}

// NewMemorySource indexes features. Later duplicates of a key replace earlier ones.
func NewMemorySource(features []Feature) (*MemorySource, error) {
	s := &MemorySource{
		tree:  rtreego.NewTree(rtreeDimensions, rtreeMinChildren, rtreeMaxChildren),
		byKey: make(map[string]*indexedParcel, len(features)),
	}
	for _, f := range features {
		if err := s.Upsert(f); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// LoadGeoJSONFile builds a MemorySource from a GeoJSON FeatureCollection file.
func LoadGeoJSONFile(path string) (*MemorySource, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "parcel: open %s", path)
	}
	defer fh.Close() //nolint:errcheck

	features, _, err := DecodeCollection(fh)
	if err != nil {
		return nil, err
	}
	return NewMemorySource(features)
}

// Upsert adds or replaces a parcel by key.
func (s *MemorySource) Upsert(f Feature) error {
	if err := f.Validate(); err != nil {
		return err
	}
	rect, err := rectFor(f)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.byKey[f.Key]; ok {
		s.tree.Delete(old)
	}
	item := &indexedParcel{feature: f, rect: rect}
	s.tree.Insert(item)
	s.byKey[f.Key] = item
	return nil
}

// Get returns a parcel by key.
func (s *MemorySource) Get(key string) (Feature, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.byKey[key]
	if !ok {
		return Feature{}, false
	}
	return item.feature, true
}

// Len returns the number of indexed parcels.
func (s *MemorySource) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byKey)
}

// ParcelsInBBox implements Source. Results are ordered by key.
func (s *MemorySource) ParcelsInBBox(ctx context.Context, sw, ne mapview.LatLng) ([]Feature, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	query, err := newRect(sw.Lng, sw.Lat, ne.Lng, ne.Lat)
	if err != nil {
		return nil, eris.Wrap(err, "parcel: bbox")
	}

	s.mu.RLock()
	hits := s.tree.SearchIntersect(query)
	out := make([]Feature, 0, len(hits))
	for _, h := range hits {
		if item, ok := h.(*indexedParcel); ok {
			out = append(out, item.feature)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func rectFor(f Feature) (*rtreego.Rect, error) {
	b := f.Bounds()
	if b == nil || b.IsEmpty() {
		return nil, eris.Errorf("parcel %s: empty geometry", f.Key)
	}
	return newRect(b.Min(0), b.Min(1), b.Max(0), b.Max(1))
}

func newRect(minX, minY, maxX, maxY float64) (*rtreego.Rect, error) {
	if maxX < minX {
		minX, maxX = maxX, minX
	}
	if maxY < minY {
		minY, maxY = maxY, minY
	}
	return rtreego.NewRect(rtreego.Point{minX, minY}, []float64{max(maxX-minX, minExtent), max(maxY-minY, minExtent)})
}
