package fetcher

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
)

// layerExts ranks the parcel layer formats found in county bundles.
var layerExts = []string{".shp", ".geojson", ".json"}

// ExtractParcelArchive unpacks zipPath into destDir and returns the parcel
// layer inside it. Shapefiles win over GeoJSON; within a format the
// lexically first path wins.
func ExtractParcelArchive(zipPath, destDir string) (string, error) {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return "", eris.Wrap(err, "zip: open archive")
	}
	defer r.Close() //nolint:errcheck

	var extracted []string
	for _, f := range r.File {
		path, err := extractEntry(f, destDir)
		if err != nil {
			return "", err
		}
		if path != "" {
			extracted = append(extracted, path)
		}
	}
	sort.Strings(extracted)

	for _, ext := range layerExts {
		for _, p := range extracted {
			if strings.EqualFold(filepath.Ext(p), ext) && !strings.HasPrefix(filepath.Base(p), ".") {
				return p, nil
			}
		}
	}
	return "", eris.Errorf("zip: no .shp or .geojson layer in %s", filepath.Base(zipPath))
}

// extractEntry writes one archive entry under destDir. It returns "" for
// directories.
func extractEntry(f *zip.File, destDir string) (string, error) {
	destPath := filepath.Join(destDir, f.Name)
	if !strings.HasPrefix(filepath.Clean(destPath), filepath.Clean(destDir)+string(os.PathSeparator)) {
		return "", eris.Errorf("zip: illegal path %q (zip slip attempt)", f.Name)
	}

	if f.FileInfo().IsDir() {
		if err := os.MkdirAll(destPath, 0o755); err != nil {
			return "", eris.Wrap(err, "zip: create directory")
		}
		return "", nil
	}
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return "", eris.Wrap(err, "zip: create parent directory")
	}

	rc, err := f.Open()
	if err != nil {
		return "", eris.Wrap(err, "zip: open entry")
	}
	defer rc.Close() //nolint:errcheck

	out, err := os.Create(destPath)
	if err != nil {
		return "", eris.Wrap(err, "zip: create file")
	}
	defer out.Close() //nolint:errcheck

	if _, err := io.Copy(out, rc); err != nil {
		return "", eris.Wrap(err, "zip: write file")
	}
	return destPath, nil
}
