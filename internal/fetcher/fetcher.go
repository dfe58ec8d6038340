// Package fetcher downloads county parcel layers published over HTTP(S) or
// anonymous FTP, unpacking zipped shapefile bundles.
package fetcher

import (
	"context"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Fetcher retrieves a remote file.
type Fetcher interface {
	// Download returns the body at url. The caller closes it.
	Download(ctx context.Context, url string) (io.ReadCloser, error)
}

// Options configures the fetchers ForURL builds.
type Options struct {
	UserAgent string
	Timeout   time.Duration
	// RateLimit is requests per second per host; zero means unlimited.
	RateLimit float64
	// MaxAttempts bounds HTTP retries on throttling and 5xx replies.
	MaxAttempts int
}

// ForURL picks the fetcher for rawURL's scheme.
func ForURL(rawURL string, opts Options) (Fetcher, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: parse url")
	}
	switch u.Scheme {
	case "http", "https":
		return NewHTTPFetcher(opts), nil
	case "ftp":
		return NewFTPFetcher(opts), nil
	default:
		return nil, eris.Errorf("fetcher: unsupported scheme %q", u.Scheme)
	}
}

// DownloadToFile writes the body at rawURL to dest and returns bytes written.
func DownloadToFile(ctx context.Context, f Fetcher, rawURL, dest string) (int64, error) {
	body, err := f.Download(ctx, rawURL)
	if err != nil {
		return 0, err
	}
	defer body.Close() //nolint:errcheck

	file, err := os.Create(dest)
	if err != nil {
		return 0, eris.Wrap(err, "fetcher: create file")
	}
	defer file.Close() //nolint:errcheck

	n, err := io.Copy(file, body)
	if err != nil {
		return n, eris.Wrap(err, "fetcher: write file")
	}
	return n, nil
}

// FetchParcelLayer downloads rawURL into dir and returns the path of a
// readable parcel layer: the file itself, or the first .shp/.geojson inside
// a zip archive.
func FetchParcelLayer(ctx context.Context, rawURL, dir string, opts Options) (string, error) {
	f, err := ForURL(rawURL, opts)
	if err != nil {
		return "", err
	}

	name := fileNameFor(rawURL)
	dest := filepath.Join(dir, name)
	n, err := DownloadToFile(ctx, f, rawURL, dest)
	if err != nil {
		return "", err
	}
	zap.L().Info("downloaded parcel layer",
		zap.String("component", "fetcher"),
		zap.String("url", rawURL),
		zap.Int64("bytes", n),
	)

	if strings.ToLower(filepath.Ext(name)) != ".zip" {
		return dest, nil
	}
	return ExtractParcelArchive(dest, filepath.Join(dir, strings.TrimSuffix(name, filepath.Ext(name))))
}

func fileNameFor(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err == nil {
		if base := path.Base(u.Path); base != "." && base != "/" && base != "" {
			return base
		}
	}
	return "parcels.download"
}
