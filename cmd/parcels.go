package main

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/siteplan/internal/db"
	"github.com/sells-group/siteplan/internal/fetcher"
	"github.com/sells-group/siteplan/internal/parcel"
)

var (
	parcelsFile        string
	parcelsURL         string
	parcelsTable       string
	parcelsBatchSize   int
	parcelsConcurrency int
	parcelsDryRun      bool
)

var parcelsCmd = &cobra.Command{
	Use:   "parcels",
	Short: "Manage the parcel layer",
}

var parcelsImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Load parcels from a GeoJSON file or shapefile into PostGIS",
	Long: "Reads parcel polygons from --file (.geojson, .json or .shp) or downloads them from --url " +
		"(http, https or ftp; zipped shapefile bundles are unpacked) and upserts them by APN. " +
		"Records without an APN or polygon are skipped.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		log := zap.L().With(zap.String("component", "parcels.import"))

		path := parcelsFile
		if parcelsURL != "" {
			dir, err := os.MkdirTemp("", "siteplan-parcels-*")
			if err != nil {
				return eris.Wrap(err, "create download dir")
			}
			defer func() { _ = os.RemoveAll(dir) }()

			path, err = fetcher.FetchParcelLayer(ctx, parcelsURL, dir, fetcher.Options{
				UserAgent:   cfg.Geocode.UserAgent,
				MaxAttempts: cfg.Resilience.MaxAttempts,
			})
			if err != nil {
				return err
			}
		}

		features, skipped, err := readParcelFile(path)
		if err != nil {
			return err
		}
		log.Info("read parcels",
			zap.String("file", path),
			zap.Int("parcels", len(features)),
			zap.Int("skipped", skipped),
		)
		if parcelsDryRun || len(features) == 0 {
			return nil
		}

		if cfg.Store.DatabaseURL == "" {
			return eris.New("store.database_url is required (SITEPLAN_STORE_DATABASE_URL)")
		}
		pool, err := db.Open(ctx, cfg.Store.DatabaseURL, db.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
		if err != nil {
			return err
		}
		defer pool.Close()

		table := parcelsTable
		if table == "" {
			table = cfg.Parcels.Table
		}
		n, err := parcel.Import(ctx, pool, features, parcel.ImportOptions{
			Table:       table,
			BatchSize:   parcelsBatchSize,
			Concurrency: parcelsConcurrency,
		})
		if err != nil {
			return eris.Wrap(err, "import parcels")
		}

		log.Info("import complete", zap.String("table", table), zap.Int64("upserted", n))
		return nil
	},
}

// readParcelFile dispatches on the file extension.
func readParcelFile(path string) ([]parcel.Feature, int, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".shp":
		return parcel.ReadShapefile(path)
	case ".geojson", ".json":
		f, err := os.Open(path)
		if err != nil {
			return nil, 0, eris.Wrapf(err, "open %s", path)
		}
		defer func() { _ = f.Close() }()
		return parcel.DecodeCollection(f)
	default:
		return nil, 0, eris.Errorf("unsupported parcel file %q (want .geojson, .json or .shp)", path)
	}
}

func init() {
	parcelsImportCmd.Flags().StringVar(&parcelsFile, "file", "", "path to a .geojson or .shp file")
	parcelsImportCmd.Flags().StringVar(&parcelsURL, "url", "", "http(s) or ftp URL of a parcel layer or zipped bundle")
	parcelsImportCmd.MarkFlagsOneRequired("file", "url")
	parcelsImportCmd.MarkFlagsMutuallyExclusive("file", "url")
	parcelsImportCmd.Flags().StringVar(&parcelsTable, "table", "", "target table (default from config)")
	parcelsImportCmd.Flags().IntVar(&parcelsBatchSize, "batch-size", 5000, "rows per upsert batch")
	parcelsImportCmd.Flags().IntVar(&parcelsConcurrency, "concurrency", 2, "batches upserted in parallel")
	parcelsImportCmd.Flags().BoolVar(&parcelsDryRun, "dry-run", false, "parse and report without writing")
	parcelsCmd.AddCommand(parcelsImportCmd)
	rootCmd.AddCommand(parcelsCmd)
}
