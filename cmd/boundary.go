package main

import (
	"context"
	"encoding/json"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/siteplan/internal/boundary"
)

var (
	boundaryFormat string
	boundaryOut    string
)

var boundaryCmd = &cobra.Command{
	Use:   "boundary",
	Short: "Inspect saved project boundaries",
}

var boundaryShowCmd = &cobra.Command{
	Use:   "show <project-id>",
	Short: "Print a project's saved boundary summary",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd.Context(), func(store boundary.Store) error {
			return writeBoundary(cmd.Context(), cmd.OutOrStdout(), store, args[0], "json")
		})
	},
}

var boundaryExportCmd = &cobra.Command{
	Use:   "export <project-id>",
	Short: "Export a project's boundary and parcels as xlsx or geojson",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var w io.Writer = cmd.OutOrStdout()
		if boundaryOut != "" {
			f, err := os.Create(boundaryOut)
			if err != nil {
				return eris.Wrapf(err, "create %s", boundaryOut)
			}
			defer func() { _ = f.Close() }()
			w = f
		}

		return withStore(cmd.Context(), func(store boundary.Store) error {
			if err := writeBoundary(cmd.Context(), w, store, args[0], boundaryFormat); err != nil {
				return err
			}
			if boundaryOut != "" {
				zap.L().Info("boundary exported",
					zap.String("project_id", args[0]),
					zap.String("format", boundaryFormat),
					zap.String("path", boundaryOut),
				)
			}
			return nil
		})
	},
}

func withStore(ctx context.Context, fn func(boundary.Store) error) error {
	store, err := boundary.NewStore(ctx, cfg.Store)
	if err != nil {
		return eris.Wrap(err, "open boundary store")
	}
	defer func() { _ = store.Close() }()
	return fn(store)
}

// writeBoundary renders a saved boundary in one of json, geojson or xlsx.
func writeBoundary(ctx context.Context, w io.Writer, store boundary.Store, projectID, format string) error {
	saved, err := store.GetProjectBoundary(ctx, projectID)
	if err != nil {
		return err
	}

	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(saved)
	case "geojson":
		return boundary.WriteGeoJSON(w, saved)
	case "xlsx":
		return boundary.WriteXLSX(w, saved)
	default:
		return eris.Errorf("unsupported export format %q", format)
	}
}

func init() {
	boundaryExportCmd.Flags().StringVar(&boundaryFormat, "format", "geojson", "export format: geojson or xlsx")
	boundaryExportCmd.Flags().StringVar(&boundaryOut, "out", "", "output file (default stdout)")
	boundaryCmd.AddCommand(boundaryShowCmd, boundaryExportCmd)
	rootCmd.AddCommand(boundaryCmd)
}
