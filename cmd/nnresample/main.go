// Package main provides the nnresample command line tool, which resamples a
// variable of a NetCDF or CSV swath onto a named target area.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"go.ngs.io/resampler/internal/adapter/store"
	"go.ngs.io/resampler/internal/adapter/store/areas"
	"go.ngs.io/resampler/internal/adapter/store/csv"
	"go.ngs.io/resampler/internal/adapter/store/ncfile"
	"go.ngs.io/resampler/internal/domain"
	"go.ngs.io/resampler/internal/lazy"
	"go.ngs.io/resampler/internal/observability"
	"go.ngs.io/resampler/internal/resample"
)

const version = "0.1.0"

func main() {
	if err := newRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		os.Exit(1)
	}
}

type runOptions struct {
	source      string
	variable    string
	areasFile   string
	area        string
	output      string
	radius      float64
	fill        float64
	maskInvalid bool
	workers     int
	chunkSize   int
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	var logLevel, logFormat string
	root := &cobra.Command{
		Use:           "nnresample",
		Short:         "Nearest neighbour resampling of swath data onto target areas",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			slog.SetDefault(observability.NewLoggerTo(stderr, logLevel, logFormat))
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "debug, info, warn or error")
	root.PersistentFlags().StringVar(&logFormat, "log-format", "text", "text or json")

	root.AddCommand(newRunCmd(), newAreasCmd())
	return root
}

func newRunCmd() *cobra.Command {
	var o runOptions
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Resample a variable and write it to NetCDF",
		Example: `  nnresample run --source swath.nc --variable sst --areas areas.toml --area japan_1km --output sst.nc
  nnresample run --source buoys.csv --variable wave_m --areas areas.toml --area tokyo_bay --radius 25000 --output waves.nc`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var fill *float64
			if cmd.Flags().Changed("fill") {
				fill = &o.fill
			}
			var radius *float64
			if cmd.Flags().Changed("radius") {
				radius = &o.radius
			}
			return run(cmd.Context(), cmd.OutOrStdout(), o, radius, fill)
		},
	}
	f := cmd.Flags()
	f.StringVar(&o.source, "source", "", "source swath file (.nc or .csv)")
	f.StringVar(&o.variable, "variable", "", "variable to resample")
	f.StringVar(&o.areasFile, "areas", "", "TOML area definition file")
	f.StringVar(&o.area, "area", "", "target area ID")
	f.StringVar(&o.output, "output", "", "output NetCDF file")
	f.Float64Var(&o.radius, "radius", 0, "radius of influence in metres (default: estimated)")
	f.Float64Var(&o.fill, "fill", 0, "fill value (default: NaN for floats, type maximum for integers)")
	f.BoolVar(&o.maskInvalid, "mask-invalid", false, "skip source samples whose value is NaN")
	f.IntVar(&o.workers, "workers", 0, "parallel chunk evaluations (default: number of CPUs)")
	f.IntVar(&o.chunkSize, "chunk-size", resample.DefaultChunkSize, "samples per chunk")
	for _, name := range []string{"source", "variable", "areas", "area", "output"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func loaderFor(path string) (store.SwathLoader, string, error) {
	dir, name := filepath.Dir(path), filepath.Base(path)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return csv.NewPointStore(dir), name, nil
	case ".nc", ".nc4", ".netcdf":
		return ncfile.NewStore(dir), name, nil
	}
	return nil, "", fmt.Errorf("unsupported source file %q (expected .nc or .csv)", path)
}

func run(ctx context.Context, out io.Writer, o runOptions, radius, fill *float64) error {
	if ctx == nil {
		ctx = context.Background()
	}
	logger := slog.Default()

	registry, err := areas.LoadFile(o.areasFile)
	if err != nil {
		return err
	}
	target, ok := registry.Get(o.area)
	if !ok {
		return fmt.Errorf("area %s not found in %s", o.area, o.areasFile)
	}

	loader, name, err := loaderFor(o.source)
	if err != nil {
		return err
	}
	source, err := loader.LoadSwath(name)
	if err != nil {
		return err
	}
	data, err := loader.LoadVariable(name, o.variable)
	if err != nil {
		return err
	}

	nn, err := resample.NewNearestNeighbor(source, target,
		resample.WithScheduler(lazy.NewScheduler(o.workers)),
		resample.WithChunkSize(o.chunkSize),
		resample.WithLogger(logger))
	if err != nil {
		return err
	}

	params := resample.ResampleParams{RadiusOfInfluence: radius, FillValue: fill}
	if o.maskInvalid {
		params.MaskArea = domain.MaskFinite(data)
	}
	result, err := nn.Resample(data, params)
	if err != nil {
		return err
	}
	arr, err := result.Materialize(ctx)
	if err != nil {
		return fmt.Errorf("failed to resample %s: %w", o.variable, err)
	}

	if err := ncfile.WriteResult(o.output, o.variable, arr, target, result.FillValue()); err != nil {
		return err
	}

	mapping := nn.Mapping()
	roi, err := mapping.Radius(ctx)
	if err != nil {
		return err
	}
	arrays, err := mapping.Materialize(ctx)
	if err != nil {
		return err
	}
	logger.Info("resampled",
		"variable", o.variable,
		"area", o.area,
		"radius_m", roi,
		"valid_fraction", arrays.ValidFraction(),
		"evaluated_tasks", nn.Scheduler().Evaluated())
	_, err = fmt.Fprintf(out, "wrote %s %v (%s) to %s\n", o.variable, result.Shape(), result.DType(), o.output)
	return err
}

func newAreasCmd() *cobra.Command {
	var areasFile string
	cmd := &cobra.Command{
		Use:   "areas",
		Short: "List the areas of a TOML area definition file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			registry, err := areas.LoadFile(areasFile)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "ID\tSIZE\tPROJECTION\tDESCRIPTION")
			for _, d := range registry.List() {
				_, _ = fmt.Fprintf(w, "%s\t%dx%d\t%s\t%s\n", d.ID, d.Width, d.Height, d.Projection, d.Description)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&areasFile, "areas", "", "TOML area definition file")
	_ = cmd.MarkFlagRequired("areas")
	return cmd
}
