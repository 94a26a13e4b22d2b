package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/readmission/dashboard/internal/config"
	"github.com/readmission/dashboard/internal/domain/readmission"
	"github.com/readmission/dashboard/internal/platform/export"
	"github.com/readmission/dashboard/internal/presentation/terminal"
)

const version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "readmission-dashboard",
		Short: "Hospital readmission risk dashboard",
	}
	rootCmd.PersistentFlags().String("dataset", "", "Path to the encounter CSV (overrides DATASET_PATH)")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(reportCmd())
	rootCmd.AddCommand(exportCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the dashboard web server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runServer(cfg, newLogger(cfg, os.Stdout))
		},
	}
}

func reportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print the dashboard for a set of filters to the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger := newLogger(cfg, os.Stderr)

			svc, err := newService(cfg, logger)
			if err != nil {
				return err
			}
			fc, err := criteriaFromFlags(cmd, svc.Dataset())
			if err != nil {
				return err
			}
			d, err := svc.Dashboard(fc)
			if err != nil {
				return err
			}

			page, _ := cmd.Flags().GetInt("page")
			opts := terminal.DefaultOptions()
			opts.Page = page
			opts.PageSize = cfg.PageSize
			return terminal.Render(cmd.OutOrStdout(), d, opts)
		},
	}
	addFilterFlags(cmd)
	cmd.Flags().Int("page", 1, "Listing page to print")
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the filtered encounters to a CSV or Parquet file",
		RunE: func(cmd *cobra.Command, args []string) error {
			format, _ := cmd.Flags().GetString("format")
			out, _ := cmd.Flags().GetString("out")
			columns, _ := cmd.Flags().GetString("columns")
			if format != export.FormatCSV && format != export.FormatParquet {
				return fmt.Errorf("unsupported format %q", format)
			}

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger := newLogger(cfg, os.Stderr)

			svc, err := newService(cfg, logger)
			if err != nil {
				return err
			}
			fc, err := criteriaFromFlags(cmd, svc.Dataset())
			if err != nil {
				return err
			}

			var w io.Writer = cmd.OutOrStdout()
			if out != "" && out != "-" {
				f, err := os.Create(out)
				if err != nil {
					return fmt.Errorf("create %s: %w", out, err)
				}
				defer f.Close()
				w = f
			}

			n, err := writeExport(w, svc, fc, format, columns)
			if err != nil {
				return err
			}
			logger.Info().Str("format", format).Str("out", out).Int("rows", n).Msg("export written")
			return nil
		},
	}
	addFilterFlags(cmd)
	cmd.Flags().String("format", export.FormatCSV, "Output format: csv or parquet")
	cmd.Flags().String("out", "-", "Output file, - for stdout")
	cmd.Flags().String("columns", "", "Comma-separated CSV columns (default listing columns)")
	return cmd
}

func writeExport(w io.Writer, svc *readmission.Service, fc readmission.FilterCriteria, format, columns string) (int, error) {
	if format == export.FormatParquet {
		view, err := svc.View(fc)
		if err != nil {
			return 0, err
		}
		return view.Len(), export.WriteParquet(w, view)
	}

	cols, err := readmission.ParseColumns(columns)
	if err != nil {
		return 0, err
	}
	listing, err := svc.Listing(fc, cols)
	if err != nil {
		return 0, err
	}
	return len(listing.Rows), export.WriteCSV(w, listing)
}

// loadConfig applies the --dataset override before reading the environment.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	if path, _ := cmd.Flags().GetString("dataset"); path != "" {
		os.Setenv("DATASET_PATH", path)
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config, out io.Writer) zerolog.Logger {
	if cfg.IsDev() {
		return zerolog.New(zerolog.ConsoleWriter{Out: out}).With().Timestamp().Logger().Level(zerolog.DebugLevel)
	}
	return zerolog.New(out).With().Timestamp().Logger().Level(zerolog.InfoLevel)
}

func schemaFromConfig(cfg *config.Config) readmission.Schema {
	schema := readmission.DefaultSchema()
	schema.AdmissionType = cfg.AdmissionTypeColumn
	schema.AgeFormat = readmission.AgeFormat(cfg.AgeFormat)
	schema.NotReadmitted = cfg.NotReadmittedValue
	return schema
}

// newService loads the dataset once; a load failure is fatal to the command.
func newService(cfg *config.Config, logger zerolog.Logger) (*readmission.Service, error) {
	start := time.Now()
	ds, err := readmission.LoadFile(cfg.DatasetPath, schemaFromConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("load dataset: %w", err)
	}

	evt := logger.Info().
		Str("path", cfg.DatasetPath).
		Int("records", ds.Len()).
		Dur("elapsed", time.Since(start))
	if bounds, ok := ds.StayBounds(); ok {
		evt = evt.Int("stay_min", bounds.Min).Int("stay_max", bounds.Max)
	}
	evt.Msg("dataset loaded")

	svc := readmission.NewService(ds, logger)
	svc.SetStrict(cfg.StrictFilters)
	return svc, nil
}

func addFilterFlags(cmd *cobra.Command) {
	cmd.Flags().String("age", "", "Age bracket, e.g. [40-50)")
	cmd.Flags().String("admission-type", "", "Admission type")
	cmd.Flags().String("insulin", "", "Insulin status")
	cmd.Flags().String("gender", "", "Gender")
	cmd.Flags().String("race", "", "Race")
	cmd.Flags().Int("stay-min", 0, "Minimum days in hospital (inclusive)")
	cmd.Flags().Int("stay-max", 0, "Maximum days in hospital (inclusive)")
}

// criteriaFromFlags builds filter criteria from the filter flags. When only
// one stay bound is set the other defaults to the dataset bound, or is left
// open when the dataset has no stay values.
func criteriaFromFlags(cmd *cobra.Command, ds *readmission.Dataset) (readmission.FilterCriteria, error) {
	var fc readmission.FilterCriteria
	flags := []struct {
		name  string
		field readmission.Field
	}{
		{"age", readmission.FieldAge},
		{"admission-type", readmission.FieldAdmissionType},
		{"insulin", readmission.FieldInsulin},
		{"gender", readmission.FieldGender},
		{"race", readmission.FieldRace},
	}
	for _, f := range flags {
		v, err := cmd.Flags().GetString(f.name)
		if err != nil {
			return fc, err
		}
		if v != "" {
			fc = fc.With(f.field, v)
		}
	}

	minSet, maxSet := cmd.Flags().Changed("stay-min"), cmd.Flags().Changed("stay-max")
	if !minSet && !maxSet {
		return fc, nil
	}
	rng := ds.DefaultStay()
	if minSet {
		rng.Min, _ = cmd.Flags().GetInt("stay-min")
	}
	if maxSet {
		rng.Max, _ = cmd.Flags().GetInt("stay-max")
	}
	fc.Stay = &rng
	return fc, nil
}
