package main

import (
	"context"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/ajitpratap0/crystal/pkg/crystalerrors"
	"github.com/ajitpratap0/crystal/pkg/export"
	"github.com/ajitpratap0/crystal/pkg/formats/columnar"
	"github.com/ajitpratap0/crystal/pkg/logger"
)

func newExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export FILE",
		Short: "Write the events of a file as JSON lines",
		Long: `Read every event of FILE and write it as one JSON object per line, or as
one JSON array with --array. The stored schema is checked against --channels
and --interactions; either defaults to the value recorded in the file metadata.

Example:
  crystal export run.parquet --channels 4 --compression gzip-9 --out run.jsonl.gz`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := newViper(cmd)
			if err != nil {
				return err
			}
			return runExport(cmd.Context(), v, args[0], cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	f := cmd.Flags()
	f.Int("channels", 0, "Expected channel count")
	f.Bool("interactions", false, "Expect the interactions column")
	f.String("out", "", "Output file, stdout if empty")
	f.String("compression", "", "Compression spec for the output stream, none if empty")
	f.Bool("array", false, "Write one JSON array instead of JSON lines")
	return cmd
}

func runExport(ctx context.Context, v *viper.Viper, path string, stdout, stderr io.Writer) (err error) {
	log, cleanup, err := setup(v, logger.DefaultConfig(), false, 1, stderr)
	if err != nil {
		return err
	}
	defer cleanup()
	log = log.With(zap.String(string(logger.FileKey), path))

	r, err := columnar.OpenReader(path)
	if err != nil {
		return err
	}
	defer r.Close()

	cfg, err := readerConfig(v, r.Metadata())
	if err != nil {
		return err
	}

	out := stdout
	if name := v.GetString("out"); name != "" {
		f, createErr := os.Create(name)
		if createErr != nil {
			return crystalerrors.Wrap(createErr, crystalerrors.ErrorTypeFile, "failed to create export file").
				WithDetail("path", name)
		}
		defer func() {
			if cerr := f.Close(); cerr != nil && err == nil {
				err = crystalerrors.Wrap(cerr, crystalerrors.ErrorTypeWrite, "failed to close export file").
					WithDetail("path", name)
			}
		}()
		out = f
	}

	res, err := export.Write(ctx, r, cfg, out, export.Options{
		Compression: v.GetString("compression"),
		Array:       v.GetBool("array"),
		Logger:      log,
	})
	if err != nil {
		return err
	}
	log.Info("export completed",
		zap.Int("rows", res.Rows),
		zap.Int("channels", cfg.Channels),
		zap.Bool("interactions", cfg.Interactions))
	return nil
}

// readerConfig takes the expected layout from the flags, falling back to
// the run settings recorded in md.
func readerConfig(v *viper.Viper, md map[string]string) (columnar.ReaderConfig, error) {
	var cfg columnar.ReaderConfig

	if v.IsSet("channels") {
		cfg.Channels = v.GetInt("channels")
	} else {
		nx, errX := strconv.Atoi(md["n_sipms_x"])
		ny, errY := strconv.Atoi(md["n_sipms_y"])
		if errX != nil || errY != nil {
			return cfg, crystalerrors.New(crystalerrors.ErrorTypeConfig,
				"file metadata does not record the SiPM grid; pass --channels")
		}
		cfg.Channels = nx * ny
	}

	if v.IsSet("interactions") {
		cfg.Interactions = v.GetBool("interactions")
	} else if s, ok := md["interactions"]; ok {
		b, err := strconv.ParseBool(s)
		if err != nil {
			return cfg, crystalerrors.Newf(crystalerrors.ErrorTypeConfig,
				"file metadata records interactions as %q; pass --interactions", s).
				WithDetail("offending", s)
		}
		cfg.Interactions = b
	}
	return cfg, nil
}
