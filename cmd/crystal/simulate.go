package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/ajitpratap0/crystal/internal/pipeline"
	"github.com/ajitpratap0/crystal/internal/synth"
	"github.com/ajitpratap0/crystal/pkg/config"
	"github.com/ajitpratap0/crystal/pkg/formats/columnar"
	"github.com/ajitpratap0/crystal/pkg/logger"
	"github.com/ajitpratap0/crystal/pkg/metadata"
	"github.com/ajitpratap0/crystal/pkg/metrics"
)

// settingFlags are the simulate flags that override a run setting, in the
// order they are applied.
var settingFlags = []struct{ flag, key string }{
	{"outfile", "outfile"},
	{"compression", "compression"},
	{"chunk-size", "chunk_size"},
	{"interactions", "interactions"},
	{"generator", "generator"},
	{"seed", "seed"},
}

func newSimulateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Simulate events and record them in a Parquet file",
		Long: `Simulate primaries with the synthetic detector model and record every event
that passes the event threshold.

Settings are applied in order: defaults, the --config file, --set assignments,
then explicit flags and CRYSTAL_* environment variables.

Example:
  crystal simulate -n 1000 --set scint=LYSO --set "scint_depth=2 cm" --compression zstd-5`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := newViper(cmd)
			if err != nil {
				return err
			}
			sets, err := cmd.Flags().GetStringArray("set")
			if err != nil {
				return err
			}
			_, err = runSimulate(cmd.Context(), v, sets, cmd.OutOrStdout(), cmd.ErrOrStderr())
			return err
		},
	}

	f := cmd.Flags()
	f.String("config", "", "Run configuration YAML file")
	f.StringArray("set", nil, `Run setting as "key=value"; repeatable, applied in order`)
	f.IntP("events", "n", 10, "Number of primaries to simulate")
	f.String("outfile", "", "Output Parquet file")
	f.String("compression", "", `Compression spec, e.g. "snappy", "zstd-5", "none"`)
	f.Int("chunk-size", 0, "Events per row group")
	f.Bool("interactions", false, "Record the interactions column")
	f.String("generator", "", "Primary generator")
	f.Int64("seed", 0, "Random seed")
	f.String("metrics-file", "", "Write Prometheus metrics in text format to this file after the run")
	f.Duration("report-every", 10*time.Second, "Progress log interval, 0 disables")
	return cmd
}

type simulateResult struct {
	Config   *config.RunConfig
	Pipeline pipeline.Stats
	Run      synth.RunStats
}

// buildRunConfig layers the configuration sources and returns the result
// with the invocation record stored as CLI metadata.
func buildRunConfig(v *viper.Viper, sets []string) (*config.RunConfig, config.CLIArgs, error) {
	cfg := config.NewRunConfig()
	cli := config.CLIArgs{
		Events: strconv.Itoa(v.GetInt("events")),
		Early:  sets,
	}

	if path := v.GetString("config"); path != "" {
		if err := config.Load(path, cfg); err != nil {
			return nil, cli, err
		}
		cli.Macro = path
	}
	if err := cfg.Apply(sets); err != nil {
		return nil, cli, err
	}
	for _, s := range settingFlags {
		if !v.IsSet(s.flag) {
			continue
		}
		value := v.GetString(s.flag)
		if err := cfg.Set(s.key, value); err != nil {
			return nil, cli, err
		}
		cli.Late = append(cli.Late, s.key+"="+value)
	}

	if err := cfg.Validate(); err != nil {
		return nil, cli, err
	}
	return cfg, cli, nil
}

func runSimulate(ctx context.Context, v *viper.Viper, sets []string, out, errOut io.Writer) (*simulateResult, error) {
	cfg, cli, err := buildRunConfig(v, sets)
	if err != nil {
		return nil, err
	}

	log, cleanup, err := setup(v, cfg.Logging, cfg.Observability.Trace, cfg.Observability.TraceSampleRate, errOut)
	if err != nil {
		return nil, err
	}
	defer cleanup()
	log = log.With(zap.String(string(logger.RunIDKey), cfg.RunID))

	events := v.GetInt("events")
	gen, err := synth.New(cfg, events, log)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg, cfg.RunID)

	w, err := columnar.NewWriter(columnar.WriterConfig{
		Path:         cfg.Output.Outfile,
		Channels:     cfg.NChannels(),
		Interactions: cfg.Output.Interactions,
		Compression:  cfg.Output.Compression,
		ChunkSize:    cfg.Output.ChunkSize,
		Sources: metadata.Sources{
			Config:     cfg.AsMap(),
			CLI:        cli.AsMap(),
			Provenance: metadata.ProbeProvenance(ctx, "."),
		},
		Logger:  log,
		Metrics: collector,
	})
	if err != nil {
		return nil, err
	}
	defer w.EnsureClosed()

	pcfg := pipeline.Config{Events: events, ReportEvery: v.GetDuration("report-every")}
	stats, err := pipeline.New(gen, w, pcfg, log, collector).Run(ctx)

	run := gen.Stats()
	log.Info("run statistics",
		zap.Int64("simulated", run.Simulated),
		zap.Int64("detected", run.Detected),
		zap.Int64("stored", run.Stored),
		zap.Float64("stored_percent", run.StoredFraction()),
		zap.Uint64("photons", run.Photons),
		zap.Uint64s("photons_per_channel", run.PerChannel),
		zap.Duration("uptime", collector.Uptime()))

	if path := v.GetString("metrics-file"); path != "" {
		if merr := prometheus.WriteToTextfile(path, reg); merr != nil {
			log.Warn("failed to write metrics file", zap.String("path", path), zap.Error(merr))
		}
	}
	if err != nil {
		return nil, err
	}

	fmt.Fprintf(out, "%d of %d events written to %s\n", stats.Appended, run.Simulated, cfg.Output.Outfile)
	return &simulateResult{Config: cfg, Pipeline: stats, Run: run}, nil
}
