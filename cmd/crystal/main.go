package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ajitpratap0/crystal/pkg/metadata"
)

var version = "0.1.0"

// envPrefix prefixes every environment variable bound to a flag, e.g.
// CRYSTAL_CHUNK_SIZE for --chunk-size.
const envPrefix = "CRYSTAL"

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "crystal",
		Short: "crystal - scintillator event recording",
		Long: `crystal runs a synthetic scintillator simulation and records one row per
event in a Parquet file, together with the run configuration, the command
line and build provenance as file metadata.`,
		SilenceUsage: true,
	}

	root.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error); overrides the run configuration")
	root.PersistentFlags().String("log-format", "", "Log encoding (json, console); overrides the run configuration")
	root.PersistentFlags().Bool("trace", false, "Export trace spans to stderr")

	root.AddCommand(newVersionCmd())
	root.AddCommand(newSimulateCmd())
	root.AddCommand(newInspectCmd())
	root.AddCommand(newExportCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			printVersion(cmd.OutOrStdout())
		},
	}
}

func printVersion(w io.Writer) {
	prov := metadata.ProbeProvenance(context.Background(), ".")
	fmt.Fprintf(w, "crystal v%s\n", version)
	fmt.Fprintf(w, "Commit: %s\n", prov[metadata.KeyCommitHash])
	fmt.Fprintf(w, "Commit date: %s\n", prov[metadata.KeyCommitDate])
	fmt.Fprintf(w, "Commit message: %s\n", prov[metadata.KeyCommitMsg])
	fmt.Fprintf(w, "Go version: %s\n", runtime.Version())
	fmt.Fprintf(w, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
}

// newViper binds the parsed flags of cmd, inherited ones included, and the
// matching CRYSTAL_* environment variables.
func newViper(cmd *cobra.Command) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return nil, fmt.Errorf("failed to bind flags: %w", err)
	}
	return v, nil
}
