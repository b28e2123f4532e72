// Package config provides the run configuration of a crystal simulation.
//
// # Key Features
//
// - RunConfig: one explicit configuration value passed to every component
// - Structured sections: Source, Detector, Output, Logging, Observability
// - Environment variable substitution with ${VAR_NAME} syntax
// - Defaults from NewRunConfig and validation with Validate
// - Metadata rendering with AsMap, as stored in every event file
//
// # Usage
//
// ## Loading a Configuration
//
//	cfg, err := config.LoadRunConfig("run.yaml")
//	if err != nil {
//		log.Fatal(err)
//	}
//
// ## Overriding Settings
//
// Settings use the same keys as the event file metadata:
//
//	err := cfg.Apply([]string{"n_sipms_xy=4", "scint_depth=13 mm", "compression=zstd-5"})
//
// ## Environment Variable Substitution
//
//	# run.yaml
//	output:
//	  outfile: ${CRYSTAL_OUTDIR}/run-42.parquet
//	  compression: zstd-9
//	detector:
//	  n_sipms_x: 4
//	  n_sipms_y: 4
//
// # Metadata
//
// AsMap renders lengths as "%f mm", energies as "%f keV" and unset optional
// values as "NULL". CLIArgs.AsMap renders the invocation, with "NOT SET" for
// options that were not given.
package config
