package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ajitpratap0/crystal/pkg/formats/columnar"
	"github.com/ajitpratap0/crystal/pkg/json"
	"github.com/ajitpratap0/crystal/pkg/metadata"
)

func newInspectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect FILE",
		Short: "Print the metadata and layout of an event file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := newViper(cmd)
			if err != nil {
				return err
			}
			return runInspect(args[0], v.GetBool("json"), cmd.OutOrStdout())
		},
	}
	cmd.Flags().Bool("json", false, "Print the report as JSON")
	return cmd
}

type inspectReport struct {
	Path      string            `json:"path"`
	Rows      int64             `json:"rows"`
	RowGroups int               `json:"row_groups"`
	Columns   []string          `json:"columns"`
	Metadata  map[string]string `json:"metadata"`
}

func runInspect(path string, asJSON bool, out io.Writer) error {
	r, err := columnar.OpenReader(path)
	if err != nil {
		return err
	}
	defer r.Close()

	report := inspectReport{
		Path:      path,
		Rows:      r.NumRows(),
		RowGroups: r.NumRowGroups(),
		Metadata:  r.Metadata(),
	}
	for _, f := range r.Schema().Fields() {
		report.Columns = append(report.Columns, f.Name)
	}

	if asJSON {
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode report: %w", err)
		}
		_, err = fmt.Fprintf(out, "%s\n", data)
		return err
	}

	fmt.Fprintf(out, "file: %s\n", report.Path)
	fmt.Fprintf(out, "rows: %d\n", report.Rows)
	fmt.Fprintf(out, "row groups: %d\n", report.RowGroups)
	fmt.Fprintf(out, "columns: %d\n", len(report.Columns))
	for _, c := range report.Columns {
		fmt.Fprintf(out, "  %s\n", c)
	}
	fmt.Fprintln(out, "metadata:")
	for _, k := range metadata.SortedKeys(report.Metadata) {
		value := report.Metadata[k]
		if k == metadata.ReservedSchemaKey {
			value = fmt.Sprintf("(%d bytes)", len(value))
		}
		fmt.Fprintf(out, "  %s: %s\n", k, value)
	}
	return nil
}
