package main

import (
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"vrt-bridge/internal/mapping"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check a mapping file, and its targets when a directory is given",
		Example: `  vrt-bridge validate --mapping vrt_mapping.conf
  vrt-bridge validate --mapping vrt_mapping.conf --directory devices.yaml --strict-direction`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.Mapping.File == "" {
				return fmt.Errorf("mapping.file must be specified")
			}
			if cfg.Mapping.Workers < 1 {
				cfg.Mapping.Workers = 1
			}

			m, err := loadMapping(cfg)
			if err != nil {
				return err
			}

			if printValidation(cmd.OutOrStdout(), cfg.Mapping.File, m) > 0 {
				return fmt.Errorf("mapping file %s has errors", cfg.Mapping.File)
			}
			return nil
		},
	}
}

// printValidation writes a report and returns the number of problems.
func printValidation(w io.Writer, path string, m *mappingResult) int {
	fmt.Fprintf(w, "Mapping file: %s\n", path)

	for _, serr := range m.file.Errors {
		fmt.Fprintf(w, "  syntax  %s\n", serr.Error())
	}

	fallbacks := 0
	if m.report != nil {
		for _, res := range m.report.Results {
			switch {
			case res.Err != nil:
				fmt.Fprintf(w, "  invalid %s\n", res.Err.Error())
			case res.DirectionFallback:
				fallbacks++
				fmt.Fprintf(w, "  warning line %d: channel '%s' matched with is_output=%v\n",
					res.Record.Line, res.Record.ChannelName, !res.Record.IsOutput)
			}
		}
	}

	problems := m.file.ErrorCount() + m.invalid()

	fmt.Fprintf(w, "Records:        %d\n", len(m.file.Records))
	fmt.Fprintf(w, "Syntax errors:  %d\n", m.file.ErrorCount())
	if m.report != nil {
		fmt.Fprintf(w, "Invalid:        %d\n", m.invalid())
		fmt.Fprintf(w, "Dir. fallbacks: %d\n", fallbacks)
	} else {
		fmt.Fprintln(w, "Targets not checked (no directory)")
	}
	streams := streamIDs(m.file.Records)
	fmt.Fprintf(w, "Streams:        %d\n", len(streams))
	for _, sid := range streams {
		fmt.Fprintf(w, "  0x%08X  %d record(s)\n", sid, len(m.file.ForStream(sid)))
	}

	if problems == 0 {
		fmt.Fprintln(w, "OK")
	}
	return problems
}

// streamIDs returns the distinct stream IDs in ascending order.
func streamIDs(records []mapping.Record) []uint32 {
	seen := make(map[uint32]struct{})
	var ids []uint32
	for _, r := range records {
		if _, ok := seen[r.StreamID]; !ok {
			seen[r.StreamID] = struct{}{}
			ids = append(ids, r.StreamID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
