package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/testcatalog/internal/app"
	"github.com/JonMunkholm/testcatalog/internal/core"
	"github.com/JonMunkholm/testcatalog/internal/export"
)

func importCmd(flags *globalFlags) *cobra.Command {
	var (
		policy string
		notes  string
		dryRun bool
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "import <file.csv>",
		Short: "Import a CSV file into the catalog",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, ok := core.ParseDuplicatePolicy(strings.ToLower(policy))
			if policy != "" && !ok {
				return fmt.Errorf("unknown duplicate policy %q", policy)
			}

			e, err := flags.open(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			in, err := core.ReadInput(f, e.cfg.Import.MaxFileSize)
			if err != nil {
				return err
			}

			req := core.ImportRequest{Filename: args[0], Text: in.Text, FileSize: in.Size, Notes: notes}
			if policy != "" {
				req.Policy = p
			}
			run := e.service.Import
			if dryRun {
				run = e.service.Preview
			}
			res, runErr := run(cmd.Context(), req)
			if res != nil {
				if asJSON {
					if err := writeJSON(cmd.OutOrStdout(), res); err != nil {
						return err
					}
				} else {
					printSession(cmd.OutOrStdout(), res)
				}
			}
			if runErr != nil {
				return fmt.Errorf("%s", core.FormatUserError(runErr))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&policy, "policy", "", "duplicate policy: skip or update (default from IMPORT_DUPLICATE_POLICY)")
	cmd.Flags().StringVar(&notes, "notes", "", "free-text notes stored on the session")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "classify rows without writing anything")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full session result as JSON")
	return cmd
}

func exportCmd(flags *globalFlags) *cobra.Command {
	var (
		format   string
		category string
		out      string
		dual     bool
		pretty   bool
		split    bool
		publish  bool
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export catalog records",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !export.IsFormat(format) {
				return fmt.Errorf("%w %q: choose one of %s", core.ErrUnknownFormat, format, strings.Join(export.Formats(), ", "))
			}
			e, err := flags.open(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			records, err := e.service.Records(cmd.Context(), core.RecordFilter{Category: category})
			if err != nil {
				return err
			}

			opts := export.Options{
				SplitCPT:     split,
				DualResource: e.cfg.Export.DualResource,
				Pretty:       e.cfg.Export.Pretty || pretty,
			}
			if cmd.Flags().Changed("dual") {
				opts.DualResource = dual
			}
			opts.Bundle.BaseURL = strings.TrimRight(e.cfg.Export.FHIRBaseURL, "/")

			if publish {
				sink, err := app.OpenSink(cmd.Context(), e.cfg.Export)
				if err != nil {
					return err
				}
				pub, err := export.NewPublisher(sink).Publish(cmd.Context(), format, records, opts)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "published %d records to %s\n", pub.Count, pub.Object.URL)
				return nil
			}

			output, err := export.Generate(format, records, opts)
			if err != nil {
				return err
			}
			if out == "" || out == "-" {
				_, err = cmd.OutOrStdout().Write(output.Body)
				return err
			}
			if err := os.WriteFile(out, output.Body, 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "wrote %d records to %s\n", output.Count, out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", export.FormatStandard, "export format")
	cmd.Flags().StringVar(&category, "category", "", "only export this category")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default stdout)")
	cmd.Flags().BoolVar(&dual, "dual", true, "pair imaging ServiceRequests with ImagingStudy resources")
	cmd.Flags().BoolVar(&pretty, "pretty", false, "indent JSON output")
	cmd.Flags().BoolVar(&split, "split-cpt", false, "add baseCptCode and cptSuffix columns to the standard format")
	cmd.Flags().BoolVar(&publish, "publish", false, "write the export to the configured sink instead of stdout")
	return cmd
}

func sessionsCmd(flags *globalFlags) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List import sessions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := flags.open(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			sessions, err := e.service.Sessions(cmd.Context(), limit)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSTARTED\tFILE\tSTATUS\tTOTAL\tOK\tERRORS\tDUPLICATES")
			for _, s := range sessions {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%d\n",
					s.ID, s.StartedAt.UTC().Format(time.RFC3339), s.Filename, s.Status,
					s.TotalTests, s.SuccessCount, s.ErrorCount, s.DuplicateCount)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum sessions to show, 0 for all")
	return cmd
}

func auditCmd(flags *globalFlags) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "audit <session-id>",
		Short: "Print the audit log of an import session as CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := flags.open(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			entries, err := e.service.SessionEntries(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), entries)
			}
			_, err = io.WriteString(cmd.OutOrStdout(), export.AuditCSV(entries))
			return err
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print entries as JSON")
	return cmd
}

func formatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "formats",
		Short: "List export formats",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			for _, f := range export.Formats() {
				fmt.Fprintln(cmd.OutOrStdout(), f)
			}
		},
	}
}

func printSession(w io.Writer, res *core.ImportSessionResult) {
	s := res.Session
	mode := "import"
	if res.DryRun {
		mode = "preview"
	}
	fmt.Fprintf(w, "%s %s: %s\n", mode, s.ID, s.Status)
	fmt.Fprintf(w, "  total=%d success=%d errors=%d duplicates=%d\n",
		s.TotalTests, s.SuccessCount, s.ErrorCount, s.DuplicateCount)
	for _, e := range res.Entries {
		if e.Status == core.StatusSuccess {
			continue
		}
		detail := core.Deref(e.ErrorMessage)
		if len(e.ValidationErrors) > 0 {
			detail = e.ValidationErrors.Error()
		}
		if e.DuplicateReason != nil {
			detail = string(*e.DuplicateReason)
		}
		fmt.Fprintf(w, "  row %d: %s %s %s\n", e.Sequence, e.Operation, e.Status, detail)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
