package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"gatekeeper/internal/audit/models"
	auditservice "gatekeeper/internal/audit/service"
)

func newExportCmd(service func() *auditservice.Service) *cobra.Command {
	var (
		window rangeFlags
		format string
		output string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export events in a time range as json, csv or xml",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			start, end, err := window.parse()
			if err != nil {
				return err
			}
			data, err := service().ExportLogs(cmd.Context(), start, end, models.ExportFormat(format))
			if err != nil {
				return err
			}
			if output == "" || output == "-" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			if err := os.WriteFile(output, data, 0o600); err != nil {
				return fmt.Errorf("write export: %w", err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "wrote %d bytes to %s\n", len(data), output)
			return nil
		},
	}
	window.bind(cmd)
	cmd.Flags().StringVar(&format, "format", string(models.FormatJSON), "json, csv or xml")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	return cmd
}

func newArchiveCmd(service func() *auditservice.Service, opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "archive",
		Short: "Run one retention pass: delete expired archived events, then archive aged ones",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			result, err := service().ArchiveOldLogs(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), result, opts.pretty)
		},
	}
}

func newReportCmd(service func() *auditservice.Service, opts *rootOptions) *cobra.Command {
	var (
		window rangeFlags
		topN   int
	)
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Summarize activity in a time range",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			start, end, err := window.parse()
			if err != nil {
				return err
			}
			report, err := service().GenerateReport(cmd.Context(), start, end, models.ReportOptions{TopN: topN})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), report, opts.pretty)
		},
	}
	window.bind(cmd)
	cmd.Flags().IntVar(&topN, "top-n", 0, "entries per ranked list (default from AUDIT_REPORT_TOP_N)")
	return cmd
}

func newComplianceCmd(service func() *auditservice.Service, opts *rootOptions) *cobra.Command {
	var window rangeFlags
	cmd := &cobra.Command{
		Use:   "compliance",
		Short: "Score audit coverage and list findings for a time range",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			start, end, err := window.parse()
			if err != nil {
				return err
			}
			report, err := service().GenerateComplianceReport(cmd.Context(), start, end)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), report, opts.pretty)
		},
	}
	window.bind(cmd)
	return cmd
}
