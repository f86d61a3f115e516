package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"sellerlicense/internal/exporter"
	"sellerlicense/internal/license"
)

func newStatusCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the entitlement status of this installation",
		Args:  cobra.NoArgs,
		RunE: withSession(opts, func(ctx context.Context, cmd *cobra.Command, s *session, _ []string) error {
			status, err := s.engine.GetStatus(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), status)
		}),
	}
}

func newCatalogCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "List and edit catalog records",
	}
	cmd.AddCommand(
		newCatalogListCommand(opts),
		newCatalogSaveCommand(opts),
		newCatalogDeleteCommand(opts),
		newCatalogSetStatusCommand(opts),
	)
	return cmd
}

func newCatalogListCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Print the catalog and its summary",
		Args:  cobra.NoArgs,
		RunE: withSession(opts, func(ctx context.Context, cmd *cobra.Command, s *session, _ []string) error {
			list, err := s.engine.GetCatalog(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"licenses": list,
				"summary":  license.Summarize(list),
			})
		}),
	}
}

func newCatalogSaveCommand(opts *rootOptions) *cobra.Command {
	var (
		payload  license.LicensePayload
		duration int
	)

	cmd := &cobra.Command{
		Use:   "save",
		Short: "Create a record, or update the one named by --id",
		Args:  cobra.NoArgs,
		RunE: withSession(opts, func(ctx context.Context, cmd *cobra.Command, s *session, _ []string) error {
			if cmd.Flags().Changed("duration") {
				payload.DurationDays = &duration
			}
			res := s.engine.SaveLicense(ctx, payload)
			if err := resultError(res.Result); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		}),
	}

	flags := cmd.Flags()
	flags.StringVar(&payload.ID, "id", "", "id of the record to update")
	flags.StringVar(&payload.Code, "code", "", "license code")
	flags.StringVar(&payload.Label, "label", "", "display label")
	flags.StringVar(&payload.Type, "type", "", "trial or premium")
	flags.StringVar(&payload.Status, "status", "", "active or inactive")
	flags.IntVar(&duration, "duration", 0, "duration in days, 0 for unlimited")
	flags.StringVar(&payload.Notes, "notes", "", "free-form notes")
	_ = cmd.MarkFlagRequired("code")
	return cmd
}

func newCatalogDeleteCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Remove a record from the catalog",
		Args:  cobra.ExactArgs(1),
		RunE: withSession(opts, func(ctx context.Context, cmd *cobra.Command, s *session, args []string) error {
			res := s.engine.DeleteLicense(ctx, args[0])
			if err := resultError(res.Result); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		}),
	}
}

func newCatalogSetStatusCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:       "set-status ID active|inactive",
		Short:     "Enable or disable a record",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{string(license.RecordStatusActive), string(license.RecordStatusInactive)},
		RunE: withSession(opts, func(ctx context.Context, cmd *cobra.Command, s *session, args []string) error {
			status := license.RecordStatus(strings.ToLower(args[1]))
			if !status.Valid() {
				return fmt.Errorf("status must be active or inactive, got %q", args[1])
			}
			res := s.engine.SetLicenseStatus(ctx, args[0], status)
			if err := resultError(res.Result); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		}),
	}
}

func newActivateCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "activate CODE",
		Short: "Activate this installation with a license code",
		Args:  cobra.ExactArgs(1),
		RunE: withSession(opts, func(ctx context.Context, cmd *cobra.Command, s *session, args []string) error {
			res := s.engine.Activate(ctx, args[0])
			if err := resultError(res.Result); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		}),
	}
}

func newDeactivateCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "deactivate",
		Short: "Remove the activation of this installation",
		Args:  cobra.NoArgs,
		RunE: withSession(opts, func(ctx context.Context, cmd *cobra.Command, s *session, _ []string) error {
			res := s.engine.Deactivate(ctx)
			if err := resultError(res); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		}),
	}
}

func newExportCommand(opts *rootOptions) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Print the catalog as a sync string",
		Args:  cobra.NoArgs,
		RunE: withSession(opts, func(ctx context.Context, cmd *cobra.Command, s *session, _ []string) error {
			f, err := license.ParseExportFormat(format)
			if err != nil {
				return err
			}
			text, err := s.engine.ExportCatalog(ctx, f)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), text)
			return err
		}),
	}
	cmd.Flags().StringVar(&format, "format", string(license.ExportFormatBase64), "base64 or json")
	return cmd
}

func newImportCommand(opts *rootOptions) *cobra.Command {
	var mode string

	cmd := &cobra.Command{
		Use:   "import [FILE|-]",
		Short: "Import a sync string from FILE or stdin",
		Args:  cobra.MaximumNArgs(1),
		RunE: withSession(opts, func(ctx context.Context, cmd *cobra.Command, s *session, args []string) error {
			m, err := license.ParseImportMode(mode)
			if err != nil {
				return err
			}
			text, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			res := s.engine.ImportCatalog(ctx, text, m)
			if err := resultError(res.Result); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		}),
	}
	cmd.Flags().StringVar(&mode, "mode", string(license.ImportModeMerge), "merge or replace")
	return cmd
}

func readInput(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return "", fmt.Errorf("read %s: %w", args[0], err)
	}
	return string(data), nil
}

func newReportCommand(opts *rootOptions) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Write the catalog and entitlement summary to an .xlsx or .csv file",
		Args:  cobra.NoArgs,
		RunE: withSession(opts, func(ctx context.Context, cmd *cobra.Command, s *session, _ []string) error {
			list, err := s.engine.GetCatalog(ctx)
			if err != nil {
				return err
			}
			status, err := s.engine.GetStatus(ctx)
			if err != nil {
				return err
			}

			report := exporter.NewReport(list, license.Summarize(list), status, timeNow())
			if err := exporter.WriteFile(output, report); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Report written to %s (%d licenses)\n", output, len(list))
			return err
		}),
	}
	cmd.Flags().StringVarP(&output, "output", "o", "license-report.xlsx", "output file (.xlsx or .csv)")
	return cmd
}
