package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"learner-progress-service/internal/transport/qr"
)

// NewBackupCmd groups the compact backup subcommands.
func NewBackupCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Export or restore the compact QR-sized backup payload",
	}
	cmd.AddCommand(newBackupExportCmd(configPath))
	cmd.AddCommand(newBackupRestoreCmd(configPath))
	cmd.AddCommand(newBackupQRCmd(configPath))
	return cmd
}

func newBackupExportCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Print the backup payload",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := loadRuntime(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer rt.Close()

			text, err := rt.service.ExportBackup(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), text)
			return nil
		},
	}
}

func newBackupRestoreCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "restore [payload|-]",
		Short: "Restore progress from a backup payload (argument or stdin)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := payloadArg(cmd, args)
			if err != nil {
				return err
			}
			rt, err := loadRuntime(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer rt.Close()

			res, err := rt.service.RestoreBackup(cmd.Context(), text)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "restored mastery=%t userProgress=%t modules=%d\n",
				res.MasteryRestored, res.UserProgressRestored, res.Modules)
			if res.Warning != "" {
				fmt.Fprintln(cmd.ErrOrStderr(), "warning:", res.Warning)
			}
			return nil
		},
	}
}

func newBackupQRCmd(configPath *string) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "qr",
		Short: "Write the backup payload as a QR code PNG",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := loadRuntime(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer rt.Close()

			text, err := rt.service.ExportBackup(cmd.Context())
			if err != nil {
				return err
			}
			png, err := qr.NewRenderer(rt.service.MaxPayload()).PNG(text)
			if err != nil {
				return err
			}
			if err := os.WriteFile(out, png, 0o644); err != nil {
				return errors.Wrapf(err, "write %s", out)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d of %d bytes)\n", out, len(text), rt.service.MaxPayload())
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "progress-backup.png", "output PNG path")
	return cmd
}

// NewExportCmd writes the full export file.
func NewExportCmd(configPath *string) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the full progress export file",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := loadRuntime(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer rt.Close()

			data, err := rt.service.ExportFile(cmd.Context())
			if err != nil {
				return err
			}
			if out == "-" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			return errors.Wrapf(os.WriteFile(out, data, 0o644), "write %s", out)
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "learner-progress.json", "output path, - for stdout")
	return cmd
}

// NewImportCmd applies an export file.
func NewImportCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Import a progress export file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return errors.Wrapf(err, "read %s", args[0])
			}
			rt, err := loadRuntime(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer rt.Close()

			res, err := rt.service.ImportFile(cmd.Context(), data)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d module(s)\n", res.Modules)
			if res.Warning != "" {
				fmt.Fprintln(cmd.ErrOrStderr(), "warning:", res.Warning)
			}
			return nil
		},
	}
}

func payloadArg(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 1 && args[0] != "-" {
		return args[0], nil
	}
	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", errors.Wrap(err, "read payload")
	}
	return strings.TrimSpace(string(data)), nil
}
