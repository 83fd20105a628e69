package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"learner-progress-service/internal/report"
)

// NewReportCmd writes the progress workbook.
func NewReportCmd(configPath *string) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Write a spreadsheet summarising module progress",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := loadRuntime(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer rt.Close()

			catalog, err := rt.service.Catalog(cmd.Context())
			if err != nil {
				return err
			}
			f, err := os.Create(out)
			if err != nil {
				return errors.Wrapf(err, "create %s", out)
			}
			defer f.Close()

			if err := report.Write(f, time.Now(), catalog, rt.service.Snapshot()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "progress.xlsx", "output workbook path")
	return cmd
}
