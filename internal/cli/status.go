package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"learner-progress-service/internal/app"
)

// NewStatusCmd prints every module's progress.
func NewStatusCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show module progress and the next due review",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := loadRuntime(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer rt.Close()
			return printStatus(cmd.Context(), cmd.OutOrStdout(), rt.service)
		},
	}
}

func printStatus(ctx context.Context, out io.Writer, service *app.ProgressService) error {
	ov, err := service.Overview(ctx)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "MODULE\tTITLE\tSTATE\tSTEP\tPROGRESS\tMASTERY")
	for _, m := range ov.Modules {
		state := "locked"
		switch {
		case m.Progress.Completed:
			state = "completed"
		case m.Progress.Started:
			state = "in progress"
		case m.Progress.Unlocked:
			state = "unlocked"
		}
		mastery := "-"
		if m.Progress.Completed {
			mastery = fmt.Sprintf("%d%%", m.Progress.MasteryScore)
			if m.Progress.MasteryAchieved {
				mastery += " *"
			}
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d%%\t%s\n", m.ID, m.Title, state, m.Step, m.Progress.ProgressScore, mastery)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if ov.NextReview != nil {
		fmt.Fprintf(out, "\nnext review: %s (%s, %d days)\n", ov.NextReview.ModuleID, ov.NextReview.Reason, ov.NextReview.DaysSince)
	}
	return nil
}
