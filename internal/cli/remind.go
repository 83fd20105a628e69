package cli

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"learner-progress-service/internal/config"
	"learner-progress-service/internal/reminder"
)

// NewRemindCmd runs the periodic due-review check in the foreground.
func NewRemindCmd(configPath *string) *cobra.Command {
	var once bool
	cmd := &cobra.Command{
		Use:   "remind",
		Short: "Periodically print the most urgent due review",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := loadRuntime(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer rt.Close()

			notifier := reminder.WriterNotifier{W: cmd.OutOrStdout()}
			interval := config.TTLDuration(rt.cfg.Review.CheckInterval, time.Hour)
			r := reminder.New(rt.service, notifier, interval, rt.log)

			if once {
				_, _, err := r.Check(cmd.Context())
				return err
			}
			if err := r.Start(); err != nil {
				return err
			}
			defer r.Stop()

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
			select {
			case <-stop:
			case <-cmd.Context().Done():
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "check once and exit")
	return cmd
}
