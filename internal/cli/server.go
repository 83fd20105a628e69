package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"learner-progress-service/internal/config"
	"learner-progress-service/internal/reminder"
	transport "learner-progress-service/internal/transport/http"
)

// NewServeCmd builds the CLI subcommand to start the server.
func NewServeCmd(configPath, port *string) *cobra.Command {
	var withReminders bool
	cmd := &cobra.Command{
		Use:     "serve",
		Aliases: []string{"start"},
		Short:   "Start the progress HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port, withReminders)
		},
	}
	cmd.Flags().BoolVar(&withReminders, "reminders", false, "run the review reminder job alongside the server")
	return cmd
}

func runServer(ctx context.Context, configPath, portFlag string, withReminders bool) error {
	rt, err := loadRuntime(ctx, configPath)
	if err != nil {
		return err
	}
	defer rt.Close()

	finalPort := portFlag
	if finalPort == "" {
		finalPort = rt.cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	if withReminders {
		interval := config.TTLDuration(rt.cfg.Review.CheckInterval, time.Hour)
		r := reminder.New(rt.service, reminder.LogNotifier{Log: rt.log}, interval, rt.log)
		if err := r.Start(); err != nil {
			return err
		}
		defer r.Stop()
	}

	handler := transport.NewHandler(rt.service, rt.log)
	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      handler.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		rt.log.Info("starting progress service", "port", finalPort, "storage", rt.cfg.Storage.Driver)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			rt.log.Error("failed to start server", "error", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		rt.log.Info("shutting down server")
	case <-ctx.Done():
		rt.log.Info("context canceled, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
