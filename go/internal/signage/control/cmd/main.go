package main

import (
	"context"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mcdev12/signage/go/internal/signage/control"
	"github.com/spf13/cobra"
)

type options struct {
	gateway string
	timeout time.Duration
}

func main() {
	// Missing .env is fine for a CLI
	_ = godotenv.Load()

	if err := newRootCmd(http.DefaultClient).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(httpClient *http.Client) *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:          "signagectl",
		Short:        "Pause, resume and update signage displays",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.gateway, "gateway", getEnv("GATEWAY_HTTP_URL", "http://localhost:8081"), "gateway base URL")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 10*time.Second, "request timeout")

	client := func() *control.Client {
		return control.NewClient(httpClient, opts.gateway)
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "pause [display-id...]",
			Short: "Pause displays immediately",
			Long:  "Pauses the given displays. Without arguments every display is paused.",
			RunE: func(cmd *cobra.Command, args []string) error {
				ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
				defer cancel()
				if err := client().Pause(ctx, args...); err != nil {
					return err
				}
				cmd.Printf("paused %s\n", describe(args))
				return nil
			},
		},
		&cobra.Command{
			Use:   "resume [display-id...]",
			Short: "Resume displays in unison",
			RunE: func(cmd *cobra.Command, args []string) error {
				ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
				defer cancel()
				target, err := client().Resume(ctx, args...)
				if err != nil {
					return err
				}
				cmd.Printf("resuming %s at %s\n", describe(args), target.Format(time.RFC3339Nano))
				return nil
			},
		},
		&cobra.Command{
			Use:   "push [display-id...]",
			Short: "Send fresh content to displays",
			RunE: func(cmd *cobra.Command, args []string) error {
				ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
				defer cancel()
				if err := client().PushContent(ctx, args...); err != nil {
					return err
				}
				cmd.Printf("pushed content to %s\n", describe(args))
				return nil
			},
		},
		&cobra.Command{
			Use:   "resync [display-id...]",
			Short: "Reload displays at a common instant",
			RunE: func(cmd *cobra.Command, args []string) error {
				ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
				defer cancel()
				target, err := client().FullResync(ctx, args...)
				if err != nil {
					return err
				}
				cmd.Printf("reloading %s at %s\n", describe(args), target.Format(time.RFC3339Nano))
				return nil
			},
		},
	)

	return root
}

func describe(displayIDs []string) string {
	if len(displayIDs) == 0 {
		return "all displays"
	}
	return strings.Join(displayIDs, ", ")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
