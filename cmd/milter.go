package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/zpam/spamlearn/pkg/milter"
)

var (
	milterModel   string
	milterNetwork string
	milterAddress string
	milterDebug   bool
)

var milterCmd = &cobra.Command{
	Use:   "milter",
	Short: "Start milter server for Postfix/Sendmail integration",
	Long: `Start the spamlearn milter server to classify mail inside Postfix or Sendmail.

The milter server listens on a socket (TCP or Unix) and classifies each message
with a trained model as the MTA receives it. Classification headers are added
and spam can optionally be rejected.

Example usage:
  # Serve the default stored model
  spamlearn milter

  # Serve a model file on a custom address
  spamlearn milter --model model.json --network tcp --address 127.0.0.1:7357

For Postfix integration, add to main.cf:
  smtpd_milters = inet:127.0.0.1:7357
  non_smtpd_milters = inet:127.0.0.1:7357
  milter_default_action = accept`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if milterDebug {
			logLevel = "debug"
		}
		a, err := setup()
		if err != nil {
			return err
		}
		defer a.Close()

		if cmd.Flags().Changed("network") {
			a.cfg.Milter.Network = milterNetwork
		}
		if cmd.Flags().Changed("address") {
			a.cfg.Milter.Address = milterAddress
		}
		a.cfg.Milter.Enabled = true
		if err := a.cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		classifier, err := a.loadClassifier(ctx, milterModel)
		if err != nil {
			return fmt.Errorf("failed to load model: %w", err)
		}

		server, err := milter.NewServer(a.cfg, classifier, a.component("milter"))
		if err != nil {
			return fmt.Errorf("failed to create milter server: %w", err)
		}
		listener, err := server.Listen()
		if err != nil {
			return err
		}
		defer listener.Close()

		stopMetrics := a.startMetrics()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			stopMetrics(shutdownCtx)
		}()

		fmt.Printf("🫏 spamlearn milter starting on %s://%s\n", a.cfg.Milter.Network, a.cfg.Milter.Address)
		fmt.Printf("🆔 Model: %s (%s, %d features)\n", classifier.ModelID(), classifier.ClassifierKind(), classifier.TermCount())
		if a.cfg.Milter.RejectSpam {
			fmt.Printf("🚫 Spam will be rejected\n")
		}
		if a.cfg.Metrics.Enabled {
			fmt.Printf("📈 Metrics on %s%s\n", a.cfg.Metrics.Address, a.cfg.Metrics.Path)
		}
		fmt.Printf("🚀 Press Ctrl+C to stop\n\n")

		err = server.Serve(ctx, listener)
		if errors.Is(err, context.Canceled) {
			fmt.Printf("\n✅ Milter server stopped gracefully\n")
			return nil
		}
		if err != nil {
			return fmt.Errorf("milter server error: %w", err)
		}
		return nil
	},
}

func init() {
	milterCmd.Flags().StringVarP(&milterModel, "model", "m", "", "Model JSON file or stored model name")
	milterCmd.Flags().StringVarP(&milterNetwork, "network", "n", "", "Network type (tcp or unix)")
	milterCmd.Flags().StringVarP(&milterAddress, "address", "a", "", "Bind address (e.g., 127.0.0.1:7357 or /tmp/spamlearn.sock)")
	milterCmd.Flags().BoolVarP(&milterDebug, "debug", "d", false, "Enable debug logging")
}
