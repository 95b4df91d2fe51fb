package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/zpam/spamlearn/pkg/email"
)

var classifyModel string

var classifyCmd = &cobra.Command{
	Use:   "classify <email-file>...",
	Short: "Classify email files with a trained model",
	Long: `Classify one or more email files with a trained model.

The model is a JSON file written by 'spamlearn train' or the name of a model
in the configured store (default: store.model_name).`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setup()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		classifier, err := a.loadClassifier(ctx, classifyModel)
		if err != nil {
			return fmt.Errorf("failed to load model: %w", err)
		}

		opts := classifier.Options().Parser
		parser := email.NewParser(opts)
		tokenizer := email.NewTokenizer(opts)

		for _, path := range args {
			start := time.Now()
			parsed, err := parser.ParseFromFile(path)
			if err != nil {
				fmt.Printf("❌ %s: %v\n", path, err)
				continue
			}
			p, err := classifier.ClassifyEmail(tokenizer, parsed)
			if err != nil {
				return err
			}
			duration := time.Since(start)

			fmt.Printf("📧 %s\n", path)
			fmt.Printf("   Classification: %s\n", p.Label)
			if p.Scored {
				fmt.Printf("   Spam probability: %.4f\n", p.SpamProbability)
			}
			fmt.Printf("   Processing time: %.2fms\n", float64(duration.Nanoseconds())/1e6)
		}
		return nil
	},
}

func init() {
	classifyCmd.Flags().StringVarP(&classifyModel, "model", "m", "", "Model JSON file or stored model name")
}
