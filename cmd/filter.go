package cmd

import (
	"context"
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/zpam/spamlearn/pkg/filter"
)

var (
	filterModel       string
	inputPath         string
	outputPath        string
	spamPath          string
	filterConcurrency int
)

var filterCmd = &cobra.Command{
	Use:   "filter",
	Short: "Classify a directory of emails and sort them into ham and spam",
	Long:  `Classify every mail file under --input with a trained model, moving ham to --output and spam to --spam`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if inputPath == "" {
			return fmt.Errorf("input path is required")
		}

		a, err := setup()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		classifier, err := a.loadClassifier(ctx, filterModel)
		if err != nil {
			return fmt.Errorf("failed to load model: %w", err)
		}

		results, err := classifier.ProcessEmails(ctx, inputPath, filter.BatchOptions{
			OutputPath:    outputPath,
			SpamPath:      spamPath,
			Extensions:    a.cfg.Parser.Extensions,
			MaxConcurrent: filterConcurrency,
		})
		if err != nil {
			return fmt.Errorf("failed to process emails: %w", err)
		}

		fmt.Printf("spamlearn Processing Complete!\n")
		fmt.Printf("Model: %s\n", classifier.ModelID())
		fmt.Printf("Emails processed: %d\n", results.Total)
		fmt.Printf("Spam detected: %d\n", results.Spam)
		fmt.Printf("Ham (clean): %d\n", results.Ham)
		if results.Errors > 0 || results.MoveErrors > 0 {
			fmt.Printf("Errors: %d unreadable, %d not moved\n", results.Errors, results.MoveErrors)
		}
		if results.Total > 0 {
			fmt.Printf("Average processing time: %.2fms per email\n",
				float64(results.Duration.Nanoseconds())/float64(results.Total)/1e6)
		}
		fmt.Printf("Total time: %v\n", results.Duration)
		return nil
	},
}

func init() {
	filterCmd.Flags().StringVarP(&filterModel, "model", "m", "", "Model JSON file or stored model name")
	filterCmd.Flags().StringVarP(&inputPath, "input", "i", "", "Input directory or file path")
	filterCmd.Flags().StringVarP(&outputPath, "output", "o", "", "Output directory for clean emails")
	filterCmd.Flags().StringVarP(&spamPath, "spam", "s", "", "Spam directory for filtered emails")
	filterCmd.Flags().IntVar(&filterConcurrency, "concurrency", runtime.NumCPU(), "Maximum concurrent classifications")

	filterCmd.MarkFlagRequired("input")
}
