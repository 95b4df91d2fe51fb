package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	configFile string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "spamlearn",
	Short: "spamlearn - statistical ham/spam email classifier",
	Long: `spamlearn learns a ham/spam classifier from a labelled directory of emails.

Documents are tokenised, normalised and indexed; rare and ubiquitous terms are
pruned by document-frequency percentiles; the surviving vocabulary is frozen
and every email becomes a weighted term vector fed to a Naive Bayes model.
Files whose name contains "ham" are ham, everything else is spam.`,
	SilenceUsage: true,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("spamlearn - statistical ham/spam email classifier")
		fmt.Println("Use 'spamlearn --help' for usage information")
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override logging level (debug, info, warn, error)")

	rootCmd.AddCommand(trainCmd)
	rootCmd.AddCommand(evaluateCmd)
	rootCmd.AddCommand(classifyCmd)
	rootCmd.AddCommand(filterCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(milterCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(generateCmd)
}
