package cmd

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/zpam/spamlearn/pkg/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management",
	Long:  `Generate and manage spamlearn configuration files`,
}

var configGenCmd = &cobra.Command{
	Use:   "generate [config-file]",
	Short: "Generate default configuration file",
	Long:  `Generate a default configuration file with all options`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath := "config.yaml"
		if len(args) > 0 {
			configPath = args[0]
		}

		if _, err := os.Stat(configPath); err == nil {
			overwrite, _ := cmd.Flags().GetBool("force")
			if !overwrite {
				return fmt.Errorf("config file already exists: %s (use --force to overwrite)", configPath)
			}
		}

		if err := config.DefaultConfig().SaveConfig(configPath); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}

		fmt.Printf("✅ Configuration file generated: %s\n", configPath)
		fmt.Printf("📝 Edit the file to tune feature selection and the classifier\n")
		fmt.Printf("🚀 Use 'spamlearn train --config %s <traindata> <outfile>' to use the configuration\n", configPath)
		return nil
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate [config-file]",
	Short: "Validate configuration file",
	Long:  `Validate a configuration file for syntax and logical errors`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath := args[0]

		cfg, err := config.LoadConfig(configPath)
		if err != nil {
			return fmt.Errorf("❌ Configuration validation failed: %w", err)
		}

		warnings := validateConfigLogic(cfg)

		fmt.Printf("✅ Configuration is valid: %s\n", configPath)
		if len(warnings) > 0 {
			fmt.Printf("\n⚠️  Warnings:\n")
			for _, warning := range warnings {
				fmt.Printf("  - %s\n", warning)
			}
		}

		fmt.Printf("\n📊 Configuration Summary:\n")
		printLearning(cfg)
		fmt.Printf("  Store: %s (%s)\n", cfg.Store.Backend, cfg.Store.ModelName)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show [config-file]",
	Short: "Show current configuration",
	Long:  `Display the current configuration with all values`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configFile
		if len(args) > 0 {
			path = args[0]
		}

		cfg, err := config.LoadConfig(path)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if path != "" {
			fmt.Printf("Configuration: %s\n\n", path)
		} else {
			fmt.Printf("Default Configuration:\n\n")
		}

		fmt.Printf("🧠 Learning:\n")
		printLearning(cfg)
		fmt.Printf("  Smoothing: %g\n", cfg.Learning.Smoothing)
		fmt.Printf("  Ham marker: %q\n", cfg.Learning.HamMarker)

		fmt.Printf("\n🧪 Evaluation:\n")
		fmt.Printf("  Folds: %d (max %d concurrent)\n", cfg.Evaluation.Folds, cfg.Evaluation.MaxConcurrentFolds)
		if cfg.Evaluation.Shuffle {
			fmt.Printf("  Shuffle: seed %d\n", cfg.Evaluation.Seed)
		} else {
			fmt.Printf("  Shuffle: off\n")
		}

		fmt.Printf("\n📧 Parser:\n")
		fmt.Printf("  Strip HTML: %v, include subject: %v, split multipart: %v\n",
			cfg.Parser.StripHTML, cfg.Parser.IncludeSubject, cfg.Parser.SplitMultipart)
		fmt.Printf("  Extensions: %v\n", cfg.Parser.Extensions)

		fmt.Printf("\n💾 Store:\n")
		fmt.Printf("  Backend: %s\n", cfg.Store.Backend)
		fmt.Printf("  Model name: %s\n", cfg.Store.ModelName)

		fmt.Printf("\n🫏 Milter:\n")
		fmt.Printf("  Listen: %s://%s\n", cfg.Milter.Network, cfg.Milter.Address)
		fmt.Printf("  Reject spam: %v, add headers: %v\n", cfg.Milter.RejectSpam, cfg.Milter.AddSpamHeaders)

		fmt.Printf("\n📈 Metrics:\n")
		fmt.Printf("  Enabled: %v (%s%s)\n", cfg.Metrics.Enabled, cfg.Metrics.Address, cfg.Metrics.Path)
		return nil
	},
}

func printLearning(cfg *config.Config) {
	l := cfg.Learning
	fmt.Printf("  Classifier: %s\n", l.Classifier)
	fmt.Printf("  Weighting: %s (df source: %s)\n", l.Weighting, l.DFSource)
	fmt.Printf("  Text pre-processing: %v\n", l.TextPreProcessing)
	if l.FeatureSelection {
		fmt.Printf("  Feature selection: [%.3f, %.3f]\n", l.LowerPercentile, l.UpperPercentile)
	} else {
		fmt.Printf("  Feature selection: off\n")
	}
}

// validateConfigLogic reports settings that are valid but probably unintended
func validateConfigLogic(cfg *config.Config) []string {
	var warnings []string

	l := cfg.Learning
	if l.FeatureSelection && l.LowerPercentile == 0 && l.UpperPercentile == 1 {
		warnings = append(warnings, "Feature selection keeps every term with percentiles [0, 1]")
	}
	if l.FeatureSelection && l.UpperPercentile-l.LowerPercentile < 0.05 {
		warnings = append(warnings, "Narrow percentile window might leave very few features")
	}
	if l.DFSource == "local" && l.Weighting == "tfidf" {
		warnings = append(warnings, "df_source local gives every present term the maximum idf log(N)")
	}
	if l.Weighting != "tfidf" && l.DFSource == "local" {
		warnings = append(warnings, "df_source is ignored by frequency weighting")
	}
	if l.Smoothing > 1 {
		warnings = append(warnings, "Smoothing above 1 flattens the class likelihoods")
	}

	if cfg.Evaluation.Folds > 20 {
		warnings = append(warnings, "Many folds retrain the model many times")
	}
	if cfg.Evaluation.MaxConcurrentFolds > runtime.NumCPU() {
		warnings = append(warnings, "More concurrent folds than CPUs")
	}

	if cfg.Milter.Enabled && cfg.Milter.RejectSpam && !cfg.Milter.AddSpamHeaders {
		warnings = append(warnings, "Milter rejects spam without adding classification headers")
	}
	if cfg.Store.Backend == "redis" && cfg.Store.Redis.TTL != "" {
		warnings = append(warnings, "Stored models expire after the Redis TTL")
	}

	return warnings
}

func init() {
	configCmd.AddCommand(configGenCmd)
	configCmd.AddCommand(configValidateCmd)
	configCmd.AddCommand(configShowCmd)

	configGenCmd.Flags().Bool("force", false, "Overwrite existing config file")
}
