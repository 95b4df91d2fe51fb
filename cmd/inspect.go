package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var (
	inspectTop  int
	inspectList bool
)

var inspectCmd = &cobra.Command{
	Use:   "inspect [model]",
	Short: "Show a trained model and its most indicative features",
	Args:  cobra.MaximumNArgs(1),
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

		if inspectList {
			return listModels(ctx, a)
		}

		ref := ""
		if len(args) > 0 {
			ref = args[0]
		}
		classifier, err := a.loadClassifier(ctx, ref)
		if err != nil {
			return fmt.Errorf("failed to load model: %w", err)
		}

		opts := classifier.Options()
		fmt.Printf("🔍 Model %s\n", classifier.ModelID())
		fmt.Printf("═══════════════════════════════════════\n")
		fmt.Printf("Classifier: %s\n", classifier.ClassifierKind())
		fmt.Printf("Weighting: %s (df source: %s)\n", opts.Weighting, opts.DFSource)
		fmt.Printf("Documents: %d\n", classifier.DocumentCount())
		fmt.Printf("Feature Dimensions = %d\n", classifier.TermCount())
		fmt.Printf("Max raw count: %d\n", classifier.MaxRawCount())

		spam, ham, ok, err := classifier.TopFeatures(inspectTop)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Printf("\nfeature ranking not supported by %s\n", classifier.ClassifierKind())
			return nil
		}
		fmt.Printf("\n🚫 Top spam features: %s\n", strings.Join(spam, ", "))
		fmt.Printf("✅ Top ham features:  %s\n", strings.Join(ham, ", "))
		return nil
	},
}

func listModels(ctx context.Context, a *app) error {
	s, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	models, err := s.List(ctx)
	if err != nil {
		return err
	}
	if len(models) == 0 {
		fmt.Printf("No models stored in %s backend\n", a.cfg.Store.Backend)
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tMODEL ID\tFEATURES\tDOCS\tTRAINED")
	for _, m := range models {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\n", m.Name, m.ModelID, m.Features, m.Documents,
			m.TrainedAt.Local().Format(time.DateTime))
	}
	return w.Flush()
}

func init() {
	inspectCmd.Flags().IntVarP(&inspectTop, "top", "n", 10, "Number of features to show per class")
	inspectCmd.Flags().BoolVar(&inspectList, "list", false, "List models in the configured store")
}
