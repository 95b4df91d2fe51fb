package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/zpam/spamlearn/pkg/corpus"
	"github.com/zpam/spamlearn/pkg/store"
)

var (
	evalFolds  int
	evalLower  float64
	evalUpper  float64
	evalRecord string
	evalLimit  int
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate <traindata>",
	Short: "Run k-fold cross-validation without saving a model",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setup()
		if err != nil {
			return err
		}
		defer a.Close()

		lower, upper, err := a.percentiles(evalLower, evalUpper, cmd.Flags().Changed("lower"), cmd.Flags().Changed("upper"))
		if err != nil {
			return err
		}
		folds := a.cfg.Evaluation.Folds
		if cmd.Flags().Changed("folds") {
			folds = evalFolds
		}

		docs, err := a.loadCorpus(args[0])
		if err != nil {
			return err
		}
		ham, spam := corpus.Count(docs)
		fmt.Printf("🧪 Evaluating %d documents (%d ham, %d spam) with %d folds\n\n", len(docs), ham, spam, folds)

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		report, err := runEvaluation(ctx, a, docs, folds, lower, upper)
		if err != nil {
			return fmt.Errorf("cross-validation failed: %w", err)
		}
		report.Print(os.Stdout)

		if evalRecord == "" {
			return nil
		}

		s, err := a.openStore(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		rec, ok := s.(store.EvaluationRecorder)
		if !ok {
			return fmt.Errorf("%s backend does not keep evaluation history", a.cfg.Store.Backend)
		}
		if err := rec.RecordEvaluation(ctx, evalRecord, report); err != nil {
			return err
		}
		fmt.Printf("\n📊 Recorded evaluation %s for %q\n", report.RunID, evalRecord)
		return nil
	},
}

var evaluateHistoryCmd = &cobra.Command{
	Use:   "history [model-name]",
	Short: "Show recorded cross-validation runs",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setup()
		if err != nil {
			return err
		}
		defer a.Close()

		name := ""
		if len(args) > 0 {
			name = args[0]
		}

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		s, err := a.openStore(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		rec, ok := s.(store.EvaluationRecorder)
		if !ok {
			return fmt.Errorf("%s backend does not keep evaluation history", a.cfg.Store.Backend)
		}
		records, err := rec.Evaluations(ctx, name, evalLimit)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Println("No evaluations recorded")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "RUN\tMODEL\tK\tDOCS\tACCURACY\tSTDDEV\tCREATED")
		for _, r := range records {
			fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%.4f\t%.4f\t%s\n",
				r.RunID, r.ModelName, r.K, r.Documents, r.Combined.Accuracy(), r.StdDev,
				r.CreatedAt.Local().Format(time.DateTime))
		}
		return w.Flush()
	},
}

func init() {
	evaluateCmd.Flags().IntVarP(&evalFolds, "folds", "k", 0, "Number of folds (default from config)")
	evaluateCmd.Flags().Float64Var(&evalLower, "lower", 0, "Lower document-frequency percentile (default from config)")
	evaluateCmd.Flags().Float64Var(&evalUpper, "upper", 0, "Upper document-frequency percentile (default from config)")
	evaluateCmd.Flags().StringVar(&evalRecord, "record", "", "Record the report in the store history under this model name")

	evaluateHistoryCmd.Flags().IntVarP(&evalLimit, "limit", "n", 20, "Maximum number of runs to show")
	evaluateCmd.AddCommand(evaluateHistoryCmd)
}
