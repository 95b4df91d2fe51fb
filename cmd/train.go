package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/zpam/spamlearn/pkg/corpus"
	"github.com/zpam/spamlearn/pkg/crossval"
	"github.com/zpam/spamlearn/pkg/filter"
	"github.com/zpam/spamlearn/pkg/model"
	"github.com/zpam/spamlearn/pkg/profiler"
	"github.com/zpam/spamlearn/pkg/store"
)

var (
	trainLower       float64
	trainUpper       float64
	trainFolds       int
	trainSkipEval    bool
	trainVerbose     bool
	trainSaveToStore string
	trainRecord      bool
)

var trainCmd = &cobra.Command{
	Use:   "train <traindata> <outfile>",
	Short: "Evaluate with k-fold cross-validation, then train and save a model",
	Long: `Train a ham/spam classifier from a directory of labelled emails.

The corpus is first evaluated with k-fold cross-validation (a fresh model per
fold, so held-out mail never reaches the vocabulary), printing the combined
confusion matrix and the standard deviation of per-fold accuracy. A final
model is then trained on the full corpus and written to <outfile> as JSON.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) != 2 {
			fmt.Println("Usage: spamlearn train <traindata> <outfile> [--lower P] [--upper P]")
			return nil
		}
		trainDir, outFile := args[0], args[1]

		a, err := setup()
		if err != nil {
			return err
		}
		defer a.Close()

		lower, upper, err := a.percentiles(trainLower, trainUpper, cmd.Flags().Changed("lower"), cmd.Flags().Changed("upper"))
		if err != nil {
			return err
		}
		folds := a.cfg.Evaluation.Folds
		if cmd.Flags().Changed("folds") {
			folds = trainFolds
		}

		docs, err := a.loadCorpus(trainDir)
		if err != nil {
			return err
		}
		ham, spam := corpus.Count(docs)

		fmt.Printf("🧠 spamlearn training\n")
		fmt.Printf("═══════════════════════════════════════\n")
		fmt.Printf("📁 Training data: %s\n", trainDir)
		fmt.Printf("📧 Documents: %d (%d ham, %d spam)\n", len(docs), ham, spam)
		fmt.Printf("⚙️  Classifier: %s, weighting: %s, selection: [%.3f, %.3f]\n",
			a.cfg.Learning.Classifier, a.cfg.Learning.Weighting, lower, upper)
		fmt.Printf("\n")

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		var report *crossval.Report
		if !trainSkipEval {
			report, err = runEvaluation(ctx, a, docs, folds, lower, upper)
			if err != nil {
				return fmt.Errorf("cross-validation failed: %w", err)
			}
			report.Print(os.Stdout)
			fmt.Printf("\n")
		}

		prof := profiler.NewProfiler()
		classifier, err := a.newClassifier(filter.WithProfiler(prof))
		if err != nil {
			return err
		}

		progress := newProgress()
		progress.Printf("⏳ Training final model on %d documents...", len(docs))
		start := time.Now()
		if err := classifier.Train(ctx, docs, lower, upper); err != nil {
			progress.Done()
			return fmt.Errorf("training failed: %w", err)
		}
		progress.Done()
		duration := time.Since(start)

		snap, err := classifier.Snapshot()
		if err != nil {
			return err
		}
		if err := model.SaveFile(outFile, snap); err != nil {
			return fmt.Errorf("failed to save model: %w", err)
		}

		fmt.Printf("🎉 Training complete in %v\n", duration.Round(time.Millisecond))
		fmt.Printf("Feature Dimensions = %d\n", classifier.TermCount())
		fmt.Printf("Saved model to %s\n", outFile)
		fmt.Printf("🆔 Model ID: %s\n", classifier.ModelID())

		if trainSaveToStore != "" || trainRecord {
			if err := saveToStore(ctx, a, classifier, report); err != nil {
				return err
			}
		}

		if trainVerbose {
			fmt.Printf("\n")
			prof.Report(os.Stdout)
		}
		return nil
	},
}

// runEvaluation cross-validates docs with a fresh classifier per fold
func runEvaluation(ctx context.Context, a *app, docs []corpus.Document, folds int, lower, upper float64) (*crossval.Report, error) {
	newClassifier, err := a.classifierFactory()
	if err != nil {
		return nil, err
	}
	factory := func() crossval.Model { return newClassifier() }

	options := []crossval.Option{
		crossval.WithPercentiles(lower, upper),
		crossval.WithConcurrency(a.cfg.Evaluation.MaxConcurrentFolds),
		crossval.WithLogger(a.component("crossval")),
		crossval.WithMetrics(a.metrics),
	}
	if a.cfg.Evaluation.Shuffle {
		options = append(options, crossval.WithShuffle(a.cfg.Evaluation.Seed))
	}

	progress := newProgress()
	progress.Printf("⏳ Running %d-fold cross-validation...", folds)
	defer progress.Done()

	return crossval.NewValidator(factory, options...).Evaluate(ctx, docs, folds)
}

// saveToStore writes the model to the configured store and records the
// evaluation when the store keeps history
func saveToStore(ctx context.Context, a *app, classifier *filter.EmailClassifier, report *crossval.Report) error {
	name := trainSaveToStore
	if name == "" {
		name = a.cfg.Store.ModelName
	}

	s, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	if trainSaveToStore != "" {
		if err := store.SaveClassifier(ctx, s, name, classifier); err != nil {
			return err
		}
		fmt.Printf("💾 Stored model as %q (%s backend)\n", name, a.cfg.Store.Backend)
	}

	if trainRecord && report != nil {
		rec, ok := s.(store.EvaluationRecorder)
		if !ok {
			fmt.Printf("⚠️  %s backend does not keep evaluation history\n", a.cfg.Store.Backend)
			return nil
		}
		if err := rec.RecordEvaluation(ctx, name, report); err != nil {
			return err
		}
		fmt.Printf("📊 Recorded evaluation %s\n", report.RunID)
	}
	return nil
}

// progress prints a transient status line on terminals only
type progress struct {
	interactive bool
}

func newProgress() *progress {
	return &progress{interactive: term.IsTerminal(int(os.Stdout.Fd()))}
}

func (p *progress) Printf(format string, args ...interface{}) {
	if p.interactive {
		fmt.Printf("\r"+format, args...)
	}
}

func (p *progress) Done() {
	if p.interactive {
		fmt.Printf("\r\033[K")
	}
}

func init() {
	trainCmd.Flags().Float64Var(&trainLower, "lower", 0, "Lower document-frequency percentile (default from config)")
	trainCmd.Flags().Float64Var(&trainUpper, "upper", 0, "Upper document-frequency percentile (default from config)")
	trainCmd.Flags().IntVarP(&trainFolds, "folds", "k", 0, "Number of cross-validation folds (default from config)")
	trainCmd.Flags().BoolVar(&trainSkipEval, "skip-eval", false, "Skip cross-validation")
	trainCmd.Flags().BoolVarP(&trainVerbose, "verbose", "v", false, "Print per-stage training timings")
	trainCmd.Flags().StringVar(&trainSaveToStore, "save-to-store", "", "Also save the model to the configured store under this name")
	trainCmd.Flags().BoolVar(&trainRecord, "record", false, "Record the evaluation in the store history (sqlite/postgres)")
}
