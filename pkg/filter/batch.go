package filter

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/zpam/spamlearn/pkg/corpus"
	"github.com/zpam/spamlearn/pkg/learning"
)

// FilterResults contains the results of filtering a directory
type FilterResults struct {
	Total      int
	Spam       int
	Ham        int
	Errors     int
	MoveErrors int
	Duration   time.Duration
}

// BatchOptions controls directory filtering
type BatchOptions struct {
	// OutputPath receives ham, SpamPath receives spam; empty leaves files in place
	OutputPath string
	SpamPath   string
	Extensions []string
	// MaxConcurrent bounds the classification workers
	MaxConcurrent int
}

// ProcessEmails classifies every mail file under inputPath with the trained
// model and moves each file according to its predicted label.
func (c *EmailClassifier) ProcessEmails(ctx context.Context, inputPath string, opts BatchOptions) (*FilterResults, error) {
	if !c.Trained() {
		return nil, ErrNotTrained
	}
	start := time.Now()

	// Create output directories if they don't exist
	for _, dir := range []string{opts.OutputPath, opts.SpamPath} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	docs, err := corpus.LoadDirectory(inputPath, corpus.NewLabeler(), opts.Extensions)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return &FilterResults{Duration: time.Since(start)}, nil
	}

	maxConcurrent := opts.MaxConcurrent
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}

	results := c.processParallel(ctx, docs, opts, maxConcurrent)
	results.Duration = time.Since(start)
	return results, ctx.Err()
}

// processParallel runs a worker pool over docs
func (c *EmailClassifier) processParallel(ctx context.Context, docs []corpus.Document, opts BatchOptions, maxConcurrent int) *FilterResults {
	var totalProcessed, spamDetected, hamDetected int32
	var processingErrors, moveErrors int32

	type emailResult struct {
		doc   corpus.Document
		label learning.Label
		err   error
	}

	jobChan := make(chan corpus.Document, len(docs))
	resultChan := make(chan emailResult, len(docs))

	var workerWG sync.WaitGroup
	for i := 0; i < maxConcurrent; i++ {
		workerWG.Add(1)
		go func() {
			defer workerWG.Done()
			for doc := range jobChan {
				if ctx.Err() != nil {
					continue
				}
				label, err := c.Classify(ctx, doc)
				atomic.AddInt32(&totalProcessed, 1)

				if err != nil {
					atomic.AddInt32(&processingErrors, 1)
				} else if label == learning.Spam {
					atomic.AddInt32(&spamDetected, 1)
				} else {
					atomic.AddInt32(&hamDetected, 1)
				}
				resultChan <- emailResult{doc: doc, label: label, err: err}
			}
		}()
	}

	go func() {
		defer close(jobChan)
		for _, doc := range docs {
			jobChan <- doc
		}
	}()

	go func() {
		defer close(resultChan)
		workerWG.Wait()
	}()

	for res := range resultChan {
		if res.err != nil {
			c.log.WithError(res.err).WithField("file", res.doc.Path).Warn("failed to classify email")
			continue
		}

		var destDir string
		if res.label == learning.Spam {
			destDir = opts.SpamPath
		} else {
			destDir = opts.OutputPath
		}
		if destDir == "" {
			continue
		}

		destPath := destination(destDir, res.doc)
		if err := moveFile(res.doc.Path, destPath); err != nil {
			c.log.WithError(err).WithFields(logrus.Fields{
				"file": res.doc.Path,
				"dest": destPath,
			}).Warn("failed to move email")
			moveErrors++
		}
	}

	return &FilterResults{
		Total:      int(atomic.LoadInt32(&totalProcessed)),
		Spam:       int(atomic.LoadInt32(&spamDetected)),
		Ham:        int(atomic.LoadInt32(&hamDetected)),
		Errors:     int(atomic.LoadInt32(&processingErrors)),
		MoveErrors: int(moveErrors),
	}
}

// destination keeps the document's path relative to the input directory so
// equal base names in different subdirectories never collide
func destination(dir string, doc corpus.Document) string {
	rel := filepath.FromSlash(doc.ID)
	if rel == "." || rel == "" {
		rel = filepath.Base(doc.Path)
	}
	return filepath.Join(dir, rel)
}

// moveFile renames src to dst, refusing to replace an existing file
func moveFile(src, dst string) error {
	if _, err := os.Lstat(dst); err == nil {
		return fmt.Errorf("destination exists: %s", dst)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	return os.Rename(src, dst)
}
