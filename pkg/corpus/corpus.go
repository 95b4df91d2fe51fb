package corpus

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/zpam/spamlearn/pkg/email"
	"github.com/zpam/spamlearn/pkg/learning"
)

// ErrUnknownDocument is returned by a Source that has no terms for a document
var ErrUnknownDocument = errors.New("unknown document")

// DefaultExtensions are the file extensions treated as mail. The empty
// string admits files without an extension.
var DefaultExtensions = []string{".eml", ".msg", ".txt", ".email", ""}

// Document is an immutable corpus entry with its ground-truth label
type Document struct {
	ID    string
	Path  string
	Label learning.Label
}

// Labeler infers a label from a document name
type Labeler struct {
	// Marker is the substring that identifies ham; everything else is spam
	Marker string
}

// NewLabeler returns the "ham" filename convention
func NewLabeler() Labeler {
	return Labeler{Marker: "ham"}
}

// Label returns Ham when name contains the marker, Spam otherwise
func (l Labeler) Label(name string) learning.Label {
	marker := l.Marker
	if marker == "" {
		marker = "ham"
	}
	if strings.Contains(name, marker) {
		return learning.Ham
	}
	return learning.Spam
}

// Source produces the raw terms of a document in reading order
type Source interface {
	Terms(ctx context.Context, doc Document) ([]string, error)
}

// MemorySource serves pre-tokenised documents keyed by ID
type MemorySource map[string][]string

func (m MemorySource) Terms(_ context.Context, doc Document) ([]string, error) {
	terms, ok := m[doc.ID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDocument, doc.ID)
	}
	return terms, nil
}

// FileSource reads a document from disk, parses it as mail and tokenises it
type FileSource struct {
	Parser    *email.Parser
	Tokenizer *email.Tokenizer
}

// NewFileSource creates a file source from parser options
func NewFileSource(opts email.Options) *FileSource {
	return &FileSource{
		Parser:    email.NewParser(opts),
		Tokenizer: email.NewTokenizer(opts),
	}
}

func (s *FileSource) Terms(ctx context.Context, doc Document) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	parsed, err := s.Parser.ParseFromFile(doc.Path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", doc.ID, err)
	}
	return s.Tokenizer.Tokenize(parsed), nil
}

// IsEmailFile checks if a path has one of the accepted extensions
func IsEmailFile(path string, extensions []string) bool {
	if len(extensions) == 0 {
		extensions = DefaultExtensions
	}
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range extensions {
		if ext == strings.ToLower(e) {
			return true
		}
	}
	return false
}

// LoadDirectory walks dir and returns every mail file as a Document. IDs are
// slash-separated paths relative to dir; labels come from the base name.
// Documents are returned in ID order.
func LoadDirectory(dir string, labeler Labeler, extensions []string) ([]Document, error) {
	var docs []Document
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".") || !IsEmailFile(path, extensions) {
			return nil
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		docs = append(docs, Document{
			ID:    filepath.ToSlash(rel),
			Path:  path,
			Label: labeler.Label(d.Name()),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read corpus %s: %w", dir, err)
	}

	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs, nil
}

// Count returns the number of ham and spam documents
func Count(docs []Document) (ham, spam int) {
	for _, d := range docs {
		if d.Label == learning.Ham {
			ham++
		} else {
			spam++
		}
	}
	return ham, spam
}
