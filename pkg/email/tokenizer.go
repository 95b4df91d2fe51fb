package email

import "strings"

// Tokenizer splits a parsed email into raw terms in reading order
type Tokenizer struct {
	IncludeSubject bool
}

// NewTokenizer creates a tokenizer matching the parser options
func NewTokenizer(opts Options) *Tokenizer {
	return &Tokenizer{IncludeSubject: opts.IncludeSubject}
}

// Tokenize returns the whitespace-separated words of the subject (when
// enabled) followed by those of the body.
func (t *Tokenizer) Tokenize(e *Email) []string {
	var words []string
	if t.IncludeSubject && e.Subject != "" {
		words = append(words, strings.Fields(e.Subject)...)
	}
	return append(words, strings.Fields(e.Body)...)
}
