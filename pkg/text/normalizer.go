package text

import (
	"net/url"
	"regexp"
	"strings"
	"unicode"

	"github.com/kljensen/snowball"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// NumberPlaceholder replaces every numeric token
const NumberPlaceholder = "9999"

var (
	urlPattern    = regexp.MustCompile(`^(https?://|ftp://|www\.)[^\s]+$`)
	emailPattern  = regexp.MustCompile(`^[a-z0-9._%+\-]+@([a-z0-9\-]+\.)+[a-z]{2,}$`)
	numberPattern = regexp.MustCompile(`^[$€£+\-]?[0-9][0-9.,:/\-]*%?$`)
)

// Normalizer canonicalises raw tokens into index terms
type Normalizer struct {
	// MinLength discards terms whose length is at or below this value
	MinLength int
	// Stem applies English Porter stemming to plain words
	Stem bool
	// Language passed to the stemmer
	Language string
}

// NewNormalizer returns a normalizer that drops terms of two characters or
// fewer and stems English words.
func NewNormalizer() *Normalizer {
	return &Normalizer{MinLength: 2, Stem: true, Language: "english"}
}

// Normalize maps a raw token to its index term. The second result is false
// when the token must be discarded.
//
// Rules, in order: lower-case; discard symbol-only tokens and short tokens;
// URLs become their host without "www."; e-mail addresses become their
// domain; numbers become NumberPlaceholder; anything else is stripped to
// letters and digits, accent-folded and stemmed.
func (n *Normalizer) Normalize(raw string) (string, bool) {
	term := strings.ToLower(strings.TrimSpace(raw))

	if isSymbol(term) {
		return "", false
	}
	if len([]rune(term)) <= n.MinLength {
		return "", false
	}

	switch {
	case urlPattern.MatchString(term):
		if host := urlHost(term); host != "" {
			return host, true
		}
		return "", false
	case emailPattern.MatchString(term):
		return term[strings.LastIndexByte(term, '@')+1:], true
	case numberPattern.MatchString(term):
		return NumberPlaceholder, true
	}

	word := foldAccents(stripNonAlphanumeric(term))
	if word == "" {
		return "", false
	}
	if n.Stem {
		stemmed, err := snowball.Stem(word, n.language(), true)
		if err == nil && stemmed != "" {
			word = stemmed
		}
	}
	return word, true
}

func (n *Normalizer) language() string {
	if n.Language == "" {
		return "english"
	}
	return n.Language
}

// isSymbol reports whether term contains no letters or digits
func isSymbol(term string) bool {
	for _, r := range term {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

func urlHost(term string) string {
	if strings.HasPrefix(term, "www.") {
		term = "http://" + term
	}
	u, err := url.Parse(term)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(u.Hostname(), "www.")
}

func stripNonAlphanumeric(term string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return -1
	}, term)
}

func foldAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}
