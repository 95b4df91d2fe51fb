package corpus

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zpam/spamlearn/pkg/email"
	"github.com/zpam/spamlearn/pkg/learning"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestLabeler(t *testing.T) {
	l := NewLabeler()
	assert.Equal(t, learning.Ham, l.Label("ham_0001.eml"))
	assert.Equal(t, learning.Ham, l.Label("easy_ham.txt"))
	assert.Equal(t, learning.Spam, l.Label("spam_0001.eml"))
	assert.Equal(t, learning.Spam, l.Label("HAM.eml"), "marker match is case-sensitive")

	custom := Labeler{Marker: "legit"}
	assert.Equal(t, learning.Ham, custom.Label("legit-7"))
	assert.Equal(t, learning.Spam, custom.Label("ham-7"))
}

func TestLoadDirectory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "spam_0002.eml"), "x")
	writeFile(t, filepath.Join(dir, "ham_0001.eml"), "x")
	writeFile(t, filepath.Join(dir, "nested", "ham_0003"), "x")
	writeFile(t, filepath.Join(dir, "notes.pdf"), "x")
	writeFile(t, filepath.Join(dir, ".hidden.eml"), "x")

	docs, err := LoadDirectory(dir, NewLabeler(), nil)
	require.NoError(t, err)

	require.Len(t, docs, 3)
	assert.Equal(t, "ham_0001.eml", docs[0].ID)
	assert.Equal(t, "nested/ham_0003", docs[1].ID)
	assert.Equal(t, "spam_0002.eml", docs[2].ID)
	assert.Equal(t, learning.Spam, docs[2].Label)
	assert.Equal(t, filepath.Join(dir, "nested", "ham_0003"), docs[1].Path)

	ham, spam := Count(docs)
	assert.Equal(t, 2, ham)
	assert.Equal(t, 1, spam)

	_, err = LoadDirectory(filepath.Join(dir, "missing"), NewLabeler(), nil)
	assert.Error(t, err)
}

func TestIsEmailFile(t *testing.T) {
	assert.True(t, IsEmailFile("a/b.EML", nil))
	assert.True(t, IsEmailFile("a/b", nil))
	assert.False(t, IsEmailFile("a/b.pdf", nil))
	assert.False(t, IsEmailFile("a/b", []string{".eml"}))
}

func TestMemorySource(t *testing.T) {
	src := MemorySource{"d1": {"free", "cash"}}

	terms, err := src.Terms(context.Background(), Document{ID: "d1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"free", "cash"}, terms)

	_, err = src.Terms(context.Background(), Document{ID: "d2"})
	assert.ErrorIs(t, err, ErrUnknownDocument)
}

func TestFileSource(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "spam_0001.eml")
	writeFile(t, path, "From: a@b.example\r\nSubject: Free prize\r\n\r\nClaim now\r\n")

	src := NewFileSource(email.DefaultOptions())
	terms, err := src.Terms(context.Background(), Document{ID: "spam_0001.eml", Path: path})
	require.NoError(t, err)
	assert.Equal(t, []string{"Free", "prize", "Claim", "now"}, terms)

	_, err = src.Terms(context.Background(), Document{ID: "gone", Path: filepath.Join(dir, "gone.eml")})
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = src.Terms(ctx, Document{ID: "spam_0001.eml", Path: path})
	assert.ErrorIs(t, err, context.Canceled)
}
