package milter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zpam/spamlearn/pkg/config"
	"github.com/zpam/spamlearn/pkg/corpus"
	"github.com/zpam/spamlearn/pkg/email"
	"github.com/zpam/spamlearn/pkg/filter"
	"github.com/zpam/spamlearn/pkg/learning"
)

func trainedClassifier(t *testing.T) *filter.EmailClassifier {
	t.Helper()
	src := corpus.MemorySource{
		"spam_1": {"free", "cash", "prize", "winner"},
		"spam_2": {"free", "prize", "claim"},
		"ham_1":  {"meeting", "agenda", "project"},
		"ham_2":  {"agenda", "notes", "project"},
	}
	docs := []corpus.Document{
		{ID: "spam_1", Label: learning.Spam},
		{ID: "spam_2", Label: learning.Spam},
		{ID: "ham_1", Label: learning.Ham},
		{ID: "ham_2", Label: learning.Ham},
	}
	c := filter.New(filter.DefaultOptions(), src)
	require.NoError(t, c.Train(context.Background(), docs, 0, 1))
	return c
}

func newTestHandler(t *testing.T, cfg config.MilterConfig) *Handler {
	opts := email.DefaultOptions()
	return NewHandler(cfg, trainedClassifier(t), email.NewParser(opts), email.NewTokenizer(opts), nil)
}

func feed(t *testing.T, h *Handler, subject, body string) {
	t.Helper()
	_, err := h.MailFrom("sender@example.com", "", nil)
	require.NoError(t, err)
	h.Header("From", "sender@example.com", nil)
	h.Header("Subject", subject, nil)
	h.Headers(nil)
	h.BodyChunk([]byte(body[:len(body)/2]), nil)
	h.BodyChunk([]byte(body[len(body)/2:]), nil)
}

func findHeader(v verdict, name string) (string, bool) {
	for _, hdr := range v.headers {
		if hdr.name == name {
			return hdr.value, true
		}
	}
	return "", false
}

func TestHandlerClassifiesSpam(t *testing.T) {
	cfg := config.DefaultConfig().Milter
	cfg.RejectSpam = true
	h := newTestHandler(t, cfg)

	feed(t, h, "You are a winner", "Claim your FREE cash prize today!!")

	v, err := h.evaluate()
	require.NoError(t, err)
	assert.Equal(t, learning.Spam, v.prediction.Label)

	status, _ := findHeader(v, "X-Spamlearn-Status")
	assert.Equal(t, "Spam", status)
	_, ok := findHeader(v, "X-Spamlearn-Probability")
	assert.True(t, ok, "naive bayes adds a probability header")
	id, _ := findHeader(v, "X-Spamlearn-Model")
	assert.Equal(t, h.classifier.ModelID(), id)

	assert.True(t, v.reject)
	assert.Equal(t, defaultRejectMessage, v.rejectReason)
}

func TestHandlerClassifiesHam(t *testing.T) {
	h := newTestHandler(t, config.DefaultConfig().Milter)

	feed(t, h, "Project agenda", "Notes for the meeting are attached")

	v, err := h.evaluate()
	require.NoError(t, err)
	assert.Equal(t, learning.Ham, v.prediction.Label)
	assert.False(t, v.reject, "ham is never rejected")
}

func TestHandlerResetsBetweenMessages(t *testing.T) {
	h := newTestHandler(t, config.DefaultConfig().Milter)

	feed(t, h, "winner", "free cash prize")
	require.NoError(t, h.Abort(nil))
	assert.Zero(t, h.message.Len(), "Abort discards the buffered message")
	assert.Empty(t, h.from)

	feed(t, h, "agenda", "project notes")
	assert.NotContains(t, h.message.String(), "prize", "previous message leaked into the next one")
}

func TestDecide(t *testing.T) {
	tests := []struct {
		name       string
		cfg        config.MilterConfig
		prediction filter.Prediction
		wantStatus string
		wantReject bool
		wantReason string
		wantProb   bool
	}{
		{
			name:       "spam without reject",
			cfg:        config.MilterConfig{SpamHeaderPrefix: "X-Test-"},
			prediction: filter.Prediction{Label: learning.Spam, SpamProbability: 0.97, Scored: true},
			wantStatus: "Spam",
			wantProb:   true,
		},
		{
			name:       "spam with custom reject message",
			cfg:        config.MilterConfig{SpamHeaderPrefix: "X-Test-", RejectSpam: true, RejectMessage: "5.7.1 go away"},
			prediction: filter.Prediction{Label: learning.Spam},
			wantStatus: "Spam",
			wantReject: true,
			wantReason: "5.7.1 go away",
		},
		{
			name:       "ham with reject enabled",
			cfg:        config.MilterConfig{SpamHeaderPrefix: "X-Test-", RejectSpam: true},
			prediction: filter.Prediction{Label: learning.Ham, SpamProbability: 0.1, Scored: true},
			wantStatus: "Ham",
			wantProb:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := decide(tt.cfg, tt.prediction, "01TESTMODEL", 3*time.Millisecond)

			status, _ := findHeader(v, "X-Test-Status")
			assert.Equal(t, tt.wantStatus, status)
			_, ok := findHeader(v, "X-Test-Probability")
			assert.Equal(t, tt.wantProb, ok, "probability header present")
			assert.Equal(t, tt.wantReject, v.reject)
			if tt.wantReject {
				assert.Equal(t, tt.wantReason, v.rejectReason)
			}
			info, _ := findHeader(v, "X-Test-Info")
			assert.Equal(t, "spamlearn; 3.00ms", info)
		})
	}
}

func TestNewServerRequirements(t *testing.T) {
	cfg := config.DefaultConfig()
	c := trainedClassifier(t)

	_, err := NewServer(cfg, c, nil)
	assert.Error(t, err, "milter is disabled")

	cfg.Milter.Enabled = true
	untrained := filter.New(filter.DefaultOptions(), corpus.MemorySource{})
	_, err = NewServer(cfg, untrained, nil)
	assert.ErrorIs(t, err, filter.ErrNotTrained)

	srv, err := NewServer(cfg, c, nil)
	require.NoError(t, err)
	assert.Equal(t, c.ModelID(), srv.Stats().ModelID, "Stats reports the served model")
}
