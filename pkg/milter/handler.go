package milter

import (
	"bytes"
	"fmt"
	"time"

	"github.com/d--j/go-milter"
	"github.com/sirupsen/logrus"

	"github.com/zpam/spamlearn/pkg/config"
	"github.com/zpam/spamlearn/pkg/email"
	"github.com/zpam/spamlearn/pkg/filter"
	"github.com/zpam/spamlearn/pkg/learning"
	"github.com/zpam/spamlearn/pkg/logger"
)

const defaultRejectMessage = "5.7.1 Message rejected as spam"

// Handler implements the milter.Milter interface. It buffers one message at
// a time and classifies it with a frozen model at end of message.
type Handler struct {
	milter.NoOpMilter
	config     config.MilterConfig
	classifier *filter.EmailClassifier
	parser     *email.Parser
	tokenizer  *email.Tokenizer
	log        *logrus.Entry

	// Raw message rebuilt from the milter events
	message bytes.Buffer
	from    string

	// Connection/session data
	connectHost string
	connectAddr string
	heloName    string

	startTime time.Time
}

// NewHandler creates a new milter handler
func NewHandler(cfg config.MilterConfig, classifier *filter.EmailClassifier, parser *email.Parser, tokenizer *email.Tokenizer, log *logrus.Entry) *Handler {
	return &Handler{
		config:     cfg,
		classifier: classifier,
		parser:     parser,
		tokenizer:  tokenizer,
		log:        logger.OrDiscard(log, "milter"),
		startTime:  time.Now(),
	}
}

// NewConnection is called when a new SMTP connection is established
func (h *Handler) NewConnection(m milter.Modifier) error {
	h.startTime = time.Now()
	return nil
}

// Connect is called when connection information is available
func (h *Handler) Connect(host string, family string, port uint16, addr string, m milter.Modifier) (*milter.Response, error) {
	h.connectHost = host
	h.connectAddr = addr
	return milter.RespContinue, nil
}

// Helo is called when HELO/EHLO is received
func (h *Handler) Helo(name string, m milter.Modifier) (*milter.Response, error) {
	h.heloName = name
	return milter.RespContinue, nil
}

// MailFrom starts a new message
func (h *Handler) MailFrom(from string, esmtpArgs string, m milter.Modifier) (*milter.Response, error) {
	h.reset()
	h.from = from
	h.startTime = time.Now()
	return milter.RespContinue, nil
}

// Header is called for each header
func (h *Handler) Header(name string, value string, m milter.Modifier) (*milter.Response, error) {
	fmt.Fprintf(&h.message, "%s: %s\r\n", name, value)
	return milter.RespContinue, nil
}

// Headers is called when all headers have been received
func (h *Handler) Headers(m milter.Modifier) (*milter.Response, error) {
	h.message.WriteString("\r\n")
	return milter.RespContinue, nil
}

// BodyChunk is called for each body chunk
func (h *Handler) BodyChunk(chunk []byte, m milter.Modifier) (*milter.Response, error) {
	h.message.Write(chunk)
	return milter.RespContinue, nil
}

// EndOfMessage classifies the buffered message
func (h *Handler) EndOfMessage(m milter.Modifier) (*milter.Response, error) {
	defer h.reset()

	v, err := h.evaluate()
	if err != nil {
		// Classification failures never block mail
		h.log.WithError(err).WithFields(logrus.Fields{
			"from": h.from,
			"host": h.connectHost,
		}).Warn("failed to classify message")
		return milter.RespContinue, nil
	}

	if h.config.AddSpamHeaders {
		for _, hdr := range v.headers {
			if err := m.AddHeader(hdr.name, hdr.value); err != nil {
				return milter.RespTempFail, fmt.Errorf("failed to add spam headers: %w", err)
			}
		}
	}

	h.log.WithFields(logrus.Fields{
		"from":             h.from,
		"host":             h.connectHost,
		"helo":             h.heloName,
		"label":            v.prediction.Label,
		"spam_probability": v.prediction.SpamProbability,
		"elapsed":          time.Since(h.startTime),
	}).Info("classified message")

	if v.reject {
		return milter.RejectWithCodeAndReason(550, v.rejectReason)
	}
	return milter.RespContinue, nil
}

// Abort is called when the message is aborted
func (h *Handler) Abort(m milter.Modifier) error {
	h.reset()
	return nil
}

// Cleanup is called when the connection is closed
func (h *Handler) Cleanup(m milter.Modifier) {
	h.reset()
}

func (h *Handler) reset() {
	h.message.Reset()
	h.from = ""
}

type header struct {
	name  string
	value string
}

// verdict is the outcome for one message
type verdict struct {
	prediction   filter.Prediction
	headers      []header
	reject       bool
	rejectReason string
}

// evaluate parses the buffered message and decides what to do with it
func (h *Handler) evaluate() (verdict, error) {
	parsed, err := h.parser.ParseBytes(h.message.Bytes())
	if err != nil {
		return verdict{}, err
	}
	if parsed.From == "" {
		parsed.From = h.from
	}

	p, err := h.classifier.ClassifyEmail(h.tokenizer, parsed)
	if err != nil {
		return verdict{}, err
	}
	return decide(h.config, p, h.classifier.ModelID(), time.Since(h.startTime)), nil
}

// decide maps a prediction to headers and a reject decision
func decide(cfg config.MilterConfig, p filter.Prediction, modelID string, elapsed time.Duration) verdict {
	prefix := cfg.SpamHeaderPrefix
	status := "Ham"
	if p.Label == learning.Spam {
		status = "Spam"
	}

	v := verdict{prediction: p}
	v.headers = append(v.headers, header{prefix + "Status", status})
	if p.Scored {
		v.headers = append(v.headers, header{prefix + "Probability", fmt.Sprintf("%.4f", p.SpamProbability)})
	}
	v.headers = append(v.headers,
		header{prefix + "Model", modelID},
		header{prefix + "Info", fmt.Sprintf("spamlearn; %.2fms", float64(elapsed.Microseconds())/1000)},
	)

	if cfg.RejectSpam && p.Label == learning.Spam {
		v.reject = true
		v.rejectReason = cfg.RejectMessage
		if v.rejectReason == "" {
			v.rejectReason = defaultRejectMessage
		}
	}
	return v
}
