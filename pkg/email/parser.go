package email

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"os"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Email represents a parsed email reduced to the text a classifier reads
type Email struct {
	From        string
	To          []string
	Subject     string
	Body        string
	Headers     map[string]string
	Attachments []Attachment
	ParsedAt    time.Time
}

// Attachment represents an email attachment
type Attachment struct {
	Filename    string
	ContentType string
	Size        int64
}

// Options controls how much of a message ends up in Email.Body
type Options struct {
	// StripHTML reduces text/html parts to their visible text
	StripHTML bool
	// SplitMultipart walks MIME parts; when false the raw body is kept
	SplitMultipart bool
	// IncludeSubject makes the tokenizer emit subject words
	IncludeSubject bool
}

// DefaultOptions strips HTML, walks MIME parts and includes the subject
func DefaultOptions() Options {
	return Options{StripHTML: true, SplitMultipart: true, IncludeSubject: true}
}

// Parser handles fast email parsing
type Parser struct {
	opts    Options
	decoder *mime.WordDecoder
}

// NewParser creates a new email parser
func NewParser(opts Options) *Parser {
	return &Parser{opts: opts, decoder: new(mime.WordDecoder)}
}

// Options returns the parser configuration
func (p *Parser) Options() Options {
	return p.opts
}

// ParseFromFile parses an email from a file
func (p *Parser) ParseFromFile(filepath string) (*Email, error) {
	file, err := os.Open(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	return p.Parse(file)
}

// ParseBytes parses an email held in memory
func (p *Parser) ParseBytes(data []byte) (*Email, error) {
	return p.Parse(bytes.NewReader(data))
}

// Parse parses an email from a reader
func (p *Parser) Parse(reader io.Reader) (*Email, error) {
	msg, err := mail.ReadMessage(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to parse email: %w", err)
	}

	email := &Email{
		Headers:  make(map[string]string),
		ParsedAt: time.Now(),
	}

	email.From = msg.Header.Get("From")
	email.Subject = p.decodeHeader(msg.Header.Get("Subject"))

	if to := msg.Header.Get("To"); to != "" {
		email.To = strings.Split(to, ",")
		for i := range email.To {
			email.To[i] = strings.TrimSpace(email.To[i])
		}
	}

	for key, values := range msg.Header {
		email.Headers[key] = strings.Join(values, "; ")
	}

	if err := p.parseBody(msg.Body, msg.Header.Get("Content-Type"), msg.Header.Get("Content-Transfer-Encoding"), email); err != nil {
		return nil, fmt.Errorf("failed to parse body: %w", err)
	}

	return email, nil
}

func (p *Parser) decodeHeader(value string) string {
	decoded, err := p.decoder.DecodeHeader(value)
	if err != nil {
		return value
	}
	return decoded
}

// parseBody extracts text content and attachments of one entity
func (p *Parser) parseBody(body io.Reader, contentType, encoding string, email *Email) error {
	if contentType == "" || !p.opts.SplitMultipart {
		return p.appendText(body, "text/plain", encoding, email)
	}

	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		// Fallback to reading as plain text
		return p.appendText(body, "text/plain", encoding, email)
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		return p.parseMultipart(body, params["boundary"], email)
	}
	if strings.HasPrefix(mediaType, "text/") {
		return p.appendText(body, mediaType, encoding, email)
	}

	_, err = io.Copy(io.Discard, body)
	return err
}

// parseMultipart handles multipart messages, recursing into nested parts
func (p *Parser) parseMultipart(body io.Reader, boundary string, email *Email) error {
	if boundary == "" {
		return fmt.Errorf("multipart message without boundary")
	}

	multipartReader := multipart.NewReader(body, boundary)

	for {
		part, err := multipartReader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}

		contentType := part.Header.Get("Content-Type")
		contentDisposition := part.Header.Get("Content-Disposition")

		if strings.Contains(contentDisposition, "attachment") {
			attachment := Attachment{
				Filename:    part.FileName(),
				ContentType: contentType,
			}
			n, err := io.Copy(io.Discard, part)
			if err == nil {
				attachment.Size = n
			}
			email.Attachments = append(email.Attachments, attachment)
		} else if err := p.parseBody(part, contentType, part.Header.Get("Content-Transfer-Encoding"), email); err != nil {
			part.Close()
			return err
		}

		part.Close()
	}

	return nil
}

func (p *Parser) appendText(body io.Reader, mediaType, encoding string, email *Email) error {
	content, err := io.ReadAll(decodeTransfer(body, encoding))
	if err != nil {
		return err
	}

	text := string(content)
	if mediaType == "text/html" && p.opts.StripHTML {
		text = htmlText(text)
	}

	if email.Body == "" {
		email.Body = text
	} else {
		email.Body += "\n" + text
	}
	return nil
}

func decodeTransfer(r io.Reader, encoding string) io.Reader {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "base64":
		return base64.NewDecoder(base64.StdEncoding, r)
	case "quoted-printable":
		return quotedprintable.NewReader(r)
	default:
		return r
	}
}

// htmlText returns the visible text of an HTML fragment
func htmlText(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return html
	}
	doc.Find("script, style, head").Remove()
	return doc.Text()
}
