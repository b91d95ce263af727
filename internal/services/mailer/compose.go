package mailer

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/ternarybob/schoolreach/internal/common"
	"github.com/ternarybob/schoolreach/internal/models"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

// TemplateData is exposed to the subject and body templates
type TemplateData struct {
	Name    string
	Website string
	Email   string
}

// Composer renders the outreach template for one record into an RFC 5322 message
type Composer struct {
	from    *mail.Address
	subject *template.Template
	body    *template.Template
	md      goldmark.Markdown
	now     func() time.Time
}

// NewComposer parses the configured subject and Markdown body templates
func NewComposer(config common.MailConfig) (*Composer, error) {
	fromAddr := config.From
	if fromAddr == "" {
		fromAddr = config.Username
	}

	subject, err := template.New("subject").Parse(config.Subject)
	if err != nil {
		return nil, fmt.Errorf("failed to parse mail subject template: %w", err)
	}
	body, err := template.New("body").Parse(config.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse mail body template: %w", err)
	}

	md := goldmark.New(
		goldmark.WithExtensions(extension.Linkify),
		goldmark.WithRendererOptions(html.WithHardWraps()),
	)

	return &Composer{
		from:    &mail.Address{Name: config.FromName, Address: fromAddr},
		subject: subject,
		body:    body,
		md:      md,
		now:     time.Now,
	}, nil
}

// From returns the envelope sender
func (c *Composer) From() string {
	return c.from.Address
}

// Compose builds a multipart/alternative message with the Markdown source as
// the text part and its HTML rendering as the second part
func (c *Composer) Compose(record models.Record) ([]byte, error) {
	data := TemplateData{
		Name:    record.Name,
		Website: record.Website,
		Email:   record.Email,
	}

	var subject strings.Builder
	if err := c.subject.Execute(&subject, data); err != nil {
		return nil, fmt.Errorf("failed to render subject: %w", err)
	}
	var text bytes.Buffer
	if err := c.body.Execute(&text, data); err != nil {
		return nil, fmt.Errorf("failed to render body: %w", err)
	}
	var htmlBody bytes.Buffer
	if err := c.md.Convert(text.Bytes(), &htmlBody); err != nil {
		return nil, fmt.Errorf("failed to render markdown body: %w", err)
	}

	var h mail.Header
	h.SetDate(c.now())
	h.SetAddressList("From", []*mail.Address{c.from})
	h.SetAddressList("To", []*mail.Address{{Address: record.Email}})
	h.SetSubject(subject.String())
	if err := h.GenerateMessageID(); err != nil {
		return nil, fmt.Errorf("failed to generate message id: %w", err)
	}

	var buf bytes.Buffer
	w, err := mail.CreateInlineWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("failed to create message writer: %w", err)
	}
	if err := writePart(w, "text/plain", text.Bytes()); err != nil {
		return nil, err
	}
	if err := writePart(w, "text/html", htmlBody.Bytes()); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to close message: %w", err)
	}

	return buf.Bytes(), nil
}

func writePart(w *mail.InlineWriter, contentType string, content []byte) error {
	var h mail.InlineHeader
	h.SetContentType(contentType, map[string]string{"charset": "utf-8"})
	h.Set("Content-Transfer-Encoding", "quoted-printable")

	part, err := w.CreatePart(h)
	if err != nil {
		return fmt.Errorf("failed to create %s part: %w", contentType, err)
	}
	if _, err := part.Write(content); err != nil {
		part.Close()
		return fmt.Errorf("failed to write %s part: %w", contentType, err)
	}
	return part.Close()
}
