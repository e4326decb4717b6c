package mail

import (
	"fmt"
	"io"
	"strings"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	gomail "github.com/emersion/go-message/mail"

	"github.com/i474232898/weather-slideshow/internal/common"
	"github.com/i474232898/weather-slideshow/internal/images"
)

// Attachment is one image part extracted from a message.
type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Message is the subset of a parsed email the ingester cares about.
type Message struct {
	From        string // lower-cased address of the first From entry
	Subject     string
	Attachments []Attachment
}

// Parse reads an RFC 5322 message and extracts its sender, subject and image
// parts. Attachments are kept when their file name has an image extension;
// inline parts are kept when they are declared as images.
func Parse(r io.Reader) (Message, error) {
	mr, err := gomail.CreateReader(r)
	if err != nil && !message.IsUnknownCharset(err) {
		return Message{}, fmt.Errorf("read message: %w", err)
	}
	defer mr.Close()

	var m Message
	if from, err := mr.Header.AddressList("From"); err == nil && len(from) > 0 {
		m.From = strings.ToLower(strings.TrimSpace(from[0].Address))
	}
	if subject, err := mr.Header.Subject(); err == nil {
		m.Subject = subject
	}

	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			if message.IsUnknownCharset(err) {
				continue
			}
			return m, fmt.Errorf("read part: %w", err)
		}

		var name, ct string
		switch h := p.Header.(type) {
		case *gomail.AttachmentHeader:
			name, _ = h.Filename()
			ct, _, _ = h.ContentType()
			if !images.IsImageFile(name) {
				continue
			}
		case *gomail.InlineHeader:
			var params map[string]string
			ct, params, _ = h.ContentType()
			if !strings.HasPrefix(ct, "image/") {
				continue
			}
			name = params["name"]
			if name == "" {
				if _, dp, err := h.ContentDisposition(); err == nil {
					name = dp["filename"]
				}
			}
		default:
			continue
		}

		data, err := io.ReadAll(p.Body)
		if err != nil {
			return m, fmt.Errorf("read attachment %q: %w", name, err)
		}
		m.Attachments = append(m.Attachments, Attachment{Filename: name, ContentType: ct, Data: data})
	}

	return m, nil
}

// Filter decides which messages feed the slideshow.
type Filter struct {
	AllowedSenders  []string // lower-cased addresses
	SubjectKeywords []string // any one must appear in the subject
}

// Accept reports whether the message is from an allowed sender and carries a
// required subject keyword. The reason is empty when accepted.
func (f Filter) Accept(m Message) (bool, string) {
	if m.From == "" {
		return false, "missing sender"
	}
	allowed := false
	for _, a := range f.AllowedSenders {
		if strings.EqualFold(a, m.From) {
			allowed = true
			break
		}
	}
	if !allowed {
		return false, fmt.Sprintf("unauthorized sender %s", m.From)
	}
	if len(f.SubjectKeywords) > 0 && !common.HasAny(m.Subject, f.SubjectKeywords...) {
		return false, fmt.Sprintf("subject %q missing required keyword", m.Subject)
	}
	return true, ""
}
