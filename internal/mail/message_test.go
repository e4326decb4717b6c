package mail

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildMessage(from, subject string, parts ...string) string {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: frame@example.com\r\n")
	b.WriteString("Subject: " + subject + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: multipart/mixed; boundary=\"XYZ\"\r\n\r\n")
	b.WriteString("--XYZ\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
	b.WriteString("Here are some photos.\r\n")
	for _, p := range parts {
		b.WriteString("--XYZ\r\n")
		b.WriteString(p)
	}
	b.WriteString("--XYZ--\r\n")
	return b.String()
}

func attachmentPart(name, contentType, payload string) string {
	return "Content-Type: " + contentType + "; name=\"" + name + "\"\r\n" +
		"Content-Disposition: attachment; filename=\"" + name + "\"\r\n" +
		"Content-Transfer-Encoding: base64\r\n\r\n" +
		base64.StdEncoding.EncodeToString([]byte(payload)) + "\r\n"
}

func inlinePart(name, contentType, payload string) string {
	return "Content-Type: " + contentType + "; name=\"" + name + "\"\r\n" +
		"Content-Disposition: inline\r\n" +
		"Content-Transfer-Encoding: base64\r\n\r\n" +
		base64.StdEncoding.EncodeToString([]byte(payload)) + "\r\n"
}

func TestParse_ExtractsImageParts(t *testing.T) {
	raw := buildMessage(
		"Grandma <Grandma@Example.com>",
		"Slideshow: beach day",
		attachmentPart("beach.JPG", "image/jpeg", "jpeg-bytes"),
		attachmentPart("itinerary.pdf", "application/pdf", "pdf-bytes"),
		inlinePart("sunset.png", "image/png", "png-bytes"),
	)

	m, err := Parse(strings.NewReader(raw))
	require.NoError(t, err)

	assert.Equal(t, "grandma@example.com", m.From)
	assert.Equal(t, "Slideshow: beach day", m.Subject)
	require.Len(t, m.Attachments, 2)
	assert.Equal(t, "beach.JPG", m.Attachments[0].Filename)
	assert.Equal(t, []byte("jpeg-bytes"), m.Attachments[0].Data)
	assert.Equal(t, "sunset.png", m.Attachments[1].Filename)
	assert.Equal(t, "image/png", m.Attachments[1].ContentType)
}

func TestParse_PlainMessageHasNoAttachments(t *testing.T) {
	raw := "From: a@example.com\r\nSubject: hi\r\nContent-Type: text/plain\r\n\r\nhello\r\n"
	m, err := Parse(strings.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", m.From)
	assert.Empty(t, m.Attachments)
}

func TestFilter_Accept(t *testing.T) {
	f := Filter{
		AllowedSenders:  []string{"mom@example.com", "dad@example.com"},
		SubjectKeywords: []string{"slideshow"},
	}

	tests := []struct {
		name string
		msg  Message
		want bool
	}{
		{"allowed sender and subject", Message{From: "mom@example.com", Subject: "New SLIDESHOW pics"}, true},
		{"sender compared case-insensitively", Message{From: "DAD@example.com", Subject: "slideshow"}, true},
		{"unknown sender", Message{From: "spam@example.com", Subject: "slideshow"}, false},
		{"missing keyword", Message{From: "mom@example.com", Subject: "dinner?"}, false},
		{"missing sender", Message{Subject: "slideshow"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, reason := f.Accept(tt.msg)
			assert.Equal(t, tt.want, ok)
			if ok {
				assert.Empty(t, reason)
			} else {
				assert.NotEmpty(t, reason)
			}
		})
	}
}

func TestFilter_NoKeywordsAcceptsAnySubject(t *testing.T) {
	f := Filter{AllowedSenders: []string{"mom@example.com"}}
	ok, _ := f.Accept(Message{From: "mom@example.com", Subject: "whatever"})
	assert.True(t, ok)
}
