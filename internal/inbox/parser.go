package inbox

import (
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset" // decode non-UTF-8 bodies
	"github.com/emersion/go-message/mail"
)

// Email represents a parsed message
type Email struct {
	UID         uint32 // IMAP UID for operations like move/delete
	Mailbox     string
	MessageID   string
	From        string
	FromName    string // Sender display name
	FromDomain  string
	Subject     string
	Body        string
	HTMLBody    string
	Attachments []string // Attachment file names
	ReceivedAt  time.Time
}

// Key identifies the message for the processed-mail ledger.
func (e *Email) Key() string {
	if e.MessageID != "" {
		return e.MessageID
	}
	return fmt.Sprintf("uid:%s:%d", e.Mailbox, e.UID)
}

// Text is the content handed to the classifier: the subject followed by the
// plain-text body, or the flattened HTML body when there is no plain part.
func (e *Email) Text() string {
	subject := strings.TrimSpace(e.Subject)
	body := e.PlainBody()
	switch {
	case subject == "":
		return body
	case body == "":
		return subject
	default:
		return subject + "\n\n" + body
	}
}

// PlainBody is the trimmed text/plain body, falling back to the flattened
// HTML body.
func (e *Email) PlainBody() string {
	body := e.Body
	if strings.TrimSpace(body) == "" && e.HTMLBody != "" {
		body = htmlToText(e.HTMLBody)
	}
	return strings.TrimSpace(body)
}

// ParseMessage reads an RFC 5322 message, e.g. an .eml file.
func ParseMessage(r io.Reader) (*Email, error) {
	mr, err := mail.CreateReader(r)
	if err != nil && !message.IsUnknownCharset(err) {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	defer mr.Close()

	email := &Email{}
	h := mr.Header

	if subject, err := h.Subject(); err == nil {
		email.Subject = subject
	} else {
		email.Subject = h.Get("Subject")
	}
	if id, err := h.MessageID(); err == nil && id != "" {
		email.MessageID = "<" + id + ">"
	}
	if date, err := h.Date(); err == nil {
		email.ReceivedAt = date
	}
	if from, err := h.AddressList("From"); err == nil && len(from) > 0 {
		email.From = from[0].Address
		email.FromName = from[0].Name
		if at := strings.LastIndex(from[0].Address, "@"); at >= 0 {
			email.FromDomain = strings.ToLower(from[0].Address[at+1:])
		}
	}

	readParts(mr, email)
	return email, nil
}

// readParts fills the body fields from the first text/plain and text/html
// parts and records attachment names. Unreadable parts are skipped.
func readParts(mr *mail.Reader, email *Email) {
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			return
		}
		if err != nil && !message.IsUnknownCharset(err) {
			return
		}

		switch h := p.Header.(type) {
		case *mail.InlineHeader:
			ct, _, _ := h.ContentType()
			body, err := io.ReadAll(p.Body)
			if err != nil {
				continue
			}
			if strings.HasPrefix(ct, "text/plain") && email.Body == "" {
				email.Body = string(body)
			} else if strings.HasPrefix(ct, "text/html") && email.HTMLBody == "" {
				email.HTMLBody = string(body)
			}
		case *mail.AttachmentHeader:
			if name, err := h.Filename(); err == nil && name != "" {
				email.Attachments = append(email.Attachments, name)
			}
		}
	}
}

// htmlToText flattens an HTML body to whitespace-collapsed text. Link
// targets are appended so URL detection still sees them.
func htmlToText(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return strings.Join(strings.Fields(html), " ")
	}
	doc.Find("script, style, head").Remove()

	text := strings.Join(strings.Fields(doc.Text()), " ")

	var links []string
	seen := make(map[string]bool)
	doc.Find("a[href]").Each(func(i int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		u, err := url.Parse(strings.TrimSpace(href))
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return
		}
		if link := u.String(); !seen[link] && !strings.Contains(text, link) {
			seen[link] = true
			links = append(links, link)
		}
	})
	if len(links) == 0 {
		return text
	}
	return text + "\n" + strings.Join(links, "\n")
}
