package email

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/google/uuid"

	"github.com/mailflow-app/mailflow/internal/config"
)

// ErrUnknownProvider is returned by NewSender for an unsupported provider.
var ErrUnknownProvider = errors.New("unknown email provider")

type Message struct {
	To        string
	From      string
	FromName  string
	Subject   string
	Body      string
	MessageID string // Generated by the sender when empty
	InReplyTo string // Message-ID of the message being answered
}

type Result struct {
	Success    bool
	MessageID  string // RFC 5322 Message-ID header of the sent reply
	ProviderID string // API-assigned id, when the provider returns one
	Error      error
}

type Sender interface {
	Send(ctx context.Context, msg Message) Result
	Name() string
}

func NewSender(cfg config.ReplyConfig) (Sender, error) {
	switch cfg.Provider {
	case "", "smtp":
		return NewSMTPSender(cfg.SMTP), nil
	case "sendgrid":
		return NewSendGridSender(cfg.SendGridAPIKey), nil
	case "resend":
		return NewResendSender(cfg.ResendAPIKey), nil
	}
	return nil, fmt.Errorf("%w: %s (smtp, sendgrid or resend)", ErrUnknownProvider, cfg.Provider)
}

// NewMessageID returns a unique "<uuid@domain>" identifier using the
// domain of from.
func NewMessageID(from string) string {
	domain := "mailflow.local"
	if at := strings.LastIndex(from, "@"); at >= 0 && at < len(from)-1 {
		domain = from[at+1:]
	}
	return fmt.Sprintf("<%s@%s>", uuid.NewString(), domain)
}

// ValidateEmail checks for injection characters and RFC 5322 compliance
func ValidateEmail(email string) error {
	if strings.ContainsAny(email, "\r\n,;") {
		return fmt.Errorf("email contains invalid characters")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return fmt.Errorf("invalid email format: %w", err)
	}
	return nil
}

// validateMessage rejects addresses and header values that could inject
// headers, and fills in a Message-ID.
func validateMessage(msg *Message) error {
	if err := ValidateEmail(msg.From); err != nil {
		return fmt.Errorf("invalid sender: %w", err)
	}
	if err := ValidateEmail(msg.To); err != nil {
		return fmt.Errorf("invalid recipient: %w", err)
	}
	for name, v := range map[string]string{
		"subject":     msg.Subject,
		"from name":   msg.FromName,
		"in-reply-to": msg.InReplyTo,
		"message-id":  msg.MessageID,
	} {
		if strings.ContainsAny(v, "\r\n") {
			return fmt.Errorf("%s contains invalid characters", name)
		}
	}
	if msg.MessageID == "" {
		msg.MessageID = NewMessageID(msg.From)
	}
	return nil
}
