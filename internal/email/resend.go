package email

import (
	"context"
	"fmt"
	"net/url"

	"github.com/resend/resend-go/v2"
)

// ResendSender delivers through the Resend HTTP API.
type ResendSender struct {
	client *resend.Client
}

func NewResendSender(apiKey string) *ResendSender {
	return &ResendSender{client: resend.NewClient(apiKey)}
}

// WithBaseURL points the client at another API root.
func (s *ResendSender) WithBaseURL(u *url.URL) *ResendSender {
	s.client.BaseURL = u
	return s
}

func (s *ResendSender) Name() string { return "resend" }

func (s *ResendSender) Send(ctx context.Context, msg Message) Result {
	if err := validateMessage(&msg); err != nil {
		return Result{Success: false, Error: err}
	}

	sent, err := s.client.Emails.SendWithContext(ctx, resendRequest(msg))
	if err != nil {
		return Result{Success: false, Error: fmt.Errorf("resend request failed: %w", err)}
	}

	res := Result{Success: true, MessageID: msg.MessageID}
	if sent != nil {
		res.ProviderID = sent.Id
	}
	return res
}

func resendRequest(msg Message) *resend.SendEmailRequest {
	from := msg.From
	if msg.FromName != "" {
		from = fmt.Sprintf("%s <%s>", msg.FromName, msg.From)
	}
	req := &resend.SendEmailRequest{
		From:    from,
		To:      []string{msg.To},
		Subject: msg.Subject,
		Text:    msg.Body,
	}
	req.Headers = map[string]string{"Message-ID": msg.MessageID}
	if msg.InReplyTo != "" {
		req.Headers["In-Reply-To"] = msg.InReplyTo
		req.Headers["References"] = msg.InReplyTo
	}
	return req
}
