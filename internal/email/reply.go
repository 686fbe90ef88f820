package email

import (
	"context"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"github.com/mailflow-app/mailflow/internal/config"
	"github.com/mailflow-app/mailflow/internal/inbox"
	"github.com/mailflow-app/mailflow/internal/template"
)

const (
	breakerFailures = 3
	breakerCooldown = 5 * time.Minute
)

// Replier renders suggested replies and sends them as answers to the
// original message. After repeated provider failures it stops calling the
// provider for a cooldown period and fails fast with gobreaker.ErrOpenState.
type Replier struct {
	sender Sender
	engine *template.Engine
	cfg    config.ReplyConfig
	cb     *gobreaker.CircuitBreaker
}

func NewReplier(sender Sender, engine *template.Engine, cfg config.ReplyConfig) *Replier {
	settings := gobreaker.Settings{
		Name:        "reply-" + sender.Name(),
		MaxRequests: 1,
		Timeout:     breakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerFailures
		},
	}
	return &Replier{sender: sender, engine: engine, cfg: cfg, cb: gobreaker.NewCircuitBreaker(settings)}
}

// Reply sends body to the sender of original and returns the reply's
// Message-ID.
func (r *Replier) Reply(ctx context.Context, original *inbox.Email, body string) (string, error) {
	rendered, err := r.engine.Render(r.cfg.Template, body, r.cfg.Signature, template.Original{
		From:       original.From,
		FromName:   original.FromName,
		Subject:    original.Subject,
		Body:       original.PlainBody(),
		ReceivedAt: original.ReceivedAt,
	})
	if err != nil {
		return "", err
	}

	msg := Message{
		To:        original.From,
		From:      r.cfg.From,
		FromName:  r.cfg.FromName,
		Subject:   rendered.Subject,
		Body:      rendered.Body,
		InReplyTo: original.MessageID,
	}
	id, err := r.cb.Execute(func() (interface{}, error) {
		result := r.sender.Send(ctx, msg)
		if !result.Success {
			if result.Error == nil {
				return nil, fmt.Errorf("send failed")
			}
			return nil, result.Error
		}
		return result.MessageID, nil
	})
	if err != nil {
		return "", fmt.Errorf("%s: %w", r.sender.Name(), err)
	}
	return id.(string), nil
}
