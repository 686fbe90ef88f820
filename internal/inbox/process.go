package inbox

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/mailflow-app/mailflow/internal/triage"
)

// Classifier scores a message text.
type Classifier interface {
	Explain(text string) triage.Explanation
}

// Ledger records which messages were already handled so rescans of the same
// window do not reply twice.
type Ledger interface {
	Seen(ctx context.Context, key string) (bool, error)
	MarkHandled(ctx context.Context, key, runID, mailbox string, uid uint32, replyID string) error
}

// Replier delivers the suggested reply for a message and returns the
// Message-ID of the sent reply.
type Replier interface {
	Reply(ctx context.Context, original *Email, body string) (string, error)
}

// Outcome is what happened to one message.
type Outcome struct {
	Email       Email
	Explanation triage.Explanation
	Duplicate   bool   // Already in the ledger; nothing else was done
	ReplyID     string // Set when a reply was sent
}

// Category is a shortcut for the triage decision.
func (o Outcome) Category() triage.Category { return o.Explanation.Category }

// Processor classifies messages and performs the configured side effects.
// Ledger and Replier are optional.
type Processor struct {
	Classifier Classifier
	Ledger     Ledger
	Replier    Replier
	RunID      string
	DryRun     bool // Classify only; no replies and no ledger writes
	Log        zerolog.Logger
}

// Process handles one message. Only productive messages get a reply, and a
// message found in the ledger is reported as a duplicate without being
// classified again.
func (p *Processor) Process(ctx context.Context, e Email) (Outcome, error) {
	out := Outcome{Email: e}
	key := e.Key()

	if p.Ledger != nil {
		seen, err := p.Ledger.Seen(ctx, key)
		if err != nil {
			return out, fmt.Errorf("ledger lookup for %s: %w", key, err)
		}
		if seen {
			out.Duplicate = true
			p.Log.Debug().Str("message_id", key).Msg("already handled, skipping")
			return out, nil
		}
	}

	start := time.Now()
	out.Explanation = p.Classifier.Explain(e.Text())

	p.Log.Info().
		Str("message_id", key).
		Str("from", e.From).
		Str("category", out.Category().String()).
		Int("score", out.Explanation.Score).
		Dur("took", time.Since(start)).
		Msg("classified message")

	if p.DryRun {
		return out, nil
	}

	if p.Replier != nil && out.Category() == triage.Productive && e.From != "" {
		id, err := p.Replier.Reply(ctx, &e, out.Explanation.SuggestedReply)
		if err != nil {
			return out, fmt.Errorf("reply to %s: %w", key, err)
		}
		out.ReplyID = id
		p.Log.Info().Str("message_id", key).Str("reply_id", id).Str("to", e.From).Msg("sent reply")
	}

	if p.Ledger != nil {
		if err := p.Ledger.MarkHandled(ctx, key, p.RunID, e.Mailbox, e.UID, out.ReplyID); err != nil {
			return out, fmt.Errorf("ledger write for %s: %w", key, err)
		}
	}
	return out, nil
}

// Summary aggregates outcomes of one run.
type Summary struct {
	Total        int
	Productive   int
	Unproductive int
	Duplicates   int
	Replied      int
}

// Summarize counts outcomes by category. Duplicates are counted apart and
// excluded from the category totals.
func Summarize(outcomes []Outcome) Summary {
	var s Summary
	for _, o := range outcomes {
		s.Total++
		if o.Duplicate {
			s.Duplicates++
			continue
		}
		if o.Category() == triage.Productive {
			s.Productive++
		} else {
			s.Unproductive++
		}
		if o.ReplyID != "" {
			s.Replied++
		}
	}
	return s
}

// UnproductiveUIDs returns the UIDs of freshly classified unproductive
// messages, the set moved out of the inbox when auto_sort is on.
func UnproductiveUIDs(outcomes []Outcome) []uint32 {
	var uids []uint32
	for _, o := range outcomes {
		if o.Duplicate || o.Category() != triage.Unproductive || o.Email.UID == 0 {
			continue
		}
		uids = append(uids, o.Email.UID)
	}
	return uids
}
