package inbox

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailflow-app/mailflow/internal/triage"
)

type memLedger struct {
	handled map[string]string
	failOn  string
}

func newMemLedger() *memLedger { return &memLedger{handled: map[string]string{}} }

func (l *memLedger) Seen(_ context.Context, key string) (bool, error) {
	if key == l.failOn {
		return false, errors.New("disk on fire")
	}
	_, ok := l.handled[key]
	return ok, nil
}

func (l *memLedger) MarkHandled(_ context.Context, key, _, _ string, _ uint32, replyID string) error {
	l.handled[key] = replyID
	return nil
}

type fakeReplier struct {
	sent []string
	err  error
}

func (r *fakeReplier) Reply(_ context.Context, original *Email, body string) (string, error) {
	if r.err != nil {
		return "", r.err
	}
	r.sent = append(r.sent, original.From+": "+body)
	return "<reply-" + original.Key() + ">", nil
}

func newProcessor(l Ledger, r Replier) *Processor {
	return &Processor{
		Classifier: triage.New(nil),
		Ledger:     l,
		Replier:    r,
		RunID:      "run-1",
		Log:        zerolog.New(io.Discard),
	}
}

var (
	productiveEmail = Email{
		UID: 1, Mailbox: "INBOX", MessageID: "<p@x>", From: "cliente@x.com",
		Subject: "Pedido 4321", Body: "Qual o status da entrega?",
	}
	unproductiveEmail = Email{
		UID: 2, Mailbox: "INBOX", MessageID: "<u@x>", From: "amigo@x.com",
		Subject: "Feliz natal", Body: "Obrigado por tudo!",
	}
)

func TestProcessRepliesToProductiveOnly(t *testing.T) {
	ledger := newMemLedger()
	replier := &fakeReplier{}
	p := newProcessor(ledger, replier)
	ctx := context.Background()

	out, err := p.Process(ctx, productiveEmail)
	require.NoError(t, err)
	assert.Equal(t, triage.Productive, out.Category())
	assert.Equal(t, "<reply-<p@x>>", out.ReplyID)
	require.Len(t, replier.sent, 1)
	assert.Contains(t, replier.sent[0], "pedido 4321")

	out, err = p.Process(ctx, unproductiveEmail)
	require.NoError(t, err)
	assert.Equal(t, triage.Unproductive, out.Category())
	assert.Empty(t, out.ReplyID)
	assert.Len(t, replier.sent, 1)

	assert.Len(t, ledger.handled, 2)
}

func TestProcessSkipsHandledMessages(t *testing.T) {
	ledger := newMemLedger()
	replier := &fakeReplier{}
	p := newProcessor(ledger, replier)
	ctx := context.Background()

	_, err := p.Process(ctx, productiveEmail)
	require.NoError(t, err)
	out, err := p.Process(ctx, productiveEmail)
	require.NoError(t, err)

	assert.True(t, out.Duplicate)
	assert.Len(t, replier.sent, 1)
}

func TestProcessDryRun(t *testing.T) {
	ledger := newMemLedger()
	replier := &fakeReplier{}
	p := newProcessor(ledger, replier)
	p.DryRun = true

	out, err := p.Process(context.Background(), productiveEmail)
	require.NoError(t, err)
	assert.Equal(t, triage.Productive, out.Category())
	assert.Empty(t, replier.sent)
	assert.Empty(t, ledger.handled)
}

func TestProcessErrors(t *testing.T) {
	ledger := newMemLedger()
	ledger.failOn = productiveEmail.Key()
	_, err := newProcessor(ledger, nil).Process(context.Background(), productiveEmail)
	assert.ErrorContains(t, err, "ledger lookup")

	ledger = newMemLedger()
	_, err = newProcessor(ledger, &fakeReplier{err: errors.New("smtp down")}).Process(context.Background(), productiveEmail)
	assert.ErrorContains(t, err, "smtp down")
	assert.Empty(t, ledger.handled, "failed replies must stay retryable")
}

func TestProcessWithoutCollaborators(t *testing.T) {
	out, err := newProcessor(nil, nil).Process(context.Background(), productiveEmail)
	require.NoError(t, err)
	assert.Equal(t, triage.Productive, out.Category())
}

func TestSummarizeAndUnproductiveUIDs(t *testing.T) {
	p := newProcessor(newMemLedger(), &fakeReplier{})
	ctx := context.Background()

	var outcomes []Outcome
	for _, e := range []Email{productiveEmail, unproductiveEmail, productiveEmail} {
		out, err := p.Process(ctx, e)
		require.NoError(t, err)
		outcomes = append(outcomes, out)
	}

	assert.Equal(t, Summary{Total: 3, Productive: 1, Unproductive: 1, Duplicates: 1, Replied: 1}, Summarize(outcomes))
	assert.Equal(t, []uint32{2}, UnproductiveUIDs(outcomes))
}
