package inbox

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
	"github.com/rs/zerolog"

	"github.com/mailflow-app/mailflow/internal/config"
)

const fetchBatchSize = 50

// Monitor handles the IMAP connection to the triaged mailbox
type Monitor struct {
	config config.InboxConfig
	client *client.Client
	log    zerolog.Logger
}

// NewMonitor creates a new inbox monitor
func NewMonitor(cfg config.InboxConfig, log zerolog.Logger) *Monitor {
	return &Monitor{
		config: cfg,
		log:    log.With().Str("component", "inbox").Str("folder", cfg.Folder).Logger(),
	}
}

// Connect establishes IMAP connection
func (m *Monitor) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	addr := fmt.Sprintf("%s:%d", m.config.Server, m.config.Port)

	m.log.Info().Str("addr", addr).Msg("connecting to IMAP server")

	c, err := client.DialTLS(addr, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to IMAP server: %w", err)
	}

	if err := c.Login(m.config.Email, m.config.Password); err != nil {
		c.Logout()
		return fmt.Errorf("failed to login: %w", err)
	}

	m.client = c
	m.log.Info().Str("user", m.config.Email).Msg("login successful")
	return nil
}

// Disconnect closes the IMAP connection
func (m *Monitor) Disconnect() error {
	if m.client != nil {
		return m.client.Logout()
	}
	return nil
}

// FetchRecent fetches messages received in the last N days from the
// configured folder
func (m *Monitor) FetchRecent(ctx context.Context, days int) ([]Email, error) {
	if m.client == nil {
		return nil, fmt.Errorf("not connected to IMAP server")
	}

	mbox, err := m.client.Select(m.config.Folder, false)
	if err != nil {
		return nil, fmt.Errorf("failed to select mailbox %s: %w", m.config.Folder, err)
	}
	if mbox.Messages == 0 {
		return nil, nil
	}

	since := time.Now().AddDate(0, 0, -days)
	criteria := imap.NewSearchCriteria()
	criteria.Since = since

	uids, err := m.client.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("failed to search emails: %w", err)
	}

	m.log.Info().Int("count", len(uids)).Str("since", since.Format("2006-01-02")).Msg("found messages")

	var emails []Email
	for i := 0; i < len(uids); i += fetchBatchSize {
		if err := ctx.Err(); err != nil {
			return emails, err
		}
		end := min(i+fetchBatchSize, len(uids))

		seqSet := new(imap.SeqSet)
		seqSet.AddNum(uids[i:end]...)

		batch, err := m.fetch(seqSet)
		if err != nil {
			return emails, err
		}
		emails = append(emails, batch...)
	}
	return emails, nil
}

// fetch retrieves envelope and body for the UIDs in seqSet without
// setting the \Seen flag.
func (m *Monitor) fetch(seqSet *imap.SeqSet) ([]Email, error) {
	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchEnvelope, imap.FetchUid, section.FetchItem()}

	messages := make(chan *imap.Message, fetchBatchSize)
	done := make(chan error, 1)
	go func() {
		done <- m.client.UidFetch(seqSet, items, messages)
	}()

	var emails []Email
	for msg := range messages {
		email := m.parseMessage(msg, section)
		if email != nil {
			emails = append(emails, *email)
		}
	}

	if err := <-done; err != nil {
		return emails, fmt.Errorf("failed to fetch messages: %w", err)
	}
	return emails, nil
}

// parseMessage converts an IMAP message to our Email struct
func (m *Monitor) parseMessage(msg *imap.Message, section *imap.BodySectionName) *Email {
	if msg == nil || msg.Envelope == nil {
		return nil
	}

	email := &Email{
		UID:        msg.Uid,
		Mailbox:    m.config.Folder,
		MessageID:  msg.Envelope.MessageId,
		Subject:    msg.Envelope.Subject,
		ReceivedAt: msg.Envelope.Date,
	}

	if len(msg.Envelope.From) > 0 {
		from := msg.Envelope.From[0]
		email.From = from.Address()
		email.FromName = from.PersonalName
		email.FromDomain = strings.ToLower(from.HostName)
	}

	r := msg.GetBody(section)
	if r == nil {
		return email
	}

	mr, err := mail.CreateReader(r)
	if err != nil && !message.IsUnknownCharset(err) {
		m.log.Warn().Err(err).Uint32("uid", msg.Uid).Msg("failed to parse message body")
		return email
	}
	readParts(mr, email)
	mr.Close()
	return email
}

// Watch blocks in IMAP IDLE and calls fn for every message that arrives
// after the call started. It returns when ctx is cancelled.
func (m *Monitor) Watch(ctx context.Context, fn func(Email)) error {
	if m.client == nil {
		return fmt.Errorf("not connected to IMAP server")
	}

	mbox, err := m.client.Select(m.config.Folder, false)
	if err != nil {
		return fmt.Errorf("failed to select mailbox: %w", err)
	}
	lastUID := uint32(0)
	if mbox.UidNext > 0 {
		lastUID = mbox.UidNext - 1
	}

	updates := make(chan client.Update, 8)
	m.client.Updates = updates
	defer func() { m.client.Updates = nil }()

	stop := make(chan struct{})
	idleDone := make(chan error, 1)
	go func() {
		idleDone <- m.client.Idle(stop, nil)
	}()

	m.log.Info().Uint32("last_uid", lastUID).Msg("watching for new messages")

	for {
		select {
		case <-ctx.Done():
			close(stop)
			<-idleDone
			return ctx.Err()
		case update := <-updates:
			if _, ok := update.(*client.MailboxUpdate); !ok {
				continue
			}
			close(stop)
			if err := <-idleDone; err != nil {
				return fmt.Errorf("IDLE error: %w", err)
			}

			seqSet := new(imap.SeqSet)
			seqSet.AddRange(lastUID+1, 0)
			emails, err := m.fetch(seqSet)
			if err != nil {
				m.log.Error().Err(err).Msg("failed to fetch new messages")
			}
			for _, email := range emails {
				// "n:*" also returns the newest message when n is past the end
				if email.UID <= lastUID {
					continue
				}
				lastUID = email.UID
				fn(email)
			}

			stop = make(chan struct{})
			go func() {
				idleDone <- m.client.Idle(stop, nil)
			}()
		case err := <-idleDone:
			if err != nil {
				return fmt.Errorf("IDLE error: %w", err)
			}
			return nil
		}
	}
}

// EnsureFolder creates a folder/label if it doesn't already exist
func (m *Monitor) EnsureFolder(name string) error {
	if m.client == nil {
		return fmt.Errorf("not connected to IMAP server")
	}

	mailboxes := make(chan *imap.MailboxInfo, 10)
	done := make(chan error, 1)
	go func() {
		done <- m.client.List("", "*", mailboxes)
	}()

	exists := false
	for mbox := range mailboxes {
		if strings.EqualFold(mbox.Name, name) {
			exists = true
		}
	}
	if err := <-done; err != nil {
		return fmt.Errorf("failed to list folders: %w", err)
	}
	if exists {
		return nil
	}

	if err := m.client.Create(name); err != nil {
		return fmt.Errorf("failed to create folder '%s': %w", name, err)
	}
	m.log.Info().Str("target", name).Msg("created folder")
	return nil
}

// Move moves messages from the configured folder to folder by UID
func (m *Monitor) Move(uids []uint32, folder string) error {
	if m.client == nil {
		return fmt.Errorf("not connected to IMAP server")
	}
	if len(uids) == 0 {
		return nil
	}

	if _, err := m.client.Select(m.config.Folder, false); err != nil {
		return fmt.Errorf("failed to select mailbox: %w", err)
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uids...)

	// Try MOVE first (RFC 6851)
	if err := m.client.UidMove(seqSet, folder); err != nil {
		m.log.Debug().Err(err).Msg("MOVE not supported, falling back to COPY+DELETE")

		if err := m.client.UidCopy(seqSet, folder); err != nil {
			return fmt.Errorf("failed to copy emails to '%s': %w", folder, err)
		}

		item := imap.FormatFlagsOp(imap.AddFlags, true)
		flags := []interface{}{imap.DeletedFlag}
		if err := m.client.UidStore(seqSet, item, flags, nil); err != nil {
			return fmt.Errorf("failed to mark emails as deleted: %w", err)
		}
		if err := m.client.Expunge(nil); err != nil {
			return fmt.Errorf("failed to expunge deleted emails: %w", err)
		}
	}

	m.log.Info().Int("count", len(uids)).Str("target", folder).Msg("moved messages")
	return nil
}
