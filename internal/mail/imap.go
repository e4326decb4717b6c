package mail

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
)

// RawMessage is a fetched, still unparsed message.
type RawMessage struct {
	UID  uint32
	Data []byte
}

// Mailbox is the remote inbox the poller drains.
type Mailbox interface {
	Connect(ctx context.Context) error
	Unseen(ctx context.Context) ([]RawMessage, error)
	MarkSeen(ctx context.Context, uids []uint32) error
	Close() error
}

var errNotConnected = errors.New("imap: not connected")

// IMAPConfig holds the inbox connection settings.
type IMAPConfig struct {
	Host               string
	Port               int
	User               string
	Password           string
	Folder             string
	InsecureSkipVerify bool
	Timeout            time.Duration
}

// IMAPMailbox talks to an IMAP server over implicit TLS.
type IMAPMailbox struct {
	cfg IMAPConfig

	mu sync.Mutex
	c  *client.Client
}

// NewIMAPMailbox creates an unconnected mailbox.
func NewIMAPMailbox(cfg IMAPConfig) *IMAPMailbox {
	if cfg.Port == 0 {
		cfg.Port = 993
	}
	if cfg.Folder == "" {
		cfg.Folder = "INBOX"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &IMAPMailbox{cfg: cfg}
}

// Connect dials, logs in and selects the folder read-write.
func (m *IMAPMailbox) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.cfg.Host == "" || m.cfg.User == "" {
		return fmt.Errorf("imap: host and user must be configured")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeLocked()

	addr := net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))
	dialer := &net.Dialer{Timeout: m.cfg.Timeout}
	c, err := client.DialWithDialerTLS(dialer, addr, &tls.Config{
		ServerName:         m.cfg.Host,
		InsecureSkipVerify: m.cfg.InsecureSkipVerify,
	})
	if err != nil {
		return fmt.Errorf("imap: dial %s: %w", addr, err)
	}
	c.Timeout = m.cfg.Timeout

	if err := c.Login(m.cfg.User, m.cfg.Password); err != nil {
		c.Logout()
		return fmt.Errorf("imap: login: %w", err)
	}
	if _, err := c.Select(m.cfg.Folder, false); err != nil {
		c.Logout()
		return fmt.Errorf("imap: select %s: %w", m.cfg.Folder, err)
	}

	m.c = c
	return nil
}

// Unseen fetches the full body of every message without the \Seen flag.
func (m *IMAPMailbox) Unseen(ctx context.Context) ([]RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.c == nil {
		return nil, errNotConnected
	}

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	uids, err := m.c.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("imap: search: %w", err)
	}
	if len(uids) == 0 {
		return nil, nil
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(uids...)
	section := &imap.BodySectionName{}
	items := []imap.FetchItem{section.FetchItem(), imap.FetchUid}

	messages := make(chan *imap.Message, 10)
	done := make(chan error, 1)
	go func() {
		done <- m.c.UidFetch(seqset, items, messages)
	}()

	var out []RawMessage
	var readErr error
	for msg := range messages {
		body := msg.GetBody(section)
		if body == nil {
			continue
		}
		data, err := io.ReadAll(body)
		if err != nil && readErr == nil {
			readErr = fmt.Errorf("imap: read uid %d: %w", msg.Uid, err)
			continue
		}
		out = append(out, RawMessage{UID: msg.Uid, Data: data})
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("imap: fetch: %w", err)
	}
	return out, readErr
}

// MarkSeen adds \Seen to the given messages.
func (m *IMAPMailbox) MarkSeen(ctx context.Context, uids []uint32) error {
	if len(uids) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.c == nil {
		return errNotConnected
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(uids...)
	item := imap.FormatFlagsOp(imap.AddFlags, true)
	if err := m.c.UidStore(seqset, item, []interface{}{imap.SeenFlag}, nil); err != nil {
		return fmt.Errorf("imap: mark seen: %w", err)
	}
	return nil
}

// Close logs out and drops the connection.
func (m *IMAPMailbox) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closeLocked()
}

func (m *IMAPMailbox) closeLocked() error {
	if m.c == nil {
		return nil
	}
	err := m.c.Logout()
	m.c = nil
	return err
}
