package mail

import (
	"bytes"
	"context"
	"fmt"
	"log"

	"go.uber.org/atomic"
)

// ImageSaver persists an attachment and returns the stored name.
type ImageSaver interface {
	Save(originalName string, data []byte) (string, error)
}

// Status is the email section of the status endpoint.
type Status struct {
	Connected bool `json:"connected"`
}

// Poller drains the inbox into the image store. Poll is meant to be called
// from a single scheduled job; it reconnects when the previous cycle lost
// the connection.
type Poller struct {
	mailbox Mailbox
	filter  Filter
	saver   ImageSaver

	connected *atomic.Bool
}

// NewPoller wires a mailbox to an image saver.
func NewPoller(mailbox Mailbox, filter Filter, saver ImageSaver) *Poller {
	return &Poller{
		mailbox:   mailbox,
		filter:    filter,
		saver:     saver,
		connected: atomic.NewBool(false),
	}
}

// Poll runs one cycle: connect when disconnected, then ingest unseen mail.
func (p *Poller) Poll(ctx context.Context) error {
	if !p.connected.Load() {
		if err := p.mailbox.Connect(ctx); err != nil {
			return fmt.Errorf("mail: connect: %w", err)
		}
		p.connected.Store(true)
		log.Println("INFO: mail: connected")
	}

	saved, err := p.check(ctx)
	if err != nil {
		p.disconnect()
		return err
	}
	if saved > 0 {
		log.Printf("INFO: mail: saved %d new image(s)", saved)
	}
	return nil
}

func (p *Poller) check(ctx context.Context) (int, error) {
	msgs, err := p.mailbox.Unseen(ctx)
	if err != nil {
		return 0, fmt.Errorf("mail: fetch unseen: %w", err)
	}
	if len(msgs) == 0 {
		return 0, nil
	}
	log.Printf("INFO: mail: found %d new emails", len(msgs))

	saved := 0
	uids := make([]uint32, 0, len(msgs))
	for _, raw := range msgs {
		uids = append(uids, raw.UID)
		saved += p.ingest(raw)
	}

	// Every fetched message is marked read, accepted or not, so it is not
	// re-evaluated next cycle.
	if err := p.mailbox.MarkSeen(ctx, uids); err != nil {
		log.Printf("ERROR: mail: failed to mark emails as read: %v", err)
	}
	return saved, nil
}

func (p *Poller) ingest(raw RawMessage) int {
	msg, err := Parse(bytes.NewReader(raw.Data))
	if err != nil {
		log.Printf("ERROR: mail: parse uid %d: %v", raw.UID, err)
		return 0
	}

	if ok, reason := p.filter.Accept(msg); !ok {
		log.Printf("INFO: mail: ignoring email from %s with subject %q: %s", msg.From, msg.Subject, reason)
		return 0
	}
	log.Printf("INFO: mail: valid slideshow email from %s with subject %q", msg.From, msg.Subject)

	saved := 0
	for _, a := range msg.Attachments {
		name, err := p.saver.Save(a.Filename, a.Data)
		if err != nil {
			log.Printf("ERROR: mail: failed to save %q: %v", a.Filename, err)
			continue
		}
		log.Printf("DEBUG: mail: stored %q as %s", a.Filename, name)
		saved++
	}
	return saved
}

func (p *Poller) disconnect() {
	p.connected.Store(false)
	if err := p.mailbox.Close(); err != nil {
		log.Printf("WARN: mail: close: %v", err)
	}
}

// Stop closes the mailbox connection.
func (p *Poller) Stop() {
	if p.connected.Load() {
		p.disconnect()
	}
}

// Status reports whether the inbox connection is up.
func (p *Poller) Status() Status {
	return Status{Connected: p.connected.Load()}
}
