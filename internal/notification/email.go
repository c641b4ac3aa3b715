// Package notification sends the manager's optional disablement email
// notice (SPEC_FULL.md §3.4), adapted from the teacher's
// internal/notification/email.go EmailNotifier.
package notification

import (
	"bytes"
	"fmt"
	"html/template"
	"net/smtp"
	"time"
)

// Config carries the SMTP settings needed to send a notice.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       string
}

// Enabled reports whether credentials were supplied.
func (c Config) Enabled() bool { return c.Username != "" && c.Password != "" }

// DisablementNotice describes a receiver that just crossed
// MAX_CONNECT_ERRORS+1 (spec.md §4.1).
type DisablementNotice struct {
	WorkerID      string
	IP            string
	BlastPort     int
	ConnectErrors int
	LastError     string
}

// Notifier sends disablement notices by email.
type Notifier struct {
	cfg Config
}

// NewNotifier creates a notifier bound to cfg.
func NewNotifier(cfg Config) *Notifier {
	return &Notifier{cfg: cfg}
}

const disablementTemplate = `
Blast Receiver Disabled
=======================

Worker ID: {{.WorkerID}}
Address: {{.IP}}:{{.BlastPort}}
Connect Errors: {{.ConnectErrors}}
Last Error: {{.LastError}}

This receiver has exceeded MAX_CONNECT_ERRORS and will not be offered to
senders until it re-registers.

---
blastmesh manager notification
`

// SendDisablementNotice emails notice, or logs-and-skips if SMTP isn't
// configured, mirroring the teacher's sendEmail skip-if-unconfigured
// behavior.
func (n *Notifier) SendDisablementNotice(notice DisablementNotice) error {
	if !n.cfg.Enabled() {
		fmt.Printf("SMTP not configured, skipping disablement email for worker %s\n", notice.WorkerID)
		return nil
	}

	t, err := template.New("disablement").Parse(disablementTemplate)
	if err != nil {
		return fmt.Errorf("failed to parse disablement template: %w", err)
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, notice); err != nil {
		return fmt.Errorf("failed to render disablement template: %w", err)
	}

	subject := fmt.Sprintf("blastmesh: receiver %s disabled", notice.WorkerID)

	message := fmt.Sprintf("From: %s\r\n", n.cfg.From)
	message += fmt.Sprintf("To: %s\r\n", n.cfg.To)
	message += fmt.Sprintf("Subject: %s\r\n", subject)
	message += fmt.Sprintf("Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	message += "\r\n"
	message += buf.String()

	auth := smtp.PlainAuth("", n.cfg.Username, n.cfg.Password, n.cfg.Host)
	addr := fmt.Sprintf("%s:%d", n.cfg.Host, n.cfg.Port)

	if err := smtp.SendMail(addr, auth, n.cfg.From, []string{n.cfg.To}, []byte(message)); err != nil {
		return fmt.Errorf("failed to send disablement email: %w", err)
	}

	fmt.Printf("Disablement email sent for worker %s\n", notice.WorkerID)
	return nil
}
