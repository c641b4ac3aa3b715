package manager

import (
	"fmt"

	"github.com/nmeasure/blastmesh/internal/notification"
	"github.com/nmeasure/blastmesh/internal/registry"
)

// DisablementNotifier logs, and optionally emails, a one-shot notice the
// first time a receiver crosses MAX_CONNECT_ERRORS+1 (spec.md §4.1
// connect_failed).
type DisablementNotifier struct {
	notifier *notification.Notifier // nil when SMTP isn't configured
}

// NewDisablementNotifier creates a notifier. Pass a nil *notification.Notifier
// when SMTP isn't configured — notify still logs, it just skips the email.
func NewDisablementNotifier(notifier *notification.Notifier) *DisablementNotifier {
	return &DisablementNotifier{notifier: notifier}
}

func (d *DisablementNotifier) notify(rec *registry.Snapshot, lastError string) {
	fmt.Printf("receiver %s (%s:%d) disabled after %d connect errors: %s\n",
		rec.WorkerID, rec.IP, rec.BlastPort, rec.ConnectErrors, lastError)

	if d.notifier == nil {
		return
	}
	notice := notification.DisablementNotice{
		WorkerID:      rec.WorkerID,
		IP:            rec.IP,
		BlastPort:     rec.BlastPort,
		ConnectErrors: rec.ConnectErrors,
		LastError:     lastError,
	}
	if err := d.notifier.SendDisablementNotice(notice); err != nil {
		fmt.Printf("failed to send disablement notice: %v\n", err)
	}
}
