// Package notify tells the user that the adapter is about to be, or has been, switched off
package notify

import (
	"errors"
	"fmt"
	"time"

	"github.com/hannesrauhe/bttimeout/base"
	"github.com/hannesrauhe/bttimeout/utils"
)

// Kind distinguishes warnings from the final message
type Kind string

const (
	KindWarning    Kind = "warning"
	KindPoweredOff Kind = "powered_off"
)

// Notification is rendered by every backend in its own way
type Notification struct {
	Kind      Kind
	Title     string
	Body      string
	Icon      string        // freedesktop icon name
	Remaining time.Duration // 0 for KindPoweredOff
	// identifies the timeout session, desktop notifications only replace ones of the same session
	Session string
}

// Warning announces that the adapter will be switched off in remaining
func Warning(remaining time.Duration) Notification {
	return Notification{
		Kind:      KindWarning,
		Title:     "Bluetooth Timeout Warning",
		Body:      fmt.Sprintf("Bluetooth adapter will turn off in %s due to inactivity.", utils.HumanDuration(remaining)),
		Icon:      "bluetooth-symbolic",
		Remaining: remaining,
	}
}

// PoweredOff reports that the adapter was switched off
func PoweredOff() Notification {
	return Notification{
		Kind:  KindPoweredOff,
		Title: "Bluetooth Adapter Turned Off",
		Body:  "Bluetooth adapter has been turned off due to inactivity.",
		Icon:  "bluetooth-disabled-symbolic",
	}
}

// Notifier delivers a Notification. Implementations must be safe for concurrent use.
type Notifier interface {
	Notify(ctx *base.Context, n Notification) error
}

// Multi sends every notification to all of its notifiers, a failing notifier does not stop the
// others
type Multi []Notifier

var _ Notifier = Multi{}

func (m Multi) Notify(ctx *base.Context, n Notification) error {
	var errs []error
	for _, notifier := range m {
		if err := notifier.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard drops all notifications, it is used when notifications are disabled
type Discard struct{}

func (Discard) Notify(ctx *base.Context, n Notification) error {
	ctx.GetLogger().Debugf("Notifications disabled, dropping \"%v\"", n.Title)
	return nil
}
