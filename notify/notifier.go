package notify

import (
	"context"
	"errors"

	"github.com/insalol/reportwatch/mastodon"
)

// Interface for a type that can deliver watchdog notifications to humans
type Notifier interface {
	// Sends msg along with a summary of the report which caused it
	SendReport(ctx context.Context, msg string, report *mastodon.Report) error
	SendText(ctx context.Context, msg string) error
}

// Fans out to every notifier, attempting all of them even if some fail.
type Multi []Notifier

func (m Multi) SendReport(ctx context.Context, msg string, report *mastodon.Report) error {
	var errs []error
	for _, n := range m {
		if err := n.SendReport(ctx, msg, report); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) SendText(ctx context.Context, msg string) error {
	var errs []error
	for _, n := range m {
		if err := n.SendText(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
