package headless

import (
	"context"
	"errors"

	"github.com/JakeFAU/webspider/pkg/spider"
)

// ErrNotConfigured is returned by Noop.
var ErrNotConfigured = errors.New("headless transport not configured")

// Noop implements spider.Transport but always fails, for runs with headless
// rendering turned off.
type Noop struct{}

// NewNoop creates a new Noop transport.
func NewNoop() *Noop {
	return &Noop{}
}

// Execute returns ErrNotConfigured.
func (Noop) Execute(context.Context, *spider.Request) (*spider.Response, error) {
	return nil, ErrNotConfigured
}
