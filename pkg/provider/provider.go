// Package provider defines the capability surface of a meeting product
// (link parsing, page navigation, join flow, end-of-meeting detection).
// Concrete implementations live outside this module; the session core only
// ever talks through these interfaces.
package provider

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Credentials are the parts of a meeting URL the provider needs to join.
type Credentials struct {
	ID       string
	Password string
}

// JoinParams carries the per-session join settings.
type JoinParams struct {
	BotName       string
	Role          string
	RecordingMode string
	// WaitingRoomTimeout bounds how long JoinMeeting may block waiting
	// to be admitted.
	WaitingRoomTimeout time.Duration
}

// BrowserSession is an opaque handle on an acquired browser.
type BrowserSession interface {
	Close() error
}

// Page is an opaque handle on an open meeting page.
type Page interface {
	Close() error
}

// Browser acquires browser sessions for a provider to drive.
type Browser interface {
	Acquire(ctx context.Context) (BrowserSession, error)
}

// MeetingProvider is the per-product join capability. Implementations are
// selected once at session construction and never type-switched on.
type MeetingProvider interface {
	// ParseMeetingURL extracts join credentials from a raw URL.
	ParseMeetingURL(rawURL string) (Credentials, error)

	// GetMeetingLink builds the link the bot navigates to.
	GetMeetingLink(id, password, role, botName string) string

	// OpenMeetingPage navigates the browser session to the link.
	OpenMeetingPage(ctx context.Context, session BrowserSession, link string) (Page, error)

	// JoinMeeting drives the join flow. It returns a *JoinError on any
	// known failure mode and polls cancelled between steps so an external
	// stop request interrupts the wait.
	JoinMeeting(ctx context.Context, page Page, cancelled func() bool, params JoinParams) error

	// FindEndMeeting reports whether the meeting has ended, including the
	// frozen-page fallback via text recognition on recent frames.
	FindEndMeeting(params JoinParams, page Page) bool
}

// CaptureController starts and stops the in-page media capture.
type CaptureController interface {
	StartCapture(ctx context.Context, page Page) error
	StopCapture(ctx context.Context, page Page) error
	PauseCapture(ctx context.Context, page Page) error
	ResumeCapture(ctx context.Context, page Page) error
}

// Driver bundles everything a session needs to drive one meeting product.
type Driver struct {
	Provider MeetingProvider
	Browser  Browser
	Capture  CaptureController
}

var (
	driversMu sync.RWMutex
	drivers   = make(map[string]Driver)
)

// Register makes a driver available under the given name. Concrete
// provider packages call this from their init.
func Register(name string, d Driver) {
	driversMu.Lock()
	defer driversMu.Unlock()
	drivers[name] = d
}

// Lookup returns the driver registered under name.
func Lookup(name string) (Driver, bool) {
	driversMu.RLock()
	defer driversMu.RUnlock()
	d, ok := drivers[name]
	return d, ok
}

// Names lists the registered driver names, sorted.
func Names() []string {
	driversMu.RLock()
	defer driversMu.RUnlock()
	names := make([]string, 0, len(drivers))
	for name := range drivers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
