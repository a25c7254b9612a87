package interfaces

import (
	"context"
	"time"
)

// ProfileLayout describes an on-disk Chrome profile directory as used by the
// browser provider.
type ProfileLayout struct {
	UserDataDir   string `json:"user_data_dir"`
	ProfileSubdir string `json:"profile_subdir"` // Always "Default" for cloned profiles
	FullPath      string `json:"full_path"`
}

// Driver is the handle to one running browser instance. A single driver is
// used by a single logical task at a time; the core makes no other
// thread-safety assumption.
type Driver interface {
	Navigate(ctx context.Context, url string) error

	// Find reports whether a DOM element matching the selector is present.
	// Absence is not an error.
	Find(ctx context.Context, selector string) (bool, error)

	SetValue(ctx context.Context, selector, value string) error
	Click(ctx context.Context, selector string) error
	Text(ctx context.Context, selector string) (string, error)

	Screenshot(ctx context.Context) ([]byte, error)
	ScreenshotElement(ctx context.Context, selector string) ([]byte, error)

	CurrentURL(ctx context.Context) (string, error)
	Sleep(ctx context.Context, d time.Duration) error

	// Shutdown releases the browser. Safe to call more than once.
	Shutdown() error
}

// BrowserProvider launches browsers bound to a profile directory. Launch
// blocks until the driver is ready and responsive.
type BrowserProvider interface {
	Launch(ctx context.Context, profile ProfileLayout) (Driver, error)
}
