package interfaces

import "context"

// OCRService recognises text in an image. Used for CAPTCHA solving during
// portal login.
type OCRService interface {
	Recognize(ctx context.Context, image []byte) (string, error)
}

// ScreenshotStore uploads failure screenshots and returns a stable reference
// URL stored in the job's error log.
type ScreenshotStore interface {
	Upload(ctx context.Context, key string, image []byte) (string, error)
}
