package email

import "context"

// Sender delivers transactional email with both plain-text and HTML bodies.
type Sender interface {
	Send(ctx context.Context, to, subject, textBody, htmlBody string) error
}
