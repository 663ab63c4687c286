package identity

import (
	"context"
	"fmt"
)

// NewLogMailer returns a Mailer that writes messages through the logger
// instead of sending them. Useful in development and tests.
func NewLogMailer(logger Logger) Mailer {
	if logger == nil {
		logger = defLogger{}
	}
	return MailerFunc(func(ctx context.Context, to, subject, htmlBody string) error {
		logger.Info("====== SENDING EMAIL NOTIFICATION =======")
		logger.Info("to: %s", to)
		logger.Info("subject: %s", subject)
		logger.Info("body: %s", htmlBody)
		return nil
	})
}

func confirmationEmail(token string) (subject, body string) {
	subject = "Confirm your email"
	body = fmt.Sprintf(
		`<p>Please confirm your account using this token:</p><p><code>%s</code></p>`,
		token,
	)
	return subject, body
}

func passwordResetEmail(token string) (subject, body string) {
	subject = "Reset your password"
	body = fmt.Sprintf(
		`<p>Use this token to reset your password:</p><p><code>%s</code></p>`,
		token,
	)
	return subject, body
}
