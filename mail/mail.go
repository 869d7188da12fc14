// Package mail sends the transactional emails of the auth flows.
package mail

import (
	"context"
	"fmt"
	"net/url"

	"go.uber.org/zap"
)

// Kind identifies a transactional email.
type Kind string

const (
	KindVerifyEmail   Kind = "verify_email"
	KindResetPassword Kind = "reset_password"
	KindChangeEmail   Kind = "change_email"
)

// Message is one outbound email.
type Message struct {
	Kind    Kind
	To      string
	Subject string
	Link    string
}

// Sender delivers a message. Implementations must honour ctx.
type Sender func(ctx context.Context, msg Message) error

// Links builds the frontend URLs carried by emails.
type Links struct {
	BaseURL string
}

// Verify is the email verification link for token.
func (l Links) Verify(token string) string { return l.with("/verify-email", token) }

// Reset is the password reset link for token.
func (l Links) Reset(token string) string { return l.with("/reset-password", token) }

// ChangeEmail is the email change confirmation link for token.
func (l Links) ChangeEmail(token string) string { return l.with("/verify-email-change", token) }

func (l Links) with(path, token string) string {
	return fmt.Sprintf("%s%s?token=%s", l.BaseURL, path, url.QueryEscape(token))
}

var subjects = map[Kind]string{
	KindVerifyEmail:   "Verify your email",
	KindResetPassword: "Reset your password",
	KindChangeEmail:   "Confirm your new email",
}

// New fills in the subject for kind.
func New(kind Kind, to, link string) Message {
	return Message{Kind: kind, To: to, Subject: subjects[kind], Link: link}
}

// LogSender writes messages to the log instead of delivering them. It is the
// sender for local runs and tests.
func LogSender(log *zap.Logger) Sender {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("mail")
	return func(ctx context.Context, msg Message) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		log.Info("email",
			zap.String("kind", string(msg.Kind)),
			zap.String("to", msg.To),
			zap.String("subject", msg.Subject),
			zap.String("link", msg.Link))
		return nil
	}
}
