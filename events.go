package authcore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/veyra/authcore/dispatch"
	"github.com/veyra/authcore/otp"
)

// Domain event kinds published by the engine. The bus is open: the
// embedding application may publish and subscribe to its own kinds (orders,
// wallets) on the same dispatcher.
const (
	// EventAccountRegistered fires after a successful signup.
	EventAccountRegistered dispatch.Kind = "account.registered"
	// EventAccountVerified fires when an account transitions to verified.
	EventAccountVerified dispatch.Kind = "account.verified"
	// EventAccountSuspended fires when an account is suspended.
	EventAccountSuspended dispatch.Kind = "account.suspended"
	// EventPasswordReset fires after a completed password reset.
	EventPasswordReset dispatch.Kind = "account.password_reset"
	// EventOTPIssued fires whenever a one-time code needs delivering.
	EventOTPIssued dispatch.Kind = "otp.issued"
)

// Durable queue names served by the engine's worker pools.
const (
	// QueueEmail carries outbound mail jobs.
	QueueEmail = "email"
	// QueueNotification carries in-app notification jobs.
	QueueNotification = "in-app-notification"
)

// AccountEvent is the payload of account lifecycle events.
type AccountEvent struct {
	AccountID   string
	Email       string
	Role        string
	DisplayName string
}

// OTPIssuedEvent is the payload of EventOTPIssued. It exists only in
// process and on the email queue; the code is never logged.
type OTPIssuedEvent struct {
	Email   string
	Code    string
	Purpose otp.Purpose
}

// EmailJob is the payload persisted on the email queue.
type EmailJob struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
}

// NotificationJob is the payload persisted on the notification queue.
type NotificationJob struct {
	AccountID string            `json:"accountId"`
	Title     string            `json:"title"`
	Body      string            `json:"body"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// wireSubscribers registers the built-in listeners that turn domain events
// into durable jobs. Subscribers never perform the side effect inline.
func (e *Engine) wireSubscribers() {
	e.bus.Subscribe(EventOTPIssued, func(ctx context.Context, event dispatch.Event) error {
		payload, ok := event.Payload.(OTPIssuedEvent)
		if !ok {
			return fmt.Errorf("unexpected payload %T for %s", event.Payload, event.Kind)
		}

		subject := "Your verification code"
		if payload.Purpose == otp.PurposeReset {
			subject = "Your password reset code"
		}
		// OTP mail jumps the queue: the code expires in minutes.
		_, err := e.emailQueue.Enqueue(ctx, EmailJob{
			To:      payload.Email,
			Subject: subject,
			HTML:    fmt.Sprintf("<p>Your one-time code is <strong>%s</strong>. It expires shortly.</p>", payload.Code),
		}, dispatch.PriorityHigh)
		return err
	})

	e.bus.Subscribe(EventAccountVerified, func(ctx context.Context, event dispatch.Event) error {
		payload, ok := event.Payload.(AccountEvent)
		if !ok {
			return fmt.Errorf("unexpected payload %T for %s", event.Payload, event.Kind)
		}

		if _, err := e.emailQueue.Enqueue(ctx, EmailJob{
			To:      payload.Email,
			Subject: "Welcome aboard",
			HTML:    fmt.Sprintf("<p>Hi %s, your account is verified and ready to use.</p>", payload.DisplayName),
		}, dispatch.PriorityNormal); err != nil {
			return err
		}

		_, err := e.notificationQueue.Enqueue(ctx, NotificationJob{
			AccountID: payload.AccountID,
			Title:     "Account verified",
			Body:      "Your account has been verified.",
			Metadata:  map[string]string{"role": payload.Role},
		}, dispatch.PriorityNormal)
		return err
	})

	e.bus.Subscribe(EventPasswordReset, func(ctx context.Context, event dispatch.Event) error {
		payload, ok := event.Payload.(AccountEvent)
		if !ok {
			return fmt.Errorf("unexpected payload %T for %s", event.Payload, event.Kind)
		}

		if _, err := e.emailQueue.Enqueue(ctx, EmailJob{
			To:      payload.Email,
			Subject: "Your password was changed",
			HTML:    "<p>Your password was just reset. If this wasn't you, contact support immediately.</p>",
		}, dispatch.PriorityNormal); err != nil {
			return err
		}

		_, err := e.notificationQueue.Enqueue(ctx, NotificationJob{
			AccountID: payload.AccountID,
			Title:     "Password changed",
			Body:      "Your password was reset and all sessions were signed out.",
		}, dispatch.PriorityNormal)
		return err
	})

	e.bus.Subscribe(EventAccountSuspended, func(ctx context.Context, event dispatch.Event) error {
		payload, ok := event.Payload.(AccountEvent)
		if !ok {
			return fmt.Errorf("unexpected payload %T for %s", event.Payload, event.Kind)
		}

		_, err := e.notificationQueue.Enqueue(ctx, NotificationJob{
			AccountID: payload.AccountID,
			Title:     "Account suspended",
			Body:      "Your account has been suspended. Contact support for details.",
		}, dispatch.PriorityNormal)
		return err
	})
}

// handleEmailJob is the email queue worker.
func (e *Engine) handleEmailJob(ctx context.Context, job *dispatch.Job) error {
	var payload EmailJob
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("decode email job: %w", err)
	}
	return e.mailer.Send(ctx, payload.To, payload.Subject, payload.HTML)
}

// handleNotificationJob is the notification queue worker.
func (e *Engine) handleNotificationJob(ctx context.Context, job *dispatch.Job) error {
	var payload NotificationJob
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("decode notification job: %w", err)
	}
	return e.notifier.Create(ctx, payload.AccountID, payload.Title, payload.Body, payload.Metadata)
}
