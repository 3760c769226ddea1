package notify

import (
	"context"
)

const TemplateBookingConfirmation = "appointment.booking_confirmation"

// Message is the payload handed to the mail worker.
type Message struct {
	Recipient string         `json:"recipient"`
	Subject   string         `json:"subject"`
	Template  string         `json:"template"`
	Data      map[string]any `json:"data"`
}

type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, msg Message) error

func (f NotifierFunc) Notify(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}
