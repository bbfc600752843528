// Package queue carries rendered notification emails over RabbitMQ: the
// wire message, the publisher used by the API process and the delivery
// worker that hands messages to a mailer.
package queue

import "time"

// EmailMessage is one rendered notification.  Params keeps the values the
// template was rendered with so consumers can log or re-render without
// querying the database.
type EmailMessage struct {
	Recipient string            `json:"recipient"`
	From      string            `json:"from"`
	Template  string            `json:"template"`
	Subject   string            `json:"subject"`
	Body      string            `json:"body"`
	Params    map[string]string `json:"params"`
	CreatedAt time.Time         `json:"created_at"`
}
