package notifier

import (
	"fmt"
	"strings"
	"text/template"
)

const (
	TemplateBookingSubmitted = "booking_submitted"
	TemplatePaymentConfirmed = "payment_confirmed"
)

type emailTemplate struct {
	subject *template.Template
	body    *template.Template
}

var templates = map[string]emailTemplate{
	TemplateBookingSubmitted: parse(TemplateBookingSubmitted,
		`Booking received: {{.property_name}}`,
		`Hello {{.guest_name}},

We received your booking for {{.property_name}} from {{.start_date}} to {{.end_date}}.
Total due: {{.total_price}}.

Your booking is confirmed as soon as the payment goes through.
`),
	TemplatePaymentConfirmed: parse(TemplatePaymentConfirmed,
		`Booking confirmed: {{.property_name}}`,
		`Hello {{.guest_name}},

Your payment of {{.amount}} {{.currency}} was received and your booking for
{{.property_name}} from {{.start_date}} to {{.end_date}} is confirmed.

Reference: {{.tx_ref}}
`),
}

func parse(name, subject, body string) emailTemplate {
	return emailTemplate{
		subject: template.Must(template.New(name + ".subject").Option("missingkey=error").Parse(subject)),
		body:    template.Must(template.New(name + ".body").Option("missingkey=error").Parse(body)),
	}
}

// Render fills the named template with params.  Every parameter the
// template references must be present.
func Render(name string, params map[string]string) (subject, body string, err error) {
	t, ok := templates[name]
	if !ok {
		return "", "", fmt.Errorf("unknown template %q", name)
	}
	var s, b strings.Builder
	if err := t.subject.Execute(&s, params); err != nil {
		return "", "", fmt.Errorf("render %s subject: %w", name, err)
	}
	if err := t.body.Execute(&b, params); err != nil {
		return "", "", fmt.Errorf("render %s body: %w", name, err)
	}
	return s.String(), b.String(), nil
}
