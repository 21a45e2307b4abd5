package email

import (
	"bytes"
	"fmt"
	"html/template"
	texttemplate "text/template"

	"syncway/internal/domain"
)

type mailTemplate struct {
	subject *texttemplate.Template
	body    *template.Template
}

const layout = `<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">{{template "content" .}}
<p style="margin-top: 30px; color: #6b7280; font-size: 14px;">SyncWay Ride Sharing</p></div>`

var sources = map[domain.EmailTemplate][2]string{
	domain.EmailWelcome: {
		`Welcome to SyncWay!`,
		`<h2>Welcome {{.User.Name}}!</h2>
<p>Thank you for joining our ride-sharing community.</p>
<p><strong>Phone:</strong> {{.User.Phone}}</p>
<p><strong>Account type:</strong> {{.User.Role}}</p>`,
	},
	domain.EmailNewRide: {
		`New Ride Available - {{.Ride.StartLocation}} to {{.Ride.EndLocation}}`,
		`<h2>New Ride Available</h2>
<p><strong>Passenger:</strong> {{.Ride.Requester.Name}}</p>
{{template "route" .}}`,
	},
	domain.EmailRideClaimedRequester: {
		`Your Ride Has Been Claimed!`,
		`<h2>Your Ride Has Been Claimed!</h2>
{{template "driver" .}}
{{template "route" .}}`,
	},
	domain.EmailRideClaimedDriver: {
		`Ride Successfully Claimed`,
		`<h2>You've Claimed a Ride!</h2>
<p><strong>Passenger:</strong> {{.Ride.Requester.Name}}</p>
<p><strong>Phone:</strong> {{.Ride.Requester.Phone}}</p>
{{template "route" .}}`,
	},
	domain.EmailRideUnclaimedRequester: {
		`Ride Unclaimed`,
		`<h2>Ride Unclaimed</h2>
<p>{{with .Driver}}{{.DriverName}}{{else}}Your driver{{end}} can no longer take your ride. It is available to other drivers again.</p>
{{template "route" .}}`,
	},
	domain.EmailRideUnclaimedDriver: {
		`You Unclaimed a Ride`,
		`<h2>Ride Unclaimed</h2>
<p>You are no longer assigned to this ride.</p>
{{template "route" .}}`,
	},
	domain.EmailRideCancelledRequester: {
		`Ride Cancelled`,
		`<h2>Your Ride Has Been Cancelled</h2>
{{template "route" .}}`,
	},
	domain.EmailRideCancelledDriver: {
		`Ride Cancelled by Passenger`,
		`<h2>Ride Cancelled</h2>
<p>{{.Ride.Requester.Name}} cancelled a ride you had claimed.</p>
{{template "route" .}}`,
	},
}

const partials = `{{define "route"}}<p><strong>Pickup:</strong> {{.Ride.StartLocation}}</p>
<p><strong>Destination:</strong> {{.Ride.EndLocation}}</p>
<p><strong>When:</strong> {{.Ride.RideDate}} {{.Ride.RideTime}}</p>
<p><strong>Passengers:</strong> {{.Ride.Passengers}}</p>
<p><strong>Distance:</strong> {{printf "%.1f" .Ride.DistanceMiles}} miles</p>
<p><strong>Fare:</strong> ${{printf "%.2f" .Ride.Fare}}</p>{{end}}
{{define "driver"}}{{with .Driver}}<p><strong>Driver:</strong> {{.DriverName}}</p>
<p><strong>Phone:</strong> {{.DriverPhone}}</p>{{end}}{{end}}`

// Renderer turns email events into messages.
type Renderer struct {
	templates map[domain.EmailTemplate]mailTemplate
}

// NewRenderer parses every known template.
func NewRenderer() (*Renderer, error) {
	r := &Renderer{templates: make(map[domain.EmailTemplate]mailTemplate, len(sources))}
	for name, src := range sources {
		subject, err := texttemplate.New(string(name) + ".subject").Parse(src[0])
		if err != nil {
			return nil, fmt.Errorf("parse %s subject: %w", name, err)
		}
		body, err := template.New(string(name)).Parse(layout)
		if err == nil {
			_, err = body.Parse(partials)
		}
		if err == nil {
			_, err = body.Parse(`{{define "content"}}` + src[1] + `{{end}}`)
		}
		if err != nil {
			return nil, fmt.Errorf("parse %s body: %w", name, err)
		}
		r.templates[name] = mailTemplate{subject: subject, body: body}
	}
	return r, nil
}

// MustNewRenderer is NewRenderer that panics on a template error.
func MustNewRenderer() *Renderer {
	r, err := NewRenderer()
	if err != nil {
		panic(err)
	}
	return r
}

// Render builds the message for ev.
func (r *Renderer) Render(ev *domain.EmailEvent) (Message, error) {
	t, ok := r.templates[ev.Template]
	if !ok {
		return Message{}, fmt.Errorf("unknown email template %q", ev.Template)
	}
	if ev.Template == domain.EmailWelcome && ev.User == nil {
		return Message{}, fmt.Errorf("template %s needs a user", ev.Template)
	}
	if ev.Template != domain.EmailWelcome && ev.Ride == nil {
		return Message{}, fmt.Errorf("template %s needs a ride", ev.Template)
	}

	var subject, body bytes.Buffer
	if err := t.subject.Execute(&subject, ev); err != nil {
		return Message{}, fmt.Errorf("render %s subject: %w", ev.Template, err)
	}
	if err := t.body.Execute(&body, ev); err != nil {
		return Message{}, fmt.Errorf("render %s body: %w", ev.Template, err)
	}

	return Message{
		ID:       newMessageID(),
		Template: ev.Template,
		To:       ev.To,
		Subject:  subject.String(),
		HTML:     body.String(),
	}, nil
}
