package authn

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"sync"
	"time"
)

// Message is one outgoing email.
type Message struct {
	To      string
	Subject string
	HTML    string
}

// Mailer delivers email. Delivery errors surface as MailDeliveryFailed.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// LogMailer writes messages to the log instead of sending them. It is the
// default for development.
type LogMailer struct {
	Logger *slog.Logger
}

func (m *LogMailer) Send(_ context.Context, msg Message) error {
	logger := m.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("mail", "to", msg.To, "subject", msg.Subject, "body", msg.HTML)
	return nil
}

// CaptureMailer records messages in memory.
type CaptureMailer struct {
	mu   sync.Mutex
	msgs []Message
	// Err, when set, is returned from Send and nothing is recorded.
	Err error
}

func (m *CaptureMailer) Send(_ context.Context, msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.msgs = append(m.msgs, msg)
	return nil
}

// Messages returns a copy of everything sent so far.
func (m *CaptureMailer) Messages() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Message(nil), m.msgs...)
}

// Last returns the most recent message.
func (m *CaptureMailer) Last() (Message, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.msgs) == 0 {
		return Message{}, false
	}
	return m.msgs[len(m.msgs)-1], true
}

var mailTemplates = template.Must(template.New("mail").Parse(`
{{define "magic-link"}}<p>Hi {{.Name}},</p>
<p><a href="{{.Link}}">Click here to log in</a>. The link expires in {{.Lifetime}} and works once.</p>
<p>If you did not ask for this, ignore this email.</p>{{end}}
{{define "email_2fa"}}<p>Hi {{.Name}},</p>
<p>Your login code is <strong>{{.Code}}</strong>. It expires in {{.Lifetime}}.</p>{{end}}
{{define "email_activate"}}<p>Hi {{.Name}},</p>
<p>Your activation code is <strong>{{.Code}}</strong>. It expires in {{.Lifetime}}.</p>{{end}}
`))

type mailData struct {
	Name     string
	Link     string
	Code     string
	Lifetime time.Duration
}

func renderMail(name string, data mailData) (string, error) {
	var buf bytes.Buffer
	if err := mailTemplates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s mail: %w", name, err)
	}
	return buf.String(), nil
}
