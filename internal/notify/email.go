package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/wneessen/go-mail"

	"github.com/haasonsaas/profileqa/internal/config"
	"github.com/haasonsaas/profileqa/internal/textutil"
)

// mailSender is the part of the SMTP client the sink uses.
type mailSender interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

// Email sends each event as a multipart message with an HTML body and a
// plain text alternative.
type Email struct {
	client mailSender
	from   string
	to     []string
	now    func() time.Time
}

// NewEmail creates an Email sink. No connection is opened until the first
// send.
func NewEmail(cfg config.EmailNotifyConfig) (*Email, error) {
	opts := []mail.Option{
		mail.WithTLSPortPolicy(emailTLSPolicy(cfg.TLS)),
		mail.WithTimeout(15 * time.Second),
	}
	if cfg.Port != 0 {
		opts = append(opts, mail.WithPort(cfg.Port))
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}
	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("email client: %w", err)
	}
	return newEmail(client, cfg.From, cfg.To), nil
}

func newEmail(client mailSender, from string, to []string) *Email {
	return &Email{client: client, from: from, to: to, now: time.Now}
}

func emailTLSPolicy(mode string) mail.TLSPolicy {
	switch mode {
	case "opportunistic":
		return mail.TLSOpportunistic
	case "none":
		return mail.NoTLS
	default:
		return mail.TLSMandatory
	}
}

func (m *Email) Name() string { return "email" }

func (m *Email) Send(ctx context.Context, e Event) error {
	msg, err := m.message(e)
	if err != nil {
		return err
	}
	if err := m.client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("email send: %w", err)
	}
	return nil
}

func (m *Email) message(e Event) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(m.from); err != nil {
		return nil, fmt.Errorf("email from: %w", err)
	}
	if err := msg.To(m.to...); err != nil {
		return nil, fmt.Errorf("email to: %w", err)
	}
	msg.Subject(emailSubject(e))
	msg.SetDate()
	msg.SetMessageID()
	switch e.Priority {
	case PriorityHigh:
		msg.SetImportance(mail.ImportanceHigh)
	case PriorityLow:
		msg.SetImportance(mail.ImportanceLow)
	}

	view := emailView{Event: e, Priority: strings.ToUpper(string(e.Priority)), Timestamp: m.now().Format("2006-01-02 15:04:05")}
	var html bytes.Buffer
	if err := emailHTML.Execute(&html, view); err != nil {
		return nil, fmt.Errorf("email body: %w", err)
	}
	msg.SetBodyString(mail.TypeTextPlain, emailText(view))
	msg.AddAlternativeString(mail.TypeTextHTML, html.String())
	return msg, nil
}

func emailSubject(e Event) string {
	if e.Query != nil {
		return "Resumen CV - " + textutil.Truncate(e.Query.Query, 50)
	}
	title := e.Title
	if title == "" {
		title = "Notificación del Agente CV"
	}
	if e.Priority == PriorityHigh {
		return "[HIGH] " + title
	}
	return title
}

type emailView struct {
	Event
	Priority  string
	Timestamp string
}

func emailText(v emailView) string {
	var b strings.Builder
	b.WriteString(plainText(v.Event))
	if q := v.Query; q != nil {
		fmt.Fprintf(&b, "\n\nConsulta: %s\nRespuesta:\n%s\n", q.Query, q.Answer)
		if q.Strategy != "" {
			fmt.Fprintf(&b, "Estrategia: %s\n", q.Strategy)
		}
		if len(q.ToolsUsed) > 0 {
			fmt.Fprintf(&b, "Herramientas usadas: %s\n", strings.Join(q.ToolsUsed, ", "))
		}
		fmt.Fprintf(&b, "Puntuación de calidad: %.1f/10", q.Score)
	}
	fmt.Fprintf(&b, "\n\nPrioridad: %s\nFecha: %s\n", v.Priority, v.Timestamp)
	return b.String()
}

var emailHTML = template.Must(template.New("email").Funcs(template.FuncMap{
	"join": strings.Join,
	"lines": func(s string) []string {
		return strings.Split(s, "\n")
	},
}).Parse(`<html>
<body>
{{- if .Query}}
<h2>Resumen de Consulta - Agente CV</h2>
<h3>Consulta Realizada:</h3>
<div style="padding: 10px; background-color: #e9ecef; border-left: 4px solid #6c757d;">{{.Query.Query}}</div>
<h3>Respuesta Proporcionada:</h3>
<div style="padding: 15px; background-color: #f8f9fa; border: 1px solid #dee2e6; border-radius: 5px;">
{{- range lines .Query.Answer}}<p>{{.}}</p>{{end -}}
</div>
<h3>Información Adicional:</h3>
<ul>
<li><strong>Fecha:</strong> {{.Timestamp}}</li>
{{- if .Query.Strategy}}
<li><strong>Estrategia:</strong> {{.Query.Strategy}}</li>
{{- end}}
<li><strong>Herramientas usadas:</strong> {{join .Query.ToolsUsed ", "}}</li>
<li><strong>Puntuación de calidad:</strong> {{printf "%.1f" .Query.Score}}/10</li>
</ul>
{{- else}}
<h2>Notificación del Agente CV</h2>
<p><strong>Título:</strong> {{.Title}}</p>
<p><strong>Prioridad:</strong> {{.Priority}}</p>
<div style="padding: 10px; background-color: #f5f5f5; border-left: 4px solid #007bff;">
{{- range lines .Message}}<p>{{.}}</p>{{end -}}
</div>
<p><strong>Fecha:</strong> {{.Timestamp}}</p>
{{- end}}
<hr>
<p style="font-size: 12px; color: #6c757d;">Este email fue generado automáticamente por el Agente CV.</p>
</body>
</html>
`))

var _ Sink = (*Email)(nil)
