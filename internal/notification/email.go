package notification

import (
	"bytes"
	"fmt"
	"net/smtp"
	"text/template"
	"time"

	"github.com/smukkama/weather-pipeline/internal/protocol"
	"github.com/smukkama/weather-pipeline/pkg/config"
	"go.uber.org/zap"
)

const alertsTemplate = `
Weather Threshold Alerts
========================

Cycle: {{.CycleID}}
Generated: {{.GeneratedAt.Format "2006-01-02 15:04:05 MST"}}
{{range .Alerts}}
- {{.City}}: {{.Kind}} {{.Breach}}{{if .Threshold}} {{printf "%.2f" (deref .Threshold)}}{{end}}{{if .Condition}} "{{.Condition}}"{{end}} for {{.ConsecutiveUpdates}} consecutive updates{{if .Deviation}} (deviation {{printf "%.2f" (deref .Deviation)}}){{end}}
{{- end}}

---
Weather Pipeline Notification System
`

var alertsTmpl = template.Must(template.New("alerts").Funcs(template.FuncMap{
	"deref": func(v *float64) float64 { return *v },
}).Parse(alertsTemplate))

// sendMailFunc matches smtp.SendMail
type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// EmailNotifier mails the alerts of a cycle
type EmailNotifier struct {
	config   *config.SMTPConfig
	logger   *zap.Logger
	sendMail sendMailFunc
}

// NewEmailNotifier creates a new email notifier
func NewEmailNotifier(cfg *config.SMTPConfig, logger *zap.Logger) *EmailNotifier {
	return &EmailNotifier{
		config:   cfg,
		logger:   logger.Named("email"),
		sendMail: smtp.SendMail,
	}
}

// SendAlerts sends one mail listing every alert of the report. Reports
// without alerts are ignored.
func (e *EmailNotifier) SendAlerts(report *protocol.CycleReport) error {
	if len(report.Alerts) == 0 {
		return nil
	}

	body, err := RenderAlerts(report)
	if err != nil {
		return fmt.Errorf("failed to render email template: %w", err)
	}

	subject := fmt.Sprintf("Weather Alerts - %d threshold(s) breached", len(report.Alerts))
	return e.sendEmail(subject, body)
}

// RenderAlerts renders the plain text body used by SendAlerts
func RenderAlerts(report *protocol.CycleReport) (string, error) {
	var buf bytes.Buffer
	if err := alertsTmpl.Execute(&buf, report); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func (e *EmailNotifier) sendEmail(subject, body string) error {
	// Skip sending if SMTP is not configured
	if e.config.Username == "" || e.config.Password == "" {
		e.logger.Info("SMTP not configured, skipping email",
			zap.String("subject", subject),
			zap.String("body", body))
		return nil
	}

	// Construct message
	message := fmt.Sprintf("From: %s\r\n", e.config.From)
	message += fmt.Sprintf("To: %s\r\n", e.config.To)
	message += fmt.Sprintf("Subject: %s\r\n", subject)
	message += fmt.Sprintf("Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	message += "\r\n"
	message += body

	auth := smtp.PlainAuth("", e.config.Username, e.config.Password, e.config.Host)

	addr := fmt.Sprintf("%s:%d", e.config.Host, e.config.Port)
	if err := e.sendMail(addr, auth, e.config.From, []string{e.config.To}, []byte(message)); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	e.logger.Info("Email sent successfully", zap.String("subject", subject))
	return nil
}

// TestConnection tests the SMTP connection
func (e *EmailNotifier) TestConnection() error {
	if e.config.Username == "" {
		return fmt.Errorf("SMTP not configured")
	}

	addr := fmt.Sprintf("%s:%d", e.config.Host, e.config.Port)
	client, err := smtp.Dial(addr)
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	defer client.Close()

	e.logger.Info("SMTP connection test successful", zap.String("addr", addr))
	return nil
}
