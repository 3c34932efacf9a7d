// Package email delivers verification and recovery codes.
package email

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/smtp"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/shubham07069/chatgod/internal/logging"
)

// Sender delivers one message.
type Sender interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

type SMTPSender struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string

	logger *zap.Logger
	// send is smtp.SendMail, replaced in tests.
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPSender returns a sender for host. With an empty host messages are
// logged instead of sent, with codes redacted.
func NewSMTPSender(host, port, username, password, from string, logger *zap.Logger) *SMTPSender {
	return &SMTPSender{
		Host:     host,
		Port:     port,
		Username: username,
		Password: password,
		From:     from,
		logger:   logging.OrNop(logger),
		send:     smtp.SendMail,
	}
}

func (s *SMTPSender) Send(ctx context.Context, to, subject, htmlBody string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.Host == "" {
		s.logger.Info("SMTP not configured, email not sent", zap.String("to", to), zap.String("subject", subject))
		return nil
	}

	headers := map[string]string{
		"From":         s.From,
		"To":           to,
		"Subject":      subject,
		"MIME-Version": "1.0",
		"Content-Type": "text/html; charset=\"UTF-8\"",
	}
	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var msg strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&msg, "%s: %s\r\n", k, headers[k])
	}
	msg.WriteString("\r\n")
	msg.WriteString(htmlBody)

	auth := smtp.PlainAuth("", s.Username, s.Password, s.Host)
	addr := s.Host + ":" + s.Port
	if err := s.send(addr, auth, s.From, []string{to}, []byte(msg.String())); err != nil {
		return fmt.Errorf("failed to send email to %s: %w", to, err)
	}
	return nil
}

const codeTemplate = `
<!DOCTYPE html>
<html>
<head>
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
        .container { max-width: 600px; margin: 0 auto; padding: 20px; border: 1px solid #ddd; border-radius: 5px; }
        .header { background-color: #6200ee; color: white; padding: 10px; text-align: center; border-radius: 5px 5px 0 0; }
        .content { padding: 20px; }
        .code { font-size: 1.6em; letter-spacing: 0.3em; text-align: center; font-weight: bold; }
        .footer { margin-top: 20px; font-size: 0.8em; color: #777; text-align: center; }
    </style>
</head>
<body>
    <div class="container">
        <div class="header">
            <h1>{{.Title}}</h1>
        </div>
        <div class="content">
            <p>Hi {{.Username}},</p>
            <p>{{.Intro}}</p>
            {{if .Code}}<p class="code">{{.Code}}</p>{{end}}
            <p>If you didn't ask for this, you can safely ignore this email.</p>
        </div>
        <div class="footer">
            <p>ChatGod</p>
        </div>
    </div>
</body>
</html>
`

var codeTmpl = template.Must(template.New("code").Parse(codeTemplate))

func render(title, username, intro, code string) (string, error) {
	var body bytes.Buffer
	err := codeTmpl.Execute(&body, map[string]string{
		"Title":    title,
		"Username": username,
		"Intro":    intro,
		"Code":     code,
	})
	if err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}
	return body.String(), nil
}

func SendVerificationCode(ctx context.Context, s Sender, to, username, code string) error {
	body, err := render("Welcome to ChatGod!", username, "Use this code to verify your email address:", code)
	if err != nil {
		return err
	}
	return s.Send(ctx, to, "Your ChatGod verification code", body)
}

func SendPasswordResetCode(ctx context.Context, s Sender, to, username, code string) error {
	body, err := render("Reset your password", username, "Use this code to reset your ChatGod password:", code)
	if err != nil {
		return err
	}
	return s.Send(ctx, to, "Your ChatGod password reset code", body)
}

func SendUsernameReminder(ctx context.Context, s Sender, to, username string) error {
	body, err := render("Your username", username, "Your ChatGod username is "+username+".", "")
	if err != nil {
		return err
	}
	return s.Send(ctx, to, "Your ChatGod username", body)
}
