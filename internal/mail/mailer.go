// Package mail delivers one-time login tokens by email.
package mail

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"html"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"samchat/internal/config"
)

// ErrNotDelivered is returned when no SMTP credentials are configured. The
// token is written to the log instead.
var ErrNotDelivered = errors.New("smtp not configured, token logged")

const dialTimeout = 30 * time.Second

type Mailer struct {
	cfg    config.MailConfig
	logger *zap.Logger
}

func NewMailer(cfg config.MailConfig, logger *zap.Logger) *Mailer {
	return &Mailer{cfg: cfg, logger: logger}
}

func (m *Mailer) Configured() bool {
	return m.cfg.Username != "" && m.cfg.Password != ""
}

// SendLoginToken mails token to the given address over STARTTLS.
func (m *Mailer) SendLoginToken(ctx context.Context, to, token string) error {
	if !m.Configured() {
		m.logger.Info("email simulation", zap.String("email", to), zap.String("token", token))
		return ErrNotDelivered
	}

	if err := m.send(ctx, to, buildMessage(m.cfg.Username, to, m.cfg.Subject, token)); err != nil {
		m.logger.Warn("send login email failed", zap.String("email", to), zap.Error(err))
		return err
	}
	m.logger.Info("login email sent", zap.String("email", to))
	return nil
}

func (m *Mailer) send(ctx context.Context, to string, msg []byte) error {
	addr := net.JoinHostPort(m.cfg.SMTPServer, strconv.Itoa(m.cfg.SMTPPort))

	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial smtp failed: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	} else {
		_ = conn.SetDeadline(time.Now().Add(dialTimeout))
	}

	client, err := smtp.NewClient(conn, m.cfg.SMTPServer)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("smtp handshake failed: %w", err)
	}
	defer client.Close()

	if err := client.StartTLS(&tls.Config{ServerName: m.cfg.SMTPServer}); err != nil {
		return fmt.Errorf("smtp starttls failed: %w", err)
	}
	if err := client.Auth(smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.SMTPServer)); err != nil {
		return fmt.Errorf("smtp auth failed: %w", err)
	}
	if err := client.Mail(m.cfg.Username); err != nil {
		return fmt.Errorf("smtp mail from failed: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("smtp rcpt failed: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data failed: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		_ = w.Close()
		return fmt.Errorf("smtp write failed: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp data close failed: %w", err)
	}
	return client.Quit()
}

func buildMessage(from, to, subject, token string) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: " + subject + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"utf-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString("<h2>Seu token de acesso ao ChatGPT</h2>\r\n")
	b.WriteString("<p>Use este token para fazer login:</p>\r\n")
	b.WriteString(`<h3 style="background: #f0f0f0; padding: 10px; font-family: monospace;">` + html.EscapeString(token) + "</h3>\r\n")
	b.WriteString("<p>Este token expira em 24 horas.</p>\r\n")
	b.WriteString("<p>Se você não solicitou este token, ignore este email.</p>\r\n")
	return []byte(b.String())
}
