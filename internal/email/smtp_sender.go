package email

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/mail"
	"net/smtp"
	"strings"
	"time"
)

const smtpDialTimeout = 10 * time.Second

// SMTPSender entrega los correos de reset via SMTP. Con useTLS la conexion
// es TLS desde el inicio (puerto 465); si no, se intenta STARTTLS.
type SMTPSender struct {
	addr   string
	host   string
	auth   smtp.Auth
	from   mail.Address
	useTLS bool
}

func NewSMTPSender(host string, port int, username, password, from, fromName string, useTLS bool) (*SMTPSender, error) {
	host = strings.TrimSpace(host)
	if host == "" {
		return nil, fmt.Errorf("smtp host is required")
	}
	sender, err := mail.ParseAddress(strings.TrimSpace(from))
	if err != nil {
		return nil, fmt.Errorf("smtp from: %w", err)
	}
	if strings.TrimSpace(fromName) != "" {
		sender.Name = strings.TrimSpace(fromName)
	}
	if port == 0 {
		port = 587
	}

	s := &SMTPSender{
		addr:   net.JoinHostPort(host, fmt.Sprint(port)),
		host:   host,
		from:   *sender,
		useTLS: useTLS,
	}
	if username != "" {
		s.auth = smtp.PlainAuth("", username, password, host)
	}
	return s, nil
}

func (s *SMTPSender) SendPasswordReset(ctx context.Context, reset PasswordReset) error {
	to, err := mail.ParseAddress(strings.TrimSpace(reset.ToEmail))
	if err != nil {
		return fmt.Errorf("to email: %w", err)
	}
	msg := buildMessage(s.from, *to, "Password Reset Request", resetBody(reset), time.Now())

	client, err := s.dial(ctx)
	if err != nil {
		return fmt.Errorf("smtp dial: %w", err)
	}
	defer client.Close()

	if !s.useTLS {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(&tls.Config{ServerName: s.host}); err != nil {
				return fmt.Errorf("smtp starttls: %w", err)
			}
		}
	}
	if s.auth != nil {
		if err := client.Auth(s.auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}
	if err := client.Mail(s.from.Address); err != nil {
		return err
	}
	if err := client.Rcpt(to.Address); err != nil {
		return err
	}
	w, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write([]byte(msg)); err != nil {
		_ = w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return client.Quit()
}

func (s *SMTPSender) dial(ctx context.Context) (*smtp.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, smtpDialTimeout)
	defer cancel()

	var (
		conn net.Conn
		err  error
	)
	if s.useTLS {
		d := tls.Dialer{Config: &tls.Config{ServerName: s.host}}
		conn, err = d.DialContext(ctx, "tcp", s.addr)
	} else {
		var d net.Dialer
		conn, err = d.DialContext(ctx, "tcp", s.addr)
	}
	if err != nil {
		return nil, err
	}
	return smtp.NewClient(conn, s.host)
}

func resetBody(reset PasswordReset) string {
	name := strings.TrimSpace(reset.ToName)
	if name == "" {
		name = "there"
	}
	return fmt.Sprintf(
		"Hello %s,\n\nYou requested a password reset. Open the link below to choose a new password:\n\n%s\n\nThis link expires at %s UTC.\nIf you didn't request this, you can ignore this email.\n",
		name,
		reset.ResetURL,
		reset.ExpiresAt.UTC().Format(time.RFC3339),
	)
}

func buildMessage(from, to mail.Address, subject, body string, date time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from.String())
	fmt.Fprintf(&b, "To: %s\r\n", to.String())
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	fmt.Fprintf(&b, "Date: %s\r\n", date.UTC().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n\r\n")
	b.WriteString(body)
	return b.String()
}
