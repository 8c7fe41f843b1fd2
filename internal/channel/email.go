package channel

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
)

// EmailAdapter delivers through an authenticated SMTP relay with
// STARTTLS, one connection per attempt.
type EmailAdapter struct {
	host     string
	port     int
	username string
	password string
}

func NewEmailAdapter(host string, port int, username string, password string) (*EmailAdapter, error) {
	if strings.TrimSpace(host) == "" {
		return nil, fmt.Errorf("smtp host is required")
	}
	if port < 1 || port > 65535 {
		return nil, fmt.Errorf("invalid smtp port %d", port)
	}
	if strings.TrimSpace(username) == "" {
		return nil, fmt.Errorf("smtp username is required")
	}

	return &EmailAdapter{
		host:     host,
		port:     port,
		username: username,
		password: password,
	}, nil
}

func (a *EmailAdapter) Attempt(ctx context.Context, recipient string, subject string, body string) error {
	if a == nil {
		return fmt.Errorf("email adapter is not initialized")
	}
	if strings.TrimSpace(recipient) == "" {
		return fmt.Errorf("email recipient is required")
	}

	addr := net.JoinHostPort(a.host, strconv.Itoa(a.port))

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to dial smtp relay: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, a.host)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("failed to open smtp session: %w", err)
	}
	defer client.Close() //nolint:errcheck // best-effort session close

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: a.host}); err != nil {
			return fmt.Errorf("starttls failed: %w", err)
		}
	}

	auth := smtp.PlainAuth("", a.username, a.password, a.host)
	if err := client.Auth(auth); err != nil {
		return fmt.Errorf("smtp auth failed: %w", err)
	}

	if err := client.Mail(a.username); err != nil {
		return fmt.Errorf("smtp mail from failed: %w", err)
	}
	if err := client.Rcpt(recipient); err != nil {
		return fmt.Errorf("smtp rcpt to failed: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data failed: %w", err)
	}
	if _, err := w.Write(buildEmailMessage(a.username, recipient, subject, body)); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to write message body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finalize message: %w", err)
	}

	return client.Quit()
}

func buildEmailMessage(from string, to string, subject string, body string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("\r\n")
	b.WriteString(body)
	b.WriteString("\r\n")
	return []byte(b.String())
}
