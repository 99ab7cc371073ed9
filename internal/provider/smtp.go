package provider

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/kursadbilgin/mailrunner/internal/domain"
	"gopkg.in/gomail.v2"
)

const (
	implicitTLSPort = 465
	dialTimeout     = 10 * time.Second
)

// SMTPConfig describes the mail server and the sender identity.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	FromName string
	// UseTLS upgrades the connection with STARTTLS when the server offers
	// it. Without it the session stays in plain text, and net/smtp refuses
	// to send credentials over it to anything but a loopback host. Port 465
	// always uses implicit TLS.
	UseTLS bool
}

// SMTPDialer opens gomail sessions against a single SMTP server.
type SMTPDialer struct {
	dialer   *gomail.Dialer
	useTLS   bool
	from     string
	fromName string
}

func NewSMTPDialer(cfg SMTPConfig) (*SMTPDialer, error) {
	host := strings.TrimSpace(cfg.Host)
	if host == "" {
		return nil, fmt.Errorf("smtp host is required")
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("smtp port %d is out of range", cfg.Port)
	}
	from := strings.TrimSpace(cfg.Username)
	if from == "" {
		return nil, fmt.Errorf("sender address is required")
	}

	dialer := gomail.NewDialer(host, cfg.Port, from, cfg.Password)
	dialer.SSL = cfg.Port == implicitTLSPort
	dialer.TLSConfig = &tls.Config{
		ServerName: host,
		MinVersion: tls.VersionTLS12,
	}

	return &SMTPDialer{
		dialer:   dialer,
		useTLS:   cfg.UseTLS || dialer.SSL,
		from:     from,
		fromName: strings.TrimSpace(cfg.FromName),
	}, nil
}

// Dial connects and authenticates. Failures wrap domain.ErrSessionFailed.
func (d *SMTPDialer) Dial(ctx context.Context) (Session, error) {
	if d == nil || d.dialer == nil {
		return nil, fmt.Errorf("%w: dialer is not initialized", domain.ErrSessionFailed)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sender, err := d.open(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %s:%d: %w", domain.ErrSessionFailed, d.dialer.Host, d.dialer.Port, err)
	}

	return &smtpSession{dialer: d, sender: sender}, nil
}

func (d *SMTPDialer) open(ctx context.Context) (gomail.SendCloser, error) {
	if d.useTLS {
		return d.dialer.Dial()
	}
	return d.dialPlain(ctx)
}

// dialPlain opens a session that never issues STARTTLS. gomail.Dialer
// upgrades whenever the server advertises it, so this path drives
// net/smtp directly and keeps gomail for message encoding.
func (d *SMTPDialer) dialPlain(ctx context.Context) (gomail.SendCloser, error) {
	addr := net.JoinHostPort(d.dialer.Host, strconv.Itoa(d.dialer.Port))
	conn, err := (&net.Dialer{Timeout: dialTimeout}).DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}

	client, err := smtp.NewClient(conn, d.dialer.Host)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := client.Hello("localhost"); err != nil {
		_ = client.Close()
		return nil, err
	}
	if ok, _ := client.Extension("AUTH"); ok && d.dialer.Username != "" {
		auth := smtp.PlainAuth("", d.dialer.Username, d.dialer.Password, d.dialer.Host)
		if err := client.Auth(auth); err != nil {
			_ = client.Close()
			return nil, err
		}
	}

	return &plainSender{client: client}, nil
}

type plainSender struct {
	client *smtp.Client
}

func (s *plainSender) Send(from string, to []string, msg io.WriterTo) error {
	if err := s.client.Mail(from); err != nil {
		return err
	}
	for _, addr := range to {
		if err := s.client.Rcpt(addr); err != nil {
			return err
		}
	}

	w, err := s.client.Data()
	if err != nil {
		return err
	}
	if _, err := msg.WriteTo(w); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

func (s *plainSender) Close() error {
	return s.client.Quit()
}

func (d *SMTPDialer) compose(recipient domain.Recipient, message domain.Message) *gomail.Message {
	msg := gomail.NewMessage()
	msg.SetAddressHeader("From", d.from, d.fromName)
	msg.SetAddressHeader("To", recipient.Email, recipient.Name)
	msg.SetHeader("Subject", message.Subject)
	msg.SetBody(message.ContentType(), message.Body)
	return msg
}

type smtpSession struct {
	dialer *SMTPDialer
	sender gomail.SendCloser
}

// Send delivers one message. A failed transaction leaves the SMTP
// conversation in an undefined state, so the connection is dropped and the
// next Send dials again.
func (s *smtpSession) Send(ctx context.Context, recipient domain.Recipient, message domain.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if s.sender == nil {
		sender, err := s.dialer.open(ctx)
		if err != nil {
			return &DeliveryError{Kind: FailureTransport, Message: "reconnect failed", Cause: err}
		}
		s.sender = sender
	}

	msg := s.dialer.compose(recipient, message)
	if err := s.sender.Send(s.dialer.from, []string{recipient.Email}, msg); err != nil {
		_ = s.sender.Close()
		s.sender = nil
		return Classify(err)
	}

	return nil
}

func (s *smtpSession) Close() error {
	if s.sender == nil {
		return nil
	}
	err := s.sender.Close()
	s.sender = nil
	return err
}
