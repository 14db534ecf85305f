// Package smtpsender delivers the minimal test messages used to gather
// delivery evidence. Each message carries a VERP return-path so any bounce
// routes back to the row that triggered it.
package smtpsender

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/Brettillian123/email-scraper-verifier-sub000/internal/core"
)

// DialFunc opens the TCP connection to an MX host.
type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// Options configures a Sender.
type Options struct {
	Resolver core.MXResolver // Required: MX resolution for the recipient domain
	Dial     DialFunc        // Optional: defaults to a net.Dialer
	Logger   *slog.Logger    // Optional: structured logger

	HeloDomain string // Required: domain announced in EHLO
	FromHeader string // Optional: From header address, defaults to postmaster@HeloDomain
	Subject    string // Optional: message subject

	ConnectTimeout time.Duration // Optional: default 10s
	CommandTimeout time.Duration // Optional: per SMTP command, default 10s
}

// Sender implements core.TestSender over direct-to-MX SMTP.
type Sender struct {
	resolver core.MXResolver
	dial     DialFunc
	logger   *slog.Logger

	heloDomain string
	fromHeader string
	subject    string

	connectTimeout time.Duration
	commandTimeout time.Duration
}

// New constructs a Sender.
func New(opts Options) (*Sender, error) {
	if opts.Resolver == nil {
		return nil, errors.New("Resolver is required")
	}
	if opts.HeloDomain == "" {
		return nil, errors.New("HeloDomain is required")
	}

	s := &Sender{
		resolver:       opts.Resolver,
		dial:           opts.Dial,
		heloDomain:     opts.HeloDomain,
		fromHeader:     opts.FromHeader,
		subject:        opts.Subject,
		connectTimeout: opts.ConnectTimeout,
		commandTimeout: opts.CommandTimeout,
	}
	if s.fromHeader == "" {
		s.fromHeader = "postmaster@" + opts.HeloDomain
	}
	if s.subject == "" {
		s.subject = "Delivery confirmation"
	}
	if s.connectTimeout <= 0 {
		s.connectTimeout = 10 * time.Second
	}
	if s.commandTimeout <= 0 {
		s.commandTimeout = 10 * time.Second
	}
	if s.dial == nil {
		dialer := &net.Dialer{Timeout: s.connectTimeout}
		s.dial = dialer.DialContext
	}
	if opts.Logger != nil {
		s.logger = opts.Logger.With("component", "smtp_sender")
	}
	return s, nil
}

// Send delivers one test message to recipient with returnPath as the
// envelope sender.
func (s *Sender) Send(ctx context.Context, recipient, returnPath string) error {
	at := strings.LastIndex(recipient, "@")
	if at <= 0 || at == len(recipient)-1 {
		return fmt.Errorf("malformed recipient %q", recipient)
	}

	mxHost, err := s.resolver.ResolveMX(ctx, recipient[at+1:])
	if err != nil {
		return fmt.Errorf("resolve mx for %q: %w", recipient, err)
	}

	conn, err := s.dial(ctx, "tcp", net.JoinHostPort(mxHost, "25"))
	if err != nil {
		return fmt.Errorf("dial %s: %w", mxHost, err)
	}

	if err := s.converse(conn, mxHost, recipient, returnPath); err != nil {
		return fmt.Errorf("deliver to %s via %s: %w", recipient, mxHost, err)
	}

	if s.logger != nil {
		s.logger.InfoContext(ctx, "test message dispatched",
			"recipient", recipient,
			"mx_host", mxHost,
			"return_path", returnPath,
		)
	}
	return nil
}

func (s *Sender) converse(conn net.Conn, mxHost, recipient, returnPath string) error {
	defer conn.Close() //nolint:errcheck

	deadline := func() {
		_ = conn.SetDeadline(time.Now().Add(s.commandTimeout))
	}

	deadline()
	client, err := smtp.NewClient(conn, mxHost)
	if err != nil {
		return fmt.Errorf("smtp greeting: %w", err)
	}
	defer client.Close() //nolint:errcheck

	deadline()
	if err := client.Hello(s.heloDomain); err != nil {
		return fmt.Errorf("ehlo: %w", err)
	}

	if ok, _ := client.Extension("STARTTLS"); ok {
		deadline()
		tlsCfg := &tls.Config{ServerName: mxHost, MinVersion: tls.VersionTLS12}
		if err := client.StartTLS(tlsCfg); err != nil {
			return fmt.Errorf("starttls: %w", err)
		}
	}

	deadline()
	if err := client.Mail(returnPath); err != nil {
		return fmt.Errorf("mail from: %w", err)
	}

	deadline()
	if err := client.Rcpt(recipient); err != nil {
		return fmt.Errorf("rcpt to: %w", err)
	}

	deadline()
	wc, err := client.Data()
	if err != nil {
		return fmt.Errorf("data: %w", err)
	}
	if _, err := wc.Write(s.message(recipient, returnPath)); err != nil {
		wc.Close() //nolint:errcheck
		return fmt.Errorf("write body: %w", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("close body: %w", err)
	}

	deadline()
	return client.Quit()
}

func (s *Sender) message(recipient, returnPath string) []byte {
	var b strings.Builder
	b.WriteString("From: " + s.fromHeader + "\r\n")
	b.WriteString("To: " + recipient + "\r\n")
	b.WriteString("Subject: " + s.subject + "\r\n")
	b.WriteString("Return-Path: <" + returnPath + ">\r\n")
	b.WriteString("Date: " + time.Now().UTC().Format(time.RFC1123Z) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString("This message confirms that this mailbox accepts mail.\r\n")
	return []byte(b.String())
}
