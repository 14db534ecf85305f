// Package smtpprobe verifies mailbox existence by speaking just enough SMTP
// to reach the RCPT TO verdict, without ever sending a message body.
package smtpprobe

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"net/textproto"
	"sort"
	"strings"
	"time"

	"github.com/Brettillian123/email-scraper-verifier-sub000/internal/core"
	"github.com/Brettillian123/email-scraper-verifier-sub000/internal/domain/model"
)

// Resolver is the subset of net.Resolver the prober needs.
type Resolver interface {
	LookupMX(ctx context.Context, domain string) ([]*net.MX, error)
}

// DialFunc opens the TCP connection to an MX host. Swapped in tests.
type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// Options configures a Prober.
type Options struct {
	Resolver Resolver               // Optional: defaults to net.DefaultResolver
	Cache    core.ReachabilityCache // Optional: per-MX TCP reachability preflight
	Dial     DialFunc               // Optional: defaults to a net.Dialer
	Logger   *slog.Logger           // Optional: structured logger

	HeloDomain string // Required: domain announced in EHLO
	MailFrom   string // Required: envelope sender for MAIL FROM

	DNSTimeout     time.Duration // Optional: default 5s
	ConnectTimeout time.Duration // Optional: default 10s
	CommandTimeout time.Duration // Optional: per SMTP command, default 10s
	CacheTTL       time.Duration // Optional: reachability cache TTL, default 15m
}

// Prober implements core.Prober and core.MXResolver over real SMTP.
type Prober struct {
	resolver Resolver
	cache    core.ReachabilityCache
	dial     DialFunc
	logger   *slog.Logger

	heloDomain string
	mailFrom   string

	dnsTimeout     time.Duration
	connectTimeout time.Duration
	commandTimeout time.Duration
	cacheTTL       time.Duration
}

// New constructs a Prober.
func New(opts Options) (*Prober, error) {
	if opts.HeloDomain == "" {
		return nil, errors.New("HeloDomain is required")
	}
	if opts.MailFrom == "" {
		return nil, errors.New("MailFrom is required")
	}

	p := &Prober{
		resolver:       opts.Resolver,
		cache:          opts.Cache,
		dial:           opts.Dial,
		heloDomain:     opts.HeloDomain,
		mailFrom:       opts.MailFrom,
		dnsTimeout:     opts.DNSTimeout,
		connectTimeout: opts.ConnectTimeout,
		commandTimeout: opts.CommandTimeout,
		cacheTTL:       opts.CacheTTL,
	}
	if p.resolver == nil {
		p.resolver = net.DefaultResolver
	}
	if p.dnsTimeout <= 0 {
		p.dnsTimeout = 5 * time.Second
	}
	if p.connectTimeout <= 0 {
		p.connectTimeout = 10 * time.Second
	}
	if p.commandTimeout <= 0 {
		p.commandTimeout = 10 * time.Second
	}
	if p.cacheTTL <= 0 {
		p.cacheTTL = 15 * time.Minute
	}
	if p.dial == nil {
		dialer := &net.Dialer{Timeout: p.connectTimeout}
		p.dial = dialer.DialContext
	}
	if opts.Logger != nil {
		p.logger = opts.Logger.With("component", "smtp_prober")
	}
	return p, nil
}

// ResolveMX returns the lowest-preference MX host for domain, falling back to
// the bare domain when the lookup yields nothing usable. Only a cancelled
// context surfaces as an error.
func (p *Prober) ResolveMX(ctx context.Context, domain string) (string, error) {
	domain = model.NormalizeDomain(domain)

	lookupCtx, cancel := context.WithTimeout(ctx, p.dnsTimeout)
	defer cancel()

	records, err := p.resolver.LookupMX(lookupCtx, domain)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		// No MX means mail may still be routed to the A record.
		return domain, nil
	}

	hosts := make([]*net.MX, 0, len(records))
	for _, mx := range records {
		if mx != nil && mx.Host != "" && mx.Host != "." {
			hosts = append(hosts, mx)
		}
	}
	if len(hosts) == 0 {
		return domain, nil
	}

	sort.SliceStable(hosts, func(i, j int) bool { return hosts[i].Pref < hosts[j].Pref })
	return strings.TrimSuffix(hosts[0].Host, "."), nil
}

// Probe checks whether mxHost accepts mail for email. The outcome category
// carries the verdict; Err is populated for diagnostics only.
func (p *Prober) Probe(ctx context.Context, email, mxHost string) model.ProbeOutcome {
	start := time.Now()

	if mxHost == "" {
		resolved, err := p.ResolveMX(ctx, domainOf(email))
		if err != nil {
			return outcome(model.ProbeUnknown, 0, "", mxHost, start, err)
		}
		mxHost = resolved
	}

	if known, reachable := p.preflight(ctx, mxHost); known && !reachable {
		return outcome(model.ProbeTempFail, 0, "mx recently unreachable", mxHost, start,
			fmt.Errorf("mx %s recently unreachable", mxHost))
	}

	conn, err := p.dial(ctx, "tcp", net.JoinHostPort(mxHost, "25"))
	if err != nil {
		p.remember(ctx, mxHost, false)
		return outcome(classifyTransportError(err), 0, "", mxHost, start, err)
	}
	p.remember(ctx, mxHost, true)

	code, msg, err := p.converse(conn, email, mxHost)
	if err != nil && code == 0 {
		return outcome(classifyTransportError(err), 0, "", mxHost, start, err)
	}
	return outcome(model.ClassifySMTPCode(code), code, msg, mxHost, start, err)
}

// converse runs the SMTP dialogue up to the RCPT TO verdict. The returned
// code is the final reply code that decides the outcome.
func (p *Prober) converse(conn net.Conn, email, mxHost string) (int, string, error) {
	deadline := func() {
		_ = conn.SetDeadline(time.Now().Add(p.commandTimeout))
	}
	deadline()

	client, err := smtp.NewClient(conn, mxHost)
	if err != nil {
		_ = conn.Close()
		return smtpCode(err), smtpMessage(err), err
	}
	defer client.Close()

	deadline()
	if err := client.Hello(p.heloDomain); err != nil {
		return smtpCode(err), smtpMessage(err), err
	}

	if ok, _ := client.Extension("STARTTLS"); ok {
		deadline()
		if err := client.StartTLS(&tls.Config{ServerName: mxHost, MinVersion: tls.VersionTLS12}); err != nil {
			// A failed upgrade leaves the channel in an undefined state, so the
			// probe ends here as a transport error, not a mailbox verdict.
			if p.logger != nil {
				p.logger.Debug("starttls failed", "mx_host", mxHost, "err", err)
			}
			return smtpCode(err), smtpMessage(err), err
		}
	}

	deadline()
	if err := client.Mail(p.mailFrom); err != nil {
		return smtpCode(err), smtpMessage(err), err
	}

	deadline()
	err = client.Rcpt(email)
	code, msg := 250, ""
	if err != nil {
		code, msg = smtpCode(err), smtpMessage(err)
	}

	deadline()
	_ = client.Quit()
	return code, msg, err
}

func (p *Prober) preflight(ctx context.Context, mxHost string) (known, reachable bool) {
	if p.cache == nil {
		return false, false
	}
	reachable, known, err := p.cache.Get(ctx, mxHost)
	if err != nil {
		if p.logger != nil {
			p.logger.Warn("reachability cache read failed", "mx_host", mxHost, "err", err)
		}
		return false, false
	}
	return known, reachable
}

func (p *Prober) remember(ctx context.Context, mxHost string, reachable bool) {
	if p.cache == nil {
		return
	}
	if err := p.cache.Set(ctx, mxHost, reachable, p.cacheTTL); err != nil && p.logger != nil {
		p.logger.Warn("reachability cache write failed", "mx_host", mxHost, "err", err)
	}
}

func outcome(cat model.ProbeCategory, code int, msg, mxHost string, start time.Time, err error) model.ProbeOutcome {
	return model.ProbeOutcome{
		Category: cat,
		Code:     code,
		Message:  msg,
		MXHost:   mxHost,
		Elapsed:  time.Since(start),
		Err:      err,
	}
}

// classifyTransportError maps connection-level failures: timeouts defer,
// anything else says nothing about the mailbox.
func classifyTransportError(err error) model.ProbeCategory {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return model.ProbeTempFail
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return model.ProbeTempFail
	}
	return model.ProbeUnknown
}

func smtpCode(err error) int {
	var tpErr *textproto.Error
	if errors.As(err, &tpErr) {
		return tpErr.Code
	}
	return 0
}

func smtpMessage(err error) string {
	var tpErr *textproto.Error
	if errors.As(err, &tpErr) {
		return tpErr.Msg
	}
	if err != nil {
		return err.Error()
	}
	return ""
}

func domainOf(email string) string {
	if at := strings.LastIndex(email, "@"); at >= 0 {
		return email[at+1:]
	}
	return ""
}
