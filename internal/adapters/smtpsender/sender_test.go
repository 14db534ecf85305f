package smtpsender

import (
	"context"
	"errors"
	"net"
	"net/textproto"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/Brettillian123/email-scraper-verifier-sub000/internal/mocks"
)

// capturingMX serves a canned SMTP dialogue and records the envelope and body
// it receives. rcptReply decides whether the recipient is accepted.
type capturingMX struct {
	rcptReply string

	mu       sync.Mutex
	mailFrom string
	rcptTo   string
	body     []string
}

func (m *capturingMX) dial(_ context.Context, _, _ string) (net.Conn, error) {
	client, server := net.Pipe()
	go m.serve(server)
	return client, nil
}

func (m *capturingMX) serve(server net.Conn) {
	defer server.Close()
	conn := textproto.NewConn(server)
	if err := conn.PrintfLine("220 fake.example ESMTP"); err != nil {
		return
	}
	for {
		line, err := conn.ReadLine()
		if err != nil {
			return
		}
		verb := strings.ToUpper(strings.SplitN(line, ":", 2)[0])
		verb = strings.SplitN(verb, " ", 2)[0]
		switch verb {
		case "EHLO", "HELO":
			_ = conn.PrintfLine("250-fake.example")
			_ = conn.PrintfLine("250 8BITMIME")
		case "MAIL":
			m.mu.Lock()
			m.mailFrom = line
			m.mu.Unlock()
			_ = conn.PrintfLine("250 sender ok")
		case "RCPT":
			m.mu.Lock()
			m.rcptTo = line
			m.mu.Unlock()
			_ = conn.PrintfLine("%s", m.rcptReply)
		case "DATA":
			_ = conn.PrintfLine("354 go ahead")
			for {
				bodyLine, err := conn.ReadLine()
				if err != nil {
					return
				}
				if bodyLine == "." {
					break
				}
				m.mu.Lock()
				m.body = append(m.body, bodyLine)
				m.mu.Unlock()
			}
			_ = conn.PrintfLine("250 queued")
		case "QUIT":
			_ = conn.PrintfLine("221 bye")
			return
		default:
			_ = conn.PrintfLine("502 command not implemented")
		}
	}
}

func (m *capturingMX) received() (mailFrom, rcptTo string, body []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mailFrom, m.rcptTo, m.body
}

func TestNew_RequiresResolverAndHelo(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	_, err := New(Options{HeloDomain: "verifier.example"})
	assert.EqualError(t, err, "Resolver is required")

	_, err = New(Options{Resolver: mocks.NewMockMXResolver(ctrl)})
	assert.EqualError(t, err, "HeloDomain is required")
}

func TestSend_DeliversWithReturnPathEnvelope(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	resolver := mocks.NewMockMXResolver(ctrl)
	resolver.EXPECT().ResolveMX(gomock.Any(), "acme.com").Return("mx.acme.com", nil)

	mx := &capturingMX{rcptReply: "250 recipient ok"}
	sender, err := New(Options{
		Resolver:   resolver,
		Dial:       mx.dial,
		HeloDomain: "verifier.example",
		Subject:    "Delivery confirmation",
	})
	require.NoError(t, err)

	returnPath := "bounce+vr42-deadbeef@verifier.example"
	require.NoError(t, sender.Send(context.Background(), "brett@acme.com", returnPath))

	mailFrom, rcptTo, body := mx.received()
	assert.Contains(t, mailFrom, "<"+returnPath+">")
	assert.Contains(t, rcptTo, "<brett@acme.com>")

	joined := strings.Join(body, "\n")
	assert.Contains(t, joined, "From: postmaster@verifier.example")
	assert.Contains(t, joined, "To: brett@acme.com")
	assert.Contains(t, joined, "Subject: Delivery confirmation")
	assert.Contains(t, joined, "Return-Path: <"+returnPath+">")
}

func TestSend_RejectedRecipient(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	resolver := mocks.NewMockMXResolver(ctrl)
	resolver.EXPECT().ResolveMX(gomock.Any(), "acme.com").Return("mx.acme.com", nil)

	mx := &capturingMX{rcptReply: "550 5.1.1 user unknown"}
	sender, err := New(Options{
		Resolver:   resolver,
		Dial:       mx.dial,
		HeloDomain: "verifier.example",
	})
	require.NoError(t, err)

	err = sender.Send(context.Background(), "nobody@acme.com", "bounce+vr1-deadbeef@verifier.example")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rcpt to")
	assert.Contains(t, err.Error(), "user unknown")
}

func TestSend_MalformedRecipient(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	sender, err := New(Options{
		Resolver:   mocks.NewMockMXResolver(ctrl),
		HeloDomain: "verifier.example",
	})
	require.NoError(t, err)

	for _, recipient := range []string{"", "no-at-sign", "@acme.com", "brett@"} {
		err := sender.Send(context.Background(), recipient, "bounce@verifier.example")
		assert.ErrorContains(t, err, "malformed recipient")
	}
}

func TestSend_ResolveFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	resolver := mocks.NewMockMXResolver(ctrl)
	resolver.EXPECT().ResolveMX(gomock.Any(), "acme.com").Return("", context.Canceled)

	sender, err := New(Options{Resolver: resolver, HeloDomain: "verifier.example"})
	require.NoError(t, err)

	err = sender.Send(context.Background(), "brett@acme.com", "bounce@verifier.example")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSend_DialFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	resolver := mocks.NewMockMXResolver(ctrl)
	resolver.EXPECT().ResolveMX(gomock.Any(), "acme.com").Return("mx.acme.com", nil)

	dialErr := errors.New("connection refused")
	sender, err := New(Options{
		Resolver:   resolver,
		HeloDomain: "verifier.example",
		Dial: func(_ context.Context, _, _ string) (net.Conn, error) {
			return nil, dialErr
		},
	})
	require.NoError(t, err)

	err = sender.Send(context.Background(), "brett@acme.com", "bounce@verifier.example")
	require.ErrorIs(t, err, dialErr)
	assert.Contains(t, err.Error(), "dial mx.acme.com")
}
