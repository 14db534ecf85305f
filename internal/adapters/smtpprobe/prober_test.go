package smtpprobe

import (
	"context"
	"errors"
	"net"
	"net/textproto"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Brettillian123/email-scraper-verifier-sub000/internal/domain/model"
)

type resolverFunc func(ctx context.Context, domain string) ([]*net.MX, error)

func (f resolverFunc) LookupMX(ctx context.Context, domain string) ([]*net.MX, error) {
	return f(ctx, domain)
}

type fakeCache struct {
	mu        sync.Mutex
	reachable bool
	known     bool
	getErr    error

	setHost      string
	setReachable bool
	setTTL       time.Duration
}

func (c *fakeCache) Get(_ context.Context, _ string) (bool, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reachable, c.known, c.getErr
}

func (c *fakeCache) Set(_ context.Context, mxHost string, reachable bool, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setHost = mxHost
	c.setReachable = reachable
	c.setTTL = ttl
	return nil
}

// fakeMX serves a canned SMTP dialogue on the server end of a net.Pipe and
// returns a DialFunc handing out the client end. rcptReply decides the verdict.
func fakeMX(t *testing.T, rcptReply string) DialFunc {
	t.Helper()
	return func(_ context.Context, _, _ string) (net.Conn, error) {
		client, server := net.Pipe()
		go func() {
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
				verb := strings.ToUpper(strings.SplitN(line, " ", 2)[0])
				verb = strings.SplitN(verb, ":", 2)[0]
				switch verb {
				case "EHLO", "HELO":
					_ = conn.PrintfLine("250-fake.example")
					_ = conn.PrintfLine("250 8BITMIME")
				case "MAIL":
					_ = conn.PrintfLine("250 sender ok")
				case "RCPT":
					_ = conn.PrintfLine("%s", rcptReply)
				case "QUIT":
					_ = conn.PrintfLine("221 bye")
					return
				default:
					_ = conn.PrintfLine("502 command not implemented")
				}
			}
		}()
		return client, nil
	}
}

func newTestProber(t *testing.T, opts Options) *Prober {
	t.Helper()
	if opts.HeloDomain == "" {
		opts.HeloDomain = "verifier.example"
	}
	if opts.MailFrom == "" {
		opts.MailFrom = "probe@verifier.example"
	}
	p, err := New(opts)
	require.NoError(t, err)
	return p
}

func TestNew_RequiresIdentity(t *testing.T) {
	_, err := New(Options{MailFrom: "probe@verifier.example"})
	assert.EqualError(t, err, "HeloDomain is required")

	_, err = New(Options{HeloDomain: "verifier.example"})
	assert.EqualError(t, err, "MailFrom is required")
}

func TestProbe_AcceptedRecipient(t *testing.T) {
	p := newTestProber(t, Options{Dial: fakeMX(t, "250 recipient ok")})

	out := p.Probe(context.Background(), "brett@acme.com", "mx.acme.com")

	assert.Equal(t, model.ProbeAccept, out.Category)
	assert.Equal(t, 250, out.Code)
	assert.Equal(t, "mx.acme.com", out.MXHost)
	assert.NoError(t, out.Err)
}

func TestProbe_HardRejectedRecipient(t *testing.T) {
	p := newTestProber(t, Options{Dial: fakeMX(t, "550 5.1.1 user unknown")})

	out := p.Probe(context.Background(), "nobody@acme.com", "mx.acme.com")

	assert.Equal(t, model.ProbeHardFail, out.Category)
	assert.Equal(t, 550, out.Code)
	assert.Contains(t, out.Message, "user unknown")
	assert.Error(t, out.Err)
}

func TestProbe_DeferredRecipient(t *testing.T) {
	p := newTestProber(t, Options{Dial: fakeMX(t, "451 greylisted, try later")})

	out := p.Probe(context.Background(), "brett@acme.com", "mx.acme.com")

	assert.Equal(t, model.ProbeTempFail, out.Category)
	assert.Equal(t, 451, out.Code)
	assert.True(t, out.Retryable())
}

func TestProbe_DialTimeoutDefersAndCachesUnreachable(t *testing.T) {
	cache := &fakeCache{}
	dialErr := &net.DNSError{Err: "i/o timeout", IsTimeout: true}
	p := newTestProber(t, Options{
		Cache:    cache,
		CacheTTL: 15 * time.Minute,
		Dial: func(_ context.Context, _, _ string) (net.Conn, error) {
			return nil, dialErr
		},
	})

	out := p.Probe(context.Background(), "brett@acme.com", "mx.acme.com")

	assert.Equal(t, model.ProbeTempFail, out.Category)
	assert.ErrorIs(t, out.Err, dialErr)
	assert.Equal(t, "mx.acme.com", cache.setHost)
	assert.False(t, cache.setReachable)
	assert.Equal(t, 15*time.Minute, cache.setTTL)
}

func TestProbe_ConnectionRefusedIsUnknown(t *testing.T) {
	p := newTestProber(t, Options{
		Dial: func(_ context.Context, _, _ string) (net.Conn, error) {
			return nil, errors.New("connection refused")
		},
	})

	out := p.Probe(context.Background(), "brett@acme.com", "mx.acme.com")

	assert.Equal(t, model.ProbeUnknown, out.Category)
	assert.Error(t, out.Err)
}

func TestProbe_KnownUnreachableMXSkipsDial(t *testing.T) {
	cache := &fakeCache{known: true, reachable: false}
	p := newTestProber(t, Options{
		Cache: cache,
		Dial: func(_ context.Context, _, _ string) (net.Conn, error) {
			t.Fatal("dial should not be attempted for a known-unreachable MX")
			return nil, nil
		},
	})

	out := p.Probe(context.Background(), "brett@acme.com", "mx.acme.com")

	assert.Equal(t, model.ProbeTempFail, out.Category)
	assert.Contains(t, out.Message, "unreachable")
}

func TestProbe_CacheReadFailureIsIgnored(t *testing.T) {
	cache := &fakeCache{getErr: errors.New("redis down")}
	p := newTestProber(t, Options{
		Cache: cache,
		Dial:  fakeMX(t, "250 recipient ok"),
	})

	out := p.Probe(context.Background(), "brett@acme.com", "mx.acme.com")
	assert.Equal(t, model.ProbeAccept, out.Category)
}

func TestProbe_ResolvesMXWhenHostMissing(t *testing.T) {
	resolver := resolverFunc(func(_ context.Context, domain string) ([]*net.MX, error) {
		assert.Equal(t, "acme.com", domain)
		return []*net.MX{{Host: "mx.acme.com.", Pref: 10}}, nil
	})
	p := newTestProber(t, Options{
		Resolver: resolver,
		Dial:     fakeMX(t, "250 recipient ok"),
	})

	out := p.Probe(context.Background(), "brett@acme.com", "")
	assert.Equal(t, model.ProbeAccept, out.Category)
	assert.Equal(t, "mx.acme.com", out.MXHost)
}

func TestResolveMX_PrefersLowestPreference(t *testing.T) {
	resolver := resolverFunc(func(_ context.Context, _ string) ([]*net.MX, error) {
		return []*net.MX{
			{Host: "backup.acme.com.", Pref: 20},
			{Host: "primary.acme.com.", Pref: 5},
			{Host: "relay.acme.com.", Pref: 10},
		}, nil
	})
	p := newTestProber(t, Options{Resolver: resolver})

	host, err := p.ResolveMX(context.Background(), "Acme.COM")
	require.NoError(t, err)
	assert.Equal(t, "primary.acme.com", host)
}

func TestResolveMX_FallsBackToDomain(t *testing.T) {
	t.Run("lookup error", func(t *testing.T) {
		resolver := resolverFunc(func(_ context.Context, _ string) ([]*net.MX, error) {
			return nil, &net.DNSError{Err: "no such host", IsNotFound: true}
		})
		p := newTestProber(t, Options{Resolver: resolver})

		host, err := p.ResolveMX(context.Background(), "acme.com")
		require.NoError(t, err)
		assert.Equal(t, "acme.com", host)
	})

	t.Run("null MX record", func(t *testing.T) {
		resolver := resolverFunc(func(_ context.Context, _ string) ([]*net.MX, error) {
			return []*net.MX{{Host: ".", Pref: 0}}, nil
		})
		p := newTestProber(t, Options{Resolver: resolver})

		host, err := p.ResolveMX(context.Background(), "acme.com")
		require.NoError(t, err)
		assert.Equal(t, "acme.com", host)
	})
}

func TestResolveMX_CancelledContext(t *testing.T) {
	resolver := resolverFunc(func(ctx context.Context, _ string) ([]*net.MX, error) {
		return nil, ctx.Err()
	})
	p := newTestProber(t, Options{Resolver: resolver})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.ResolveMX(ctx, "acme.com")
	assert.ErrorIs(t, err, context.Canceled)
}
