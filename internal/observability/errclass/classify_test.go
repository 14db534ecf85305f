package errclass

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

type probeTimeoutError struct{}

func (probeTimeoutError) Error() string { return "probe deadline" }

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "nil", err: nil, want: ""},
		{
			name: "deadline exceeded",
			err:  fmt.Errorf("probe mx.acme.com: %w", context.DeadlineExceeded),
			want: "deadline_exceeded",
		},
		{
			name: "canceled",
			err:  context.Canceled,
			want: "canceled",
		},
		{
			name: "net timeout",
			err:  &net.DNSError{Err: "i/o timeout", IsTimeout: true},
			want: "net_timeout",
		},
		{
			name: "dns failure",
			err:  fmt.Errorf("resolve mx: %w", &net.DNSError{Err: "no such host", IsNotFound: true}),
			want: "dns_error",
		},
		{
			name: "postgres error carries sqlstate",
			err:  fmt.Errorf("upsert result: %w", &pgconn.PgError{Code: "23505"}),
			want: "pg_23505",
		},
		{
			name: "plain error falls back to innermost type",
			err:  fmt.Errorf("outer: %w", errors.New("inner")),
			want: "errors_errorstring",
		},
		{
			name: "custom error type",
			err:  fmt.Errorf("wrapped: %w", probeTimeoutError{}),
			want: "errclass_probetimeouterror",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}
