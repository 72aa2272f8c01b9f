package reliability

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestIsRetryableHTTPStatus(t *testing.T) {
	cases := []struct {
		code int
		want bool
	}{
		{200, false},
		{400, false},
		{401, false},
		{429, true},
		{500, true},
		{503, true},
	}
	for _, tc := range cases {
		got := IsRetryableHTTPStatus(tc.code)
		if got != tc.want {
			t.Fatalf("IsRetryableHTTPStatus(%d) = %v, want %v", tc.code, got, tc.want)
		}
	}
}

type codeErr int

func (e codeErr) Error() string   { return fmt.Sprintf("status %d", int(e)) }
func (e codeErr) StatusCode() int { return int(e) }

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want Class
	}{
		{"rate limited", codeErr(429), ClassTransient},
		{"wrapped bad gateway", fmt.Errorf("open: %w", codeErr(502)), ClassTransient},
		{"forbidden", codeErr(403), ClassRejected},
		{"canceled", fmt.Errorf("send: %w", context.Canceled), ClassCanceled},
		{"deadline", context.DeadlineExceeded, ClassCanceled},
		{"refused", errors.New("dial tcp: connection refused"), ClassUnreachable},
	}
	for _, tc := range cases {
		if got := Classify(tc.err); got != tc.want {
			t.Fatalf("%s: Classify() = %q, want %q", tc.name, got, tc.want)
		}
	}
}
