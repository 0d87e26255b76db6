package transcribe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"syscall"
	"testing"

	"github.com/openai/openai-go"
)

func apiErr(code int) *openai.Error {
	return &openai.Error{
		StatusCode: code,
		Request:    httptest.NewRequest(http.MethodPost, "http://localhost/v1/audio/transcriptions", nil),
		Response:   &http.Response{StatusCode: code},
	}
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"401", apiErr(401), KindUnauthorized},
		{"403", apiErr(403), KindUnauthorized},
		{"404", apiErr(404), KindNotFound},
		{"408", apiErr(408), KindTimeout},
		{"500", apiErr(500), KindOther},
		{"504", apiErr(504), KindTimeout},
		{"400", fmt.Errorf("wrapped: %w", apiErr(400)), KindOther},
		{"deadline", context.DeadlineExceeded, KindTimeout},
		{"net timeout", &url.Error{Op: "Post", URL: "http://x", Err: timeoutErr{}}, KindTimeout},
		{"refused", &net.OpError{Op: "dial", Net: "tcp", Err: os.NewSyscallError("connect", syscall.ECONNREFUSED)}, KindConnection},
		{"reset", fmt.Errorf("read: %w", syscall.ECONNRESET), KindConnection},
		{"dns", &net.DNSError{Err: "no such host", Name: "nope.invalid"}, KindConnection},
		{"url error", &url.Error{Op: "Post", URL: "http://x", Err: errors.New("EOF")}, KindConnection},
		{"canceled", &url.Error{Op: "Post", URL: "http://x", Err: context.Canceled}, KindOther},
		{"plain", errors.New("unexpected response shape"), KindOther},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.err)
			if got == nil {
				t.Fatal("Classify() = nil")
			}
			if got.Kind != tt.want {
				t.Errorf("Classify(%v).Kind = %v, want %v", tt.err, got.Kind, tt.want)
			}
			if !errors.Is(got, tt.err) {
				t.Error("classified error should wrap the original")
			}
		})
	}
}

func TestClassifyNilAndIdempotent(t *testing.T) {
	if Classify(nil) != nil {
		t.Error("Classify(nil) should be nil")
	}
	first := Classify(apiErr(404))
	wrapped := fmt.Errorf("deliver: %w", first)
	if got := Classify(wrapped); got != first {
		t.Error("Classify() should return an already classified error unchanged")
	}
	if first.StatusCode != 404 {
		t.Errorf("StatusCode = %d, want 404", first.StatusCode)
	}
}

func TestKindEndpointClass(t *testing.T) {
	for _, k := range []Kind{KindConnection, KindTimeout, KindNotFound, KindUnauthorized} {
		if !k.EndpointClass() {
			t.Errorf("%v.EndpointClass() = false, want true", k)
		}
	}
	if KindOther.EndpointClass() {
		t.Error("KindOther.EndpointClass() = true, want false")
	}
	if KindOf(nil) != KindOther {
		t.Error("KindOf(nil) should be KindOther")
	}
}
