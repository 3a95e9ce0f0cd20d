package metrics

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
)

type sitedError struct {
	msg  string
	site string
}

func (e *sitedError) Error() string    { return e.msg }
func (e *sitedError) CallSite() string { return e.site }

func TestClassifyWalksChain(t *testing.T) {
	err := fmt.Errorf("fetch: %w", io.EOF)
	sig := Classify(err)

	if sig.Depth() != 2 {
		t.Fatalf("depth = %d, want 2", sig.Depth())
	}
	links := sig.Links()
	if links[0].Message != "fetch" {
		t.Errorf("outer message = %q, want %q", links[0].Message, "fetch")
	}
	if links[1].Message != "EOF" {
		t.Errorf("inner message = %q, want %q", links[1].Message, "EOF")
	}
}

func TestClassifySameChainsAreEqual(t *testing.T) {
	a := Classify(fmt.Errorf("request: %w", errors.New("connection refused")))
	b := Classify(fmt.Errorf("request: %w", errors.New("connection refused")))

	if !a.Equal(b) {
		t.Error("structurally identical chains should be equal")
	}
	if a.Fingerprint() != b.Fingerprint() {
		t.Error("fingerprints of equal signatures should match")
	}
}

func TestClassifyDistinctMessagesSplit(t *testing.T) {
	a := Classify(errors.New("dial tcp: connection refused"))
	b := Classify(errors.New("dial tcp: connection reset"))

	if a.Equal(b) {
		t.Error("different messages must produce different signatures")
	}
	if a.Fingerprint() == b.Fingerprint() {
		t.Error("different messages must produce different fingerprints")
	}
}

func TestClassifyDistinctDepthsSplit(t *testing.T) {
	inner := errors.New("boom")
	a := Classify(inner)
	b := Classify(fmt.Errorf("wrapped: %w", inner))

	if a.Equal(b) {
		t.Error("chains of different depth must not be equal")
	}
}

func TestClassifyCallSite(t *testing.T) {
	err := fmt.Errorf("op failed: %w", &sitedError{msg: "HTTP 500", site: "ops/get.go:42"})
	links := Classify(err).Links()

	if links[0].CallSite != "" {
		t.Errorf("wrapper should not inherit the inner call site, got %q", links[0].CallSite)
	}
	if links[1].CallSite != "ops/get.go:42" {
		t.Errorf("inner call site = %q, want ops/get.go:42", links[1].CallSite)
	}
}

func TestClassifyCallSiteSplitsSignatures(t *testing.T) {
	a := Classify(&sitedError{msg: "HTTP 500", site: "ops/get.go:42"})
	b := Classify(&sitedError{msg: "HTTP 500", site: "ops/post.go:99"})

	if a.Equal(b) {
		t.Error("same message at different call sites must split")
	}
}

func TestSignatureString(t *testing.T) {
	err := fmt.Errorf("fetch: %w", io.EOF)
	s := Classify(err).String()

	if !strings.Contains(s, " -> ") {
		t.Errorf("chain string should join links with arrow, got %q", s)
	}
	if !strings.Contains(s, "fetch") {
		t.Errorf("chain string should carry the outer message, got %q", s)
	}
}

func TestFingerprintEscapesSeparators(t *testing.T) {
	a := Classify(errors.New("line one\nline two"))
	b := Classify(fmt.Errorf("line one: %w", errors.New("line two")))

	if a.Fingerprint() == b.Fingerprint() {
		t.Error("separator characters inside messages must not collide with link boundaries")
	}
}

func TestFriendlyErrorName(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"*url.Error", "Request URL error"},
		{"*net.OpError", "Network operation error"},
		{"*context.deadlineExceededError", "Context deadline exceeded"},
		{"*runner.HTTPError", "HTTP Error (runner)"},
		{"*errors.errorString", "Error String (errors)"},
		{"", "Unknown error"},
	}
	for _, tc := range cases {
		if got := FriendlyErrorName(tc.in); got != tc.want {
			t.Errorf("FriendlyErrorName(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
