package metrics

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// CallSiter is implemented by errors that know where they were raised.
// The classifier records the call site as part of the failure signature.
type CallSiter interface {
	CallSite() string
}

// ChainLink describes one link of an error's causal chain.
type ChainLink struct {
	Kind     string `json:"kind"`
	Message  string `json:"message,omitempty"`
	CallSite string `json:"call_site,omitempty"`
}

// Signature is the structural fingerprint of an error's causal chain,
// ordered outermost to innermost. Two errors are considered the same
// failure type iff their signatures are element-wise equal.
type Signature struct {
	links []ChainLink
}

// Classify walks err's causal chain via errors.Unwrap and produces one
// ChainLink per link. Transient detail baked into messages (timestamps,
// addresses) still splits signatures; that favors recall over precision
// and is accepted.
func Classify(err error) Signature {
	var links []ChainLink
	for err != nil {
		inner := errors.Unwrap(err)
		links = append(links, ChainLink{
			Kind:     fmt.Sprintf("%T", err),
			Message:  ownMessage(err, inner),
			CallSite: callSite(err),
		})
		err = inner
	}
	return Signature{links: links}
}

// ownMessage strips the inner error's text from a wrapping error's message,
// so each link carries only the detail it added itself.
func ownMessage(err, inner error) string {
	msg := err.Error()
	if inner == nil {
		return msg
	}
	if trimmed, ok := strings.CutSuffix(msg, inner.Error()); ok {
		return strings.TrimSuffix(trimmed, ": ")
	}
	return msg
}

// callSite takes the site only from the link that carries it directly,
// never from a deeper link.
func callSite(err error) string {
	if cs, ok := err.(CallSiter); ok {
		return cs.CallSite()
	}
	return ""
}

// Links returns the chain entries in outer-to-inner order.
func (s Signature) Links() []ChainLink {
	out := make([]ChainLink, len(s.links))
	copy(out, s.links)
	return out
}

// Depth returns the number of links in the chain.
func (s Signature) Depth() int { return len(s.links) }

// Equal reports full structural equality of two signatures.
func (s Signature) Equal(o Signature) bool {
	if len(s.links) != len(o.links) {
		return false
	}
	for i := range s.links {
		if s.links[i] != o.links[i] {
			return false
		}
	}
	return true
}

// Fingerprint returns a canonical string key for the signature, suitable
// for map lookup. Field and link separators are escaped out of the parts
// so distinct chains can never collide.
func (s Signature) Fingerprint() string {
	var sb strings.Builder
	for i, l := range s.links {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(escapePart(l.Kind))
		sb.WriteByte('\x1f')
		sb.WriteString(escapePart(l.Message))
		sb.WriteByte('\x1f')
		sb.WriteString(escapePart(l.CallSite))
	}
	return sb.String()
}

func escapePart(s string) string {
	if !strings.ContainsAny(s, "\n\x1f") {
		return s
	}
	s = strings.ReplaceAll(s, "\x1f", " ")
	return strings.ReplaceAll(s, "\n", " ")
}

// String renders the chain for human-readable reports.
func (s Signature) String() string {
	if len(s.links) == 0 {
		return "(no error)"
	}
	parts := make([]string, 0, len(s.links))
	for _, l := range s.links {
		part := FriendlyErrorName(l.Kind)
		if l.Message != "" {
			part += ": " + l.Message
		}
		if l.CallSite != "" {
			part += " @ " + l.CallSite
		}
		parts = append(parts, part)
	}
	return strings.Join(parts, " -> ")
}

var friendlyAliases = map[string]string{
	"*url.Error":                     "Request URL error",
	"url.Error":                      "Request URL error",
	"*net.OpError":                   "Network operation error",
	"net.OpError":                    "Network operation error",
	"*context.deadlineExceededError": "Context deadline exceeded",
	"context.deadlineExceededError":  "Context deadline exceeded",
}

// FriendlyErrorName returns a human-friendly label for a Go error type name.
func FriendlyErrorName(typeName string) string {
	cleaned := strings.TrimSpace(typeName)
	if cleaned == "" {
		return "Unknown error"
	}

	if alias, ok := friendlyAliases[cleaned]; ok {
		return alias
	}
	cleaned = strings.TrimPrefix(cleaned, "*")
	if alias, ok := friendlyAliases[cleaned]; ok {
		return alias
	}
	if idx := strings.LastIndex(cleaned, "/"); idx != -1 {
		cleaned = cleaned[idx+1:]
	}

	pkg := ""
	name := cleaned
	if idx := strings.Index(name, "."); idx != -1 {
		pkg = name[:idx]
		name = name[idx+1:]
	}

	pretty := humanizeTypeName(name)
	if pretty == "" {
		pretty = name
	}
	if pkg != "" && pkg != "main" {
		return fmt.Sprintf("%s (%s)", pretty, pkg)
	}
	return pretty
}

func humanizeTypeName(name string) string {
	if name == "" {
		return ""
	}

	var words []string
	var current []rune
	runes := []rune(name)

	appendWord := func() {
		if len(current) == 0 {
			return
		}
		word := string(current)
		if isAllUpper(word) {
			words = append(words, word)
		} else {
			words = append(words, capitalize(word))
		}
		current = current[:0]
	}

	for i, r := range runes {
		if i > 0 {
			prev := runes[i-1]
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if unicode.IsUpper(r) && (unicode.IsLower(prev) || (unicode.IsUpper(prev) && nextLower)) {
				appendWord()
			} else if unicode.IsDigit(r) && !unicode.IsDigit(prev) {
				appendWord()
			}
		}
		current = append(current, r)
	}
	appendWord()

	return strings.Join(words, " ")
}

func isAllUpper(s string) bool {
	hasLetter := false
	for _, r := range s {
		if unicode.IsLetter(r) {
			hasLetter = true
			if !unicode.IsUpper(r) {
				return false
			}
		}
	}
	return hasLetter
}

func capitalize(s string) string {
	if s == "" {
		return ""
	}
	lower := strings.ToLower(s)
	runes := []rune(lower)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
