package main

import (
	"bytes"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"

	"stressrig/internal/runner"
)

// maxBodySnippet bounds how much of an error response body is kept for diagnostics.
const maxBodySnippet = 256

const queryAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// buildOperations assembles the operation table for a target base URL.
// When names is empty every HTTP operation is included; the WebSocket echo
// operation is opt-in because it needs an echoing upgrade endpoint.
func buildOperations(target string, names []string) ([]runner.Operation, error) {
	all := []runner.Operation{
		{Name: "get", Run: opGet(target)},
		{Name: "get-query", Run: opGetQuery(target)},
		{Name: "head", Run: opHead(target)},
		{Name: "post-echo", Run: opPostEcho(target)},
		{Name: "ws-echo", Run: opWebSocketEcho(target)},
	}
	if len(names) == 0 {
		return all[:4], nil
	}

	byName := make(map[string]runner.Operation, len(all))
	for _, op := range all {
		byName[op.Name] = op
	}
	ops := make([]runner.Operation, 0, len(names))
	for _, name := range names {
		op, ok := byName[strings.TrimSpace(name)]
		if !ok {
			return nil, fmt.Errorf("unknown operation %q (available: %s)", name, availableOps(all))
		}
		ops = append(ops, op)
	}
	return ops, nil
}

func availableOps(ops []runner.Operation) string {
	names := make([]string, len(ops))
	for i, op := range ops {
		names[i] = op.Name
	}
	return strings.Join(names, ", ")
}

func opGet(target string) func(*runner.RequestContext) error {
	return func(rc *runner.RequestContext) error {
		req, err := http.NewRequestWithContext(rc, http.MethodGet, target, nil)
		if err != nil {
			return err
		}
		resp, err := rc.Client.Do(req)
		if err != nil {
			return err
		}
		return drainAndCheck(resp)
	}
}

// opGetQuery issues a GET with a random-length query string so cache layers
// and URL parsing see varied inputs.
func opGetQuery(target string) func(*runner.RequestContext) error {
	return func(rc *runner.RequestContext) error {
		u, err := url.Parse(target)
		if err != nil {
			return err
		}
		q := u.Query()
		q.Set("q", randomToken(rc.Rand, 1+rc.Rand.Intn(64)))
		u.RawQuery = q.Encode()

		req, err := http.NewRequestWithContext(rc, http.MethodGet, u.String(), nil)
		if err != nil {
			return err
		}
		resp, err := rc.Client.Do(req)
		if err != nil {
			return err
		}
		return drainAndCheck(resp)
	}
}

func opHead(target string) func(*runner.RequestContext) error {
	return func(rc *runner.RequestContext) error {
		req, err := http.NewRequestWithContext(rc, http.MethodHead, target, nil)
		if err != nil {
			return err
		}
		resp, err := rc.Client.Do(req)
		if err != nil {
			return err
		}
		return drainAndCheck(resp)
	}
}

// opPostEcho posts a small JSON document. If the server replies with a JSON
// body containing a "payload" field, it must echo the value back unchanged;
// servers that respond with anything else are only checked for status.
func opPostEcho(target string) func(*runner.RequestContext) error {
	return func(rc *runner.RequestContext) error {
		payload := randomToken(rc.Rand, 1+rc.Rand.Intn(128))
		body := fmt.Sprintf(`{"payload":%q}`, payload)

		req, err := http.NewRequestWithContext(rc, http.MethodPost, target, strings.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := rc.Client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return err
		}
		if resp.StatusCode >= 400 {
			return runner.NewHTTPError(resp.StatusCode, snippet(data))
		}
		if echoed := gjson.GetBytes(data, "payload"); echoed.Exists() && echoed.String() != payload {
			return fmt.Errorf("echo mismatch: sent %d bytes, got %q", len(payload), snippet([]byte(echoed.String())))
		}
		return nil
	}
}

// opWebSocketEcho upgrades to a WebSocket, sends one text message and expects
// it echoed back verbatim.
func opWebSocketEcho(target string) func(*runner.RequestContext) error {
	return func(rc *runner.RequestContext) error {
		wsURL, err := websocketURL(target)
		if err != nil {
			return err
		}
		conn, resp, err := websocket.DefaultDialer.DialContext(rc, wsURL, nil)
		if err != nil {
			if resp != nil {
				return runner.NewHTTPError(resp.StatusCode, "websocket upgrade refused")
			}
			return err
		}
		defer conn.Close()

		if deadline, ok := rc.Deadline(); ok {
			_ = conn.SetReadDeadline(deadline)
			_ = conn.SetWriteDeadline(deadline)
		}

		sent := []byte(randomToken(rc.Rand, 1+rc.Rand.Intn(128)))
		if err := conn.WriteMessage(websocket.TextMessage, sent); err != nil {
			return fmt.Errorf("websocket write: %w", err)
		}
		_, got, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("websocket read: %w", err)
		}
		if !bytes.Equal(got, sent) {
			return fmt.Errorf("websocket echo mismatch: sent %d bytes, got %d bytes", len(sent), len(got))
		}
		return conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	}
}

// websocketURL maps an http(s) target onto the ws(s) scheme.
func websocketURL(target string) (string, error) {
	u, err := url.Parse(target)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("cannot derive websocket URL from scheme %q", u.Scheme)
	}
	return u.String(), nil
}

// drainAndCheck consumes the body so the connection can be reused, and turns
// 4xx/5xx statuses into errors carrying a body snippet.
func drainAndCheck(resp *http.Response) error {
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return runner.NewHTTPError(resp.StatusCode, snippet(data))
	}
	return nil
}

func snippet(data []byte) string {
	s := strings.TrimSpace(string(data))
	if len(s) > maxBodySnippet {
		s = s[:maxBodySnippet] + "..."
	}
	return s
}

func randomToken(rng *rand.Rand, n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = queryAlphabet[rng.Intn(len(queryAlphabet))]
	}
	return string(b)
}
