package slackbot

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/slack-go/slack"
)

// mockSlack records every Web API call the bot makes.
type mockSlack struct {
	mu        sync.Mutex
	calls     map[string][]url.Values
	updateErr bool
}

func newMockSlackAPI(t *testing.T) (*slack.Client, *mockSlack) {
	t.Helper()
	m := &mockSlack{calls: make(map[string][]url.Values)}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		path := strings.TrimPrefix(r.URL.Path, "/api/")

		m.mu.Lock()
		m.calls[path] = append(m.calls[path], r.Form)
		updateErr := m.updateErr
		m.mu.Unlock()

		switch path {
		case "auth.test":
			_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "user_id": "UBOT"})
		case "users.info":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"ok": true,
				"user": map[string]any{
					"id":        r.Form.Get("user"),
					"name":      "alice",
					"real_name": "Alice Real",
					"profile": map[string]any{
						"display_name": "Alice Display",
					},
				},
			})
		case "conversations.open":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"ok": true,
				"channel": map[string]any{
					"id": "D_" + r.Form.Get("users"),
				},
			})
		case "chat.postMessage":
			_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "channel": r.Form.Get("channel"), "ts": "1.23"})
		case "chat.postEphemeral":
			_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "message_ts": "1.24"})
		case "chat.update":
			if updateErr {
				_ = json.NewEncoder(w).Encode(map[string]any{"ok": false, "error": "message_not_found"})
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "channel": r.Form.Get("channel"), "ts": r.Form.Get("ts"), "text": r.Form.Get("text")})
		default:
			_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
		}
	}))
	t.Cleanup(server.Close)

	return slack.New("xoxb-test", slack.OptionAPIURL(server.URL+"/api/")), m
}

func (m *mockSlack) Calls(method string) []url.Values {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]url.Values(nil), m.calls[method]...)
}

// only fails the test unless exactly one call was made to method.
func (m *mockSlack) only(t *testing.T, method string) url.Values {
	t.Helper()
	calls := m.Calls(method)
	if len(calls) != 1 {
		t.Fatalf("expected 1 %s call, got %d", method, len(calls))
	}
	return calls[0]
}

// buttonValue digs the value of the button with actionID out of a posted
// blocks payload.
func buttonValue(t *testing.T, blocksJSON, actionID string) string {
	t.Helper()
	var blocks []struct {
		Elements []struct {
			ActionID string `json:"action_id"`
			Value    string `json:"value"`
		} `json:"elements"`
	}
	if err := json.Unmarshal([]byte(blocksJSON), &blocks); err != nil {
		t.Fatalf("decode blocks: %v", err)
	}
	for _, b := range blocks {
		for _, el := range b.Elements {
			if el.ActionID == actionID {
				return el.Value
			}
		}
	}
	t.Fatalf("no %s button in %s", actionID, blocksJSON)
	return ""
}
