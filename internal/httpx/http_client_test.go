package httpx

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestConfigureExternalHTTPClient(t *testing.T) {
	original := externalHTTPClient.Timeout
	t.Cleanup(func() {
		externalHTTPClient.Timeout = original
	})

	tests := []struct {
		seconds int
		want    time.Duration
	}{
		{0, defaultExternalHTTPTimeout},
		{-5, defaultExternalHTTPTimeout},
		{30, 30 * time.Second},
	}
	for _, tt := range tests {
		if got := ConfigureExternalHTTPClient(tt.seconds); got != tt.want {
			t.Fatalf("ConfigureExternalHTTPClient(%d) = %s, want %s", tt.seconds, got, tt.want)
		}
		if Client().Timeout != tt.want {
			t.Fatalf("shared client timeout = %s, want %s", Client().Timeout, tt.want)
		}
	}
}

func TestClientSetsUserAgent(t *testing.T) {
	var got []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = append(got, r.Header.Get("User-Agent"))
	}))
	t.Cleanup(server.Close)

	resp, err := Client().Get(server.URL)
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	resp.Body.Close()

	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
	req.Header.Set("User-Agent", "custom/2.0")
	resp, err = Client().Do(req)
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	resp.Body.Close()

	if len(got) != 2 || got[0] != UserAgent || got[1] != "custom/2.0" {
		t.Fatalf("user agents = %v", got)
	}
}
