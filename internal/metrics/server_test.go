package metrics

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestStatusEndpointUnavailableWithoutFunc(t *testing.T) {
	s := NewServer(19091, "/metrics", testLogger())
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer s.Stop(context.Background())

	waitForServer(t, s.Port())

	resp, err := http.Get("http://127.0.0.1:19091/status")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected 503 with no status func registered, got %d", resp.StatusCode)
	}
}

func TestStatusEndpointServesRegisteredFunc(t *testing.T) {
	s := NewServer(19092, "/metrics", testLogger())
	s.SetStatusFunc(func() any {
		return map[string]string{"web": "running"}
	})
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer s.Stop(context.Background())

	waitForServer(t, s.Port())

	resp, err := http.Get("http://127.0.0.1:19092/status")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	var got map[string]string
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("invalid json: %v, body: %s", err, body)
	}
	if got["web"] != "running" {
		t.Errorf("expected web=running, got %v", got)
	}
}

func TestControlEndpointInvokesRegisteredFunc(t *testing.T) {
	s := NewServer(19093, "/metrics", testLogger())
	var gotAction, gotProcess string
	s.SetControlFunc(func(action, process string) error {
		gotAction, gotProcess = action, process
		return nil
	})
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer s.Stop(context.Background())

	waitForServer(t, s.Port())

	body, _ := json.Marshal(ControlRequest{Action: "restart", Process: "web"})
	resp, err := http.Post(fmt.Sprintf("http://127.0.0.1:%d/control", s.Port()), "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
	if gotAction != "restart" || gotProcess != "web" {
		t.Errorf("control func not invoked with expected args: %q %q", gotAction, gotProcess)
	}
}

func TestControlEndpointRejectsGet(t *testing.T) {
	s := NewServer(19094, "/metrics", testLogger())
	s.SetControlFunc(func(action, process string) error { return nil })
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer s.Stop(context.Background())

	waitForServer(t, s.Port())

	resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/control", s.Port()))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", resp.StatusCode)
	}
}

func waitForServer(t *testing.T, port int) {
	t.Helper()
	for i := 0; i < 50; i++ {
		if _, err := http.Get("http://127.0.0.1:" + strconv.Itoa(port) + "/health"); err == nil {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
}
