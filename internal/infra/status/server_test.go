package status_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"echoloop/internal/domain"
	"echoloop/internal/infra/status"
)

type fakeProvider struct {
	running bool
	status  domain.Status
}

func (f *fakeProvider) Status() domain.Status { return f.status }
func (f *fakeProvider) Running() bool         { return f.running }

func TestServer_Health(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name       string
		running    bool
		wantStatus int
	}{
		{"running", true, http.StatusOK},
		{"stopped", false, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := status.NewServer(":0", &fakeProvider{running: tt.running}, nil, logger)

			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

			if rec.Code != tt.wantStatus {
				t.Errorf("status code: got %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestServer_Status(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	provider := &fakeProvider{
		running: true,
		status: domain.Status{
			Engine:  "sim",
			Running: true,
			Machine: domain.Snapshot{Phase: domain.PhaseCapturing, PhaseName: "capturing", Cycles: 2},
			Stream:  domain.StreamStats{Blocks: 40, InputUnderflows: 1},
		},
	}
	srv := status.NewServer(":0", provider, nil, logger)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status code: got %d, want %d", rec.Code, http.StatusOK)
	}

	var got domain.Status
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decoding status: %v", err)
	}
	if got.Machine.PhaseName != "capturing" || got.Machine.Cycles != 2 {
		t.Errorf("machine: got %+v", got.Machine)
	}
	if got.Stream.InputUnderflows != 1 {
		t.Errorf("stream: got %+v", got.Stream)
	}
}

func TestServer_Metrics(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		io.WriteString(w, "echoloop_blocks_total 1\n")
	})
	srv := status.NewServer(":0", &fakeProvider{}, metrics, logger)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status code: got %d, want %d", rec.Code, http.StatusOK)
	}

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/status", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST /status: got %d, want %d", rec.Code, http.StatusMethodNotAllowed)
	}
}

func TestServer_RunAndShutdown(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := status.NewServer("127.0.0.1:0", &fakeProvider{running: true}, nil, logger)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Run(ctx) }()

	var resp *http.Response
	var err error
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if addr := srv.Addr(); addr != "127.0.0.1:0" {
			resp, err = http.Get("http://" + addr + "/health")
			if err == nil {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	if resp == nil {
		t.Fatalf("server never answered: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health: got %d, want %d", resp.StatusCode, http.StatusOK)
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for shutdown")
	}
}
