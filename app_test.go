package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Virstriker/ChatApp/global/config"
	"github.com/Virstriker/ChatApp/logger"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func init() { logger.Replace(zap.NewNop()) }

func testConfig() config.AppConfig {
	cfg := config.Default()
	cfg.HTTPAddr = "127.0.0.1:0"
	cfg.AllowedOrigins = []string{"http://ok.example"}
	return cfg
}

func TestRouterEndpoints(t *testing.T) {
	a, err := newApp(context.Background(), testConfig())
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.hub.Run(ctx)

	srv := httptest.NewServer(a.router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	var body struct {
		Code int `json:"code"`
		Data struct {
			Node         string `json:"node"`
			Participants int    `json:"participants"`
		} `json:"data"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || body.Code != 200 || body.Data.Node != "1" {
		t.Fatalf("healthz = %d %+v", resp.StatusCode, body)
	}

	// a participant makes it into the gauges
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	if err := conn.WriteJSON(map[string]any{"event": "identify", "data": map[string]string{"id": "A"}}); err != nil {
		t.Fatal(err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err != nil {
		t.Fatalf("roster: %v", err)
	}

	resp, err = http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	raw, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(raw), "ppchat_participants_online 1") {
		t.Fatalf("metrics = %d\n%s", resp.StatusCode, raw)
	}

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/login", strings.NewReader(`{"username":"A"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Origin", "http://evil.example")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("foreign origin login = %d", resp.StatusCode)
	}
}

func TestHealthzAfterStop(t *testing.T) {
	a, err := newApp(context.Background(), testConfig())
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	go a.hub.Run(ctx)
	cancel()
	<-a.hub.Done()

	w := httptest.NewRecorder()
	a.router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("healthz = %d", w.Code)
	}
}

func TestStartStop(t *testing.T) {
	cfg := testConfig()
	cfg.GRPCAddr = "127.0.0.1:0"
	a, err := newApp(context.Background(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	if err := a.start(); err != nil {
		t.Fatal(err)
	}

	st, err := a.health.Check(context.Background(), &healthpb.HealthCheckRequest{})
	if err != nil || st.Status != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("health = %v %v", st, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.stop(ctx); err != nil {
		t.Fatal(err)
	}
	if err := a.stop(ctx); err != nil {
		t.Fatal("second stop:", err)
	}
	select {
	case <-a.notifier.Done():
	default:
		t.Fatal("notifier still running")
	}
	if _, err := a.hub.Stats(ctx); err == nil {
		t.Fatal("hub still answering")
	}
}

func TestStartListenError(t *testing.T) {
	cfg := testConfig()
	cfg.HTTPAddr = "256.0.0.1:80"
	a, err := newApp(context.Background(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	if err := a.start(); err == nil {
		t.Fatal("bad address accepted")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = a.stop(ctx)
}

