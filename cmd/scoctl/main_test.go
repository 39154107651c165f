package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/scosock/internal/daemon"
	"github.com/danmuck/scosock/internal/testutil/testlog"
	"github.com/gin-gonic/gin"
)

func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestLoopbackExchangesFrames(t *testing.T) {
	testlog.Start(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	res, err := runLoopback(ctx, loopbackOptions{Frames: 5, Size: 48, MTU: 60})
	if err != nil {
		t.Fatalf("loopback: %v", err)
	}
	if res.Frames != 5 || res.Bytes != 5*48 || res.Echoed != 5 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.Stats.Live != 0 || res.Stats.Allocated != res.Stats.Freed {
		t.Fatalf("sockets leaked: %+v", res.Stats)
	}
	if res.MinRTT > res.MaxRTT {
		t.Fatalf("rtt bounds inverted: %+v", res)
	}
}

func TestLoopbackRejectsOversizedFrames(t *testing.T) {
	testlog.Start(t)
	if _, err := runLoopback(context.Background(), loopbackOptions{Frames: 1, Size: 61, MTU: 60}); err == nil {
		t.Fatalf("expected size error")
	}
	if _, err := runLoopback(context.Background(), loopbackOptions{Frames: 0, Size: 1, MTU: 60}); err == nil {
		t.Fatalf("expected frames error")
	}
}

func TestLoopbackCommandOutput(t *testing.T) {
	testlog.Start(t)
	out, err := runCmd(t, "loopback", "--frames", "3", "--size", "10")
	if err != nil {
		t.Fatalf("loopback command: %v", err)
	}
	if !strings.Contains(out, "frames:   3 (30 bytes)") || !strings.Contains(out, "live=0") {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestConfigTemplateAndValidate(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "scod.toml")
	if out, err := runCmd(t, "config", "template", path); err != nil || !strings.Contains(out, "wrote daemon") {
		t.Fatalf("template: out=%q err=%v", out, err)
	}
	if _, err := runCmd(t, "config", "template", path); err == nil {
		t.Fatalf("template should refuse to overwrite")
	}
	out, err := runCmd(t, "config", "validate", path)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !strings.Contains(out, "2 adapters, 1 echo listeners") {
		t.Fatalf("unexpected validate output: %q", out)
	}
}

func TestStatusAgainstDiagServer(t *testing.T) {
	testlog.Start(t)
	gin.SetMode(gin.TestMode)
	cfg := daemon.DefaultServiceConfig()
	cfg.DiagAddr = ":0"
	svc := daemon.NewServiceWithConfig(cfg)
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer svc.Close()

	srv := httptest.NewServer(svc.Diag().Handler())
	defer srv.Close()

	var out bytes.Buffer
	if err := printStatus(context.Background(), srv.Client(), srv.URL, &out); err != nil {
		t.Fatalf("status: %v", err)
	}
	text := out.String()
	for _, want := range []string{"00:1B:DC:0F:00:01", "00:1B:DC:0F:00:02", "LISTEN", "live=1"} {
		if !strings.Contains(text, want) {
			t.Fatalf("status output missing %q:\n%s", want, text)
		}
	}
}

func TestVersion(t *testing.T) {
	testlog.Start(t)
	out, err := runCmd(t, "version")
	if err != nil || !strings.Contains(out, scoctlVersion) {
		t.Fatalf("version: out=%q err=%v", out, err)
	}
}
