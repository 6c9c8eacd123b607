package main

import (
	"bytes"
	"context"
	"flag"
	"io"
	"log"
	"net"
	"os"
	"strings"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"

	"xdao.co/sidecast/storage"
	"xdao.co/sidecast/storage/grpccas"
)

func TestParseConfig_EnvDefaultsAndFlags(t *testing.T) {
	t.Setenv("XDAO_CASGRPCD_BACKEND", "sqlite")

	cfg, err := parseConfig(flag.NewFlagSet("test", flag.ContinueOnError), nil)
	if err != nil {
		t.Fatalf("parseConfig: %v", err)
	}
	if cfg.Backend != "sqlite" {
		t.Fatalf("backend from env: got %q", cfg.Backend)
	}

	cfg, err = parseConfig(flag.NewFlagSet("test", flag.ContinueOnError), []string{"--backend", "localfs", "--listen", "127.0.0.1:0"})
	if err != nil {
		t.Fatalf("parseConfig: %v", err)
	}
	if cfg.Backend != "localfs" || cfg.Listen != "127.0.0.1:0" {
		t.Fatalf("flags should override env: %+v", cfg)
	}
}

func TestPrintBackends_DaemonOnly(t *testing.T) {
	var buf bytes.Buffer
	printBackends(&buf)
	out := buf.String()
	if !strings.Contains(out, "localfs\t") || !strings.Contains(out, "sqlite\t") {
		t.Fatalf("missing daemon backends: %q", out)
	}
	if strings.Contains(out, "grpc\t") {
		t.Fatalf("grpc client backend must not be offered to the daemon: %q", out)
	}
}

func TestServe_LocalFS(t *testing.T) {
	log.SetOutput(io.Discard)
	t.Cleanup(func() { log.SetOutput(os.Stderr) })

	cfg, err := parseConfig(flag.NewFlagSet("test", flag.ContinueOnError), []string{"--backend", "localfs", "--localfs-dir", t.TempDir()})
	if err != nil {
		t.Fatalf("parseConfig: %v", err)
	}
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serve(ctx, cfg, lis) }()

	cc, err := grpc.NewClient(lis.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	client := grpccas.NewClient(cc)
	defer client.Close()
	client.Timeout = 5 * time.Second

	id, err := client.Put([]byte("served"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := client.Get(id)
	if err != nil || string(got) != "served" {
		t.Fatalf("Get: %q %v", got, err)
	}
	remote, err := client.RemoteCapabilities()
	if err != nil {
		t.Fatalf("RemoteCapabilities: %v", err)
	}
	if strings.Join(remote, ",") != "storage.CAS,storage.Lister,storage.Sizer" {
		t.Fatalf("RemoteCapabilities: %v", remote)
	}
	if err := storage.Pin(client, id); !storage.IsUnsupported(err) {
		t.Fatalf("Pin: got %v want ErrUnsupported", err)
	}

	hctx, hcancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer hcancel()
	resp, err := grpc_health_v1.NewHealthClient(cc).Check(hctx, &grpc_health_v1.HealthCheckRequest{Service: grpccas.ServiceName})
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	if resp.GetStatus() != grpc_health_v1.HealthCheckResponse_SERVING {
		t.Fatalf("health: %v", resp.GetStatus())
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatalf("serve did not stop")
	}
}

func TestServe_UnknownBackend(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	if err := serve(context.Background(), config{Backend: "nope"}, lis); err == nil {
		t.Fatalf("expected unknown backend error")
	}
}
