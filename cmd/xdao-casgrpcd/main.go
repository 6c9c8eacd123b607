package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"

	"xdao.co/sidecast/internal/telemetry"
	"xdao.co/sidecast/storage"
	"xdao.co/sidecast/storage/casconfig"
	"xdao.co/sidecast/storage/casregistry"
	"xdao.co/sidecast/storage/grpccas"

	_ "xdao.co/sidecast/storage/ipfs"
	_ "xdao.co/sidecast/storage/localfs"
	_ "xdao.co/sidecast/storage/sqlitecas"
)

// config holds daemon settings. Environment values become flag defaults.
type config struct {
	Listen       string `env:"XDAO_CASGRPCD_LISTEN" envDefault:"127.0.0.1:7777"`
	Backend      string `env:"XDAO_CASGRPCD_BACKEND" envDefault:"localfs"`
	ConfigPath   string `env:"XDAO_CASGRPCD_CONFIG"`
	OTelEndpoint string `env:"XDAO_CASGRPCD_OTEL_ENDPOINT"`
	ListBackends bool
}

func main() {
	cfg, err := parseConfig(flag.NewFlagSet("xdao-casgrpcd", flag.ContinueOnError), os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		log.Fatalf("parse flags: %v", err)
	}
	if cfg.ListBackends {
		printBackends(os.Stdout)
		return
	}
	log.SetPrefix("[CASGRPCD] ")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatalf("failed to serve: %v", err)
	}
}

func parseConfig(fs *flag.FlagSet, args []string) (config, error) {
	var cfg config
	if err := casconfig.ParseEnv(&cfg); err != nil {
		return config{}, err
	}
	fs.StringVar(&cfg.Listen, "listen", cfg.Listen, "listen address")
	fs.StringVar(&cfg.Backend, "backend", cfg.Backend, "CAS backend name")
	fs.StringVar(&cfg.ConfigPath, "config", cfg.ConfigPath, "Multi-backend config file (JSON or YAML; overrides --backend)")
	fs.StringVar(&cfg.OTelEndpoint, "otel-endpoint", cfg.OTelEndpoint, "OTLP/HTTP trace endpoint (empty disables tracing)")
	fs.BoolVar(&cfg.ListBackends, "list-backends", false, "List supported backends and exit")
	casregistry.RegisterFlags(fs, casregistry.UsageDaemon)

	if err := fs.Parse(args); err != nil {
		return config{}, err
	}
	return cfg, nil
}

func printBackends(w io.Writer) {
	for _, b := range casregistry.List(casregistry.UsageDaemon) {
		if b.Description == "" {
			_, _ = fmt.Fprintf(w, "%s\n", b.Name)
			continue
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\n", b.Name, b.Description)
	}
}

func openCAS(cfg config) (storage.CAS, func() error, error) {
	if cfg.ConfigPath != "" {
		c, err := casconfig.LoadFile(cfg.ConfigPath)
		if err != nil {
			return nil, nil, err
		}
		return c.Open(casregistry.UsageDaemon, "")
	}
	return casregistry.Open(cfg.Backend, casregistry.UsageDaemon)
}

func run(ctx context.Context, cfg config) error {
	shutdown, err := telemetry.Setup(ctx, "xdao-casgrpcd", cfg.OTelEndpoint)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			log.Printf("telemetry shutdown: %v", err)
		}
	}()

	lis, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.Listen, err)
	}
	return serve(ctx, cfg, lis)
}

// serve opens the configured CAS and serves it on lis until ctx is done.
func serve(ctx context.Context, cfg config, lis net.Listener) error {
	cas, closeFn, err := openCAS(cfg)
	if err != nil {
		_ = lis.Close()
		return err
	}
	if closeFn != nil {
		defer func() {
			if err := closeFn(); err != nil {
				log.Printf("close backend: %v", err)
			}
		}()
	}

	s := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	grpccas.RegisterCASServer(s, &grpccas.Server{CAS: cas})
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(s, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(grpccas.ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)

	log.Printf("listening on %s (backend=%s, capabilities=%v)", lis.Addr(), backendLabel(cfg), storage.Capabilities(cas))

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		healthServer.Shutdown()
		s.GracefulStop()
		err = <-serveErr
	case err = <-serveErr:
	}
	if err == nil || errors.Is(err, grpc.ErrServerStopped) {
		return nil
	}
	return fmt.Errorf("serve gRPC: %w", err)
}

func backendLabel(cfg config) string {
	if cfg.ConfigPath != "" {
		return "config:" + cfg.ConfigPath
	}
	return cfg.Backend
}
