package daemon

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/danmuck/scosock/internal/diag"
	"github.com/danmuck/scosock/internal/link"
	"github.com/danmuck/scosock/internal/observability"
	"github.com/danmuck/scosock/internal/sco"
	"github.com/rs/zerolog"
)

// EchoListener is a listening socket that sends every frame back.
type EchoListener struct {
	Addr    sco.Addr
	Backlog int
}

// ServiceConfig is the scod runtime configuration.
type ServiceConfig struct {
	Name        string
	DiagAddr    string
	CorsOrigins []string
	Protocol    sco.Config
	Adapters    []link.AdapterConfig
	Echo        []EchoListener
}

func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		Name:     "scod",
		DiagAddr: ":9300",
		Protocol: sco.DefaultConfig(),
		Adapters: []link.AdapterConfig{
			{Addr: sco.MustParseAddr("00:1B:DC:0F:00:01"), MTU: sco.DefaultMTU, DevClass: [3]byte{0x04, 0x04, 0x24}},
			{Addr: sco.MustParseAddr("00:1B:DC:0F:00:02"), MTU: sco.DefaultMTU, DevClass: [3]byte{0x04, 0x04, 0x20}},
		},
		Echo: []EchoListener{
			{Addr: sco.MustParseAddr("00:1B:DC:0F:00:02"), Backlog: 4},
		},
	}
}

type Service struct {
	cfg ServiceConfig
	log zerolog.Logger

	bus   *link.Bus
	proto *sco.Protocol
	diag  *diag.Server

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	echoes  []*echo
	wg      sync.WaitGroup
}

func NewService() *Service {
	return NewServiceWithConfig(DefaultServiceConfig())
}

func NewServiceWithConfig(cfg ServiceConfig) *Service {
	if strings.TrimSpace(cfg.Name) == "" {
		cfg.Name = DefaultServiceConfig().Name
	}
	log := observability.Component("daemon").With().Str("daemon", cfg.Name).Logger()
	if cfg.Protocol.Logger == nil {
		l := observability.Component("sco").With().Str("daemon", cfg.Name).Logger()
		cfg.Protocol.Logger = &l
	}
	cfg.Protocol = cfg.Protocol.WithDefaults()

	bus := link.NewBus().WithLogger(observability.Component("link"))
	proto := sco.New(bus, cfg.Protocol)
	svc := &Service{
		cfg:   cfg,
		log:   log,
		bus:   bus,
		proto: proto,
	}
	if addr := strings.TrimSpace(cfg.DiagAddr); addr != "" {
		svc.diag = diag.New(cfg.Name, addr, cfg.CorsOrigins, proto, bus)
	}
	return svc
}

func (s *Service) Config() ServiceConfig   { return s.cfg }
func (s *Service) Protocol() *sco.Protocol { return s.proto }
func (s *Service) Bus() *link.Bus          { return s.bus }

// Diag is nil when no diag address is configured.
func (s *Service) Diag() *diag.Server { return s.diag }

// Start attaches the adapters and opens the echo listeners. It returns once
// every listener is accepting.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}
	for _, a := range s.cfg.Adapters {
		if _, err := s.bus.Attach(a, s.proto); err != nil {
			return fmt.Errorf("attach adapter %s: %w", a.Addr, err)
		}
		s.log.Info().
			Str("adapter", a.Addr.String()).
			Int("mtu", a.MTU).
			Bool("unresponsive", a.Unresponsive).
			Msg("adapter attached")
	}

	runCtx, cancel := context.WithCancel(ctx)
	for _, cfg := range s.cfg.Echo {
		e, err := openEcho(s.proto, cfg, s.log)
		if err != nil {
			cancel()
			s.closeEchoesLocked()
			return fmt.Errorf("echo listener %s: %w", cfg.Addr, err)
		}
		s.echoes = append(s.echoes, e)
	}
	for _, e := range s.echoes {
		s.wg.Go(func() { e.run(runCtx) })
	}
	s.cancel = cancel
	s.started = true
	return nil
}

// Dial opens a socket bound to local and connects it to remote.
func (s *Service) Dial(ctx context.Context, local, remote sco.Addr) (*sco.Socket, error) {
	sk, err := s.proto.Open(sco.SeqPacket)
	if err != nil {
		return nil, err
	}
	if err := sk.Bind(local); err != nil {
		_ = sk.Release()
		return nil, err
	}
	if err := sk.Connect(ctx, remote); err != nil {
		_ = sk.Release()
		return nil, err
	}
	return sk, nil
}

// Echoed reports the number of frames sent back by all echo listeners.
func (s *Service) Echoed() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n uint64
	for _, e := range s.echoes {
		n += e.echoed.Load()
	}
	return n
}

// Run starts the service and blocks until SIGINT or SIGTERM.
func (s *Service) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return s.Serve(ctx)
}

// Serve starts the service, serves diag until ctx is done and then closes.
func (s *Service) Serve(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		_ = s.Close()
		return err
	}
	s.log.Info().
		Int("adapters", len(s.cfg.Adapters)).
		Int("echo", len(s.cfg.Echo)).
		Msg("daemon running")

	var err error
	if s.diag != nil {
		err = s.diag.Serve(ctx)
	} else {
		<-ctx.Done()
	}
	if cerr := s.Close(); err == nil {
		err = cerr
	}
	return err
}

// Close stops the echo listeners, closes every socket and then the bus.
func (s *Service) Close() error {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.closeEchoesLocked()
	s.mu.Unlock()

	s.wg.Wait()
	_ = s.proto.Close()
	err := s.bus.Close()
	stats := s.proto.Stats()
	s.log.Info().
		Int64("allocated", stats.Allocated).
		Int64("freed", stats.Freed).
		Msg("daemon stopped")
	return err
}

func (s *Service) closeEchoesLocked() {
	for _, e := range s.echoes {
		e.close()
	}
}
