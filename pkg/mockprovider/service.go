package mockprovider

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"path/filepath"
	"time"

	retry "github.com/avast/retry-go/v4"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/pactum-oss/pactum/pkg/pact"
)

// Service is an HTTP double for a provider. Start and Stop bracket a test
// suite; Register and Reset bracket each example.
type Service struct {
	config   Config
	registry *registry
	recorder *recorder
	notify   *notify
	server   *http.Server
	listener net.Listener
}

func New(config Config) *Service {
	if config.WaitDelay == 0 {
		config.WaitDelay = defaultDelay
	}
	if config.WaitDuration == 0 {
		config.WaitDuration = defaultDuration
	}
	return &Service{
		config:   config,
		registry: &registry{},
		recorder: &recorder{},
		notify:   newNotify(),
	}
}

// Start binds the configured address and serves in the background. Binding
// happens here so address errors surface to the caller, not in the serve
// goroutine.
func (s *Service) Start() error {
	if s.listener != nil {
		return errors.New("mock provider already started")
	}

	addr := s.config.ServerAddress
	if addr == "" {
		addr = "localhost:0"
	}
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "unable to bind mock provider on %s", addr)
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Any("/", s.handle)
	e.Any("/*", s.handle)

	s.listener = listener
	s.server = &http.Server{Handler: e}

	go func() {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Error(err)
		}
	}()

	log.WithField("address", listener.Addr().String()).Info("Mock provider listening")
	return nil
}

// URL is the base URL clients should call, empty before Start.
func (s *Service) URL() string {
	if s.listener == nil {
		return ""
	}
	return "http://" + s.listener.Addr().String()
}

// Stop releases the socket. The listener is closed even when the graceful
// shutdown does not finish within ctx.
func (s *Service) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	server := s.server
	s.server = nil
	s.listener = nil

	if err := server.Shutdown(ctx); err != nil {
		server.Close()
		return errors.Wrap(err, "shutdown mock provider")
	}
	return nil
}

// WaitUntilReady polls the bound address until a TCP dial succeeds.
func (s *Service) WaitUntilReady(ctx context.Context) error {
	if s.listener == nil {
		return errors.New("mock provider is not started")
	}
	addr := s.listener.Addr().String()

	err := retry.Do(func() error {
		conn, err := net.DialTimeout("tcp", addr, time.Second)
		if err != nil {
			return err
		}
		return conn.Close()
	}, retry.Context(ctx), retry.Delay(50*time.Millisecond), retry.DelayType(retry.FixedDelay))
	return errors.Wrap(err, "mock provider not ready")
}

// Register replaces the interaction set for the next example.
func (s *Service) Register(interactions ...*pact.Interaction) error {
	if err := s.registry.replace(interactions); err != nil {
		return err
	}
	log.WithField("interactions", len(interactions)).Debug("Registration replaced")
	return nil
}

// Reset drops the registration and the recorded exchanges.
func (s *Service) Reset() error {
	if err := s.registry.replace(nil); err != nil {
		return err
	}
	s.recorder.clear()
	return nil
}

// AssertFulfilled fails when any registered interaction went unexercised.
func (s *Service) AssertFulfilled() error {
	if missing := s.registry.unfulfilled(); len(missing) > 0 {
		return &UnfulfilledError{Descriptions: missing}
	}
	return nil
}

// Exchanges returns a copy of the recorded traffic, oldest first.
func (s *Service) Exchanges() []Exchange {
	return s.recorder.snapshot()
}

// WritePact merges the fulfilled interactions into the pact document at
// path. An empty path derives <consumer>-<provider>.json under PactDir.
func (s *Service) WritePact(path string) error {
	if s.config.Consumer == "" || s.config.Provider == "" {
		return errors.New("consumer and provider names are required to write a pact")
	}
	if path == "" {
		path = filepath.Join(s.config.PactDir, fmt.Sprintf("%s-%s.json", s.config.Consumer, s.config.Provider))
	}

	p := pact.NewPact(s.config.Consumer, s.config.Provider)
	for _, interaction := range s.registry.fulfilledInteractions() {
		p.Upsert(interaction)
	}
	return pact.Save(p, path)
}
