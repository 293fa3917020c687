package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/muurk/ssdpd/internal/config"
	"github.com/muurk/ssdpd/internal/logging"
	"github.com/muurk/ssdpd/internal/mdns"
	"github.com/muurk/ssdpd/internal/ssdp"
	"github.com/muurk/ssdpd/internal/version"
)

// shutdownTimeout bounds the byebye burst and socket teardown.
const shutdownTimeout = 10 * time.Second

// Config holds the server configuration
type Config struct {
	App      *config.Config // Loaded, defaulted configuration file
	LogLevel string         // Overrides App.Logging.Level when set
	NoMDNS   bool           // Skip the companion mDNS advertisement

	// SSDPOptions are passed to ssdp.New.
	SSDPOptions []ssdp.Option
}

// Server runs the SSDP responder and the optional mDNS advertisement
type Server struct {
	config *Config
	ssdp   *ssdp.Service
	mdns   *mdns.Advertiser

	shutdownOnce sync.Once
	shutdownErr  error
}

// New creates a new Server instance. The configuration must already have
// defaults applied; it is validated here.
func New(cfg *Config) (*Server, error) {
	if cfg == nil || cfg.App == nil {
		return nil, fmt.Errorf("server: configuration is required")
	}

	level := cfg.App.Logging.Level
	if cfg.LogLevel != "" {
		level = cfg.LogLevel
	}
	if err := logging.Initialize(level); err != nil {
		return nil, fmt.Errorf("failed to initialize logging: %w", err)
	}

	if err := cfg.App.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	s := &Server{config: cfg}

	if !cfg.App.SSDP.Disabled {
		svc, err := ssdp.New(cfg.App.SSDPConfig(), cfg.SSDPOptions...)
		if err != nil {
			return nil, fmt.Errorf("failed to create SSDP responder: %w", err)
		}
		s.ssdp = svc
	}

	if cfg.App.MDNS.Enabled && !cfg.NoMDNS {
		adv, err := mdns.NewAdvertiser(mdns.Config{
			Instance:  cfg.App.MDNS.Instance,
			Service:   cfg.App.MDNS.Service,
			Port:      cfg.App.Web.AdminPort,
			Interface: cfg.App.SSDP.Interface,
			USN:       cfg.App.RootDeviceUSN(),
			Location:  cfg.App.DescriptorURL(),
			UUID:      cfg.App.Main.UUID,
			Version:   version.Version,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create mDNS advertiser: %w", err)
		}
		s.mdns = adv
	}

	return s, nil
}

// Start runs the server and blocks until SIGINT/SIGTERM or a fatal error
func (s *Server) Start() error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errChan := make(chan error, 1)
	go func() {
		errChan <- s.Run(ctx)
	}()

	select {
	case sig := <-sigChan:
		logging.Info("Shutdown signal received, stopping server...", zap.Stringer("signal", sig))
		cancel()
		return <-errChan
	case err := <-errChan:
		return err
	}
}

// Run opens the socket, registers the configured records, publishes the mDNS
// record and serves until ctx is cancelled. It always shuts down before
// returning.
func (s *Server) Run(ctx context.Context) error {
	app := s.config.App

	logging.Info("Starting ssdpd",
		zap.String("version", version.Full()),
		zap.String("uuid", app.Main.UUID),
		zap.String("location", app.DescriptorURL()),
		zap.Bool("ssdp", s.ssdp != nil),
		zap.Bool("mdns", s.mdns != nil),
	)

	if s.ssdp != nil {
		// Listen first so registration announces immediately.
		if err := s.ssdp.Listen(); err != nil {
			return multierr.Append(err, s.Shutdown(context.Background()))
		}
		for _, rec := range app.Records() {
			if err := s.ssdp.Register(rec); err != nil {
				return multierr.Append(err, s.Shutdown(context.Background()))
			}
		}
	}

	if s.mdns != nil {
		if err := s.mdns.Start(); err != nil {
			logging.Warn("mDNS advertisement unavailable", zap.Error(err))
		}
	}

	var serveErr error
	if s.ssdp != nil {
		serveErr = s.ssdp.Serve(ctx)
	} else {
		logging.Info("SSDP disabled, idling until shutdown")
		<-ctx.Done()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return multierr.Append(serveErr, s.Shutdown(shutdownCtx))
}

// Shutdown withdraws every advertisement and closes the socket. Safe to call
// more than once.
func (s *Server) Shutdown(ctx context.Context) error {
	s.shutdownOnce.Do(func() {
		logging.Info("Shutting down server...")

		done := make(chan error, 1)
		go func() {
			var errs error
			if s.mdns != nil {
				s.mdns.Shutdown()
			}
			if s.ssdp != nil {
				errs = multierr.Append(errs, s.ssdp.Shutdown())
			}
			done <- errs
		}()

		select {
		case err := <-done:
			s.shutdownErr = err
			logging.Info("Server stopped")
		case <-ctx.Done():
			s.shutdownErr = fmt.Errorf("shutdown interrupted: %w", ctx.Err())
			logging.Warn("Shutdown timeout, forcing close")
		}

		logging.Sync()
	})
	return s.shutdownErr
}

// Records returns the registered SSDP records, or nil when SSDP is disabled.
func (s *Server) Records() []ssdp.ServiceRecord {
	if s.ssdp == nil {
		return nil
	}
	return s.ssdp.Records()
}
