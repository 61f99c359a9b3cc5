// Package service runs an assembled container until it is cancelled or
// receives a shutdown signal.
package service

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/saiset-co/sai-food-admin/config"
	"github.com/saiset-co/sai-food-admin/sai"
	"github.com/saiset-co/sai-food-admin/types"
)

type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

type Service struct {
	ctx             context.Context
	cancel          context.CancelFunc
	container       *sai.Container
	done            chan struct{}
	wg              sync.WaitGroup
	state           atomic.Value
	started         []sai.Component
	shutdownTimeout time.Duration
	startTimeout    time.Duration
	handleSignals   bool
}

func NewService(ctx context.Context, configPath string) (*Service, error) {
	if configPath == "" {
		return nil, types.ErrConfigInvalidPath
	}

	if _, err := os.Stat(configPath); err != nil {
		return nil, types.WrapError(err, "config file does not exist")
	}

	configManager, err := config.NewConfigurationManager(ctx, configPath)
	if err != nil {
		return nil, types.WrapError(err, "failed to register config manager")
	}

	container, err := sai.Build(ctx, configManager)
	if err != nil {
		return nil, types.WrapError(err, "failed to register providers")
	}

	s := NewServiceWithContainer(ctx, container)
	s.handleSignals = true
	return s, nil
}

// NewServiceWithContainer runs an already built container. Signals are not
// handled; cancel ctx or call Stop instead.
func NewServiceWithContainer(ctx context.Context, container *sai.Container) *Service {
	serviceCtx, cancel := context.WithCancel(ctx)

	s := &Service{
		ctx:             serviceCtx,
		cancel:          cancel,
		container:       container,
		done:            make(chan struct{}),
		shutdownTimeout: 30 * time.Second,
		startTimeout:    60 * time.Second,
	}
	s.state.Store(StateStopped)

	return s
}

// Start blocks until the service has shut down.
func (s *Service) Start() error {
	if !s.transitionState(StateStopped, StateStarting) {
		s.logger().Warn("Service is already running")
		return types.ErrServerAlreadyRunning
	}

	var runErr error
	func() {
		defer func() {
			if r := recover(); r != nil {
				buf := make([]byte, 4096)
				n := runtime.Stack(buf, false)
				runErr = fmt.Errorf("service panic: %v", r)
				s.logger().Error("Service run panic", zap.Stack(string(buf[:n])))
				s.setState(StateStopped)
			}
		}()

		runErr = s.run()
	}()

	return runErr
}

func (s *Service) run() error {
	cfg := s.container.Config.GetConfig()
	s.logger().Info("Starting service", zap.String("name", cfg.Name), zap.String("version", cfg.Version))

	ctx, cancel := context.WithTimeout(s.ctx, s.startTimeout)
	defer cancel()

	if err := s.startComponents(ctx); err != nil {
		if stopErr := s.stopComponents(); stopErr != nil {
			s.logger().Error("Error while rolling back startup", zap.Error(stopErr))
		}
		s.setState(StateStopped)
		s.cancel()
		close(s.done)
		return types.WrapError(err, "failed to start components")
	}

	s.setState(StateRunning)
	if s.handleSignals {
		s.setupSignalHandling()
	}

	s.wg.Add(1)
	go s.contextMonitor()

	s.logger().Info("Service started successfully")

	<-s.done

	if err := s.stopComponents(); err != nil {
		s.logger().Error("Error during service shutdown", zap.Error(err))
	}

	s.wg.Wait()
	s.setState(StateStopped)

	s.logger().Info("Service stopped gracefully")
	return nil
}

func (s *Service) Stop() error {
	if !s.transitionState(StateRunning, StateStopping) {
		s.logger().Warn("Service is not running")
		return types.ErrServiceIsNotRunning
	}

	s.logger().Info("Stopping service...")
	s.cancel()

	return nil
}

func (s *Service) Done() <-chan struct{} {
	return s.done
}

func (s *Service) Container() *sai.Container {
	return s.container
}

func (s *Service) IsRunning() bool {
	return s.getState() == StateRunning
}

// startComponents starts in dependency order. A failing required component
// aborts startup; optional ones are logged and skipped.
func (s *Service) startComponents(ctx context.Context) error {
	for _, component := range s.container.Components() {
		select {
		case <-ctx.Done():
			return types.NewErrorf("component startup timeout: %v", ctx.Err())
		default:
		}

		if err := component.Manager.Start(); err != nil {
			if component.Required {
				return types.WrapError(err, fmt.Sprintf("failed to start %s", component.Name))
			}
			s.logger().Error("Failed to start optional component",
				zap.String("component", component.Name),
				zap.Error(err))
			continue
		}

		s.started = append(s.started, component)
		s.logger().Debug("Component started", zap.String("component", component.Name))
	}

	s.logger().Info("All components started", zap.Int("count", len(s.started)))
	return nil
}

// stopComponents stops what was started, in reverse order, within the
// shutdown timeout.
func (s *Service) stopComponents() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	s.logger().Info("Stopping service components...")

	var errs []error
	for i := len(s.started) - 1; i >= 0; i-- {
		component := s.started[i]

		var g errgroup.Group
		g.Go(component.Manager.Stop)

		stopped := make(chan error, 1)
		go func() { stopped <- g.Wait() }()

		select {
		case err := <-stopped:
			if err != nil {
				s.logger().Error("Failed to stop component", zap.String("component", component.Name), zap.Error(err))
				errs = append(errs, err)
			}
		case <-ctx.Done():
			s.logger().Warn("Component shutdown timeout, some components may not have stopped gracefully",
				zap.String("component", component.Name))
			s.started = nil
			return types.NewErrorf("shutdown timed out at %s", component.Name)
		}
	}
	s.started = nil

	if len(errs) > 0 {
		return types.NewErrorf("errors during shutdown: %v", errs)
	}
	return nil
}

func (s *Service) setupSignalHandling() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer signal.Stop(sigChan)

		select {
		case sig := <-sigChan:
			s.logger().Info("Received shutdown signal", zap.String("signal", sig.String()))
			if s.transitionState(StateRunning, StateStopping) {
				s.cancel()
			}
		case <-s.ctx.Done():
		}
	}()
}

func (s *Service) contextMonitor() {
	defer s.wg.Done()
	defer close(s.done)

	<-s.ctx.Done()

	switch err := s.ctx.Err(); {
	case types.IsError(err, context.Canceled):
		s.logger().Info("Service shutdown: context cancelled")
	case types.IsError(err, context.DeadlineExceeded):
		s.logger().Warn("Service shutdown: context deadline exceeded")
	default:
		s.logger().Info("Service shutdown: context done")
	}
}

func (s *Service) logger() types.Logger {
	return s.container.Logger
}

func (s *Service) getState() State {
	return s.state.Load().(State)
}

func (s *Service) setState(newState State) {
	s.state.Store(newState)
}

func (s *Service) transitionState(from, to State) bool {
	return s.state.CompareAndSwap(from, to)
}
