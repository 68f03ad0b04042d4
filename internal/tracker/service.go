package tracker

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/panicsave/panicsave/internal/config"
	"github.com/panicsave/panicsave/internal/database"
	"github.com/panicsave/panicsave/internal/lifecycle"
	"github.com/panicsave/panicsave/internal/metrics"
	"github.com/panicsave/panicsave/internal/models"
	"github.com/panicsave/panicsave/internal/observer"
	"github.com/panicsave/panicsave/internal/saver"
	"github.com/panicsave/panicsave/pkg/integrations/process"
	"github.com/panicsave/panicsave/pkg/window"
)

// ErrHostExited is returned by Start when the watched host process went away
var ErrHostExited = errors.New("host process exited")

// Service runs the focus observer for the configured host until it is
// cancelled or the host exits.
type Service struct {
	config  *config.Config
	hooker  window.Hooker
	repo    *database.Repository
	metrics *metrics.Metrics
	saver   saver.Saver
	logger  *zap.Logger
	closing *lifecycle.Manual

	// resolve and prober are replaced in tests
	resolve func(cfg *config.Config) (*process.Info, error)
	prober  lifecycle.Prober

	mu       sync.Mutex
	running  bool
	host     *process.Info
	observer *observer.Observer
}

// NewService wires the service. repo may be nil when the journal is disabled.
func NewService(cfg *config.Config, hooker window.Hooker, repo *database.Repository, m *metrics.Metrics, s saver.Saver, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if m == nil {
		m = metrics.New()
	}
	return &Service{
		config:  cfg,
		hooker:  hooker,
		repo:    repo,
		metrics: m,
		saver:   s,
		logger:  logger,
		closing: lifecycle.NewManual(),
		resolve: ResolveHost,
		prober:  process.Alive,
	}
}

// ResolveHost finds the host process by pid, or by name when no pid is configured
func ResolveHost(cfg *config.Config) (*process.Info, error) {
	if cfg.Host.PID > 0 {
		return process.Lookup(int32(cfg.Host.PID))
	}
	if cfg.Host.Process != "" {
		return process.FindByName(cfg.Host.Process)
	}
	return nil, errors.New("no host process configured")
}

// Start blocks until ctx is done or the host process exits
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("tracker is already running")
	}

	host, err := s.resolve(s.config)
	if err != nil {
		s.mu.Unlock()
		s.storeError("host", err)
		return errors.Wrap(err, "failed to resolve host process")
	}

	invoker := saver.NewInvoker(s.saver,
		saver.WithTimeout(s.config.Save.Timeout),
		saver.WithLogger(s.logger.Named("saver")),
		saver.WithResultHandler(func(res saver.Result) { s.record(host, res) }))

	hostExited := make(chan struct{})
	bridges, detachExit := s.bridges(host, hostExited)

	obs, err := observer.New(observer.Options{
		HostPID: uint32(host.PID),
		Hooker:  s.hooker,
		Invoker: invoker,
		Bridges: bridges,
		Logger:  s.logger.Named("observer"),
		Metrics: s.metrics,
	})
	if err == nil {
		err = obs.Start()
	}
	if err != nil {
		detachExit()
		invoker.Close()
		s.mu.Unlock()
		s.storeError("hook", err)
		return err
	}

	s.running = true
	s.host = host
	s.observer = obs
	s.mu.Unlock()

	s.logger.Info("watching host",
		zap.Int32("pid", host.PID),
		zap.String("name", host.Name),
		zap.String("display_server", s.hooker.DisplayServer()))

	var result error
	select {
	case <-ctx.Done():
		s.logger.Info("tracker stopped by context")
		result = ctx.Err()
	case <-hostExited:
		s.logger.Info("host process exited", zap.Int32("pid", host.PID))
		result = ErrHostExited
	}

	obs.Stop()
	detachExit()
	invoker.Close()

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	return result
}

// bridges returns the lifecycle bridges for host. The process bridge is also
// used to notice that the host has exited so the service can end.
func (s *Service) bridges(host *process.Info, hostExited chan struct{}) ([]lifecycle.Bridge, func()) {
	bridges := []lifecycle.Bridge{s.closing}
	detach := func() {}

	if s.config.Lifecycle.CloseSignal {
		bridges = append(bridges, lifecycle.NewSignalBridge())
	}

	if s.config.Lifecycle.WatchProcess {
		pb := lifecycle.NewProcessBridge(host.PID, s.config.Lifecycle.PollInterval).WithProber(s.prober)
		bridges = append(bridges, pb)

		var once sync.Once
		unsubscribe, err := pb.OnClosing(func() { once.Do(func() { close(hostExited) }) })
		if err != nil {
			s.logger.Warn("cannot watch host process", zap.Error(err))
		} else {
			detach = unsubscribe
		}
	}

	return bridges, detach
}

// record journals one save attempt and feeds the metrics
func (s *Service) record(host *process.Info, res saver.Result) {
	s.metrics.ObserveSave(res.Duration().Seconds(), res.Err)

	if res.Err != nil {
		s.storeError("saver", res.Err)
	}

	if s.repo == nil {
		return
	}

	rec := &models.SaveRecord{
		Timestamp:     res.Request.Time,
		HostPID:       res.Request.HostPID,
		HostName:      host.Name,
		Window:        uint64(res.Request.Window),
		Success:       res.Err == nil,
		DurationMs:    res.Duration().Milliseconds(),
		DisplayServer: s.hooker.DisplayServer(),
	}
	if res.Err != nil {
		rec.ErrorMsg = res.Err.Error()
	}

	// The worker runs after the trigger, so the focused window is usually
	// the one that took focus from the host.
	if info, err := s.hooker.FocusedWindow(); err == nil && info != nil && info.PID != res.Request.HostPID {
		rec.TargetApp = info.AppName
		rec.TargetTitle = info.WindowTitle
	}

	if err := s.repo.CreateSaveRecord(rec); err != nil {
		s.logger.Error("failed to journal save", zap.Error(err))
	}
}

func (s *Service) storeError(component string, err error) {
	if s.repo == nil {
		s.logger.Error("service error", zap.String("component", component), zap.Error(err))
		return
	}

	errorLog := &models.ErrorLog{
		Timestamp: time.Now(),
		Component: component,
		ErrorMsg:  err.Error(),
	}

	if dbErr := s.repo.CreateErrorLog(errorLog); dbErr != nil {
		s.logger.Error("failed to store error in database",
			zap.String("component", component),
			zap.NamedError("original", err),
			zap.Error(dbErr))
	} else {
		s.logger.Error("error logged to database", zap.String("component", component), zap.Error(err))
	}
}

// MarkClosing tells the observer that the host is shutting down.
// It reports whether this call was the first one.
func (s *Service) MarkClosing() bool {
	return s.closing.Close()
}

// IsRunning reports whether Start is active
func (s *Service) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Host returns the resolved host process, or nil before Start
func (s *Service) Host() *process.Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.host
}

// Snapshot returns the observer state; ok is false before Start
func (s *Service) Snapshot() (snap observer.Snapshot, ok bool) {
	s.mu.Lock()
	obs := s.observer
	s.mu.Unlock()

	if obs == nil {
		return observer.Snapshot{}, false
	}
	return obs.Snapshot(), true
}

// GetCurrentWindow returns the foreground window
func (s *Service) GetCurrentWindow() (*window.WindowInfo, error) {
	info, err := s.hooker.FocusedWindow()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get focused window")
	}
	return info, nil
}
