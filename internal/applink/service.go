package applink

import (
	"context"
	"log"
	"sync"
)

// Service runs a Controller on its own timeline and exposes the host
// operations. All methods are safe to call from any goroutine.
type Service struct {
	loop *Loop
	ctrl *Controller

	shutdownOnce sync.Once
	shutdown     chan struct{}

	mu     sync.Mutex
	reason string
}

// NewService wires a controller to a fresh loop. opts.OnShutdown, if set, is
// still called; Done is closed as well.
func NewService(opts Options) *Service {
	s := &Service{
		loop:     NewLoop(),
		shutdown: make(chan struct{}),
	}

	hook := opts.OnShutdown
	opts.OnShutdown = func(reason string) {
		s.shutdownOnce.Do(func() {
			s.mu.Lock()
			s.reason = reason
			s.mu.Unlock()
			close(s.shutdown)
		})
		if hook != nil {
			hook(reason)
		}
	}

	s.ctrl = NewController(opts, s.loop.Post)
	return s
}

// Run drives the timeline until ctx is cancelled
func (s *Service) Run(ctx context.Context) {
	log.Printf("[Service] Session loop running")
	s.loop.Run(ctx)
	log.Printf("[Service] Session loop stopped")
}

// Done is closed once the controller has shut the session down
func (s *Service) Done() <-chan struct{} {
	return s.shutdown
}

// ShutdownReason is empty until Done is closed
func (s *Service) ShutdownReason() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

// Start is the host service start
func (s *Service) Start() { s.loop.Post(s.ctrl.Start) }

func (s *Service) StartProxy() { s.loop.Post(s.ctrl.StartProxy) }

func (s *Service) Reset() { s.loop.Post(s.ctrl.Reset) }

func (s *Service) DisposeProxy() { s.loop.Post(s.ctrl.DisposeProxy) }

// LinkDisconnected reports a dropped link to the head unit
func (s *Service) LinkDisconnected() { s.loop.Post(s.ctrl.LinkDisconnected) }

// ResetFromLockScreen is the lock screen's reset button
func (s *Service) ResetFromLockScreen() { s.loop.Post(s.ctrl.ResetFromLockScreen) }

// StartCapture requests an audio pass-through capture and waits for the
// request to be sent
func (s *Service) StartCapture(ctx context.Context) error {
	var err error
	if cerr := s.loop.Call(ctx, func() { err = s.ctrl.StartCapture() }); cerr != nil {
		return cerr
	}
	return err
}

// Status returns a snapshot taken on the timeline
func (s *Service) Status(ctx context.Context) (Status, error) {
	var st Status
	err := s.loop.Call(ctx, func() { st = s.ctrl.Status() })
	return st, err
}

// Stop disposes the session and shuts the controller down
func (s *Service) Stop(ctx context.Context) error {
	return s.loop.Call(ctx, func() { s.ctrl.Shutdown("service stopped") })
}
