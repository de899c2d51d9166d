package applink

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dense-identity/applink/internal/sdl"
)

// lockedProxy is a fakeProxy whose state the test reads from its own goroutine
type lockedProxy struct {
	mu sync.Mutex
	fakeProxy
}

func (p *lockedProxy) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

func (p *lockedProxy) setConnected(v bool) {
	p.mu.Lock()
	p.connected = v
	p.mu.Unlock()
}

func TestServiceLifecycle(t *testing.T) {
	proxies := make(chan *lockedProxy, 4)
	svc := NewService(Options{
		NewProxy: func(listener sdl.Listener) (Proxy, error) {
			p := &lockedProxy{fakeProxy: fakeProxy{listener: listener}}
			proxies <- p
			return p, nil
		},
		Capture: AudioPassThruOptions{Dir: t.TempDir()},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	go svc.Run(ctx)

	svc.Start()
	var p *lockedProxy
	select {
	case p = <-proxies:
	case <-ctx.Done():
		t.Fatal("Start did not create a proxy")
	}

	p.setConnected(true)
	p.listener(sdl.ProxyConnected{})

	st, err := svc.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !st.HasProxy || !st.Connected || st.SessionID == "" {
		t.Errorf("unexpected status: %+v", st)
	}

	if err := svc.StartCapture(ctx); err != nil {
		t.Errorf("StartCapture: %v", err)
	}
	if err := svc.StartCapture(ctx); err != ErrCaptureInProgress {
		t.Errorf("second StartCapture: got %v, want ErrCaptureInProgress", err)
	}

	if err := svc.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	select {
	case <-svc.Done():
	case <-ctx.Done():
		t.Fatal("Done was not closed after Stop")
	}
	if svc.ShutdownReason() != "service stopped" {
		t.Errorf("shutdown reason: got %q", svc.ShutdownReason())
	}

	st, _ = svc.Status(ctx)
	if st.HasProxy {
		t.Error("stop should dispose the proxy")
	}
}

func TestServiceConnectTimeoutClosesDone(t *testing.T) {
	svc := NewService(Options{
		NewProxy: func(listener sdl.Listener) (Proxy, error) {
			return &lockedProxy{fakeProxy: fakeProxy{listener: listener}}, nil
		},
		ConnectTimeout: 20 * time.Millisecond,
		StopDelay:      time.Hour,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	go svc.Run(ctx)
	svc.Start()

	select {
	case <-svc.Done():
	case <-ctx.Done():
		t.Fatal("connect timeout did not shut the service down")
	}
}
