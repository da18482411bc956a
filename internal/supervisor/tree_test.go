package supervisor

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type flakyService struct {
	starts atomic.Int32
}

// Serve fails on its first start and then runs until cancelled.
func (f *flakyService) Serve(ctx context.Context) error {
	if f.starts.Add(1) == 1 {
		return errors.New("boom")
	}
	<-ctx.Done()
	return ctx.Err()
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

func TestTreeRestartsFailedService(t *testing.T) {
	var out syncBuffer
	tree := NewTree(zerolog.New(&out), TreeConfig{FailureBackoff: 10 * time.Millisecond, ShutdownTimeout: time.Second})
	svc := &flakyService{}
	tree.AddJobService(svc)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := tree.ServeBackground(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for svc.starts.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-errCh

	if svc.starts.Load() < 2 {
		t.Fatalf("service was not restarted, starts = %d", svc.starts.Load())
	}
	if !bytes.Contains([]byte(out.String()), []byte(`"service_name"`)) {
		t.Errorf("expected termination event in log, got %s", out.String())
	}
}
