package supervisor

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockService is a minimal suture.Service used to exercise tree wiring
// without needing a real router/zone.
type mockService struct {
	name    string
	started chan struct{}
}

func newMockService(name string) *mockService {
	return &mockService{name: name, started: make(chan struct{}, 1)}
}

func (m *mockService) Serve(ctx context.Context) error {
	select {
	case m.started <- struct{}{}:
	default:
	}
	<-ctx.Done()
	return ctx.Err()
}

func (m *mockService) String() string { return m.name }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestSupervisorTreeAppliesDefaults(t *testing.T) {
	tree := NewSupervisorTree(testLogger(), TreeConfig{})
	assert.Equal(t, 5.0, tree.config.FailureThreshold)
	assert.Equal(t, 30.0, tree.config.FailureDecay)
	assert.Equal(t, 15*time.Second, tree.config.FailureBackoff)
	assert.Equal(t, 10*time.Second, tree.config.ShutdownTimeout)
	assert.NotNil(t, tree.Root())
}

func TestSupervisorTreeStartsChildServices(t *testing.T) {
	tree := NewSupervisorTree(testLogger(), TreeConfig{
		FailureBackoff:  100 * time.Millisecond,
		ShutdownTimeout: time.Second,
	})

	router := newMockService("router")
	audio := newMockService("zone:living-room")
	screen := newMockService("zone:lobby-screen")

	tree.AddRouter(router)
	tree.AddAudioZone(audio)
	tree.AddScreenZone(screen)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- tree.Serve(ctx) }()

	for _, svc := range []*mockService{router, audio, screen} {
		select {
		case <-svc.started:
		case <-time.After(time.Second):
			t.Fatalf("%s never started", svc.name)
		}
	}

	cancel()
	select {
	case <-errCh:
	case <-time.After(2 * time.Second):
		t.Fatal("tree did not stop after cancel")
	}
}

func TestSupervisorTreeUnstoppedServiceReport(t *testing.T) {
	tree := NewSupervisorTree(testLogger(), TreeConfig{ShutdownTimeout: 50 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	go tree.Serve(ctx)
	time.Sleep(20 * time.Millisecond)
	cancel()

	report, err := tree.UnstoppedServiceReport()
	require.NoError(t, err)
	assert.Empty(t, report)
}
