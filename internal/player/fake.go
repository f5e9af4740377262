package player

import (
	"context"
	"sync"
)

// FakeHandle is a test double implementing Handle entirely in memory. It
// records every call so channel tests can assert on call sequences and
// applied volumes without a real player process.
type FakeHandle struct {
	mu sync.Mutex

	LoadErr   error
	PlayErr   error
	StopErr   error
	VolumeErr error

	CurrentFile string
	Loop        bool
	Volume      int
	Playing     bool
	Paused      bool

	Calls []string

	eofCh  chan struct{}
	closed bool
}

// NewFakeHandle returns a ready-to-use FakeHandle.
func NewFakeHandle() *FakeHandle {
	return &FakeHandle{eofCh: make(chan struct{}, 1)}
}

var _ Handle = (*FakeHandle)(nil)

func (f *FakeHandle) record(call string) {
	f.Calls = append(f.Calls, call)
}

func (f *FakeHandle) Load(_ context.Context, file string, replace bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("load:" + file)
	if f.LoadErr != nil {
		return f.LoadErr
	}
	f.CurrentFile = file
	f.Playing = false
	return nil
}

func (f *FakeHandle) SetLoop(_ context.Context, loop bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("set_loop")
	f.Loop = loop
	return nil
}

func (f *FakeHandle) SetVolume(_ context.Context, volume int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("set_volume")
	if f.VolumeErr != nil {
		return f.VolumeErr
	}
	f.Volume = volume
	return nil
}

func (f *FakeHandle) Play(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("play")
	if f.PlayErr != nil {
		return f.PlayErr
	}
	f.Playing = true
	f.Paused = false
	return nil
}

func (f *FakeHandle) Pause(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("pause")
	f.Paused = true
	return nil
}

func (f *FakeHandle) Resume(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("resume")
	f.Paused = false
	return nil
}

func (f *FakeHandle) Stop(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("stop")
	if f.StopErr != nil {
		return f.StopErr
	}
	f.Playing = false
	return nil
}

func (f *FakeHandle) ObserveEOF() <-chan struct{} { return f.eofCh }

// TriggerEOF simulates the player process reporting end-of-file.
func (f *FakeHandle) TriggerEOF() {
	select {
	case f.eofCh <- struct{}{}:
	default:
	}
}

func (f *FakeHandle) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// Closed reports whether Close was called.
func (f *FakeHandle) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
