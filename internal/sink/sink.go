// Package sink provisions the combined OS audio sinks zones declare in
// their configuration. Combined sinks are a process-global resource: two
// zones declaring the same slave set must reuse one sink rather than
// racing to create duplicates, so the registry here is a singleton
// guarded by a mutex, with idempotent creation and guaranteed release on
// shutdown.
package sink

import (
	"context"
	"fmt"
	"os/exec"
	"sort"
	"strings"
	"sync"

	"github.com/MStylesMS/ParadoxFX-sub001/internal/logging"
)

// Declaration mirrors config.CombinedSinkDecl without importing the config
// package, keeping sink provisioning independent of INI parsing details.
type Declaration struct {
	Name        string
	Description string
	Slaves      []string
}

// Provisioner creates and releases combined OS audio sinks.
type Provisioner interface {
	// Ensure creates decl's sink if it does not already exist, or verifies
	// an existing sink with the same name has the same slave set. Returns
	// the pulse/<sinkName> device identifier PlayerHandles should target.
	Ensure(ctx context.Context, decl Declaration) (device string, err error)
	// Release tears down a previously-ensured sink. Safe to call on a name
	// that was never created.
	Release(ctx context.Context, name string) error
}

// Registry is the process-global idempotent combined-sink provisioner. It
// shells out to pactl to load one module-combine-sink per declared sink,
// covering all of the declaration's slaves.
type Registry struct {
	mu      sync.Mutex
	created map[string]Declaration
	runner  commandRunner
}

// commandRunner abstracts os/exec for testability.
type commandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

var (
	globalOnce sync.Once
	global     *Registry
)

// Global returns the process-wide Registry singleton, constructing it on
// first use with the real os/exec runner.
func Global() *Registry {
	globalOnce.Do(func() {
		global = newRegistry(execRunner)
	})
	return global
}

func newRegistry(runner commandRunner) *Registry {
	return &Registry{
		created: make(map[string]Declaration),
		runner:  runner,
	}
}

var _ Provisioner = (*Registry)(nil)

func sameSlaves(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	sa, sb := append([]string(nil), a...), append([]string(nil), b...)
	sort.Strings(sa)
	sort.Strings(sb)
	for i := range sa {
		if sa[i] != sb[i] {
			return false
		}
	}
	return true
}

// Ensure implements Provisioner.
func (r *Registry) Ensure(ctx context.Context, decl Declaration) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.created[decl.Name]; ok {
		if !sameSlaves(existing.Slaves, decl.Slaves) {
			return "", fmt.Errorf("combined sink %q already exists with a different slave set", decl.Name)
		}
		return "pulse/" + decl.Name, nil
	}

	args := []string{
		"load-module", "module-combine-sink",
		"sink_name=" + decl.Name,
		"slaves=" + strings.Join(decl.Slaves, ","),
	}
	if decl.Description != "" {
		args = append(args, "sink_properties=device.description=\""+decl.Description+"\"")
	}
	if _, err := r.runner(ctx, "pactl", args...); err != nil {
		return "", fmt.Errorf("create combined sink %q: %w", decl.Name, err)
	}

	r.created[decl.Name] = decl
	return "pulse/" + decl.Name, nil
}

// Release implements Provisioner.
func (r *Registry) Release(ctx context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.created[name]; !ok {
		return nil
	}
	delete(r.created, name)

	if _, err := r.runner(ctx, "pactl", "unload-module", "module-combine-sink"); err != nil {
		return fmt.Errorf("release combined sink %q: %w", name, err)
	}
	return nil
}

// ReleaseAll tears down every sink this registry created. The cmd/paradoxfx
// entry point calls this during graceful shutdown to guarantee release of process-
// global resources regardless of which zone created them.
func (r *Registry) ReleaseAll(ctx context.Context) {
	r.mu.Lock()
	names := make([]string, 0, len(r.created))
	for name := range r.created {
		names = append(names, name)
	}
	r.mu.Unlock()

	for _, name := range names {
		if err := r.Release(ctx, name); err != nil {
			logger := logging.ForComponent("sink")
			logger.Warn().Err(err).Str("sink", name).Msg("failed to release combined sink during shutdown")
		}
	}
}
