// Package supervisor assembles the role-based set of actors a kontrold
// process runs (keepalive emitter, sequence actor, leader elector, callback
// driver, script actor, audit writer) and gives them one ordered startup and
// one reverse-ordered shutdown, replacing the original's implicit global
// actor registry (spec.md §9) with an explicit, named component list.
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
)

// Component is a single named, independently startable/stoppable actor.
type Component struct {
	Name  string
	Start func(ctx context.Context) error
	Stop  func(ctx context.Context) error
}

// Set is an ordered collection of components. Start runs them in order and
// rolls back whatever already started if any fails; Stop tears them down in
// reverse order, so a callback driver started after the sequence actor is
// stopped before it.
type Set struct {
	logger     *slog.Logger
	components []Component
}

// New creates an empty Set.
func New(logger *slog.Logger) *Set {
	return &Set{logger: logger}
}

// Add appends c to the set. Order is significant.
func (s *Set) Add(c Component) {
	s.components = append(s.components, c)
}

// Start brings up every component in order. On failure it stops everything
// already started, in reverse order, before returning the error.
func (s *Set) Start(ctx context.Context) error {
	started := make([]Component, 0, len(s.components))
	for _, c := range s.components {
		s.logger.Info("starting actor", "name", c.Name)
		if err := c.Start(ctx); err != nil {
			s.logger.Error("actor failed to start", "name", c.Name, "error", err)
			s.stopAll(context.Background(), started)
			return fmt.Errorf("supervisor: starting %s: %w", c.Name, err)
		}
		started = append(started, c)
	}
	return nil
}

// Stop tears down every component in reverse order, collecting but not
// aborting on individual errors.
func (s *Set) Stop(ctx context.Context) error {
	return s.stopAll(ctx, s.components)
}

func (s *Set) stopAll(ctx context.Context, components []Component) error {
	var firstErr error
	for i := len(components) - 1; i >= 0; i-- {
		c := components[i]
		s.logger.Info("stopping actor", "name", c.Name)
		if c.Stop == nil {
			continue
		}
		if err := c.Stop(ctx); err != nil {
			s.logger.Error("actor failed to stop", "name", c.Name, "error", err)
			if firstErr == nil {
				firstErr = fmt.Errorf("supervisor: stopping %s: %w", c.Name, err)
			}
		}
	}
	return firstErr
}

// Names returns the component names in startup order, for diagnostics.
func (s *Set) Names() []string {
	names := make([]string, len(s.components))
	for i, c := range s.components {
		names[i] = c.Name
	}
	return names
}
