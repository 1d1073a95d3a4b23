// Package session serializes access to builds and streams build progress.
// A Manager is constructed once per process; it guarantees at most one
// in-flight step per build and rejects concurrent work immediately instead
// of queueing it.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/TheSmartAz/zaoya-sub001/internal/build"
	"github.com/TheSmartAz/zaoya-sub001/internal/config"
	"github.com/TheSmartAz/zaoya-sub001/internal/errors"
	"github.com/TheSmartAz/zaoya-sub001/internal/log"
	"github.com/TheSmartAz/zaoya-sub001/internal/orchestrator"
)

// Stepper advances a build by one transition. The orchestrator implements
// it; tests substitute stubs.
type Stepper interface {
	Step(ctx context.Context, buildID string, mode orchestrator.Mode) (*build.State, error)
	Cancel(ctx context.Context, buildID string) (*build.State, error)
}

// Event is one progress notification on a stream
type Event struct {
	Type    string      `json:"type"` // task_started, task_done, card, error, done
	BuildID string      `json:"build_id"`
	TaskID  string      `json:"task_id,omitempty"`
	Phase   build.Phase `json:"phase,omitempty"`
	Card    *Card       `json:"card,omitempty"`
	Err     string      `json:"error,omitempty"`
	Time    time.Time   `json:"time"`
}

// Card is a version summary emitted after each completed task
type Card struct {
	Version    int              `json:"version"`
	TaskID     string           `json:"task_id"`
	Title      string           `json:"title"`
	Files      []string         `json:"files,omitempty"`
	TokenUsage build.TokenUsage `json:"token_usage"`
}

// session is one build's concurrency guard
type session struct {
	mu sync.Mutex
}

// Manager hands out per-build sessions and enforces the one-step-at-a-time
// rule
type Manager struct {
	stepper Stepper
	cfg     *config.Config
	logger  *log.Logger

	mu       sync.Mutex
	sessions map[string]*session
	closed   bool
}

// NewManager creates a session manager over a stepper
func NewManager(stepper Stepper, cfg *config.Config, logger *log.Logger) *Manager {
	return &Manager{
		stepper:  stepper,
		cfg:      cfg,
		logger:   logger.With("component", "session"),
		sessions: make(map[string]*session),
	}
}

// session returns the guard for a build, creating it on first use
func (m *Manager) session(buildID string) (*session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, errors.New(errors.ErrCodeSessionClosed, "session manager is closed")
	}
	s, ok := m.sessions[buildID]
	if !ok {
		s = &session{}
		m.sessions[buildID] = s
	}
	return s, nil
}

// Step advances the build by one transition. A concurrent step or stream on
// the same build is rejected immediately with a busy error.
func (m *Manager) Step(ctx context.Context, buildID string, mode orchestrator.Mode) (*build.State, error) {
	sess, err := m.session(buildID)
	if err != nil {
		return nil, err
	}
	if !sess.mu.TryLock() {
		return nil, errors.NewBuildBusyError(buildID)
	}
	defer sess.mu.Unlock()

	return m.stepper.Step(ctx, buildID, mode)
}

// Cancel moves the build to the cancelled terminal phase. A build mid-step
// or mid-stream is busy; callers cancel the stream's context first and
// retry once it unwinds.
func (m *Manager) Cancel(ctx context.Context, buildID string) (*build.State, error) {
	sess, err := m.session(buildID)
	if err != nil {
		return nil, err
	}
	if !sess.mu.TryLock() {
		return nil, errors.NewBuildBusyError(buildID)
	}
	defer sess.mu.Unlock()

	return m.stepper.Cancel(ctx, buildID)
}

// StreamProgress drives the build to a terminal phase, emitting progress
// events on the returned channel. The session lock is held for the whole
// run; the channel is closed when the build finishes or the context is
// cancelled. Cancellation is checked before every step and every send, so
// no new work starts after the consumer disconnects.
func (m *Manager) StreamProgress(ctx context.Context, buildID string, mode orchestrator.Mode) (<-chan Event, error) {
	sess, err := m.session(buildID)
	if err != nil {
		return nil, err
	}
	if !sess.mu.TryLock() {
		return nil, errors.NewBuildBusyError(buildID)
	}

	ch := make(chan Event, m.cfg.Stream.BufferSize)
	go func() {
		// the lock releases before the channel closes, so a consumer that
		// drains the stream can immediately follow up with Step or Cancel
		defer close(ch)
		defer sess.mu.Unlock()
		m.pump(ctx, buildID, mode, ch)
	}()
	return ch, nil
}

// pump runs the step loop for one stream
func (m *Manager) pump(ctx context.Context, buildID string, mode orchestrator.Mode, ch chan<- Event) {
	logger := m.logger.WithBuild(buildID)
	seenHistory := 0
	doneTasks := 0

	for {
		if ctx.Err() != nil {
			logger.Info("stream cancelled")
			return
		}

		s, err := m.stepper.Step(ctx, buildID, mode)
		if err != nil {
			errEvent := Event{
				Type:    "error",
				BuildID: buildID,
				Err:     err.Error(),
				Time:    time.Now().UTC(),
			}
			if s != nil {
				errEvent.Phase = s.Phase
				errEvent.TaskID = s.CurrentTaskID
			}
			if !m.send(ctx, ch, errEvent) {
				return
			}
			m.sendDone(ctx, ch, buildID, s)
			return
		}

		// replay history appended by this step as stream events
		for ; seenHistory < len(s.History); seenHistory++ {
			e := s.History[seenHistory]
			switch e.Kind {
			case "task_started":
				if !m.send(ctx, ch, Event{
					Type:    "task_started",
					BuildID: buildID,
					TaskID:  e.TaskID,
					Phase:   s.Phase,
					Time:    e.At,
				}) {
					return
				}
			case "task_done":
				doneTasks++
				if !m.send(ctx, ch, Event{
					Type:    "task_done",
					BuildID: buildID,
					TaskID:  e.TaskID,
					Phase:   s.Phase,
					Time:    e.At,
				}) {
					return
				}
				if !m.send(ctx, ch, Event{
					Type:    "card",
					BuildID: buildID,
					TaskID:  e.TaskID,
					Phase:   s.Phase,
					Card:    m.buildCard(s, e.TaskID, doneTasks),
					Time:    time.Now().UTC(),
				}) {
					return
				}
			}
		}

		if s.Phase.Terminal() {
			m.sendDone(ctx, ch, buildID, s)
			return
		}
		if mode == orchestrator.ModePlanOnly && s.Phase != build.PhasePlanning {
			m.sendDone(ctx, ch, buildID, s)
			return
		}
	}
}

// buildCard summarizes a completed task as a version card
func (m *Manager) buildCard(s *build.State, taskID string, version int) *Card {
	card := &Card{
		Version:    version,
		TaskID:     taskID,
		TokenUsage: s.TotalTokenUsage(),
	}
	if s.BuildGraph != nil {
		if task := s.BuildGraph.Find(taskID); task != nil {
			card.Title = task.Title
		}
	}
	for i := len(s.PatchSets) - 1; i >= 0; i-- {
		if s.PatchSets[i].TaskID == taskID {
			card.Files = s.PatchSets[i].TouchedFiles
			break
		}
	}
	return card
}

// send delivers an event unless the consumer is gone
func (m *Manager) send(ctx context.Context, ch chan<- Event, ev Event) bool {
	select {
	case ch <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func (m *Manager) sendDone(ctx context.Context, ch chan<- Event, buildID string, s *build.State) {
	ev := Event{Type: "done", BuildID: buildID, Time: time.Now().UTC()}
	if s != nil {
		ev.Phase = s.Phase
	}
	m.send(ctx, ch, ev)
}

// Close rejects all future work. In-flight steps finish; their sessions
// unlock as usual.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
}
