// Package listener implements the trigger/job listener broadcast contract
// of spec.md §4.7: listeners registered under a unique name with matchers,
// invoked in insertion order, with per-listener panics/errors logged and
// never propagated into the caller.
package listener

import (
	"log/slog"

	"github.com/cug2104518294/quartz-explained/internal/domain"
)

// Matcher is a predicate over a job/trigger key (spec.md §4.7).
type Matcher func(key domain.Key) bool

// MatchAll matches every key — the default for a listener registered with
// no matchers.
func MatchAll() Matcher { return func(domain.Key) bool { return true } }

// MatchKeyEquals matches one exact key.
func MatchKeyEquals(key domain.Key) Matcher {
	return func(k domain.Key) bool { return k == key }
}

// MatchGroupEquals matches every key in a group.
func MatchGroupEquals(group string) Matcher {
	return func(k domain.Key) bool { return k.Group == group }
}

// MatchNameStartsWith matches keys whose name has the given prefix.
func MatchNameStartsWith(prefix string) Matcher {
	return func(k domain.Key) bool {
		return len(k.Name) >= len(prefix) && k.Name[:len(prefix)] == prefix
	}
}

// TriggerListener observes trigger fire lifecycle events (spec.md §4.6).
type TriggerListener interface {
	Name() string
	TriggerFired(fire FireEvent) (veto bool)
	TriggerMisfired(fire FireEvent)
	TriggerComplete(fire FireEvent, instruction domain.CompletionInstruction)
}

// JobListener observes job execution lifecycle events (spec.md §4.6).
type JobListener interface {
	Name() string
	JobToBeExecuted(fire FireEvent)
	JobExecutionVetoed(fire FireEvent)
	JobWasExecuted(fire FireEvent, execErr error)
}

// SchedulerListener observes scheduler-wide lifecycle events; these are
// global per spec.md §4.7 ("no matchers").
type SchedulerListener interface {
	Name() string
	SchedulerStarted()
	SchedulerShutdown()
	SchedulingDataCleared()
	JobScheduled(jobKey, triggerKey domain.Key)
}

// FireEvent is the minimal context every trigger/job listener callback
// receives — enough to identify what fired without a store round trip.
type FireEvent struct {
	JobKey     domain.Key
	TriggerKey domain.Key
	// FireInstanceID identifies exactly one fire, for listeners that
	// correlate callbacks with facade.Interrupt(fireInstanceID).
	FireInstanceID string
}

type registeredTrigger struct {
	matcher Matcher
	l       TriggerListener
}

type registeredJob struct {
	matcher Matcher
	l       JobListener
}

// Manager is the ListenerManager: registration plus broadcast, matching
// spec.md §4.7/§6's "getListenerManager" surface. Not safe for concurrent
// Add*/Remove* with Broadcast*; registration is expected to happen during
// scheduler setup, broadcast during steady-state operation.
type Manager struct {
	logger *slog.Logger

	triggerListeners []registeredTrigger
	jobListeners     []registeredJob
	schedulerListeners []SchedulerListener
}

func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{logger: logger.With("component", "listenermanager")}
}

func (m *Manager) AddTriggerListener(l TriggerListener, matchers ...Matcher) {
	m.triggerListeners = append(m.triggerListeners, registeredTrigger{matcher: combine(matchers), l: l})
}

func (m *Manager) AddJobListener(l JobListener, matchers ...Matcher) {
	m.jobListeners = append(m.jobListeners, registeredJob{matcher: combine(matchers), l: l})
}

func (m *Manager) AddSchedulerListener(l SchedulerListener) {
	m.schedulerListeners = append(m.schedulerListeners, l)
}

func (m *Manager) RemoveTriggerListener(name string) {
	m.triggerListeners = removeNamed(m.triggerListeners, name, func(r registeredTrigger) string { return r.l.Name() })
}

func (m *Manager) RemoveJobListener(name string) {
	m.jobListeners = removeNamed(m.jobListeners, name, func(r registeredJob) string { return r.l.Name() })
}

func combine(matchers []Matcher) Matcher {
	if len(matchers) == 0 {
		return MatchAll()
	}
	return func(k domain.Key) bool {
		for _, m := range matchers {
			if !m(k) {
				return false
			}
		}
		return true
	}
}

func removeNamed[T any](items []T, name string, nameOf func(T) string) []T {
	out := items[:0]
	for _, it := range items {
		if nameOf(it) != name {
			out = append(out, it)
		}
	}
	return out
}

// BroadcastTriggerFired notifies every matching trigger listener in
// insertion order and returns true if any vetoed the fire.
func (m *Manager) BroadcastTriggerFired(ev FireEvent) (veto bool) {
	for _, r := range m.triggerListeners {
		if !r.matcher(ev.TriggerKey) {
			continue
		}
		v := m.safeTriggerFired(r.l, ev)
		veto = veto || v
	}
	return veto
}

func (m *Manager) safeTriggerFired(l TriggerListener, ev FireEvent) (veto bool) {
	defer func() {
		if rec := recover(); rec != nil {
			m.logger.Error("trigger listener panicked", "listener", l.Name(), "panic", rec)
		}
	}()
	return l.TriggerFired(ev)
}

func (m *Manager) BroadcastTriggerMisfired(ev FireEvent) {
	for _, r := range m.triggerListeners {
		if !r.matcher(ev.TriggerKey) {
			continue
		}
		m.safeCall(r.l.Name(), func() { r.l.TriggerMisfired(ev) })
	}
}

func (m *Manager) BroadcastTriggerComplete(ev FireEvent, instruction domain.CompletionInstruction) {
	for _, r := range m.triggerListeners {
		if !r.matcher(ev.TriggerKey) {
			continue
		}
		m.safeCall(r.l.Name(), func() { r.l.TriggerComplete(ev, instruction) })
	}
}

func (m *Manager) BroadcastJobToBeExecuted(ev FireEvent) {
	for _, r := range m.jobListeners {
		if !r.matcher(ev.JobKey) {
			continue
		}
		m.safeCall(r.l.Name(), func() { r.l.JobToBeExecuted(ev) })
	}
}

func (m *Manager) BroadcastJobExecutionVetoed(ev FireEvent) {
	for _, r := range m.jobListeners {
		if !r.matcher(ev.JobKey) {
			continue
		}
		m.safeCall(r.l.Name(), func() { r.l.JobExecutionVetoed(ev) })
	}
}

func (m *Manager) BroadcastJobWasExecuted(ev FireEvent, execErr error) {
	for _, r := range m.jobListeners {
		if !r.matcher(ev.JobKey) {
			continue
		}
		m.safeCall(r.l.Name(), func() { r.l.JobWasExecuted(ev, execErr) })
	}
}

func (m *Manager) BroadcastSchedulerStarted() {
	for _, l := range m.schedulerListeners {
		m.safeCall(l.Name(), l.SchedulerStarted)
	}
}

func (m *Manager) BroadcastSchedulerShutdown() {
	for _, l := range m.schedulerListeners {
		m.safeCall(l.Name(), l.SchedulerShutdown)
	}
}

func (m *Manager) BroadcastSchedulingDataCleared() {
	for _, l := range m.schedulerListeners {
		m.safeCall(l.Name(), l.SchedulingDataCleared)
	}
}

func (m *Manager) BroadcastJobScheduled(jobKey, triggerKey domain.Key) {
	for _, l := range m.schedulerListeners {
		listener := l
		m.safeCall(listener.Name(), func() { listener.JobScheduled(jobKey, triggerKey) })
	}
}

func (m *Manager) safeCall(name string, fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			m.logger.Error("listener panicked", "listener", name, "panic", rec)
		}
	}()
	fn()
}
