package library

import "slices"

// EventType identifies a registry change.
type EventType uint8

const (
	EventLoaded EventType = iota
	EventUnloaded
)

func (t EventType) String() string {
	if t == EventUnloaded {
		return "unloaded"
	}
	return "loaded"
}

// Event describes one registry change. A reload produces an unload followed by a load.
type Event struct {
	Key   string
	Epoch uint64
	Type  EventType
}

// Observer receives registry events. Events are delivered while the manager lock is
// held, so observers must not call back into the manager.
type Observer interface {
	OnLibraryEvent(e Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) OnLibraryEvent(e Event) { f(e) }

// Subscribe adds an observer and returns a function that removes it.
func (m *Manager) Subscribe(o Observer) (cancel func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextObserver++
	id := m.nextObserver
	m.observers = append(m.observers, subscription{id: id, o: o})
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.observers = slices.DeleteFunc(m.observers, func(s subscription) bool { return s.id == id })
	}
}

type subscription struct {
	o  Observer
	id uint64
}

func (m *Manager) notify(e Event) {
	for _, s := range m.observers {
		s.o.OnLibraryEvent(e)
	}
}
