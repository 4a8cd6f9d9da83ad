package event

import (
	"errors"
	"fmt"
	"sync"
)

// Sentinel errors.
var (
	ErrNotSupported     = errors.New("event: operation not supported")
	ErrStaticTable      = errors.New("event: listeners are compiled, the table cannot be modified")
	ErrHandlerPanic     = errors.New("event: handler panicked")
	ErrHandlerNotFound  = errors.New("event: handler not found on subscriber")
	ErrNoDefaultManager = errors.New("event: default manager not set")
	ErrNoProvider       = errors.New("event: subscriber provider not set")
)

// HandlerError wraps a failure returned by a listener.
type HandlerError struct {
	Event      string
	Subscriber string
	Method     string
	Err        error
}

func (e *HandlerError) Error() string {
	if e.Method != "" {
		return fmt.Sprintf("event: %s handler %s::%s failed: %v", e.Event, e.Subscriber, e.Method, e.Err)
	}
	return fmt.Sprintf("event: %s handler %s (closure) failed: %v", e.Event, e.Subscriber, e.Err)
}

// Unwrap returns the listener error.
func (e *HandlerError) Unwrap() error { return e.Err }

// PanicError is the error a panicking listener is turned into.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("%v: %v", ErrHandlerPanic, e.Value)
}

// Is matches ErrHandlerPanic.
func (e *PanicError) Is(target error) bool { return target == ErrHandlerPanic }

// ResolveError reports a subscriber that could not be instantiated or does
// not expose a bound handler.
type ResolveError struct {
	Subscriber string
	Err        error
}

func (e *ResolveError) Error() string {
	return fmt.Sprintf("event: cannot resolve subscriber %s: %v", e.Subscriber, e.Err)
}

// Unwrap returns the cause.
func (e *ResolveError) Unwrap() error { return e.Err }

// defaultManager is the manager used by the "events" process group.
var defaultManager struct {
	mu sync.RWMutex
	m  *Manager
}

// SetDefault installs the manager used by package-level helpers and processes.
func SetDefault(m *Manager) {
	defaultManager.mu.Lock()
	defer defaultManager.mu.Unlock()
	defaultManager.m = m
}

// Default returns the installed manager, nil if none.
func Default() *Manager {
	defaultManager.mu.RLock()
	defer defaultManager.mu.RUnlock()
	return defaultManager.m
}

// Dispatch dispatches on the default manager.
func Dispatch(name string, args ...any) error {
	m := Default()
	if m == nil {
		return ErrNoDefaultManager
	}
	return m.Dispatch(name, args...)
}

// Reset clears the default manager. For testing only.
func Reset() {
	SetDefault(nil)
}
