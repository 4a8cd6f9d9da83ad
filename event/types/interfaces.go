package types

// Subscriber declares the events it handles and serves the named handlers.
//
// SubscribedEvents is read once at build time on a prototype and again when
// a live instance is first materialized. Handler resolves a method name to
// a listener bound to the receiver; at build time it is only used to check
// that the method exists.
type Subscriber interface {
	SubscribedEvents() []Declaration
	Handler(method string) (Listener, bool)
}

// Named is implemented by subscribers that carry their own identity.
// Subscribers added to a dynamic manager without it are identified by their Go type.
type Named interface {
	SubscriberID() string
}

// ServiceGraph is the read-only view of the host container used during optimization.
type ServiceGraph interface {
	ResolveType(serviceID string) (*Type, bool)
	KnownServices() []Service
}

// Provider materializes subscriber instances at runtime.
type Provider interface {
	Instance(serviceID string) (any, error)
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(serviceID string) (any, error)

// Instance implements Provider.
func (f ProviderFunc) Instance(serviceID string) (any, error) { return f(serviceID) }

// ExceptionHandler intercepts listener failures.
// Returning nil continues with the next listener; returning an error aborts
// the dispatch with that error.
type ExceptionHandler interface {
	HandleException(ev *Event, err error) error
}

// ExceptionHandlerFunc adapts a function to the ExceptionHandler interface.
type ExceptionHandlerFunc func(ev *Event, err error) error

// HandleException implements ExceptionHandler.
func (f ExceptionHandlerFunc) HandleException(ev *Event, err error) error { return f(ev, err) }

// Observer receives dispatch notifications (inspection tooling).
// Calls nest when listeners dispatch further events.
type Observer interface {
	BeginDispatch(ev *Event, listeners []ListenerInfo)
	EndDispatch(ev *Event, err error)
}
