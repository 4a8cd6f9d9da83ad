package registry

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/yaoapp/events/event/types"
	"github.com/yaoapp/kun/log"
)

// Validate checks every manager setup and subscriber declaration.
// All failures are reported together; on failure nothing is recorded.
func (b *Builder) Validate() error {
	b.reset()

	known := map[string]struct{}{}
	for _, s := range b.graph.KnownServices() {
		known[s.ID] = struct{}{}
	}

	var errs *multierror.Error
	seen := map[string]struct{}{}

	for _, stt := range b.setups {
		switch {
		case stt.Method == MethodAddSubscriber:
		case isListenerSetup(stt.Method):
			errs = multierror.Append(errs, directRegistration(stt, nil))
			continue
		default:
			b.allowed = append(b.allowed, stt)
			continue
		}

		id, ok := serviceRef(stt)
		if !ok {
			errs = multierror.Append(errs, directRegistration(stt, fmt.Errorf("argument %v is not a service reference", stt.Args)))
			continue
		}
		if _, ok := known[id]; !ok {
			errs = multierror.Append(errs, directRegistration(stt, fmt.Errorf("service @%s is not defined", id)))
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		t, ok := b.graph.ResolveType(id)
		if !ok {
			errs = multierror.Append(errs, &ValidationError{
				Kind:    KindUnresolvedType,
				Service: id,
				Message: fmt.Sprintf("Please, specify existing type for %sservice @%s explicitly, and make sure that the type is registered.", anonymous(id), id),
			})
			continue
		}

		desc, err := Extract(id, t)
		if err != nil {
			errs = multierror.Append(errs, err)
			continue
		}

		b.descriptors[id] = desc
		b.listeners[id] = desc.EventNames()
		b.subscribers = append(b.subscribers, id)
	}

	if err := errs.ErrorOrNil(); err != nil {
		log.Error("[events] subscriber validation failed: %s", err.Error())
		b.reset()
		return err
	}

	b.validated = true
	log.Trace("[events] validated %d subscribers", len(b.subscribers))
	return nil
}

// Validated reports whether the last validation succeeded and no setup was added since.
func (b *Builder) Validated() bool { return b.validated }

func (b *Builder) reset() {
	b.validated = false
	b.allowed = nil
	b.subscribers = nil
	b.listeners = map[string][]string{}
	b.descriptors = map[string]*types.Descriptor{}
}

func directRegistration(stt Setup, cause error) *ValidationError {
	return &ValidationError{
		Kind:   KindDirectRegistration,
		Method: stt.Method,
		Message: fmt.Sprintf(
			"Please, do not register listeners directly to service @%s (%s). Use section \"events: subscribers:\", or register the service through Builder.Subscribe.",
			ManagerName, stt.Method,
		),
		Err: cause,
	}
}
