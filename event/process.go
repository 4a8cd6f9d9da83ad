package event

import (
	"github.com/yaoapp/gou/process"
	"github.com/yaoapp/kun/exception"
)

func init() {
	process.RegisterGroup("events", map[string]process.Handler{
		"dispatch":     processDispatch,
		"haslisteners": processHasListeners,
		"listeners":    processListeners,
	})
}

// processDispatch handles events.Dispatch(name, ...args).
// args[0]: event name
// args[1:]: event arguments
func processDispatch(p *process.Process) interface{} {
	p.ValidateArgNums(1)
	m := defaultOrThrow()
	name := p.ArgsString(0)
	if err := m.Dispatch(name, p.Args[1:]...); err != nil {
		exception.New(err.Error(), 500).Throw()
	}
	return nil
}

// processHasListeners handles events.HasListeners(name?).
// args[0]: optional event name, any event when omitted
func processHasListeners(p *process.Process) interface{} {
	m := defaultOrThrow()
	name := ""
	if p.NumOfArgs() > 0 {
		name = p.ArgsString(0)
	}
	return m.HasListeners(name)
}

// processListeners handles events.Listeners(name?).
// Without a name the listeners of every event are returned, keyed by name.
func processListeners(p *process.Process) interface{} {
	m := defaultOrThrow()
	if p.NumOfArgs() > 0 {
		return m.Listeners(p.ArgsString(0))
	}
	return m.AllListeners()
}

func defaultOrThrow() *Manager {
	m := Default()
	if m == nil {
		exception.New(ErrNoDefaultManager.Error(), 500).Throw()
	}
	return m
}
