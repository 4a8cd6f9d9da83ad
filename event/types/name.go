package types

import (
	"errors"
	"strings"
)

// ErrEmptyName is returned for empty event names.
var ErrEmptyName = errors.New("event: empty event name")

// Name separators.
const (
	SeparatorClass = "::"
	SeparatorDot   = "."
)

// Name is a parsed event name.
//   - "App\Article::onCreate" -> {Namespace: "App\Article", Event: "onCreate", Separator: "::"}
//   - "app.article.created"   -> {Namespace: "app.article", Event: "created", Separator: "."}
//   - "onStartup"             -> {Event: "onStartup"}
type Name struct {
	Namespace string
	Event     string
	Separator string
}

// ParseName splits a normalized event name into namespace and short name.
func ParseName(name string) Name {
	name = NormalizeName(name)
	if i := strings.LastIndex(name, SeparatorClass); i > 0 && i+len(SeparatorClass) < len(name) {
		return Name{Namespace: name[:i], Event: name[i+len(SeparatorClass):], Separator: SeparatorClass}
	}
	if strings.Contains(name, ":") {
		return Name{Event: name}
	}
	if i := strings.LastIndex(name, SeparatorDot); i > 0 && i+1 < len(name) {
		return Name{Namespace: name[:i], Event: name[i+1:], Separator: SeparatorDot}
	}
	return Name{Event: name}
}

// NormalizeName trims whitespace and leading namespace separators.
func NormalizeName(name string) string {
	return strings.TrimLeft(strings.TrimSpace(name), `\`)
}

// ValidateName returns ErrEmptyName for names that normalize to nothing.
func ValidateName(name string) error {
	if NormalizeName(name) == "" {
		return ErrEmptyName
	}
	return nil
}

// HasNamespace reports whether the name carries a namespace.
func (n Name) HasNamespace() bool { return n.Namespace != "" }

// WithNamespace rebinds the short name to another namespace.
func (n Name) WithNamespace(ns string) Name {
	sep := n.Separator
	if sep == "" {
		sep = SeparatorClass
	}
	return Name{Namespace: NormalizeName(ns), Event: n.Event, Separator: sep}
}

// String rebuilds the full event name.
func (n Name) String() string {
	if n.Namespace == "" {
		return n.Event
	}
	return n.Namespace + n.Separator + n.Event
}
