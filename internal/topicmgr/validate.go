package topicmgr

import (
	"fmt"
	"regexp"
	"strings"
)

const maxNameLen = 100

var (
	// Socket event names are snake_case: user_online, dm.
	wireName = regexp.MustCompile(`^[a-z][a-z0-9]*(_[a-z0-9]+)*$`)
	// Bus topics are dotted and start with their component: notify.feed.changed.
	busName = regexp.MustCompile(`^[a-z][a-z0-9]*(\.[a-z][a-z0-9]*)+$`)
)

// ValidateName checks name against the naming rules of either scope.
func ValidateName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("%w: empty name", ErrInvalidTopic)
	case len(name) > maxNameLen:
		return fmt.Errorf("%w: name longer than %d characters", ErrInvalidTopic, maxNameLen)
	case !wireName.MatchString(name) && !busName.MatchString(name):
		return fmt.Errorf("%w: %q is neither snake_case nor dotted lowercase", ErrInvalidTopic, name)
	}
	return nil
}

func validate(t Topic) error {
	if t == nil {
		return fmt.Errorf("%w: nil topic", ErrInvalidTopic)
	}
	if strings.TrimSpace(t.Description()) == "" {
		return invalid(t, "missing description")
	}
	name := t.Name()

	switch t.Scope() {
	case ScopeWire:
		if !wireName.MatchString(name) {
			return invalid(t, "wire names are snake_case")
		}
		if t.Component() != "" {
			return invalid(t, "wire topics have no component")
		}
		if !t.Direction().Receives() && !t.Direction().Sends() {
			return invalid(t, "wire topics need a direction")
		}
	case ScopeBus:
		if !busName.MatchString(name) {
			return invalid(t, "bus names are dotted lowercase")
		}
		if t.Direction() != DirectionNone {
			return invalid(t, "bus topics have no direction")
		}
		if c := t.Component(); c == "" || !strings.HasPrefix(name, c+".") {
			return invalid(t, "bus names start with their component")
		}
	default:
		return invalid(t, fmt.Sprintf("unknown scope %q", t.Scope()))
	}
	return nil
}

func invalid(t Topic, reason string) error {
	return fmt.Errorf("%w %s: %s", ErrInvalidTopic, t.Name(), reason)
}
