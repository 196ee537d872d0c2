package topicmgr

import "errors"

// Topic is a named event with its documentation.
type Topic interface {
	Name() string
	// Component owns a bus topic; wire topics have none.
	Component() string
	Description() string
	// Example is a sample JSON payload, possibly empty.
	Example() string
	// Direction is DirectionNone for bus topics.
	Direction() Direction
	Scope() TopicScope
}

// TopicConfig describes a topic for DefineWire and DefineBus.
type TopicConfig struct {
	Name        string     `json:"name"`
	Component   string     `json:"component,omitempty"`
	Scope       TopicScope `json:"scope"`
	Direction   Direction  `json:"direction,omitempty"`
	Description string     `json:"description"`
	Example     string     `json:"example,omitempty"`
}

// topic is the Topic built from a TopicConfig.
type topic struct{ cfg TopicConfig }

func (t topic) Name() string         { return t.cfg.Name }
func (t topic) Component() string    { return t.cfg.Component }
func (t topic) Description() string  { return t.cfg.Description }
func (t topic) Example() string      { return t.cfg.Example }
func (t topic) Direction() Direction { return t.cfg.Direction }
func (t topic) Scope() TopicScope    { return t.cfg.Scope }
func (t topic) String() string       { return t.cfg.Name }

// TopicScope separates socket event names from internal bus topics.
type TopicScope string

const (
	ScopeWire TopicScope = "wire"
	ScopeBus  TopicScope = "bus"
)

// Direction is which way a wire event travels relative to the client.
type Direction string

const (
	DirectionNone Direction = ""
	Inbound       Direction = "inbound"
	Outbound      Direction = "outbound"
	Bidirectional Direction = "both"
)

// Receives reports whether the client listens for this direction.
func (d Direction) Receives() bool {
	return d == Inbound || d == Bidirectional
}

// Sends reports whether the client emits this direction.
func (d Direction) Sends() bool {
	return d == Outbound || d == Bidirectional
}

var (
	ErrUnknownTopic = errors.New("topic not found")
	// ErrDuplicate is returned when a name is registered twice.
	ErrDuplicate    = errors.New("topic already registered")
	ErrInvalidTopic = errors.New("invalid topic")
)

// IsDuplicate reports whether err comes from registering a name twice.
func IsDuplicate(err error) bool {
	return errors.Is(err, ErrDuplicate)
}
