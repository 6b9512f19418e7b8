package strategy

import "fmt"

// Name identifies a strategy implementation by string, the way it would
// arrive from a CLI flag or config file.
type Name string

const (
	NameRoundRobin            Name = "round_robin"
	NameRandom                Name = "random"
	NameVersionPinned         Name = "version_pinned"
	NameLeastConnections      Name = "least_connection"
	NameWeightedResponseTime  Name = "weighted_response_time"
)

// New constructs the named Strategy. RoundRobin is the only strategy that
// needs a Counter; it is ignored by the others.
func New(name Name, counter Counter) (Strategy, error) {
	switch name {
	case NameRoundRobin, "":
		return NewRoundRobin(counter), nil
	case NameRandom:
		return NewRandom(), nil
	case NameVersionPinned:
		return NewVersionPinned(), nil
	case NameLeastConnections:
		return NewLeastConnections(), nil
	case NameWeightedResponseTime:
		return NewWeightedResponseTime(), nil
	default:
		return nil, fmt.Errorf("strategy: unknown strategy %q", name)
	}
}
