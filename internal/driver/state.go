package driver

import "fmt"

// State is the stage a job is in. A job moves forward through the stages in
// declaration order and may jump to StateFailed from any non-terminal stage.
type State uint8

const (
	StateInit State = iota
	StateParsing
	StateGrouping
	StateAggregating
	StateWriting
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateParsing:
		return "PARSING"
	case StateGrouping:
		return "GROUPING"
	case StateAggregating:
		return "AGGREGATING"
	case StateWriting:
		return "WRITING"
	case StateDone:
		return "DONE"
	case StateFailed:
		return "FAILED"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// Terminal reports whether no further transition can happen.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}
