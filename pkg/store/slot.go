package store

import "fmt"

// SlotState is the reconstruction state of one object within a load.
type SlotState int

const (
	SlotUnallocated SlotState = iota
	SlotBlank
	SlotConstructing
	SlotReady
)

// String returns a human-readable representation of the state.
func (s SlotState) String() string {
	switch s {
	case SlotUnallocated:
		return "Unallocated"
	case SlotBlank:
		return "Blank"
	case SlotConstructing:
		return "Constructing"
	case SlotReady:
		return "Ready"
	default:
		return "Unknown"
	}
}

// transitionTo moves the slot to next or reports an invalid transition.
//
//	Unallocated -> Blank -> Ready          (two-phase)
//	Unallocated -> Constructing -> Ready   (constructor)
func (sl *slot) transitionTo(next SlotState) error {
	prev := sl.state
	switch prev {
	case SlotUnallocated:
		if next != SlotBlank && next != SlotConstructing && next != SlotReady {
			return fmt.Errorf("store: invalid slot transition %s -> %s", prev, next)
		}
	case SlotBlank, SlotConstructing:
		if next != SlotReady {
			return fmt.Errorf("store: invalid slot transition %s -> %s", prev, next)
		}
	case SlotReady:
		return fmt.Errorf("store: invalid slot transition %s -> %s", prev, next)
	}
	sl.state = next
	return nil
}

// usable reports whether the slot's value may be handed to another helper.
func (sl *slot) usable() bool {
	return sl.state == SlotBlank || sl.state == SlotReady
}
