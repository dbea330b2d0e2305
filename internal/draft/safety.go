package draft

import "lubereport/internal/domain"

// SafetyAction is dispatched to ReduceSafety.
type SafetyAction struct {
	Type    ActionType
	Index   int
	Field   string
	Value   any
	Payload []*domain.SafetyEvent
}

// InitialSafety is the state of a fresh form: no safety rows.
func InitialSafety() []*domain.SafetyEvent {
	return []*domain.SafetyEvent{}
}

// ReduceSafety returns the safety rows after applying a. ADD_OUT_OF_TOUR is
// not a safety transition and leaves the state unchanged.
func ReduceSafety(state []*domain.SafetyEvent, a SafetyAction) []*domain.SafetyEvent {
	switch a.Type {
	case ActionAdd:
		return appendRow(state, &domain.SafetyEvent{Images: []string{}})
	case ActionUpdate:
		next := make([]*domain.SafetyEvent, len(state))
		for i, row := range state {
			if i != a.Index {
				next[i] = row
				continue
			}
			updated, ok := setSafetyField(*row, a.Field, a.Value)
			if !ok {
				return state
			}
			next[i] = &updated
		}
		return next
	case ActionRemove:
		return removeAt(state, a.Index)
	case ActionInit:
		return a.Payload
	case ActionReset:
		return InitialSafety()
	default:
		return state
	}
}

func setSafetyField(row domain.SafetyEvent, field string, value any) (domain.SafetyEvent, bool) {
	switch field {
	case FieldType:
		v, ok := value.(string)
		if !ok {
			return row, false
		}
		row.Type = v
	case FieldDescription:
		v, ok := value.(string)
		if !ok {
			return row, false
		}
		row.Description = v
	case FieldImages:
		v, ok := value.([]string)
		if !ok {
			return row, false
		}
		row.Images = v
	default:
		return row, false
	}
	return row, true
}
