// Package draft holds the state of the report being written: the anomaly
// and safety reducers, the heavy-machine readings and the controller that
// turns them into a report request.
package draft

import "lubereport/internal/domain"

// ActionType names a reducer transition.
type ActionType string

const (
	ActionAdd          ActionType = "ADD"
	ActionAddOutOfTour ActionType = "ADD_OUT_OF_TOUR"
	ActionUpdate       ActionType = "UPDATE"
	ActionRemove       ActionType = "REMOVE"
	ActionInit         ActionType = "INIT"
	ActionReset        ActionType = "RESET"
)

// Field names accepted by UPDATE.
const (
	FieldMachine     = "machine"
	FieldComment     = "comment"
	FieldImages      = "images"
	FieldOutOfTour   = "out_of_tour"
	FieldType        = "type"
	FieldDescription = "description"
)

// EntryAction is dispatched to ReduceEntries.
type EntryAction struct {
	Type    ActionType
	Index   int
	Field   string
	Value   any
	Payload []*domain.AnomalyEntry
}

func emptyEntry() *domain.AnomalyEntry {
	return &domain.AnomalyEntry{Images: []string{}}
}

// InitialEntries is the state of a fresh form: one empty row.
func InitialEntries() []*domain.AnomalyEntry {
	return []*domain.AnomalyEntry{emptyEntry()}
}

// ReduceEntries returns the anomaly rows after applying a. The input slice
// and its rows are never modified; rows not targeted by UPDATE are shared
// with the previous state.
func ReduceEntries(state []*domain.AnomalyEntry, a EntryAction) []*domain.AnomalyEntry {
	switch a.Type {
	case ActionAdd:
		return appendRow(state, emptyEntry())
	case ActionAddOutOfTour:
		row := emptyEntry()
		row.OutOfTour = true
		return appendRow(state, row)
	case ActionUpdate:
		next := make([]*domain.AnomalyEntry, len(state))
		for i, row := range state {
			if i != a.Index {
				next[i] = row
				continue
			}
			updated, ok := setEntryField(*row, a.Field, a.Value)
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
		return InitialEntries()
	default:
		return state
	}
}

func setEntryField(row domain.AnomalyEntry, field string, value any) (domain.AnomalyEntry, bool) {
	switch field {
	case FieldMachine:
		v, ok := value.(string)
		if !ok {
			return row, false
		}
		row.Machine = v
	case FieldComment:
		v, ok := value.(string)
		if !ok {
			return row, false
		}
		row.Comment = v
	case FieldImages:
		v, ok := value.([]string)
		if !ok {
			return row, false
		}
		row.Images = v
	case FieldOutOfTour:
		v, ok := value.(bool)
		if !ok {
			return row, false
		}
		row.OutOfTour = v
	default:
		return row, false
	}
	return row, true
}

func appendRow[T any](state []*T, row *T) []*T {
	next := make([]*T, 0, len(state)+1)
	next = append(next, state...)
	return append(next, row)
}

func removeAt[T any](state []*T, index int) []*T {
	next := make([]*T, 0, len(state))
	for i, row := range state {
		if i != index {
			next = append(next, row)
		}
	}
	return next
}
