package offline

import "fmt"

// Action is the kind of mutation applied to a record
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// IsValid checks if the action is one of the known mutation kinds
func (a Action) IsValid() bool {
	switch a {
	case ActionCreate, ActionUpdate, ActionDelete:
		return true
	}
	return false
}

// String implements fmt.Stringer
func (a Action) String() string {
	return string(a)
}

// ParseAction converts a string to an Action. "edit" is accepted as an alias of update.
func ParseAction(s string) (Action, error) {
	switch s {
	case "create":
		return ActionCreate, nil
	case "update", "edit":
		return ActionUpdate, nil
	case "delete":
		return ActionDelete, nil
	}
	return "", fmt.Errorf("%w: unknown action %q", ErrInvalidInput, s)
}
