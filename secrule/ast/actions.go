package ast

// Action is any of the items in the actions-block of a rule. The set of actions is closed: only types in this package implement it.
type Action interface {
	isAction()
}

// AllowAction is an action that instructs to stop processing and allow the transaction.
type AllowAction struct{}

// DenyAction is an action that instructs to stop processing and deny the transaction.
type DenyAction struct {
	Status int
}

// NoLogAction is an action that makes the engine not log.
type NoLogAction struct{}

// LogAction is an action that makes the engine log. It logs by default, but this action is useful to override NoLogAction.
type LogAction struct{}

// MsgAction is an action that says what message to log.
type MsgAction struct {
	Msg Value
}

// LogDataAction is an action that says what additional message to log.
type LogDataAction struct {
	LogData Value
}

// SetVarAction is the action that modifies variables in the per-transaction TX collection.
type SetVarAction struct {
	Variable Value
	Operator SetVarActionOperator
	Value    Value
}

// SetVarActionOperator is the kind of modification a SetVarAction does.
type SetVarActionOperator int

// SetVarActionOperators that SetVarActions can use.
const (
	_ SetVarActionOperator = iota
	Set
	Increment
	Decrement
	DeleteVar
)

func (AllowAction) isAction()   {}
func (DenyAction) isAction()    {}
func (NoLogAction) isAction()   {}
func (LogAction) isAction()     {}
func (MsgAction) isAction()     {}
func (LogDataAction) isAction() {}
func (SetVarAction) isAction()  {}

// IsDisruptive tells whether the action requests the transaction to be interrupted.
func IsDisruptive(a Action) bool {
	switch a.(type) {
	case *AllowAction, *DenyAction:
		return true
	}
	return false
}

// ActionName is the short name of an action, as used in evaluation events.
func ActionName(a Action) string {
	switch a.(type) {
	case *AllowAction:
		return "allow"
	case *DenyAction:
		return "deny"
	case *NoLogAction:
		return "nolog"
	case *LogAction:
		return "log"
	case *MsgAction:
		return "msg"
	case *LogDataAction:
		return "logdata"
	case *SetVarAction:
		return "setvar"
	}
	return "unknown"
}
