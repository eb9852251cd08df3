package ruleevaluation

import (
	"fmt"
	"strings"

	ast "secwaf/secrule/ast"
)

func executeSetVarAction(sv *ast.SetVarAction, tx *Transaction, rule *ast.Rule) (err error) {
	variableName := strings.ToLower(expandMacros(sv.Variable, tx, rule).String())
	value := expandMacros(sv.Value, tx, rule)

	if !strings.HasPrefix(variableName, "tx.") {
		err = fmt.Errorf("unsupported variable %s for setvar operation", variableName)
		return
	}

	variableName = strings.TrimPrefix(variableName, "tx.")

	switch sv.Operator {
	case ast.Set:
		tx.setTxVar(variableName, value)
	case ast.Increment, ast.Decrement:
		if err = performNumericalOperation(variableName, sv.Operator, value, tx); err != nil {
			return
		}
	case ast.DeleteVar:
		tx.deleteTxVar(variableName)
	default:
		err = fmt.Errorf("unsupported operator %d for setvar operation", sv.Operator)
		return
	}

	return
}

func performNumericalOperation(variable string, op ast.SetVarActionOperator, value ast.Value, tx *Transaction) error {
	curr, ok := tx.TxVar(variable)
	if !ok {
		curr = ast.Value{ast.IntToken(0)}
	}

	currInt, ok := curr.Int()
	if !ok {
		return fmt.Errorf("variable %s was not an integer", variable)
	}

	valueInt, ok := value.Int()
	if !ok {
		return fmt.Errorf("value %s was not an integer", value.String())
	}

	switch op {
	case ast.Increment:
		currInt += valueInt
	case ast.Decrement:
		currInt -= valueInt
	}

	tx.setTxVar(variable, ast.Value{ast.IntToken(currInt)})
	return nil
}

// expandMacros replaces the macros of a value by what they resolve to for the given rule. Macros that resolve to nothing become blank.
func expandMacros(v ast.Value, tx *Transaction, rule *ast.Rule) (output ast.Value) {
	if !v.HasMacros() {
		return v
	}

	output = make(ast.Value, 0, len(v))
	for _, token := range v {
		mt, ok := token.(ast.MacroToken)
		if !ok {
			output = append(output, token)
			continue
		}

		if mt.Name == ast.TargetTx {
			if tv, ok := tx.TxVar(mt.Selector); ok {
				output = append(output, tv...)
			}
			continue
		}

		target := ast.Target{Name: mt.Name}
		if mt.Selector != "" {
			target.Path = []string{mt.Selector}
		}
		for i, rv := range Resolve(target, tx, rule) {
			if i > 0 {
				output = append(output, ast.StringToken(" "))
			}
			output = append(output, ast.StringToken(rv.Value))
		}
	}

	return
}
