package ruleparsing

import (
	"fmt"
	"strings"

	ast "secwaf/secrule/ast"
)

// parseSetVarAction parses setvar parameters: "!tx.a" deletes, "tx.a=+5" and "tx.a=-5" add and subtract, "tx.a=v" assigns and a bare "tx.a" assigns 1.
func parseSetVarAction(parameter string) (sv ast.SetVarAction, err error) {
	name, value, assigns := strings.Cut(parameter, "=")

	deletes := strings.HasPrefix(name, "!")
	if deletes {
		name = name[1:]
	}
	if name == "" || deletes && assigns {
		err = fmt.Errorf("unsupported parameter %s for setvar operation", parameter)
		return
	}

	sv.Variable, err = ast.ParseValue(name)
	if err != nil {
		return
	}

	if deletes {
		sv.Operator = ast.DeleteVar
		return
	}

	sv.Operator = ast.Set
	if value != "" {
		switch value[0] {
		case '+':
			sv.Operator, value = ast.Increment, value[1:]
		case '-':
			sv.Operator, value = ast.Decrement, value[1:]
		}
	}
	if value == "" {
		value = "1"
	}

	sv.Value, err = ast.ParseValue(value)
	return
}
