package ast

import (
	"bytes"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Value is a string with macros, or sometimes just an integer value. It is used for operator arguments, logging and setvar.
// Example: "Matched %{MATCHED_VAR} in %{MATCHED_VAR_NAME}, score %{tx.anomaly_score}".
// We store it as a list of tokens.
type Value []Token

// Token is an element in Value.
type Token interface{}

// StringToken is an element in a Value-string that is a literal string.
type StringToken []byte

// IntToken is an element in a Value-string that is a literal integer.
type IntToken int

// MacroToken is an element in a Value-string that is a macro (variable). Macros are expanded to concrete values at evaluation time.
type MacroToken struct {
	Name     TargetName
	Selector string
}

var variableMacroRegex = regexp.MustCompile(`%{([^}]+)}`)

// ParseValue tokenizes a string that may contain %{...} macros.
func ParseValue(s string) (v Value, err error) {
	var pos int
	for _, match := range variableMacroRegex.FindAllStringSubmatchIndex(s, -1) {
		if pos != match[0] {
			v = append(v, StringToken(s[pos:match[0]]))
		}

		var mt MacroToken
		mt, err = parseMacro(s[match[2]:match[3]])
		if err != nil {
			return
		}
		v = append(v, mt)

		pos = match[1]
	}

	if len(v) > 0 {
		if pos != len(s) {
			v = append(v, StringToken(s[pos:]))
		}
		return
	}

	// There were no macros. Try if the value is just an int token.
	if n, erratoi := strconv.Atoi(s); erratoi == nil {
		v = Value{IntToken(n)}
		return
	}

	v = Value{StringToken(s)}
	return
}

func parseMacro(m string) (mt MacroToken, err error) {
	name, selector := m, ""
	if i := strings.IndexByte(m, '.'); i >= 0 {
		name, selector = m[:i], strings.ToLower(m[i+1:])
	}

	t, ok := TargetNamesFromStr[strings.ToUpper(name)]
	if !ok {
		err = fmt.Errorf("unsupported macro %s", m)
		return
	}

	if selector != "" && t != TargetTx && t != TargetRequestHeaders && t != TargetArgs {
		err = fmt.Errorf("unsupported macro %s", m)
		return
	}

	mt = MacroToken{Name: t, Selector: selector}
	return
}

// Equal evaluates whether two Values are equivalent. Multiple string tokens on one side can correspond to a single string token on the other side.
func (v Value) Equal(other Value) bool {
	if len(v) == 0 || len(other) == 0 {
		return onlyEmptyStrings(v) && onlyEmptyStrings(other)
	}

	// Two pointers walk both sides. String tokens may be split differently on each side, so partially consumed tokens are carried as remainders.
	var aPos, bPos int
	var aRest, bRest []byte
	for aPos < len(v) && bPos < len(other) {
		switch ta := v[aPos].(type) {
		case StringToken:
			tb, ok := other[bPos].(StringToken)
			if !ok {
				return false
			}
			if aRest != nil {
				ta = aRest
			}
			if bRest != nil {
				tb = bRest
			}

			n := len(ta)
			if len(tb) < n {
				n = len(tb)
			}
			if !bytes.Equal(ta[:n], tb[:n]) {
				return false
			}

			aRest, bRest = nil, nil
			if len(ta) > n {
				aRest = ta[n:]
			} else {
				aPos++
			}
			if len(tb) > n {
				bRest = tb[n:]
			} else {
				bPos++
			}

		default:
			if ta != other[bPos] {
				return false
			}
			aPos++
			bPos++
		}
	}

	return aPos == len(v) && bPos == len(other) && aRest == nil && bRest == nil
}

func onlyEmptyStrings(v Value) bool {
	for _, t := range v {
		s, ok := t.(StringToken)
		if !ok || len(s) != 0 {
			return false
		}
	}
	return true
}

// Bytes flattens a Value into a []byte.
func (v Value) Bytes() []byte {
	// Shortcut to avoid allocating a bytes.Buffer if this is just a simple single token.
	if len(v) == 1 {
		switch token := v[0].(type) {
		case StringToken:
			return token
		case MacroToken:
			return nil
		}
	}

	var buf bytes.Buffer
	for _, token := range v {
		switch token := token.(type) {
		case IntToken:
			buf.WriteString(strconv.Itoa(int(token)))
		case StringToken:
			buf.Write(token)
		case MacroToken:
			// Unexpanded macro-tokens are omitted.
		}
	}

	return buf.Bytes()
}

// String flattens a Value into a string.
func (v Value) String() string {
	if n, ok := v.Int(); ok {
		return strconv.Itoa(n)
	}
	return string(v.Bytes())
}

// Int gets the Value as an integer if it contains just a single integer value, or a string token that is an integer.
func (v Value) Int() (n int, ok bool) {
	if len(v) != 1 {
		return
	}

	switch t := v[0].(type) {
	case IntToken:
		return int(t), true
	case StringToken:
		var err error
		n, err = strconv.Atoi(string(t))
		ok = err == nil
	}
	return
}

// HasMacros returns whether the Value contains macros.
func (v Value) HasMacros() bool {
	for _, t := range v {
		if _, ok := t.(MacroToken); ok {
			return true
		}
	}
	return false
}

// Macros returns the macro tokens of the Value.
func (v Value) Macros() (mm []MacroToken) {
	for _, t := range v {
		if mt, ok := t.(MacroToken); ok {
			mm = append(mm, mt)
		}
	}
	return
}
