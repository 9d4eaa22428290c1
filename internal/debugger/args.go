package debugger

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/danmuck/scopectl/internal/protocol/session"
)

type argKind int

const (
	argInvalid argKind = iota
	argString
	argInt
	argFloat
	argBool
	argObject
	argList
)

// Arg is one script argument. Build it with String, Int, Float, Bool, Object
// or List; the zero Arg is rejected.
type Arg struct {
	kind  argKind
	str   string
	i     int64
	f     float64
	b     bool
	obj   ObjectRef
	items []Arg
}

func String(s string) Arg { return Arg{kind: argString, str: s} }
func Int(i int64) Arg { return Arg{kind: argInt, i: i} }
func Float(f float64) Arg { return Arg{kind: argFloat, f: f} }
func Bool(b bool) Arg { return Arg{kind: argBool, b: b} }
func Object(ref ObjectRef) Arg { return Arg{kind: argObject, obj: ref} }

// List is an array argument. Elements must share one kind (Int and Float
// count as one numeric kind) and may not themselves be lists.
func List(items ...Arg) Arg { return Arg{kind: argList, items: items} }

// wrapScript inlines primitive args and binds object args as variables named
// argN (argN_M inside a list). Without args the script is sent unchanged.
func wrapScript(script string, args []Arg, generation uint64) (string, []session.Variable, error) {
	if len(args) == 0 {
		return script, nil, nil
	}
	var vars []session.Variable
	params := make([]string, 0, len(args))
	for i, arg := range args {
		name := "arg" + strconv.Itoa(i)
		if arg.kind == argList {
			lit, listVars, err := listLiteral(name, arg.items, generation)
			if err != nil {
				return "", nil, fmt.Errorf("argument %d: %w", i, err)
			}
			params = append(params, lit)
			vars = append(vars, listVars...)
			continue
		}
		lit, v, err := scalarLiteral(name, arg, generation)
		if err != nil {
			return "", nil, fmt.Errorf("argument %d: %w", i, err)
		}
		params = append(params, lit)
		if v != nil {
			vars = append(vars, *v)
		}
	}
	return "(function(){" + script + "})(" + strings.Join(params, ",") + ")", vars, nil
}

func listLiteral(name string, items []Arg, generation uint64) (string, []session.Variable, error) {
	var (
		vars  []session.Variable
		parts = make([]string, 0, len(items))
		first argKind
	)
	for j, item := range items {
		if item.kind == argList {
			return "", nil, fmt.Errorf("%w: nested list at index %d", ErrUnsupportedArgument, j)
		}
		k := numericClass(item.kind)
		if j == 0 {
			first = k
		} else if k != first {
			return "", nil, fmt.Errorf("%w: mixed list element kinds at index %d", ErrUnsupportedArgument, j)
		}
		lit, v, err := scalarLiteral(name+"_"+strconv.Itoa(j), item, generation)
		if err != nil {
			return "", nil, err
		}
		parts = append(parts, lit)
		if v != nil {
			vars = append(vars, *v)
		}
	}
	return "[" + strings.Join(parts, ",") + "]", vars, nil
}

func scalarLiteral(name string, arg Arg, generation uint64) (string, *session.Variable, error) {
	switch arg.kind {
	case argString:
		quoted, err := json.Marshal(arg.str)
		if err != nil {
			return "", nil, fmt.Errorf("%w: %w", ErrUnsupportedArgument, err)
		}
		return string(quoted), nil, nil
	case argInt:
		return strconv.FormatInt(arg.i, 10), nil, nil
	case argFloat:
		return floatLiteral(arg.f), nil, nil
	case argBool:
		return strconv.FormatBool(arg.b), nil, nil
	case argObject:
		if err := arg.obj.check(generation); err != nil {
			return "", nil, err
		}
		return name, &session.Variable{Name: name, ObjectID: arg.obj.ID}, nil
	default:
		return "", nil, fmt.Errorf("%w: zero Arg", ErrUnsupportedArgument)
	}
}

func floatLiteral(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func numericClass(k argKind) argKind {
	if k == argFloat {
		return argInt
	}
	return k
}
