package debugger

import (
	"fmt"
	"strconv"

	"github.com/danmuck/scopectl/internal/protocol/session"
)

// Kind tags the variant held by a Value.
type Kind int

const (
	KindUndefined Kind = iota
	KindNull
	KindString
	KindInt
	KindFloat
	KindBool
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindUndefined:
		return "undefined"
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindObject:
		return "object"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ObjectRef names a live object in the debugged runtime. It is valid only
// within the object generation it was issued in.
type ObjectRef struct {
	ID         uint32
	ClassName  string
	Generation uint64
}

func (r ObjectRef) check(generation uint64) error {
	if r.ID == 0 {
		return fmt.Errorf("%w: object id 0", ErrUnsupportedArgument)
	}
	if r.Generation != generation {
		return fmt.Errorf("%w: object %d from generation %d, current %d", ErrStaleObject, r.ID, r.Generation, generation)
	}
	return nil
}

// Value is one decoded evaluation result.
type Value struct {
	Kind   Kind
	Str    string
	Int    int64
	Float  float64
	Bool   bool
	Object ObjectRef
}

// Absent reports whether the script produced no usable value.
func (v Value) Absent() bool {
	return v.Kind == KindUndefined || v.Kind == KindNull
}

func (v Value) String() string {
	switch v.Kind {
	case KindString:
		return v.Str
	case KindInt:
		return strconv.FormatInt(v.Int, 10)
	case KindFloat:
		return floatLiteral(v.Float)
	case KindBool:
		return strconv.FormatBool(v.Bool)
	case KindObject:
		class := v.Object.ClassName
		if class == "" {
			class = "Object"
		}
		return "[object " + class + "]"
	default:
		return v.Kind.String()
	}
}

func decodeResult(res session.EvalResult, generation uint64) (Value, error) {
	switch res.Status {
	case session.StatusCompleted:
		return decodeTyped(res, generation)
	case session.StatusUnhandledException:
		return Value{}, &ScriptError{Message: res.Value}
	case session.StatusCancelledByScheduler:
		return Value{}, nil
	case session.StatusAborted:
		return Value{}, ErrAborted
	default:
		return Value{}, fmt.Errorf("%w: unknown status %q", ErrProtocolDecode, res.Status)
	}
}

func decodeTyped(res session.EvalResult, generation uint64) (Value, error) {
	switch res.Type {
	case "string":
		return Value{Kind: KindString, Str: res.Value}, nil
	case "number":
		return parseNumber(res.Value)
	case "boolean":
		b, err := strconv.ParseBool(res.Value)
		if err != nil {
			return Value{}, fmt.Errorf("%w: boolean %q", ErrProtocolDecode, res.Value)
		}
		return Value{Kind: KindBool, Bool: b}, nil
	case "undefined":
		return Value{Kind: KindUndefined}, nil
	case "null":
		return Value{Kind: KindNull}, nil
	case "object":
		if res.Object == nil {
			return Value{}, fmt.Errorf("%w: object result without object value", ErrProtocolDecode)
		}
		return Value{Kind: KindObject, Object: ObjectRef{
			ID:         res.Object.ObjectID,
			ClassName:  res.Object.ClassName,
			Generation: generation,
		}}, nil
	default:
		return Value{}, fmt.Errorf("%w: unknown type %q", ErrProtocolDecode, res.Type)
	}
}

// parseNumber prefers an integer and falls back to float, which also covers
// NaN and the infinities.
func parseNumber(raw string) (Value, error) {
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return Value{Kind: KindInt, Int: i}, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return Value{}, fmt.Errorf("%w: number %q", ErrProtocolDecode, raw)
	}
	return Value{Kind: KindFloat, Float: f}, nil
}
