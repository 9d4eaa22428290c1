package debugger

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"testing"

	"github.com/danmuck/scopectl/internal/testutil/testlog"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestWrapScriptWithoutArgs(t *testing.T) {
	testlog.Start(t)
	script, vars, err := wrapScript("return 1;", nil, 0)
	require.NoError(t, err)
	require.Equal(t, "return 1;", script)
	require.Empty(t, vars)
}

func TestFloatLiterals(t *testing.T) {
	testlog.Start(t)
	require.Equal(t, "NaN", floatLiteral(math.NaN()))
	require.Equal(t, "Infinity", floatLiteral(math.Inf(1)))
	require.Equal(t, "-Infinity", floatLiteral(math.Inf(-1)))
	require.Equal(t, "1e+21", floatLiteral(1e21))
}

func TestStringArgumentsQuoteSafely(t *testing.T) {
	testlog.Start(t)
	rapid.Check(t, func(t *rapid.T) {
		s := rapid.String().Draw(t, "s")
		script, vars, err := wrapScript("", []Arg{String(s)}, 0)
		if err != nil {
			t.Fatalf("wrap: %v", err)
		}
		if len(vars) != 0 {
			t.Fatalf("string produced variables: %+v", vars)
		}
		lit := strings.TrimSuffix(strings.TrimPrefix(script, "(function(){})("), ")")
		var back string
		if err := json.Unmarshal([]byte(lit), &back); err != nil {
			t.Fatalf("literal %q does not parse: %v", lit, err)
		}
		if back != s {
			t.Fatalf("round trip changed %q into %q", s, back)
		}
	})
}

func TestIntArgumentsInlineExactly(t *testing.T) {
	testlog.Start(t)
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.Int64().Draw(t, "n")
		script, _, err := wrapScript("", []Arg{Int(n)}, 0)
		if err != nil {
			t.Fatalf("wrap: %v", err)
		}
		if want := "(function(){})(" + strconv.FormatInt(n, 10) + ")"; script != want {
			t.Fatalf("got %q want %q", script, want)
		}
	})
}

func TestValueString(t *testing.T) {
	testlog.Start(t)
	require.Equal(t, "undefined", Value{}.String())
	require.Equal(t, "null", Value{Kind: KindNull}.String())
	require.Equal(t, "2.5", Value{Kind: KindFloat, Float: 2.5}.String())
	require.Equal(t, "[object Object]", Value{Kind: KindObject, Object: ObjectRef{ID: 1}}.String())
	require.Equal(t, "[object Window]", Value{Kind: KindObject, Object: ObjectRef{ID: 1, ClassName: "Window"}}.String())
	require.True(t, Value{Kind: KindNull}.Absent())
	require.False(t, Value{Kind: KindBool}.Absent())
}
