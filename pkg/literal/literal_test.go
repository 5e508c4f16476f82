package literal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltins(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "lower", input: "ÄDA", want: "äda"},
		{name: "upper", input: "ada", want: "ADA"},
		{name: "title", input: "ada lovelace", want: "Ada Lovelace"},
		{name: "trim", input: "  ada \n", want: "ada"},
		{name: "nfc", input: "é", want: "é"},
		{name: "nfkc", input: "ﬁ", want: "fi"},
	}

	rt, err := NewRuntime(0)
	require.NoError(t, err)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fn, err := Builtin(tt.name)
			require.NoError(t, err)
			assert.False(t, fn.IsScript())

			got, err := rt.Apply(fn, tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBuiltinUnknown(t *testing.T) {
	_, err := Builtin("reverse")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lower")
}

func TestScripts(t *testing.T) {
	tests := []struct {
		name    string
		script  string
		input   string
		want    string
		wantErr bool
	}{
		{name: "expression", script: "value.toUpperCase()", input: "ada", want: "ADA"},
		{name: "function body", script: "var p = value.split('-'); return p[1];", input: "a-b", want: "b"},
		{name: "numeric result", script: "value.length * 2", input: "abc", want: "6"},
		{name: "fractional result", script: "value / 4", input: "3", want: "0.75"},
		{name: "boolean result", script: "value === 'yes'", input: "yes", want: "true"},
		{name: "undefined result", script: "undefined", input: "x", wantErr: true},
		{name: "throws", script: "(function(){ throw new Error('bad'); })()", input: "x", wantErr: true},
		{name: "require removed", script: "require('fs')", input: "x", wantErr: true},
		{name: "eval blocked", script: "eval('1+1')", input: "x", wantErr: true},
	}

	rt, err := NewRuntime(0)
	require.NoError(t, err)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fn, err := Compile(tt.script)
			require.NoError(t, err)
			assert.True(t, fn.IsScript())

			got, err := rt.Apply(fn, tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCompileErrors(t *testing.T) {
	_, err := Compile("   ")
	assert.Error(t, err)

	_, err = Compile("value.(")
	assert.Error(t, err)
}

func TestScriptTimeout(t *testing.T) {
	rt, err := NewRuntime(50 * time.Millisecond)
	require.NoError(t, err)

	fn, err := Compile("while (true) {}; return value;")
	require.NoError(t, err)

	_, err = rt.Apply(fn, "x")
	require.Error(t, err)

	ok, err := Compile("value + '!'")
	require.NoError(t, err)
	got, err := rt.Apply(ok, "x")
	require.NoError(t, err)
	assert.Equal(t, "x!", got)
}

func TestApplyNilFunction(t *testing.T) {
	rt, err := NewRuntime(0)
	require.NoError(t, err)

	got, err := rt.Apply(nil, "same")
	require.NoError(t, err)
	assert.Equal(t, "same", got)
}

func TestNilRuntimeRunsBuiltinsOnly(t *testing.T) {
	var rt *Runtime

	upper, err := Builtin("upper")
	require.NoError(t, err)
	got, err := rt.Apply(upper, "ada")
	require.NoError(t, err)
	assert.Equal(t, "ADA", got)

	script, err := Compile("value")
	require.NoError(t, err)
	_, err = rt.Apply(script, "ada")
	assert.Error(t, err)
}
