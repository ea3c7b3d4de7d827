package engine

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ravern/doji/vm"
	"github.com/ravern/doji/vmerr"
)

func TestEvaluateInlineStdlibHashAndLen(t *testing.T) {
	e := NewBuilder().Build()
	v, err := e.EvaluateInline(`len(hash("doji"))`)
	require.NoError(t, err)
	require.Equal(t, vm.KindInt, v.Kind())
	require.EqualValues(t, 64, v.AsInt())
}

func TestEvaluateInlineClosureOverGlobal(t *testing.T) {
	e := NewBuilder().Build()
	v, err := e.EvaluateInline(`
		let double = fn(s) { len(s) + len(s) };
		double("hi")
	`)
	require.NoError(t, err)
	require.EqualValues(t, 4, v.AsInt())
}

// TestEvaluateInlineRootErrorPropagates guards against the root fiber's
// uncaught runtime error being swallowed into a successful-looking Nil
// (spec.md §7: "the scheduler surfaces it from step"; §8's
// type_error_add_bool scenario).
func TestEvaluateInlineRootErrorPropagates(t *testing.T) {
	e := NewBuilder().Build()
	_, err := e.EvaluateInline(`true + 1`)
	require.Error(t, err)
	var rerr *vmerr.RuntimeError
	require.ErrorAs(t, err, &rerr)
	require.Equal(t, vmerr.WrongType, rerr.Kind)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.Positive(t, cfg.GCStepInterval)
}

func TestBuilderDefaultsToNoopDriver(t *testing.T) {
	e := NewBuilder().Build()
	require.NotNil(t, e.driver)
	require.IsType(t, noopDriver{}, e.driver)
}
