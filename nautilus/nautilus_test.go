package nautilus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func compile(t *testing.T, trace *ExecutionTrace, backend Backend) CompiledFunction {
	t.Helper()
	SSACreationPhase(trace)
	prog, err := TraceToIRConversionPhase(trace)
	require.NoError(t, err)
	LoopInferencePhase(prog)
	fn, err := backend.Compile(prog, NewRegistry())
	require.NoError(t, err)
	return fn
}

func TestTracedArithmetic(t *testing.T) {
	trace := Build([]ValueType{TypeInt64, TypeInt64}, func(tr *Tracer, p []Value) Value {
		return p[0].Add(p[1]).Mul(tr.Int64Const(2))
	})

	for _, backend := range []Backend{InterpreterBackend{}, ClosureBackend{}} {
		fn := compile(t, trace, backend)
		result, err := fn([]any{int64(3), int64(4)})
		require.NoError(t, err)
		assert.Equal(t, int64(14), result)
	}
}

func TestTracedIfForksAndRejoins(t *testing.T) {
	trace := Build([]ValueType{TypeInt64}, func(tr *Tracer, p []Value) Value {
		cond := p[0].Gt(tr.Int64Const(0))
		return tr.If(cond,
			func() Value { return p[0].Mul(tr.Int64Const(2)) },
			func() Value { return p[0].Neg() },
		)
	})

	for _, backend := range []Backend{InterpreterBackend{}, ClosureBackend{}} {
		fn := compile(t, trace, backend)
		pos, err := fn([]any{int64(5)})
		require.NoError(t, err)
		assert.Equal(t, int64(10), pos)

		neg, err := fn([]any{int64(-5)})
		require.NoError(t, err)
		assert.Equal(t, int64(5), neg)
	}
}

func TestTracedLoopSumsToN(t *testing.T) {
	trace := Build([]ValueType{TypeInt64}, func(tr *Tracer, p []Value) Value {
		zero := tr.Int64Const(0)
		one := tr.Int64Const(1)
		// sum = loop over i in [0,n): acc += i ; here folded into a single
		// traced accumulator stepping by 1 each iteration until it reaches n.
		result := tr.Loop(zero,
			func(acc Value) Value { return acc.Lt(p[0]) },
			func(acc Value) Value { return acc.Add(one) },
		)
		return result
	})

	for _, backend := range []Backend{InterpreterBackend{}, ClosureBackend{}} {
		fn := compile(t, trace, backend)
		result, err := fn([]any{int64(5)})
		require.NoError(t, err)
		assert.Equal(t, int64(5), result)
	}
}

func TestLoopInferencePhaseMarksHeader(t *testing.T) {
	trace := Build([]ValueType{TypeInt64}, func(tr *Tracer, p []Value) Value {
		zero := tr.Int64Const(0)
		one := tr.Int64Const(1)
		return tr.Loop(zero,
			func(acc Value) Value { return acc.Lt(p[0]) },
			func(acc Value) Value { return acc.Add(one) },
		)
	})
	SSACreationPhase(trace)
	prog, err := TraceToIRConversionPhase(trace)
	require.NoError(t, err)
	LoopInferencePhase(prog)

	headers := 0
	for _, b := range prog.Blocks {
		if b.IsLoopHeader {
			headers++
		}
	}
	assert.Equal(t, 1, headers)
}

func TestProxyCallInvokesRegisteredFunction(t *testing.T) {
	trace := Build([]ValueType{TypeInt64}, func(tr *Tracer, p []Value) Value {
		return tr.ProxyCall("double", TypeInt64, p[0])
	})
	SSACreationPhase(trace)
	prog, err := TraceToIRConversionPhase(trace)
	require.NoError(t, err)
	LoopInferencePhase(prog)

	registry := NewRegistry()
	registry.Register("double", func(args []any) any { return args[0].(int64) * 2 })

	fn, err := InterpreterBackend{}.Compile(prog, registry)
	require.NoError(t, err)
	result, err := fn([]any{int64(21)})
	require.NoError(t, err)
	assert.Equal(t, int64(42), result)
}

func TestInterpreterDebugCatchesDivisionByZero(t *testing.T) {
	trace := Build([]ValueType{TypeInt64, TypeInt64}, func(tr *Tracer, p []Value) Value {
		return p[0].Div(p[1])
	})
	SSACreationPhase(trace)
	prog, err := TraceToIRConversionPhase(trace)
	require.NoError(t, err)

	fn, err := InterpreterBackend{Debug: true}.Compile(prog, NewRegistry())
	require.NoError(t, err)
	_, err = fn([]any{int64(1), int64(0)})
	assert.Error(t, err)
}
