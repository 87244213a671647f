package nautilus

import "github.com/nebulastream/nesengine/engerrors"

// CompiledFunction is an executable lowering of a Program. args must
// match ParamTypes in order and count.
type CompiledFunction func(args []any) (any, error)

// Backend lowers a Program into a CompiledFunction. Every backend must
// resolve OpProxyCall instructions against the same Registry contract so
// traced code can call statically known native functions with no
// marshalling overhead (spec §4.E).
type Backend interface {
	Compile(p *Program, registry *Registry) (CompiledFunction, error)
}

// Registry holds native functions reachable from a Program's proxy
// calls, addressed by name.
type Registry struct {
	funcs map[string]func(args []any) any
}

// NewRegistry creates an empty proxy-call registry.
func NewRegistry() *Registry {
	return &Registry{funcs: make(map[string]func(args []any) any)}
}

// Register binds name to fn; later ProxyCall instructions naming it
// invoke fn directly.
func (r *Registry) Register(name string, fn func(args []any) any) {
	r.funcs[name] = fn
}

func (r *Registry) resolve(name string) (func(args []any) any, error) {
	fn, ok := r.funcs[name]
	if !ok {
		return nil, engerrors.New(engerrors.CompilationFailure, "unresolved proxy call").
			WithContext("name", name)
	}
	return fn, nil
}
