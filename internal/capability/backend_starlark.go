package capability

import (
	"context"
	"fmt"
	"math"

	"go.starlark.net/lib/json"
	starlarkmath "go.starlark.net/lib/math"
	starlarktime "go.starlark.net/lib/time"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"ouroboros/internal/logging"
)

const starlarkExample = `DESCRIPTION = "Joins words with a separator and returns the result"

PARAMETERS = "words: list of strings to join, sep: separator string (default space)"

def run(**kwargs):
    words = kwargs.get("words", [])
    sep = kwargs.get("sep", " ")
    return sep.join([str(w) for w in words])
`

var starlarkFileOptions = &syntax.FileOptions{
	Set:             true,
	While:           true,
	TopLevelControl: true,
	GlobalReassign:  true,
	Recursion:       true,
}

// StarlarkBackend executes Starlark capabilities with go.starlark.net.
// Modules see json, math and time as predeclared globals.
type StarlarkBackend struct {
	predeclared starlark.StringDict
}

// NewStarlarkBackend creates a Starlark backend.
func NewStarlarkBackend() *StarlarkBackend {
	return &StarlarkBackend{
		predeclared: starlark.StringDict{
			"json": json.Module,
			"math": starlarkmath.Module,
			"time": starlarktime.Module,
		},
	}
}

func (b *StarlarkBackend) Name() string      { return "starlark" }
func (b *StarlarkBackend) Extension() string { return "star" }
func (b *StarlarkBackend) Language() string  { return "python" }
func (b *StarlarkBackend) Example() string   { return starlarkExample }

// Syntax parses the module without executing it.
func (b *StarlarkBackend) Syntax(source string) error {
	_, err := starlarkFileOptions.Parse("capability.star", source, 0)
	return err
}

// Load executes the module and resolves DESCRIPTION, PARAMETERS and run.
func (b *StarlarkBackend) Load(ctx context.Context, name, path, source string) (Instance, error) {
	thread := newStarlarkThread(name)
	stop := cancelOnDone(ctx, thread)
	defer stop()

	globals, err := starlark.ExecFileOptions(starlarkFileOptions, thread, path, source, b.predeclared)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrLoad, name, err)
	}

	description, ok := globals["DESCRIPTION"].(starlark.String)
	if !ok {
		return nil, fmt.Errorf("%w: %s: DESCRIPTION must be a string", ErrContract, name)
	}
	parameters, ok := globals["PARAMETERS"].(starlark.String)
	if !ok {
		return nil, fmt.Errorf("%w: %s: PARAMETERS must be a string", ErrContract, name)
	}
	fn, ok := globals["run"].(starlark.Callable)
	if !ok {
		return nil, fmt.Errorf("%w: %s: run function not found", ErrContract, name)
	}

	return &starlarkInstance{
		staticInstance: staticInstance{description: string(description), parameters: string(parameters)},
		name:           name,
		fn:             fn,
	}, nil
}

type starlarkInstance struct {
	staticInstance
	name string
	fn   starlark.Callable
}

// Run calls run(**args) on a fresh thread; cancellation stops the thread.
func (s *starlarkInstance) Run(ctx context.Context, args map[string]interface{}) (string, error) {
	thread := newStarlarkThread(s.name)
	stop := cancelOnDone(ctx, thread)
	defer stop()

	kwargs := make([]starlark.Tuple, 0, len(args))
	for k, v := range args {
		kwargs = append(kwargs, starlark.Tuple{starlark.String(k), toStarlarkValue(v)})
	}

	result, err := starlark.Call(thread, s.fn, nil, kwargs)
	if err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("capability execution cancelled: %w", ctx.Err())
		}
		return "", err
	}
	if str, ok := result.(starlark.String); ok {
		return string(str), nil
	}
	if result == starlark.None {
		return "", nil
	}
	return result.String(), nil
}

func newStarlarkThread(name string) *starlark.Thread {
	return &starlark.Thread{
		Name: name,
		Print: func(_ *starlark.Thread, msg string) {
			logging.RegistryDebug("[%s] %s", name, msg)
		},
	}
}

// cancelOnDone cancels thread when ctx is done. The returned func releases
// the watcher.
func cancelOnDone(ctx context.Context, thread *starlark.Thread) func() {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			thread.Cancel(ctx.Err().Error())
		case <-done:
		}
	}()
	return func() { close(done) }
}

func toStarlarkValue(v interface{}) starlark.Value {
	switch v := v.(type) {
	case nil:
		return starlark.None
	case bool:
		return starlark.Bool(v)
	case string:
		return starlark.String(v)
	case int:
		return starlark.MakeInt(v)
	case int64:
		return starlark.MakeInt64(v)
	case float64:
		if v == math.Trunc(v) && math.Abs(v) < 1<<53 {
			return starlark.MakeInt64(int64(v))
		}
		return starlark.Float(v)
	case []interface{}:
		elems := make([]starlark.Value, len(v))
		for i, e := range v {
			elems[i] = toStarlarkValue(e)
		}
		return starlark.NewList(elems)
	case map[string]interface{}:
		d := starlark.NewDict(len(v))
		for k, val := range v {
			_ = d.SetKey(starlark.String(k), toStarlarkValue(val))
		}
		return d
	default:
		return starlark.String(fmt.Sprint(v))
	}
}
