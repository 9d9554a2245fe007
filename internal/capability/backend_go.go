package capability

import (
	"context"
	"fmt"
	"go/constant"
	"go/parser"
	"go/token"
	"reflect"
	"strings"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
)

// =============================================================================
// YAEGI GO BACKEND
// =============================================================================
// Capabilities are interpreted with Yaegi instead of compiled, so a new
// capability is usable the moment its file is written. The interpreter only
// sees the stdlib packages on the safety allow-list; a forbidden import
// fails at load time as well as in the policy report.

const goExample = `package main

import (
	"fmt"
	"strings"
)

const Description = "Joins words with a separator and returns the result"

const Parameters = "words: list of strings to join, sep: separator string (default space)"

func Run(args map[string]interface{}) (string, error) {
	raw, ok := args["words"].([]interface{})
	if !ok {
		return "", fmt.Errorf("words must be a list of strings")
	}
	sep, _ := args["sep"].(string)
	if sep == "" {
		sep = " "
	}
	words := make([]string, 0, len(raw))
	for _, w := range raw {
		words = append(words, fmt.Sprint(w))
	}
	return strings.Join(words, sep), nil
}
`

// GoBackend interprets Go capabilities with Yaegi.
type GoBackend struct {
	checker *SafetyChecker
	symbols interp.Exports
}

// NewGoBackend creates a Go backend whose interpreter is limited to the
// packages allowed by cfg.
func NewGoBackend(cfg SafetyConfig) (*GoBackend, error) {
	checker, err := NewSafetyChecker(cfg)
	if err != nil {
		return nil, err
	}

	allowed := make(map[string]bool)
	for _, pkg := range checker.AllowedPackages() {
		allowed[pkg] = true
	}

	// stdlib.Symbols keys are "import/path/name".
	symbols := make(interp.Exports)
	for key, syms := range stdlib.Symbols {
		idx := strings.LastIndex(key, "/")
		if idx < 0 {
			continue
		}
		if allowed[key[:idx]] {
			symbols[key] = syms
		}
	}

	return &GoBackend{checker: checker, symbols: symbols}, nil
}

func (b *GoBackend) Name() string      { return "go" }
func (b *GoBackend) Extension() string { return "go" }
func (b *GoBackend) Language() string  { return "go" }
func (b *GoBackend) Example() string   { return goExample }

// Syntax parses the source with go/parser.
func (b *GoBackend) Syntax(source string) error {
	fset := token.NewFileSet()
	if _, err := parser.ParseFile(fset, "capability.go", source, parser.AllErrors); err != nil {
		return err
	}
	return nil
}

// Audit evaluates the Mangle safety policy.
func (b *GoBackend) Audit(source string) *SafetyReport {
	return b.checker.Check(source)
}

// Load evaluates the source and resolves Description, Parameters and Run.
func (b *GoBackend) Load(ctx context.Context, name, path, source string) (inst Instance, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %s: interpreter panic: %v", ErrLoad, name, r)
		}
	}()

	i := interp.New(interp.Options{})
	if err := i.Use(b.symbols); err != nil {
		return nil, fmt.Errorf("%w: %s: failed to load stdlib: %v", ErrLoad, name, err)
	}

	if _, err := i.EvalWithContext(ctx, source); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrLoad, name, err)
	}

	description, err := evalString(i, "main.Description")
	if err != nil {
		return nil, fmt.Errorf("%w: %s: Description: %v", ErrContract, name, err)
	}
	parameters, err := evalString(i, "main.Parameters")
	if err != nil {
		return nil, fmt.Errorf("%w: %s: Parameters: %v", ErrContract, name, err)
	}

	runValue, err := i.Eval("main.Run")
	if err != nil {
		return nil, fmt.Errorf("%w: %s: Run function not found: %v", ErrContract, name, err)
	}
	run, ok := runValue.Interface().(func(map[string]interface{}) (string, error))
	if !ok {
		return nil, fmt.Errorf("%w: %s: Run has incorrect signature (expected: func(map[string]interface{}) (string, error))", ErrContract, name)
	}

	return &goInstance{
		staticInstance: staticInstance{description: description, parameters: parameters},
		run:            run,
	}, nil
}

func evalString(i *interp.Interpreter, symbol string) (string, error) {
	v, err := i.Eval(symbol)
	if err != nil {
		return "", err
	}
	if !v.IsValid() {
		return "", fmt.Errorf("%s is not defined", symbol)
	}
	switch val := v.Interface().(type) {
	case string:
		return val, nil
	case constant.Value:
		if val.Kind() == constant.String {
			return constant.StringVal(val), nil
		}
	}
	if v.Kind() == reflect.String {
		return v.String(), nil
	}
	return "", fmt.Errorf("%s must be a string, got %s", symbol, v.Type())
}

type goInstance struct {
	staticInstance
	run func(map[string]interface{}) (string, error)
}

// Run executes the interpreted function. Yaegi calls cannot be interrupted,
// so on cancellation the call is abandoned and keeps running detached.
func (g *goInstance) Run(ctx context.Context, args map[string]interface{}) (string, error) {
	type result struct {
		out string
		err error
	}
	done := make(chan result, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("capability panicked: %v", r)}
			}
		}()
		out, err := g.run(args)
		done <- result{out: out, err: err}
	}()

	select {
	case res := <-done:
		return res.out, res.err
	case <-ctx.Done():
		return "", fmt.Errorf("capability execution abandoned: %w", ctx.Err())
	}
}
