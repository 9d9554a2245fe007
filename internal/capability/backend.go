package capability

import (
	"context"
	"fmt"
)

// Backend loads capability sources written in one language.
type Backend interface {
	// Name identifies the backend in configuration ("go", "starlark", "script").
	Name() string
	// Extension is the file extension used under the tools directory.
	Extension() string
	// Language is the code-fence tag requested from the model.
	Language() string
	// Example is a worked example of the contract, shown to the model.
	Example() string
	// Syntax reports whether source parses.
	Syntax(source string) error
	// Load checks the contract and instantiates the capability.
	Load(ctx context.Context, name, path, source string) (Instance, error)
}

// auditor is implemented by backends that apply a policy beyond syntax.
type auditor interface {
	Audit(source string) *SafetyReport
}

// NewBackend builds the backend named in configuration.
func NewBackend(name string, safety SafetyConfig) (Backend, error) {
	switch name {
	case "", "go":
		return NewGoBackend(safety)
	case "starlark":
		return NewStarlarkBackend(), nil
	case "script":
		return NewScriptBackend(), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, name)
	}
}

// staticInstance carries the contract strings shared by every backend.
type staticInstance struct {
	description string
	parameters  string
}

func (s staticInstance) Description() string { return s.description }
func (s staticInstance) Parameters() string  { return s.parameters }
