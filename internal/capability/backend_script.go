package capability

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

const scriptExample = `#!/bin/sh
# description: Joins words with a separator and returns the result
# parameters: words: list of strings to join, sep: separator string (default space)
sep="${CAPABILITY_PARAM_SEP:- }"
printf '%s\n' "$CAPABILITY_PARAM_WORDS" | sed -e 's/[][]//g' -e 's/"//g' -e "s/,/$sep/g"
`

// maxScriptOutput bounds captured stdout/stderr.
const maxScriptOutput = 10240

// ScriptBackend runs shell-script capabilities as subprocesses. Arguments
// arrive as JSON on stdin and as CAPABILITY_PARAM_<NAME> variables.
type ScriptBackend struct {
	interpreter string
}

// NewScriptBackend creates a /bin/sh script backend.
func NewScriptBackend() *ScriptBackend {
	return &ScriptBackend{interpreter: "/bin/sh"}
}

func (b *ScriptBackend) Name() string      { return "script" }
func (b *ScriptBackend) Extension() string { return "sh" }
func (b *ScriptBackend) Language() string  { return "sh" }
func (b *ScriptBackend) Example() string   { return scriptExample }

// Syntax runs the interpreter in no-exec mode over the source.
func (b *ScriptBackend) Syntax(source string) error {
	cmd := exec.Command(b.interpreter, "-n")
	cmd.Stdin = strings.NewReader(source)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%v: %s", err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

// Load reads the header comments; the script itself runs per invocation.
func (b *ScriptBackend) Load(ctx context.Context, name, path, source string) (Instance, error) {
	if err := b.Syntax(source); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrLoad, name, err)
	}
	description, parameters := parseScriptHeader(source)
	if description == "" {
		return nil, fmt.Errorf("%w: %s: missing '# description:' header", ErrContract, name)
	}
	if parameters == "" {
		return nil, fmt.Errorf("%w: %s: missing '# parameters:' header", ErrContract, name)
	}
	return &scriptInstance{
		staticInstance: staticInstance{description: description, parameters: parameters},
		interpreter:    b.interpreter,
		path:           path,
	}, nil
}

// parseScriptHeader scans the leading comment block.
func parseScriptHeader(source string) (description, parameters string) {
	scanner := bufio.NewScanner(strings.NewReader(source))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#!") {
			continue
		}
		if !strings.HasPrefix(line, "#") {
			break
		}
		body := strings.TrimSpace(strings.TrimPrefix(line, "#"))
		lower := strings.ToLower(body)
		switch {
		case strings.HasPrefix(lower, "description:"):
			description = strings.TrimSpace(body[len("description:"):])
		case strings.HasPrefix(lower, "parameters:"):
			parameters = strings.TrimSpace(body[len("parameters:"):])
		}
	}
	return description, parameters
}

type scriptInstance struct {
	staticInstance
	interpreter string
	path        string
}

// Run executes the script. A non-zero exit is an error carrying stderr.
func (s *scriptInstance) Run(ctx context.Context, args map[string]interface{}) (string, error) {
	cmd := exec.CommandContext(ctx, s.interpreter, s.path)

	env := os.Environ()
	for key, val := range args {
		env = append(env, "CAPABILITY_PARAM_"+envKey(key)+"="+envValue(val))
	}

	argsJSON, err := json.Marshal(args)
	if err != nil {
		return "", fmt.Errorf("failed to encode arguments: %w", err)
	}
	env = append(env, "CAPABILITY_PARAMS_JSON="+string(argsJSON))
	cmd.Stdin = bytes.NewReader(argsJSON)
	cmd.Env = env

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("capability execution cancelled: %w", ctx.Err())
		}
		return "", fmt.Errorf("script error: %v: %s", err, truncateOutput(strings.TrimSpace(stderr.String())))
	}
	return truncateOutput(strings.TrimRight(stdout.String(), "\n")), nil
}

// envKey upper-cases key and maps anything outside [A-Z0-9_] to '_'.
func envKey(key string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		}
		return '_'
	}, strings.ToUpper(key))
}

// envValue renders strings verbatim and everything else as JSON.
func envValue(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}

func truncateOutput(s string) string {
	if len(s) <= maxScriptOutput {
		return s
	}
	return s[:maxScriptOutput] + "\n... (truncated)"
}
