package agent

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"ouroboros/internal/capability"
	"ouroboros/internal/llm"
)

// --- ScriptedClient ---

// replyKind identifies which role is asking, by its system prompt.
type replyKind string

const (
	kindDecision  replyKind = "decision"
	kindDesign    replyKind = "design"
	kindCodegen   replyKind = "codegen"
	kindCritic    replyKind = "critic"
	kindPlanner   replyKind = "planner"
	kindInitiator replyKind = "initiator"
	kindConclude  replyKind = "conclude"
	kindUnknown   replyKind = "unknown"
)

func kindOf(messages []llm.Message) replyKind {
	if len(messages) == 0 || messages[0].Role != llm.RoleSystem {
		return kindUnknown
	}
	prefixes := []struct {
		prefix string
		kind   replyKind
	}{
		{"You are an actor", kindDecision},
		{"You are a capability designer", kindDesign},
		{"You are a capability author", kindCodegen},
		{"You are a critic", kindCritic},
		{"You are a planner", kindPlanner},
		{"You are a task generator", kindInitiator},
		{"You are a memory aggregator", kindConclude},
	}
	for _, p := range prefixes {
		if strings.HasPrefix(messages[0].Content, p.prefix) {
			return p.kind
		}
	}
	return kindUnknown
}

// ScriptedClient replays queued replies per role. The last reply of a
// queue repeats once the queue is drained.
type ScriptedClient struct {
	mu       sync.Mutex
	Replies  map[replyKind][]string
	Errors   map[replyKind]error
	Calls    map[replyKind]int
	Messages map[replyKind][][]llm.Message
}

func NewScriptedClient() *ScriptedClient {
	return &ScriptedClient{
		Replies:  make(map[replyKind][]string),
		Errors:   make(map[replyKind]error),
		Calls:    make(map[replyKind]int),
		Messages: make(map[replyKind][][]llm.Message),
	}
}

func (c *ScriptedClient) On(kind replyKind, replies ...string) *ScriptedClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Replies[kind] = append(c.Replies[kind], replies...)
	return c
}

func (c *ScriptedClient) Complete(ctx context.Context, messages []llm.Message, model string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	kind := kindOf(messages)
	c.Calls[kind]++
	c.Messages[kind] = append(c.Messages[kind], messages)

	if err := c.Errors[kind]; err != nil {
		return "", err
	}
	queue := c.Replies[kind]
	if len(queue) == 0 {
		return "", fmt.Errorf("no scripted reply for %s", kind)
	}
	if len(queue) > 1 {
		c.Replies[kind] = queue[1:]
	}
	return queue[0], nil
}

func (c *ScriptedClient) CallCount(kind replyKind) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Calls[kind]
}

// LastPrompt returns the concatenated user content of the last call of kind.
func (c *ScriptedClient) LastPrompt(kind replyKind) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	calls := c.Messages[kind]
	if len(calls) == 0 {
		return ""
	}
	var parts []string
	for _, m := range calls[len(calls)-1] {
		if m.Role == llm.RoleUser {
			parts = append(parts, m.Content)
		}
	}
	return strings.Join(parts, "\n")
}

// --- fixtures ---

const listDirectorySource = `package main

import (
	"os"
	"strings"
)

const Description = "Lists the names of the files in a directory"

const Parameters = "path: the directory to list"

func Run(args map[string]interface{}) (string, error) {
	path, _ := args["path"].(string)
	entries, err := os.ReadDir(path)
	if err != nil {
		return "", err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return strings.Join(names, "\n"), nil
}
`

const brokenSource = `package main

const Description = "Lists the names of the files in a directory"

func Run(args map[string]interface{}) (string, error {
	return "", nil
`

func fenced(lang, code string) string {
	return "Here is the code:\n```" + lang + "\n" + code + "```\n"
}

func newTestRegistry(t *testing.T) *capability.Registry {
	t.Helper()
	backend, err := capability.NewGoBackend(capability.SafetyConfig{AllowFileSystem: true})
	require.NoError(t, err)
	reg, err := capability.NewRegistry(filepath.Join(t.TempDir(), "generated_tools"), backend)
	require.NoError(t, err)
	return reg
}

func mustAdd(t *testing.T, reg *capability.Registry, name, source string) {
	t.Helper()
	added, err := reg.Add(context.Background(), name, source)
	require.NoError(t, err)
	require.True(t, added)
}

func hasCapability(t *testing.T, reg *capability.Registry, name string) bool {
	t.Helper()
	names, err := reg.Names()
	require.NoError(t, err)
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}
