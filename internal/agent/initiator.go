package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"ouroboros/internal/capability"
	"ouroboros/internal/llm"
	"ouroboros/internal/logging"
)

// Initiator invents tasks from memory and folds each cycle back into it.
type Initiator struct {
	completer
	registry *capability.Registry
	memory   *MemoryStore
}

// NewInitiator creates an Initiator over the registry and memory store.
func NewInitiator(client llm.Client, registry *capability.Registry, memory *MemoryStore, opts Options) *Initiator {
	return &Initiator{
		completer: newCompleter(client, opts, logging.CategoryInitiator),
		registry:  registry,
		memory:    memory,
	}
}

// Memory returns the backing store.
func (i *Initiator) Memory() *MemoryStore { return i.memory }

// GenerateTask asks for the next task given memory and the capability
// listing.
func (i *Initiator) GenerateTask(ctx context.Context) (Task, error) {
	memory, err := i.memory.Read()
	if err != nil {
		return Task{}, fmt.Errorf("%w: %v", ErrNoTask, err)
	}
	listing, err := i.registry.List(ctx)
	if err != nil {
		return Task{}, fmt.Errorf("%w: %v", ErrNoTask, err)
	}

	task, err := askJSON(ctx, i.completer, "task", []llm.Message{
		llm.System(initiatorSystemPrompt),
		llm.User(initiatorPrompt(listing, memory)),
	}, func(t *Task) error {
		t.Description = strings.TrimSpace(t.Description)
		if t.Description == "" {
			return errors.New("task_description is empty")
		}
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return Task{}, err
		}
		return Task{}, fmt.Errorf("%w: %v", ErrNoTask, err)
	}

	i.log.Info("New task: %s (success criteria: %s)", task.Description, orNone(task.SuccessCriteria))
	return task, nil
}

// Conclude asks the model to merge this cycle into memory and overwrites
// the memory file with the result. On a client error memory is left as is.
// An empty reply keeps the previous memory.
func (i *Initiator) Conclude(ctx context.Context, succeeded bool, task Task, plan Plan, full Artifacts) (string, error) {
	previous, err := i.memory.Read()
	if err != nil {
		return "", err
	}

	reply, err := i.complete(ctx, "conclude", []llm.Message{
		llm.System(concludeSystemPrompt),
		llm.User(concludePrompt(previous, succeeded, task, plan, full)),
	})
	if err != nil {
		return "", fmt.Errorf("failed to fold memory: %w", err)
	}

	updated := strings.TrimSpace(reply)
	if updated == "" {
		i.log.Warn("Empty memory fold; keeping previous memory")
		updated = strings.TrimSpace(previous)
		if updated == "" {
			return "", nil
		}
	}

	if err := i.memory.Write(updated); err != nil {
		return "", err
	}
	i.log.Info("Memory updated (%d bytes)", len(updated))
	return updated, nil
}
