package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"ouroboros/internal/capability"
	"ouroboros/internal/llm"
	"ouroboros/internal/logging"
)

// Planner decomposes tasks into plans.
type Planner struct {
	completer
	registry *capability.Registry
}

// NewPlanner creates a Planner that shows the model the registry listing.
func NewPlanner(client llm.Client, registry *capability.Registry, opts Options) *Planner {
	return &Planner{
		completer: newCompleter(client, opts, logging.CategoryPlanner),
		registry:  registry,
	}
}

// CreatePlan asks for the first plan of a task.
func (p *Planner) CreatePlan(ctx context.Context, task Task) (Plan, error) {
	return p.plan(ctx, task, nil, nil)
}

// Replan asks for a new plan given the previous plan and the full attempt
// log of the failed iteration.
func (p *Planner) Replan(ctx context.Context, task Task, previous Plan, full Artifacts) (Plan, error) {
	return p.plan(ctx, task, previous, full)
}

func (p *Planner) plan(ctx context.Context, task Task, previous Plan, full Artifacts) (Plan, error) {
	listing, err := p.registry.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoPlan, err)
	}

	messages := []llm.Message{
		llm.System(plannerSystemPrompt),
		llm.User(plannerPrompt(listing, task)),
	}
	if previous != nil {
		messages = append(messages, llm.User(replanPrompt(previous, full)))
	}

	var plan Plan
	_, err = askJSON(ctx, p.completer, "plan", messages, func(raw *json.RawMessage) error {
		parsed, err := parsePlan(*raw)
		if err != nil {
			return err
		}
		plan = parsed
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrNoPlan, err)
	}

	p.log.Info("Plan with %d subtasks: %s", len(plan), strings.Join(plan.Names(), ", "))
	return plan, nil
}

// parsePlan accepts a subtask array or an object holding one under
// "subtasks". Empty plans are rejected and duplicate names suffixed.
func parsePlan(raw json.RawMessage) (Plan, error) {
	var plan Plan
	if err := json.Unmarshal(raw, &plan); err != nil {
		var wrapped struct {
			Subtasks Plan `json:"subtasks"`
		}
		if werr := json.Unmarshal(raw, &wrapped); werr != nil {
			return nil, fmt.Errorf("plan is neither a subtask list nor an object with subtasks: %w", err)
		}
		plan = wrapped.Subtasks
	}
	if len(plan) == 0 {
		return nil, errors.New("plan has no subtasks")
	}

	seen := make(map[string]int, len(plan))
	out := make(Plan, 0, len(plan))
	for i, s := range plan {
		s.Name = strings.TrimSpace(s.Name)
		if s.Name == "" {
			return nil, fmt.Errorf("subtask %d has no name", i+1)
		}
		seen[s.Name]++
		if n := seen[s.Name]; n > 1 {
			s.Name = fmt.Sprintf("%s #%d", s.Name, n)
		}
		out = append(out, s)
	}
	return out, nil
}
