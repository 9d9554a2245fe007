package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ouroboros/internal/capability"
	"ouroboros/internal/llm"
	"ouroboros/internal/logging"
)

// Decision actions. The tool spellings are accepted as synonyms.
const (
	ActionUse    = "use_capability"
	ActionCreate = "create_capability"

	actionUseTool    = "use_tool"
	actionCreateTool = "create_tool"
)

// Outcome error texts.
const (
	errDecisionParse         = "decision parse failure"
	errDecisionAfterCreation = "decision parse failure after capability creation"
	errCreateFailed          = "failed to create new capability"
	errNoCapabilityChosen    = "no capability chosen"
)

type decision struct {
	Action   string                 `json:"action"`
	ToolName string                 `json:"tool_name"`
	ToolArgs map[string]interface{} `json:"tool_args"`
}

func (d *decision) validate() error {
	switch d.Action {
	case ActionUse, actionUseTool:
		d.Action = ActionUse
		if strings.TrimSpace(d.ToolName) == "" {
			return errors.New("use_capability without tool_name")
		}
	case ActionCreate, actionCreateTool:
		d.Action = ActionCreate
	default:
		return fmt.Errorf("unknown action %q", d.Action)
	}
	if d.ToolArgs == nil {
		d.ToolArgs = map[string]interface{}{}
	}
	return nil
}

type design struct {
	Name        string `json:"tool_name"`
	Description string `json:"tool_description"`
	Args        string `json:"args_description"`
}

func (d *design) validate() error {
	if strings.TrimSpace(d.Name) == "" || strings.TrimSpace(d.Description) == "" || strings.TrimSpace(d.Args) == "" {
		return errors.New("design requires tool_name, tool_description and args_description")
	}
	name, err := capability.NormalizeName(d.Name)
	if err != nil {
		return err
	}
	d.Name = name
	return nil
}

// Actor solves one subtask by choosing, or synthesizing, a capability and
// invoking it.
type Actor struct {
	completer
	registry      *capability.Registry
	invokeTimeout time.Duration
}

// NewActor creates an Actor over the registry.
func NewActor(client llm.Client, registry *capability.Registry, opts Options) *Actor {
	return &Actor{
		completer:     newCompleter(client, opts, logging.CategoryActor),
		registry:      registry,
		invokeTimeout: opts.InvokeTimeout,
	}
}

// PerformSubtask runs one attempt at subtask. It never returns an error:
// every failure is reported in the Outcome.
func (a *Actor) PerformSubtask(ctx context.Context, subtask Subtask, clean CleanArtifacts, feedback string) Outcome {
	out := Outcome{Args: map[string]interface{}{}}
	log := a.log.With("subtask", subtask.Name)

	d, err := a.decide(ctx, subtask, clean, feedback)
	if err != nil {
		log.Warn("Decision failed: %v", err)
		return out.fail(errDecisionParse)
	}
	out.Args = d.ToolArgs

	if d.Action == ActionCreate {
		name, err := a.createCapability(ctx, subtask, clean, feedback)
		if err != nil {
			log.Warn("Capability creation failed: %v", err)
			return out.fail(errCreateFailed)
		}
		out.CreatedCapability = name

		d, err = a.decide(ctx, subtask, clean, feedback)
		if err != nil {
			log.Warn("Decision after creating %s failed: %v", name, err)
			return out.fail(errDecisionAfterCreation)
		}
		out.Args = d.ToolArgs
	}

	chosen := strings.TrimSpace(d.ToolName)
	if chosen == "" {
		return out.fail(errNoCapabilityChosen)
	}

	h, err := a.registry.Get(ctx, chosen)
	if err != nil {
		log.Warn("Capability %s unavailable: %v", chosen, err)
		return out.fail("capability '%s' not found", chosen)
	}
	out.ChosenCapability = h.Name

	if !h.Validated {
		report := a.registry.Check(h.Source)
		log.Warn("Refusing capability %s: %s", h.Name, report.Summary())
		return out.fail("capability '%s' rejected by safety policy: %s", h.Name, report.Summary())
	}

	return a.invoke(ctx, h, out)
}

// invoke runs the capability inside a failure boundary.
func (a *Actor) invoke(ctx context.Context, h *capability.Handle, out Outcome) Outcome {
	if a.invokeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.invokeTimeout)
		defer cancel()
	}

	timer := logging.StartTimer(logging.CategoryActor, "invoke "+h.Name)
	result, err := h.Run(ctx, out.Args)
	timer.Stop()

	if err != nil {
		logging.Actor("Capability %s (digest=%s) failed: %v", h.Name, h.ShortDigest(), err)
		return out.fail("%v", err)
	}
	logging.Actor("Capability %s (digest=%s) completed", h.Name, h.ShortDigest())
	out.Completed = true
	out.Output = result
	out.Error = ""
	return out
}

func (a *Actor) decide(ctx context.Context, subtask Subtask, clean CleanArtifacts, feedback string) (decision, error) {
	listing, err := a.registry.List(ctx)
	if err != nil {
		return decision{}, err
	}
	messages := []llm.Message{
		llm.System(decisionSystemPrompt),
		llm.User(decisionPrompt(subtask, listing, clean, feedback)),
	}
	d, err := askJSON(ctx, a.completer, "decision", messages, (*decision).validate)
	if err != nil {
		return decision{}, err
	}
	logging.ActorDebug("Decision for %s: action=%s tool=%s", subtask.Name, d.Action, d.ToolName)
	return d, nil
}

// createCapability designs, generates and registers a new capability and
// returns its normalized name.
func (a *Actor) createCapability(ctx context.Context, subtask Subtask, clean CleanArtifacts, feedback string) (string, error) {
	d, err := askJSON(ctx, a.completer, "design", []llm.Message{
		llm.System(designSystemPrompt),
		llm.User(designPrompt(subtask, clean, feedback)),
	}, (*design).validate)
	if err != nil {
		return "", err
	}

	source, err := a.generateSource(ctx, d)
	if err != nil {
		return "", err
	}

	added, err := a.registry.Add(ctx, d.Name, source)
	if err != nil {
		return "", err
	}
	if !added {
		return "", fmt.Errorf("%w: %s", capability.ErrAlreadyExists, d.Name)
	}
	logging.Actor("Created capability %s: %s", d.Name, d.Description)
	return d.Name, nil
}

// generateSource asks for the implementation and extracts the first fenced
// block in the backend language.
func (a *Actor) generateSource(ctx context.Context, d design) (string, error) {
	backend := a.registry.Backend()
	messages := []llm.Message{
		llm.System(fmt.Sprintf(codegenSystemPrompt, backend.Name())),
		llm.User(codegenPrompt(d, backend)),
	}

	lastErr := llm.ErrNoCode
	for attempt := 1; attempt <= a.retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		reply, err := a.complete(ctx, "codegen", messages)
		if err != nil {
			lastErr = err
			a.log.Warn("codegen: attempt %d/%d failed: %v", attempt, a.retries, err)
			continue
		}
		source, err := llm.ExtractCode(reply, backend.Language(), backend.Name(), backend.Extension())
		if err != nil {
			lastErr = err
			a.log.Warn("codegen: no code block found, attempt %d/%d", attempt, a.retries)
			continue
		}
		return source, nil
	}
	return "", fmt.Errorf("codegen failed after %d attempts: %w", a.retries, lastErr)
}
