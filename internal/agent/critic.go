package agent

import (
	"context"
	"errors"
	"fmt"

	"ouroboros/internal/capability"
	"ouroboros/internal/llm"
	"ouroboros/internal/logging"
)

// FallbackReport is the verdict report used when no reply could be parsed.
const FallbackReport = "Unable to parse critic response; fallback used."

const noCapabilitySource = "No capability chosen."

type verdictReply struct {
	IsCorrect *bool   `json:"is_correct"`
	Report    *string `json:"report"`
}

func (v *verdictReply) validate() error {
	if v.IsCorrect == nil || v.Report == nil {
		return errors.New("verdict requires is_correct and report")
	}
	return nil
}

// Critic judges Actor outcomes and revokes capabilities created in a
// round that does not pass review.
type Critic struct {
	completer
	registry *capability.Registry
}

// NewCritic creates a Critic over the registry.
func NewCritic(client llm.Client, registry *capability.Registry, opts Options) *Critic {
	return &Critic{
		completer: newCompleter(client, opts, logging.CategoryCritic),
		registry:  registry,
	}
}

// Evaluate returns the verdict for outcome. A capability created in this
// round is deleted when its source fails the registry check, the verdict
// is negative, or no verdict could be parsed.
func (c *Critic) Evaluate(ctx context.Context, subtask Subtask, outcome Outcome) Verdict {
	inspected := outcome.ChosenCapability
	if inspected == "" {
		inspected = outcome.CreatedCapability
	}

	source := noCapabilitySource
	var report *capability.SafetyReport
	if inspected != "" {
		src, err := c.registry.Source(inspected)
		if err != nil {
			logging.Critic("Capability %s source unavailable: %v", inspected, err)
			return Verdict{IsCorrect: false, Report: fmt.Sprintf("Capability %s code not found.", inspected)}
		}
		source = src
		report = c.registry.Check(source)
	}

	messages := []llm.Message{
		llm.System(criticSystemPrompt),
		llm.User(criticPrompt(subtask, outcome, c.registry.Backend().Language(), source)),
	}

	var verdict Verdict
	reply, err := askJSON(ctx, c.completer, "verdict", messages, (*verdictReply).validate)
	if err != nil {
		c.log.Warn("No verdict for %s: %v", subtask.Name, err)
		verdict = Verdict{IsCorrect: false, Report: FallbackReport}
	} else {
		verdict = Verdict{IsCorrect: *reply.IsCorrect, Report: *reply.Report}
	}

	if report != nil && !report.Safe {
		verdict.IsCorrect = false
		verdict.Report = fmt.Sprintf("Capability %s failed the source check: %s\n%s", inspected, report.Summary(), verdict.Report)
	}

	if created := outcome.CreatedCapability; created != "" {
		createdSafe := report.Safe
		if created != inspected {
			// The Actor settled on another capability; judge the new one on its own source.
			if src, err := c.registry.Source(created); err == nil {
				createdSafe = c.registry.Check(src).Safe
			}
		}
		if !createdSafe || !verdict.IsCorrect {
			c.revoke(ctx, created)
		}
	}

	logging.CriticDebug("Verdict for %s: correct=%t report=%s", subtask.Name, verdict.IsCorrect, verdict.Report)
	return verdict
}

// revoke deletes a capability created this round. Deletion uses a fresh
// context so a cancelled cycle still removes it.
func (c *Critic) revoke(ctx context.Context, name string) {
	deleted, err := c.registry.Delete(context.WithoutCancel(ctx), name)
	switch {
	case err != nil:
		c.log.Error("Failed to revoke capability %s: %v", name, err)
	case deleted:
		logging.Critic("Revoked capability %s", name)
	}
}
