// Package loop drives the self-extending cycle: generate a task, plan it,
// work each subtask through bounded Actor/Critic rounds, replan on failure,
// and fold the outcome into memory.
package loop

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"ouroboros/internal/agent"
	"ouroboros/internal/logging"
)

// =============================================================================
// ROLES
// =============================================================================

// Initiator invents tasks and folds cycles into memory.
type Initiator interface {
	GenerateTask(ctx context.Context) (agent.Task, error)
	Conclude(ctx context.Context, succeeded bool, task agent.Task, plan agent.Plan, full agent.Artifacts) (string, error)
}

// Planner produces and revises plans.
type Planner interface {
	CreatePlan(ctx context.Context, task agent.Task) (agent.Plan, error)
	Replan(ctx context.Context, task agent.Task, previous agent.Plan, full agent.Artifacts) (agent.Plan, error)
}

// Actor attempts a subtask.
type Actor interface {
	PerformSubtask(ctx context.Context, subtask agent.Subtask, clean agent.CleanArtifacts, feedback string) agent.Outcome
}

// Critic judges an attempt.
type Critic interface {
	Evaluate(ctx context.Context, subtask agent.Subtask, outcome agent.Outcome) agent.Verdict
}

// =============================================================================
// STATE MACHINE
// =============================================================================

// State is a step of one cycle.
type State string

const (
	StateTaskGenerated   State = "task_generated"
	StatePlanned         State = "planned"
	StateIterating       State = "iterating"
	StateIterationDone   State = "iteration_done"
	StateIterationFailed State = "iteration_failed"
	StateReplan          State = "replan"
	StateConclude        State = "conclude"
)

// Config bounds the orchestrator.
type Config struct {
	MaxAttempts   int
	MaxIterations int
	MaxCycles     int // 0 = until cancelled
	CyclePause    time.Duration
}

// DefaultConfig returns 3 attempts, 3 iterations, unbounded cycles.
func DefaultConfig() Config {
	return Config{MaxAttempts: 3, MaxIterations: 3}
}

// CycleResult is everything one cycle produced.
type CycleResult struct {
	ID          string
	Task        agent.Task
	Plan        agent.Plan
	Succeeded   bool
	Iterations  int
	Replans     int
	Clean       agent.CleanArtifacts
	Full        agent.Artifacts
	Memory      string
	Transitions []State
}

// Orchestrator composes the roles into the bounded retry protocol.
type Orchestrator struct {
	initiator Initiator
	planner   Planner
	actor     Actor
	critic    Critic
	cfg       Config
}

// New creates an orchestrator. Non-positive bounds fall back to the defaults.
func New(initiator Initiator, planner Planner, actor Actor, critic Critic, cfg Config) *Orchestrator {
	def := DefaultConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = def.MaxIterations
	}
	return &Orchestrator{
		initiator: initiator,
		planner:   planner,
		actor:     actor,
		critic:    critic,
		cfg:       cfg,
	}
}

// Run executes cycles until ctx is done or MaxCycles cycles have run. A
// failed cycle is logged and the next one starts after CyclePause.
func (o *Orchestrator) Run(ctx context.Context) error {
	for n := 1; o.cfg.MaxCycles <= 0 || n <= o.cfg.MaxCycles; n++ {
		res, err := o.RunCycle(ctx)
		if ctx.Err() != nil {
			logging.Loop("Stopping after cycle %d: %v", n, ctx.Err())
			return ctx.Err()
		}
		if err != nil {
			logging.Get(logging.CategoryLoop).Error("Cycle %s failed: %v", res.ID, err)
		}

		if o.cfg.CyclePause > 0 && (o.cfg.MaxCycles <= 0 || n < o.cfg.MaxCycles) {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(o.cfg.CyclePause):
			}
		}
	}
	logging.Loop("Reached max_cycles=%d", o.cfg.MaxCycles)
	return nil
}

// RunCycle runs one task from generation to conclusion. Task generation
// failure ends the cycle without concluding; planning failure concludes
// with succeeded=false and returns the planning error.
func (o *Orchestrator) RunCycle(ctx context.Context) (*CycleResult, error) {
	res := &CycleResult{
		ID:    uuid.New().String(),
		Clean: make(agent.CleanArtifacts),
		Full:  make(agent.Artifacts),
	}
	log := logging.Get(logging.CategoryLoop).With("cycle", res.ID)
	timer := logging.StartTimer(logging.CategoryLoop, "cycle "+res.ID)
	defer timer.Stop()

	task, err := o.initiator.GenerateTask(ctx)
	if err != nil {
		return res, fmt.Errorf("task generation failed: %w", err)
	}
	res.Task = task
	o.transition(res, log, StateTaskGenerated)

	plan, err := o.planner.CreatePlan(ctx, task)
	if err != nil {
		return res, o.abandon(ctx, res, log, err)
	}
	res.Plan = plan
	o.transition(res, log, StatePlanned)

	for iteration := 1; iteration <= o.cfg.MaxIterations; iteration++ {
		res.Iterations = iteration
		o.transition(res, log, StateIterating)
		log.Info("Starting iteration %d/%d with %d subtasks", iteration, o.cfg.MaxIterations, len(res.Plan))

		failed := ""
		for _, subtask := range res.Plan {
			if !o.runSubtask(ctx, res, log.With("subtask", subtask.Name), subtask) {
				failed = subtask.Name
				break
			}
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}

		if failed == "" {
			o.transition(res, log, StateIterationDone)
			res.Succeeded = true
			break
		}

		o.transition(res, log, StateIterationFailed)
		o.transition(res, log, StateReplan)
		res.Replans++
		newPlan, err := o.planner.Replan(ctx, task, res.Plan, res.Full)
		if err != nil {
			return res, o.abandon(ctx, res, log, err)
		}
		log.Info("Replanned after %q failed: %v", failed, newPlan.Names())
		res.Plan = newPlan
	}

	if res.Succeeded {
		log.Info("All subtasks completed successfully")
	} else {
		log.Error("Plan execution failed after %d iterations", o.cfg.MaxIterations)
	}
	o.conclude(ctx, res, log)
	return res, nil
}

// runSubtask runs up to MaxAttempts Actor/Critic rounds and reports
// whether one was accepted.
func (o *Orchestrator) runSubtask(ctx context.Context, res *CycleResult, log *logging.Logger, subtask agent.Subtask) bool {
	delete(res.Clean, subtask.Name)

	feedback := ""
	for attempt := 1; attempt <= o.cfg.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			return false
		}

		outcome := o.actor.PerformSubtask(ctx, subtask, res.Clean, feedback)
		verdict := o.critic.Evaluate(ctx, subtask, outcome)
		res.Full.Append(subtask.Name, agent.NewAttemptRecord(attempt, outcome, verdict))

		if verdict.IsCorrect {
			res.Clean[subtask.Name] = agent.CleanRecord{Output: outcome.Output, CriticReport: verdict.Report}
			log.Info("Subtask completed on attempt %d. Critic report: %s", attempt, verdict.Report)
			return true
		}
		log.Warn("Subtask failed on attempt %d/%d. Critic report: %s", attempt, o.cfg.MaxAttempts, verdict.Report)
		feedback = verdict.Report
	}
	log.Error("Subtask not completed after %d attempts", o.cfg.MaxAttempts)
	return false
}

// abandon ends a cycle whose planning failed. Memory still records the
// failure unless the context is gone.
func (o *Orchestrator) abandon(ctx context.Context, res *CycleResult, log *logging.Logger, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(err, agent.ErrNoPlan) {
		log.Error("Planning exhausted: %v", err)
	}
	res.Succeeded = false
	o.conclude(ctx, res, log)
	return err
}

func (o *Orchestrator) conclude(ctx context.Context, res *CycleResult, log *logging.Logger) {
	o.transition(res, log, StateConclude)
	memory, err := o.initiator.Conclude(ctx, res.Succeeded, res.Task, res.Plan, res.Full)
	if err != nil {
		log.Error("Conclusion failed; memory left unchanged: %v", err)
		return
	}
	res.Memory = memory
	log.Info("New memory:\n%s", memory)
}

func (o *Orchestrator) transition(res *CycleResult, log *logging.Logger, s State) {
	res.Transitions = append(res.Transitions, s)
	log.Debug("-> %s", s)
}
