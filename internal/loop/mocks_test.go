package loop

import (
	"context"
	"sync"

	"ouroboros/internal/agent"
)

// --- MockInitiator ---

type MockInitiator struct {
	GenerateTaskFunc func(ctx context.Context) (agent.Task, error)
	ConcludeFunc     func(ctx context.Context, succeeded bool, task agent.Task, plan agent.Plan, full agent.Artifacts) (string, error)

	mu            sync.Mutex
	TaskCalls     int
	ConcludeCalls int
	LastSucceeded bool
	LastPlan      agent.Plan
	LastArtifacts agent.Artifacts
}

func (m *MockInitiator) GenerateTask(ctx context.Context) (agent.Task, error) {
	m.mu.Lock()
	m.TaskCalls++
	m.mu.Unlock()
	if m.GenerateTaskFunc != nil {
		return m.GenerateTaskFunc(ctx)
	}
	return agent.Task{Description: "list files in a directory", SuccessCriteria: "returns names"}, nil
}

func (m *MockInitiator) Conclude(ctx context.Context, succeeded bool, task agent.Task, plan agent.Plan, full agent.Artifacts) (string, error) {
	m.mu.Lock()
	m.ConcludeCalls++
	m.LastSucceeded = succeeded
	m.LastPlan = plan
	m.LastArtifacts = full
	m.mu.Unlock()
	if m.ConcludeFunc != nil {
		return m.ConcludeFunc(ctx, succeeded, task, plan, full)
	}
	return "notes", nil
}

// --- MockPlanner ---

type MockPlanner struct {
	CreatePlanFunc func(ctx context.Context, task agent.Task) (agent.Plan, error)
	ReplanFunc     func(ctx context.Context, task agent.Task, previous agent.Plan, full agent.Artifacts) (agent.Plan, error)

	CreateCalls int
	ReplanCalls int
}

func (m *MockPlanner) CreatePlan(ctx context.Context, task agent.Task) (agent.Plan, error) {
	m.CreateCalls++
	if m.CreatePlanFunc != nil {
		return m.CreatePlanFunc(ctx, task)
	}
	return agent.Plan{{Name: "only"}}, nil
}

func (m *MockPlanner) Replan(ctx context.Context, task agent.Task, previous agent.Plan, full agent.Artifacts) (agent.Plan, error) {
	m.ReplanCalls++
	if m.ReplanFunc != nil {
		return m.ReplanFunc(ctx, task, previous, full)
	}
	return previous, nil
}

// --- MockActor ---

type MockActor struct {
	PerformSubtaskFunc func(ctx context.Context, subtask agent.Subtask, clean agent.CleanArtifacts, feedback string) agent.Outcome

	Calls     map[string]int
	Feedbacks []string
}

func (m *MockActor) PerformSubtask(ctx context.Context, subtask agent.Subtask, clean agent.CleanArtifacts, feedback string) agent.Outcome {
	if m.Calls == nil {
		m.Calls = make(map[string]int)
	}
	m.Calls[subtask.Name]++
	m.Feedbacks = append(m.Feedbacks, feedback)
	if m.PerformSubtaskFunc != nil {
		return m.PerformSubtaskFunc(ctx, subtask, clean, feedback)
	}
	return agent.Outcome{Completed: true, Output: "output of " + subtask.Name}
}

// --- MockCritic ---

type MockCritic struct {
	EvaluateFunc func(ctx context.Context, subtask agent.Subtask, outcome agent.Outcome) agent.Verdict

	Calls int
}

func (m *MockCritic) Evaluate(ctx context.Context, subtask agent.Subtask, outcome agent.Outcome) agent.Verdict {
	m.Calls++
	if m.EvaluateFunc != nil {
		return m.EvaluateFunc(ctx, subtask, outcome)
	}
	return agent.Verdict{IsCorrect: true, Report: "ok"}
}

// rejectFor returns a critic that rejects the named subtasks.
func rejectFor(names ...string) *MockCritic {
	rejected := make(map[string]bool, len(names))
	for _, n := range names {
		rejected[n] = true
	}
	return &MockCritic{EvaluateFunc: func(_ context.Context, s agent.Subtask, _ agent.Outcome) agent.Verdict {
		if rejected[s.Name] {
			return agent.Verdict{IsCorrect: false, Report: "wrong output for " + s.Name}
		}
		return agent.Verdict{IsCorrect: true, Report: "ok"}
	}}
}
