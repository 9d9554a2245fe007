// Package agent implements the four model-driven roles of the loop: the
// Initiator invents tasks and folds outcomes into memory, the Planner
// decomposes tasks into subtasks, the Actor solves a subtask by invoking or
// synthesizing a capability, and the Critic judges the Actor's outcome and
// revokes capabilities that do not survive review.
package agent

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Task is the unit of work the Initiator invents for one cycle.
type Task struct {
	Description     string `json:"task_description"`
	SuccessCriteria string `json:"success_criteria"`
}

// Subtask is one step of a Plan. Name is unique within its plan.
type Subtask struct {
	Name            string `json:"subtask"`
	Description     string `json:"description"`
	SuccessCriteria string `json:"success_criteria"`
}

// Plan is an ordered list of subtasks. Replanning produces a new Plan.
type Plan []Subtask

// Names returns the subtask names in plan order.
func (p Plan) Names() []string {
	names := make([]string, len(p))
	for i, s := range p {
		names[i] = s.Name
	}
	return names
}

// String renders the plan as indented JSON for prompts and logs.
func (p Plan) String() string {
	return renderJSON(p)
}

// Outcome is what the Actor reports for one attempt.
type Outcome struct {
	Completed         bool                   `json:"completed"`
	Output            string                 `json:"output"`
	Error             string                 `json:"errors,omitempty"`
	ChosenCapability  string                 `json:"chosen_tool,omitempty"`
	CreatedCapability string                 `json:"created_tool,omitempty"`
	Args              map[string]interface{} `json:"tool_args"`
}

func (o Outcome) fail(format string, args ...interface{}) Outcome {
	o.Completed = false
	o.Error = fmt.Sprintf(format, args...)
	return o
}

// Verdict is the Critic's judgment of an Outcome.
type Verdict struct {
	IsCorrect bool   `json:"is_correct"`
	Report    string `json:"report"`
}

// AttemptRecord is one Actor/Critic round for a subtask.
type AttemptRecord struct {
	Attempt           int                    `json:"attempt"`
	Completed         bool                   `json:"completed"`
	Output            string                 `json:"output"`
	Errors            string                 `json:"errors,omitempty"`
	ChosenCapability  string                 `json:"chosen_tool,omitempty"`
	CreatedCapability string                 `json:"created_tool,omitempty"`
	Args              map[string]interface{} `json:"tool_args,omitempty"`
	CriticVerdict     bool                   `json:"critic_verdict"`
	CriticReport      string                 `json:"critic_report"`
	Timestamp         time.Time              `json:"-"`
}

// NewAttemptRecord combines an outcome and its verdict.
func NewAttemptRecord(attempt int, o Outcome, v Verdict) AttemptRecord {
	return AttemptRecord{
		Attempt:           attempt,
		Completed:         o.Completed,
		Output:            o.Output,
		Errors:            o.Error,
		ChosenCapability:  o.ChosenCapability,
		CreatedCapability: o.CreatedCapability,
		Args:              o.Args,
		CriticVerdict:     v.IsCorrect,
		CriticReport:      v.Report,
		Timestamp:         time.Now(),
	}
}

// CleanRecord is the accepted result of a subtask, passed forward as
// context to later subtasks.
type CleanRecord struct {
	Output       string `json:"output"`
	CriticReport string `json:"critic_report"`
}

// CleanArtifacts maps subtask name to its latest accepted record.
type CleanArtifacts map[string]CleanRecord

// String renders the map as indented JSON, or "none" when empty.
func (c CleanArtifacts) String() string {
	if len(c) == 0 {
		return "none"
	}
	return renderJSON(c)
}

// Artifacts is the full attempt log: subtask name to every record, in
// the order the attempts happened.
type Artifacts map[string][]AttemptRecord

// Append adds a record to a subtask's log.
func (a Artifacts) Append(subtask string, rec AttemptRecord) {
	a[subtask] = append(a[subtask], rec)
}

// Len returns the number of records across all subtasks.
func (a Artifacts) Len() int {
	n := 0
	for _, recs := range a {
		n += len(recs)
	}
	return n
}

// String renders the log as indented JSON, or "none" when empty.
func (a Artifacts) String() string {
	if len(a) == 0 {
		return "none"
	}
	return renderJSON(a)
}

func renderJSON(v interface{}) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%+v", v)
	}
	return string(data)
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return "none"
	}
	return s
}
