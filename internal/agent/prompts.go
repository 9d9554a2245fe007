package agent

import (
	"fmt"

	"ouroboros/internal/capability"
)

// =============================================================================
// ACTOR
// =============================================================================

const decisionSystemPrompt = `You are an actor that decides which capability from a custom toolbox to use, or whether to create a new capability, to accomplish the subtask.
Use "use_capability" to call an existing capability and "create_capability" to implement a new one.
Keep capabilities parameterized so they apply to the general case.
Choose only capabilities that exist in the list.
Return JSON only, without comments.
Output sample:
{
    "action": "use_capability" or "create_capability",
    "tool_name": "...",
    "tool_args": {...}
}`

const designSystemPrompt = `You are a capability designer.
The user wants a new capability to accomplish the specified subtask.
Describe the capability in detail.
Return JSON with the following keys:
"tool_name": string, in snake case
"tool_description": string
"args_description": string
Format the entire response as JSON only, without comments.`

const codegenSystemPrompt = `You are a capability author. You write complete, self-contained %s source files that follow a fixed contract.
Provide the full source, including every import and definition. Keep the same exposed names as the example.
You are part of an autonomous agent: never ask for user input, always use the arguments instead.`

func decisionPrompt(subtask Subtask, listing capability.Listing, clean CleanArtifacts, feedback string) string {
	return fmt.Sprintf(`Subtask: %s
Description: %s
Success criteria: %s

Existing capabilities:
%s

Previous steps artifacts:
%s

Feedback from critic after previous try:
%s`,
		subtask.Name, orNone(subtask.Description), orNone(subtask.SuccessCriteria),
		listing, clean, orNone(feedback))
}

func designPrompt(subtask Subtask, clean CleanArtifacts, feedback string) string {
	description := subtask.Description
	if description == "" {
		description = subtask.Name
	}
	return fmt.Sprintf(`Subtask description: %s
Design a capability for the general case, not only this particular usage.

Previous steps artifacts:
%s

Feedback from critic after previous try:
%s`, description, clean, orNone(feedback))
}

func codegenPrompt(d design, backend capability.Backend) string {
	return fmt.Sprintf(`Generate a %[1]s capability with the following specification:

Capability name: %[2]s
Capability description: %[3]s
Parameters description: %[4]s

Here is an example of a capability implementation:

`+"```%[5]s\n%[6]s```"+`

Implement the new capability fully, based on the description. Answer only with the code in a single `+"```%[5]s"+` block.`,
		backend.Name(), d.Name, d.Description, d.Args, backend.Language(), backend.Example())
}

// =============================================================================
// CRITIC
// =============================================================================

const criticSystemPrompt = `You are a critic evaluating whether the chosen capability and approach are correct for the given subtask.`

func criticPrompt(subtask Subtask, outcome Outcome, language, source string) string {
	return fmt.Sprintf(`Subtask: %s
Actor output: %s

Capability code:
`+"```%s\n%s\n```"+`

Decide if this approach solves the subtask correctly. It does not have to be perfect, but it must work.
Describe what was done and what was good and bad.
Return a JSON response with keys: "report" (string), "is_correct" (bool).`,
		renderJSON(subtask), renderJSON(outcome), language, source)
}

// =============================================================================
// PLANNER
// =============================================================================

const plannerSystemPrompt = `You are a planner that takes a task and produces subtasks as a JSON list. Do not add anything except JSON.
You are creating a plan for an agent system, so every subtask must be solvable by a single small program.`

func plannerPrompt(listing capability.Listing, task Task) string {
	return fmt.Sprintf(`Here is a list of existing capabilities:
%s

Task: %s
Success criteria: %s

Output format:
[
    {
        "subtask": "subtask name",
        "description": "description of subtask",
        "success_criteria": "success criteria of this subtask"
    }
]`, listing, task.Description, orNone(task.SuccessCriteria))
}

func replanPrompt(previous Plan, full Artifacts) string {
	return fmt.Sprintf(`The previous iteration failed. Here is the previous plan:
%s

Here are the logs of every attempt, per subtask:
%s

Produce a new plan that avoids the approaches that failed.`, previous, full)
}

// =============================================================================
// INITIATOR
// =============================================================================

const initiatorSystemPrompt = `You are a task generator that produces JSON with keys "task_description" and "success_criteria". Do not add anything except JSON.`

func initiatorPrompt(listing capability.Listing, memory string) string {
	return fmt.Sprintf(`You are a self-improving system.
You have a list of capabilities to do tasks. Capabilities solve atomic tasks. Here is the list of existing capabilities:
%s

Based on memory:
%s

Generate a new task. The task should be clear, specific, not abstract and achievable as a user request.
Each iteration you need to do something new; do not repeat the same tasks.`, listing, orNone(memory))
}

const concludeSystemPrompt = `You are a memory aggregator. You will receive:
1) The previous memory (a text).
2) A boolean indicating whether the task succeeded.
3) The task.
4) The plan.
5) Artifacts produced while working on the task.

Produce updated notes by merging all of this information. Write what to do next, what to pay attention to, and your long-term goals.
Retain the important parts of the previous memory, keeping exact text where it matters.
Output the final updated memory in plain text. No JSON formatting.`

func concludePrompt(memory string, succeeded bool, task Task, plan Plan, full Artifacts) string {
	return fmt.Sprintf(`Previous memory:
%s

Task succeeded: %t
Task: %s
Plan: %s
Artifacts: %s

Return the updated memory, keeping the important information from the previous memory.`,
		orNone(memory), succeeded, renderJSON(task), plan, full)
}
