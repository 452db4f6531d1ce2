package tools

import (
	"context"
	"encoding/xml"
	"fmt"
)

// TaskCompletionName is the name of the tool that ends a task.
const TaskCompletionName = "task_completion"

// TaskCompletionTool is a loop-breaking tool that lets the model report the
// answer to its task once it has gathered what it needs from the page.
type TaskCompletionTool struct{}

// NewTaskCompletionTool creates a new task completion tool
func NewTaskCompletionTool() *TaskCompletionTool {
	return &TaskCompletionTool{}
}

// Name returns the tool's identifier
func (t *TaskCompletionTool) Name() string {
	return TaskCompletionName
}

// Description returns a description of what this tool does
func (t *TaskCompletionTool) Description() string {
	return "Finish the task and report the result. " +
		"Use this once the page has given you everything the task asks for, " +
		"or when the task cannot be completed and you can explain why."
}

// Schema returns the JSON schema for the tool's arguments
func (t *TaskCompletionTool) Schema() map[string]interface{} {
	return BaseToolSchema(
		map[string]interface{}{
			"result": map[string]interface{}{
				"type":        "string",
				"description": "The final answer to the task, based on what was observed on the page.",
			},
		},
		[]string{"result"},
	)
}

// Execute returns the reported result
func (t *TaskCompletionTool) Execute(ctx context.Context, argsXML []byte) (string, error) {
	var args struct {
		XMLName xml.Name `xml:"arguments"`
		Result  string   `xml:"result"`
	}

	if err := UnmarshalXMLWithFallback(argsXML, &args); err != nil {
		return "", fmt.Errorf("invalid arguments for %s: %w", TaskCompletionName, err)
	}

	if args.Result == "" {
		return "", fmt.Errorf("result cannot be empty")
	}

	return args.Result, nil
}

// IsLoopBreaking returns true because this tool terminates the task
func (t *TaskCompletionTool) IsLoopBreaking() bool {
	return true
}
