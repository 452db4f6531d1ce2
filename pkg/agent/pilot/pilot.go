// Package pilot drives a browser session with an LLM.
//
// A Pilot is an agent.Provider: it receives a page and a task, asks the
// model for one tool call at a time, runs the call through the agent's
// dispatcher and feeds the result back until the model reports an answer
// with task_completion.
//
// Example usage:
//
//	llmProvider, _ := openai.NewProvider(apiKey)
//	ec := agent.CreateContext(a, pilot.New, pilot.Config{LLM: llmProvider})
//	answer, err := ec.Run(ctx, "Find the title of the first article on https://example.com")
package pilot

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/entrhq/browsary/pkg/agent"
	"github.com/entrhq/browsary/pkg/agent/tools"
	"github.com/entrhq/browsary/pkg/browser"
	"github.com/entrhq/browsary/pkg/llm"
	"github.com/entrhq/browsary/pkg/llm/tokenizer"
	"github.com/entrhq/browsary/pkg/logging"
)

const (
	// DefaultMaxSteps bounds the number of model turns in one run.
	DefaultMaxSteps = 20

	// DefaultMaxResultTokens bounds each tool result fed back to the model.
	DefaultMaxResultTokens = 4000

	// maxConsecutiveErrors trips the circuit breaker.
	maxConsecutiveErrors = 5
)

var (
	// ErrNoLLM is returned when the pilot has no LLM provider.
	ErrNoLLM = errors.New("pilot: no LLM provider configured")

	// ErrMaxSteps is returned when the model does not finish within MaxSteps turns.
	ErrMaxSteps = errors.New("pilot: step limit reached without task completion")

	// ErrCircuitBreaker is returned after too many consecutive failed tool calls.
	ErrCircuitBreaker = errors.New("pilot: circuit breaker triggered")
)

// Config configures a Pilot.
type Config struct {
	LLM             llm.Provider
	MaxSteps        int
	Instructions    string
	MaxResultTokens int
	Tokenizer       *tokenizer.Tokenizer
	Logger          *logging.Logger
}

// Pilot runs an LLM tool-calling loop against one page.
type Pilot struct {
	llm             llm.Provider
	call            agent.FunctionCall
	maxSteps        int
	maxResultTokens int
	instructions    string
	tokenizer       *tokenizer.Tokenizer
	logger          *logging.Logger
}

// New creates a Pilot that executes tool calls through call. Its signature
// matches the constructor expected by agent.CreateContext.
func New(cfg Config, call agent.FunctionCall) *Pilot {
	p := &Pilot{
		llm:             cfg.LLM,
		call:            call,
		maxSteps:        cfg.MaxSteps,
		maxResultTokens: cfg.MaxResultTokens,
		instructions:    cfg.Instructions,
		tokenizer:       cfg.Tokenizer,
		logger:          cfg.Logger,
	}
	if p.maxSteps <= 0 {
		p.maxSteps = DefaultMaxSteps
	}
	if p.maxResultTokens <= 0 {
		p.maxResultTokens = DefaultMaxResultTokens
	}
	if p.tokenizer == nil {
		p.tokenizer = tokenizer.Approximate()
	}
	if p.logger == nil {
		p.logger = logging.Discard("pilot")
	}
	return p
}

// run holds the state of one task.
type run struct {
	messages   []*llm.Message
	toolset    map[string]tools.Tool
	lastErrors [maxConsecutiveErrors]string // ring buffer of recent error messages
	errorIndex int
	errorCount int
}

// Run asks the model to complete task on page and returns its answer.
func (p *Pilot) Run(ctx context.Context, page browser.Page, task string) (string, error) {
	if p.llm == nil {
		return "", ErrNoLLM
	}

	toolsList := p.tools(page)
	r := &run{toolset: make(map[string]tools.Tool, len(toolsList))}
	for _, t := range toolsList {
		r.toolset[t.Name()] = t
	}

	systemPrompt := NewPromptBuilder().
		WithTools(toolsList).
		WithInstructions(p.instructions).
		Build()
	r.messages = []*llm.Message{
		llm.NewSystemMessage(systemPrompt),
		llm.NewUserMessage(task),
	}

	p.logger.Infof("Starting task with model %s (%d steps max)", p.llm.GetModel(), p.maxSteps)

	for step := 1; step <= p.maxSteps; step++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		answer, done, err := p.step(ctx, r, step)
		if err != nil {
			return "", err
		}
		if done {
			p.logger.Infof("Task completed in %d steps", step)
			return answer, nil
		}
	}

	p.logger.Warnf("Step limit %d reached", p.maxSteps)
	return "", ErrMaxSteps
}

func (p *Pilot) tools(page browser.Page) []tools.Tool {
	caller := func(ctx context.Context, name string, params map[string]any) (any, error) {
		return p.call(ctx, page, name, params)
	}
	return append(tools.Actions(caller), tools.NewTaskCompletionTool())
}

// step runs one model turn. It reports the answer and true once a
// loop-breaking tool succeeds.
func (p *Pilot) step(ctx context.Context, r *run, step int) (string, bool, error) {
	reply, err := p.llm.Complete(ctx, r.messages)
	if err != nil {
		return "", false, fmt.Errorf("LLM request failed: %w", err)
	}
	r.messages = append(r.messages, llm.NewAssistantMessage(reply.Content))

	call, _, err := tools.ParseToolCall(reply.Content)
	if err != nil {
		p.logger.Debugf("Step %d: no valid tool call: %v", step, err)
		return "", false, p.feedbackError(r, "", noToolCallMessage(err))
	}

	tool, ok := r.toolset[call.ToolName]
	if !ok {
		p.logger.Debugf("Step %d: unknown tool %q", step, call.ToolName)
		return "", false, p.feedbackError(r, call.ToolName, unknownToolMessage(call.ToolName, r.toolset))
	}

	p.logger.Debugf("Step %d: calling %s", step, tool.Name())
	result, err := tool.Execute(ctx, call.GetArgumentsXML())
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", false, ctxErr
		}
		p.logger.Debugf("Step %d: %s failed: %v", step, tool.Name(), err)
		return "", false, p.feedbackError(r, tool.Name(), err.Error())
	}

	if tool.IsLoopBreaking() {
		return result, true, nil
	}

	r.resetErrors()
	result = p.tokenizer.Truncate(result, p.maxResultTokens)
	r.messages = append(r.messages, llm.NewUserMessage(fmt.Sprintf("Tool '%s' result:\n%s", tool.Name(), result)))
	return "", false, nil
}

// feedbackError records a failed call and reports it to the model. It
// returns ErrCircuitBreaker once too many calls failed in a row.
func (p *Pilot) feedbackError(r *run, toolName, message string) error {
	if r.trackError(message) {
		p.logger.Errorf("Circuit breaker triggered after %d consecutive errors: %s", maxConsecutiveErrors, message)
		return fmt.Errorf("%w: %d consecutive tool errors: %s", ErrCircuitBreaker, maxConsecutiveErrors, strings.Join(r.recentErrors(), "; "))
	}

	var content string
	if toolName == "" {
		content = message
	} else {
		content = fmt.Sprintf("Tool '%s' error:\n%s", toolName, message)
	}
	r.messages = append(r.messages, llm.NewUserMessage(content))
	return nil
}

// trackError stores message and reports whether the breaker tripped.
func (r *run) trackError(message string) bool {
	r.lastErrors[r.errorIndex] = message
	r.errorIndex = (r.errorIndex + 1) % maxConsecutiveErrors
	r.errorCount++
	return r.errorCount >= maxConsecutiveErrors
}

// recentErrors returns the buffered error messages, oldest first.
func (r *run) recentErrors() []string {
	out := make([]string, 0, maxConsecutiveErrors)
	for i := 0; i < maxConsecutiveErrors; i++ {
		if msg := r.lastErrors[(r.errorIndex+i)%maxConsecutiveErrors]; msg != "" {
			out = append(out, msg)
		}
	}
	return out
}

func (r *run) resetErrors() {
	r.lastErrors = [maxConsecutiveErrors]string{}
	r.errorIndex = 0
	r.errorCount = 0
}

func noToolCallMessage(err error) string {
	if errors.Is(err, tools.ErrNoToolCall) {
		return "No tool call found in your response. Respond with exactly one <tool> block, " +
			"or call task_completion when you are done."
	}
	return fmt.Sprintf("Your tool call could not be parsed: %v. Check that the XML is well formed "+
		"and wrap values containing < or & in CDATA.", err)
}

func unknownToolMessage(name string, toolset map[string]tools.Tool) string {
	names := make([]string, 0, len(toolset))
	for n := range toolset {
		names = append(names, n)
	}
	sort.Strings(names)
	return fmt.Sprintf("Unknown tool %q. Available tools: %s", name, strings.Join(names, ", "))
}

var _ agent.Provider = (*Pilot)(nil)
