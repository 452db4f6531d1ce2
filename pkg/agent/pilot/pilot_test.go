package pilot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/browsary/pkg/agent"
	"github.com/entrhq/browsary/pkg/browser"
	"github.com/entrhq/browsary/pkg/llm"
)

// scriptedLLM replies with the next scripted message on every call and
// repeats the last one once the script runs out.
type scriptedLLM struct {
	mu       sync.Mutex
	replies  []string
	err      error
	requests [][]*llm.Message
}

func (s *scriptedLLM) Complete(_ context.Context, messages []*llm.Message) (*llm.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.requests = append(s.requests, append([]*llm.Message(nil), messages...))
	if s.err != nil {
		return nil, s.err
	}
	i := len(s.requests) - 1
	if i >= len(s.replies) {
		i = len(s.replies) - 1
	}
	return llm.NewAssistantMessage(s.replies[i]), nil
}

func (s *scriptedLLM) StreamCompletion(ctx context.Context, messages []*llm.Message) (<-chan *llm.StreamChunk, error) {
	msg, err := s.Complete(ctx, messages)
	if err != nil {
		return nil, err
	}
	ch := make(chan *llm.StreamChunk, 2)
	ch <- &llm.StreamChunk{Role: string(msg.Role), Content: msg.Content}
	ch <- &llm.StreamChunk{Finished: true}
	close(ch)
	return ch, nil
}

func (s *scriptedLLM) GetModel() string { return "scripted" }

func (s *scriptedLLM) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

// lastUserMessage returns the final message of request i.
func (s *scriptedLLM) lastMessage(i int) *llm.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	req := s.requests[i]
	return req[len(req)-1]
}

type dispatched struct {
	name   string
	params map[string]any
}

// fakeDispatch records tool calls and answers them from handler.
type fakeDispatch struct {
	mu      sync.Mutex
	calls   []dispatched
	handler func(name string, params map[string]any) (any, error)
}

func (f *fakeDispatch) call(_ context.Context, _ browser.Page, name string, params map[string]any) (any, error) {
	f.mu.Lock()
	f.calls = append(f.calls, dispatched{name: name, params: params})
	f.mu.Unlock()
	if f.handler == nil {
		return nil, nil
	}
	return f.handler(name, params)
}

func toolCall(name string, args ...string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<tool>\n<server_name>local</server_name>\n<tool_name>%s</tool_name>\n<arguments>\n", name)
	for i := 0; i+1 < len(args); i += 2 {
		fmt.Fprintf(&b, "<%s>%s</%s>\n", args[i], args[i+1], args[i])
	}
	b.WriteString("</arguments>\n</tool>")
	return b.String()
}

func complete(result string) string {
	return toolCall("task_completion", "result", result)
}

func TestPilot_CompletesTask(t *testing.T) {
	model := &scriptedLLM{replies: []string{
		"I will open the docs first.\n" + toolCall("goto", "url", "https://example.com/docs"),
		toolCall("url"),
		complete("The docs live at https://example.com/docs"),
	}}
	current := ""
	d := &fakeDispatch{handler: func(name string, params map[string]any) (any, error) {
		switch name {
		case agent.ActionGoto:
			current = params["url"].(string)
			return nil, nil
		case agent.ActionURL:
			return current, nil
		}
		return nil, errors.New("unexpected")
	}}

	p := New(Config{LLM: model}, d.call)
	answer, err := p.Run(context.Background(), browser.NoPage, "Where are the docs?")
	require.NoError(t, err)

	assert.Equal(t, "The docs live at https://example.com/docs", answer)
	require.Len(t, d.calls, 2)
	assert.Equal(t, agent.ActionGoto, d.calls[0].name)
	assert.Equal(t, "https://example.com/docs", d.calls[0].params["url"])
	assert.Equal(t, agent.ActionURL, d.calls[1].name)

	require.Equal(t, 3, model.calls())

	first := model.requests[0]
	require.Len(t, first, 2)
	assert.Equal(t, llm.RoleSystem, first[0].Role)
	assert.Contains(t, first[0].Content, "<tool_definition name=\"querySelector\">")
	assert.Contains(t, first[0].Content, "<tool_definition name=\"task_completion\">")
	assert.Equal(t, "Where are the docs?", first[1].Content)

	assert.Equal(t, "Tool 'goto' result:\nok", model.lastMessage(1).Content)
	assert.Equal(t, "Tool 'url' result:\nhttps://example.com/docs", model.lastMessage(2).Content)
}

func TestPilot_FeedsErrorsBack(t *testing.T) {
	model := &scriptedLLM{replies: []string{
		toolCall("click", "selector", "#missing"),
		complete("done"),
	}}
	d := &fakeDispatch{handler: func(string, map[string]any) (any, error) {
		return nil, fmt.Errorf("%w: #missing", browser.ErrSelectorNotFound)
	}}

	answer, err := New(Config{LLM: model}, d.call).Run(context.Background(), browser.NoPage, "task")
	require.NoError(t, err)

	assert.Equal(t, "done", answer)
	assert.Equal(t, "Tool 'click' error:\nselector not found: #missing", model.lastMessage(1).Content)
}

func TestPilot_FeedbackMessages(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		want  string
	}{
		{
			name:  "no tool call",
			reply: "I think the page is about cats.",
			want:  "No tool call found",
		},
		{
			name:  "malformed tool call",
			reply: "<tool><tool_name>url</tool_name><arguments></tool>",
			want:  "could not be parsed",
		},
		{
			name:  "unknown tool",
			reply: toolCall("scroll", "selector", "body"),
			want:  "Tool 'scroll' error:\nUnknown tool \"scroll\". Available tools: click, goto, querySelector",
		},
		{
			name:  "empty completion",
			reply: complete(""),
			want:  "Tool 'task_completion' error:\nresult cannot be empty",
		},
		{
			name:  "invalid params",
			reply: toolCall("goto"),
			want:  "Tool 'goto' error:",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model := &scriptedLLM{replies: []string{tt.reply, complete("finished")}}
			d := &fakeDispatch{handler: func(name string, params map[string]any) (any, error) {
				if _, ok := params["url"]; name == agent.ActionGoto && !ok {
					return nil, &agent.ParamError{Action: name, Param: "url", Reason: "is required"}
				}
				return nil, nil
			}}

			answer, err := New(Config{LLM: model}, d.call).Run(context.Background(), browser.NoPage, "task")
			require.NoError(t, err)
			assert.Equal(t, "finished", answer)
			assert.Contains(t, model.lastMessage(1).Content, tt.want)
		})
	}
}

func TestPilot_CircuitBreaker(t *testing.T) {
	model := &scriptedLLM{replies: []string{toolCall("click", "selector", "#nope")}}
	d := &fakeDispatch{handler: func(string, map[string]any) (any, error) {
		return nil, browser.ErrSelectorNotFound
	}}

	_, err := New(Config{LLM: model}, d.call).Run(context.Background(), browser.NoPage, "task")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCircuitBreaker))
	assert.Contains(t, err.Error(), "selector not found")
	assert.Equal(t, maxConsecutiveErrors, model.calls())
	assert.Len(t, d.calls, maxConsecutiveErrors)
}

func TestPilot_SuccessResetsBreaker(t *testing.T) {
	var replies []string
	for i := 0; i < maxConsecutiveErrors-1; i++ {
		replies = append(replies, toolCall("click", "selector", "#bad"))
	}
	replies = append(replies, toolCall("url"))
	for i := 0; i < maxConsecutiveErrors-1; i++ {
		replies = append(replies, toolCall("click", "selector", "#bad"))
	}
	replies = append(replies, complete("recovered"))

	model := &scriptedLLM{replies: replies}
	d := &fakeDispatch{handler: func(name string, _ map[string]any) (any, error) {
		if name == agent.ActionClick {
			return nil, browser.ErrSelectorNotFound
		}
		return "https://example.com", nil
	}}

	answer, err := New(Config{LLM: model}, d.call).Run(context.Background(), browser.NoPage, "task")
	require.NoError(t, err)
	assert.Equal(t, "recovered", answer)
}

func TestPilot_MaxSteps(t *testing.T) {
	model := &scriptedLLM{replies: []string{toolCall("url")}}
	d := &fakeDispatch{handler: func(string, map[string]any) (any, error) {
		return "https://example.com", nil
	}}

	_, err := New(Config{LLM: model, MaxSteps: 3}, d.call).Run(context.Background(), browser.NoPage, "task")
	assert.ErrorIs(t, err, ErrMaxSteps)
	assert.Equal(t, 3, model.calls())
}

func TestPilot_Errors(t *testing.T) {
	t.Run("no llm", func(t *testing.T) {
		_, err := New(Config{}, (&fakeDispatch{}).call).Run(context.Background(), browser.NoPage, "task")
		assert.ErrorIs(t, err, ErrNoLLM)
	})

	t.Run("llm failure", func(t *testing.T) {
		boom := errors.New("upstream down")
		model := &scriptedLLM{err: boom}
		_, err := New(Config{LLM: model}, (&fakeDispatch{}).call).Run(context.Background(), browser.NoPage, "task")
		assert.ErrorIs(t, err, boom)
	})

	t.Run("canceled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		model := &scriptedLLM{replies: []string{complete("x")}}
		_, err := New(Config{LLM: model}, (&fakeDispatch{}).call).Run(ctx, browser.NoPage, "task")
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 0, model.calls())
	})

	t.Run("cancellation during a tool call", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		model := &scriptedLLM{replies: []string{toolCall("url")}}
		d := &fakeDispatch{handler: func(string, map[string]any) (any, error) {
			cancel()
			return nil, context.Canceled
		}}
		_, err := New(Config{LLM: model}, d.call).Run(ctx, browser.NoPage, "task")
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, model.calls())
	})
}

func TestPilot_TruncatesResults(t *testing.T) {
	model := &scriptedLLM{replies: []string{
		toolCall("querySelectorAll", "selector", "p"),
		complete("done"),
	}}
	d := &fakeDispatch{handler: func(string, map[string]any) (any, error) {
		return strings.Repeat("x", 400), nil
	}}

	_, err := New(Config{LLM: model, MaxResultTokens: 10}, d.call).Run(context.Background(), browser.NoPage, "task")
	require.NoError(t, err)

	msg := model.lastMessage(1).Content
	assert.True(t, strings.HasPrefix(msg, "Tool 'querySelectorAll' result:\n"+strings.Repeat("x", 40)))
	assert.Contains(t, msg, "[truncated 90 tokens]")
}

func TestPilot_WithEvaluationContext(t *testing.T) {
	a := agent.New(agent.Config{Source: browser.FromBrowser(nil)})
	model := &scriptedLLM{replies: []string{
		toolCall("url"),
		complete("no browser"),
	}}

	ec := agent.CreateContext(a, New, Config{LLM: model})
	answer, err := ec.Run(context.Background(), "What page is open?")
	require.NoError(t, err)

	assert.Equal(t, "no browser", answer)
	assert.Equal(t, "Tool 'url' error:\nno browser available", model.lastMessage(1).Content)
}
