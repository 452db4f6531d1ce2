package pilot

import (
	"fmt"
	"sort"
	"strings"

	"github.com/entrhq/browsary/pkg/agent/tools"
)

const systemCapabilitiesPrompt = `You are a web browsing assistant. You control a single browser tab through tools and use it to complete the user's task.

Each turn, think briefly about what you have learned so far, then call exactly one tool. After every tool call you receive its result, or its error, in the next message.`

const toolCallingPrompt = `Call a tool by writing a single XML block in this format:

<tool>
<server_name>local</server_name>
<tool_name>TOOL_NAME</tool_name>
<arguments>
  <PARAM>VALUE</PARAM>
</arguments>
</tool>

Wrap values containing < or & in <![CDATA[...]]>. Booleans are written as true or false, numbers as plain digits.`

const toolUseRulesPrompt = `Rules:
- Page content is returned as compact JSON trees. Prefer specific selectors over reading the whole page.
- Use click with waitForNavigation set to true when the click loads a new page.
- When a tool fails, read the error and adjust the selector or URL instead of repeating the same call.
- When you have the answer, call task_completion with the result. Do not invent information that was not on the page.`

// PromptBuilder constructs the system prompt for a pilot run
type PromptBuilder struct {
	tools        []tools.Tool
	instructions string
}

// NewPromptBuilder creates a new prompt builder with default settings
func NewPromptBuilder() *PromptBuilder {
	return &PromptBuilder{}
}

// WithTools sets the tools the model may call
func (pb *PromptBuilder) WithTools(toolsList []tools.Tool) *PromptBuilder {
	pb.tools = toolsList
	return pb
}

// WithInstructions adds caller-provided instructions
func (pb *PromptBuilder) WithInstructions(instructions string) *PromptBuilder {
	pb.instructions = instructions
	return pb
}

// Build assembles the system prompt
func (pb *PromptBuilder) Build() string {
	var builder strings.Builder

	if pb.instructions != "" {
		builder.WriteString("<custom_instructions>\n")
		builder.WriteString(pb.instructions)
		builder.WriteString("\n</custom_instructions>\n\n")
	}

	builder.WriteString(systemCapabilitiesPrompt)
	builder.WriteString("\n\n")
	builder.WriteString(toolCallingPrompt)
	builder.WriteString("\n\n")

	if len(pb.tools) > 0 {
		builder.WriteString("<available_tools>\n")
		builder.WriteString(FormatToolSchemas(pb.tools))
		builder.WriteString("</available_tools>\n\n")
	}

	builder.WriteString(toolUseRulesPrompt)
	return builder.String()
}

// FormatToolSchemas renders each tool with its parameters and an example call
func FormatToolSchemas(toolsList []tools.Tool) string {
	var builder strings.Builder
	for _, tool := range toolsList {
		fmt.Fprintf(&builder, "<tool_definition name=%q>\n", tool.Name())
		fmt.Fprintf(&builder, "%s\n", tool.Description())

		schema := tool.Schema()
		properties, _ := schema["properties"].(map[string]interface{})
		required := map[string]bool{}
		if req, ok := schema["required"].([]string); ok {
			for _, r := range req {
				required[r] = true
			}
		}

		if len(properties) > 0 {
			builder.WriteString("Parameters:\n")
			for _, name := range sortedKeys(properties) {
				prop, _ := properties[name].(map[string]interface{})
				propType, _ := prop["type"].(string)
				desc, _ := prop["description"].(string)
				req := "optional"
				if required[name] {
					req = "required"
				}
				fmt.Fprintf(&builder, "- %s (%s, %s): %s\n", name, propType, req, desc)
			}
		}

		builder.WriteString("Example:\n")
		builder.WriteString(GenerateXMLExample(schema, tool.Name()))
		builder.WriteString("\n</tool_definition>\n")
	}
	return builder.String()
}

// GenerateXMLExample creates a concrete XML call from a JSON Schema using
// only the required properties
func GenerateXMLExample(schema map[string]interface{}, toolName string) string {
	var builder strings.Builder

	builder.WriteString("<tool>\n")
	builder.WriteString("<server_name>local</server_name>\n")
	fmt.Fprintf(&builder, "<tool_name>%s</tool_name>\n", toolName)
	builder.WriteString("<arguments>\n")

	properties, _ := schema["properties"].(map[string]interface{})
	requiredFields := make(map[string]bool)
	if req, ok := schema["required"].([]string); ok {
		for _, field := range req {
			requiredFields[field] = true
		}
	}

	for _, name := range sortedKeys(properties) {
		if !requiredFields[name] {
			continue
		}
		prop, _ := properties[name].(map[string]interface{})
		fmt.Fprintf(&builder, "  <%s>%s</%s>\n", name, exampleValue(name, prop), name)
	}

	builder.WriteString("</arguments>\n")
	builder.WriteString("</tool>")
	return builder.String()
}

func exampleValue(name string, prop map[string]interface{}) string {
	switch name {
	case "selector":
		return "#main h1"
	case "url":
		return "https://example.com"
	}

	propType, _ := prop["type"].(string)
	switch propType {
	case "boolean":
		return "true"
	case "integer", "number":
		return "100"
	}
	if enum, ok := prop["enum"].([]string); ok && len(enum) > 0 {
		return enum[0]
	}
	return "value"
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
