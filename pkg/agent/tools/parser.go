package tools

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
)

const (
	defaultServerName = "local"
	maxXMLSize        = 1024 * 1024 // 1MB limit for XML tool calls
	argumentsTagName  = "arguments"
)

// ErrNoToolCall is returned by ParseToolCall when the text holds no tool call.
var ErrNoToolCall = errors.New("no tool call found in text")

// Compile regex once at package level for efficiency
var toolRegex = regexp.MustCompile(`(?s)<tool>.*?</tool>`)

// ampersandEntityRegex matches ampersands that are already part of XML entities
// to avoid double-escaping them. Matches: &amp; &lt; &gt; &quot; &apos; &#123; &#xAB;
var ampersandEntityRegex = regexp.MustCompile(`&(?:amp|lt|gt|quot|apos|#\d+|#x[0-9a-fA-F]+);`)

// ParseToolCall extracts the first tool call from an LLM response.
//
// Expected format:
//
//	<tool>
//	<server_name>local</server_name>
//	<tool_name>click</tool_name>
//	<arguments>
//	  <selector><![CDATA[form > button[type="submit"]]]></selector>
//	  <waitForNavigation>true</waitForNavigation>
//	</arguments>
//	</tool>
//
// Returns the parsed ToolCall and the text surrounding it, or an error if
// parsing fails.
func ParseToolCall(text string) (*ToolCall, string, error) {
	if len(text) > maxXMLSize {
		return nil, text, fmt.Errorf("tool call XML exceeds maximum size of %d bytes", maxXMLSize)
	}

	loc := toolRegex.FindStringIndex(text)
	if loc == nil {
		return nil, text, ErrNoToolCall
	}

	toolXML := strings.TrimSpace(text[loc[0]:loc[1]])

	var toolCall ToolCall
	if err := UnmarshalXMLWithFallback([]byte(toolXML), &toolCall); err != nil {
		// Include XML snippet in error for better debugging
		snippet := toolXML
		if len(snippet) > 200 {
			snippet = snippet[:200] + "..."
		}
		return nil, text, fmt.Errorf("failed to unmarshal tool call XML: %w\nXML snippet: %s", err, snippet)
	}

	toolCall.ToolName = strings.TrimSpace(toolCall.ToolName)
	if toolCall.ToolName == "" {
		return nil, text, fmt.Errorf("tool_name is required in tool call")
	}

	if toolCall.ServerName == "" {
		toolCall.ServerName = defaultServerName
	}

	remainingText := strings.TrimSpace(text[:loc[0]] + text[loc[1]:])
	return &toolCall, remainingText, nil
}

// HasToolCall checks if the text contains a tool call.
func HasToolCall(text string) bool {
	return toolRegex.MatchString(text)
}

// UnmarshalXMLWithFallback attempts to unmarshal XML, with fallback to
// escape unescaped ampersands if the initial parse fails.
// LLMs regularly emit bare & in URLs and selectors.
func UnmarshalXMLWithFallback(data []byte, v interface{}) error {
	err := xml.Unmarshal(data, v)
	if err == nil {
		return nil
	}
	return xml.Unmarshal(escapeUnescapedAmpersands(data), v)
}

// escapeUnescapedAmpersands replaces bare & with &amp; while preserving
// existing entities (&amp;, &lt;, &gt;, &quot;, &apos;, &#..;)
func escapeUnescapedAmpersands(data []byte) []byte {
	text := string(data)

	entityPositions := make(map[int]bool)
	for _, match := range ampersandEntityRegex.FindAllStringIndex(text, -1) {
		entityPositions[match[0]] = true
	}

	var result strings.Builder
	result.Grow(len(text) + 20)

	for i := 0; i < len(text); i++ {
		if text[i] == '&' && !entityPositions[i] {
			result.WriteString("&amp;")
		} else {
			result.WriteByte(text[i])
		}
	}

	return []byte(result.String())
}

// XMLToMap converts the direct children of an <arguments> element to a map
// of string values. Character data is kept as written, apart from layout
// whitespace: a leading or trailing whitespace run that contains a line
// break is dropped. Empty elements are present with an empty value, so a
// tool call can type an empty string.
func XMLToMap(data []byte) (map[string]interface{}, error) {
	result, err := xmlToMap(data)
	if err != nil {
		result, err = xmlToMap(escapeUnescapedAmpersands(data))
	}
	return result, err
}

func xmlToMap(data []byte) (map[string]interface{}, error) {
	decoder := xml.NewDecoder(strings.NewReader(string(data)))
	result := make(map[string]interface{})

	var currentPath []string
	var currentText strings.Builder

	for {
		token, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse XML: %w", err)
		}

		switch t := token.(type) {
		case xml.StartElement:
			currentPath = append(currentPath, t.Name.Local)
			if len(currentPath) == 2 && currentPath[0] == argumentsTagName {
				currentText.Reset()
			}

		case xml.EndElement:
			if len(currentPath) == 0 {
				continue
			}
			elementName := currentPath[len(currentPath)-1]
			currentPath = currentPath[:len(currentPath)-1]

			// Only direct children of <arguments> become entries
			if len(currentPath) == 1 && currentPath[0] == argumentsTagName {
				result[elementName] = trimLayout(currentText.String())
				currentText.Reset()
			}

		case xml.CharData:
			if len(currentPath) >= 2 {
				currentText.Write(t)
			}
		}
	}

	return result, nil
}

// trimLayout drops the indentation that surrounds multi-line values such as
// <text>\n  hello\n</text> while keeping spaces typed on the same line.
func trimLayout(s string) string {
	trimmed := strings.TrimLeft(s, " \t\r\n")
	if strings.ContainsRune(s[:len(s)-len(trimmed)], '\n') {
		s = trimmed
	}
	trimmed = strings.TrimRight(s, " \t\r\n")
	if strings.ContainsRune(s[len(trimmed):], '\n') {
		s = trimmed
	}
	return s
}
