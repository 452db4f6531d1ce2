package agent

import (
	"strings"

	"github.com/entrhq/browsary/pkg/dom"
)

// extract runs fragment through the DOM pipeline. Empty input or an empty
// tree yields dom.Empty rather than nil.
func (a *Agent) extract(fragment string) (dom.Node, error) {
	if strings.TrimSpace(fragment) == "" {
		return dom.Empty, nil
	}
	node, err := a.pipeline.Extract(fragment)
	if err != nil {
		return dom.Empty, err
	}
	if node == nil {
		return dom.Empty, nil
	}
	return *node, nil
}

// extractAll concatenates fragments in order and extracts them once.
func (a *Agent) extractAll(fragments []string) (dom.Node, error) {
	return a.extract(strings.Join(fragments, ""))
}
