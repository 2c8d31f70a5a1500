package llm

import "strings"

// Selector narrows the chunk list before extraction. Returning nil means
// "no opinion": the caller keeps the full list.
type Selector interface {
	Select(chunks []string, contextHints []string) []string
}

// KeywordSelector keeps chunks mentioning at least one hint,
// order-preserving. With no hints, or when nothing matches, it has no
// opinion rather than dropping everything.
type KeywordSelector struct{}

// Make sure we conform to Selector interface
var _ Selector = (*KeywordSelector)(nil)

func (s *KeywordSelector) Select(chunks []string, contextHints []string) []string {
	if len(contextHints) == 0 {
		return nil
	}

	var selected []string
	for _, chunk := range chunks {
		lowered := strings.ToLower(chunk)
		for _, hint := range contextHints {
			if strings.Contains(lowered, strings.ToLower(hint)) {
				selected = append(selected, chunk)
				break
			}
		}
	}

	if len(selected) == 0 {
		return nil
	}
	return selected
}
