package extraction

import (
	"reflect"
)

// MergePayloads folds per-chunk extraction results into one payload,
// deterministically: lists union in first-seen order with deep-equality
// de-duplication, nested maps fill only fields still missing, and for
// scalars the first non-empty value wins.
func MergePayloads(payloads []map[string]any) map[string]any {
	merged := map[string]any{}
	for _, payload := range payloads {
		for key, value := range payload {
			existing, ok := merged[key]
			if !ok {
				merged[key] = value
				continue
			}
			merged[key] = mergeValues(existing, value)
		}
	}
	return merged
}

func mergeValues(existing, incoming any) any {
	if existingList, ok := existing.([]any); ok {
		if incomingList, ok := incoming.([]any); ok {
			return unionLists(existingList, incomingList)
		}
	}

	if existingMap, ok := existing.(map[string]any); ok {
		if incomingMap, ok := incoming.(map[string]any); ok {
			return fillMissing(existingMap, incomingMap)
		}
	}

	// scalars and mismatched shapes: first non-empty wins
	if isEmpty(existing) {
		return incoming
	}
	return existing
}

func unionLists(existing, incoming []any) []any {
	result := append([]any(nil), existing...)
	for _, candidate := range incoming {
		found := false
		for _, present := range result {
			if reflect.DeepEqual(present, candidate) {
				found = true
				break
			}
		}
		if !found {
			result = append(result, candidate)
		}
	}
	return result
}

// fillMissing returns a new map holding existing plus any incoming fields
// whose current value is missing or empty, one level deep. The inputs are
// never written to: merged values alias the source payloads.
func fillMissing(existing, incoming map[string]any) map[string]any {
	result := make(map[string]any, len(existing))
	for key, value := range existing {
		result[key] = value
	}
	for key, value := range incoming {
		current, ok := result[key]
		if !ok || isEmpty(current) {
			result[key] = value
		}
	}
	return result
}

func isEmpty(value any) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return v == ""
	case []any:
		return len(v) == 0
	default:
		return false
	}
}
