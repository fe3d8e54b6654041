package session

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// UserKeyCount is the size of the rotating global key set.
const UserKeyCount = 13

// KeySelector picks the index of the global key to use for this session.
type KeySelector func(keys []string, now time.Time) int

// DayOfYear rotates through the key set once per UTC day.
func DayOfYear(keys []string, now time.Time) int {
	if len(keys) == 0 {
		return 0
	}
	return (now.UTC().YearDay() - 1) % len(keys)
}

// SelectGlobalKey applies selector to keys and bounds-checks the result.
func SelectGlobalKey(keys []string, selector KeySelector, now time.Time) (string, error) {
	if len(keys) == 0 {
		return "", fmt.Errorf("%w: no keys", ErrUserKeyCount)
	}
	if selector == nil {
		selector = DayOfYear
	}
	idx := selector(keys, now)
	if idx < 0 || idx >= len(keys) {
		return "", fmt.Errorf("session: key selector returned index %d for %d keys", idx, len(keys))
	}
	return keys[idx], nil
}

// ExtractUserKeys normalizes the directory key field into an ordered list of
// exactly UserKeyCount non-blank strings. Maps are ordered by key, numerically
// when every key is an integer.
func ExtractUserKeys(raw any) ([]string, error) {
	var keys []string
	switch v := raw.(type) {
	case []string:
		keys = append(keys, v...)
	case []any:
		for i, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%w: element %d is %T", ErrUserKeyFormat, i, item)
			}
			keys = append(keys, s)
		}
	case map[string]string:
		for _, k := range orderedKeys(v) {
			keys = append(keys, v[k])
		}
	case map[string]any:
		for _, k := range orderedKeys(v) {
			s, ok := v[k].(string)
			if !ok {
				return nil, fmt.Errorf("%w: entry %q is %T", ErrUserKeyFormat, k, v[k])
			}
			keys = append(keys, s)
		}
	default:
		return nil, fmt.Errorf("%w: %T", ErrUserKeyFormat, raw)
	}
	if len(keys) != UserKeyCount {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrUserKeyCount, len(keys), UserKeyCount)
	}
	for i, k := range keys {
		if strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("%w: key %d is blank", ErrUserKeyFormat, i)
		}
	}
	return keys, nil
}

func orderedKeys[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	numeric := true
	for k := range m {
		names = append(names, k)
		if _, err := strconv.Atoi(k); err != nil {
			numeric = false
		}
	}
	if numeric {
		sort.Slice(names, func(i, j int) bool {
			a, _ := strconv.Atoi(names[i])
			b, _ := strconv.Atoi(names[j])
			return a < b
		})
		return names
	}
	sort.Strings(names)
	return names
}
