package agent

import (
	"fmt"
	"strings"
)

// CompareCallIDs orders call IDs ascending with digit runs compared numerically,
// so "call_2" sorts before "call_10".
func CompareCallIDs(a, b string) int {
	for a != "" && b != "" {
		if isDigit(a[0]) && isDigit(b[0]) {
			na, restA := splitDigits(a)
			nb, restB := splitDigits(b)
			trimmedA := strings.TrimLeft(na, "0")
			trimmedB := strings.TrimLeft(nb, "0")
			if len(trimmedA) != len(trimmedB) {
				if len(trimmedA) < len(trimmedB) {
					return -1
				}
				return 1
			}
			if c := strings.Compare(trimmedA, trimmedB); c != 0 {
				return c
			}
			if len(na) != len(nb) {
				if len(na) < len(nb) {
					return -1
				}
				return 1
			}
			a, b = restA, restB
			continue
		}
		if a[0] != b[0] {
			if a[0] < b[0] {
				return -1
			}
			return 1
		}
		a, b = a[1:], b[1:]
	}
	switch {
	case a == "" && b == "":
		return 0
	case a == "":
		return -1
	default:
		return 1
	}
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func splitDigits(s string) (string, string) {
	i := 0
	for i < len(s) && isDigit(s[i]) {
		i++
	}
	return s[:i], s[i:]
}

// assignCallIDs gives every call in one assistant turn an ID that is unique within the
// conversation. Provider IDs are kept when usable; blanks and repeats get call_<step>_<index>.
func assignCallIDs(calls []ToolCall, step int, seen map[string]struct{}) []ToolCall {
	out := make([]ToolCall, len(calls))
	for i := range calls {
		call := CloneToolCall(calls[i])
		id := strings.TrimSpace(call.ID)
		if _, dup := seen[id]; id == "" || dup {
			id = fmt.Sprintf("call_%d_%d", step, i)
			for suffix := 1; ; suffix++ {
				if _, taken := seen[id]; !taken {
					break
				}
				id = fmt.Sprintf("call_%d_%d_%d", step, i, suffix)
			}
		}
		call.ID = id
		seen[id] = struct{}{}
		out[i] = call
	}
	return out
}
