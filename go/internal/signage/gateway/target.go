package gateway

import "strings"

// Target selects the displays a command is addressed to. An empty list
// means every registered display.
type Target struct {
	DisplayIDs []string
}

// AllDisplays addresses every registered display.
func AllDisplays() Target {
	return Target{}
}

// Displays addresses the given public IDs.
func Displays(ids ...string) Target {
	return Target{DisplayIDs: ids}
}

// IsAll reports whether the target is fleet wide.
func (t Target) IsAll() bool {
	return len(t.DisplayIDs) == 0
}

// Includes reports whether publicID is addressed by t.
func (t Target) Includes(publicID string) bool {
	if t.IsAll() {
		return true
	}
	for _, id := range t.DisplayIDs {
		if id == publicID {
			return true
		}
	}
	return false
}

func (t Target) String() string {
	if t.IsAll() {
		return "all"
	}
	return strings.Join(t.DisplayIDs, ",")
}
