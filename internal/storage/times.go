package storage

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/stackvity/vfsim/internal/notify"
	"github.com/stackvity/vfsim/internal/platform"
)

// TimeOp names an operation whose effect on timestamps is configurable.
type TimeOp string

const (
	OpCreate      TimeOp = "create"
	OpRead        TimeOp = "read"
	OpWrite       TimeOp = "write"
	OpOpen        TimeOp = "open"
	OpClose       TimeOp = "close"
	OpSetLength   TimeOp = "setLength"
	OpAttributes  TimeOp = "attributes"
	OpChildChange TimeOp = "childChange"
	OpCopyTarget  TimeOp = "copyTarget"
	OpMoveTarget  TimeOp = "moveTarget"
)

var timeOps = []TimeOp{OpCreate, OpRead, OpWrite, OpOpen, OpClose, OpSetLength, OpAttributes, OpChildChange, OpCopyTarget, OpMoveTarget}

// TimeField is a set of container timestamps.
type TimeField int

const (
	CreationTime TimeField = 1 << iota
	LastAccessTime
	LastWriteTime

	AllTimes = CreationTime | LastAccessTime | LastWriteTime
)

var timeFieldNames = map[string]TimeField{
	"creation":   CreationTime,
	"lastaccess": LastAccessTime,
	"lastwrite":  LastWriteTime,
}

func (f TimeField) String() string {
	var names []string
	if f&CreationTime != 0 {
		names = append(names, "creation")
	}
	if f&LastAccessTime != 0 {
		names = append(names, "lastAccess")
	}
	if f&LastWriteTime != 0 {
		names = append(names, "lastWrite")
	}
	return strings.Join(names, "|")
}

// Filters maps the timestamp set to the change-attribute mask a watcher sees.
func (f TimeField) Filters() notify.Filters {
	var out notify.Filters
	if f&CreationTime != 0 {
		out |= notify.CreationTime
	}
	if f&LastAccessTime != 0 {
		out |= notify.LastAccess
	}
	if f&LastWriteTime != 0 {
		out |= notify.LastWrite
	}
	return out
}

// Times holds the three container timestamps.
type Times struct {
	Creation   time.Time
	LastAccess time.Time
	LastWrite  time.Time
}

func (t *Times) apply(fields TimeField, now time.Time) {
	if fields&CreationTime != 0 {
		t.Creation = now
	}
	if fields&LastAccessTime != 0 {
		t.LastAccess = now
	}
	if fields&LastWriteTime != 0 {
		t.LastWrite = now
	}
}

// TimeRules says which timestamps each operation advances.
type TimeRules map[TimeOp]TimeField

// DefaultTimeRules returns the observed behavior of the platform.
func DefaultTimeRules(mode platform.Mode) TimeRules {
	rules := TimeRules{
		OpCreate:     AllTimes,
		OpRead:       LastAccessTime,
		OpWrite:      LastWriteTime,
		OpSetLength:  LastWriteTime,
		OpCopyTarget: LastAccessTime | LastWriteTime,
	}
	if mode == platform.Windows {
		// CopyFile keeps the source's last-write time.
		rules[OpCopyTarget] = LastAccessTime
		rules[OpWrite] = LastWriteTime | LastAccessTime
		rules[OpSetLength] = LastWriteTime | LastAccessTime
		rules[OpChildChange] = LastWriteTime | LastAccessTime
	} else {
		rules[OpChildChange] = LastWriteTime
	}
	return rules
}

// Fields returns the timestamps op advances.
func (r TimeRules) Fields(op TimeOp) TimeField {
	return r[op]
}

// Clone returns an independent copy.
func (r TimeRules) Clone() TimeRules {
	out := make(TimeRules, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// ParseTimeRules overlays overrides ("write": ["lastWrite", "lastAccess"]) on
// base. An empty list clears the operation.
func ParseTimeRules(base TimeRules, overrides map[string][]string) (TimeRules, error) {
	out := base.Clone()
	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		op, ok := lookupTimeOp(key)
		if !ok {
			return nil, fmt.Errorf("unknown time rule operation %q", key)
		}
		var fields TimeField
		for _, name := range overrides[key] {
			f, ok := timeFieldNames[strings.ToLower(strings.TrimSpace(name))]
			if !ok {
				return nil, fmt.Errorf("unknown timestamp %q for operation %q", name, key)
			}
			fields |= f
		}
		out[op] = fields
	}
	return out, nil
}

func lookupTimeOp(name string) (TimeOp, bool) {
	for _, op := range timeOps {
		if strings.EqualFold(string(op), name) {
			return op, true
		}
	}
	return "", false
}
