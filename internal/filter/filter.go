// Package filter decides which windows are adopted.
package filter

import "fmt"

// WindowInfo is what is known about a window when it is first seen.
// A nil field means the property could not be read.
type WindowInfo struct {
	Class *string
	PID   *uint32
}

func (i WindowInfo) String() string {
	class, pid := "<none>", "<none>"
	if i.Class != nil {
		class = *i.Class
	}
	if i.PID != nil {
		pid = fmt.Sprint(*i.PID)
	}
	return fmt.Sprintf("class=%s pid=%s", class, pid)
}

// Rule is a filter clause from configuration.
// A nil field on either the rule or the window matches anything.
type Rule struct {
	Class *string `json:"class,omitempty" yaml:"class,omitempty" toml:"class,omitempty"`
	PID   *uint32 `json:"pid,omitempty" yaml:"pid,omitempty" toml:"pid,omitempty"`
}

func (r Rule) Match(info WindowInfo) bool {
	if r.Class != nil && info.Class != nil && *r.Class != *info.Class {
		return false
	}
	if r.PID != nil && info.PID != nil && *r.PID != *info.PID {
		return false
	}
	return true
}

type Filter func(info WindowInfo) bool

// Any accepts a window matching at least one rule, or every window when there are no rules.
func Any(rules ...Rule) Filter {
	return func(info WindowInfo) bool {
		if len(rules) == 0 {
			return true
		}
		for _, r := range rules {
			if r.Match(info) {
				return true
			}
		}
		return false
	}
}

// All accepts a window accepted by every filter.
func All(filters ...Filter) Filter {
	return func(info WindowInfo) bool {
		for _, f := range filters {
			if !f(info) {
				return false
			}
		}
		return true
	}
}

// PID accepts only windows that report exactly pid.
// Unlike a Rule, a window without a pid is rejected.
func PID(pid uint32) Filter {
	return func(info WindowInfo) bool {
		return info.PID != nil && *info.PID == pid
	}
}

// Class returns a rule matching class.
func Class(class string) Rule {
	return Rule{Class: &class}
}
