package rules

import (
	"fmt"
	"strings"
)

// Category is the closed set of node types the catalog knows how to evaluate.
type Category string

const (
	CategoryPump  Category = "pump"
	CategoryTank  Category = "tank"
	CategoryTap   Category = "tap"
	CategoryValve Category = "valve"
)

// ParseCategory maps a config/wire string to a Category. Matching is
// case-insensitive; "quality" is accepted as an alias for tap nodes.
func ParseCategory(s string) (Category, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pump":
		return CategoryPump, nil
	case "tank":
		return CategoryTank, nil
	case "tap", "quality":
		return CategoryTap, nil
	case "valve":
		return CategoryValve, nil
	default:
		return "", fmt.Errorf("rules: unknown category %q: want pump|tank|tap|valve", s)
	}
}

// Status is a node's aggregate health. Values are ordered: OK < WARNING < CRITICAL.
type Status int

const (
	StatusOK Status = iota
	StatusWarning
	StatusCritical
)

func (s Status) String() string {
	switch s {
	case StatusWarning:
		return "WARNING"
	case StatusCritical:
		return "CRITICAL"
	default:
		return "OK"
	}
}

// Raise returns the more severe of s and other.
func (s Status) Raise(other Status) Status {
	if other > s {
		return other
	}
	return s
}

// MarshalText encodes the status by name so JSON payloads carry "OK" etc.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a status name.
func (s *Status) UnmarshalText(b []byte) error {
	switch strings.ToUpper(string(b)) {
	case "OK":
		*s = StatusOK
	case "WARNING":
		*s = StatusWarning
	case "CRITICAL":
		*s = StatusCritical
	default:
		return fmt.Errorf("rules: unknown status %q", b)
	}
	return nil
}

// Severity ranks a single finding. Values are ordered: low < medium < high.
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
)

func (s Severity) String() string {
	switch s {
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	default:
		return "low"
	}
}

// Status is the node status a finding of this severity implies.
func (s Severity) Status() Status {
	switch s {
	case SeverityHigh:
		return StatusCritical
	case SeverityMedium:
		return StatusWarning
	default:
		return StatusOK
	}
}

func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Severity) UnmarshalText(b []byte) error {
	switch strings.ToLower(string(b)) {
	case "low":
		*s = SeverityLow
	case "medium":
		*s = SeverityMedium
	case "high":
		*s = SeverityHigh
	default:
		return fmt.Errorf("rules: unknown severity %q", b)
	}
	return nil
}

// Kind tags what a finding is about. Downstream consumers filter alerts by it.
type Kind string

const (
	KindLeak    Kind = "leak"
	KindDryRun  Kind = "dry_run"
	KindQuality Kind = "quality"
	KindTank    Kind = "tank"
	KindPump    Kind = "pump"
	KindGeneric Kind = "generic"
)

// Finding is the output of one triggered rule.
type Finding struct {
	Kind     Kind
	Severity Severity
	Message  string
}

// Snapshot is the full set of latest metric values for one node.
type Snapshot map[string]float64

// Lookup returns the value for key and whether the node has ever reported it.
func (s Snapshot) Lookup(key string) (float64, bool) {
	v, ok := s[key]
	return v, ok
}

// Value returns the value for key, or def if the node has never reported it.
func (s Snapshot) Value(key string, def float64) float64 {
	if v, ok := s[key]; ok {
		return v
	}
	return def
}
