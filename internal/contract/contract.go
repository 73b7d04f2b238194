// Package contract parses, validates, and renders the fenced drift-contract
// block embedded in a task description. The block declares what a task is
// allowed to do: its objective, forbidden additions, touchable file globs,
// and churn budgets. Contracts are parsed fresh on every check and never
// cached across checks.
package contract

import (
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// SupportedSchema is the contract schema version this build understands.
// A block declaring any other version fails parsing with ErrSchemaUnsupported.
const SupportedSchema = 1

// FenceInfo is the info string on the fenced contract block.
const FenceInfo = "drift-contract"

// Work modes a contract can declare.
const (
	ModeCore    = "core"
	ModeHarden  = "harden"
	ModePerf    = "perf"
	ModeExplore = "explore"
)

// Defaults applied by Default and for absent optional fields.
const (
	DefaultMaxFiles     = 25
	DefaultMaxLoc       = 800
	DefaultPitStopAfter = 3
)

// DefaultNonGoals is the non-goals list stamped into generated contracts.
var DefaultNonGoals = []string{
	"No fallbacks/retries/guardrails unless acceptance requires it",
}

var fenceRE = regexp.MustCompile("(?s)```" + FenceInfo + "[ \t]*\n(.*?)\n```")

// ExtraField is an unrecognized top-level key carried through round-trips
// so forward-compatible schema growth is not silently dropped.
type ExtraField struct {
	Key  string
	Node *yaml.Node
}

// Contract is the structured form of a drift-contract block.
type Contract struct {
	Schema        int
	Mode          string
	Objective     string
	NonGoals      []string
	Touch         []string
	Acceptance    []string
	MaxFiles      int
	MaxLoc        int
	PitStopAfter  int
	AutoFollowups bool

	// Extra holds unknown top-level keys in parse order.
	Extra []ExtraField
}

// Extract returns the body of the first contract block in description and
// the number of blocks found. A count of zero means no contract exists.
func Extract(description string) (body string, count int) {
	matches := fenceRE.FindAllStringSubmatch(description, -1)
	if len(matches) == 0 {
		return "", 0
	}
	return strings.TrimSpace(matches[0][1]), len(matches)
}

// ParseDescription locates the contract block in a task description and
// parses it. found is false when the description carries no block at all;
// in that case err is nil and callers typically fall back to Default.
func ParseDescription(description string) (c *Contract, found bool, err error) {
	body, count := Extract(description)
	if count == 0 {
		return nil, false, nil
	}
	if count > 1 {
		return nil, true, &ParseError{Err: ErrMultipleBlocks}
	}
	c, err = Parse(body)
	return c, true, err
}

// Parse turns a contract block body into a Contract. Unknown top-level keys
// are preserved in order; schema mismatch is a typed error, not a downgrade.
func Parse(body string) (*Contract, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(body), &doc); err != nil {
		return nil, &ParseError{Err: err}
	}
	if len(doc.Content) == 0 {
		return nil, &ParseError{Err: ErrNotMapping}
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, &ParseError{Err: ErrNotMapping}
	}

	c := &Contract{
		Schema:        SupportedSchema,
		Mode:          ModeCore,
		AutoFollowups: true,
	}
	sawSchema := false

	for i := 0; i+1 < len(root.Content); i += 2 {
		key := root.Content[i].Value
		val := root.Content[i+1]

		var err error
		switch key {
		case "schema":
			err = val.Decode(&c.Schema)
			sawSchema = true
		case "mode":
			err = val.Decode(&c.Mode)
		case "objective":
			err = val.Decode(&c.Objective)
		case "non_goals":
			err = val.Decode(&c.NonGoals)
		case "touch":
			err = val.Decode(&c.Touch)
		case "acceptance":
			err = val.Decode(&c.Acceptance)
		case "max_files":
			err = val.Decode(&c.MaxFiles)
		case "max_loc":
			err = val.Decode(&c.MaxLoc)
		case "pit_stop_after":
			err = val.Decode(&c.PitStopAfter)
		case "auto_followups":
			err = val.Decode(&c.AutoFollowups)
		default:
			c.Extra = append(c.Extra, ExtraField{Key: key, Node: val})
		}
		if err != nil {
			return nil, &ParseError{Err: fmt.Errorf("field %s: %w", key, err)}
		}
	}

	if !sawSchema || c.Schema != SupportedSchema {
		return nil, &ParseError{Err: fmt.Errorf("%w: got %d, want %d", ErrSchemaUnsupported, c.Schema, SupportedSchema)}
	}
	if err := c.validate(); err != nil {
		return nil, &ParseError{Err: err}
	}
	return c, nil
}

func (c *Contract) validate() error {
	switch c.Mode {
	case ModeCore, ModeHarden, ModePerf, ModeExplore:
	default:
		return fmt.Errorf("unknown mode %q", c.Mode)
	}
	if c.MaxFiles < 0 {
		return fmt.Errorf("max_files must be non-negative, got %d", c.MaxFiles)
	}
	if c.MaxLoc < 0 {
		return fmt.Errorf("max_loc must be non-negative, got %d", c.MaxLoc)
	}
	if c.PitStopAfter < 0 {
		return fmt.Errorf("pit_stop_after must not be negative, got %d", c.PitStopAfter)
	}
	return nil
}

// Default returns a contract with the stock budgets and non-goals, used when
// a task carries no contract block yet.
func Default(objective string, touch []string) *Contract {
	return &Contract{
		Schema:        SupportedSchema,
		Mode:          ModeCore,
		Objective:     objective,
		NonGoals:      append([]string(nil), DefaultNonGoals...),
		Touch:         append([]string(nil), touch...),
		Acceptance:    []string{},
		MaxFiles:      DefaultMaxFiles,
		MaxLoc:        DefaultMaxLoc,
		PitStopAfter:  DefaultPitStopAfter,
		AutoFollowups: true,
	}
}

// WithTouch returns a copy of the contract with the touch globs replaced.
// All other fields, including unknown keys, are carried unchanged.
func (c *Contract) WithTouch(globs []string) *Contract {
	out := *c
	out.Touch = append([]string(nil), globs...)
	return &out
}

// WithMode returns a copy of the contract with the mode replaced.
func (c *Contract) WithMode(mode string) *Contract {
	out := *c
	out.Mode = mode
	return &out
}
