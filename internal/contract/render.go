package contract

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Render produces the canonical YAML body for a contract. Field order is
// fixed so re-rendering an unchanged contract is byte-stable, which keeps
// description diffs minimal when a single field is edited.
func Render(c *Contract) string {
	var b strings.Builder

	fmt.Fprintf(&b, "schema: %d\n", c.Schema)
	fmt.Fprintf(&b, "mode: %s\n", c.Mode)
	fmt.Fprintf(&b, "objective: %s\n", quote(c.Objective))
	writeList(&b, "non_goals", c.NonGoals)
	writeList(&b, "touch", c.Touch)
	writeList(&b, "acceptance", c.Acceptance)
	fmt.Fprintf(&b, "max_files: %d\n", c.MaxFiles)
	fmt.Fprintf(&b, "max_loc: %d\n", c.MaxLoc)
	fmt.Fprintf(&b, "pit_stop_after: %d\n", c.PitStopAfter)
	fmt.Fprintf(&b, "auto_followups: %t\n", c.AutoFollowups)

	for _, extra := range c.Extra {
		b.WriteString(renderExtra(extra))
	}

	return b.String()
}

// RenderBlock wraps the canonical body in the drift-contract fence.
func RenderBlock(c *Contract) string {
	return "```" + FenceInfo + "\n" + Render(c) + "```\n"
}

// ReplaceBlock swaps the first contract block in description for the
// rendered form of c, leaving all surrounding free text untouched. When no
// block exists the new block is prepended.
func ReplaceBlock(description string, c *Contract) string {
	block := RenderBlock(c)
	if fenceRE.MatchString(description) {
		replaced := false
		return fenceRE.ReplaceAllStringFunc(description, func(m string) string {
			if replaced {
				return m
			}
			replaced = true
			return strings.TrimSuffix(block, "\n")
		})
	}
	if strings.TrimSpace(description) != "" {
		return block + "\n" + description
	}
	return block
}

// quote renders a string as a double-quoted YAML scalar. Go's quoting rules
// are a compatible subset of YAML double-quote escapes, so parse(quote(s))
// yields s back.
func quote(s string) string {
	return strconv.Quote(s)
}

func writeList(b *strings.Builder, key string, items []string) {
	if len(items) == 0 {
		fmt.Fprintf(b, "%s: []\n", key)
		return
	}
	fmt.Fprintf(b, "%s:\n", key)
	for _, item := range items {
		fmt.Fprintf(b, "  - %s\n", quote(item))
	}
}

// renderExtra re-marshals an unknown key/value pair. yaml.Node retains the
// scalar style it was parsed with, so a second round-trip is byte-stable.
func renderExtra(extra ExtraField) string {
	doc := &yaml.Node{
		Kind: yaml.MappingNode,
		Content: []*yaml.Node{
			{Kind: yaml.ScalarNode, Value: extra.Key},
			extra.Node,
		},
	}
	out, err := yaml.Marshal(doc)
	if err != nil {
		// An unknown node that fails to marshal came from yaml.Unmarshal,
		// which cannot produce such a node; drop it rather than corrupt
		// the block.
		return ""
	}
	return string(out)
}
