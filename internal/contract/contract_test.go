package contract

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestParseDescription_Basic(t *testing.T) {
	desc := "intro text\n\n```drift-contract\nschema: 1\nmode: core\nobjective: \"ship the parser\"\ntouch:\n  - \"src/**\"\nmax_files: 10\nmax_loc: 200\n```\n\ntrailing notes\n"

	c, found, err := ParseDescription(desc)
	if err != nil {
		t.Fatalf("ParseDescription() error = %v", err)
	}
	if !found {
		t.Fatal("found = false, want true")
	}
	if c.Mode != ModeCore {
		t.Errorf("Mode = %q, want core", c.Mode)
	}
	if c.Objective != "ship the parser" {
		t.Errorf("Objective = %q", c.Objective)
	}
	if len(c.Touch) != 1 || c.Touch[0] != "src/**" {
		t.Errorf("Touch = %v, want [src/**]", c.Touch)
	}
	if c.MaxFiles != 10 || c.MaxLoc != 200 {
		t.Errorf("budgets = %d/%d, want 10/200", c.MaxFiles, c.MaxLoc)
	}
	if !c.AutoFollowups {
		t.Error("AutoFollowups = false, want default true")
	}
}

func TestParseDescription_NoBlock(t *testing.T) {
	c, found, err := ParseDescription("just some prose, no contract here")
	if err != nil {
		t.Fatalf("ParseDescription() error = %v", err)
	}
	if found {
		t.Error("found = true, want false")
	}
	if c != nil {
		t.Errorf("contract = %+v, want nil", c)
	}
}

func TestParseDescription_MultipleBlocks(t *testing.T) {
	block := "```drift-contract\nschema: 1\n```\n"
	_, found, err := ParseDescription(block + "\nmiddle\n" + block)
	if !found {
		t.Fatal("found = false, want true")
	}
	if !errors.Is(err, ErrMultipleBlocks) {
		t.Fatalf("err = %v, want ErrMultipleBlocks", err)
	}
}

func TestParse_SchemaMismatch(t *testing.T) {
	_, err := Parse("schema: 2\nmode: core\n")
	if !errors.Is(err, ErrSchemaUnsupported) {
		t.Fatalf("err = %v, want ErrSchemaUnsupported", err)
	}
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("err = %T, want *ParseError", err)
	}
}

func TestParse_SchemaRequired(t *testing.T) {
	_, err := Parse("mode: core\n")
	if !errors.Is(err, ErrSchemaUnsupported) {
		t.Fatalf("err = %v, want ErrSchemaUnsupported", err)
	}
}

func TestParse_UnknownMode(t *testing.T) {
	_, err := Parse("schema: 1\nmode: yolo\n")
	if err == nil {
		t.Fatal("err = nil, want parse error for unknown mode")
	}
}

func TestParse_NotMapping(t *testing.T) {
	_, err := Parse("- just\n- a\n- list\n")
	if !errors.Is(err, ErrNotMapping) {
		t.Fatalf("err = %v, want ErrNotMapping", err)
	}
}

func TestRenderParse_RoundTrip(t *testing.T) {
	c := Default("tighten the scanner", []string{"src/**", "docs/*.md"})
	first := Render(c)

	parsed, err := Parse(first)
	if err != nil {
		t.Fatalf("Parse(Render()) error = %v", err)
	}
	second := Render(parsed)
	if first != second {
		t.Errorf("round-trip not stable:\nfirst:\n%s\nsecond:\n%s", first, second)
	}

	ignoreExtra := cmpopts.IgnoreFields(Contract{}, "Extra")
	if diff := cmp.Diff(c, parsed, ignoreExtra); diff != "" {
		t.Errorf("contract changed across round-trip (-want +got):\n%s", diff)
	}
}

func TestRoundTrip_PreservesUnknownKeys(t *testing.T) {
	body := "schema: 1\nmode: core\nreview_after: \"2026-09-01\"\n"
	c, err := Parse(body)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(c.Extra) != 1 || c.Extra[0].Key != "review_after" {
		t.Fatalf("Extra = %v, want the review_after key preserved", c.Extra)
	}

	rendered := Render(c)
	if !strings.Contains(rendered, "review_after:") {
		t.Errorf("rendered block dropped unknown key:\n%s", rendered)
	}

	// A second round-trip must be byte-stable.
	c2, err := Parse(rendered)
	if err != nil {
		t.Fatalf("Parse(rendered) error = %v", err)
	}
	if again := Render(c2); again != rendered {
		t.Errorf("unknown-key round-trip not stable:\nfirst:\n%s\nsecond:\n%s", rendered, again)
	}
}

func TestReplaceBlock_PreservesSurroundingText(t *testing.T) {
	c := Default("objective one", nil)
	desc := "header prose\n\n" + RenderBlock(c) + "\nfooter prose\n"

	edited := c.WithTouch([]string{"pkg/**"})
	out := ReplaceBlock(desc, edited)

	if !strings.Contains(out, "header prose") || !strings.Contains(out, "footer prose") {
		t.Errorf("surrounding text lost:\n%s", out)
	}
	parsed, found, err := ParseDescription(out)
	if err != nil || !found {
		t.Fatalf("ParseDescription(out) = %v, found=%v", err, found)
	}
	if len(parsed.Touch) != 1 || parsed.Touch[0] != "pkg/**" {
		t.Errorf("Touch = %v, want [pkg/**]", parsed.Touch)
	}
}

func TestReplaceBlock_PrependsWhenMissing(t *testing.T) {
	out := ReplaceBlock("only prose", Default("x", nil))
	if !strings.HasPrefix(out, "```"+FenceInfo) {
		t.Errorf("block not prepended:\n%s", out)
	}
	if !strings.Contains(out, "only prose") {
		t.Errorf("original prose lost:\n%s", out)
	}
}

func TestReplaceBlock_OnlyFirstBlockReplaced(t *testing.T) {
	a := RenderBlock(Default("a", nil))
	// The second fence is inside free text and must survive verbatim.
	desc := a + "\nsee also:\n" + a
	out := ReplaceBlock(desc, Default("b", nil))
	if got := strings.Count(out, "```"+FenceInfo); got != 2 {
		t.Errorf("fence count = %d, want 2", got)
	}
	if !strings.Contains(out, quote("b")) {
		t.Errorf("first block not replaced:\n%s", out)
	}
	if !strings.Contains(out, quote("a")) {
		t.Errorf("second block not preserved:\n%s", out)
	}
}

func TestWithTouch_DoesNotMutateReceiver(t *testing.T) {
	c := Default("x", []string{"src/**"})
	c2 := c.WithTouch([]string{"pkg/**"})
	if c.Touch[0] != "src/**" {
		t.Errorf("receiver mutated: Touch = %v", c.Touch)
	}
	if c2.Touch[0] != "pkg/**" {
		t.Errorf("copy not updated: Touch = %v", c2.Touch)
	}
}
