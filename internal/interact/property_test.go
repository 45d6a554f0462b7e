package interact

import (
	"context"
	"testing"
	"time"

	"pgregory.net/rapid"
)

func testReadTableText_FlattensNonEmptyCells(t *rapid.T) {
	rows := rapid.SliceOfN(
		rapid.SliceOfN(rapid.SampledFrom([]string{"", "a", "b", "total", "42", " "}), 0, 5),
		0, 6,
	).Draw(t, "rows")

	var want []string
	for _, row := range rows {
		for _, cell := range row {
			if cell != "" {
				want = append(want, cell)
			}
		}
	}

	hn := newHarness()
	got, o := hn.h.ReadTableText(context.Background(), tableOf(rows), "Grid")
	if !o.OK {
		t.Fatalf("table read failed: %v", o.Err)
	}
	if len(got) != len(want) {
		t.Fatalf("got %q want %q", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("cell %d: got %q want %q", i, got[i], want[i])
		}
	}
	if len(hn.reporter.entries) != 1 {
		t.Fatalf("expected one report entry, got %d", len(hn.reporter.entries))
	}
}

func TestReadTableText_FlattensNonEmptyCells(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testReadTableText_FlattensNonEmptyCells)
}

// Every operation, whatever the element state, records exactly one entry and escalates
// only on reported failures.
func testOperations_ExactlyOneOutcome(t *rapid.T) {
	hn := newHarness()
	el := newVisible(rapid.SampledFrom([]string{"", "hello", "hello world"}).Draw(t, "text"))
	el.visible = rapid.Bool().Draw(t, "visible")
	el.enabled = rapid.Bool().Draw(t, "enabled")
	el.options = []string{"one"}
	if rapid.Bool().Draw(t, "shotFails") {
		hn.session.shotErr = context.Canceled
	}
	ctx := context.Background()

	ops := []func() Outcome{
		func() Outcome { return hn.h.Click(ctx, el, "Button") },
		func() Outcome { return hn.h.Type(ctx, el, "Field", "x") },
		func() Outcome { return hn.h.ClearAndType(ctx, el, "Field", "x") },
		func() Outcome { return hn.h.SelectByText(ctx, el, "Menu", "one") },
		func() Outcome { return hn.h.ScrollIntoView(ctx, el, "Section") },
		func() Outcome { return hn.h.WaitVisible(ctx, el, "Panel", time.Millisecond) },
		func() Outcome { return hn.h.WaitHidden(ctx, el, "Panel", time.Millisecond) },
		func() Outcome { return hn.h.ClickViaScript(ctx, el, "Link") },
		func() Outcome { _, o := hn.h.ReadText(ctx, el, "Label"); return o },
		func() Outcome { _, o := hn.h.ReadTableText(ctx, el, "Table"); return o },
		func() Outcome { _, o := hn.h.CaptureScreenshot(ctx, "shot"); return o },
		func() Outcome { return hn.h.AssertEquals(ctx, "hello", "hello") },
		func() Outcome { return hn.h.AssertContains(ctx, el, "Label", "hello") },
	}
	op := rapid.IntRange(0, len(ops)-1).Draw(t, "op")
	o := ops[op]()

	if len(hn.reporter.entries) != 1 {
		t.Fatalf("op %s produced %d report entries", o.Op, len(hn.reporter.entries))
	}
	e := hn.reporter.entries[0]
	if e.pass != o.OK {
		t.Fatalf("op %s: report pass=%v but outcome ok=%v", o.Op, e.pass, o.OK)
	}
	if o.OK && len(hn.t.errors) != 0 {
		t.Fatalf("op %s escalated a success", o.Op)
	}
	if !o.OK && o.Op != OpScreenshot && len(hn.t.errors) != 1 {
		t.Fatalf("op %s failure escalated %d times", o.Op, len(hn.t.errors))
	}
	if !o.OK && o.Err == nil {
		t.Fatalf("op %s failed without an error", o.Op)
	}
}

func TestOperations_ExactlyOneOutcome(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testOperations_ExactlyOneOutcome)
}
