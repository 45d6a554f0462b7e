package interact

import "github.com/kuitang/webact/internal/errs"

// Op names an interaction kind.
type Op string

const (
	OpClick          Op = "click"
	OpType           Op = "type"
	OpClearAndType   Op = "clear_and_type"
	OpSelect         Op = "select"
	OpScroll         Op = "scroll"
	OpWaitVisible    Op = "wait_visible"
	OpWaitHidden     Op = "wait_hidden"
	OpClickViaScript Op = "click_via_script"
	OpReadText       Op = "read_text"
	OpReadTable      Op = "read_table"
	OpScreenshot     Op = "screenshot"
	OpAssertEquals   Op = "assert_equals"
	OpAssertContains Op = "assert_contains"
	OpPageLoad       Op = "page_load"
)

// Outcome is the result of one interaction.
type Outcome struct {
	OK       bool
	Op       Op
	Name     string
	Message  string
	Evidence *Evidence
	// Err is a coded *errs.Error when OK is false.
	Err error
	// Escalated is true when the failure was pushed to a TestContext.
	Escalated bool
}

// Code returns the error code of a failed outcome, or "" on success.
func (o Outcome) Code() errs.Code {
	if o.OK {
		return ""
	}
	return errs.CodeOf(o.Err)
}

// Fataler is the subset of testing.TB used by Must.
type Fataler interface {
	Helper()
	Fatalf(format string, args ...any)
}

// Must stops the test when the outcome failed.
func (o Outcome) Must(t Fataler) {
	t.Helper()
	if !o.OK {
		t.Fatalf("%s", o.Message)
	}
}
