package interact

import "context"

// TestContext receives escalated failures. *testing.T satisfies it; Errorf marks the test
// failed and lets it continue.
type TestContext interface {
	Helper()
	Errorf(format string, args ...any)
}

type testContextKey struct{}

// WithTest stores the test context that failures on ctx escalate to.
func WithTest(ctx context.Context, t TestContext) context.Context {
	return context.WithValue(ctx, testContextKey{}, t)
}

// TestFrom returns the test context stored by WithTest, or nil.
func TestFrom(ctx context.Context) TestContext {
	if ctx == nil {
		return nil
	}
	t, _ := ctx.Value(testContextKey{}).(TestContext)
	return t
}
