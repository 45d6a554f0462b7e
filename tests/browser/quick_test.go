// Quick HTTP-based checks of the fixture site. These tests don't require Playwright.
package browser

import (
	"io"
	"net/http"
	"strings"
	"testing"
)

func TestQuick_FixturePageServes(t *testing.T) {
	env := SetupBrowserTestEnv(t)

	resp, err := http.Get(env.BaseURL + "/orders")
	if err != nil {
		t.Fatalf("Failed to get fixture page: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read body: %v", err)
	}
	for _, expected := range []string{`id="orders"`, `id="go"`, `id="spinner"`, `<select id="size">`} {
		if !strings.Contains(string(body), expected) {
			t.Errorf("%s not found in fixture page", expected)
		}
	}
}
