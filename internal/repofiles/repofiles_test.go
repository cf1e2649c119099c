package repofiles

import "testing"

func preloaded(files ...string) *Cache {
	c := NewCache("/nonexistent")
	c.files = files
	c.loaded = true
	return c
}

func TestFilterMatchesPattern(t *testing.T) {
	c := preloaded("main.go", "main_test.go", "README.md", "cmd/run.go")

	got := c.Filter(`\.go$`)
	want := []string{"main.go", "main_test.go", "cmd/run.go"}
	if len(got) != len(want) {
		t.Fatalf("Filter = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Filter = %v, want %v", got, want)
		}
	}
}

func TestFilterEmptyPatternReturnsAll(t *testing.T) {
	c := preloaded("a", "b")
	if got := c.Filter("  "); len(got) != 2 {
		t.Fatalf("Filter = %v, want all files", got)
	}
}

func TestFilterBadPatternDegradesToAll(t *testing.T) {
	c := preloaded("a", "b", "c")
	got := c.Filter("[unclosed")
	if len(got) != 3 {
		t.Fatalf("bad pattern returned %v, want all files", got)
	}
}

func TestInvalidateReloads(t *testing.T) {
	c := preloaded("a")
	c.Invalidate()
	// Reload against a non-repo dir degrades to empty, not a panic.
	if got := c.Files(); len(got) != 0 {
		t.Fatalf("Files after invalidate = %v, want empty", got)
	}
}

func TestFilesReturnsCopy(t *testing.T) {
	c := preloaded("a", "b")
	got := c.Files()
	got[0] = "mutated"
	if c.Files()[0] != "a" {
		t.Fatal("Files must return a copy")
	}
}
