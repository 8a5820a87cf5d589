package inodes

import "testing"

func TestGitIgnoreStackLiteralMatch(t *testing.T) {
	s := NewGitIgnoreStack().Push("", "build\n*.log\n")
	if !s.IsIgnored("build") {
		t.Fatalf("expected build to be ignored")
	}
	if !s.IsIgnored("debug.log") {
		t.Fatalf("expected *.log to match debug.log")
	}
	if s.IsIgnored("keep.txt") {
		t.Fatalf("keep.txt should not be ignored")
	}
}

func TestGitIgnoreStackDirOnly(t *testing.T) {
	s := NewGitIgnoreStack().Push("", "out/\n")
	if !s.IsIgnored("out") {
		t.Fatalf("dir-only pattern should still match the bare name")
	}
}

func TestGitIgnoreStackNegationWithinLayer(t *testing.T) {
	s := NewGitIgnoreStack().Push("", "*.log\n!keep.log\n")
	if s.IsIgnored("keep.log") {
		t.Fatalf("negated pattern should un-ignore keep.log")
	}
	if !s.IsIgnored("debug.log") {
		t.Fatalf("debug.log should still be ignored")
	}
}

func TestGitIgnoreStackNearestLayerWins(t *testing.T) {
	root := NewGitIgnoreStack().Push("", "*.tmp\n")
	nested := root.Push("sub", "!scratch.tmp\n")

	if nested.IsIgnored("sub/scratch.tmp") {
		t.Fatalf("deeper layer's negation should override the ancestor's ignore rule")
	}
	if !nested.IsIgnored("sub/other.tmp") {
		t.Fatalf("ancestor rule should still apply when the deeper layer has no opinion")
	}
	if !root.IsIgnored("top.tmp") {
		t.Fatalf("root layer alone should still ignore top-level matches")
	}
}

func TestGitIgnoreStackPushDoesNotMutateParent(t *testing.T) {
	root := NewGitIgnoreStack().Push("", "*.tmp\n")
	_ = root.Push("sub", "*.keep\n")

	if root.IsIgnored("sub/file.keep") {
		t.Fatalf("pushing a child layer must not affect the parent stack")
	}
}

func TestGitIgnoreStackGlobstar(t *testing.T) {
	s := NewGitIgnoreStack().Push("", "**/vendor\n")
	if !s.IsIgnored("a/b/vendor") {
		t.Fatalf("globstar pattern should match vendor at any depth")
	}
}

func TestIsHidden(t *testing.T) {
	for _, name := range []string{".eden", ".hg", ".git"} {
		if !isHidden(name) {
			t.Fatalf("%q should be hidden", name)
		}
	}
	if isHidden("visible.txt") {
		t.Fatalf("visible.txt should not be hidden")
	}
}
