package classify

import "testing"

// TestClassifyScenarioS1 exercises the literal S1 scenario from spec §8.
func TestClassifyScenarioS1(t *testing.T) {
	c := New("/w", "")

	cases := []struct {
		path string
		want Kind
	}{
		{"/w", WorkdirPath},
		{"/w/a.txt", WorkdirPath},
		{"/w/.git", DotGit},
		{"/w/.gitignore", WorkdirPath},
		{"/w/.git/HEAD", InsideDotGit},
		{"/w/.git/.fsmonitor-daemon-X", InsideDotGitWithCookiePrefix},
		{"/other/x", OutsideCone},
	}

	for _, tc := range cases {
		kind, _ := c.Classify(tc.path)
		if kind != tc.want {
			t.Errorf("Classify(%q) = %v, want %v", tc.path, kind, tc.want)
		}
	}
}

func TestClassifyWorkdirRelativePath(t *testing.T) {
	c := New("/w", "")

	_, rel := c.Classify("/w/src/main.go")
	if rel != "src/main.go" {
		t.Errorf("rel = %q, want %q", rel, "src/main.go")
	}
}

func TestClassifyAccidentalPrefix(t *testing.T) {
	c := New("/w", "")

	// "/work" has "/w" as a string prefix but is a different directory.
	kind, _ := c.Classify("/work/file.txt")
	if kind != OutsideCone {
		t.Errorf("Classify(/work/file.txt) = %v, want OutsideCone", kind)
	}
}

func TestClassifySeparateGitDir(t *testing.T) {
	c := New("/w", "/elsewhere/gitdir")

	cases := []struct {
		path string
		want Kind
	}{
		{"/w/a.txt", WorkdirPath},
		{"/elsewhere/gitdir", GitDir},
		{"/elsewhere/gitdir/HEAD", InsideGitDir},
		{"/elsewhere/gitdir/.fsmonitor-daemon-Y", InsideGitDirWithCookiePrefix},
		{"/nowhere", OutsideCone},
	}

	for _, tc := range cases {
		kind, _ := c.Classify(tc.path)
		if kind != tc.want {
			t.Errorf("Classify(%q) = %v, want %v", tc.path, kind, tc.want)
		}
	}
}

func TestClassifyDotGitFileNotDir(t *testing.T) {
	c := New("/w", "")

	// A regular file named ".gitfoo" is WORKDIR_PATH, not metadata.
	kind, rel := c.Classify("/w/.gitfoo")
	if kind != WorkdirPath {
		t.Errorf("Classify(/w/.gitfoo) = %v, want WorkdirPath", kind)
	}
	if rel != ".gitfoo" {
		t.Errorf("rel = %q, want %q", rel, ".gitfoo")
	}
}
