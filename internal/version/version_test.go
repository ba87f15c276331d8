package version

import (
	"strings"
	"testing"
)

func TestInfo(t *testing.T) {
	v, c, d := Info()
	if v == "" || c == "" || d == "" {
		t.Fatalf("build info must not be empty: %q %q %q", v, c, d)
	}
}

func TestGetMatchesInfo(t *testing.T) {
	v, c, d := Info()
	build := Get()
	if build.Version != v || build.Commit != c || build.Date != d {
		t.Fatalf("Get() = %+v, want %s/%s/%s", build, v, c, d)
	}
	if GetVersion() != v || GetCommit() != c || GetDate() != d {
		t.Fatal("accessors must match Info")
	}
}

func TestString(t *testing.T) {
	s := String()
	for _, part := range []string{"storefront", "version=", "commit=", "date="} {
		if !strings.Contains(s, part) {
			t.Errorf("String() = %q, should contain %q", s, part)
		}
	}
}
