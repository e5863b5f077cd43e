package semver

import "testing"

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		want Version
	}{
		{"1.2.3", Version{Major: 1, Minor: 2, Patch: 3}},
		{"0.0.1", Version{Patch: 1}},
		{"10.2.1", Version{Major: 10, Minor: 2, Patch: 1}},
		{"1.2.3-alpha.1", Version{Major: 1, Minor: 2, Patch: 3, Pre: "alpha.1"}},
		{"1.2.3+build.5", Version{Major: 1, Minor: 2, Patch: 3, Build: "build.5"}},
		{"1.2.3-rc.1+sha.abc", Version{Major: 1, Minor: 2, Patch: 3, Pre: "rc.1", Build: "sha.abc"}},
	}
	for _, tt := range tests {
		got, err := Parse(tt.in)
		if err != nil {
			t.Errorf("Parse(%q) error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Parse(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}

func TestParseErrors(t *testing.T) {
	for _, in := range []string{"", "1", "1.2", "1.2.3.4", "a.b.c", "1.02.3", "-1.2.3", "1.2.3-", "1.2.3+"} {
		if _, err := Parse(in); err == nil {
			t.Errorf("Parse(%q) should fail", in)
		}
	}
}

func TestParseTag(t *testing.T) {
	v, ok := ParseTag("v1.2.3")
	if !ok || v.String() != "1.2.3" {
		t.Errorf("ParseTag(v1.2.3) = %v, %v", v, ok)
	}
	if _, ok := ParseTag("release-1.2"); ok {
		t.Error("ParseTag should reject non-semver tags")
	}
}

func TestCompare(t *testing.T) {
	ordered := []string{
		"0.9.9",
		"1.0.0-alpha",
		"1.0.0-alpha.1",
		"1.0.0-alpha.beta",
		"1.0.0-beta",
		"1.0.0-beta.2",
		"1.0.0-beta.11",
		"1.0.0-rc.1",
		"1.0.0",
		"1.0.1",
		"1.1.0",
		"2.0.0",
	}
	for i := 0; i < len(ordered)-1; i++ {
		a, _ := Parse(ordered[i])
		b, _ := Parse(ordered[i+1])
		if Compare(a, b) >= 0 {
			t.Errorf("expected %s < %s", ordered[i], ordered[i+1])
		}
		if Compare(b, a) <= 0 {
			t.Errorf("expected %s > %s", ordered[i+1], ordered[i])
		}
	}
}

func TestBuildMetadataIgnored(t *testing.T) {
	a, _ := Parse("1.2.3+linux")
	b, _ := Parse("1.2.3+darwin")
	if !a.Equal(b) {
		t.Error("versions differing only in build metadata must compare equal")
	}
}

func TestString(t *testing.T) {
	for _, s := range []string{"1.2.3", "1.2.3-rc.1", "1.2.3+meta", "1.2.3-rc.1+meta"} {
		v, err := Parse(s)
		if err != nil {
			t.Fatalf("Parse(%q): %v", s, err)
		}
		if v.String() != s {
			t.Errorf("round-trip %q -> %q", s, v.String())
		}
	}
}
