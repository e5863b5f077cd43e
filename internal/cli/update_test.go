package cli

import (
	"strings"
	"testing"

	"github.com/ccgo-build/ccgo/pkg/lockfile"
)

func lock(pkgs ...lockfile.Package) *lockfile.Lockfile {
	return &lockfile.Lockfile{Version: 1, Strategy: "first", Packages: pkgs}
}

func TestDiffLockfilesReportsChanges(t *testing.T) {
	old := lock(
		lockfile.Package{Name: "fmt", Version: "10.1.0", Source: "git+https://github.com/fmtlib/fmt.git?tag=10.1.0#aaa"},
		lockfile.Package{Name: "spdlog", Version: "1.12.0", Source: "git+https://github.com/gabime/spdlog.git?tag=v1.12.0#bbb"},
		lockfile.Package{Name: "zlib", Version: "1.3.0", Source: "git+https://github.com/madler/zlib.git?tag=v1.3#ccc"},
	)
	fresh := lock(
		lockfile.Package{Name: "fmt", Version: "10.2.1", Source: "git+https://github.com/fmtlib/fmt.git?tag=10.2.1#ddd"},
		lockfile.Package{Name: "spdlog", Version: "1.12.0", Source: "git+https://github.com/gabime/spdlog.git?tag=v1.12.0#bbb"},
		lockfile.Package{Name: "catch2", Version: "3.5.0", Source: "git+https://github.com/catchorg/Catch2.git?tag=v3.5.0#eee"},
	)

	changes := diffLockfiles(old, fresh, "")
	if len(changes) != 3 {
		t.Fatalf("expected 3 changes, got %d: %v", len(changes), changes)
	}
	joined := strings.Join(changes, "\n")
	for _, want := range []string{"~ fmt 10.1.0 -> 10.2.1", "+ catch2 3.5.0", "- zlib 1.3.0"} {
		if !strings.Contains(joined, want) {
			t.Errorf("missing change %q in %q", want, joined)
		}
	}
}

func TestDiffLockfilesTargetFilter(t *testing.T) {
	old := lock(
		lockfile.Package{Name: "fmt", Version: "10.1.0", Source: "s1"},
		lockfile.Package{Name: "zlib", Version: "1.2.0", Source: "s2"},
	)
	fresh := lock(
		lockfile.Package{Name: "fmt", Version: "10.2.1", Source: "s3"},
		lockfile.Package{Name: "zlib", Version: "1.3.0", Source: "s4"},
	)

	changes := diffLockfiles(old, fresh, "zlib")
	if len(changes) != 1 {
		t.Fatalf("expected 1 change, got %v", changes)
	}
	if !strings.Contains(changes[0], "zlib") {
		t.Errorf("change does not mention zlib: %q", changes[0])
	}
}

func TestDiffLockfilesNoOldLockfile(t *testing.T) {
	fresh := lock(lockfile.Package{Name: "fmt", Version: "10.2.1", Source: "s"})
	changes := diffLockfiles(nil, fresh, "")
	if len(changes) != 1 || !strings.HasPrefix(changes[0], "+ fmt") {
		t.Fatalf("expected single addition, got %v", changes)
	}
}

func TestDiffLockfilesSourceOnlyChange(t *testing.T) {
	old := lock(lockfile.Package{Name: "fmt", Version: "10.2.1", Source: "git+a#x"})
	fresh := lock(lockfile.Package{Name: "fmt", Version: "10.2.1", Source: "git+b#y"})
	changes := diffLockfiles(old, fresh, "")
	if len(changes) != 1 || !strings.Contains(changes[0], "source changed") {
		t.Fatalf("expected source change, got %v", changes)
	}
}
