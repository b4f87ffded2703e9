package catalog

import (
	"strings"
	"testing"
)

// #region vocabulary-tests

func TestPermitted(t *testing.T) {
	cases := []struct {
		name string
		want bool
	}{
		{"Kuka Robot KR125", true},
		{"kuka robot kr125 2", true},
		{"Welding Table 1", true},
		{"Guarding", true},
		{"Robot", false},
		{"Table", false},
		{"Forklift", false},
	}
	for _, c := range cases {
		if got := Permitted(c.name); got != c.want {
			t.Errorf("Permitted(%q) = %v, want %v", c.name, got, c.want)
		}
	}
}

func TestKnownAcceptsGenericTypes(t *testing.T) {
	for _, name := range []string{"Robot", "Table 2", "ABB Robot"} {
		if !Known(name) {
			t.Errorf("Known(%q) = false, want true", name)
		}
	}
	if Known("Forklift") {
		t.Error("Known(Forklift) = true, want false")
	}
}

func TestResolveLongestMatch(t *testing.T) {
	got, ok := Resolve("the kuka robot kr350 2")
	if !ok || got != "Kuka Robot KR350" {
		t.Fatalf("Resolve = %q, %v", got, ok)
	}
	got, ok = Resolve("a welding table")
	if !ok || got != "Welding Table" {
		t.Fatalf("Resolve = %q, %v", got, ok)
	}
	if _, ok := Resolve("a crate"); ok {
		t.Fatal("expected no match")
	}
}

func TestBaseName(t *testing.T) {
	if got := BaseName("Cabinet 12"); got != "Cabinet" {
		t.Errorf("BaseName = %q", got)
	}
	if got := BaseName("Kuka Robot KR125"); got != "Kuka Robot KR125" {
		t.Errorf("BaseName = %q", got)
	}
}

func TestListsAreCopies(t *testing.T) {
	items := ItemList()
	items[0] = "Mutated"
	if ItemList()[0] != "Robot" {
		t.Fatal("ItemList exposed package state")
	}
	perms := PermissionList()
	perms[0] = "Mutated"
	if PermissionList()[0] != "Kuka Robot KR125" {
		t.Fatal("PermissionList exposed package state")
	}
}

// #endregion vocabulary-tests

// #region rule-table-tests

func TestBannedTokensWordBoundaries(t *testing.T) {
	find := func(name string) BannedToken {
		for _, b := range BannedTokens() {
			if b.Name == name {
				return b
			}
		}
		t.Fatalf("no banned token %q", name)
		return BannedToken{}
	}
	not := find("not")
	if !not.Pattern.MatchString("the robot is not here") {
		t.Error("standalone not should match")
	}
	if not.Pattern.MatchString("notably the robot") {
		t.Error("notably should not match")
	}
	east := find("east")
	if east.Pattern.MatchString("at least two robots") {
		t.Error("least should not match east")
	}
}

func TestPreambleShape(t *testing.T) {
	lines := strings.Split(Preamble, "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 preamble lines, got %d", len(lines))
	}
	if lines[0] != RootDecl {
		t.Errorf("preamble must open with root decl, got %q", lines[0])
	}
	if !strings.Contains(PlacementSnippet, RotationCall) {
		t.Error("placement snippet must use the rotation call")
	}
}

func TestIsZeroLiteral(t *testing.T) {
	for _, s := range []string{"0", "0.0", "0m", "0mm", "0.0mm"} {
		if !IsZeroLiteral(s) {
			t.Errorf("IsZeroLiteral(%q) = false", s)
		}
	}
	if IsZeroLiteral("5") {
		t.Error("IsZeroLiteral(5) = true")
	}
}

// #endregion rule-table-tests
