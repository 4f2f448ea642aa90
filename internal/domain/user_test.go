package domain

import (
	"errors"
	"testing"
)

func TestParseRole(t *testing.T) {
	for _, r := range Roles {
		got, err := ParseRole(string(r))
		if err != nil {
			t.Fatalf("ParseRole(%q) failed: %v", r, err)
		}
		if got != r {
			t.Fatalf("expected %q, got %q", r, got)
		}
	}

	for _, bad := range []string{"", "Admin", "root", "super_admin"} {
		if _, err := ParseRole(bad); !errors.Is(err, ErrInvalidRole) {
			t.Fatalf("ParseRole(%q): expected ErrInvalidRole, got %v", bad, err)
		}
	}
}

func TestCloneDoesNotAlias(t *testing.T) {
	partner := int64(3)
	u := &User{ID: 1, Username: "alice", PartnerID: &partner}

	c := u.Clone()
	*c.PartnerID = 9
	c.Username = "bob"

	if *u.PartnerID != 3 || u.Username != "alice" {
		t.Fatalf("clone shares state with original: %+v", u)
	}
	if (*User)(nil).Clone() != nil {
		t.Fatalf("expected nil clone of nil user")
	}
}
