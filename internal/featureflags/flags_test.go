package featureflags

import "testing"

func TestEnabled(t *testing.T) {
	cases := map[string]bool{"true": true, "1": true, "YES": true, " on ": true, "false": false, "": false, "enabled": false}
	for v, want := range cases {
		s := FromMap(map[string]string{"FLAG_REGISTRATION": v})
		if got := s.Enabled(Registration); got != want {
			t.Fatalf("FLAG_REGISTRATION=%q: expected %v, got %v", v, want, got)
		}
	}
}

func TestEnabledFromEnv(t *testing.T) {
	t.Setenv("FLAG_REGISTRATION", "true")
	if !Enabled(Registration) {
		t.Fatalf("expected flag from environment")
	}
	var s *Set
	if s.Enabled(Registration) {
		t.Fatalf("nil set must report every flag off")
	}
}
