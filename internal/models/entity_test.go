package models

import (
	"testing"
	"time"
)

func TestMetarefreshInterval(t *testing.T) {
	cases := []struct {
		freq MetarefreshFrequency
		want time.Duration
	}{
		{FreqNever, 0},
		{FreqDaily, 24 * time.Hour},
		{FreqWeekly, 7 * 24 * time.Hour},
		{FreqMonthly, 30 * 24 * time.Hour},
		{MetarefreshFrequency("bogus"), 0},
	}
	for _, c := range cases {
		if got := c.freq.Interval(); got != c.want {
			t.Errorf("Interval(%s) = %v, want %v", c.freq, got, c.want)
		}
	}
}

func TestMetadataNameIsStableUnderRename(t *testing.T) {
	e := Entity{ID: 42, Name: "idp"}
	before := e.MetadataName()
	e.Name = "renamed"
	if e.MetadataName() != before {
		t.Errorf("metadata name changed on rename: %s", e.MetadataName())
	}
	if before != "42" {
		t.Errorf("metadata name = %q, want 42", before)
	}
}

func TestDomainUsable(t *testing.T) {
	d := Domain{Name: "example.org", Owner: "alice", Team: []string{"bob"}, Validated: true}
	if !d.Usable("alice") {
		t.Error("owner should be able to use the domain")
	}
	if !d.Usable("bob") {
		t.Error("team member should be able to use the domain")
	}
	if d.Usable("mallory") {
		t.Error("stranger should not be able to use the domain")
	}

	d.Validated = false
	if d.Usable("alice") {
		t.Error("unvalidated domain should not be usable, even by the owner")
	}
}

func TestAuthorName(t *testing.T) {
	u := User{Username: "alice", FullName: "Alice Example"}
	if u.AuthorName() != "Alice Example" {
		t.Errorf("AuthorName = %q", u.AuthorName())
	}
	u.FullName = ""
	if u.AuthorName() != "alice" {
		t.Errorf("AuthorName = %q, want username fallback", u.AuthorName())
	}
}
