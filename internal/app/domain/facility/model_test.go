package facility

import "testing"

func TestSlugAndMessID(t *testing.T) {
	if got := Slug("  SJ Hall / North "); got != "sj-hall-north" {
		t.Fatalf("Slug = %q", got)
	}
	if got := MessID("SJ Hall", "SJ Mess", "a1b2"); got != "sj-hall_sj-mess_a1b2" {
		t.Fatalf("MessID = %q", got)
	}
}

func TestMessNameTaken(t *testing.T) {
	f := Facility{Messes: []Mess{
		{MessID: "m1", Name: "SJ Mess", IsActive: true},
		{MessID: "m2", Name: "Old Mess", IsActive: false},
	}}

	if !f.MessNameTaken("sj mess", "") {
		t.Fatal("case-insensitive collision with active mess should be taken")
	}
	if f.MessNameTaken("SJ Mess", "m1") {
		t.Fatal("excluded mess must not collide with itself")
	}
	if f.MessNameTaken("old mess", "") {
		t.Fatal("inactive messes must not block reuse")
	}
}

func TestApplyPatchOverwritesDefinedFields(t *testing.T) {
	m := Mess{Name: "A", Capacity: 100, IsActive: true}
	name, off := " B ", false
	m.Apply(MessPatch{Name: &name, IsActive: &off})
	if m.Name != "B" || m.IsActive || m.Capacity != 100 {
		t.Fatalf("unexpected mess after patch: %+v", m)
	}
}
