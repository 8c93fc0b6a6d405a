package dailymenu

import "testing"

func TestTransitionTable(t *testing.T) {
	cases := []struct {
		from, to Status
		ok       bool
	}{
		{StatusDraft, StatusPublished, true},
		{StatusDraft, StatusActive, false},
		{StatusPublished, StatusActive, true},
		{StatusPublished, StatusPublished, false},
		{StatusActive, StatusCompleted, true},
		{StatusActive, StatusCancelled, true},
		{StatusDraft, StatusCancelled, true},
		{StatusCompleted, StatusCancelled, false},
		{StatusCancelled, StatusDraft, false},
	}
	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.ok {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.ok)
		}
	}
}

func TestParticipationRate(t *testing.T) {
	m := Menu{ExpectedStudents: 4}
	m.RatingStats.TotalRatings = 3
	m.RefreshParticipation()
	if m.ParticipationRate != 0.75 {
		t.Fatalf("participation = %v, want 0.75", m.ParticipationRate)
	}

	m.ExpectedStudents = 0
	m.RefreshParticipation()
	if m.ParticipationRate != 0 {
		t.Fatalf("participation with no expected students = %v, want 0", m.ParticipationRate)
	}
}

func TestFilterMatches(t *testing.T) {
	m := Menu{Date: "2024-01-10", MealType: "lunch", FacilityID: "f1", MessID: "m1", Status: StatusPublished}
	if !(Filter{FacilityID: "f1", From: "2024-01-01", To: "2024-01-31"}).Matches(m) {
		t.Fatal("expected range match")
	}
	if (Filter{Statuses: []Status{StatusDraft}}).Matches(m) {
		t.Fatal("status filter should exclude published menu")
	}
	if (Filter{To: "2024-01-09"}).Matches(m) {
		t.Fatal("date upper bound should exclude")
	}
}

func TestPlannedCost(t *testing.T) {
	m := Menu{Items: []Entry{{PlannedQuantity: 10, CostPerServing: 12.5}, {PlannedQuantity: 4, CostPerServing: 5}}}
	if got := m.PlannedCost(); got != 145 {
		t.Fatalf("planned cost = %v, want 145", got)
	}
}
