package feedback

import "testing"

func TestHubRoutesByTenant(t *testing.T) {
	h := NewHub(1)
	north, cancelNorth := h.Subscribe("fac", "north")
	south, cancelSouth := h.Subscribe("fac", "south")
	defer cancelSouth()

	h.Notify(Event{Type: EventSubmitted, FacilityID: "fac", MessID: "north", RatingID: "r1"})
	select {
	case e := <-north:
		if e.RatingID != "r1" {
			t.Fatalf("unexpected event %+v", e)
		}
	default:
		t.Fatal("north subscriber missed the event")
	}
	select {
	case e := <-south:
		t.Fatalf("south subscriber received %+v", e)
	default:
	}

	// Buffer of one: the second event is dropped, not blocked on.
	h.Notify(Event{FacilityID: "fac", MessID: "north"})
	h.Notify(Event{FacilityID: "fac", MessID: "north"})
	if h.Dropped() != 1 {
		t.Fatalf("dropped = %d, want 1", h.Dropped())
	}

	cancelNorth()
	cancelNorth()
	if h.Subscribers() != 1 {
		t.Fatalf("subscribers = %d, want 1", h.Subscribers())
	}
	if _, ok := <-north; !ok {
		t.Fatal("expected buffered event before close")
	}
	if _, ok := <-north; ok {
		t.Fatal("channel should be closed after cancel")
	}
}
