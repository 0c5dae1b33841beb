package models

import (
	"errors"
	"testing"
	"time"

	"github.com/mmdatafocus/lessons_backend/utils"
)

func sampleSnapshot() ContextSnapshot {
	agent := "Aye Chan"
	return ContextSnapshot{
		ServiceName:  "IGCSE Maths",
		Subjects:     []string{"algebra", "geometry"},
		SessionDate:  time.Date(2026, 5, 20, 14, 0, 0, 0, time.UTC),
		LocationMode: LocationModeOnline,
		TutorName:    "Daw Mya",
		ClientName:   "Ko Zaw",
		AgentName:    &agent,
	}
}

func TestContextSnapshotValidate(t *testing.T) {
	if err := sampleSnapshot().Validate(); err != nil {
		t.Fatalf("complete snapshot rejected: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*ContextSnapshot)
	}{
		{"missing service name", func(s *ContextSnapshot) { s.ServiceName = "" }},
		{"missing tutor name", func(s *ContextSnapshot) { s.TutorName = "" }},
		{"missing client name", func(s *ContextSnapshot) { s.ClientName = "" }},
		{"missing session date", func(s *ContextSnapshot) { s.SessionDate = time.Time{} }},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			s := sampleSnapshot()
			c.mutate(&s)
			if err := s.Validate(); !errors.Is(err, utils.ErrorInvariantViolation) {
				t.Errorf("got %v, want invariant violation", err)
			}
		})
	}

	// Agent name is optional.
	s := sampleSnapshot()
	s.AgentName = nil
	if err := s.Validate(); err != nil {
		t.Errorf("snapshot without agent rejected: %v", err)
	}
}

func TestContextSnapshotEqual(t *testing.T) {
	base := sampleSnapshot()
	if !base.Equal(sampleSnapshot()) {
		t.Fatal("identical snapshots compare unequal")
	}

	// Pointer identity must not matter, only the value.
	other := sampleSnapshot()
	otherAgent := *base.AgentName
	other.AgentName = &otherAgent
	if !base.Equal(other) {
		t.Error("equal agent names behind distinct pointers compare unequal")
	}

	cases := []struct {
		name   string
		mutate func(*ContextSnapshot)
	}{
		{"service name", func(s *ContextSnapshot) { s.ServiceName = "A-Level Maths" }},
		{"session date", func(s *ContextSnapshot) { s.SessionDate = s.SessionDate.Add(time.Hour) }},
		{"location mode", func(s *ContextSnapshot) { s.LocationMode = LocationModeInPerson }},
		{"tutor name", func(s *ContextSnapshot) { s.TutorName = "Daw Khin" }},
		{"client name", func(s *ContextSnapshot) { s.ClientName = "Ma Thida" }},
		{"agent nil vs set", func(s *ContextSnapshot) { s.AgentName = nil }},
		{"agent value", func(s *ContextSnapshot) { v := "Other Agent"; s.AgentName = &v }},
		{"subject count", func(s *ContextSnapshot) { s.Subjects = s.Subjects[:1] }},
		{"subject order", func(s *ContextSnapshot) { s.Subjects = []string{"geometry", "algebra"} }},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			s := sampleSnapshot()
			c.mutate(&s)
			if base.Equal(s) {
				t.Error("snapshots differing in " + c.name + " compare equal")
			}
		})
	}

	// Same wall-clock instant in a different zone is still the same session date.
	s := sampleSnapshot()
	s.SessionDate = s.SessionDate.In(time.FixedZone("MMT", 6*3600+1800))
	if !base.Equal(s) {
		t.Error("same instant in a different zone compares unequal")
	}
}
