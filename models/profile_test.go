package models

import "testing"

func TestResolveDisplayName(t *testing.T) {
	cases := []struct {
		name        string
		displayName string
		fullName    string
		firstName   string
		lastName    string
		email       string
		want        string
	}{
		{"display name wins", "TutorMya", "Mya Mya", "Mya", "Thwe", "mya@example.com", "TutorMya"},
		{"full name next", "", "Mya Mya", "Mya", "Thwe", "mya@example.com", "Mya Mya"},
		{"first and last joined", "", "", "Mya", "Thwe", "mya@example.com", "Mya Thwe"},
		{"first only", "", "", "Mya", "", "mya@example.com", "Mya"},
		{"last only", "", "", "", "Thwe", "mya@example.com", "Thwe"},
		{"email local part", "", "", "", "", "mya.thwe@example.com", "mya.thwe"},
		{"whitespace-only display name skipped", "   ", "Mya Mya", "", "", "", "Mya Mya"},
		{"names trimmed", "", "", "  Mya ", " Thwe ", "", "Mya Thwe"},
		{"malformed email returned as-is", "", "", "", "", "@example.com", "@example.com"},
		{"everything empty", "", "", "", "", "", ""},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := ResolveDisplayName(c.displayName, c.fullName, c.firstName, c.lastName, c.email)
			if got != c.want {
				t.Errorf("got %q, want %q", got, c.want)
			}
		})
	}
}
