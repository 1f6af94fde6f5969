package shipment

import (
	"errors"
	"testing"
)

func TestParseStatus(t *testing.T) {
	for _, s := range Statuses() {
		parsed, err := ParseStatus(string(s))
		if err != nil {
			t.Fatalf("ParseStatus(%q): %v", s, err)
		}
		if parsed != s {
			t.Fatalf("ParseStatus(%q) = %q", s, parsed)
		}
	}

	_, err := ParseStatus("Lost")
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("error = %v, want ErrValidation", err)
	}
	// Parsing is exact, not case-insensitive.
	if _, err := ParseStatus("created"); err == nil {
		t.Fatal("ParseStatus accepted lowercase variant")
	}
}

func TestNext(t *testing.T) {
	cases := []struct {
		from Status
		want Status
		ok   bool
	}{
		{StatusCreated, StatusInTransit, true},
		{StatusInTransit, StatusOutForDelivery, true},
		{StatusOutForDelivery, StatusDelivered, true},
		{StatusDelivered, "", false},
		{Status("Lost"), "", false},
	}
	for _, tc := range cases {
		got, ok := tc.from.Next()
		if got != tc.want || ok != tc.ok {
			t.Errorf("%q.Next() = (%q, %v), want (%q, %v)", tc.from, got, ok, tc.want, tc.ok)
		}
	}
}

func TestCanAdvanceTo(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		{StatusCreated, StatusInTransit, true},
		{StatusCreated, StatusDelivered, true}, // skipping forward is legal
		{StatusInTransit, StatusCreated, false},
		{StatusInTransit, StatusInTransit, false},
		{StatusDelivered, StatusDelivered, false},
		{Status("Lost"), StatusDelivered, false},
		{StatusCreated, Status("Lost"), false},
	}
	for _, tc := range cases {
		if got := tc.from.CanAdvanceTo(tc.to); got != tc.want {
			t.Errorf("%q.CanAdvanceTo(%q) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestTerminal(t *testing.T) {
	if StatusCreated.Terminal() || StatusInTransit.Terminal() || StatusOutForDelivery.Terminal() {
		t.Fatal("non-terminal status reports terminal")
	}
	if !StatusDelivered.Terminal() {
		t.Fatal("Delivered is not terminal")
	}
}
