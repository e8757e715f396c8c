package firmstore

import "testing"

func TestSlugify(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"simple", "Samsung", "samsung"},
		{"spaces", "Galaxy S Series", "galaxy-s-series"},
		{"punctuation runs", "Redmi Note 12 (Global)!", "redmi-note-12-global"},
		{"leading and trailing junk", "  --Pixel--  ", "pixel"},
		{"already slug", "galaxy-a54", "galaxy-a54"},
		{"unicode letters kept", "Poco X5 Pró", "poco-x5-pró"},
		{"empty", "", ""},
		{"only punctuation", "!!!", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Slugify(tc.in); got != tc.want {
				t.Errorf("Slugify(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestSlugify_Stable(t *testing.T) {
	// Equal names after normalization must produce equal ids; this is what
	// makes re-seeding idempotent.
	if Slugify("Galaxy S24") != Slugify("  galaxy s24 ") {
		t.Error("equivalent names produced different slugs")
	}
}

func TestSeriesID_NamespacedByBrand(t *testing.T) {
	a := SeriesID("samsung", "Note")
	b := SeriesID("xiaomi", "Note")
	if a == b {
		t.Errorf("series ids for different brands collided: %q", a)
	}
	if a != "samsung-note" {
		t.Errorf("SeriesID = %q, want samsung-note", a)
	}
}

func TestNewID_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewID()
		if id == "" {
			t.Fatal("NewID returned empty string")
		}
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
}
