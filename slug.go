package firmstore

import (
	"strings"
	"unicode"

	"github.com/google/uuid"
)

// Slugify derives a stable document id from a human-readable name.
// Lower-cases, trims, and maps every run of non-alphanumeric characters to a
// single hyphen, so equal names (after case/whitespace normalization) always
// produce equal ids. This is what makes seeding idempotent: the same logical
// name maps to the same id on every run.
func Slugify(name string) string {
	var b strings.Builder
	b.Grow(len(name))

	pendingHyphen := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingHyphen && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingHyphen = false
			b.WriteRune(r)
		} else {
			pendingHyphen = true
		}
	}

	return b.String()
}

// SeriesID derives a series id from its brand id and name, namespacing the
// slug so two brands can carry a series with the same display name.
func SeriesID(brandID, name string) string {
	return Slugify(brandID + " " + name)
}

// NewID generates a UUIDv7 (time-ordered) identifier for documents that have
// no natural name to slug (scrape jobs, generated reports).
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		// Fall back to UUIDv4 if NewV7 fails (extremely rare)
		id = uuid.New()
	}
	return id.String()
}
