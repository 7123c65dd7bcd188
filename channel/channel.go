// Package channel extracts canonical YouTube channel identifiers (UC + 22 chars)
// from free-form input such as channel URLs or raw ids.
package channel

import (
	"regexp"
)

// IDLength is the fixed length of a canonical channel id.
const IDLength = 24

var (
	// The id must stand alone: a neighbouring identifier character means the
	// token has the wrong length and is not a channel id.
	embeddedIDPattern = regexp.MustCompile(`(?:^|[^\w-])(UC[\w-]{22})(?:$|[^\w-])`)
	exactIDPattern    = regexp.MustCompile(`^UC[\w-]{22}$`)
)

// ExtractChannelID returns the first canonical channel id found in s.
func ExtractChannelID(s string) (string, bool) {
	m := embeddedIDPattern.FindStringSubmatch(s)
	if len(m) != 2 {
		return "", false
	}
	return m[1], true
}

// IsChannelID reports whether s is exactly a canonical channel id.
func IsChannelID(s string) bool {
	return exactIDPattern.MatchString(s)
}

// ChannelURL returns the canonical channel page URL for id.
func ChannelURL(id string) string {
	return "https://www.youtube.com/channel/" + id
}
