package model

import "time"

// Palette is the set of presence colors handed out by the relay.
var Palette = []string{
	"#E63946", "#1D3557", "#2A9D8F", "#6A4C93", "#F4A261",
	"#264653", "#023047", "#8338EC", "#06D6A0", "#073B4C",
}

// ColorFor returns the palette color for a user.
func ColorFor(id UserID) string {
	n := int64(len(Palette))
	return Palette[((int64(id)%n)+n)%n]
}

// Activity is the last time a user was active in a file.
type Activity struct {
	UserID     UserID
	Path       string
	LastActive time.Time
}
