package ui

import "testing"

func TestDisableStyles(t *testing.T) {
	origAccent, origMuted, origBold, origAccentBold := Accent, Muted, Bold, AccentBold
	t.Cleanup(func() {
		Accent, Muted, Bold, AccentBold = origAccent, origMuted, origBold, origAccentBold
	})

	DisableStyles()
	for name, got := range map[string]string{
		"accent":      Accent.Render("ic50"),
		"muted":       Muted.Render("ic50"),
		"bold":        Bold.Render("ic50"),
		"accent bold": AccentBold.Render("ic50"),
	} {
		if got != "ic50" {
			t.Errorf("%s rendered %q, want plain text", name, got)
		}
	}
}
