package templatecontext

import (
	"github.com/telekom/issuemail/pkg/config"
)

// LookAndFeel carries branding used by the HTML templates.
type LookAndFeel struct {
	BrandingName string
	LogoURL      string
	HeaderColour string
	LinkColour   string
}

func NewLookAndFeel(f config.Frontend) LookAndFeel {
	lf := LookAndFeel{
		BrandingName: f.BrandingName,
		LogoURL:      f.LogoURL,
		HeaderColour: f.HeaderColour,
		LinkColour:   f.LinkColour,
	}
	if lf.HeaderColour == "" {
		lf.HeaderColour = "#205081"
	}
	if lf.LinkColour == "" {
		lf.LinkColour = "#3b73af"
	}
	return lf
}
