package models

import (
	"fmt"
	"strings"
)

// TenantConfig is the per-team configuration record. A missing record is
// valid and means the team has not been configured yet.
type TenantConfig struct {
	GenerationAPIKey    string     `json:"reve_api_key,omitempty" dynamodbav:"reve_api_key,omitempty"`
	PlatformAccessToken string     `json:"slack_oauth_token,omitempty" dynamodbav:"slack_oauth_token,omitempty"`
	Resolution          Resolution `json:"resolution,omitempty" dynamodbav:"resolution,omitempty"`
	Style               Style      `json:"style,omitempty" dynamodbav:"style,omitempty"`
}

// Resolution is the requested output size of a generated image
type Resolution string

// Resolution constants
const (
	ResolutionSquare    Resolution = "1024x1024"
	ResolutionSmall     Resolution = "512x512"
	ResolutionLandscape Resolution = "1280x768"
	ResolutionPortrait  Resolution = "768x1280"
)

// Resolutions lists the supported resolutions, default first
var Resolutions = []Resolution{ResolutionSquare, ResolutionSmall, ResolutionLandscape, ResolutionPortrait}

// ParseResolution validates s; an empty string yields the default
func ParseResolution(s string) (Resolution, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return ResolutionSquare, nil
	}
	for _, r := range Resolutions {
		if string(r) == s {
			return r, nil
		}
	}
	return "", fmt.Errorf("unsupported resolution %q", s)
}

// OrDefault returns the default resolution when r is unset
func (r Resolution) OrDefault() Resolution {
	if r == "" {
		return ResolutionSquare
	}
	return r
}

// Dimensions returns width and height in pixels
func (r Resolution) Dimensions() (int, int) {
	var w, h int
	if _, err := fmt.Sscanf(string(r.OrDefault()), "%dx%d", &w, &h); err != nil {
		return 1024, 1024
	}
	return w, h
}

// Style is a visual style hint applied to the prompt
type Style string

// Style constants
const (
	StyleAuto         Style = "auto"
	StylePhoto        Style = "photo"
	StyleIllustration Style = "illustration"
	StyleAnime        Style = "anime"
	StylePainting     Style = "painting"
)

// Styles lists the supported styles, default first
var Styles = []Style{StyleAuto, StylePhoto, StyleIllustration, StyleAnime, StylePainting}

var styleModifiers = map[Style]string{
	StylePhoto:        "photorealistic photograph",
	StyleIllustration: "digital illustration",
	StyleAnime:        "anime style",
	StylePainting:     "oil painting",
}

// ParseStyle validates s; an empty string yields the default
func ParseStyle(s string) (Style, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return StyleAuto, nil
	}
	for _, st := range Styles {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("unsupported style %q", s)
}

// OrDefault returns the default style when s is unset
func (s Style) OrDefault() Style {
	if s == "" {
		return StyleAuto
	}
	return s
}

// Apply appends the style modifier to prompt. StyleAuto leaves it untouched.
func (s Style) Apply(prompt string) string {
	mod, ok := styleModifiers[s]
	if !ok {
		return prompt
	}
	return prompt + ", " + mod
}

// MaskSecret hides all but the last four characters of a secret
func MaskSecret(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 4 {
		return "****"
	}
	return strings.Repeat("*", 8) + secret[len(secret)-4:]
}
