package imagegen

import (
	"regexp"
	"unicode/utf8"
)

const (
	filenamePrefix = "reve"
	filenameExt    = ".jpg"
	maxSlugLength  = 60
	maxTitleLength = 64
)

var nonAlphanumeric = regexp.MustCompile(`[^a-zA-Z0-9]`)

// Filename derives the upload filename from the prompt
func Filename(prompt string) string {
	slug := nonAlphanumeric.ReplaceAllString(prompt, "")
	if len(slug) > maxSlugLength {
		slug = slug[:maxSlugLength]
	}
	return filenamePrefix + slug + filenameExt
}

// Title truncates the prompt to 64 characters, marking truncation with "..."
func Title(prompt string) string {
	if utf8.RuneCountInString(prompt) <= maxTitleLength {
		return prompt
	}
	return string([]rune(prompt)[:maxTitleLength]) + "..."
}
