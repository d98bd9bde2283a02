package track

import (
	"regexp"
	"strings"
)

var titleNoisePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\[[^\]]*\]`),
	regexp.MustCompile(`\([^)]*\)`),
	regexp.MustCompile(`\{[^}]*\}`),
	regexp.MustCompile(`\s*\|.*$`),
	regexp.MustCompile(`(?i)\bofficial (music )?video\b`),
	regexp.MustCompile(`(?i)\bmusic video\b`),
	regexp.MustCompile(`(?i)\bofficial audio\b`),
	regexp.MustCompile(`(?i)\blyric video\b`),
	regexp.MustCompile(`(?i)\bvisualizer\b`),
	regexp.MustCompile(`(?i)\blyrics\b`),
	regexp.MustCompile(`(?i)\baudio\b`),
	regexp.MustCompile(`(?i)\b(hd|hq|4k)\b`),
	regexp.MustCompile(`["']`),
}

var (
	featuringSuffix = regexp.MustCompile(`(?i)\s*\b(ft|feat)\.?\s+.*$`)
	multiSpace      = regexp.MustCompile(`\s+`)
)

// CleanTitle strips a leading "<artist> - " prefix, bracketed annotations
// and common video-title noise from a search result title.
func CleanTitle(title, artist string) string {
	cleaned := title
	if artist != "" {
		prefix := regexp.MustCompile(`(?i)^` + regexp.QuoteMeta(artist) + `\s*-\s*`)
		cleaned = prefix.ReplaceAllString(cleaned, "")
	}
	for _, p := range titleNoisePatterns {
		cleaned = p.ReplaceAllString(cleaned, "")
	}
	cleaned = featuringSuffix.ReplaceAllString(cleaned, "")
	cleaned = multiSpace.ReplaceAllString(cleaned, " ")
	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" {
		return strings.TrimSpace(title)
	}
	return cleaned
}
