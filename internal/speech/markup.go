package speech

import (
	"fmt"
	"html"
	"regexp"
	"strings"
)

var tagPattern = regexp.MustCompile(`<[^>]*>`)

// IsSSML checks if the text contains SSML tags
func IsSSML(text string) bool {
	trimmed := strings.TrimSpace(text)
	return strings.HasPrefix(trimmed, "<speak") ||
		strings.Contains(trimmed, "<prosody") ||
		strings.Contains(trimmed, "<break") ||
		strings.Contains(trimmed, "<emphasis")
}

// WrapSSML escapes plain text and wraps it in a <speak> document.
// Speed and pitch other than the defaults become a <prosody> element.
func WrapSSML(text string, speed, pitch float64) string {
	body := html.EscapeString(strings.TrimSpace(text))

	var attrs []string
	if speed > 0 && speed != 1.0 {
		attrs = append(attrs, fmt.Sprintf(`rate="%d%%"`, int(clampSpeed(speed)*100+0.5)))
	}
	if pitch != 0 {
		attrs = append(attrs, fmt.Sprintf(`pitch="%+.1fst"`, clampPitch(pitch)))
	}
	if len(attrs) > 0 {
		body = fmt.Sprintf("<prosody %s>%s</prosody>", strings.Join(attrs, " "), body)
	}
	return "<speak>" + body + "</speak>"
}

// StripSSML removes markup so the content can be sent to text-only backends
func StripSSML(text string) string {
	stripped := tagPattern.ReplaceAllString(text, " ")
	stripped = html.UnescapeString(stripped)
	return strings.Join(strings.Fields(stripped), " ")
}

// HasSpeakableText reports whether content leaves any text to speak once
// markup is removed
func HasSpeakableText(content string, markup bool) bool {
	if markup || IsSSML(content) {
		return StripSSML(content) != ""
	}
	return strings.TrimSpace(content) != ""
}

// plainText returns the request content as text for backends without SSML support
func plainText(req Request) string {
	if req.IsMarkup || IsSSML(req.Content) {
		return StripSSML(req.Content)
	}
	return strings.TrimSpace(req.Content)
}
