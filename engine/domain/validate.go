package domain

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Injection patterns: query-language and prompt-template fragments that never
// belong in a question about a road.
var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(DROP|DELETE|INSERT|UPDATE|ALTER|EXEC|UNION)\b.*\b(TABLE|FROM|INTO|SELECT|SET)\b`),
	regexp.MustCompile(`(?i)(--|;)\s*(DROP|DELETE|SELECT)`),
	regexp.MustCompile(`(?i)\$\{.*\}`),
	regexp.MustCompile(`(?i)\{\s*"\$[a-z]+"\s*:`),
	regexp.MustCompile(`(?i)ignore (all )?(previous|prior) instructions`),
}

const (
	minQuestionLength = 3
	maxQuestionLength = 2000
)

// ValidateQuestion validates a user question before it reaches the resolver.
func ValidateQuestion(q Question) error {
	text := strings.TrimSpace(q.Text)

	n := utf8.RuneCountInString(text)
	if n < minQuestionLength {
		return NewValidationError("text", text, ErrQuestionTooShort)
	}
	if n > maxQuestionLength {
		return NewValidationError("text", text[:64], ErrQuestionTooLong)
	}

	for _, pat := range injectionPatterns {
		if pat.MatchString(text) {
			return NewValidationError("text", text, ErrQuestionInjection)
		}
	}
	return nil
}

// ValidateRecord checks a discovered record before it is mirrored or
// announced.
func ValidateRecord(r RoadVersionRecord) error {
	switch {
	case strings.TrimSpace(r.Road) == "":
		return NewValidationError("road", r.Road, ErrInvalidRecord)
	case strings.TrimSpace(r.Version) == "":
		return NewValidationError("version", r.Version, ErrInvalidRecord)
	case r.Path == "":
		return NewValidationError("path", r.Path, ErrInvalidRecord)
	}
	return nil
}
