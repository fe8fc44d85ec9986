// Package validation holds small conversion helpers shared by the bridge
// layer: pointer constructors for optional fields and tolerant date parsing.
package validation

import "time"

// StringPtr returns a pointer to s.
func StringPtr(s string) *string {
	return &s
}

// TimePtr returns a pointer to t.
func TimePtr(t time.Time) *time.Time {
	return &t
}

// BoolPtr returns a pointer to b.
func BoolPtr(b bool) *bool {
	return &b
}

// StringPtrValue dereferences s, returning "" for nil.
func StringPtrValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// StringPtrIfNotEmpty returns a pointer to s, or nil when s is empty.
func StringPtrIfNotEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// GetTimeOrEmpty dereferences t, returning the zero time for nil.
func GetTimeOrEmpty(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

// GetBoolOrFalse dereferences b, returning false for nil.
func GetBoolOrFalse(b *bool) bool {
	if b == nil {
		return false
	}
	return *b
}

// FormatTimePtrToString renders t as RFC 3339, returning "" for nil.
func FormatTimePtrToString(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}
