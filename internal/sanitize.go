package internal

import "strings"

// SanitizeString removes line breaks from user controlled input before it is logged
func SanitizeString(input string) string {
	input = strings.ReplaceAll(input, "\n", "")
	input = strings.ReplaceAll(input, "\r", "")
	return input
}
