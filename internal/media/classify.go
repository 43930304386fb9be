package media

import "strings"

// ErrorCategory groups framework errors for logs and metrics.
type ErrorCategory string

const (
	CategoryNegotiation ErrorCategory = "negotiation"
	CategoryCodec       ErrorCategory = "codec"
	CategoryResource    ErrorCategory = "resource"
	CategoryUnknown     ErrorCategory = "unknown"
)

var categoryKeywords = []struct {
	category ErrorCategory
	keywords []string
}{
	// Checked in order. File paths in resource errors often carry a codec
	// extension, so resource is tested before codec.
	{CategoryNegotiation, []string{"not-negotiated", "not negotiated", "negotiation", "caps", "format"}},
	{CategoryResource, []string{"not found", "no such file", "could not open", "could not write", "permission", "no space", "resource", "read error", "write error"}},
	{CategoryCodec, []string{"codec", "decode", "encode", "h264", "jpeg", "png", "missing plugin", "no element"}},
}

// Classify assigns a category from the error message and debug string.
func Classify(message, debug string) ErrorCategory {
	combined := strings.ToLower(message + " " + debug)
	for _, c := range categoryKeywords {
		for _, kw := range c.keywords {
			if strings.Contains(combined, kw) {
				return c.category
			}
		}
	}
	return CategoryUnknown
}
