package errors

import (
	"regexp"
	"strings"
	"unicode"
)

// maxNameLength bounds tensor names and op types.
const maxNameLength = 512

// ValidateTensorName validates a tensor name read from a graph document.
//
// The rules are intentionally conservative:
//   - No empty names
//   - No control characters or null bytes
//   - No leading or trailing whitespace
//   - Maximum length of 512 characters
//
// Any other character is allowed; runtimes use "/", ":" and "." freely.
func ValidateTensorName(name string) error {
	if name == "" {
		return New(ErrCodeInvalidTensorName, "tensor name cannot be empty")
	}
	if len(name) > maxNameLength {
		return New(ErrCodeInvalidTensorName, "tensor name too long (max %d characters)", maxNameLength)
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return New(ErrCodeInvalidTensorName, "tensor name %q contains control characters", name)
		}
	}
	if strings.TrimSpace(name) != name {
		return New(ErrCodeInvalidTensorName, "tensor name %q has surrounding whitespace", name)
	}
	return nil
}

// opTypeRegex matches operator type tags such as "Conv", "FC" or "SpatialBN".
var opTypeRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.]*$`)

// ValidateOpType validates an operator type tag.
func ValidateOpType(op string) error {
	if op == "" {
		return New(ErrCodeInvalidGraph, "operator type cannot be empty")
	}
	if len(op) > maxNameLength {
		return New(ErrCodeInvalidGraph, "operator type too long (max %d characters)", maxNameLength)
	}
	if !opTypeRegex.MatchString(op) {
		return New(ErrCodeInvalidGraph, "invalid operator type: %q", op)
	}
	return nil
}

// maxPathLength bounds file paths given on the command line or in config.
const maxPathLength = 4096

// ValidatePath validates a local file or directory path.
//
// Validation rules:
//   - Path cannot be empty
//   - Maximum length of 4096 characters
//   - No null bytes or control characters
//
// Absolute paths and ".." are allowed; netcut only writes where the user
// points it.
func ValidatePath(path string) error {
	if path == "" {
		return New(ErrCodeInvalidInput, "path cannot be empty")
	}
	if len(path) > maxPathLength {
		return New(ErrCodeInvalidInput, "path too long (max %d characters)", maxPathLength)
	}
	for _, r := range path {
		if unicode.IsControl(r) {
			return New(ErrCodeInvalidInput, "path %q contains control characters", path)
		}
	}
	return nil
}
