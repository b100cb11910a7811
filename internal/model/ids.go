package model

import "fmt"

// MaxIDLen is the longest session, trace or agent id accepted on the API.
const MaxIDLen = 255

// ValidateID checks that an identifier taken from a URL path or query
// conforms to the allowed format. IDs must be 1-255 ASCII characters:
// alphanumeric, dots, hyphens, underscores, colons and @ signs. field names
// the parameter in the error message.
func ValidateID(field, id string) error {
	if len(id) == 0 {
		return fmt.Errorf("%s is required", field)
	}
	if len(id) > MaxIDLen {
		return fmt.Errorf("%s must be at most %d characters", field, MaxIDLen)
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		if (c < 'a' || c > 'z') && (c < 'A' || c > 'Z') && (c < '0' || c > '9') &&
			c != '.' && c != '-' && c != '_' && c != '@' && c != ':' {
			return fmt.Errorf("%s contains invalid character at position %d: %q", field, i, c)
		}
	}
	return nil
}
