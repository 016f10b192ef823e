package resources

import "fmt"

const maxReprLength = 200

func toString(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// truncateRepr caps the representation at maxReprLength characters without
// splitting a multi-byte rune.
func truncateRepr(s string) string {
	count := 0
	for i := range s {
		if count == maxReprLength {
			return s[:i]
		}
		count++
	}
	return s
}
