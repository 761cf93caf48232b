package vars

import "strings"

// StrToBool parses a flag or environment value. ok is false for anything it
// does not recognize.
func StrToBool(str string) (v bool, ok bool) {
	switch strings.ToLower(strings.TrimSpace(str)) {
	case "true", "t", "yes", "y", "on", "1":
		return true, true
	case "false", "f", "no", "n", "off", "0":
		return false, true
	}
	return false, false
}
