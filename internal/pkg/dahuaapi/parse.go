package dahuaapi

import (
	"strconv"
	"strings"
)

// ParseResponse turns a key=value body into a flat map.  Lines are split on
// the first '=' only; a line with no '=' maps to itself.
func ParseResponse(body string) map[string]string {
	result := make(map[string]string)

	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if idx := strings.Index(line, "="); idx >= 0 {
			result[strings.TrimSpace(line[:idx])] = strings.TrimSpace(line[idx+1:])
		} else {
			result[line] = line
		}
	}

	return result
}

func isOK(result map[string]string) bool {
	_, ok := result["OK"]
	return ok
}

// StreamName gives the display name of a stream index: Main, Sub, Sub_2...
func StreamName(index int) string {
	switch index {
	case 0:
		return "Main"
	case 1:
		return "Sub"
	}
	return "Sub_" + strconv.Itoa(index)
}

func boolString(b bool) string {
	return strconv.FormatBool(b)
}
