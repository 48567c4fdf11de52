package serialmux

import (
	"strconv"
	"strings"
)

// tagPrefix marks the first token of a request or reply line. Lines from the
// device that do not start with it are unsolicited and go to subscribers.
const tagPrefix = "@"

func formatTag(n uint64) string {
	return tagPrefix + strconv.FormatUint(n, 10)
}

// SplitTag separates "@12 OK 5 6" into ("@12", "OK 5 6"). A tag must be the
// prefix followed by at least one digit. Devices answering a SerialMux use it
// to echo the tag of each request.
func SplitTag(line string) (tag, rest string, ok bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, tagPrefix) {
		return "", "", false
	}
	tag, rest, _ = strings.Cut(line, " ")
	digits := tag[len(tagPrefix):]
	if digits == "" {
		return "", "", false
	}
	if _, err := strconv.ParseUint(digits, 10, 64); err != nil {
		return "", "", false
	}
	return tag, strings.TrimSpace(rest), true
}
