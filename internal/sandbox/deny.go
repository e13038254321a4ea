package sandbox

import (
	"strings"
)

// denyList holds substrings that must not appear in a code-mode instruction.
var denyList = []string{
	"sqlite3",
	"DROP TABLE",
	"DELETE FROM",
	"rm -rf /",
	"rm -rf ~",
	"chmod 777",
	"curl | sh",
	"wget | sh",
	"curl | bash",
	"wget | bash",
	"| sh",
	"| bash",
	"eval $(",
	"> /dev/sd",
	"mkfs.",
	":(){ :|:& };:",
}

// Blocked reports the first denied fragment found in text, case-insensitively.
func Blocked(text string) (string, bool) {
	lower := strings.ToLower(strings.TrimSpace(text))
	for _, deny := range denyList {
		if strings.Contains(lower, strings.ToLower(deny)) {
			return deny, true
		}
	}
	return "", false
}
