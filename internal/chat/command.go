package chat

import (
	"strings"
	"unicode"
)

// Command is one parsed request line.
type Command struct {
	Name string // upper-cased keyword
	Args []string
}

// ParseCommand splits line into a keyword, a room and the rest of the
// line, so the text of MSG keeps its inner whitespace. Blank lines report
// ok == false.
func ParseCommand(line string) (cmd Command, ok bool) {
	fields := splitFields(line, 3)
	if len(fields) == 0 {
		return Command{}, false
	}
	return Command{Name: strings.ToUpper(fields[0]), Args: fields[1:]}, true
}

// splitFields splits s on runs of whitespace into at most n fields; the
// last field holds the remainder untouched apart from outer whitespace.
func splitFields(s string, n int) []string {
	var out []string
	s = strings.TrimSpace(s)
	for s != "" && len(out) < n-1 {
		i := strings.IndexFunc(s, unicode.IsSpace)
		if i < 0 {
			break
		}
		out = append(out, s[:i])
		s = strings.TrimLeftFunc(s[i:], unicode.IsSpace)
	}
	if s != "" {
		out = append(out, s)
	}
	return out
}

// parseNickname extracts the nickname from the handshake line, dropping
// an optional "NICK " prefix.
func parseNickname(line string) string {
	nick := strings.TrimSpace(line)
	if len(nick) >= 5 && strings.EqualFold(nick[:5], "NICK ") {
		nick = strings.TrimSpace(nick[5:])
	}
	return nick
}

func validName(name string, maxLen int) bool {
	if name == "" || len(name) > maxLen {
		return false
	}
	return strings.IndexFunc(name, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsControl(r)
	}) < 0
}
