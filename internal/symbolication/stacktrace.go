package symbolication

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/tracklight/tracklight/pkg/models"
)

// frameGrammar pairs a line pattern with named capture groups fn/file/line/col.
// Grammars are tried in order per line; the first match wins. Keeping this
// data-driven lets new browser formats be appended without new branching.
type frameGrammar struct {
	name    string
	pattern *regexp.Regexp
}

var frameGrammars = []frameGrammar{
	// Chrome/Edge with function:  at fn (http://host/file.js:10:120)
	{"chrome", regexp.MustCompile(`^\s*at\s+(?P<fn>[^\s].*?)\s*\((?P<file>.*?):(?P<line>\d+):(?P<col>\d+)\)\s*$`)},
	// Chrome/Edge without function:  at http://host/file.js:10:120
	{"chrome-anon", regexp.MustCompile(`^\s*at\s+(?P<file>.*?):(?P<line>\d+):(?P<col>\d+)\s*$`)},
	// Firefox/Safari:  fn@http://host/file.js:10:120 (function optional)
	{"firefox", regexp.MustCompile(`^(?P<fn>[^@]+)?@(?P<file>.*?):(?P<line>\d+):(?P<col>\d+)$`)},
	// Bare location:  http://host/file.js:10:120
	{"bare", regexp.MustCompile(`^(?P<file>.*?):(?P<line>\d+):(?P<col>\d+)$`)},
}

// ParseStackTrace splits raw stack text into frames. Lines matching none of
// the known grammars are silently dropped; a missing function name becomes
// "<anon>".
func ParseStackTrace(stack string) []models.Frame {
	var frames []models.Frame
	for _, line := range strings.Split(stack, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		for _, g := range frameGrammars {
			m := g.pattern.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			frames = append(frames, frameFromMatch(g.pattern, m))
			break
		}
	}
	return frames
}

func frameFromMatch(re *regexp.Regexp, match []string) models.Frame {
	frame := models.Frame{Function: "<anon>"}
	for i, name := range re.SubexpNames() {
		if i == 0 || i >= len(match) || match[i] == "" {
			continue
		}
		switch name {
		case "fn":
			frame.Function = strings.TrimSpace(match[i])
		case "file":
			frame.File = match[i]
		case "line":
			frame.Line, _ = strconv.Atoi(match[i])
		case "col":
			frame.Column, _ = strconv.Atoi(match[i])
		}
	}
	return frame
}
