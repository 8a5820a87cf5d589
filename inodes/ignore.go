package inodes

import (
	"path/filepath"
	"regexp"
	"strings"
)

// ignorePattern is one parsed line of a .gitignore file, adapted from the
// gitignore-subset parser used elsewhere in the example pack: negation
// ("!pattern") and glob translation including "**" globstar segments. A
// trailing "/" is stripped and recorded in dirOnly, but matches does not
// tell files from directories, so "pattern/" also matches a file.
type ignorePattern struct {
	negated  bool
	dirOnly  bool
	hasSlash bool
	literal  string
	regex    *regexp.Regexp
}

func parseIgnoreLine(line string) *ignorePattern {
	line = strings.TrimRight(line, " \t")
	if line == "" || strings.HasPrefix(line, "#") {
		return nil
	}

	p := &ignorePattern{}
	if strings.HasPrefix(line, "!") {
		p.negated = true
		line = line[1:]
	}
	if strings.HasSuffix(line, "/") {
		p.dirOnly = true
		line = strings.TrimRight(line, "/")
	}
	p.hasSlash = strings.Contains(line, "/")

	if strings.ContainsAny(line, "*?[") {
		p.regex = regexp.MustCompile(globToRegex(line))
	} else {
		p.literal = line
	}
	return p
}

func (p *ignorePattern) matches(relPath string) bool {
	target := relPath
	if !p.hasSlash {
		target = filepath.Base(relPath)
	}
	if p.regex != nil {
		return p.regex.MatchString(target)
	}
	return target == p.literal
}

// globToRegex translates a single gitignore glob segment into an anchored
// regular expression: "*" matches within one path segment, "**/" matches
// zero or more whole segments, "?" matches one non-slash character.
func globToRegex(pattern string) string {
	var b strings.Builder
	b.WriteString("^")
	for i := 0; i < len(pattern); i++ {
		ch := pattern[i]
		switch {
		case ch == '*' && i+1 < len(pattern) && pattern[i+1] == '*':
			if i+2 < len(pattern) && pattern[i+2] == '/' {
				b.WriteString("(?:.*/)?")
				i += 2
			} else {
				b.WriteString(".*")
				i++
			}
		case ch == '*':
			b.WriteString("[^/]*")
		case ch == '?':
			b.WriteString("[^/]")
		case strings.ContainsRune(`.+()|[]{}^$\`, rune(ch)):
			b.WriteByte('\\')
			b.WriteByte(ch)
		default:
			b.WriteByte(ch)
		}
	}
	b.WriteString("$")
	return b.String()
}

// ignoreLayer is the set of patterns contributed by one directory's
// .gitignore, matched relative to that directory.
type ignoreLayer struct {
	base     string // path of the directory this layer's patterns are relative to, "" for root
	patterns []*ignorePattern
}

func newIgnoreLayer(base, contents string) *ignoreLayer {
	l := &ignoreLayer{base: base}
	for _, line := range strings.Split(contents, "\n") {
		if p := parseIgnoreLine(line); p != nil {
			l.patterns = append(l.patterns, p)
		}
	}
	return l
}

// classify reports whether this layer has an opinion on relPath (relative
// to the whole diff root) and, if so, whether it says to ignore it.
// Last-matching-pattern-wins within a layer, matching gitignore's own
// negation semantics.
func (l *ignoreLayer) classify(relPath string) (matched, ignored bool) {
	local := relPath
	if l.base != "" {
		if !strings.HasPrefix(relPath, l.base+"/") {
			return false, false
		}
		local = strings.TrimPrefix(relPath, l.base+"/")
	}
	for _, p := range l.patterns {
		if p.matches(local) {
			matched = true
			ignored = !p.negated
		}
	}
	return matched, ignored
}

// GitIgnoreStack is the layered, hierarchical ignore-rule set named in
// spec §4.4: each directory on the path from the diff root contributes a
// layer, with the most specific (deepest) layer's opinion taking
// precedence over its ancestors', matching git's own nearest-file-wins
// rule.
type GitIgnoreStack struct {
	layers []*ignoreLayer // innermost last
}

// Push returns a new stack with an additional, more specific layer on
// top; the receiver is left unmodified so sibling directories can each
// extend the same parent stack independently.
func (s *GitIgnoreStack) Push(dirPath, gitignoreContents string) *GitIgnoreStack {
	next := &GitIgnoreStack{layers: make([]*ignoreLayer, len(s.layers)+1)}
	copy(next.layers, s.layers)
	next.layers[len(s.layers)] = newIgnoreLayer(dirPath, gitignoreContents)
	return next
}

// IsIgnored reports whether relPath should be excluded, checking the most
// specific layer first.
func (s *GitIgnoreStack) IsIgnored(relPath string) bool {
	for i := len(s.layers) - 1; i >= 0; i-- {
		if matched, ignored := s.layers[i].classify(relPath); matched {
			return ignored
		}
	}
	return false
}

// NewGitIgnoreStack returns an empty stack, the root of every diff walk.
func NewGitIgnoreStack() *GitIgnoreStack { return &GitIgnoreStack{} }

// isHidden reports whether name is one of the filesystem's own reserved
// entries, which diff never reports regardless of any .gitignore rule
// (spec §4.4: "HIDDEN (skip entirely, e.g. .eden, .hg)").
func isHidden(name string) bool {
	switch name {
	case ".eden", ".hg", ".git":
		return true
	default:
		return false
	}
}
