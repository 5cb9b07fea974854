package rst

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	roleNamePattern   = regexp.MustCompile(`^:([A-Za-z0-9](?:[\w.+\-]|:[A-Za-z0-9])*):` + "`")
	suffixRolePattern = regexp.MustCompile(`^:([A-Za-z0-9](?:[\w.+\-]|:[A-Za-z0-9])*):`)
)

// parseInline splits a text block into text runs and inline markup nodes.
func parseInline(s string) []*Node {
	p := inlineParser{src: s}
	p.run()
	return p.out
}

type inlineParser struct {
	src string
	out []*Node
	buf strings.Builder
}

func (p *inlineParser) flush() {
	if p.buf.Len() == 0 {
		return
	}
	p.out = append(p.out, newText(p.buf.String()))
	p.buf.Reset()
}

func (p *inlineParser) emit(n *Node) {
	p.flush()
	p.out = append(p.out, n)
}

func (p *inlineParser) run() {
	s := p.src
	i := 0
	for i < len(s) {
		c := s[i]
		if c == '\\' {
			i = p.escape(i)
			continue
		}
		if startAllowed(s, i) {
			if next, ok := p.markup(i); ok {
				i = next
				continue
			}
		}
		if c == '_' && p.simpleReference(i) {
			i++
			if i < len(s) && s[i] == '_' {
				i++
			}
			continue
		}
		p.buf.WriteByte(c)
		i++
	}
	p.flush()
}

// escape handles a backslash at i and returns the next position.
func (p *inlineParser) escape(i int) int {
	s := p.src
	if i+1 >= len(s) {
		return i + 1
	}
	r, size := utf8.DecodeRuneInString(s[i+1:])
	if unicode.IsSpace(r) {
		return i + 1 + size
	}
	p.buf.WriteString(s[i+1 : i+1+size])
	return i + 1 + size
}

// markup tries every inline construct starting at i.
func (p *inlineParser) markup(i int) (int, bool) {
	s := p.src
	rest := s[i:]
	switch {
	case strings.HasPrefix(rest, "**"):
		return p.span(i, "**", "**", KindStrong)
	case strings.HasPrefix(rest, "``"):
		return p.span(i, "``", "``", KindLiteral)
	case rest[0] == '*':
		return p.span(i, "*", "*", KindEmphasis)
	case strings.HasPrefix(rest, "_`"):
		return p.span(i, "_`", "`", KindTarget)
	case rest[0] == '`':
		return p.interpreted(i, "")
	case rest[0] == ':':
		m := roleNamePattern.FindStringSubmatch(rest)
		if m == nil {
			return 0, false
		}
		return p.interpreted(i+len(m[0])-1, m[1])
	case rest[0] == '|':
		if i+1 >= len(s) || isSpaceByte(s[i+1]) {
			return 0, false
		}
		end, ok := findEnd(s, i+1, "|")
		if !ok {
			return 0, false
		}
		ref := &Node{Kind: KindReference, Name: "substitution"}
		if name := unescape(s[i+1 : end]); name != "" {
			ref.append(newText(name))
		}
		p.emit(ref)
		next := end + 1
		for next < len(s) && s[next] == '_' && next-end <= 2 {
			next++
		}
		return next, true
	case rest[0] == '[':
		return p.footnoteReference(i)
	}
	return 0, false
}

// span handles constructs whose content is a single text run.
func (p *inlineParser) span(i int, start, end string, kind Kind) (int, bool) {
	from := i + len(start)
	if from >= len(p.src) || isSpaceByte(p.src[from]) {
		return 0, false
	}
	stop, ok := findEnd(p.src, from, end)
	if !ok {
		return 0, false
	}
	text := p.src[from:stop]
	if kind != KindLiteral {
		text = unescape(text)
	}
	p.emit((&Node{Kind: kind}).append(newText(text)))
	return stop + len(end), true
}

// interpreted handles `text`, `text`_, `text`__, `text`:role: and
// :role:`text`. i points at the opening backtick.
func (p *inlineParser) interpreted(i int, role string) (int, bool) {
	s := p.src
	from := i + 1
	if from >= len(s) || isSpaceByte(s[from]) {
		return 0, false
	}
	stop, ok := findEndRaw(s, from, "`")
	if !ok {
		return 0, false
	}
	body := s[from:stop]
	next := stop + 1

	kind := KindRole
	if role == "" {
		switch {
		case strings.HasPrefix(s[next:], "__"):
			kind = KindReference
			next += 2
		case strings.HasPrefix(s[next:], "_"):
			kind = KindReference
			next++
		default:
			if m := suffixRolePattern.FindStringSubmatch(s[next:]); m != nil {
				role = m[1]
				next += len(m[0])
			}
		}
	}
	if next < len(s) && !endAllowedAfter(s, next) {
		return 0, false
	}

	label := referenceLabel(body)
	p.emit((&Node{Kind: kind, Name: role}).append(newText(label)))
	return next, true
}

// footnoteReference handles [label]_ at i.
func (p *inlineParser) footnoteReference(i int) (int, bool) {
	s := p.src
	closing := strings.Index(s[i:], "]_")
	if closing <= 1 {
		return 0, false
	}
	label := s[i+1 : i+closing]
	if strings.ContainsAny(label, " \n\t[") {
		return 0, false
	}
	next := i + closing + 2
	if next < len(s) && !endAllowedAfter(s, next) {
		return 0, false
	}
	n := &Node{Kind: KindReference, Name: "footnote"}
	if label != "#" && label != "*" && !strings.HasPrefix(label, "#") {
		n.append(newText(label))
	}
	p.emit(n)
	return next, true
}

// simpleReference turns a word_ or word__ preceding the underscore at i
// into a reference node, taking the word back out of the text buffer.
func (p *inlineParser) simpleReference(i int) bool {
	s := p.src
	if i == 0 || !isWordByte(s[i-1]) {
		return false
	}
	next := i + 1
	if next < len(s) && s[next] == '_' {
		next++
	}
	if next < len(s) && !endAllowedAfter(s, next) {
		return false
	}
	buffered := p.buf.String()
	start := len(buffered)
	for start > 0 {
		c := buffered[start-1]
		if isWordByte(c) {
			start--
			continue
		}
		if (c == '-' || c == '.' || c == '_') && start > 1 && isWordByte(buffered[start-2]) {
			start--
			continue
		}
		break
	}
	word := buffered[start:]
	if word == "" || (start > 0 && !startAllowed(buffered, start)) {
		return false
	}
	p.buf.Reset()
	p.buf.WriteString(buffered[:start])
	p.emit((&Node{Kind: KindReference}).append(newText(word)))
	return true
}

// referenceLabel strips an embedded <target> and Sphinx title modifiers.
func referenceLabel(body string) string {
	body = strings.TrimSpace(unescape(body))
	if strings.HasSuffix(body, ">") {
		if open := strings.LastIndex(body, "<"); open >= 0 {
			label := strings.TrimSpace(body[:open])
			if label != "" {
				return label
			}
			return body[open+1 : len(body)-1]
		}
	}
	return strings.TrimLeft(body, "~!")
}

// findEnd locates a valid end-string, skipping escaped characters.
func findEnd(s string, from int, end string) (int, bool) {
	for j := from; j+len(end) <= len(s); j++ {
		if s[j] == '\\' && end != "``" {
			j++
			continue
		}
		if !strings.HasPrefix(s[j:], end) || isSpaceByte(s[j-1]) {
			continue
		}
		after := j + len(end)
		if end == "*" && after < len(s) && s[after] == '*' {
			continue
		}
		if after < len(s) && !endAllowedAfter(s, after) && !(end == "|" && s[after] == '_') {
			continue
		}
		return j, true
	}
	return 0, false
}

// findEndRaw locates the closing backtick of interpreted text, whose suffix
// (role or reference marker) is checked by the caller.
func findEndRaw(s string, from int, end string) (int, bool) {
	for j := from; j < len(s); j++ {
		if s[j] == '\\' {
			j++
			continue
		}
		if strings.HasPrefix(s[j:], end) && !isSpaceByte(s[j-1]) {
			return j, true
		}
	}
	return 0, false
}

func startAllowed(s string, i int) bool {
	if i == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(s[:i])
	return unicode.IsSpace(r) || strings.ContainsRune(`-:/'"<([{`, r)
}

func endAllowedAfter(s string, i int) bool {
	r, _ := utf8.DecodeRuneInString(s[i:])
	return unicode.IsSpace(r) || strings.ContainsRune(`-.,:;!?\/'")]}>`, r)
}

func isSpaceByte(c byte) bool {
	return c == ' ' || c == '\n' || c == '\t'
}

func isWordByte(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c >= utf8.RuneSelf
}

func unescape(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			i++
			if isSpaceByte(s[i]) {
				continue
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
