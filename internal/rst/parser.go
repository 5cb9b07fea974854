package rst

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

const tabWidth = 8

const adornmentChars = "!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~"

var (
	bulletPattern    = regexp.MustCompile(`^([-*+•‣⁃])( +|$)`)
	enumPattern      = regexp.MustCompile(`^(?:(\d+|[A-Za-z]|#|[ivxlcdm]+|[IVXLCDM]+)([.)])|\((\d+|[A-Za-z]|#|[ivxlcdm]+|[IVXLCDM]+)\))( +|$)`)
	fieldPattern     = regexp.MustCompile(`^:((?:\\.|[^:\\])+):(?: +(.*)|$)`)
	lineBlockPattern = regexp.MustCompile(`^\|( +|$)`)
)

// Parse parses reStructuredText source into a document tree. Input that is
// not text, and section structures docutils would refuse, are reported as a
// *ParseError; no partial tree is returned in that case.
func Parse(src []byte) (*Node, error) {
	if err := validate(src); err != nil {
		return nil, err
	}

	p := &bodyParser{lines: splitLines(string(src)), base: 1, top: true}
	if err := p.run(); err != nil {
		return nil, err
	}

	doc, err := buildSections(p.nodes)
	if err != nil {
		return nil, err
	}
	if first := firstBodyElement(doc.Children); first != nil && first.Kind == KindFieldList {
		first.Kind = KindDocinfo
	}
	return doc, nil
}

func validate(src []byte) error {
	line := 1
	for i := 0; i < len(src); {
		r, size := utf8.DecodeRune(src[i:])
		switch {
		case r == utf8.RuneError && size == 1:
			return &ParseError{Line: line, Msg: "input is not valid UTF-8"}
		case r == '\n':
			line++
		case r == '\t' || r == '\r' || r == '\f' || r == '\v':
		case r < 0x20:
			return &ParseError{Line: line, Msg: fmt.Sprintf("unexpected control character %U", r)}
		}
		i += size
	}
	return nil
}

func splitLines(s string) []string {
	s = strings.TrimPrefix(s, "\ufeff")
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	raw := strings.Split(s, "\n")
	lines := make([]string, len(raw))
	for i, l := range raw {
		l = strings.Map(func(r rune) rune {
			if r == '\f' || r == '\v' {
				return ' '
			}
			return r
		}, expandTabs(l))
		lines[i] = strings.TrimRight(l, " ")
	}
	return lines
}

func expandTabs(l string) string {
	if !strings.Contains(l, "\t") {
		return l
	}
	var b strings.Builder
	col := 0
	for _, r := range l {
		if r == '\t' {
			n := tabWidth - col%tabWidth
			b.WriteString(strings.Repeat(" ", n))
			col += n
			continue
		}
		b.WriteRune(r)
		col++
	}
	return b.String()
}

func indentOf(l string) int {
	return len(l) - len(strings.TrimLeft(l, " "))
}

// indentedBlock returns the end of the indented lines starting at start,
// excluding trailing blank lines.
func indentedBlock(lines []string, start int) int {
	end := start
	for i := start; i < len(lines); i++ {
		if lines[i] == "" {
			continue
		}
		if indentOf(lines[i]) == 0 {
			break
		}
		end = i + 1
	}
	return end
}

func minIndent(lines []string) int {
	least := -1
	for _, l := range lines {
		if l == "" {
			continue
		}
		if ind := indentOf(l); least < 0 || ind < least {
			least = ind
		}
	}
	return least
}

// dedentBy removes up to n leading spaces from every line.
func dedentBy(lines []string, n int) []string {
	out := make([]string, len(lines))
	for i, l := range lines {
		cut := indentOf(l)
		if cut > n {
			cut = n
		}
		out[i] = l[cut:]
	}
	return out
}

func dedent(lines []string) []string {
	least := minIndent(lines)
	if least <= 0 {
		return lines
	}
	return dedentBy(lines, least)
}

func isAdornment(l string) bool {
	if l == "" || !strings.ContainsRune(adornmentChars, rune(l[0])) {
		return false
	}
	for i := 1; i < len(l); i++ {
		if l[i] != l[0] {
			return false
		}
	}
	return true
}

func literalBlock(text string) *Node {
	n := &Node{Kind: KindLiteralBlock}
	if text = strings.Trim(text, "\n"); text != "" {
		n.append(newText(text))
	}
	return n
}

// bodyParser turns a run of lines sharing one indentation level into body
// elements. Section titles are only recognised at the document level.
type bodyParser struct {
	lines       []string
	base        int // line number of lines[0]
	top         bool
	pos         int
	nodes       []*Node
	literalNext bool
}

func parseBody(lines []string, base int) ([]*Node, error) {
	p := &bodyParser{lines: lines, base: base}
	if err := p.run(); err != nil {
		return nil, err
	}
	return p.nodes, nil
}

func (p *bodyParser) lineNo() int { return p.base + p.pos }

func (p *bodyParser) run() error {
	for p.pos < len(p.lines) {
		line := p.lines[p.pos]
		if line == "" {
			p.pos++
			continue
		}
		if indentOf(line) > 0 {
			if err := p.indented(); err != nil {
				return err
			}
			continue
		}
		p.literalNext = false

		if p.top {
			ok, err := p.overlineTitle()
			if err != nil {
				return err
			}
			if ok || p.underlineTitle() {
				continue
			}
		}
		if p.transition() {
			continue
		}
		if ok, err := p.explicit(); err != nil {
			return err
		} else if ok {
			continue
		}
		if p.anonymousTarget() || p.doctest() || p.gridTable() || p.simpleTable() {
			continue
		}
		ok, err := p.list()
		if err != nil {
			return err
		}
		if ok || p.lineBlock() {
			continue
		}
		p.paragraph()
	}
	return nil
}

func (p *bodyParser) list() (bool, error) {
	for _, construct := range []func() (bool, error){p.bulletList, p.enumeratedList, p.fieldList, p.definitionList} {
		ok, err := construct()
		if err != nil || ok {
			return ok, err
		}
	}
	return false, nil
}

// indented handles a block indented relative to the current level: a
// literal block after "::", otherwise a block quote.
func (p *bodyParser) indented() error {
	start := p.pos
	end := indentedBlock(p.lines, start)
	block := dedent(p.lines[start:end])
	p.pos = end
	if p.literalNext {
		p.literalNext = false
		p.nodes = append(p.nodes, literalBlock(strings.Join(block, "\n")))
		return nil
	}
	children, err := parseBody(block, p.base+start)
	if err != nil {
		return err
	}
	p.nodes = append(p.nodes, (&Node{Kind: KindBlockQuote}).append(children...))
	return nil
}

func (p *bodyParser) title(text, style string) {
	n := &Node{Kind: KindTitle, style: style, line: p.lineNo()}
	n.append(parseInline(strings.TrimSpace(text))...)
	p.nodes = append(p.nodes, n)
}

func (p *bodyParser) overlineTitle() (bool, error) {
	l, i := p.lines, p.pos
	over := l[i]
	if !isAdornment(over) || i+1 >= len(l) || l[i+1] == "" || isAdornment(l[i+1]) {
		return false, nil
	}
	text := strings.TrimSpace(l[i+1])
	if i+2 < len(l) && isAdornment(l[i+2]) && l[i+2][0] == over[0] {
		if len(over) < utf8.RuneCountInString(text) && len(over) < 4 {
			return false, nil
		}
		p.title(text, "o"+over[:1])
		p.pos += 3
		return true, nil
	}
	if len(over) >= 4 {
		return false, &ParseError{Line: p.lineNo(), Msg: "missing matching underline for section title overline"}
	}
	return false, nil
}

func (p *bodyParser) underlineTitle() bool {
	l, i := p.lines, p.pos
	if i+1 >= len(l) || isAdornment(l[i]) || !isAdornment(l[i+1]) {
		return false
	}
	text := strings.TrimSpace(l[i])
	under := l[i+1]
	if len(under) < utf8.RuneCountInString(text) && len(under) < 4 {
		return false
	}
	p.title(text, "u"+under[:1])
	p.pos += 2
	return true
}

func (p *bodyParser) transition() bool {
	l, i := p.lines, p.pos
	if !isAdornment(l[i]) || len(l[i]) < 4 || (i+1 < len(l) && l[i+1] != "") {
		return false
	}
	p.nodes = append(p.nodes, &Node{Kind: KindTransition})
	p.pos++
	return true
}

func (p *bodyParser) anonymousTarget() bool {
	if !strings.HasPrefix(p.lines[p.pos], "__ ") {
		return false
	}
	p.pos = indentedBlock(p.lines, p.pos+1)
	p.nodes = append(p.nodes, &Node{Kind: KindTarget})
	return true
}

func (p *bodyParser) doctest() bool {
	if !strings.HasPrefix(p.lines[p.pos], ">>>") {
		return false
	}
	start := p.pos
	for p.pos < len(p.lines) && p.lines[p.pos] != "" {
		p.pos++
	}
	p.nodes = append(p.nodes, literalBlock(strings.Join(p.lines[start:p.pos], "\n")))
	return true
}

// itemBody collects the first-line remainder of a list item or field plus
// its indented continuation, dedented by at most col columns.
func (p *bodyParser) itemBody(first string, col int) ([]*Node, error) {
	start := p.pos
	end := indentedBlock(p.lines, start+1)
	rest := p.lines[start+1 : end]
	if least := minIndent(rest); least >= 0 && least < col {
		col = least
	}
	content := append([]string{first}, dedentBy(rest, col)...)
	p.pos = end
	return parseBody(content, p.base+start)
}

func (p *bodyParser) skipBlank() {
	for p.pos < len(p.lines) && p.lines[p.pos] == "" {
		p.pos++
	}
}

func (p *bodyParser) bulletList() (bool, error) {
	m := bulletPattern.FindStringSubmatch(p.lines[p.pos])
	if m == nil {
		return false, nil
	}
	marker := m[1]
	list := &Node{Kind: KindBulletList}
	for p.pos < len(p.lines) {
		m := bulletPattern.FindStringSubmatch(p.lines[p.pos])
		if m == nil || m[1] != marker {
			break
		}
		children, err := p.itemBody(p.lines[p.pos][len(m[0]):], len(m[0]))
		if err != nil {
			return false, err
		}
		list.append((&Node{Kind: KindListItem}).append(children...))
		p.skipBlank()
	}
	p.nodes = append(p.nodes, list)
	return true, nil
}

func enumFormat(m []string) string {
	if m[2] != "" {
		return m[2]
	}
	return "()"
}

func (p *bodyParser) enumeratedList() (bool, error) {
	m := enumPattern.FindStringSubmatch(p.lines[p.pos])
	if m == nil {
		return false, nil
	}
	if next := p.pos + 1; next < len(p.lines) && p.lines[next] != "" && indentOf(p.lines[next]) == 0 &&
		!enumPattern.MatchString(p.lines[next]) {
		return false, nil
	}
	format := enumFormat(m)
	list := &Node{Kind: KindEnumeratedList}
	for p.pos < len(p.lines) {
		m := enumPattern.FindStringSubmatch(p.lines[p.pos])
		if m == nil || enumFormat(m) != format {
			break
		}
		children, err := p.itemBody(p.lines[p.pos][len(m[0]):], len(m[0]))
		if err != nil {
			return false, err
		}
		list.append((&Node{Kind: KindListItem}).append(children...))
		p.skipBlank()
	}
	p.nodes = append(p.nodes, list)
	return true, nil
}

func (p *bodyParser) fieldList() (bool, error) {
	if !fieldPattern.MatchString(p.lines[p.pos]) {
		return false, nil
	}
	list := &Node{Kind: KindFieldList}
	for p.pos < len(p.lines) {
		m := fieldPattern.FindStringSubmatch(p.lines[p.pos])
		if m == nil {
			break
		}
		name := unescape(m[1])
		children, err := p.itemBody(m[2], 1<<30)
		if err != nil {
			return false, err
		}
		field := (&Node{Kind: KindField, Name: name}).append(
			(&Node{Kind: KindFieldName}).append(newText(name)),
			(&Node{Kind: KindFieldBody}).append(children...),
		)
		list.append(field)
		p.skipBlank()
	}
	p.nodes = append(p.nodes, list)
	return true, nil
}

func (p *bodyParser) lineBlock() bool {
	if !lineBlockPattern.MatchString(p.lines[p.pos]) {
		return false
	}
	block := &Node{Kind: KindLineBlock}
	var text []string
	flush := func() {
		if text != nil {
			block.append((&Node{Kind: KindLine}).append(parseInline(strings.Join(text, "\n"))...))
			text = nil
		}
	}
	for p.pos < len(p.lines) {
		l := p.lines[p.pos]
		if m := lineBlockPattern.FindString(l); m != "" {
			flush()
			text = []string{l[len(m):]}
		} else if l != "" && indentOf(l) > 0 && text != nil {
			text = append(text, strings.TrimSpace(l))
		} else {
			break
		}
		p.pos++
	}
	flush()
	p.nodes = append(p.nodes, block)
	return true
}

func (p *bodyParser) isDefinitionItem(i int) bool {
	l := p.lines
	return i+1 < len(l) && l[i] != "" && indentOf(l[i]) == 0 && l[i+1] != "" && indentOf(l[i+1]) > 0
}

func (p *bodyParser) definitionList() (bool, error) {
	if !p.isDefinitionItem(p.pos) {
		return false, nil
	}
	list := &Node{Kind: KindDefinitionList}
	for p.pos < len(p.lines) && p.isDefinitionItem(p.pos) {
		start := p.pos
		term := p.lines[start]
		if i := strings.Index(term, " : "); i > 0 {
			term = term[:i]
		}
		end := indentedBlock(p.lines, start+1)
		children, err := parseBody(dedent(p.lines[start+1:end]), p.base+start+1)
		if err != nil {
			return false, err
		}
		p.pos = end
		list.append((&Node{Kind: KindDefinitionListItem}).append(
			(&Node{Kind: KindTerm}).append(parseInline(term)...),
			(&Node{Kind: KindDefinition}).append(children...),
		))
		p.skipBlank()
	}
	p.nodes = append(p.nodes, list)
	return true, nil
}

func (p *bodyParser) paragraph() {
	var text []string
	for p.pos < len(p.lines) {
		l := p.lines[p.pos]
		if l == "" || indentOf(l) > 0 {
			break
		}
		text = append(text, l)
		p.pos++
	}
	s := strings.Join(text, "\n")
	if strings.HasSuffix(s, "::") {
		p.literalNext = true
		switch {
		case s == "::":
			return
		case strings.HasSuffix(s, " ::") || strings.HasSuffix(s, "\n::"):
			s = strings.TrimRight(s[:len(s)-2], " \n")
		default:
			s = s[:len(s)-1]
		}
	}
	p.nodes = append(p.nodes, (&Node{Kind: KindParagraph}).append(parseInline(s)...))
}

// buildSections nests the flat element list under sections according to
// the order in which title adornment styles were first seen.
func buildSections(nodes []*Node) (*Node, error) {
	doc := &Node{Kind: KindDocument}
	stack := []*Node{doc}
	var styles []string
	for _, n := range nodes {
		if n.Kind != KindTitle || n.style == "" {
			stack[len(stack)-1].append(n)
			continue
		}
		level := 0
		for i, s := range styles {
			if s == n.style {
				level = i + 1
				break
			}
		}
		if level == 0 {
			styles = append(styles, n.style)
			level = len(styles)
		}
		if level > len(stack) {
			return nil, &ParseError{Line: n.line, Msg: "title level inconsistent"}
		}
		n.style = ""
		stack = stack[:level]
		section := (&Node{Kind: KindSection}).append(n)
		stack[level-1].append(section)
		stack = append(stack, section)
	}
	return doc, nil
}

func firstBodyElement(nodes []*Node) *Node {
	for _, n := range nodes {
		switch n.Kind {
		case KindTitle, KindComment, KindTarget, KindSubstitutionDefinition, KindTransition:
			continue
		case KindSection:
			if found := firstBodyElement(n.Children); found != nil {
				return found
			}
			continue
		}
		return n
	}
	return nil
}
