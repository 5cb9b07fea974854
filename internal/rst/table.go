package rst

import (
	"regexp"
	"sort"
	"strings"
)

var (
	gridBorderPattern   = regexp.MustCompile(`^\+(?:[-=]+\+)+$`)
	simpleBorderPattern = regexp.MustCompile(`^=+(?: +=+)+$`)
	simpleRulePattern   = regexp.MustCompile(`^[-=]+(?: +[-=]+)*$`)
)

// gridTable parses a grid table. A block that starts like one but does not
// close properly is kept as a literal block.
func (p *bodyParser) gridTable() bool {
	if !gridBorderPattern.MatchString(p.lines[p.pos]) {
		return false
	}
	start := p.pos
	for p.pos < len(p.lines) {
		l := p.lines[p.pos]
		if l == "" || (l[0] != '+' && l[0] != '|') {
			break
		}
		p.pos++
	}
	block := p.lines[start:p.pos]
	if table, ok := parseGridTable(block); ok {
		p.nodes = append(p.nodes, table)
	} else {
		p.nodes = append(p.nodes, literalBlock(strings.Join(block, "\n")))
	}
	return true
}

func parseGridTable(block []string) (*Node, bool) {
	if len(block) < 3 || !gridBorderPattern.MatchString(block[len(block)-1]) {
		return nil, false
	}
	border := []rune(block[0])
	var bounds []int
	for i, r := range border {
		if r == '+' {
			bounds = append(bounds, i)
		}
	}

	table := &Node{Kind: KindTable}
	cells := map[int][]string{}
	flush := func() bool {
		if len(cells) == 0 {
			return true
		}
		cols := make([]int, 0, len(cells))
		for c := range cells {
			cols = append(cols, c)
		}
		sort.Ints(cols)
		row := &Node{Kind: KindRow}
		for _, c := range cols {
			lines := make([]string, len(cells[c]))
			for i, l := range cells[c] {
				lines[i] = strings.TrimRight(l, " ")
			}
			children, err := parseBody(dedent(lines), 0)
			if err != nil {
				return false
			}
			row.append((&Node{Kind: KindEntry}).append(children...))
		}
		table.append(row)
		cells = map[int][]string{}
		return true
	}

	for _, l := range block[1:] {
		line := []rune(l)
		if len(line) != len(border) {
			return nil, false
		}
		if gridBorderPattern.MatchString(l) {
			if !flush() {
				return nil, false
			}
			continue
		}
		from := 0
		for k := 1; k < len(bounds); k++ {
			b := bounds[k]
			if k != len(bounds)-1 && line[b] != '|' && line[b] != '+' {
				continue
			}
			seg := string(line[bounds[from]+1 : b])
			if strings.Trim(seg, "-=") != "" {
				cells[from] = append(cells[from], seg)
			}
			from = k
		}
	}
	return table, flush()
}

// simpleTable parses a simple table delimited by "=" rules.
func (p *bodyParser) simpleTable() bool {
	top := p.lines[p.pos]
	if !simpleBorderPattern.MatchString(top) {
		return false
	}
	var cols []int
	for i := 0; i < len(top); i++ {
		if top[i] == '=' && (i == 0 || top[i-1] == ' ') {
			cols = append(cols, i)
		}
	}

	end := -1
	for j := p.pos + 1; j < len(p.lines); j++ {
		if simpleBorderPattern.MatchString(p.lines[j]) && (j+1 == len(p.lines) || p.lines[j+1] == "") {
			end = j
			break
		}
		if p.lines[j] == "" && (j+1 == len(p.lines) || p.lines[j+1] == "") {
			break
		}
	}
	if end < 0 {
		start := p.pos
		for p.pos < len(p.lines) && p.lines[p.pos] != "" {
			p.pos++
		}
		p.nodes = append(p.nodes, literalBlock(strings.Join(p.lines[start:p.pos], "\n")))
		return true
	}

	var rows [][]string
	for _, l := range p.lines[p.pos+1 : end] {
		if l == "" || simpleRulePattern.MatchString(l) {
			continue
		}
		line := []rune(l)
		texts := make([]string, len(cols))
		for k, from := range cols {
			to := len(line)
			if k+1 < len(cols) {
				to = cols[k+1]
			}
			if from >= len(line) {
				continue
			}
			if to > len(line) {
				to = len(line)
			}
			texts[k] = strings.TrimSpace(string(line[from:to]))
		}
		if texts[0] == "" && len(rows) > 0 {
			prev := rows[len(rows)-1]
			for k, t := range texts {
				if t != "" {
					prev[k] = strings.TrimSpace(prev[k] + "\n" + t)
				}
			}
			continue
		}
		rows = append(rows, texts)
	}
	p.pos = end + 1

	table := &Node{Kind: KindTable}
	for _, texts := range rows {
		row := &Node{Kind: KindRow}
		for _, t := range texts {
			entry := &Node{Kind: KindEntry}
			if t != "" {
				entry.append((&Node{Kind: KindParagraph}).append(parseInline(t)...))
			}
			row.append(entry)
		}
		table.append(row)
	}
	p.nodes = append(p.nodes, table)
	return true
}
