package merge

import "strings"

// TextPool is an order-preserving, case-insensitively deduplicated set of
// text lines. The first spelling seen wins.
type TextPool struct {
	lines []string
	seen  map[string]struct{}
}

func NewTextPool(lines ...string) *TextPool {
	p := &TextPool{seen: make(map[string]struct{})}
	for _, l := range lines {
		p.Add(l)
	}
	return p
}

// Add appends line unless an equivalent line is already present. Blank and
// placeholder lines are ignored.
func (p *TextPool) Add(line string) bool {
	line = strings.Join(strings.Fields(line), " ")
	if line == "" || isPlaceholder(line) {
		return false
	}
	key := strings.ToLower(line)
	if _, ok := p.seen[key]; ok {
		return false
	}
	p.seen[key] = struct{}{}
	p.lines = append(p.lines, line)
	return true
}

// Lines returns a copy of the pool contents.
func (p *TextPool) Lines() []string {
	out := make([]string, len(p.lines))
	copy(out, p.lines)
	return out
}

// Upper returns the lines upper-cased, for keyword matching.
func (p *TextPool) Upper() []string {
	out := make([]string, len(p.lines))
	for i, l := range p.lines {
		out[i] = strings.ToUpper(l)
	}
	return out
}

func (p *TextPool) Len() int { return len(p.lines) }
