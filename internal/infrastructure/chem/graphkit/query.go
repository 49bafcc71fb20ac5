package graphkit

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

type atomPred func(m *Mol, i int) bool

type bondPred func(m *Mol, b int) bool

// Query is a compiled one- or two-atom pattern.
type Query struct {
	atoms []atomPred
	bond  bondPred
}

// Size returns the number of atoms in the pattern.
func (q *Query) Size() int { return len(q.atoms) }

// CompileQuery compiles a pattern of the form A or A-bond-B, where each atom
// is a bracket expression or a bare symbol.  Anything after ">>" is ignored.
func CompileQuery(pattern string) (*Query, error) {
	if i := strings.Index(pattern, ">>"); i >= 0 {
		pattern = pattern[:i]
	}
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return nil, fmt.Errorf("empty query")
	}
	if strings.Contains(pattern, "$(") {
		return nil, fmt.Errorf("recursive queries are not supported")
	}
	p := &queryParser{s: pattern}
	first, err := p.atom()
	if err != nil {
		return nil, err
	}
	q := &Query{atoms: []atomPred{first}}
	if p.done() {
		return q, nil
	}
	bond, err := p.bondExpr()
	if err != nil {
		return nil, err
	}
	second, err := p.atom()
	if err != nil {
		return nil, err
	}
	if !p.done() {
		return nil, fmt.Errorf("only one- and two-atom queries are supported: %q", pattern)
	}
	q.atoms = append(q.atoms, second)
	q.bond = bond
	return q, nil
}

// Match returns every embedding of q in m as atom tuples.
func (q *Query) Match(m *Mol) [][]int {
	var out [][]int
	for i := range m.atoms {
		if !q.atoms[0](m, i) {
			continue
		}
		if len(q.atoms) == 1 {
			out = append(out, []int{i})
			continue
		}
		for _, b := range m.adj[i] {
			j := m.bonds[b].Other(i)
			if q.bond(m, b) && q.atoms[1](m, j) {
				out = append(out, []int{i, j})
			}
		}
	}
	return out
}

type queryParser struct {
	s   string
	pos int
}

func (p *queryParser) done() bool { return p.pos >= len(p.s) }

func (p *queryParser) peek() byte {
	if p.done() {
		return 0
	}
	return p.s[p.pos]
}

func (p *queryParser) atom() (atomPred, error) {
	if p.done() {
		return nil, fmt.Errorf("expected atom at end of %q", p.s)
	}
	if p.peek() != '[' {
		return p.bareAtom()
	}
	end := strings.IndexByte(p.s[p.pos:], ']')
	if end < 0 {
		return nil, fmt.Errorf("unclosed bracket in %q", p.s)
	}
	body := p.s[p.pos+1 : p.pos+end]
	p.pos += end + 1
	// Atom classes do not take part in matching.
	if i := strings.LastIndexByte(body, ':'); i >= 0 && i+1 < len(body) && isDigits(body[i+1:]) {
		body = body[:i]
	}
	ap := &atomExprParser{s: body}
	pred, err := ap.lowAnd()
	if err != nil {
		return nil, err
	}
	if ap.pos != len(ap.s) {
		return nil, fmt.Errorf("unexpected %q in atom expression [%s]", ap.s[ap.pos:], body)
	}
	return pred, nil
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

func (p *queryParser) bareAtom() (atomPred, error) {
	rest := p.s[p.pos:]
	for _, two := range []string{"Cl", "Br"} {
		if strings.HasPrefix(rest, two) {
			p.pos += 2
			return elementPred(atomicNumbers[two], false), nil
		}
	}
	c := rest[0]
	p.pos++
	switch c {
	case '*':
		return anyAtom, nil
	case 'a':
		return aromaticAtom, nil
	case 'A':
		return aliphaticAtom, nil
	case 'B', 'C', 'N', 'O', 'P', 'S', 'F', 'I':
		return elementPred(atomicNumbers[string(c)], false), nil
	case 'b', 'c', 'n', 'o', 'p', 's':
		return elementPred(atomicNumbers[aromaticSymbols[string(c)]], true), nil
	}
	return nil, fmt.Errorf("unsupported query syntax %q in %q", c, p.s)
}

func (p *queryParser) bondExpr() (bondPred, error) {
	start := p.pos
	for !p.done() && strings.IndexByte("-=#:~@!&,;/\\", p.peek()) >= 0 {
		p.pos++
	}
	text := p.s[start:p.pos]
	if text == "" {
		return defaultBond, nil
	}
	bp := &bondExprParser{s: text}
	pred, err := bp.lowAnd()
	if err != nil {
		return nil, err
	}
	if bp.pos != len(bp.s) {
		return nil, fmt.Errorf("bad bond expression %q", text)
	}
	return pred, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Atom expressions
// ─────────────────────────────────────────────────────────────────────────────

func anyAtom(*Mol, int) bool { return true }

func aromaticAtom(m *Mol, i int) bool { return m.atoms[i].Aromatic }

func aliphaticAtom(m *Mol, i int) bool { return !m.atoms[i].Aromatic }

func elementPred(number int, aromatic bool) atomPred {
	return func(m *Mol, i int) bool {
		a := m.atoms[i]
		return a.Number == number && a.Aromatic == aromatic
	}
}

func notAtom(p atomPred) atomPred { return func(m *Mol, i int) bool { return !p(m, i) } }

func andAtom(a, b atomPred) atomPred {
	return func(m *Mol, i int) bool { return a(m, i) && b(m, i) }
}

func orAtom(a, b atomPred) atomPred {
	return func(m *Mol, i int) bool { return a(m, i) || b(m, i) }
}

type atomExprParser struct {
	s   string
	pos int
}

func (p *atomExprParser) peek() byte {
	if p.pos >= len(p.s) {
		return 0
	}
	return p.s[p.pos]
}

func (p *atomExprParser) lowAnd() (atomPred, error) {
	left, err := p.or()
	if err != nil {
		return nil, err
	}
	for p.peek() == ';' {
		p.pos++
		right, err := p.or()
		if err != nil {
			return nil, err
		}
		left = andAtom(left, right)
	}
	return left, nil
}

func (p *atomExprParser) or() (atomPred, error) {
	left, err := p.highAnd()
	if err != nil {
		return nil, err
	}
	for p.peek() == ',' {
		p.pos++
		right, err := p.highAnd()
		if err != nil {
			return nil, err
		}
		left = orAtom(left, right)
	}
	return left, nil
}

func (p *atomExprParser) highAnd() (atomPred, error) {
	left, err := p.not()
	if err != nil {
		return nil, err
	}
	for {
		c := p.peek()
		if c == '&' {
			p.pos++
		} else if c == 0 || c == ',' || c == ';' {
			return left, nil
		}
		right, err := p.not()
		if err != nil {
			return nil, err
		}
		left = andAtom(left, right)
	}
}

func (p *atomExprParser) not() (atomPred, error) {
	if p.peek() == '!' {
		p.pos++
		inner, err := p.not()
		if err != nil {
			return nil, err
		}
		return notAtom(inner), nil
	}
	return p.primitive()
}

func (p *atomExprParser) number(def int) int {
	j := p.pos
	for j < len(p.s) && p.s[j] >= '0' && p.s[j] <= '9' {
		j++
	}
	if j == p.pos {
		return def
	}
	n, _ := strconv.Atoi(p.s[p.pos:j])
	p.pos = j
	return n
}

func (p *atomExprParser) primitive() (atomPred, error) {
	if p.pos >= len(p.s) {
		return nil, fmt.Errorf("truncated atom expression %q", p.s)
	}
	c := p.s[p.pos]

	// Two-letter elements win over single-letter primitives (Cl, Br, Ru).
	if unicode.IsUpper(rune(c)) && p.pos+1 < len(p.s) && unicode.IsLower(rune(p.s[p.pos+1])) {
		if n, ok := atomicNumbers[p.s[p.pos:p.pos+2]]; ok {
			p.pos += 2
			return elementPred(n, false), nil
		}
	}
	if p.pos+1 < len(p.s) {
		if sym, ok := aromaticSymbols[p.s[p.pos:p.pos+2]]; ok {
			p.pos += 2
			return elementPred(atomicNumbers[sym], true), nil
		}
	}

	p.pos++
	switch c {
	case '*':
		return anyAtom, nil
	case 'a':
		return aromaticAtom, nil
	case 'A':
		return aliphaticAtom, nil
	case '#':
		n := p.number(-1)
		if n < 0 {
			return nil, fmt.Errorf("atomic number expected in %q", p.s)
		}
		return func(m *Mol, i int) bool { return m.atoms[i].Number == n }, nil
	case 'D':
		n := p.number(1)
		return func(m *Mol, i int) bool { return m.Degree(i) == n }, nil
	case 'H':
		n := p.number(1)
		return func(m *Mol, i int) bool { return m.TotalHydrogens(i) == n }, nil
	case 'X':
		n := p.number(1)
		return func(m *Mol, i int) bool { return m.Degree(i)+m.atoms[i].Hydrogens == n }, nil
	case 'R':
		// Rn with n > 0 is read as plain ring membership.
		if n := p.number(-1); n == 0 {
			return func(m *Mol, i int) bool { return !m.AtomInRing(i) }, nil
		}
		return func(m *Mol, i int) bool { return m.AtomInRing(i) }, nil
	case '+', '-':
		sign := 1
		if c == '-' {
			sign = -1
		}
		n := p.number(-1)
		if n < 0 {
			n = 1
			for p.peek() == c {
				n++
				p.pos++
			}
		}
		want := sign * n
		return func(m *Mol, i int) bool { return m.atoms[i].Charge == want }, nil
	}
	if unicode.IsUpper(rune(c)) {
		if n, ok := atomicNumbers[string(c)]; ok {
			return elementPred(n, false), nil
		}
	}
	if sym, ok := aromaticSymbols[string(c)]; ok {
		return elementPred(atomicNumbers[sym], true), nil
	}
	return nil, fmt.Errorf("unsupported atom primitive %q in %q", c, p.s)
}

// ─────────────────────────────────────────────────────────────────────────────
// Bond expressions
// ─────────────────────────────────────────────────────────────────────────────

func defaultBond(m *Mol, b int) bool {
	o := m.bonds[b].Order
	return o == BondSingle || o == BondAromatic
}

func orderPred(o BondOrder) bondPred {
	return func(m *Mol, b int) bool { return m.bonds[b].Order == o }
}

type bondExprParser struct {
	s   string
	pos int
}

func (p *bondExprParser) peek() byte {
	if p.pos >= len(p.s) {
		return 0
	}
	return p.s[p.pos]
}

func (p *bondExprParser) lowAnd() (bondPred, error) {
	left, err := p.or()
	if err != nil {
		return nil, err
	}
	for p.peek() == ';' {
		p.pos++
		right, err := p.or()
		if err != nil {
			return nil, err
		}
		l, r := left, right
		left = func(m *Mol, b int) bool { return l(m, b) && r(m, b) }
	}
	return left, nil
}

func (p *bondExprParser) or() (bondPred, error) {
	left, err := p.highAnd()
	if err != nil {
		return nil, err
	}
	for p.peek() == ',' {
		p.pos++
		right, err := p.highAnd()
		if err != nil {
			return nil, err
		}
		l, r := left, right
		left = func(m *Mol, b int) bool { return l(m, b) || r(m, b) }
	}
	return left, nil
}

func (p *bondExprParser) highAnd() (bondPred, error) {
	left, err := p.not()
	if err != nil {
		return nil, err
	}
	for {
		c := p.peek()
		if c == '&' {
			p.pos++
		} else if c == 0 || c == ',' || c == ';' {
			return left, nil
		}
		right, err := p.not()
		if err != nil {
			return nil, err
		}
		l, r := left, right
		left = func(m *Mol, b int) bool { return l(m, b) && r(m, b) }
	}
}

func (p *bondExprParser) not() (bondPred, error) {
	if p.peek() == '!' {
		p.pos++
		inner, err := p.not()
		if err != nil {
			return nil, err
		}
		return func(m *Mol, b int) bool { return !inner(m, b) }, nil
	}
	if p.pos >= len(p.s) {
		return nil, fmt.Errorf("truncated bond expression %q", p.s)
	}
	c := p.s[p.pos]
	p.pos++
	switch c {
	case '-', '/', '\\':
		return orderPred(BondSingle), nil
	case '=':
		return orderPred(BondDouble), nil
	case '#':
		return orderPred(BondTriple), nil
	case ':':
		return orderPred(BondAromatic), nil
	case '~':
		return func(*Mol, int) bool { return true }, nil
	case '@':
		return func(m *Mol, b int) bool { return m.BondInRing(b) }, nil
	}
	return nil, fmt.Errorf("unsupported bond primitive %q in %q", c, p.s)
}
