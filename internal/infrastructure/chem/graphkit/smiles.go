package graphkit

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/turtacn/KeyIP-MMP/pkg/errors"
)

type ringOpen struct {
	atom  int
	order BondOrder // 0 when unspecified
}

type smilesParser struct {
	s       string
	pos     int
	mol     *Mol
	prev    int
	pending BondOrder
	branch  []int
	rings   map[int]ringOpen

	// implicit holds bonds typed by defaultOrder rather than a bond symbol.
	implicit []int
}

// ParseSMILES reads a SMILES string.  Surrounding whitespace is trimmed;
// inner whitespace is an error.
func ParseSMILES(s string) (*Mol, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, errors.Parse("empty structure")
	}
	if strings.IndexFunc(s, unicode.IsSpace) >= 0 {
		return nil, errors.Parse("invalid SMILES").WithDetail(fmt.Sprintf("%q: contains whitespace", s))
	}
	p := &smilesParser{s: s, mol: &Mol{}, prev: -1, rings: map[int]ringOpen{}}
	if err := p.run(); err != nil {
		return nil, errors.Parse("invalid SMILES").WithDetail(fmt.Sprintf("%q: %v", s, err))
	}
	p.demoteChainAromatics()
	for i, a := range p.mol.atoms {
		if !a.Bracket && a.Number > 0 {
			p.mol.atoms[i].Hydrogens = p.mol.impliedHydrogens(i)
		}
	}
	return p.mol, nil
}

func (p *smilesParser) run() error {
	for p.pos < len(p.s) {
		c := p.s[p.pos]
		switch {
		case c == '(':
			if p.prev < 0 {
				return fmt.Errorf("branch without atom at %d", p.pos)
			}
			p.branch = append(p.branch, p.prev)
			p.pos++
		case c == ')':
			if len(p.branch) == 0 {
				return fmt.Errorf("unbalanced ')' at %d", p.pos)
			}
			if p.pending != 0 {
				return fmt.Errorf("dangling bond at %d", p.pos)
			}
			p.prev = p.branch[len(p.branch)-1]
			p.branch = p.branch[:len(p.branch)-1]
			p.pos++
		case c == '.':
			if p.pending != 0 || len(p.branch) != 0 {
				return fmt.Errorf("unexpected '.' at %d", p.pos)
			}
			p.prev = -1
			p.pos++
		case c == '-' || c == '/' || c == '\\':
			p.setBond(BondSingle)
		case c == '=':
			p.setBond(BondDouble)
		case c == '#':
			p.setBond(BondTriple)
		case c == ':':
			p.setBond(BondAromatic)
		case c == '%' || (c >= '0' && c <= '9'):
			if err := p.ringClosure(); err != nil {
				return err
			}
		case c == '[':
			a, err := p.bracketAtom()
			if err != nil {
				return err
			}
			if err := p.attach(a); err != nil {
				return err
			}
		default:
			a, ok := p.organicAtom()
			if !ok {
				return fmt.Errorf("unexpected character %q at %d", c, p.pos)
			}
			if err := p.attach(a); err != nil {
				return err
			}
		}
	}
	switch {
	case len(p.branch) != 0:
		return fmt.Errorf("unclosed branch")
	case len(p.rings) != 0:
		return fmt.Errorf("unclosed ring bond")
	case p.pending != 0:
		return fmt.Errorf("dangling bond at end")
	case len(p.mol.atoms) == 0:
		return fmt.Errorf("no atoms")
	}
	return nil
}

func (p *smilesParser) setBond(o BondOrder) {
	p.pending = o
	p.pos++
}

func (p *smilesParser) defaultOrder(a, b int) BondOrder {
	if p.mol.atoms[a].Aromatic && p.mol.atoms[b].Aromatic {
		return BondAromatic
	}
	return BondSingle
}

// demoteChainAromatics turns unmarked bonds between aromatic atoms that lie
// on no ring into single bonds, so c1ccccc1c1ccccc1 and c1ccccc1-c1ccccc1
// read as the same biaryl.
func (p *smilesParser) demoteChainAromatics() {
	for _, b := range p.implicit {
		if p.mol.bonds[b].Order == BondAromatic && !p.mol.BondInRing(b) {
			p.mol.bonds[b].Order = BondSingle
		}
	}
}

func (p *smilesParser) attach(a Atom) error {
	idx := p.mol.addAtom(a)
	if p.prev >= 0 {
		order := p.pending
		implicit := order == 0
		if implicit {
			order = p.defaultOrder(p.prev, idx)
		}
		b := p.mol.addBond(p.prev, idx, order)
		if implicit {
			p.implicit = append(p.implicit, b)
		}
	} else if p.pending != 0 {
		return fmt.Errorf("bond without preceding atom at %d", p.pos)
	}
	p.pending = 0
	p.prev = idx
	return nil
}

func (p *smilesParser) ringClosure() error {
	if p.prev < 0 {
		return fmt.Errorf("ring bond without atom at %d", p.pos)
	}
	var digit int
	if p.s[p.pos] == '%' {
		if p.pos+2 >= len(p.s) {
			return fmt.Errorf("truncated %%nn ring bond")
		}
		n, err := strconv.Atoi(p.s[p.pos+1 : p.pos+3])
		if err != nil {
			return fmt.Errorf("bad ring number at %d", p.pos)
		}
		digit = n
		p.pos += 3
	} else {
		digit = int(p.s[p.pos] - '0')
		p.pos++
	}

	open, ok := p.rings[digit]
	if !ok {
		p.rings[digit] = ringOpen{atom: p.prev, order: p.pending}
		p.pending = 0
		return nil
	}
	delete(p.rings, digit)
	if open.atom == p.prev || p.mol.BondBetween(open.atom, p.prev) >= 0 {
		return fmt.Errorf("invalid ring closure %d", digit)
	}
	order := p.pending
	if order == 0 {
		order = open.order
	}
	if order == 0 {
		order = p.defaultOrder(open.atom, p.prev)
	}
	p.mol.addBond(open.atom, p.prev, order)
	p.pending = 0
	return nil
}

func (p *smilesParser) organicAtom() (Atom, bool) {
	rest := p.s[p.pos:]
	switch {
	case strings.HasPrefix(rest, "Cl"):
		p.pos += 2
		return Atom{Symbol: "Cl", Number: 17}, true
	case strings.HasPrefix(rest, "Br"):
		p.pos += 2
		return Atom{Symbol: "Br", Number: 35}, true
	}
	c := rest[:1]
	p.pos++
	switch c {
	case "*":
		return Atom{Symbol: "*"}, true
	case "B", "C", "N", "O", "P", "S", "F", "I":
		return Atom{Symbol: c, Number: atomicNumbers[c]}, true
	case "b", "c", "n", "o", "p", "s":
		sym := aromaticSymbols[c]
		return Atom{Symbol: sym, Number: atomicNumbers[sym], Aromatic: true}, true
	}
	p.pos--
	return Atom{}, false
}

func (p *smilesParser) bracketAtom() (Atom, error) {
	end := strings.IndexByte(p.s[p.pos:], ']')
	if end < 0 {
		return Atom{}, fmt.Errorf("unclosed bracket atom at %d", p.pos)
	}
	body := p.s[p.pos+1 : p.pos+end]
	p.pos += end + 1

	a := Atom{Bracket: true}
	i := 0
	readInt := func() (int, bool) {
		j := i
		for j < len(body) && body[j] >= '0' && body[j] <= '9' {
			j++
		}
		if j == i {
			return 0, false
		}
		n, _ := strconv.Atoi(body[i:j])
		i = j
		return n, true
	}

	if n, ok := readInt(); ok {
		a.Isotope = n
	}

	// element
	switch {
	case i < len(body) && body[i] == '*':
		a.Symbol = "*"
		i++
	case i+1 < len(body) && aromaticSymbols[body[i:i+2]] != "":
		a.Symbol = aromaticSymbols[body[i:i+2]]
		a.Aromatic = true
		i += 2
	case i < len(body) && unicode.IsUpper(rune(body[i])):
		if i+1 < len(body) && unicode.IsLower(rune(body[i+1])) {
			if _, ok := atomicNumbers[body[i:i+2]]; ok {
				a.Symbol = body[i : i+2]
				i += 2
				break
			}
		}
		a.Symbol = body[i : i+1]
		i++
	case i < len(body) && aromaticSymbols[body[i:i+1]] != "":
		a.Symbol = aromaticSymbols[body[i:i+1]]
		a.Aromatic = true
		i++
	default:
		return Atom{}, fmt.Errorf("bracket atom %q has no element", body)
	}
	if a.Symbol != "*" {
		n, ok := atomicNumbers[a.Symbol]
		if !ok {
			return Atom{}, fmt.Errorf("unknown element %q", a.Symbol)
		}
		a.Number = n
	}

	// chirality
	if i < len(body) && body[i] == '@' {
		a.Chirality = "@"
		i++
		if i < len(body) && body[i] == '@' {
			a.Chirality = "@@"
			i++
		}
	}

	// hydrogens
	if i < len(body) && body[i] == 'H' {
		i++
		a.Hydrogens = 1
		if n, ok := readInt(); ok {
			a.Hydrogens = n
		}
	}

	// charge
	if i < len(body) && (body[i] == '+' || body[i] == '-') {
		sign := 1
		if body[i] == '-' {
			sign = -1
		}
		c := body[i]
		i++
		if n, ok := readInt(); ok {
			a.Charge = sign * n
		} else {
			a.Charge = sign
			for i < len(body) && body[i] == c {
				a.Charge += sign
				i++
			}
		}
	}

	// atom class
	if i < len(body) && body[i] == ':' {
		i++
		n, ok := readInt()
		if !ok {
			return Atom{}, fmt.Errorf("bad atom class in %q", body)
		}
		a.MapNum = n
	}

	if i != len(body) {
		return Atom{}, fmt.Errorf("unexpected %q in bracket atom %q", body[i:], body)
	}
	return a, nil
}
