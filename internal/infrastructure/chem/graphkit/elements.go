package graphkit

// atomicNumbers covers the elements drug-like inputs actually use.
var atomicNumbers = map[string]int{
	"H": 1, "He": 2, "Li": 3, "Be": 4, "B": 5, "C": 6, "N": 7, "O": 8, "F": 9, "Ne": 10,
	"Na": 11, "Mg": 12, "Al": 13, "Si": 14, "P": 15, "S": 16, "Cl": 17, "Ar": 18,
	"K": 19, "Ca": 20, "Ti": 22, "V": 23, "Cr": 24, "Mn": 25, "Fe": 26, "Co": 27,
	"Ni": 28, "Cu": 29, "Zn": 30, "Ga": 31, "Ge": 32, "As": 33, "Se": 34, "Br": 35,
	"Kr": 36, "Rb": 37, "Sr": 38, "Zr": 40, "Mo": 42, "Ru": 44, "Rh": 45, "Pd": 46,
	"Ag": 47, "Cd": 48, "In": 49, "Sn": 50, "Sb": 51, "Te": 52, "I": 53, "Xe": 54,
	"Cs": 55, "Ba": 56, "Gd": 64, "Pt": 78, "Au": 79, "Hg": 80, "Tl": 81, "Pb": 82,
	"Bi": 83,
}

// symbols is the inverse of atomicNumbers.
var symbols = func() map[int]string {
	out := make(map[int]string, len(atomicNumbers))
	for s, n := range atomicNumbers {
		out[n] = s
	}
	return out
}()

// aromaticSymbols are the lowercase element spellings allowed in SMILES.
var aromaticSymbols = map[string]string{
	"b": "B", "c": "C", "n": "N", "o": "O", "p": "P", "s": "S", "se": "Se", "as": "As",
}

// organicValences lists default valences of the bare-atom subset.
var organicValences = map[int][]int{
	5:  {3},
	6:  {4},
	7:  {3, 5},
	8:  {2},
	15: {3, 5},
	16: {2, 4, 6},
	9:  {1},
	17: {1},
	35: {1},
	53: {1},
}

// implicitHydrogens computes the hydrogen count a bare atom would carry with
// the given explicit valence.
func implicitHydrogens(number int, aromatic bool, explicitValence int) int {
	vals, ok := organicValences[number]
	if !ok {
		return 0
	}
	if aromatic {
		h := vals[0] - explicitValence - 1
		if h < 0 {
			return 0
		}
		return h
	}
	for _, v := range vals {
		if v >= explicitValence {
			return v - explicitValence
		}
	}
	return 0
}

// explicitValence sums bond valences around atom i.
func (m *Mol) explicitValence(i int) int {
	v := 0
	for _, b := range m.adj[i] {
		v += m.bonds[b].Order.valence()
	}
	return v
}

// impliedHydrogens is the hydrogen count atom i would get if written bare.
func (m *Mol) impliedHydrogens(i int) int {
	a := m.atoms[i]
	return implicitHydrogens(a.Number, a.Aromatic, m.explicitValence(i))
}

// isOrganic reports whether atom i may be written without brackets.
func (m *Mol) isOrganic(i int) bool {
	a := m.atoms[i]
	if a.Isotope != 0 || a.Charge != 0 || a.MapNum != 0 {
		return false
	}
	if a.Number == 0 {
		return a.Hydrogens == 0
	}
	if _, ok := organicValences[a.Number]; !ok {
		return false
	}
	if a.Aromatic {
		switch a.Number {
		case 5, 6, 7, 8, 15, 16:
		default:
			return false
		}
	}
	return a.Hydrogens == m.impliedHydrogens(i)
}
