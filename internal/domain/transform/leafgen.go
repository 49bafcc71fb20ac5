package transform

// LeafGenerationPattern turns R>>P into R>>R', where R' is R with every
// attachment atom detached into its own component.
func LeafGenerationPattern(reaction string) (string, error) {
	left, _, err := splitSides(reaction)
	if err != nil {
		return "", err
	}
	detached, err := detachAttachments(left)
	if err != nil {
		return "", err
	}
	return joinSides(left, detached), nil
}

func detachAttachments(tokens []token) ([]token, error) {
	drop := make([]bool, len(tokens))
	var moved []token
	for i, t := range tokens {
		if !isAttachment(t) {
			continue
		}
		moved = append(moved, t)
		drop[i] = true

		// "(" bond? T ")"
		start := i - 1
		if start >= 0 && tokens[start].kind == tokBond {
			start--
		}
		if start >= 0 && tokens[start].kind == tokOpen && i+1 < len(tokens) && tokens[i+1].kind == tokClose {
			for j := start; j <= i+1; j++ {
				drop[j] = true
			}
			continue
		}
		switch {
		case isBoundary(tokens, i-1):
			if i+1 < len(tokens) && tokens[i+1].kind == tokBond {
				drop[i+1] = true
			}
		case isBoundary(tokens, i+1) || tokens[i+1].kind == tokClose:
			if tokens[i-1].kind == tokBond {
				drop[i-1] = true
			}
		default:
			return nil, patternError(join(tokens), "attachment atom inside a chain")
		}
	}

	out := make([]token, 0, len(tokens)+2*len(moved))
	for i, t := range tokens {
		if drop[i] {
			continue
		}
		if t.kind == tokDot && (len(out) == 0 || out[len(out)-1].kind == tokDot) {
			continue
		}
		out = append(out, t)
	}
	if len(out) > 0 && out[len(out)-1].kind == tokDot {
		out = out[:len(out)-1]
	}
	for _, t := range moved {
		if len(out) > 0 {
			out = append(out, token{tokDot, "."})
		}
		out = append(out, t)
	}
	return out, nil
}
