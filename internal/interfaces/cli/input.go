package cli

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/turtacn/KeyIP-MMP/pkg/types/mmp"
)

const maxLineBytes = 1 << 20

// ReadStructures reads one structure per line: the structure text, then
// whitespace, then its identifier.  A line without an identifier is named
// by its line number.  Blank lines and lines starting with '#' are skipped,
// as is a leading "smiles" header line.
func ReadStructures(r io.Reader) ([]mmp.StructureInput, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineBytes)

	var out []mmp.StructureInput
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if lineNo == 1 && strings.EqualFold(fields[0], "smiles") {
			continue
		}
		id := strconv.Itoa(lineNo)
		if len(fields) > 1 {
			id = strings.Join(fields[1:], " ")
		}
		out = append(out, mmp.StructureInput{ID: id, SMILES: fields[0]})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read structures: line %d: %w", lineNo+1, err)
	}
	return out, nil
}
