package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/KeyIP-MMP/pkg/types/mmp"
)

func execute(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func TestReadStructures(t *testing.T) {
	in := "smiles id\n# comment\nCc1ccccc1 toluene\n\nCCc1ccccc1\nCCO ethyl alcohol\n"
	got, err := ReadStructures(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, []mmp.StructureInput{
		{ID: "toluene", SMILES: "Cc1ccccc1"},
		{ID: "5", SMILES: "CCc1ccccc1"},
		{ID: "ethyl alcohol", SMILES: "CCO"},
	}, got)
}

func TestReadStructures_LineTooLong(t *testing.T) {
	_, err := ReadStructures(strings.NewReader(strings.Repeat("C", maxLineBytes+1)))
	assert.Error(t, err)
}

func TestFormatTable(t *testing.T) {
	got := FormatTable([]string{"#", "reaction"}, [][]string{{"1", "a>>b"}, {"10", "c>>d"}})
	assert.Equal(t, "#   reaction\n--  --------\n1   a>>b\n10  c>>d\n", got)
	assert.Empty(t, FormatTable(nil, nil))
}

func TestRunCommand_LocalTSV(t *testing.T) {
	dir := t.TempDir()
	unprocessed := filepath.Join(dir, "unprocessed.tsv")

	out, _, err := execute(t, "Cc1ccccc1 tol\nCCc1ccccc1 eth\nC1CC bad\n",
		"run", "--unprocessed", unprocessed, "--heavy-atoms")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.GreaterOrEqual(t, len(lines), 2)
	assert.Equal(t, "transform\tleft_id\tright_id\tleft_fragment\tright_fragment\tleft_changing_heavy_atoms\tright_changing_heavy_atoms", lines[0])
	assert.Contains(t, out, "tol")
	assert.Contains(t, out, "eth")

	side, err := os.ReadFile(unprocessed)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(side), "id\tinput\treason\nbad\tC1CC\t"))
}

func TestRunCommand_JSON(t *testing.T) {
	out, _, err := execute(t, "Cc1ccccc1 tol\nCCc1ccccc1 eth\n", "run", "--format", "json", "--reverse")
	require.NoError(t, err)
	assert.Contains(t, out, `"run_id"`)
	assert.Contains(t, out, `"status": "completed"`)
}

func TestRunCommand_Rejects(t *testing.T) {
	_, _, err := execute(t, "C a\n", "run", "--format", "xml")
	assert.ErrorContains(t, err, "unknown format")

	_, _, err = execute(t, "C a\n", "run", "--cut-rule", "BOGUS")
	assert.Error(t, err)

	_, _, err = execute(t, "", "run")
	assert.ErrorContains(t, err, "no structures")

	_, _, err = execute(t, "", "run", "--input", "/does/not/exist.smi")
	assert.Error(t, err)
}

func TestRunOptions_OnlyChangedFlags(t *testing.T) {
	cmd := NewRunCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--max-cuts", "2", "--custom-pattern", "[#6]-[#7]"}))
	f := &runFlags{maxCuts: 2, customPattern: "[#6]-[#7]"}
	o := f.runOptions(cmd)

	require.NotNil(t, o.MaxCuts)
	assert.Equal(t, 2, *o.MaxCuts)
	require.NotNil(t, o.CutRule)
	assert.Equal(t, "CUSTOM", *o.CutRule)
	assert.Nil(t, o.IncludeReverseTransforms)
	assert.Nil(t, o.AddHydrogens)
}

func TestTransformCommands(t *testing.T) {
	out, _, err := execute(t, "", "transform", "rxn", "[1*]C", "[1*]CC")
	require.NoError(t, err)
	assert.Equal(t, "[*:1]C>>[*:1]CC\n", out)

	out, _, err = execute(t, "", "transform", "rxn", "--acyclic-single", "[1*]C>>[1*]CC")
	require.NoError(t, err)
	assert.Equal(t, "[*:1]-!@C>>[*:1]-!@CC\n", out)

	out, _, err = execute(t, "", "transform", "reverse", "[*:1]-!@C>>[*:1]-!@CC")
	require.NoError(t, err)
	assert.Equal(t, "[*:1]-!@CC>>[*:1]-!@C\n", out)

	_, _, err = execute(t, "", "transform", "reverse", "[1*C")
	assert.Error(t, err)
}

func TestTransformChirality_Table(t *testing.T) {
	out, _, err := execute(t, "", "transform", "chirality", "[*:1]C>>[*:1]CC")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "#  reaction\n"))
	assert.Contains(t, out, "[*:1]C>>[*:1][C@@]C")
	assert.Contains(t, out, "[*:1]C>>[*:1][C@]C")
}
