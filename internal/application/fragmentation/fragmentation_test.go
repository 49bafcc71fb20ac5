package fragmentation_test

import (
	"context"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/KeyIP-MMP/internal/application/fragmentation"
	"github.com/turtacn/KeyIP-MMP/internal/domain/fragment"
	"github.com/turtacn/KeyIP-MMP/internal/infrastructure/chem/graphkit"
	"github.com/turtacn/KeyIP-MMP/pkg/errors"
	"github.com/turtacn/KeyIP-MMP/pkg/types/mmp"
)

func canonical(t *testing.T, tk *graphkit.Toolkit, s string) string {
	t.Helper()
	m, err := tk.Parse(s)
	require.NoError(t, err)
	defer tk.Release(m)
	c, err := tk.Canonicalize(m)
	require.NoError(t, err)
	return c
}

func keyOf(t *testing.T, tk *graphkit.Toolkit, s string) string {
	t.Helper()
	k, err := fragment.ParseKey(tk, s)
	require.NoError(t, err)
	return k.String()
}

func newRunner(t *testing.T, tk *graphkit.Toolkit, opts fragmentation.Options, ro ...fragmentation.RunnerOption[*graphkit.Mol]) *fragmentation.Runner[*graphkit.Mol] {
	t.Helper()
	e, err := fragmentation.NewEngine[*graphkit.Mol](tk, opts, nil)
	require.NoError(t, err)
	return fragmentation.NewRunner(e, 4, ro...)
}

// values indexes a Result by Key text.
func values(r *fragment.Result) map[string][]fragment.Value {
	out := make(map[string][]fragment.Value)
	r.Each(func(k fragment.Key, vs []fragment.Value) { out[k.String()] = vs })
	return out
}

func recordSet(r *fragment.Result) []string {
	var out []string
	r.Each(func(k fragment.Key, vs []fragment.Value) {
		for _, v := range vs {
			out = append(out, k.String()+" > "+v.Canonical())
		}
	})
	sort.Strings(out)
	return out
}

func TestRun_TolueneEthylbenzene(t *testing.T) {
	tk := graphkit.New()
	r := newRunner(t, tk, fragmentation.DefaultOptions())

	out, err := r.Run(context.Background(), []mmp.StructureInput{
		{ID: "tol", SMILES: "Cc1ccccc1"},
		{ID: "eth", SMILES: "CCc1ccccc1"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, out.Processed)
	assert.Empty(t, out.Unprocessed)

	byKey := values(out.Result)
	phenyl := byKey[keyOf(t, tk, "[1*]c1ccccc1")]
	require.Len(t, phenyl, 2)
	assert.Equal(t, canonical(t, tk, "[1*]C"), phenyl[0].Canonical())
	assert.Equal(t, "tol", phenyl[0].ID())
	assert.Equal(t, 1, phenyl[0].HeavyAtoms())
	assert.Equal(t, canonical(t, tk, "[1*]CC"), phenyl[1].Canonical())
	assert.Equal(t, "eth", phenyl[1].ID())
	assert.Equal(t, 2, phenyl[1].HeavyAtoms())

	methyl := byKey[keyOf(t, tk, "[1*]C")]
	require.Len(t, methyl, 2)
	assert.Equal(t, canonical(t, tk, "[1*]c1ccccc1"), methyl[0].Canonical())
	assert.Equal(t, canonical(t, tk, "[1*]Cc1ccccc1"), methyl[1].Canonical())

	// tol: 1 bond x 2 orientations; eth: 2 bonds x 2 orientations.
	assert.Equal(t, 6, out.Result.ValueCount())
	assert.Zero(t, tk.Live())
}

func TestRun_SignificantIDs(t *testing.T) {
	tk := graphkit.New()
	opts := fragmentation.DefaultOptions()
	inputs := []mmp.StructureInput{{ID: "a", SMILES: "Cc1ccccc1"}, {ID: "b", SMILES: "c1ccccc1C"}}

	out, err := newRunner(t, tk, opts).Run(context.Background(), inputs)
	require.NoError(t, err)
	assert.Len(t, values(out.Result)[keyOf(t, tk, "[1*]c1ccccc1")], 2)

	opts.SignificantIDs = false
	out, err = newRunner(t, tk, opts).Run(context.Background(), inputs)
	require.NoError(t, err)
	phenyl := values(out.Result)[keyOf(t, tk, "[1*]c1ccccc1")]
	require.Len(t, phenyl, 1)
	assert.Equal(t, "a", phenyl[0].ID(), "first insertion wins")
}

func TestNewEngine_UnsupportedConfiguration(t *testing.T) {
	tk := graphkit.New()
	for name, opts := range map[string]fragmentation.Options{
		"hydrogens with two cuts": {CutRule: fragmentation.SingleAcyclic, MaxCuts: 2, AddHydrogens: true},
		"zero cuts":               {CutRule: fragmentation.SingleAcyclic, MaxCuts: 0},
		"empty custom rule":       {CutRule: fragmentation.CustomCutRule(" "), MaxCuts: 1},
	} {
		_, err := fragmentation.NewEngine[*graphkit.Mol](tk, opts, nil)
		require.Error(t, err, name)
		assert.True(t, errors.IsCode(err, errors.CodeUnsupportedConfiguration), name)
		assert.True(t, errors.IsRunFatal(err), name)
	}
}

func TestCutRuleByName(t *testing.T) {
	r, err := fragmentation.CutRuleByName("matsy", "")
	require.NoError(t, err)
	assert.Equal(t, fragmentation.Matsy, r)

	r, err = fragmentation.CutRuleByName("CUSTOM", "[#6]!@-[#7]")
	require.NoError(t, err)
	assert.Equal(t, "[#6]!@-[#7]", r.Pattern)

	_, err = fragmentation.CutRuleByName("nope", "")
	assert.True(t, errors.IsCode(err, errors.CodeUnsupportedConfiguration))
}

func TestRun_CutRules(t *testing.T) {
	tk := graphkit.New()
	input := []mmp.StructureInput{{ID: "eth", SMILES: "CCc1ccccc1"}}
	for _, tc := range []struct {
		rule fragmentation.CutRule
		keys int
	}{
		{fragmentation.SingleAcyclic, 4},
		{fragmentation.RingSubstituent, 2},
		{fragmentation.Matsy, 2},
	} {
		opts := fragmentation.DefaultOptions()
		opts.CutRule = tc.rule
		out, err := newRunner(t, tk, opts).Run(context.Background(), input)
		require.NoError(t, err)
		assert.Equal(t, tc.keys, out.Result.Len(), tc.rule.Kind)
	}
	assert.Zero(t, tk.Live())
}

func TestRun_AddHydrogens(t *testing.T) {
	tk := graphkit.New()
	opts := fragmentation.DefaultOptions()
	opts.AddHydrogens = true
	out, err := newRunner(t, tk, opts).Run(context.Background(), []mmp.StructureInput{{ID: "m", SMILES: "C"}})
	require.NoError(t, err)

	byKey := values(out.Result)
	hydrogen := byKey[keyOf(t, tk, "[1*][H]")]
	require.Len(t, hydrogen, 1)
	assert.Equal(t, canonical(t, tk, "[1*]C([H])([H])[H]"), hydrogen[0].Canonical())

	// The heavy-atom rule never cuts the added hydrogens.
	opts.CutRule = fragmentation.SingleAcyclicNonH
	out, err = newRunner(t, tk, opts).Run(context.Background(), []mmp.StructureInput{{ID: "m", SMILES: "C"}})
	require.NoError(t, err)
	assert.NotContains(t, values(out.Result), keyOf(t, tk, "[1*][H]"))
	assert.Zero(t, tk.Live())
}

func TestRun_TrackCutConnectivity(t *testing.T) {
	tk := graphkit.New()
	opts := fragmentation.DefaultOptions()
	opts.MaxCuts = 2
	opts.TrackCutConnectivity = true
	out, err := newRunner(t, tk, opts).Run(context.Background(), []mmp.StructureInput{{ID: "eth", SMILES: "CCc1ccccc1"}})
	require.NoError(t, err)

	var bridges int
	out.Result.Each(func(k fragment.Key, vs []fragment.Value) {
		for _, v := range vs {
			if v.IsBridging() {
				bridges++
				assert.Equal(t, 2, k.ComponentCount())
				assert.Equal(t, fragment.BridgingValue, v.Canonical())
			}
		}
	})
	assert.Equal(t, 2, bridges, "one per single cut")

	opts.TrackCutConnectivity = false
	out, err = newRunner(t, tk, opts).Run(context.Background(), []mmp.StructureInput{{ID: "eth", SMILES: "CCc1ccccc1"}})
	require.NoError(t, err)
	out.Result.Each(func(_ fragment.Key, vs []fragment.Value) {
		for _, v := range vs {
			assert.False(t, v.IsBridging())
		}
	})
	assert.Zero(t, tk.Live())
}

func TestRun_DoubleCutRelabelsCore(t *testing.T) {
	tk := graphkit.New()
	opts := fragmentation.DefaultOptions()
	opts.MaxCuts = 2
	out, err := newRunner(t, tk, opts).Run(context.Background(), []mmp.StructureInput{{ID: "x", SMILES: "Cc1ccc(C)cc1"}})
	require.NoError(t, err)

	key := canonical(t, tk, "[1*]C") + "." + canonical(t, tk, "[2*]C")
	core := values(out.Result)[key]
	require.Len(t, core, 1)
	assert.Equal(t, canonical(t, tk, "[1*]c1ccc([2*])cc1"), core[0].Canonical())
	assert.Equal(t, 2, core[0].AttachmentCount())
	assert.Equal(t, 6, core[0].HeavyAtoms())
	assert.Zero(t, tk.Live())
}

func TestRun_IndependentOfInputAtomOrder(t *testing.T) {
	tk := graphkit.New()
	opts := fragmentation.DefaultOptions()
	opts.CutRule = fragmentation.CustomCutRule("[C;H3]!@-[c]")
	opts.MaxCuts = 2
	opts.SignificantIDs = false

	run := func(smiles string) []string {
		out, err := newRunner(t, tk, opts).Run(context.Background(), []mmp.StructureInput{{ID: "m", SMILES: smiles}})
		require.NoError(t, err)
		return recordSet(out.Result)
	}
	a := run("Cc1ccc(O)c(C)c1")
	b := run("Oc1ccc(C)cc1C")
	require.NotEmpty(t, a)
	assert.Equal(t, a, b)
	assert.Zero(t, tk.Live())
}

func TestRun_LargestComponent(t *testing.T) {
	tk := graphkit.New()
	opts := fragmentation.DefaultOptions()
	salt, err := newRunner(t, tk, opts).Run(context.Background(), []mmp.StructureInput{{ID: "m", SMILES: "Cl.CCc1ccccc1"}})
	require.NoError(t, err)
	plain, err := newRunner(t, tk, opts).Run(context.Background(), []mmp.StructureInput{{ID: "m", SMILES: "CCc1ccccc1"}})
	require.NoError(t, err)
	assert.Equal(t, recordSet(plain.Result), recordSet(salt.Result))
	assert.Zero(t, tk.Live())
}

func TestRun_UnprocessedSideChannel(t *testing.T) {
	tk := graphkit.New()
	out, err := newRunner(t, tk, fragmentation.DefaultOptions()).Run(context.Background(), []mmp.StructureInput{
		{ID: "bad1", SMILES: "C1CC"},
		{ID: "ok", SMILES: "Cc1ccccc1"},
		{ID: "bad2", SMILES: ""},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, out.Processed)
	require.Len(t, out.Unprocessed, 2)
	assert.Equal(t, "bad1", out.Unprocessed[0].ID)
	assert.Equal(t, "C1CC", out.Unprocessed[0].Input)
	assert.NotEmpty(t, out.Unprocessed[0].Reason)
	assert.Equal(t, "bad2", out.Unprocessed[1].ID)
	assert.Equal(t, 2, out.Result.Len())
	assert.Zero(t, tk.Live())
}

func TestRun_DeterministicAcrossWorkers(t *testing.T) {
	tk := graphkit.New()
	inputs := []mmp.StructureInput{
		{ID: "1", SMILES: "Cc1ccccc1"},
		{ID: "2", SMILES: "CCc1ccccc1"},
		{ID: "3", SMILES: "Oc1ccccc1"},
		{ID: "4", SMILES: "Nc1ccccc1"},
		{ID: "5", SMILES: "CC(=O)Nc1ccccc1"},
	}
	e, err := fragmentation.NewEngine[*graphkit.Mol](tk, fragmentation.DefaultOptions(), nil)
	require.NoError(t, err)

	flatten := func(r *fragment.Result) []string {
		var out []string
		r.Each(func(k fragment.Key, vs []fragment.Value) {
			for _, v := range vs {
				out = append(out, k.String()+" "+v.Canonical()+" "+v.ID())
			}
		})
		return out
	}
	serial, err := fragmentation.NewRunner(e, 1).Run(context.Background(), inputs)
	require.NoError(t, err)
	parallel, err := fragmentation.NewRunner(e, 8).Run(context.Background(), inputs)
	require.NoError(t, err)
	assert.Equal(t, flatten(serial.Result), flatten(parallel.Result))
}

func TestRun_Cancelled(t *testing.T) {
	tk := graphkit.New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out, err := newRunner(t, tk, fragmentation.DefaultOptions()).Run(ctx, []mmp.StructureInput{{ID: "m", SMILES: "CCO"}})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeCancelled))
	require.NotNil(t, out)
	assert.Zero(t, out.Processed)
	assert.Zero(t, tk.Live())
}

type memoryCache struct {
	mu   sync.Mutex
	data map[string][]fragment.Record
	sets int
}

func (c *memoryCache) Get(_ context.Context, key string) ([]fragment.Record, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.data[key]
	return r, ok, nil
}

func (c *memoryCache) Set(_ context.Context, key string, records []fragment.Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = records
	c.sets++
	return nil
}

func TestRun_Cache(t *testing.T) {
	tk := graphkit.New()
	cache := &memoryCache{data: make(map[string][]fragment.Record)}
	r := newRunner(t, tk, fragmentation.DefaultOptions(), fragmentation.WithCache[*graphkit.Mol](cache))
	inputs := []mmp.StructureInput{{ID: "tol", SMILES: "Cc1ccccc1"}, {ID: "eth", SMILES: "CCc1ccccc1"}}

	first, err := r.Run(context.Background(), inputs)
	require.NoError(t, err)
	assert.Zero(t, first.CacheHits)
	assert.Equal(t, 2, cache.sets)

	// Same structures written differently under new IDs.
	second, err := r.Run(context.Background(), []mmp.StructureInput{{ID: "t2", SMILES: "c1ccccc1C"}, {ID: "e2", SMILES: "c1ccccc1CC"}})
	require.NoError(t, err)
	assert.Equal(t, 2, second.CacheHits)
	assert.Equal(t, recordSet(first.Result), recordSet(second.Result))
	second.Result.Each(func(_ fragment.Key, vs []fragment.Value) {
		for _, v := range vs {
			assert.Contains(t, []string{"t2", "e2"}, v.ID())
		}
	})
	assert.Zero(t, tk.Live())
}
