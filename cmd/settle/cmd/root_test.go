package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const trip = `# four friends, two transfers
Dexter spent 5300
Angel spent 2700
Angel spent 2200
Debra spent 800
Debra spent 1700
Harry spent 1900
Dexter gave 2000 to Harry
Angel gave 3200 to Debra
`

func writeTrip(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("CURRENCY_SYMBOL", "")
	t.Setenv("CURRENCY_PLACES", "")

	root := NewRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestSolve(t *testing.T) {
	path := writeTrip(t, "trip.txt", trip)

	out, err := run(t, "", "solve", path)
	require.NoError(t, err)
	assert.Equal(t, "1. Debra pays 3650 to Dexter\n2. Debra pays 700 to Angel\n3. Harry pays 3750 to Angel\n", out)

	out, err = run(t, "", "solve", path, "--strategy", "largest", "--verify")
	require.NoError(t, err)
	assert.Equal(t, "1. Debra pays 4350 to Angel\n2. Harry pays 100 to Angel\n3. Harry pays 3650 to Dexter\n", out)
}

func TestSolveFormatting(t *testing.T) {
	out, err := run(t, "Alice spent 100\nBob spent 0\nCarol spent 0\n", "solve", "-", "--symbol", "$", "--places", "2")
	require.NoError(t, err)
	assert.Equal(t, "1. Bob pays $33.33 to Alice\n2. Carol pays $33.33 to Alice\n", out)
}

func TestSolveYAML(t *testing.T) {
	path := writeTrip(t, "trip.yaml", `records:
  - spent: {who: Alice, amount: 300}
  - spent: {who: Bob, amount: 0}
  - gave: {from: Bob, amount: 50, to: Alice}
`)
	out, err := run(t, "", "solve", path)
	require.NoError(t, err)
	assert.Equal(t, "1. Bob pays 100 to Alice\n", out)
}

func TestSolveErrors(t *testing.T) {
	path := writeTrip(t, "trip.txt", trip)

	_, err := run(t, "", "solve", path, "--strategy", "random")
	assert.ErrorContains(t, err, "unknown strategy")

	_, err = run(t, "", "solve", filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)

	_, err = run(t, "Alice spent -1\n", "solve", "-")
	assert.ErrorContains(t, err, "invalid amount")

	_, err = run(t, "", "solve")
	assert.Error(t, err)

	_, err = run(t, "", "solve", path, "--places", "9")
	assert.ErrorContains(t, err, "places")
}

func TestPlans(t *testing.T) {
	path := writeTrip(t, "trip.txt", trip)

	out, err := run(t, "", "plans", path, "--limit", "0")
	require.NoError(t, err)
	assert.Equal(t, 8, strings.Count(out, "Plan "))
	assert.True(t, strings.HasPrefix(out, "Plan 1 (3 payments, 1 splits):\n1. Debra pays 3650 to Dexter\n"))

	seq, err := run(t, "", "plans", path, "--limit", "0")
	require.NoError(t, err)
	par, err := run(t, "", "plans", path, "--limit", "0", "--parallel", "--workers", "3")
	require.NoError(t, err)
	assert.Equal(t, seq, par)

	out, err = run(t, "", "plans", path, "--limit", "3")
	require.NoError(t, err)
	assert.Equal(t, 3, strings.Count(out, "Plan "))

	out, err = run(t, "", "plans", path, "--limit", "0", "--distinct", "--shortest")
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(out, "Plan "))

	_, err = run(t, "", "plans", path, "--limit", "-1")
	assert.Error(t, err)
}

func TestPlansOneCreditor(t *testing.T) {
	var in strings.Builder
	in.WriteString("payer spent 10000\n")
	for k := 0; k < 12; k++ {
		in.WriteString("m" + strconv.Itoa(k) + " spent 0\n")
	}

	for _, args := range [][]string{
		{"plans", "-", "--limit", "0", "--distinct"},
		{"plans", "-", "--limit", "0", "--distinct", "--parallel"},
		{"plans", "-", "--limit", "0", "--distinct", "--max-nodes", "100"},
	} {
		out, err := run(t, in.String(), args...)
		require.NoError(t, err, args)
		assert.Equal(t, 1, strings.Count(out, "Plan "), args)
		assert.Contains(t, out, "Plan 1 (12 payments, 0 splits):\n", args)
	}

	_, err := run(t, in.String(), "plans", "-", "--max-nodes", "-1")
	assert.ErrorContains(t, err, "max-nodes")
}

func TestBalances(t *testing.T) {
	path := writeTrip(t, "trip.txt", trip)

	out, err := run(t, "", "balances", path, "--symbol", "円")
	require.NoError(t, err)
	assert.Contains(t, out, "Total cost: 14600 円\n")
	assert.Contains(t, out, "Fair share: 3650 円\n")
	assert.Contains(t, out, "Debra owes 4350 円 (paid -700 円)\n")
	assert.Contains(t, out, "\nDexter: credit 3650 円\nAngel: credit 4450 円\nDebra: debt 4350 円\nHarry: debt 3750 円\n")

	out, err = run(t, "", "balances", path, "--json")
	require.NoError(t, err)
	assert.Contains(t, out, `"expected": "3650"`)
	assert.Contains(t, out, `"role": "credit"`)
}
