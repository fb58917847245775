package diff

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func concat(chunks []Chunk) (expected, actual []string) {
	expected, actual = []string{}, []string{}
	for _, c := range chunks {
		expected = append(expected, c.ExpectedLines()...)
		actual = append(actual, c.ActualLines()...)
	}
	return expected, actual
}

func TestPositional(t *testing.T) {
	t.Run("IdenticalSequences", func(t *testing.T) {
		lines := []string{"a", "b", "c"}
		chunks := Positional(lines, lines)
		require.Len(t, chunks, 1)
		assert.Equal(t, Unchanged, chunks[0].Kind)
		assert.Equal(t, lines, chunks[0].Lines)
	})

	t.Run("SingleDifference", func(t *testing.T) {
		chunks := Positional([]string{"a", "b", "c"}, []string{"a", "X", "c"})
		assert.Equal(t, []Chunk{
			{Kind: Unchanged, Lines: []string{"a"}},
			{Kind: Changed, Expected: []string{"b"}, Actual: []string{"X"}},
			{Kind: Unchanged, Lines: []string{"c"}},
		}, chunks)
	})

	t.Run("ExpectedLongerTailStaysOnExpectedSide", func(t *testing.T) {
		chunks := Positional([]string{"a", "b", "c"}, []string{"a"})
		assert.Equal(t, []Chunk{
			{Kind: Unchanged, Lines: []string{"a"}},
			{Kind: Changed, Expected: []string{"b", "c"}},
		}, chunks)
	})

	t.Run("ActualLongerTailStaysOnActualSide", func(t *testing.T) {
		chunks := Positional([]string{"a"}, []string{"a", "b", "c"})
		assert.Equal(t, []Chunk{
			{Kind: Unchanged, Lines: []string{"a"}},
			{Kind: Changed, Actual: []string{"b", "c"}},
		}, chunks)
	})

	t.Run("TailMergesWithPrecedingChange", func(t *testing.T) {
		chunks := Positional([]string{"a", "b"}, []string{"x", "b", "c"})
		assert.Equal(t, []Chunk{
			{Kind: Changed, Expected: []string{"a"}, Actual: []string{"x"}},
			{Kind: Unchanged, Lines: []string{"b"}},
			{Kind: Changed, Actual: []string{"c"}},
		}, chunks)

		chunks = Positional([]string{"a", "b", "c"}, []string{"a", "x"})
		assert.Equal(t, []Chunk{
			{Kind: Unchanged, Lines: []string{"a"}},
			{Kind: Changed, Expected: []string{"b", "c"}, Actual: []string{"x"}},
		}, chunks)
	})

	t.Run("DoesNotAliasInput", func(t *testing.T) {
		expected := []string{"a", "b", "c"}
		chunks := Positional(expected, []string{"a", "b", "d"})
		chunks[0].Lines[0] = "mutated"
		assert.Equal(t, "a", expected[0])
	})
}

func TestAlign(t *testing.T) {
	t.Run("IdenticalSequences", func(t *testing.T) {
		lines := []string{"1", "2", "3", "4"}
		chunks := Align(lines, lines)
		require.Len(t, chunks, 1)
		assert.Equal(t, Unchanged, chunks[0].Kind)
	})

	t.Run("InsertedLineDoesNotCascade", func(t *testing.T) {
		chunks := Align([]string{"a", "b", "c", "d"}, []string{"a", "new", "b", "c", "d"})
		assert.Equal(t, []Chunk{
			{Kind: Unchanged, Lines: []string{"a"}},
			{Kind: Changed, Actual: []string{"new"}},
			{Kind: Unchanged, Lines: []string{"b", "c", "d"}},
		}, chunks)
	})

	t.Run("RemovalAndInsertionCoalesce", func(t *testing.T) {
		chunks := Align([]string{"a", "b", "c"}, []string{"a", "X", "c"})
		assert.Equal(t, []Chunk{
			{Kind: Unchanged, Lines: []string{"a"}},
			{Kind: Changed, Expected: []string{"b"}, Actual: []string{"X"}},
			{Kind: Unchanged, Lines: []string{"c"}},
		}, chunks)
	})

	t.Run("KeepsLongestCommonSubsequence", func(t *testing.T) {
		chunks := Align(
			[]string{"A", "B", "C", "D", "1", "2", "3"},
			[]string{"1", "2", "3", "A", "x", "B", "y", "C", "z", "D"},
		)
		assert.Equal(t, []Chunk{
			{Kind: Changed, Actual: []string{"1", "2", "3"}},
			{Kind: Unchanged, Lines: []string{"A"}},
			{Kind: Changed, Actual: []string{"x"}},
			{Kind: Unchanged, Lines: []string{"B"}},
			{Kind: Changed, Actual: []string{"y"}},
			{Kind: Unchanged, Lines: []string{"C"}},
			{Kind: Changed, Actual: []string{"z"}},
			{Kind: Unchanged, Lines: []string{"D"}},
			{Kind: Changed, Expected: []string{"1", "2", "3"}},
		}, chunks)
	})

	t.Run("EmptySides", func(t *testing.T) {
		chunks := Align(nil, []string{"a"})
		assert.Equal(t, []Chunk{{Kind: Changed, Actual: []string{"a"}}}, chunks)
		assert.Empty(t, Align(nil, nil))
	})
}

func TestChunksReproduceBothSequences(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	alphabet := []string{"a", "b", "c", "d"}
	randomLines := func() []string {
		lines := make([]string, rng.Intn(30))
		for i := range lines {
			lines[i] = alphabet[rng.Intn(len(alphabet))]
		}
		return lines
	}

	for _, mode := range []Mode{ModePositional, ModeAlignment} {
		for i := 0; i < 200; i++ {
			expected, actual := randomLines(), randomLines()
			chunks := Compute(mode, expected, actual)

			gotExpected, gotActual := concat(chunks)
			require.Equal(t, append([]string{}, expected...), gotExpected, "mode %s case %d", mode, i)
			require.Equal(t, append([]string{}, actual...), gotActual, "mode %s case %d", mode, i)

			for j := 1; j < len(chunks); j++ {
				require.NotEqual(t, chunks[j-1].Kind, chunks[j].Kind, fmt.Sprintf("adjacent chunks of the same kind in mode %s", mode))
			}
			for _, c := range chunks {
				if c.Kind == Unchanged {
					require.NotEmpty(t, c.Lines)
				} else {
					require.False(t, len(c.Expected) == 0 && len(c.Actual) == 0)
				}
			}
		}
	}
}

// lcsLength is the textbook quadratic table, used as a reference.
func lcsLength(a, b []string) int {
	table := make([][]int, len(a)+1)
	for i := range table {
		table[i] = make([]int, len(b)+1)
	}
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				table[i][j] = table[i-1][j-1] + 1
			} else {
				table[i][j] = max(table[i-1][j], table[i][j-1])
			}
		}
	}
	return table[len(a)][len(b)]
}

func TestAlignUnchangedLinesFormLongestCommonSubsequence(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	alphabet := []string{"a", "b", "c", "d", "e"}
	randomLines := func() []string {
		lines := make([]string, rng.Intn(40))
		for i := range lines {
			lines[i] = alphabet[rng.Intn(len(alphabet))]
		}
		return lines
	}

	for i := 0; i < 300; i++ {
		expected, actual := randomLines(), randomLines()

		kept := 0
		for _, c := range Align(expected, actual) {
			if c.Kind == Unchanged {
				kept += len(c.Lines)
			}
		}
		require.Equal(t, lcsLength(expected, actual), kept, "case %d: %v vs %v", i, expected, actual)
	}
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{in: "", want: ModePositional},
		{in: "positional", want: ModePositional},
		{in: "Alignment", want: ModeAlignment},
		{in: "lcs", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMode(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "invalid diff mode")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSplitLines(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c", ""}, SplitLines("a\r\nb\rc\n"))
	assert.Equal(t, []string{""}, SplitLines(""))
}
