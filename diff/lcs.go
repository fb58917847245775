package diff

// lcs walks a longest common subsequence of two line sequences and feeds the
// resulting edit script to a builder. Lines are interned to integers first, and
// the middle is split Hirschberg style so memory stays linear in the input.
type lcs struct {
	expected, actual []string
	a, b             []int
	out              *builder
}

func newLCS(expected, actual []string, out *builder) *lcs {
	ids := make(map[string]int)
	intern := func(lines []string) []int {
		res := make([]int, len(lines))
		for i, line := range lines {
			id, ok := ids[line]
			if !ok {
				id = len(ids)
				ids[line] = id
			}
			res[i] = id
		}
		return res
	}

	return &lcs{
		expected: expected,
		actual:   actual,
		a:        intern(expected),
		b:        intern(actual),
		out:      out,
	}
}

func (l *lcs) run() {
	n, m := len(l.a), len(l.b)

	prefix := 0
	for prefix < n && prefix < m && l.a[prefix] == l.b[prefix] {
		prefix++
	}
	suffix := 0
	for suffix < n-prefix && suffix < m-prefix && l.a[n-1-suffix] == l.b[m-1-suffix] {
		suffix++
	}

	l.out.unchanged(l.expected[:prefix]...)
	l.solve(prefix, n-suffix, prefix, m-suffix)
	l.out.unchanged(l.expected[n-suffix:]...)
}

// solve emits the edit script for a[a0:a1] against b[b0:b1].
func (l *lcs) solve(a0, a1, b0, b1 int) {
	switch {
	case a0 == a1:
		l.out.changed(nil, l.actual[b0:b1])
		return
	case b0 == b1:
		l.out.changed(l.expected[a0:a1], nil)
		return
	case a1-a0 == 1:
		for j := b0; j < b1; j++ {
			if l.b[j] == l.a[a0] {
				l.out.changed(nil, l.actual[b0:j])
				l.out.unchanged(l.expected[a0])
				l.out.changed(nil, l.actual[j+1:b1])
				return
			}
		}
		l.out.changed(l.expected[a0:a1], l.actual[b0:b1])
		return
	}

	mid := (a0 + a1) / 2
	fwd := l.forward(a0, mid, b0, b1)
	bwd := l.backward(mid, a1, b0, b1)

	split, best := b0, -1
	for j := b0; j <= b1; j++ {
		if n := fwd[j-b0] + bwd[j-b0]; n > best {
			split, best = j, n
		}
	}

	l.solve(a0, mid, b0, split)
	l.solve(mid, a1, split, b1)
}

// forward returns row where row[j] is the LCS length of a[a0:a1] and
// b[b0:b0+j].
func (l *lcs) forward(a0, a1, b0, b1 int) []int {
	prev := make([]int, b1-b0+1)
	cur := make([]int, b1-b0+1)
	for i := a0; i < a1; i++ {
		cur[0] = 0
		for j := b0; j < b1; j++ {
			k := j - b0
			if l.a[i] == l.b[j] {
				cur[k+1] = prev[k] + 1
			} else {
				cur[k+1] = max(prev[k+1], cur[k])
			}
		}
		prev, cur = cur, prev
	}
	return prev
}

// backward returns row where row[j] is the LCS length of a[a0:a1] and
// b[b0+j:b1].
func (l *lcs) backward(a0, a1, b0, b1 int) []int {
	n := b1 - b0
	prev := make([]int, n+1)
	cur := make([]int, n+1)
	for i := a1 - 1; i >= a0; i-- {
		cur[n] = 0
		for j := b1 - 1; j >= b0; j-- {
			k := j - b0
			if l.a[i] == l.b[j] {
				cur[k] = prev[k+1] + 1
			} else {
				cur[k] = max(prev[k], cur[k+1])
			}
		}
		prev, cur = cur, prev
	}
	return prev
}
