package txlog

// fenwick is a binary indexed tree over counts, used to turn positions in a final list into
// indices valid at the moment a record is replayed.
type fenwick []int

func newFenwick(n int) fenwick {
	return make(fenwick, n+1)
}

func (f fenwick) add(i, delta int) {
	for i++; i < len(f); i += i & -i {
		f[i] += delta
	}
}

// prefix returns the sum over [0, i).
func (f fenwick) prefix(i int) int {
	sum := 0
	for ; i > 0; i -= i & -i {
		sum += f[i]
	}
	return sum
}

// between returns the sum over the open interval (lo, hi).
func (f fenwick) between(lo, hi int) int {
	if hi <= lo+1 {
		return 0
	}
	return f.prefix(hi) - f.prefix(lo+1)
}
