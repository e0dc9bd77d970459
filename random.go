package htm

/*
 Seedable deterministic random number generator used for all tie-breaks and
synapse sampling. Built on the Philox2x32 counter-based generator so the
whole generator state is an explicit (key, counter) pair: save/restore is
exact and two instances with the same seed produce identical streams.
*/
type Random struct {
	key      uint32
	counterX uint32
	counterY uint32
}

//Serializable generator state
type RandomState struct {
	Key      uint32
	CounterX uint32
	CounterY uint32
}

func NewRandom(seed int64) *Random {
	r := new(Random)
	r.key = uint32(seed)
	r.counterY = uint32(uint64(seed) >> 32)
	r.counterX = 0
	return r
}

func mulHiLo32(a, b uint32) (lo, hi uint32) {
	prod := uint64(a) * uint64(b)
	return uint32(prod), uint32(prod >> 32)
}

//One Philox round: multiply-xor on the counter pair
func philoxRound(cx, cy, key uint32) (uint32, uint32) {
	lo, hi := mulHiLo32(0xD256D193, cx)
	return hi ^ key ^ cy, lo
}

func philox2x32(cx, cy, key uint32) (uint32, uint32) {
	for i := 0; i < 10; i++ {
		cx, cy = philoxRound(cx, cy, key)
		key += 0x9E3779B9
	}
	return cx, cy
}

func (r *Random) next() uint32 {
	x, _ := philox2x32(r.counterX, r.counterY, r.key)
	if r.counterX == 0xFFFFFFFF {
		r.counterX = 0
		r.counterY++
	} else {
		r.counterX++
	}
	return x
}

//Uniform draw in [0,max). Returns 0 when max is 0.
func (r *Random) UInt32(max uint32) uint32 {
	if max == 0 {
		return 0
	}
	// rejection sampling keeps the draw exactly uniform
	min := (-max) % max
	for {
		v := r.next()
		if v >= min {
			return v % max
		}
	}
}

//Uniform draw in [0,1) with 53 bits of precision
func (r *Random) Real64() float64 {
	hi := uint64(r.next())
	lo := uint64(r.next())
	return float64((hi<<32|lo)>>11) / float64(1<<53)
}

//Fisher-Yates shuffle in place
func (r *Random) Shuffle(vals []int) {
	for i := len(vals) - 1; i > 0; i-- {
		j := int(r.UInt32(uint32(i + 1)))
		vals[i], vals[j] = vals[j], vals[i]
	}
}

/*
 Draws n members of population without replacement. The population is not
modified. Asking for more members than exist returns a full shuffled copy.
*/
func (r *Random) Sample(population []int, n int) []int {
	pool := make([]int, len(population))
	copy(pool, population)

	if n >= len(pool) {
		r.Shuffle(pool)
		return pool
	}

	result := make([]int, 0, n)
	for i := 0; i < n; i++ {
		j := i + int(r.UInt32(uint32(len(pool)-i)))
		pool[i], pool[j] = pool[j], pool[i]
		result = append(result, pool[i])
	}
	return result
}

func (r *Random) Save() RandomState {
	return RandomState{Key: r.key, CounterX: r.counterX, CounterY: r.counterY}
}

func (r *Random) Restore(state RandomState) {
	r.key = state.Key
	r.counterX = state.CounterX
	r.counterY = state.CounterY
}
