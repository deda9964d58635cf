package consensus

// Weights maps a validator id (identity.KeyPair.Id()) to its voting weight
// for a weighted vote over a static validator set. Per DESIGN.md's
// "Validator weights" decision, weights are supplied at genesis and change
// only at an explicit epoch boundary — never intra-term — so a Weights
// value is treated as immutable for the lifetime of one term.
type Weights map[string]uint64

// Total sums every validator's weight.
func (w Weights) Total() uint64 {
	var sum uint64
	for _, v := range w {
		sum += v
	}
	return sum
}

// QuorumPolicy fixes the threshold a weighted vote must clear to pass: a
// vote passes iff the summed Yes weight is at least
// max(ceil(total_weight * quorum_fraction), min_voters), with
// quorum_fraction clamped to at least 0.5.
type QuorumPolicy struct {
	QuorumFraction float64
	MinVoters      int
}

func (p QuorumPolicy) withDefaults() QuorumPolicy {
	if p.QuorumFraction < 0.5 {
		p.QuorumFraction = 0.5
	}
	if p.MinVoters <= 0 {
		p.MinVoters = 1
	}
	return p
}

// Threshold returns the minimum Yes-weight required to reach quorum for a
// validator set whose total weight is totalWeight.
func (p QuorumPolicy) Threshold(totalWeight uint64) uint64 {
	p = p.withDefaults()
	fracThreshold := ceilFrac(totalWeight, p.QuorumFraction)
	if uint64(p.MinVoters) > fracThreshold {
		return uint64(p.MinVoters)
	}
	return fracThreshold
}

// Reached reports whether yesWeight clears the quorum threshold for a
// validator set totalling totalWeight.
func (p QuorumPolicy) Reached(yesWeight, totalWeight uint64) bool {
	return yesWeight >= p.Threshold(totalWeight)
}

// ceilFrac computes ceil(total * frac) without floating-point rounding
// error biting the >= 0.5 boundary: total*frac is computed in integer
// arithmetic over a fixed-point scale, then ceiling-divided.
func ceilFrac(total uint64, frac float64) uint64 {
	const scale = 1_000_000
	numerator := total * uint64(frac*scale)
	denom := uint64(scale)
	if numerator%denom == 0 {
		return numerator / denom
	}
	return numerator/denom + 1
}
