package quiz

const (
	passNumerator   = 3
	passDenominator = 5
)

// PassMark is the minimum score that passes a quiz of total questions: 60%,
// rounded up. Integer arithmetic keeps ceil(10*0.6) at 6 rather than 7.
func PassMark(total int) int {
	if total <= 0 {
		return 0
	}
	return (total*passNumerator + passDenominator - 1) / passDenominator
}

// Passed applies the canonical threshold to a score.
func Passed(score, total int) bool {
	if total <= 0 {
		return false
	}
	return score >= PassMark(total)
}
