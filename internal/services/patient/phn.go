package patient

// phnWeights apply to the second through ninth digits of a BC PHN.
var phnWeights = [8]int{2, 4, 8, 5, 10, 9, 7, 3}

// ValidPHN reports whether phn is a well-formed BC Personal Health Number:
// ten digits, a leading 9 and a mod 11 check digit in the last position.
func ValidPHN(phn string) bool {
	if len(phn) != 10 || phn[0] != '9' {
		return false
	}
	digits := [10]int{}
	for i := 0; i < len(phn); i++ {
		c := phn[i]
		if c < '0' || c > '9' {
			return false
		}
		digits[i] = int(c - '0')
	}
	sum := 0
	for i, weight := range phnWeights {
		sum += (digits[i+1] * weight) % 11
	}
	check := 11 - sum%11
	return check == digits[9]
}
