package utils

import "strings"

// ValidateNationalId checks an 11-digit individual taxpayer number (CPF).
// Punctuation is ignored; both mod-11 check digits must match and
// sequences of a single repeated digit are rejected.
func ValidateNationalId(id string) bool {
	digits := OnlyDigits(id)
	if len(digits) != 11 {
		return false
	}
	allEqual := true
	for i := 1; i < len(digits); i++ {
		if digits[i] != digits[0] {
			allEqual = false
			break
		}
	}
	if allEqual {
		return false
	}

	nums := make([]int, len(digits))
	for i, r := range digits {
		nums[i] = int(r - '0')
	}
	return checkDigit(nums[:9]) == nums[9] && checkDigit(nums[:10]) == nums[10]
}

func checkDigit(nums []int) int {
	weight := len(nums) + 1
	sum := 0
	for _, n := range nums {
		sum += n * weight
		weight--
	}
	r := (sum * 10) % 11
	if r == 10 {
		return 0
	}
	return r
}

// OnlyDigits strips everything except ASCII digits.
func OnlyDigits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
