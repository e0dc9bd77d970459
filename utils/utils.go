package utils

import (
	"sort"
)

//Searches int slice for specified integer
func ContainsInt(q int, vals []int) bool {
	for _, val := range vals {
		if val == q {
			return true
		}
	}
	return false
}

//Searches sorted int slice for specified integer
func ContainsIntSorted(q int, vals []int) bool {
	i := sort.SearchInts(vals, q)
	return i < len(vals) && vals[i] == q
}

//Populates int slice with specified value
func FillSliceInt(values []int, value int) {
	for i := range values {
		values[i] = value
	}
}

//Populates float64 slice with specified value
func FillSliceFloat64(values []float64, value float64) {
	for i := range values {
		values[i] = value
	}
}

//Populates bool slice with specified value
func FillSliceBool(values []bool, value bool) {
	for i := range values {
		values[i] = value
	}
}

//Returns the subset of values specified by indices
func SubsetSliceInt(values, indices []int) []int {
	result := make([]int, len(indices))
	for i, val := range indices {
		result[i] = values[val]
	}
	return result
}

func MakeSliceInt(size, initialValue int) []int {
	result := make([]int, size)
	if initialValue != 0 {
		for i := range result {
			result[i] = initialValue
		}
	}
	return result
}

func MakeSliceFloat64(size int, initialValue float64) []float64 {
	result := make([]float64, size)
	if initialValue != 0 {
		for i := range result {
			result[i] = initialValue
		}
	}
	return result
}

//Returns number of true values
func CountTrue(values []bool) int {
	count := 0
	for _, val := range values {
		if val {
			count++
		}
	}
	return count
}

//Returns "on" indices
func OnIndices(s []bool) []int {
	var result []int
	for idx, val := range s {
		if val {
			result = append(result, idx)
		}
	}
	return result
}

//Returns the members of s not present in t
func Complement(s []int, t []int) []int {
	result := make([]int, 0, len(s))
	for _, val := range s {
		if !ContainsInt(val, t) {
			result = append(result, val)
		}
	}
	return result
}

//Returns union of s and t, preserving the order of s
func Add(s []int, t []int) []int {
	result := make([]int, 0, len(s)+len(t))
	result = append(result, s...)

	for _, val := range t {
		if !ContainsInt(val, s) {
			result = append(result, val)
		}
	}
	return result
}

func SumSliceFloat64(values []float64) float64 {
	result := 0.0
	for _, val := range values {
		result += val
	}
	return result
}
