package lastresults

import (
	"fmt"
	"strconv"
	"strings"
)

const maxRangeSize = 1000

// ParseNumbers parses row numbers given as "3", "1,3,5", "2-4" or a mix
// such as "1,3-5". Duplicates are dropped; order is kept.
func ParseNumbers(input string) ([]int, error) {
	input = strings.ReplaceAll(input, " ", ",")

	var out []int
	seen := make(map[int]bool)
	add := func(n int) {
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	for _, part := range strings.Split(input, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if start, end, ok := strings.Cut(part, "-"); ok {
			lo, hi, err := parseRange(start, end)
			if err != nil {
				return nil, err
			}
			for n := lo; n <= hi; n++ {
				add(n)
			}
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("%w: %q", ErrInvalidNumber, part)
		}
		add(n)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no numbers given", ErrInvalidNumber)
	}
	return out, nil
}

// ParseNumberArgs joins args with commas and parses them.
func ParseNumberArgs(args []string) ([]int, error) {
	return ParseNumbers(strings.Join(args, ","))
}

func parseRange(start, end string) (int, int, error) {
	lo, err := strconv.Atoi(strings.TrimSpace(start))
	if err != nil || lo < 1 {
		return 0, 0, fmt.Errorf("%w: invalid range start %q", ErrInvalidNumber, start)
	}
	hi, err := strconv.Atoi(strings.TrimSpace(end))
	if err != nil || hi < lo {
		return 0, 0, fmt.Errorf("%w: invalid range end %q", ErrInvalidNumber, end)
	}
	if hi-lo+1 > maxRangeSize {
		return 0, 0, fmt.Errorf("%w: range %d-%d is too large (max %d)", ErrInvalidNumber, lo, hi, maxRangeSize)
	}
	return lo, hi, nil
}
