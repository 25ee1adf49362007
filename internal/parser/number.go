package parser

import (
	"makerworld-stats/internal/snapshot"
	"math"
	"regexp"
	"strconv"
	"strings"
)

var (
	plainDigits    = regexp.MustCompile(`^\d+$`)
	groupedDigits  = regexp.MustCompile(`^\d{1,3}([,_' ]\d{3})+$`)
	europeanDigits = regexp.MustCompile(`^\d{1,3}(\.\d{3})+$`)
	decimalDigits  = regexp.MustCompile(`^\d+\.\d+$`)
	suffixMantissa = regexp.MustCompile(`^\d+(?:[.,]\d+)?$`)
)

var suffixMultiplier = map[byte]float64{
	'k': 1e3,
	'm': 1e6,
	'b': 1e9,
}

var spaceReplacer = strings.NewReplacer(
	"\u00a0", " ",
	"\u202f", " ",
	"\u2009", " ",
)

// ParseCount normalizes a displayed count like "12,345", "1.2k" or "10K+".
// Anything that is not recognizably a non-negative integer is unknown.
func ParseCount(text string) snapshot.Count {
	s := strings.ToLower(strings.TrimSpace(spaceReplacer.Replace(text)))
	s = strings.TrimSpace(strings.TrimSuffix(s, "+"))
	if s == "" {
		return snapshot.Count{}
	}

	if multiplier, ok := suffixMultiplier[s[len(s)-1]]; ok {
		mantissa := strings.TrimSpace(s[:len(s)-1])
		if !suffixMantissa.MatchString(mantissa) {
			return snapshot.Count{}
		}
		value, err := strconv.ParseFloat(strings.Replace(mantissa, ",", ".", 1), 64)
		if err != nil {
			return snapshot.Count{}
		}
		return fromFloat(math.Round(value * multiplier))
	}

	switch {
	case plainDigits.MatchString(s):
	case groupedDigits.MatchString(s):
		s = strings.NewReplacer(",", "", "_", "", "'", "", " ", "").Replace(s)
	case europeanDigits.MatchString(s):
		s = strings.ReplaceAll(s, ".", "")
	case decimalDigits.MatchString(s):
		value, err := strconv.ParseFloat(s, 64)
		if err != nil || value != math.Trunc(value) {
			return snapshot.Count{}
		}
		return fromFloat(value)
	default:
		return snapshot.Count{}
	}

	value, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return snapshot.Count{}
	}
	return snapshot.KnownCount(value)
}

func fromFloat(value float64) snapshot.Count {
	if math.IsNaN(value) || value < 0 || value > math.MaxInt64/2 {
		return snapshot.Count{}
	}
	return snapshot.KnownCount(int64(value))
}
