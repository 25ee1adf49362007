package snapshot

import "strconv"

// Count is a non-negative integer scraped from a page. A zero Count is
// unknown, which is distinct from a known value of 0.
type Count struct {
	Value int64
	Known bool
}

func KnownCount(value int64) Count {
	if value < 0 {
		return Count{}
	}
	return Count{Value: value, Known: true}
}

func (c Count) String() string {
	if !c.Known {
		return "unknown"
	}
	return strconv.FormatInt(c.Value, 10)
}

// Flag is a boolean scraped from a page, a zero Flag is unknown.
type Flag struct {
	Value bool
	Known bool
}

func KnownFlag(value bool) Flag {
	return Flag{Value: value, Known: true}
}

func (f Flag) String() string {
	if !f.Known {
		return "unknown"
	}
	return strconv.FormatBool(f.Value)
}
