package blf

import "math"

const (
	ObjectFlagTimeTenMics uint32 = 0x00000001
	ObjectFlagTimeOneNans uint32 = 0x00000002

	tenMicrosInNanos = 10_000
)

// TimeUnit is the resolution of a raw object timestamp.
type TimeUnit uint8

const (
	TimeUnitNanoseconds TimeUnit = iota
	TimeUnitTenMicroseconds
)

func (u TimeUnit) String() string {
	if u == TimeUnitTenMicroseconds {
		return "10us"
	}
	return "1ns"
}

// TimeUnitFromFlags reads the unit bits of the object flags. The 10 µs unit
// applies only when the nanosecond bit is clear.
func TimeUnitFromFlags(flags uint32) TimeUnit {
	if flags&ObjectFlagTimeTenMics != 0 && flags&ObjectFlagTimeOneNans == 0 {
		return TimeUnitTenMicroseconds
	}
	return TimeUnitNanoseconds
}

// NormalizeTimestamp converts a raw object timestamp to nanoseconds since the
// measurement start. Values beyond the int64 range saturate.
func NormalizeTimestamp(raw uint64, flags uint32) int64 {
	if TimeUnitFromFlags(flags) == TimeUnitTenMicroseconds {
		if raw > math.MaxInt64/tenMicrosInNanos {
			return math.MaxInt64
		}
		return int64(raw) * tenMicrosInNanos
	}
	if raw > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(raw)
}
