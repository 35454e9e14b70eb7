package sdb

import (
	"fmt"
	"math"

	"github.com/e57io/e57cv/e57err"
)

func typeMismatch(path, msg string) error {
	return e57err.BadBuffer(path, msg)
}

func requiresConversion(path string) error {
	return e57err.BadBuffer(path, "do-conversion is false but this transfer crosses representation groups or narrows precision")
}

// PutInteger delivers a decoded wire value from an integer/unsigned-integer/
// boolean terminal (declared range [wireMin,wireMax]) into the buffer at
// index i, per the §4.4 conversion matrix.
func PutInteger(b *Buffer, i int, value, wireMin, wireMax int64) error {
	if b.Rep == RepString {
		return typeMismatch(b.Path, "string buffer cannot receive an integer value")
	}
	if b.Rep.isFloatGroup() {
		if !b.DoConversion {
			return requiresConversion(b.Path)
		}
		b.rawSetFloat64At(i, float64(value))
		return nil
	}
	dstMin, dstMax := b.Rep.intRange()
	narrowing := wireMin < dstMin || wireMax > dstMax
	if narrowing {
		if !b.DoConversion {
			return requiresConversion(b.Path)
		}
		if value < dstMin || value > dstMax {
			return e57err.ValueOutOfRange(b.Path, fmt.Sprintf("value %d out of range [%d,%d] for %s", value, dstMin, dstMax, b.Rep))
		}
	}
	b.rawSetInt64At(i, value)
	return nil
}

// GetInteger reads the buffer's value at index i as an integer for encoding
// onto a wire terminal with declared range [wireMin,wireMax].
func GetInteger(b *Buffer, i int, wireMin, wireMax int64) (int64, error) {
	if b.Rep == RepString {
		return 0, typeMismatch(b.Path, "string buffer cannot produce an integer value")
	}
	if b.Rep.isFloatGroup() {
		if !b.DoConversion {
			return 0, requiresConversion(b.Path)
		}
		v := int64(math.Trunc(b.rawFloat64At(i)))
		if v < wireMin || v > wireMax {
			return 0, e57err.ValueOutOfRange(b.Path, fmt.Sprintf("value %d out of range [%d,%d]", v, wireMin, wireMax))
		}
		return v, nil
	}
	srcMin, srcMax := b.Rep.intRange()
	v := b.rawInt64At(i)
	if srcMin < wireMin || srcMax > wireMax {
		if !b.DoConversion {
			return 0, requiresConversion(b.Path)
		}
		if v < wireMin || v > wireMax {
			return 0, e57err.ValueOutOfRange(b.Path, fmt.Sprintf("value %d out of range [%d,%d]", v, wireMin, wireMax))
		}
	}
	return v, nil
}

// PutFloat delivers a decoded wire float (wirePrecision 32 or 64) into the
// buffer at index i.
func PutFloat(b *Buffer, i int, value float64, wirePrecision int) error {
	if b.Rep == RepString {
		return typeMismatch(b.Path, "string buffer cannot receive a float value")
	}
	if b.Rep.isIntegerGroup() {
		if !b.DoConversion {
			return requiresConversion(b.Path)
		}
		v := int64(math.Trunc(value))
		dstMin, dstMax := b.Rep.intRange()
		if v < dstMin || v > dstMax {
			return e57err.ValueOutOfRange(b.Path, fmt.Sprintf("value %v out of range [%d,%d] for %s", value, dstMin, dstMax, b.Rep))
		}
		b.rawSetInt64At(i, v)
		return nil
	}
	if wirePrecision == 64 && b.Rep == RepFloat32 && !b.DoConversion {
		return requiresConversion(b.Path)
	}
	b.rawSetFloat64At(i, value)
	return nil
}

// GetFloat reads the buffer's value at index i as a float for encoding onto
// a wire terminal of the given precision (32 or 64).
func GetFloat(b *Buffer, i int, wirePrecision int) (float64, error) {
	if b.Rep == RepString {
		return 0, typeMismatch(b.Path, "string buffer cannot produce a float value")
	}
	if b.Rep.isIntegerGroup() {
		if !b.DoConversion {
			return 0, requiresConversion(b.Path)
		}
		return float64(b.rawInt64At(i)), nil
	}
	if b.Rep == RepFloat64 && wirePrecision == 32 && !b.DoConversion {
		return 0, requiresConversion(b.Path)
	}
	return b.rawFloat64At(i), nil
}

// PutScaled delivers a decoded scaled-integer terminal's raw wire value.
// If the buffer has do-scaling set, it is converted to a float64 scaled
// value (raw*scale+offset) before delivery; otherwise the raw integer
// conversion matrix applies directly.
func PutScaled(b *Buffer, i int, rawValue, rawMin, rawMax int64, scale, offset float64) error {
	if b.DoScaling {
		return PutFloat(b, i, float64(rawValue)*scale+offset, 64)
	}
	return PutInteger(b, i, rawValue, rawMin, rawMax)
}

// GetScaledRaw reads the buffer's value at index i and returns the raw wire
// integer for a scaled-integer terminal, applying the inverse scale when
// do-scaling is set.
func GetScaledRaw(b *Buffer, i int, rawMin, rawMax int64, scale, offset float64) (int64, error) {
	if b.DoScaling {
		scaled, err := GetFloat(b, i, 64)
		if err != nil {
			return 0, err
		}
		raw := int64(math.Round((scaled - offset) / scale))
		if raw < rawMin || raw > rawMax {
			return 0, e57err.ValueOutOfRange(b.Path, fmt.Sprintf("scaled value %v maps to out-of-range raw %d [%d,%d]", scaled, raw, rawMin, rawMax))
		}
		return raw, nil
	}
	return GetInteger(b, i, rawMin, rawMax)
}

// PutString delivers a decoded wire string into the buffer at index i.
func PutString(b *Buffer, i int, value string) error {
	if b.Rep != RepString {
		return typeMismatch(b.Path, "non-string buffer cannot receive a string value")
	}
	b.strings[i] = value
	return nil
}

// GetString reads the buffer's string at index i for encoding.
func GetString(b *Buffer, i int) (string, error) {
	if b.Rep != RepString {
		return "", typeMismatch(b.Path, "non-string buffer cannot produce a string value")
	}
	return b.strings[i], nil
}
