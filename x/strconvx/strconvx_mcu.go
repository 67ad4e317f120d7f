//go:build rp2040

package strconvx

// FormatFloat only renders fixed-point; the format byte is ignored.

func Itoa(i int) string { return FormatInt(int64(i), 10) }

type parseError struct{}

func (parseError) Error() string { return "invalid syntax" }

// Atoi parses an optionally signed decimal.
func Atoi(s string) (int, error) {
	neg := false
	if len(s) > 0 && (s[0] == '+' || s[0] == '-') {
		neg = s[0] == '-'
		s = s[1:]
	}
	if len(s) == 0 {
		return 0, parseError{}
	}
	var v int
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < '0' || c > '9' {
			return 0, parseError{}
		}
		v = v*10 + int(c-'0')
	}
	if neg {
		v = -v
	}
	return v, nil
}

func FormatInt(i int64, base int) string {
	if i < 0 {
		return "-" + FormatUint(uint64(-i), base)
	}
	return FormatUint(uint64(i), base)
}

func FormatUint(u uint64, base int) string {
	if base < 2 || base > 36 {
		base = 10
	}
	if u == 0 {
		return "0"
	}
	const digits = "0123456789abcdefghijklmnopqrstuvwxyz"
	var buf [64]byte
	i := len(buf)
	b := uint64(base)
	for u > 0 {
		i--
		buf[i] = digits[u%b]
		u /= b
	}
	return string(buf[i:])
}

func FormatFloat(f float64, _ byte, prec, _ int) string {
	if prec < 0 {
		prec = 6
	}
	sign := ""
	if f < 0 {
		sign = "-"
		f = -f
	}
	pow := uint64(1)
	for i := 0; i < prec; i++ {
		pow *= 10
	}
	scaled := uint64(f*float64(pow) + 0.5)
	ints := FormatUint(scaled/pow, 10)
	if prec == 0 {
		return sign + ints
	}
	fs := FormatUint(scaled%pow, 10)
	for len(fs) < prec {
		fs = "0" + fs
	}
	return sign + ints + "." + fs
}
