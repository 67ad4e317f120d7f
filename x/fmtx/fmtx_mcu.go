//go:build rp2040

package fmtx

import (
	"pdstation-go/x/strconvx"
)

// Supported verbs: %s %q %d %v %%, with a minimal %.<p>s precision.

func Sprintf(format string, a ...any) string {
	var b builder
	b.format(format, a...)
	return string(b.buf)
}

func Errorf(format string, a ...any) error {
	return &stringError{Sprintf(format, a...)}
}

func Sprint(a ...any) string {
	var b builder
	for i, v := range a {
		if i > 0 {
			b.buf = append(b.buf, ' ')
		}
		b.value(v)
	}
	return string(b.buf)
}

type stringError struct{ s string }

func (e *stringError) Error() string { return e.s }

type builder struct{ buf []byte }

func (b *builder) str(s string) { b.buf = append(b.buf, s...) }

func (b *builder) value(v any) {
	switch x := v.(type) {
	case string:
		b.str(x)
	case []byte:
		b.buf = append(b.buf, x...)
	case bool:
		if x {
			b.str("true")
		} else {
			b.str("false")
		}
	case float32:
		b.str(strconvx.FormatFloat(float64(x), 'f', 3, 32))
	case float64:
		b.str(strconvx.FormatFloat(x, 'f', 3, 64))
	case error:
		b.str(x.Error())
	default:
		if n, ok := toI64(v); ok {
			b.str(strconvx.FormatInt(n, 10))
			return
		}
		b.str("<?>")
	}
}

func toI64(v any) (int64, bool) {
	switch t := v.(type) {
	case int:
		return int64(t), true
	case int8:
		return int64(t), true
	case int16:
		return int64(t), true
	case int32:
		return int64(t), true
	case int64:
		return t, true
	case uint:
		return int64(t), true
	case uint8:
		return int64(t), true
	case uint16:
		return int64(t), true
	case uint32:
		return int64(t), true
	case uint64:
		return int64(t), true
	}
	return 0, false
}

func (b *builder) format(format string, args ...any) {
	ai := 0
	for i := 0; i < len(format); i++ {
		c := format[i]
		if c != '%' || i+1 >= len(format) {
			b.buf = append(b.buf, c)
			continue
		}
		i++
		if format[i] == '%' {
			b.buf = append(b.buf, '%')
			continue
		}
		prec := -1
		if format[i] == '.' {
			prec = 0
			for i++; i < len(format) && '0' <= format[i] && format[i] <= '9'; i++ {
				prec = prec*10 + int(format[i]-'0')
			}
			if i >= len(format) {
				return
			}
		}
		if ai >= len(args) {
			b.str("%!")
			b.buf = append(b.buf, format[i])
			continue
		}
		arg := args[ai]
		ai++
		switch format[i] {
		case 's', 'v', 'd':
			if s, ok := arg.(string); ok && prec >= 0 && prec < len(s) {
				arg = s[:prec]
			}
			b.value(arg)
		case 'q':
			s, _ := arg.(string)
			b.str(quote(s))
		default:
			b.buf = append(b.buf, '%', format[i])
		}
	}
}

func quote(s string) string {
	out := make([]byte, 0, len(s)+2)
	out = append(out, '"')
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\\', '"':
			out = append(out, '\\', s[i])
		case '\n':
			out = append(out, '\\', 'n')
		default:
			out = append(out, s[i])
		}
	}
	return string(append(out, '"'))
}
