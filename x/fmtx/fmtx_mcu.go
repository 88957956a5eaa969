//go:build rp2040 || rp2350

package fmtx

// Sprintf formats the verbs the service logs use: %s %q %d %x %X %v %t %%,
// with a precision on %s. fmt pulls in reflection, which costs too much
// flash on the board.
func Sprintf(format string, a ...any) string {
	out := make([]byte, 0, len(format)+16)
	next := 0
	for i := 0; i < len(format); i++ {
		c := format[i]
		if c != '%' || i+1 >= len(format) {
			out = append(out, c)
			continue
		}
		i++
		if format[i] == '%' {
			out = append(out, '%')
			continue
		}
		prec := -1
		if format[i] == '.' {
			prec = 0
			for i+1 < len(format) && '0' <= format[i+1] && format[i+1] <= '9' {
				i++
				prec = prec*10 + int(format[i]-'0')
			}
			i++
			if i >= len(format) {
				break
			}
		}
		if next >= len(a) {
			out = append(out, "%!"...)
			out = append(out, format[i])
			out = append(out, "(MISSING)"...)
			continue
		}
		arg := a[next]
		next++
		switch verb := format[i]; verb {
		case 's':
			s := str(arg)
			if prec >= 0 && prec < len(s) {
				s = s[:prec]
			}
			out = append(out, s...)
		case 'q':
			out = appendQuoted(out, str(arg))
		case 'd':
			out = appendInt(out, arg, 10, false)
		case 'x':
			out = appendInt(out, arg, 16, false)
		case 'X':
			out = appendInt(out, arg, 16, true)
		case 't', 'v':
			out = append(out, str(arg)...)
		default:
			out = append(out, '%', verb)
		}
	}
	return string(out)
}

func str(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case []byte:
		return string(x)
	case bool:
		if x {
			return "true"
		}
		return "false"
	case error:
		return x.Error()
	case interface{ String() string }:
		return x.String()
	case float32:
		return string(appendFixed(nil, float64(x)))
	case float64:
		return string(appendFixed(nil, x))
	}
	if b := appendInt(nil, v, 10, false); b != nil {
		return string(b)
	}
	return "<?>"
}

// appendInt returns nil when v is not an integer.
func appendInt(dst []byte, v any, base uint64, upper bool) []byte {
	var (
		u   uint64
		neg bool
	)
	switch x := v.(type) {
	case int:
		u, neg = abs64(int64(x))
	case int8:
		u, neg = abs64(int64(x))
	case int16:
		u, neg = abs64(int64(x))
	case int32:
		u, neg = abs64(int64(x))
	case int64:
		u, neg = abs64(x)
	case uint:
		u = uint64(x)
	case uint8:
		u = uint64(x)
	case uint16:
		u = uint64(x)
	case uint32:
		u = uint64(x)
	case uint64:
		u = x
	default:
		return dst
	}
	digits := "0123456789abcdef"
	if upper {
		digits = "0123456789ABCDEF"
	}
	var buf [20]byte
	i := len(buf)
	for {
		i--
		buf[i] = digits[u%base]
		u /= base
		if u == 0 {
			break
		}
	}
	if dst == nil {
		dst = make([]byte, 0, len(buf)-i+1)
	}
	if neg {
		dst = append(dst, '-')
	}
	return append(dst, buf[i:]...)
}

func abs64(x int64) (uint64, bool) {
	if x < 0 {
		return uint64(-x), true
	}
	return uint64(x), false
}

// appendFixed renders f with three decimals, truncating.
func appendFixed(dst []byte, f float64) []byte {
	if f < 0 {
		dst = append(dst, '-')
		f = -f
	}
	whole := uint64(f)
	milli := uint64((f-float64(whole))*1000) % 1000
	dst = appendInt(dst, whole, 10, false)
	dst = append(dst, '.', byte('0'+milli/100), byte('0'+milli/10%10), byte('0'+milli%10))
	return dst
}

func appendQuoted(dst []byte, s string) []byte {
	dst = append(dst, '"')
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '"', '\\':
			dst = append(dst, '\\', c)
		case '\n':
			dst = append(dst, '\\', 'n')
		case '\t':
			dst = append(dst, '\\', 't')
		default:
			dst = append(dst, c)
		}
	}
	return append(dst, '"')
}
