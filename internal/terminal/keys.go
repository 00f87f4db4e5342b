package terminal

import "unicode/utf8"

const (
	keyEsc = 0x1b
	keyDel = 0x7f
)

// KeyDecoder splits raw terminal reads into key units: runs of printable
// text, single control bytes, and whole escape sequences. Incomplete UTF-8
// and escape sequences at the end of a read are held until the next one.
//
// With Lines set, input is treated as cooked text from a pipe or file: a line
// feed becomes Enter ("\r") and a CR LF pair is a single Enter.
type KeyDecoder struct {
	Lines bool

	pending []byte
	afterCR bool
}

// Feed appends p and returns every complete key unit.
func (d *KeyDecoder) Feed(p []byte) []string {
	data := append(d.pending, p...)
	d.pending = nil
	if len(p) > 0 {
		defer func() { d.afterCR = p[len(p)-1] == '\r' }()
	}

	var units []string
	i := 0
	for i < len(data) {
		c := data[i]
		switch {
		case c == keyEsc:
			n := escapeLen(data[i:])
			if n == 0 {
				d.pending = append([]byte(nil), data[i:]...)
				return units
			}
			units = append(units, string(data[i:i+n]))
			i += n
		case c == '\n' && d.Lines:
			if !d.followsCR(data, i) {
				units = append(units, "\r")
			}
			i++
		case c < 0x20 || c == keyDel:
			units = append(units, string(c))
			i++
		default:
			j := i
			for j < len(data) && data[j] >= 0x20 && data[j] != keyDel {
				j++
			}
			// Keep a trailing partial rune for the next read.
			end := j
			if j == len(data) {
				end = completeRunes(data[i:j]) + i
			}
			if end > i {
				units = append(units, string(data[i:end]))
			}
			if end < j {
				d.pending = append([]byte(nil), data[end:j]...)
				return units
			}
			i = j
		}
	}
	return units
}

// followsCR reports whether data[i] comes right after a carriage return,
// looking back into the previous read at the start of data.
func (d *KeyDecoder) followsCR(data []byte, i int) bool {
	if i == 0 {
		return d.afterCR
	}
	return data[i-1] == '\r'
}

// Flush returns any held bytes as a final unit.
func (d *KeyDecoder) Flush() []string {
	if len(d.pending) == 0 {
		return nil
	}
	u := string(d.pending)
	d.pending = nil
	return []string{u}
}

// SplitKeys is a stateless Feed followed by Flush.
func SplitKeys(p []byte) []string {
	var d KeyDecoder
	return append(d.Feed(p), d.Flush()...)
}

// escapeLen returns the length of the escape sequence at the start of b, or
// 0 when b ends inside a CSI or SS3 sequence. A lone ESC is its own unit.
func escapeLen(b []byte) int {
	if len(b) < 2 {
		return 1
	}
	switch b[1] {
	case '[':
		for i := 2; i < len(b); i++ {
			if b[i] >= 0x40 && b[i] <= 0x7e {
				return i + 1
			}
		}
		return 0
	case 'O':
		if len(b) < 3 {
			return 0
		}
		return 3
	default:
		return 2
	}
}

// completeRunes returns the length of the longest prefix of b that does not
// end in a truncated UTF-8 sequence.
func completeRunes(b []byte) int {
	for back := 1; back <= utf8.UTFMax-1 && back <= len(b); back++ {
		c := b[len(b)-back]
		if !utf8.RuneStart(c) {
			continue
		}
		if c < utf8.RuneSelf {
			return len(b)
		}
		if !utf8.FullRune(b[len(b)-back:]) {
			return len(b) - back
		}
		return len(b)
	}
	return len(b)
}
