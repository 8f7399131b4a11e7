package importer

// stream.go provides memory-efficient reader wrappers for spreadsheet ingestion.
// They operate on io.Reader so arbitrarily large files are handled with
// O(buffer) memory:
//
//   - bomReader skips a UTF-8 BOM (0xEF 0xBB 0xBF) from Windows-produced files
//   - utf8Reader replaces invalid UTF-8 bytes with '?' on the fly
//
// sanitizedReader applies both in the required order (BOM first).

import (
	"io"
	"unicode/utf8"
)

// sanitizedReader wraps r with BOM skipping and UTF-8 sanitization.
func sanitizedReader(r io.Reader) io.Reader {
	return &utf8Reader{r: &bomReader{r: r}}
}

// bomReader skips the UTF-8 byte order mark if present at the start of the
// stream and is transparent otherwise.
type bomReader struct {
	r       io.Reader
	checked bool
	held    []byte // bytes read during BOM detection that were not a BOM
}

func (b *bomReader) Read(p []byte) (int, error) {
	if !b.checked {
		b.checked = true

		var buf [3]byte
		n, err := io.ReadFull(b.r, buf[:])
		if err == io.ErrUnexpectedEOF {
			err = io.EOF
		}
		if n == 3 && buf[0] == 0xEF && buf[1] == 0xBB && buf[2] == 0xBF {
			// BOM found, drop it
		} else {
			b.held = buf[:n]
		}
		if err != nil && err != io.EOF && n == 0 {
			return 0, err
		}
	}

	if len(b.held) > 0 {
		n := copy(p, b.held)
		b.held = b.held[n:]
		return n, nil
	}

	return b.r.Read(p)
}

// utf8Reader replaces invalid UTF-8 bytes with '?' as data flows through.
// A '?' is used instead of U+FFFD so the output never expands past the
// caller's buffer.
type utf8Reader struct {
	r       io.Reader
	pending []byte // tail bytes that may start a multi-byte rune
}

func (u *utf8Reader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	offset := copy(p, u.pending)
	u.pending = u.pending[:0]

	n, err := u.r.Read(p[offset:])
	n += offset
	if n == 0 {
		return 0, err
	}

	// Fast path: pure ASCII needs no fixing.
	ascii := true
	for _, c := range p[:n] {
		if c >= 0x80 {
			ascii = false
			break
		}
	}
	if ascii {
		return n, err
	}

	return u.sanitize(p[:n], err == io.EOF), err
}

// sanitize rewrites data in place, replacing invalid bytes with '?'.
// Unless atEOF, an incomplete trailing rune is carried over to the next read.
func (u *utf8Reader) sanitize(data []byte, atEOF bool) int {
	write := 0
	for read := 0; read < len(data); {
		r, size := utf8.DecodeRune(data[read:])

		if r == utf8.RuneError && size <= 1 {
			rest := data[read:]
			if !atEOF && runeStartLen(rest[0]) > len(rest) {
				// Possibly a rune split across reads, hold it back.
				u.pending = append(u.pending, rest...)
				return write
			}
			data[write] = '?'
			write++
			read++
			continue
		}

		copy(data[write:], data[read:read+size])
		write += size
		read += size
	}
	return write
}

// runeStartLen returns the encoded length implied by a leading byte,
// or 0 for a continuation byte.
func runeStartLen(b byte) int {
	switch {
	case b < 0x80:
		return 1
	case b < 0xC0:
		return 0
	case b < 0xE0:
		return 2
	case b < 0xF0:
		return 3
	default:
		return 4
	}
}
