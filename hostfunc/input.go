package hostfunc

import (
	"context"
	"strings"
	"sync"
	"unicode/utf8"
)

// InputQueue feeds a program's standard input from a fixed string. input()
// takes one line per call and the sys.stdin readers consume the same text.
// Once exhausted it keeps returning the empty string; it never blocks
// waiting for interactive input.
type InputQueue struct {
	mu   sync.Mutex
	rest string
	eof  bool
}

func NewInputQueue(input string) *InputQueue {
	return &InputQueue{rest: strings.ReplaceAll(input, "\r\n", "\n")}
}

// Pop returns the next line without its newline, or "" when no lines remain.
// The text after the last newline counts as a line, even when empty.
func (q *InputQueue) Pop() string {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.eof {
		return ""
	}
	line, rest, found := strings.Cut(q.rest, "\n")
	q.rest = rest
	q.eof = !found
	return line
}

// Remaining reports how many lines have not been consumed.
func (q *InputQueue) Remaining() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.eof {
		return 0
	}
	return strings.Count(q.rest, "\n") + 1
}

// ReadLine returns the next line including its newline, cut to at most
// limit characters when limit is not negative. It returns "" at the end.
func (q *InputQueue) ReadLine(limit int) string {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.eof {
		return ""
	}
	end := len(q.rest)
	if i := strings.IndexByte(q.rest, '\n'); i >= 0 {
		end = i + 1
	}
	return q.take(min(end, runeOffset(q.rest, limit)))
}

// ReadChars returns up to n characters, or everything left when n is
// negative.
func (q *InputQueue) ReadChars(n int) string {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.eof {
		return ""
	}
	return q.take(runeOffset(q.rest, n))
}

func (q *InputQueue) take(n int) string {
	s := q.rest[:n]
	q.rest = q.rest[n:]
	q.eof = q.rest == ""
	return s
}

// runeOffset is the byte offset just past the first n runes of s, or len(s)
// when n is negative or s is shorter.
func runeOffset(s string, n int) int {
	if n < 0 {
		return len(s)
	}
	i := 0
	for ; n > 0 && i < len(s); n-- {
		_, size := utf8.DecodeRuneInString(s[i:])
		i += size
	}
	return i
}

// Input is the host function behind the guest's input builtin.
func (q *InputQueue) Input(ctx context.Context, args map[string]any) (any, error) {
	return q.Pop(), nil
}

// StdinRead is the host function behind sys.stdin.read.
func (q *InputQueue) StdinRead(ctx context.Context, args map[string]any) (any, error) {
	return q.ReadChars(sizeArg(args)), nil
}

// StdinReadline is the host function behind sys.stdin.readline.
func (q *InputQueue) StdinReadline(ctx context.Context, args map[string]any) (any, error) {
	return q.ReadLine(sizeArg(args)), nil
}

func sizeArg(args map[string]any) int {
	if n, ok := args["size"].(float64); ok {
		return int(n)
	}
	return -1
}
