package scheduling

import (
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// ClockRange is a [StartMin, EndMin) span of a local day.
type ClockRange struct {
	StartMin int
	EndMin   int
}

// parseClock accepts exactly "HH:MM" with HH in 00..23 and MM in 00..59.
func parseClock(s string) (int, error) {
	if len(s) != 5 || s[2] != ':' {
		return 0, fmt.Errorf("%w: %q is not HH:MM", ErrInvalidWindow, s)
	}
	digit := func(b byte) (int, bool) { return int(b - '0'), b >= '0' && b <= '9' }
	h1, ok1 := digit(s[0])
	h2, ok2 := digit(s[1])
	m1, ok3 := digit(s[3])
	m2, ok4 := digit(s[4])
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return 0, fmt.Errorf("%w: %q is not HH:MM", ErrInvalidWindow, s)
	}
	h, m := h1*10+h2, m1*10+m2
	if h > 23 || m > 59 {
		return 0, fmt.Errorf("%w: %q is out of range", ErrInvalidWindow, s)
	}
	return h*60 + m, nil
}

// FormatClock renders minutes past midnight as "HH:MM".
func FormatClock(min int) string {
	return fmt.Sprintf("%02d:%02d", min/60, min%60)
}

// ParseWindows parses "HH:MM-HH:MM[,HH:MM-HH:MM...]". Blank entries between
// commas are skipped; a pair missing a half, a malformed time, or an end not
// after its start is an error.
func ParseWindows(s string) ([]ClockRange, error) {
	var out []ClockRange
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		start, end, found := strings.Cut(pair, "-")
		start, end = strings.TrimSpace(start), strings.TrimSpace(end)
		if !found || start == "" || end == "" {
			return nil, fmt.Errorf("%w: %q needs start and end", ErrInvalidWindow, pair)
		}
		sm, err := parseClock(start)
		if err != nil {
			return nil, err
		}
		em, err := parseClock(end)
		if err != nil {
			return nil, err
		}
		if em <= sm {
			return nil, fmt.Errorf("%w: %q ends before it starts", ErrInvalidWindow, pair)
		}
		out = append(out, ClockRange{StartMin: sm, EndMin: em})
	}
	return out, nil
}

// WindowParser memoizes ParseWindows. Exception strings repeat across
// doctors and range queries, and parsing is a pure function of the string.
type WindowParser struct {
	cache *lru.Cache[string, []ClockRange]
}

func NewWindowParser(size int) (*WindowParser, error) {
	c, err := lru.New[string, []ClockRange](size)
	if err != nil {
		return nil, fmt.Errorf("window cache: %w", err)
	}
	return &WindowParser{cache: c}, nil
}

func (p *WindowParser) Parse(s string) ([]ClockRange, error) {
	if cached, ok := p.cache.Get(s); ok {
		return append([]ClockRange(nil), cached...), nil
	}
	parsed, err := ParseWindows(s)
	if err != nil {
		return nil, err
	}
	p.cache.Add(s, parsed)
	return append([]ClockRange(nil), parsed...), nil
}

func (p *WindowParser) Len() int { return p.cache.Len() }
