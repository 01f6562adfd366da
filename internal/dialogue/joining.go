package dialogue

import (
	"fmt"
	"strconv"
	"strings"
)

// JoiningStrategy selects the history a participant sees for a turn.
// Only messages from turns before current are ever returned, and the
// result never aliases the store.
type JoiningStrategy interface {
	Select(messages []Message, current int) []Message
	String() string
}

type recent struct{ n int }

// Recent shows the last n messages.
func Recent(n int) JoiningStrategy {
	if n < 0 {
		n = 0
	}
	return recent{n: n}
}

func (r recent) Select(messages []Message, current int) []Message {
	visible := before(messages, current)
	if len(visible) > r.n {
		visible = visible[len(visible)-r.n:]
	}
	return visible
}

func (r recent) String() string { return fmt.Sprintf("recent:%d", r.n) }

type fresh struct{}

// Fresh shows no history at all.
func Fresh() JoiningStrategy { return fresh{} }

func (fresh) Select([]Message, int) []Message { return []Message{} }
func (fresh) String() string                  { return "fresh" }

type full struct{}

// Full shows every earlier message.
func Full() JoiningStrategy { return full{} }

func (full) Select(messages []Message, current int) []Message { return before(messages, current) }
func (full) String() string                                   { return "full" }

type turnRange struct{ start, end int }

// Range shows messages with start <= turn < end.
func Range(start, end int) JoiningStrategy {
	return turnRange{start: start, end: end}
}

func (r turnRange) Select(messages []Message, current int) []Message {
	out := []Message{}
	for _, m := range messages {
		if m.Turn >= r.start && m.Turn < r.end && m.Turn < current {
			out = append(out, m)
		}
	}
	return out
}

func (r turnRange) String() string { return fmt.Sprintf("range:%d:%d", r.start, r.end) }

func before(messages []Message, current int) []Message {
	out := []Message{}
	for _, m := range messages {
		if m.Turn < current {
			out = append(out, m)
		}
	}
	return out
}

// ParseJoining parses "full", "fresh", "recent:N" or "range:START:END".
// An empty string selects Full.
func ParseJoining(s string) (JoiningStrategy, error) {
	parts := strings.Split(strings.ToLower(strings.TrimSpace(s)), ":")
	switch parts[0] {
	case "", "full":
		return Full(), nil
	case "fresh":
		return Fresh(), nil
	case "recent":
		if len(parts) != 2 {
			return nil, fmt.Errorf("joining %q: want recent:N", s)
		}
		n, err := strconv.Atoi(parts[1])
		if err != nil || n < 0 {
			return nil, fmt.Errorf("joining %q: invalid count", s)
		}
		return Recent(n), nil
	case "range":
		if len(parts) != 3 {
			return nil, fmt.Errorf("joining %q: want range:START:END", s)
		}
		start, err1 := strconv.Atoi(parts[1])
		end, err2 := strconv.Atoi(parts[2])
		if err1 != nil || err2 != nil || end < start {
			return nil, fmt.Errorf("joining %q: invalid bounds", s)
		}
		return Range(start, end), nil
	default:
		return nil, fmt.Errorf("unknown joining strategy %q", s)
	}
}
