// Package dialogue runs structured multi-party conversations between agents.
//
// A Dialogue owns its participants, an append-only MessageStore and an
// ExecutionModel that decides who speaks in each round. Conversations are
// pulled turn by turn through a Session:
//
//	d := dialogue.New(dialogue.Sequential())
//	d.AddParticipant(critic, criticAgent)
//	d.AddParticipant(author, authorAgent, dialogue.WithJoining(dialogue.Recent(4)))
//	sess, err := d.Start(ctx, "Review the proposal")
//	for turn, err := range sess.All(ctx) { ... }
package dialogue

// Visual is an optional display identity for a persona.
type Visual struct {
	Icon  string `json:"icon,omitempty" yaml:"icon,omitempty"`
	Color string `json:"color,omitempty" yaml:"color,omitempty"`
}

// Persona is a participant's identity, independent of its backing agent.
type Persona struct {
	Name       string  `json:"name" yaml:"name"`
	Role       string  `json:"role,omitempty" yaml:"role,omitempty"`
	Background string  `json:"background,omitempty" yaml:"background,omitempty"`
	Style      string  `json:"style,omitempty" yaml:"style,omitempty"`
	Visual     *Visual `json:"visual,omitempty" yaml:"visual,omitempty"`
}

// SpeakerKind distinguishes who authored a message.
type SpeakerKind string

const (
	SpeakerSystem SpeakerKind = "system"
	SpeakerUser   SpeakerKind = "user"
	SpeakerAgent  SpeakerKind = "agent"
)

// Speaker identifies a message author.
type Speaker struct {
	Kind SpeakerKind `json:"kind"`
	Name string      `json:"name,omitempty"`
	Role string      `json:"role,omitempty"`
	Icon string      `json:"icon,omitempty"`
}

// SystemSpeaker returns the speaker for system messages.
func SystemSpeaker() Speaker { return Speaker{Kind: SpeakerSystem, Name: "system"} }

// UserSpeaker returns the speaker for the initiating prompt.
func UserSpeaker() Speaker { return Speaker{Kind: SpeakerUser, Name: "user"} }

// AgentSpeaker returns the speaker for a persona.
func AgentSpeaker(p Persona) Speaker {
	s := Speaker{Kind: SpeakerAgent, Name: p.Name, Role: p.Role}
	if p.Visual != nil {
		s.Icon = p.Visual.Icon
	}
	return s
}

// Label formats the speaker for transcripts and prompts.
func (s Speaker) Label() string {
	switch {
	case s.Kind == SpeakerUser:
		return "User"
	case s.Kind == SpeakerSystem:
		return "System"
	case s.Role != "":
		return s.Name + " (" + s.Role + ")"
	default:
		return s.Name
	}
}

// Message is one completed turn. Messages are never mutated once stored.
type Message struct {
	Turn    int     `json:"turn"`
	Speaker Speaker `json:"speaker"`
	Content string  `json:"content"`
}

// Turn is a message yielded by a session.
type Turn = Message

// MessageStore is the append-only log of a dialogue.
type MessageStore struct {
	messages []Message
}

// NewMessageStore creates a store seeded with history.
func NewMessageStore(history ...Message) *MessageStore {
	return &MessageStore{messages: append([]Message(nil), history...)}
}

// Append adds m to the end of the log.
func (s *MessageStore) Append(m Message) {
	s.messages = append(s.messages, m)
}

// Messages returns a copy of the log.
func (s *MessageStore) Messages() []Message {
	return append([]Message(nil), s.messages...)
}

// Len returns the number of stored messages.
func (s *MessageStore) Len() int { return len(s.messages) }

// NextTurn returns the turn number the next message will carry.
func (s *MessageStore) NextTurn() int {
	if len(s.messages) == 0 {
		return 0
	}
	return s.messages[len(s.messages)-1].Turn + 1
}

// Last returns the most recent message.
func (s *MessageStore) Last() (Message, bool) {
	if len(s.messages) == 0 {
		return Message{}, false
	}
	return s.messages[len(s.messages)-1], true
}
