package dialogue

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ShayCichocki/conclave/internal/agent"
	"github.com/ShayCichocki/conclave/internal/logging"
)

// Participant is a persona bound to an agent.
type Participant struct {
	Persona Persona
	Agent   agent.Agent
	Joining JoiningStrategy
}

// ParticipantOption configures a participant.
type ParticipantOption func(*Participant)

// WithJoining sets how much history the participant sees. Full is the default.
func WithJoining(js JoiningStrategy) ParticipantOption {
	return func(p *Participant) {
		if js != nil {
			p.Joining = js
		}
	}
}

// PromptFormatter builds the input an agent receives for a turn.
type PromptFormatter func(p Persona, history []Message, input string) string

// Option configures a Dialogue.
type Option func(*Dialogue)

// WithID sets the dialogue identifier; a random one is generated otherwise.
func WithID(id string) Option {
	return func(d *Dialogue) {
		if id != "" {
			d.id = id
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dialogue) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithPromptFormatter replaces the default prompt layout.
func WithPromptFormatter(f PromptFormatter) Option {
	return func(d *Dialogue) {
		if f != nil {
			d.format = f
		}
	}
}

// WithTurnTimeout bounds every agent call. A turn that times out fails
// with *TurnTimeoutError. Zero means no limit.
func WithTurnTimeout(timeout time.Duration) Option {
	return func(d *Dialogue) { d.turnTimeout = timeout }
}

// Dialogue is a conversation between participants.
type Dialogue struct {
	id           string
	model        ExecutionModel
	participants []*Participant
	index        map[string]int
	store        *MessageStore

	logger      *slog.Logger
	format      PromptFormatter
	turnTimeout time.Duration

	mu     sync.Mutex
	active bool
}

// New creates an empty dialogue governed by model.
func New(model ExecutionModel, opts ...Option) *Dialogue {
	if model == nil {
		model = Sequential()
	}
	d := &Dialogue{
		id:     uuid.New().String(),
		model:  model,
		index:  make(map[string]int),
		store:  NewMessageStore(),
		logger: logging.Discard(),
		format: DefaultPromptFormatter,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.With("component", "dialogue", "dialogue_id", d.id)
	return d
}

// ID returns the dialogue identifier.
func (d *Dialogue) ID() string { return d.id }

// Model returns the execution model.
func (d *Dialogue) Model() ExecutionModel { return d.model }

// AddParticipant binds persona to a and adds it in registration order.
func (d *Dialogue) AddParticipant(persona Persona, a agent.Agent, opts ...ParticipantOption) error {
	if strings.TrimSpace(persona.Name) == "" {
		return fmt.Errorf("participant persona: %w", agent.ErrEmptyName)
	}
	if a == nil {
		return fmt.Errorf("participant %s: no agent", persona.Name)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.index[persona.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateParticipant, persona.Name)
	}

	p := &Participant{Persona: persona, Agent: a, Joining: Full()}
	for _, opt := range opts {
		opt(p)
	}
	d.index[persona.Name] = len(d.participants)
	d.participants = append(d.participants, p)
	return nil
}

// Participants returns the participants in registration order.
func (d *Dialogue) Participants() []Participant {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Participant, len(d.participants))
	for i, p := range d.participants {
		out[i] = *p
	}
	return out
}

// History returns a copy of every stored message.
func (d *Dialogue) History() []Message {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.store.Messages()
}

// Restore replaces the message store with history, for resuming a saved
// conversation. Turns must be strictly increasing.
func (d *Dialogue) Restore(history []Message) error {
	for i := 1; i < len(history); i++ {
		if history[i].Turn <= history[i-1].Turn {
			return fmt.Errorf("restore: turn %d follows turn %d", history[i].Turn, history[i-1].Turn)
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.active {
		return ErrSessionActive
	}
	d.store = NewMessageStore(history...)
	return nil
}

// Start appends prompt as a user message and returns a session that
// yields the participants' turns.
func (d *Dialogue) Start(ctx context.Context, prompt string) (*Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.participants) == 0 {
		return nil, ErrNoParticipants
	}
	if d.active {
		return nil, ErrSessionActive
	}

	s, err := newSession(d, prompt)
	if err != nil {
		return nil, err
	}
	d.active = true
	d.store.Append(Message{Turn: d.store.NextTurn(), Speaker: UserSpeaker(), Content: prompt})
	d.logger.Info("session started", "model", d.model.modelName(), "participants", len(d.participants))
	return s, nil
}

// Run starts a session and collects every turn. On failure the turns
// produced before the error are returned with it.
func (d *Dialogue) Run(ctx context.Context, prompt string) ([]Turn, error) {
	s, err := d.Start(ctx, prompt)
	if err != nil {
		return nil, err
	}
	defer s.Close()

	var turns []Turn
	for turn, err := range s.All(ctx) {
		if err != nil {
			return turns, err
		}
		turns = append(turns, turn)
	}
	return turns, nil
}

func (d *Dialogue) release() {
	d.mu.Lock()
	d.active = false
	d.mu.Unlock()
}

// DefaultPromptFormatter renders the persona, the visible history and the
// turn input as plain text.
func DefaultPromptFormatter(p Persona, history []Message, input string) string {
	var b strings.Builder
	b.WriteString("You are " + p.Name)
	if p.Role != "" {
		b.WriteString(", " + p.Role)
	}
	b.WriteString(".\n")
	if p.Background != "" {
		b.WriteString(p.Background + "\n")
	}
	if p.Style != "" {
		b.WriteString("Communication style: " + p.Style + "\n")
	}
	if len(history) > 0 {
		b.WriteString("\nConversation so far:\n")
		for _, m := range history {
			fmt.Fprintf(&b, "[%s] %s\n", m.Speaker.Label(), m.Content)
		}
	}
	b.WriteString("\n" + input)
	return b.String()
}
