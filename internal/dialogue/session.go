package dialogue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/ShayCichocki/conclave/internal/tracing"
)

// Phase is the state of a session.
type Phase string

const (
	PhaseSequential Phase = "sequential"
	PhaseBroadcast  Phase = "broadcast"
	PhaseDeciding   Phase = "deciding"
	PhaseCompleted  Phase = "completed"
)

// Session yields the turns of one conversation on demand. It is driven
// by a single caller; Next must not be called concurrently.
type Session struct {
	d            *Dialogue
	participants []*Participant
	prompt       string

	moderator Moderator
	maxRounds int
	round     int

	phase  Phase
	err    error
	closed bool

	// Sequential round state.
	order       []int
	nextIndex   int
	currentTurn int
	rolling     string

	bcast *broadcastRound
}

type broadcastRound struct {
	order    BroadcastOrder
	members  []int
	input    string
	baseTurn int

	started    bool
	results    chan broadcastResult
	cancel     context.CancelFunc
	eg         errgroup.Group
	received   int
	buffered   map[int]broadcastResult
	nextEmit   int
	completion []string
}

type broadcastResult struct {
	member int
	output string
	err    error
}

func newSession(d *Dialogue, prompt string) (*Session, error) {
	s := &Session{
		d:            d,
		participants: append([]*Participant(nil), d.participants...),
		prompt:       prompt,
	}

	switch m := d.model.(type) {
	case SequentialModel:
		if err := s.beginSequential(m, prompt); err != nil {
			return nil, err
		}
	case BroadcastModel:
		s.beginBroadcast(m, prompt)
	case ModeratedModel:
		if m.Moderator == nil {
			return nil, errors.New("moderated dialogue has no moderator")
		}
		s.moderator = m.Moderator
		s.maxRounds = m.MaxRounds
		if s.maxRounds <= 0 {
			s.maxRounds = DefaultMaxRounds
		}
		s.phase = PhaseDeciding
	default:
		return nil, fmt.Errorf("unsupported execution model %T", d.model)
	}
	return s, nil
}

func (s *Session) resolve(names []string) ([]int, error) {
	if len(names) == 0 {
		order := make([]int, len(s.participants))
		for i := range order {
			order[i] = i
		}
		return order, nil
	}
	order := make([]int, 0, len(names))
	for _, name := range names {
		idx := -1
		for i, p := range s.participants {
			if p.Persona.Name == name {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil, &UnknownParticipantError{Name: name}
		}
		order = append(order, idx)
	}
	return order, nil
}

func (s *Session) beginSequential(m SequentialModel, input string) error {
	order, err := s.resolve(m.Order)
	if err != nil {
		return err
	}
	s.phase = PhaseSequential
	s.order = order
	s.nextIndex = 0
	s.rolling = input
	return nil
}

func (s *Session) beginBroadcast(m BroadcastModel, input string) {
	order := m.Order
	if order == "" {
		order = OrderCompletion
	}
	members, _ := s.resolve(nil)
	s.phase = PhaseBroadcast
	s.bcast = &broadcastRound{
		order:    order,
		members:  members,
		input:    input,
		results:  make(chan broadcastResult, len(members)),
		buffered: make(map[int]broadcastResult),
	}
}

// Next produces the next turn. It returns ErrSessionComplete when the
// conversation is over; after a failure it keeps returning that error.
func (s *Session) Next(ctx context.Context) (Turn, error) {
	for {
		if s.err != nil {
			return Turn{}, s.err
		}
		switch s.phase {
		case PhaseCompleted:
			return Turn{}, ErrSessionComplete

		case PhaseDeciding:
			if err := s.decide(ctx); err != nil {
				return s.fail(err)
			}

		case PhaseSequential:
			if s.nextIndex >= len(s.order) {
				s.endRound()
				continue
			}
			return s.nextSequential(ctx)

		case PhaseBroadcast:
			if s.bcast.nextEmit >= len(s.bcast.members) {
				_ = s.bcast.eg.Wait()
				s.bcast.cancel()
				s.endRound()
				continue
			}
			return s.nextBroadcast(ctx)
		}
	}
}

// All iterates over the remaining turns. Iteration stops after the first
// error, which is yielded.
func (s *Session) All(ctx context.Context) iter.Seq2[Turn, error] {
	return func(yield func(Turn, error) bool) {
		for {
			turn, err := s.Next(ctx)
			if errors.Is(err, ErrSessionComplete) {
				return
			}
			if err != nil {
				yield(Turn{}, err)
				return
			}
			if !yield(turn, nil) {
				return
			}
		}
	}
}

// Close abandons the session, cancelling any in-flight broadcast.
func (s *Session) Close() {
	if s.bcast != nil && s.bcast.cancel != nil {
		s.bcast.cancel()
	}
	if s.phase != PhaseCompleted {
		s.phase = PhaseCompleted
	}
	s.release()
}

func (s *Session) release() {
	if s.closed {
		return
	}
	s.closed = true
	s.d.release()
}

func (s *Session) complete() {
	s.phase = PhaseCompleted
	s.d.logger.Info("session completed", "rounds", s.round+1)
	s.release()
}

func (s *Session) fail(err error) (Turn, error) {
	s.err = err
	if s.bcast != nil && s.bcast.cancel != nil {
		s.bcast.cancel()
	}
	s.phase = PhaseCompleted
	s.d.logger.Error("session failed", "error", err)
	s.release()
	return Turn{}, err
}

func (s *Session) endRound() {
	if s.moderator == nil {
		s.complete()
		return
	}
	s.round++
	if s.round >= s.maxRounds {
		s.complete()
		return
	}
	s.phase = PhaseDeciding
}

func (s *Session) decide(ctx context.Context) error {
	view := RoundView{
		Round:   s.round,
		Prompt:  s.prompt,
		History: s.messages(),
	}
	for _, p := range s.participants {
		view.Participants = append(view.Participants, ParticipantInfo{
			Name:      p.Persona.Name,
			Role:      p.Persona.Role,
			Expertise: p.Agent.Expertise(),
		})
	}

	decision, err := s.moderator.Decide(ctx, view)
	if err != nil {
		return fmt.Errorf("moderator: %w", err)
	}
	if decision.Done {
		s.d.logger.Info("moderator ended dialogue", "round", s.round, "reason", decision.Reason)
		s.complete()
		return nil
	}

	input := s.prompt
	if last, ok := s.lastMessage(); ok {
		input = last.Content
	}
	s.d.logger.Debug("moderator chose round", "round", s.round, "model", fmt.Sprintf("%T", decision.Model), "reason", decision.Reason)

	switch m := decision.Model.(type) {
	case SequentialModel:
		return s.beginSequential(m, input)
	case BroadcastModel:
		s.beginBroadcast(m, input)
		return nil
	default:
		return fmt.Errorf("moderator returned unsupported model %T", decision.Model)
	}
}

func (s *Session) nextSequential(ctx context.Context) (Turn, error) {
	p := s.participants[s.order[s.nextIndex]]
	s.currentTurn = s.nextTurn()
	history := p.Joining.Select(s.messages(), s.currentTurn)

	out, err := s.invoke(ctx, p, history, s.rolling, s.currentTurn)
	if err != nil {
		return s.fail(err)
	}

	msg := Message{Turn: s.currentTurn, Speaker: AgentSpeaker(p.Persona), Content: out}
	s.append(msg)
	s.rolling = out
	s.nextIndex++
	return msg, nil
}

func (s *Session) startBroadcast(ctx context.Context) {
	b := s.bcast
	b.started = true
	rctx, cancel := context.WithCancel(ctx)
	b.cancel = cancel
	b.baseTurn = s.nextTurn()

	// Every member sees the history as it stood when the round began.
	messages := s.messages()
	for i, idx := range b.members {
		p := s.participants[idx]
		history := p.Joining.Select(messages, b.baseTurn)
		turn := b.baseTurn + i
		b.eg.Go(func() error {
			out, err := s.invoke(rctx, p, history, b.input, turn)
			b.results <- broadcastResult{member: i, output: out, err: err}
			return nil
		})
	}
}

func (s *Session) nextBroadcast(ctx context.Context) (Turn, error) {
	b := s.bcast
	if !b.started {
		s.startBroadcast(ctx)
	}

	if b.order == OrderParticipant {
		for {
			if r, ok := b.buffered[b.nextEmit]; ok {
				delete(b.buffered, b.nextEmit)
				return s.emit(r), nil
			}
			r, err := s.await(ctx)
			if err != nil {
				return s.fail(err)
			}
			b.buffered[r.member] = r
		}
	}

	r, err := s.await(ctx)
	if err != nil {
		return s.fail(err)
	}
	return s.emit(r), nil
}

// await receives the next finished member. A member failure is returned
// as soon as it arrives.
func (s *Session) await(ctx context.Context) (broadcastResult, error) {
	b := s.bcast
	select {
	case r := <-b.results:
		b.received++
		b.completion = append(b.completion, s.participants[b.members[r.member]].Persona.Name)
		if r.err != nil {
			return r, r.err
		}
		return r, nil
	case <-ctx.Done():
		return broadcastResult{}, ctx.Err()
	}
}

func (s *Session) emit(r broadcastResult) Turn {
	p := s.participants[s.bcast.members[r.member]]
	msg := Message{Turn: s.nextTurn(), Speaker: AgentSpeaker(p.Persona), Content: r.output}
	s.append(msg)
	s.bcast.nextEmit++
	return msg
}

// invoke runs one participant. It is called from broadcast goroutines
// and only reads immutable session state.
func (s *Session) invoke(ctx context.Context, p *Participant, history []Message, input string, turn int) (string, error) {
	ctx, sp := tracing.StartSpan(ctx, "dialogue.turn", map[string]string{
		"dialogue_id": s.d.id,
		"participant": p.Persona.Name,
		"turn":        strconv.Itoa(turn),
	})
	prompt := s.d.format(p.Persona, history, input)

	callCtx, cancel := ctx, context.CancelFunc(func() {})
	if s.d.turnTimeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, s.d.turnTimeout)
	}
	out, err := p.Agent.Execute(callCtx, prompt)
	if err != nil && ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		err = &TurnTimeoutError{Participant: p.Persona.Name, Timeout: s.d.turnTimeout.String()}
	}
	cancel()
	tracing.EndSpan(sp, err)

	if err != nil {
		return "", &ParticipantError{Participant: p.Persona.Name, Turn: turn, Err: err}
	}
	return out, nil
}

func (s *Session) messages() []Message {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	return s.d.store.Messages()
}

func (s *Session) lastMessage() (Message, bool) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	return s.d.store.Last()
}

func (s *Session) nextTurn() int {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	return s.d.store.NextTurn()
}

func (s *Session) append(m Message) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	s.d.store.Append(m)
}

// SessionState is a serializable snapshot of a session.
type SessionState struct {
	Phase      Phase            `json:"phase"`
	Round      int              `json:"round"`
	Sequential *SequentialState `json:"sequential,omitempty"`
	Broadcast  *BroadcastState  `json:"broadcast,omitempty"`
}

// SequentialState is the sequential round snapshot.
type SequentialState struct {
	NextIndex    int    `json:"next_index"`
	CurrentTurn  int    `json:"current_turn"`
	RollingInput string `json:"rolling_input"`
}

// BroadcastState is the broadcast round snapshot.
type BroadcastState struct {
	Pending         []string       `json:"pending"`
	Order           BroadcastOrder `json:"order"`
	Buffered        []string       `json:"buffered"`
	NextEmitIndex   int            `json:"next_emit_index"`
	CompletionOrder []string       `json:"completion_order"`
}

// State returns a snapshot of the session.
func (s *Session) State() SessionState {
	st := SessionState{Phase: s.phase, Round: s.round}
	switch s.phase {
	case PhaseSequential:
		st.Sequential = &SequentialState{
			NextIndex:    s.nextIndex,
			CurrentTurn:  s.currentTurn,
			RollingInput: s.rolling,
		}
	case PhaseBroadcast:
		b := s.bcast
		bs := &BroadcastState{
			Order:           b.order,
			NextEmitIndex:   b.nextEmit,
			CompletionOrder: append([]string{}, b.completion...),
			Pending:         []string{},
			Buffered:        []string{},
		}
		done := make(map[string]bool, len(b.completion))
		for _, name := range b.completion {
			done[name] = true
		}
		for i, idx := range b.members {
			name := s.participants[idx].Persona.Name
			if !done[name] {
				bs.Pending = append(bs.Pending, name)
			}
			if _, ok := b.buffered[i]; ok {
				bs.Buffered = append(bs.Buffered, name)
			}
		}
		st.Broadcast = bs
	}
	return st
}

// MarshalJSON encodes the current state snapshot.
func (s *Session) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.State())
}
