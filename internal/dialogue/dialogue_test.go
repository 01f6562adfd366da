package dialogue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShayCichocki/conclave/internal/agent"
)

// inputOnly hands agents the bare turn input.
func inputOnly(_ Persona, _ []Message, input string) string { return input }

func tagAgent(name string) agent.Agent {
	return agent.NewFunc(name, func(_ context.Context, in string) (string, error) {
		return name + "(" + in + ")", nil
	})
}

func persona(name string) Persona {
	return Persona{Name: name, Role: "tester"}
}

func speakers(ts []Turn) []string {
	out := make([]string, len(ts))
	for i, t := range ts {
		out[i] = t.Speaker.Name
	}
	return out
}

func TestSequential_ThreeParticipantsInOrder(t *testing.T) {
	d := New(Sequential(), WithPromptFormatter(inputOnly))
	for _, name := range []string{"alice", "bob", "carol"} {
		require.NoError(t, d.AddParticipant(persona(name), tagAgent(name)))
	}

	turns, err := d.Run(context.Background(), "hi")
	require.NoError(t, err)
	require.Len(t, turns, 3)

	assert.Equal(t, []string{"alice", "bob", "carol"}, speakers(turns))
	assert.Equal(t, "alice(hi)", turns[0].Content)
	assert.Equal(t, "bob(alice(hi))", turns[1].Content)
	assert.Equal(t, "carol(bob(alice(hi)))", turns[2].Content)
	assert.Equal(t, []int{1, 2, 3}, []int{turns[0].Turn, turns[1].Turn, turns[2].Turn})

	history := d.History()
	require.Len(t, history, 4)
	assert.Equal(t, SpeakerUser, history[0].Speaker.Kind)
	assert.Equal(t, "hi", history[0].Content)
}

func TestSequential_ExplicitOrder(t *testing.T) {
	d := New(Sequential("carol", "alice"), WithPromptFormatter(inputOnly))
	for _, name := range []string{"alice", "bob", "carol"} {
		require.NoError(t, d.AddParticipant(persona(name), tagAgent(name)))
	}

	turns, err := d.Run(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, []string{"carol", "alice"}, speakers(turns))
}

func TestSequential_UnknownSpeaker(t *testing.T) {
	d := New(Sequential("nobody"))
	require.NoError(t, d.AddParticipant(persona("alice"), tagAgent("alice")))

	_, err := d.Start(context.Background(), "x")
	var unknown *UnknownParticipantError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "nobody", unknown.Name)
}

func TestSequential_FailureStopsImmediately(t *testing.T) {
	var carolCalls int
	d := New(Sequential(), WithPromptFormatter(inputOnly))
	require.NoError(t, d.AddParticipant(persona("alice"), tagAgent("alice")))
	require.NoError(t, d.AddParticipant(persona("bob"), agent.NewFunc("bob", func(context.Context, string) (string, error) {
		return "", errors.New("bob is out")
	})))
	require.NoError(t, d.AddParticipant(persona("carol"), agent.NewFunc("carol", func(context.Context, string) (string, error) {
		carolCalls++
		return "c", nil
	})))

	sess, err := d.Start(context.Background(), "go")
	require.NoError(t, err)

	first, err := sess.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "alice", first.Speaker.Name)

	_, err = sess.Next(context.Background())
	var perr *ParticipantError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "bob", perr.Participant)
	assert.Equal(t, 2, perr.Turn)

	_, again := sess.Next(context.Background())
	assert.Equal(t, err, again)
	assert.Zero(t, carolCalls)
	assert.Equal(t, PhaseCompleted, sess.State().Phase)

	// The failed session released the dialogue.
	_, err = d.Start(context.Background(), "retry")
	assert.NoError(t, err)
}

func TestBroadcast_ParticipantOrderUnderRandomLatency(t *testing.T) {
	names := []string{"p0", "p1", "p2", "p3", "p4"}
	for round := 0; round < 20; round++ {
		d := New(Broadcast(OrderParticipant), WithPromptFormatter(inputOnly))
		for _, name := range names {
			delay := time.Duration(rand.IntN(8)) * time.Millisecond
			require.NoError(t, d.AddParticipant(persona(name), agent.NewFunc(name, func(ctx context.Context, in string) (string, error) {
				time.Sleep(delay)
				return name, nil
			})))
		}

		turns, err := d.Run(context.Background(), "q")
		require.NoError(t, err)
		assert.Equal(t, names, speakers(turns))
	}
}

func TestBroadcast_CompletionOrder(t *testing.T) {
	delays := map[string]time.Duration{"slow": 120 * time.Millisecond, "fast": 0, "medium": 60 * time.Millisecond}

	d := New(Broadcast(OrderCompletion), WithPromptFormatter(inputOnly))
	for _, name := range []string{"slow", "fast", "medium"} {
		delay := delays[name]
		require.NoError(t, d.AddParticipant(persona(name), agent.NewFunc(name, func(context.Context, string) (string, error) {
			time.Sleep(delay)
			return name, nil
		})))
	}

	turns, err := d.Run(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, []string{"fast", "medium", "slow"}, speakers(turns))
	assert.Equal(t, []int{1, 2, 3}, []int{turns[0].Turn, turns[1].Turn, turns[2].Turn})
}

func TestBroadcast_MembersShareRoundStartHistory(t *testing.T) {
	var mu sync.Mutex
	seen := map[string]int{}
	d := New(Broadcast(OrderParticipant), WithPromptFormatter(func(p Persona, history []Message, input string) string {
		mu.Lock()
		seen[p.Name] = len(history)
		mu.Unlock()
		return input
	}))
	for _, name := range []string{"a", "b", "c"} {
		require.NoError(t, d.AddParticipant(persona(name), tagAgent(name)))
	}

	_, err := d.Run(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"a": 1, "b": 1, "c": 1}, seen)
}

func TestBroadcast_FirstErrorSurfacesAndCancelsOthers(t *testing.T) {
	cancelled := make(chan struct{})
	d := New(Broadcast(OrderParticipant), WithPromptFormatter(inputOnly))
	require.NoError(t, d.AddParticipant(persona("hang"), agent.NewFunc("hang", func(ctx context.Context, _ string) (string, error) {
		<-ctx.Done()
		close(cancelled)
		return "", ctx.Err()
	})))
	require.NoError(t, d.AddParticipant(persona("boom"), agent.NewFunc("boom", func(context.Context, string) (string, error) {
		return "", errors.New("exploded")
	})))

	start := time.Now()
	turns, err := d.Run(context.Background(), "q")
	var perr *ParticipantError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "boom", perr.Participant)
	assert.Empty(t, turns)
	assert.Less(t, time.Since(start), 5*time.Second)

	select {
	case <-cancelled:
	case <-time.After(5 * time.Second):
		t.Fatal("remaining participant was not cancelled")
	}
}

func TestTurnTimeout(t *testing.T) {
	d := New(Sequential(), WithTurnTimeout(20*time.Millisecond))
	require.NoError(t, d.AddParticipant(persona("sleepy"), agent.NewFunc("sleepy", func(ctx context.Context, _ string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})))

	_, err := d.Run(context.Background(), "q")
	var timeout *TurnTimeoutError
	require.ErrorAs(t, err, &timeout)
	assert.Equal(t, "sleepy", timeout.Participant)
}

func TestModerated_RoundsFollowDecisions(t *testing.T) {
	var rounds []int
	mod := ModeratorFunc(func(_ context.Context, view RoundView) (Decision, error) {
		rounds = append(rounds, view.Round)
		switch view.Round {
		case 0:
			return Decision{Model: BroadcastModel{Order: OrderParticipant}}, nil
		case 1:
			return Decision{Model: SequentialModel{Order: []string{"b"}}}, nil
		default:
			return Decision{Done: true, Reason: "consensus"}, nil
		}
	})

	d := New(Moderated(mod, 10), WithPromptFormatter(inputOnly))
	require.NoError(t, d.AddParticipant(persona("a"), tagAgent("a")))
	require.NoError(t, d.AddParticipant(persona("b"), tagAgent("b")))

	turns, err := d.Run(context.Background(), "topic")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "b"}, speakers(turns))
	// Round two continues from the last message.
	assert.Equal(t, "b(b(topic))", turns[2].Content)
	assert.Equal(t, []int{0, 1, 2}, rounds)
}

func TestModerated_MaxRounds(t *testing.T) {
	calls := 0
	mod := ModeratorFunc(func(context.Context, RoundView) (Decision, error) {
		calls++
		return Decision{Model: SequentialModel{}}, nil
	})

	d := New(Moderated(mod, 3), WithPromptFormatter(inputOnly))
	require.NoError(t, d.AddParticipant(persona("a"), tagAgent("a")))

	turns, err := d.Run(context.Background(), "x")
	require.NoError(t, err)
	assert.Len(t, turns, 3)
	assert.Equal(t, 3, calls)
}

func TestModerated_ModeratorError(t *testing.T) {
	mod := ModeratorFunc(func(context.Context, RoundView) (Decision, error) {
		return Decision{}, errors.New("lost the thread")
	})
	d := New(Moderated(mod, 0))
	require.NoError(t, d.AddParticipant(persona("a"), tagAgent("a")))

	_, err := d.Run(context.Background(), "x")
	assert.ErrorContains(t, err, "lost the thread")
}

func TestStart_Errors(t *testing.T) {
	d := New(Sequential())
	_, err := d.Start(context.Background(), "x")
	assert.ErrorIs(t, err, ErrNoParticipants)

	require.NoError(t, d.AddParticipant(persona("a"), tagAgent("a")))
	assert.ErrorIs(t, d.AddParticipant(persona("a"), tagAgent("a")), ErrDuplicateParticipant)
	assert.Error(t, d.AddParticipant(Persona{}, tagAgent("x")))

	sess, err := d.Start(context.Background(), "x")
	require.NoError(t, err)
	_, err = d.Start(context.Background(), "y")
	assert.ErrorIs(t, err, ErrSessionActive)
	assert.ErrorIs(t, d.Restore(nil), ErrSessionActive)

	sess.Close()
	_, err = d.Start(context.Background(), "z")
	assert.NoError(t, err)
}

func TestSession_StateSnapshot(t *testing.T) {
	d := New(Sequential(), WithPromptFormatter(inputOnly))
	require.NoError(t, d.AddParticipant(persona("a"), tagAgent("a")))
	require.NoError(t, d.AddParticipant(persona("b"), tagAgent("b")))

	sess, err := d.Start(context.Background(), "x")
	require.NoError(t, err)
	defer sess.Close()

	_, err = sess.Next(context.Background())
	require.NoError(t, err)

	st := sess.State()
	assert.Equal(t, PhaseSequential, st.Phase)
	require.NotNil(t, st.Sequential)
	assert.Equal(t, 1, st.Sequential.NextIndex)
	assert.Equal(t, 1, st.Sequential.CurrentTurn)
	assert.Equal(t, "a(x)", st.Sequential.RollingInput)

	data, err := json.Marshal(sess)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"next_index":1`)
}

func TestSession_BroadcastStateSnapshot(t *testing.T) {
	d := New(Broadcast(OrderParticipant), WithPromptFormatter(inputOnly))
	require.NoError(t, d.AddParticipant(persona("a"), tagAgent("a")))
	require.NoError(t, d.AddParticipant(persona("b"), tagAgent("b")))

	sess, err := d.Start(context.Background(), "x")
	require.NoError(t, err)
	defer sess.Close()

	st := sess.State()
	require.NotNil(t, st.Broadcast)
	assert.Equal(t, []string{"a", "b"}, st.Broadcast.Pending)

	_, err = sess.Next(context.Background())
	require.NoError(t, err)
	st = sess.State()
	assert.Equal(t, 1, st.Broadcast.NextEmitIndex)
	assert.Equal(t, OrderParticipant, st.Broadcast.Order)
}

func TestSession_AllStopsEarly(t *testing.T) {
	d := New(Sequential(), WithPromptFormatter(inputOnly))
	for i := 0; i < 4; i++ {
		name := fmt.Sprintf("p%d", i)
		require.NoError(t, d.AddParticipant(persona(name), tagAgent(name)))
	}

	sess, err := d.Start(context.Background(), "x")
	require.NoError(t, err)
	defer sess.Close()

	var got []string
	for turn, err := range sess.All(context.Background()) {
		require.NoError(t, err)
		got = append(got, turn.Speaker.Name)
		if len(got) == 2 {
			break
		}
	}
	assert.Equal(t, []string{"p0", "p1"}, got)

	next, err := sess.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "p2", next.Speaker.Name)
}

func TestRestore_ContinuesConversation(t *testing.T) {
	first := New(Sequential(), WithPromptFormatter(inputOnly))
	require.NoError(t, first.AddParticipant(persona("a"), tagAgent("a")))
	_, err := first.Run(context.Background(), "opening")
	require.NoError(t, err)

	var seen []Message
	second := New(Sequential(), WithPromptFormatter(func(_ Persona, history []Message, input string) string {
		seen = history
		return input
	}))
	require.NoError(t, second.Restore(first.History()))
	require.NoError(t, second.AddParticipant(persona("a"), tagAgent("a"), WithJoining(Recent(1))))

	turns, err := second.Run(context.Background(), "follow-up")
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, 3, turns[0].Turn)
	require.Len(t, seen, 1)
	assert.Equal(t, "follow-up", seen[0].Content)
	assert.Len(t, second.History(), 4)
}

func TestRestore_RejectsUnorderedHistory(t *testing.T) {
	d := New(Sequential())
	err := d.Restore([]Message{{Turn: 2}, {Turn: 1}})
	assert.Error(t, err)
}

func TestDefaultPromptFormatter(t *testing.T) {
	p := Persona{Name: "Ada", Role: "architect", Background: "Designs systems.", Style: "terse"}
	out := DefaultPromptFormatter(p, []Message{
		{Turn: 0, Speaker: UserSpeaker(), Content: "Design a cache"},
		{Turn: 1, Speaker: AgentSpeaker(Persona{Name: "Bob", Role: "critic"}), Content: "Too complex"},
	}, "Respond")

	assert.Contains(t, out, "You are Ada, architect.")
	assert.Contains(t, out, "Communication style: terse")
	assert.Contains(t, out, "[User] Design a cache")
	assert.Contains(t, out, "[Bob (critic)] Too complex")
	assert.Contains(t, out, "\nRespond")

	bare := DefaultPromptFormatter(Persona{Name: "Eve"}, nil, "Go")
	assert.NotContains(t, bare, "Conversation so far")
}
