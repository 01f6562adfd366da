package dialogue

import (
	"context"
	"fmt"
	"strings"
)

// BroadcastOrder controls how concurrently produced turns are emitted.
type BroadcastOrder string

const (
	// OrderCompletion emits turns as participants finish.
	OrderCompletion BroadcastOrder = "completion"
	// OrderParticipant emits turns in registration order.
	OrderParticipant BroadcastOrder = "participant"
)

// ParseBroadcastOrder parses "completion" or "participant".
func ParseBroadcastOrder(s string) (BroadcastOrder, error) {
	switch BroadcastOrder(strings.ToLower(strings.TrimSpace(s))) {
	case OrderCompletion, "":
		return OrderCompletion, nil
	case OrderParticipant, "participant_order", "registration":
		return OrderParticipant, nil
	default:
		return "", fmt.Errorf("unknown broadcast order %q", s)
	}
}

// ExecutionModel decides who speaks and how. It is one of
// SequentialModel, BroadcastModel or ModeratedModel.
type ExecutionModel interface {
	modelName() string
}

// SequentialModel has participants speak one after another, each
// receiving the previous speaker's output.
type SequentialModel struct {
	// Order names the speakers; empty means registration order.
	Order []string
}

// BroadcastModel has every participant answer the same input concurrently.
type BroadcastModel struct {
	Order BroadcastOrder
}

// ModeratedModel asks a Moderator to choose each round's model.
type ModeratedModel struct {
	Moderator Moderator
	// MaxRounds bounds the conversation; zero means DefaultMaxRounds.
	MaxRounds int
}

// DefaultMaxRounds bounds moderated dialogues without an explicit limit.
const DefaultMaxRounds = 10

func (SequentialModel) modelName() string { return "sequential" }
func (BroadcastModel) modelName() string  { return "broadcast" }
func (ModeratedModel) modelName() string  { return "moderated" }

// Sequential returns a sequential model over the named speakers, or all
// participants in registration order when none are given.
func Sequential(order ...string) ExecutionModel {
	return SequentialModel{Order: order}
}

// Broadcast returns a broadcast model with the given ordering.
func Broadcast(order BroadcastOrder) ExecutionModel {
	return BroadcastModel{Order: order}
}

// Moderated returns a model driven by m.
func Moderated(m Moderator, maxRounds int) ExecutionModel {
	return ModeratedModel{Moderator: m, MaxRounds: maxRounds}
}

// ParticipantInfo describes a participant to a moderator.
type ParticipantInfo struct {
	Name      string
	Role      string
	Expertise []string
}

// RoundView is what a moderator sees before choosing a round.
type RoundView struct {
	// Round is zero-based.
	Round        int
	Prompt       string
	Participants []ParticipantInfo
	History      []Message
}

// Decision is a moderator's choice for one round. Model must be a
// SequentialModel or BroadcastModel unless Done is set.
type Decision struct {
	Done   bool
	Model  ExecutionModel
	Reason string
}

// Moderator chooses the model of each round.
type Moderator interface {
	Decide(ctx context.Context, view RoundView) (Decision, error)
}

// ModeratorFunc adapts a function into a Moderator.
type ModeratorFunc func(ctx context.Context, view RoundView) (Decision, error)

// Decide calls f.
func (f ModeratorFunc) Decide(ctx context.Context, view RoundView) (Decision, error) {
	return f(ctx, view)
}

// ModelName returns "sequential", "broadcast" or "moderated".
func ModelName(m ExecutionModel) string {
	if m == nil {
		return ""
	}
	return m.modelName()
}
