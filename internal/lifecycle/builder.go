package lifecycle

import (
	"context"
	"fmt"
)

// GuardFunc evaluates whether a transition should be allowed
type GuardFunc func(ctx context.Context) bool

// Builder configures a state machine. Unlike a global state registry, each
// builder carries its own valid-state set so the document, order and payment
// lifecycles can share one implementation.
type Builder struct {
	validStates    map[State]bool
	terminalStates map[State]bool
	configurations map[State]*stateConfig
}

// StateConfiguration configures transitions for a specific state
type StateConfiguration interface {
	// Permit allows a trigger to transition to the target state
	Permit(trigger Trigger, toState State) StateConfiguration

	// PermitIf allows a trigger to transition to the target state if the
	// guard condition passes
	PermitIf(trigger Trigger, toState State, guard GuardFunc) StateConfiguration
}

type transition struct {
	toState State
	guard   GuardFunc
}

type stateConfig struct {
	builder     *Builder
	fromState   State
	transitions map[Trigger][]transition
}

// NewBuilder creates a builder whose machines accept only the given states
func NewBuilder(validStates ...State) *Builder {
	valid := make(map[State]bool, len(validStates))
	for _, s := range validStates {
		valid[s] = true
	}
	return &Builder{
		validStates:    valid,
		terminalStates: make(map[State]bool),
		configurations: make(map[State]*stateConfig),
	}
}

// MarkTerminal flags states that permit no further transitions
func (b *Builder) MarkTerminal(states ...State) *Builder {
	for _, s := range states {
		if !b.validStates[s] {
			panic(fmt.Sprintf("invalid state: %s", s))
		}
		b.terminalStates[s] = true
	}
	return b
}

// IsValid returns true if the state belongs to this builder's state set
func (b *Builder) IsValid(state State) bool {
	return b.validStates[state]
}

// IsTerminal returns true if the state permits no further transitions
func (b *Builder) IsTerminal(state State) bool {
	return b.terminalStates[state]
}

// Configure returns a state configuration for the given state
func (b *Builder) Configure(state State) StateConfiguration {
	if !b.validStates[state] {
		panic(fmt.Sprintf("invalid state: %s", state))
	}

	config, exists := b.configurations[state]
	if !exists {
		config = &stateConfig{
			builder:     b,
			fromState:   state,
			transitions: make(map[Trigger][]transition),
		}
		b.configurations[state] = config
	}

	return config
}

// Build creates a new machine instance with the given initial state
func (b *Builder) Build(initialState State) (*Machine, error) {
	if !b.validStates[initialState] {
		return nil, fmt.Errorf("%w: %s", ErrInvalidState, initialState)
	}

	// Copy configurations so the built machine is immune to later
	// builder mutation
	configsCopy := make(map[State]*stateConfig)
	for state, config := range b.configurations {
		transitionsCopy := make(map[Trigger][]transition)
		for trigger, transitions := range config.transitions {
			transitionsCopy[trigger] = append([]transition{}, transitions...)
		}
		configsCopy[state] = &stateConfig{
			fromState:   state,
			transitions: transitionsCopy,
		}
	}

	return &Machine{
		currentState:   initialState,
		configurations: configsCopy,
	}, nil
}

// Permit allows a trigger to transition to the target state
func (c *stateConfig) Permit(trigger Trigger, toState State) StateConfiguration {
	return c.PermitIf(trigger, toState, nil)
}

// PermitIf allows a trigger to transition to the target state if the guard passes
func (c *stateConfig) PermitIf(trigger Trigger, toState State, guard GuardFunc) StateConfiguration {
	if c.builder != nil && !c.builder.validStates[toState] {
		panic(fmt.Sprintf("invalid target state: %s", toState))
	}

	c.transitions[trigger] = append(c.transitions[trigger], transition{
		toState: toState,
		guard:   guard,
	})

	return c
}
