package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/roach88/chanwallet/internal/chain"
	"github.com/roach88/chanwallet/internal/channel"
	"github.com/roach88/chanwallet/internal/nitro"
	"github.com/roach88/chanwallet/internal/protocol"
	"github.com/roach88/chanwallet/internal/store"
)

// DefaultMaxSteps is the default maximum number of steps one objective may
// take within a TakeActions call.
const DefaultMaxSteps = 64

// Step describes one processed objective decision.
type Step struct {
	Seq         int64       `json:"seq"`
	RequestID   string      `json:"requestId"`
	ObjectiveID string      `json:"objectiveId"`
	ChannelID   common.Hash `json:"channelId"`
	Action      string      `json:"action"`
}

// Observer is notified after every committed step.
type Observer func(Step)

// Result collects the effects of a TakeActions call in the order they
// happened. Callers merge and deduplicate.
type Result struct {
	Channels  []channel.Result
	Messages  []channel.Message
	Completed []string
}

// Append adds other's effects after r's.
func (r *Result) Append(other *Result) {
	if other == nil {
		return
	}
	r.Channels = append(r.Channels, other.Channels...)
	r.Messages = append(r.Messages, other.Messages...)
	r.Completed = append(r.Completed, other.Completed...)
}

// Engine applies protocol decisions to stored channels.
type Engine struct {
	store    *store.Store
	signer   *nitro.Signer
	chain    chain.Service
	clock    *Clock
	ids      RequestIDGenerator
	maxSteps int
	observer Observer
	logger   *slog.Logger
}

// Option allows configuration of engine parameters.
type Option func(*Engine)

// WithMaxSteps sets the per-objective step quota.
func WithMaxSteps(maxSteps int) Option {
	return func(e *Engine) {
		e.maxSteps = maxSteps
	}
}

// WithObserver registers a step observer.
func WithObserver(o Observer) Option {
	return func(e *Engine) {
		e.observer = o
	}
}

// WithRequestIDs sets the request id generator.
func WithRequestIDs(g RequestIDGenerator) Option {
	return func(e *Engine) {
		e.ids = g
	}
}

// WithClock sets the step clock.
func WithClock(c *Clock) Option {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// New creates an Engine signing with signer and depositing through svc.
func New(s *store.Store, signer *nitro.Signer, svc chain.Service, opts ...Option) *Engine {
	e := &Engine{
		store:    s,
		signer:   signer,
		chain:    svc,
		clock:    NewClock(),
		ids:      UUIDv7Generator{},
		maxSteps: DefaultMaxSteps,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// MaxSteps returns the configured step quota.
func (e *Engine) MaxSteps() int {
	return e.maxSteps
}

// Clock returns the step clock.
func (e *Engine) Clock() *Clock {
	return e.clock
}

// TakeActions cranks the active objectives of the given channels until
// each one is complete or has nothing to do.
func (e *Engine) TakeActions(ctx context.Context, channelIDs []common.Hash) (*Result, error) {
	requestID := e.ids.Generate()
	res := &Result{}

	objs, err := e.store.ActiveObjectives(ctx, channelIDs)
	if err != nil {
		return res, fmt.Errorf("take actions: %w", err)
	}

	e.logger.Debug("taking actions",
		"request_id", requestID,
		"channels", len(channelIDs),
		"objectives", len(objs),
	)

	quota := NewQuotaEnforcer(e.maxSteps)
	for len(objs) > 0 {
		h := objs[0].Header()
		if err := quota.Check(requestID); err != nil {
			var se *StepsExceededError
			errors.As(err, &se)
			e.logger.Error("max steps quota exceeded",
				"request_id", requestID,
				"objective_id", h.ObjectiveID,
				"steps", quota.Current(),
				"max_steps", quota.MaxSteps(),
			)
			return res, NewQuotaError(requestID, se)
		}

		done, err := e.step(ctx, requestID, h, res)
		if err != nil {
			e.logStepError(requestID, h, err)
			return res, err
		}
		if done {
			objs = objs[1:]
			quota.Reset()
		}
	}
	return res, nil
}

type stepOutcome struct {
	done      bool
	action    string
	result    channel.Result
	messages  []channel.Message
	completed string
}

// step applies one decision for an objective under its channel's lock.
// It reports whether the objective is finished for this call.
func (e *Engine) step(ctx context.Context, requestID string, h channel.ObjectiveHeader, res *Result) (bool, error) {
	out, err := store.LockApp(ctx, e.store, h.ChannelID,
		func(tx *store.Tx, rec *channel.Record) (stepOutcome, error) {
			obj, err := tx.GetObjective(ctx, h.ObjectiveID)
			if err != nil {
				return stepOutcome{}, err
			}
			if !obj.Header().Status.Active() {
				return stepOutcome{done: true, action: "skip", result: rec.Result()}, nil
			}
			return e.apply(ctx, tx, rec, obj, requestID)
		},
		func(tx *store.Tx) (stepOutcome, error) {
			return stepOutcome{}, &RuntimeError{
				Code:        ErrCodeMissingChannel,
				Message:     fmt.Sprintf("channel %s not found", h.ChannelID.Hex()),
				RequestID:   requestID,
				ObjectiveID: h.ObjectiveID,
			}
		})
	if err != nil {
		return false, err
	}

	st := Step{
		Seq:         e.clock.Next(),
		RequestID:   requestID,
		ObjectiveID: h.ObjectiveID,
		ChannelID:   h.ChannelID,
		Action:      out.action,
	}
	e.logger.Debug("step committed",
		"seq", st.Seq,
		"request_id", requestID,
		"objective_id", h.ObjectiveID,
		"action", out.action,
		"status", out.result.Status,
		"turn_num", out.result.TurnNum,
	)
	if e.observer != nil {
		e.observer(st)
	}

	res.Channels = append(res.Channels, out.result)
	res.Messages = append(res.Messages, out.messages...)
	if out.completed != "" {
		res.Completed = append(res.Completed, out.completed)
	}
	return out.done, nil
}

func (e *Engine) apply(ctx context.Context, tx *store.Tx, rec *channel.Record, obj channel.Objective, requestID string) (stepOutcome, error) {
	action := protocol.Decide(rec, obj)
	out := stepOutcome{action: "wait"}

	switch a := action.(type) {
	case nil:
		out.done = true

	case protocol.SignState:
		out.action = a.String()
		s, err := tx.SignState(ctx, rec, a.Vars, e.signer)
		if err != nil {
			return stepOutcome{}, err
		}
		out.messages = rec.MessagesToPeers(channel.Payload{
			SignedStates: []channel.WireState{rec.ToWire(s)},
		})

	case protocol.FundChannel:
		out.action = a.String()
		if e.chain == nil {
			return stepOutcome{}, channel.NewInvariantError("no chain service to fund channel %s", a.ChannelID.Hex())
		}
		req := channel.ChainRequest{
			Kind:         channel.ChainRequestFund,
			AssetHolder:  a.AssetHolder,
			ExpectedHeld: a.ExpectedHeld,
			Amount:       a.Amount,
		}
		if err := tx.RecordChainRequest(ctx, rec, req); err != nil {
			return stepOutcome{}, err
		}
		err := e.chain.FundChannel(ctx, chain.FundChannelArg{
			ChannelID:    a.ChannelID,
			AssetHolder:  a.AssetHolder,
			ExpectedHeld: a.ExpectedHeld,
			Amount:       a.Amount,
		})
		if err != nil {
			return stepOutcome{}, NewChainError(requestID, obj.Header().ObjectiveID, err)
		}

	case protocol.CompleteObjective:
		out.action = a.String()
		if err := tx.SetObjectiveStatus(ctx, a.ObjectiveID, channel.StatusSucceeded); err != nil {
			return stepOutcome{}, err
		}
		out.done = true
		out.completed = a.ObjectiveID

	default:
		return stepOutcome{}, channel.NewInvariantError("unknown action %T", action)
	}

	out.result = rec.Result()
	return out, nil
}

func (e *Engine) logStepError(requestID string, h channel.ObjectiveHeader, err error) {
	var ie *channel.InvariantError
	if errors.As(err, &ie) {
		e.logger.Error("invariant violated",
			"request_id", requestID,
			"objective_id", h.ObjectiveID,
			"channel_id", h.ChannelID.Hex(),
			"error", ie.Message,
			"stack", ie.ErrorStack(),
		)
		return
	}
	e.logger.Warn("objective step failed",
		"request_id", requestID,
		"objective_id", h.ObjectiveID,
		"channel_id", h.ChannelID.Hex(),
		"error", err,
	)
}
