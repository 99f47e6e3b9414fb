package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/roach88/chanwallet/internal/chain"
	"github.com/roach88/chanwallet/internal/channel"
	"github.com/roach88/chanwallet/internal/engine"
	"github.com/roach88/chanwallet/internal/handlers"
	"github.com/roach88/chanwallet/internal/store"
	"github.com/roach88/chanwallet/internal/testutil"
	"github.com/roach88/chanwallet/internal/wallet"
)

// Trace placeholders for values that depend on the fixture keys.
const (
	ChannelPlaceholder = "ch1"
	AssetPlaceholder   = "asset1"
)

// challengeDuration is used for every scenario channel.
const challengeDuration = 86400

// Harness is the scenario execution engine: one wallet per participant,
// a shared in-memory chain and a message queue between them.
type Harness struct {
	scenario *Scenario
	chain    *chain.Memory
	actors   []testutil.Actor
	wallets  map[string]*actorWallet

	// channelID is set by the first successful create.
	channelID common.Hash

	mu     sync.Mutex
	queue  []channel.Message
	result *Result
}

type actorWallet struct {
	store  *store.Store
	wallet *wallet.Wallet
}

// Run executes a scenario and returns the result.
//
// Each wallet runs on its own in-memory SQLite database. Request ids
// are sequential per actor, so a scenario always yields the same trace.
// Run returns an error only when the scenario cannot be executed; failed
// expectations and assertions are reported in the result.
func Run(scenario *Scenario) (*Result, error) {
	h, err := newHarness(scenario)
	if err != nil {
		return nil, err
	}
	defer h.close()

	ctx := context.Background()
	for i, step := range scenario.Steps {
		if err := h.execute(ctx, i, step); err != nil {
			return nil, fmt.Errorf("failed to execute steps[%d] (%s): %w", i, step.Do, err)
		}
	}
	h.normalizeTrace()

	actx := &AssertionContext{
		Ctx:       ctx,
		Stores:    make(map[string]*store.Store, len(h.wallets)),
		ChannelID: h.channelID,
	}
	for name, aw := range h.wallets {
		actx.Stores[name] = aw.store
	}
	for _, errMsg := range EvaluateAssertions(h.result, scenario.Assertions, actx) {
		h.result.AddError(errMsg)
	}

	return h.result, nil
}

func newHarness(scenario *Scenario) (*Harness, error) {
	// Suppress logs in scenario runs
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	h := &Harness{
		scenario: scenario,
		chain:    chain.NewMemory(chain.WithLogger(logger)),
		wallets:  make(map[string]*actorWallet, len(scenario.Participants)),
		result:   NewResult(),
	}

	// Wallets subscribe to the chain in participant order, which fixes the
	// order holding updates are delivered in.
	for _, name := range scenario.Participants {
		actor := testutil.NewActor(name)
		h.actors = append(h.actors, actor)

		st, err := store.Open(":memory:", store.WithLogger(logger))
		if err != nil {
			h.close()
			return nil, fmt.Errorf("failed to create in-memory store for %s: %w", name, err)
		}
		w := wallet.New(st, actor.Signer, h.chain,
			wallet.WithLogger(logger),
			wallet.WithDefaultFundingStrategy(scenario.Funding),
			wallet.WithResponseHandler(h.collect),
			wallet.WithEngineOptions(
				engine.WithObserver(h.observe(name)),
				engine.WithRequestIDs(testutil.NewSequentialIDs(name)),
			),
		)
		h.wallets[name] = &actorWallet{store: st, wallet: w}
	}
	return h, nil
}

func (h *Harness) close() {
	for _, aw := range h.wallets {
		aw.wallet.Close()
		aw.store.Close()
	}
	h.chain.Close()
}

// observe records engine steps that had an effect.
func (h *Harness) observe(actor string) engine.Observer {
	return func(st engine.Step) {
		if st.Action == "wait" || st.Action == "skip" {
			return
		}
		h.record(TraceEvent{
			Kind:      KindStep,
			Actor:     actor,
			Action:    st.Action,
			Objective: st.ObjectiveID,
		})
	}
}

// collect queues messages from chain-driven responses.
func (h *Harness) collect(_ context.Context, resp *wallet.Response) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.queue = append(h.queue, resp.Outbox...)
}

func (h *Harness) record(ev TraceEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.result.Trace = append(h.result.Trace, ev)
}

func (h *Harness) send(msgs []channel.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.queue = append(h.queue, msgs...)
}

func (h *Harness) next() (channel.Message, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.queue) == 0 {
		return channel.Message{}, false
	}
	m := h.queue[0]
	h.queue = h.queue[1:]
	return m, true
}

func (h *Harness) execute(ctx context.Context, index int, step Step) error {
	switch step.Do {
	case OpDeliver:
		return h.deliver(ctx)

	case OpDrop:
		h.mu.Lock()
		h.queue = nil
		h.mu.Unlock()
		h.record(TraceEvent{Kind: KindOp, Op: OpDrop})
		return nil

	case OpFlush:
		if err := h.chain.Flush(ctx); err != nil {
			return fmt.Errorf("flush chain: %w", err)
		}
		h.record(TraceEvent{Kind: KindChain, Op: OpFlush, Held: h.held()})
		return nil

	case OpDeposit:
		if h.channelID == (common.Hash{}) {
			return fmt.Errorf("no channel has been created")
		}
		h.chain.Deposit(h.channelID, testutil.AssetHolder, big.NewInt(step.Amount))
		h.record(TraceEvent{Kind: KindChain, Op: OpDeposit, Held: h.held()})
		return nil
	}

	aw := h.wallets[step.Actor]
	if step.Do != OpCreate && step.Do != OpCrank && h.channelID == (common.Hash{}) {
		return fmt.Errorf("no channel has been created")
	}

	resp, err := h.call(ctx, aw.wallet, step)
	if err == nil && step.Do == OpCreate && h.channelID == (common.Hash{}) && len(resp.ChannelResults) > 0 {
		h.channelID = resp.ChannelResults[0].ChannelID
	}
	if resp != nil {
		h.send(resp.Outbox)
	}

	ev := TraceEvent{Kind: KindOp, Actor: step.Actor, Op: step.Do}
	h.fillStatus(ctx, aw.wallet, &ev)
	if err != nil {
		ev.Error = errorReason(err)
	}
	h.record(ev)

	h.checkExpect(index, step, ev, err)
	return nil
}

// call makes the wallet call for step.
func (h *Harness) call(ctx context.Context, w *wallet.Wallet, step Step) (*wallet.Response, error) {
	switch step.Do {
	case OpCreate:
		return w.CreateChannel(ctx, wallet.CreateChannelArgs{
			ChainID:           testutil.ChainID,
			Participants:      testutil.Participants(h.actors...),
			Outcome:           testutil.Outcome(h.actors, h.scenario.Amounts...),
			ChallengeDuration: challengeDuration,
			FundingStrategy:   h.scenario.Funding,
		})
	case OpJoin:
		return w.JoinChannel(ctx, h.channelID)
	case OpApprove:
		return w.ApproveObjective(ctx, channel.ObjectiveID(step.Objective, h.channelID))
	case OpUpdate:
		return w.UpdateChannel(ctx, h.channelID, handlers.UpdateArgs{
			Outcome: testutil.Outcome(h.actors, step.Amounts...),
		})
	case OpClose:
		return w.CloseChannel(ctx, h.channelID)
	case OpSync:
		return w.SyncChannel(ctx, h.channelID)
	case OpFund:
		return w.UpdateFundingForChannels(ctx, []wallet.FundingUpdate{{
			ChannelID:   h.channelID,
			AssetHolder: testutil.AssetHolder,
			Amount:      big.NewInt(step.Amount),
		}})
	case OpCrank:
		return w.Crank(ctx)
	default:
		return nil, fmt.Errorf("unknown step %q", step.Do)
	}
}

// deliver pushes queued messages in FIFO order until none remain,
// including the replies they cause.
func (h *Harness) deliver(ctx context.Context) error {
	for {
		m, ok := h.next()
		if !ok {
			return nil
		}
		aw, ok := h.wallets[m.To]
		if !ok {
			return fmt.Errorf("no wallet for recipient %q", m.To)
		}
		resp, err := aw.wallet.PushMessage(ctx, m)
		if err != nil {
			return fmt.Errorf("push message from %s to %s: %w", m.From, m.To, err)
		}
		h.send(resp.Outbox)

		ev := TraceEvent{Kind: KindPush, Actor: m.To, From: m.From}
		h.fillStatus(ctx, aw.wallet, &ev)
		h.record(ev)
	}
}

// fillStatus sets the channel status and turn as seen by w, if w knows
// the channel.
func (h *Harness) fillStatus(ctx context.Context, w *wallet.Wallet, ev *TraceEvent) {
	if h.channelID == (common.Hash{}) {
		return
	}
	res, err := w.GetChannel(ctx, h.channelID)
	if err != nil {
		return
	}
	ev.Status = string(res.Status)
	ev.Turn = turnPtr(res.TurnNum)
}

func (h *Harness) held() string {
	if h.channelID == (common.Hash{}) {
		return "0"
	}
	return h.chain.Holdings(h.channelID, testutil.AssetHolder).String()
}

func (h *Harness) checkExpect(index int, step Step, ev TraceEvent, err error) {
	where := fmt.Sprintf("steps[%d] (%s %s)", index, step.Actor, step.Do)
	exp := step.Expect
	if exp == nil || exp.Error == "" {
		if err != nil {
			h.result.AddError(fmt.Sprintf("%s: unexpected error: %v", where, err))
			return
		}
	} else {
		switch {
		case err == nil:
			h.result.AddError(fmt.Sprintf("%s: expected error %q, got success", where, exp.Error))
			return
		case !strings.Contains(err.Error(), exp.Error):
			h.result.AddError(fmt.Sprintf("%s: expected error %q, got %q", where, exp.Error, err.Error()))
			return
		}
	}
	if exp == nil {
		return
	}
	if exp.Status != "" && string(exp.Status) != ev.Status {
		h.result.AddError(fmt.Sprintf("%s: expected status %s, got %q", where, exp.Status, ev.Status))
	}
	if exp.Turn != nil && (ev.Turn == nil || *ev.Turn != *exp.Turn) {
		got := "none"
		if ev.Turn != nil {
			got = fmt.Sprint(*ev.Turn)
		}
		h.result.AddError(fmt.Sprintf("%s: expected turn %d, got %s", where, *exp.Turn, got))
	}
}

// normalizeTrace replaces the channel id and asset holder with their
// placeholders.
func (h *Harness) normalizeTrace() {
	r := h.replacer()
	for i := range h.result.Trace {
		ev := &h.result.Trace[i]
		ev.Action = r.Replace(ev.Action)
		ev.Objective = r.Replace(ev.Objective)
		ev.Error = r.Replace(ev.Error)
	}
}

func (h *Harness) replacer() *strings.Replacer {
	pairs := []string{testutil.AssetHolder.Hex(), AssetPlaceholder}
	if h.channelID != (common.Hash{}) {
		pairs = append(pairs, h.channelID.Hex(), ChannelPlaceholder)
	}
	return strings.NewReplacer(pairs...)
}

// errorReason returns the reason of a handler error, or the error text.
func errorReason(err error) string {
	var (
		je *handlers.JoinChannelError
		ue *handlers.UpdateChannelError
		ce *handlers.CloseChannelError
		ae *handlers.ApproveObjectiveError
	)
	switch {
	case errors.As(err, &je):
		return string(je.Reason)
	case errors.As(err, &ue):
		return string(ue.Reason)
	case errors.As(err, &ce):
		return string(ce.Reason)
	case errors.As(err, &ae):
		return string(ae.Reason)
	}
	return err.Error()
}
