package harness

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/chanwallet/internal/handlers"
)

func mustParse(t *testing.T, yaml string) *Scenario {
	t.Helper()
	s, err := ParseScenario([]byte(yaml))
	require.NoError(t, err)
	return s
}

func TestRun_Testdata(t *testing.T) {
	for _, name := range []string{"unfunded_lifecycle", "direct_funding", "sync_recovery"} {
		t.Run(name, func(t *testing.T) {
			scenario, err := LoadScenario("testdata/scenarios/" + name + ".yaml")
			require.NoError(t, err)

			result, err := Run(scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, strings.Join(result.Errors, "\n"))
		})
	}
}

func TestRun_Deterministic(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/direct_funding.yaml")
	require.NoError(t, err)

	first, err := Run(scenario)
	require.NoError(t, err)
	second, err := Run(scenario)
	require.NoError(t, err)
	assert.Equal(t, first.Trace, second.Trace)
}

func TestRun_TraceIsNormalized(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/direct_funding.yaml")
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)

	steps := result.Steps()
	require.NotEmpty(t, steps)
	for _, ev := range steps {
		assert.NotContains(t, ev.Action, "0x", "action %q", ev.Action)
		assert.True(t, strings.HasSuffix(ev.Objective, "-"+ChannelPlaceholder), ev.Objective)
	}
}

func TestRun_FailedExpectation(t *testing.T) {
	scenario := mustParse(t, `
name: wrong_status
description: "Expectation mismatch is reported, not returned"
participants: [alice, bob]
funding: Unfunded
amounts: [5, 5]
steps:
  - actor: alice
    do: create
    expect: { status: running, turn: 3 }
`)
	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], "expected status running")
	assert.Contains(t, result.Errors[1], "expected turn 3")
}

func TestRun_UnexpectedError(t *testing.T) {
	scenario := mustParse(t, `
name: early_close
description: "Closing before the channel runs fails"
participants: [alice, bob]
funding: Unfunded
amounts: [5, 5]
steps:
  - actor: alice
    do: create
  - actor: alice
    do: close
`)
	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "unexpected error")

	last := result.Trace[len(result.Trace)-1]
	assert.Equal(t, OpClose, last.Op)
	assert.Equal(t, "invalidLatestState", last.Error)
}

func TestRun_ExpectedErrorMissing(t *testing.T) {
	scenario := mustParse(t, `
name: no_error
description: "A step expected to fail succeeds"
participants: [alice, bob]
funding: Unfunded
amounts: [5, 5]
steps:
  - actor: alice
    do: create
    expect: { error: notMyTurn }
`)
	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], `expected error "notMyTurn", got success`)
}

func TestRun_ChannelRequired(t *testing.T) {
	scenario := mustParse(t, `
name: join_first
description: "Channel steps need a created channel"
participants: [alice, bob]
funding: Unfunded
amounts: [5, 5]
steps:
  - actor: bob
    do: join
`)
	_, err := Run(scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no channel has been created")
}

func TestRun_ThirdPartyDeposit(t *testing.T) {
	scenario := mustParse(t, `
name: third_party_deposit
description: "A deposit covering both allocations funds the channel without wallet deposits"
participants: [alice, bob]
funding: Direct
amounts: [5, 5]
steps:
  - actor: alice
    do: create
  - do: deliver
  - actor: bob
    do: join
  - do: deposit
    amount: 10
  - do: flush
  - do: deliver
assertions:
  - type: trace_count
    action: "FundChannel(ch1, asset=asset1, expectedHeld=5, amount=5)"
    count: 0
  - type: trace_count
    action: "CompleteObjective(OpenChannel-ch1)"
    count: 2
`)
	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, strings.Join(result.Errors, "\n"))

	var chainEvents []TraceEvent
	for _, ev := range result.Trace {
		if ev.Kind == KindChain {
			chainEvents = append(chainEvents, ev)
		}
	}
	require.Len(t, chainEvents, 2)
	assert.Equal(t, OpDeposit, chainEvents[0].Op)
	assert.Equal(t, "10", chainEvents[0].Held)
	assert.Equal(t, OpFlush, chainEvents[1].Op)
	assert.Equal(t, "10", chainEvents[1].Held)
}

func TestRun_ThreeParty(t *testing.T) {
	scenario := mustParse(t, `
name: three_party
description: "Three wallets open an unfunded channel"
participants: [alice, bob, carol]
funding: Unfunded
amounts: [1, 2, 3]
steps:
  - actor: alice
    do: create
  - do: deliver
  - actor: bob
    do: join
  - actor: carol
    do: join
  - do: deliver
assertions:
  - type: trace_count
    action: "CompleteObjective(OpenChannel-ch1)"
    count: 3
  - type: trace_contains
    actor: carol
    action: "SignState(ch1, turn=5, final=false)"
  - type: final_state
    actor: carol
    table: channels
    where: { channel_id: ch1 }
    expect: { my_index: 2 }
`)
	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, strings.Join(result.Errors, "\n"))
}

func TestErrorReason(t *testing.T) {
	assert.Equal(t, "plain failure", errorReason(errors.New("plain failure")))
	assert.Equal(t, "notMyTurn", errorReason(fmt.Errorf("wrapped: %w",
		&handlers.UpdateChannelError{Reason: handlers.UpdateNotMyTurn})))
	assert.Equal(t, "objectiveNotFound", errorReason(
		&handlers.ApproveObjectiveError{Reason: handlers.ApproveObjectiveNotFound, ObjectiveID: "x"}))
}
