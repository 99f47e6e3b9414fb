// Package harness runs multi-wallet conformance scenarios.
//
// A scenario drives two or more wallets, one per fixture actor, over a
// shared in-memory chain. Messages travel through an explicit queue so a
// scenario decides when they are delivered or lost.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	participants: [alice, bob]
//	funding: Unfunded
//	amounts: [5, 5]
//	steps:
//	  - actor: alice
//	    do: create
//	    expect: { status: opening, turn: 0 }
//	  - do: deliver
//	  - actor: bob
//	    do: update
//	    amounts: [4, 6]
//	    expect: { error: notMyTurn }
//	assertions:
//	  - type: trace_contains
//	    actor: bob
//	    action: "SignState(ch1, turn=3, final=false)"
//	  - type: final_state
//	    actor: alice
//	    table: objectives
//	    where: { objective_id: "CloseChannel-ch1" }
//	    expect: { status: succeeded }
//
// Steps that need no actor are deliver, drop, flush and deposit.
//
// # Assertion Types
//
//   - trace_contains: an engine step with the action, optionally by actor
//   - trace_order: engine steps appear in the given order
//   - trace_count: an engine step appears exactly N times
//   - final_state: a row in an actor's database has the expected values
//
// # Deterministic Traces
//
// The channel id and asset holder change with the fixture keys, so traces
// name them "ch1" and "asset1". Request ids come from
// testutil.SequentialIDs. Only engine steps with an effect are traced;
// waits are left out. The same scenario always yields the same trace,
// which RunWithGolden compares against testdata/golden.
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/direct_funding.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(scenario)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if !result.Pass {
//	    for _, e := range result.Errors {
//	        log.Println(e)
//	    }
//	}
package harness
