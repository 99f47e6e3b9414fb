// Package engine cranks objectives until they go quiet.
//
// TakeActions collects the active objectives of a set of channels and
// processes them one at a time, oldest first. For each one it takes the
// channel's critical section, asks the protocol for the next action and
// applies it in the same transaction:
//
//   - SignState: sign with the wallet key, persist, queue messages to peers
//   - FundChannel: record the request, then call the chain once
//   - CompleteObjective: mark the objective succeeded
//
// An objective with no action is done for this call but keeps its status;
// the next call that touches its channel (an inbound message, a holdings
// update) picks it up again.
//
// Any error aborts the current transaction and stops the call. Objectives
// already processed keep their effects.
//
// Steps are stamped by a logical Clock. Each objective is bounded by a step
// quota that resets when the call moves to the next objective.
package engine
