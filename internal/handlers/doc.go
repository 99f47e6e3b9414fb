// Package handlers computes the next state a participant should sign in
// response to an application request.
//
// Handlers are pure: they read a channel record and return either the
// variable part to sign or a typed error explaining why the request is not
// allowed right now. Persisting and signing the result is the caller's job,
// inside the channel's critical section.
package handlers
