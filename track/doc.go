// Package track models the job application lifecycle: candidates,
// applications, interviews, and the reminders bound to them.
//
// Status and reminder existence are coupled by a state machine: every
// reminder-bearing status requires exactly one reminder of its kind, the
// upcoming_interview status delegates to interview pre/post reminders, and
// archived applications require none. Transitions go through the
// operations in transitions.go; invariants are collected at save time into
// a ValidationError so multiple problems are reported together.
package track
