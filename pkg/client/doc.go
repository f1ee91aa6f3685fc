/*
Package client wires together config, storage, command, replication,
transport, queue, antientropy, lifecycle and events into the single
Client type embedders construct and call — the role pkg/manager.Manager
plays in the teacher codebase, minus Raft: there is no distributed
consensus layer here, only the command processor's direct synchronous
writes, so Client composes instead of delegating through a state
machine log.

outboundAdapter is the one place command.Outbound is implemented
concretely, composing the real Transport and Queue so pkg/command never
imports either directly.
*/
package client
