/*
Package health implements consecutive-observation hysteresis: N consecutive
failures before a signal is considered down, one success to clear it.

pkg/transport embeds a Status to decide when repeated reconnect failures
should escalate the connection state from "reconnecting" toward
"suspended", instead of reacting to every single failed attempt.
*/
package health
