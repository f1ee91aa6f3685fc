/*
Package config implements the immutable configuration record: defaults,
then YAML overlay (Load) or programmatic overlay (New), then Validate —
the same load-then-validate-once shape the teacher uses for
WarrenResource, adapted to this repo's fields (spec.md §6).

WithWarningHook registers the non-fatal security warning callback;
finalize invokes it once, synchronously, if a password is set without TLS.
No process-wide singleton holds it — per the Design Notes' "avoid
process-wide singletons" guidance — it is threaded explicitly into
whichever Config carries it.

Validate also runs every topic this node's TopicPrefix/ClientID derive
through pkg/topic.Validate, so a ClientID containing a wildcard character
fails construction instead of silently producing a broken topic later.
*/
package config
