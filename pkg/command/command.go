// Package command implements the command processor: validation,
// idempotency, per-operation dispatch, and bulk per-key result reporting
// for SET/GET/DELETE/INCR/DECR/APPEND/PREPEND/MGET/MSET.
package command

import (
	"context"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/cuemby/merklekv-mobile/pkg/merr"
	"github.com/cuemby/merklekv-mobile/pkg/metrics"
	"github.com/cuemby/merklekv-mobile/pkg/replication"
	"github.com/cuemby/merklekv-mobile/pkg/storage"
	"github.com/cuemby/merklekv-mobile/pkg/types"
)

// Timeouts per spec.md §4.8/§5.
const (
	SingleKeyTimeout = 10 * time.Second
	BulkTimeout      = 20 * time.Second
	SyncTimeout      = 30 * time.Second
)

const idempotencyTTL = 10 * time.Minute
const idempotencyCacheSize = 4096

// Outbound is the narrow capability the processor needs to get a
// ReplicationEvent to peers: publish immediately if connected, otherwise
// enqueue it for later drain.
type Outbound interface {
	Connected() bool
	Publish(encoded []byte) error
	Enqueue(op types.QueuedOperation)
}

// Processor dispatches validated Commands against the storage engine and
// replication publisher, the direct synchronous analogue of the teacher's
// WarrenFSM.Apply switch — there is no log to apply through here, the
// switch itself is the apply path.
type Processor struct {
	engine          storage.Engine
	publisher       *replication.Publisher
	outbound        Outbound
	defaultPriority types.Priority
	idempotency     *lru.LRU[string, types.Response]
}

// New constructs a Processor. defaultPriority governs the offline-queue
// priority assigned to non-tombstone writes made while disconnected
// (deletes always queue at PriorityHigh regardless).
func New(engine storage.Engine, publisher *replication.Publisher, outbound Outbound, defaultPriority types.Priority) *Processor {
	return &Processor{
		engine:          engine,
		publisher:       publisher,
		outbound:        outbound,
		defaultPriority: defaultPriority,
		idempotency:     lru.NewLRU[string, types.Response](idempotencyCacheSize, nil, idempotencyTTL),
	}
}

// Dispatch assigns cmd a UUIDv4 id if the caller left it empty, validates
// cmd, applies it, and returns a Response with Response.ID == cmd.ID. It
// enforces a timeout derived from the operation kind, cancellable via ctx.
func (p *Processor) Dispatch(ctx context.Context, cmd types.Command) types.Response {
	if cmd.ID == "" {
		cmd.ID = uuid.NewString()
	}

	if cached, ok := p.idempotency.Get(cmd.ID); ok {
		metrics.IdempotencyCacheHits.Inc()
		return cached
	}

	timeout := operationTimeout(cmd.Op)
	dctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan types.Response, 1)
	go func() { done <- p.apply(cmd) }()

	var resp types.Response
	select {
	case resp = <-done:
	case <-dctx.Done():
		resp = errorResponse(cmd.ID, merr.New(merr.Timeout, "operation timed out"))
	}

	metrics.CommandsTotal.WithLabelValues(string(cmd.Op), string(resp.Status)).Inc()
	if cmd.ID != "" {
		p.idempotency.Add(cmd.ID, resp)
	}
	return resp
}

func operationTimeout(op types.CommandOp) time.Duration {
	switch op {
	case types.CmdMGet, types.CmdMSet:
		return BulkTimeout
	default:
		return SingleKeyTimeout
	}
}

func (p *Processor) apply(cmd types.Command) types.Response {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.CommandDuration, string(cmd.Op))

	switch cmd.Op {
	case types.CmdSet:
		return p.applySet(cmd.ID, cmd.Key, cmd.Value)
	case types.CmdGet:
		return p.applyGet(cmd.ID, cmd.Key)
	case types.CmdDelete:
		return p.applyDelete(cmd.ID, cmd.Key)
	case types.CmdIncr:
		return p.applyDelta(cmd.ID, cmd.Key, cmd.Amount)
	case types.CmdDecr:
		return p.applyDelta(cmd.ID, cmd.Key, -cmd.Amount)
	case types.CmdAppend:
		return p.applyConcat(cmd.ID, cmd.Key, cmd.Value, false)
	case types.CmdPrepend:
		return p.applyConcat(cmd.ID, cmd.Key, cmd.Value, true)
	case types.CmdMGet:
		return p.applyMGet(cmd.ID, cmd.Keys)
	case types.CmdMSet:
		return p.applyMSet(cmd.ID, cmd.KVs)
	default:
		return errorResponse(cmd.ID, merr.New(merr.Validation, "unknown command op"))
	}
}

func (p *Processor) applySet(id, key, value string) types.Response {
	if err := validateKeyValue(key, value); err != nil {
		return errorResponse(id, err)
	}
	if err := p.writeEntry(key, []byte(value), false); err != nil {
		return errorResponse(id, err)
	}
	return types.Response{ID: id, Status: types.StatusOK}
}

func (p *Processor) applyGet(id, key string) types.Response {
	if err := validateKey(key); err != nil {
		return errorResponse(id, err)
	}
	e, ok, err := p.engine.Get(key)
	if err != nil {
		return errorResponse(id, merr.Wrap(merr.Storage, "get", err))
	}
	if !ok {
		return types.Response{ID: id, Status: types.StatusOK, Value: nil}
	}
	return types.Response{ID: id, Status: types.StatusOK, Value: string(e.Value)}
}

func (p *Processor) applyDelete(id, key string) types.Response {
	if err := validateKey(key); err != nil {
		return errorResponse(id, err)
	}
	if err := p.writeEntry(key, nil, true); err != nil {
		return errorResponse(id, err)
	}
	return types.Response{ID: id, Status: types.StatusOK}
}

// applyDelta implements INCR (delta > 0 as given) and DECR (caller
// negates amount before calling). Absent keys are treated as 0;
// non-numeric existing values are ErrorKind::TypeMismatch; signed 64-bit
// overflow is ErrorKind::OverflowArithmetic.
func (p *Processor) applyDelta(id, key string, delta int64) types.Response {
	if err := validateKey(key); err != nil {
		return errorResponse(id, err)
	}

	var current int64
	e, ok, err := p.engine.Get(key)
	if err != nil {
		return errorResponse(id, merr.Wrap(merr.Storage, "get", err))
	}
	if ok {
		current, err = strconv.ParseInt(string(e.Value), 10, 64)
		if err != nil {
			return errorResponse(id, merr.New(merr.TypeMismatch, "existing value is not a signed 64-bit integer"))
		}
	}

	next, overflowed := addOverflow(current, delta)
	if overflowed {
		return errorResponse(id, merr.New(merr.OverflowArithmetic, "integer overflow"))
	}

	nextStr := strconv.FormatInt(next, 10)
	if err := p.writeEntry(key, []byte(nextStr), false); err != nil {
		return errorResponse(id, err)
	}
	return types.Response{ID: id, Status: types.StatusOK, Value: next}
}

func addOverflow(a, b int64) (int64, bool) {
	sum := a + b
	if (b > 0 && sum < a) || (b < 0 && sum > a) {
		return 0, true
	}
	return sum, false
}

func (p *Processor) applyConcat(id, key, value string, prepend bool) types.Response {
	if err := validateValue(value); err != nil {
		return errorResponse(id, err)
	}
	if err := validateKey(key); err != nil {
		return errorResponse(id, err)
	}

	e, ok, err := p.engine.Get(key)
	if err != nil {
		return errorResponse(id, merr.Wrap(merr.Storage, "get", err))
	}

	var result string
	switch {
	case !ok:
		result = value
	case prepend:
		result = value + string(e.Value)
	default:
		result = string(e.Value) + value
	}

	if len(result) > types.MaxValueBytes {
		return errorResponse(id, merr.New(merr.Validation, "resulting value exceeds maximum byte length"))
	}

	if err := p.writeEntry(key, []byte(result), false); err != nil {
		return errorResponse(id, err)
	}
	return types.Response{ID: id, Status: types.StatusOK, Value: result}
}

func (p *Processor) applyMGet(id string, keys []string) types.Response {
	values := make(map[string]types.KeyResult, len(keys))
	for _, k := range keys {
		if err := validateKey(k); err != nil {
			values[k] = types.KeyResult{Error: toResponseError(err)}
			continue
		}
		e, ok, err := p.engine.Get(k)
		if err != nil {
			values[k] = types.KeyResult{Error: toResponseError(merr.Wrap(merr.Storage, "get", err))}
			continue
		}
		values[k] = types.KeyResult{Value: string(e.Value), Found: ok}
	}
	return types.Response{ID: id, Status: types.StatusOK, Values: values}
}

func (p *Processor) applyMSet(id string, kvs map[string]string) types.Response {
	values := make(map[string]types.KeyResult, len(kvs))
	for k, v := range kvs {
		if err := validateKeyValue(k, v); err != nil {
			values[k] = types.KeyResult{Error: toResponseError(err)}
			continue
		}
		if err := p.writeEntry(k, []byte(v), false); err != nil {
			values[k] = types.KeyResult{Error: toResponseError(err)}
			continue
		}
		values[k] = types.KeyResult{Value: v, Found: true}
	}
	return types.Response{ID: id, Status: types.StatusOK, Values: values}
}

// writeEntry applies the mutation to storage, then replicates it —
// publishing immediately if connected, otherwise handing it to the
// offline queue (high priority for deletes, the configured default
// priority for everything else, per spec.md §4.6).
func (p *Processor) writeEntry(key string, value []byte, tombstone bool) error {
	entry := types.Entry{
		Key:         key,
		Value:       value,
		TimestampMs: time.Now().UnixMilli(),
		IsTombstone: tombstone,
	}

	// Publisher.Next is the single place NodeID/Seq are assigned; storage
	// and the replicated event must carry the identical stamped version.
	ev, encoded, err := p.publisher.Next(entry)
	if err != nil {
		return err
	}

	if _, err := p.engine.Put(ev.Entry()); err != nil {
		return err
	}

	if p.outbound.Connected() {
		if err := p.outbound.Publish(encoded); err != nil {
			return merr.Wrap(merr.Transport, "publish replication event", err)
		}
		return nil
	}

	priority := p.defaultPriority
	if tombstone {
		priority = types.PriorityHigh
	}
	p.outbound.Enqueue(types.QueuedOperation{
		OperationID:   ev.NodeID + ":" + strconv.FormatUint(ev.Seq, 10),
		OperationType: ev.Op,
		Priority:      priority,
		CommandBytes:  encoded,
		QueuedAtMs:    entry.TimestampMs,
	})
	return nil
}

func validateKey(key string) error {
	if key == "" {
		return merr.New(merr.Validation, "key must not be empty")
	}
	if !utf8.ValidString(key) {
		return merr.New(merr.Validation, "key must be valid UTF-8")
	}
	if len(key) > types.MaxKeyBytes {
		return merr.New(merr.Validation, "key exceeds maximum byte length")
	}
	return nil
}

func validateValue(value string) error {
	if !utf8.ValidString(value) {
		return merr.New(merr.Validation, "value must be valid UTF-8")
	}
	if len(value) > types.MaxValueBytes {
		return merr.New(merr.Validation, "value exceeds maximum byte length")
	}
	return nil
}

func validateKeyValue(key, value string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	return validateValue(value)
}

func errorResponse(id string, err error) types.Response {
	return types.Response{ID: id, Status: types.StatusError, Error: toResponseError(err)}
}

func toResponseError(err error) *types.ResponseError {
	return &types.ResponseError{Code: string(merr.KindOf(err)), Message: err.Error()}
}
