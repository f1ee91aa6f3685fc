// Package client assembles every other package into the public API this
// repo exposes: Connect/Disconnect and the nine data operations, plus an
// observable connection_state() stream, the same "one struct wires
// everything, public methods are the whole surface" shape as the
// teacher's pkg/manager.Manager.
package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/merklekv-mobile/pkg/antientropy"
	"github.com/cuemby/merklekv-mobile/pkg/command"
	"github.com/cuemby/merklekv-mobile/pkg/config"
	"github.com/cuemby/merklekv-mobile/pkg/events"
	"github.com/cuemby/merklekv-mobile/pkg/lifecycle"
	"github.com/cuemby/merklekv-mobile/pkg/log"
	"github.com/cuemby/merklekv-mobile/pkg/queue"
	"github.com/cuemby/merklekv-mobile/pkg/replication"
	"github.com/cuemby/merklekv-mobile/pkg/storage"
	"github.com/cuemby/merklekv-mobile/pkg/topic"
	"github.com/cuemby/merklekv-mobile/pkg/transport"
	"github.com/cuemby/merklekv-mobile/pkg/types"
)

// Client is the embedder-facing handle for one MerkleKV-Mobile node.
type Client struct {
	cfg    *config.Config
	logger zerolog.Logger

	engine     storage.Engine
	broker     *events.Broker
	publisher  *replication.Publisher
	applier    *replication.Applier
	processor  *command.Processor
	transport  *transport.Transport
	queue      *queue.Queue
	queueRun   *queue.Runner
	entropyRun *antientropy.Runner
	gcRun      *storage.GCRunner
	lifecycle  *lifecycle.Adapter

	suspendedMu sync.Mutex
	suspended   bool

	peersMu sync.RWMutex
	peers   []string
}

// New assembles a Client from cfg. It does not dial the broker — call
// Connect for that.
func New(cfg *config.Config) (*Client, error) {
	engine, err := buildEngine(cfg)
	if err != nil {
		return nil, err
	}

	var lastSeq uint64
	existing, err := engine.AllEntries()
	if err != nil {
		return nil, err
	}
	for _, e := range existing {
		if e.NodeID == cfg.NodeID && e.Seq > lastSeq {
			lastSeq = e.Seq
		}
	}

	broker := events.NewBroker()
	broker.Start()

	publisher := replication.NewPublisher(cfg.NodeID, lastSeq)
	applier := replication.NewApplier(engine, broker)
	q := queue.New(cfg.OfflineQueue.MaxOperations, cfg.OfflineQueue.MaxAge, cfg.OfflineQueue.MaxRetries)

	topics := topic.Scheme{Prefix: cfg.TopicPrefix, ClientID: cfg.ClientID}

	thresholds := lifecycle.Thresholds{
		Low:               cfg.BatteryConfig.LowThreshold,
		Critical:          cfg.BatteryConfig.CriticalThreshold,
		AdaptiveKeepAlive: cfg.BatteryConfig.AdaptiveKeepAlive,
		AdaptiveSync:      cfg.BatteryConfig.AdaptiveSync,
		Throttle:          cfg.BatteryConfig.Throttle,
		ReduceBackground:  cfg.BatteryConfig.ReduceBackground,
	}

	c := &Client{
		cfg:       cfg,
		logger:    log.WithNodeID(cfg.NodeID),
		engine:    engine,
		broker:    broker,
		publisher: publisher,
		applier:   applier,
		queue:     q,
		lifecycle: lifecycle.NewAdapterWithThresholds(thresholds),
	}

	c.transport = transport.New(transport.Config{
		Host:              cfg.MQTTHost,
		Port:              cfg.MQTTPort,
		UseTLS:            cfg.MQTTUseTLS,
		ClientID:          cfg.ClientID,
		Username:          cfg.Username,
		Password:          cfg.Password,
		KeepAliveSeconds:  cfg.KeepAliveSeconds,
		ConnectionTimeout: time.Duration(cfg.ConnectionTimeoutSeconds) * time.Second,
		CleanSession:      false,
		Topics:            topics,
	}, broker, engine, c.onReplication, c.onCommand)

	defaultPriority := types.ParsePriority(cfg.OfflineQueue.DefaultPriority)
	c.processor = command.New(engine, publisher, &outboundAdapter{transport: c.transport, queue: q}, defaultPriority)
	c.queueRun = queue.NewRunner(q, c.transport)
	c.queueRun.SetConcurrencyFunc(func() int { return c.lifecycle.Current().MaxConcurrentOperations })

	session := &antientropy.Session{Engine: engine, Exchanger: c.transport}
	c.entropyRun = antientropy.NewRunner(session, c.listPeers)
	c.entropyRun.SetIntervalFunc(func() time.Duration {
		return time.Duration(c.lifecycle.Current().SyncIntervalSeconds) * time.Second
	})
	c.entropyRun.SetDeferFunc(
		func() bool { return c.lifecycle.Current().DeferNonCriticalRequests },
		c.lifecycle.NoteDeferred,
	)

	c.gcRun = storage.NewGCRunner(engine)

	return c, nil
}

func buildEngine(cfg *config.Config) (storage.Engine, error) {
	if !cfg.PersistenceEnabled {
		return storage.NewMemEngine(), nil
	}
	return storage.NewPersistentEngine(cfg.StoragePath)
}

// outboundAdapter is the one concrete implementation of command.Outbound:
// publish immediately if the transport is connected, otherwise hand the
// operation to the offline queue for later drain.
type outboundAdapter struct {
	transport *transport.Transport
	queue     *queue.Queue
}

func (o *outboundAdapter) Connected() bool                  { return o.transport.Connected() }
func (o *outboundAdapter) Publish(b []byte) error           { return o.transport.PublishReplication(b) }
func (o *outboundAdapter) Enqueue(op types.QueuedOperation) { o.queue.Enqueue(op) }

func (c *Client) onReplication(payload []byte) {
	if err := c.applier.ApplyEncoded(payload); err != nil {
		c.logger.Warn().Err(err).Msg("discarding malformed replication event")
	}
}

// onCommand answers a remote command delivered on this node's own command
// topic (e.g. from a coordinating process) and publishes the Response on
// the matching responses topic. Local embedders call the Set/Get/... methods
// directly instead of round-tripping through MQTT.
func (c *Client) onCommand(payload []byte) {
	cmd, err := command.DecodeCommand(payload)
	if err != nil {
		c.logger.Warn().Err(err).Msg("discarding malformed command payload")
		return
	}
	resp := c.processor.Dispatch(context.Background(), cmd)
	encoded, err := command.EncodeResponse(resp)
	if err != nil {
		c.logger.Error().Err(err).Msg("encode command response")
		return
	}
	topics := topic.Scheme{Prefix: c.cfg.TopicPrefix, ClientID: c.cfg.ClientID}
	if err := c.transport.Publish(topics.Responses(), encoded); err != nil {
		c.logger.Warn().Err(err).Msg("publish command response")
	}
}

// Connect dials the MQTT broker and starts every background loop: queue
// drain, anti-entropy, GC.
func (c *Client) Connect(ctx context.Context) error {
	if err := c.transport.Connect(ctx); err != nil {
		return err
	}
	c.queueRun.Start()
	c.entropyRun.Start()
	c.gcRun.Start()
	return nil
}

// Disconnect stops every background loop and closes the transport and
// storage engine.
func (c *Client) Disconnect() error {
	c.gcRun.Stop()
	c.entropyRun.Stop()
	c.queueRun.Stop()
	c.transport.Disconnect()
	c.broker.Stop()
	return c.engine.Close()
}

// ConnectionState returns the transport's current lifecycle state.
func (c *Client) ConnectionState() types.ConnectionState { return c.transport.State() }

// Subscribe returns a channel of local lifecycle events — the observable
// stream backing connection_state() for embedders that want to react to
// transitions instead of polling ConnectionState.
func (c *Client) Subscribe() events.Subscriber { return c.broker.Subscribe() }

// Unsubscribe releases a subscription obtained from Subscribe.
func (c *Client) Unsubscribe(sub events.Subscriber) { c.broker.Unsubscribe(sub) }

// AddPeer registers peerID as a target for future anti-entropy rounds.
func (c *Client) AddPeer(peerID string) {
	c.peersMu.Lock()
	defer c.peersMu.Unlock()
	for _, p := range c.peers {
		if p == peerID {
			return
		}
	}
	c.peers = append(c.peers, peerID)
}

func (c *Client) listPeers() []string {
	c.peersMu.RLock()
	defer c.peersMu.RUnlock()
	out := make([]string, len(c.peers))
	copy(out, c.peers)
	return out
}

// UpdateBatteryState feeds the latest battery reading to the lifecycle
// adapter, applies the resulting profile to the transport (keep-alive,
// suspend/resume), and returns it. Embedders call this from their
// platform's battery-change callback.
func (c *Client) UpdateBatteryState(in lifecycle.Inputs) lifecycle.Outputs {
	out := c.lifecycle.Update(in)

	c.transport.UpdateKeepAlive(out.KeepAliveSeconds)

	c.suspendedMu.Lock()
	wasSuspended := c.suspended
	c.suspended = out.Suspend
	c.suspendedMu.Unlock()

	switch {
	case out.Suspend && !wasSuspended:
		c.transport.Suspend()
	case !out.Suspend && wasSuspended:
		c.transport.Resume(context.Background())
	}

	return out
}

func (c *Client) dispatch(ctx context.Context, cmd types.Command) types.Response {
	return c.processor.Dispatch(ctx, cmd)
}

// Set stores value under key.
func (c *Client) Set(ctx context.Context, key, value string) error {
	resp := c.dispatch(ctx, types.Command{Op: types.CmdSet, Key: key, Value: value})
	return responseErr(resp)
}

// Get returns the current value for key, and whether it was found.
func (c *Client) Get(ctx context.Context, key string) (string, bool, error) {
	resp := c.dispatch(ctx, types.Command{Op: types.CmdGet, Key: key})
	if err := responseErr(resp); err != nil {
		return "", false, err
	}
	if resp.Value == nil {
		return "", false, nil
	}
	return resp.Value.(string), true, nil
}

// Delete tombstones key.
func (c *Client) Delete(ctx context.Context, key string) error {
	resp := c.dispatch(ctx, types.Command{Op: types.CmdDelete, Key: key})
	return responseErr(resp)
}

// Increment adds delta to the integer stored at key (absent treated as 0)
// and returns the new value.
func (c *Client) Increment(ctx context.Context, key string, delta int64) (int64, error) {
	resp := c.dispatch(ctx, types.Command{Op: types.CmdIncr, Key: key, Amount: delta})
	if err := responseErr(resp); err != nil {
		return 0, err
	}
	return resp.Value.(int64), nil
}

// Decrement subtracts delta from the integer stored at key.
func (c *Client) Decrement(ctx context.Context, key string, delta int64) (int64, error) {
	resp := c.dispatch(ctx, types.Command{Op: types.CmdDecr, Key: key, Amount: delta})
	if err := responseErr(resp); err != nil {
		return 0, err
	}
	return resp.Value.(int64), nil
}

// Append concatenates suffix onto the value stored at key.
func (c *Client) Append(ctx context.Context, key, suffix string) (string, error) {
	resp := c.dispatch(ctx, types.Command{Op: types.CmdAppend, Key: key, Value: suffix})
	if err := responseErr(resp); err != nil {
		return "", err
	}
	return resp.Value.(string), nil
}

// Prepend concatenates prefix before the value stored at key.
func (c *Client) Prepend(ctx context.Context, key, prefix string) (string, error) {
	resp := c.dispatch(ctx, types.Command{Op: types.CmdPrepend, Key: key, Value: prefix})
	if err := responseErr(resp); err != nil {
		return "", err
	}
	return resp.Value.(string), nil
}

// GetMultiple fetches several keys in one bulk operation.
func (c *Client) GetMultiple(ctx context.Context, keys []string) (map[string]types.KeyResult, error) {
	resp := c.dispatch(ctx, types.Command{Op: types.CmdMGet, Keys: keys})
	if err := responseErr(resp); err != nil {
		return nil, err
	}
	return resp.Values, nil
}

// SetMultiple sets several keys in one bulk operation; per-key failures
// are reported in the returned map rather than failing the whole call.
func (c *Client) SetMultiple(ctx context.Context, kvs map[string]string) (map[string]types.KeyResult, error) {
	resp := c.dispatch(ctx, types.Command{Op: types.CmdMSet, KVs: kvs})
	if err := responseErr(resp); err != nil {
		return nil, err
	}
	return resp.Values, nil
}

func responseErr(resp types.Response) error {
	if resp.Status == types.StatusError && resp.Error != nil {
		return fmt.Errorf("%s: %s", resp.Error.Code, resp.Error.Message)
	}
	return nil
}
