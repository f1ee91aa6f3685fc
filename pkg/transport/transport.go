// Package transport implements the MQTT connection lifecycle: the
// StateMachine (state.go) plus an eclipse/paho.mqtt.golang-backed driver
// that feeds it from broker callbacks and executes its decisions —
// connect, cancellable reconnect backoff, subscribe, publish at QoS=1
// with retain=false, and a Last Will on the responses topic.
package transport

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cuemby/merklekv-mobile/pkg/antientropy"
	"github.com/cuemby/merklekv-mobile/pkg/events"
	"github.com/cuemby/merklekv-mobile/pkg/log"
	"github.com/cuemby/merklekv-mobile/pkg/merr"
	"github.com/cuemby/merklekv-mobile/pkg/metrics"
	"github.com/cuemby/merklekv-mobile/pkg/storage"
	"github.com/cuemby/merklekv-mobile/pkg/topic"
	"github.com/cuemby/merklekv-mobile/pkg/types"
)

// publishQoS and publishRetain are fixed per spec.md §4.4: "QoS=1 and
// retain=false for all client-originated messages".
const publishQoS = byte(1)
const publishRetain = false

// suspendAfterFailures is the consecutive-failure threshold at which the
// reconnect loop gives up retrying on its own schedule and parks in
// suspended, per spec.md §4.4's reconnecting → suspended escalation.
// Resume must be called explicitly (the lifecycle adapter, or an embedder
// reacting to a network-restored signal) to leave suspended.
const suspendAfterFailures = maxBackoffAttempt

// Config carries everything Transport needs to build a paho client.
type Config struct {
	Host              string
	Port              int
	UseTLS            bool
	ClientID          string
	Username          string
	Password          string
	KeepAliveSeconds  int
	ConnectionTimeout time.Duration
	CleanSession      bool
	Topics            topic.Scheme
	LastWillPayload   []byte
}

// ReplicationHandler is invoked for every inbound replication payload.
type ReplicationHandler func(payload []byte)

// CommandHandler is invoked for every inbound command payload (JSON, on
// this node's own command topic).
type CommandHandler func(payload []byte)

// Transport drives one MQTT client through the StateMachine. Only
// Transport touches the paho client handle, per spec.md §5's "MQTT client
// handle owned exclusively by Transport" resource policy.
type Transport struct {
	cfg     Config
	machine *StateMachine
	broker  *events.Broker
	logger  zerolog.Logger
	rnd     *rand.Rand

	onReplication ReplicationHandler
	onCommand     CommandHandler
	entropyEngine storage.Engine

	mu         sync.Mutex
	client     mqtt.Client
	cancelWait chan struct{}
	wakeCh     chan struct{}
	stopped    bool

	pendingMu sync.Mutex
	pending   map[string]chan antientropy.Response
}

// New constructs a Transport. Connect must be called to actually dial the
// broker. entropyEngine may be nil if this node never answers anti-entropy
// requests from peers (it can still originate them as an Exchanger).
func New(cfg Config, broker *events.Broker, entropyEngine storage.Engine, onReplication ReplicationHandler, onCommand CommandHandler) *Transport {
	return &Transport{
		cfg:           cfg,
		machine:       NewStateMachine(),
		broker:        broker,
		logger:        log.WithComponent("transport"),
		rnd:           rand.New(rand.NewSource(time.Now().UnixNano())),
		onReplication: onReplication,
		onCommand:     onCommand,
		entropyEngine: entropyEngine,
		cancelWait:    make(chan struct{}),
		wakeCh:        make(chan struct{}, 1),
		pending:       make(map[string]chan antientropy.Response),
	}
}

// UpdateKeepAlive applies a new keep-alive interval from the lifecycle
// adapter's Outputs.KeepAliveSeconds. paho fixes keep-alive in the client
// options at construction, so this takes effect starting with the next
// Connect call rather than retroactively on the live session.
func (t *Transport) UpdateKeepAlive(seconds int) {
	if seconds <= 0 {
		return
	}
	t.mu.Lock()
	t.cfg.KeepAliveSeconds = seconds
	t.mu.Unlock()
}

// Suspend parks the state machine in suspended and wakes the reconnect
// loop so it stops retrying immediately rather than on its next backoff
// expiry. Called by the lifecycle adapter under a critical-battery profile,
// or internally once consecutive failures cross suspendAfterFailures.
func (t *Transport) Suspend() {
	t.machine.Suspended()
	t.publishState()
	select {
	case t.wakeCh <- struct{}{}:
	default:
	}
}

// Resume leaves suspended and restarts the reconnect loop against the
// existing paho client handle. A no-op if not currently suspended.
func (t *Transport) Resume(ctx context.Context) {
	if t.machine.State() != types.StateSuspended {
		return
	}
	t.machine.ConnectRequested()
	t.publishState()
	go t.reconnectLoop(ctx)
}

// State returns the current connection state.
func (t *Transport) State() types.ConnectionState { return t.machine.State() }

// Connected reports whether the transport is in the connected state —
// the signal pkg/command and pkg/queue use to decide publish-now vs.
// enqueue.
func (t *Transport) Connected() bool { return t.machine.State() == types.StateConnected }

// Connect dials the broker and begins the cancellable reconnect loop if
// the initial attempt (or any later one) fails.
func (t *Transport) Connect(ctx context.Context) error {
	t.machine.ConnectRequested()
	t.publishState()

	opts := t.buildOptions()
	t.mu.Lock()
	t.client = mqtt.NewClient(opts)
	client := t.client
	t.mu.Unlock()

	token := client.Connect()
	go t.awaitConnectResult(ctx, token)
	return nil
}

func (t *Transport) awaitConnectResult(ctx context.Context, token mqtt.Token) {
	if !token.WaitTimeout(t.cfg.ConnectionTimeout) || token.Error() != nil {
		t.handleConnectFailure(ctx)
		return
	}
	// onConnectHandler (set in buildOptions) drives the success path.
}

func (t *Transport) buildOptions() *mqtt.ClientOptions {
	t.mu.Lock()
	cfg := t.cfg
	t.mu.Unlock()

	scheme := "tcp"
	if cfg.UseTLS {
		scheme = "ssl"
	}
	opts := mqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("%s://%s:%d", scheme, cfg.Host, cfg.Port)).
		SetClientID(cfg.ClientID).
		SetCleanSession(cfg.CleanSession).
		SetKeepAlive(time.Duration(cfg.KeepAliveSeconds) * time.Second).
		SetAutoReconnect(false). // this package owns reconnect, not paho
		SetConnectionLostHandler(t.onConnectionLost).
		SetOnConnectHandler(t.onConnect)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	if len(cfg.LastWillPayload) > 0 {
		opts.SetWill(cfg.Topics.Responses(), string(cfg.LastWillPayload), publishQoS, publishRetain)
	}
	return opts
}

func (t *Transport) onConnect(client mqtt.Client) {
	t.machine.ConnAckSucceeded()
	t.resubscribe(client)
	t.publishState()
	t.logger.Info().Msg("mqtt connected")
}

func (t *Transport) onConnectionLost(client mqtt.Client, err error) {
	t.logger.Warn().Err(err).Msg("mqtt connection lost")
	t.machine.ConnectionLost()
	t.publishState()
	metrics.TransportReconnectsTotal.Inc()
	go t.reconnectLoop(context.Background())
}

func (t *Transport) handleConnectFailure(ctx context.Context) {
	t.machine.ConnectFailed()
	t.publishState()
	metrics.TransportReconnectsTotal.Inc()
	t.reconnectLoop(ctx)
}

// reconnectLoop sleeps with full-jitter exponential backoff and retries
// the connection, cancellable via Disconnect closing cancelWait.
func (t *Transport) reconnectLoop(ctx context.Context) {
	for {
		state := t.machine.State()
		if state == types.StateConnected || state == types.StateSuspended || t.isStopped() {
			return
		}
		if t.machine.ConsecutiveFailures() >= suspendAfterFailures {
			t.logger.Warn().Int("consecutive_failures", t.machine.ConsecutiveFailures()).Msg("suspending reconnect loop after repeated failures")
			t.Suspend()
			return
		}

		attempt := clampAttempt(t.machine.Attempt())
		delay := nextBackoff(attempt, t.rnd)
		metrics.TransportBackoffSeconds.Observe(delay.Seconds())

		select {
		case <-time.After(delay):
		case <-t.wakeCh:
			continue
		case <-t.cancelWait:
			return
		case <-ctx.Done():
			return
		}

		if t.isStopped() {
			return
		}

		t.mu.Lock()
		client := t.client
		t.mu.Unlock()
		if client == nil {
			return
		}

		token := client.Connect()
		if !token.WaitTimeout(t.cfg.ConnectionTimeout) || token.Error() != nil {
			t.machine.ConnectFailed()
			t.publishState()
			metrics.TransportReconnectsTotal.Inc()
			continue
		}
		return // onConnect handler fires ConnAckSucceeded
	}
}

func (t *Transport) isStopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

// resubscribe re-establishes every subscription idempotently, per
// spec.md: "re-established idempotently on each connected transition".
func (t *Transport) resubscribe(client mqtt.Client) {
	client.Subscribe(t.cfg.Topics.Commands(), publishQoS, func(_ mqtt.Client, msg mqtt.Message) {
		if t.onCommand != nil {
			t.onCommand(msg.Payload())
		}
	})
	client.Subscribe(t.cfg.Topics.Replication(), publishQoS, func(_ mqtt.Client, msg mqtt.Message) {
		if t.onReplication != nil {
			t.onReplication(msg.Payload())
		}
	})
	client.Subscribe(t.cfg.Topics.AntiEntropyRequest(t.cfg.ClientID), publishQoS, t.onAntiEntropyRequest)
	client.Subscribe(t.cfg.Topics.AntiEntropyResponse(), publishQoS, t.onAntiEntropyResponse)
}

// onAntiEntropyRequest answers a peer's digest/entries request against
// entropyEngine and publishes the result back to the peer's response
// topic. A node with a nil entropyEngine never receives useful requests
// in practice, but still answers with an empty digest rather than hang
// the requester.
func (t *Transport) onAntiEntropyRequest(client mqtt.Client, msg mqtt.Message) {
	req, err := antientropy.DecodeRequest(msg.Payload())
	if err != nil {
		t.logger.Warn().Err(err).Msg("malformed anti-entropy request")
		return
	}

	var resp antientropy.Response
	if t.entropyEngine == nil {
		resp = antientropy.Response{RequestID: req.RequestID}
	} else {
		resp = antientropy.Respond(t.entropyEngine, req)
	}

	encoded, err := antientropy.EncodeResponse(resp)
	if err != nil {
		t.logger.Error().Err(err).Msg("encode anti-entropy response")
		return
	}
	replyTopic := topic.Scheme{Prefix: t.cfg.Topics.Prefix, ClientID: req.ReplyToNodeID}.AntiEntropyResponse()
	token := client.Publish(replyTopic, publishQoS, publishRetain, encoded)
	token.WaitTimeout(t.cfg.ConnectionTimeout)
}

func (t *Transport) onAntiEntropyResponse(_ mqtt.Client, msg mqtt.Message) {
	resp, err := antientropy.DecodeResponse(msg.Payload())
	if err != nil {
		t.logger.Warn().Err(err).Msg("malformed anti-entropy response")
		return
	}

	t.pendingMu.Lock()
	ch, ok := t.pending[resp.RequestID]
	delete(t.pending, resp.RequestID)
	t.pendingMu.Unlock()
	if !ok {
		return
	}
	ch <- resp
}

func (t *Transport) awaitResponse(ctx context.Context, requestID string, peerID string, req antientropy.Request) (antientropy.Response, error) {
	ch := make(chan antientropy.Response, 1)
	t.pendingMu.Lock()
	t.pending[requestID] = ch
	t.pendingMu.Unlock()
	defer func() {
		t.pendingMu.Lock()
		delete(t.pending, requestID)
		t.pendingMu.Unlock()
	}()

	encoded, err := antientropy.EncodeRequest(req)
	if err != nil {
		return antientropy.Response{}, merr.Wrap(merr.Codec, "encode anti-entropy request", err)
	}
	if err := t.Publish(t.cfg.Topics.AntiEntropyRequest(peerID), encoded); err != nil {
		return antientropy.Response{}, err
	}

	select {
	case resp := <-ch:
		if resp.Error != "" {
			return antientropy.Response{}, merr.New(merr.Internal, resp.Error)
		}
		return resp, nil
	case <-ctx.Done():
		return antientropy.Response{}, merr.New(merr.Timeout, "anti-entropy request timed out")
	}
}

// RequestDigest implements antientropy.Exchanger.
func (t *Transport) RequestDigest(ctx context.Context, peerID string) (antientropy.Digest, error) {
	requestID := uuid.NewString()
	req := antientropy.Request{RequestID: requestID, ReplyToNodeID: t.cfg.ClientID, Kind: antientropy.KindDigest}
	resp, err := t.awaitResponse(ctx, requestID, peerID, req)
	if err != nil {
		return nil, err
	}
	return resp.Digest, nil
}

// RequestEntries implements antientropy.Exchanger.
func (t *Transport) RequestEntries(ctx context.Context, peerID string, buckets []uint16) ([]types.Entry, error) {
	requestID := uuid.NewString()
	req := antientropy.Request{RequestID: requestID, ReplyToNodeID: t.cfg.ClientID, Kind: antientropy.KindEntries, Buckets: buckets}
	resp, err := t.awaitResponse(ctx, requestID, peerID, req)
	if err != nil {
		return nil, err
	}
	return resp.Entries, nil
}

// PublishQueued implements queue.Publisher: it replicates a drained
// offline operation on the shared replication topic.
func (t *Transport) PublishQueued(op types.QueuedOperation) error {
	return t.PublishReplication(op.CommandBytes)
}

// Publish sends payload on topic at QoS=1/retain=false. Returns
// ErrorKind::Disconnected if not currently connected — callers must
// enqueue instead of calling Publish while disconnected, per spec.md
// §4.4's "publish failures while disconnected are rejected back to
// caller".
func (t *Transport) Publish(topicName string, payload []byte) error {
	if !t.Connected() {
		return merr.New(merr.Disconnected, "transport is not connected")
	}
	t.mu.Lock()
	client := t.client
	t.mu.Unlock()

	token := client.Publish(topicName, publishQoS, publishRetain, payload)
	if !token.WaitTimeout(t.cfg.ConnectionTimeout) || token.Error() != nil {
		return merr.New(merr.Transport, "publish failed")
	}
	return nil
}

// PublishReplication publishes payload on the shared replication topic.
func (t *Transport) PublishReplication(payload []byte) error {
	return t.Publish(t.cfg.Topics.Replication(), payload)
}

// Disconnect cancels any pending reconnect wait and closes the client.
func (t *Transport) Disconnect() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.stopped = true
	close(t.cancelWait)
	client := t.client
	t.mu.Unlock()

	if client != nil && client.IsConnected() {
		client.Disconnect(250)
	}
	t.machine.Disconnected()
	t.publishState()
}

func (t *Transport) publishState() {
	if t.broker == nil {
		return
	}
	state := t.machine.State()
	metrics.TransportStateGauge.Reset()
	metrics.TransportStateGauge.WithLabelValues(string(state)).Set(1)
	t.broker.Publish(&events.Event{
		Type:    events.EventConnectionStateChanged,
		Message: string(state),
	})
}
