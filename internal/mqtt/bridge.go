//go:build !no_mqtt

package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"dyson-go-home/internal/entity"
	"dyson-go-home/internal/integration"
)

// Config holds MQTT bridge configuration.
type Config struct {
	Broker      string
	Username    string
	Password    string
	TopicPrefix string
}

// Bridge publishes Dyson entities to Home Assistant over MQTT discovery and
// serves as the refresh sink for entity state changes.
type Bridge struct {
	client   pahomqtt.Client
	registry *entity.Registry
	events   *integration.EventBus
	prefix   string
	logger   *slog.Logger
	unsub    func()
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	// refreshCh carries unique IDs of entities whose state changed.
	// ScheduleRefresh may be called from any goroutine, including device
	// library callbacks; the publisher goroutine drains this channel.
	refreshCh chan string

	// publishFn is the publish seam; tests replace it.
	publishFn func(topic string, payload []byte, retain bool)

	// Retained discovery topics per serial, so removal can clear them.
	mu         sync.Mutex
	discTopics map[string][]string
}

var _ entity.Refresher = (*Bridge)(nil)

// NewBridge creates and connects an MQTT bridge.
func NewBridge(registry *entity.Registry, events *integration.EventBus, cfg Config, logger *slog.Logger) (*Bridge, error) {
	ctx, cancel := context.WithCancel(context.Background())
	b := &Bridge{
		registry:   registry,
		events:     events,
		prefix:     cfg.TopicPrefix,
		logger:     logger.With("component", "mqtt"),
		refreshCh:  make(chan string, 256),
		discTopics: make(map[string][]string),
		ctx:        ctx,
		cancel:     cancel,
	}
	b.publishFn = b.publishMQTT

	opts := pahomqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID("dyson-go-home").
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetWill(cfg.TopicPrefix+"/bridge/state", "offline", 1, true).
		SetOnConnectHandler(func(_ pahomqtt.Client) {
			b.logger.Info("MQTT connected")
			b.publishBridgeState("online")
			b.publishAllDiscovery()
			b.publishAllStates()
		}).
		SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
			b.logger.Warn("MQTT connection lost", "err", err)
		})

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	client := pahomqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		cancel()
		return nil, fmt.Errorf("mqtt connect timeout")
	}
	if err := token.Error(); err != nil {
		cancel()
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}

	b.client = client
	return b, nil
}

// Start subscribes to integration events and begins publishing refreshes.
func (b *Bridge) Start() {
	b.unsub = b.events.OnAll(b.handleEvent)
	b.wg.Add(1)
	go b.publishLoop()
	b.logger.Info("MQTT bridge started", "prefix", b.prefix)
}

// Stop publishes offline state, unsubscribes, and disconnects.
func (b *Bridge) Stop() {
	b.cancel()
	if b.unsub != nil {
		b.unsub()
	}
	b.wg.Wait()
	b.publishBridgeState("offline")
	if b.client != nil {
		b.client.Disconnect(1000)
	}
	b.logger.Info("MQTT bridge stopped")
}

// ScheduleRefresh queues a state publish for the entity with uniqueID.
// Safe from any goroutine; never blocks the caller. A full queue drops the
// request, which is harmless: state payloads are rebuilt from live device
// state, so the next refresh republishes everything.
func (b *Bridge) ScheduleRefresh(uniqueID string) {
	select {
	case b.refreshCh <- uniqueID:
	default:
		b.logger.Debug("refresh queue full, dropping", "unique_id", uniqueID)
	}
}

func (b *Bridge) publishLoop() {
	defer b.wg.Done()
	for {
		select {
		case <-b.ctx.Done():
			return
		case id := <-b.refreshCh:
			e, ok := b.registry.Get(id)
			if !ok {
				continue
			}
			b.publishDeviceState(e.Device().Serial())
		}
	}
}

func (b *Bridge) handleEvent(event integration.Event) {
	data, ok := event.Data.(map[string]any)
	if !ok {
		return
	}
	serial, _ := data["serial"].(string)
	if serial == "" {
		return
	}
	switch event.Type {
	case integration.EventEntryAdded:
		b.publishSerialDiscovery(serial)
		b.publishDeviceState(serial)
	case integration.EventEntryRemoved, integration.EventDeviceDisconnected:
		b.removeSerial(serial)
	}
}

// publishDeviceState merges the snapshots of every entity of one device
// into a single retained state payload.
func (b *Bridge) publishDeviceState(serial string) {
	entities := b.registry.BySerial(serial)
	if len(entities) == 0 {
		return
	}
	state := make(map[string]any)
	for _, e := range entities {
		for k, v := range e.State() {
			state[k] = v
		}
	}
	payload, err := json.Marshal(state)
	if err != nil {
		b.logger.Error("marshal state", "serial", serial, "err", err)
		return
	}
	b.publishFn(b.prefix+"/"+serial, payload, true)
}

func (b *Bridge) publishAllStates() {
	seen := make(map[string]bool)
	for _, e := range b.registry.All() {
		serial := e.Device().Serial()
		if !seen[serial] {
			seen[serial] = true
			b.publishDeviceState(serial)
		}
	}
}

func (b *Bridge) publishAllDiscovery() {
	seen := make(map[string]bool)
	for _, e := range b.registry.All() {
		serial := e.Device().Serial()
		if !seen[serial] {
			seen[serial] = true
			b.publishSerialDiscovery(serial)
		}
	}
}

func (b *Bridge) publishSerialDiscovery(serial string) {
	entities := b.registry.BySerial(serial)
	if len(entities) == 0 {
		return
	}
	topics := make([]string, 0, len(entities))
	for _, msg := range buildDiscovery(entities, b.prefix) {
		b.publishFn(msg.Topic, msg.Payload, true)
		topics = append(topics, msg.Topic)
	}
	b.mu.Lock()
	b.discTopics[serial] = topics
	b.mu.Unlock()
	b.logger.Info("published HA discovery", "serial", serial, "entities", len(entities))
}

// removeSerial clears retained discovery configs and state for a device.
func (b *Bridge) removeSerial(serial string) {
	b.mu.Lock()
	topics := b.discTopics[serial]
	delete(b.discTopics, serial)
	b.mu.Unlock()
	for _, topic := range topics {
		b.publishFn(topic, nil, true)
	}
	b.publishFn(b.prefix+"/"+serial, nil, true)
}

func (b *Bridge) publishBridgeState(state string) {
	b.publishFn(b.prefix+"/bridge/state", []byte(state), true)
}

func (b *Bridge) publishMQTT(topic string, payload []byte, retain bool) {
	token := b.client.Publish(topic, 0, retain, payload)
	go func() {
		token.Wait()
		if err := token.Error(); err != nil {
			b.logger.Error("mqtt publish", "topic", topic, "err", err)
		}
	}()
}
