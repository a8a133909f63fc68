// Package tracking ingests carrier scan events from the MQTT broker
// that the warehouse scanners publish to.
package tracking

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"github.com/enviamx/paqbot/internal/config"
	"github.com/enviamx/paqbot/internal/store"
)

// validStatuses are the shipment states a scan may report.
var validStatuses = map[string]bool{
	store.StatusPending:   true,
	store.StatusInTransit: true,
	store.StatusDelivered: true,
	store.StatusReturned:  true,
}

// scanPayload is the wire format scanners publish on
// <prefix>/<shipment>/scans. The shipment reference in the topic wins
// when the payload omits one.
type scanPayload struct {
	ShipmentID string    `json:"shipment_id"`
	Status     string    `json:"status"`
	Location   string    `json:"location"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Subscriber consumes scan events and records them through the data
// service, which also advances the shipment status.
type Subscriber struct {
	cfg    config.TrackingConfig
	data   store.DataService
	logger *slog.Logger
	cm     *autopaho.ConnectionManager
}

// NewSubscriber creates a Subscriber but does not connect. Call
// [Subscriber.Start] to begin consuming.
func NewSubscriber(cfg config.TrackingConfig, data store.DataService, logger *slog.Logger) *Subscriber {
	return &Subscriber{
		cfg:    cfg,
		data:   data,
		logger: logger,
	}
}

// scanTopic is the wildcard subscription covering every shipment.
func (s *Subscriber) scanTopic() string {
	return s.cfg.TopicPrefix + "/+/scans"
}

// Start connects to the broker and subscribes to the scan topic. It
// returns once the connection manager is running; autopaho handles
// reconnects and resubscribes via OnConnectionUp.
func (s *Subscriber) Start(ctx context.Context) error {
	brokerURL, err := url.Parse(s.cfg.Broker)
	if err != nil {
		return fmt.Errorf("parse mqtt broker URL: %w", err)
	}

	topic := s.scanTopic()

	pahoCfg := autopaho.ClientConfig{
		ServerUrls:      []*url.URL{brokerURL},
		KeepAlive:       30,
		ConnectUsername: s.cfg.Username,
		ConnectPassword: []byte(s.cfg.Password),
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			s.logger.Info("mqtt connected to broker", "broker", s.cfg.Broker)
			if _, err := cm.Subscribe(ctx, &paho.Subscribe{
				Subscriptions: []paho.SubscribeOptions{
					{Topic: topic, QoS: 1},
				},
			}); err != nil {
				s.logger.Warn("mqtt subscribe failed", "topic", topic, "error", err)
			} else {
				s.logger.Info("mqtt subscribed", "topic", topic)
			}
		},
		OnConnectError: func(err error) {
			s.logger.Warn("mqtt connection error", "error", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: "paqbot-tracking",
			OnPublishReceived: []func(paho.PublishReceived) (bool, error){
				func(pr paho.PublishReceived) (bool, error) {
					s.handleMessage(ctx, pr.Packet.Topic, pr.Packet.Payload)
					return true, nil
				},
			},
		},
	}

	if brokerURL.Scheme == "mqtts" || brokerURL.Scheme == "ssl" {
		pahoCfg.TlsCfg = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	cm, err := autopaho.NewConnection(ctx, pahoCfg)
	if err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	s.cm = cm

	connCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := cm.AwaitConnection(connCtx); err != nil {
		// autopaho keeps retrying in the background.
		s.logger.Warn("mqtt initial connection timed out, will retry in background", "error", err)
	}
	return nil
}

// Stop disconnects from the broker.
func (s *Subscriber) Stop(ctx context.Context) error {
	if s.cm == nil {
		return nil
	}
	return s.cm.Disconnect(ctx)
}

// handleMessage records one scan. Malformed payloads are logged and
// dropped; scanners retry nothing, so there is no point failing loudly.
func (s *Subscriber) handleMessage(ctx context.Context, topic string, payload []byte) {
	ev, err := parseScan(topic, payload)
	if err != nil {
		s.logger.Warn("scan dropped", "topic", topic, "error", err)
		return
	}

	if err := s.data.RecordScan(ctx, ev); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.logger.Warn("scan for unknown shipment", "shipment_id", ev.ShipmentID, "topic", topic)
			return
		}
		s.logger.Error("record scan failed", "shipment_id", ev.ShipmentID, "error", err)
		return
	}

	s.logger.Info("scan recorded",
		"shipment_id", ev.ShipmentID,
		"status", ev.Status,
		"location", ev.Location,
	)
}

// parseScan builds a ScanEvent from a topic and JSON payload.
func parseScan(topic string, payload []byte) (*store.ScanEvent, error) {
	var p scanPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}

	shipmentID := p.ShipmentID
	if shipmentID == "" {
		shipmentID = shipmentFromTopic(topic)
	}
	if shipmentID == "" {
		return nil, fmt.Errorf("no shipment reference in topic or payload")
	}

	if !validStatuses[p.Status] {
		return nil, fmt.Errorf("unknown status %q", p.Status)
	}

	recordedAt := p.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = time.Now().UTC()
	}

	return &store.ScanEvent{
		ShipmentID: shipmentID,
		Status:     p.Status,
		Location:   p.Location,
		RecordedAt: recordedAt,
	}, nil
}

// shipmentFromTopic extracts the shipment segment of
// <prefix>/<shipment>/scans. Empty when the topic has another shape.
func shipmentFromTopic(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) < 3 || parts[len(parts)-1] != "scans" {
		return ""
	}
	return parts[len(parts)-2]
}
