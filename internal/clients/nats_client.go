package clients

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"

	"otc-backend/internal/events"
	"otc-backend/internal/metrics"
)

// NATSClient publishes offer and quote lifecycle events. Subscribers
// (notification services, downstream bookkeeping) consume them elsewhere.
type NATSClient struct {
	conn *nats.Conn
}

// NewNATSClient connects to the NATS server with endless reconnects.
func NewNATSClient(url string, timeout time.Duration) (*NATSClient, error) {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	conn, err := nats.Connect(url,
		nats.Timeout(timeout),
		nats.ReconnectWait(5*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Printf("⚠️ NATS disconnected: %v", err)
			metrics.NATSConnectionStatus.Set(0)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("✅ NATS reconnected")
			metrics.NATSConnectionStatus.Set(1)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	metrics.NATSConnectionStatus.Set(1)

	return &NATSClient{conn: conn}, nil
}

// PublishOfferEvent emits an offer lifecycle event on its chain subject.
func (c *NATSClient) PublishOfferEvent(subjectFmt string, event *events.OfferEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal offer event: %w", err)
	}
	subject := fmt.Sprintf(subjectFmt, event.Chain)
	if err := c.conn.Publish(subject, payload); err != nil {
		return fmt.Errorf("failed to publish %s: %w", subject, err)
	}
	metrics.NATSEventsPublished.WithLabelValues(event.Event).Inc()
	return nil
}

// PublishQuoteEvent emits a quote status-change event.
func (c *NATSClient) PublishQuoteEvent(event *events.QuoteEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal quote event: %w", err)
	}
	subject := fmt.Sprintf(events.SubjectQuoteUpdated, event.Chain)
	if err := c.conn.Publish(subject, payload); err != nil {
		return fmt.Errorf("failed to publish %s: %w", subject, err)
	}
	metrics.NATSEventsPublished.WithLabelValues("quote.updated").Inc()
	return nil
}

// Close drains and closes the connection.
func (c *NATSClient) Close() {
	if c.conn == nil {
		return
	}
	_ = c.conn.Drain()
	c.conn.Close()
	metrics.NATSConnectionStatus.Set(0)
}
