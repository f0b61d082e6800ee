package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// randomnessSubject is where external randomness providers publish deliveries
const randomnessSubject = "randomness.delivered"

// RandomnessDelivery is the wire format for an asynchronous randomness delivery
type RandomnessDelivery struct {
	CorrelationToken uuid.UUID `json:"correlation_token"`
	Values           []uint64  `json:"values"`
}

// NATSRandomnessSubscriber routes randomness deliveries published on NATS into
// the settlement flow. It complements the in-process source for deployments
// where an external provider answers randomness requests.
type NATSRandomnessSubscriber struct {
	natsClient *NATSClient
	deliver    DeliveryFunc
}

// NewNATSRandomnessSubscriber creates a new randomness subscriber
func NewNATSRandomnessSubscriber(natsClient *NATSClient, deliver DeliveryFunc) *NATSRandomnessSubscriber {
	return &NATSRandomnessSubscriber{
		natsClient: natsClient,
		deliver:    deliver,
	}
}

// Start ensures the randomness stream exists and subscribes to deliveries
func (s *NATSRandomnessSubscriber) Start() error {
	if err := s.natsClient.ensureStream("randomness_events", []string{randomnessSubject}); err != nil {
		return fmt.Errorf("failed to ensure randomness stream: %w", err)
	}
	return s.natsClient.Subscribe(randomnessSubject, s.handleMessage)
}

// handleMessage deserializes a delivery and hands it to the settlement callback
func (s *NATSRandomnessSubscriber) handleMessage(data []byte) error {
	var delivery RandomnessDelivery
	if err := json.Unmarshal(data, &delivery); err != nil {
		log.WithError(err).Error("Failed to unmarshal randomness delivery")
		return fmt.Errorf("failed to unmarshal randomness delivery: %w", err)
	}
	if delivery.CorrelationToken == uuid.Nil {
		return fmt.Errorf("randomness delivery carried no correlation token")
	}

	log.WithFields(log.Fields{
		"token":  delivery.CorrelationToken,
		"values": len(delivery.Values),
	}).Debug("Received randomness delivery from NATS")

	if err := s.deliver(context.Background(), delivery.CorrelationToken, delivery.Values); err != nil {
		log.WithFields(log.Fields{
			"token": delivery.CorrelationToken,
			"error": err,
		}).Error("Randomness delivery rejected")
		return err
	}
	return nil
}
