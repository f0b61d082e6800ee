package infrastructure

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// DeliveryFunc receives randomness for a previously issued correlation token
type DeliveryFunc func(ctx context.Context, token uuid.UUID, values []uint64) error

// LocalRandomnessSource implements the randomness port in-process. Request
// returns a correlation token immediately; the random value is generated from
// crypto/rand and delivered through the callback after the configured delay,
// mirroring the asynchronous shape of an external randomness provider.
type LocalRandomnessSource struct {
	delay   time.Duration
	deliver DeliveryFunc
}

// NewLocalRandomnessSource creates a randomness source delivering after delay
func NewLocalRandomnessSource(delay time.Duration, deliver DeliveryFunc) *LocalRandomnessSource {
	return &LocalRandomnessSource{
		delay:   delay,
		deliver: deliver,
	}
}

// Request issues a correlation token and schedules asynchronous delivery
func (s *LocalRandomnessSource) Request(ctx context.Context) (uuid.UUID, error) {
	if s.deliver == nil {
		return uuid.Nil, fmt.Errorf("randomness source has no delivery callback")
	}

	token := uuid.New()
	go func() {
		if s.delay > 0 {
			time.Sleep(s.delay)
		}

		value, err := randomUint64()
		if err != nil {
			log.WithError(err).WithField("token", token).Error("failed to generate random value")
			return
		}
		if err := s.deliver(context.Background(), token, []uint64{value}); err != nil {
			log.WithError(err).WithField("token", token).Error("randomness delivery rejected")
		}
	}()

	log.WithField("token", token).Info("randomness requested")
	return token, nil
}

func randomUint64() (uint64, error) {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, fmt.Errorf("failed to read random bytes: %w", err)
	}
	return binary.BigEndian.Uint64(buf[:]), nil
}
