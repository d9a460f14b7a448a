package ntcp2

import (
	"context"
	"math"
	"time"

	"github.com/sirupsen/logrus"
)

// HandshakeWithRetry performs the handshake with Config's retry policy:
// HandshakeRetries additional attempts (-1 for unlimited) after exponential
// backoff, capped at 30 seconds, between attempts. A session that has
// already reached DataPhase or a terminal state is handled by Handshake
// itself and never retried.
func (s *Session) HandshakeWithRetry(ctx context.Context) error {
	if s.config.HandshakeRetries == 0 {
		return s.Handshake(ctx)
	}
	return s.executeRetryLoop(ctx)
}

func (s *Session) executeRetryLoop(ctx context.Context) error {
	maxRetries := s.config.HandshakeRetries
	attempt := 0

	for {
		err := s.Handshake(ctx)
		if err == nil {
			s.logRetrySuccess(attempt)
			return nil
		}

		if !s.shouldRetryHandshake(attempt, maxRetries) {
			return err
		}

		if err := s.waitForRetry(ctx, attempt); err != nil {
			return err
		}

		attempt++
		s.logRetryAttempt(attempt, err)
	}
}

func (s *Session) shouldRetryHandshake(attempt, maxRetries int) bool {
	if maxRetries != -1 && attempt >= maxRetries {
		return false
	}
	return s.state.get() == StateUninitialized
}

func (s *Session) waitForRetry(ctx context.Context, attempt int) error {
	if s.config.RetryBackoff <= 0 {
		return nil
	}

	delay := time.Duration(float64(s.config.RetryBackoff) * math.Pow(2, float64(attempt)))
	if maxDelay := 30 * time.Second; delay > maxDelay {
		delay = maxDelay
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return errCancelled("ntcp2", "handshake retry cancelled while waiting for backoff")
	case <-timer.C:
		return nil
	}
}

func (s *Session) logRetrySuccess(attempt int) {
	if attempt > 0 {
		log.WithFields(logrus.Fields{"attempts": attempt + 1, "role": s.role}).Info("handshake succeeded after retries")
	}
}

func (s *Session) logRetryAttempt(attempt int, lastErr error) {
	log.WithFields(logrus.Fields{
		"attempt":    attempt,
		"role":       s.role,
		"last_error": lastErr.Error(),
	}).Warn("handshake failed, retrying")
}
