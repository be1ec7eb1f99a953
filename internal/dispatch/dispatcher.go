// Package dispatch fires job targets over HTTP with retries.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"job-scheduler/internal/model"
)

type Outcome int

const (
	Success Outcome = iota
	RetryExhausted
	// Aborted means the dispatch context was cancelled before the cycle ended.
	Aborted
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case RetryExhausted:
		return "retry exhausted"
	case Aborted:
		return "aborted"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// Result describes a whole dispatch cycle. Err holds the last failure.
type Result struct {
	Outcome    Outcome
	Attempts   int
	StatusCode int
	Err        error
}

type Config struct {
	Timeout     time.Duration
	MaxRetries  int
	BackoffBase time.Duration
	BackoffMax  time.Duration
	// RatePerSecond caps outbound calls across all jobs, 0 means unlimited.
	RatePerSecond float64
}

func DefaultConfig() Config {
	return Config{
		Timeout:     10 * time.Second,
		MaxRetries:  3,
		BackoffBase: 500 * time.Millisecond,
		BackoffMax:  30 * time.Second,
	}
}

type Dispatcher struct {
	client  *http.Client
	config  Config
	limiter *rate.Limiter
	logger  *log.Entry
}

func New(config Config, logger *log.Entry) *Dispatcher {
	limit, burst := rate.Inf, 1
	if config.RatePerSecond > 0 {
		limit = rate.Limit(config.RatePerSecond)
		if burst = int(config.RatePerSecond); burst < 1 {
			burst = 1
		}
	}
	return &Dispatcher{
		client:  &http.Client{},
		config:  config,
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger.WithField("component", "dispatcher"),
	}
}

// Backoff returns the pause before the given retry (1-based):
// base * 2^(retry-1), capped at max.
func Backoff(base, max time.Duration, retry int) time.Duration {
	delay := base
	for i := 1; i < retry; i++ {
		if delay >= max/2 {
			return max
		}
		delay *= 2
	}
	if delay > max {
		return max
	}
	return delay
}

// Dispatch calls target until it succeeds or retries run out. It never
// touches job state.
func (d *Dispatcher) Dispatch(ctx context.Context, jobId model.JobId, target model.Target) Result {
	fields := log.Fields{"job": jobId, "url": target.Url, "method": target.Method}
	result := Result{}
	for {
		if result.Attempts > 0 {
			delay := Backoff(d.config.BackoffBase, d.config.BackoffMax, result.Attempts)
			select {
			case <-ctx.Done():
				result.Outcome = Aborted
				return result
			case <-time.After(delay):
			}
		}
		if err := d.limiter.Wait(ctx); err != nil {
			result.Outcome = Aborted
			return result
		}

		result.Attempts++
		status, err := d.call(ctx, target)
		result.StatusCode = status
		if err == nil {
			result.Outcome, result.Err = Success, nil
			d.logger.WithFields(fields).WithField("attempt", result.Attempts).Debug("Target called")
			return result
		}
		result.Err = err
		if ctx.Err() != nil {
			result.Outcome = Aborted
			return result
		}
		d.logger.WithFields(fields).WithFields(log.Fields{
			"attempt": result.Attempts,
			"error":   err,
		}).Warn("Error calling target")
		if result.Attempts > d.config.MaxRetries {
			result.Outcome = RetryExhausted
			return result
		}
	}
}

func (d *Dispatcher) call(ctx context.Context, target model.Target) (int, error) {
	var body io.Reader
	if target.Body != nil {
		encoded, err := json.Marshal(target.Body)
		if err != nil {
			return 0, &TransportError{fmt.Errorf("failed encoding body: %w", err)}
		}
		body = bytes.NewReader(encoded)
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, d.config.Timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(timeoutCtx, target.Method, target.Url, body)
	if err != nil {
		return 0, &TransportError{err}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for name, value := range target.Headers {
		req.Header.Set(name, value)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		var netErr net.Error
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
			return 0, &TimeoutError{d.config.Timeout}
		}
		return 0, &TransportError{err}
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, &StatusError{resp.StatusCode}
	}
	return resp.StatusCode, nil
}
