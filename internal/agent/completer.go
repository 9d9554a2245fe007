package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ouroboros/internal/llm"
	"ouroboros/internal/logging"
)

// DefaultRetries bounds every structured exchange with the model.
const DefaultRetries = 3

// Options configures the roles.
type Options struct {
	// Model is passed to every completion; empty selects the client default.
	Model string
	// Retries bounds structured exchanges (decision, design, code, verdict,
	// plan, task). Zero means DefaultRetries.
	Retries int
	// InvokeTimeout bounds one capability invocation. Zero means no limit.
	InvokeTimeout time.Duration
}

func (o Options) retries() int {
	if o.Retries <= 0 {
		return DefaultRetries
	}
	return o.Retries
}

// completer is the model round-trip shared by the roles.
type completer struct {
	client  llm.Client
	model   string
	retries int
	log     *logging.Logger
}

func newCompleter(client llm.Client, opts Options, category logging.Category) completer {
	return completer{
		client:  client,
		model:   opts.Model,
		retries: opts.retries(),
		log:     logging.Get(category),
	}
}

func (c completer) complete(ctx context.Context, what string, messages []llm.Message) (string, error) {
	timer := logging.StartTimer(logging.CategoryLLM, what)
	defer timer.StopWithThreshold(30 * time.Second)

	reply, err := c.client.Complete(ctx, messages, c.model)
	if err != nil {
		return "", err
	}
	logging.LLMDebug("%s reply (%d bytes): %s", what, len(reply), reply)
	return reply, nil
}

// askJSON sends messages and decodes the reply into a T, retrying up to
// c.retries times on transport errors, replies without JSON, and replies
// rejected by validate. Context cancellation stops the retries.
func askJSON[T any](ctx context.Context, c completer, what string, messages []llm.Message, validate func(*T) error) (T, error) {
	var zero T
	lastErr := ErrNoReply

	for attempt := 1; attempt <= c.retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		reply, err := c.complete(ctx, what, messages)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return zero, err
			}
			lastErr = err
			c.log.Warn("%s: attempt %d/%d failed: %v", what, attempt, c.retries, err)
			continue
		}

		var v T
		if err := llm.DecodeJSON(reply, &v); err != nil {
			lastErr = err
			c.log.Warn("%s: incorrect JSON format, attempt %d/%d: %v", what, attempt, c.retries, err)
			continue
		}
		if validate != nil {
			if err := validate(&v); err != nil {
				lastErr = err
				c.log.Warn("%s: invalid reply, attempt %d/%d: %v", what, attempt, c.retries, err)
				continue
			}
		}
		return v, nil
	}

	return zero, fmt.Errorf("%s failed after %d attempts: %w", what, c.retries, lastErr)
}
