package orchestrator

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/semaphore"

	"github.com/storyloom/orchestrator/internal/backend"
	"github.com/storyloom/orchestrator/internal/domain"
)

// processItem runs one work item through the full pipeline: classify,
// route, authorize, cache, breaker-gated backend call with retries, then
// fallback backend if the primary is unavailable.
func (o *Orchestrator) processItem(ctx context.Context, job *Job, item domain.WorkItem) domain.Outcome {
	if err := validateItem(item); err != nil {
		return failure(item.ID, err, "", 0)
	}

	cls := o.classifier.Classify(item)

	decision, err := o.router.Select(cls)
	if err != nil {
		return failure(item.ID, err, "", 0)
	}

	authorized := false
	if job.SessionID != "" {
		if err := o.sessions.Authorize(job.SessionID); err != nil {
			return failure(item.ID, err, "", 0)
		}
		authorized = true
	}

	field := item.PrimaryField()
	if cached, ok := o.cache.Lookup(field, item.InputText); ok {
		if authorized {
			// A cache hit still consumes budget: the budget models
			// user-visible throughput, not backend cost.
			o.recordSession(job.SessionID, "cache", 0)
		}
		return domain.Outcome{
			ItemID:   item.ID,
			OK:       true,
			Response: cached,
			CacheHit: true,
		}
	}

	req := &backend.Request{
		ItemID:   item.ID,
		Field:    field,
		Prompt:   item.InputText,
		Metadata: item.Context,
	}

	resp, backendID, attempts, err := o.invokeWithFallback(ctx, decision, req)
	if authorized {
		cost := 0.0
		if err == nil {
			cost = decision.EstimatedCost
		}
		o.recordSession(job.SessionID, backendID, cost)
	}
	if err != nil {
		return failure(item.ID, err, backendID, attempts)
	}

	o.cache.Insert(field, item.InputText, resp.Text)
	return domain.Outcome{
		ItemID:    item.ID,
		OK:        true,
		Response:  resp.Text,
		BackendID: backendID,
		Attempts:  attempts,
	}
}

// invokeWithFallback tries the primary backend and, when the primary is
// circuit-open or exhausts its retry budget on retryable failures, makes
// one pass at the fallback.
func (o *Orchestrator) invokeWithFallback(ctx context.Context, decision domain.RoutingDecision, req *backend.Request) (*backend.Response, string, int, error) {
	resp, attempts, err := o.invoke(ctx, decision.Primary, req)
	if err == nil {
		return resp, decision.Primary.ID, attempts, nil
	}

	fb := decision.Fallback
	if fb == nil || !(domain.IsCircuitOpen(err) || domain.IsRetryable(err)) {
		return nil, decision.Primary.ID, attempts, err
	}

	o.logger.Info("primary backend unavailable, trying fallback",
		slog.String("primary", decision.Primary.ID),
		slog.String("fallback", fb.ID))

	fresp, fattempts, ferr := o.invoke(ctx, *fb, req)
	attempts += fattempts
	if ferr != nil {
		return nil, fb.ID, attempts, ferr
	}
	return fresp, fb.ID, attempts, nil
}

// invoke drives the retry loop for one backend. The breaker gates every
// attempt, so a circuit opening mid-sequence stops further attempts.
func (o *Orchestrator) invoke(ctx context.Context, desc domain.BackendDescriptor, req *backend.Request) (*backend.Response, int, error) {
	attempts := 0
	for {
		if err := o.breaker.Allow(desc.ID); err != nil {
			return nil, attempts, err
		}

		attempts++
		resp, err := o.callOnce(ctx, desc, req, attempts)
		if err == nil {
			o.breaker.RecordSuccess(desc.ID)
			return resp, attempts, nil
		}
		o.breaker.RecordFailure(desc.ID)

		decision := o.retry.Decide(attempts-1, err)
		if !decision.Retry {
			return nil, attempts, err
		}
		if serr := o.sleep(ctx, decision.Delay); serr != nil {
			return nil, attempts, err
		}
	}
}

// callOnce performs a single timeout-bounded backend call, respecting the
// backend's declared concurrency cap.
func (o *Orchestrator) callOnce(ctx context.Context, desc domain.BackendDescriptor, req *backend.Request, attempt int) (*backend.Response, error) {
	client, ok := o.backends.Lookup(desc.ID)
	if !ok {
		return nil, &domain.ConfigurationError{Reason: "no client registered for backend " + desc.ID}
	}

	if sem := o.semFor(desc); sem != nil {
		if err := sem.Acquire(ctx, 1); err != nil {
			return nil, &domain.BackendCallError{BackendID: desc.ID, Transient: true, Err: err}
		}
		defer sem.Release(1)
	}

	callCtx, cancel := context.WithTimeout(ctx, o.cfg.CallTimeout)
	defer cancel()

	callCtx, span := o.tracer.Start(callCtx, "backend.generate")
	span.SetAttributes(
		attribute.String("backend.id", desc.ID),
		attribute.String("item.id", req.ItemID),
		attribute.Int("attempt", attempt),
	)
	defer span.End()

	start := time.Now()
	resp, err := client.Generate(callCtx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		o.logger.Debug("backend call failed",
			slog.String("backend", desc.ID),
			slog.Int("attempt", attempt),
			slog.Duration("duration", time.Since(start)),
			slog.String("error", err.Error()))
		return nil, err
	}
	return resp, nil
}

// semFor returns the per-backend concurrency semaphore, or nil when the
// descriptor declares no cap.
func (o *Orchestrator) semFor(desc domain.BackendDescriptor) *semaphore.Weighted {
	if desc.MaxConcurrency <= 0 {
		return nil
	}
	o.semMu.Lock()
	defer o.semMu.Unlock()
	sem, ok := o.sems[desc.ID]
	if !ok {
		sem = semaphore.NewWeighted(int64(desc.MaxConcurrency))
		o.sems[desc.ID] = sem
	}
	return sem
}

func (o *Orchestrator) recordSession(sessionID, backendID string, cost float64) {
	if err := o.sessions.RecordCall(sessionID, backendID, cost); err != nil {
		o.logger.Warn("record session call failed",
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()))
	}
}

func validateItem(item domain.WorkItem) error {
	switch {
	case item.ID == "":
		return &domain.ValidationError{ItemID: item.ID, Reason: "missing id"}
	case item.InputText == "":
		return &domain.ValidationError{ItemID: item.ID, Reason: "missing input text"}
	}
	return nil
}

func failure(itemID string, err error, backendID string, attempts int) domain.Outcome {
	return domain.Outcome{
		ItemID:    itemID,
		ErrorKind: domain.KindOf(err),
		Message:   err.Error(),
		BackendID: backendID,
		Attempts:  attempts,
	}
}
