package license

import (
	"context"
	"log/slog"
)

// Activate binds code to this installation.
func (e *Engine) Activate(ctx context.Context, code string) (res ActivationResult) {
	ctx, span := e.tracer.Start(ctx, "license.Activate")
	defer func() {
		e.metrics.recordActivation(ctx, res.OK)
		endSpan(span, resultErr(res.Result))
	}()

	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	list, err := e.catalog.Load(ctx, now)
	if err != nil {
		return ActivationResult{Result: fail(err)}
	}
	act, rec, err := e.activations.Activate(ctx, list, code, now)
	if err != nil {
		e.logger.WarnContext(ctx, "license activation rejected",
			slog.String("code", NormalizeCode(code)),
			slog.String("reason", err.Error()))
		return ActivationResult{Result: fail(err)}
	}
	if err := e.publishStatus(ctx, list); err != nil {
		return ActivationResult{Result: fail(err)}
	}

	e.logger.InfoContext(ctx, "license activated",
		slog.String("code", act.Code),
		slog.String("type", string(rec.Type)))
	return ActivationResult{
		Result:    succeed("license activated"),
		Code:      act.Code,
		ExpiresAt: rec.ExpiresAt(act.ActivatedAt),
		Type:      rec.Type,
	}
}

// Deactivate clears the activation. It succeeds when nothing is activated.
func (e *Engine) Deactivate(ctx context.Context) (res Result) {
	ctx, span := e.tracer.Start(ctx, "license.Deactivate")
	defer func() { endSpan(span, resultErr(res)) }()

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.activations.Deactivate(ctx); err != nil {
		return fail(err)
	}
	list, err := e.catalog.Load(ctx, e.now())
	if err != nil {
		return fail(err)
	}
	if err := e.publishStatus(ctx, list); err != nil {
		return fail(err)
	}

	e.logger.InfoContext(ctx, "license deactivated")
	return succeed("license deactivated")
}
