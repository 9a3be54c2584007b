package dataservice

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"entitycache/pkg/domain"
)

// RateLimited throttles every call to the wrapped data service. Calls block
// until a token is available or ctx is done.
type RateLimited[T any] struct {
	next    domain.DataService[T]
	limiter *rate.Limiter
}

var _ domain.DataService[domain.Record] = (*RateLimited[domain.Record])(nil)

// NewRateLimited allows perSecond calls per second with the given burst.
func NewRateLimited[T any](next domain.DataService[T], perSecond float64, burst int) *RateLimited[T] {
	if burst < 1 {
		burst = 1
	}
	return &RateLimited[T]{next: next, limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

func (r *RateLimited[T]) wait(ctx context.Context) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%s: rate limit: %w", r.next.Name(), err)
	}
	return nil
}

// Name implements domain.DataService.
func (r *RateLimited[T]) Name() string { return r.next.Name() }

// GetAll implements domain.DataService.
func (r *RateLimited[T]) GetAll(ctx context.Context) ([]T, error) {
	if err := r.wait(ctx); err != nil {
		return nil, err
	}
	return r.next.GetAll(ctx)
}

// GetByID implements domain.DataService.
func (r *RateLimited[T]) GetByID(ctx context.Context, id domain.ID) (T, error) {
	if err := r.wait(ctx); err != nil {
		var zero T
		return zero, err
	}
	return r.next.GetByID(ctx, id)
}

// GetWithQuery implements domain.DataService.
func (r *RateLimited[T]) GetWithQuery(ctx context.Context, params domain.QueryParams) ([]T, error) {
	if err := r.wait(ctx); err != nil {
		return nil, err
	}
	return r.next.GetWithQuery(ctx, params)
}

// Add implements domain.DataService.
func (r *RateLimited[T]) Add(ctx context.Context, entity T) (T, error) {
	if err := r.wait(ctx); err != nil {
		var zero T
		return zero, err
	}
	return r.next.Add(ctx, entity)
}

// Update implements domain.DataService.
func (r *RateLimited[T]) Update(ctx context.Context, entity T) (T, error) {
	if err := r.wait(ctx); err != nil {
		var zero T
		return zero, err
	}
	return r.next.Update(ctx, entity)
}

// Upsert implements domain.DataService.
func (r *RateLimited[T]) Upsert(ctx context.Context, entity T) (T, error) {
	if err := r.wait(ctx); err != nil {
		var zero T
		return zero, err
	}
	return r.next.Upsert(ctx, entity)
}

// Delete implements domain.DataService.
func (r *RateLimited[T]) Delete(ctx context.Context, id domain.ID) error {
	if err := r.wait(ctx); err != nil {
		return err
	}
	return r.next.Delete(ctx, id)
}
