package auth

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Allowlist is the read-concurrent set of service-account emails allowed to
// exchange identity tokens for sessions. It refreshes from the database on a
// fixed interval; agent-kind users are the registry.
type Allowlist struct {
	pool     *pgxpool.Pool
	interval time.Duration
	logger   *slog.Logger

	mu     sync.RWMutex
	emails map[string]struct{}

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewAllowlist creates an allowlist that refreshes every interval.
func NewAllowlist(pool *pgxpool.Pool, interval time.Duration) *Allowlist {
	if pool == nil {
		panic("pool is required")
	}
	return &Allowlist{
		pool:     pool,
		interval: interval,
		logger:   slog.Default().With("component", "service_allowlist"),
		emails:   make(map[string]struct{}),
		stopCh:   make(chan struct{}),
	}
}

// Start performs an initial load and begins periodic refresh.
func (a *Allowlist) Start(ctx context.Context) error {
	if err := a.refresh(ctx); err != nil {
		return err
	}
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		ticker := time.NewTicker(a.interval)
		defer ticker.Stop()
		for {
			select {
			case <-a.stopCh:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := a.refresh(ctx); err != nil {
					a.logger.Error("Allowlist refresh failed", "error", err)
				}
			}
		}
	}()
	return nil
}

// Stop halts the refresh loop.
func (a *Allowlist) Stop() {
	a.stopOnce.Do(func() { close(a.stopCh) })
	a.wg.Wait()
}

// Contains reports whether email is allowlisted.
func (a *Allowlist) Contains(email string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.emails[strings.ToLower(email)]
	return ok
}

func (a *Allowlist) refresh(ctx context.Context) error {
	rows, err := a.pool.Query(ctx,
		`SELECT email FROM users WHERE kind = 'agent' AND deleted_at IS NULL`)
	if err != nil {
		return fmt.Errorf("loading service allowlist: %w", err)
	}
	defer rows.Close()

	emails := make(map[string]struct{})
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return fmt.Errorf("scanning allowlist row: %w", err)
		}
		emails[strings.ToLower(email)] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("loading service allowlist: %w", err)
	}

	a.mu.Lock()
	a.emails = emails
	a.mu.Unlock()
	a.logger.Debug("Service allowlist refreshed", "count", len(emails))
	return nil
}
