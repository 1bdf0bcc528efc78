package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agora-discourse/agora/pkg/models"
)

// Karma weights per node role, applied to the past day's graph deltas.
const (
	pioneerYieldPerNode = 1.0
	builderYieldPerNode = 2.0
	criticYieldPerNode  = 3.0
)

// KarmaService runs the daily gamification batch: role yields, escrow
// expiry, and the epistemic notification fan-out. Each user's update is its
// own transaction so one bad row cannot wedge the whole batch.
type KarmaService struct {
	pool          *pgxpool.Pool
	notifications *NotificationService
	logger        *slog.Logger
}

// NewKarmaService creates a new karma service.
func NewKarmaService(pool *pgxpool.Pool, notifications *NotificationService) *KarmaService {
	if pool == nil {
		panic("pool is required")
	}
	if notifications == nil {
		panic("notifications is required")
	}
	return &KarmaService{
		pool:          pool,
		notifications: notifications,
		logger:        slog.Default().With("component", "karma_batch"),
	}
}

// BatchStats summarizes one daily batch.
type BatchStats struct {
	UsersCredited     int
	EscrowsLanguished int
	StreamsHalted     int
}

// RunDailyBatch executes the nightly pass over the last 24 hours of graph
// activity.
func (s *KarmaService) RunDailyBatch(ctx context.Context) (*BatchStats, error) {
	stats := &BatchStats{}

	credited, err := s.creditYields(ctx)
	if err != nil {
		return stats, err
	}
	stats.UsersCredited = credited

	languished, err := s.languishExpiredEscrows(ctx)
	if err != nil {
		return stats, err
	}
	stats.EscrowsLanguished = languished

	halted, err := s.notifyHaltedStreams(ctx)
	if err != nil {
		return stats, err
	}
	stats.StreamsHalted = halted

	s.logger.Info("Daily karma batch finished",
		"users_credited", stats.UsersCredited,
		"escrows_languished", stats.EscrowsLanguished,
		"streams_halted", stats.StreamsHalted)
	return stats, nil
}

// yieldRow is one user's aggregated graph delta for the past day.
type yieldRow struct {
	userID  string
	pioneer int
	builder int
	critic  int
}

// creditYields converts each user's past-day node deltas into karma, one
// transaction per user.
func (s *KarmaService) creditYields(ctx context.Context) (int, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT author_id,
		       count(*) FILTER (WHERE node_role = 'ROOT'),
		       count(*) FILTER (WHERE node_role = 'SUPPORT'),
		       count(*) FILTER (WHERE node_role = 'ATTACK')
		FROM (
			SELECT p.author_id, i.node_role
			FROM inodes i
			JOIN posts p ON i.source_type = 'post' AND p.id = i.source_id
			WHERE i.created_at > now() - interval '24 hours' AND NOT i.is_defeated
			UNION ALL
			SELECT r.author_id, i.node_role
			FROM inodes i
			JOIN replies r ON i.source_type = 'reply' AND r.id = i.source_id
			WHERE i.created_at > now() - interval '24 hours' AND NOT i.is_defeated
		) deltas
		GROUP BY author_id`)
	if err != nil {
		return 0, fmt.Errorf("aggregating karma yields: %w", err)
	}
	var yields []yieldRow
	for rows.Next() {
		var y yieldRow
		if err := rows.Scan(&y.userID, &y.pioneer, &y.builder, &y.critic); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scanning yield row: %w", err)
		}
		yields = append(yields, y)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("aggregating karma yields: %w", err)
	}

	credited := 0
	for _, y := range yields {
		if err := s.creditUser(ctx, y); err != nil {
			s.logger.Error("Failed to credit user karma", "user_id", y.userID, "error", err)
			continue
		}
		credited++
	}
	return credited, nil
}

func (s *KarmaService) creditUser(ctx context.Context, y yieldRow) error {
	pioneerYield := float64(y.pioneer) * pioneerYieldPerNode
	builderYield := float64(y.builder) * builderYieldPerNode
	criticYield := float64(y.critic) * criticYieldPerNode

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning karma credit: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		UPDATE users
		SET pioneer_karma = pioneer_karma + $2,
		    builder_karma = builder_karma + $3,
		    critic_karma = critic_karma + $4,
		    epistemic_score = epistemic_score + $2 + $3 + $4,
		    updated_at = now()
		WHERE id = $1`,
		y.userID, pioneerYield, builderYield, criticYield)
	if err != nil {
		return fmt.Errorf("applying karma yields: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing karma credit: %w", err)
	}
	return nil
}

// languishExpiredEscrows advances every expired active escrow to languished
// and notifies the author of the bridge's source content.
func (s *KarmaService) languishExpiredEscrows(ctx context.Context) (int, error) {
	rows, err := s.pool.Query(ctx, `
		UPDATE snodes sn
		SET escrow_status = 'languished', updated_at = now()
		FROM analysis_runs ar
		WHERE sn.analysis_run_id = ar.id
		  AND sn.escrow_status = 'active'
		  AND sn.escrow_expires_at < now()
		RETURNING sn.id, sn.pending_bounty, ar.source_type, ar.source_id`)
	if err != nil {
		return 0, fmt.Errorf("languishing escrows: %w", err)
	}
	type languished struct {
		snodeID    uuid.UUID
		bounty     float64
		sourceType models.ContentType
		sourceID   uuid.UUID
	}
	var expired []languished
	for rows.Next() {
		var l languished
		if err := rows.Scan(&l.snodeID, &l.bounty, &l.sourceType, &l.sourceID); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scanning languished escrow: %w", err)
		}
		expired = append(expired, l)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("languishing escrows: %w", err)
	}

	for _, l := range expired {
		authorID, err := contentAuthor(ctx, s.pool, l.sourceType, l.sourceID)
		if err != nil {
			s.logger.Error("Failed to resolve languished escrow author", "snode_id", l.snodeID, "error", err)
			continue
		}
		payload := map[string]any{"bounty": l.bounty, "snode_id": l.snodeID}
		err = s.notifications.NotifyEpistemic(ctx, authorID, models.EpistemicBountyLanguished, "snode", l.snodeID, payload)
		if err != nil {
			s.logger.Error("Failed to notify languished escrow", "snode_id", l.snodeID, "error", err)
		}
	}
	return len(expired), nil
}

// notifyHaltedStreams tells authors whose ROOT nodes were defeated in the
// past day that the karma stream from that argument has stopped.
func (s *KarmaService) notifyHaltedStreams(ctx context.Context) (int, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT i.id, i.source_type, i.source_id
		FROM inodes i
		WHERE i.node_role = 'ROOT'
		  AND i.is_defeated
		  AND i.updated_at > now() - interval '24 hours'`)
	if err != nil {
		return 0, fmt.Errorf("finding halted streams: %w", err)
	}
	type halted struct {
		inodeID    uuid.UUID
		sourceType models.ContentType
		sourceID   uuid.UUID
	}
	var hits []halted
	for rows.Next() {
		var h halted
		if err := rows.Scan(&h.inodeID, &h.sourceType, &h.sourceID); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scanning halted stream: %w", err)
		}
		hits = append(hits, h)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("finding halted streams: %w", err)
	}

	notified := 0
	for _, h := range hits {
		authorID, err := contentAuthor(ctx, s.pool, h.sourceType, h.sourceID)
		if err != nil {
			continue
		}
		payload := map[string]any{"inode_id": h.inodeID}
		err = s.notifications.NotifyEpistemic(ctx, authorID, models.EpistemicStreamHalted, "inode", h.inodeID, payload)
		if err != nil {
			s.logger.Error("Failed to notify halted stream", "inode_id", h.inodeID, "error", err)
			continue
		}
		notified++
	}
	return notified, nil
}
