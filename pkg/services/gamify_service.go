package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agora-discourse/agora/pkg/models"
)

// GamifyService maintains the V4 layer over a committed graph: node roles,
// component partitioning, equivocation detection, and the bridge escrow
// state machine.
type GamifyService struct {
	pool          *pgxpool.Pool
	notifications *NotificationService
}

// NewGamifyService creates a new gamification service.
func NewGamifyService(pool *pgxpool.Pool, notifications *NotificationService) *GamifyService {
	if pool == nil {
		panic("pool is required")
	}
	if notifications == nil {
		panic("notifications is required")
	}
	return &GamifyService{pool: pool, notifications: notifications}
}

// BackfillRoles recomputes node_role for every I-node of a run from its
// outgoing premise edges. A node premising both a SUPPORT and an ATTACK
// scheme reads as ATTACK.
func (s *GamifyService) BackfillRoles(ctx context.Context, runID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE inodes i SET node_role = 'ROOT', updated_at = now()
		WHERE i.analysis_run_id = $1`, runID)
	if err != nil {
		return fmt.Errorf("resetting node roles: %w", err)
	}

	for _, direction := range []models.SchemeDirection{models.DirectionSupport, models.DirectionAttack} {
		_, err := s.pool.Exec(ctx, `
			UPDATE inodes i SET node_role = $2, updated_at = now()
			WHERE i.analysis_run_id = $1
			  AND EXISTS (
				SELECT 1 FROM edges e
				JOIN snodes sn ON sn.id = e.snode_id
				WHERE e.inode_id = i.id AND e.role = 'premise' AND sn.direction = $2
			  )`, runID, direction)
		if err != nil {
			return fmt.Errorf("assigning %s roles: %w", direction, err)
		}
	}
	return nil
}

// PartitionComponents unions the run's I-nodes over its premise/conclusion
// edges and caches the partition in component_id. Component ids are the
// smallest I-node uuid of each component, which keeps repartitioning stable.
func (s *GamifyService) PartitionComponents(ctx context.Context, runID uuid.UUID) error {
	rows, err := s.pool.Query(ctx,
		`SELECT id FROM inodes WHERE analysis_run_id = $1 ORDER BY id`, runID)
	if err != nil {
		return fmt.Errorf("loading inodes for partitioning: %w", err)
	}
	var nodeIDs []uuid.UUID
	index := map[uuid.UUID]int{}
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("scanning inode id: %w", err)
		}
		index[id] = len(nodeIDs)
		nodeIDs = append(nodeIDs, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("loading inodes for partitioning: %w", err)
	}
	if len(nodeIDs) == 0 {
		return nil
	}

	// All I-nodes attached to one scheme as premise or conclusion belong to
	// the same component.
	edgeRows, err := s.pool.Query(ctx, `
		SELECT e.snode_id, e.inode_id
		FROM edges e
		JOIN snodes sn ON sn.id = e.snode_id
		WHERE sn.analysis_run_id = $1
		  AND e.inode_id IS NOT NULL
		  AND e.role IN ('premise', 'conclusion')
		ORDER BY e.snode_id`, runID)
	if err != nil {
		return fmt.Errorf("loading edges for partitioning: %w", err)
	}
	dsu := newDisjointSet(len(nodeIDs))
	var currentScheme uuid.UUID
	first := -1
	for edgeRows.Next() {
		var snodeID, inodeID uuid.UUID
		if err := edgeRows.Scan(&snodeID, &inodeID); err != nil {
			edgeRows.Close()
			return fmt.Errorf("scanning edge: %w", err)
		}
		i, ok := index[inodeID]
		if !ok {
			continue
		}
		if snodeID != currentScheme {
			currentScheme = snodeID
			first = i
			continue
		}
		dsu.union(first, i)
	}
	edgeRows.Close()
	if err := edgeRows.Err(); err != nil {
		return fmt.Errorf("loading edges for partitioning: %w", err)
	}

	// nodeIDs is sorted, so the root's minimum-uuid member is found by a
	// single pass.
	componentOf := make([]uuid.UUID, len(nodeIDs))
	seen := map[int]uuid.UUID{}
	for i, id := range nodeIDs {
		root := dsu.find(i)
		if _, ok := seen[root]; !ok {
			seen[root] = id
		}
		componentOf[i] = seen[root]
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning partition update: %w", err)
	}
	defer tx.Rollback(ctx)
	for i, id := range nodeIDs {
		_, err := tx.Exec(ctx,
			`UPDATE inodes SET component_id = $2, updated_at = now() WHERE id = $1`,
			id, componentOf[i])
		if err != nil {
			return fmt.Errorf("caching component id: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing partition: %w", err)
	}
	return nil
}

// DetectEquivocations flags every term that premise and conclusion nodes of
// one scheme map to different concepts. Idempotent via the (scheme, term)
// unique constraint.
func (s *GamifyService) DetectEquivocations(ctx context.Context, runID uuid.UUID) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO equivocation_flags (id, snode_id, term, premise_concept_id, conclusion_concept_id)
		SELECT DISTINCT ON (sn.id, pc.term)
			uuid_generate_v4(), sn.id, pc.term, pc.concept_id, cc.concept_id
		FROM snodes sn
		JOIN edges pe ON pe.snode_id = sn.id AND pe.role = 'premise' AND pe.inode_id IS NOT NULL
		JOIN edges ce ON ce.snode_id = sn.id AND ce.role = 'conclusion'
		JOIN inode_concepts pc ON pc.inode_id = pe.inode_id
		JOIN inode_concepts cc ON cc.inode_id = ce.inode_id AND cc.term = pc.term
		WHERE sn.analysis_run_id = $1
		  AND pc.concept_id <> cc.concept_id
		ON CONFLICT (snode_id, term) DO NOTHING`, runID)
	if err != nil {
		return 0, fmt.Errorf("detecting equivocations: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// OpenBridgeEscrow posts a bounty on a scheme that bridges two components.
// At most one active escrow may exist per unordered component pair; a losing
// race is reported as opened=false, not an error.
func (s *GamifyService) OpenBridgeEscrow(ctx context.Context, snodeID uuid.UUID, componentA, componentB uuid.UUID, bounty float64, ttl time.Duration) (bool, error) {
	if componentA == componentB {
		return false, NewValidationError("component_b_id", "bridge must span two components")
	}
	if bounty <= 0 {
		return false, NewValidationError("bounty", "must be positive")
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE snodes
		SET is_bridge = true,
		    escrow_status = 'active',
		    escrow_expires_at = now() + $4::interval,
		    pending_bounty = $5,
		    component_a_id = $2,
		    component_b_id = $3,
		    updated_at = now()
		WHERE id = $1 AND escrow_status = 'none'`,
		snodeID, componentA, componentB, ttl.String(), bounty)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return false, nil
		}
		return false, fmt.Errorf("opening bridge escrow: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return false, ErrNotFound
	}
	return true, nil
}

// ResolveEscrow pays or steals an active escrow before expiry. winnerID is
// credited and notified; stolen means the winner is not the content's author.
func (s *GamifyService) ResolveEscrow(ctx context.Context, snodeID uuid.UUID, winnerID string, stolen bool) error {
	status := models.EscrowPaid
	event := models.EpistemicBountyPaid
	if stolen {
		status = models.EscrowStolen
		event = models.EpistemicBountyStolen
	}

	var bounty float64
	err := s.pool.QueryRow(ctx, `
		UPDATE snodes
		SET escrow_status = $2, updated_at = now()
		WHERE id = $1 AND escrow_status = 'active' AND escrow_expires_at > now()
		RETURNING pending_bounty`,
		snodeID, status).Scan(&bounty)
	if err != nil {
		if isNoRows(err) {
			return ErrNotFound
		}
		return fmt.Errorf("resolving escrow: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`UPDATE users SET builder_karma = builder_karma + $2, updated_at = now() WHERE id = $1`,
		winnerID, bounty)
	if err != nil {
		return fmt.Errorf("crediting bounty: %w", err)
	}

	payload := map[string]any{"bounty": bounty, "snode_id": snodeID}
	if err := s.notifications.NotifyEpistemic(ctx, winnerID, event, "snode", snodeID, payload); err != nil {
		return err
	}
	return nil
}

// MarkDefeated flips is_defeated on an I-node and notifies the author of its
// source content that an upstream premise fell.
func (s *GamifyService) MarkDefeated(ctx context.Context, inodeID uuid.UUID) error {
	var (
		sourceType models.ContentType
		sourceID   uuid.UUID
	)
	err := s.pool.QueryRow(ctx, `
		UPDATE inodes SET is_defeated = true, updated_at = now()
		WHERE id = $1 AND NOT is_defeated
		RETURNING source_type, source_id`,
		inodeID).Scan(&sourceType, &sourceID)
	if err != nil {
		if isNoRows(err) {
			return ErrNotFound
		}
		return fmt.Errorf("marking inode defeated: %w", err)
	}

	authorID, err := contentAuthor(ctx, s.pool, sourceType, sourceID)
	if err != nil {
		return err
	}
	payload := map[string]any{"inode_id": inodeID, "source_type": sourceType, "source_id": sourceID}
	return s.notifications.NotifyEpistemic(ctx, authorID, models.EpistemicUpstreamDefeated, "inode", inodeID, payload)
}
