package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/agora-discourse/agora/pkg/discourse"
	"github.com/agora-discourse/agora/pkg/models"
)

// GraphService writes and reads the V3 argument hypergraph. A run's entire
// graph is committed in one transaction so no reader ever observes a
// half-written analysis.
type GraphService struct {
	pool *pgxpool.Pool
}

// NewGraphService creates a new graph service.
func NewGraphService(pool *pgxpool.Pool) *GraphService {
	if pool == nil {
		panic("pool is required")
	}
	return &GraphService{pool: pool}
}

// RunGraph is everything one analysis run produced.
type RunGraph struct {
	Inodes     []*models.INode            `json:"inodes"`
	Snodes     []*models.SNode            `json:"snodes"`
	Edges      []*models.Edge             `json:"edges"`
	Enthymemes []*models.Enthymeme        `json:"enthymemes"`
	Questions  []*models.SocraticQuestion `json:"socratic_questions"`
}

// CommitRun persists the engine's analysis result under the given run inside
// one transaction. Earlier graphs for the same source are removed first so a
// re-analysis fully replaces its predecessor. Concept nodes are globally
// deduplicated on (term, definition); equivocation flags on (scheme, term).
func (s *GraphService) CommitRun(ctx context.Context, run *models.AnalysisRun, result *discourse.AnalysisResult) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning graph commit: %w", err)
	}
	defer tx.Rollback(ctx)

	// Cascade delete removes the old nodes and their edges.
	_, err = tx.Exec(ctx, `
		DELETE FROM analysis_runs
		WHERE source_type = $1 AND source_id = $2 AND id <> $3
		  AND status IN ('completed', 'failed')`,
		run.SourceType, run.SourceID, run.ID)
	if err != nil {
		return fmt.Errorf("removing superseded runs: %w", err)
	}

	sourceIDs, err := insertSources(ctx, tx, result.Sources)
	if err != nil {
		return err
	}
	inodeIDs, err := insertInodes(ctx, tx, run, result, sourceIDs)
	if err != nil {
		return err
	}
	snodeIDs, err := insertSnodes(ctx, tx, run.ID, result.Snodes)
	if err != nil {
		return err
	}
	if err := insertEdges(ctx, tx, result.Edges, snodeIDs, inodeIDs, sourceIDs); err != nil {
		return err
	}
	if err := insertEnthymemes(ctx, tx, result.Enthymemes, snodeIDs); err != nil {
		return err
	}
	if err := insertQuestions(ctx, tx, result.Questions, snodeIDs); err != nil {
		return err
	}
	if err := insertValues(ctx, tx, result.ExtractedValues, inodeIDs); err != nil {
		return err
	}
	conceptIDs, err := upsertConcepts(ctx, tx, result.Concepts)
	if err != nil {
		return err
	}
	if err := insertMentions(ctx, tx, result.ConceptMentions, inodeIDs, conceptIDs); err != nil {
		return err
	}
	if err := insertEquivocations(ctx, tx, result.Equivocations, snodeIDs, conceptIDs); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing graph: %w", err)
	}
	return nil
}

func insertSources(ctx context.Context, tx pgx.Tx, sources []discourse.ResultSource) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, len(sources))
	for i, src := range sources {
		if src.ParentIndex != nil && (*src.ParentIndex < 0 || *src.ParentIndex >= i) {
			return nil, NewValidationError("sources", "parent must precede its child")
		}
		var parentID *uuid.UUID
		if src.ParentIndex != nil {
			parentID = &ids[*src.ParentIndex]
		}
		// Sources are shared across runs: re-citing a URL reuses the row.
		err := tx.QueryRow(ctx, `
			INSERT INTO sources (id, level, parent_id, url, title, reputation)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (url)
			DO UPDATE SET title = COALESCE(EXCLUDED.title, sources.title)
			RETURNING id`,
			uuid.New(), src.Level, parentID, src.URL, src.Title, src.Reputation).Scan(&ids[i])
		if err != nil {
			return nil, fmt.Errorf("inserting source %d: %w", i, err)
		}
	}
	return ids, nil
}

func insertInodes(ctx context.Context, tx pgx.Tx, run *models.AnalysisRun, result *discourse.AnalysisResult, sourceIDs []uuid.UUID) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, len(result.Inodes))
	for i, in := range result.Inodes {
		if in.SpanEnd <= in.SpanStart {
			return nil, NewValidationError("inodes", fmt.Sprintf("node %d span end must exceed span start", i))
		}
		var embedding *pgvector.Vector
		if i < len(result.Embeddings) && len(result.Embeddings[i]) > 0 {
			v := pgvector.NewVector(result.Embeddings[i])
			embedding = &v
		}
		var sourceRef *uuid.UUID
		if in.SourceIndex != nil {
			if *in.SourceIndex < 0 || *in.SourceIndex >= len(sourceIDs) {
				return nil, NewValidationError("inodes", fmt.Sprintf("node %d references unknown source", i))
			}
			sourceRef = &sourceIDs[*in.SourceIndex]
		}
		ids[i] = uuid.New()
		_, err := tx.Exec(ctx, `
			INSERT INTO inodes (id, analysis_run_id, source_type, source_id, content,
				rewritten_content, epistemic_type, span_start, span_end,
				fvp_confidence, extraction_confidence, embedding, fact_subtype, source_ref_id)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
			ids[i], run.ID, run.SourceType, run.SourceID, in.Content,
			in.RewrittenContent, in.EpistemicType, in.SpanStart, in.SpanEnd,
			in.FVPConfidence, in.ExtractionConfidence, embedding, in.FactSubtype, sourceRef)
		if err != nil {
			return nil, fmt.Errorf("inserting inode %d: %w", i, err)
		}
	}
	return ids, nil
}

func insertSnodes(ctx context.Context, tx pgx.Tx, runID uuid.UUID, snodes []discourse.ResultSNode) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, len(snodes))
	for i, sn := range snodes {
		ids[i] = uuid.New()
		_, err := tx.Exec(ctx, `
			INSERT INTO snodes (id, analysis_run_id, direction, logic_type, confidence,
				gap_detected, fallacy_type, fallacy_explanation)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			ids[i], runID, sn.Direction, sn.LogicType, sn.Confidence,
			sn.GapDetected, sn.FallacyType, sn.FallacyExplanation)
		if err != nil {
			return nil, fmt.Errorf("inserting snode %d: %w", i, err)
		}
	}
	return ids, nil
}

func insertEdges(ctx context.Context, tx pgx.Tx, edges []discourse.ResultEdge, snodeIDs, inodeIDs, sourceIDs []uuid.UUID) error {
	for i, e := range edges {
		if e.SnodeIndex < 0 || e.SnodeIndex >= len(snodeIDs) {
			return NewValidationError("edges", fmt.Sprintf("edge %d references unknown scheme", i))
		}
		var inodeID, sourceRef *uuid.UUID
		if e.InodeIndex != nil {
			if *e.InodeIndex < 0 || *e.InodeIndex >= len(inodeIDs) {
				return NewValidationError("edges", fmt.Sprintf("edge %d references unknown inode", i))
			}
			inodeID = &inodeIDs[*e.InodeIndex]
		}
		if e.SourceIndex != nil {
			if *e.SourceIndex < 0 || *e.SourceIndex >= len(sourceIDs) {
				return NewValidationError("edges", fmt.Sprintf("edge %d references unknown source", i))
			}
			sourceRef = &sourceIDs[*e.SourceIndex]
		}
		// The edges_origin_check constraint is the authority; validating here
		// just turns a constraint violation into a clearer error.
		premise := e.Role == string(models.RolePremise)
		if premise && (inodeID == nil) == (sourceRef == nil) {
			return NewValidationError("edges", fmt.Sprintf("premise edge %d needs exactly one of inode or source", i))
		}
		if !premise && (inodeID == nil || sourceRef != nil) {
			return NewValidationError("edges", fmt.Sprintf("%s edge %d must reference an inode only", e.Role, i))
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO edges (id, snode_id, inode_id, source_ref_id, role)
			VALUES ($1, $2, $3, $4, $5)`,
			uuid.New(), snodeIDs[e.SnodeIndex], inodeID, sourceRef, e.Role)
		if err != nil {
			return fmt.Errorf("inserting edge %d: %w", i, err)
		}
	}
	return nil
}

func insertEnthymemes(ctx context.Context, tx pgx.Tx, enths []discourse.ResultEnthymeme, snodeIDs []uuid.UUID) error {
	for i, en := range enths {
		if en.SnodeIndex < 0 || en.SnodeIndex >= len(snodeIDs) {
			return NewValidationError("enthymemes", fmt.Sprintf("enthymeme %d references unknown scheme", i))
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO enthymemes (id, snode_id, content, fvp_type, probability)
			VALUES ($1, $2, $3, $4, $5)`,
			uuid.New(), snodeIDs[en.SnodeIndex], en.Content, en.FVPType, en.Probability)
		if err != nil {
			return fmt.Errorf("inserting enthymeme %d: %w", i, err)
		}
	}
	return nil
}

func insertQuestions(ctx context.Context, tx pgx.Tx, questions []discourse.ResultQuestion, snodeIDs []uuid.UUID) error {
	for i, q := range questions {
		if q.SnodeIndex < 0 || q.SnodeIndex >= len(snodeIDs) {
			return NewValidationError("socratic_questions", fmt.Sprintf("question %d references unknown scheme", i))
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO socratic_questions (id, snode_id, question, uncertainty)
			VALUES ($1, $2, $3, $4)`,
			uuid.New(), snodeIDs[q.SnodeIndex], q.Question, q.Uncertainty)
		if err != nil {
			return fmt.Errorf("inserting socratic question %d: %w", i, err)
		}
	}
	return nil
}

func insertValues(ctx context.Context, tx pgx.Tx, values []discourse.ResultValue, inodeIDs []uuid.UUID) error {
	for i, v := range values {
		if v.InodeIndex < 0 || v.InodeIndex >= len(inodeIDs) {
			return NewValidationError("extracted_values", fmt.Sprintf("value %d references unknown inode", i))
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO extracted_values (id, inode_id, value_name)
			VALUES ($1, $2, $3)`,
			uuid.New(), inodeIDs[v.InodeIndex], v.ValueName)
		if err != nil {
			return fmt.Errorf("inserting extracted value %d: %w", i, err)
		}
	}
	return nil
}

func upsertConcepts(ctx context.Context, tx pgx.Tx, concepts []discourse.ResultConcept) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, len(concepts))
	for i, c := range concepts {
		var embedding *pgvector.Vector
		if len(c.Embedding) > 0 {
			v := pgvector.NewVector(c.Embedding)
			embedding = &v
		}
		err := tx.QueryRow(ctx, `
			INSERT INTO concept_nodes (id, term, definition, embedding)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (term, definition)
			DO UPDATE SET term = concept_nodes.term
			RETURNING id`,
			uuid.New(), c.Term, c.Definition, embedding).Scan(&ids[i])
		if err != nil {
			return nil, fmt.Errorf("upserting concept %q: %w", c.Term, err)
		}
	}
	return ids, nil
}

func insertMentions(ctx context.Context, tx pgx.Tx, mentions []discourse.ResultMention, inodeIDs, conceptIDs []uuid.UUID) error {
	for i, m := range mentions {
		if m.InodeIndex < 0 || m.InodeIndex >= len(inodeIDs) {
			return NewValidationError("concept_mentions", fmt.Sprintf("mention %d references unknown inode", i))
		}
		if m.ConceptIndex < 0 || m.ConceptIndex >= len(conceptIDs) {
			return NewValidationError("concept_mentions", fmt.Sprintf("mention %d references unknown concept", i))
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO inode_concepts (id, inode_id, concept_id, term)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (inode_id, term) DO UPDATE SET concept_id = EXCLUDED.concept_id`,
			uuid.New(), inodeIDs[m.InodeIndex], conceptIDs[m.ConceptIndex], m.Term)
		if err != nil {
			return fmt.Errorf("inserting concept mention %d: %w", i, err)
		}
	}
	return nil
}

func insertEquivocations(ctx context.Context, tx pgx.Tx, flags []discourse.ResultEquivocation, snodeIDs, conceptIDs []uuid.UUID) error {
	for i, f := range flags {
		if f.SnodeIndex < 0 || f.SnodeIndex >= len(snodeIDs) {
			return NewValidationError("equivocations", fmt.Sprintf("flag %d references unknown scheme", i))
		}
		if f.PremiseConceptIndex < 0 || f.PremiseConceptIndex >= len(conceptIDs) ||
			f.ConclusionConceptIndex < 0 || f.ConclusionConceptIndex >= len(conceptIDs) {
			return NewValidationError("equivocations", fmt.Sprintf("flag %d references unknown concept", i))
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO equivocation_flags (id, snode_id, term, premise_concept_id, conclusion_concept_id)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (snode_id, term) DO NOTHING`,
			uuid.New(), snodeIDs[f.SnodeIndex], f.Term, conceptIDs[f.PremiseConceptIndex], conceptIDs[f.ConclusionConceptIndex])
		if err != nil {
			return fmt.Errorf("inserting equivocation flag %d: %w", i, err)
		}
	}
	return nil
}

// GetRunGraph loads everything one run produced.
func (s *GraphService) GetRunGraph(ctx context.Context, runID uuid.UUID) (*RunGraph, error) {
	graph := &RunGraph{}

	rows, err := s.pool.Query(ctx, `
		SELECT id, analysis_run_id, source_type, source_id, content, rewritten_content,
			epistemic_type, span_start, span_end, fvp_confidence, extraction_confidence,
			fact_subtype, base_weight, evidence_rank, is_defeated, component_id,
			node_role, source_ref_id, created_at, updated_at
		FROM inodes WHERE analysis_run_id = $1
		ORDER BY span_start`, runID)
	if err != nil {
		return nil, fmt.Errorf("loading inodes: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var n models.INode
		err := rows.Scan(&n.ID, &n.AnalysisRunID, &n.SourceType, &n.SourceID,
			&n.Content, &n.RewrittenContent, &n.EpistemicType, &n.SpanStart, &n.SpanEnd,
			&n.FVPConfidence, &n.ExtractionConfidence, &n.FactSubtype, &n.BaseWeight,
			&n.EvidenceRank, &n.IsDefeated, &n.ComponentID, &n.NodeRole, &n.SourceRefID,
			&n.CreatedAt, &n.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("scanning inode: %w", err)
		}
		graph.Inodes = append(graph.Inodes, &n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("loading inodes: %w", err)
	}

	snRows, err := s.pool.Query(ctx, `
		SELECT id, analysis_run_id, direction, logic_type, confidence, gap_detected,
			fallacy_type, fallacy_explanation, escrow_status, escrow_expires_at,
			pending_bounty, is_bridge, component_a_id, component_b_id, created_at, updated_at
		FROM snodes WHERE analysis_run_id = $1
		ORDER BY created_at`, runID)
	if err != nil {
		return nil, fmt.Errorf("loading snodes: %w", err)
	}
	defer snRows.Close()
	for snRows.Next() {
		var n models.SNode
		err := snRows.Scan(&n.ID, &n.AnalysisRunID, &n.Direction, &n.LogicType,
			&n.Confidence, &n.GapDetected, &n.FallacyType, &n.FallacyExplanation,
			&n.EscrowStatus, &n.EscrowExpiresAt, &n.PendingBounty, &n.IsBridge,
			&n.ComponentAID, &n.ComponentBID, &n.CreatedAt, &n.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("scanning snode: %w", err)
		}
		graph.Snodes = append(graph.Snodes, &n)
	}
	if err := snRows.Err(); err != nil {
		return nil, fmt.Errorf("loading snodes: %w", err)
	}

	edgeRows, err := s.pool.Query(ctx, `
		SELECT e.id, e.snode_id, e.inode_id, e.source_ref_id, e.role, e.created_at
		FROM edges e
		JOIN snodes sn ON sn.id = e.snode_id
		WHERE sn.analysis_run_id = $1
		ORDER BY e.created_at`, runID)
	if err != nil {
		return nil, fmt.Errorf("loading edges: %w", err)
	}
	defer edgeRows.Close()
	for edgeRows.Next() {
		var e models.Edge
		if err := edgeRows.Scan(&e.ID, &e.SNodeID, &e.INodeID, &e.SourceRefID, &e.Role, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning edge: %w", err)
		}
		graph.Edges = append(graph.Edges, &e)
	}
	if err := edgeRows.Err(); err != nil {
		return nil, fmt.Errorf("loading edges: %w", err)
	}

	enthRows, err := s.pool.Query(ctx, `
		SELECT en.id, en.snode_id, en.content, en.fvp_type, en.probability, en.status,
			en.created_at, en.updated_at
		FROM enthymemes en
		JOIN snodes sn ON sn.id = en.snode_id
		WHERE sn.analysis_run_id = $1
		ORDER BY en.created_at`, runID)
	if err != nil {
		return nil, fmt.Errorf("loading enthymemes: %w", err)
	}
	defer enthRows.Close()
	for enthRows.Next() {
		var en models.Enthymeme
		if err := enthRows.Scan(&en.ID, &en.SNodeID, &en.Content, &en.FVPType,
			&en.Probability, &en.Status, &en.CreatedAt, &en.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning enthymeme: %w", err)
		}
		graph.Enthymemes = append(graph.Enthymemes, &en)
	}
	if err := enthRows.Err(); err != nil {
		return nil, fmt.Errorf("loading enthymemes: %w", err)
	}

	qRows, err := s.pool.Query(ctx, `
		SELECT q.id, q.snode_id, q.question, q.uncertainty, q.resolution_reply_id, q.created_at
		FROM socratic_questions q
		JOIN snodes sn ON sn.id = q.snode_id
		WHERE sn.analysis_run_id = $1
		ORDER BY q.created_at`, runID)
	if err != nil {
		return nil, fmt.Errorf("loading socratic questions: %w", err)
	}
	defer qRows.Close()
	for qRows.Next() {
		var q models.SocraticQuestion
		if err := qRows.Scan(&q.ID, &q.SNodeID, &q.Question, &q.Uncertainty,
			&q.ResolutionReplyID, &q.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning socratic question: %w", err)
		}
		graph.Questions = append(graph.Questions, &q)
	}
	if err := qRows.Err(); err != nil {
		return nil, fmt.Errorf("loading socratic questions: %w", err)
	}

	return graph, nil
}

// LatestCompletedRun returns the most recent completed run for a source, or
// ErrNotFound.
func (s *GraphService) LatestCompletedRun(ctx context.Context, sourceType models.ContentType, sourceID uuid.UUID) (*models.AnalysisRun, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+runColumns+`
		FROM analysis_runs
		WHERE source_type = $1 AND source_id = $2 AND status = 'completed'
		ORDER BY updated_at DESC
		LIMIT 1`, sourceType, sourceID)
	run, err := scanRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetching latest run: %w", err)
	}
	return run, nil
}
