package concept

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// -- Concept Repository --

const conceptColumns = `concept_id, fully_specified_name, status_code, is_primitive, COALESCE(ctv3_id, ''), COALESCE(snomed_id, '')`

type conceptRepoPG struct {
	pool *pgxpool.Pool
}

func NewConceptRepo(pool *pgxpool.Pool) ConceptRepository {
	return &conceptRepoPG{pool: pool}
}

func (r *conceptRepoPG) Create(ctx context.Context, c *Concept) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO concept (concept_id, fully_specified_name, status_code, is_primitive, ctv3_id, snomed_id)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''))
		ON CONFLICT (concept_id) DO UPDATE SET
			fully_specified_name = EXCLUDED.fully_specified_name,
			status_code = EXCLUDED.status_code,
			is_primitive = EXCLUDED.is_primitive`,
		c.ID, c.FullySpecifiedName, int(c.Status), c.Primitive, c.CTV3ID, c.SnomedID,
	)
	return err
}

func (r *conceptRepoPG) GetByID(ctx context.Context, id int64) (*Concept, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+conceptColumns+` FROM concept WHERE concept_id = $1`, id)
	return scanConcept(row)
}

func (r *conceptRepoPG) List(ctx context.Context, limit, offset int) ([]*Concept, int, error) {
	total, err := r.Count(ctx)
	if err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+conceptColumns+` FROM concept ORDER BY concept_id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var concepts []*Concept
	for rows.Next() {
		c, err := scanConcept(rows)
		if err != nil {
			return nil, 0, err
		}
		concepts = append(concepts, c)
	}
	return concepts, total, rows.Err()
}

func (r *conceptRepoPG) Count(ctx context.Context) (int, error) {
	var total int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM concept`).Scan(&total)
	return total, err
}

func (r *conceptRepoPG) IDsAfter(ctx context.Context, afterID int64, limit int) ([]int64, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT concept_id FROM concept WHERE concept_id > $1 ORDER BY concept_id LIMIT $2`,
		afterID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *conceptRepoPG) Exists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM concept WHERE concept_id = $1)`, id).Scan(&exists)
	return exists, err
}

func scanConcept(row pgx.Row) (*Concept, error) {
	c := &Concept{}
	var status int
	err := row.Scan(&c.ID, &c.FullySpecifiedName, &status, &c.Primitive, &c.CTV3ID, &c.SnomedID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan concept: %w", err)
	}
	c.Status = Status(status)
	return c, nil
}

// -- Description Repository --

const descriptionColumns = `description_id, concept_id, term, language_code, description_type, status_code`

type descriptionRepoPG struct {
	pool *pgxpool.Pool
}

func NewDescriptionRepo(pool *pgxpool.Pool) DescriptionRepository {
	return &descriptionRepoPG{pool: pool}
}

func (r *descriptionRepoPG) Create(ctx context.Context, d *Description) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO description (description_id, concept_id, term, language_code, description_type, status_code)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (description_id) DO UPDATE SET
			term = EXCLUDED.term,
			language_code = EXCLUDED.language_code,
			description_type = EXCLUDED.description_type,
			status_code = EXCLUDED.status_code`,
		d.ID, d.ConceptID, d.Term, d.LanguageCode, int(d.Type), int(d.Status),
	)
	return err
}

func (r *descriptionRepoPG) GetByID(ctx context.Context, id int64) (*Description, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+descriptionColumns+` FROM description WHERE description_id = $1`, id)
	return scanDescription(row)
}

func (r *descriptionRepoPG) ListByConcept(ctx context.Context, conceptID int64) ([]*Description, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+descriptionColumns+` FROM description WHERE concept_id = $1 ORDER BY description_id`, conceptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectDescriptions(rows)
}

func (r *descriptionRepoPG) Count(ctx context.Context) (int, error) {
	var total int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM description`).Scan(&total)
	return total, err
}

func (r *descriptionRepoPG) After(ctx context.Context, afterID int64, limit int) ([]*Description, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+descriptionColumns+` FROM description WHERE description_id > $1 ORDER BY description_id LIMIT $2`,
		afterID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectDescriptions(rows)
}

func collectDescriptions(rows pgx.Rows) ([]*Description, error) {
	var descs []*Description
	for rows.Next() {
		d, err := scanDescription(rows)
		if err != nil {
			return nil, err
		}
		descs = append(descs, d)
	}
	return descs, rows.Err()
}

func scanDescription(row pgx.Row) (*Description, error) {
	d := &Description{}
	var dtype, status int
	err := row.Scan(&d.ID, &d.ConceptID, &d.Term, &d.LanguageCode, &dtype, &status)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan description: %w", err)
	}
	d.Type = DescriptionType(dtype)
	d.Status = Status(status)
	return d, nil
}

// -- Relationship Repository --

const relationshipColumns = `relationship_id, source_concept_id, relationship_type_id, target_concept_id, characteristic_type, refinability, relationship_group`

type relationshipRepoPG struct {
	pool *pgxpool.Pool
}

func NewRelationshipRepo(pool *pgxpool.Pool) RelationshipRepository {
	return &relationshipRepoPG{pool: pool}
}

func (r *relationshipRepoPG) Create(ctx context.Context, rel *Relationship) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO relationship (relationship_id, source_concept_id, relationship_type_id, target_concept_id, characteristic_type, refinability, relationship_group)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (relationship_id) DO UPDATE SET
			source_concept_id = EXCLUDED.source_concept_id,
			relationship_type_id = EXCLUDED.relationship_type_id,
			target_concept_id = EXCLUDED.target_concept_id`,
		rel.ID, rel.SourceID, rel.TypeID, rel.TargetID, rel.CharacteristicType, rel.Refinability, rel.Group,
	)
	return err
}

func (r *relationshipRepoPG) GetByID(ctx context.Context, id int64) (*Relationship, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+relationshipColumns+` FROM relationship WHERE relationship_id = $1`, id)
	return scanRelationship(row)
}

func (r *relationshipRepoPG) ListBySource(ctx context.Context, conceptID int64) ([]*Relationship, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+relationshipColumns+` FROM relationship WHERE source_concept_id = $1`, conceptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRelationships(rows)
}

func (r *relationshipRepoPG) ListByTarget(ctx context.Context, conceptID int64) ([]*Relationship, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+relationshipColumns+` FROM relationship WHERE target_concept_id = $1`, conceptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRelationships(rows)
}

func collectRelationships(rows pgx.Rows) ([]*Relationship, error) {
	var rels []*Relationship
	for rows.Next() {
		rel, err := scanRelationship(rows)
		if err != nil {
			return nil, err
		}
		rels = append(rels, rel)
	}
	return rels, rows.Err()
}

func scanRelationship(row pgx.Row) (*Relationship, error) {
	rel := &Relationship{}
	err := row.Scan(&rel.ID, &rel.SourceID, &rel.TypeID, &rel.TargetID,
		&rel.CharacteristicType, &rel.Refinability, &rel.Group)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan relationship: %w", err)
	}
	return rel, nil
}

// -- Closure Repository --

type closureRepoPG struct {
	pool *pgxpool.Pool
}

func NewClosureRepo(pool *pgxpool.Pool) ClosureRepository {
	return &closureRepoPG{pool: pool}
}

func (r *closureRepoPG) AncestorIDs(ctx context.Context, conceptID int64) ([]int64, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT parent_concept_id FROM concept_closure WHERE child_concept_id = $1`, conceptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *closureRepoPG) Contains(ctx context.Context, conceptID, ancestorID int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM concept_closure WHERE child_concept_id = $1 AND parent_concept_id = $2)`,
		conceptID, ancestorID).Scan(&exists)
	return exists, err
}

func (r *closureRepoPG) ContainsAny(ctx context.Context, conceptID int64, ancestorIDs []int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM concept_closure WHERE child_concept_id = $1 AND parent_concept_id = ANY($2))`,
		conceptID, ancestorIDs).Scan(&exists)
	return exists, err
}

func (r *closureRepoPG) Replace(ctx context.Context, conceptID int64, ancestorIDs []int64) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin closure replace: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`DELETE FROM concept_closure WHERE child_concept_id = $1`, conceptID); err != nil {
		return fmt.Errorf("delete closure rows: %w", err)
	}

	if len(ancestorIDs) > 0 {
		rows := make([][]interface{}, 0, len(ancestorIDs))
		for _, ancestor := range ancestorIDs {
			rows = append(rows, []interface{}{conceptID, ancestor})
		}
		if _, err := tx.CopyFrom(ctx,
			pgx.Identifier{"concept_closure"},
			[]string{"child_concept_id", "parent_concept_id"},
			pgx.CopyFromRows(rows),
		); err != nil {
			return fmt.Errorf("insert closure rows: %w", err)
		}
	}

	return tx.Commit(ctx)
}
