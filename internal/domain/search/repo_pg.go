package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const resultColumns = `term, concept_id, COALESCE(NULLIF(preferred_term, ''), term)`

type indexRepoPG struct {
	pool *pgxpool.Pool
}

func NewIndexRepo(pool *pgxpool.Pool) IndexRepository {
	return &indexRepoPG{pool: pool}
}

func (r *indexRepoPG) ActiveGeneration(ctx context.Context) (int64, error) {
	var gen int64
	err := r.pool.QueryRow(ctx,
		`SELECT active_generation FROM search_index_state WHERE id = 1`).Scan(&gen)
	if err != nil {
		return 0, fmt.Errorf("read index state: %w", err)
	}
	return gen, nil
}

func (r *indexRepoPG) InsertDocuments(ctx context.Context, generation int64, docs []*Document) error {
	if len(docs) == 0 {
		return nil
	}
	rows := make([][]interface{}, 0, len(docs))
	for _, d := range docs {
		rows = append(rows, []interface{}{
			generation, d.DescriptionID, d.ConceptID, d.Term, d.PreferredTerm,
			d.AncestorIDs, d.DirectParentIDs, d.LanguageCode, d.Status, d.Active, d.FSN,
		})
	}
	_, err := r.pool.CopyFrom(ctx,
		pgx.Identifier{"search_document"},
		[]string{"generation", "description_id", "concept_id", "term", "preferred_term",
			"ancestor_ids", "direct_parent_ids", "language_code", "status", "active", "fsn"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("insert search documents: %w", err)
	}
	return nil
}

func (r *indexRepoPG) Publish(ctx context.Context, generation int64) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin index publish: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`UPDATE search_index_state SET active_generation = $1, published_at = NOW() WHERE id = 1`,
		generation); err != nil {
		return fmt.Errorf("publish generation: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`DELETE FROM search_document WHERE generation <> $1`, generation); err != nil {
		return fmt.Errorf("retire old generations: %w", err)
	}
	return tx.Commit(ctx)
}

func (r *indexRepoPG) DropGeneration(ctx context.Context, generation int64) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM search_document WHERE generation = $1`, generation)
	return err
}

func (r *indexRepoPG) Count(ctx context.Context, generation int64) (int, error) {
	var total int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM search_document WHERE generation = $1`, generation).Scan(&total)
	return total, err
}

// queryBuilder accumulates WHERE clauses with positional arguments.
type queryBuilder struct {
	where []string
	args  []interface{}
}

func (b *queryBuilder) add(clause string, arg interface{}) string {
	b.args = append(b.args, arg)
	placeholder := fmt.Sprintf("$%d", len(b.args))
	b.where = append(b.where, fmt.Sprintf(clause, placeholder))
	return placeholder
}

func (b *queryBuilder) addFilters(req Request) {
	if len(req.RecursiveParents) > 0 {
		b.add(`ancestor_ids && %s`, req.RecursiveParents)
	}
	if len(req.DirectParents) > 0 {
		b.add(`direct_parent_ids && %s`, req.DirectParents)
	}
	if req.ActiveOnly {
		b.where = append(b.where, `active`)
	}
	if req.ExcludeFSN {
		b.where = append(b.where, `NOT fsn`)
	}
}

func (b *queryBuilder) sql(order string, limit int) string {
	q := `SELECT ` + resultColumns + ` FROM search_document WHERE ` +
		strings.Join(b.where, " AND ") + ` ` + order
	if limit > 0 {
		b.args = append(b.args, limit)
		q += fmt.Sprintf(" LIMIT $%d", len(b.args))
	}
	return q
}

func (r *indexRepoPG) Query(ctx context.Context, generation int64, req Request) ([]*Result, error) {
	b := &queryBuilder{}
	b.add(`generation = %s`, generation)

	order := `ORDER BY description_id`
	if req.Query != "" {
		placeholder := b.add(`term_tsv @@ plainto_tsquery('simple', %s)`, req.Query)
		order = fmt.Sprintf(`ORDER BY ts_rank(term_tsv, plainto_tsquery('simple', %s)) DESC, description_id`, placeholder)
	}
	b.addFilters(req)

	return r.run(ctx, b.sql(order, req.Limit), b.args)
}

func (r *indexRepoPG) QueryPrefix(ctx context.Context, generation int64, req Request) ([]*Result, error) {
	tsq, ok := prefixTSQuery(req.Query)
	if !ok {
		return nil, ErrBadQuery
	}

	b := &queryBuilder{}
	b.add(`generation = %s`, generation)
	placeholder := b.add(`term_tsv @@ to_tsquery('simple', %s)`, tsq)
	b.addFilters(req)

	// Shortest term first: the shortest literal match is taken to be the
	// unmodified canonical name.
	order := fmt.Sprintf(
		`ORDER BY LENGTH(term), ts_rank(term_tsv, to_tsquery('simple', %s)) DESC, description_id`,
		placeholder)
	return r.run(ctx, b.sql(order, req.Limit), b.args)
}

func (r *indexRepoPG) QueryExact(ctx context.Context, generation int64, req Request) ([]*Result, error) {
	if req.Query == "" {
		return nil, ErrBadQuery
	}
	b := &queryBuilder{}
	b.add(`generation = %s`, generation)
	b.add(`LOWER(term) = LOWER(%s)`, req.Query)
	b.addFilters(req)

	return r.run(ctx, b.sql(`ORDER BY description_id`, req.Limit), b.args)
}

func (r *indexRepoPG) run(ctx context.Context, sql string, args []interface{}) ([]*Result, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIndexUnavailable, err)
	}
	defer rows.Close()

	results := []*Result{}
	for rows.Next() {
		res := &Result{}
		if err := rows.Scan(&res.Term, &res.ConceptID, &res.PreferredTerm); err != nil {
			return nil, fmt.Errorf("scan search result: %w", err)
		}
		results = append(results, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIndexUnavailable, err)
	}
	return results, nil
}

// prefixTSQuery turns free text into a tsquery where every token matches as a
// prefix, ANDed together. Reports false when no token survives sanitising.
func prefixTSQuery(query string) (string, bool) {
	var tokens []string
	for _, field := range strings.Fields(strings.ToLower(query)) {
		var b strings.Builder
		for _, r := range field {
			if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' {
				b.WriteRune(r)
			}
		}
		if b.Len() > 0 {
			tokens = append(tokens, b.String()+":*")
		}
	}
	if len(tokens) == 0 {
		return "", false
	}
	return strings.Join(tokens, " & "), true
}
