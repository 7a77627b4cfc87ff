package postgres

import (
	"context"
	"fmt"
	"sort"

	"github.com/kozaktomas/rollcall/internal/database"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
)

// IdentityRepository mirrors the known face database into a pgvector table
type IdentityRepository struct {
	pool *Pool
}

var _ database.IdentityStore = (*IdentityRepository)(nil)

// NewIdentityRepository creates a new PostgreSQL identity repository
func NewIdentityRepository(pool *Pool) *IdentityRepository {
	return &IdentityRepository{pool: pool}
}

// ListIdentities returns all mirrored identities in insertion order
func (r *IdentityRepository) ListIdentities(ctx context.Context) ([]database.StoredIdentity, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT student_id, name, embedding, dim, metadata_keys, metadata_values, created_at
		FROM known_identities
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("list identities: %w", err)
	}
	defer rows.Close()

	var identities []database.StoredIdentity
	for rows.Next() {
		var ident database.StoredIdentity
		var vec pgvector.Vector
		var keys, values pq.StringArray
		if err := rows.Scan(&ident.StudentID, &ident.Name, &vec, &ident.Dim, &keys, &values, &ident.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan identity: %w", err)
		}
		ident.Embedding = vec.Slice()
		if len(keys) > 0 {
			ident.Metadata = make(map[string]string, len(keys))
			for i, k := range keys {
				if i < len(values) {
					ident.Metadata[k] = values[i]
				}
			}
		}
		identities = append(identities, ident)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate identities: %w", err)
	}
	return identities, nil
}

// ReplaceIdentities deletes the mirror and inserts identities in one transaction
func (r *IdentityRepository) ReplaceIdentities(ctx context.Context, identities []database.StoredIdentity) error {
	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM known_identities"); err != nil {
		return fmt.Errorf("delete existing identities: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO known_identities (student_id, name, embedding, dim, metadata_keys, metadata_values)
		VALUES ($1, $2, $3::vector, $4, $5, $6)
	`)
	if err != nil {
		return fmt.Errorf("prepare statement: %w", err)
	}
	defer stmt.Close()

	for i := range identities {
		ident := &identities[i]
		keys, values := splitMetadata(ident.Metadata)
		if _, err := stmt.ExecContext(ctx,
			ident.StudentID,
			ident.Name,
			pgvector.NewVector(ident.Embedding),
			len(ident.Embedding),
			pq.Array(keys),
			pq.Array(values),
		); err != nil {
			return fmt.Errorf("insert identity %s: %w", ident.StudentID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// CountIdentities returns the number of mirrored identities
func (r *IdentityRepository) CountIdentities(ctx context.Context) (int, error) {
	var count int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM known_identities").Scan(&count); err != nil {
		return 0, fmt.Errorf("count identities: %w", err)
	}
	return count, nil
}

// splitMetadata flattens a map into parallel key/value slices sorted by key.
func splitMetadata(m map[string]string) ([]string, []string) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	values := make([]string, len(keys))
	for i, k := range keys {
		values[i] = m[k]
	}
	return keys, values
}
