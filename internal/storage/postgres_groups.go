package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/example/carpool-match/internal/models"
)

const pqForeignKeyViolation = "23503"

type PostgresGroupStore struct {
	db *sql.DB
}

func (p *PostgresGroupStore) Get(ctx context.Context, id string) (*models.CarpoolGroup, error) {
	var g models.CarpoolGroup
	err := p.db.QueryRowContext(ctx, `SELECT id, name, created_at FROM carpool_groups WHERE id = $1`, id).
		Scan(&g.ID, &g.Name, &g.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrGroupNotFound
	}
	if err != nil {
		return nil, err
	}
	groups := []models.CarpoolGroup{g}
	if err := p.loadMembers(ctx, groups); err != nil {
		return nil, err
	}
	return &groups[0], nil
}

func (p *PostgresGroupStore) ListByMember(ctx context.Context, commuterID string) ([]models.CarpoolGroup, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT g.id, g.name, g.created_at
		FROM carpool_groups g JOIN carpool_group_members m ON m.group_id = g.id
		WHERE m.commuter_id = $1
		ORDER BY g.created_at, g.id COLLATE "C"`, commuterID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.CarpoolGroup
	for rows.Next() {
		var g models.CarpoolGroup
		if err := rows.Scan(&g.ID, &g.Name, &g.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := p.loadMembers(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

// loadMembers fills MemberIDs for every group in one query.
func (p *PostgresGroupStore) loadMembers(ctx context.Context, groups []models.CarpoolGroup) error {
	if len(groups) == 0 {
		return nil
	}
	index := make(map[string]int, len(groups))
	ids := make([]string, len(groups))
	for i := range groups {
		index[groups[i].ID] = i
		ids[i] = groups[i].ID
		groups[i].MemberIDs = []string{}
	}
	rows, err := p.db.QueryContext(ctx, `SELECT group_id, commuter_id FROM carpool_group_members
		WHERE group_id = ANY($1) ORDER BY commuter_id COLLATE "C"`, pq.Array(ids))
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var gid, cid string
		if err := rows.Scan(&gid, &cid); err != nil {
			return err
		}
		if i, ok := index[gid]; ok {
			groups[i].MemberIDs = append(groups[i].MemberIDs, cid)
		}
	}
	return rows.Err()
}

func (p *PostgresGroupStore) Create(ctx context.Context, g *models.CarpoolGroup) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := tx.QueryRowContext(ctx, `INSERT INTO carpool_groups (id, name) VALUES ($1, $2) RETURNING created_at`,
		g.ID, g.Name).Scan(&g.CreatedAt); err != nil {
		return err
	}
	g.MemberIDs = normalizeMembers(g.MemberIDs)
	for _, cid := range g.MemberIDs {
		if _, err := tx.ExecContext(ctx, `INSERT INTO carpool_group_members (group_id, commuter_id) VALUES ($1, $2)`,
			g.ID, cid); err != nil {
			return membershipError(err)
		}
	}
	return tx.Commit()
}

func (p *PostgresGroupStore) Delete(ctx context.Context, id string) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM carpool_groups WHERE id = $1`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrGroupNotFound
	}
	return nil
}

func (p *PostgresGroupStore) AddMember(ctx context.Context, groupID, commuterID string) error {
	_, err := p.db.ExecContext(ctx, `INSERT INTO carpool_group_members (group_id, commuter_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING`, groupID, commuterID)
	return membershipError(err)
}

func (p *PostgresGroupStore) RemoveMember(ctx context.Context, groupID, commuterID string) error {
	var exists bool
	if err := p.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM carpool_groups WHERE id = $1)`, groupID).
		Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrGroupNotFound
	}
	_, err := p.db.ExecContext(ctx, `DELETE FROM carpool_group_members WHERE group_id = $1 AND commuter_id = $2`,
		groupID, commuterID)
	return err
}

// membershipError turns a foreign key violation on the members table into
// the not-found error for whichever side is missing.
func membershipError(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != pqForeignKeyViolation {
		return err
	}
	switch {
	case strings.Contains(pqErr.Constraint, "group_id"):
		return fmt.Errorf("%w: %s", ErrGroupNotFound, pqErr.Message)
	case strings.Contains(pqErr.Constraint, "commuter_id"):
		return fmt.Errorf("%w: %s", ErrNotFound, pqErr.Message)
	}
	return err
}
