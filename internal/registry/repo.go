package registry

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/starford/raido/internal/apperr"
	"github.com/starford/raido/internal/models"
)

// CreateEntity inserts a new entity and returns it with its assigned ID.
// The UNIQUE(name, domain_id) constraint maps to apperr.ErrAlreadyExists.
func (db *DB) CreateEntity(name string, domainID int64) (*models.Entity, error) {
	now := time.Now().UTC()
	res, err := db.conn.Exec(`
		INSERT INTO entities (name, domain_id, created_at, updated_at)
		VALUES (?, ?, ?, ?)
	`, name, domainID, now, now)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
			return nil, apperr.ErrAlreadyExists
		}
		return nil, fmt.Errorf("registry: create entity: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("registry: last insert id: %w", err)
	}
	return db.GetEntity(id)
}

// GetEntity returns the entity with the given ID.
func (db *DB) GetEntity(id int64) (*models.Entity, error) {
	row := db.conn.QueryRow(`
		SELECT id, name, domain_id, metarefresh, metadata_url, created_at, updated_at
		FROM entities WHERE id = ?
	`, id)
	return scanEntity(row)
}

// EntityExists reports whether an entity with the given name already
// exists under the domain. except, when non-zero, excludes that entity
// ID from the check (used when renaming).
func (db *DB) EntityExists(name string, domainID, except int64) (bool, error) {
	var n int
	err := db.conn.QueryRow(`
		SELECT COUNT(*) FROM entities WHERE name = ? AND domain_id = ? AND id != ?
	`, name, domainID, except).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("registry: entity exists: %w", err)
	}
	return n > 0, nil
}

// ListEntities returns entities, optionally filtered by domain ID.
func (db *DB) ListEntities(domainID int64) ([]models.Entity, error) {
	q := `SELECT id, name, domain_id, metarefresh, metadata_url, created_at, updated_at
	      FROM entities`
	args := []any{}
	if domainID != 0 {
		q += ` WHERE domain_id = ?`
		args = append(args, domainID)
	}
	q += ` ORDER BY name`
	rows, err := db.conn.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("registry: list entities: %w", err)
	}
	defer rows.Close()
	return collectEntities(rows)
}

// RenameEntity updates the entity name and bumps updated_at.
func (db *DB) RenameEntity(id int64, name string) error {
	res, err := db.conn.Exec(`
		UPDATE entities SET name = ?, updated_at = ? WHERE id = ?
	`, name, time.Now().UTC(), id)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
			return apperr.ErrAlreadyExists
		}
		return fmt.Errorf("registry: rename entity: %w", err)
	}
	return requireRow(res)
}

// DeleteEntity removes an entity record.
func (db *DB) DeleteEntity(id int64) error {
	res, err := db.conn.Exec(`DELETE FROM entities WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("registry: delete entity: %w", err)
	}
	return requireRow(res)
}

// TouchEntity bumps updated_at after a metadata change and records the
// source URL for remote submissions (empty url leaves it unchanged).
func (db *DB) TouchEntity(id int64, url string) error {
	var err error
	var res sql.Result
	if url != "" {
		res, err = db.conn.Exec(`
			UPDATE entities SET updated_at = ?, metadata_url = ? WHERE id = ?
		`, time.Now().UTC(), url, id)
	} else {
		res, err = db.conn.Exec(`
			UPDATE entities SET updated_at = ? WHERE id = ?
		`, time.Now().UTC(), id)
	}
	if err != nil {
		return fmt.Errorf("registry: touch entity: %w", err)
	}
	return requireRow(res)
}

// SetMetarefresh updates the refresh frequency for an entity.
func (db *DB) SetMetarefresh(id int64, freq models.MetarefreshFrequency) error {
	res, err := db.conn.Exec(`
		UPDATE entities SET metarefresh = ? WHERE id = ?
	`, string(freq), id)
	if err != nil {
		return fmt.Errorf("registry: set metarefresh: %w", err)
	}
	return requireRow(res)
}

// ListRemoteEntities returns entities that are candidates for the
// background metadata refresher: a non-never frequency and a known URL.
func (db *DB) ListRemoteEntities() ([]models.Entity, error) {
	rows, err := db.conn.Query(`
		SELECT id, name, domain_id, metarefresh, metadata_url, created_at, updated_at
		FROM entities
		WHERE metarefresh != 'never' AND metadata_url != ''
	`)
	if err != nil {
		return nil, fmt.Errorf("registry: list remote entities: %w", err)
	}
	defer rows.Close()
	return collectEntities(rows)
}

// GetDomain returns the domain with the given ID, including its team.
func (db *DB) GetDomain(id int64) (*models.Domain, error) {
	d := &models.Domain{}
	var validated int
	err := db.conn.QueryRow(`
		SELECT id, name, owner, validated FROM domains WHERE id = ?
	`, id).Scan(&d.ID, &d.Name, &d.Owner, &validated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("registry: get domain: %w", err)
	}
	d.Validated = validated != 0

	rows, err := db.conn.Query(`SELECT username FROM domain_team WHERE domain_id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("registry: domain team: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var member string
		if err := rows.Scan(&member); err != nil {
			return nil, err
		}
		d.Team = append(d.Team, member)
	}
	return d, rows.Err()
}

// ListUserDomains returns the validated domains the user owns or is a
// team member of.
func (db *DB) ListUserDomains(username string) ([]models.Domain, error) {
	rows, err := db.conn.Query(`
		SELECT DISTINCT d.id FROM domains d
		LEFT JOIN domain_team t ON t.domain_id = d.id
		WHERE d.validated = 1 AND (d.owner = ? OR t.username = ?)
		ORDER BY d.id
	`, username, username)
	if err != nil {
		return nil, fmt.Errorf("registry: list user domains: %w", err)
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
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]models.Domain, 0, len(ids))
	for _, id := range ids {
		d, err := db.GetDomain(id)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, nil
}

// AddDomain inserts a domain with its team. Intended for provisioning
// and tests; domain management has no HTTP surface.
func (db *DB) AddDomain(name, owner string, validated bool, team ...string) (*models.Domain, error) {
	v := 0
	if validated {
		v = 1
	}
	res, err := db.conn.Exec(`
		INSERT INTO domains (name, owner, validated) VALUES (?, ?, ?)
	`, name, owner, v)
	if err != nil {
		return nil, fmt.Errorf("registry: add domain: %w", err)
	}
	id, _ := res.LastInsertId()
	for _, member := range team {
		if _, err := db.conn.Exec(`
			INSERT OR IGNORE INTO domain_team (domain_id, username) VALUES (?, ?)
		`, id, member); err != nil {
			return nil, fmt.Errorf("registry: add team member: %w", err)
		}
	}
	return db.GetDomain(id)
}

// GetUser returns the user with the given username.
func (db *DB) GetUser(username string) (*models.User, error) {
	u := &models.User{}
	err := db.conn.QueryRow(`
		SELECT username, full_name, email FROM users WHERE username = ?
	`, username).Scan(&u.Username, &u.FullName, &u.Email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("registry: get user: %w", err)
	}
	return u, nil
}

// PutUser inserts or updates a user record.
func (db *DB) PutUser(u models.User) error {
	_, err := db.conn.Exec(`
		INSERT INTO users (username, full_name, email) VALUES (?, ?, ?)
		ON CONFLICT(username) DO UPDATE SET
			full_name = excluded.full_name,
			email     = excluded.email
	`, u.Username, u.FullName, u.Email)
	if err != nil {
		return fmt.Errorf("registry: put user: %w", err)
	}
	return nil
}

// CreateGroup inserts a new entity group.
func (db *DB) CreateGroup(name, query string) (*models.EntityGroup, error) {
	res, err := db.conn.Exec(`
		INSERT INTO entity_groups (name, query) VALUES (?, ?)
	`, name, query)
	if err != nil {
		return nil, fmt.Errorf("registry: create group: %w", err)
	}
	id, _ := res.LastInsertId()
	return db.GetGroup(id)
}

// GetGroup returns the group with the given ID.
func (db *DB) GetGroup(id int64) (*models.EntityGroup, error) {
	g := &models.EntityGroup{}
	err := db.conn.QueryRow(`
		SELECT id, name, query FROM entity_groups WHERE id = ?
	`, id).Scan(&g.ID, &g.Name, &g.Query)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("registry: get group: %w", err)
	}
	return g, nil
}

// ListGroups returns all entity groups.
func (db *DB) ListGroups() ([]models.EntityGroup, error) {
	rows, err := db.conn.Query(`SELECT id, name, query FROM entity_groups ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("registry: list groups: %w", err)
	}
	defer rows.Close()

	var out []models.EntityGroup
	for rows.Next() {
		var g models.EntityGroup
		if err := rows.Scan(&g.ID, &g.Name, &g.Query); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// UpdateGroup updates name and query of a group.
func (db *DB) UpdateGroup(id int64, name, query string) error {
	res, err := db.conn.Exec(`
		UPDATE entity_groups SET name = ?, query = ? WHERE id = ?
	`, name, query, id)
	if err != nil {
		return fmt.Errorf("registry: update group: %w", err)
	}
	return requireRow(res)
}

// DeleteGroup removes a group.
func (db *DB) DeleteGroup(id int64) error {
	res, err := db.conn.Exec(`DELETE FROM entity_groups WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("registry: delete group: %w", err)
	}
	return requireRow(res)
}

// MatchGroup returns the entities whose name contains the group's query
// as a substring (case-insensitive). An empty query matches nothing.
func (db *DB) MatchGroup(query string) ([]models.Entity, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	rows, err := db.conn.Query(`
		SELECT id, name, domain_id, metarefresh, metadata_url, created_at, updated_at
		FROM entities
		WHERE name LIKE '%' || ? || '%' ORDER BY name
	`, query)
	if err != nil {
		return nil, fmt.Errorf("registry: match group: %w", err)
	}
	defer rows.Close()
	return collectEntities(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntity(row rowScanner) (*models.Entity, error) {
	e := &models.Entity{}
	var freq string
	err := row.Scan(&e.ID, &e.Name, &e.DomainID, &freq, &e.MetadataURL, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("registry: scan entity: %w", err)
	}
	e.Metarefresh = models.MetarefreshFrequency(freq)
	return e, nil
}

func collectEntities(rows *sql.Rows) ([]models.Entity, error) {
	var out []models.Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apperr.ErrNotFound
	}
	return nil
}
