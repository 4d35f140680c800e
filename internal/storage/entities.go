package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/blackwhitehere/acme-data-dash/internal/connection"
	"github.com/blackwhitehere/acme-data-dash/internal/secret"
)

// DataSource pairs a connection profile with a secret. IsValid records
// whether both existed when the data source was last saved; later deletes do
// not change it.
type DataSource struct {
	Name           string `json:"name"`
	ConnectionName string `json:"connection_name"`
	SecretKey      string `json:"secret_key"`
	IsValid        bool   `json:"is_valid"`
}

// UnixGroup is display-only configuration; checks never read it.
type UnixGroup struct {
	GroupName   string `json:"group_name"`
	FilePath    string `json:"file_path"`
	Permissions string `json:"permissions"`
}

// --- Connection profiles ---

// Profiles returns every stored connection profile ordered by name.
func (d *DB) Profiles(ctx context.Context) ([]connection.Profile, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT name, driver, connection_string_template, connection_type, secret_ref FROM connection_profiles ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("querying connection profiles: %w", err)
	}
	defer rows.Close()

	profiles := []connection.Profile{}
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning connection profile: %w", err)
		}
		profiles = append(profiles, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating connection profiles: %w", err)
	}
	return profiles, nil
}

// Profile returns the named profile. found is false when it does not exist.
func (d *DB) Profile(ctx context.Context, name string) (connection.Profile, bool, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT name, driver, connection_string_template, connection_type, secret_ref FROM connection_profiles WHERE name = ?`, name)
	p, err := scanProfile(row)
	if err == sql.ErrNoRows {
		return connection.Profile{}, false, nil
	}
	if err != nil {
		return connection.Profile{}, false, fmt.Errorf("querying connection profile %q: %w", name, err)
	}
	return p, true, nil
}

// SaveProfile inserts p or overwrites the profile with the same name.
func (d *DB) SaveProfile(ctx context.Context, p connection.Profile) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO connection_profiles (name, driver, connection_string_template, connection_type, secret_ref)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			driver = excluded.driver,
			connection_string_template = excluded.connection_string_template,
			connection_type = excluded.connection_type,
			secret_ref = excluded.secret_ref`,
		p.Name, p.Driver, p.Template, nullString(p.Type), nullString(p.SecretRef),
	)
	if err != nil {
		return fmt.Errorf("saving connection profile %q: %w", p.Name, err)
	}
	return nil
}

// DeleteProfile removes the named profile. Deleting a missing profile is not an error.
func (d *DB) DeleteProfile(ctx context.Context, name string) error {
	if _, err := d.db.ExecContext(ctx, `DELETE FROM connection_profiles WHERE name = ?`, name); err != nil {
		return fmt.Errorf("deleting connection profile %q: %w", name, err)
	}
	return nil
}

func scanProfile(row scanner) (connection.Profile, error) {
	var p connection.Profile
	var connType, secretRef sql.NullString
	if err := row.Scan(&p.Name, &p.Driver, &p.Template, &connType, &secretRef); err != nil {
		return connection.Profile{}, err
	}
	p.Type = stringPtr(connType)
	p.SecretRef = stringPtr(secretRef)
	return p, nil
}

// --- Secrets ---

// SecretKeys lists stored secret keys ordered by key. Values are never listed.
func (d *DB) SecretKeys(ctx context.Context) ([]string, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT key FROM secrets ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("querying secret keys: %w", err)
	}
	defer rows.Close()

	keys := []string{}
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scanning secret key: %w", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating secret keys: %w", err)
	}
	return keys, nil
}

// Secret returns the stored value for key.
func (d *DB) Secret(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := d.db.QueryRowContext(ctx, `SELECT value FROM secrets WHERE key = ?`, key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("querying secret: %w", err)
	}
	return v, true, nil
}

// SaveSecret inserts or overwrites key.
func (d *DB) SaveSecret(ctx context.Context, key, value string) error {
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO secrets (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("saving secret %q: %w", key, err)
	}
	return nil
}

func (d *DB) DeleteSecret(ctx context.Context, key string) error {
	if _, err := d.db.ExecContext(ctx, `DELETE FROM secrets WHERE key = ?`, key); err != nil {
		return fmt.Errorf("deleting secret %q: %w", key, err)
	}
	return nil
}

// --- Data sources ---

func (d *DB) DataSources(ctx context.Context) ([]DataSource, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT name, connection_name, secret_key, is_valid FROM data_sources ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("querying data sources: %w", err)
	}
	defer rows.Close()

	sources := []DataSource{}
	for rows.Next() {
		var ds DataSource
		if err := rows.Scan(&ds.Name, &ds.ConnectionName, &ds.SecretKey, &ds.IsValid); err != nil {
			return nil, fmt.Errorf("scanning data source: %w", err)
		}
		sources = append(sources, ds)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating data sources: %w", err)
	}
	return sources, nil
}

// SaveDataSource upserts a data source, computing IsValid from whether the
// referenced profile and secret exist right now. The existence checks and the
// write share one transaction.
func (d *DB) SaveDataSource(ctx context.Context, name, connectionName, secretKey string) (DataSource, error) {
	ds := DataSource{Name: name, ConnectionName: connectionName, SecretKey: secretKey}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return ds, fmt.Errorf("saving data source %q: %w", name, err)
	}
	defer tx.Rollback()

	var connExists, secretExists bool
	if err := tx.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM connection_profiles WHERE name = ?)`, connectionName,
	).Scan(&connExists); err != nil {
		return ds, fmt.Errorf("checking connection %q: %w", connectionName, err)
	}
	if err := tx.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM secrets WHERE key = ?)`, secretKey,
	).Scan(&secretExists); err != nil {
		return ds, fmt.Errorf("checking secret %q: %w", secretKey, err)
	}
	ds.IsValid = connExists && secretExists

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO data_sources (name, connection_name, secret_key, is_valid)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			connection_name = excluded.connection_name,
			secret_key = excluded.secret_key,
			is_valid = excluded.is_valid`,
		name, connectionName, secretKey, ds.IsValid,
	); err != nil {
		return ds, fmt.Errorf("saving data source %q: %w", name, err)
	}
	if err := tx.Commit(); err != nil {
		return ds, fmt.Errorf("committing data source %q: %w", name, err)
	}
	return ds, nil
}

func (d *DB) DeleteDataSource(ctx context.Context, name string) error {
	if _, err := d.db.ExecContext(ctx, `DELETE FROM data_sources WHERE name = ?`, name); err != nil {
		return fmt.Errorf("deleting data source %q: %w", name, err)
	}
	return nil
}

// --- Unix groups ---

func (d *DB) UnixGroups(ctx context.Context) ([]UnixGroup, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT group_name, file_path, permissions FROM unix_groups ORDER BY group_name`)
	if err != nil {
		return nil, fmt.Errorf("querying unix groups: %w", err)
	}
	defer rows.Close()

	groups := []UnixGroup{}
	for rows.Next() {
		var g UnixGroup
		if err := rows.Scan(&g.GroupName, &g.FilePath, &g.Permissions); err != nil {
			return nil, fmt.Errorf("scanning unix group: %w", err)
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating unix groups: %w", err)
	}
	return groups, nil
}

func (d *DB) SaveUnixGroup(ctx context.Context, g UnixGroup) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO unix_groups (group_name, file_path, permissions)
		VALUES (?, ?, ?)
		ON CONFLICT(group_name) DO UPDATE SET
			file_path = excluded.file_path,
			permissions = excluded.permissions`,
		g.GroupName, g.FilePath, g.Permissions,
	)
	if err != nil {
		return fmt.Errorf("saving unix group %q: %w", g.GroupName, err)
	}
	return nil
}

func (d *DB) DeleteUnixGroup(ctx context.Context, groupName string) error {
	if _, err := d.db.ExecContext(ctx, `DELETE FROM unix_groups WHERE group_name = ?`, groupName); err != nil {
		return fmt.Errorf("deleting unix group %q: %w", groupName, err)
	}
	return nil
}

var (
	_ connection.Source = (*DB)(nil)
	_ secret.Lookup     = (*DB)(nil)
)
