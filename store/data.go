package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"gemscout/dbopen"
	"gemscout/scrape"
)

// ClearData wipes countries, universities, and mappings in one transaction.
// Jobs are kept; they are history, not dataset.
func (s *Store) ClearData(ctx context.Context) error {
	return dbopen.RunTx(ctx, s.db, func(tx *sql.Tx) error {
		for _, table := range []string{"module_mappings", "universities", "countries"} {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return fmt.Errorf("store: clear %s: %w", table, err)
			}
		}
		return nil
	})
}

// UpsertCountry inserts the country if new and returns its ID either way.
func (s *Store) UpsertCountry(ctx context.Context, name string) (int64, error) {
	_, err := dbopen.Exec(ctx, s.db,
		`INSERT INTO countries (name) VALUES (?) ON CONFLICT(name) DO NOTHING`, name)
	if err != nil {
		return 0, fmt.Errorf("store: upsert country %q: %w", name, err)
	}
	var id int64
	err = s.db.QueryRowContext(ctx, `SELECT id FROM countries WHERE name = ?`, name).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("store: lookup country %q: %w", name, err)
	}
	return id, nil
}

// UpsertUniversity inserts the university if new and returns its ID.
func (s *Store) UpsertUniversity(ctx context.Context, countryID int64, name string) (int64, error) {
	_, err := dbopen.Exec(ctx, s.db,
		`INSERT INTO universities (country_id, name) VALUES (?, ?)
		 ON CONFLICT(country_id, name) DO NOTHING`, countryID, name)
	if err != nil {
		return 0, fmt.Errorf("store: upsert university %q: %w", name, err)
	}
	var id int64
	err = s.db.QueryRowContext(ctx,
		`SELECT id FROM universities WHERE country_id = ? AND name = ?`,
		countryID, name).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("store: lookup university %q: %w", name, err)
	}
	return id, nil
}

// BulkInsertMappings inserts all mappings for one university in a single
// transaction and returns how many were written.
func (s *Store) BulkInsertMappings(ctx context.Context, universityID int64, mappings []scrape.Mapping) (int, error) {
	if len(mappings) == 0 {
		return 0, nil
	}
	now := time.Now().UnixMilli()
	err := dbopen.RunTx(ctx, s.db, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO module_mappings (
				university_id, home_module_code, home_module_name, home_module_type,
				partner_module_code, partner_module_name, academic_units,
				approval_status, approval_year, semester, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("store: prepare insert: %w", err)
		}
		defer stmt.Close()

		for _, m := range mappings {
			_, err := stmt.ExecContext(ctx,
				universityID, strings.ToUpper(m.HomeModuleCode), m.HomeModuleName,
				m.HomeModuleType, m.PartnerModuleCode, m.PartnerModuleName,
				m.AcademicUnits, m.ApprovalStatus, m.ApprovalYear, m.Semester, now)
			if err != nil {
				return fmt.Errorf("store: insert mapping %s: %w", m.HomeModuleCode, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(mappings), nil
}

// UniversityMappings is one university's approved mappings for a query,
// grouped by home module code.
type UniversityMappings struct {
	UniversityID int64                       `json:"university_id"`
	University   string                      `json:"university"`
	Country      string                      `json:"country"`
	Modules      map[string][]scrape.Mapping `json:"modules"`
}

// QueryByModules returns every stored university offering at least one of
// the given home modules, optionally restricted to countries. Module codes
// match case-insensitively; results come back ordered by country then
// university name.
func (s *Store) QueryByModules(ctx context.Context, moduleCodes, countries []string) ([]UniversityMappings, error) {
	if len(moduleCodes) == 0 {
		return nil, nil
	}

	var sb strings.Builder
	sb.WriteString(`
		SELECT u.id, u.name, c.name,
		       m.home_module_code, m.home_module_name, m.home_module_type,
		       m.partner_module_code, m.partner_module_name, m.academic_units,
		       m.approval_status, m.approval_year, m.semester
		FROM module_mappings m
		JOIN universities u ON u.id = m.university_id
		JOIN countries c ON c.id = u.country_id
		WHERE m.home_module_code IN (` + placeholders(len(moduleCodes)) + `)`)

	args := make([]any, 0, len(moduleCodes)+len(countries))
	for _, code := range moduleCodes {
		args = append(args, strings.ToUpper(code))
	}
	if len(countries) > 0 {
		sb.WriteString(` AND c.name IN (` + placeholders(len(countries)) + `)`)
		for _, country := range countries {
			args = append(args, country)
		}
	}
	sb.WriteString(` ORDER BY c.name, u.name, m.home_module_code`)

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("store: query by modules: %w", err)
	}
	defer rows.Close()

	var (
		result []UniversityMappings
		byID   = make(map[int64]int)
	)
	for rows.Next() {
		var (
			uniID            int64
			uniName, country string
			m                scrape.Mapping
		)
		err := rows.Scan(&uniID, &uniName, &country,
			&m.HomeModuleCode, &m.HomeModuleName, &m.HomeModuleType,
			&m.PartnerModuleCode, &m.PartnerModuleName, &m.AcademicUnits,
			&m.ApprovalStatus, &m.ApprovalYear, &m.Semester)
		if err != nil {
			return nil, fmt.Errorf("store: scan mapping row: %w", err)
		}

		idx, ok := byID[uniID]
		if !ok {
			idx = len(result)
			byID[uniID] = idx
			result = append(result, UniversityMappings{
				UniversityID: uniID,
				University:   uniName,
				Country:      country,
				Modules:      make(map[string][]scrape.Mapping),
			})
		}
		result[idx].Modules[m.HomeModuleCode] = append(result[idx].Modules[m.HomeModuleCode], m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate mapping rows: %w", err)
	}
	return result, nil
}

// AllModuleCodes returns the distinct home module codes in the dataset.
func (s *Store) AllModuleCodes(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT home_module_code FROM module_mappings ORDER BY home_module_code`)
	if err != nil {
		return nil, fmt.Errorf("store: list module codes: %w", err)
	}
	defer rows.Close()

	var codes []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, fmt.Errorf("store: scan module code: %w", err)
		}
		codes = append(codes, code)
	}
	return codes, rows.Err()
}

// Stats summarises the dataset for health and admin endpoints.
type Stats struct {
	Countries    int   `json:"countries"`
	Universities int   `json:"universities"`
	Mappings     int   `json:"mappings"`
	LastCrawlAt  int64 `json:"last_crawl_at"`
}

// Stats counts the dataset and reports the last completed crawl time.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	row := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM countries),
			(SELECT COUNT(*) FROM universities),
			(SELECT COUNT(*) FROM module_mappings),
			COALESCE((SELECT MAX(completed_at) FROM scrape_jobs WHERE status = 'completed'), 0)`)
	if err := row.Scan(&st.Countries, &st.Universities, &st.Mappings, &st.LastCrawlAt); err != nil {
		return Stats{}, fmt.Errorf("store: stats: %w", err)
	}
	return st, nil
}

// IsPopulated reports whether at least one mapping exists, i.e. whether the
// instant database path can answer queries at all.
func (s *Store) IsPopulated(ctx context.Context) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM module_mappings LIMIT 1`).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("store: check populated: %w", err)
	}
	return true, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
