package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	emberrors "github.com/emberboard/emberboard/internal/errors"
	"github.com/emberboard/emberboard/internal/synonym"
)

// validatePair rejects rules the search engine could never use. The
// parser deliberately lets empty-sided lines through; the store is
// where they stop.
func validatePair(locale, from, to string) error {
	if locale == "" {
		return emberrors.New(emberrors.ErrCodeSynonymInvalid, "locale must not be empty", nil)
	}
	if from == "" || to == "" {
		return emberrors.New(emberrors.ErrCodeSynonymInvalid,
			"a synonym rule needs text on both sides of \"=>\"", nil).
			WithDetail("locale", locale).
			WithDetail("rule", synonym.Pair{From: from, To: to}.String())
	}
	return nil
}

// bumpRevision advances the locale's rule revision inside tx, marking
// the locale's index stale until the next successful sync.
func bumpRevision(ctx context.Context, tx *sql.Tx, locale string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO synonym_revisions (locale, revision, synced_revision)
		VALUES (?, 1, 0)
		ON CONFLICT(locale) DO UPDATE SET revision = revision + 1
	`, locale)
	if err != nil {
		return emberrors.StoreError("bump revision", err)
	}
	return nil
}

// AddRule stores one rule for a locale. Both sides are trimmed and must
// be non-empty. Adding a pair the locale already has is idempotent: the
// existing rule is returned and the revision is not bumped.
func (s *Store) AddRule(ctx context.Context, locale, from, to string) (*synonym.Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	locale = strings.TrimSpace(locale)
	from = strings.TrimSpace(from)
	to = strings.TrimSpace(to)
	if err := validatePair(locale, from, to); err != nil {
		return nil, err
	}

	tx, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx, `
		INSERT INTO synonym_rules (locale, from_terms, to_terms, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(locale, from_terms, to_terms) DO NOTHING
	`, locale, from, to, now, now)
	if err != nil {
		return nil, emberrors.StoreError("insert rule", err)
	}

	inserted, err := res.RowsAffected()
	if err != nil {
		return nil, emberrors.StoreError("rows affected", err)
	}
	if inserted > 0 {
		if err := bumpRevision(ctx, tx, locale); err != nil {
			return nil, err
		}
	}

	var rule synonym.Rule
	err = tx.QueryRowContext(ctx, `
		SELECT id, locale, from_terms, to_terms, created_at, updated_at
		FROM synonym_rules
		WHERE locale = ? AND from_terms = ? AND to_terms = ?
	`, locale, from, to).Scan(&rule.ID, &rule.Locale, &rule.From, &rule.To, &rule.CreatedAt, &rule.UpdatedAt)
	if err != nil {
		return nil, emberrors.StoreError("read back rule", err)
	}

	if err := commit(tx); err != nil {
		return nil, err
	}
	return &rule, nil
}

// DeleteRule removes a rule by ID and bumps its locale's revision.
func (s *Store) DeleteRule(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}

	tx, err := s.begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var locale string
	err = tx.QueryRowContext(ctx, `SELECT locale FROM synonym_rules WHERE id = ?`, id).Scan(&locale)
	if errors.Is(err, sql.ErrNoRows) {
		return emberrors.New(emberrors.ErrCodeNotFound,
			fmt.Sprintf("no synonym rule with id %d", id), nil)
	}
	if err != nil {
		return emberrors.StoreError("look up rule", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM synonym_rules WHERE id = ?`, id); err != nil {
		return emberrors.StoreError("delete rule", err)
	}
	if err := bumpRevision(ctx, tx, locale); err != nil {
		return err
	}
	return commit(tx)
}

// ListRules returns a locale's rules ordered by (from, to), the same
// order the compiler emits, so listings and compiled filters line up.
func (s *Store) ListRules(ctx context.Context, locale string) ([]synonym.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, locale, from_terms, to_terms, created_at, updated_at
		FROM synonym_rules
		WHERE locale = ?
		ORDER BY from_terms, to_terms
	`, locale)
	if err != nil {
		return nil, emberrors.StoreError("list rules", err)
	}
	defer rows.Close()

	var rules []synonym.Rule
	for rows.Next() {
		var r synonym.Rule
		if err := rows.Scan(&r.ID, &r.Locale, &r.From, &r.To, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, emberrors.StoreError("scan rule", err)
		}
		rules = append(rules, r)
	}
	if err := rows.Err(); err != nil {
		return nil, emberrors.StoreError("iterate rules", err)
	}
	return rules, nil
}

// ReplaceRules swaps a locale's entire rule set in one transaction.
// Pairs are trimmed, validated, and deduplicated first; one bad pair
// rejects the whole import. Replacing a set with an identical one is a
// no-op that leaves the revision alone, so re-importing an unchanged
// file does not force a pointless index rebuild.
func (s *Store) ReplaceRules(ctx context.Context, locale string, pairs []synonym.Pair) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}

	locale = strings.TrimSpace(locale)
	cleaned := make([]synonym.Pair, 0, len(pairs))
	seen := make(map[synonym.Pair]struct{}, len(pairs))
	for _, p := range pairs {
		p.From = strings.TrimSpace(p.From)
		p.To = strings.TrimSpace(p.To)
		if err := validatePair(locale, p.From, p.To); err != nil {
			return err
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		cleaned = append(cleaned, p)
	}

	tx, err := s.begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	current, err := currentPairs(ctx, tx, locale)
	if err != nil {
		return err
	}
	if samePairSet(current, seen) {
		return commit(tx)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM synonym_rules WHERE locale = ?`, locale); err != nil {
		return emberrors.StoreError("clear rules", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO synonym_rules (locale, from_terms, to_terms, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return emberrors.StoreError("prepare insert", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, p := range cleaned {
		if _, err := stmt.ExecContext(ctx, locale, p.From, p.To, now, now); err != nil {
			return emberrors.StoreError("insert rule", err)
		}
	}

	if err := bumpRevision(ctx, tx, locale); err != nil {
		return err
	}
	return commit(tx)
}

func currentPairs(ctx context.Context, tx *sql.Tx, locale string) (map[synonym.Pair]struct{}, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT from_terms, to_terms FROM synonym_rules WHERE locale = ?`, locale)
	if err != nil {
		return nil, emberrors.StoreError("read current rules", err)
	}
	defer rows.Close()

	current := make(map[synonym.Pair]struct{})
	for rows.Next() {
		var p synonym.Pair
		if err := rows.Scan(&p.From, &p.To); err != nil {
			return nil, emberrors.StoreError("scan rule", err)
		}
		current[p] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, emberrors.StoreError("iterate rules", err)
	}
	return current, nil
}

func samePairSet(a, b map[synonym.Pair]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for p := range a {
		if _, ok := b[p]; !ok {
			return false
		}
	}
	return true
}

// ExportRules renders a locale's rules in the canonical text form,
// which round-trips through synonym.Parse.
func (s *Store) ExportRules(ctx context.Context, locale string) (string, error) {
	rules, err := s.ListRules(ctx, locale)
	if err != nil {
		return "", err
	}
	return synonym.Serialize(rules), nil
}

// SyncState reports the locale's rule revision against the revision its
// index was last rebuilt at. A locale with no recorded mutations is in
// sync at revision zero.
func (s *Store) SyncState(ctx context.Context, locale string) (SyncState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return SyncState{}, err
	}

	state := SyncState{Locale: locale}
	err := s.db.QueryRowContext(ctx, `
		SELECT revision, synced_revision FROM synonym_revisions WHERE locale = ?
	`, locale).Scan(&state.Revision, &state.SyncedRevision)
	if errors.Is(err, sql.ErrNoRows) {
		return state, nil
	}
	if err != nil {
		return SyncState{}, emberrors.StoreError("read sync state", err)
	}
	return state, nil
}

// MarkSynced records that the locale's index now reflects the given
// revision. Called by the synchronizer after a successful rebuild; if
// rules changed while the rebuild ran, revision has already moved past
// the recorded value and the locale stays stale.
func (s *Store) MarkSynced(ctx context.Context, locale string, revision int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO synonym_revisions (locale, revision, synced_revision)
		VALUES (?, ?, ?)
		ON CONFLICT(locale) DO UPDATE SET synced_revision = excluded.synced_revision
	`, locale, revision, revision)
	if err != nil {
		return emberrors.StoreError("mark synced", err)
	}
	return nil
}

// Locales lists every locale the store knows about, whether it got
// there through synonym edits or forum content.
func (s *Store) Locales(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT locale FROM synonym_revisions
		UNION
		SELECT locale FROM threads
		ORDER BY locale
	`)
	if err != nil {
		return nil, emberrors.StoreError("list locales", err)
	}
	defer rows.Close()

	var locales []string
	for rows.Next() {
		var locale string
		if err := rows.Scan(&locale); err != nil {
			return nil, emberrors.StoreError("scan locale", err)
		}
		locales = append(locales, locale)
	}
	if err := rows.Err(); err != nil {
		return nil, emberrors.StoreError("iterate locales", err)
	}
	return locales, nil
}
