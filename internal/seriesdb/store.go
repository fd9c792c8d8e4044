package seriesdb

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/pwci/pw-ci/internal/domain"
	_ "modernc.org/sqlite"
)

// Store provides SQLite-backed persistence for tracked series, per-patch
// CI builds and recheck bookkeeping. Every call is a single short
// statement; mutations are safe to repeat with the same logical effect.
type Store struct {
	db *sql.DB
}

// New creates a new Store with the given database path
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		return nil, err
	}

	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// syncColumn maps a provider to its sync-flag column. The set is closed;
// callers never hand us column names.
func syncColumn(p domain.ProviderID) (string, error) {
	switch p {
	case domain.ProviderGitHub:
		return "github_sync", nil
	case domain.ProviderTravis:
		return "travis_sync", nil
	case domain.ProviderCirrus:
		return "cirrus_sync", nil
	case domain.ProviderDummy:
		return "dummy_sync", nil
	}
	return "", fmt.Errorf("unknown provider %q", p)
}

// SeriesExists checks whether a series is already tracked
func (s *Store) SeriesExists(instance string, seriesID int) (bool, error) {
	var id int
	err := s.db.QueryRow(
		`SELECT series_id FROM series WHERE instance = ? AND series_id = ?`,
		instance, seriesID).Scan(&id)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// AddSeries records a newly observed series. Callers must check
// SeriesExists first; inserting a duplicate (instance, series_id) is an
// error, not an upsert.
func (s *Store) AddSeries(instance, project string, seriesID int, url, submitter, email string, completed bool) error {
	completedInt := 0
	if completed {
		completedInt = 1
	}
	_, err := s.db.Exec(`
		INSERT INTO series (series_id, project, url, submitter, email, submitted, completed, instance, downloaded)
		VALUES (?, ?, ?, ?, ?, FALSE, ?, ?, 0)
	`, seriesID, project, url, submitter, email, completedInt, instance)
	return err
}

// SeriesRow is the slice of series columns the lifecycle passes consume
type SeriesRow struct {
	SeriesID  int
	URL       string
	Submitter string
	Email     string
}

// GetUncompletedSeries returns series still waiting for all patches
func (s *Store) GetUncompletedSeries(instance, project string) ([]SeriesRow, error) {
	return s.querySeries(`
		SELECT series_id, url, submitter, email FROM series
		WHERE instance = ? AND project = ?
		AND completed = 0 AND submitted = FALSE AND downloaded = 0
		ORDER BY series_id
	`, instance, project)
}

// GetUnsubmittedSeries returns completed series not yet submitted
func (s *Store) GetUnsubmittedSeries(instance, project string) ([]SeriesRow, error) {
	return s.querySeries(`
		SELECT series_id, url, submitter, email FROM series
		WHERE instance = ? AND project = ?
		AND completed = 1 AND submitted = FALSE
		ORDER BY series_id
	`, instance, project)
}

// SeriesInfo is the full series row, for operator inspection
type SeriesInfo struct {
	SeriesID  int
	Project   string
	URL       string
	Submitter string
	Email     string
	Submitted bool
	Completed bool
	Branch    string
	Repo      string
}

// ListSeries returns every tracked series for an instance and project
func (s *Store) ListSeries(instance, project string) ([]SeriesInfo, error) {
	rows, err := s.db.Query(`
		SELECT series_id, project, url, submitter, email, submitted, completed, branch, repo
		FROM series WHERE instance = ? AND project = ?
		ORDER BY series_id
	`, instance, project)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []SeriesInfo
	for rows.Next() {
		info, err := scanSeriesInfo(rows.Scan)
		if err != nil {
			return nil, err
		}
		result = append(result, *info)
	}
	return result, rows.Err()
}

// GetSeriesInfo returns one tracked series; found reports presence
func (s *Store) GetSeriesInfo(instance string, seriesID int) (*SeriesInfo, bool, error) {
	row := s.db.QueryRow(`
		SELECT series_id, project, url, submitter, email, submitted, completed, branch, repo
		FROM series WHERE instance = ? AND series_id = ?
	`, instance, seriesID)

	info, err := scanSeriesInfo(row.Scan)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return info, true, nil
}

func scanSeriesInfo(scan func(dest ...interface{}) error) (*SeriesInfo, error) {
	var info SeriesInfo
	var branch, repo sql.NullString
	err := scan(&info.SeriesID, &info.Project, &info.URL, &info.Submitter,
		&info.Email, &info.Submitted, &info.Completed, &branch, &repo)
	if err != nil {
		return nil, err
	}
	info.Branch = branch.String
	info.Repo = repo.String
	return &info, nil
}

func (s *Store) querySeries(query string, args ...interface{}) ([]SeriesRow, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []SeriesRow
	for rows.Next() {
		var r SeriesRow
		if err := rows.Scan(&r.SeriesID, &r.URL, &r.Submitter, &r.Email); err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

// SetSeriesCompleted marks a series as having all patches received.
// Idempotent; completed never flips back.
func (s *Store) SetSeriesCompleted(instance string, seriesID int) error {
	_, err := s.db.Exec(
		`UPDATE series SET completed = 1 WHERE instance = ? AND series_id = ?`,
		instance, seriesID)
	return err
}

// SetSeriesSubmitted marks a series as delivered downstream. Idempotent.
func (s *Store) SetSeriesSubmitted(instance string, seriesID int) error {
	_, err := s.db.Exec(
		`UPDATE series SET submitted = TRUE WHERE instance = ? AND series_id = ?`,
		instance, seriesID)
	return err
}

// SetSeriesBranch records the CI branch and repo allocated to a series
func (s *Store) SetSeriesBranch(instance string, seriesID int, repo, branch string) error {
	_, err := s.db.Exec(
		`UPDATE series SET branch = ?, repo = ? WHERE instance = ? AND series_id = ?`,
		branch, repo, instance, seriesID)
	return err
}

// ClearSeriesBranch releases a series' CI branch. The branch is set to the
// empty string, not NULL, so the active-branch predicate stays uniform.
func (s *Store) ClearSeriesBranch(instance string, seriesID int) error {
	_, err := s.db.Exec(
		`UPDATE series SET branch = '' WHERE instance = ? AND series_id = ?`,
		instance, seriesID)
	return err
}

// ActiveBranch is a series with a CI branch currently allocated
type ActiveBranch struct {
	SeriesID int
	Project  string
	URL      string
	Branch   string
	Repo     string
}

// GetActiveBranches returns series with a non-empty CI branch
func (s *Store) GetActiveBranches(instance string) ([]ActiveBranch, error) {
	rows, err := s.db.Query(`
		SELECT series_id, project, url, branch, repo FROM series
		WHERE instance = ? AND branch IS NOT NULL AND branch != ''
		ORDER BY series_id
	`, instance)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []ActiveBranch
	for rows.Next() {
		var b ActiveBranch
		var repo sql.NullString
		if err := rows.Scan(&b.SeriesID, &b.Project, &b.URL, &b.Branch, &repo); err != nil {
			return nil, err
		}
		b.Repo = repo.String
		result = append(result, b)
	}
	return result, rows.Err()
}

// InsertBuild creates a build row with all provider sync flags unset
func (s *Store) InsertBuild(seriesID, patchID int, patchURL, patchName, sha, instance, project, repoName string) error {
	_, err := s.db.Exec(`
		INSERT INTO builds (series_id, patch_id, patch_url, patch_name, sha, instance, project, repo_name,
			github_sync, travis_sync, cirrus_sync, dummy_sync)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, 0, 0, 0)
	`, seriesID, patchID, patchURL, patchName, sha, instance, project, repoName)
	return err
}

// GetUnsyncedBuilds returns the work queue for a provider: builds whose
// sync flag for that provider is still unset, in ascending series order.
func (s *Store) GetUnsyncedBuilds(instance string, p domain.ProviderID) ([]domain.Build, error) {
	col, err := syncColumn(p)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(fmt.Sprintf(`
		SELECT series_id, patch_id, patch_url, patch_name, sha, instance, project, repo_name,
			github_sync, travis_sync, cirrus_sync, dummy_sync
		FROM builds WHERE instance = ? AND %s = 0
		ORDER BY series_id
	`, col), instance)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var builds []domain.Build
	for rows.Next() {
		var b domain.Build
		if err := rows.Scan(&b.SeriesID, &b.PatchID, &b.PatchURL, &b.PatchName, &b.SHA,
			&b.Instance, &b.Project, &b.RepoName,
			&b.GitHubSync, &b.TravisSync, &b.CirrusSync, &b.DummySync); err != nil {
			return nil, err
		}
		builds = append(builds, b)
	}
	return builds, rows.Err()
}

// SetBuildSynced flips exactly one provider's sync flag for a patch.
// Other providers' flags are untouched.
func (s *Store) SetBuildSynced(instance string, patchID int, p domain.ProviderID) error {
	col, err := syncColumn(p)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(fmt.Sprintf(
		`UPDATE builds SET %s = 1 WHERE instance = ? AND patch_id = ?`, col),
		instance, patchID)
	return err
}

// GetPatchIDBySeriesAndSha looks up the patch a commit belongs to.
// The second return is false when no build matches.
func (s *Store) GetPatchIDBySeriesAndSha(seriesID int, sha, instance string) (int, bool, error) {
	var patchID int
	err := s.db.QueryRow(`
		SELECT patch_id FROM builds
		WHERE instance = ? AND series_id = ? AND sha = ?
	`, instance, seriesID, sha).Scan(&patchID)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return patchID, true, nil
}

// RecheckRequestExists checks the recheck dedup key
func (s *Store) RecheckRequestExists(instance, messageID, ciName string) (bool, error) {
	var id int
	err := s.db.QueryRow(`
		SELECT id FROM recheck_requests
		WHERE instance = ? AND message_id = ? AND ci_name = ?
	`, instance, messageID, ciName).Scan(&id)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// InsertRecheckRequest records a detected recheck request, once per
// (instance, message_id, ci_name)
func (s *Store) InsertRecheckRequest(r *domain.RecheckRequest) error {
	exists, err := s.RecheckRequestExists(r.Instance, r.MessageID, r.CIName)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	_, err = s.db.Exec(`
		INSERT INTO recheck_requests (message_id, requested_by, series_ref, patch_id, ci_name, instance, project, synced)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0)
	`, r.MessageID, r.RequestedBy, r.SeriesRef, r.PatchID, r.CIName, r.Instance, r.Project)
	return err
}

// GetUnsyncedRecheckRequests returns recheck requests not yet dispatched
func (s *Store) GetUnsyncedRecheckRequests(instance string) ([]domain.RecheckRequest, error) {
	rows, err := s.db.Query(`
		SELECT id, message_id, requested_by, series_ref, COALESCE(patch_id, 0), ci_name, instance, project, synced
		FROM recheck_requests WHERE instance = ? AND synced = 0
		ORDER BY id
	`, instance)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.RecheckRequest
	for rows.Next() {
		var r domain.RecheckRequest
		if err := rows.Scan(&r.ID, &r.MessageID, &r.RequestedBy, &r.SeriesRef, &r.PatchID,
			&r.CIName, &r.Instance, &r.Project, &r.Synced); err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

// SetRecheckSynced marks a recheck request as dispatched
func (s *Store) SetRecheckSynced(id int) error {
	_, err := s.db.Exec(`UPDATE recheck_requests SET synced = 1 WHERE id = ?`, id)
	return err
}

// GetMarker returns the discovery watermark for an (instance, project),
// or the zero time when none has been recorded
func (s *Store) GetMarker(instance, project string) (time.Time, error) {
	var t time.Time
	err := s.db.QueryRow(
		`SELECT checked_at FROM markers WHERE instance = ? AND project = ?`,
		instance, project).Scan(&t)
	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	return t, nil
}

// SetMarker persists the discovery watermark
func (s *Store) SetMarker(instance, project string, t time.Time) error {
	_, err := s.db.Exec(`
		INSERT INTO markers (instance, project, checked_at) VALUES (?, ?, ?)
		ON CONFLICT(instance, project) DO UPDATE SET checked_at = excluded.checked_at
	`, instance, project, t)
	return err
}
