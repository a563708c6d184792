package project

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"
)

type Repository interface {
	CreateProject(ctx context.Context, p *Project) error
	GetProject(ctx context.Context, id string) (*Project, error)
	GetProjectByPath(ctx context.Context, path string) (*Project, error)
	ListProjects(ctx context.Context) ([]*Project, error)
	DeleteProject(ctx context.Context, id string) error
	UpdateProjectStatus(ctx context.Context, id, status string) error
	UpdateProjectConfig(ctx context.Context, id string, cfg *Configuration) error
	UpdateProjectMeta(ctx context.Context, id string, meta *RecordingMeta) error
	UpdateProjectProbe(ctx context.Context, id string, durationSecs float64, fps, width, height int) error

	CreateExport(ctx context.Context, e *ExportRecord) error
	GetExport(ctx context.Context, id string) (*ExportRecord, error)
	ListExports(ctx context.Context, limit int) ([]*ExportRecord, error)
	ListExportsByProject(ctx context.Context, projectID string) ([]*ExportRecord, error)
	UpdateExportStatus(ctx context.Context, id, status, errorMsg string) error
	UpdateExportProgress(ctx context.Context, id string, framesRendered, totalFrames int) error
	CompleteExport(ctx context.Context, id, outputPath string) error

	CreateShareLink(ctx context.Context, l *ShareLink) error
	ListShareLinks(ctx context.Context, projectID string) ([]*ShareLink, error)
	LatestShareLink(ctx context.Context) (*ShareLink, error)

	GetExportSettings(ctx context.Context, projectID string) (string, error)
	SetExportSettings(ctx context.Context, projectID, settingsJSON string) error

	GetConfig(ctx context.Context, key string) (string, error)
	SetConfig(ctx context.Context, key, value string) error
}

type SQLiteRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) CreateProject(ctx context.Context, p *Project) error {
	configJSON, err := marshalOrEmpty(p.Config)
	if err != nil {
		return err
	}
	metaJSON, err := marshalOrEmpty(p.Meta)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO projects (id, path, pretty_name, platform, duration_secs, fps, width, height, config_json, meta_json, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, p.ID, p.Path, p.PrettyName, nullString(p.Platform), p.DurationSecs, p.FPS, p.Width, p.Height,
		nullString(configJSON), nullString(metaJSON), p.Status,
		p.CreatedAt.Format(time.RFC3339), p.UpdatedAt.Format(time.RFC3339))
	return err
}

func (r *SQLiteRepository) GetProject(ctx context.Context, id string) (*Project, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, path, pretty_name, platform, duration_secs, fps, width, height, config_json, meta_json, status, created_at, updated_at
		FROM projects WHERE id = ?
	`, id)
	return r.scanProject(row)
}

func (r *SQLiteRepository) GetProjectByPath(ctx context.Context, path string) (*Project, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, path, pretty_name, platform, duration_secs, fps, width, height, config_json, meta_json, status, created_at, updated_at
		FROM projects WHERE path = ?
	`, path)
	return r.scanProject(row)
}

func (r *SQLiteRepository) scanProject(row *sql.Row) (*Project, error) {
	var p Project
	var platform, configJSON, metaJSON sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(&p.ID, &p.Path, &p.PrettyName, &platform, &p.DurationSecs, &p.FPS, &p.Width, &p.Height, &configJSON, &metaJSON, &p.Status, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	p.Platform = platform.String
	if err := unmarshalProjectJSON(&p, configJSON.String, metaJSON.String); err != nil {
		return nil, err
	}
	p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	p.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &p, nil
}

func (r *SQLiteRepository) ListProjects(ctx context.Context) ([]*Project, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, path, pretty_name, platform, duration_secs, fps, width, height, config_json, meta_json, status, created_at, updated_at
		FROM projects ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var projects []*Project
	for rows.Next() {
		var p Project
		var platform, configJSON, metaJSON sql.NullString
		var createdAt, updatedAt string

		if err := rows.Scan(&p.ID, &p.Path, &p.PrettyName, &platform, &p.DurationSecs, &p.FPS, &p.Width, &p.Height, &configJSON, &metaJSON, &p.Status, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		p.Platform = platform.String
		if err := unmarshalProjectJSON(&p, configJSON.String, metaJSON.String); err != nil {
			return nil, err
		}
		p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		p.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		projects = append(projects, &p)
	}
	return projects, rows.Err()
}

func (r *SQLiteRepository) DeleteProject(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM projects WHERE id = ?", id)
	return err
}

func (r *SQLiteRepository) UpdateProjectStatus(ctx context.Context, id, status string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE projects SET status = ?, updated_at = ? WHERE id = ?
	`, status, nowRFC3339(), id)
	return err
}

func (r *SQLiteRepository) UpdateProjectConfig(ctx context.Context, id string, cfg *Configuration) error {
	configJSON, err := marshalOrEmpty(cfg)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		UPDATE projects SET config_json = ?, updated_at = ? WHERE id = ?
	`, nullString(configJSON), nowRFC3339(), id)
	return err
}

func (r *SQLiteRepository) UpdateProjectMeta(ctx context.Context, id string, meta *RecordingMeta) error {
	metaJSON, err := marshalOrEmpty(meta)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		UPDATE projects SET meta_json = ?, pretty_name = ?, updated_at = ? WHERE id = ?
	`, nullString(metaJSON), meta.PrettyName, nowRFC3339(), id)
	return err
}

func (r *SQLiteRepository) UpdateProjectProbe(ctx context.Context, id string, durationSecs float64, fps, width, height int) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE projects SET duration_secs = ?, fps = ?, width = ?, height = ?, status = ?, updated_at = ? WHERE id = ?
	`, durationSecs, fps, width, height, StatusReady, nowRFC3339(), id)
	return err
}

func (r *SQLiteRepository) CreateExport(ctx context.Context, e *ExportRecord) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO exports (id, project_id, status, format, destination, settings_json, output_path, error, frames_rendered, total_frames, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.ProjectID, e.Status, e.Format, e.Destination,
		nullString(e.SettingsJSON), nullString(e.OutputPath), nullString(e.Error),
		e.FramesRendered, e.TotalFrames,
		e.CreatedAt.Format(time.RFC3339), e.UpdatedAt.Format(time.RFC3339))
	return err
}

func (r *SQLiteRepository) GetExport(ctx context.Context, id string) (*ExportRecord, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, project_id, status, format, destination, settings_json, output_path, error, frames_rendered, total_frames, created_at, updated_at, completed_at
		FROM exports WHERE id = ?
	`, id)

	var e ExportRecord
	var settingsJSON, outputPath, errMsg, completedAt sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(&e.ID, &e.ProjectID, &e.Status, &e.Format, &e.Destination, &settingsJSON, &outputPath, &errMsg, &e.FramesRendered, &e.TotalFrames, &createdAt, &updatedAt, &completedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	e.SettingsJSON = settingsJSON.String
	e.OutputPath = outputPath.String
	e.Error = errMsg.String
	e.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	e.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	if completedAt.Valid {
		t, err := time.Parse(time.RFC3339, completedAt.String)
		if err == nil {
			e.CompletedAt = &t
		}
	}
	return &e, nil
}

func (r *SQLiteRepository) ListExports(ctx context.Context, limit int) ([]*ExportRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, project_id, status, format, destination, settings_json, output_path, error, frames_rendered, total_frames, created_at, updated_at, completed_at
		FROM exports ORDER BY created_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return r.scanExports(rows)
}

func (r *SQLiteRepository) ListExportsByProject(ctx context.Context, projectID string) ([]*ExportRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, project_id, status, format, destination, settings_json, output_path, error, frames_rendered, total_frames, created_at, updated_at, completed_at
		FROM exports WHERE project_id = ? ORDER BY created_at DESC
	`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return r.scanExports(rows)
}

func (r *SQLiteRepository) scanExports(rows *sql.Rows) ([]*ExportRecord, error) {
	var exports []*ExportRecord
	for rows.Next() {
		var e ExportRecord
		var settingsJSON, outputPath, errMsg, completedAt sql.NullString
		var createdAt, updatedAt string

		if err := rows.Scan(&e.ID, &e.ProjectID, &e.Status, &e.Format, &e.Destination, &settingsJSON, &outputPath, &errMsg, &e.FramesRendered, &e.TotalFrames, &createdAt, &updatedAt, &completedAt); err != nil {
			return nil, err
		}
		e.SettingsJSON = settingsJSON.String
		e.OutputPath = outputPath.String
		e.Error = errMsg.String
		e.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		e.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		if completedAt.Valid {
			t, err := time.Parse(time.RFC3339, completedAt.String)
			if err == nil {
				e.CompletedAt = &t
			}
		}
		exports = append(exports, &e)
	}
	return exports, rows.Err()
}

func (r *SQLiteRepository) UpdateExportStatus(ctx context.Context, id, status, errorMsg string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE exports SET status = ?, error = ?, updated_at = ? WHERE id = ?
	`, status, nullString(errorMsg), nowRFC3339(), id)
	return err
}

func (r *SQLiteRepository) UpdateExportProgress(ctx context.Context, id string, framesRendered, totalFrames int) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE exports SET frames_rendered = ?, total_frames = ?, updated_at = ? WHERE id = ?
	`, framesRendered, totalFrames, nowRFC3339(), id)
	return err
}

func (r *SQLiteRepository) CompleteExport(ctx context.Context, id, outputPath string) error {
	now := nowRFC3339()
	_, err := r.db.ExecContext(ctx, `
		UPDATE exports SET status = ?, output_path = ?, updated_at = ?, completed_at = ? WHERE id = ?
	`, ExportStatusComplete, nullString(outputPath), now, now, id)
	return err
}

func (r *SQLiteRepository) CreateShareLink(ctx context.Context, l *ShareLink) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO share_links (id, project_id, video_id, url, mode, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, l.ID, l.ProjectID, l.VideoID, l.URL, l.Mode, l.CreatedAt.Format(time.RFC3339))
	return err
}

// ListShareLinks returns a project's share history, newest first. An empty
// projectID lists every share.
func (r *SQLiteRepository) ListShareLinks(ctx context.Context, projectID string) ([]*ShareLink, error) {
	query := `
		SELECT id, project_id, video_id, url, mode, created_at
		FROM share_links WHERE project_id = ? ORDER BY created_at DESC
	`
	args := []any{projectID}
	if projectID == "" {
		query = `
			SELECT id, project_id, video_id, url, mode, created_at
			FROM share_links ORDER BY created_at DESC
		`
		args = nil
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var links []*ShareLink
	for rows.Next() {
		var l ShareLink
		var createdAt string
		if err := rows.Scan(&l.ID, &l.ProjectID, &l.VideoID, &l.URL, &l.Mode, &createdAt); err != nil {
			return nil, err
		}
		l.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		links = append(links, &l)
	}
	return links, rows.Err()
}

func (r *SQLiteRepository) LatestShareLink(ctx context.Context) (*ShareLink, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, project_id, video_id, url, mode, created_at
		FROM share_links ORDER BY created_at DESC LIMIT 1
	`)

	var l ShareLink
	var createdAt string
	err := row.Scan(&l.ID, &l.ProjectID, &l.VideoID, &l.URL, &l.Mode, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	l.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &l, nil
}

func (r *SQLiteRepository) GetExportSettings(ctx context.Context, projectID string) (string, error) {
	var settingsJSON string
	err := r.db.QueryRowContext(ctx, "SELECT settings_json FROM export_settings WHERE project_id = ?", projectID).Scan(&settingsJSON)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return settingsJSON, err
}

func (r *SQLiteRepository) SetExportSettings(ctx context.Context, projectID, settingsJSON string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO export_settings (project_id, settings_json, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(project_id) DO UPDATE SET settings_json = excluded.settings_json, updated_at = excluded.updated_at
	`, projectID, settingsJSON, nowRFC3339())
	return err
}

func (r *SQLiteRepository) GetConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, "SELECT value FROM config WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

func (r *SQLiteRepository) SetConfig(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

func unmarshalProjectJSON(p *Project, configJSON, metaJSON string) error {
	if configJSON != "" {
		var cfg Configuration
		if err := json.Unmarshal([]byte(configJSON), &cfg); err != nil {
			return err
		}
		p.Config = &cfg
	}
	if metaJSON != "" {
		var meta RecordingMeta
		if err := json.Unmarshal([]byte(metaJSON), &meta); err != nil {
			return err
		}
		meta.projectPath = p.Path
		p.Meta = &meta
	}
	return nil
}

func marshalOrEmpty(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	// nil pointers encode as JSON null; store as absent instead
	if string(data) == "null" {
		return "", nil
	}
	return string(data), nil
}

func nowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
