package repo

import (
	"context"
	"database/sql"
	"strings"

	"cyclescope/internal/domain"
)

// InsertDiagnostics records the diagnostics of a run in their snapshot order.
func (r Repo) InsertDiagnostics(ctx context.Context, tx *sql.Tx, runID string, items []domain.ValidationItem) error {
	exec := r.execWith(tx)
	for i, v := range items {
		if _, err := exec.ExecContext(ctx, `INSERT INTO diagnostics(run_id,id,code,severity,description,subject_id,seq) VALUES (?,?,?,?,?,?,?)`,
			runID, v.ID, v.Code, string(v.Severity), v.Description, v.SubjectID, i); err != nil {
			return err
		}
	}
	return nil
}

// DiagnosticFilters narrows ListDiagnostics. Empty RunID means every run.
type DiagnosticFilters struct {
	RunID     string
	Severity  string
	Code      string
	SubjectID string
	Limit     int
}

func (r Repo) ListDiagnostics(ctx context.Context, f DiagnosticFilters) ([]domain.Diagnostic, error) {
	clauses := []string{"1=1"}
	var args []any
	if f.RunID != "" {
		clauses = append(clauses, "d.run_id=?")
		args = append(args, f.RunID)
	}
	if f.Severity != "" {
		clauses = append(clauses, "d.severity=?")
		args = append(args, f.Severity)
	}
	if f.Code != "" {
		clauses = append(clauses, "d.code=?")
		args = append(args, f.Code)
	}
	if f.SubjectID != "" {
		clauses = append(clauses, "d.subject_id=?")
		args = append(args, f.SubjectID)
	}
	query := `SELECT d.run_id,d.id,d.code,d.severity,d.description,d.subject_id FROM diagnostics d
JOIN runs r ON r.id=d.run_id WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY r.started_at DESC, d.seq ASC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Diagnostic{}
	for rows.Next() {
		var d domain.Diagnostic
		var severity string
		if err := rows.Scan(&d.RunID, &d.ID, &d.Code, &severity, &d.Description, &d.SubjectID); err != nil {
			return nil, err
		}
		d.Severity = domain.Severity(severity)
		res = append(res, d)
	}
	return res, rows.Err()
}

// CountDiagnosticsByCode tallies one run's diagnostics per code.
func (r Repo) CountDiagnosticsByCode(ctx context.Context, runID string) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT code, COUNT(*) FROM diagnostics WHERE run_id=? GROUP BY code`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := make(map[string]int)
	for rows.Next() {
		var code string
		var n int
		if err := rows.Scan(&code, &n); err != nil {
			return nil, err
		}
		res[code] = n
	}
	return res, rows.Err()
}
