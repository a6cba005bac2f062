package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"github.com/karras2025-collab/it-freelance-exchange/internal/domain"
)

const jobColumns = `id,client_id,title,category,skills_json,description,budget_type,budget_value,deadline,status,offer_count,created_at,updated_at`

func (r Repo) InsertJob(ctx context.Context, tx *sql.Tx, j domain.Job) error {
	skills, err := marshalStringSlice(j.Skills)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO jobs(`+jobColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		j.ID, j.ClientID, j.Title, j.Category, skills, nullable(j.Description),
		j.BudgetType, nullable(j.BudgetValue), nullable(j.Deadline), j.Status, j.OfferCount, j.CreatedAt, j.UpdatedAt)
	return err
}

func (r Repo) UpdateJob(ctx context.Context, tx *sql.Tx, j domain.Job) error {
	skills, err := marshalStringSlice(j.Skills)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `UPDATE jobs SET title=?, category=?, skills_json=?, description=?, budget_type=?, budget_value=?, deadline=?, status=?, offer_count=?, updated_at=? WHERE id=?`,
		j.Title, j.Category, skills, nullable(j.Description), j.BudgetType, nullable(j.BudgetValue),
		nullable(j.Deadline), j.Status, j.OfferCount, j.UpdatedAt, j.ID)
	return err
}

func scanJob(scan func(dest ...any) error) (domain.Job, error) {
	var j domain.Job
	var skills, description, budgetValue, deadline sql.NullString
	err := scan(&j.ID, &j.ClientID, &j.Title, &j.Category, &skills, &description,
		&j.BudgetType, &budgetValue, &deadline, &j.Status, &j.OfferCount, &j.CreatedAt, &j.UpdatedAt)
	if err == sql.ErrNoRows {
		return j, ErrNotFound
	}
	if err != nil {
		return j, err
	}
	if skills.Valid && skills.String != "" {
		_ = json.Unmarshal([]byte(skills.String), &j.Skills)
	}
	if description.Valid {
		j.Description = description.String
	}
	if budgetValue.Valid {
		j.BudgetValue = budgetValue.String
	}
	if deadline.Valid {
		j.Deadline = deadline.String
	}
	return j, nil
}

func (r Repo) GetJob(ctx context.Context, id string) (domain.Job, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id=?`, id)
	return scanJob(row.Scan)
}

func (r Repo) GetJobTx(ctx context.Context, tx *sql.Tx, id string) (domain.Job, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id=?`, id)
	return scanJob(row.Scan)
}

type JobFilters struct {
	ClientID string
	Status   string
	Category string
	Limit    int
}

func (r Repo) ListJobs(ctx context.Context, f JobFilters) ([]domain.Job, error) {
	var clauses []string
	var args []any
	if f.ClientID != "" {
		clauses = append(clauses, "client_id=?")
		args = append(args, f.ClientID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.Category != "" {
		clauses = append(clauses, "category=?")
		args = append(args, f.Category)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + jobColumns + ` FROM jobs ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Job
	for rows.Next() {
		j, err := scanJob(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, j)
	}
	return res, rows.Err()
}

// CountOffersForJobTx returns the number of offers referencing a job,
// read in the same transaction as the caller's writes.
func (r Repo) CountOffersForJobTx(ctx context.Context, tx *sql.Tx, jobID string) (int, error) {
	var n int
	err := tx.QueryRowContext(ctx, `SELECT count(*) FROM offers WHERE job_id=?`, jobID).Scan(&n)
	return n, err
}

func marshalStringSlice(in []string) (any, error) {
	if len(in) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(in)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}
