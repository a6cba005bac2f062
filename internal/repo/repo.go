package repo

import (
	"context"
	"database/sql"
	"errors"

	"github.com/karras2025-collab/it-freelance-exchange/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}

// --- actors ---

func (r Repo) InsertActor(ctx context.Context, tx *sql.Tx, a domain.Actor) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO actors(id,role,display_name,email,company,created_at) VALUES (?,?,?,?,?,?)`,
		a.ID, string(a.Role), a.DisplayName, nullable(a.Email), nullable(a.Company), a.CreatedAt)
	return err
}

func (r Repo) GetActor(ctx context.Context, id string) (domain.Actor, error) {
	var a domain.Actor
	var role string
	var email, company sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT id,role,display_name,email,company,created_at FROM actors WHERE id=?`, id).
		Scan(&a.ID, &role, &a.DisplayName, &email, &company, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	if err != nil {
		return a, err
	}
	a.Role = domain.Role(role)
	if email.Valid {
		a.Email = email.String
	}
	if company.Valid {
		a.Company = company.String
	}
	return a, nil
}

func (r Repo) ListActors(ctx context.Context, role domain.Role) ([]domain.Actor, error) {
	query := `SELECT id,role,display_name,email,company,created_at FROM actors`
	var args []any
	if role != "" {
		query += ` WHERE role=?`
		args = append(args, string(role))
	}
	query += ` ORDER BY created_at DESC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Actor
	for rows.Next() {
		var a domain.Actor
		var roleStr string
		var email, company sql.NullString
		if err := rows.Scan(&a.ID, &roleStr, &a.DisplayName, &email, &company, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.Role = domain.Role(roleStr)
		if email.Valid {
			a.Email = email.String
		}
		if company.Valid {
			a.Company = company.String
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

// --- subscriptions ---

func (r Repo) UpsertSubscription(ctx context.Context, tx *sql.Tx, s domain.Subscription) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO subscriptions(actor_id,plan_id,status,started_at,expires_at) VALUES (?,?,?,?,?)
ON CONFLICT(actor_id) DO UPDATE SET plan_id=excluded.plan_id, status=excluded.status, started_at=excluded.started_at, expires_at=excluded.expires_at`,
		s.ActorID, s.PlanID, s.Status, s.StartedAt, nullableStringPtr(s.ExpiresAt))
	return err
}

func scanSubscription(row *sql.Row) (domain.Subscription, error) {
	var s domain.Subscription
	var expiresAt sql.NullString
	err := row.Scan(&s.ActorID, &s.PlanID, &s.Status, &s.StartedAt, &expiresAt)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	if err != nil {
		return s, err
	}
	if expiresAt.Valid {
		s.ExpiresAt = &expiresAt.String
	}
	return s, nil
}

func (r Repo) GetSubscription(ctx context.Context, actorID string) (domain.Subscription, error) {
	return scanSubscription(r.DB.QueryRowContext(ctx,
		`SELECT actor_id,plan_id,status,started_at,expires_at FROM subscriptions WHERE actor_id=?`, actorID))
}

func (r Repo) GetSubscriptionTx(ctx context.Context, tx *sql.Tx, actorID string) (domain.Subscription, error) {
	return scanSubscription(tx.QueryRowContext(ctx,
		`SELECT actor_id,plan_id,status,started_at,expires_at FROM subscriptions WHERE actor_id=?`, actorID))
}

// --- weekly usage ---

func scanUsage(row *sql.Row) (domain.WeeklyUsage, error) {
	var u domain.WeeklyUsage
	err := row.Scan(&u.ActorID, &u.WeekStart, &u.Count)
	if err == sql.ErrNoRows {
		return u, ErrNotFound
	}
	return u, err
}

func (r Repo) GetWeeklyUsage(ctx context.Context, actorID string) (domain.WeeklyUsage, error) {
	return scanUsage(r.DB.QueryRowContext(ctx,
		`SELECT actor_id,week_start,count FROM weekly_usage WHERE actor_id=?`, actorID))
}

func (r Repo) GetWeeklyUsageTx(ctx context.Context, tx *sql.Tx, actorID string) (domain.WeeklyUsage, error) {
	return scanUsage(tx.QueryRowContext(ctx,
		`SELECT actor_id,week_start,count FROM weekly_usage WHERE actor_id=?`, actorID))
}

// UpsertWeeklyUsage overwrites the stored counter for an actor. The week
// rollover reset relies on this being a full replace, not an increment.
func (r Repo) UpsertWeeklyUsage(ctx context.Context, tx *sql.Tx, u domain.WeeklyUsage) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO weekly_usage(actor_id,week_start,count) VALUES (?,?,?)
ON CONFLICT(actor_id) DO UPDATE SET week_start=excluded.week_start, count=excluded.count`,
		u.ActorID, u.WeekStart, u.Count)
	return err
}
