package repo

import (
	"context"
	"database/sql"

	"github.com/karras2025-collab/it-freelance-exchange/internal/domain"
)

const dealColumns = `id,job_id,offer_id,client_id,freelancer_id,status,created_at,completed_at`

func (r Repo) InsertDeal(ctx context.Context, tx *sql.Tx, d domain.Deal) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO deals(`+dealColumns+`) VALUES (?,?,?,?,?,?,?,?)`,
		d.ID, d.JobID, d.OfferID, d.ClientID, d.FreelancerID, d.Status, d.CreatedAt, nullableStringPtr(d.CompletedAt))
	return err
}

func (r Repo) UpdateDealStatus(ctx context.Context, tx *sql.Tx, id, status string, completedAt *string) error {
	_, err := tx.ExecContext(ctx, `UPDATE deals SET status=?, completed_at=? WHERE id=?`,
		status, nullableStringPtr(completedAt), id)
	return err
}

func scanDeal(scan func(dest ...any) error) (domain.Deal, error) {
	var d domain.Deal
	var completedAt sql.NullString
	err := scan(&d.ID, &d.JobID, &d.OfferID, &d.ClientID, &d.FreelancerID, &d.Status, &d.CreatedAt, &completedAt)
	if err == sql.ErrNoRows {
		return d, ErrNotFound
	}
	if err != nil {
		return d, err
	}
	if completedAt.Valid {
		d.CompletedAt = &completedAt.String
	}
	return d, nil
}

func (r Repo) GetDeal(ctx context.Context, id string) (domain.Deal, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+dealColumns+` FROM deals WHERE id=?`, id)
	return scanDeal(row.Scan)
}

func (r Repo) GetDealTx(ctx context.Context, tx *sql.Tx, id string) (domain.Deal, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+dealColumns+` FROM deals WHERE id=?`, id)
	return scanDeal(row.Scan)
}

// HasOpenDealForOfferTx reports whether a non-terminal deal already
// references the offer.
func (r Repo) HasOpenDealForOfferTx(ctx context.Context, tx *sql.Tx, offerID string) (bool, error) {
	var one int
	err := tx.QueryRowContext(ctx, `SELECT 1 FROM deals WHERE offer_id=? AND status=? LIMIT 1`, offerID, domain.DealInProgress).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ListDealsForActor returns deals where the actor is either side.
func (r Repo) ListDealsForActor(ctx context.Context, actorID string) ([]domain.Deal, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+dealColumns+` FROM deals WHERE client_id=? OR freelancer_id=? ORDER BY created_at DESC, id DESC`, actorID, actorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Deal
	for rows.Next() {
		d, err := scanDeal(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, d)
	}
	return res, rows.Err()
}
