package repo

import (
	"context"
	"database/sql"

	"github.com/karras2025-collab/it-freelance-exchange/internal/domain"
)

const offerColumns = `id,job_id,freelancer_id,price,eta,message,status,created_at`

func (r Repo) InsertOffer(ctx context.Context, tx *sql.Tx, o domain.Offer) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO offers(`+offerColumns+`) VALUES (?,?,?,?,?,?,?,?)`,
		o.ID, o.JobID, o.FreelancerID, nullable(o.Price), nullable(o.ETA), nullable(o.Message), o.Status, o.CreatedAt)
	return err
}

func (r Repo) UpdateOfferStatus(ctx context.Context, tx *sql.Tx, id, status string) error {
	_, err := tx.ExecContext(ctx, `UPDATE offers SET status=? WHERE id=?`, status, id)
	return err
}

func scanOffer(scan func(dest ...any) error) (domain.Offer, error) {
	var o domain.Offer
	var price, eta, message sql.NullString
	err := scan(&o.ID, &o.JobID, &o.FreelancerID, &price, &eta, &message, &o.Status, &o.CreatedAt)
	if err == sql.ErrNoRows {
		return o, ErrNotFound
	}
	if err != nil {
		return o, err
	}
	if price.Valid {
		o.Price = price.String
	}
	if eta.Valid {
		o.ETA = eta.String
	}
	if message.Valid {
		o.Message = message.String
	}
	return o, nil
}

func (r Repo) GetOffer(ctx context.Context, id string) (domain.Offer, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+offerColumns+` FROM offers WHERE id=?`, id)
	return scanOffer(row.Scan)
}

func (r Repo) GetOfferTx(ctx context.Context, tx *sql.Tx, id string) (domain.Offer, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+offerColumns+` FROM offers WHERE id=?`, id)
	return scanOffer(row.Scan)
}

// OfferExistsTx reports whether the freelancer already has an offer on the job.
func (r Repo) OfferExistsTx(ctx context.Context, tx *sql.Tx, jobID, freelancerID string) (bool, error) {
	var one int
	err := tx.QueryRowContext(ctx, `SELECT 1 FROM offers WHERE job_id=? AND freelancer_id=? LIMIT 1`, jobID, freelancerID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// OfferExistsWithStatusTx reports whether the job carries any offer in
// the given status.
func (r Repo) OfferExistsWithStatusTx(ctx context.Context, tx *sql.Tx, jobID, status string) (bool, error) {
	var one int
	err := tx.QueryRowContext(ctx, `SELECT 1 FROM offers WHERE job_id=? AND status=? LIMIT 1`, jobID, status).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r Repo) listOffers(ctx context.Context, where string, args ...any) ([]domain.Offer, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+offerColumns+` FROM offers `+where+` ORDER BY created_at DESC, id DESC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Offer
	for rows.Next() {
		o, err := scanOffer(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, o)
	}
	return res, rows.Err()
}

func (r Repo) ListOffersForJob(ctx context.Context, jobID string) ([]domain.Offer, error) {
	return r.listOffers(ctx, `WHERE job_id=?`, jobID)
}

func (r Repo) ListOffersForFreelancer(ctx context.Context, freelancerID string) ([]domain.Offer, error) {
	return r.listOffers(ctx, `WHERE freelancer_id=?`, freelancerID)
}
