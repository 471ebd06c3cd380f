package repository

import (
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/affiliatehq/outreach-backend/internal/model"
)

type ABTestRepositoryInterface interface {
	CreateTest(t *model.ABTest) error
	GetByID(id uuid.UUID) (*model.ABTest, error)
	GetResult(abTestID, variantID uuid.UUID) (*model.ABTestResult, error)
	IncrementSent(abTestID, variantID uuid.UUID) error
	UpdateRates(result *model.ABTestResult) error
	ListResults(abTestID uuid.UUID) ([]*model.ABTestResult, error)
}

type ABTestRepository struct {
	DB *sql.DB
}

func (r *ABTestRepository) CreateTest(t *model.ABTest) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	t.CreatedAt = time.Now()
	query := `INSERT INTO ab_tests (id, campaign_id, name, created_at) VALUES ($1,$2,$3,$4)`
	if _, err := r.DB.Exec(query, t.ID, t.CampaignID, t.Name, t.CreatedAt); err != nil {
		return err
	}
	for i := range t.Variants {
		v := &t.Variants[i]
		if v.ID == uuid.Nil {
			v.ID = uuid.New()
		}
		v.ABTestID = t.ID
		vq := `INSERT INTO ab_variants (id, ab_test_id, template_id, weight) VALUES ($1,$2,$3,$4)`
		if _, err := r.DB.Exec(vq, v.ID, v.ABTestID, v.TemplateID, v.Weight); err != nil {
			return err
		}
	}
	return nil
}

func (r *ABTestRepository) GetByID(id uuid.UUID) (*model.ABTest, error) {
	query := `SELECT id, campaign_id, name, created_at FROM ab_tests WHERE id=$1`
	var t model.ABTest
	err := r.DB.QueryRow(query, id).Scan(&t.ID, &t.CampaignID, &t.Name, &t.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	rows, err := r.DB.Query(`SELECT id, ab_test_id, template_id, weight FROM ab_variants WHERE ab_test_id=$1`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var v model.ABVariant
		if err := rows.Scan(&v.ID, &v.ABTestID, &v.TemplateID, &v.Weight); err != nil {
			return nil, err
		}
		t.Variants = append(t.Variants, v)
	}
	return &t, rows.Err()
}

func (r *ABTestRepository) GetResult(abTestID, variantID uuid.UUID) (*model.ABTestResult, error) {
	query := `
        SELECT id, ab_test_id, variant_id, sent_count, open_rate, click_rate, reply_rate, positive_response_rate, updated_at
        FROM ab_test_results WHERE ab_test_id=$1 AND variant_id=$2
    `
	var res model.ABTestResult
	err := r.DB.QueryRow(query, abTestID, variantID).Scan(
		&res.ID, &res.ABTestID, &res.VariantID, &res.SentCount,
		&res.OpenRate, &res.ClickRate, &res.ReplyRate, &res.PositiveResponseRate, &res.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &res, nil
}

// IncrementSent bumps the variant's sent counter, creating the aggregate
// row on first use.
func (r *ABTestRepository) IncrementSent(abTestID, variantID uuid.UUID) error {
	query := `
        INSERT INTO ab_test_results (id, ab_test_id, variant_id, sent_count, updated_at)
        VALUES ($1, $2, $3, 1, NOW())
        ON CONFLICT (ab_test_id, variant_id)
        DO UPDATE SET sent_count = ab_test_results.sent_count + 1, updated_at = NOW()
    `
	_, err := r.DB.Exec(query, uuid.New(), abTestID, variantID)
	return err
}

func (r *ABTestRepository) UpdateRates(result *model.ABTestResult) error {
	result.UpdatedAt = time.Now()
	query := `
        UPDATE ab_test_results
        SET open_rate=$1, click_rate=$2, reply_rate=$3, positive_response_rate=$4, updated_at=$5
        WHERE ab_test_id=$6 AND variant_id=$7
    `
	_, err := r.DB.Exec(query,
		result.OpenRate, result.ClickRate, result.ReplyRate, result.PositiveResponseRate,
		result.UpdatedAt, result.ABTestID, result.VariantID,
	)
	return err
}

func (r *ABTestRepository) ListResults(abTestID uuid.UUID) ([]*model.ABTestResult, error) {
	query := `
        SELECT id, ab_test_id, variant_id, sent_count, open_rate, click_rate, reply_rate, positive_response_rate, updated_at
        FROM ab_test_results WHERE ab_test_id=$1
    `
	rows, err := r.DB.Query(query, abTestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := []*model.ABTestResult{}
	for rows.Next() {
		res := &model.ABTestResult{}
		if err := rows.Scan(
			&res.ID, &res.ABTestID, &res.VariantID, &res.SentCount,
			&res.OpenRate, &res.ClickRate, &res.ReplyRate, &res.PositiveResponseRate, &res.UpdatedAt,
		); err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	return results, rows.Err()
}

var _ ABTestRepositoryInterface = (*ABTestRepository)(nil)
