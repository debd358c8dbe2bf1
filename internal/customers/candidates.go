package customers

import (
	"context"
	"fmt"
	"strings"

	"github.com/silq-qms/qmsgo/internal/models"
	"github.com/silq-qms/qmsgo/internal/normalize"
	"gorm.io/gorm"
)

const (
	candidatePrefixLen = 5
	candidateLimit     = 10
)

// Candidates returns up to ten customers whose key shares a prefix with the
// facility name, optionally narrowed by state. It is a review surface for
// manual merges and is never applied automatically.
func Candidates(ctx context.Context, db *gorm.DB, facilityName, state string) ([]models.Customer, error) {
	key := normalize.CustomerKey(facilityName)
	if key == "" {
		return []models.Customer{}, nil
	}
	prefix := key
	if len(prefix) > candidatePrefixLen {
		prefix = prefix[:candidatePrefixLen]
	}

	q := db.WithContext(ctx).Where(`company_key LIKE ? ESCAPE '\'`, escapeLike(prefix)+"%")
	if s := strings.TrimSpace(state); s != "" {
		q = q.Where("LOWER(state) = LOWER(?)", s)
	}

	out := []models.Customer{}
	if err := q.Order("company_key").Limit(candidateLimit).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("candidate lookup: %w", err)
	}
	return out, nil
}
