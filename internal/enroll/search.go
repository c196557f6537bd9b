package enroll

import (
	"context"
	"errors"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/your-org/facegate/internal/models"
	"github.com/your-org/facegate/internal/storage"
)

// FindCandidate resolves a free-form query to one record. It tries an exact
// identity lookup, then a case-insensitive identity match, then a
// case- and accent-insensitive substring of the full name. Within a stage
// the first record in listing order wins.
func (s *Service) FindCandidate(ctx context.Context, query string) (*models.EnrollmentRecord, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, storage.ErrRecordNotFound
	}

	rec, err := s.store.Get(ctx, query)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, storage.ErrRecordNotFound) {
		return nil, err
	}

	records, err := s.store.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	for i := range records {
		if strings.EqualFold(records[i].Identity, query) {
			return &records[i], nil
		}
	}

	needle := foldName(query)
	for i := range records {
		if strings.Contains(foldName(records[i].FullName), needle) {
			return &records[i], nil
		}
	}
	return nil, storage.ErrRecordNotFound
}

// foldName lowercases s and strips combining marks, so "José" folds to "jose".
func foldName(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.ToLower(folded)
}
