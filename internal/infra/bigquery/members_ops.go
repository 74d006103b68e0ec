package bigquery

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/family-bank/internal/domain"
	"github.com/dvloznov/family-bank/internal/store"
)

const memberColumns = `household_id, member_id, name, avatar, pin, created_at, last_interest_date`

// InsertMember implements store.MemberRepository.
func (r *Repository) InsertMember(ctx context.Context, householdID string, m *domain.Member) error {
	_, err := r.exec(ctx, "InsertMember", fmt.Sprintf(`
		INSERT %s (%s)
		VALUES (
			@household_id,
			@member_id,
			@name,
			@avatar,
			@pin,
			@created_at,
			@last_interest_date
		)
	`, r.table(membersTable), memberColumns),
		bigquery.QueryParameter{Name: "household_id", Value: householdID},
		bigquery.QueryParameter{Name: "member_id", Value: m.ID},
		bigquery.QueryParameter{Name: "name", Value: m.Name},
		bigquery.QueryParameter{Name: "avatar", Value: m.Avatar},
		bigquery.QueryParameter{Name: "pin", Value: m.PIN},
		bigquery.QueryParameter{Name: "created_at", Value: m.CreatedAt},
		bigquery.QueryParameter{Name: "last_interest_date", Value: m.LastInterestDate},
	)
	return err
}

// UpdateMemberProfile implements store.MemberRepository. The watermark
// column is never part of the SET clause.
func (r *Repository) UpdateMemberProfile(ctx context.Context, householdID string, m *domain.Member) error {
	n, err := r.exec(ctx, "UpdateMemberProfile", fmt.Sprintf(`
		UPDATE %s
		SET name = @name,
		    avatar = @avatar,
		    pin = @pin
		WHERE household_id = @household_id
		  AND member_id = @member_id
	`, r.table(membersTable)),
		bigquery.QueryParameter{Name: "household_id", Value: householdID},
		bigquery.QueryParameter{Name: "member_id", Value: m.ID},
		bigquery.QueryParameter{Name: "name", Value: m.Name},
		bigquery.QueryParameter{Name: "avatar", Value: m.Avatar},
		bigquery.QueryParameter{Name: "pin", Value: m.PIN},
	)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("UpdateMemberProfile: %s: %w", m.ID, store.ErrNotFound)
	}
	return nil
}

// DeleteMember implements store.MemberRepository.
func (r *Repository) DeleteMember(ctx context.Context, householdID, memberID string) error {
	n, err := r.exec(ctx, "DeleteMember", fmt.Sprintf(`
		DELETE FROM %s
		WHERE household_id = @household_id
		  AND member_id = @member_id
	`, r.table(membersTable)),
		bigquery.QueryParameter{Name: "household_id", Value: householdID},
		bigquery.QueryParameter{Name: "member_id", Value: memberID},
	)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("DeleteMember: %s: %w", memberID, store.ErrNotFound)
	}
	return nil
}

// GetMember implements store.MemberRepository.
func (r *Repository) GetMember(ctx context.Context, householdID, memberID string) (*domain.Member, error) {
	rows, err := query[MemberRow](ctx, r.client, "GetMember", fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE household_id = @household_id
		  AND member_id = @member_id
		LIMIT 1
	`, memberColumns, r.table(membersTable)),
		bigquery.QueryParameter{Name: "household_id", Value: householdID},
		bigquery.QueryParameter{Name: "member_id", Value: memberID},
	)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("GetMember: %s: %w", memberID, store.ErrNotFound)
	}
	return rows[0].toDomain(), nil
}

// ListMembers implements store.MemberRepository, oldest first.
func (r *Repository) ListMembers(ctx context.Context, householdID string) ([]*domain.Member, error) {
	rows, err := query[MemberRow](ctx, r.client, "ListMembers", fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE household_id = @household_id
		ORDER BY created_at, member_id
	`, memberColumns, r.table(membersTable)),
		bigquery.QueryParameter{Name: "household_id", Value: householdID},
	)
	if err != nil {
		return nil, err
	}

	out := make([]*domain.Member, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

// AdvanceWatermark implements store.MemberRepository. The UPDATE only
// matches while last_interest_date still equals expected; zero affected
// rows means another writer moved it, or the member is gone.
func (r *Repository) AdvanceWatermark(ctx context.Context, householdID, memberID string, expected, next int64) error {
	n, err := r.exec(ctx, "AdvanceWatermark", fmt.Sprintf(`
		UPDATE %s
		SET last_interest_date = @next
		WHERE household_id = @household_id
		  AND member_id = @member_id
		  AND last_interest_date = @expected
	`, r.table(membersTable)),
		bigquery.QueryParameter{Name: "household_id", Value: householdID},
		bigquery.QueryParameter{Name: "member_id", Value: memberID},
		bigquery.QueryParameter{Name: "expected", Value: expected},
		bigquery.QueryParameter{Name: "next", Value: next},
	)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	if _, err := r.GetMember(ctx, householdID, memberID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return err
		}
		return fmt.Errorf("AdvanceWatermark: checking member: %w", err)
	}
	return store.ErrWatermarkConflict
}
