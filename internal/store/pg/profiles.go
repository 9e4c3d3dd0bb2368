package pg

import (
	"context"
	"database/sql"

	"agentdesk.io/internal/auth"
)

const profileColumns = `id, user_id, email, first_name, last_name, role, status,
	department, team, avatar_url, created_by, created_at, updated_at`

// ProfileByUserID loads the single profile of userID. Zero rows is auth.ErrNotFound and
// more than one is auth.ErrMultipleProfiles.
func (s *Store) ProfileByUserID(ctx context.Context, userID string) (*auth.Profile, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+profileColumns+`
		from user_profiles
		where user_id = $1
		limit 2
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var found []*auth.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		found = append(found, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	switch len(found) {
	case 0:
		return nil, auth.ErrNotFound
	case 1:
		return found[0], nil
	default:
		return nil, auth.ErrMultipleProfiles
	}
}

func scanProfile(rows *sql.Rows) (*auth.Profile, error) {
	var (
		p                                      auth.Profile
		role, status                           string
		department, team, avatarURL, createdBy sql.NullString
	)
	if err := rows.Scan(&p.ID, &p.UserID, &p.Email, &p.FirstName, &p.LastName, &role, &status,
		&department, &team, &avatarURL, &createdBy, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.Role = auth.ParseRole(role)
	p.Status = auth.ParseStatus(status)
	p.Department = department.String
	p.Team = team.String
	p.AvatarURL = avatarURL.String
	p.CreatedBy = createdBy.String
	return &p, nil
}
