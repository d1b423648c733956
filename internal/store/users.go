package store

import (
	"context"
	"database/sql"
	"strings"
	"time"
)

const userColumns = `id, email, first_name, last_name, profile_image_url, password_hash, last_seen_at, created_at, updated_at`

func scanUser(row scanner) (User, error) {
	var (
		u                           User
		email, first, last, img, pw sql.NullString
		seen, created, updated      dbTime
	)
	if err := row.Scan(&u.ID, &email, &first, &last, &img, &pw, &seen, &created, &updated); err != nil {
		return User{}, err
	}
	u.Email = strPtr(email)
	u.FirstName = strPtr(first)
	u.LastName = strPtr(last)
	u.ProfileImageURL = strPtr(img)
	u.PasswordHash = pw.String
	u.LastSeenAt = seen.ptr()
	u.CreatedAt = created.Time
	u.UpdatedAt = updated.Time
	return u, nil
}

func normalizeEmail(email *string) *string {
	email = cleanOptional(email)
	if email == nil {
		return nil
	}
	v := strings.ToLower(*email)
	return &v
}

func (q *queries) CreateUser(ctx context.Context, u User) (User, error) {
	u.ID = newID(u.ID)
	u.Email = normalizeEmail(u.Email)
	if u.Email != nil && !strings.Contains(*u.Email, "@") {
		return User{}, invalidf("email is malformed")
	}
	now := q.timestamp()
	u.CreatedAt, u.UpdatedAt = now, now
	var pw any
	if u.PasswordHash != "" {
		pw = u.PasswordHash
	}
	_, err := q.exec(ctx, `
		insert into users(id, email, first_name, last_name, profile_image_url, password_hash, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8)
	`, u.ID, nullable(u.Email), nullable(u.FirstName), nullable(u.LastName), nullable(u.ProfileImageURL),
		pw, q.d.timeArg(now), q.d.timeArg(now))
	if err != nil {
		return User{}, err
	}
	return u, nil
}

func (q *queries) GetUser(ctx context.Context, id string) (User, bool, error) {
	return getOne(ctx, q, scanUser, `select `+userColumns+` from users where id = $1`, id)
}

func (q *queries) FindUserByEmail(ctx context.Context, email string) (User, bool, error) {
	e := normalizeEmail(&email)
	if e == nil {
		return User{}, false, nil
	}
	return getOne(ctx, q, scanUser, `select `+userColumns+` from users where email = $1`, *e)
}

// UpsertUser inserts u or, when its id exists, overwrites the profile fields.
func (q *queries) UpsertUser(ctx context.Context, u User) (User, error) {
	if err := requireID("id", u.ID); err != nil {
		return User{}, err
	}
	existing, ok, err := q.GetUser(ctx, u.ID)
	if err != nil {
		return User{}, err
	}
	if !ok {
		return q.CreateUser(ctx, u)
	}
	return q.updateUser(ctx, existing, UserPatch{
		Email:           u.Email,
		FirstName:       u.FirstName,
		LastName:        u.LastName,
		ProfileImageURL: u.ProfileImageURL,
	})
}

func (q *queries) UpdateUser(ctx context.Context, id string, p UserPatch) (User, error) {
	prev, ok, err := q.GetUser(ctx, id)
	if err != nil {
		return User{}, err
	}
	if !ok {
		return User{}, ErrNotFound
	}
	return q.updateUser(ctx, prev, p)
}

// updateUser merges p into prev and writes the result.
func (q *queries) updateUser(ctx context.Context, prev User, p UserPatch) (User, error) {
	u := prev
	if p.Email != nil {
		u.Email = normalizeEmail(p.Email)
	}
	if p.FirstName != nil {
		u.FirstName = p.FirstName
	}
	if p.LastName != nil {
		u.LastName = p.LastName
	}
	if p.ProfileImageURL != nil {
		u.ProfileImageURL = p.ProfileImageURL
	}
	u.UpdatedAt = q.bump(prev.UpdatedAt)
	ok, err := q.execAffected(ctx, `
		update users set email = $1, first_name = $2, last_name = $3, profile_image_url = $4, updated_at = $5
		where id = $6
	`, nullable(u.Email), nullable(u.FirstName), nullable(u.LastName), nullable(u.ProfileImageURL),
		q.d.timeArg(u.UpdatedAt), u.ID)
	if err != nil {
		return User{}, err
	}
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

// ownedTables lists every table whose rows hang off users(id).
var ownedTables = []string{"sessions", "oauth_states", "oauth_connections", "leads", "automations", "activities", "metrics"}

// DeleteUser removes the user and everything they own. Postgres and SQLite
// cascade through the foreign keys; libsql streams do not keep the
// foreign_keys pragma between requests, so the children are removed first.
func (q *queries) DeleteUser(ctx context.Context, id string) (bool, error) {
	if q.d == LibSQL {
		for _, table := range ownedTables {
			if _, err := q.exec(ctx, `delete from `+table+` where user_id = $1`, id); err != nil {
				return false, err
			}
		}
	}
	return q.execAffected(ctx, `delete from users where id = $1`, id)
}

func (q *queries) TouchLastSeen(ctx context.Context, id string, at time.Time) error {
	_, err := q.exec(ctx, `update users set last_seen_at = $1 where id = $2`, q.d.timeArg(at), id)
	return err
}

func (q *queries) CountOwned(ctx context.Context, userID string) (OwnedCounts, error) {
	var c OwnedCounts
	err := q.q.QueryRowContext(ctx, `
		select
			(select count(*) from oauth_connections where user_id = $1),
			(select count(*) from leads where user_id = $1),
			(select count(*) from automations where user_id = $1),
			(select count(*) from activities where user_id = $1),
			(select count(*) from metrics where user_id = $1),
			(select count(*) from sessions where user_id = $1)
	`, userID).Scan(&c.Connections, &c.Leads, &c.Automations, &c.Activities, &c.Metrics, &c.Sessions)
	if err != nil {
		return OwnedCounts{}, q.d.mapErr(err)
	}
	return c, nil
}

// Store-level user operations.

func (s *Store) CreateUser(ctx context.Context, u User) (User, error) {
	return write(ctx, s, "user.create", func(ctx context.Context, q *queries) (User, error) {
		return q.CreateUser(ctx, u)
	})
}

func (s *Store) GetUser(ctx context.Context, id string) (User, bool, error) {
	return readOne(ctx, s, "user.get", func(ctx context.Context, q *queries) (User, bool, error) {
		return q.GetUser(ctx, id)
	})
}

func (s *Store) FindUserByEmail(ctx context.Context, email string) (User, bool, error) {
	return readOne(ctx, s, "user.find_by_email", func(ctx context.Context, q *queries) (User, bool, error) {
		return q.FindUserByEmail(ctx, email)
	})
}

func (s *Store) UpsertUser(ctx context.Context, u User) (User, error) {
	return inTxValue(ctx, s, "user.upsert", func(ctx context.Context, tx *Tx) (User, error) {
		return tx.UpsertUser(ctx, u)
	})
}

func (s *Store) UpdateUser(ctx context.Context, id string, p UserPatch) (User, error) {
	return inTxValue(ctx, s, "user.update", func(ctx context.Context, tx *Tx) (User, error) {
		return tx.UpdateUser(ctx, id, p)
	})
}

// DeleteUser removes the user and, through foreign keys, everything they own.
func (s *Store) DeleteUser(ctx context.Context, id string) (bool, error) {
	return inTxValue(ctx, s, "user.delete", func(ctx context.Context, tx *Tx) (bool, error) {
		return tx.DeleteUser(ctx, id)
	})
}

func (s *Store) TouchLastSeen(ctx context.Context, id string, at time.Time) error {
	_, err := write(ctx, s, "user.touch_last_seen", func(ctx context.Context, q *queries) (struct{}, error) {
		return struct{}{}, q.TouchLastSeen(ctx, id, at)
	})
	return err
}

func (s *Store) CountOwned(ctx context.Context, userID string) (OwnedCounts, error) {
	return read(ctx, s, "user.count_owned", func(ctx context.Context, q *queries) (OwnedCounts, error) {
		return q.CountOwned(ctx, userID)
	})
}
