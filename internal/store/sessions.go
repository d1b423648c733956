package store

import (
	"context"
	"time"
)

func scanSession(row scanner) (Session, error) {
	var (
		s                Session
		expires, created dbTime
	)
	if err := row.Scan(&s.ID, &s.UserID, &expires, &created); err != nil {
		return Session{}, err
	}
	s.ExpiresAt = expires.Time
	s.CreatedAt = created.Time
	return s, nil
}

// CreateSession stores a session row. ID must already be the hashed token.
func (q *queries) CreateSession(ctx context.Context, s Session) (Session, error) {
	if err := requireID("id", s.ID); err != nil {
		return Session{}, err
	}
	if err := requireID("userId", s.UserID); err != nil {
		return Session{}, err
	}
	if s.ExpiresAt.IsZero() {
		return Session{}, invalidf("expiresAt is required")
	}
	s.CreatedAt = q.timestamp()
	s.ExpiresAt = s.ExpiresAt.UTC().Truncate(time.Microsecond)
	_, err := q.exec(ctx, `insert into sessions(id, user_id, expires_at, created_at) values ($1, $2, $3, $4)`,
		s.ID, s.UserID, q.d.timeArg(s.ExpiresAt), q.d.timeArg(s.CreatedAt))
	if err != nil {
		return Session{}, err
	}
	return s, nil
}

// GetSession returns the row even when expired; callers compare ExpiresAt.
func (q *queries) GetSession(ctx context.Context, id string) (Session, bool, error) {
	return getOne(ctx, q, scanSession, `select id, user_id, expires_at, created_at from sessions where id = $1`, id)
}

func (q *queries) DeleteSession(ctx context.Context, id string) (bool, error) {
	return q.execAffected(ctx, `delete from sessions where id = $1`, id)
}

func (q *queries) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	res, err := q.exec(ctx, `delete from sessions where expires_at <= $1`, q.d.timeArg(now))
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, q.d.mapErr(err)
	}
	return n, nil
}

func (s *Store) CreateSession(ctx context.Context, sess Session) (Session, error) {
	return write(ctx, s, "session.create", func(ctx context.Context, q *queries) (Session, error) {
		return q.CreateSession(ctx, sess)
	})
}

func (s *Store) GetSession(ctx context.Context, id string) (Session, bool, error) {
	return readOne(ctx, s, "session.get", func(ctx context.Context, q *queries) (Session, bool, error) {
		return q.GetSession(ctx, id)
	})
}

func (s *Store) DeleteSession(ctx context.Context, id string) (bool, error) {
	return write(ctx, s, "session.delete", func(ctx context.Context, q *queries) (bool, error) {
		return q.DeleteSession(ctx, id)
	})
}

func (s *Store) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	return write(ctx, s, "session.delete_expired", func(ctx context.Context, q *queries) (int64, error) {
		return q.DeleteExpiredSessions(ctx, now)
	})
}
