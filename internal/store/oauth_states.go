package store

import (
	"context"
	"strings"
	"time"
)

const oauthStateColumns = `state, user_id, platform, code_verifier, expires_at, created_at, consumed_at`

func scanOAuthState(row scanner) (OAuthState, error) {
	var (
		st                         OAuthState
		expires, created, consumed dbTime
	)
	if err := row.Scan(&st.State, &st.UserID, &st.Platform, &st.CodeVerifier, &expires, &created, &consumed); err != nil {
		return OAuthState{}, err
	}
	st.ExpiresAt = expires.Time
	st.CreatedAt = created.Time
	st.ConsumedAt = consumed.ptr()
	return st, nil
}

func (q *queries) CreateOAuthState(ctx context.Context, st OAuthState) (OAuthState, error) {
	if err := requireID("state", st.State); err != nil {
		return OAuthState{}, err
	}
	if err := requireID("userId", st.UserID); err != nil {
		return OAuthState{}, err
	}
	st.Platform = strings.ToLower(strings.TrimSpace(st.Platform))
	if st.Platform == "" {
		return OAuthState{}, invalidf("platform is required")
	}
	if st.ExpiresAt.IsZero() {
		return OAuthState{}, invalidf("expiresAt is required")
	}
	st.CreatedAt = q.timestamp()
	st.ExpiresAt = st.ExpiresAt.UTC().Truncate(time.Microsecond)
	st.ConsumedAt = nil
	_, err := q.exec(ctx, `
		insert into oauth_states(state, user_id, platform, code_verifier, expires_at, created_at)
		values ($1, $2, $3, $4, $5, $6)
	`, st.State, st.UserID, st.Platform, st.CodeVerifier, q.d.timeArg(st.ExpiresAt), q.d.timeArg(st.CreatedAt))
	if err != nil {
		return OAuthState{}, err
	}
	return st, nil
}

// ConsumeOAuthState marks state used and returns it. Unknown, expired and
// already consumed states all yield ErrNotFound, so a state works exactly once.
func (q *queries) ConsumeOAuthState(ctx context.Context, state string, now time.Time) (OAuthState, error) {
	at := now.UTC().Truncate(time.Microsecond)
	ok, err := q.execAffected(ctx, `
		update oauth_states set consumed_at = $1
		where state = $2 and consumed_at is null and expires_at > $1
	`, q.d.timeArg(at), state)
	if err != nil {
		return OAuthState{}, err
	}
	if !ok {
		return OAuthState{}, ErrNotFound
	}
	st, found, err := getOne(ctx, q, scanOAuthState, `select `+oauthStateColumns+` from oauth_states where state = $1`, state)
	if err != nil {
		return OAuthState{}, err
	}
	if !found {
		return OAuthState{}, ErrNotFound
	}
	return st, nil
}

func (q *queries) DeleteExpiredOAuthStates(ctx context.Context, now time.Time) (int64, error) {
	res, err := q.exec(ctx, `delete from oauth_states where expires_at <= $1`, q.d.timeArg(now))
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, q.d.mapErr(err)
	}
	return n, nil
}

func (s *Store) CreateOAuthState(ctx context.Context, st OAuthState) (OAuthState, error) {
	return write(ctx, s, "oauth_state.create", func(ctx context.Context, q *queries) (OAuthState, error) {
		return q.CreateOAuthState(ctx, st)
	})
}

func (s *Store) ConsumeOAuthState(ctx context.Context, state string, now time.Time) (OAuthState, error) {
	return inTxValue(ctx, s, "oauth_state.consume", func(ctx context.Context, tx *Tx) (OAuthState, error) {
		return tx.ConsumeOAuthState(ctx, state, now)
	})
}

func (s *Store) DeleteExpiredOAuthStates(ctx context.Context, now time.Time) (int64, error) {
	return write(ctx, s, "oauth_state.delete_expired", func(ctx context.Context, q *queries) (int64, error) {
		return q.DeleteExpiredOAuthStates(ctx, now)
	})
}
