package store

import (
	"context"
	"database/sql"
	"strings"
)

// connectionColumns leaves the sealed token columns out. Listing, ownership
// checks and metadata updates never need the tokens, so they keep working
// when a row was sealed under a key the process no longer holds.
const connectionColumns = `id, user_id, platform, platform_user_id, display_name, email,
	token_expiry, scope, is_active, last_sync, created_at, updated_at`

const defaultConnectionLimit = 50

func scanConnectionRow(row scanner, extra ...any) (OAuthConnection, error) {
	var (
		c                                         OAuthConnection
		platformUserID, displayName, email, scope sql.NullString
		expiry, lastSync, created, updated        dbTime
	)
	dest := []any{&c.ID, &c.UserID, &c.Platform, &platformUserID, &displayName, &email,
		&expiry, &scope, &c.IsActive, &lastSync, &created, &updated}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return OAuthConnection{}, err
	}
	c.PlatformUserID = strPtr(platformUserID)
	c.DisplayName = strPtr(displayName)
	c.Email = strPtr(email)
	c.Scope = strPtr(scope)
	c.TokenExpiry = expiry.ptr()
	c.LastSync = lastSync.ptr()
	c.CreatedAt = created.Time
	c.UpdatedAt = updated.Time
	return c, nil
}

func (q *queries) scanConnection(row scanner) (OAuthConnection, error) {
	return scanConnectionRow(row)
}

// scanConnectionTokens also opens the sealed tokens. A row sealed under
// another key fails with ErrInternal.
func (q *queries) scanConnectionTokens(row scanner) (OAuthConnection, error) {
	var access, refresh sql.NullString
	c, err := scanConnectionRow(row, &access, &refresh)
	if err != nil {
		return OAuthConnection{}, err
	}
	if c.AccessToken, err = q.open(access); err != nil {
		return OAuthConnection{}, err
	}
	if c.RefreshToken, err = q.open(refresh); err != nil {
		return OAuthConnection{}, err
	}
	return c, nil
}

func (q *queries) CreateOAuthConnection(ctx context.Context, c OAuthConnection) (OAuthConnection, error) {
	if err := requireID("userId", c.UserID); err != nil {
		return OAuthConnection{}, err
	}
	c.Platform = strings.ToLower(strings.TrimSpace(c.Platform))
	if c.Platform == "" {
		return OAuthConnection{}, invalidf("platform is required")
	}
	access, err := q.seal(c.AccessToken)
	if err != nil {
		return OAuthConnection{}, err
	}
	refresh, err := q.seal(c.RefreshToken)
	if err != nil {
		return OAuthConnection{}, err
	}
	c.ID = newID(c.ID)
	now := q.timestamp()
	c.CreatedAt, c.UpdatedAt = now, now
	_, err = q.exec(ctx, `
		insert into oauth_connections(id, user_id, platform, platform_user_id, display_name, email,
			access_token, refresh_token, token_expiry, scope, is_active, last_sync, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, c.ID, c.UserID, c.Platform, nullable(c.PlatformUserID), nullable(c.DisplayName), nullable(c.Email),
		access, refresh, q.d.nullTimeArg(c.TokenExpiry), nullable(c.Scope), c.IsActive, q.d.nullTimeArg(c.LastSync),
		q.d.timeArg(now), q.d.timeArg(now))
	if err != nil {
		return OAuthConnection{}, err
	}
	return c, nil
}

// GetOAuthConnection returns the connection without its tokens.
func (q *queries) GetOAuthConnection(ctx context.Context, id string) (OAuthConnection, bool, error) {
	return getOne(ctx, q, q.scanConnection, `select `+connectionColumns+` from oauth_connections where id = $1`, id)
}

// GetOAuthConnectionTokens returns the connection with its tokens decrypted.
func (q *queries) GetOAuthConnectionTokens(ctx context.Context, id string) (OAuthConnection, bool, error) {
	return getOne(ctx, q, q.scanConnectionTokens,
		`select `+connectionColumns+`, access_token, refresh_token from oauth_connections where id = $1`, id)
}

// FindOAuthConnection returns the user's connection for platform, if any.
func (q *queries) FindOAuthConnection(ctx context.Context, userID, platform string) (OAuthConnection, bool, error) {
	return getOne(ctx, q, q.scanConnection,
		`select `+connectionColumns+` from oauth_connections where user_id = $1 and platform = $2`,
		userID, strings.ToLower(platform))
}

func (q *queries) ListOAuthConnectionsByUser(ctx context.Context, userID string, page Page) ([]OAuthConnection, error) {
	page = page.normalize(defaultConnectionLimit)
	return list(ctx, q, q.scanConnection,
		`select `+connectionColumns+` from oauth_connections where user_id = $1
		order by created_at desc, id desc`+offsetLimit(2),
		userID, page.Limit, page.Offset)
}

// UpdateOAuthConnection merges p into the row. Token columns are only written
// when the patch carries them, so stored tokens are never opened here.
func (q *queries) UpdateOAuthConnection(ctx context.Context, id string, p OAuthConnectionPatch) (OAuthConnection, error) {
	c, ok, err := q.GetOAuthConnection(ctx, id)
	if err != nil {
		return OAuthConnection{}, err
	}
	if !ok {
		return OAuthConnection{}, ErrNotFound
	}
	if p.PlatformUserID != nil {
		c.PlatformUserID = p.PlatformUserID
	}
	if p.DisplayName != nil {
		c.DisplayName = p.DisplayName
	}
	if p.Email != nil {
		c.Email = p.Email
	}
	if p.TokenExpiry != nil {
		c.TokenExpiry = p.TokenExpiry
	}
	if p.Scope != nil {
		c.Scope = p.Scope
	}
	if p.IsActive != nil {
		c.IsActive = *p.IsActive
	}
	if p.LastSync != nil {
		c.LastSync = p.LastSync
	}
	c.UpdatedAt = q.bump(c.UpdatedAt)
	_, err = q.exec(ctx, `
		update oauth_connections set platform_user_id = $1, display_name = $2, email = $3, token_expiry = $4,
			scope = $5, is_active = $6, last_sync = $7, updated_at = $8
		where id = $9
	`, nullable(c.PlatformUserID), nullable(c.DisplayName), nullable(c.Email), q.d.nullTimeArg(c.TokenExpiry),
		nullable(c.Scope), c.IsActive, q.d.nullTimeArg(c.LastSync), q.d.timeArg(c.UpdatedAt), id)
	if err != nil {
		return OAuthConnection{}, err
	}
	if p.AccessToken != nil {
		if err := q.writeToken(ctx, id, "access_token", *p.AccessToken); err != nil {
			return OAuthConnection{}, err
		}
		c.AccessToken = *p.AccessToken
	}
	if p.RefreshToken != nil {
		if err := q.writeToken(ctx, id, "refresh_token", *p.RefreshToken); err != nil {
			return OAuthConnection{}, err
		}
		c.RefreshToken = *p.RefreshToken
	}
	return c, nil
}

// writeToken seals plain into column, which is one of the two token columns.
func (q *queries) writeToken(ctx context.Context, id, column, plain string) error {
	sealed, err := q.seal(plain)
	if err != nil {
		return err
	}
	_, err = q.exec(ctx, `update oauth_connections set `+column+` = $1 where id = $2`, sealed, id)
	return err
}

// UpsertOAuthConnection stores fresh credentials for (userID, platform), reusing
// the existing row when the user already linked that platform.
func (q *queries) UpsertOAuthConnection(ctx context.Context, c OAuthConnection) (OAuthConnection, error) {
	existing, ok, err := q.FindOAuthConnection(ctx, c.UserID, c.Platform)
	if err != nil {
		return OAuthConnection{}, err
	}
	if !ok {
		return q.CreateOAuthConnection(ctx, c)
	}
	p := OAuthConnectionPatch{
		PlatformUserID: c.PlatformUserID,
		DisplayName:    c.DisplayName,
		Email:          c.Email,
		AccessToken:    &c.AccessToken,
		TokenExpiry:    c.TokenExpiry,
		Scope:          c.Scope,
		IsActive:       &c.IsActive,
		LastSync:       c.LastSync,
	}
	// Providers only return a refresh token on first consent; keep the stored one otherwise.
	if c.RefreshToken != "" {
		p.RefreshToken = &c.RefreshToken
	}
	return q.UpdateOAuthConnection(ctx, existing.ID, p)
}

func (q *queries) DeleteOAuthConnection(ctx context.Context, id string) (bool, error) {
	return q.execAffected(ctx, `delete from oauth_connections where id = $1`, id)
}

func (s *Store) CreateOAuthConnection(ctx context.Context, c OAuthConnection) (OAuthConnection, error) {
	return write(ctx, s, "connection.create", func(ctx context.Context, q *queries) (OAuthConnection, error) {
		return q.CreateOAuthConnection(ctx, c)
	})
}

func (s *Store) GetOAuthConnection(ctx context.Context, id string) (OAuthConnection, bool, error) {
	return readOne(ctx, s, "connection.get", func(ctx context.Context, q *queries) (OAuthConnection, bool, error) {
		return q.GetOAuthConnection(ctx, id)
	})
}

func (s *Store) GetOAuthConnectionTokens(ctx context.Context, id string) (OAuthConnection, bool, error) {
	return readOne(ctx, s, "connection.tokens", func(ctx context.Context, q *queries) (OAuthConnection, bool, error) {
		return q.GetOAuthConnectionTokens(ctx, id)
	})
}

func (s *Store) FindOAuthConnection(ctx context.Context, userID, platform string) (OAuthConnection, bool, error) {
	return readOne(ctx, s, "connection.find", func(ctx context.Context, q *queries) (OAuthConnection, bool, error) {
		return q.FindOAuthConnection(ctx, userID, platform)
	})
}

func (s *Store) ListOAuthConnectionsByUser(ctx context.Context, userID string, page Page) ([]OAuthConnection, error) {
	return read(ctx, s, "connection.list", func(ctx context.Context, q *queries) ([]OAuthConnection, error) {
		return q.ListOAuthConnectionsByUser(ctx, userID, page)
	})
}

func (s *Store) UpdateOAuthConnection(ctx context.Context, id string, p OAuthConnectionPatch) (OAuthConnection, error) {
	return inTxValue(ctx, s, "connection.update", func(ctx context.Context, tx *Tx) (OAuthConnection, error) {
		return tx.UpdateOAuthConnection(ctx, id, p)
	})
}

func (s *Store) UpsertOAuthConnection(ctx context.Context, c OAuthConnection) (OAuthConnection, error) {
	return inTxValue(ctx, s, "connection.upsert", func(ctx context.Context, tx *Tx) (OAuthConnection, error) {
		return tx.UpsertOAuthConnection(ctx, c)
	})
}

func (s *Store) DeleteOAuthConnection(ctx context.Context, id string) (bool, error) {
	return write(ctx, s, "connection.delete", func(ctx context.Context, q *queries) (bool, error) {
		return q.DeleteOAuthConnection(ctx, id)
	})
}
