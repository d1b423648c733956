package store

import (
	"context"
	"database/sql"
	"strings"
)

const activityColumns = `id, user_id, type, title, description, metadata, created_at`

const defaultActivityLimit = 20

// Activity type values written by this service.
const (
	ActivityLeadCaptured    = "lead_captured"
	ActivityOAuthConnected  = "oauth_connected"
	ActivityAutomationAdded = "automation_created"
)

func scanActivity(row scanner) (Activity, error) {
	var (
		a           Activity
		description sql.NullString
		metadata    []byte
		created     dbTime
	)
	if err := row.Scan(&a.ID, &a.UserID, &a.Type, &a.Title, &description, &metadata, &created); err != nil {
		return Activity{}, err
	}
	a.Description = strPtr(description)
	a.Metadata = rawJSON(metadata)
	a.CreatedAt = created.Time
	return a, nil
}

// CreateActivity appends to the feed. Activities are never updated or deleted
// individually.
func (q *queries) CreateActivity(ctx context.Context, a Activity) (Activity, error) {
	if err := requireID("userId", a.UserID); err != nil {
		return Activity{}, err
	}
	a.Type = strings.TrimSpace(a.Type)
	a.Title = strings.TrimSpace(a.Title)
	if a.Type == "" {
		return Activity{}, invalidf("type is required")
	}
	if a.Title == "" {
		return Activity{}, invalidf("title is required")
	}
	if err := validJSON("metadata", a.Metadata); err != nil {
		return Activity{}, err
	}
	a.ID = newID(a.ID)
	a.CreatedAt = q.timestamp()
	_, err := q.exec(ctx, `
		insert into activities(id, user_id, type, title, description, metadata, created_at)
		values ($1, $2, $3, $4, $5, $6, $7)
	`, a.ID, a.UserID, a.Type, a.Title, nullable(a.Description), jsonArg(a.Metadata), q.d.timeArg(a.CreatedAt))
	if err != nil {
		return Activity{}, err
	}
	return a, nil
}

func (q *queries) ListActivitiesByUser(ctx context.Context, userID string, page Page) ([]Activity, error) {
	page = page.normalize(defaultActivityLimit)
	return list(ctx, q, scanActivity,
		`select `+activityColumns+` from activities where user_id = $1
		order by created_at desc, id desc`+offsetLimit(2),
		userID, page.Limit, page.Offset)
}

func (s *Store) CreateActivity(ctx context.Context, a Activity) (Activity, error) {
	return write(ctx, s, "activity.create", func(ctx context.Context, q *queries) (Activity, error) {
		return q.CreateActivity(ctx, a)
	})
}

func (s *Store) ListActivitiesByUser(ctx context.Context, userID string, page Page) ([]Activity, error) {
	return read(ctx, s, "activity.list", func(ctx context.Context, q *queries) ([]Activity, error) {
		return q.ListActivitiesByUser(ctx, userID, page)
	})
}
