package store

import (
	"context"
	"database/sql"
	"strings"
)

const automationColumns = `id, user_id, name, description, type, config, is_active, last_run, run_count, created_at, updated_at`

const defaultAutomationLimit = 50

func scanAutomation(row scanner) (Automation, error) {
	var (
		a                         Automation
		description               sql.NullString
		config                    []byte
		lastRun, created, updated dbTime
	)
	if err := row.Scan(&a.ID, &a.UserID, &a.Name, &description, &a.Type, &config, &a.IsActive, &lastRun,
		&a.RunCount, &created, &updated); err != nil {
		return Automation{}, err
	}
	a.Description = strPtr(description)
	a.Config = rawJSON(config)
	a.LastRun = lastRun.ptr()
	a.CreatedAt = created.Time
	a.UpdatedAt = updated.Time
	return a, nil
}

func (q *queries) CreateAutomation(ctx context.Context, a Automation) (Automation, error) {
	if err := requireID("userId", a.UserID); err != nil {
		return Automation{}, err
	}
	a.Name = strings.TrimSpace(a.Name)
	a.Type = strings.TrimSpace(a.Type)
	if a.Name == "" {
		return Automation{}, invalidf("name is required")
	}
	if a.Type == "" {
		return Automation{}, invalidf("type is required")
	}
	if err := validJSON("config", a.Config); err != nil {
		return Automation{}, err
	}
	a.ID = newID(a.ID)
	a.RunCount = 0
	a.LastRun = nil
	now := q.timestamp()
	a.CreatedAt, a.UpdatedAt = now, now
	_, err := q.exec(ctx, `
		insert into automations(id, user_id, name, description, type, config, is_active, run_count, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, 0, $8, $9)
	`, a.ID, a.UserID, a.Name, nullable(a.Description), a.Type, jsonArg(a.Config), a.IsActive,
		q.d.timeArg(now), q.d.timeArg(now))
	if err != nil {
		return Automation{}, err
	}
	return a, nil
}

func (q *queries) GetAutomation(ctx context.Context, id string) (Automation, bool, error) {
	return getOne(ctx, q, scanAutomation, `select `+automationColumns+` from automations where id = $1`, id)
}

func (q *queries) ListAutomationsByUser(ctx context.Context, userID string, page Page) ([]Automation, error) {
	page = page.normalize(defaultAutomationLimit)
	return list(ctx, q, scanAutomation,
		`select `+automationColumns+` from automations where user_id = $1
		order by created_at desc, id desc`+offsetLimit(2),
		userID, page.Limit, page.Offset)
}

// UpdateAutomation never touches run_count or last_run.
func (q *queries) UpdateAutomation(ctx context.Context, id string, p AutomationPatch) (Automation, error) {
	a, ok, err := q.GetAutomation(ctx, id)
	if err != nil {
		return Automation{}, err
	}
	if !ok {
		return Automation{}, ErrNotFound
	}
	if p.Name != nil {
		name := strings.TrimSpace(*p.Name)
		if name == "" {
			return Automation{}, invalidf("name is required")
		}
		a.Name = name
	}
	if p.Description != nil {
		a.Description = p.Description
	}
	if p.Type != nil {
		typ := strings.TrimSpace(*p.Type)
		if typ == "" {
			return Automation{}, invalidf("type is required")
		}
		a.Type = typ
	}
	if p.Config != nil {
		if err := validJSON("config", p.Config); err != nil {
			return Automation{}, err
		}
		a.Config = p.Config
	}
	if p.IsActive != nil {
		a.IsActive = *p.IsActive
	}
	a.UpdatedAt = q.bump(a.UpdatedAt)
	_, err = q.exec(ctx, `
		update automations set name = $1, description = $2, type = $3, config = $4, is_active = $5, updated_at = $6
		where id = $7
	`, a.Name, nullable(a.Description), a.Type, jsonArg(a.Config), a.IsActive, q.d.timeArg(a.UpdatedAt), id)
	if err != nil {
		return Automation{}, err
	}
	return a, nil
}

func (q *queries) DeleteAutomation(ctx context.Context, id string) (bool, error) {
	return q.execAffected(ctx, `delete from automations where id = $1`, id)
}

func (s *Store) CreateAutomation(ctx context.Context, a Automation) (Automation, error) {
	return write(ctx, s, "automation.create", func(ctx context.Context, q *queries) (Automation, error) {
		return q.CreateAutomation(ctx, a)
	})
}

func (s *Store) GetAutomation(ctx context.Context, id string) (Automation, bool, error) {
	return readOne(ctx, s, "automation.get", func(ctx context.Context, q *queries) (Automation, bool, error) {
		return q.GetAutomation(ctx, id)
	})
}

func (s *Store) ListAutomationsByUser(ctx context.Context, userID string, page Page) ([]Automation, error) {
	return read(ctx, s, "automation.list", func(ctx context.Context, q *queries) ([]Automation, error) {
		return q.ListAutomationsByUser(ctx, userID, page)
	})
}

func (s *Store) UpdateAutomation(ctx context.Context, id string, p AutomationPatch) (Automation, error) {
	return inTxValue(ctx, s, "automation.update", func(ctx context.Context, tx *Tx) (Automation, error) {
		return tx.UpdateAutomation(ctx, id, p)
	})
}

func (s *Store) DeleteAutomation(ctx context.Context, id string) (bool, error) {
	return write(ctx, s, "automation.delete", func(ctx context.Context, q *queries) (bool, error) {
		return q.DeleteAutomation(ctx, id)
	})
}
