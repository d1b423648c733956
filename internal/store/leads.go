package store

import (
	"context"
	"database/sql"
	"strings"
)

const leadColumns = `id, user_id, name, email, phone, source, status, notes, metadata, created_at, updated_at`

const defaultLeadLimit = 50

func scanLead(row scanner) (Lead, error) {
	var (
		l                                 Lead
		name, email, phone, source, notes sql.NullString
		status                            string
		metadata                          []byte
		created, updated                  dbTime
	)
	if err := row.Scan(&l.ID, &l.UserID, &name, &email, &phone, &source, &status, &notes, &metadata, &created, &updated); err != nil {
		return Lead{}, err
	}
	l.Name = strPtr(name)
	l.Email = strPtr(email)
	l.Phone = strPtr(phone)
	l.Source = strPtr(source)
	l.Notes = strPtr(notes)
	l.Status = LeadStatus(status)
	l.Metadata = rawJSON(metadata)
	l.CreatedAt = created.Time
	l.UpdatedAt = updated.Time
	return l, nil
}

func (q *queries) CreateLead(ctx context.Context, l Lead) (Lead, error) {
	if err := requireID("userId", l.UserID); err != nil {
		return Lead{}, err
	}
	status, err := ParseLeadStatus(string(l.Status))
	if err != nil {
		return Lead{}, err
	}
	l.Status = status
	if err := validJSON("metadata", l.Metadata); err != nil {
		return Lead{}, err
	}
	l.ID = newID(l.ID)
	now := q.timestamp()
	l.CreatedAt, l.UpdatedAt = now, now
	_, err = q.exec(ctx, `
		insert into leads(id, user_id, name, email, phone, source, status, notes, metadata, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, l.ID, l.UserID, nullable(l.Name), nullable(l.Email), nullable(l.Phone), nullable(l.Source),
		string(l.Status), nullable(l.Notes), jsonArg(l.Metadata), q.d.timeArg(now), q.d.timeArg(now))
	if err != nil {
		return Lead{}, err
	}
	return l, nil
}

func (q *queries) GetLead(ctx context.Context, id string) (Lead, bool, error) {
	return getOne(ctx, q, scanLead, `select `+leadColumns+` from leads where id = $1`, id)
}

func (q *queries) ListLeadsByUser(ctx context.Context, userID string, page Page) ([]Lead, error) {
	page = page.normalize(defaultLeadLimit)
	return list(ctx, q, scanLead,
		`select `+leadColumns+` from leads where user_id = $1
		order by created_at desc, id desc`+offsetLimit(2),
		userID, page.Limit, page.Offset)
}

func (q *queries) UpdateLead(ctx context.Context, id string, p LeadPatch) (Lead, error) {
	l, ok, err := q.GetLead(ctx, id)
	if err != nil {
		return Lead{}, err
	}
	if !ok {
		return Lead{}, ErrNotFound
	}
	if p.Name != nil {
		l.Name = p.Name
	}
	if p.Email != nil {
		l.Email = p.Email
	}
	if p.Phone != nil {
		l.Phone = p.Phone
	}
	if p.Source != nil {
		l.Source = p.Source
	}
	if p.Status != nil {
		// Only create defaults a blank status to new.
		if strings.TrimSpace(string(*p.Status)) == "" {
			return Lead{}, invalidf("status must not be empty")
		}
		status, err := ParseLeadStatus(string(*p.Status))
		if err != nil {
			return Lead{}, err
		}
		l.Status = status
	}
	if p.Notes != nil {
		l.Notes = p.Notes
	}
	if p.Metadata != nil {
		if err := validJSON("metadata", p.Metadata); err != nil {
			return Lead{}, err
		}
		l.Metadata = p.Metadata
	}
	l.UpdatedAt = q.bump(l.UpdatedAt)
	_, err = q.exec(ctx, `
		update leads set name = $1, email = $2, phone = $3, source = $4, status = $5, notes = $6,
			metadata = $7, updated_at = $8
		where id = $9
	`, nullable(l.Name), nullable(l.Email), nullable(l.Phone), nullable(l.Source), string(l.Status),
		nullable(l.Notes), jsonArg(l.Metadata), q.d.timeArg(l.UpdatedAt), id)
	if err != nil {
		return Lead{}, err
	}
	return l, nil
}

func (q *queries) DeleteLead(ctx context.Context, id string) (bool, error) {
	return q.execAffected(ctx, `delete from leads where id = $1`, id)
}

func (s *Store) CreateLead(ctx context.Context, l Lead) (Lead, error) {
	return write(ctx, s, "lead.create", func(ctx context.Context, q *queries) (Lead, error) {
		return q.CreateLead(ctx, l)
	})
}

func (s *Store) GetLead(ctx context.Context, id string) (Lead, bool, error) {
	return readOne(ctx, s, "lead.get", func(ctx context.Context, q *queries) (Lead, bool, error) {
		return q.GetLead(ctx, id)
	})
}

func (s *Store) ListLeadsByUser(ctx context.Context, userID string, page Page) ([]Lead, error) {
	return read(ctx, s, "lead.list", func(ctx context.Context, q *queries) ([]Lead, error) {
		return q.ListLeadsByUser(ctx, userID, page)
	})
}

func (s *Store) UpdateLead(ctx context.Context, id string, p LeadPatch) (Lead, error) {
	return inTxValue(ctx, s, "lead.update", func(ctx context.Context, tx *Tx) (Lead, error) {
		return tx.UpdateLead(ctx, id, p)
	})
}

func (s *Store) DeleteLead(ctx context.Context, id string) (bool, error) {
	return write(ctx, s, "lead.delete", func(ctx context.Context, q *queries) (bool, error) {
		return q.DeleteLead(ctx, id)
	})
}
