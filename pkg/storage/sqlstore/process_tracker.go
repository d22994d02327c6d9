package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/doug-martin/goqu/v9"
	"github.com/paysync/paysync/pkg/domain"
	"github.com/paysync/paysync/pkg/enums"
)

var processColumns = []any{
	"id", "name", "tag", "runner", "retry_count", "schedule_time", "tracking_data",
	"business_status", "status", "created_at", "updated_at",
}

func scanProcess(row scanner) (domain.ProcessTracker, error) {
	var (
		p                          domain.ProcessTracker
		tag, data                  string
		schedule, created, updated int64
	)
	err := row.Scan(
		&p.ID, &p.Name, &tag, &p.Runner, &p.RetryCount, &schedule, &data,
		&p.BusinessStatus, &p.Status, &created, &updated,
	)
	if err != nil {
		return p, err
	}
	if err := json.Unmarshal([]byte(tag), &p.Tag); err != nil {
		return p, fmt.Errorf("error decoding tag of process %s: %w", p.ID, err)
	}
	p.TrackingData = json.RawMessage(data)
	p.ScheduleTime = fromMillis(schedule)
	p.CreatedAt = fromMillis(created)
	p.UpdatedAt = fromMillis(updated)
	return p, nil
}

// InsertProcess stores a new process tracker.  The caller sets every field,
// including timestamps.
func (s *Store) InsertProcess(ctx context.Context, p domain.ProcessTracker) error {
	tag := p.Tag
	if tag == nil {
		tag = []string{}
	}
	tagByt, err := json.Marshal(tag)
	if err != nil {
		return err
	}
	data := p.TrackingData
	if len(data) == 0 {
		data = json.RawMessage("{}")
	}

	return s.insert(ctx, domain.TableProcessTracker, sq.Record{
		"id":              p.ID,
		"name":            p.Name,
		"tag":             string(tagByt),
		"runner":          p.Runner,
		"retry_count":     p.RetryCount,
		"schedule_time":   p.ScheduleTime.UnixMilli(),
		"tracking_data":   string(data),
		"business_status": p.BusinessStatus,
		"status":          p.Status.String(),
		"created_at":      p.CreatedAt.UnixMilli(),
		"updated_at":      p.UpdatedAt.UnixMilli(),
	})
}

func (s *Store) FindProcessByID(ctx context.Context, id string) (domain.ProcessTracker, error) {
	query, args, err := s.dialect().
		From(domain.TableProcessTracker).
		Select(processColumns...).
		Where(sq.C("id").Eq(id)).
		ToSQL()
	if err != nil {
		return domain.ProcessTracker{}, err
	}

	p, err := scanProcess(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ProcessTracker{}, ErrNotFound
	}
	return p, err
}

// FindDueProcesses returns up to limit processes in status scheduled before
// the given time, earliest first.
func (s *Store) FindDueProcesses(ctx context.Context, before time.Time, status enums.ProcessTrackerStatus, limit uint) ([]domain.ProcessTracker, error) {
	ds := s.dialect().
		From(domain.TableProcessTracker).
		Select(processColumns...).
		Where(
			sq.C("status").Eq(status.String()),
			sq.C("schedule_time").Lt(before.UnixMilli()),
		).
		Order(sq.C("schedule_time").Asc(), sq.C("id").Asc())
	if limit > 0 {
		ds = ds.Limit(limit)
	}

	query, args, err := ds.ToSQL()
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error querying due processes: %w", err)
	}
	defer rows.Close()

	var out []domain.ProcessTracker
	for rows.Next() {
		p, err := scanProcess(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// UpdateProcessStatusByIDs moves the given processes from one status to
// another.  Processes not currently in from are left alone; the number moved
// is returned.
func (s *Store) UpdateProcessStatusByIDs(ctx context.Context, ids []string, from, to enums.ProcessTrackerStatus) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	return s.update(ctx, domain.TableProcessTracker,
		sq.Record{
			"status":     to.String(),
			"updated_at": domain.Now(s.clock).UnixMilli(),
		},
		sq.C("id").In(ids),
		sq.C("status").Eq(from.String()),
	)
}

// UpdateProcess applies a changeset to one process and returns the result.
// When from is not empty the process must currently be in one of those
// statuses; otherwise the process is returned unchanged with
// ErrStatusConflict.
func (s *Store) UpdateProcess(ctx context.Context, id string, from []enums.ProcessTrackerStatus, u domain.ProcessTrackerUpdate) (domain.ProcessTracker, error) {
	rec := sq.Record{"updated_at": domain.Now(s.clock).UnixMilli()}
	if u.Status != nil {
		rec["status"] = u.Status.String()
	}
	if u.BusinessStatus != nil {
		rec["business_status"] = *u.BusinessStatus
	}
	if u.RetryCount != nil {
		rec["retry_count"] = *u.RetryCount
	}
	if u.ScheduleTime != nil {
		rec["schedule_time"] = u.ScheduleTime.UnixMilli()
	}
	if len(u.TrackingData) > 0 {
		rec["tracking_data"] = string(u.TrackingData)
	}

	where := []sq.Expression{sq.C("id").Eq(id)}
	if len(from) > 0 {
		statuses := make([]string, len(from))
		for i, st := range from {
			statuses[i] = st.String()
		}
		where = append(where, sq.C("status").In(statuses))
	}

	n, err := s.update(ctx, domain.TableProcessTracker, rec, where...)
	if err != nil {
		return domain.ProcessTracker{}, err
	}
	if n == 0 {
		current, err := s.FindProcessByID(ctx, id)
		if err != nil {
			return domain.ProcessTracker{}, err
		}
		return current, ErrStatusConflict
	}
	return s.FindProcessByID(ctx, id)
}

// DeleteFinishedBefore removes finished processes last updated before t.
func (s *Store) DeleteFinishedBefore(ctx context.Context, t time.Time) (int64, error) {
	query, args, err := s.dialect().
		Delete(domain.TableProcessTracker).
		Where(
			sq.C("status").Eq(enums.ProcessTrackerStatusFinish.String()),
			sq.C("updated_at").Lt(t.UnixMilli()),
		).
		ToSQL()
	if err != nil {
		return 0, err
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("error deleting finished processes: %w", err)
	}
	return res.RowsAffected()
}
