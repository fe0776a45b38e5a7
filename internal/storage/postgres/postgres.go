// Package postgres backs the tenant-scoped repository with lib/pq. Every
// query filters on tenant_id; the scoped repository is the only way in.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"booking-service/internal/models"
	"booking-service/internal/storage"
	"booking-service/pkg/response"
)

type Storage struct {
	db *sql.DB
}

func New(storagePath string) (*Storage, error) {
	const op = "storage.postgres.New"

	db, err := sql.Open("postgres", storagePath)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Storage{db: db}, nil
}

// Init creates the schema. Safe to run repeatedly.
func (s *Storage) Init(ctx context.Context) error {
	const op = "storage.postgres.Init"

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS schedule_templates (
			id TEXT NOT NULL,
			tenant_id TEXT NOT NULL,
			name TEXT NOT NULL,
			template_type TEXT NOT NULL,
			max_concurrent_slots INTEGER NOT NULL DEFAULT 1,
			requires_provider_assignment BOOLEAN NOT NULL DEFAULT FALSE,
			timezone TEXT NOT NULL DEFAULT 'UTC',
			PRIMARY KEY (tenant_id, id)
		)`,
		`CREATE TABLE IF NOT EXISTS template_windows (
			tenant_id TEXT NOT NULL,
			template_id TEXT NOT NULL,
			day_of_week INTEGER NOT NULL,
			start_time TEXT NOT NULL,
			end_time TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_template_windows_template
			ON template_windows (tenant_id, template_id)`,
		`CREATE TABLE IF NOT EXISTS template_providers (
			tenant_id TEXT NOT NULL,
			template_id TEXT NOT NULL,
			provider_id TEXT NOT NULL,
			is_primary BOOLEAN NOT NULL DEFAULT FALSE,
			can_auto_assign BOOLEAN NOT NULL DEFAULT TRUE,
			priority INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (tenant_id, template_id, provider_id)
		)`,
		`CREATE TABLE IF NOT EXISTS date_overrides (
			id TEXT NOT NULL,
			tenant_id TEXT NOT NULL,
			scope TEXT NOT NULL,
			template_id TEXT,
			date DATE NOT NULL,
			is_unavailable BOOLEAN NOT NULL DEFAULT FALSE,
			custom_start_time TEXT,
			custom_end_time TEXT,
			reason TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (tenant_id, id)
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_date_overrides_scope_date
			ON date_overrides (tenant_id, scope, COALESCE(template_id, ''), date)`,
		`CREATE TABLE IF NOT EXISTS holidays (
			tenant_id TEXT NOT NULL,
			date DATE NOT NULL,
			name TEXT NOT NULL,
			source TEXT NOT NULL DEFAULT 'manual',
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			PRIMARY KEY (tenant_id, date)
		)`,
		`CREATE TABLE IF NOT EXISTS provider_leaves (
			tenant_id TEXT NOT NULL,
			provider_id TEXT NOT NULL,
			start_date DATE NOT NULL,
			end_date DATE NOT NULL,
			is_approved BOOLEAN NOT NULL DEFAULT FALSE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_provider_leaves_dates
			ON provider_leaves (tenant_id, start_date, end_date)`,
		`CREATE TABLE IF NOT EXISTS services (
			id TEXT NOT NULL,
			tenant_id TEXT NOT NULL,
			name TEXT NOT NULL,
			template_id TEXT NOT NULL,
			duration_minutes INTEGER NOT NULL,
			buffer_before_minutes INTEGER NOT NULL DEFAULT 0,
			buffer_after_minutes INTEGER NOT NULL DEFAULT 0,
			min_notice_hours INTEGER NOT NULL DEFAULT 0,
			max_advance_days INTEGER NOT NULL DEFAULT 0,
			max_bookings_per_day INTEGER,
			PRIMARY KEY (tenant_id, id)
		)`,
		`CREATE TABLE IF NOT EXISTS appointments (
			id TEXT NOT NULL,
			tenant_id TEXT NOT NULL,
			service_id TEXT NOT NULL,
			provider_id TEXT,
			start_time TIMESTAMPTZ NOT NULL,
			end_time TIMESTAMPTZ NOT NULL,
			status TEXT NOT NULL,
			booking_reference TEXT NOT NULL,
			guest_name TEXT NOT NULL DEFAULT '',
			guest_email TEXT NOT NULL DEFAULT '',
			guest_phone TEXT NOT NULL DEFAULT '',
			notes TEXT NOT NULL DEFAULT '',
			rescheduled_from_id TEXT,
			reschedule_count INTEGER NOT NULL DEFAULT 0,
			cancelled_at TIMESTAMPTZ,
			cancelled_by TEXT NOT NULL DEFAULT '',
			cancellation_reason TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (tenant_id, id),
			CONSTRAINT appointments_tenant_reference_key UNIQUE (tenant_id, booking_reference)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_appointments_start
			ON appointments (tenant_id, start_time)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}

	return nil
}

func (s *Storage) Close() error {
	return s.db.Close()
}

// Scoped returns the repository capability bound to one tenant.
func (s *Storage) Scoped(tenantID string) storage.Repository {
	return &Repository{db: s.db, tenant: tenantID}
}

// Repository executes every query with its tenant bound into the WHERE
// clause. It is cheap to construct per request.
type Repository struct {
	db     *sql.DB
	tenant string
}

// classify folds driver errors into the store's sentinel vocabulary.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return response.ErrNotFound
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch string(pqErr.Code) {
		case "23505":
			if pqErr.Constraint == "appointments_tenant_reference_key" {
				return storage.ErrDuplicateReference
			}
			return response.ErrConflict
		case "40001", "40P01", "55P03":
			return fmt.Errorf("%w: %s", storage.ErrTransient, pqErr.Code)
		}
	}

	return err
}

func dateArg(t time.Time) string {
	return t.Format("2006-01-02")
}

func (r *Repository) Service(ctx context.Context, serviceID string) (*models.ServiceDefinition, error) {
	const op = "storage.postgres.Service"

	var svc models.ServiceDefinition
	var maxPerDay sql.NullInt64

	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, template_id, duration_minutes, buffer_before_minutes,
		        buffer_after_minutes, min_notice_hours, max_advance_days, max_bookings_per_day
		   FROM services WHERE tenant_id = $1 AND id = $2`,
		r.tenant, serviceID,
	).Scan(&svc.ID, &svc.Name, &svc.TemplateID, &svc.DurationMinutes, &svc.BufferBeforeMinutes,
		&svc.BufferAfterMinutes, &svc.MinNoticeHours, &svc.MaxAdvanceDays, &maxPerDay)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, classify(err))
	}

	if maxPerDay.Valid {
		n := int(maxPerDay.Int64)
		svc.MaxBookingsPerDay = &n
	}

	return &svc, nil
}

func (r *Repository) Template(ctx context.Context, templateID string) (*models.ScheduleTemplate, error) {
	const op = "storage.postgres.Template"

	var tpl models.ScheduleTemplate

	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, template_type, max_concurrent_slots, requires_provider_assignment, timezone
		   FROM schedule_templates WHERE tenant_id = $1 AND id = $2`,
		r.tenant, templateID,
	).Scan(&tpl.ID, &tpl.Name, &tpl.Kind, &tpl.MaxConcurrentSlots, &tpl.RequiresProviderAssignment, &tpl.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, classify(err))
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT day_of_week, start_time, end_time
		   FROM template_windows WHERE tenant_id = $1 AND template_id = $2
		  ORDER BY day_of_week, start_time`,
		r.tenant, templateID,
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, classify(err))
	}
	defer rows.Close()

	for rows.Next() {
		var w models.TemplateWindow
		if err := rows.Scan(&w.DayOfWeek, &w.StartTime, &w.EndTime); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		tpl.Windows = append(tpl.Windows, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, classify(err))
	}

	return &tpl, nil
}

func (r *Repository) TemplateOverride(ctx context.Context, templateID string, date time.Time) (*models.DateOverride, error) {
	const op = "storage.postgres.TemplateOverride"

	ov, err := r.scanOverride(r.db.QueryRowContext(ctx,
		`SELECT id, scope, template_id, date, is_unavailable, custom_start_time, custom_end_time, reason
		   FROM date_overrides
		  WHERE tenant_id = $1 AND scope = $2 AND template_id = $3 AND date = $4`,
		r.tenant, models.ScopeTemplate, templateID, dateArg(date),
	))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return ov, nil
}

func (r *Repository) GlobalOverride(ctx context.Context, date time.Time) (*models.DateOverride, error) {
	const op = "storage.postgres.GlobalOverride"

	ov, err := r.scanOverride(r.db.QueryRowContext(ctx,
		`SELECT id, scope, template_id, date, is_unavailable, custom_start_time, custom_end_time, reason
		   FROM date_overrides
		  WHERE tenant_id = $1 AND scope = $2 AND date = $3`,
		r.tenant, models.ScopeGlobal, dateArg(date),
	))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return ov, nil
}

func (r *Repository) scanOverride(row *sql.Row) (*models.DateOverride, error) {
	var ov models.DateOverride
	var tplID, customStart, customEnd sql.NullString

	err := row.Scan(&ov.ID, &ov.Scope, &tplID, &ov.Date, &ov.IsUnavailable, &customStart, &customEnd, &ov.Reason)
	if err != nil {
		return nil, classify(err)
	}

	if tplID.Valid {
		ov.TemplateID = &tplID.String
	}
	if customStart.Valid {
		ov.CustomStart = &customStart.String
	}
	if customEnd.Valid {
		ov.CustomEnd = &customEnd.String
	}

	return &ov, nil
}

func (r *Repository) HolidayOn(ctx context.Context, date time.Time) (*models.Holiday, error) {
	const op = "storage.postgres.HolidayOn"

	var h models.Holiday

	err := r.db.QueryRowContext(ctx,
		`SELECT date, name, source, is_active
		   FROM holidays WHERE tenant_id = $1 AND date = $2 AND is_active`,
		r.tenant, dateArg(date),
	).Scan(&h.Date, &h.Name, &h.Source, &h.IsActive)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, classify(err))
	}

	return &h, nil
}

func (r *Repository) Assignments(ctx context.Context, templateID string) ([]models.ProviderAssignment, error) {
	const op = "storage.postgres.Assignments"

	rows, err := r.db.QueryContext(ctx,
		`SELECT template_id, provider_id, is_primary, can_auto_assign, priority
		   FROM template_providers WHERE tenant_id = $1 AND template_id = $2
		  ORDER BY is_primary DESC, priority DESC, provider_id`,
		r.tenant, templateID,
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, classify(err))
	}
	defer rows.Close()

	var out []models.ProviderAssignment
	for rows.Next() {
		var a models.ProviderAssignment
		if err := rows.Scan(&a.TemplateID, &a.ProviderID, &a.IsPrimary, &a.CanAutoAssign, &a.Priority); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, classify(err))
	}

	return out, nil
}

func (r *Repository) LeavesOn(ctx context.Context, date time.Time) ([]models.ProviderLeave, error) {
	const op = "storage.postgres.LeavesOn"

	rows, err := r.db.QueryContext(ctx,
		`SELECT provider_id, start_date, end_date, is_approved
		   FROM provider_leaves
		  WHERE tenant_id = $1 AND is_approved AND start_date <= $2 AND end_date >= $2`,
		r.tenant, dateArg(date),
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, classify(err))
	}
	defer rows.Close()

	var out []models.ProviderLeave
	for rows.Next() {
		var l models.ProviderLeave
		if err := rows.Scan(&l.ProviderID, &l.StartDate, &l.EndDate, &l.Approved); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, classify(err))
	}

	return out, nil
}

const appointmentColumns = `id, tenant_id, service_id, provider_id, start_time, end_time, status,
	booking_reference, guest_name, guest_email, guest_phone, notes, rescheduled_from_id,
	reschedule_count, cancelled_at, cancelled_by, cancellation_reason, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAppointment(row rowScanner) (*models.Appointment, error) {
	var a models.Appointment
	var providerID, rescheduledFrom sql.NullString
	var cancelledAt sql.NullTime

	err := row.Scan(&a.ID, &a.TenantID, &a.ServiceID, &providerID, &a.Start, &a.End, &a.Status,
		&a.BookingReference, &a.Contact.Name, &a.Contact.Email, &a.Contact.Phone, &a.Notes, &rescheduledFrom,
		&a.RescheduleCount, &cancelledAt, &a.CancelledBy, &a.CancelReason, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, classify(err)
	}

	if providerID.Valid {
		a.ProviderID = &providerID.String
	}
	if rescheduledFrom.Valid {
		a.RescheduledFrom = &rescheduledFrom.String
	}
	if cancelledAt.Valid {
		a.CancelledAt = &cancelledAt.Time
	}

	return &a, nil
}

func (r *Repository) ActiveForTemplateOn(ctx context.Context, templateID string, date time.Time) ([]models.Appointment, error) {
	const op = "storage.postgres.ActiveForTemplateOn"

	dayStart := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	dayEnd := dayStart.AddDate(0, 0, 1)

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+appointmentColumns+`
		   FROM appointments a
		  WHERE a.tenant_id = $1
		    AND a.service_id IN (SELECT id FROM services WHERE tenant_id = $1 AND template_id = $2)
		    AND a.status IN ('pending', 'confirmed')
		    AND a.start_time < $4 AND a.end_time > $3
		  ORDER BY a.start_time`,
		r.tenant, templateID, dayStart, dayEnd,
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, classify(err))
	}
	defer rows.Close()

	var out []models.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		out = append(out, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, classify(err))
	}

	return out, nil
}

func (r *Repository) CountActiveForServiceOn(ctx context.Context, serviceID string, date time.Time) (int, error) {
	const op = "storage.postgres.CountActiveForServiceOn"

	dayStart := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	dayEnd := dayStart.AddDate(0, 0, 1)

	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM appointments
		  WHERE tenant_id = $1 AND service_id = $2
		    AND status IN ('pending', 'confirmed')
		    AND start_time >= $3 AND start_time < $4`,
		r.tenant, serviceID, dayStart, dayEnd,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, classify(err))
	}

	return n, nil
}

func (r *Repository) AppointmentByReference(ctx context.Context, reference string) (*models.Appointment, error) {
	const op = "storage.postgres.AppointmentByReference"

	a, err := scanAppointment(r.db.QueryRowContext(ctx,
		`SELECT `+appointmentColumns+` FROM appointments a
		  WHERE a.tenant_id = $1 AND a.booking_reference = $2`,
		r.tenant, reference,
	))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return a, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// insertIfCapacity is the race-free commit: the capacity count and the insert
// run in one statement, so two writers cannot both pass the check. A zero
// rows-affected result means the slot filled up.
func (r *Repository) insertIfCapacity(ctx context.Context, ex execer, appt *models.Appointment, templateID string, capacity int, perProvider bool) error {
	res, err := ex.ExecContext(ctx,
		`INSERT INTO appointments (id, tenant_id, service_id, provider_id, start_time, end_time, status,
			booking_reference, guest_name, guest_email, guest_phone, notes, rescheduled_from_id,
			reschedule_count, cancelled_by, cancellation_reason, created_at, updated_at)
		 SELECT $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, '', '', $15, $15
		  WHERE (
			SELECT COUNT(*)
			  FROM appointments a
			 WHERE a.tenant_id = $2
			   AND a.service_id IN (SELECT id FROM services WHERE tenant_id = $2 AND template_id = $16)
			   AND a.status IN ('pending', 'confirmed')
			   AND a.start_time < $6 AND a.end_time > $5
			   AND (NOT $17::boolean OR a.provider_id = $4)
		  ) < $18`,
		appt.ID, r.tenant, appt.ServiceID, appt.ProviderID, appt.Start, appt.End, appt.Status,
		appt.BookingReference, appt.Contact.Name, appt.Contact.Email, appt.Contact.Phone, appt.Notes,
		appt.RescheduledFrom, appt.RescheduleCount, appt.CreatedAt, templateID, perProvider, capacity,
	)
	if err != nil {
		return classify(err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return response.ErrConflict
	}

	return nil
}

func (r *Repository) InsertAppointmentIfCapacity(ctx context.Context, appt *models.Appointment, templateID string, capacity int, perProvider bool) error {
	const op = "storage.postgres.InsertAppointmentIfCapacity"

	if err := r.insertIfCapacity(ctx, r.db, appt, templateID, capacity, perProvider); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (r *Repository) MarkCancelled(ctx context.Context, reference string, at time.Time, by, reason string) error {
	const op = "storage.postgres.MarkCancelled"

	res, err := r.db.ExecContext(ctx,
		`UPDATE appointments
		    SET status = $3, cancelled_at = $4, cancelled_by = $5, cancellation_reason = $6, updated_at = $4
		  WHERE tenant_id = $1 AND booking_reference = $2
		    AND status IN ('pending', 'confirmed')`,
		r.tenant, reference, models.StatusCancelled, at, by, reason,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, classify(err))
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		// Already terminal or unknown; the manager distinguishes via a read.
		return fmt.Errorf("%s: %w", op, response.ErrConflict)
	}

	return nil
}

func (r *Repository) MarkCompleted(ctx context.Context, reference string, at time.Time) error {
	const op = "storage.postgres.MarkCompleted"

	res, err := r.db.ExecContext(ctx,
		`UPDATE appointments SET status = $3, updated_at = $4
		  WHERE tenant_id = $1 AND booking_reference = $2 AND status = 'confirmed'`,
		r.tenant, reference, models.StatusCompleted, at,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, classify(err))
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, response.ErrConflict)
	}

	return nil
}

// Reschedule flips the original appointment to rescheduled and inserts the
// replacement in one transaction, so the ledger never shows both rows holding
// capacity or the original released without a replacement.
func (r *Repository) Reschedule(ctx context.Context, originalID string, replacement *models.Appointment, templateID string, capacity int, perProvider bool) error {
	const op = "storage.postgres.Reschedule"

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: %w", op, classify(err))
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE appointments SET status = $3, updated_at = $4
		  WHERE tenant_id = $1 AND id = $2 AND status = 'confirmed'`,
		r.tenant, originalID, models.StatusRescheduled, replacement.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, classify(err))
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, response.ErrConflict)
	}

	if err := r.insertIfCapacity(ctx, tx, replacement, templateID, capacity, perProvider); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: %w", op, classify(err))
	}

	return nil
}
