package attendance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/007-bg/Live-Attendance-System/cmd/identity"
	v1 "github.com/007-bg/Live-Attendance-System/shared/contracts/attendance/v1"
)

const tracerName = "github.com/007-bg/Live-Attendance-System/cmd/internal/attendance"

// Directory is the roster and user lookup used at finalize.
type Directory interface {
	GetRoster(ctx context.Context, classID string) (identity.Roster, error)
	IsStudent(ctx context.Context, userID string) (bool, error)
}

// Config wires a Manager.
type Config struct {
	Store     SessionStore
	Sink      Sink
	Directory Directory

	Logger  *slog.Logger
	Metrics *Metrics
	Tracer  trace.Tracer

	Now   func() time.Time
	NewID func(now time.Time) (string, error)
}

// Manager is the only writer of sessions.
type Manager struct {
	store SessionStore
	sink  Sink
	dir   Directory

	log     *slog.Logger
	metrics *Metrics
	tracer  trace.Tracer

	now   func() time.Time
	newID func(time.Time) (string, error)
	locks *classLocks
}

// FinalizeResult describes a finalized session.
type FinalizeResult struct {
	SessionID string
	ClassID   string
	Summary   Summary
	Committed int
	// AlreadyApplied is set when the sink already held this session's records.
	AlreadyApplied bool
}

// NewManager validates cfg and returns a Manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Store == nil {
		return nil, errors.New("attendance: nil session store")
	}
	if cfg.Sink == nil {
		return nil, errors.New("attendance: nil sink")
	}
	if cfg.Directory == nil {
		return nil, errors.New("attendance: nil directory")
	}
	if cfg.NewID == nil {
		return nil, errors.New("attendance: nil id generator")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Tracer == nil {
		cfg.Tracer = otel.Tracer(tracerName)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Manager{
		store:   cfg.Store,
		sink:    cfg.Sink,
		dir:     cfg.Directory,
		log:     cfg.Logger,
		metrics: cfg.Metrics,
		tracer:  cfg.Tracer,
		now:     cfg.Now,
		newID:   cfg.NewID,
		locks:   newClassLocks(),
	}, nil
}

func (m *Manager) startSpan(ctx context.Context, name, classID string) (context.Context, trace.Span) {
	return m.tracer.Start(ctx, name, trace.WithAttributes(attribute.String("attendance.class_id", classID)))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func requireClassID(op, classID string) (string, error) {
	classID = strings.TrimSpace(classID)
	if classID == "" {
		return "", opErr(op, ErrInvalidInput, MsgClassIDRequired, nil)
	}
	return classID, nil
}

// Start opens a session for classID. Ownership is checked by the caller.
func (m *Manager) Start(ctx context.Context, classID string) (s Session, err error) {
	const op = "attendance.Start"

	classID, err = requireClassID(op, classID)
	if err != nil {
		return Session{}, err
	}
	ctx, span := m.startSpan(ctx, op, classID)
	defer func() { endSpan(span, err) }()

	unlock := m.locks.lock(classID)
	defer unlock()

	now := m.now().UTC()
	id, err := m.newID(now)
	if err != nil {
		return Session{}, fmt.Errorf("%s: session id: %w", op, err)
	}
	s = Session{
		SessionID:  id,
		ClassID:    classID,
		StartedAt:  now,
		Attendance: map[string]Status{},
	}
	if err := m.store.Create(ctx, s); err != nil {
		return Session{}, err
	}

	span.SetAttributes(attribute.String("attendance.session_id", id))
	m.metrics.sessionStarted()
	m.log.Info("attendance.session.start", "class_id", classID, "session_id", id)
	return s, nil
}

// Mark sets studentID's status in the active session.
func (m *Manager) Mark(ctx context.Context, classID, studentID string, status Status) (s Session, err error) {
	const op = "attendance.Mark"

	classID, err = requireClassID(op, classID)
	if err != nil {
		return Session{}, err
	}
	studentID = strings.TrimSpace(studentID)
	if studentID == "" {
		return Session{}, opErr(op, ErrInvalidInput, MsgStudentIDMissing, nil)
	}
	st, ok := ParseStatus(string(status))
	if !ok {
		return Session{}, opErr(op, ErrInvalidInput, MsgInvalidStatus, nil)
	}

	ctx, span := m.startSpan(ctx, op, classID)
	defer func() { endSpan(span, err) }()
	span.SetAttributes(attribute.String("attendance.student_id", studentID), attribute.String("attendance.status", string(st)))

	unlock := m.locks.lock(classID)
	defer unlock()

	s, err = m.store.Update(ctx, classID, func(sess *Session) error {
		if sess.Finalized() {
			return errNoSession(op, classID)
		}
		if sess.Attendance == nil {
			sess.Attendance = map[string]Status{}
		}
		sess.Attendance[studentID] = st
		return nil
	})
	if err != nil {
		return Session{}, err
	}

	m.metrics.markApplied(st)
	m.log.Debug("attendance.mark", "class_id", classID, "session_id", s.SessionID, "student_id", studentID, "status", st)
	return s, nil
}

// Summary derives the current counts of the active session.
func (m *Manager) Summary(ctx context.Context, classID string) (sum Summary, err error) {
	const op = "attendance.Summary"

	classID, err = requireClassID(op, classID)
	if err != nil {
		return Summary{}, err
	}
	ctx, span := m.startSpan(ctx, op, classID)
	defer func() { endSpan(span, err) }()

	s, err := m.store.Get(ctx, classID)
	if err != nil {
		return Summary{}, err
	}
	return s.Summary(), nil
}

// StudentStatus returns studentID's mark, or v1.NotYetUpdated when the
// student is unmarked or no session is active.
func (m *Manager) StudentStatus(ctx context.Context, classID, studentID string) (status string, err error) {
	const op = "attendance.StudentStatus"

	classID, err = requireClassID(op, classID)
	if err != nil {
		return "", err
	}
	ctx, span := m.startSpan(ctx, op, classID)
	defer func() { endSpan(span, err) }()

	s, err := m.store.Get(ctx, classID)
	if IsNotFound(err) {
		return v1.NotYetUpdated, nil
	}
	if err != nil {
		return "", err
	}
	st, ok := s.StatusOf(strings.TrimSpace(studentID))
	if !ok {
		return v1.NotYetUpdated, nil
	}
	return string(st), nil
}

// Finalize writes one record per enrolled student and then deletes the session.
//
// Unmarked students default to absent; marked ids outside the roster, and
// roster ids that do not resolve to a student, are skipped. On any failure
// before the sink commit succeeds the session is left untouched. Once the
// commit succeeds the session is flagged finalized so later marks are
// refused, and the summary is read back from the stored records. A retry
// after a failed delete reports AlreadyApplied.
func (m *Manager) Finalize(ctx context.Context, classID string) (res FinalizeResult, err error) {
	const op = "attendance.Finalize"

	classID, err = requireClassID(op, classID)
	if err != nil {
		return FinalizeResult{}, err
	}
	ctx, span := m.startSpan(ctx, op, classID)
	defer func() {
		if err != nil {
			m.metrics.finalizeResult("error", 0)
		}
		endSpan(span, err)
	}()

	unlock := m.locks.lock(classID)
	defer unlock()

	s, err := m.store.Get(ctx, classID)
	if err != nil {
		return FinalizeResult{}, err
	}
	span.SetAttributes(attribute.String("attendance.session_id", s.SessionID))

	res = FinalizeResult{SessionID: s.SessionID, ClassID: classID}
	if s.Finalized() {
		res.AlreadyApplied = true
	} else {
		res.Committed, res.AlreadyApplied, err = m.commit(ctx, op, s)
		if err != nil {
			return FinalizeResult{}, err
		}
	}
	if res.AlreadyApplied {
		m.log.Warn("attendance.finalize.already_applied", "class_id", classID, "session_id", s.SessionID)
	}

	recs, err := m.sink.Records(ctx, s.SessionID)
	if err != nil {
		m.log.Error("attendance.finalize.records.fail", "class_id", classID, "session_id", s.SessionID, "err", err)
		return FinalizeResult{}, opErr(op, ErrPersistence, MsgPersistFailed, err)
	}
	for _, r := range recs {
		res.Summary.add(r.Status)
	}

	if err := m.store.Delete(ctx, classID, s.SessionID); err != nil {
		m.log.Error("attendance.finalize.delete.fail", "class_id", classID, "session_id", s.SessionID, "err", err)
		return FinalizeResult{}, opErr(op, ErrPersistence, MsgClearFailed, err)
	}

	result := "committed"
	if res.AlreadyApplied {
		result = "already_applied"
	}
	m.metrics.finalizeResult(result, res.Committed)
	m.log.Info("attendance.session.finalize",
		"class_id", classID,
		"session_id", s.SessionID,
		"present", res.Summary.Present,
		"absent", res.Summary.Absent,
		"total", res.Summary.Total,
		"committed", res.Committed,
		"already_applied", res.AlreadyApplied,
	)
	return res, nil
}

// commit writes s's final entries and flags the stored session finalized.
// alreadyApplied is set when the sink held some of the rows before this call.
func (m *Manager) commit(ctx context.Context, op string, s Session) (committed int, alreadyApplied bool, err error) {
	roster, err := m.dir.GetRoster(ctx, s.ClassID)
	if identity.IsNotFound(err) {
		return 0, false, opErr(op, ErrNotFound, MsgClassNotFound, err)
	}
	if err != nil {
		return 0, false, fmt.Errorf("%s: roster: %w", op, err)
	}

	entries, err := m.finalEntries(ctx, s, roster)
	if err != nil {
		return 0, false, fmt.Errorf("%s: resolve students: %w", op, err)
	}

	committed, err = m.sink.Commit(ctx, s.SessionID, s.ClassID, entries)
	if err != nil {
		m.log.Error("attendance.finalize.commit.fail", "class_id", s.ClassID, "session_id", s.SessionID, "err", err)
		return 0, false, opErr(op, ErrPersistence, MsgPersistFailed, err)
	}

	at := m.now().UTC()
	if _, err := m.store.Update(ctx, s.ClassID, func(sess *Session) error {
		if sess.SessionID != s.SessionID {
			return errNoSession(op, s.ClassID)
		}
		sess.FinalizedAt = &at
		return nil
	}); err != nil {
		m.log.Warn("attendance.finalize.flag.fail", "class_id", s.ClassID, "session_id", s.SessionID, "err", err)
	}
	return committed, committed < len(entries), nil
}

func (m *Manager) finalEntries(ctx context.Context, s Session, roster identity.Roster) ([]Entry, error) {
	seen := make(map[string]struct{}, len(roster.StudentIDs))
	entries := make([]Entry, 0, len(roster.StudentIDs))
	for _, raw := range roster.StudentIDs {
		id := strings.TrimSpace(raw)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		ok, err := m.dir.IsStudent(ctx, id)
		if err != nil {
			return nil, err
		}
		if !ok {
			m.log.Debug("attendance.finalize.skip_unknown", "class_id", s.ClassID, "student_id", id)
			continue
		}
		st, marked := s.StatusOf(id)
		if !marked {
			st = StatusAbsent
		}
		entries = append(entries, Entry{StudentID: id, Status: st})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].StudentID < entries[j].StudentID })
	return entries, nil
}

// ActiveSessions returns every active session ordered by start time.
func (m *Manager) ActiveSessions(ctx context.Context) (out []Session, err error) {
	ctx, span := m.tracer.Start(ctx, "attendance.ActiveSessions")
	defer func() { endSpan(span, err) }()

	all, err := m.store.List(ctx)
	if err != nil {
		return nil, err
	}
	out = all[:0]
	for _, s := range all {
		if !s.Finalized() {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, nil
}
