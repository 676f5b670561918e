package postgres

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/go-pg/pg/v10"
	"github.com/google/uuid"
	"github.com/rbroggi/slotcast/internal/core/model"
	"github.com/rbroggi/slotcast/internal/core/ports"
)

const (
	uuidConstraint      = "identities_uuid_unique"
	emailConstraint     = "identities_email_unique"
	streamKeyConstraint = "sessions_stream_key_unique"
)

// errStopIteration ends a ForEach early when the consumer stops ranging.
var errStopIteration = errors.New("stop iteration")

// PostgresDB is a postgress adapter for persistance.
type PostgresDB struct {
	db      *pg.DB
	nowFunc func() time.Time
}

// PostgresDBArgs are the mandatory arguments for the creation of a PostgresDB
type PostgresDBArgs struct {
	// DB is a postgres database handle
	DB *pg.DB
}

// PostgresDBOptArgs are the optional arguments for building a PostgresDB
type PostgresDBOptArgs = func(*PostgresDB)

// WithNowFunc can be used to override the nowFunc. Useful for testing.
func WithNowFunc(nowFunc func() time.Time) PostgresDBOptArgs {
	return func(p *PostgresDB) {
		p.nowFunc = nowFunc
	}
}

// NewPostgresDB creates a new PostgresDB.
func NewPostgresDB(args PostgresDBArgs, optArgs ...PostgresDBOptArgs) (*PostgresDB, error) {
	if args.DB == nil {
		return nil, errors.New("postgres adapter requires a database handle")
	}
	p := &PostgresDB{db: args.DB, nowFunc: func() time.Time { return time.Now().UTC() }}
	for _, opt := range optArgs {
		opt(p)
	}
	return p, nil
}

var _ ports.Repository = (*PostgresDB)(nil)

// Ping checks the database is reachable.
func (p *PostgresDB) Ping(ctx context.Context) error {
	return p.db.Ping(ctx)
}

// SaveIdentity will save the identity in the database.
func (p *PostgresDB) SaveIdentity(ctx context.Context, identity *model.Identity) error {
	if identity == nil {
		return errors.New("nil identity passed to save method")
	}

	now := p.nowFunc()
	dbIdentity := &identityDB{
		ID:         uuid.New(),
		UUID:       identity.UUID,
		Email:      identity.Email,
		UserName:   identity.UserName,
		Category:   identity.Category,
		Image:      identity.Image,
		FeedbackID: identity.FeedbackID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if _, err := p.db.ModelContext(ctx, dbIdentity).Insert(); err != nil {
		switch constraintViolated(err) {
		case uuidConstraint:
			return model.ErrDuplicateUUID
		case emailConstraint:
			return model.ErrDuplicateEmail
		}
		return err
	}

	*identity = dbIdentity.toModel()
	return nil
}

// FindIdentity looks an identity up by id, uuid or email.
func (p *PostgresDB) FindIdentity(ctx context.Context, query ports.FindIdentityQuery) (*model.Identity, error) {
	found := new(identityDB)
	q := p.db.ModelContext(ctx, found)
	switch {
	case query.ID != "":
		id, err := uuid.Parse(query.ID)
		if err != nil {
			return nil, model.ErrIdentityNotFound
		}
		q = q.Where("id = ?", id)
	case query.UUID != "":
		q = q.Where("uuid = ?", query.UUID)
	case query.Email != "":
		q = q.Where("email = ?", query.Email)
	default:
		return nil, model.ErrIdentityNotFound
	}

	if err := q.Select(); err != nil {
		if errors.Is(err, pg.ErrNoRows) {
			return nil, model.ErrIdentityNotFound
		}
		return nil, err
	}
	identity := found.toModel()
	return &identity, nil
}

// UpdateIdentity applies the non-empty userName and category. It returns
// model.ErrIdentityNotFound if the identity does not exist.
func (p *PostgresDB) UpdateIdentity(ctx context.Context, identity *model.Identity) error {
	if identity == nil {
		return errors.New("nil identity passed to update method")
	}
	id, err := uuid.Parse(identity.ID)
	if err != nil {
		return model.ErrIdentityNotFound
	}

	updated := &identityDB{ID: id}
	q := p.db.ModelContext(ctx, updated).WherePK().Set("updated_at = ?", p.nowFunc())
	if identity.UserName != "" {
		q = q.Set("user_name = ?", identity.UserName)
	}
	if identity.Category != "" {
		q = q.Set("category = ?", identity.Category)
	}
	res, err := q.Returning("*").Update()
	if err != nil {
		return err
	}
	if res.RowsAffected() < 1 {
		return model.ErrIdentityNotFound
	}
	*identity = updated.toModel()
	return nil
}

// SaveSlot will save the slot in the database.
func (p *PostgresDB) SaveSlot(ctx context.Context, slot *model.Slot) error {
	if slot == nil {
		return errors.New("nil slot passed to save method")
	}
	now := p.nowFunc()
	dbSlot := slotToDB(slot)
	dbSlot.ID = uuid.New()
	dbSlot.CreatedAt = now
	dbSlot.UpdatedAt = now
	if _, err := p.db.ModelContext(ctx, dbSlot).Insert(); err != nil {
		return err
	}
	*slot = dbSlot.toModel()
	return nil
}

// FindSlot returns the slot with the given id.
func (p *PostgresDB) FindSlot(ctx context.Context, id string) (*model.Slot, error) {
	slotID, err := uuid.Parse(id)
	if err != nil {
		return nil, model.ErrSlotNotFound
	}
	found := &slotDB{ID: slotID}
	if err := p.db.ModelContext(ctx, found).WherePK().Select(); err != nil {
		if errors.Is(err, pg.ErrNoRows) {
			return nil, model.ErrSlotNotFound
		}
		return nil, err
	}
	slot := found.toModel()
	return &slot, nil
}

// UpdateSlot overwrites the mutable fields of the slot. Owner and creation time are kept.
func (p *PostgresDB) UpdateSlot(ctx context.Context, slot *model.Slot) error {
	if slot == nil {
		return errors.New("nil slot passed to update method")
	}
	slotID, err := uuid.Parse(slot.ID)
	if err != nil {
		return model.ErrSlotNotFound
	}

	dbSlot := slotToDB(slot)
	dbSlot.ID = slotID
	dbSlot.UpdatedAt = p.nowFunc()
	res, err := p.db.ModelContext(ctx, dbSlot).
		Column("date", "start_time", "end_time", "category", "charge", "total_duration", "updated_at").
		WherePK().
		Returning("*").
		Update()
	if err != nil {
		return err
	}
	if res.RowsAffected() < 1 {
		return model.ErrSlotNotFound
	}
	*slot = dbSlot.toModel()
	return nil
}

// SaveSession will save the session in the database.
func (p *PostgresDB) SaveSession(ctx context.Context, session *model.Session) error {
	if session == nil {
		return errors.New("nil session passed to save method")
	}
	now := p.nowFunc()
	dbSession := sessionToDB(session)
	dbSession.ID = uuid.New()
	dbSession.CreatedAt = now
	dbSession.UpdatedAt = now
	if _, err := p.db.ModelContext(ctx, dbSession).Insert(); err != nil {
		if constraintViolated(err) == streamKeyConstraint {
			return fmt.Errorf("stream key: %w", model.ErrDuplicate)
		}
		return err
	}
	*session = dbSession.toModel()
	return nil
}

// FindSession looks a session up by id or stream key.
func (p *PostgresDB) FindSession(ctx context.Context, query ports.FindSessionQuery) (*model.Session, error) {
	found := new(sessionDB)
	q := p.db.ModelContext(ctx, found)
	switch {
	case query.ID != "":
		id, err := uuid.Parse(query.ID)
		if err != nil {
			return nil, model.ErrSessionNotFound
		}
		q = q.Where("id = ?", id)
	case query.StreamKey != "":
		q = q.Where("stream_key = ?", query.StreamKey)
	default:
		return nil, model.ErrSessionNotFound
	}

	if err := q.Select(); err != nil {
		if errors.Is(err, pg.ErrNoRows) {
			return nil, model.ErrSessionNotFound
		}
		return nil, err
	}
	session := found.toModel()
	return &session, nil
}

// DeleteSession will delete the session from the database.
func (p *PostgresDB) DeleteSession(ctx context.Context, id string) error {
	sessionID, err := uuid.Parse(id)
	if err != nil {
		return model.ErrSessionNotFound
	}
	res, err := p.db.ModelContext(ctx, &sessionDB{ID: sessionID}).WherePK().Delete()
	if err != nil {
		return err
	}
	if res.RowsAffected() < 1 {
		return model.ErrSessionNotFound
	}
	return nil
}

// ListSessionsByDate streams the rows of the day one by one.
func (p *PostgresDB) ListSessionsByDate(ctx context.Context, date time.Time) iter.Seq2[model.Session, error] {
	from := date.UTC().Truncate(24 * time.Hour)
	to := from.Add(24 * time.Hour)

	return func(yield func(model.Session, error) bool) {
		err := p.db.ModelContext(ctx, (*sessionDB)(nil)).
			Where("date >= ?", from).
			Where("date < ?", to).
			OrderExpr("start_time ASC NULLS FIRST, created_at ASC, id ASC").
			ForEach(func(s *sessionDB) error {
				if !yield(s.toModel(), nil) {
					return errStopIteration
				}
				return nil
			})
		if err != nil && !errors.Is(err, errStopIteration) {
			yield(model.Session{}, err)
		}
	}
}

// AddAttendee locks the session row and appends identityID unless present.
func (p *PostgresDB) AddAttendee(ctx context.Context, sessionID, identityID string) (*model.Session, bool, error) {
	return p.mutateRoster(ctx, sessionID, func(session *model.Session) (bool, error) {
		if session.HasAttendee(identityID) {
			return false, nil
		}
		if session.Kind == model.SessionKindSlot && session.Capacity > 0 && len(session.Attendees) >= session.Capacity {
			return false, model.ErrSessionFull
		}
		session.Attendees = append(session.Attendees, identityID)
		return true, nil
	})
}

// RemoveAttendee locks the session row and drops identityID from the roster.
func (p *PostgresDB) RemoveAttendee(ctx context.Context, sessionID, identityID string) (*model.Session, error) {
	session, _, err := p.mutateRoster(ctx, sessionID, func(session *model.Session) (bool, error) {
		if !session.HasAttendee(identityID) {
			return false, model.ErrAttendeeNotFound
		}
		attendees := make([]string, 0, len(session.Attendees)-1)
		for _, a := range session.Attendees {
			if a != identityID {
				attendees = append(attendees, a)
			}
		}
		session.Attendees = attendees
		return true, nil
	})
	return session, err
}

// mutateRoster runs mutate on the locked session and persists the roster and status when it
// reports a change. The returned flag tells whether anything was written.
func (p *PostgresDB) mutateRoster(ctx context.Context, sessionID string, mutate func(*model.Session) (bool, error)) (*model.Session, bool, error) {
	id, err := uuid.Parse(sessionID)
	if err != nil {
		return nil, false, model.ErrSessionNotFound
	}

	var (
		result  model.Session
		changed bool
	)
	err = p.db.RunInTransaction(ctx, func(tx *pg.Tx) error {
		locked := &sessionDB{ID: id}
		if err := tx.ModelContext(ctx, locked).WherePK().For("UPDATE").Select(); err != nil {
			if errors.Is(err, pg.ErrNoRows) {
				return model.ErrSessionNotFound
			}
			return err
		}

		session := locked.toModel()
		var err error
		changed, err = mutate(&session)
		if err != nil {
			return err
		}
		if changed {
			session.RefreshStatus()
			locked.Attendees = session.Attendees
			locked.Status = string(session.Status)
			locked.UpdatedAt = p.nowFunc()
			if _, err := tx.ModelContext(ctx, locked).Column("attendees", "status", "updated_at").WherePK().Update(); err != nil {
				return err
			}
			session.UpdatedAt = locked.UpdatedAt
		}
		result = session
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return &result, changed, nil
}

// constraintViolated returns the name of the violated integrity constraint, if any.
func constraintViolated(err error) string {
	var pgErr pg.Error
	if errors.As(err, &pgErr) && pgErr.IntegrityViolation() {
		return pgErr.Field('n')
	}
	return ""
}

type identityDB struct {
	tableName struct{} `pg:"bookings.identities"`

	ID         uuid.UUID `pg:"id,type:uuid,pk"`
	UUID       string    `pg:"uuid"`
	Email      string    `pg:"email"`
	UserName   string    `pg:"user_name"`
	Category   string    `pg:"category"`
	Image      string    `pg:"image"`
	FeedbackID *int64    `pg:"feedback_id"`
	CreatedAt  time.Time `pg:"created_at"`
	UpdatedAt  time.Time `pg:"updated_at"`
}

func (i identityDB) toModel() model.Identity {
	return model.Identity{
		ID:         i.ID.String(),
		UUID:       i.UUID,
		UserName:   i.UserName,
		Category:   i.Category,
		Email:      i.Email,
		Image:      i.Image,
		FeedbackID: i.FeedbackID,
		CreatedAt:  i.CreatedAt.UTC(),
		UpdatedAt:  i.UpdatedAt.UTC(),
	}
}

type slotDB struct {
	tableName struct{} `pg:"bookings.slots"`

	ID            uuid.UUID `pg:"id,type:uuid,pk"`
	Date          time.Time `pg:"date"`
	StartTime     time.Time `pg:"start_time"`
	EndTime       time.Time `pg:"end_time"`
	Category      string    `pg:"category"`
	Charge        float64   `pg:"charge,use_zero"`
	TotalDuration float64   `pg:"total_duration,use_zero"`
	UserID        string    `pg:"user_id"`
	CreatedAt     time.Time `pg:"created_at"`
	UpdatedAt     time.Time `pg:"updated_at"`
}

func slotToDB(slot *model.Slot) *slotDB {
	return &slotDB{
		Date:          slot.Date,
		StartTime:     slot.StartTime,
		EndTime:       slot.EndTime,
		Category:      slot.Category,
		Charge:        slot.Charge,
		TotalDuration: slot.TotalDuration,
		UserID:        slot.UserID,
		CreatedAt:     slot.CreatedAt,
	}
}

func (s slotDB) toModel() model.Slot {
	return model.Slot{
		ID:            s.ID.String(),
		Date:          s.Date.UTC(),
		StartTime:     s.StartTime.UTC(),
		EndTime:       s.EndTime.UTC(),
		Category:      s.Category,
		Charge:        s.Charge,
		TotalDuration: s.TotalDuration,
		UserID:        s.UserID,
		CreatedAt:     s.CreatedAt.UTC(),
		UpdatedAt:     s.UpdatedAt.UTC(),
	}
}

type sessionDB struct {
	tableName struct{} `pg:"bookings.sessions"`

	ID            uuid.UUID      `pg:"id,type:uuid,pk"`
	Kind          string         `pg:"kind"`
	OwnerID       string         `pg:"user_id"`
	Attendees     []string       `pg:"attendees,array,use_zero"`
	Date          time.Time      `pg:"date"`
	SlotID        string         `pg:"slot_id"`
	Status        string         `pg:"status"`
	Capacity      int            `pg:"capacity,use_zero"`
	SessionName   string         `pg:"session_name"`
	SessionDesc   string         `pg:"session_desc"`
	StartTime     *time.Time     `pg:"start_time"`
	EndTime       *time.Time     `pg:"end_time"`
	Fee           float64        `pg:"fee,use_zero"`
	StreamKey     string         `pg:"stream_key"`
	StreamID      string         `pg:"stream_id"`
	StreamDetails map[string]any `pg:"stream_details,type:jsonb"`
	CreatedAt     time.Time      `pg:"created_at"`
	UpdatedAt     time.Time      `pg:"updated_at"`
}

func sessionToDB(session *model.Session) *sessionDB {
	dbSession := &sessionDB{
		Kind:        string(session.Kind),
		OwnerID:     session.OwnerID,
		Attendees:   session.Attendees,
		Date:        session.Date,
		SlotID:      session.SlotID,
		Status:      string(session.Status),
		Capacity:    session.Capacity,
		SessionName: session.SessionName,
		SessionDesc: session.SessionDesc,
		StartTime:   session.StartTime,
		EndTime:     session.EndTime,
		Fee:         session.Fee,
	}
	if dbSession.Attendees == nil {
		dbSession.Attendees = []string{}
	}
	if session.Stream != nil {
		dbSession.StreamKey = session.Stream.Key
		dbSession.StreamID = session.Stream.ID
		dbSession.StreamDetails = session.Stream.Details
	}
	return dbSession
}

func (s sessionDB) toModel() model.Session {
	session := model.Session{
		ID:          s.ID.String(),
		Kind:        model.SessionKind(s.Kind),
		OwnerID:     s.OwnerID,
		Attendees:   s.Attendees,
		Date:        s.Date.UTC(),
		SlotID:      s.SlotID,
		Status:      model.SessionStatus(s.Status),
		Capacity:    s.Capacity,
		SessionName: s.SessionName,
		SessionDesc: s.SessionDesc,
		StartTime:   utcPtr(s.StartTime),
		EndTime:     utcPtr(s.EndTime),
		Fee:         s.Fee,
		CreatedAt:   s.CreatedAt.UTC(),
		UpdatedAt:   s.UpdatedAt.UTC(),
	}
	if session.Attendees == nil {
		session.Attendees = []string{}
	}
	if s.StreamKey != "" || s.StreamID != "" {
		session.Stream = &model.StreamHandle{Key: s.StreamKey, ID: s.StreamID, Details: s.StreamDetails}
	}
	return session
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
