package mongo

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/rbroggi/slotcast/internal/core/model"
	"github.com/rbroggi/slotcast/internal/core/ports"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	uuidIndex      = "identity_uuid_unique"
	emailIndex     = "identity_email_unique"
	streamKeyIndex = "session_stream_key_unique"
	dateIndex      = "session_date"
)

// MongoDB is a mongo adapter for persistance.
type MongoDB struct {
	identities *mongo.Collection
	slots      *mongo.Collection
	sessions   *mongo.Collection
	nowFunc    func() time.Time
}

// MongoDBArgs are the mandatory arguments for the creation of a MongoDB
type MongoDBArgs struct {
	// IdentityCollection holds the registered identities.
	IdentityCollection *mongo.Collection

	// SlotCollection holds the bookable slots.
	SlotCollection *mongo.Collection

	// SessionCollection holds both slot and broadcast sessions.
	SessionCollection *mongo.Collection
}

// MongoDBOptArgs are the optional arguments for building a MongoDB
type MongoDBOptArgs = func(*MongoDB)

// WithNowFunc can be used to override the nowFunc. Useful for testing.
func WithNowFunc(nowFunc func() time.Time) MongoDBOptArgs {
	return func(p *MongoDB) {
		p.nowFunc = nowFunc
	}
}

// NewMongoDB creates a new MongoDB.
func NewMongoDB(args MongoDBArgs, optArgs ...MongoDBOptArgs) (*MongoDB, error) {
	if args.IdentityCollection == nil || args.SlotCollection == nil || args.SessionCollection == nil {
		return nil, errors.New("mongo adapter requires the identity, slot and session collections")
	}
	p := &MongoDB{
		identities: args.IdentityCollection,
		slots:      args.SlotCollection,
		sessions:   args.SessionCollection,
		nowFunc:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range optArgs {
		opt(p)
	}
	return p, nil
}

var _ ports.Repository = (*MongoDB)(nil)

// EnsureIndexes creates the indexes the adapter relies on. Uniqueness of identity uuid and email
// is enforced here rather than by read-then-write checks.
func (p *MongoDB) EnsureIndexes(ctx context.Context) error {
	_, err := p.identities.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "uuid", Value: 1}},
			Options: options.Index().SetUnique(true).SetName(uuidIndex),
		},
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true).SetName(emailIndex),
		},
	})
	if err != nil {
		return fmt.Errorf("error creating identity indexes: %w", err)
	}

	_, err = p.sessions.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "stream.key", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetName(streamKeyIndex).
				SetPartialFilterExpression(bson.M{"stream.key": bson.M{"$exists": true}}),
		},
		{
			Keys:    bson.D{{Key: "date", Value: 1}, {Key: "start_time", Value: 1}, {Key: "created_at", Value: 1}},
			Options: options.Index().SetName(dateIndex),
		},
	})
	if err != nil {
		return fmt.Errorf("error creating session indexes: %w", err)
	}
	return nil
}

// Ping checks the primary is reachable.
func (p *MongoDB) Ping(ctx context.Context) error {
	return p.identities.Database().Client().Ping(ctx, readpref.Primary())
}

// SaveIdentity will save the identity in the database.
func (p *MongoDB) SaveIdentity(ctx context.Context, identity *model.Identity) error {
	if identity == nil {
		return errors.New("nil identity passed to save method")
	}

	now := p.nowFunc()
	dbIdentity := &identityDB{
		ID:         primitive.NewObjectID(),
		UUID:       identity.UUID,
		UserName:   identity.UserName,
		Category:   identity.Category,
		Email:      identity.Email,
		Image:      identity.Image,
		FeedbackID: identity.FeedbackID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if _, err := p.identities.InsertOne(ctx, dbIdentity); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return duplicateIdentityError(err)
		}
		return err
	}

	*identity = dbIdentity.toModel()
	return nil
}

// FindIdentity looks an identity up by id, uuid or email.
func (p *MongoDB) FindIdentity(ctx context.Context, query ports.FindIdentityQuery) (*model.Identity, error) {
	filter := bson.M{}
	switch {
	case query.ID != "":
		objectID, err := primitive.ObjectIDFromHex(query.ID)
		if err != nil {
			return nil, model.ErrIdentityNotFound
		}
		filter["_id"] = objectID
	case query.UUID != "":
		filter["uuid"] = query.UUID
	case query.Email != "":
		filter["email"] = query.Email
	default:
		return nil, model.ErrIdentityNotFound
	}

	found := new(identityDB)
	if err := p.identities.FindOne(ctx, filter).Decode(found); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, model.ErrIdentityNotFound
		}
		return nil, err
	}
	identity := found.toModel()
	return &identity, nil
}

// UpdateIdentity applies the non-empty userName and category. It returns
// model.ErrIdentityNotFound if the identity does not exist.
func (p *MongoDB) UpdateIdentity(ctx context.Context, identity *model.Identity) error {
	if identity == nil {
		return errors.New("nil identity passed to update method")
	}
	objectID, err := primitive.ObjectIDFromHex(identity.ID)
	if err != nil {
		return model.ErrIdentityNotFound
	}

	toUpdate := bson.D{{Key: "updated_at", Value: p.nowFunc()}}
	if identity.UserName != "" {
		toUpdate = append(toUpdate, bson.E{Key: "user_name", Value: identity.UserName})
	}
	if identity.Category != "" {
		toUpdate = append(toUpdate, bson.E{Key: "category", Value: identity.Category})
	}

	updated := new(identityDB)
	err = p.identities.FindOneAndUpdate(ctx,
		bson.M{"_id": objectID},
		bson.D{{Key: "$set", Value: toUpdate}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(updated)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return model.ErrIdentityNotFound
		}
		return err
	}
	*identity = updated.toModel()
	return nil
}

// SaveSlot will save the slot in the database.
func (p *MongoDB) SaveSlot(ctx context.Context, slot *model.Slot) error {
	if slot == nil {
		return errors.New("nil slot passed to save method")
	}
	now := p.nowFunc()
	dbSlot := slotToDB(slot)
	dbSlot.ID = primitive.NewObjectID()
	dbSlot.CreatedAt = now
	dbSlot.UpdatedAt = now
	if _, err := p.slots.InsertOne(ctx, dbSlot); err != nil {
		return err
	}
	*slot = dbSlot.toModel()
	return nil
}

// FindSlot returns the slot with the given id.
func (p *MongoDB) FindSlot(ctx context.Context, id string) (*model.Slot, error) {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, model.ErrSlotNotFound
	}
	found := new(slotDB)
	if err := p.slots.FindOne(ctx, bson.M{"_id": objectID}).Decode(found); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, model.ErrSlotNotFound
		}
		return nil, err
	}
	slot := found.toModel()
	return &slot, nil
}

// UpdateSlot overwrites the mutable fields of the slot. Owner and creation time are kept.
func (p *MongoDB) UpdateSlot(ctx context.Context, slot *model.Slot) error {
	if slot == nil {
		return errors.New("nil slot passed to update method")
	}
	objectID, err := primitive.ObjectIDFromHex(slot.ID)
	if err != nil {
		return model.ErrSlotNotFound
	}

	updated := new(slotDB)
	err = p.slots.FindOneAndUpdate(ctx,
		bson.M{"_id": objectID},
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "date", Value: slot.Date},
			{Key: "start_time", Value: slot.StartTime},
			{Key: "end_time", Value: slot.EndTime},
			{Key: "category", Value: slot.Category},
			{Key: "charge", Value: slot.Charge},
			{Key: "total_duration", Value: slot.TotalDuration},
			{Key: "updated_at", Value: p.nowFunc()},
		}}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(updated)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return model.ErrSlotNotFound
		}
		return err
	}
	*slot = updated.toModel()
	return nil
}

// SaveSession will save the session in the database.
func (p *MongoDB) SaveSession(ctx context.Context, session *model.Session) error {
	if session == nil {
		return errors.New("nil session passed to save method")
	}
	now := p.nowFunc()
	dbSession := sessionToDB(session)
	dbSession.ID = primitive.NewObjectID()
	dbSession.CreatedAt = now
	dbSession.UpdatedAt = now
	if _, err := p.sessions.InsertOne(ctx, dbSession); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("stream key: %w", model.ErrDuplicate)
		}
		return err
	}
	*session = dbSession.toModel()
	return nil
}

// FindSession looks a session up by id or stream key.
func (p *MongoDB) FindSession(ctx context.Context, query ports.FindSessionQuery) (*model.Session, error) {
	filter := bson.M{}
	switch {
	case query.ID != "":
		objectID, err := primitive.ObjectIDFromHex(query.ID)
		if err != nil {
			return nil, model.ErrSessionNotFound
		}
		filter["_id"] = objectID
	case query.StreamKey != "":
		filter["stream.key"] = query.StreamKey
	default:
		return nil, model.ErrSessionNotFound
	}

	found := new(sessionDB)
	if err := p.sessions.FindOne(ctx, filter).Decode(found); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, model.ErrSessionNotFound
		}
		return nil, err
	}
	session := found.toModel()
	return &session, nil
}

// DeleteSession will delete the session from the database.
func (p *MongoDB) DeleteSession(ctx context.Context, id string) error {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return model.ErrSessionNotFound
	}
	res, err := p.sessions.DeleteOne(ctx, bson.M{"_id": objectID})
	if err != nil {
		return err
	}
	if res.DeletedCount < 1 {
		return model.ErrSessionNotFound
	}
	return nil
}

// ListSessionsByDate streams the sessions of the day straight from a cursor. Mongo sorts missing
// start times first, which puts slot sessions ahead of broadcasts.
func (p *MongoDB) ListSessionsByDate(ctx context.Context, date time.Time) iter.Seq2[model.Session, error] {
	from := date.UTC().Truncate(24 * time.Hour)
	filter := bson.M{"date": bson.M{
		"$gte": primitive.NewDateTimeFromTime(from),
		"$lt":  primitive.NewDateTimeFromTime(from.Add(24 * time.Hour)),
	}}
	opts := options.Find().SetSort(bson.D{
		{Key: "start_time", Value: 1},
		{Key: "created_at", Value: 1},
		{Key: "_id", Value: 1},
	})

	return func(yield func(model.Session, error) bool) {
		cursor, err := p.sessions.Find(ctx, filter, opts)
		if err != nil {
			yield(model.Session{}, err)
			return
		}
		defer cursor.Close(context.WithoutCancel(ctx))

		for cursor.Next(ctx) {
			found := new(sessionDB)
			if err := cursor.Decode(found); err != nil {
				yield(model.Session{}, err)
				return
			}
			if !yield(found.toModel(), nil) {
				return
			}
		}
		if err := cursor.Err(); err != nil {
			yield(model.Session{}, err)
		}
	}
}

// AddAttendee appends identityID to the roster in a single pipeline update. The filter skips rosters
// already holding identityID, which are left untouched, and slot sessions already at capacity.
func (p *MongoDB) AddAttendee(ctx context.Context, sessionID, identityID string) (*model.Session, bool, error) {
	objectID, err := primitive.ObjectIDFromHex(sessionID)
	if err != nil {
		return nil, false, model.ErrSessionNotFound
	}

	filter := bson.M{
		"_id":       objectID,
		"attendees": bson.M{"$ne": identityID},
		"$or": bson.A{
			bson.M{"kind": bson.M{"$ne": string(model.SessionKindSlot)}},
			bson.M{"capacity": bson.M{"$lte": 0}},
			bson.M{"$expr": bson.M{"$lt": bson.A{bson.M{"$size": "$attendees"}, "$capacity"}}},
		},
	}
	pipeline := mongo.Pipeline{
		{{Key: "$set", Value: bson.M{
			"attendees":  bson.M{"$concatArrays": bson.A{"$attendees", bson.A{identityID}}},
			"updated_at": p.nowFunc(),
		}}},
		statusStage(),
	}

	session, err := p.updateRoster(ctx, filter, pipeline)
	if errors.Is(err, mongo.ErrNoDocuments) {
		current, findErr := p.FindSession(ctx, ports.FindSessionQuery{ID: sessionID})
		if findErr != nil {
			return nil, false, findErr
		}
		if current.HasAttendee(identityID) {
			return current, false, nil
		}
		return nil, false, model.ErrSessionFull
	}
	if err != nil {
		return nil, false, err
	}
	return session, true, nil
}

// RemoveAttendee filters identityID out of the roster. The filter only matches rosters holding it.
func (p *MongoDB) RemoveAttendee(ctx context.Context, sessionID, identityID string) (*model.Session, error) {
	objectID, err := primitive.ObjectIDFromHex(sessionID)
	if err != nil {
		return nil, model.ErrSessionNotFound
	}

	filter := bson.M{"_id": objectID, "attendees": identityID}
	pipeline := mongo.Pipeline{
		{{Key: "$set", Value: bson.M{
			"attendees": bson.M{"$filter": bson.M{
				"input": "$attendees",
				"cond":  bson.M{"$ne": bson.A{"$$this", identityID}},
			}},
			"updated_at": p.nowFunc(),
		}}},
		statusStage(),
	}

	session, err := p.updateRoster(ctx, filter, pipeline)
	if errors.Is(err, mongo.ErrNoDocuments) {
		if _, findErr := p.FindSession(ctx, ports.FindSessionQuery{ID: sessionID}); findErr != nil {
			return nil, findErr
		}
		return nil, model.ErrAttendeeNotFound
	}
	return session, err
}

func (p *MongoDB) updateRoster(ctx context.Context, filter bson.M, pipeline mongo.Pipeline) (*model.Session, error) {
	updated := new(sessionDB)
	err := p.sessions.FindOneAndUpdate(ctx, filter, pipeline,
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(updated)
	if err != nil {
		return nil, err
	}
	session := updated.toModel()
	return &session, nil
}

// statusStage recomputes the fill status of slot sessions from the updated roster.
func statusStage() bson.D {
	return bson.D{{Key: "$set", Value: bson.M{
		"status": bson.M{"$cond": bson.A{
			bson.M{"$ne": bson.A{"$kind", string(model.SessionKindSlot)}},
			"$status",
			bson.M{"$cond": bson.A{
				bson.M{"$and": bson.A{
					bson.M{"$gt": bson.A{"$capacity", 0}},
					bson.M{"$gte": bson.A{bson.M{"$size": "$attendees"}, "$capacity"}},
				}},
				string(model.SessionStatusBooked),
				string(model.SessionStatusFilling),
			}},
		}},
	}}}
}

func duplicateIdentityError(err error) error {
	var we mongo.WriteException
	if errors.As(err, &we) {
		for _, e := range we.WriteErrors {
			if strings.Contains(e.Message, emailIndex) {
				return model.ErrDuplicateEmail
			}
		}
	}
	return model.ErrDuplicateUUID
}

type identityDB struct {
	ID         primitive.ObjectID `bson:"_id"`
	UUID       string             `bson:"uuid"`
	UserName   string             `bson:"user_name,omitempty"`
	Category   string             `bson:"category,omitempty"`
	Email      string             `bson:"email"`
	Image      string             `bson:"image,omitempty"`
	FeedbackID *int64             `bson:"feedback_id,omitempty"`
	CreatedAt  time.Time          `bson:"created_at"`
	UpdatedAt  time.Time          `bson:"updated_at"`
}

func (i identityDB) toModel() model.Identity {
	return model.Identity{
		ID:         i.ID.Hex(),
		UUID:       i.UUID,
		UserName:   i.UserName,
		Category:   i.Category,
		Email:      i.Email,
		Image:      i.Image,
		FeedbackID: i.FeedbackID,
		CreatedAt:  i.CreatedAt,
		UpdatedAt:  i.UpdatedAt,
	}
}

type slotDB struct {
	ID            primitive.ObjectID `bson:"_id"`
	Date          time.Time          `bson:"date"`
	StartTime     time.Time          `bson:"start_time"`
	EndTime       time.Time          `bson:"end_time"`
	Category      string             `bson:"category"`
	Charge        float64            `bson:"charge"`
	TotalDuration float64            `bson:"total_duration"`
	UserID        string             `bson:"user"`
	CreatedAt     time.Time          `bson:"created_at"`
	UpdatedAt     time.Time          `bson:"updated_at"`
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
	}
}

func (s slotDB) toModel() model.Slot {
	return model.Slot{
		ID:            s.ID.Hex(),
		Date:          s.Date.UTC(),
		StartTime:     s.StartTime.UTC(),
		EndTime:       s.EndTime.UTC(),
		Category:      s.Category,
		Charge:        s.Charge,
		TotalDuration: s.TotalDuration,
		UserID:        s.UserID,
		CreatedAt:     s.CreatedAt,
		UpdatedAt:     s.UpdatedAt,
	}
}

type streamDB struct {
	Key     string `bson:"key"`
	ID      string `bson:"id"`
	Details bson.M `bson:"details,omitempty"`
}

type sessionDB struct {
	ID          primitive.ObjectID `bson:"_id"`
	Kind        string             `bson:"kind"`
	OwnerID     string             `bson:"user"`
	Attendees   []string           `bson:"attendees"`
	Date        time.Time          `bson:"date"`
	SlotID      string             `bson:"slot,omitempty"`
	Status      string             `bson:"status,omitempty"`
	Capacity    int                `bson:"capacity"`
	SessionName string             `bson:"session_name,omitempty"`
	SessionDesc string             `bson:"session_desc,omitempty"`
	StartTime   *time.Time         `bson:"start_time,omitempty"`
	EndTime     *time.Time         `bson:"end_time,omitempty"`
	Fee         float64            `bson:"fee,omitempty"`
	Stream      *streamDB          `bson:"stream,omitempty"`
	CreatedAt   time.Time          `bson:"created_at"`
	UpdatedAt   time.Time          `bson:"updated_at"`
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
		dbSession.Stream = &streamDB{Key: session.Stream.Key, ID: session.Stream.ID, Details: session.Stream.Details}
	}
	return dbSession
}

func (s sessionDB) toModel() model.Session {
	session := model.Session{
		ID:          s.ID.Hex(),
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
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
	}
	if session.Attendees == nil {
		session.Attendees = []string{}
	}
	if s.Stream != nil {
		session.Stream = &model.StreamHandle{Key: s.Stream.Key, ID: s.Stream.ID, Details: s.Stream.Details}
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
