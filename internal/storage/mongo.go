package storage

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/hyperjump/decora/internal/models"
)

const (
	sessionsCollection = "sessions"
	messagesCollection = "messages"
	productsCollection = "products"
)

// MongoStorage implements Storage using MongoDB.
type MongoStorage struct {
	client   *mongo.Client
	sessions *mongo.Collection
	messages *mongo.Collection
	products *mongo.Collection
	seq      atomic.Int64
}

// messageDocument adds an insertion sequence so messages written within the same
// millisecond keep their order.
type messageDocument struct {
	ID        string    `bson:"_id"`
	SessionID string    `bson:"session_id"`
	Role      string    `bson:"role"`
	Text      string    `bson:"text"`
	ImageURL  string    `bson:"image_url"`
	CreatedAt time.Time `bson:"created_at"`
	Seq       int64     `bson:"seq"`
}

// productDocument stores the price as a decimal string.
type productDocument struct {
	ID          string    `bson:"_id"`
	Name        string    `bson:"name"`
	Description string    `bson:"description"`
	ImageURL    string    `bson:"image_url"`
	ModelURL    string    `bson:"model_url"`
	Style       string    `bson:"style"`
	Type        string    `bson:"type"`
	Price       string    `bson:"price"`
	CreatedAt   time.Time `bson:"created_at"`
	UpdatedAt   time.Time `bson:"updated_at"`
}

// NewMongoStorage connects to uri, verifies the connection, and ensures indexes on dbName.
func NewMongoStorage(ctx context.Context, uri, dbName string) (*MongoStorage, error) {
	if uri == "" {
		return nil, errors.New("mongo storage requires a connection URI")
	}
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	db := client.Database(dbName)
	s := &MongoStorage{
		client:   client,
		sessions: db.Collection(sessionsCollection),
		messages: db.Collection(messagesCollection),
		products: db.Collection(productsCollection),
	}
	s.seq.Store(time.Now().UnixNano())
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to create indexes: %w", err)
	}
	return s, nil
}

func (s *MongoStorage) ensureIndexes(ctx context.Context) error {
	if _, err := s.sessions.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "owner_id", Value: 1}, {Key: "updated_at", Value: -1}},
	}); err != nil {
		return err
	}
	if _, err := s.messages.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "session_id", Value: 1}, {Key: "seq", Value: 1}},
	}); err != nil {
		return err
	}
	_, err := s.products.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "style", Value: 1}, {Key: "type", Value: 1}},
	})
	return err
}

// CreateSession inserts a session. ID and timestamps are filled in when empty.
func (s *MongoStorage) CreateSession(ctx context.Context, sess *models.Session) error {
	if sess.ID == "" {
		sess.ID = uuid.New().String()
	}
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = time.Now()
	}
	if sess.UpdatedAt.IsZero() {
		sess.UpdatedAt = sess.CreatedAt
	}
	_, err := s.sessions.InsertOne(ctx, sess)
	return err
}

// GetSession returns a session by ID.
func (s *MongoStorage) GetSession(ctx context.Context, id string) (*models.Session, error) {
	var sess models.Session
	err := s.sessions.FindOne(ctx, bson.M{"_id": id}).Decode(&sess)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%w: %s", models.ErrSessionNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

// ListSessions returns the owner's sessions, most recently updated first.
func (s *MongoStorage) ListSessions(ctx context.Context, ownerID string, offset, limit int) ([]*models.Session, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "updated_at", Value: -1}, {Key: "created_at", Value: -1}}).
		SetSkip(int64(offset))
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cursor, err := s.sessions.Find(ctx, bson.M{"owner_id": ownerID}, opts)
	if err != nil {
		return nil, err
	}
	var out []*models.Session
	if err := cursor.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateSessionTitle renames a session.
func (s *MongoStorage) UpdateSessionTitle(ctx context.Context, id, title string) error {
	return s.updateSession(ctx, id, bson.M{"title": title, "updated_at": time.Now()})
}

// TouchSession sets the session's updated_at.
func (s *MongoStorage) TouchSession(ctx context.Context, id string, at time.Time) error {
	return s.updateSession(ctx, id, bson.M{"updated_at": at})
}

func (s *MongoStorage) updateSession(ctx context.Context, id string, set bson.M) error {
	res, err := s.sessions.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%w: %s", models.ErrSessionNotFound, id)
	}
	return nil
}

// DeleteSession removes a session and its messages.
func (s *MongoStorage) DeleteSession(ctx context.Context, id string) error {
	res, err := s.sessions.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("%w: %s", models.ErrSessionNotFound, id)
	}
	_, err = s.messages.DeleteMany(ctx, bson.M{"session_id": id})
	return err
}

// AddMessage appends a message to its session.
func (s *MongoStorage) AddMessage(ctx context.Context, m *models.Message) error {
	n, err := s.sessions.CountDocuments(ctx, bson.M{"_id": m.SessionID})
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", models.ErrSessionNotFound, m.SessionID)
	}
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	_, err = s.messages.InsertOne(ctx, messageDocument{
		ID:        m.ID,
		SessionID: m.SessionID,
		Role:      m.Role,
		Text:      m.Text,
		ImageURL:  m.ImageURL,
		CreatedAt: m.CreatedAt,
		Seq:       s.seq.Add(1),
	})
	return err
}

// ListMessages returns a session's messages in insertion order.
func (s *MongoStorage) ListMessages(ctx context.Context, sessionID string) ([]*models.Message, error) {
	docs, err := s.findMessages(ctx, bson.M{"session_id": sessionID})
	if err != nil {
		return nil, err
	}
	out := make([]*models.Message, 0, len(docs))
	for _, d := range docs {
		out = append(out, &models.Message{
			ID:        d.ID,
			SessionID: d.SessionID,
			Role:      d.Role,
			Text:      d.Text,
			ImageURL:  d.ImageURL,
			CreatedAt: d.CreatedAt,
		})
	}
	return out, nil
}

// ShownImages returns the distinct image URLs the assistant has sent in a session,
// in the order they were first shown.
func (s *MongoStorage) ShownImages(ctx context.Context, sessionID string) ([]string, error) {
	docs, err := s.findMessages(ctx, bson.M{
		"session_id": sessionID,
		"role":       models.RoleAssistant,
		"image_url":  bson.M{"$ne": ""},
	})
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(docs))
	var out []string
	for _, d := range docs {
		if _, ok := seen[d.ImageURL]; ok {
			continue
		}
		seen[d.ImageURL] = struct{}{}
		out = append(out, d.ImageURL)
	}
	return out, nil
}

func (s *MongoStorage) findMessages(ctx context.Context, filter bson.M) ([]messageDocument, error) {
	cursor, err := s.messages.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "seq", Value: 1}}))
	if err != nil {
		return nil, err
	}
	var docs []messageDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

// UpsertProduct inserts a product or replaces the one with the same ID, keeping its
// original created_at.
func (s *MongoStorage) UpsertProduct(ctx context.Context, p *models.Product) error {
	now := time.Now()
	var existing productDocument
	err := s.products.FindOne(ctx, bson.M{"_id": p.ID}).Decode(&existing)
	switch {
	case err == nil:
		p.CreatedAt = existing.CreatedAt
	case errors.Is(err, mongo.ErrNoDocuments):
		if p.CreatedAt.IsZero() {
			p.CreatedAt = now
		}
	default:
		return err
	}
	p.UpdatedAt = now
	_, err = s.products.ReplaceOne(ctx, bson.M{"_id": p.ID}, toProductDocument(p), options.Replace().SetUpsert(true))
	return err
}

// GetProduct returns a product by ID.
func (s *MongoStorage) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	var doc productDocument
	err := s.products.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%w: %s", models.ErrProductNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return doc.toProduct()
}

// DeleteProduct removes a product.
func (s *MongoStorage) DeleteProduct(ctx context.Context, id string) error {
	res, err := s.products.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("%w: %s", models.ErrProductNotFound, id)
	}
	return nil
}

// ListProducts returns products ordered by name.
func (s *MongoStorage) ListProducts(ctx context.Context, offset, limit int) ([]*models.Product, error) {
	return s.findProducts(ctx, bson.M{}, offset, limit)
}

// QueryProducts returns products matching style and type. An empty filter matches any value.
func (s *MongoStorage) QueryProducts(ctx context.Context, style, productType string, limit int) ([]*models.Product, error) {
	filter := bson.M{}
	if style != "" {
		filter["style"] = style
	}
	if productType != "" {
		filter["type"] = productType
	}
	return s.findProducts(ctx, filter, 0, limit)
}

func (s *MongoStorage) findProducts(ctx context.Context, filter bson.M, offset, limit int) ([]*models.Product, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "name", Value: 1}, {Key: "_id", Value: 1}}).
		SetSkip(int64(offset))
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cursor, err := s.products.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	var docs []productDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]*models.Product, 0, len(docs))
	for _, d := range docs {
		p, err := d.toProduct()
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// CountSessions returns the number of sessions.
func (s *MongoStorage) CountSessions(ctx context.Context) (int64, error) {
	return s.sessions.CountDocuments(ctx, bson.M{})
}

// CountMessages returns the number of messages.
func (s *MongoStorage) CountMessages(ctx context.Context) (int64, error) {
	return s.messages.CountDocuments(ctx, bson.M{})
}

// CountProducts returns the number of products.
func (s *MongoStorage) CountProducts(ctx context.Context) (int64, error) {
	return s.products.CountDocuments(ctx, bson.M{})
}

// Close disconnects the client.
func (s *MongoStorage) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func toProductDocument(p *models.Product) productDocument {
	return productDocument{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		ImageURL:    p.ImageURL,
		ModelURL:    p.ModelURL,
		Style:       p.Style,
		Type:        p.Type,
		Price:       p.Price.String(),
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

func (d productDocument) toProduct() (*models.Product, error) {
	price := decimal.Zero
	if d.Price != "" {
		var err error
		if price, err = decimal.NewFromString(d.Price); err != nil {
			return nil, fmt.Errorf("product %s has invalid price %q: %w", d.ID, d.Price, err)
		}
	}
	return &models.Product{
		ID:          d.ID,
		Name:        d.Name,
		Description: d.Description,
		ImageURL:    d.ImageURL,
		ModelURL:    d.ModelURL,
		Style:       d.Style,
		Type:        d.Type,
		Price:       price,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}, nil
}
