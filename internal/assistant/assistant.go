// Package assistant implements the chat routine: it persists each turn, asks the model,
// classifies what the user wants, and decides which product images to show.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/decora/internal/ai"
	"github.com/hyperjump/decora/internal/config"
	"github.com/hyperjump/decora/internal/intent"
	"github.com/hyperjump/decora/internal/links"
	"github.com/hyperjump/decora/internal/models"
	"github.com/hyperjump/decora/internal/storage"
	"github.com/hyperjump/decora/pkg/utils"
)

const (
	defaultMaxImages = 3
	titleLength      = 40

	noMoreItemsText   = "I don't have any more items like that right now. Try another style or product type."
	nothingShownText  = "I haven't shown you any items yet. Ask me for lamps, sofas, vases or paintings."
	modelImagesIntro  = "Here are some ideas:"
	catalogIntroEmpty = "Here are some pieces from our catalog:"
)

// ProductFinder selects catalog products for display.
type ProductFinder interface {
	Query(ctx context.Context, q models.ProductQuery) ([]*models.Product, error)
}

// Config tunes the assistant.
type Config struct {
	SystemPrompt string
	MaxImages    int
	HistoryLimit int
	Temperature  *float64
	ImageHosts   []string
}

// ConfigFrom builds a Config from the application config sections.
func ConfigFrom(aiCfg *config.AIConfig, asCfg *config.AssistantConfig) Config {
	return Config{
		SystemPrompt: asCfg.SystemPrompt,
		MaxImages:    asCfg.MaxImages,
		HistoryLimit: aiCfg.HistoryLimit,
		Temperature:  aiCfg.Temperature,
		ImageHosts:   asCfg.ImageHosts,
	}
}

// Assistant answers user messages within chat sessions.
type Assistant struct {
	storage  storage.Storage
	products ProductFinder
	provider ai.Provider
	links    *links.Extractor
	state    *StateStore
	cfg      Config
	logger   *zap.Logger
	now      func() time.Time
}

// Option configures an Assistant.
type Option func(*Assistant)

// WithLogger sets a logger.
func WithLogger(l *zap.Logger) Option {
	return func(a *Assistant) { a.logger = l }
}

// New creates an assistant.
func New(store storage.Storage, products ProductFinder, provider ai.Provider, cfg Config, opts ...Option) *Assistant {
	if cfg.MaxImages <= 0 {
		cfg.MaxImages = defaultMaxImages
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = ai.DefaultSystemPrompt
	}
	a := &Assistant{
		storage:  store,
		products: products,
		provider: provider,
		links:    links.NewExtractor(cfg.ImageHosts),
		state:    NewStateStore(),
		cfg:      cfg,
		logger:   zap.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Send handles one user message in a session and returns the persisted reply.
// When owner is non-empty the session must belong to it.
func (a *Assistant) Send(ctx context.Context, sessionID, owner string, req models.SendRequest) (*models.Reply, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	// State entries are only created for sessions the caller may use.
	if _, err := a.authorize(ctx, sessionID, owner); err != nil {
		return nil, err
	}
	unlock := a.state.Lock(sessionID)
	defer unlock()

	sess, err := a.storage.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, models.ErrSessionNotFound) {
			// Deleted while waiting for the lock.
			a.state.Drop(sessionID)
		}
		return nil, err
	}
	history, err := a.storage.ListMessages(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	if err := a.saveUserTurn(ctx, sess, req); err != nil {
		return nil, err
	}

	res := intent.Classify(req.Text, req.ImageURL != "")
	a.state.Update(sessionID, func(s *SessionState) {
		if res.Style != "" {
			s.LastStyle = res.Style
		}
		if res.Type != "" {
			s.LastType = res.Type
		}
	})
	a.logger.Debug("assistant message classified",
		zap.String("session_id", sessionID),
		zap.String("intent", string(res.Kind)),
		zap.String("style", res.Style),
		zap.String("type", res.Type))

	reply := &models.Reply{
		SessionID: sessionID,
		Intent:    string(res.Kind),
		Images:    []models.ReplyImage{},
	}

	if res.Kind == intent.KindSelection {
		a.selectItem(sessionID, res.Selection, reply)
		return a.saveReply(ctx, reply)
	}

	modelText, genErr := a.generate(ctx, history, req)
	if genErr != nil {
		a.logger.Error("assistant model call failed",
			zap.String("session_id", sessionID),
			zap.String("provider", a.provider.Name()),
			zap.Error(genErr))
		if res.Kind != intent.KindCatalog && res.Kind != intent.KindSimilar {
			return nil, fmt.Errorf("%w: %v", models.ErrAssistantUnavailable, genErr)
		}
	}

	switch res.Kind {
	case intent.KindCatalog, intent.KindSimilar:
		if err := a.showProducts(ctx, sessionID, req, res, modelText, reply); err != nil {
			return nil, err
		}
	default:
		reply.Text = modelText
		reply.Source = models.SourceModel
	}
	return a.saveReply(ctx, reply)
}

func (a *Assistant) saveUserTurn(ctx context.Context, sess *models.Session, req models.SendRequest) error {
	msg := &models.Message{
		SessionID: sess.ID,
		Role:      models.RoleUser,
		Text:      req.Text,
		ImageURL:  req.ImageURL,
		CreatedAt: a.now(),
	}
	if err := a.storage.AddMessage(ctx, msg); err != nil {
		return fmt.Errorf("save message: %w", err)
	}
	if sess.Title == models.DefaultSessionTitle && req.Text != "" {
		if err := a.storage.UpdateSessionTitle(ctx, sess.ID, utils.TitleFromText(req.Text, titleLength)); err != nil {
			return fmt.Errorf("update title: %w", err)
		}
	}
	return a.storage.TouchSession(ctx, sess.ID, a.now())
}

func (a *Assistant) generate(ctx context.Context, history []*models.Message, req models.SendRequest) (string, error) {
	resp, err := a.provider.Generate(ctx, ai.Request{
		System:      a.cfg.SystemPrompt,
		History:     ai.TurnsFromMessages(history, a.cfg.HistoryLimit),
		Text:        req.Text,
		ImageURL:    req.ImageURL,
		Temperature: a.cfg.Temperature,
	})
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

// showProducts fills reply with images for a catalog or similar request: links from the
// model when it gave new ones, otherwise products from the catalog.
func (a *Assistant) showProducts(ctx context.Context, sessionID string, req models.SendRequest, res intent.Result, modelText string, reply *models.Reply) error {
	exclude, err := a.shownImages(ctx, sessionID)
	if err != nil {
		return err
	}
	text := a.links.StripURLs(modelText)

	var fromModel []models.ReplyImage
	for _, u := range a.links.Extract(modelText) {
		if _, seen := exclude[u]; seen {
			continue
		}
		fromModel = append(fromModel, models.ReplyImage{URL: u})
		if len(fromModel) >= a.cfg.MaxImages {
			break
		}
	}
	if len(fromModel) > 0 {
		reply.Source = models.SourceModel
		reply.Images = fromModel
		reply.Text = orDefault(text, modelImagesIntro)
		a.state.Update(sessionID, func(s *SessionState) { s.LastShown = fromModel })
		return nil
	}

	st := a.state.Get(sessionID)
	q := models.ProductQuery{
		Style:         firstNonEmpty(res.Style, st.LastStyle),
		Type:          firstNonEmpty(res.Type, st.LastType),
		Limit:         a.cfg.MaxImages,
		ExcludeImages: exclude,
	}
	if res.Kind == intent.KindSimilar && res.Type == "" && st.LastShownType != "" {
		q.Type = st.LastShownType
	}
	if res.Kind == intent.KindCatalog {
		q.Text = req.Text
	}
	products, err := a.products.Query(ctx, q)
	if err != nil {
		return fmt.Errorf("%w: catalog query: %v", models.ErrAssistantUnavailable, err)
	}
	if len(products) == 0 {
		reply.Source = models.SourceNone
		reply.Text = noMoreItemsText
		if strings.TrimSpace(text) != "" {
			reply.Text = text + "\n\n" + noMoreItemsText
		}
		return nil
	}

	images := make([]models.ReplyImage, 0, len(products))
	for _, p := range products {
		images = append(images, models.ReplyImage{
			URL:       p.ImageURL,
			ProductID: p.ID,
			Name:      p.Name,
			ModelURL:  p.ModelURL,
		})
	}
	reply.Source = models.SourceCatalog
	reply.Images = images
	reply.Text = orDefault(text, catalogIntroEmpty)
	a.state.Update(sessionID, func(s *SessionState) {
		s.LastShown = images
		s.LastShownType = products[0].Type
	})
	return nil
}

// shownImages returns the images already shown in the session, from storage and memory.
func (a *Assistant) shownImages(ctx context.Context, sessionID string) (map[string]struct{}, error) {
	stored, err := a.storage.ShownImages(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load shown images: %w", err)
	}
	exclude := a.state.Get(sessionID).Shown
	for _, u := range stored {
		exclude[u] = struct{}{}
	}
	return exclude, nil
}

// selectItem resolves "number N" against the last images shown.
func (a *Assistant) selectItem(sessionID string, n int, reply *models.Reply) {
	reply.Source = models.SourceSelection
	shown := a.state.Get(sessionID).LastShown
	if len(shown) == 0 {
		reply.Text = nothingShownText
		return
	}
	if n == intent.SelectLast {
		n = len(shown)
	}
	if n < 1 || n > len(shown) {
		reply.Text = fmt.Sprintf("Please pick a number between 1 and %d.", len(shown))
		return
	}
	item := shown[n-1]
	var b strings.Builder
	if item.Name != "" {
		fmt.Fprintf(&b, "Great choice: %s.", item.Name)
	} else {
		b.WriteString("Great choice.")
	}
	if item.ModelURL != "" {
		fmt.Fprintf(&b, " You can place it in your room in AR: %s", item.ModelURL)
	}
	reply.Text = b.String()
	reply.Images = []models.ReplyImage{item}
}

// saveReply persists the reply text and one message per image, and marks the images shown.
func (a *Assistant) saveReply(ctx context.Context, reply *models.Reply) (*models.Reply, error) {
	var msgs []*models.Message
	if reply.Text != "" {
		msgs = append(msgs, &models.Message{SessionID: reply.SessionID, Role: models.RoleAssistant, Text: reply.Text})
	}
	for _, img := range reply.Images {
		msgs = append(msgs, &models.Message{SessionID: reply.SessionID, Role: models.RoleAssistant, Text: img.Name, ImageURL: img.URL})
	}
	for _, m := range msgs {
		m.CreatedAt = a.now()
		if err := a.storage.AddMessage(ctx, m); err != nil {
			return nil, fmt.Errorf("save reply: %w", err)
		}
	}
	a.state.Update(reply.SessionID, func(s *SessionState) {
		for _, img := range reply.Images {
			s.Shown[img.URL] = struct{}{}
		}
	})
	if err := a.storage.TouchSession(ctx, reply.SessionID, a.now()); err != nil && !errors.Is(err, models.ErrSessionNotFound) {
		return nil, err
	}
	reply.Messages = msgs
	if reply.Messages == nil {
		reply.Messages = []*models.Message{}
	}
	return reply, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
