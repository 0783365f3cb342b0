// Package telegram runs the assistant as a Telegram bot. Each chat owns its sessions
// under the owner ID "tg:<chat id>".
package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
	"github.com/hyperjump/decora/internal/blobstore"
	"github.com/hyperjump/decora/internal/models"
	"github.com/hyperjump/decora/pkg/utils"
	"go.uber.org/zap"
)

const (
	welcomeText       = "Hi! I'm your decor assistant. Tell me about your room or ask me to show you lamps, sofas, vases or paintings. Send /new to start a fresh conversation."
	newChatText       = "Started a new conversation. What are we decorating?"
	photoNeedsUploads = "I can't look at photos right now, but you can describe the room to me."
)

// Assistant is the part of the assistant the bot talks to.
type Assistant interface {
	Send(ctx context.Context, sessionID, owner string, req models.SendRequest) (*models.Reply, error)
	LatestSession(ctx context.Context, owner string) (*models.Session, error)
	CreateSession(ctx context.Context, owner, title string) (*models.Session, error)
}

// Messenger sends messages to Telegram. *bot.Bot satisfies it.
type Messenger interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*tgmodels.Message, error)
	SendPhoto(ctx context.Context, params *bot.SendPhotoParams) (*tgmodels.Message, error)
}

// fileFetcher downloads a Telegram file and returns its body and content type.
type fileFetcher func(ctx context.Context, fileID string) (io.ReadCloser, string, error)

// Bot routes Telegram updates to the assistant.
type Bot struct {
	assistant Assistant
	uploads   *blobstore.DiskStore
	out       Messenger
	fetch     fileFetcher
	client    *bot.Bot
	logger    *zap.Logger
}

// New creates a bot for token. uploads, when set, stores photos users send so the
// assistant can look at them.
func New(token string, asst Assistant, uploads *blobstore.DiskStore, logger *zap.Logger) (*Bot, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: telegram token is required", models.ErrInvalidInput)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Bot{assistant: asst, uploads: uploads, logger: logger}
	client, err := bot.New(token,
		bot.WithDefaultHandler(func(ctx context.Context, _ *bot.Bot, update *tgmodels.Update) {
			b.handle(ctx, update)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	b.client = client
	b.out = client
	b.fetch = b.download
	return b, nil
}

// Run polls for updates until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	me, err := b.client.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("failed to get bot info: %w", err)
	}
	b.logger.Info("Starting telegram bot", zap.String("username", me.Username), zap.Int64("id", me.ID))
	b.client.Start(ctx)
	b.logger.Info("telegram bot stopped")
	return nil
}

// Owner returns the session owner for a chat.
func Owner(chatID int64) string {
	return fmt.Sprintf("tg:%d", chatID)
}

func (b *Bot) handle(ctx context.Context, update *tgmodels.Update) {
	msg := update.Message
	if msg == nil {
		return
	}
	chatID := msg.Chat.ID
	owner := Owner(chatID)
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		text = strings.TrimSpace(msg.Caption)
	}

	switch command(text) {
	case "/start", "/help":
		b.sendText(ctx, chatID, welcomeText)
		return
	case "/new":
		if _, err := b.assistant.CreateSession(ctx, owner, ""); err != nil {
			b.logger.Error("telegram: create session failed", zap.String("owner", owner), zap.Error(err))
			b.sendText(ctx, chatID, models.GenericFailureMessage)
			return
		}
		b.sendText(ctx, chatID, newChatText)
		return
	}

	req := models.SendRequest{Text: text}
	if len(msg.Photo) > 0 {
		if b.uploads == nil {
			// The caption, if any, still goes to the assistant.
			b.sendText(ctx, chatID, photoNeedsUploads)
		} else {
			url, err := b.storePhoto(ctx, msg.Photo[len(msg.Photo)-1].FileID)
			if err != nil {
				b.logger.Error("telegram: store photo failed", zap.String("owner", owner), zap.Error(err))
				b.sendText(ctx, chatID, models.GenericFailureMessage)
				return
			}
			req.ImageURL = url
		}
	}
	if req.Text == "" && req.ImageURL == "" {
		return
	}

	sess, err := b.assistant.LatestSession(ctx, owner)
	if err != nil {
		b.logger.Error("telegram: load session failed", zap.String("owner", owner), zap.Error(err))
		b.sendText(ctx, chatID, models.GenericFailureMessage)
		return
	}
	reply, err := b.assistant.Send(ctx, sess.ID, owner, req)
	if err != nil {
		b.logger.Error("telegram: send failed",
			zap.String("owner", owner),
			zap.String("session_id", sess.ID),
			zap.Error(err))
		b.sendText(ctx, chatID, models.GenericFailureMessage)
		return
	}
	b.sendReply(ctx, chatID, reply)
}

// command returns the bot command at the start of text without any @botname suffix.
func command(text string) string {
	if !strings.HasPrefix(text, "/") {
		return ""
	}
	cmd := strings.Fields(text)[0]
	if i := strings.IndexByte(cmd, '@'); i >= 0 {
		cmd = cmd[:i]
	}
	return strings.ToLower(cmd)
}

func (b *Bot) sendReply(ctx context.Context, chatID int64, reply *models.Reply) {
	if strings.TrimSpace(reply.Text) != "" {
		b.sendText(ctx, chatID, reply.Text)
	}
	for _, img := range reply.Images {
		_, err := b.out.SendPhoto(ctx, &bot.SendPhotoParams{
			ChatID:  chatID,
			Photo:   &tgmodels.InputFileString{Data: img.URL},
			Caption: Caption(img),
		})
		if err != nil {
			b.logger.Warn("telegram: send photo failed", zap.String("url", img.URL), zap.Error(err))
			b.sendText(ctx, chatID, img.URL)
		}
	}
}

// Caption describes a shown image: the product name and the 3-D model link when known.
func Caption(img models.ReplyImage) string {
	var parts []string
	if img.Name != "" {
		parts = append(parts, img.Name)
	}
	if img.ModelURL != "" {
		parts = append(parts, "3D model: "+img.ModelURL)
	}
	return utils.Truncate(strings.Join(parts, "\n"), MaxCaptionLen-3)
}

// sendText sends text split into Telegram-sized parts. Markdown is tried first and
// plain text is used when Telegram rejects it.
func (b *Bot) sendText(ctx context.Context, chatID int64, text string) {
	for _, part := range SplitMessage(text, MaxMessageLen) {
		params := &bot.SendMessageParams{
			ChatID:    chatID,
			Text:      part,
			ParseMode: tgmodels.ParseModeMarkdownV1,
		}
		if _, err := b.out.SendMessage(ctx, params); err != nil {
			params.ParseMode = ""
			if _, err := b.out.SendMessage(ctx, params); err != nil {
				b.logger.Warn("telegram: send message failed", zap.Int64("chat_id", chatID), zap.Error(err))
				return
			}
		}
	}
}

func (b *Bot) storePhoto(ctx context.Context, fileID string) (string, error) {
	body, contentType, err := b.fetch(ctx, fileID)
	if err != nil {
		return "", err
	}
	defer body.Close()
	if _, ok := blobstore.Extension(contentType); !ok {
		contentType = "image/jpeg"
	}
	return b.uploads.Put(ctx, fileID, contentType, body)
}

func (b *Bot) download(ctx context.Context, fileID string) (io.ReadCloser, string, error) {
	file, err := b.client.GetFile(ctx, &bot.GetFileParams{FileID: fileID})
	if err != nil {
		return nil, "", fmt.Errorf("get file: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.client.FileDownloadLink(file), nil)
	if err != nil {
		return nil, "", fmt.Errorf("create download request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("download file: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, "", errors.New("download file: unexpected status " + resp.Status)
	}
	return resp.Body, resp.Header.Get("Content-Type"), nil
}
