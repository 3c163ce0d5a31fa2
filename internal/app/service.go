package app

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"lostfound/api/internal/auth"
	"lostfound/api/internal/authpw"
	"lostfound/api/internal/config"
	"lostfound/api/internal/media"
	"lostfound/api/internal/search"
	"lostfound/api/internal/store"
	"lostfound/api/internal/util"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	Username     string
	DisplayName  string
	JTI          string
	ExpiresAt    time.Time
}

type ItemInput struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Status      string `json:"status"`
	Location    string `json:"location"`
	EventDate   string `json:"event_date"`
	CategoryID  string `json:"category_id"`
}

type ItemListInput struct {
	Query      string
	Status     string
	CategoryID string
	OwnerID    string
	Page       int
}

type ProfileInput struct {
	DisplayName string `json:"display_name"`
	Phone       string `json:"phone"`
	City        string `json:"city"`
	State       string `json:"state"`
	PostalCode  string `json:"postal_code"`
	BirthDate   string `json:"birth_date"`
}

// maxMessageRunes bounds message content, counted in runes after trimming.
const maxMessageRunes = 200

const itemPageSize = 8

var allowedItemStatuses = map[string]struct{}{
	store.ItemLost:     {},
	store.ItemFound:    {},
	store.ItemReturned: {},
}

type dataStore interface {
	CreateUser(context.Context, store.User) error
	GetUserByID(context.Context, string) (store.User, error)
	GetUserByEmail(context.Context, string) (store.User, error)
	GetUserByUsername(context.Context, string) (store.User, error)
	UsernameExists(context.Context, string) (bool, error)
	UpdateUserDisplayName(context.Context, string, string) error
	GetProfile(context.Context, string) (store.Profile, error)
	UpsertProfile(context.Context, store.Profile) error
	UpdateProfilePhoto(context.Context, string, string) error
	SaveRefreshSession(context.Context, string, string, time.Time) error
	LookupRefreshSession(context.Context, string) (store.User, error)
	RevokeRefreshSession(context.Context, string) error
	RevokeAccessToken(context.Context, string, time.Time) error
	IsAccessTokenRevoked(context.Context, string) (bool, error)
	ListCategories(context.Context) ([]store.Category, error)
	InsertItem(context.Context, store.Item) error
	UpdateItem(context.Context, store.Item) error
	DeleteItem(context.Context, string) error
	GetItem(context.Context, string) (store.Item, error)
	GetItemBySlug(context.Context, string) (store.Item, error)
	SlugExists(context.Context, string) (bool, error)
	ListItems(context.Context, store.ItemFilter) ([]store.Item, error)
	CountItems(context.Context, string) (store.ItemCounts, error)
	GetOrCreateChat(context.Context, store.Chat) (store.Chat, bool, error)
	GetChat(context.Context, string) (store.Chat, error)
	ReopenChat(context.Context, string) (bool, error)
	CloseChat(context.Context, string) (bool, error)
	ListChatsForUser(context.Context, string) ([]store.ChatSummary, error)
	AppendMessage(context.Context, store.Message) error
	MarkReadAndListMessages(context.Context, string, string) ([]store.Message, error)
	ListMessages(context.Context, string) ([]store.Message, error)
	Ping(ctx context.Context) error
}

// sessionStore is the refresh-token backend: Redis when configured,
// otherwise Postgres via pgSessions.
type sessionStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash string, user store.User, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
}

type pgSessions struct {
	store dataStore
}

func (p pgSessions) SaveRefreshSession(ctx context.Context, tokenHash string, user store.User, expiresAt time.Time) error {
	return p.store.SaveRefreshSession(ctx, tokenHash, user.ID, expiresAt)
}

func (p pgSessions) LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error) {
	return p.store.LookupRefreshSession(ctx, tokenHash)
}

func (p pgSessions) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	return p.store.RevokeRefreshSession(ctx, tokenHash)
}

type Service struct {
	cfg      config.Config
	store    dataStore
	sessions sessionStore
	accounts *authpw.Service
	media    *media.Service
	search   *search.Service
}

func New(cfg config.Config, dataStore *store.PostgresStore, sessions sessionStore, mediaService *media.Service, searchService *search.Service) *Service {
	if sessions == nil {
		sessions = pgSessions{store: dataStore}
	}
	return &Service{
		cfg:      cfg,
		store:    dataStore,
		sessions: sessions,
		accounts: authpw.NewService(dataStore),
		media:    mediaService,
		search:   searchService,
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// ---------------------------------------------------------------------------
// Sessions

func (s *Service) SignUp(ctx context.Context, req authpw.SignUpRequest) (Session, error) {
	user, err := s.accounts.SignUp(ctx, req)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) SignIn(ctx context.Context, identifier, password string) (Session, error) {
	user, err := s.accounts.SignIn(ctx, identifier, password)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	user, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, err
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	// Re-read the user so a renamed account carries the fresh display name.
	if fresh, err := s.store.GetUserByID(ctx, user.ID); err == nil {
		user = fresh
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.TokenSecret), auth.Claims{
		Sub:      user.ID,
		Username: user.Username,
		Name:     user.DisplayName,
		JTI:      jti,
		Exp:      expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		Username:     user.Username,
		DisplayName:  user.DisplayName,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.TokenSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.store.IsAccessTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	user, err := s.store.GetUserByID(ctx, claims.Sub)
	if err != nil {
		return Session{}, err
	}

	return Session{
		Token:       token,
		UserID:      user.ID,
		Username:    user.Username,
		DisplayName: user.DisplayName,
		JTI:         claims.JTI,
		ExpiresAt:   time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	if session.JTI != "" {
		_ = s.store.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt)
	}
	if refreshToken != "" {
		_ = s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
	}
	return nil
}

// ---------------------------------------------------------------------------
// Chats

// mayAccess reports whether userID is a participant of the chat. Every
// chat read and mutation goes through this predicate before touching
// anything else.
func mayAccess(chat store.Chat, userID string) bool {
	return chat.InitiatorID == userID || chat.OwnerID == userID
}

// mayClose reports whether userID may close the chat. Only the item
// owner side of the conversation can.
func mayClose(chat store.Chat, userID string) bool {
	return chat.OwnerID == userID
}

// StartChat opens (or returns) the conversation between initiator and
// the item's owner about the item. Starting twice yields the same chat;
// a previously closed chat comes back active.
func (s *Service) StartChat(ctx context.Context, itemID, initiatorID string) (map[string]any, error) {
	item, err := s.store.GetItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if item.OwnerID == initiatorID {
		return nil, domainError(http.StatusBadRequest, "SELF_CHAT", "You cannot start a chat about your own item", nil)
	}

	chat, created, err := s.store.GetOrCreateChat(ctx, store.Chat{
		ID:          util.NewID("cht"),
		ItemID:      &item.ID,
		InitiatorID: initiatorID,
		OwnerID:     item.OwnerID,
	})
	if err != nil {
		return nil, err
	}

	if !created && chat.Status == store.ChatClosed {
		if _, err := s.store.ReopenChat(ctx, chat.ID); err != nil {
			return nil, err
		}
		chat.Status = store.ChatActive
	}

	return map[string]any{
		"chat_id": chat.ID,
		"status":  chat.Status,
		"created": created,
	}, nil
}

func (s *Service) ListChats(ctx context.Context, userID string) (map[string]any, error) {
	summaries, err := s.store.ListChatsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	chats := make([]map[string]any, 0, len(summaries))
	for _, summary := range summaries {
		otherParty := summary.InitiatorName
		if summary.InitiatorID == userID {
			otherParty = summary.OwnerName
		}
		chats = append(chats, map[string]any{
			"id":           summary.ID,
			"item_title":   summary.ItemTitle,
			"other_party":  otherParty,
			"status":       summary.Status,
			"updated_at":   summary.UpdatedAt,
			"unread_count": summary.UnreadCount,
		})
	}
	return map[string]any{"chats": chats}, nil
}

// ReadMessages is the polling read: it marks the other party's unread
// messages read and returns the full transcript in one atomic snapshot.
func (s *Service) ReadMessages(ctx context.Context, chatID, readerID string) (map[string]any, error) {
	chat, err := s.store.GetChat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if !mayAccess(chat, readerID) {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "You are not a participant of this chat", nil)
	}

	messages, err := s.store.MarkReadAndListMessages(ctx, chatID, readerID)
	if err != nil {
		return nil, err
	}

	rows := make([]map[string]any, 0, len(messages))
	for _, message := range messages {
		rows = append(rows, map[string]any{
			"id":          message.ID,
			"content":     message.Content,
			"sender_name": message.SenderName,
			"is_from_me":  message.SenderID == readerID,
			"sent_at":     message.SentAt,
		})
	}

	return map[string]any{
		"chat_id":  chat.ID,
		"status":   chat.Status,
		"messages": rows,
	}, nil
}

func (s *Service) SendMessage(ctx context.Context, chatID, senderID, senderName, content string) (map[string]any, error) {
	chat, err := s.store.GetChat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if !mayAccess(chat, senderID) {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "You are not a participant of this chat", nil)
	}
	if chat.Status != store.ChatActive {
		return nil, domainError(http.StatusBadRequest, "CHAT_CLOSED", "This conversation has been closed", nil)
	}

	content = strings.TrimSpace(content)
	if content == "" {
		return nil, domainError(http.StatusBadRequest, "EMPTY_CONTENT", "Message content is required", nil)
	}
	if utf8.RuneCountInString(content) > maxMessageRunes {
		return nil, domainError(http.StatusBadRequest, "CONTENT_TOO_LONG", "Message content exceeds the maximum length", map[string]any{"max": maxMessageRunes})
	}

	now := time.Now().UTC()
	message := store.Message{
		ID:       util.NewMessageID(now),
		ChatID:   chat.ID,
		SenderID: senderID,
		Content:  content,
		Kind:     store.MessageText,
		SentAt:   now,
	}
	if err := s.store.AppendMessage(ctx, message); err != nil {
		return nil, err
	}

	return map[string]any{
		"id":          message.ID,
		"chat_id":     chat.ID,
		"content":     message.Content,
		"sender_name": senderName,
		"is_from_me":  true,
		"sent_at":     message.SentAt,
	}, nil
}

// CloseChat ends the conversation. Owner-only; closing an already
// closed chat succeeds without changing anything.
func (s *Service) CloseChat(ctx context.Context, chatID, userID string) (map[string]any, error) {
	chat, err := s.store.GetChat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if !mayAccess(chat, userID) {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "You are not a participant of this chat", nil)
	}
	if !mayClose(chat, userID) {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "Only the item owner can close this chat", nil)
	}

	if _, err := s.store.CloseChat(ctx, chatID); err != nil {
		return nil, err
	}

	return map[string]any{
		"chat_id": chat.ID,
		"status":  store.ChatClosed,
	}, nil
}

// ---------------------------------------------------------------------------
// Items

func (s *Service) CreateItem(ctx context.Context, ownerID string, input ItemInput) (map[string]any, error) {
	item, err := s.validateItemInput(input)
	if err != nil {
		return nil, err
	}

	item.ID = util.NewID("itm")
	item.OwnerID = ownerID
	item.Slug, err = s.uniqueSlug(ctx, slugify(item.Title))
	if err != nil {
		return nil, err
	}

	if err := s.store.InsertItem(ctx, item); err != nil {
		return nil, err
	}
	s.indexItem(item)

	return s.itemPayload(ctx, item), nil
}

func (s *Service) UpdateItem(ctx context.Context, itemID, userID string, input ItemInput) (map[string]any, error) {
	current, err := s.store.GetItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if current.OwnerID != userID {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "Only the owner can edit this item", nil)
	}

	item, err := s.validateItemInput(input)
	if err != nil {
		return nil, err
	}
	item.ID = current.ID
	item.Slug = current.Slug
	item.OwnerID = current.OwnerID
	item.ImageKey = current.ImageKey
	item.CreatedAt = current.CreatedAt

	if err := s.store.UpdateItem(ctx, item); err != nil {
		return nil, err
	}
	s.indexItem(item)

	return s.itemPayload(ctx, item), nil
}

func (s *Service) DeleteItem(ctx context.Context, itemID, userID string) error {
	item, err := s.store.GetItem(ctx, itemID)
	if err != nil {
		return err
	}
	if item.OwnerID != userID {
		return domainError(http.StatusForbidden, "FORBIDDEN", "Only the owner can delete this item", nil)
	}
	if err := s.store.DeleteItem(ctx, itemID); err != nil {
		return err
	}
	if s.search != nil {
		s.search.DeleteItem(itemID)
	}
	if item.ImageKey != "" && s.media.IsConfigured() {
		_ = s.media.Remove(ctx, item.ImageKey)
	}
	return nil
}

func (s *Service) GetItem(ctx context.Context, itemID string) (map[string]any, error) {
	item, err := s.store.GetItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	return s.itemPayload(ctx, item), nil
}

// ResolveItem fetches an item by id, falling back to slug lookup so
// detail URLs work with either form.
func (s *Service) ResolveItem(ctx context.Context, ref string) (map[string]any, error) {
	item, err := s.store.GetItem(ctx, ref)
	if errors.Is(err, sql.ErrNoRows) {
		item, err = s.store.GetItemBySlug(ctx, ref)
	}
	if err != nil {
		return nil, err
	}
	return s.itemPayload(ctx, item), nil
}

func (s *Service) GetItemBySlug(ctx context.Context, slug string) (map[string]any, error) {
	item, err := s.store.GetItemBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	return s.itemPayload(ctx, item), nil
}

func (s *Service) ListItems(ctx context.Context, input ItemListInput) (map[string]any, error) {
	page := input.Page
	if page < 1 {
		page = 1
	}

	// Fetch one row beyond the page to learn whether a next page exists.
	items, err := s.store.ListItems(ctx, store.ItemFilter{
		Query:      input.Query,
		Status:     input.Status,
		CategoryID: input.CategoryID,
		OwnerID:    input.OwnerID,
		Limit:      itemPageSize + 1,
		Offset:     (page - 1) * itemPageSize,
	})
	if err != nil {
		return nil, err
	}

	hasMore := len(items) > itemPageSize
	if hasMore {
		items = items[:itemPageSize]
	}

	counts, err := s.store.CountItems(ctx, input.OwnerID)
	if err != nil {
		return nil, err
	}

	rows := make([]map[string]any, 0, len(items))
	for _, item := range items {
		rows = append(rows, s.itemPayload(ctx, item))
	}

	return map[string]any{
		"items":    rows,
		"page":     page,
		"has_more": hasMore,
		"counts": map[string]any{
			"total": counts.Total,
			"lost":  counts.Lost,
			"found": counts.Found,
		},
	}, nil
}

func (s *Service) Categories(ctx context.Context) (map[string]any, error) {
	categories, err := s.store.ListCategories(ctx)
	if err != nil {
		return nil, err
	}
	rows := make([]map[string]any, 0, len(categories))
	for _, category := range categories {
		rows = append(rows, map[string]any{
			"id":          category.ID,
			"name":        category.Name,
			"description": category.Description,
		})
	}
	return map[string]any{"categories": rows}, nil
}

func (s *Service) SetItemImage(ctx context.Context, itemID, userID, imageKey string) (map[string]any, error) {
	item, err := s.store.GetItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if item.OwnerID != userID {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "Only the owner can change this item's image", nil)
	}
	if item.ImageKey != "" && item.ImageKey != imageKey && s.media.IsConfigured() {
		_ = s.media.Remove(ctx, item.ImageKey)
	}
	item.ImageKey = imageKey
	if err := s.store.UpdateItem(ctx, item); err != nil {
		return nil, err
	}
	return s.itemPayload(ctx, item), nil
}

func (s *Service) validateItemInput(input ItemInput) (store.Item, error) {
	title := strings.TrimSpace(input.Title)
	if utf8.RuneCountInString(title) < 3 {
		return store.Item{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title must be at least 3 characters", nil)
	}

	status := strings.ToLower(strings.TrimSpace(input.Status))
	if status == "" {
		status = store.ItemLost
	}
	if _, ok := allowedItemStatuses[status]; !ok {
		return store.Item{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "status must be one of lost, found, returned", nil)
	}

	item := store.Item{
		Title:       title,
		Description: strings.TrimSpace(input.Description),
		Status:      status,
		Location:    strings.TrimSpace(input.Location),
	}

	if raw := strings.TrimSpace(input.EventDate); raw != "" {
		eventDate, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return store.Item{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "event_date must be YYYY-MM-DD", nil)
		}
		item.EventDate = &eventDate
	}
	if categoryID := strings.TrimSpace(input.CategoryID); categoryID != "" {
		item.CategoryID = &categoryID
	}
	return item, nil
}

func (s *Service) uniqueSlug(ctx context.Context, base string) (string, error) {
	slug := base
	for n := 2; ; n++ {
		exists, err := s.store.SlugExists(ctx, slug)
		if err != nil {
			return "", err
		}
		if !exists {
			return slug, nil
		}
		slug = base + "-" + strconv.Itoa(n)
	}
}

func slugify(title string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(title) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	slug := strings.Trim(b.String(), "-")
	if slug == "" {
		slug = "item"
	}
	return slug
}

func (s *Service) indexItem(item store.Item) {
	if s.search == nil {
		return
	}
	categoryID := ""
	if item.CategoryID != nil {
		categoryID = *item.CategoryID
	}
	s.search.IndexItem(search.ItemRecord{
		ID:          item.ID,
		Slug:        item.Slug,
		Title:       item.Title,
		Description: item.Description,
		Status:      item.Status,
		Location:    item.Location,
		CategoryID:  categoryID,
	})
}

func (s *Service) itemPayload(ctx context.Context, item store.Item) map[string]any {
	payload := map[string]any{
		"id":          item.ID,
		"slug":        item.Slug,
		"title":       item.Title,
		"description": item.Description,
		"status":      item.Status,
		"location":    item.Location,
		"owner_id":    item.OwnerID,
		"created_at":  item.CreatedAt,
		"updated_at":  item.UpdatedAt,
	}
	if item.EventDate != nil {
		payload["event_date"] = item.EventDate.Format("2006-01-02")
	}
	if item.CategoryID != nil {
		payload["category_id"] = *item.CategoryID
	}
	if item.ImageKey != "" && s.media.IsConfigured() {
		payload["image_url"] = s.media.PresignedURL(ctx, item.ImageKey)
	}
	if owner, err := s.store.GetUserByID(ctx, item.OwnerID); err == nil {
		payload["owner_name"] = owner.DisplayName
	}
	return payload
}

// ---------------------------------------------------------------------------
// Search

func (s *Service) Search(ctx context.Context, text, status, categoryID string, limit, offset int) (search.Response, error) {
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: text}, nil
	}
	return s.search.Search(search.Query{
		Text:       text,
		Status:     status,
		CategoryID: categoryID,
		Limit:      limit,
		Offset:     offset,
	}), nil
}

// ---------------------------------------------------------------------------
// Profiles

func (s *Service) GetProfile(ctx context.Context, userID string) (map[string]any, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	profile, err := s.store.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}

	payload := map[string]any{
		"username":     user.Username,
		"email":        user.Email,
		"display_name": user.DisplayName,
		"phone":        profile.Phone,
		"city":         profile.City,
		"state":        profile.State,
		"postal_code":  profile.PostalCode,
	}
	if profile.BirthDate != nil {
		payload["birth_date"] = profile.BirthDate.Format("2006-01-02")
	}
	if profile.PhotoKey != "" && s.media.IsConfigured() {
		payload["photo_url"] = s.media.PresignedURL(ctx, profile.PhotoKey)
	}
	return payload, nil
}

func (s *Service) UpdateProfile(ctx context.Context, userID string, input ProfileInput) (map[string]any, error) {
	current, err := s.store.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}

	if displayName := strings.TrimSpace(input.DisplayName); displayName != "" {
		if err := s.store.UpdateUserDisplayName(ctx, userID, displayName); err != nil {
			return nil, err
		}
	}

	profile := store.Profile{
		UserID:     userID,
		Phone:      strings.TrimSpace(input.Phone),
		City:       strings.TrimSpace(input.City),
		State:      strings.TrimSpace(input.State),
		PostalCode: strings.TrimSpace(input.PostalCode),
		BirthDate:  current.BirthDate,
		PhotoKey:   current.PhotoKey,
	}
	if raw := strings.TrimSpace(input.BirthDate); raw != "" {
		birthDate, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "birth_date must be YYYY-MM-DD", nil)
		}
		profile.BirthDate = &birthDate
	}

	if err := s.store.UpsertProfile(ctx, profile); err != nil {
		return nil, err
	}
	return s.GetProfile(ctx, userID)
}

func (s *Service) SetProfilePhoto(ctx context.Context, userID, photoKey string) (map[string]any, error) {
	current, err := s.store.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	if current.PhotoKey != "" && current.PhotoKey != photoKey && s.media.IsConfigured() {
		_ = s.media.Remove(ctx, current.PhotoKey)
	}
	if err := s.store.UpdateProfilePhoto(ctx, userID, photoKey); err != nil {
		return nil, err
	}
	return s.GetProfile(ctx, userID)
}

// Media exposes the object storage service to the HTTP layer for uploads.
func (s *Service) Media() *media.Service {
	return s.media
}
