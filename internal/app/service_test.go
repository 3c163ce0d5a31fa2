package app

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"lostfound/api/internal/authpw"
	"lostfound/api/internal/config"
	"lostfound/api/internal/store"
)

type fakeStore struct {
	getUserByIDFn             func(context.Context, string) (store.User, error)
	getItemFn                 func(context.Context, string) (store.Item, error)
	slugExistsFn              func(context.Context, string) (bool, error)
	insertItemFn              func(context.Context, store.Item) error
	listItemsFn               func(context.Context, store.ItemFilter) ([]store.Item, error)
	countItemsFn              func(context.Context, string) (store.ItemCounts, error)
	getOrCreateChatFn         func(context.Context, store.Chat) (store.Chat, bool, error)
	getChatFn                 func(context.Context, string) (store.Chat, error)
	reopenChatFn              func(context.Context, string) (bool, error)
	closeChatFn               func(context.Context, string) (bool, error)
	listChatsForUserFn        func(context.Context, string) ([]store.ChatSummary, error)
	appendMessageFn           func(context.Context, store.Message) error
	markReadAndListMessagesFn func(context.Context, string, string) ([]store.Message, error)
}

func (f *fakeStore) CreateUser(context.Context, store.User) error { return nil }
func (f *fakeStore) GetUserByID(ctx context.Context, userID string) (store.User, error) {
	if f.getUserByIDFn != nil {
		return f.getUserByIDFn(ctx, userID)
	}
	return store.User{ID: userID, Username: "user", DisplayName: "User"}, nil
}
func (f *fakeStore) GetUserByEmail(context.Context, string) (store.User, error) {
	return store.User{}, sql.ErrNoRows
}
func (f *fakeStore) GetUserByUsername(context.Context, string) (store.User, error) {
	return store.User{}, sql.ErrNoRows
}
func (f *fakeStore) UsernameExists(context.Context, string) (bool, error)        { return false, nil }
func (f *fakeStore) UpdateUserDisplayName(context.Context, string, string) error { return nil }
func (f *fakeStore) GetProfile(ctx context.Context, userID string) (store.Profile, error) {
	return store.Profile{UserID: userID}, nil
}
func (f *fakeStore) UpsertProfile(context.Context, store.Profile) error        { return nil }
func (f *fakeStore) UpdateProfilePhoto(context.Context, string, string) error  { return nil }
func (f *fakeStore) SaveRefreshSession(context.Context, string, string, time.Time) error {
	return nil
}
func (f *fakeStore) LookupRefreshSession(context.Context, string) (store.User, error) {
	return store.User{}, sql.ErrNoRows
}
func (f *fakeStore) RevokeRefreshSession(context.Context, string) error { return nil }
func (f *fakeStore) RevokeAccessToken(context.Context, string, time.Time) error {
	return nil
}
func (f *fakeStore) IsAccessTokenRevoked(context.Context, string) (bool, error) { return false, nil }
func (f *fakeStore) ListCategories(context.Context) ([]store.Category, error)   { return nil, nil }
func (f *fakeStore) InsertItem(ctx context.Context, item store.Item) error {
	if f.insertItemFn != nil {
		return f.insertItemFn(ctx, item)
	}
	return nil
}
func (f *fakeStore) UpdateItem(context.Context, store.Item) error { return nil }
func (f *fakeStore) DeleteItem(context.Context, string) error     { return nil }
func (f *fakeStore) GetItem(ctx context.Context, itemID string) (store.Item, error) {
	if f.getItemFn != nil {
		return f.getItemFn(ctx, itemID)
	}
	return store.Item{}, sql.ErrNoRows
}
func (f *fakeStore) GetItemBySlug(context.Context, string) (store.Item, error) {
	return store.Item{}, sql.ErrNoRows
}
func (f *fakeStore) SlugExists(ctx context.Context, slug string) (bool, error) {
	if f.slugExistsFn != nil {
		return f.slugExistsFn(ctx, slug)
	}
	return false, nil
}
func (f *fakeStore) ListItems(ctx context.Context, filter store.ItemFilter) ([]store.Item, error) {
	if f.listItemsFn != nil {
		return f.listItemsFn(ctx, filter)
	}
	return nil, nil
}
func (f *fakeStore) CountItems(ctx context.Context, ownerID string) (store.ItemCounts, error) {
	if f.countItemsFn != nil {
		return f.countItemsFn(ctx, ownerID)
	}
	return store.ItemCounts{}, nil
}
func (f *fakeStore) GetOrCreateChat(ctx context.Context, chat store.Chat) (store.Chat, bool, error) {
	if f.getOrCreateChatFn != nil {
		return f.getOrCreateChatFn(ctx, chat)
	}
	chat.Status = store.ChatActive
	return chat, true, nil
}
func (f *fakeStore) GetChat(ctx context.Context, chatID string) (store.Chat, error) {
	if f.getChatFn != nil {
		return f.getChatFn(ctx, chatID)
	}
	return store.Chat{}, sql.ErrNoRows
}
func (f *fakeStore) ReopenChat(ctx context.Context, chatID string) (bool, error) {
	if f.reopenChatFn != nil {
		return f.reopenChatFn(ctx, chatID)
	}
	return false, nil
}
func (f *fakeStore) CloseChat(ctx context.Context, chatID string) (bool, error) {
	if f.closeChatFn != nil {
		return f.closeChatFn(ctx, chatID)
	}
	return false, nil
}
func (f *fakeStore) ListChatsForUser(ctx context.Context, userID string) ([]store.ChatSummary, error) {
	if f.listChatsForUserFn != nil {
		return f.listChatsForUserFn(ctx, userID)
	}
	return nil, nil
}
func (f *fakeStore) AppendMessage(ctx context.Context, message store.Message) error {
	if f.appendMessageFn != nil {
		return f.appendMessageFn(ctx, message)
	}
	return nil
}
func (f *fakeStore) MarkReadAndListMessages(ctx context.Context, chatID, readerID string) ([]store.Message, error) {
	if f.markReadAndListMessagesFn != nil {
		return f.markReadAndListMessagesFn(ctx, chatID, readerID)
	}
	return nil, nil
}
func (f *fakeStore) ListMessages(context.Context, string) ([]store.Message, error) { return nil, nil }
func (f *fakeStore) Ping(context.Context) error                                    { return nil }

func newTestService(fs *fakeStore) *Service {
	return &Service{
		cfg: config.Config{
			TokenSecret: "test-secret",
			AccessTTL:   time.Hour,
			RefreshTTL:  24 * time.Hour,
		},
		store:    fs,
		sessions: pgSessions{store: fs},
		accounts: authpw.NewService(fs),
	}
}

func activeChat(id string) store.Chat {
	itemID := "itm_1"
	return store.Chat{
		ID:          id,
		ItemID:      &itemID,
		InitiatorID: "usr_finder",
		OwnerID:     "usr_owner",
		Status:      store.ChatActive,
	}
}

func TestStartChatRejectsOwnItem(t *testing.T) {
	fs := &fakeStore{
		getItemFn: func(_ context.Context, itemID string) (store.Item, error) {
			return store.Item{ID: itemID, OwnerID: "usr_owner"}, nil
		},
	}
	svc := newTestService(fs)

	_, err := svc.StartChat(context.Background(), "itm_1", "usr_owner")
	var domainErr *DomainError
	if !errors.As(err, &domainErr) {
		t.Fatalf("expected DomainError, got %v", err)
	}
	if domainErr.Code != "SELF_CHAT" {
		t.Fatalf("expected SELF_CHAT, got %s", domainErr.Code)
	}
	if domainErr.Status != 400 {
		t.Fatalf("expected status 400, got %d", domainErr.Status)
	}
}

func TestStartChatUnknownItemIsNotFound(t *testing.T) {
	svc := newTestService(&fakeStore{})

	_, err := svc.StartChat(context.Background(), "itm_missing", "usr_finder")
	if !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected sql.ErrNoRows, got %v", err)
	}
	status, code, _, _ := mapError(err)
	if status != 404 || code != "NOT_FOUND" {
		t.Fatalf("expected 404 NOT_FOUND, got %d %s", status, code)
	}
}

func TestStartChatReturnsExistingChat(t *testing.T) {
	reopenCalls := 0
	fs := &fakeStore{
		getItemFn: func(_ context.Context, itemID string) (store.Item, error) {
			return store.Item{ID: itemID, OwnerID: "usr_owner"}, nil
		},
		getOrCreateChatFn: func(_ context.Context, chat store.Chat) (store.Chat, bool, error) {
			existing := activeChat("cht_existing")
			return existing, false, nil
		},
		reopenChatFn: func(context.Context, string) (bool, error) {
			reopenCalls++
			return false, nil
		},
	}
	svc := newTestService(fs)

	payload, err := svc.StartChat(context.Background(), "itm_1", "usr_finder")
	if err != nil {
		t.Fatalf("StartChat() error = %v", err)
	}
	if payload["chat_id"] != "cht_existing" {
		t.Fatalf("expected existing chat id, got %v", payload["chat_id"])
	}
	if payload["created"] != false {
		t.Fatalf("expected created=false, got %v", payload["created"])
	}
	if reopenCalls != 0 {
		t.Fatalf("active chat must not be reopened, got %d reopen calls", reopenCalls)
	}
}

func TestStartChatReopensClosedChat(t *testing.T) {
	reopenCalls := 0
	fs := &fakeStore{
		getItemFn: func(_ context.Context, itemID string) (store.Item, error) {
			return store.Item{ID: itemID, OwnerID: "usr_owner"}, nil
		},
		getOrCreateChatFn: func(_ context.Context, chat store.Chat) (store.Chat, bool, error) {
			existing := activeChat("cht_existing")
			existing.Status = store.ChatClosed
			return existing, false, nil
		},
		reopenChatFn: func(_ context.Context, chatID string) (bool, error) {
			reopenCalls++
			if chatID != "cht_existing" {
				t.Fatalf("reopen called for wrong chat %s", chatID)
			}
			return true, nil
		},
	}
	svc := newTestService(fs)

	payload, err := svc.StartChat(context.Background(), "itm_1", "usr_finder")
	if err != nil {
		t.Fatalf("StartChat() error = %v", err)
	}
	if reopenCalls != 1 {
		t.Fatalf("expected one reopen call, got %d", reopenCalls)
	}
	if payload["status"] != store.ChatActive {
		t.Fatalf("expected active status after reopen, got %v", payload["status"])
	}
}

func TestSendMessageValidation(t *testing.T) {
	appended := 0
	fs := &fakeStore{
		getChatFn: func(_ context.Context, chatID string) (store.Chat, error) {
			return activeChat(chatID), nil
		},
		appendMessageFn: func(_ context.Context, message store.Message) error {
			appended++
			return nil
		},
	}
	svc := newTestService(fs)
	ctx := context.Background()

	cases := []struct {
		name     string
		content  string
		wantCode string
	}{
		{name: "empty", content: "", wantCode: "EMPTY_CONTENT"},
		{name: "whitespace only", content: "   \n\t ", wantCode: "EMPTY_CONTENT"},
		{name: "201 runes", content: strings.Repeat("ä", 201), wantCode: "CONTENT_TOO_LONG"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.SendMessage(ctx, "cht_1", "usr_finder", "Finder", tc.content)
			var domainErr *DomainError
			if !errors.As(err, &domainErr) {
				t.Fatalf("expected DomainError, got %v", err)
			}
			if domainErr.Code != tc.wantCode {
				t.Fatalf("expected %s, got %s", tc.wantCode, domainErr.Code)
			}
		})
	}
	if appended != 0 {
		t.Fatalf("rejected messages must not be stored, got %d appends", appended)
	}

	// Exactly at the limit is fine, and surrounding whitespace does not count.
	payload, err := svc.SendMessage(ctx, "cht_1", "usr_finder", "Finder", "  "+strings.Repeat("ä", 200)+"  ")
	if err != nil {
		t.Fatalf("SendMessage() at limit error = %v", err)
	}
	if appended != 1 {
		t.Fatalf("expected one append, got %d", appended)
	}
	if payload["content"] != strings.Repeat("ä", 200) {
		t.Fatalf("expected trimmed content in payload")
	}
}

func TestSendMessageClosedChat(t *testing.T) {
	appended := 0
	fs := &fakeStore{
		getChatFn: func(_ context.Context, chatID string) (store.Chat, error) {
			chat := activeChat(chatID)
			chat.Status = store.ChatClosed
			return chat, nil
		},
		appendMessageFn: func(context.Context, store.Message) error {
			appended++
			return nil
		},
	}
	svc := newTestService(fs)

	_, err := svc.SendMessage(context.Background(), "cht_1", "usr_finder", "Finder", "hello")
	var domainErr *DomainError
	if !errors.As(err, &domainErr) {
		t.Fatalf("expected DomainError, got %v", err)
	}
	if domainErr.Code != "CHAT_CLOSED" {
		t.Fatalf("expected CHAT_CLOSED, got %s", domainErr.Code)
	}
	if appended != 0 {
		t.Fatalf("closed chat must not accept messages")
	}
}

func TestSendMessageRequiresParticipant(t *testing.T) {
	fs := &fakeStore{
		getChatFn: func(_ context.Context, chatID string) (store.Chat, error) {
			return activeChat(chatID), nil
		},
	}
	svc := newTestService(fs)

	_, err := svc.SendMessage(context.Background(), "cht_1", "usr_stranger", "Stranger", "hello")
	var domainErr *DomainError
	if !errors.As(err, &domainErr) {
		t.Fatalf("expected DomainError, got %v", err)
	}
	if domainErr.Code != "FORBIDDEN" || domainErr.Status != 403 {
		t.Fatalf("expected 403 FORBIDDEN, got %d %s", domainErr.Status, domainErr.Code)
	}
}

func TestReadMessagesAnnotatesSender(t *testing.T) {
	fs := &fakeStore{
		getChatFn: func(_ context.Context, chatID string) (store.Chat, error) {
			return activeChat(chatID), nil
		},
		markReadAndListMessagesFn: func(_ context.Context, chatID, readerID string) ([]store.Message, error) {
			if readerID != "usr_owner" {
				t.Fatalf("expected reader usr_owner, got %s", readerID)
			}
			return []store.Message{
				{ID: "m1", ChatID: chatID, SenderID: "usr_finder", SenderName: "Finder", Content: "I found your backpack"},
				{ID: "m2", ChatID: chatID, SenderID: "usr_owner", SenderName: "Owner", Content: "Where?"},
			}, nil
		},
	}
	svc := newTestService(fs)

	payload, err := svc.ReadMessages(context.Background(), "cht_1", "usr_owner")
	if err != nil {
		t.Fatalf("ReadMessages() error = %v", err)
	}
	if payload["chat_id"] != "cht_1" || payload["status"] != store.ChatActive {
		t.Fatalf("unexpected snapshot envelope: %v", payload)
	}
	rows := payload["messages"].([]map[string]any)
	if len(rows) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(rows))
	}
	if rows[0]["is_from_me"] != false {
		t.Fatalf("other party's message must have is_from_me=false")
	}
	if rows[1]["is_from_me"] != true {
		t.Fatalf("reader's own message must have is_from_me=true")
	}
}

func TestReadMessagesRequiresParticipant(t *testing.T) {
	marked := 0
	fs := &fakeStore{
		getChatFn: func(_ context.Context, chatID string) (store.Chat, error) {
			return activeChat(chatID), nil
		},
		markReadAndListMessagesFn: func(context.Context, string, string) ([]store.Message, error) {
			marked++
			return nil, nil
		},
	}
	svc := newTestService(fs)

	_, err := svc.ReadMessages(context.Background(), "cht_1", "usr_stranger")
	var domainErr *DomainError
	if !errors.As(err, &domainErr) {
		t.Fatalf("expected DomainError, got %v", err)
	}
	if domainErr.Code != "FORBIDDEN" {
		t.Fatalf("expected FORBIDDEN, got %s", domainErr.Code)
	}
	if marked != 0 {
		t.Fatalf("outsider poll must not flip read flags")
	}
}

func TestCloseChatOwnerOnly(t *testing.T) {
	closeCalls := 0
	fs := &fakeStore{
		getChatFn: func(_ context.Context, chatID string) (store.Chat, error) {
			return activeChat(chatID), nil
		},
		closeChatFn: func(context.Context, string) (bool, error) {
			closeCalls++
			return true, nil
		},
	}
	svc := newTestService(fs)
	ctx := context.Background()

	_, err := svc.CloseChat(ctx, "cht_1", "usr_finder")
	var domainErr *DomainError
	if !errors.As(err, &domainErr) {
		t.Fatalf("expected DomainError for initiator close, got %v", err)
	}
	if domainErr.Code != "FORBIDDEN" {
		t.Fatalf("expected FORBIDDEN, got %s", domainErr.Code)
	}
	if closeCalls != 0 {
		t.Fatalf("initiator must not close the chat")
	}

	payload, err := svc.CloseChat(ctx, "cht_1", "usr_owner")
	if err != nil {
		t.Fatalf("CloseChat() error = %v", err)
	}
	if payload["status"] != store.ChatClosed {
		t.Fatalf("expected closed status, got %v", payload["status"])
	}
	if closeCalls != 1 {
		t.Fatalf("expected one close call, got %d", closeCalls)
	}
}

func TestCloseChatIsIdempotent(t *testing.T) {
	fs := &fakeStore{
		getChatFn: func(_ context.Context, chatID string) (store.Chat, error) {
			chat := activeChat(chatID)
			chat.Status = store.ChatClosed
			return chat, nil
		},
		closeChatFn: func(context.Context, string) (bool, error) {
			// No rows affected: already closed.
			return false, nil
		},
	}
	svc := newTestService(fs)

	payload, err := svc.CloseChat(context.Background(), "cht_1", "usr_owner")
	if err != nil {
		t.Fatalf("closing a closed chat must succeed, got %v", err)
	}
	if payload["status"] != store.ChatClosed {
		t.Fatalf("expected closed status, got %v", payload["status"])
	}
}

func TestListChatsShowsOtherParty(t *testing.T) {
	fs := &fakeStore{
		listChatsForUserFn: func(_ context.Context, userID string) ([]store.ChatSummary, error) {
			first := store.ChatSummary{Chat: activeChat("cht_1"), InitiatorName: "Finder", OwnerName: "Owner", ItemTitle: "Red Backpack", UnreadCount: 2}
			second := store.ChatSummary{Chat: activeChat("cht_2"), InitiatorName: "Finder", OwnerName: "Owner", ItemTitle: "Umbrella"}
			second.InitiatorID = "usr_other"
			return []store.ChatSummary{first, second}, nil
		},
	}
	svc := newTestService(fs)

	payload, err := svc.ListChats(context.Background(), "usr_finder")
	if err != nil {
		t.Fatalf("ListChats() error = %v", err)
	}
	chats := payload["chats"].([]map[string]any)
	if len(chats) != 2 {
		t.Fatalf("expected 2 chats, got %d", len(chats))
	}
	if chats[0]["other_party"] != "Owner" {
		t.Fatalf("initiator must see the owner as other party, got %v", chats[0]["other_party"])
	}
	if chats[1]["other_party"] != "Finder" {
		t.Fatalf("non-initiator must see the initiator as other party, got %v", chats[1]["other_party"])
	}
	if chats[0]["unread_count"] != 2 {
		t.Fatalf("expected unread_count 2, got %v", chats[0]["unread_count"])
	}
}

func TestCreateItemValidatesTitle(t *testing.T) {
	svc := newTestService(&fakeStore{})

	_, err := svc.CreateItem(context.Background(), "usr_owner", ItemInput{Title: "ab"})
	var domainErr *DomainError
	if !errors.As(err, &domainErr) {
		t.Fatalf("expected DomainError, got %v", err)
	}
	if domainErr.Code != "VALIDATION_ERROR" {
		t.Fatalf("expected VALIDATION_ERROR, got %s", domainErr.Code)
	}
}

func TestCreateItemGeneratesUniqueSlug(t *testing.T) {
	var inserted store.Item
	fs := &fakeStore{
		slugExistsFn: func(_ context.Context, slug string) (bool, error) {
			return slug == "red-backpack" || slug == "red-backpack-2", nil
		},
		insertItemFn: func(_ context.Context, item store.Item) error {
			inserted = item
			return nil
		},
	}
	svc := newTestService(fs)

	_, err := svc.CreateItem(context.Background(), "usr_owner", ItemInput{Title: "Red Backpack!", Status: "lost"})
	if err != nil {
		t.Fatalf("CreateItem() error = %v", err)
	}
	if inserted.Slug != "red-backpack-3" {
		t.Fatalf("expected slug red-backpack-3, got %q", inserted.Slug)
	}
	if inserted.OwnerID != "usr_owner" {
		t.Fatalf("expected owner usr_owner, got %q", inserted.OwnerID)
	}
}

func TestListItemsPaginationLookahead(t *testing.T) {
	var gotFilter store.ItemFilter
	fs := &fakeStore{
		listItemsFn: func(_ context.Context, filter store.ItemFilter) ([]store.Item, error) {
			gotFilter = filter
			items := make([]store.Item, itemPageSize+1)
			for i := range items {
				items[i] = store.Item{ID: "itm_" + strings.Repeat("x", i+1)}
			}
			return items, nil
		},
	}
	svc := newTestService(fs)

	payload, err := svc.ListItems(context.Background(), ItemListInput{Page: 2})
	if err != nil {
		t.Fatalf("ListItems() error = %v", err)
	}
	if gotFilter.Limit != itemPageSize+1 {
		t.Fatalf("expected lookahead limit %d, got %d", itemPageSize+1, gotFilter.Limit)
	}
	if gotFilter.Offset != itemPageSize {
		t.Fatalf("expected offset %d for page 2, got %d", itemPageSize, gotFilter.Offset)
	}
	if payload["has_more"] != true {
		t.Fatalf("expected has_more=true")
	}
	rows := payload["items"].([]map[string]any)
	if len(rows) != itemPageSize {
		t.Fatalf("expected %d rows, got %d", itemPageSize, len(rows))
	}
}

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"Red Backpack":        "red-backpack",
		"  Lost: AirPods!  ":  "lost-airpods",
		"Ключи от квартиры":   "item",
		"Water-bottle (blue)": "water-bottle-blue",
	}
	for input, want := range cases {
		if got := slugify(input); got != want {
			t.Fatalf("slugify(%q) = %q, want %q", input, got, want)
		}
	}
}
