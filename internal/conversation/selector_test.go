package conversation

import (
	"context"
	"errors"
	"testing"

	"github.com/youruser/chatc/internal/api"
	"github.com/youruser/chatc/internal/transcript"
)

type fakeBackend struct {
	chats    []api.Conversation
	listErr  error
	created  *api.Conversation
	newErr   error
	history  map[string][]api.Message
	histErr  error
	titles   []string
	fetching chan struct{} // when set, signaled as a history fetch starts
	block    chan struct{} // when set, history fetches wait on it
}

func (f *fakeBackend) ListChats(ctx context.Context) ([]api.Conversation, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.chats, nil
}

func (f *fakeBackend) CreateChat(ctx context.Context, title string) (*api.Conversation, error) {
	f.titles = append(f.titles, title)
	if f.newErr != nil {
		return nil, f.newErr
	}
	c := *f.created
	c.Title = title
	return &c, nil
}

func (f *fakeBackend) ListMessages(ctx context.Context, chatID string) ([]api.Message, error) {
	if f.fetching != nil {
		f.fetching <- struct{}{}
	}
	if f.block != nil {
		<-f.block
	}
	if f.histErr != nil {
		return nil, f.histErr
	}
	return f.history[chatID], nil
}

func newSelector(b *fakeBackend) (*Selector, *transcript.Store) {
	store := transcript.New(b)
	return NewSelector(b, store), store
}

func TestInitialState(t *testing.T) {
	s, _ := newSelector(&fakeBackend{})
	if s.State() != NoConversation {
		t.Errorf("State() = %v, want %v", s.State(), NoConversation)
	}
	if s.Title() != DefaultTitle {
		t.Errorf("Title() = %q, want %q", s.Title(), DefaultTitle)
	}
	if s.Active() != nil || s.ActiveID() != "" {
		t.Error("expected no active conversation")
	}
}

func TestSelect(t *testing.T) {
	t.Run("loads transcript", func(t *testing.T) {
		b := &fakeBackend{history: map[string][]api.Message{
			"c1": {{ID: "1", Sender: api.SenderUser, Content: "hi"}},
		}}
		s, store := newSelector(b)

		s.Select(context.Background(), api.Conversation{ID: "c1", Title: "Greetings"})

		if s.State() != Ready {
			t.Errorf("State() = %v, want %v", s.State(), Ready)
		}
		if s.Title() != "Greetings" || s.ActiveID() != "c1" {
			t.Errorf("title=%q active=%q", s.Title(), s.ActiveID())
		}
		if store.Len() != 1 {
			t.Errorf("store.Len() = %d, want 1", store.Len())
		}
	})

	t.Run("load failure still selects", func(t *testing.T) {
		b := &fakeBackend{histErr: errors.New("network down")}
		s, store := newSelector(b)
		store.Append(api.Message{ID: "old"})

		s.Select(context.Background(), api.Conversation{ID: "c1", Title: "T"})

		if s.State() != Ready || s.ActiveID() != "c1" {
			t.Errorf("state=%v active=%q", s.State(), s.ActiveID())
		}
		if store.Len() != 0 {
			t.Errorf("store.Len() = %d, want 0", store.Len())
		}
	})
}

func TestNew(t *testing.T) {
	t.Run("activates without listing", func(t *testing.T) {
		b := &fakeBackend{
			chats:   []api.Conversation{{ID: "old", Title: "Old"}},
			created: &api.Conversation{ID: "fresh"},
		}
		s, store := newSelector(b)
		if err := s.RefreshList(context.Background()); err != nil {
			t.Fatal(err)
		}
		store.Append(api.Message{ID: "leftover"})

		conv, err := s.New(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if conv.ID != "fresh" || b.titles[0] != DefaultTitle {
			t.Errorf("created %+v with title %q", conv, b.titles[0])
		}
		if s.ActiveID() != "fresh" || s.State() != Ready || s.Title() != DefaultTitle {
			t.Errorf("active=%q state=%v title=%q", s.ActiveID(), s.State(), s.Title())
		}
		if store.Len() != 0 || store.ConversationID() != "fresh" {
			t.Errorf("store not reset for new chat: len=%d id=%q", store.Len(), store.ConversationID())
		}
		if list := s.List(); len(list) != 1 || list[0].ID != "old" {
			t.Errorf("List() = %+v, want only the old chat", list)
		}
	})

	t.Run("failure changes nothing", func(t *testing.T) {
		b := &fakeBackend{
			history: map[string][]api.Message{"c1": {{ID: "1"}}},
			newErr:  &api.StatusError{Op: "create chat", StatusCode: 500},
		}
		s, store := newSelector(b)
		s.Select(context.Background(), api.Conversation{ID: "c1", Title: "Keep"})

		_, err := s.New(context.Background())
		if !errors.Is(err, api.ErrRequestFailed) {
			t.Errorf("error = %v, want ErrRequestFailed", err)
		}
		if s.ActiveID() != "c1" || s.Title() != "Keep" || store.Len() != 1 {
			t.Errorf("state changed: active=%q title=%q len=%d", s.ActiveID(), s.Title(), store.Len())
		}
		if len(s.List()) != 0 {
			t.Error("failed create must not add to the list")
		}
	})
}

func TestNewWhileSelectLoads(t *testing.T) {
	b := &fakeBackend{
		created:  &api.Conversation{ID: "fresh"},
		history:  map[string][]api.Message{"c1": {{ID: "1", Sender: api.SenderUser, Content: "old"}}},
		fetching: make(chan struct{}, 1),
		block:    make(chan struct{}),
	}
	s, store := newSelector(b)

	done := make(chan struct{})
	go func() {
		s.Select(context.Background(), api.Conversation{ID: "c1", Title: "Old"})
		close(done)
	}()
	<-b.fetching
	if s.State() != LoadingTranscript {
		t.Fatalf("State() = %v while fetching, want %v", s.State(), LoadingTranscript)
	}

	if _, err := s.New(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := store.AppendFor("fresh", api.Message{ID: "user-1", Sender: api.SenderUser, Content: "first"}); err != nil {
		t.Fatal(err)
	}
	close(b.block)
	<-done

	if s.ActiveID() != "fresh" || s.State() != Ready || s.Title() != DefaultTitle {
		t.Errorf("active=%q state=%v title=%q", s.ActiveID(), s.State(), s.Title())
	}
	msgs := store.Messages()
	if len(msgs) != 1 || msgs[0].ID != "user-1" || store.ConversationID() != "fresh" {
		t.Errorf("transcript = %+v (%s), want only the new chat's message", msgs, store.ConversationID())
	}
}

func TestRefreshListFailureKeepsList(t *testing.T) {
	b := &fakeBackend{chats: []api.Conversation{{ID: "a"}, {ID: "b"}}}
	s, _ := newSelector(b)
	if err := s.RefreshList(context.Background()); err != nil {
		t.Fatal(err)
	}

	b.listErr = errors.New("boom")
	if err := s.RefreshList(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if len(s.List()) != 2 {
		t.Errorf("List() = %+v, want previous list", s.List())
	}
}

func TestRefreshListHidesPlaceholderTitles(t *testing.T) {
	b := &fakeBackend{chats: []api.Conversation{
		{ID: "new", Title: DefaultTitle},
		{ID: "named", Title: "Weather in Paris"},
	}}
	s, _ := newSelector(b)
	if err := s.RefreshList(context.Background()); err != nil {
		t.Fatal(err)
	}
	if list := s.List(); len(list) != 1 || list[0].ID != "named" {
		t.Errorf("List() = %+v, want only the named chat", list)
	}

	s.ApplyMetadata(api.Conversation{ID: "new", Title: DefaultTitle})
	if len(s.List()) != 1 {
		t.Errorf("placeholder metadata was listed: %+v", s.List())
	}
	s.ApplyMetadata(api.Conversation{ID: "new", Title: "Go generics"})
	if list := s.List(); len(list) != 2 || list[0].ID != "new" {
		t.Errorf("List() = %+v, want the named chat prepended", list)
	}
}

func TestApplyMetadata(t *testing.T) {
	b := &fakeBackend{
		chats:   []api.Conversation{{ID: "a", Title: "A"}, {ID: "b", Title: "B"}},
		created: &api.Conversation{ID: "n"},
	}
	s, _ := newSelector(b)
	s.RefreshList(context.Background())

	s.ApplyMetadata(api.Conversation{ID: "b", Title: "B renamed"})
	list := s.List()
	if len(list) != 2 || list[1].Title != "B renamed" {
		t.Errorf("replace in place failed: %+v", list)
	}

	if _, err := s.New(context.Background()); err != nil {
		t.Fatal(err)
	}
	s.ApplyMetadata(api.Conversation{ID: "n", Title: "Weather in Paris"})
	list = s.List()
	if len(list) != 3 || list[0].ID != "n" {
		t.Errorf("new conversation not prepended: %+v", list)
	}
	if s.Title() != "Weather in Paris" {
		t.Errorf("Title() = %q, want the refreshed title", s.Title())
	}

	s.ApplyMetadata(api.Conversation{ID: "a", Title: "A2"})
	if s.Title() != "Weather in Paris" {
		t.Error("metadata for an inactive conversation changed the title")
	}
}

func TestDeselect(t *testing.T) {
	b := &fakeBackend{history: map[string][]api.Message{"c1": {{ID: "1"}}}}
	s, store := newSelector(b)
	s.Select(context.Background(), api.Conversation{ID: "c1", Title: "T"})

	s.Deselect()
	if s.State() != NoConversation || s.Title() != DefaultTitle || s.Active() != nil {
		t.Errorf("state=%v title=%q", s.State(), s.Title())
	}
	if store.Len() != 0 {
		t.Error("transcript not cleared")
	}
}
