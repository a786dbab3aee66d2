package store

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"testing"
	"time"

	"studentbot-web/internal/db"
)

func newSQLiteStore(t *testing.T) *DatabaseStore {
	t.Helper()
	database, err := db.New("sqlite://")
	if err != nil {
		t.Fatalf("db.New: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	if err := database.Migrate(); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	return NewDatabaseStore(database)
}

func statementStores(t *testing.T) map[string]StatementStore {
	return map[string]StatementStore{
		"memory": NewMemoryStatementStore(),
		"sqlite": newSQLiteStore(t),
	}
}

func TestStatementStorePromptsAndResponses(t *testing.T) {
	ctx := context.Background()
	for name, st := range statementStores(t) {
		t.Run(name, func(t *testing.T) {
			err := st.CreateMany(ctx, []Statement{
				{Text: "Hello"},
				{Text: "Hi there", InResponseTo: "Hello"},
				{Text: "How are you?", InResponseTo: "Hi there"},
				{Text: "Hey", InResponseTo: "Hello"},
				{Text: ""},
			})
			if err != nil {
				t.Fatalf("CreateMany: %v", err)
			}

			n, err := st.Count(ctx)
			if err != nil {
				t.Fatal(err)
			}
			if n != 4 {
				t.Errorf("Count = %d, want 4 (empty text skipped)", n)
			}

			prompts, err := st.Prompts(ctx)
			if err != nil {
				t.Fatal(err)
			}
			sort.Strings(prompts)
			if want := []string{"Hello", "Hi there"}; !reflect.DeepEqual(prompts, want) {
				t.Errorf("Prompts = %v, want %v", prompts, want)
			}

			resps, err := st.Responses(ctx, "Hello")
			if err != nil {
				t.Fatal(err)
			}
			var texts []string
			for _, r := range resps {
				texts = append(texts, r.Text)
				if r.InResponseTo != "Hello" {
					t.Errorf("response %q has InResponseTo %q", r.Text, r.InResponseTo)
				}
			}
			if want := []string{"Hi there", "Hey"}; !reflect.DeepEqual(texts, want) {
				t.Errorf("Responses = %v, want %v in insertion order", texts, want)
			}

			if resps, _ := st.Responses(ctx, ""); len(resps) != 0 {
				t.Errorf("openers returned as responses to empty prompt: %v", resps)
			}
		})
	}
}

func TestStatementStoreCreate(t *testing.T) {
	ctx := context.Background()
	for name, st := range statementStores(t) {
		t.Run(name, func(t *testing.T) {
			saved, err := st.Create(ctx, Statement{Text: "Good night", InResponseTo: "Bye", Conversation: "s_1"})
			if err != nil {
				t.Fatalf("Create: %v", err)
			}
			if saved.ID == 0 {
				t.Error("expected ID to be set")
			}
			if _, err := st.Create(ctx, Statement{}); err == nil {
				t.Error("expected error for empty text")
			}
			resps, err := st.Responses(ctx, "Bye")
			if err != nil {
				t.Fatal(err)
			}
			if len(resps) != 1 || resps[0].Conversation != "s_1" {
				t.Errorf("Responses = %+v", resps)
			}
		})
	}
}

func TestStatementStoreTrainedCorpora(t *testing.T) {
	ctx := context.Background()
	for name, st := range statementStores(t) {
		t.Run(name, func(t *testing.T) {
			ok, err := st.IsTrained(ctx, "english.greetings")
			if err != nil {
				t.Fatal(err)
			}
			if ok {
				t.Fatal("fresh store reports corpus trained")
			}
			if err := st.MarkTrained(ctx, "english.greetings", 12); err != nil {
				t.Fatal(err)
			}
			// marking again updates in place
			if err := st.MarkTrained(ctx, "english.greetings", 13); err != nil {
				t.Fatal(err)
			}
			ok, err = st.IsTrained(ctx, "english.greetings")
			if err != nil {
				t.Fatal(err)
			}
			if !ok {
				t.Error("corpus not reported trained after MarkTrained")
			}
			if err := st.MarkTrained(ctx, "", 1); err == nil {
				t.Error("expected error for empty corpus name")
			}
		})
	}
}

func TestStatementStorePromptsInInsertionOrder(t *testing.T) {
	ctx := context.Background()
	for name, st := range statementStores(t) {
		t.Run(name, func(t *testing.T) {
			err := st.CreateMany(ctx, []Statement{
				{Text: "a", InResponseTo: "What is your name?"},
				{Text: "b", InResponseTo: "Good morning"},
				{Text: "c", InResponseTo: "What is your name?"},
				{Text: "d", InResponseTo: "Are you a robot?"},
			})
			if err != nil {
				t.Fatalf("CreateMany: %v", err)
			}
			prompts, err := st.Prompts(ctx)
			if err != nil {
				t.Fatal(err)
			}
			want := []string{"What is your name?", "Good morning", "Are you a robot?"}
			if !reflect.DeepEqual(prompts, want) {
				t.Errorf("Prompts = %v, want %v", prompts, want)
			}
		})
	}
}

func TestStatementStoreCreateCorpus(t *testing.T) {
	ctx := context.Background()
	for name, st := range statementStores(t) {
		t.Run(name, func(t *testing.T) {
			sts := []Statement{{Text: "Hi"}, {Text: "Hello", InResponseTo: "Hi"}}
			if err := st.CreateCorpus(ctx, "english.greetings", sts); err != nil {
				t.Fatalf("CreateCorpus: %v", err)
			}
			ok, err := st.IsTrained(ctx, "english.greetings")
			if err != nil || !ok {
				t.Errorf("IsTrained = %v, %v", ok, err)
			}
			if n, _ := st.Count(ctx); n != 2 {
				t.Errorf("Count = %d, want 2", n)
			}
			if err := st.CreateCorpus(ctx, "", sts); err == nil {
				t.Error("expected error for empty corpus name")
			}
		})
	}
}

func TestCreateCorpusRollsBackOnFailure(t *testing.T) {
	ctx := context.Background()
	st := newSQLiteStore(t)
	if _, err := st.db.ExecContext(ctx, `DROP TABLE trained_corpora`); err != nil {
		t.Fatal(err)
	}

	err := st.CreateCorpus(ctx, "english.greetings", []Statement{{Text: "Hi"}, {Text: "Hello", InResponseTo: "Hi"}})
	if err == nil {
		t.Fatal("expected error when the trained mark cannot be written")
	}
	n, err := st.Count(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("Count = %d after failed CreateCorpus, want 0", n)
	}
}

func TestSessionStoreTrims(t *testing.T) {
	s := NewSessionStore(3, 0)
	s.Append("a", Message{Role: RoleUser, Content: "1"}, Message{Role: RoleAssistant, Content: "2"})
	s.Append("a", Message{Role: RoleUser, Content: "3"}, Message{Role: RoleAssistant, Content: "4"})
	s.Append("b", Message{Role: RoleUser, Content: "x"})

	got := s.Get("a")
	if len(got) != 3 || got[0].Content != "2" || got[2].Content != "4" {
		t.Errorf("Get(a) = %+v, want last three messages", got)
	}
	if len(s.Get("b")) != 1 {
		t.Errorf("sessions leaked into each other")
	}

	got[0].Content = "mutated"
	if s.Get("a")[0].Content != "2" {
		t.Error("Get returned shared slice")
	}

	s.Clear("a")
	if len(s.Get("a")) != 0 {
		t.Error("Clear did not remove history")
	}
}

func TestSessionStoreUnlimited(t *testing.T) {
	s := NewSessionStore(0, 0)
	for i := 0; i < 100; i++ {
		s.Append("a", Message{Role: RoleUser, Content: "m"})
	}
	if n := len(s.Get("a")); n != 100 {
		t.Errorf("len = %d, want 100", n)
	}
}

func TestSessionStoreExpiresIdleSessions(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	s := NewSessionStore(10, 30*time.Minute)
	s.now = func() time.Time { return now }

	for i := 0; i < 50; i++ {
		s.Append(fmt.Sprintf("idle-%d", i), Message{Role: RoleUser, Content: "hi"})
	}
	s.Append("active", Message{Role: RoleUser, Content: "first"})

	now = now.Add(20 * time.Minute)
	s.Append("active", Message{Role: RoleUser, Content: "second"})

	now = now.Add(15 * time.Minute)
	if got := s.Get("idle-0"); len(got) != 0 {
		t.Errorf("expired session still readable: %+v", got)
	}
	if got := s.Get("active"); len(got) != 2 {
		t.Errorf("active session history = %+v, want 2 messages", got)
	}

	s.Append("active", Message{Role: RoleUser, Content: "third"})
	if n := s.Len(); n != 1 {
		t.Errorf("Len = %d after sweep, want 1", n)
	}

	now = now.Add(31 * time.Minute)
	s.Append("active", Message{Role: RoleUser, Content: "fresh"})
	if got := s.Get("active"); len(got) != 1 || got[0].Content != "fresh" {
		t.Errorf("expired session was not restarted: %+v", got)
	}
}
