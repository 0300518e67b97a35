package advisor

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrConversationNotFound is returned for unknown conversation ids.
var ErrConversationNotFound = errors.New("conversation not found")

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	Messages  []Message `json:"messages"`
}

// ConversationStore persists conversations as one JSON file per id under a
// directory.
type ConversationStore struct {
	dir string
}

func NewConversationStore(dir string) *ConversationStore {
	return &ConversationStore{dir: dir}
}

// Save writes the conversation, assigning an id and creation time when
// missing, and returns the saved copy.
func (cs *ConversationStore) Save(conv Conversation) (Conversation, error) {
	if conv.ID == "" {
		conv.ID = uuid.NewString()
	} else if err := validID(conv.ID); err != nil {
		return Conversation{}, err
	}
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = time.Now()
	}
	if conv.Title == "" {
		conv.Title = titleFrom(conv.Messages)
	}

	if err := os.MkdirAll(cs.dir, 0o755); err != nil {
		return Conversation{}, fmt.Errorf("create conversations directory: %w", err)
	}
	data, err := json.MarshalIndent(conv, "", "  ")
	if err != nil {
		return Conversation{}, fmt.Errorf("encode conversation: %w", err)
	}
	if err := os.WriteFile(cs.path(conv.ID), data, 0o644); err != nil {
		return Conversation{}, fmt.Errorf("write conversation: %w", err)
	}
	return conv, nil
}

func (cs *ConversationStore) Load(id string) (Conversation, error) {
	if err := validID(id); err != nil {
		return Conversation{}, err
	}
	data, err := os.ReadFile(cs.path(id))
	if errors.Is(err, os.ErrNotExist) {
		return Conversation{}, ErrConversationNotFound
	}
	if err != nil {
		return Conversation{}, fmt.Errorf("read conversation: %w", err)
	}
	var conv Conversation
	if err := json.Unmarshal(data, &conv); err != nil {
		return Conversation{}, fmt.Errorf("decode conversation %s: %w", id, err)
	}
	return conv, nil
}

// List returns every stored conversation, newest first, without messages.
func (cs *ConversationStore) List() ([]Conversation, error) {
	entries, err := os.ReadDir(cs.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read conversations directory: %w", err)
	}

	var out []Conversation
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		conv, err := cs.Load(strings.TrimSuffix(name, ".json"))
		if err != nil {
			// A corrupt or foreign file should not hide the rest.
			continue
		}
		conv.Messages = nil
		out = append(out, conv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (cs *ConversationStore) Delete(id string) error {
	if err := validID(id); err != nil {
		return err
	}
	err := os.Remove(cs.path(id))
	if errors.Is(err, os.ErrNotExist) {
		return ErrConversationNotFound
	}
	if err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	return nil
}

func (cs *ConversationStore) path(id string) string {
	return filepath.Join(cs.dir, id+".json")
}

// validID keeps ids to uuids so a request can never name a path outside the
// conversations directory.
func validID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrConversationNotFound
	}
	return nil
}

func titleFrom(msgs []Message) string {
	for _, m := range msgs {
		if m.Role == "user" && strings.TrimSpace(m.Content) != "" {
			title := strings.TrimSpace(m.Content)
			if r := []rune(title); len(r) > 60 {
				title = string(r[:60]) + "..."
			}
			return title
		}
	}
	return "Conversation"
}
