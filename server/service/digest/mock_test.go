package digest

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/hrygo/chatdigest/plugin/line"
	"github.com/hrygo/chatdigest/store"
)

type mockEngine struct {
	mock.Mock
}

func (m *mockEngine) Summarize(ctx context.Context, prompt Prompt) (string, error) {
	args := m.Called(ctx, prompt)
	return args.String(0), args.Error(1)
}

// prompts returns the prompt of every Summarize call, in call order.
func (m *mockEngine) prompts() []Prompt {
	var prompts []Prompt
	for _, call := range m.Calls {
		if call.Method == "Summarize" {
			prompts = append(prompts, call.Arguments.Get(1).(Prompt))
		}
	}
	return prompts
}

type mockDispatcher struct {
	mock.Mock
}

func (m *mockDispatcher) Reply(ctx context.Context, token, text string) error {
	args := m.Called(ctx, token, text)
	return args.Error(0)
}

// replies maps reply token to reply text.
func (m *mockDispatcher) replies() map[string]string {
	replies := map[string]string{}
	for _, call := range m.Calls {
		replies[call.Arguments.String(1)] = call.Arguments.String(2)
	}
	return replies
}

type mockProfiles struct {
	mock.Mock
}

func (m *mockProfiles) GetDisplayName(ctx context.Context, source line.Source) (string, error) {
	args := m.Called(ctx, source)
	return args.String(0), args.Error(1)
}

// failingStore fails every call with err.
type failingStore struct {
	err error
}

func (s *failingStore) CreateConversationLine(context.Context, *store.ConversationLine) (*store.ConversationLine, error) {
	return nil, s.err
}

func (s *failingStore) DrainConversationLines(context.Context, store.DrainFunc) error {
	return s.err
}

func (s *failingStore) ClaimConversationLines(context.Context, *store.ClaimConversationLines, store.DrainFunc) error {
	return s.err
}

func (s *failingStore) ReleaseConversationLines(context.Context, string) error {
	return s.err
}

func (s *failingStore) DeleteConversationLines(context.Context, *store.DeleteConversationLine) error {
	return s.err
}
