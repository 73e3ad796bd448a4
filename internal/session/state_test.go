package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/transport-university/chatbot/backend/internal/model/chat"
)

func TestNewStateHoldsWelcome(t *testing.T) {
	s := NewState("hi")

	require.Len(t, s.Messages, 1)
	assert.Equal(t, WelcomeID, s.Messages[0].ID)
	assert.Equal(t, chat.SenderBot, s.Messages[0].Sender)
	assert.False(t, s.IsLoading)
	assert.False(t, s.IsOpen)
}

func TestAppendUserTrimsAndRejectsBlank(t *testing.T) {
	s := NewState("hi")

	next, ok := s.AppendUser("1", "   ")
	assert.False(t, ok)
	assert.Equal(t, 1, next.Len())

	next, ok = s.AppendUser("1", "  học phí?  ")
	require.True(t, ok)
	last, _ := next.Last()
	assert.Equal(t, "học phí?", last.Text)
	assert.Equal(t, chat.StatusSent, last.Status)
	assert.Equal(t, chat.SenderUser, last.Sender)
}

func TestTransitionsDoNotAliasReceiver(t *testing.T) {
	base := NewState("hi")
	withUser, _ := base.AppendUser("u1", "a")
	withBot := withUser.AppendBot("b1", "b", "u1")

	assert.Equal(t, 1, base.Len())
	assert.Equal(t, 2, withUser.Len())
	assert.Equal(t, 3, withBot.Len())

	withBot.Messages[0].Text = "mutated"
	assert.Equal(t, "hi", base.Messages[0].Text)
}

func TestAppendBotPlacement(t *testing.T) {
	s := NewState("hi")
	s, _ = s.AppendUser("u1", "first")
	s, _ = s.AppendUser("u2", "second")

	s = s.AppendBot("b1", "reply one", "u1")
	require.Equal(t, 4, s.Len())
	assert.Equal(t, "b1", s.Messages[2].ID)

	s = s.AppendBot("x", "", "u2")
	assert.Equal(t, 4, s.Len(), "empty replies are dropped")

	s = s.AppendBot("b9", "orphan", "missing")
	assert.Equal(t, 4, s.Len(), "replies to messages no longer in view are dropped")

	s = s.AppendBot("tail", "end", "")
	last, _ := s.Last()
	assert.Equal(t, "tail", last.ID)
}

func TestRemoveAndFlags(t *testing.T) {
	s := NewState("hi")
	s, _ = s.AppendUser("u1", "a")
	s = s.Remove("u1").SetLoading(true).SetOpen(true)

	assert.Equal(t, 1, s.Len())
	assert.True(t, s.IsLoading)
	assert.True(t, s.IsOpen)
}

func TestRename(t *testing.T) {
	s := NewState("hi")
	s, _ = s.AppendUser("local-1:u", "a")
	s, _ = s.AppendUser("4:u", "b")

	renamed := s.Rename("local-1:u", "3:u")
	assert.Equal(t, "3:u", renamed.Messages[1].ID)
	assert.Equal(t, "local-1:u", s.Messages[1].ID)

	assert.Equal(t, s, s.Rename("missing", "5:u"))
	assert.Equal(t, s, s.Rename("local-1:u", "4:u"))
}
