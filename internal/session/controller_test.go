package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/transport-university/chatbot/backend/internal/model/chat"
)

func TestSendAppendsUserMessageBeforeNetworkResolves(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	log := &fakeLog{send: func(_ context.Context, text string) (chat.SendResponse, error) {
		close(started)
		<-release
		return chat.SendResponse{Message: text, Response: "**Học phí** 10 triệu"}, nil
	}}
	ctrl := newTestController(log, NewStaticAuth("tok"))

	done := make(chan error, 1)
	go func() { done <- ctrl.Send(context.Background(), " học phí? ") }()

	<-started
	mid := ctrl.Snapshot()
	require.Equal(t, 2, mid.Len())
	last, _ := mid.Last()
	assert.Equal(t, chat.SenderUser, last.Sender)
	assert.Equal(t, "học phí?", last.Text)
	assert.Equal(t, chat.StatusSent, last.Status)
	assert.True(t, mid.IsLoading)

	// a second send while the first is in flight is rejected without network
	assert.ErrorIs(t, ctrl.Send(context.Background(), "again"), ErrBusy)
	sends, _ := log.calls()
	assert.Equal(t, 1, sends)
	assert.Equal(t, mid, ctrl.Snapshot())

	close(release)
	require.NoError(t, <-done)

	final := ctrl.Snapshot()
	require.Equal(t, 3, final.Len())
	assert.Equal(t, "**Học phí** 10 triệu", final.Messages[2].Text)
	assert.Equal(t, chat.SenderBot, final.Messages[2].Sender)
	assert.False(t, final.IsLoading)
	assert.Equal(t, "tok", log.lastToken)
}

func TestSendUnauthenticatedTouchesNothing(t *testing.T) {
	log := &fakeLog{}
	ctrl := newTestController(log, NewStaticAuth(""))
	before := ctrl.Snapshot()

	err := ctrl.Send(context.Background(), "xin chào")

	assert.ErrorIs(t, err, ErrAuthRequired)
	assert.Equal(t, before, ctrl.Snapshot())
	sends, fetches := log.calls()
	assert.Zero(t, sends)
	assert.Zero(t, fetches)
}

func TestSendRejectsBlankText(t *testing.T) {
	log := &fakeLog{}
	ctrl := newTestController(log, NewStaticAuth("tok"))

	assert.ErrorIs(t, ctrl.Send(context.Background(), " \n\t"), ErrEmptyMessage)
	assert.Equal(t, 1, ctrl.Snapshot().Len())
	sends, _ := log.calls()
	assert.Zero(t, sends)
}

func TestFailedSendAppendsApology(t *testing.T) {
	log := &fakeLog{send: func(context.Context, string) (chat.SendResponse, error) {
		return chat.SendResponse{}, errors.New("connection refused")
	}}
	ctrl := newTestController(log, NewStaticAuth("tok"))

	require.NoError(t, ctrl.Send(context.Background(), "lịch thi"))

	s := ctrl.Snapshot()
	require.Equal(t, 3, s.Len())
	assert.Equal(t, chat.SenderUser, s.Messages[1].Sender)
	assert.Equal(t, chat.StatusSent, s.Messages[1].Status)
	assert.Equal(t, chat.SenderBot, s.Messages[2].Sender)
	assert.Equal(t, testApology, s.Messages[2].Text)
	assert.False(t, s.IsLoading)
}

func TestSendIgnoresCallerCancellation(t *testing.T) {
	log := &fakeLog{send: func(ctx context.Context, text string) (chat.SendResponse, error) {
		if err := ctx.Err(); err != nil {
			return chat.SendResponse{}, err
		}
		return chat.SendResponse{Response: "ok"}, nil
	}}
	ctrl := newTestController(log, NewStaticAuth("tok"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, ctrl.Send(ctx, "hi"))
	last, _ := ctrl.Snapshot().Last()
	assert.Equal(t, "ok", last.Text)
}

func TestReplyLandsWhileClosed(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	log := &fakeLog{send: func(context.Context, string) (chat.SendResponse, error) {
		close(started)
		<-release
		return chat.SendResponse{Response: "done"}, nil
	}}
	ctrl := newTestController(log, NewStaticAuth("tok"))
	ctrl.Open(context.Background())

	done := make(chan error, 1)
	go func() { done <- ctrl.Send(context.Background(), "q") }()
	<-started
	ctrl.Close()
	close(release)
	require.NoError(t, <-done)

	s := ctrl.Snapshot()
	assert.False(t, s.IsOpen)
	last, _ := s.Last()
	assert.Equal(t, "done", last.Text)
}

func TestLoadHistoryEmptyShowsWelcome(t *testing.T) {
	log := &fakeLog{}
	ctrl := newTestController(log, NewStaticAuth("tok"))

	require.NoError(t, ctrl.LoadHistory(context.Background(), 50, 0))

	s := ctrl.Snapshot()
	require.Equal(t, 1, s.Len())
	assert.Equal(t, WelcomeID, s.Messages[0].ID)
	assert.Equal(t, testWelcome, s.Messages[0].Text)
}

func TestLoadHistoryReplacesView(t *testing.T) {
	log := &fakeLog{fetch: func(limit, offset int) (chat.HistoryPage, error) {
		return chat.HistoryPage{Total: 2, Limit: limit, Offset: offset, Items: []chat.Exchange{
			exchange(1, "a", chat.StringPtr("b")),
			exchange(2, "c", nil),
		}}, nil
	}}
	ctrl := newTestController(log, NewStaticAuth("tok"))

	require.NoError(t, ctrl.LoadHistory(context.Background(), 50, 0))

	s := ctrl.Snapshot()
	require.Equal(t, 3, s.Len())
	assert.Equal(t, []string{"a", "b", "c"}, []string{s.Messages[0].Text, s.Messages[1].Text, s.Messages[2].Text})
	assert.False(t, s.IsLoading)
}

func TestLoadHistoryFailureKeepsState(t *testing.T) {
	log := &fakeLog{}
	ctrl := newTestController(log, NewStaticAuth("tok"))
	require.NoError(t, ctrl.Send(context.Background(), "q"))
	before := ctrl.Snapshot()

	log.fetch = func(int, int) (chat.HistoryPage, error) {
		return chat.HistoryPage{}, errors.New("dial tcp: timeout")
	}
	err := ctrl.LoadHistory(context.Background(), 50, 0)

	assert.Error(t, err)
	assert.Equal(t, before, ctrl.Snapshot())
}

func TestRestartCollapsesToWelcome(t *testing.T) {
	log := &fakeLog{}
	ctrl := newTestController(log, NewStaticAuth("tok"))
	for _, q := range []string{"a", "b", "c"} {
		require.NoError(t, ctrl.Send(context.Background(), q))
	}
	require.Equal(t, 7, ctrl.Snapshot().Len())

	ctrl.Restart()
	ctrl.Restart()

	s := ctrl.Snapshot()
	require.Equal(t, 1, s.Len())
	assert.Equal(t, WelcomeID, s.Messages[0].ID)
	assert.Equal(t, uint64(2), ctrl.Epoch())
	assert.Zero(t, log.deleteCalls)
}

func TestReplyAfterRestartIsDropped(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	log := &fakeLog{send: func(context.Context, string) (chat.SendResponse, error) {
		close(started)
		<-release
		return chat.SendResponse{Response: "late"}, nil
	}}
	ctrl := newTestController(log, NewStaticAuth("tok"))

	done := make(chan error, 1)
	go func() { done <- ctrl.Send(context.Background(), "q") }()
	<-started
	ctrl.Restart()
	close(release)
	require.NoError(t, <-done)

	s := ctrl.Snapshot()
	assert.Equal(t, 1, s.Len())
	assert.False(t, s.IsLoading)
}

func TestOpenLoadsHistoryOnceUntilStale(t *testing.T) {
	log := &fakeLog{}
	ctrl := newTestController(log, NewStaticAuth("tok"))

	ctrl.Open(context.Background())
	ctrl.Close()
	ctrl.Open(context.Background())
	_, fetches := log.calls()
	assert.Equal(t, 1, fetches)
	assert.True(t, ctrl.Snapshot().IsOpen)

	ctrl.MarkStale()
	ctrl.Open(context.Background())
	_, fetches = log.calls()
	assert.Equal(t, 2, fetches)
}

func TestOpenReloadsAfterStaleWindow(t *testing.T) {
	now := time.Date(2025, 9, 1, 8, 0, 0, 0, time.UTC)
	log := &fakeLog{}
	ctrl := NewController(log, NewStaticAuth("tok"), Options{
		Welcome:    testWelcome,
		Apology:    testApology,
		StaleAfter: time.Minute,
		Now:        func() time.Time { return now },
	})

	ctrl.Open(context.Background())
	now = now.Add(2 * time.Minute)
	ctrl.Open(context.Background())

	_, fetches := log.calls()
	assert.Equal(t, 2, fetches)
	assert.Equal(t, 50, log.lastLimit)
}

func TestOpenUnauthenticatedSkipsHistory(t *testing.T) {
	log := &fakeLog{}
	ctrl := newTestController(log, NewStaticAuth(""))

	ctrl.Open(context.Background())

	_, fetches := log.calls()
	assert.Zero(t, fetches)
	assert.True(t, ctrl.Snapshot().IsOpen)
	assert.ErrorIs(t, ctrl.LoadHistory(context.Background(), 10, 0), ErrAuthRequired)
}

func TestLoadOlderPrependsPages(t *testing.T) {
	all := []chat.Exchange{
		exchange(1, "q1", chat.StringPtr("a1")),
		exchange(2, "q2", chat.StringPtr("a2")),
		exchange(3, "q3", chat.StringPtr("a3")),
	}
	log := &fakeLog{}
	log.fetch = func(limit, offset int) (chat.HistoryPage, error) {
		end := len(all) - offset
		start := max(end-limit, 0)
		if end < 0 {
			end = 0
		}
		return chat.HistoryPage{Total: len(all), Limit: limit, Offset: offset, Items: all[start:end]}, nil
	}
	ctrl := newTestController(log, NewStaticAuth("tok"))

	require.NoError(t, ctrl.LoadHistory(context.Background(), 2, 0))
	assert.Equal(t, "2:u", ctrl.Snapshot().Messages[0].ID)

	more, err := ctrl.LoadOlder(context.Background())
	require.NoError(t, err)
	assert.False(t, more)
	assert.Equal(t, 2, log.lastOffset)

	s := ctrl.Snapshot()
	require.Equal(t, 6, s.Len())
	assert.Equal(t, "1:u", s.Messages[0].ID)
	assert.Equal(t, "3:b", s.Messages[5].ID)

	more, err = ctrl.LoadOlder(context.Background())
	require.NoError(t, err)
	assert.False(t, more)
	_, fetches := log.calls()
	assert.Equal(t, 2, fetches)
}

func TestDeleteRemovesPair(t *testing.T) {
	log := &fakeLog{fetch: func(limit, offset int) (chat.HistoryPage, error) {
		return chat.HistoryPage{Total: 1, Items: []chat.Exchange{exchange(9, "q", chat.StringPtr("a"))}}, nil
	}}
	ctrl := newTestController(log, NewStaticAuth("tok"))
	require.NoError(t, ctrl.LoadHistory(context.Background(), 50, 0))

	require.NoError(t, ctrl.Delete(context.Background(), 9))

	s := ctrl.Snapshot()
	require.Equal(t, 1, s.Len())
	assert.Equal(t, WelcomeID, s.Messages[0].ID)

	notFound := errors.New("not found")
	log.delete = func(int64) error { return notFound }
	assert.ErrorIs(t, ctrl.Delete(context.Background(), 9), notFound)
}

func TestSentExchangeTakesServerIDs(t *testing.T) {
	log := &fakeLog{send: func(_ context.Context, text string) (chat.SendResponse, error) {
		return chat.SendResponse{ChatID: 7, Message: text, Response: "ok"}, nil
	}}
	ctrl := newTestController(log, NewStaticAuth("tok"))

	require.NoError(t, ctrl.Send(context.Background(), "hi"))

	s := ctrl.Snapshot()
	require.Equal(t, 3, s.Len())
	assert.Equal(t, "7:u", s.Messages[1].ID)
	assert.Equal(t, "7:b", s.Messages[2].ID)
	assert.Equal(t, "ok", s.Messages[2].Text)

	require.NoError(t, ctrl.Delete(context.Background(), 7))
	s = ctrl.Snapshot()
	require.Equal(t, 1, s.Len())
	assert.Equal(t, WelcomeID, s.Messages[0].ID)
}

func TestLoadOlderAfterSend(t *testing.T) {
	log := &fakeLog{
		send: func(_ context.Context, text string) (chat.SendResponse, error) {
			return chat.SendResponse{ChatID: 5, Message: text, Response: "r5"}, nil
		},
		fetch: func(limit, offset int) (chat.HistoryPage, error) {
			if offset == 0 {
				return chat.HistoryPage{Total: 4, Items: []chat.Exchange{
					exchange(3, "q3", chat.StringPtr("r3")),
					exchange(4, "q4", chat.StringPtr("r4")),
				}}, nil
			}
			return chat.HistoryPage{Total: 5, Items: []chat.Exchange{
				exchange(1, "q1", chat.StringPtr("r1")),
				exchange(2, "q2", chat.StringPtr("r2")),
			}}, nil
		},
	}
	ctrl := newTestController(log, NewStaticAuth("tok"))
	require.NoError(t, ctrl.LoadHistory(context.Background(), 2, 0))
	require.NoError(t, ctrl.Send(context.Background(), "q5"))

	more, err := ctrl.LoadOlder(context.Background())
	require.NoError(t, err)
	assert.False(t, more)
	assert.Equal(t, 3, log.lastOffset)

	var ids []string
	for _, m := range ctrl.Snapshot().Messages {
		ids = append(ids, m.ID)
	}
	assert.Equal(t, []string{"1:u", "1:b", "2:u", "2:b", "3:u", "3:b", "4:u", "4:b", "5:u", "5:b"}, ids)
}

func TestUnansweredSendShiftsOlderOffset(t *testing.T) {
	stored := fmt.Errorf("send: %w", ErrUnanswered)
	log := &fakeLog{
		send: func(context.Context, string) (chat.SendResponse, error) {
			return chat.SendResponse{}, stored
		},
		fetch: func(limit, offset int) (chat.HistoryPage, error) {
			return chat.HistoryPage{Total: 6, Items: []chat.Exchange{
				exchange(int64(6-offset-1), "q", chat.StringPtr("r")),
				exchange(int64(6-offset), "q", chat.StringPtr("r")),
			}}, nil
		},
	}
	ctrl := newTestController(log, NewStaticAuth("tok"))
	require.NoError(t, ctrl.LoadHistory(context.Background(), 2, 0))

	require.NoError(t, ctrl.Send(context.Background(), "q"))
	last, _ := ctrl.Snapshot().Last()
	assert.Equal(t, testApology, last.Text)

	_, err := ctrl.LoadOlder(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, log.lastOffset)

	// a failure that never reached the log does not move the window
	log.send = func(context.Context, string) (chat.SendResponse, error) {
		return chat.SendResponse{}, errors.New("connection refused")
	}
	require.NoError(t, ctrl.LoadHistory(context.Background(), 2, 0))
	require.NoError(t, ctrl.Send(context.Background(), "q"))
	_, err = ctrl.LoadOlder(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, log.lastOffset)
}

func TestSubscribeReceivesTransitions(t *testing.T) {
	ctrl := newTestController(&fakeLog{}, NewStaticAuth("tok"))

	var mu sync.Mutex
	var seen []State
	cancel := ctrl.Subscribe(func(s State) {
		mu.Lock()
		seen = append(seen, s)
		mu.Unlock()
	})

	require.NoError(t, ctrl.Send(context.Background(), "q"))
	cancel()
	ctrl.Restart()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 2)
	assert.True(t, seen[0].IsLoading)
	assert.Equal(t, 2, seen[0].Len())
	assert.False(t, seen[1].IsLoading)
	assert.Equal(t, 3, seen[1].Len())
}
