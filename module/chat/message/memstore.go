package message

import (
	"context"
	"sort"
	"sync"
	"time"

	chatmodel "PulseIM/module/chat/model"
	"PulseIM/tools/errs"
	"PulseIM/tools/ids"
)

var (
	_ Store = (*MongoStore)(nil)
	_ Store = (*MemStore)(nil)
)

// MemStore keeps everything in process. Used by tests and by
// single-node dev mode; the semantics mirror MongoStore exactly.
type MemStore struct {
	mu    sync.RWMutex
	byID  map[string]*chatmodel.Message
	order []string // insertion order == create-time order
}

func NewMemStore() *MemStore {
	return &MemStore{
		byID: make(map[string]*chatmodel.Message),
	}
}

func (s *MemStore) Create(ctx context.Context, sendID, recvID, content, mediaURL string) (*chatmodel.Message, error) {
	if err := ValidateBody(content, mediaURL); err != nil {
		return nil, err
	}
	m := &chatmodel.Message{
		MsgID:      ids.GenerateString(),
		SendID:     sendID,
		RecvID:     recvID,
		Content:    content,
		MediaURL:   mediaURL,
		Status:     chatmodel.StatusSent,
		Reactions:  []chatmodel.Reaction{},
		CreateTime: time.Now().UnixMilli(),
	}
	s.mu.Lock()
	s.byID[m.MsgID] = m
	s.order = append(s.order, m.MsgID)
	s.mu.Unlock()
	return copyMsg(m), nil
}

func (s *MemStore) GetByID(ctx context.Context, msgID string) (*chatmodel.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.byID[msgID]
	if !ok {
		return nil, errs.ErrNotFound.WrapMsg("message", "msg_id", msgID)
	}
	return copyMsg(m), nil
}

func (s *MemStore) ListBetween(ctx context.Context, viewer, other string) ([]*chatmodel.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*chatmodel.Message
	for _, id := range s.order {
		m := s.byID[id]
		if m == nil {
			continue
		}
		pair := (m.SendID == viewer && m.RecvID == other) || (m.SendID == other && m.RecvID == viewer)
		if !pair || !m.VisibleTo(viewer) {
			continue
		}
		out = append(out, copyMsg(m))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreateTime < out[j].CreateTime })
	return out, nil
}

func (s *MemStore) SetStatus(ctx context.Context, msgIDs []string, status chatmodel.MsgStatus) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var moved []string
	for _, id := range msgIDs {
		m, ok := s.byID[id]
		if !ok {
			continue
		}
		if chatmodel.CanTransition(m.Status, status) {
			m.Status = status
			moved = append(moved, id)
		}
	}
	return moved, nil
}

func (s *MemStore) MarkDelivered(ctx context.Context, sendID, recvID string) ([]string, error) {
	return s.markConversation(sendID, recvID, nil, chatmodel.StatusDelivered), nil
}

func (s *MemStore) MarkRead(ctx context.Context, sendID, recvID string, msgIDs []string) ([]string, error) {
	return s.markConversation(sendID, recvID, msgIDs, chatmodel.StatusRead), nil
}

func (s *MemStore) markConversation(sendID, recvID string, msgIDs []string, to chatmodel.MsgStatus) []string {
	var want map[string]struct{}
	if len(msgIDs) > 0 {
		want = make(map[string]struct{}, len(msgIDs))
		for _, id := range msgIDs {
			want[id] = struct{}{}
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var moved []string
	for _, id := range s.order {
		m := s.byID[id]
		if m == nil || m.SendID != sendID || m.RecvID != recvID {
			continue
		}
		if want != nil {
			if _, ok := want[id]; !ok {
				continue
			}
		}
		if chatmodel.CanTransition(m.Status, to) {
			m.Status = to
			moved = append(moved, id)
		}
	}
	return moved
}

func (s *MemStore) Delete(ctx context.Context, msgID, requester string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.byID[msgID]
	if !ok {
		return errs.ErrNotFound.WrapMsg("message", "msg_id", msgID)
	}
	if m.SendID != requester {
		return errs.ErrUnauthorized.WrapMsg("only the sender may delete", "msg_id", msgID)
	}
	delete(s.byID, msgID)
	return nil
}

func (s *MemStore) DeleteFor(ctx context.Context, msgID, viewer string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.byID[msgID]
	if !ok {
		return errs.ErrNotFound.WrapMsg("message", "msg_id", msgID)
	}
	if m.VisibleTo(viewer) {
		m.DelList = append(m.DelList, viewer)
	}
	return nil
}

func (s *MemStore) AddReaction(ctx context.Context, msgID, reactor, emoji string) (*chatmodel.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.byID[msgID]
	if !ok {
		return nil, errs.ErrNotFound.WrapMsg("message", "msg_id", msgID)
	}
	if i := m.ReactionOf(reactor); i >= 0 {
		m.Reactions[i].Emoji = emoji
	} else {
		m.Reactions = append(m.Reactions, chatmodel.Reaction{UserID: reactor, Emoji: emoji})
	}
	return copyMsg(m), nil
}

func (s *MemStore) RemoveReaction(ctx context.Context, msgID, reactor string) (*chatmodel.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.byID[msgID]
	if !ok {
		return nil, errs.ErrNotFound.WrapMsg("message", "msg_id", msgID)
	}
	if i := m.ReactionOf(reactor); i >= 0 {
		m.Reactions = append(m.Reactions[:i], m.Reactions[i+1:]...)
	}
	return copyMsg(m), nil
}

func (s *MemStore) UnreadCounts(ctx context.Context, recvID string) (map[string]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]int64)
	for _, m := range s.byID {
		if m.RecvID != recvID {
			continue
		}
		if m.Status == chatmodel.StatusSent || m.Status == chatmodel.StatusDelivered {
			out[m.SendID]++
		}
	}
	return out, nil
}

func copyMsg(m *chatmodel.Message) *chatmodel.Message {
	c := *m
	c.Reactions = append([]chatmodel.Reaction(nil), m.Reactions...)
	c.DelList = append([]string(nil), m.DelList...)
	return &c
}
