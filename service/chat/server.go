package chat

import (
	"context"
	"time"

	"PulseIM/logger"
	"PulseIM/module/chat/message"
	userservice "PulseIM/module/user/service"
	"PulseIM/service/notify"
	"PulseIM/service/storage"
	"PulseIM/tools/errs"
)

type ServerConf struct {
	GatewayID      string
	SendQueueSize  int           // per-connection outbound buffer
	WriteTimeout   time.Duration // per-frame write deadline
	PresenceTTL    time.Duration // redis presence mirror TTL
	MirrorPresence bool          // mirror online/offline into redis
	FanoutWorkers  int
	FanoutQueue    int
}

func (c *ServerConf) norm() {
	if c.SendQueueSize <= 0 {
		c.SendQueueSize = 256
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
	if c.PresenceTTL <= 0 {
		c.PresenceTTL = 2 * time.Minute
	}
}

// Server owns the event channel: admission, per-connection dispatch,
// broadcast, teardown. One instance per gateway process.
type Server struct {
	conf     ServerConf
	reg      *Registry
	disp     *Dispatcher
	router   *Router
	verifier *userservice.Verifier
	fanout   *Fanout
}

func NewServer(conf ServerConf, verifier *userservice.Verifier, store message.Store, guard userservice.Guard, np notify.Producer) *Server {
	conf.norm()
	reg := NewRegistry()
	s := &Server{
		conf:     conf,
		reg:      reg,
		disp:     NewDispatcher(),
		router:   NewRouter(reg, store, guard, np),
		verifier: verifier,
		fanout:   NewFanout(conf.FanoutWorkers, conf.FanoutQueue),
	}
	s.registerHandlers()
	return s
}

func (s *Server) Registry() *Registry { return s.reg }
func (s *Server) Router() *Router     { return s.router }
func (s *Server) Disp() *Dispatcher   { return s.disp }

func (s *Server) registerHandlers() {
	s.disp.Register(EvtSendMessage, func(ctx context.Context, c *Client, data map[string]any) error {
		p, err := decodePayload[SendMessagePayload](c, data)
		if err != nil {
			return err
		}
		_, err = s.router.SendMessage(ctx, c, p)
		return err
	})
	s.disp.Register(EvtTyping, func(ctx context.Context, c *Client, data map[string]any) error {
		p, err := decodePayload[TypingPayload](c, data)
		if err != nil {
			return err
		}
		s.router.Typing(c.UserID, p.ReceiverID)
		return nil
	})
	s.disp.Register(EvtStopTyping, func(ctx context.Context, c *Client, data map[string]any) error {
		p, err := decodePayload[TypingPayload](c, data)
		if err != nil {
			return err
		}
		s.router.StopTyping(c.UserID, p.ReceiverID)
		return nil
	})
	s.disp.Register(EvtAddReaction, func(ctx context.Context, c *Client, data map[string]any) error {
		p, err := decodePayload[AddReactionPayload](c, data)
		if err != nil {
			return err
		}
		return s.router.AddReaction(ctx, c, p)
	})
	s.disp.Register(EvtRemoveReaction, func(ctx context.Context, c *Client, data map[string]any) error {
		p, err := decodePayload[RemoveReactionPayload](c, data)
		if err != nil {
			return err
		}
		return s.router.RemoveReaction(ctx, c, p)
	})
	s.disp.Register(EvtMessagesDelivered, func(ctx context.Context, c *Client, data map[string]any) error {
		p, err := decodePayload[DeliveredAckPayload](c, data)
		if err != nil {
			return err
		}
		// the acking connection is the receiver, whatever the payload says
		_, err = s.router.AckDelivered(ctx, c.UserID, p.SenderID)
		return err
	})
	s.disp.Register(EvtMessagesRead, func(ctx context.Context, c *Client, data map[string]any) error {
		p, err := decodePayload[ReadAckPayload](c, data)
		if err != nil {
			return err
		}
		_, err = s.router.AckRead(ctx, c.UserID, p.SenderID, p.MessageIDs)
		return err
	})
}

// Admit registers an authenticated connection: presence, broadcast,
// redis mirror, offline drain.
func (s *Server) Admit(c *Client) {
	cameOnline := s.reg.Add(c)
	if cameOnline {
		s.broadcastStatus(c.UserID, StatusOnline)
		if s.conf.MirrorPresence {
			if err := storage.PresenceOnline(c.UserID, s.conf.GatewayID, s.conf.PresenceTTL); err != nil {
				logger.Warnf("[server] presence mirror online user=%s err=%v", c.UserID, err)
			}
		}
	}
	s.drainOffline(c)
}

// Teardown unregisters a connection and, when it was the identity's
// last, broadcasts offline exactly once.
func (s *Server) Teardown(c *Client) {
	c.Close()
	wentOffline := s.reg.Remove(c)
	if wentOffline {
		s.router.CancelTyping(c.UserID)
		s.broadcastStatus(c.UserID, StatusOffline)
		if s.conf.MirrorPresence {
			if err := storage.PresenceOffline(c.UserID); err != nil {
				logger.Warnf("[server] presence mirror offline user=%s err=%v", c.UserID, err)
			}
		}
	}
}

func (s *Server) broadcastStatus(userID, status string) {
	b, err := MarshalEvent(EvtUpdateUserStatus, UserStatusEvent{UserID: userID, Status: status})
	if err != nil {
		logger.Errorf("[server] marshal status event: %v", err)
		return
	}
	s.fanout.Broadcast(s.reg.All(), b)
}

// drainOffline replays frames queued while the user was unreachable.
func (s *Server) drainOffline(c *Client) {
	msgs, err := fetchOffline(c.UserID, 1000)
	if err != nil {
		logger.Warnf("[server] offline drain user=%s err=%v", c.UserID, err)
		return
	}
	for _, m := range msgs {
		c.enqueue(m.Payload)
	}
}

func decodePayload[T any](c *Client, data map[string]any) (*T, error) {
	p, err := decodeMap[T](data)
	if err != nil {
		wrapped := errs.ErrValidation.WrapMsg("bad payload", "err", err)
		c.Emit(EvtMessageError, MessageErrorEvent{Code: errs.CodeValidation, Msg: "malformed payload"})
		return nil, wrapped
	}
	return p, nil
}
