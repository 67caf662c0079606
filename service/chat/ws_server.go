package chat

import (
	"net"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"PulseIM/logger"
	"PulseIM/tools/errs"
	"PulseIM/tools/ids"
	"PulseIM/tools/safe"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// HandleWS is the gin endpoint for the event channel. The bearer
// credential rides the upgrade request; authentication happens before
// the socket is admitted, and a refused handshake never touches the
// presence registry.
func (s *Server) HandleWS(c *gin.Context) {
	token := bearerToken(c)

	identity, err := s.verifier.Authenticate(c.Request.Context(), token)
	if err != nil {
		status := http.StatusUnauthorized
		reason := "authentication failed"
		switch errs.Code(err) {
		case errs.CodeIdentityBanned:
			status = http.StatusForbidden
			reason = "identity banned"
		case errs.CodeTokenInvalid:
			reason = "invalid credential"
		}
		logger.Infof("[ws] handshake refused remote=%s err=%v", c.ClientIP(), err)
		c.JSON(status, gin.H{"error": reason})
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Infof("[ws] upgrade failed user=%s err=%v", identity.UserID, err)
		return
	}

	client := NewClient(ids.GenerateString(), identity.UserID, ws, s.conf.SendQueueSize)
	safe.Go(func() { client.WritePump(s.conf.WriteTimeout) })

	s.Admit(client)
	logger.Infof("[ws] admitted user=%s conn=%s remote=%s", client.UserID, client.ConnID, c.ClientIP())

	defer s.Teardown(client)

	// read loop: per-connection frames are handled in arrival order
	for {
		mt, data, rerr := ws.ReadMessage()
		if rerr != nil {
			if websocket.IsCloseError(rerr,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				logger.Infof("[ws] peer closed conn=%s user=%s", client.ConnID, client.UserID)
			} else if ne, ok := rerr.(net.Error); ok && ne.Timeout() {
				logger.Infof("[ws] read timeout conn=%s err=%v", client.ConnID, rerr)
			} else {
				logger.Infof("[ws] read err conn=%s err=%v", client.ConnID, rerr)
			}
			return
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}

		frame, perr := ParseFrame(data)
		if perr != nil {
			sample := data
			if len(sample) > 256 {
				sample = sample[:256]
			}
			logger.Infof("[ws] bad frame conn=%s err=%v sample=%q", client.ConnID, perr, sample)
			continue
		}

		if err := s.disp.Dispatch(c.Request.Context(), client, frame); err != nil {
			// handler failures were already surfaced to the client
			// where appropriate; the connection itself lives on
			logger.Infof("[ws] dispatch conn=%s event=%s err=%v", client.ConnID, frame.Event, err)
		}
	}
}

func bearerToken(c *gin.Context) string {
	if authz := strings.TrimSpace(c.GetHeader("Authorization")); authz != "" {
		if strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			return strings.TrimSpace(authz[len("bearer "):])
		}
	}
	return strings.TrimSpace(c.Query("token"))
}
