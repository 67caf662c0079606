package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"PulseIM/global/config"
	"PulseIM/logger"
	"PulseIM/middleware/security"
	"PulseIM/module/chat/message"
	userservice "PulseIM/module/user/service"
	"PulseIM/service/chat"
	"PulseIM/service/mgo"
	"PulseIM/service/notify"
	"PulseIM/service/storage"
	"PulseIM/tools/ids"
	secTool "PulseIM/tools/security"
)

func main() {
	_ = godotenv.Load()
	config.LoadEnv()
	cfg := &config.Global

	ids.SetNodeID(cfg.NodeID)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := mgo.Init(ctx, mgo.Config{
		URI:      cfg.MongoURI,
		Database: cfg.MongoDatabase,
		Username: cfg.MongoUser,
		Password: cfg.MongoPassword,
	}); err != nil {
		logger.Errorf("mongo init: %v", err)
		return
	}
	db := mgo.GetDB()

	if err := storage.InitRedis(storage.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}); err != nil {
		logger.Errorf("redis init: %v", err)
		return
	}

	store := message.NewMongoStore(db)
	if err := store.EnsureIndexes(ctx); err != nil {
		logger.Warnf("message indexes: %v", err)
	}
	guard := userservice.NewMongoGuard(db)
	verifier := userservice.NewVerifier(
		secTool.DefaultOptions(cfg.JWTSecretBytes()),
		userservice.NewMongoIdentityStore(db),
	)

	var notifier notify.Producer = notify.Nop{}
	if cfg.KafkaEnabled {
		kp, err := notify.NewKafkaProducer(cfg.KafkaBrokers, cfg.NotifyTopic)
		if err != nil {
			logger.Errorf("kafka producer: %v", err)
			return
		}
		defer kp.Close()
		notifier = kp
	}

	srv := chat.NewServer(chat.ServerConf{
		GatewayID:      cfg.GatewayID,
		MirrorPresence: cfg.MirrorPresence,
	}, verifier, store, guard, notifier)

	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/ws", srv.HandleWS)

	// small REST support surface for collaborators; the socket carries
	// everything conversational
	api := r.Group("/api", security.Middleware(verifier))
	api.GET("/unread", func(c *gin.Context) {
		counts, err := store.UnreadCounts(c.Request.Context(), security.UserID(c))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "store unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"unread": counts})
	})
	api.GET("/history/:peer", func(c *gin.Context) {
		msgs, err := srv.Router().History(c.Request.Context(), security.UserID(c), c.Param("peer"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "store unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"messages": msgs})
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	logger.Infof("gateway %s listening on %s", cfg.GatewayID, addr)
	if err := r.Run(addr); err != nil {
		logger.Errorf("http server: %v", err)
	}
}
