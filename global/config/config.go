package config

import (
	"os"
	"strconv"
	"strings"
)

// AppConfig is the process-wide configuration. Defaults suit local
// development; every field can be overridden from the environment
// (a .env file is loaded at boot).
type AppConfig struct {
	Port      int
	GatewayID string
	NodeID    int64

	JWTSecret string

	MongoURI      string
	MongoDatabase string
	MongoUser     string
	MongoPassword string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	KafkaEnabled bool
	KafkaBrokers []string
	NotifyTopic  string

	MirrorPresence bool
}

var Global = AppConfig{
	Port:           8080,
	GatewayID:      "gateway_1",
	NodeID:         1,
	JWTSecret:      "dev-only-secret-change-me",
	MongoURI:       "mongodb://localhost:27017",
	MongoDatabase:  "pulseim",
	RedisAddr:      "127.0.0.1:6379",
	RedisDB:        0,
	KafkaEnabled:   false,
	KafkaBrokers:   []string{"localhost:9092"},
	NotifyTopic:    "im_notify",
	MirrorPresence: true,
}

// LoadEnv applies environment overrides onto Global.
func LoadEnv() {
	strVar(&Global.GatewayID, "IM_GATEWAY_ID")
	intVar(&Global.Port, "IM_PORT")
	int64Var(&Global.NodeID, "IM_NODE_ID")
	strVar(&Global.JWTSecret, "IM_JWT_SECRET")
	strVar(&Global.MongoURI, "IM_MONGO_URI")
	strVar(&Global.MongoDatabase, "IM_MONGO_DB")
	strVar(&Global.MongoUser, "IM_MONGO_USER")
	strVar(&Global.MongoPassword, "IM_MONGO_PASSWORD")
	strVar(&Global.RedisAddr, "IM_REDIS_ADDR")
	strVar(&Global.RedisPassword, "IM_REDIS_PASSWORD")
	intVar(&Global.RedisDB, "IM_REDIS_DB")
	boolVar(&Global.KafkaEnabled, "IM_KAFKA_ENABLED")
	boolVar(&Global.MirrorPresence, "IM_MIRROR_PRESENCE")
	strVar(&Global.NotifyTopic, "IM_NOTIFY_TOPIC")
	if v := os.Getenv("IM_KAFKA_BROKERS"); v != "" {
		Global.KafkaBrokers = strings.Split(v, ",")
	}
}

func (c *AppConfig) JWTSecretBytes() []byte { return []byte(c.JWTSecret) }

func strVar(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func intVar(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func int64Var(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func boolVar(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
