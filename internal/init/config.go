package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	// App mode & server
	Mode        string
	ServerAddr  string
	TLSCertFile string
	TLSKeyFile  string
	JWTSecret   string

	// Uploads
	ImagesDir      string
	MaxUploadBytes int64

	// Rate limiting (per client IP)
	RateLimitRPS   float64
	RateLimitBurst int

	// Key buckets on X-Forwarded-For / X-Real-IP; only behind a trusted proxy
	TrustProxyHeaders bool

	// Store
	StoreDriver string

	// Kafka event relay
	KafkaEnabled   bool
	KafkaBroker    string
	KafkaTopic     string
	KafkaGroupID   string
	KafkaPartition int
	KafkaReadTO    time.Duration
	KafkaWriteTO   time.Duration

	// Reconciler worker
	WorkerCount     int
	WorkerQueueSize int

	// Cassandra
	CassandraHost     string
	CassandraKeyspace string
	CassandraUsername string
	CassandraPassword string
	CassandraTimeout  time.Duration
	CassandraDC       string

	// MongoDB
	MongoURI      string
	MongoDatabase string
	MongoTimeout  time.Duration
}

var cfg *Config

// Init loads the config using Viper and returns it
func Init() *Config {
	viper.SetDefault("MODE", "server")
	viper.SetDefault("SERVER_ADDR", ":5100")
	viper.SetDefault("JWT_SECRET", "")

	viper.SetDefault("IMAGES_DIR", "images")
	viper.SetDefault("MAX_UPLOAD_BYTES", 10<<20)

	viper.SetDefault("RATE_LIMIT_RPS", 20)
	viper.SetDefault("RATE_LIMIT_BURST", 40)
	viper.SetDefault("TRUST_PROXY_HEADERS", false)

	viper.SetDefault("STORE_DRIVER", "cassandra")

	viper.SetDefault("KAFKA_ENABLED", false)
	viper.SetDefault("KAFKA_BROKER", "localhost:29092")
	viper.SetDefault("KAFKA_TOPIC", "post-events")
	viper.SetDefault("KAFKA_GROUP_ID", "reconciler-group")
	viper.SetDefault("KAFKA_PARTITION", 0)
	viper.SetDefault("KAFKA_READ_TIMEOUT", "10s")
	viper.SetDefault("KAFKA_WRITE_TIMEOUT", "10s")

	viper.SetDefault("WORKER_COUNT", 0)
	viper.SetDefault("WORKER_QUEUE_SIZE", 0)

	viper.SetDefault("CASSANDRA_HOST", "localhost")
	viper.SetDefault("CASSANDRA_KEYSPACE", "livefeed")
	viper.SetDefault("CASSANDRA_TIMEOUT", "10s")
	// Optional: Cassandra username/password/DC can be empty

	viper.SetDefault("MONGO_URI", "mongodb://localhost:27017")
	viper.SetDefault("MONGO_DATABASE", "livefeed")
	viper.SetDefault("MONGO_TIMEOUT", "10s")

	// Load env variables
	viper.AutomaticEnv()

	// Optional config file support
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	_ = viper.ReadInConfig() // ignore error if no file

	cfg = &Config{
		Mode:              viper.GetString("MODE"),
		ServerAddr:        viper.GetString("SERVER_ADDR"),
		TLSCertFile:       viper.GetString("TLS_CERT_FILE"),
		TLSKeyFile:        viper.GetString("TLS_KEY_FILE"),
		JWTSecret:         viper.GetString("JWT_SECRET"),
		ImagesDir:         viper.GetString("IMAGES_DIR"),
		MaxUploadBytes:    viper.GetInt64("MAX_UPLOAD_BYTES"),
		RateLimitRPS:      viper.GetFloat64("RATE_LIMIT_RPS"),
		RateLimitBurst:    viper.GetInt("RATE_LIMIT_BURST"),
		TrustProxyHeaders: viper.GetBool("TRUST_PROXY_HEADERS"),
		StoreDriver:       viper.GetString("STORE_DRIVER"),
		KafkaEnabled:      viper.GetBool("KAFKA_ENABLED"),
		KafkaBroker:       viper.GetString("KAFKA_BROKER"),
		KafkaTopic:        viper.GetString("KAFKA_TOPIC"),
		KafkaGroupID:      viper.GetString("KAFKA_GROUP_ID"),
		KafkaPartition:    viper.GetInt("KAFKA_PARTITION"),
		KafkaReadTO:       parseDuration(viper.GetString("KAFKA_READ_TIMEOUT"), 10*time.Second),
		KafkaWriteTO:      parseDuration(viper.GetString("KAFKA_WRITE_TIMEOUT"), 10*time.Second),
		WorkerCount:       viper.GetInt("WORKER_COUNT"),
		WorkerQueueSize:   viper.GetInt("WORKER_QUEUE_SIZE"),
		CassandraHost:     viper.GetString("CASSANDRA_HOST"),
		CassandraKeyspace: viper.GetString("CASSANDRA_KEYSPACE"),
		CassandraUsername: viper.GetString("CASSANDRA_USERNAME"),
		CassandraPassword: viper.GetString("CASSANDRA_PASSWORD"),
		CassandraTimeout:  parseDuration(viper.GetString("CASSANDRA_TIMEOUT"), 10*time.Second),
		CassandraDC:       viper.GetString("CASSANDRA_DC"),
		MongoURI:          viper.GetString("MONGO_URI"),
		MongoDatabase:     viper.GetString("MONGO_DATABASE"),
		MongoTimeout:      parseDuration(viper.GetString("MONGO_TIMEOUT"), 10*time.Second),
	}

	return cfg
}

func parseDuration(s string, def time.Duration) time.Duration {
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	return def
}

// Get returns the loaded config instance
func Get() *Config {
	return cfg
}

// TLSEnabled reports whether both certificate and key paths are set.
func (c *Config) TLSEnabled() bool {
	return c.TLSCertFile != "" && c.TLSKeyFile != ""
}
