package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type DB struct {
	User string
	Pass string
	Host string
	Port string
	Name string
}

type NSQ struct {
	NsqdTCPAddr    string // e.g. nsqd:4150
	LookupHTTPAddr string // e.g. http://nsqlookupd:4161
	EventsTopic    string // NSQ topic carrying business events
	DLQTopic       string // Dead letter queue topic
	EngineChannel  string // NSQ channel name for the delivery engine
}

type Delivery struct {
	Timeout            time.Duration // Hard per-attempt HTTP timeout
	DefaultMaxAttempts int           // Used when a subscription has no max_attempts
	BackoffBase        float64       // Exponential backoff base (base^attempt seconds)
	BackoffCap         time.Duration // Ceiling on computed backoff delays
	SignatureHeader    string        // HTTP header carrying the hex HMAC digest
	EventHeader        string        // HTTP header echoing the event type
	EventIDHeader      string        // HTTP header echoing the event id
	UserAgent          string        // Outbound User-Agent
	ResponseBodyLimit  int           // Max bytes of response body kept in the log
	PublishDLQ         bool          // Whether terminally failed episodes go to the DLQ topic
}

type Sweeper struct {
	Interval  time.Duration // How often due retries are polled
	BatchSize int           // Max due rows claimed per sweep
}

type Auth struct {
	JWTSecret string // HS256 signing secret for the trigger API
	Issuer    string
	Audience  string
}

type FakeReceiver struct {
	FailFirstN      int           // Number of requests to fail initially
	EndpointSecret  string        // Secret for webhook signature verification
	ResponseDelayMS int           // Simulated response delay in milliseconds
	Port            string        // Server listen port
	ReadTimeout     time.Duration // HTTP read timeout
	WriteTimeout    time.Duration // HTTP write timeout
	IdleTimeout     time.Duration // HTTP idle timeout
}

type Config struct {
	AppName      string
	HTTPPort     string // :8080
	DB           DB
	NSQ          NSQ
	Delivery     Delivery
	Sweeper      Sweeper
	Auth         Auth
	FakeReceiver FakeReceiver
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getenvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getenvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getenvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func FromEnv() Config {
	return Config{
		AppName:  getenv("APP_NAME", "payhula-webhooks"),
		HTTPPort: getenv("HTTP_PORT", ":8080"),
		DB: DB{
			User: getenv("DB_USER", "postgres"),
			Pass: getenv("DB_PASS", "postgres"),
			Host: getenv("DB_HOST", "postgres"),
			Port: getenv("DB_PORT", "5432"),
			Name: getenv("DB_NAME", "payhula"),
		},
		NSQ: NSQ{
			NsqdTCPAddr:    getenv("NSQD_TCP_ADDR", "nsqd:4150"),
			LookupHTTPAddr: getenv("NSQ_LOOKUP_HTTP_ADDR", "http://nsqlookupd:4161"),
			EventsTopic:    getenv("NSQ_EVENTS_TOPIC", "store_events"),
			DLQTopic:       getenv("NSQ_DLQ_TOPIC", "webhooks_dlq"),
			EngineChannel:  getenv("NSQ_ENGINE_CHANNEL", "webhook-engine"),
		},
		Delivery: Delivery{
			Timeout:            getenvDuration("DELIVERY_TIMEOUT", 10*time.Second),
			DefaultMaxAttempts: getenvInt("DELIVERY_MAX_ATTEMPTS", 3),
			BackoffBase:        getenvFloat("BACKOFF_BASE", 2),
			BackoffCap:         getenvDuration("BACKOFF_CAP", 5*time.Minute),
			SignatureHeader:    getenv("WEBHOOK_SIGNATURE_HEADER", "X-Payhula-Signature"),
			EventHeader:        getenv("WEBHOOK_EVENT_HEADER", "X-Payhula-Event"),
			EventIDHeader:      getenv("WEBHOOK_EVENT_ID_HEADER", "X-Payhula-Event-Id"),
			UserAgent:          getenv("WEBHOOK_USER_AGENT", "Payhula-Webhooks/1.0"),
			ResponseBodyLimit:  getenvInt("RESPONSE_BODY_LIMIT", 1024),
			PublishDLQ:         getenvBool("PUBLISH_DLQ_TOPIC", false),
		},
		Sweeper: Sweeper{
			Interval:  getenvDuration("SWEEP_INTERVAL", 30*time.Second),
			BatchSize: getenvInt("SWEEP_BATCH_SIZE", 100),
		},
		Auth: Auth{
			JWTSecret: getenv("JWT_SECRET", ""),
			Issuer:    getenv("JWT_ISSUER", "payhula"),
			Audience:  getenv("JWT_AUDIENCE", "payhula-webhooks"),
		},
		FakeReceiver: FakeReceiver{
			FailFirstN:      getenvInt("FAIL_FIRST_N", 0),
			EndpointSecret:  getenv("ENDPOINT_SECRET", ""),
			ResponseDelayMS: getenvInt("RESPONSE_DELAY_MS", 0),
			Port:            getenv("FAKE_RECEIVER_PORT", ":8081"),
			ReadTimeout:     getenvDuration("FAKE_RECEIVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:    getenvDuration("FAKE_RECEIVER_WRITE_TIMEOUT", 10*time.Second),
			IdleTimeout:     getenvDuration("FAKE_RECEIVER_IDLE_TIMEOUT", 60*time.Second),
		},
	}
}

func (c Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.DB.User, c.DB.Pass, c.DB.Host, c.DB.Port, c.DB.Name)
}
