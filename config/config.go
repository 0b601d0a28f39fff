package config

import (
	"errors"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// PayU's public sandbox credentials, usable only against the sandbox gateway.
const (
	sandboxAPIKey     = "4Vj8eK4rloUd272L48hsrarnUA"
	sandboxGatewayURL = "https://sandbox.checkout.payulatam.com/ppp-web-gateway-payu/"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Observ   ObservabilityConfig
	Business BusinessConfig
	PayU     PayUConfig
	Auth     AuthConfig
}

type ServerConfig struct {
	Port        string
	Env         string
	FrontendURL string
}

type DatabaseConfig struct {
	Driver string
	DSN    string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Enabled  bool
}

type KafkaConfig struct {
	Brokers       []string
	TopicOrder    string
	ConsumerGroup string
	Enabled       bool
}

type ObservabilityConfig struct {
	JaegerEndpoint string
}

type BusinessConfig struct {
	OrderTimeoutSeconds      int
	ShippingFee              string
	Currency                 string
	CreatePaymentPlaceholder bool
	IdempotencyTTLSeconds    int
	ConfirmLockSeconds       int
}

// PayUConfig holds the merchant credentials and the URLs PayU needs to call back.
type PayUConfig struct {
	MerchantID      string
	AccountID       string
	APIKey          string
	GatewayURL      string
	ResponseURL     string
	ConfirmationURL string
	Test            bool
	SignatureAlgo   string
	ReferencePrefix string
	Description     string
}

type AuthConfig struct {
	JWTSecret  string
	AdminToken string
}

func Load() *Config {
	_ = godotenv.Load()

	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	orderTimeout, _ := strconv.Atoi(getEnv("ORDER_TIMEOUT_SECONDS", "10"))
	idemTTL, _ := strconv.Atoi(getEnv("IDEMPOTENCY_TTL_SECONDS", "86400"))
	lockTTL, _ := strconv.Atoi(getEnv("CONFIRM_LOCK_SECONDS", "15"))

	cfg := &Config{
		Server: ServerConfig{
			Port:        getEnv("PORT", "3001"),
			Env:         getEnv("ENV", "development"),
			FrontendURL: strings.TrimRight(getEnv("FRONTEND_URL", "http://localhost:5173"), "/"),
		},
		Database: DatabaseConfig{
			Driver: getEnv("DB_DRIVER", "mysql"),
			DSN:    getEnv("DATABASE_DSN", "app:secret@tcp(localhost:3306)/autopartes?parseTime=true"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
			Enabled:  getBool("REDIS_ENABLED", true),
		},
		Kafka: KafkaConfig{
			Brokers:       strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ","),
			TopicOrder:    getEnv("KAFKA_TOPIC_ORDER_EVENTS", "order-events"),
			ConsumerGroup: getEnv("KAFKA_CONSUMER_GROUP", "checkout-stock-group"),
			Enabled:       getBool("KAFKA_ENABLED", true),
		},
		Observ: ObservabilityConfig{
			JaegerEndpoint: getEnv("JAEGER_ENDPOINT", "http://localhost:14268/api/traces"),
		},
		Business: BusinessConfig{
			OrderTimeoutSeconds:      orderTimeout,
			ShippingFee:              getEnv("SHIPPING_FEE", "5.99"),
			Currency:                 getEnv("CURRENCY", "COP"),
			CreatePaymentPlaceholder: getBool("CREATE_PAYMENT_PLACEHOLDER", false),
			IdempotencyTTLSeconds:    idemTTL,
			ConfirmLockSeconds:       lockTTL,
		},
		PayU: PayUConfig{
			MerchantID:      getEnv("PAYU_MERCHANT_ID", "508029"),
			AccountID:       getEnv("PAYU_ACCOUNT_ID", "512321"),
			APIKey:          getEnv("PAYU_API_KEY", sandboxAPIKey),
			GatewayURL:      getEnv("PAYU_GATEWAY_URL", sandboxGatewayURL),
			ResponseURL:     getEnv("PAYU_RESPONSE_URL", "http://localhost:3001/respuesta"),
			ConfirmationURL: getEnv("PAYU_CONFIRMATION_URL", "http://localhost:3001/confirmacion"),
			Test:            getBool("PAYU_TEST", true),
			SignatureAlgo:   getEnv("PAYU_SIGNATURE_ALGO", "md5"),
			ReferencePrefix: getEnv("PAYU_REFERENCE_PREFIX", "ORD"),
			Description:     getEnv("PAYU_DESCRIPTION", "Compra de autopartes"),
		},
		Auth: AuthConfig{
			JWTSecret:  getEnv("AUTH_JWT_SECRET", ""),
			AdminToken: getEnv("ADMIN_TOKEN", ""),
		},
	}

	log.Printf("Config loaded: env=%s, port=%s, db=%s", cfg.Server.Env, cfg.Server.Port, cfg.Database.Driver)
	return cfg
}

// Validate refuses production settings that would still talk to the PayU
// sandbox or sign with its published key.
func (c *Config) Validate() error {
	if c.Server.Env != "production" {
		return nil
	}
	var errs []error
	if c.PayU.APIKey == sandboxAPIKey {
		errs = append(errs, errors.New("PAYU_API_KEY is the public sandbox key"))
	}
	if c.PayU.Test {
		errs = append(errs, errors.New("PAYU_TEST must be false"))
	}
	if c.PayU.GatewayURL == sandboxGatewayURL {
		errs = append(errs, errors.New("PAYU_GATEWAY_URL points at the sandbox"))
	}
	return errors.Join(errs...)
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getBool(key string, defaultVal bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return defaultVal
	}
	return b
}
