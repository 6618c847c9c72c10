package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

//go:embed config.yml
var embeddedConfig []byte

type Config struct {
	Mode     string `mapstructure:"mode"`
	Handlers struct {
		Prometheus struct {
			Port      string `mapstructure:"port"`
			CertFile  string `mapstructure:"certFile"`
			KeyFile   string `mapstructure:"keyFile"`
			EnableTLS bool   `mapstructure:"enableTLS"`
		} `mapstructure:"prometheus"`
	} `mapstructure:"handlers"`
	Repositories struct {
		Postgres struct {
			Host              string `mapstructure:"host"`
			Password          string `mapstructure:"password"`
			Port              string `mapstructure:"port"`
			Username          string `mapstructure:"username"`
			DB                string `mapstructure:"db"`
			SSLMODE           string `mapstructure:"SSLMODE"`
			MAXCONWAITINGTIME int    `mapstructure:"MAXCONWAITINGTIME"`
		} `mapstructure:"postgres"`
	} `mapstructure:"repositories"`
	Server struct {
		HTTPPort string        `mapstructure:"HTTPPort"`
		Timeout  time.Duration `mapstructure:"HTTPTimeout"`
	} `mapstructure:"server"`
	JWT    JWTConfig    `mapstructure:"jwt"`
	Stripe StripeConfig `mapstructure:"stripe"`
	Asaas  AsaasConfig  `mapstructure:"asaas"`
}

type JWTConfig struct {
	SecretKey        string        `mapstructure:"secretKey"`
	RefreshSecretKey string        `mapstructure:"refreshSecretKey"`
	Issuer           string        `mapstructure:"issuer"`
	Audience         string        `mapstructure:"audience"`
	AccessTokenTTL   time.Duration `mapstructure:"accessTokenTTL"`
	RefreshTokenTTL  time.Duration `mapstructure:"refreshTokenTTL"`
}

// StripeConfig holds the card gateway settings. Price IDs map plan tiers to
// Stripe price objects created in the dashboard.
type StripeConfig struct {
	APIBase       string `mapstructure:"apiBase"`
	SecretKey     string `mapstructure:"secretKey"`
	WebhookSecret string `mapstructure:"webhookSecret"`
	SuccessURL    string `mapstructure:"successURL"`
	CancelURL     string `mapstructure:"cancelURL"`
	PriceStarter  string `mapstructure:"priceStarter"`
	PricePro      string `mapstructure:"pricePro"`
	PriceAnnual   string `mapstructure:"priceAnnual"`
}

// AsaasConfig holds the PIX/boleto gateway settings.
type AsaasConfig struct {
	APIBase        string `mapstructure:"apiBase"`
	APIKey         string `mapstructure:"apiKey"`
	WebhookToken   string `mapstructure:"webhookToken"`
	CallbackURL    string `mapstructure:"callbackURL"`
	PaymentDueDays int    `mapstructure:"paymentDueDays"`
}

func InitConfig() (Config, error) {
	var config Config
	v := viper.New()

	// Add file-based config paths
	v.AddConfigPath(".")
	v.AddConfigPath("config")
	v.AddConfigPath("/app/config")

	v.SetConfigName("config")
	v.SetConfigType("yml")

	// Try to load file-based config
	err := v.ReadInConfig()
	if err != nil {
		fmt.Printf("Warning: Failed to find file-based config: %s. Falling back to embedded config.\n", err)
		if err = v.ReadConfig(bytes.NewReader(embeddedConfig)); err != nil {
			return Config{}, fmt.Errorf("failed to read embedded config: %s", err)
		}
	}

	// Secrets never live in the YAML; they come from the environment.
	bindSecrets(v)

	// Unmarshal the config into the Config struct
	if err = v.Unmarshal(&config); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %s", err)
	}
	return config, nil
}

func bindSecrets(v *viper.Viper) {
	v.BindEnv("repositories.postgres.password", "POSTGRES_PASSWORD")
	v.BindEnv("repositories.postgres.host", "POSTGRES_HOST")
	v.BindEnv("jwt.secretKey", "JWT_SECRET_KEY")
	v.BindEnv("jwt.refreshSecretKey", "JWT_REFRESH_SECRET_KEY")
	v.BindEnv("stripe.secretKey", "STRIPE_SECRET_KEY")
	v.BindEnv("stripe.webhookSecret", "STRIPE_WEBHOOK_SECRET")
	v.BindEnv("stripe.priceStarter", "STRIPE_PRICE_STARTER")
	v.BindEnv("stripe.pricePro", "STRIPE_PRICE_PRO")
	v.BindEnv("stripe.priceAnnual", "STRIPE_PRICE_ANNUAL")
	v.BindEnv("asaas.apiKey", "ASAAS_API_KEY")
	v.BindEnv("asaas.webhookToken", "ASAAS_WEBHOOK_TOKEN")
	v.BindEnv("asaas.apiBase", "ASAAS_API_BASE")
}
