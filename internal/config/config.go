package config

import (
	"flag"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env                  string          `yaml:"env" env:"PASSPORT_ENV" env-default:"local"`
	StoragePath          string          `yaml:"conn_string" env:"STORAGE_PATH" env-required:"true"`
	ConsoleURL           string          `yaml:"console_url" env-default:"http://localhost:8082/settings"`
	AuthorizationCodeTTL time.Duration   `yaml:"authorization_code_ttl" env-default:"5m"`
	HTTP                 HTTPConfig      `yaml:"http"`
	GRPC                 GRPCConfig      `yaml:"grpc"`
	Redis                RedisConfig     `yaml:"redis"`
	Session              SessionConfig   `yaml:"session"`
	Tokens               TokensConfig    `yaml:"tokens"`
	Vault                VaultConfig     `yaml:"vault"`
	Providers            ProvidersConfig `yaml:"providers"`
}

type HTTPConfig struct {
	Address         string        `yaml:"address" env:"HTTP_ADDRESS" env-default:":8080"`
	PublicURL       string        `yaml:"public_url" env-default:"http://localhost:8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env-default:"10s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env-default:"10s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" env-default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env-default:"30s"`
}

type GRPCConfig struct {
	Port          int           `yaml:"port" env-default:"44044"`
	Timeout       time.Duration `yaml:"timeout" env-default:"5s"`
	ProbeInterval time.Duration `yaml:"probe_interval" env-default:"10s"`
}

type RedisConfig struct {
	Host     string        `yaml:"host" env:"REDIS_HOST" env-default:"localhost"`
	Port     int           `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password string        `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int           `yaml:"db"`
	CacheTTL time.Duration `yaml:"cache_ttl" env-default:"10m"`
	UseCache bool          `yaml:"use_cache" env-default:"true"`
}

// SessionConfig covers the user session and the cookies carrying it
type SessionConfig struct {
	TTL          time.Duration `yaml:"ttl" env-default:"2160h"`
	HashKey      string        `yaml:"hash_key" env:"SESSION_HASH_KEY" env-required:"true"`
	BlockKey     string        `yaml:"block_key" env:"SESSION_BLOCK_KEY" env-required:"true"`
	CookieDomain string        `yaml:"cookie_domain"`
	Secure       bool          `yaml:"secure"`
}

type TokensConfig struct {
	Issuer          string        `yaml:"issuer" env-default:"http://localhost:8080"`
	AccessTokenTTL  time.Duration `yaml:"access_token_ttl" env-default:"1h"`
	RefreshTokenTTL time.Duration `yaml:"refresh_token_ttl" env-default:"720h"`
	IDTokenTTL      time.Duration `yaml:"id_token_ttl" env-default:"1h"`
	// KeyFile is a PEM RSA key used when vault signing is disabled; empty generates a key on start
	KeyFile string `yaml:"key_file" env:"TOKENS_KEY_FILE"`
	KeyID   string `yaml:"key_id" env-default:"local"`
}

type VaultConfig struct {
	Enabled        bool          `yaml:"enabled" env:"VAULT_ENABLED"`
	Address        string        `yaml:"address" env:"VAULT_ADDR" env-default:"http://vault:8200"`
	Token          string        `yaml:"token" env:"VAULT_TOKEN"`
	RoleIDFile     string        `yaml:"role_id_file" env-default:"./secrets/role_id.txt"`
	SecretIDFile   string        `yaml:"secret_id_file" env-default:"./secrets/secret_id.txt"`
	TransitKey     string        `yaml:"transit_key" env-default:"jwt_keys"`
	RequestTimeout time.Duration `yaml:"request_timeout" env-default:"30s"`
}

type ProviderConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	// Tenant is used by microsoft only
	Tenant string `yaml:"tenant"`
}

type ProvidersConfig struct {
	Google    ProviderConfig `yaml:"google"`
	Github    ProviderConfig `yaml:"github"`
	Microsoft ProviderConfig `yaml:"microsoft"`
}

// MustLoad loads config from the path given by flag or env and panics on failure
func MustLoad() *Config {
	path := fetchConfigPath()
	if path == "" {
		panic("config path is empty")
	}

	return MustLoadPath(path)
}

func MustLoadPath(path string) *Config {
	cfg, err := LoadPath(path)
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadPath reads yaml config at path, env variables override file values
func LoadPath(path string) (*Config, error) {
	if path == "" {
		return nil, os.ErrNotExist
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, err
	}

	var cfg Config

	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Priority: flag > env > default
func fetchConfigPath() string {
	var res string

	flag.StringVar(&res, "config", "", "path to config file")
	flag.Parse()

	if res == "" {
		res = os.Getenv("CONFIG_PATH")
	}
	return res
}
