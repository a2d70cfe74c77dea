package config

import (
	"errors"
	"fmt"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
	"lukas/inventory/internal/client"
	"lukas/inventory/internal/packet"
	"lukas/inventory/internal/server"
	"lukas/inventory/internal/stock"
	"os"
	"time"
)

const (
	EnvConfigPath = "INVENTORY_CONFIG"
	EnvCipherKey  = "INVENTORY_CIPHER_KEY"
)

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Client  ClientConfig  `yaml:"client"`
	Storage StorageConfig `yaml:"storage"`
	Cipher  CipherConfig  `yaml:"cipher"`
	Log     LogConfig     `yaml:"log"`
}

type ServerConfig struct {
	Address         string        `yaml:"address"`
	Port            uint16        `yaml:"port"`
	MaxConnections  int           `yaml:"max_connections"`
	Workers         int           `yaml:"workers"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	MaxPayloadSize  uint32        `yaml:"max_payload_size"`
	ReadBufferSize  int           `yaml:"read_buffer_size"`
	WriteBufferSize int           `yaml:"write_buffer_size"`
}

type ClientConfig struct {
	Address        string        `yaml:"address"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
}

type StorageConfig struct {
	Path     string `yaml:"path"`
	PoolSize int    `yaml:"pool_size"`
}

type CipherConfig struct {
	Algorithm string `yaml:"algorithm"`
	Key       string `yaml:"key"`
	// Strict rejects payloads that fail to decrypt instead of passing the raw bytes through.
	Strict bool `yaml:"strict"`
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:            4545,
			MaxConnections:  1024,
			IdleTimeout:     server.DefaultIdleTimeout,
			WriteTimeout:    15 * time.Second,
			MaxPayloadSize:  packet.DefaultMaxPayloadSize,
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		Client: ClientConfig{
			Address:        "localhost:4545",
			ConnectTimeout: client.DefaultTimeout,
			ReadTimeout:    client.DefaultTimeout,
			WriteTimeout:   client.DefaultTimeout,
		},
		Storage: StorageConfig{
			Path: "stock.db",
		},
		Cipher: CipherConfig{
			Algorithm: packet.AlgorithmAESECB,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads path, or the file named by INVENTORY_CONFIG when path is empty,
// on top of the defaults. With neither set only defaults and the environment apply.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("reading config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}
	if key := os.Getenv(EnvCipherKey); key != "" {
		cfg.Cipher.Key = key
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if c.Cipher.Algorithm != packet.AlgorithmNone && c.Cipher.Key == "" {
		errs = append(errs, fmt.Errorf("cipher.key is required (or set %s)", EnvCipherKey))
	} else if _, err := c.NewCipher(); err != nil {
		errs = append(errs, fmt.Errorf("cipher: %w", err))
	}
	if c.Server.Workers < 0 {
		errs = append(errs, errors.New("server.workers must not be negative"))
	}
	if c.Server.MaxConnections < 0 {
		errs = append(errs, errors.New("server.max_connections must not be negative"))
	}
	if c.Storage.Path == "" {
		errs = append(errs, errors.New("storage.path is required"))
	}
	if _, err := zap.ParseAtomicLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	return errors.Join(errs...)
}

func (c Config) NewCipher() (packet.Cipher, error) {
	return packet.NewCipher(c.Cipher.Algorithm, []byte(c.Cipher.Key))
}

func (c Config) NewCodec() (*packet.Codec, error) {
	cipher, err := c.NewCipher()
	if err != nil {
		return nil, err
	}
	var opts []packet.CodecOption
	if c.Cipher.Strict {
		opts = append(opts, packet.WithStrictDecryption())
	}
	return packet.NewCodec(cipher, opts...), nil
}

func (c Config) NewLogger() (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(c.Log.Level)
	if err != nil {
		return nil, err
	}
	zapConfig := zap.NewProductionConfig()
	if c.Log.Development {
		zapConfig = zap.NewDevelopmentConfig()
	}
	zapConfig.Level = level
	return zapConfig.Build()
}

func (c Config) ServerOptions() (server.ServerConfig, server.ConnectionConfig) {
	return server.ServerConfig{
			Addr:           c.Server.Address,
			Port:           c.Server.Port,
			MaxConnections: c.Server.MaxConnections,
			Workers:        c.Server.Workers,
		}, server.ConnectionConfig{
			IdleTimeout:     c.Server.IdleTimeout,
			WriteTimeout:    c.Server.WriteTimeout,
			MaxPayloadSize:  c.Server.MaxPayloadSize,
			ReadBufferSize:  c.Server.ReadBufferSize,
			WriteBufferSize: c.Server.WriteBufferSize,
		}
}

func (c Config) ClientOptions() client.Config {
	return client.Config{
		Addr:           c.Client.Address,
		ConnectTimeout: c.Client.ConnectTimeout,
		ReadTimeout:    c.Client.ReadTimeout,
		WriteTimeout:   c.Client.WriteTimeout,
		MaxPayloadSize: c.Server.MaxPayloadSize,
	}
}

func (c Config) StorageOptions() stock.SQLiteConfig {
	return stock.SQLiteConfig{Path: c.Storage.Path, PoolSize: c.Storage.PoolSize}
}
