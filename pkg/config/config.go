package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog"
)

const ConfigFileName = ".jupiterdash.json"

const (
	DefaultRPCURL          = "https://rpc.ankr.com/eth"
	DefaultPollInterval    = 15
	DefaultRequestTimeout  = 30
	DefaultSymbol          = "ETH"
	DefaultHost            = "127.0.0.1"
	DefaultQRSize          = 160
	DefaultGasHistoryLimit = 2880
	DefaultTransferTo      = "0x1111111111111111111111111111111111111111"
	DefaultTransferValue   = "0x2386F26FC10000"
	DefaultLogFile         = ".jupiterdash.log"
)

// Wallet modes.
const (
	WalletNone     = "none"
	WalletRemote   = "remote"
	WalletKeystore = "keystore"
)

// Format selects the on-disk encoding.
type Format int

const (
	FormatJSON Format = iota
	FormatTOML
)

// FormatFor picks the encoding from the file extension.
func FormatFor(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return FormatTOML
	}
	return FormatJSON
}

// WalletConfig selects the signer used for connect and send.
type WalletConfig struct {
	Mode           string `json:"mode" toml:"mode"`
	SignerURL      string `json:"signer_url,omitempty" toml:"signer_url,omitempty"`
	KeystoreDir    string `json:"keystore_dir,omitempty" toml:"keystore_dir,omitempty"`
	Account        string `json:"account,omitempty" toml:"account,omitempty"`
	PassphraseFile string `json:"passphrase_file,omitempty" toml:"passphrase_file,omitempty"`
}

// TransferConfig is the fixed transfer submitted by the send action. Value is
// in wei, hex with a 0x prefix or decimal.
type TransferConfig struct {
	To    string `json:"to" toml:"to"`
	Value string `json:"value" toml:"value"`
}

// ServerConfig configures the HTTP API. With Port 0 the TUI runs without it;
// headless mode then listens on the server package default.
type ServerConfig struct {
	Host           string   `json:"host" toml:"host"`
	Port           int      `json:"port" toml:"port"`
	AllowedOrigins []string `json:"allowed_origins,omitempty" toml:"allowed_origins,omitempty"`
}

type LogConfig struct {
	Level string `json:"level" toml:"level"`
	File  string `json:"file,omitempty" toml:"file,omitempty"`
}

// Config holds application-wide settings.
type Config struct {
	RPCURL                string         `json:"rpc_url" toml:"rpc_url"`
	PollIntervalSeconds   int            `json:"poll_interval_seconds" toml:"poll_interval_seconds"`
	RequestTimeoutSeconds int            `json:"request_timeout_seconds" toml:"request_timeout_seconds"`
	Symbol                string         `json:"symbol" toml:"symbol"`
	Wallet                WalletConfig   `json:"wallet" toml:"wallet"`
	Transfer              TransferConfig `json:"transfer" toml:"transfer"`
	Server                ServerConfig   `json:"server" toml:"server"`
	Log                   LogConfig      `json:"log" toml:"log"`
	QRSize                int            `json:"qr_size" toml:"qr_size"`
	GasHistoryLimit       int            `json:"gas_history_limit" toml:"gas_history_limit"`
}

// Default returns the configuration used when no file exists.
func Default() Config {
	return Config{
		RPCURL:                DefaultRPCURL,
		PollIntervalSeconds:   DefaultPollInterval,
		RequestTimeoutSeconds: DefaultRequestTimeout,
		Symbol:                DefaultSymbol,
		Wallet:                WalletConfig{Mode: WalletNone},
		Transfer:              TransferConfig{To: DefaultTransferTo, Value: DefaultTransferValue},
		Server:                ServerConfig{Host: DefaultHost},
		Log:                   LogConfig{Level: "info"},
		QRSize:                DefaultQRSize,
		GasHistoryLimit:       DefaultGasHistoryLimit,
	}
}

func (c Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// LogLevel parses Log.Level, falling back to info.
func (c Config) LogLevel() zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(c.Log.Level))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

// TransferTarget decodes the configured recipient and wei amount.
func (c Config) TransferTarget() (common.Address, *big.Int, error) {
	if !common.IsHexAddress(c.Transfer.To) {
		return common.Address{}, nil, fmt.Errorf("invalid transfer recipient %q", c.Transfer.To)
	}
	v := strings.TrimSpace(c.Transfer.Value)
	base := 10
	if strings.HasPrefix(v, "0x") || strings.HasPrefix(v, "0X") {
		v, base = v[2:], 16
	}
	value, ok := new(big.Int).SetString(v, base)
	if !ok || value.Sign() < 0 {
		return common.Address{}, nil, fmt.Errorf("invalid transfer value %q", c.Transfer.Value)
	}
	return common.HexToAddress(c.Transfer.To), value, nil
}

// Validate returns every structural problem found, joined.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.RPCURL) == "" {
		errs = append(errs, errors.New("rpc_url is empty"))
	}
	if c.PollIntervalSeconds <= 0 {
		errs = append(errs, fmt.Errorf("poll_interval_seconds must be positive, got %d", c.PollIntervalSeconds))
	}
	if c.RequestTimeoutSeconds <= 0 {
		errs = append(errs, fmt.Errorf("request_timeout_seconds must be positive, got %d", c.RequestTimeoutSeconds))
	}
	switch c.Wallet.Mode {
	case WalletNone, "":
	case WalletRemote:
		if c.Wallet.SignerURL == "" {
			errs = append(errs, errors.New("wallet.signer_url is required in remote mode"))
		}
	case WalletKeystore:
		if c.Wallet.KeystoreDir == "" {
			errs = append(errs, errors.New("wallet.keystore_dir is required in keystore mode"))
		}
		if c.Wallet.Account != "" && !common.IsHexAddress(c.Wallet.Account) {
			errs = append(errs, fmt.Errorf("wallet.account %q is not an address", c.Wallet.Account))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown wallet.mode %q", c.Wallet.Mode))
	}
	if _, _, err := c.TransferTarget(); err != nil {
		errs = append(errs, err)
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	return errors.Join(errs...)
}

func GetConfigPath(customPath string) (string, error) {
	if customPath != "" {
		return customPath, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ConfigFileName), nil
}

// LoadConfigFromFile reads path. A missing file yields the defaults.
func LoadConfigFromFile(path string) (Config, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return Config{}, err
	}
	defer func() { _ = f.Close() }()
	return LoadConfig(f, FormatFor(path))
}

// LoadConfig decodes r over the defaults, so absent keys keep their default.
func LoadConfig(r io.Reader, format Format) (Config, error) {
	cfg := Default()
	body, err := io.ReadAll(r)
	if err != nil {
		return Config{}, err
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return cfg, nil
	}
	switch format {
	case FormatTOML:
		if err := toml.Unmarshal(body, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
		}
	default:
		dec := json.NewDecoder(bytes.NewReader(body))
		if err := dec.Decode(&cfg); err != nil {
			return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
		}
	}
	if cfg.Wallet.Mode == "" {
		cfg.Wallet.Mode = WalletNone
	}
	return cfg, nil
}

// SaveConfig validates cfg, backs up any existing file and replaces it
// atomically.
func SaveConfig(cfg Config, path string) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	var (
		data []byte
		err  error
	)
	if FormatFor(path) == FormatTOML {
		data, err = toml.Marshal(cfg)
	} else {
		data, err = json.MarshalIndent(cfg, "", "  ")
	}
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return fmt.Errorf("validation failed: encoded configuration is empty")
	}

	if _, err := os.Stat(path); err == nil {
		backupPath := fmt.Sprintf("%s.%s.bak", path, time.Now().Format("20060102-150405"))
		input, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read existing config for backup: %w", err)
		}
		if err := os.WriteFile(backupPath, input, 0600); err != nil {
			return fmt.Errorf("failed to write backup config: %w", err)
		}
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

// RestoreLastBackup copies the newest .bak over configPath.
func RestoreLastBackup(configPath string) error {
	matches, err := filepath.Glob(configPath + ".*.bak")
	if err != nil {
		return err
	}
	if len(matches) == 0 {
		return fmt.Errorf("no backup files found")
	}
	sort.Strings(matches)
	data, err := os.ReadFile(matches[len(matches)-1])
	if err != nil {
		return err
	}
	return os.WriteFile(configPath, data, 0600)
}

// DefaultLogPath is the log file used when Log.File is unset.
func DefaultLogPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return DefaultLogFile
	}
	return filepath.Join(home, DefaultLogFile)
}
