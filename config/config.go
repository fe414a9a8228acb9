// Package config loads the taskledger YAML configuration.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"xdao.co/taskledger/keys"
	"xdao.co/taskledger/ledger"
	"xdao.co/taskledger/storage/casconfig"
)

// Config is the root of the configuration file.
//
//	ledger:
//	  target: 127.0.0.1:7700
//	  confirm_timeout: 2m
//	store:
//	  backends:
//	    - name: localfs
//	      config: {localfs-dir: ./blobs}
//	gateway: https://gateway.pinata.cloud/ipfs
//	signer:
//	  name: default
//	  role: submitter
//	history: ./taskledger.db
type Config struct {
	Ledger  Ledger           `yaml:"ledger"`
	Store   casconfig.Config `yaml:"store"`
	Gateway string           `yaml:"gateway,omitempty"`
	Signer  Signer           `yaml:"signer"`
	History string           `yaml:"history,omitempty"`
	Upload  Upload           `yaml:"upload"`
	Roles   Roles            `yaml:"roles"`
	// Tags are attached to every pushed blob.
	Tags map[string]string `yaml:"tags,omitempty"`
}

type Ledger struct {
	Target         string        `yaml:"target"`
	DialTimeout    time.Duration `yaml:"dial_timeout,omitempty"`
	RPCTimeout     time.Duration `yaml:"rpc_timeout,omitempty"`
	ConfirmTimeout time.Duration `yaml:"confirm_timeout,omitempty"`
	PollInterval   time.Duration `yaml:"poll_interval,omitempty"`
}

// Wait returns the finality wait policy.
func (l Ledger) Wait() ledger.WaitPolicy {
	return ledger.WaitPolicy{Timeout: l.ConfirmTimeout, PollInterval: l.PollInterval}
}

// Signer selects the key used to sign ledger transactions. SeedFile, when
// set, wins over the key store lookup.
type Signer struct {
	KeyDir   string `yaml:"key_dir,omitempty"`
	Name     string `yaml:"name,omitempty"`
	Role     string `yaml:"role,omitempty"`
	SeedFile string `yaml:"seed_file,omitempty"`
	Scheme   string `yaml:"scheme,omitempty"`
}

type Upload struct {
	Listen   string `yaml:"listen,omitempty"`
	MaxBytes int64  `yaml:"max_bytes,omitempty"`
}

type Roles struct {
	// Concurrency bounds parallel role detail reads.
	Concurrency int `yaml:"concurrency,omitempty"`
}

// Default returns a config usable against a local ledgerd and a local blob
// directory.
func Default() Config {
	return Config{
		Ledger: Ledger{
			Target:         "127.0.0.1:7700",
			DialTimeout:    5 * time.Second,
			RPCTimeout:     10 * time.Second,
			ConfirmTimeout: ledger.DefaultConfirmTimeout,
			PollInterval:   ledger.DefaultPollInterval,
		},
		Store: casconfig.Config{
			WritePolicy: "first",
			Backends: []casconfig.BackendConfig{
				{Name: "localfs", Config: map[string]string{"localfs-dir": "./blobs"}},
			},
		},
		Signer:  Signer{Name: "default", Scheme: string(keys.SchemeEd25519)},
		History: "./taskledger.db",
		Upload:  Upload{Listen: ":8080", MaxBytes: 32 << 20},
		Roles:   Roles{Concurrency: 8},
	}
}

// Load reads path over Default. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, cfg.Validate()
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if err := Parse(b, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Parse decodes b into cfg, keeping any field b does not mention, and
// validates the result. Unknown keys are rejected.
func Parse(b []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("config: parse: %w", err)
	}
	return cfg.Validate()
}

func (c Config) Validate() error {
	if c.Ledger.Target == "" {
		return errors.New("config: ledger.target is required")
	}
	if c.Ledger.ConfirmTimeout < 0 || c.Ledger.PollInterval < 0 || c.Ledger.DialTimeout < 0 || c.Ledger.RPCTimeout < 0 {
		return errors.New("config: ledger durations must not be negative")
	}
	if err := c.Store.Validate(); err != nil {
		return fmt.Errorf("config: store: %w", err)
	}
	if c.Signer.Scheme != "" {
		if _, err := keys.ParseScheme(c.Signer.Scheme); err != nil {
			return fmt.Errorf("config: signer: %w", err)
		}
	}
	if c.Upload.MaxBytes < 0 {
		return errors.New("config: upload.max_bytes must not be negative")
	}
	if c.Roles.Concurrency < 0 {
		return errors.New("config: roles.concurrency must not be negative")
	}
	return nil
}

// Marshal renders c as YAML.
func (c Config) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
