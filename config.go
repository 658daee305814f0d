package main

import (
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/sharpie78/nova/store"
)

//Config represents options given in the environment
type Config struct {
	Backend  string //base address of the Nova backend; default: http://127.0.0.1:56969
	Username string //user the backend knows this device by; default: stored username or "default"

	StoreDriver string `split_words:"true"` //sqlite or mysql; default: sqlite
	StoreDSN    string `split_words:"true"` //default: ~/.nova/client.db

	ChatHistory  bool `split_words:"true" default:"true"` //false disables core memory and memory search
	ShowThinking bool `split_words:"true"`                //print the model's reasoning after each answer
	Debug        bool

	RequestTimeout time.Duration `split_words:"true"` //non-streaming requests; default: 2m
}

var config = &Config{}

func init() {
	err := envconfig.Process("NOVA", config)
	if err != nil {
		log.Fatalln("Error reading configuration from environment:", err)
	}

	if config.Backend == "" {
		config.Backend = "http://127.0.0.1:56969"
	}
	config.Backend = strings.TrimRight(config.Backend, "/")

	if config.StoreDriver == "" {
		config.StoreDriver = store.DriverSQLite
	}

	if config.StoreDSN == "" {
		if config.StoreDriver != store.DriverSQLite {
			log.Fatalln("NOVA_STORE_DSN must be configured")
		}
		home, err := os.UserHomeDir()
		if err != nil {
			log.Fatalln("Could not find home directory:", err)
		}
		config.StoreDSN = filepath.Join(home, ".nova", "client.db")
	}

	if config.StoreDriver == store.DriverMySQL && !strings.Contains(config.StoreDSN, "parseTime=true") {
		log.Fatalln("mysql DSN must contain \"?parseTime=true\"")
	}

	if config.RequestTimeout == 0 {
		config.RequestTimeout = 2 * time.Minute
	}
}
