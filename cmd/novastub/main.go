package main

import (
	"log"
	"net/http"
	"os"
	"strings"

	"github.com/gorilla/handlers"
	"github.com/kelseyhightower/envconfig"

	"github.com/sharpie78/nova/httpapi"
)

//Config represents options given in the environment
type Config struct {
	ListenAddr string   //addr format used for net.Dial; default: 127.0.0.1:56969
	Prefix     string   //url prefix to mount api to without trailing slash
	Models     []string //models offered by /api/tags; default: llama3
}

var config = &Config{}

func init() {
	err := envconfig.Process("NOVASTUB", config)
	if err != nil {
		log.Fatalln("Error reading configuration from environment:", err)
	}

	if config.ListenAddr == "" {
		config.ListenAddr = "127.0.0.1:56969"
	}
	config.Prefix = strings.TrimRight(config.Prefix, "/")

	if len(config.Models) == 0 {
		config.Models = []string{"llama3"}
	}
}

func main() {
	b := httpapi.NewBackend(config.Models...)

	r := httpapi.NewRouter(os.Stdout, b)

	chain := handlers.CompressHandler(http.StripPrefix(config.Prefix, r))

	log.Println("Listening on:", config.ListenAddr)
	log.Println(http.ListenAndServe(config.ListenAddr, chain))
}
