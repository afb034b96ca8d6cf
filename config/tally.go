package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// TallyConfig holds the connection settings for one Tally server.
// It is read once and treated as immutable; every sync client is constructed
// with its own copy so two clients can talk to different servers in the same
// process.
type TallyConfig struct {
	Host     string
	Port     int
	Company  string
	Username string
	Password string
	Timeout  time.Duration
}

func LoadTallyConfig() TallyConfig {
	host := strings.TrimSpace(os.Getenv("TALLY_HOST"))
	if host == "" {
		host = "localhost"
	}
	port := 9000
	if v := strings.TrimSpace(os.Getenv("TALLY_PORT")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			port = n
		}
	}
	timeoutSeconds := 30
	if v := strings.TrimSpace(os.Getenv("TALLY_TIMEOUT_SECONDS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			timeoutSeconds = n
		}
	}
	return TallyConfig{
		Host:     host,
		Port:     port,
		Company:  strings.TrimSpace(os.Getenv("TALLY_COMPANY")),
		Username: strings.TrimSpace(os.Getenv("TALLY_USERNAME")),
		Password: strings.TrimSpace(os.Getenv("TALLY_PASSWORD")),
		Timeout:  time.Duration(timeoutSeconds) * time.Second,
	}
}
