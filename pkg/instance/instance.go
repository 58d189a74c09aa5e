package instance

import (
	"fmt"
	"os"
	"sync"
)

// EnvVar overrides the derived identifier, e.g. with a pod name.
const EnvVar = "TOOLCRIB_INSTANCE_ID"

var (
	once sync.Once
	id   string
)

// ID identifies this process in logs and lock ownership. It is resolved once:
// the env override if set, otherwise hostname and pid.
func ID() string {
	once.Do(func() { id = resolve(os.Getenv, os.Hostname, os.Getpid()) })
	return id
}

func resolve(getenv func(string) string, hostname func() (string, error), pid int) string {
	if v := getenv(EnvVar); v != "" {
		return v
	}
	host, err := hostname()
	if err != nil || host == "" {
		host = "toolcrib"
	}
	return fmt.Sprintf("%s-%d", host, pid)
}
