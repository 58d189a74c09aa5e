package config

import (
	"fmt"
	"net"
	"net/url"
	"slices"
	"strconv"
	"strings"
)

const sqliteDefaultDSN = "file:toolcrib.db?_busy_timeout=5000"

// resolveDSN returns the configured DSN, or assembles a postgres URL from host,
// user and database name. SQLite falls back to a local file.
func (db DBConfig) resolveDSN() (string, error) {
	switch {
	case db.DSN != "":
		return db.DSN, nil
	case db.IsSQLite():
		return sqliteDefaultDSN, nil
	}

	var missing []string
	for env, v := range map[string]string{EnvDBHost: db.Host, EnvDBUser: db.User, EnvDBName: db.Name} {
		if v == "" {
			missing = append(missing, env)
		}
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		return "", fmt.Errorf("%s is not set and neither are %s", EnvDBDSN, strings.Join(missing, ", "))
	}

	u := url.URL{
		Scheme: "postgres",
		User:   url.User(db.User),
		Host:   net.JoinHostPort(db.Host, strconv.Itoa(db.Port)),
		Path:   db.Name,
	}
	if db.Password != "" {
		u.User = url.UserPassword(db.User, db.Password)
	}
	if db.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": {db.SSLMode}}.Encode()
	}
	return u.String(), nil
}
