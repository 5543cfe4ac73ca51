package test

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/pkg/errors"

	_ "github.com/jackc/pgx/v4/stdlib"
)

const (
	containerName    = "postgres"
	containerVersion = "16-alpine"
	containerTTL     = 300 // seconds

	user     = "unistore"
	password = "unistore"
	dbName   = "unistore"
)

// StartPostgresDB starts a throwaway postgres container and returns its
// connection URL. The container expires on its own after containerTTL.
func StartPostgresDB(pool *dockertest.Pool) (string, error) {
	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: containerName,
		Tag:        containerVersion,
		Env: []string{
			"POSTGRES_USER=" + user,
			"POSTGRES_PASSWORD=" + password,
			"POSTGRES_DB=" + dbName,
			"listen_addresses = '*'",
		},
	}, func(config *docker.HostConfig) {
		config.AutoRemove = true
		config.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		return "", errors.Wrap(err, "could not start postgres container")
	}

	if err := resource.Expire(containerTTL); err != nil {
		return "", errors.Wrap(err, "could not set container expiry")
	}

	hostAndPort := resource.GetHostPort("5432/tcp")
	databaseUrl := fmt.Sprintf("postgres://%s:%s@%s/%s?sslmode=disable", user, password, hostAndPort, dbName)

	pool.MaxWait = 2 * time.Minute
	if err := pool.Retry(func() error {
		db, err := sql.Open("pgx", databaseUrl)
		if err != nil {
			return err
		}
		defer db.Close()
		return db.Ping()
	}); err != nil {
		return "", errors.Wrap(err, "postgres container never became ready")
	}

	return databaseUrl, nil
}

// WaitForConnection opens a connection to databaseUrl, retrying until the
// server accepts it.
func WaitForConnection(databaseUrl string) (*sql.DB, error) {
	var db *sql.DB
	var err error
	for i := 0; i < 30; i++ {
		db, err = sql.Open("pgx", databaseUrl)
		if err == nil {
			if err = db.Ping(); err == nil {
				return db, nil
			}
			db.Close()
		}
		time.Sleep(time.Second)
	}
	return nil, errors.Wrap(err, "could not connect to postgres")
}
