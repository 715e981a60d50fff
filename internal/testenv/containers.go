//go:build integration

// Package testenv starts throwaway Postgres and Redis containers for the
// integration suites. Build with -tags integration; Docker must be reachable.
package testenv

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	pgUser     = "turnos"
	pgPassword = "turnos"
	pgDatabase = "turnos_test"
)

// StartPostgres runs postgres:16-alpine and returns a DSN for it.
func StartPostgres(ctx context.Context) (dsn string, terminate func(), err error) {
	c, err := startContainer(ctx, testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     pgUser,
			"POSTGRES_PASSWORD": pgPassword,
			"POSTGRES_DB":       pgDatabase,
		},
		Tmpfs: map[string]string{"/var/lib/postgresql/data": "rw"},
		Cmd:   []string{"postgres", "-c", "fsync=off", "-c", "synchronous_commit=off"},
		// The entrypoint restarts the server once after init.
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	})
	if err != nil {
		return "", nil, err
	}

	addr, err := hostPort(ctx, c, "5432/tcp")
	if err != nil {
		terminateContainer(c)
		return "", nil, err
	}

	dsn = fmt.Sprintf("postgres://%s:%s@%s/%s?sslmode=disable", pgUser, pgPassword, addr, pgDatabase)
	return dsn, func() { terminateContainer(c) }, nil
}

// StartRedis runs redis:7-alpine and returns its host:port.
func StartRedis(ctx context.Context) (addr string, terminate func(), err error) {
	c, err := startContainer(ctx, testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	})
	if err != nil {
		return "", nil, err
	}

	addr, err = hostPort(ctx, c, "6379/tcp")
	if err != nil {
		terminateContainer(c)
		return "", nil, err
	}
	return addr, func() { terminateContainer(c) }, nil
}

func startContainer(ctx context.Context, req testcontainers.ContainerRequest) (testcontainers.Container, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("start %s: %w", req.Image, err)
	}
	return c, nil
}

func hostPort(ctx context.Context, c testcontainers.Container, port string) (string, error) {
	host, err := c.Host(ctx)
	if err != nil {
		return "", fmt.Errorf("container host: %w", err)
	}
	mapped, err := c.MappedPort(ctx, nat.Port(port))
	if err != nil {
		return "", fmt.Errorf("container port %s: %w", port, err)
	}
	return net.JoinHostPort(host, mapped.Port()), nil
}

func terminateContainer(c testcontainers.Container) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	_ = c.Terminate(ctx)
}
