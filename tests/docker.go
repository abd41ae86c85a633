//go:build integration

// Package tests runs the docker containers the integration tests of all packages depend on.
package tests

import (
	"errors"
	"fmt"
	"time"

	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
)

var ErrDockerFailure = errors.New("docker failure")

// containerTimeout is the hard limit a container lives, in case a test binary never cleans up.
const containerTimeout = 2 * time.Minute

// ReadyFunc reports, if the service in the container accepts connections.
// It is called repeatedly while the container starts.
type ReadyFunc func(resource *dockertest.Resource) error

// StartDockerContainer starts a container via the local docker daemon and waits until ready succeeds.
// The returned purge stops and removes the container.
func StartDockerContainer(opts *dockertest.RunOptions, ready ReadyFunc) (func() error, error) {
	if opts == nil || ready == nil {
		return nil, fmt.Errorf("%w: run options and ready func are required", ErrDockerFailure)
	}

	pool, err := dockertest.NewPool("")
	if err != nil {
		return nil, fmt.Errorf("%w: could not construct pool: %w", ErrDockerFailure, err)
	}

	if err = pool.Client.Ping(); err != nil {
		return nil, fmt.Errorf("%w: docker is not reachable: %w", ErrDockerFailure, err)
	}

	resource, err := pool.RunWithOptions(opts, func(hc *docker.HostConfig) {
		hc.AutoRemove = true
		hc.RestartPolicy = docker.RestartPolicy{Name: "no", MaximumRetryCount: 0}
	})
	if err != nil {
		return nil, fmt.Errorf("%w: could not start %s: %w", ErrDockerFailure, opts.Repository, err)
	}

	_ = resource.Expire(uint(containerTimeout.Seconds()))

	pool.MaxWait = containerTimeout
	if err = pool.Retry(func() error { return ready(resource) }); err != nil {
		_ = pool.Purge(resource)

		return nil, fmt.Errorf("%w: %s did not become ready: %w", ErrDockerFailure, opts.Repository, err)
	}

	return func() error {
		if err := pool.Purge(resource); err != nil {
			return fmt.Errorf("%w: could not purge %s: %w", ErrDockerFailure, opts.Repository, err)
		}

		return nil
	}, nil
}
