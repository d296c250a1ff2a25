// Chatmerge CI/CD
//
// Package main provides reproducible builds and tests locally and in GitHub actions.
// It is the main harness for handling nearly all dev operations.
package main

import (
	"context"

	"dagger/chatmerge/internal/dagger"
)

// Chatmerge is the main module for the chatmerge CI/CD pipeline
type Chatmerge struct {
	// Project source directory
	//
	// +private
	Source *dagger.Directory
}

// New creates a new Chatmerge CI/CD module instance
func New(
	// Project source directory.
	//
	// +defaultPath="/"
	// +ignore=[".git", ".direnv", ".devenv", ".chatmerge", "build", "tmp"]
	source *dagger.Directory,
) *Chatmerge {
	return &Chatmerge{
		Source: source,
	}
}

// goContainer returns a Debian Bookworm-based Go container for platform with
// gcc, libsqlite3-dev, CGO enabled, and the project source mounted. An empty
// platform uses the engine's native platform.
//
// It is the shared foundation for tests, builds, and linting.
func (m *Chatmerge) goContainer(platform dagger.Platform) *dagger.Container {
	return dag.Container(dagger.ContainerOpts{Platform: platform}).
		From("golang:1.25-bookworm").
		WithExec([]string{"apt-get", "update"}).
		WithExec([]string{"apt-get", "install", "-y", "gcc", "libsqlite3-dev"}).
		WithEnvVariable("CGO_ENABLED", "1").
		WithEnvVariable("PATH", "/go/bin:$PATH", dagger.ContainerWithEnvVariableOpts{Expand: true}).
		WithMountedCache("/go/pkg/mod", dag.CacheVolume("go-mod")).
		WithMountedCache("/root/.cache/go-build", dag.CacheVolume("go-build-"+string(platform))).
		WithWorkdir("/src").
		WithDirectory("/src", m.Source)
}

// CheckGenerate verifies that generated code (e.g. ent) is up to date
// by running go generate and diffing the result against the committed files.
func (m *Chatmerge) CheckGenerate(ctx context.Context) (string, error) {
	return m.goContainer("").
		WithExec([]string{"cp", "-r", "pkg/storage/ent", "/tmp/ent-before"}).
		WithExec([]string{"go", "generate", "./pkg/storage/ent/..."}).
		WithExec([]string{"diff", "-r", "/tmp/ent-before", "pkg/storage/ent"}).
		Stdout(ctx)
}

// Test runs the chatmerge unit tests via "go test". The Postgres and
// Qdrant driver tests are skipped unless their environment variables are set.
func (m *Chatmerge) Test(ctx context.Context) (string, error) {
	return m.goContainer("").
		WithExec([]string{"go", "test", "-v", "./..."}).
		Stdout(ctx)
}
