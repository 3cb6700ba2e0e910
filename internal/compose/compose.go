// Package compose renders the containerized run configuration. The manifest
// is regenerated from scratch on every start so credential rotation and
// config drift cannot accumulate in a hand-edited cached copy.
package compose

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"text/template"
)

const manifestName = "docker-compose.yml"

var manifestTmpl = template.Must(template.New("compose").Parse(`services:
  db:
    image: postgres:15-alpine
    environment:
      POSTGRES_DB: django_db
      POSTGRES_USER: otree_user
      POSTGRES_PASSWORD: {{.DBPassword}}
    healthcheck:
      test: ["CMD-SHELL", "pg_isready -U otree_user -d django_db"]
      interval: 2s
      timeout: 3s
      retries: 15
  web:
    image: python:{{.PythonTag}}-slim
    working_dir: /app
    command: sh -c "pip install --proxy '' otree && otree devserver 0.0.0.0:{{.Port}}"
    environment:
      DATABASE_URL: postgres://otree_user:{{.DBPassword}}@db:5432/django_db
      OTREE_ADMIN_PASSWORD: {{.AdminPassword}}
      OTREE_PRODUCTION: "0"
    volumes:
      - {{.ProjectPath}}:/app
    ports:
      - "{{.Port}}:{{.Port}}"
    depends_on:
      db:
        condition: service_healthy
`))

type manifestData struct {
	ProjectPath   string
	Port          int
	PythonTag     string
	DBPassword    string
	AdminPassword string
}

// Render writes a fresh manifest for projectPath into dir and returns its
// path. Secrets are regenerated on every call.
func Render(dir, projectPath string, port int, pythonTag string) (string, error) {
	if pythonTag == "" {
		pythonTag = "3.11"
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("create compose dir: %w", err)
	}
	path := filepath.Join(dir, manifestName)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return "", fmt.Errorf("write manifest: %w", err)
	}
	defer func() { _ = f.Close() }()
	data := manifestData{
		ProjectPath:   projectPath,
		Port:          port,
		PythonTag:     pythonTag,
		DBPassword:    randomSecret(16),
		AdminPassword: randomSecret(12),
	}
	if err := manifestTmpl.Execute(f, data); err != nil {
		return "", fmt.Errorf("render manifest: %w", err)
	}
	return path, nil
}

func randomSecret(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)[:n]
}
