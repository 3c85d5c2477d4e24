package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// source resolves keys with precedence explicit map > process env > dotenv file. Typed getters
// record the config field of any value that fails to parse.
type source struct {
	layers   []map[string]string
	problems []string
}

func openSource(o loaderOptions) (*source, error) {
	dotenv, err := readDotEnv(o.envFile)
	if err != nil {
		return nil, err
	}
	s := &source{}
	if o.envMap != nil {
		s.layers = append(s.layers, o.envMap)
	}
	if o.useSystemEnv {
		s.layers = append(s.layers, processEnv())
	}
	if dotenv != nil {
		s.layers = append(s.layers, dotenv)
	}
	return s, nil
}

func (s *source) lookup(key string) (string, bool) {
	for _, layer := range s.layers {
		if v, ok := layer[key]; ok && v != "" {
			return v, true
		}
	}
	return "", false
}

func (s *source) flatten() map[string]string {
	out := make(map[string]string)
	for i := len(s.layers) - 1; i >= 0; i-- {
		for k, v := range s.layers[i] {
			out[k] = v
		}
	}
	return out
}

func (s *source) invalid(field string) {
	s.problems = append(s.problems, field)
}

func (s *source) str(key, fallback string) string {
	if v, ok := s.lookup(key); ok {
		return v
	}
	return fallback
}

func (s *source) duration(field, key string, fallback time.Duration) time.Duration {
	v, ok := s.lookup(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		s.invalid(field)
		return fallback
	}
	return d
}

func (s *source) integer(field, key string, fallback int) int {
	v, ok := s.lookup(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		s.invalid(field)
		return fallback
	}
	return n
}

func (s *source) boolean(field, key string, fallback bool) bool {
	v, ok := s.lookup(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "1", "yes", "on":
		return true
	case "false", "0", "no", "off":
		return false
	}
	s.invalid(field)
	return fallback
}

func processEnv() map[string]string {
	env := os.Environ()
	out := make(map[string]string, len(env))
	for _, entry := range env {
		if key, value, ok := strings.Cut(entry, "="); ok && key != "" {
			out[key] = value
		}
	}
	return out
}

// readDotEnv returns nil when path is empty or absent.
func readDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	values, err := godotenv.Read(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return values, nil
}
