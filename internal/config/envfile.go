package config

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
)

// EnvFileVar names an extra env file to load before the defaults.
const EnvFileVar = "SUZIEQ_ENV_FILE"

// envFileCandidates lists the env files Load reads, in order.
func envFileCandidates() []string {
	var out []string
	if explicit := strings.TrimSpace(os.Getenv(EnvFileVar)); explicit != "" {
		if p, err := expandHome(explicit); err == nil {
			out = append(out, p)
		}
	}
	out = append(out, ".env")
	if home, err := os.UserHomeDir(); err == nil {
		out = append(out, filepath.Join(home, ConfigDir, ".env"))
	}
	return out
}

// LoadEnvFiles sets variables from the candidate env files. Variables that
// are already set, including ones set by an earlier file, are kept. It
// returns the files that were read.
func LoadEnvFiles() []string {
	var loaded []string
	seen := make(map[string]bool)
	for _, p := range envFileCandidates() {
		abs, err := filepath.Abs(p)
		if err != nil || seen[abs] {
			continue
		}
		seen[abs] = true
		if err := loadEnvFile(abs); err == nil {
			loaded = append(loaded, abs)
		}
	}
	return loaded
}

func loadEnvFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		key, val, ok := parseEnvLine(sc.Text())
		if !ok {
			continue
		}
		if _, exists := os.LookupEnv(key); exists {
			continue
		}
		_ = os.Setenv(key, val)
	}
	return sc.Err()
}

// parseEnvLine accepts KEY=value with an optional "export " prefix and
// optional matching quotes. Comments and malformed lines are skipped.
func parseEnvLine(line string) (string, string, bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return "", "", false
	}
	line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
	key, val, found := strings.Cut(line, "=")
	key = strings.TrimSpace(key)
	if !found || key == "" {
		return "", "", false
	}
	val = strings.TrimSpace(val)
	if n := len(val); n >= 2 && (val[0] == '"' || val[0] == '\'') && val[n-1] == val[0] {
		val = val[1 : n-1]
	}
	return key, val, true
}
