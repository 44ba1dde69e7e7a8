package config

import (
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads environment variables from the first .env file found.
// Variables already present in the environment are left untouched. It
// returns the loaded file name, or "" when no file exists.
func LoadDotEnv() (string, error) {
	envFiles := []string{
		".env",
		"../.env",
	}

	if exe, err := os.Executable(); err == nil {
		envFiles = append(envFiles, filepath.Join(filepath.Dir(exe), ".env"))
	}

	for _, envFile := range envFiles {
		if _, err := os.Stat(envFile); err != nil {
			continue
		}
		if err := godotenv.Load(envFile); err != nil {
			return "", err
		}
		return envFile, nil
	}

	return "", nil
}
