package deploy

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// SSHConfig holds the parsed SSH settings for one host.
type SSHConfig struct {
	Host          string
	HostName      string
	User          string
	IdentityFile  string
	IdentityAgent string
	Port          string
}

// ParseSSHConfig reads ~/.ssh/config for the given host. Returns nil
// without error when no config file or no matching Host block exists.
func ParseSSHConfig(host string) (*SSHConfig, error) {
	return ParseSSHConfigFrom(host, "")
}

// ParseSSHConfigFrom parses the SSH config file at configPath for the
// given host. An empty configPath selects ~/.ssh/config.
func ParseSSHConfigFrom(host, configPath string) (*SSHConfig, error) {
	homeDir := os.Getenv("HOME")
	if homeDir == "" {
		homeDir, _ = os.UserHomeDir()
	}
	if configPath == "" {
		if homeDir == "" {
			return nil, fmt.Errorf("cannot locate home directory for ssh config")
		}
		configPath = filepath.Join(homeDir, ".ssh", "config")
	}

	file, err := os.Open(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open ssh config: %w", err)
	}
	defer file.Close()

	return parseSSHConfigReader(host, file, homeDir)
}

func parseSSHConfigReader(host string, r io.Reader, homeDir string) (*SSHConfig, error) {
	config := &SSHConfig{Host: host}
	inMatchingHost := false
	foundMatch := false

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.Fields(line)
		if len(parts) < 2 {
			continue
		}
		keyword := strings.ToLower(parts[0])
		value := strings.Join(parts[1:], " ")

		switch keyword {
		case "host":
			// A new Host block ends the matching one.
			if inMatchingHost {
				return config, nil
			}
			inMatchingHost = matchHost(host, parts[1])
			if inMatchingHost {
				foundMatch = true
			}

		case "hostname":
			if inMatchingHost {
				config.HostName = value
			}

		case "user":
			if inMatchingHost {
				config.User = value
			}

		case "identityfile":
			if inMatchingHost {
				config.IdentityFile = expandHome(value, homeDir)
			}

		case "port":
			if inMatchingHost {
				config.Port = value
			}

		case "identityagent":
			if inMatchingHost {
				config.IdentityAgent = expandHome(strings.Trim(value, `"`), homeDir)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read ssh config: %w", err)
	}

	if !foundMatch {
		return nil, nil
	}
	return config, nil
}

// matchHost checks the target against a Host pattern. Exact matches
// only; cluster login nodes are named explicitly.
func matchHost(target, pattern string) bool {
	return target == pattern
}

func expandHome(value, homeDir string) string {
	if strings.HasPrefix(value, "~/") && homeDir != "" {
		return filepath.Join(homeDir, value[2:])
	}
	return value
}

// ResolveSSHTarget combines a user@host target with SSH config entries.
// Explicit user and key values win over the config file. Returns
// hostname, user, key path and identity agent.
func ResolveSSHTarget(target, user, keyPath string) (string, string, string, string, error) {
	targetHost := target
	targetUser := user
	if strings.Contains(target, "@") {
		parts := strings.SplitN(target, "@", 2)
		targetUser = parts[0]
		targetHost = parts[1]
	}

	config, err := ParseSSHConfig(targetHost)
	if err != nil {
		return "", "", "", "", fmt.Errorf("parse ssh config: %w", err)
	}
	if config == nil {
		return targetHost, targetUser, keyPath, "", nil
	}

	finalHost := targetHost
	if config.HostName != "" {
		finalHost = config.HostName
	}
	finalUser := targetUser
	if finalUser == "" {
		finalUser = config.User
	}
	finalKey := keyPath
	if finalKey == "" {
		finalKey = config.IdentityFile
	}
	return finalHost, finalUser, finalKey, config.IdentityAgent, nil
}
