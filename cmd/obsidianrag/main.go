// Package main is the entrypoint for the obsidianrag CLI, grounded on the
// teacher's cmd/same/main.go root-command wiring (cobra root + version
// check against GitHub releases), generalized to this project's smaller
// tool surface: mcp, index, search, doctor, config, init.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// Version is set at build time via ldflags.
var Version = "dev"

// vaultFlag holds the --vault value, if passed, before it is copied into
// OBSIDIAN_VAULT_PATH so every subcommand resolves the same vault root the
// way internal/config.Load and internal/mcp.Serve already expect.
var vaultFlag string

func main() {
	root := &cobra.Command{
		Use:   "obsidianrag",
		Short: "Hybrid search and note management over an Obsidian vault, for AI tools",
		Long: `obsidianrag indexes a markdown vault for hybrid (keyword + semantic) search
and exposes it to AI tools over MCP, plus a small set of operator commands.

Quick Start:
  obsidianrag init     Point obsidianrag at a vault and build its index
  obsidianrag mcp      Run the MCP server (stdio transport)
  obsidianrag doctor   Check that the vault, store, and embedding backend are healthy`,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if vaultFlag != "" {
				return os.Setenv("OBSIDIAN_VAULT_PATH", vaultFlag)
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&vaultFlag, "vault", "", "Vault path (overrides OBSIDIAN_VAULT_PATH and the current directory)")

	root.AddCommand(versionCmd())
	root.AddCommand(initCmd())
	root.AddCommand(mcpCmd())
	root.AddCommand(indexCmd())
	root.AddCommand(searchCmd())
	root.AddCommand(doctorCmd())
	root.AddCommand(configCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	var check bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the obsidianrag version",
		RunE: func(cmd *cobra.Command, args []string) error {
			if check {
				return runVersionCheck()
			}
			fmt.Printf("obsidianrag %s\n", Version)
			return nil
		},
	}
	cmd.Flags().BoolVar(&check, "check", false, "Check for updates against GitHub releases")
	return cmd
}

func runVersionCheck() error {
	if Version == "dev" {
		fmt.Println("obsidianrag dev (built from source, no version check)")
		return nil
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get("https://api.github.com/repos/sgx-labs/obsidianrag/releases/latest")
	if err != nil {
		fmt.Printf("obsidianrag %s (update check failed: %v)\n", Version, err)
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		fmt.Printf("obsidianrag %s (no releases found)\n", Version)
		return nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		fmt.Printf("obsidianrag %s\n", Version)
		return nil
	}

	var release struct {
		TagName string `json:"tag_name"`
	}
	if err := json.Unmarshal(body, &release); err != nil {
		fmt.Printf("obsidianrag %s\n", Version)
		return nil
	}

	latest := strings.TrimPrefix(release.TagName, "v")
	current := strings.TrimPrefix(Version, "v")
	if compareSemver(latest, current) > 0 {
		fmt.Printf("obsidianrag %s -> %s available. Run: obsidianrag version --check\n", current, latest)
	} else {
		fmt.Printf("obsidianrag %s (up to date)\n", Version)
	}
	return nil
}

// compareSemver compares two semver strings (without "v" prefix). Returns
// -1 if a < b, 0 if a == b, 1 if a > b, falling back to string comparison
// if parsing fails.
func compareSemver(a, b string) int {
	parse := func(s string) (major, minor, patch int, ok bool) {
		if idx := strings.IndexByte(s, '-'); idx >= 0 {
			s = s[:idx]
		}
		parts := strings.Split(s, ".")
		if len(parts) < 1 || len(parts) > 3 {
			return 0, 0, 0, false
		}
		var err error
		if major, err = strconv.Atoi(parts[0]); err != nil {
			return 0, 0, 0, false
		}
		if len(parts) >= 2 {
			if minor, err = strconv.Atoi(parts[1]); err != nil {
				return 0, 0, 0, false
			}
		}
		if len(parts) >= 3 {
			if patch, err = strconv.Atoi(parts[2]); err != nil {
				return 0, 0, 0, false
			}
		}
		return major, minor, patch, true
	}

	aMaj, aMin, aPat, aOK := parse(a)
	bMaj, bMin, bPat, bOK := parse(b)
	if !aOK || !bOK {
		switch {
		case a < b:
			return -1
		case a > b:
			return 1
		default:
			return 0
		}
	}
	if aMaj != bMaj {
		if aMaj < bMaj {
			return -1
		}
		return 1
	}
	if aMin != bMin {
		if aMin < bMin {
			return -1
		}
		return 1
	}
	if aPat != bPat {
		if aPat < bPat {
			return -1
		}
		return 1
	}
	return 0
}

// ---------- error helpers ----------

// cliError pairs a user-facing message with an actionable hint, grounded on
// the teacher's sameError/userError.
type cliError struct {
	message string
	hint    string
}

func (e *cliError) Error() string {
	if e.hint == "" {
		return e.message
	}
	return fmt.Sprintf("%s\n  Hint: %s", e.message, e.hint)
}

func userError(message, hint string) error {
	return &cliError{message: message, hint: hint}
}
