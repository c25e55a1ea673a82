package main

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/aretw0/bower/internal/config"
	"github.com/aretw0/bower/internal/presentation/tui"
	fileAdapter "github.com/aretw0/bower/pkg/adapters/file"
	"github.com/aretw0/bower/pkg/domain"
	"github.com/aretw0/bower/pkg/persistence/middleware"
	"github.com/aretw0/bower/pkg/ports"
	"github.com/spf13/cobra"
)

var snapshotsCmd = &cobra.Command{
	Use:   "snapshots",
	Short: "Manage persisted session snapshots",
	Long:  `List, inspect, and remove session snapshots stored in the file store.`,
}

var snapshotsLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List all stored snapshots",
	Run: func(cmd *cobra.Command, args []string) {
		store := getSnapshotStore(cmd)
		ids, err := store.List(cmd.Context())
		if err != nil {
			fmt.Printf("Error listing snapshots: %v\n", err)
			os.Exit(1)
		}

		if len(ids) == 0 {
			fmt.Println("No snapshots found.")
			return
		}

		fmt.Println("Stored Snapshots:")
		for _, id := range ids {
			fmt.Println("- " + id)
		}
	},
}

var snapshotsInspectCmd = &cobra.Command{
	Use:   "inspect <session-id>",
	Short: "Inspect the contents of a snapshot",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		sessionID := args[0]
		store := getSnapshotStore(cmd)

		snap, err := store.Load(cmd.Context(), sessionID)
		if err != nil {
			fmt.Printf("Error loading snapshot '%s': %v\n", sessionID, err)
			os.Exit(1)
		}

		if render, _ := cmd.Flags().GetBool("render"); render {
			out, err := tui.NewRenderer()(snapshotMarkdown(snap))
			if err != nil {
				fmt.Printf("Error rendering snapshot: %v\n", err)
				os.Exit(1)
			}
			fmt.Print(out)
			return
		}

		// Pretty print JSON
		data, err := json.MarshalIndent(snap, "", "  ")
		if err != nil {
			fmt.Printf("Error marshaling snapshot: %v\n", err)
			os.Exit(1)
		}

		fmt.Println(string(data))
	},
}

var snapshotsRmCmd = &cobra.Command{
	Use:   "rm [<session-id>...]",
	Short: "Remove one or more snapshots",
	Run: func(cmd *cobra.Command, args []string) {
		store := getSnapshotStore(cmd)

		all, _ := cmd.Flags().GetBool("all")
		if all {
			ids, err := store.List(cmd.Context())
			if err != nil {
				fmt.Printf("Error listing snapshots: %v\n", err)
				os.Exit(1)
			}
			args = ids
		} else if len(args) == 0 {
			fmt.Println("Nothing to remove. Pass session IDs or --all.")
			os.Exit(1)
		}

		hasError := false
		for _, sessionID := range args {
			if err := store.Delete(cmd.Context(), sessionID); err != nil {
				fmt.Printf("Error removing '%s': %v\n", sessionID, err)
				hasError = true
			} else {
				fmt.Printf("Removed snapshot '%s'\n", sessionID)
			}
		}

		if hasError {
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(snapshotsCmd)
	snapshotsCmd.AddCommand(snapshotsLsCmd)
	snapshotsCmd.AddCommand(snapshotsInspectCmd)
	snapshotsCmd.AddCommand(snapshotsRmCmd)

	snapshotsCmd.PersistentFlags().String("snapshots-dir", "", "Base directory of the file store")
	snapshotsCmd.PersistentFlags().String("encryption-key", "", "Passphrase snapshots were encrypted with")
	snapshotsInspectCmd.Flags().Bool("render", false, "Render document contents as markdown")
	snapshotsRmCmd.Flags().Bool("all", false, "Remove every stored snapshot")
}

// getSnapshotStore opens the file store the serve command writes to, honoring
// the config file plus any command line overrides.
func getSnapshotStore(cmd *cobra.Command) ports.SnapshotStore {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}
	if cmd.Flags().Changed("snapshots-dir") {
		cfg.SnapshotsDir, _ = cmd.Flags().GetString("snapshots-dir")
	}
	if cmd.Flags().Changed("encryption-key") {
		cfg.EncryptionKey, _ = cmd.Flags().GetString("encryption-key")
	}

	var store ports.SnapshotStore = fileAdapter.NewStore(cfg.SnapshotsDir)
	if cfg.EncryptionKey != "" {
		key := sha256.Sum256([]byte(cfg.EncryptionKey))
		store = middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{
			ActiveKey: key[:],
		})(store)
	}
	return store
}

// snapshotMarkdown flattens a snapshot into a markdown document. Entries that
// carry a string "content" field render as prose; everything else renders as
// fenced JSON.
func snapshotMarkdown(snap domain.Snapshot) string {
	var b strings.Builder

	title := snap.Title
	if title == "" {
		title = snap.SessionID
	}
	fmt.Fprintf(&b, "# %s\n\n", title)
	fmt.Fprintf(&b, "Revision %d, saved %s\n\n", snap.Revision, snap.SavedAt.Format("2006-01-02 15:04:05 MST"))

	keys := make([]string, 0, len(snap.State))
	for k := range snap.State {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		fmt.Fprintf(&b, "## %s\n\n", k)

		if entry, ok := snap.State[k].(map[string]any); ok {
			if content, ok := entry["content"].(string); ok && content != "" {
				b.WriteString(content)
				b.WriteString("\n\n")
				continue
			}
		}

		data, err := json.MarshalIndent(snap.State[k], "", "  ")
		if err != nil {
			fmt.Fprintf(&b, "%v\n\n", snap.State[k])
			continue
		}
		fmt.Fprintf(&b, "```json\n%s\n```\n\n", data)
	}

	return b.String()
}
