package cmd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/adalundhe/weft/core/config"
	"github.com/adalundhe/weft/core/ingest"
	"github.com/adalundhe/weft/core/pool"
	"github.com/adalundhe/weft/core/session"
	"github.com/adalundhe/weft/core/store"
)

var (
	replaySessionID string
	replayHarness   string
	replayPrompt    string
)

var replayCmd = &cobra.Command{
	Use:   "replay [transcript.jsonl]",
	Short: "Ingest a JSONL message transcript and print the assembled context",
	Args:  cobra.ExactArgs(1),
	RunE:  runReplay,
}

func init() {
	replayCmd.Flags().StringVar(&replaySessionID, "session", "replay", "session identifier")
	replayCmd.Flags().StringVar(&replayHarness, "harness", "cli", "harness name")
	replayCmd.Flags().StringVar(&replayPrompt, "system-prompt", "", "system prompt text")
	rootCmd.AddCommand(replayCmd)
}

func runReplay(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	backend, closeStore, err := openStore(cfg.Store)
	if err != nil {
		return err
	}
	defer closeStore()

	msgs, err := readTranscript(args[0])
	if err != nil {
		return err
	}

	sess, err := session.Open(cmd.Context(), session.Config{
		Store:        backend,
		Harness:      replayHarness,
		SessionID:    replaySessionID,
		SystemPrompt: replayPrompt,
		Policy: pool.EvictionPolicy{
			RecentToolcalls:      cfg.Eviction.RecentToolcalls,
			RecentCompletedTurns: cfg.Eviction.RecentCompletedTurns,
		},
	})
	if err != nil {
		return err
	}

	output, err := sess.Ingest(cmd.Context(), msgs)
	if err != nil {
		return err
	}

	fmt.Fprint(cmd.OutOrStdout(), output.String())
	return nil
}

func readTranscript(path string) ([]ingest.Message, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var msgs []ingest.Message
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var msg ingest.Message
		if err := json.Unmarshal(line, &msg); err != nil {
			return nil, fmt.Errorf("parse transcript line: %w", err)
		}
		msgs = append(msgs, msg)
	}
	return msgs, scanner.Err()
}

func openStore(cfg config.StoreConfig) (store.Store, func(), error) {
	switch cfg.Driver {
	case "sqlite":
		s, err := store.NewSQLiteStore(store.SQLiteConfig{
			Path:      cfg.Path,
			CacheSize: cfg.CacheSize,
		})
		if err != nil {
			return nil, nil, err
		}
		return s, func() { s.Close() }, nil
	default:
		return store.NewMemoryStore(), func() {}, nil
	}
}
