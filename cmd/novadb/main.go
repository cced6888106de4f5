// Command novadb is an interactive SQL shell over an embedded novadb
// database: one statement per line, tabular result rendering, and an
// optional --init script for replaying statements before the prompt.
package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/chzyer/readline"

	"github.com/novadb/novadb/internal/config"
	"github.com/novadb/novadb/internal/engine"
	"github.com/novadb/novadb/internal/storageengine"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "novadb: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "novadb.yaml", "path to YAML config file")
	initScript := flag.String("init", "", "path to a file of SQL statements to run before the prompt")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	logger := slog.Default()
	storage, err := storageengine.Open(cfg.Storage.DataDir, cfg.Storage.BufferPoolCapacity, logger)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer func() {
		if err := storage.Close(); err != nil {
			logger.Warn("storage close failed", "err", err)
		}
	}()

	eng := engine.New(storage, logger)
	eng.OptimizerEnabled = cfg.Engine.OptimizerEnabled

	if *initScript != "" {
		if err := runScript(eng, *initScript); err != nil {
			return err
		}
	}

	return repl(eng)
}

func runScript(eng *engine.ExecutionEngine, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open init script: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	var buf strings.Builder
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "--") {
			continue
		}
		buf.WriteString(line)
		buf.WriteByte(' ')
		if strings.HasSuffix(line, ";") {
			stmt := strings.TrimSpace(buf.String())
			buf.Reset()
			if _, err := eng.Run(stmt); err != nil {
				return fmt.Errorf("init script: %s: %w", stmt, err)
			}
		}
	}
	return sc.Err()
}

func repl(eng *engine.ExecutionEngine) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "novadb> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("readline: %w", err)
	}
	defer rl.Close()

	var buf strings.Builder
	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if buf.Len() > 0 {
				buf.Reset()
				rl.SetPrompt("novadb> ")
				continue
			}
			continue
		}
		if err != nil {
			fmt.Println()
			return nil
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			return nil
		}

		if buf.Len() > 0 {
			buf.WriteByte(' ')
		}
		buf.WriteString(line)

		if !strings.HasSuffix(line, ";") {
			rl.SetPrompt("    -> ")
			continue
		}

		stmt := strings.TrimSpace(buf.String())
		buf.Reset()
		rl.SetPrompt("novadb> ")

		result, err := eng.Run(stmt)
		if err != nil {
			fmt.Printf("error: %v\n", err)
			continue
		}
		printResult(result)
	}
}

func printResult(result engine.Result) {
	if len(result.Schema.Columns) == 0 {
		if result.Message != "" {
			fmt.Println(result.Message)
			return
		}
		fmt.Printf("OK (%d row(s) affected)\n", result.RowsAffected)
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 2, 2, 2, ' ', 0)
	header := make([]string, len(result.Schema.Columns))
	sep := make([]string, len(result.Schema.Columns))
	for i, c := range result.Schema.Columns {
		header[i] = c.Name
		sep[i] = strings.Repeat("-", len(c.Name))
	}
	fmt.Fprintln(w, strings.Join(header, "\t"))
	fmt.Fprintln(w, strings.Join(sep, "\t"))
	for _, row := range result.Rows {
		cells := make([]string, len(row.Values))
		for i, v := range row.Values {
			if v.IsNull() {
				cells[i] = "NULL"
			} else {
				cells[i] = v.String()
			}
		}
		fmt.Fprintln(w, strings.Join(cells, "\t"))
	}
	w.Flush()
	fmt.Printf("(%d row(s))\n", len(result.Rows))
}
