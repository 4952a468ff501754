package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/itchyny/gojq"
	"github.com/urfave/cli/v2"
)

const rule = "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━"

// compileJQ parses and compiles every filter.
func compileJQ(filters []string) ([]*gojq.Code, error) {
	codes := make([]*gojq.Code, len(filters))
	for i, filter := range filters {
		query, err := gojq.Parse(filter)
		if err != nil {
			return nil, fmt.Errorf("failed to parse jq filter %q: %w", filter, err)
		}
		codes[i], err = gojq.Compile(query)
		if err != nil {
			return nil, fmt.Errorf("failed to compile jq filter %q: %w", filter, err)
		}
	}
	return codes, nil
}

// jqValue round-trips v through JSON so gojq only sees maps, slices, and scalars.
func jqValue(v interface{}) (interface{}, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal output: %w", err)
	}
	var out interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to decode output: %w", err)
	}
	return out, nil
}

// runJQ pipes v through the filters in order and returns every final output.
func runJQ(codes []*gojq.Code, v interface{}) ([]interface{}, error) {
	inputs := []interface{}{v}
	for _, code := range codes {
		var next []interface{}
		for _, in := range inputs {
			iter := code.Run(in)
			for {
				out, ok := iter.Next()
				if !ok {
					break
				}
				if err, isErr := out.(error); isErr {
					return nil, fmt.Errorf("jq: %w", err)
				}
				next = append(next, out)
			}
		}
		inputs = next
	}
	return inputs, nil
}

// matchesAll reports whether every filter yields a truthy first result for v.
func matchesAll(codes []*gojq.Code, v interface{}) bool {
	for _, code := range codes {
		out, ok := code.Run(v).Next()
		if !ok {
			return false
		}
		if _, isErr := out.(error); isErr {
			return false
		}
		if !isTruthy(out) {
			return false
		}
	}
	return true
}

// isTruthy checks if a jq result value is truthy.
// In jq, false and null are falsy, everything else is truthy.
func isTruthy(v interface{}) bool {
	if v == nil {
		return false
	}
	if b, ok := v.(bool); ok {
		return b
	}
	return true
}

// output writes v as jq output, as JSON, or with the human printer, in that
// order of precedence.
func output(c *cli.Context, v interface{}, human func(w io.Writer)) error {
	w := c.App.Writer
	if w == nil {
		w = os.Stdout
	}

	if filters := c.StringSlice("jq"); len(filters) > 0 {
		codes, err := compileJQ(filters)
		if err != nil {
			return err
		}
		in, err := jqValue(v)
		if err != nil {
			return err
		}
		results, err := runJQ(codes, in)
		if err != nil {
			return err
		}
		for _, r := range results {
			if err := writeJSON(w, r); err != nil {
				return err
			}
		}
		return nil
	}

	if c.Bool("json") {
		return writeJSON(w, v)
	}

	human(w)
	return nil
}

func writeJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// cliLogger logs to stderr at --log-level so stdout stays parseable.
func cliLogger(c *cli.Context) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(c.String("log-level")) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	default:
		level = slog.LevelError
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// splitList splits a comma separated flag value, dropping empty entries.
func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
