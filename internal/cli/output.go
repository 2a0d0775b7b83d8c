package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
)

// Output — вывод команд: данные в stdout таблицей или JSON,
// сообщения о ходе работы в stderr.
type Output struct {
	jsonMode bool
	stdout   io.Writer
	stderr   io.Writer
}

// NewOutput создаёт Output.
func NewOutput(jsonMode bool, stdout, stderr io.Writer) *Output {
	return &Output{jsonMode: jsonMode, stdout: stdout, stderr: stderr}
}

// Print выводит строки таблицы либо v как JSON (--json).
func (o *Output) Print(headers []string, rows [][]string, v any) error {
	if o.jsonMode {
		enc := json.NewEncoder(o.stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("write json: %w", err)
		}
		return nil
	}

	tw := tabwriter.NewWriter(o.stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(headers, "\t"))
	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("write table: %w", err)
	}
	return nil
}

// Notice пишет строку в stderr. В режиме JSON stdout остаётся
// разбираемым.
func (o *Output) Notice(format string, args ...any) {
	fmt.Fprintf(o.stderr, format+"\n", args...)
}
