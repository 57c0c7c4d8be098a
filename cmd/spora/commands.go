package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"spora/internal/engine"
	"spora/internal/logging"
)

var cmdLogger = logging.For("commands")

// nullOutput is printed for a find on an absent key or an empty value
// set. It is part of the output contract, not an error.
const nullOutput = "null"

// runCommands drives the engine from a line-oriented command stream:
// "insert <key> <value>", "delete <key> <value>", "find <key>". A bare
// integer as the first line (the operation count some producers emit) is
// accepted and ignored. Malformed lines are logged and skipped; they
// never reach the engine. Engine and output errors stop the loop.
func runCommands(r io.Reader, w io.Writer, eng *engine.Engine) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)

	first := true
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		if first {
			first = false
			if len(fields) == 1 {
				if _, err := strconv.Atoi(fields[0]); err == nil {
					continue
				}
			}
		}
		if err := dispatch(fields, w, eng); err != nil {
			return err
		}
	}
	return sc.Err()
}

func dispatch(fields []string, w io.Writer, eng *engine.Engine) error {
	switch cmd := fields[0]; cmd {
	case "insert", "delete":
		if len(fields) != 3 {
			cmdLogger.Warn("malformed command", "cmd", cmd, "args", len(fields)-1)
			return nil
		}
		v, err := strconv.ParseInt(fields[2], 10, 32)
		if err != nil {
			cmdLogger.Warn("malformed value", "cmd", cmd, "value", fields[2])
			return nil
		}
		if cmd == "insert" {
			err = eng.Insert(fields[1], int32(v))
		} else {
			err = eng.Delete(fields[1], int32(v))
		}
		if errors.Is(err, engine.ErrKeyTooLong) {
			cmdLogger.Warn("rejecting oversized key", "cmd", cmd)
			return nil
		}
		return err

	case "find":
		if len(fields) != 2 {
			cmdLogger.Warn("malformed command", "cmd", cmd, "args", len(fields)-1)
			return nil
		}
		vals, err := eng.Find(fields[1])
		if errors.Is(err, engine.ErrKeyTooLong) {
			cmdLogger.Warn("rejecting oversized key", "cmd", cmd)
			return nil
		}
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, formatValues(vals))
		return err

	default:
		cmdLogger.Warn("unknown command", "cmd", cmd)
		return nil
	}
}

// formatValues renders a value set as space-separated ascending integers,
// or the null sentinel when there are none.
func formatValues(vals []int32) string {
	if len(vals) == 0 {
		return nullOutput
	}
	var b strings.Builder
	for i, v := range vals {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(strconv.FormatInt(int64(v), 10))
	}
	return b.String()
}
