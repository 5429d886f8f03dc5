package logtail

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"
)

// Read returns at most maxLines from the end of the file at path. A
// non-positive maxLines reads every line. A missing file is not an error.
func Read(path string, maxLines int) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open log: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	if maxLines <= 0 {
		var lines []string
		for scanner.Scan() {
			lines = append(lines, scanner.Text())
		}
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("read log: %w", err)
		}
		return lines, nil
	}

	ring := make([]string, maxLines)
	count := 0
	idx := 0
	for scanner.Scan() {
		ring[idx] = scanner.Text()
		idx = (idx + 1) % maxLines
		if count < maxLines {
			count++
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}

	lines := make([]string, count)
	if count == maxLines {
		for i := range count {
			lines[i] = ring[(idx+i)%maxLines]
		}
	} else {
		copy(lines, ring[:count])
	}
	return lines, nil
}

// Field is one structured key/value pair of a record.
type Field struct {
	Key   string
	Value string
}

// Record is a decoded zap JSON line. Lines that are not JSON keep their
// text in Msg with an empty Level.
type Record struct {
	Time   time.Time
	Level  string
	Logger string
	Msg    string
	Fields []Field
}

const tsLayout = "2006-01-02T15:04:05.000Z0700"

// Keys the encoder writes for every record; everything else is a field.
var reserved = map[string]bool{
	"ts": true, "level": true, "logger": true, "msg": true, "caller": true, "stacktrace": true,
}

// Parse decodes one line written by the zap JSON encoder.
func Parse(line string) Record {
	var raw map[string]any
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return Record{Msg: line}
	}

	r := Record{
		Level:  stringField(raw, "level"),
		Logger: stringField(raw, "logger"),
		Msg:    stringField(raw, "msg"),
	}
	if ts := stringField(raw, "ts"); ts != "" {
		if t, err := time.Parse(tsLayout, ts); err == nil {
			r.Time = t
		}
	}

	keys := make([]string, 0, len(raw))
	for k := range raw {
		if !reserved[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		r.Fields = append(r.Fields, Field{Key: k, Value: formatValue(raw[k])})
	}
	return r
}

func stringField(raw map[string]any, key string) string {
	s, _ := raw[key].(string)
	return s
}

func formatValue(v any) string {
	switch v := v.(type) {
	case string:
		if strings.ContainsAny(v, " \t") {
			return fmt.Sprintf("%q", v)
		}
		return v
	case nil:
		return "null"
	case float64, bool:
		return fmt.Sprint(v)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(b)
	}
}

// String renders the record on one line:
//
//	15:04:05 WARN  query: fetch failed error="..." key=["health"]
func (r Record) String() string {
	if r.Level == "" {
		return r.Msg
	}
	var b strings.Builder
	if !r.Time.IsZero() {
		b.WriteString(r.Time.Local().Format("15:04:05"))
		b.WriteString(" ")
	}
	fmt.Fprintf(&b, "%-5s ", strings.ToUpper(r.Level))
	if r.Logger != "" {
		b.WriteString(r.Logger)
		b.WriteString(": ")
	}
	b.WriteString(r.Msg)
	for _, f := range r.Fields {
		b.WriteString(" ")
		b.WriteString(f.Key)
		b.WriteString("=")
		b.WriteString(f.Value)
	}
	return b.String()
}

// Tail reads and decodes the last maxLines records of path.
func Tail(path string, maxLines int) ([]Record, error) {
	lines, err := Read(path, maxLines)
	if err != nil {
		return nil, err
	}
	records := make([]Record, 0, len(lines))
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		records = append(records, Parse(line))
	}
	return records, nil
}
