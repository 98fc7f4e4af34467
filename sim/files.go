package sim

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"google.golang.org/protobuf/encoding/protodelim"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/cosmos/statetree/change"
	"github.com/cosmos/statetree/txlog"
)

// Ref is a child reference read back from a log file.
type Ref change.NodeID

func (r Ref) Ref() change.NodeID { return change.NodeID(r) }

func logFilename(dir string, version int64) string {
	return filepath.Join(dir, fmt.Sprintf("%09d.delimpb", version))
}

func reportFilename(dir string) string {
	return filepath.Join(dir, "report.json")
}

// WriteLog writes one length delimited protobuf Struct per node of l, holding the node id and
// its records. Values must be strings, numbers, booleans or node references.
func WriteLog(w io.Writer, l *txlog.Log) error {
	for _, id := range l.Nodes() {
		records := make([]any, 0, len(l.Changes(id)))
		for _, c := range l.Changes(id) {
			records = append(records, encodeChange(c))
		}
		msg, err := structpb.NewStruct(map[string]any{
			"node":    float64(id),
			"changes": records,
		})
		if err != nil {
			return fmt.Errorf("error encoding node %d: %w", id, err)
		}
		if _, err := protodelim.MarshalTo(w, msg); err != nil {
			return fmt.Errorf("error writing node %d: %w", id, err)
		}
	}
	return nil
}

// ReadLog reads a log written by WriteLog. Numbers come back as float64 and node references
// as Ref.
func ReadLog(r io.Reader) (*txlog.Log, error) {
	reader := bufio.NewReader(r)
	l := txlog.NewLog()
	for i := 0; ; i++ {
		var msg structpb.Struct
		err := protodelim.UnmarshalFrom(reader, &msg)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return l, nil
			}
			return nil, fmt.Errorf("error at entry %d reading log: %w", i, err)
		}
		id := change.NodeID(msg.Fields["node"].GetNumberValue())
		var changes []change.Change
		for _, v := range msg.Fields["changes"].GetListValue().GetValues() {
			c, err := decodeChange(v.GetStructValue().AsMap())
			if err != nil {
				return nil, fmt.Errorf("error at entry %d decoding node %d: %w", i, id, err)
			}
			changes = append(changes, c)
		}
		if err := l.Append(id, changes); err != nil {
			return nil, fmt.Errorf("error at entry %d: %w", i, err)
		}
	}
}

// WriteLogFile writes the log of a version into dir.
func WriteLogFile(dir string, version int64, l *txlog.Log) error {
	f, err := os.Create(logFilename(dir, version))
	if err != nil {
		return fmt.Errorf("error creating log file for version %d: %w", version, err)
	}
	w := bufio.NewWriter(f)
	if err := WriteLog(w, l); err != nil {
		_ = f.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// ReadLogs reads every log file in dir in version order.
func ReadLogs(dir string) ([]*txlog.Log, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.delimpb"))
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	logs := make([]*txlog.Log, 0, len(files))
	for _, name := range files {
		f, err := os.Open(name)
		if err != nil {
			return nil, err
		}
		l, err := ReadLog(f)
		_ = f.Close()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		logs = append(logs, l)
	}
	return logs, nil
}

func encodeValue(v any) any {
	if id, ok := change.RefID(v); ok {
		return map[string]any{"ref": float64(id)}
	}
	return v
}

func encodeValues(vs []any) []any {
	out := make([]any, len(vs))
	for i, v := range vs {
		out[i] = encodeValue(v)
	}
	return out
}

func encodeChange(c change.Change) map[string]any {
	m := map[string]any{"kind": c.Kind().String()}
	switch c := c.(type) {
	case change.IdChange:
		m["old"], m["new"] = c.Old, c.New
	case change.ParentChange:
		m["old"], m["new"] = float64(c.OldParent), float64(c.NewParent)
	case change.Put:
		m["key"], m["value"] = c.Key, encodeValue(c.Value)
	case change.Remove:
		m["key"], m["value"] = c.Key, encodeValue(c.OldValue)
	case change.ListInsert:
		m["key"], m["index"], m["value"] = c.Key, c.Index, encodeValue(c.Value)
	case change.ListInsertMany:
		m["key"], m["index"], m["values"] = c.Key, c.Index, encodeValues(c.Values)
	case change.ListRemove:
		m["key"], m["index"], m["value"] = c.Key, c.Index, encodeValue(c.Value)
	case change.ListReplace:
		m["key"], m["index"] = c.Key, c.Index
		m["value"], m["new"] = encodeValue(c.OldValue), encodeValue(c.NewValue)
	}
	return m
}

func decodeValue(v any) any {
	if m, ok := v.(map[string]any); ok {
		if id, ok := m["ref"].(float64); ok {
			return Ref(id)
		}
	}
	return v
}

func decodeChange(m map[string]any) (change.Change, error) {
	key, _ := m["key"].(string)
	index := int(number(m["index"]))
	switch m["kind"] {
	case change.KindID.String():
		return change.IdChange{Old: int(number(m["old"])), New: int(number(m["new"]))}, nil
	case change.KindParent.String():
		return change.ParentChange{
			OldParent: change.NodeID(number(m["old"])),
			NewParent: change.NodeID(number(m["new"])),
		}, nil
	case change.KindPut.String():
		return change.Put{Key: key, Value: decodeValue(m["value"])}, nil
	case change.KindRemove.String():
		return change.Remove{Key: key, OldValue: decodeValue(m["value"])}, nil
	case change.KindListInsert.String():
		return change.ListInsert{Index: index, Key: key, Value: decodeValue(m["value"])}, nil
	case change.KindListInsertMany.String():
		raw, _ := m["values"].([]any)
		values := make([]any, len(raw))
		for i, v := range raw {
			values[i] = decodeValue(v)
		}
		return change.ListInsertMany{Index: index, Key: key, Values: values}, nil
	case change.KindListRemove.String():
		return change.ListRemove{Index: index, Key: key, Value: decodeValue(m["value"])}, nil
	case change.KindListReplace.String():
		return change.ListReplace{
			Index:    index,
			Key:      key,
			OldValue: decodeValue(m["value"]),
			NewValue: decodeValue(m["new"]),
		}, nil
	default:
		return nil, fmt.Errorf("unknown change kind %v", m["kind"])
	}
}

func number(v any) float64 {
	f, _ := v.(float64)
	return f
}

// Report summarizes a run. It is written as report.json next to the log files.
type Report struct {
	Profile    string  `json:"profile"`
	Seed       int64   `json:"seed"`
	TreeID     string  `json:"tree_id"`
	Version    int64   `json:"version"`
	Stats      Stats   `json:"stats"`
	Ratio      float64 `json:"compaction_ratio"`
	LastCommit string  `json:"last_commit"`
}

// NewReport summarizes the state of a driver.
func NewReport(d *Driver) Report {
	r := Report{
		Profile: d.gen.Name,
		Seed:    d.gen.Seed,
		TreeID:  d.tree.ID().String(),
		Version: d.tree.Version(),
		Stats:   d.Stats,
	}
	if d.Stats.RawChanges > 0 {
		r.Ratio = float64(d.Stats.OptimizedChanges) / float64(d.Stats.RawChanges)
	}
	if d.Commit != nil {
		r.LastCommit = d.Commit.ID.String()
	}
	return r
}

// SaveReport writes the report into dir.
func SaveReport(dir string, r Report) error {
	bz, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(reportFilename(dir), bz, 0o644)
}

// LoadReport reads the report in dir.
func LoadReport(dir string) (Report, error) {
	bz, err := os.ReadFile(reportFilename(dir))
	if err != nil {
		return Report{}, fmt.Errorf("error reading report: %w", err)
	}
	var r Report
	if err := json.Unmarshal(bz, &r); err != nil {
		return Report{}, fmt.Errorf("error unmarshaling report: %w", err)
	}
	return r, nil
}
