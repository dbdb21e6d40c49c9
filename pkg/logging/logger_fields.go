package logging

import (
	"time"
)

func String(key, value string) Field        { return Field{Key: key, Value: value} }
func Int(key string, value int) Field       { return Field{Key: key, Value: value} }
func Int64(key string, value int64) Field   { return Field{Key: key, Value: value} }
func Uint64(key string, value uint64) Field { return Field{Key: key, Value: value} }
func Bool(key string, value bool) Field     { return Field{Key: key, Value: value} }
func Any(key string, value any) Field       { return Field{Key: key, Value: value} }

func Duration(key string, value time.Duration) Field {
	return Field{Key: key, Value: value.String()}
}

func Error(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: nil}
	}
	return Field{Key: "error", Value: err.Error()}
}

// Domain fields used across the storage packages.

func Component(name string) Field { return String("component", name) }
func Operation(op string) Field   { return String("operation", op) }
func Path(p string) Field         { return String("path", p) }
func Latency(d time.Duration) Field {
	return Duration("latency", d)
}

func RowIndex(i int64) Field { return Int64("row", i) }
func Rows(n int64) Field     { return Int64("rows", n) }
func Fillers(n int64) Field  { return Int64("fillers", n) }

// Distance is the number of slots a shuffle had to move a filler.
func Distance(n int64) Field { return Int64("distance", n) }

func Direction(d string) Field { return String("direction", d) }
func Bucket(b int) Field       { return Int("bucket", b) }
func NodeID(id int32) Field    { return Int64("node_id", int64(id)) }
func Key(k string) Field       { return String("key", k) }
