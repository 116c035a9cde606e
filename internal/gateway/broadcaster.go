package gateway

import (
	"encoding/json"
	"strconv"
	"time"
)

// buildEnvelope wraps an event payload for the wire:
//
//	{"channel":"pub:alert:ACC001","data":{...},"ts":"...","seq":N}
//
// The envelope is assembled by hand; data is already valid JSON. The channel
// carries an account ID taken from trade files and is always quoted.
func buildEnvelope(channel string, data []byte, now time.Time, seq int64) []byte {
	quoted, _ := json.Marshal(channel)

	buf := make([]byte, 0, len(quoted)+len(data)+96)
	buf = append(buf, `{"channel":`...)
	buf = append(buf, quoted...)
	buf = append(buf, `,"data":`...)
	buf = append(buf, data...)
	buf = append(buf, `,"ts":"`...)
	buf = now.AppendFormat(buf, time.RFC3339Nano)
	buf = append(buf, `","seq":`...)
	buf = strconv.AppendInt(buf, seq, 10)
	buf = append(buf, '}')
	return buf
}
