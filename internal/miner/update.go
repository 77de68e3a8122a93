package miner

import (
	"fmt"
	"time"

	"github.com/xkilldash9x/minerctl/internal/events"
)

// UpdateData is the stats object the page passes to update().
type UpdateData struct {
	HashesPerSecond float64 `json:"hashesPerSecond"`
	TotalHashes     int64   `json:"totalHashes"`
	AcceptedHashes  int64   `json:"acceptedHashes"`
	Threads         int     `json:"threads"`
	AutoThreads     bool    `json:"autoThreads"`
	Running         bool    `json:"running"`
}

// Update is a decoded update event.
type Update struct {
	Data     UpdateData
	Interval time.Duration
}

// DecodeUpdate decodes the (data, interval) arguments of an update event.
// A missing interval decodes as zero.
func DecodeUpdate(ev events.Event) (Update, error) {
	var u Update
	if ev.Name != EventUpdate {
		return u, fmt.Errorf("event %q is not an update", ev.Name)
	}
	raw := ev.Arg(0)
	if raw == nil {
		return u, fmt.Errorf("update event has no data")
	}
	if err := jsonAPI.Unmarshal(raw, &u.Data); err != nil {
		return u, fmt.Errorf("invalid update data: %w", err)
	}
	if rawInterval := ev.Arg(1); rawInterval != nil && string(rawInterval) != "null" {
		var ms float64
		if err := jsonAPI.Unmarshal(rawInterval, &ms); err != nil {
			return u, fmt.Errorf("invalid update interval: %w", err)
		}
		u.Interval = time.Duration(ms * float64(time.Millisecond))
	}
	return u, nil
}
