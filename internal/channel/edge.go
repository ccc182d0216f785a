package channel

import (
	"github.com/sweeney/button-mirror/internal/diag"
	"github.com/sweeney/button-mirror/internal/gpio"
)

// edgeHandler returns the callback for one channel. It runs in driver event
// context, so it does nothing but hand the timestamp to the recorder. It
// touches no state the mirror loop reads.
func edgeHandler(id int, name string, rec EdgeRecorder) gpio.EdgeHandler {
	return func(e gpio.Edge) {
		rec.Edge(diag.Edge{Channel: id, Name: name, At: e.Timestamp})
	}
}
