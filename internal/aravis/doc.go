// Package aravis drives GenICam cameras (GigE Vision, USB3 Vision) through
// the Aravis library. It is only built with the "aravis" build tag, and
// requires aravis-0.8 and its pkg-config file:
//
//	go build -tags aravis ./cmd/multicamd
//
// Sources are named "aravis:" (every device found) or "aravis:<device id>",
// e.g. "aravis:Lucid Vision Labs-TRI050S-Q-194100034".
package aravis
