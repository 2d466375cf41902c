// Package presence decides whether a device is plugged into one of the
// connector slots and forces the bus reset that starts a session.
//
// A connected device pulls one of its data lines high while the host is not
// driving. With every line configured as an input and no pull-ups, an empty
// slot reads SE0 and an occupied slot reads J. Detect is a pure function of
// one port sample; Detector applies it to a live bus.
package presence
