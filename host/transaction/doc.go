// Package transaction synthesizes the bus schedules for the two control
// requests the host issues and replays them together with Start-of-Frame
// keep-alives.
//
// Every schedule is built once, before the session starts, from the
// structured request fields. Running a transaction is then a matter of
// replaying symbols; nothing is encoded while the lines are driven.
//
// The device's answers are never decoded. After each packet that expects a
// response the host releases the lines and waits out a fixed window, as
// configured by Windows.
package transaction
