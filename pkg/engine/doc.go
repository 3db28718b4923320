// Package engine implements the document execution driver: loading a
// document source through the format registry, discovering its marked entry
// points, coordinating cooperative execution of the entry function and its
// spawned tasks on a single logical thread, and committing the ordered
// output once execution settles.
//
// The driver is organized as a pipeline of stages (resolve, load, discover,
// execute, commit). Each stage reports failures through DriverError so
// callers can react to the failure class without parsing messages.
package engine
