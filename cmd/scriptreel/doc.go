// Command scriptreel turns a text script into an ordered list of generated video
// clips.
//
// The CLI segments scripts (segment), drives every segment through the external
// generation service (generate), regenerates failed segments of a stored run
// (retry), and inspects or exports the runs persisted in the workspace database
// (runs). Supporting commands manage the fingerprint cache (cache), the
// configuration file (config), and check that directories, binaries, and remote
// services are ready (doctor).
//
// Commands share a commandContext that loads configuration once, builds the
// logger, and opens the run store and cache on demand.
package main
