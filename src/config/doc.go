// Package config defines the configuration of a forkchain node or simulation.
//
// Regardless of how forkchain is started, as a single node process or as an
// in-process simulation, it uses the Config object defined in this package to
// store and forward configuration options. Options come from command line
// flags, bound through viper, and from two optional JSON files in ConfigDir:
//
//  <consensus>_config.json // consensus, ledger and simulation parameters
//  network_config.json     // scenario timings, merged into the "network" section
//
// When LogToFile is set, every log line is mirrored to
// <datadir>/logs/node_<id>.log.
package config
