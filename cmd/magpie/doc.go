// Command magpie is the command line client for the magpie daemon.
package main
