// Package sequencer executes the ordered phases of one end-to-end run:
// building and checking the service, starting its backend emulator where the
// provider needs one, launching the service, and driving the test suites
// against it. Every run finishes with a cleanup phase that tears down
// children and scrubs on-disk state no matter how the earlier phases ended.
package sequencer
