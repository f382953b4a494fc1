// Package zstd pipes trace files through an external zstd process rather
// than linking a Go compression library, the same "shell out to the
// system binary" approach the teacher used for its own connection
// archives. daemon/trace uses NewWriter to compress each rotated trace
// file as it's written; NewReader is the matching decompression path for
// reading one back.
package zstd

import (
	"io"
	"log"
	"os"
	"os/exec"
	"sync"

	"github.com/m-lab/go/rtx"
)

// Variables to allow whitebox mocking for testing error conditions.
var (
	osPipe      = os.Pipe
	zstdCommand = "zstd"
)

// NewReader opens a compressed trace file and returns a reader for its
// decompressed contents, piped through an external zstd process. This
// function is only expected to be used for tests, so all errors are
// fatal.
//
// Callers should read from the returned pipe and close it when done.
func NewReader(filename string) io.ReadCloser {
	pipeR, pipeW, err := osPipe()
	rtx.Must(err, "Could not call os.Pipe. Something is very wrong.")

	cmd := exec.Command(zstdCommand, "-d", "-c", filename)
	cmd.Stdout = pipeW

	f, err := os.Open(filename)
	rtx.Must(err, "Could not open trace file %q for zstd", filename)
	f.Close()

	go func() {
		rtx.Must(cmd.Run(), "zstd decompress error for trace file %q", filename)
		pipeW.Close()
	}()

	return pipeR
}

type waitingWriteCloser struct {
	io.WriteCloser
	wg *sync.WaitGroup
}

func (w waitingWriteCloser) Close() error {
	err := w.WriteCloser.Close()
	if err != nil {
		return err
	}
	w.wg.Wait()
	return nil
}

// NewWriter creates filename and returns a WriteCloser that pipes every
// write through an external zstd process compressing into it. Close
// waits for zstd to finish flushing to disk before returning, so a
// rotated-away trace file is guaranteed complete on disk once Close
// returns (see daemon/trace.Recorder.rotateLocked).
func NewWriter(filename string) (io.WriteCloser, error) {
	var wg sync.WaitGroup
	wg.Add(1)
	pipeR, pipeW, err := osPipe()
	if err != nil {
		return nil, err
	}
	f, err := os.Create(filename)
	if err != nil {
		return nil, err
	}
	cmd := exec.Command(zstdCommand)
	cmd.Stdin = pipeR
	cmd.Stdout = f

	go func() {
		err := cmd.Run()
		if err != nil {
			log.Println("zstd compress error for trace file", filename, err)
		}
		pipeR.Close()
		wg.Done()
	}()

	return waitingWriteCloser{pipeW, &wg}, nil
}
