// Package transfer implements the sender and receiver driver loops that
// feed file bytes through a safestream.Stream once a peer connection has
// been hole-punched.
package transfer

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/pkg/errors"

	"github.com/tudbut/qft/internal/safestream"
)

// lengthPrefixDelay paces the 8-byte file-length header the same way the
// reference implementation's sender does, giving the peer time to observe
// it before the first data chunk follows.
const lengthPrefixDelay = 3000 * time.Microsecond

// progressInterval bounds how often the ProgressFunc callback fires. The
// console speed line is paced by speedWindow instead.
const progressInterval = 100 * time.Millisecond

// speedWindow is the number of chunks a speed-line sample averages over,
// matching the reference implementation's "every 20 chunks" cadence.
const speedWindow = 20

// ProgressFunc receives the fraction of the file transferred so far, in
// [0, 1]. It is called at most once per progressInterval.
type ProgressFunc func(fraction float32)

// Send opens file at path, optionally seeking to start, and streams its
// contents over stream in chunks of at most bitrate bytes, pacing each
// send by delay. A zero-byte file read ends the transfer, unless streamMode
// is true (QFT_STREAM), in which case the loop keeps polling the source.
func Send(stream *safestream.Stream, path string, start uint64, bitrate uint32, delay time.Duration, streamMode bool, onProgress ProgressFunc) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "open source file")
	}
	defer f.Close()

	if start != 0 {
		if _, err := f.Seek(int64(start), io.SeekStart); err != nil {
			return errors.Wrap(err, "seek to start offset")
		}
	}

	info, err := f.Stat()
	if err != nil {
		return errors.Wrap(err, "stat source file")
	}
	length := uint64(info.Size())

	var lenBuf [8]byte
	binary.BigEndian.PutUint64(lenBuf[:], length)
	if err := stream.Write(lenBuf[:], lengthPrefixDelay); err != nil {
		return errors.Wrap(err, "send file length")
	}
	logLine("Length: %d", length)

	buf := make([]byte, bitrate)
	var sent uint64
	var lastProgress time.Time
	lastSpeed := time.Now()

	for {
		n, err := f.Read(buf)
		if err != nil && err != io.EOF {
			return errors.Wrap(err, "read source file")
		}
		if n == 0 {
			if streamMode {
				continue
			}
			fmt.Println()
			fmt.Println("Transferred")
			return stream.End()
		}

		if err := stream.Write(buf[:n], delay); err != nil {
			return errors.Wrap(err, "send chunk")
		}
		sent += uint64(n)

		if sent%(uint64(bitrate)*speedWindow) < uint64(bitrate) {
			now := time.Now()
			elapsed := now.Sub(lastSpeed)
			if elapsed <= 0 {
				elapsed = time.Millisecond
			}
			kbps := uint64(bitrate) * speedWindow * uint64(time.Second) / uint64(elapsed) / 1000
			fmt.Printf("\r\x1b[KSent %d bytes; Speed: %d kb/s", sent, kbps)
			lastSpeed = now
		}

		if onProgress != nil && time.Since(lastProgress) > progressInterval {
			frac := float32(0)
			if length > 0 {
				frac = float32(sent+start) / float32(length)
			}
			onProgress(frac)
			lastProgress = time.Now()
		}
	}
}

// Receive opens (or creates) the destination file at path for writing
// without truncation, optionally seeking to start, and writes chunks read
// from stream until a zero-length read signals end-of-stream.
func Receive(stream *safestream.Stream, path string, start uint64, bitrate uint32, onProgress ProgressFunc) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE, 0o644)
	if err != nil {
		return errors.Wrap(err, "open destination file")
	}
	defer f.Close()

	if start != 0 {
		if _, err := f.Seek(int64(start), io.SeekStart); err != nil {
			return errors.Wrap(err, "seek to start offset")
		}
	}

	var lenBuf []byte
	for len(lenBuf) < 8 {
		chunk, err := stream.Read(8 - len(lenBuf))
		if err != nil {
			return errors.Wrap(err, "receive file length")
		}
		lenBuf = append(lenBuf, chunk...)
	}
	length := binary.BigEndian.Uint64(lenBuf)
	if err := f.Truncate(int64(length)); err != nil {
		// Best-effort preallocation; an error here doesn't stop the transfer.
		color.Yellow("unable to preallocate destination file: %v", err)
	}
	logLine("Length: %d", length)

	var received uint64
	var lastProgress time.Time
	lastSpeed := time.Now()

	for {
		chunk, err := stream.Read(int(bitrate))
		if err != nil {
			return errors.Wrap(err, "receive chunk")
		}
		if len(chunk) == 0 {
			fmt.Println()
			fmt.Println("Transferred")
			return nil
		}

		if _, err := f.Write(chunk); err != nil {
			return errors.Wrap(err, "write chunk")
		}
		if err := f.Sync(); err != nil {
			return errors.Wrap(err, "flush destination file")
		}
		received += uint64(len(chunk))

		if received%(uint64(bitrate)*speedWindow) < uint64(bitrate) {
			now := time.Now()
			elapsed := now.Sub(lastSpeed)
			if elapsed <= 0 {
				elapsed = time.Millisecond
			}
			kbps := uint64(bitrate) * speedWindow * uint64(time.Second) / uint64(elapsed) / 1000
			fmt.Printf("\r\x1b[KReceived %d bytes; Speed: %d kb/s", received, kbps)
			lastSpeed = now
		}

		if onProgress != nil && time.Since(lastProgress) > progressInterval {
			frac := float32(0)
			if length > 0 {
				frac = float32(received+start) / float32(length)
			}
			onProgress(frac)
			lastProgress = time.Now()
		}
	}
}

func logLine(format string, args ...interface{}) {
	fmt.Printf(format+"\n", args...)
}
