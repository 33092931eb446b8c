package wal

import (
	"bufio"
	"encoding/binary"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/golang/snappy"

	"github.com/bft-core/engine/types"
)

// headerMagic tags a valid segment file, guarding against replaying a
// truncated or foreign file as if it had a valid header.
const headerMagic uint32 = 0x42465457 // "BFTW"

const headerSize = 4 + 8 // magic + height

// WAL is a per-height segment: a header naming the height plus a sequence
// of framed, checksummed, snappy-compressed entries (spec.md §4.6
// "Layout"). It is not safe for concurrent use; the kernel is
// single-threaded so this matches the rest of C4/C5's contract.
type WAL struct {
	dir    string
	log    log.Logger
	height types.Height

	file  *os.File
	w     *bufio.Writer
	index *Index

	// buffered holds entries appended since the last flush, for
	// WalFlush's "all previously appended entries are durable" contract
	// without re-reading from disk.
	buffered int
}

// Open opens (or creates) the segment directory dir and reports whether a
// prior WAL exists, and if so, what height its header names — the kernel
// uses this to decide fresh-start vs. recovery (spec.md §4.5 "On
// StartHeight... inspecting the WAL header").
func Open(dir string, logger log.Logger) (*WAL, types.Height, bool, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, 0, false, err
	}
	idx, err := OpenIndex(filepath.Join(dir, "index"))
	if err != nil {
		return nil, 0, false, err
	}
	w := &WAL{dir: dir, log: logger, index: idx}

	path := filepath.Join(dir, "segment")
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, 0, false, err
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, false, err
	}
	if fi.Size() < headerSize {
		// Fresh segment: no header yet, nothing to recover.
		w.file = f
		w.w = bufio.NewWriter(f)
		return w, 0, false, nil
	}

	hdr := make([]byte, headerSize)
	if _, err := io.ReadFull(f, hdr); err != nil {
		f.Close()
		return nil, 0, false, err
	}
	if binary.BigEndian.Uint32(hdr[:4]) != headerMagic {
		f.Close()
		return nil, 0, false, nil
	}
	height := types.Height(binary.BigEndian.Uint64(hdr[4:]))
	w.file = f
	w.w = bufio.NewWriter(f)
	w.height = height
	return w, height, true, nil
}

// Reset truncates the segment and writes a fresh header naming h, per
// spec.md §4.6 "Reset / checkpoint": header updated to h, old contents
// truncated. The file is truncated to zero before the new header is written
// and synced, so a crash in between leaves an empty file, which Open treats
// as a fresh start; a crash afterwards leaves the new header with an empty
// body.
func (w *WAL) Reset(h types.Height) error {
	if err := w.file.Truncate(0); err != nil {
		return err
	}
	if _, err := w.file.Seek(0, io.SeekStart); err != nil {
		return err
	}
	hdr := make([]byte, headerSize)
	binary.BigEndian.PutUint32(hdr[:4], headerMagic)
	binary.BigEndian.PutUint64(hdr[4:], uint64(h))
	if _, err := w.file.Write(hdr); err != nil {
		return err
	}
	if err := w.file.Sync(); err != nil {
		return err
	}
	w.w = bufio.NewWriter(w.file)
	w.height = h
	w.buffered = 0
	return w.index.Reset(h)
}

// Append buffers entry for write; it does not guarantee durability until
// Flush (spec.md §4.6 "WalAppend is non-blocking").
func (w *WAL) Append(entry *Entry) error {
	raw, err := rlp.EncodeToBytes(entry)
	if err != nil {
		return err
	}
	compressed := snappy.Encode(nil, raw)

	offset, err := w.file.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}
	offset += int64(w.w.Buffered())

	frameLen := make([]byte, 4)
	binary.BigEndian.PutUint32(frameLen, uint32(len(compressed)))
	sum := crc32.ChecksumIEEE(compressed)
	frameCRC := make([]byte, 4)
	binary.BigEndian.PutUint32(frameCRC, sum)

	if _, err := w.w.Write(frameLen); err != nil {
		return err
	}
	if _, err := w.w.Write(frameCRC); err != nil {
		return err
	}
	if _, err := w.w.Write(compressed); err != nil {
		return err
	}
	w.buffered++
	return w.index.Record(entry.Height, offset)
}

// Flush blocks until every entry appended so far is durable on disk
// (spec.md §4.6 "WalFlush is blocking"). The kernel calls this before every
// externalizing effect (§4.4's "Rule of externalization").
func (w *WAL) Flush() error {
	if err := w.w.Flush(); err != nil {
		return err
	}
	if err := w.file.Sync(); err != nil {
		return err
	}
	w.buffered = 0
	return nil
}

// Replay re-reads every entry from the current header position,
// truncating at the first undecodable entry rather than failing outright
// (spec.md §4.6 "replay truncates at the first undecodable entry and
// preserves the successfully-decoded prefix"), and invokes fn for each
// successfully decoded entry in order.
func (w *WAL) Replay(fn func(*Entry) error) error {
	if _, err := w.file.Seek(headerSize, io.SeekStart); err != nil {
		return err
	}
	r := bufio.NewReader(w.file)
	good := int64(headerSize) // end of the last fully decoded entry
	for {
		lenBuf := make([]byte, 4)
		if _, err := io.ReadFull(r, lenBuf); err != nil {
			break // EOF or a torn length prefix: stop, preserve the prefix already processed
		}
		crcBuf := make([]byte, 4)
		if _, err := io.ReadFull(r, crcBuf); err != nil {
			break
		}
		n := binary.BigEndian.Uint32(lenBuf)
		compressed := make([]byte, n)
		if _, err := io.ReadFull(r, compressed); err != nil {
			break
		}
		if crc32.ChecksumIEEE(compressed) != binary.BigEndian.Uint32(crcBuf) {
			w.log.Warn("wal: checksum mismatch, truncating replay at this entry")
			break
		}
		raw, err := snappy.Decode(nil, compressed)
		if err != nil {
			w.log.Warn("wal: corrupt snappy frame, truncating replay at this entry")
			break
		}
		var entry Entry
		if err := rlp.DecodeBytes(raw, &entry); err != nil {
			w.log.Warn("wal: undecodable entry, truncating replay at this entry")
			break
		}
		if err := fn(&entry); err != nil {
			return err
		}
		good += int64(8 + len(compressed))
	}
	// Re-position the write cursor right after the valid prefix,
	// discarding any torn tail the loop above stopped short of.
	if err := w.file.Truncate(good); err != nil {
		return err
	}
	if _, err := w.file.Seek(good, io.SeekStart); err != nil {
		return err
	}
	w.w = bufio.NewWriter(w.file)
	return nil
}

func (w *WAL) Close() error {
	if err := w.Flush(); err != nil {
		return err
	}
	if err := w.index.Close(); err != nil {
		return err
	}
	return w.file.Close()
}
