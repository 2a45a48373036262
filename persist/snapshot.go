// Package persist saves simulation state to compressed snapshot files and
// run history to SQLite.
package persist

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/pthm-cable/homeostasis/sim"
)

// FormatVersion is the snapshot file layout version.
const FormatVersion = 1

// ErrFormat is returned for files that are not snapshots of this version.
var ErrFormat = errors.New("persist: unsupported snapshot format")

// Header is the JSON line at the start of every snapshot file. It can be
// read without decoding the state.
type Header struct {
	Version int       `json:"version"`
	RunID   string    `json:"run_id"`
	Seed    int64     `json:"seed"`
	Tick    int64     `json:"tick"`
	SavedAt time.Time `json:"saved_at"`
}

// WriteSnapshot writes st to path as a zstd stream holding a header line
// followed by the gob-encoded state. The file is replaced atomically.
func WriteSnapshot(path, runID string, st sim.State) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			f.Close()
			os.Remove(tmp)
		}
	}()

	if err = encodeSnapshot(f, runID, &st); err != nil {
		return err
	}
	if err = f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// encodeSnapshot writes the compressed header line and state to w.
func encodeSnapshot(w io.Writer, runID string, st *sim.State) error {
	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	defer enc.Close()
	bw := bufio.NewWriterSize(enc, 256*1024)

	hb, err := json.Marshal(Header{
		Version: FormatVersion,
		RunID:   runID,
		Seed:    st.Seed,
		Tick:    st.Tick,
		SavedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal header: %w", err)
	}
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}
	if err := gob.NewEncoder(bw).Encode(st); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	return enc.Close()
}

// ReadSnapshot reads a file written by WriteSnapshot.
func ReadSnapshot(path string) (Header, sim.State, error) {
	var (
		h  Header
		st sim.State
	)
	f, err := os.Open(path)
	if err != nil {
		return h, st, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, st, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)
	if h, err = readHeader(br); err != nil {
		return h, st, err
	}
	if err := gob.NewDecoder(br).Decode(&st); err != nil {
		return h, st, fmt.Errorf("gob decode: %w", err)
	}
	return h, st, nil
}

// ReadHeader reads only the header line of a snapshot file.
func ReadHeader(path string) (Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return Header{}, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return Header{}, err
	}
	defer dec.Close()
	return readHeader(bufio.NewReader(dec))
}

func readHeader(br *bufio.Reader) (Header, error) {
	var h Header
	line, err := br.ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("%w: header: %v", ErrFormat, err)
	}
	if h.Version != FormatVersion {
		return h, fmt.Errorf("%w: version %d", ErrFormat, h.Version)
	}
	return h, nil
}
