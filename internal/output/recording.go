package output

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/pierrec/lz4/v4"

	"gazemap-go/internal/types"
)

const (
	recordingMagic  = "GAZEREC1"
	recordHeaderLen = 12
	maxRecordSize   = 64 << 20
)

var ErrBadMagic = errors.New("not a gaze recording")

// Recorder appends acquired frames to a recording file. After the magic the
// file is one lz4 frame stream of records: 8 byte little-endian unix nanos,
// 4 byte payload length, CBOR encoded types.Frame.
type Recorder struct {
	mu   sync.Mutex
	path string
	f    *os.File
	zw   *lz4.Writer
	w    *bufio.Writer
	enc  cbor.EncMode
	n    uint64
}

func NewRecorder(outputDir string, prefix string) (*Recorder, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, err
	}
	filename := filepath.Join(outputDir, fmt.Sprintf("%s_%s.gzr", Timestamp(), prefix))
	return CreateRecording(filename)
}

func CreateRecording(filename string) (*Recorder, error) {
	opts := cbor.CoreDetEncOptions()
	opts.Time = cbor.TimeRFC3339Nano
	enc, err := opts.EncMode()
	if err != nil {
		return nil, err
	}
	f, err := os.Create(filename)
	if err != nil {
		return nil, err
	}
	if _, err := f.WriteString(recordingMagic); err != nil {
		_ = f.Close()
		return nil, err
	}
	zw := lz4.NewWriter(f)
	return &Recorder{
		path: filename,
		f:    f,
		zw:   zw,
		w:    bufio.NewWriterSize(zw, 256*1024),
		enc:  enc,
	}, nil
}

func (r *Recorder) Path() string { return r.path }

func (r *Recorder) Count() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.n
}

func (r *Recorder) Record(frame *types.Frame) error {
	payload, err := r.enc.Marshal(frame)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.w == nil {
		return fmt.Errorf("recorder is closed")
	}
	ts := frame.CapturedAt
	if ts.IsZero() {
		ts = time.Now()
	}
	var header [recordHeaderLen]byte
	binary.LittleEndian.PutUint64(header[:8], uint64(ts.UnixNano()))
	binary.LittleEndian.PutUint32(header[8:12], uint32(len(payload)))
	if _, err := r.w.Write(header[:]); err != nil {
		return err
	}
	if _, err := r.w.Write(payload); err != nil {
		return err
	}
	r.n++
	return nil
}

func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.w == nil {
		return nil
	}
	err := r.w.Flush()
	if zerr := r.zw.Close(); err == nil {
		err = zerr
	}
	if ferr := r.f.Close(); err == nil {
		err = ferr
	}
	r.w = nil
	return err
}

type Reader struct {
	f   *os.File
	r   *bufio.Reader
	dec cbor.DecMode
}

// OpenRecording opens a file written by Recorder.
func OpenRecording(path string) (*Reader, error) {
	dec, err := cbor.DecOptions{MaxByteStringLen: maxRecordSize}.DecMode()
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	magic := make([]byte, len(recordingMagic))
	if _, err := io.ReadFull(f, magic); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("read magic: %w", err)
	}
	if string(magic) != recordingMagic {
		_ = f.Close()
		return nil, ErrBadMagic
	}
	return &Reader{
		f:   f,
		r:   bufio.NewReader(lz4.NewReader(f)),
		dec: dec,
	}, nil
}

// Next returns the next recorded frame and the time it was recorded at. It
// returns io.EOF after the last record.
func (r *Reader) Next() (types.Frame, time.Time, error) {
	var header [recordHeaderLen]byte
	if _, err := io.ReadFull(r.r, header[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return types.Frame{}, time.Time{}, io.EOF
		}
		return types.Frame{}, time.Time{}, err
	}
	ts := time.Unix(0, int64(binary.LittleEndian.Uint64(header[:8])))
	size := binary.LittleEndian.Uint32(header[8:12])
	if size > maxRecordSize {
		return types.Frame{}, ts, fmt.Errorf("record of %d bytes exceeds limit", size)
	}
	payload := make([]byte, size)
	if _, err := io.ReadFull(r.r, payload); err != nil {
		return types.Frame{}, ts, fmt.Errorf("read record: %w", err)
	}
	var frame types.Frame
	if err := r.dec.Unmarshal(payload, &frame); err != nil {
		return types.Frame{}, ts, fmt.Errorf("decode record: %w", err)
	}
	return frame, ts, nil
}

func (r *Reader) Close() error {
	return r.f.Close()
}

func Timestamp() string {
	return time.Now().Format("20060102_150405")
}
