// Package bridge reads classification results streamed by an external
// pose classifier process.
//
// Wire format: every message is a 4-byte big-endian length followed by a
// MessagePack encoded Result.
package bridge

import (
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/okian/posemon/internal/domain/model"
	"github.com/okian/posemon/internal/domain/types"
)

// DefaultMaxFrameSize bounds a single message body.
const DefaultMaxFrameSize = 1 << 20

const lengthPrefixSize = 4

// LabelScore is one classifier output.
type LabelScore struct {
	Label string  `msgpack:"label"`
	Score float64 `msgpack:"score"`
}

// Result is the classification of one camera frame.
type Result struct {
	EventID     string       `msgpack:"event_id,omitempty"`
	SessionID   string       `msgpack:"session_id"`
	Seq         uint64       `msgpack:"seq"`
	PersonScore *float64     `msgpack:"person_score"`
	Labels      []LabelScore `msgpack:"labels"`
	TSMillis    int64        `msgpack:"ts_ms"`
}

// ToFrameEvent validates r and converts it. defaultSession is used when
// the classifier does not name a session.
func (r *Result) ToFrameEvent(defaultSession string) (model.FrameEvent, error) {
	req := types.FrameRequest{
		EventID:     r.EventID,
		SessionID:   r.SessionID,
		Seq:         r.Seq,
		PersonScore: r.PersonScore,
	}
	if req.SessionID == "" {
		req.SessionID = defaultSession
	}
	if r.TSMillis > 0 {
		req.TS = time.UnixMilli(r.TSMillis)
	}
	for _, l := range r.Labels {
		req.Labels = append(req.Labels, types.LabelScore{Label: l.Label, Score: l.Score})
	}
	return req.ToFrameEvent("")
}

// Encoder writes length-prefixed results.
type Encoder struct {
	w io.Writer
}

// NewEncoder returns an Encoder writing to w.
func NewEncoder(w io.Writer) *Encoder { return &Encoder{w: w} }

// Encode writes one result.
func (e *Encoder) Encode(r *Result) error {
	body, err := msgpack.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	buf := make([]byte, lengthPrefixSize+len(body))
	binary.BigEndian.PutUint32(buf, uint32(len(body)))
	copy(buf[lengthPrefixSize:], body)
	if _, err := e.w.Write(buf); err != nil {
		return fmt.Errorf("write result: %w", err)
	}
	return nil
}

// Decoder reads length-prefixed results.
type Decoder struct {
	r       io.Reader
	maxSize uint32
	header  [lengthPrefixSize]byte
}

// NewDecoder returns a Decoder reading from r. maxSize <= 0 selects
// DefaultMaxFrameSize.
func NewDecoder(r io.Reader, maxSize int) *Decoder {
	if maxSize <= 0 {
		maxSize = DefaultMaxFrameSize
	}
	return &Decoder{r: r, maxSize: uint32(maxSize)}
}

// DecodeError is a well framed message whose body could not be decoded.
// The stream is still usable after it.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string { return "decode result: " + e.Err.Error() }

func (e *DecodeError) Unwrap() error { return e.Err }

// Decode reads the next result. It returns io.EOF at a clean end of stream,
// io.ErrUnexpectedEOF for a truncated message and *DecodeError for a body
// that is not a valid Result.
func (d *Decoder) Decode() (Result, error) {
	if _, err := io.ReadFull(d.r, d.header[:]); err != nil {
		return Result{}, err
	}
	n := binary.BigEndian.Uint32(d.header[:])
	if n > d.maxSize {
		return Result{}, fmt.Errorf("%w: %d > %d bytes", ErrFrameTooLarge, n, d.maxSize)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(d.r, body); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return Result{}, err
	}
	var r Result
	if err := msgpack.Unmarshal(body, &r); err != nil {
		return Result{}, &DecodeError{Err: err}
	}
	return r, nil
}
