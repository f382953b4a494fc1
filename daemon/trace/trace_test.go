package trace

import (
	"bytes"
	"io"
	"testing"
	"time"

	"github.com/touchbridge/touchbridge/frame"
)

type nopWriteCloser struct {
	*bytes.Buffer
}

func (nopWriteCloser) Close() error { return nil }

func newTestRecorder(dir string) (*Recorder, *bytes.Buffer) {
	var buf bytes.Buffer
	r := &Recorder{
		Dir: dir,
		newFile: func(string) (io.WriteCloser, error) {
			return nopWriteCloser{&buf}, nil
		},
		now: time.Now,
	}
	return r, &buf
}

func TestRecordWritesFixedWidthRecords(t *testing.T) {
	r, buf := newTestRecorder(t.TempDir())
	f := frame.Frame{ID: 0xDEADBEEF, Len: 3, Data: [8]byte{1, 2, 3}}
	r.Record(f)
	r.Record(f)

	if buf.Len() != 2*21 {
		t.Fatalf("want 2*21=42 bytes, got %d", buf.Len())
	}
	if r.Count() != 2 {
		t.Fatalf("want count 2, got %d", r.Count())
	}
}

func TestRecordRotatesAfterInterval(t *testing.T) {
	var opened int
	fakeNow := time.Unix(0, 0)
	r := &Recorder{
		Dir: t.TempDir(),
		newFile: func(string) (io.WriteCloser, error) {
			opened++
			return nopWriteCloser{&bytes.Buffer{}}, nil
		},
		now: func() time.Time { return fakeNow },
	}

	r.Record(frame.Frame{})
	if opened != 1 {
		t.Fatalf("want 1 file opened after first record, got %d", opened)
	}

	fakeNow = fakeNow.Add(RotateInterval + time.Second)
	r.Record(frame.Frame{})
	if opened != 2 {
		t.Fatalf("want a rotation to open a second file, got %d opens", opened)
	}
}

func TestCloseIsIdempotentWhenNothingWasOpened(t *testing.T) {
	r := New(t.TempDir())
	for i := 0; i < 2; i++ {
		if err := r.Close(); err != nil {
			t.Fatalf("Close #%d on an unused recorder: %v", i+1, err)
		}
	}
}
