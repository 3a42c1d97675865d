package gcs

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	. "github.com/smartystreets/goconvey/convey"
)

// recordingWriter 模拟 GCS Writer：Close 时 ctx 未取消才算提交
type recordingWriter struct {
	ctx       context.Context
	buf       bytes.Buffer
	committed bool
}

func (w *recordingWriter) Write(p []byte) (int, error) {
	return w.buf.Write(p)
}

func (w *recordingWriter) Close() error {
	if err := w.ctx.Err(); err != nil {
		return err
	}
	w.committed = true
	return nil
}

func TestWriteObject(t *testing.T) {
	Convey("写入对象", t, func() {
		var w *recordingWriter
		open := func(ctx context.Context) io.WriteCloser {
			w = &recordingWriter{ctx: ctx}
			return w
		}

		Convey("成功时提交", func() {
			So(writeObject(context.Background(), open, strings.NewReader("hello")), ShouldBeNil)
			So(w.committed, ShouldBeTrue)
			So(w.buf.String(), ShouldEqual, "hello")
		})

		Convey("读取失败时取消写入，不提交部分内容", func() {
			boom := errors.New("boom")
			err := writeObject(context.Background(), open, iotest.ErrReader(boom))
			So(errors.Is(err, boom), ShouldBeTrue)
			So(w.committed, ShouldBeFalse)
		})
	})
}
