//go:build js && wasm

package browser

import (
	"syscall/js"

	"github.com/abihf/flowimg/capture"
	"github.com/pkg/errors"
)

func init() {
	capture.Register(Name, func() capture.Backend { return New(NewJSBridge()) })
}

// NewJSBridge returns a Bridge over navigator.mediaDevices.
func NewJSBridge() Bridge {
	return jsBridge{}
}

type jsBridge struct{}

// promise settles the JS promise p into a buffered channel. Callbacks run
// on the JS event loop and must never block, so the send cannot block
// either.
func promise(p js.Value) <-chan Settled[js.Value] {
	ch := make(chan Settled[js.Value], 1)

	var onResolve, onReject js.Func
	release := func() {
		onResolve.Release()
		onReject.Release()
	}
	onResolve = js.FuncOf(func(this js.Value, args []js.Value) any {
		v := js.Undefined()
		if len(args) > 0 {
			v = args[0]
		}
		ch <- Settled[js.Value]{Value: v}
		release()
		return nil
	})
	onReject = js.FuncOf(func(this js.Value, args []js.Value) any {
		err := errors.New("promise rejected")
		if len(args) > 0 {
			err = jsError(args[0])
		}
		ch <- Settled[js.Value]{Err: err}
		release()
		return nil
	})

	p.Call("then", onResolve, onReject)
	return ch
}

func jsError(v js.Value) error {
	if v.Type() == js.TypeObject && v.Get("message").Type() == js.TypeString {
		name := v.Get("name")
		if name.Type() == js.TypeString {
			return errors.Errorf("%s: %s", name.String(), v.Get("message").String())
		}
		return errors.New(v.Get("message").String())
	}
	return errors.New(v.String())
}

func (jsBridge) RequestCamera(c Constraints) <-chan Settled[Stream] {
	out := make(chan Settled[Stream], 1)
	go func() {
		s, err := openCamera(c)
		if err != nil {
			out <- Settled[Stream]{Err: err}
			return
		}
		out <- Settled[Stream]{Value: s}
	}()
	return out
}

func openCamera(c Constraints) (*jsStream, error) {
	media := js.Global().Get("navigator").Get("mediaDevices")
	if media.IsUndefined() {
		return nil, errors.New("navigator.mediaDevices is not available")
	}

	video := map[string]any{
		"width":  map[string]any{"ideal": c.Width},
		"height": map[string]any{"ideal": c.Height},
	}
	id, err := videoDeviceID(media, c.DeviceIndex)
	if err != nil {
		return nil, err
	}
	if id != "" {
		video["deviceId"] = map[string]any{"exact": id}
	}

	r := <-promise(media.Call("getUserMedia", map[string]any{"video": video, "audio": false}))
	if r.Err != nil {
		return nil, errors.Wrap(r.Err, "getUserMedia")
	}
	ms := r.Value

	doc := js.Global().Get("document")
	el := doc.Call("createElement", "video")
	el.Set("muted", true)
	el.Set("playsInline", true)
	el.Set("srcObject", ms)
	if r := <-promise(el.Call("play")); r.Err != nil {
		stopTracks(ms)
		return nil, errors.Wrap(r.Err, "video play")
	}

	canvas := doc.Call("createElement", "canvas")
	ctx := canvas.Call("getContext", "2d", map[string]any{"willReadFrequently": true})
	if ctx.IsNull() {
		stopTracks(ms)
		return nil, errors.New("canvas 2d context unavailable")
	}
	return &jsStream{media: ms, video: el, canvas: canvas, ctx: ctx}, nil
}

// videoDeviceID maps an index to a videoinput deviceId. Index 0 falls back
// to the browser's default camera when labels are still hidden.
func videoDeviceID(media js.Value, index int) (string, error) {
	r := <-promise(media.Call("enumerateDevices"))
	if r.Err != nil {
		return "", errors.Wrap(r.Err, "enumerateDevices")
	}

	var ids []string
	list := r.Value
	for i := 0; i < list.Length(); i++ {
		d := list.Index(i)
		if d.Get("kind").String() == "videoinput" {
			ids = append(ids, d.Get("deviceId").String())
		}
	}
	if index < len(ids) {
		return ids[index], nil
	}
	if index == 0 {
		return "", nil
	}
	return "", errors.Errorf("no video input with index %d (found %d)", index, len(ids))
}

func stopTracks(ms js.Value) {
	tracks := ms.Call("getTracks")
	for i := 0; i < tracks.Length(); i++ {
		tracks.Index(i).Call("stop")
	}
}

type jsStream struct {
	media  js.Value
	video  js.Value
	canvas js.Value
	ctx    js.Value
}

func (s *jsStream) ended() bool {
	tracks := s.media.Call("getVideoTracks")
	if tracks.Length() == 0 {
		return true
	}
	return tracks.Index(0).Get("readyState").String() == "ended"
}

func (s *jsStream) NextFrame() <-chan Settled[Frame] {
	out := make(chan Settled[Frame], 1)
	if s.ended() {
		out <- Settled[Frame]{Err: ErrTrackEnded}
		return out
	}

	var cb js.Func
	cb = js.FuncOf(func(this js.Value, args []js.Value) any {
		cb.Release()
		f, err := s.grab()
		out <- Settled[Frame]{Value: f, Err: err}
		return nil
	})

	if s.video.Get("requestVideoFrameCallback").Type() == js.TypeFunction {
		s.video.Call("requestVideoFrameCallback", cb)
	} else {
		js.Global().Call("requestAnimationFrame", cb)
	}
	return out
}

// grab draws the current video frame and copies the canvas pixels.
func (s *jsStream) grab() (Frame, error) {
	w := s.video.Get("videoWidth").Int()
	h := s.video.Get("videoHeight").Int()
	if w == 0 || h == 0 {
		return Frame{}, errors.New("video has no dimensions yet")
	}
	if s.canvas.Get("width").Int() != w || s.canvas.Get("height").Int() != h {
		s.canvas.Set("width", w)
		s.canvas.Set("height", h)
	}

	s.ctx.Call("drawImage", s.video, 0, 0, w, h)
	data := s.ctx.Call("getImageData", 0, 0, w, h).Get("data")
	n := data.Get("length").Int()
	u8 := js.Global().Get("Uint8Array").New(data.Get("buffer"), data.Get("byteOffset"), n)

	buf := make([]byte, n)
	js.CopyBytesToGo(buf, u8)
	return Frame{Width: w, Height: h, RGBA: buf}, nil
}

func (s *jsStream) Stop() error {
	stopTracks(s.media)
	s.video.Call("pause")
	s.video.Set("srcObject", js.Null())
	return nil
}
