//go:build gocv
// +build gocv

package display

import (
	"image"
	"time"

	"gocv.io/x/gocv"
)

func init() {
	Register("window", openWindow)
}

// Window is an OpenCV HighGUI window.
type Window struct {
	win *gocv.Window
}

func openWindow(title string) (Display, error) {
	return &Window{win: gocv.NewWindow(title)}, nil
}

func (w *Window) Show(img image.Image) error {
	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return err
	}
	defer mat.Close()
	w.win.IMShow(mat)
	return nil
}

// Poll waits for a key, like cv2.waitKey.
func (w *Window) Poll(wait time.Duration) Command {
	ms := int(wait / time.Millisecond)
	if ms < 1 {
		ms = 1
	}
	return KeyCommand(w.win.WaitKey(ms))
}

func (w *Window) Close() error {
	return w.win.Close()
}
