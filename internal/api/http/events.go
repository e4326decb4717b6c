package httpapi

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"

	"github.com/i474232898/weather-slideshow/internal/slideshow"
)

const keepAliveInterval = 15 * time.Second

// events streams slideshow frames as Server-Sent Events. The current frame
// is sent immediately, then every published frame until the client goes
// away or the slideshow stops.
func (h *handlers) events(c *fiber.Ctx) error {
	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	id, frames, cancel := h.deps.Slideshow.Subscribe()
	current := h.deps.Slideshow.Frame()
	log.Printf("DEBUG: slideshow: subscriber %s connected", id)

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		defer func() {
			cancel()
			log.Printf("DEBUG: slideshow: subscriber %s disconnected", id)
		}()

		if current.Seq > 0 {
			if err := writeFrame(w, current); err != nil {
				return
			}
		}

		keepAlive := time.NewTicker(keepAliveInterval)
		defer keepAlive.Stop()

		for {
			select {
			case f, ok := <-frames:
				if !ok {
					return
				}
				if err := writeFrame(w, f); err != nil {
					return
				}
			case <-keepAlive.C:
				if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
					return
				}
				if err := w.Flush(); err != nil {
					return
				}
			}
		}
	}))
	return nil
}

func writeFrame(w *bufio.Writer, f slideshow.Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "id: %d\nevent: frame\ndata: %s\n\n", f.Seq, data); err != nil {
		return err
	}
	return w.Flush()
}
