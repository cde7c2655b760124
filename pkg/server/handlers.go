package server

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/intothevoid/edgeview/pkg/pipeline"
)

type FrameHandler struct {
	Frames *FrameStore
}

// Stream writes every new frame as one part of a multipart MJPEG response.
func (h *FrameHandler) Stream(c *gin.Context) {
	c.Header("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	c.Header("Cache-Control", "no-cache, no-store, must-revalidate")
	c.Header("Pragma", "no-cache")
	c.Header("Expires", "0")

	w := c.Writer
	flusher, ok := w.(http.Flusher)
	if !ok {
		c.String(http.StatusInternalServerError, "Streaming not supported")
		return
	}
	c.Status(http.StatusOK)
	flusher.Flush()

	var last uint64
	for {
		next := h.Frames.Next()
		if frame, seq, err := h.Frames.JPEG(); err == nil && seq != last {
			last = seq
			fmt.Fprintf(w, "--frame\r\n")
			fmt.Fprintf(w, "Content-Type: image/jpeg\r\n")
			fmt.Fprintf(w, "Content-Length: %d\r\n\r\n", len(frame))
			if _, err := w.Write(frame); err != nil {
				return
			}
			fmt.Fprintf(w, "\r\n")
			flusher.Flush()
		}

		select {
		case <-c.Request.Context().Done():
			return
		case <-next:
		}
	}
}

func (h *FrameHandler) Snapshot(c *gin.Context) {
	frame, _, err := h.Frames.JPEG()
	if err != nil {
		c.String(http.StatusServiceUnavailable, err.Error())
		return
	}
	c.Header("Cache-Control", "no-cache")
	c.Data(http.StatusOK, "image/jpeg", frame)
}

type APIHandler struct {
	Pipeline Pipeline
}

func (h *APIHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, h.Pipeline.Status())
}

type modeRequest struct {
	Processing *bool `json:"processing"`
}

type modeResponse struct {
	Processing bool   `json:"processing"`
	Mode       string `json:"mode"`
}

// Mode toggles processing. With a body it only toggles when the requested
// mode differs from the current one.
func (h *APIHandler) Mode(c *gin.Context) {
	var req modeRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	processing := h.Pipeline.Status().Processing
	if req.Processing == nil || *req.Processing != processing {
		processing = h.Pipeline.ToggleProcessing()
	}
	c.JSON(http.StatusOK, modeResponse{Processing: processing, Mode: pipeline.ModeLabel(processing)})
}
