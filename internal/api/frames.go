package api

import (
	"bytes"
	"context"
	"fmt"
	"image/jpeg"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/gstgraph/internal/api/models"
)

var outputContentTypes = map[string]string{
	"mp4":  "video/mp4",
	"h264": "video/h264",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"png":  "image/png",
}

func (s *Server) registerFrameRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-session-frame",
		Method:      http.MethodGet,
		Path:        "/api/sessions/{id}/frame",
		Summary:     "Get Preview Frame",
		Description: "Wait for the next decoded preview frame and return it as JPEG. 504 means no frame arrived within the timeout",
		Tags:        []string{"frames"},
		Errors:      []int{404, 409, 504},
	}, func(ctx context.Context, input *models.FrameInput) (*models.FrameResponse, error) {
		c, err := s.registry.Get(input.ID)
		if err != nil {
			return nil, s.mapSessionError(err)
		}
		if len(c.Graph().PreviewSinks()) == 0 {
			return nil, huma.Error409Conflict("session has no preview branch")
		}

		timeout := s.options.FrameTimeout
		if input.TimeoutMs > 0 {
			timeout = time.Duration(input.TimeoutMs) * time.Millisecond
		}
		frame, err := c.FetchFrame(ctx, timeout)
		if err != nil {
			return nil, s.mapSessionError(err)
		}

		quality := s.options.JPEGQuality
		if input.Quality > 0 {
			quality = input.Quality
		}
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, frame.Image, &jpeg.Options{Quality: quality}); err != nil {
			return nil, huma.Error500InternalServerError("failed to encode frame", err)
		}

		return &models.FrameResponse{
			ContentType: "image/jpeg",
			Seq:         strconv.FormatUint(frame.Seq, 10),
			Size:        fmt.Sprintf("%dx%d", frame.Image.Width, frame.Image.Height),
			Body:        buf.Bytes(),
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-session-output",
		Method:      http.MethodGet,
		Path:        "/api/sessions/{id}/output",
		Summary:     "Download Output",
		Description: "Download the file persisted by the last completed run",
		Tags:        []string{"frames"},
		Errors:      []int{404},
	}, func(ctx context.Context, input *models.SessionPathInput) (*models.OutputResponse, error) {
		c, err := s.registry.Get(input.ID)
		if err != nil {
			return nil, s.mapSessionError(err)
		}
		if !c.IsOutputAvailable() {
			return nil, huma.Error404NotFound("no persisted output available")
		}

		path := c.OutputPath()
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, huma.Error404NotFound("persisted output missing on disk", err)
		}
		contentType := outputContentTypes[strings.TrimPrefix(filepath.Ext(path), ".")]
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		return &models.OutputResponse{
			ContentType:        contentType,
			ContentDisposition: fmt.Sprintf("attachment; filename=%q", filepath.Base(path)),
			Body:               data,
		}, nil
	})
}

