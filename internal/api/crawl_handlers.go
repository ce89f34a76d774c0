package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/review-trends/internal/crawler"
	"github.com/JakeFAU/review-trends/internal/discovery"
)

// CrawlRequest is the JSON body accepted by POST /v1/crawls.
type CrawlRequest struct {
	Platform string   `json:"platform"`
	Targets  []string `json:"targets"`
	City     string   `json:"city"`
	State    string   `json:"state"`
	RunID    string   `json:"run_id"`
}

type crawlAccepted struct {
	RunID  string `json:"run_id"`
	Status string `json:"status"`
}

type crawlFailed struct {
	Success bool   `json:"success"`
	RunID   string `json:"run_id"`
	Error   string `json:"error"`
}

// errDiscovery wraps failures fetching a remote listing page.
var errDiscovery = errors.New("listing discovery failed")

func (s *Server) triggerCrawl(w http.ResponseWriter, r *http.Request) {
	in, upload, err := s.decodeCrawlRequest(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	platform, err := crawler.ParsePlatform(in.Platform)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	targets, err := s.resolveTargets(r.Context(), platform, in, upload)
	if err != nil {
		switch {
		case errors.Is(err, errDiscovery):
			s.logger.Warn("listing discovery failed", zap.String("platform", string(platform)), zap.Error(err))
			writeError(w, http.StatusBadGateway, err.Error())
		default:
			writeError(w, http.StatusBadRequest, err.Error())
		}
		return
	}

	runID := strings.TrimSpace(in.RunID)
	if runID == "" {
		if runID, err = s.newRunID(); err != nil {
			s.logger.Error("run id generation failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to allocate run id")
			return
		}
	}
	req := crawler.Request{
		RunID:     runID,
		Platform:  platform,
		Targets:   targets,
		Submitted: s.now(),
	}

	if async, _ := strconv.ParseBool(r.URL.Query().Get("async")); async {
		s.enqueueCrawl(w, r, req)
		return
	}
	s.runCrawl(w, r, req)
}

func (s *Server) runCrawl(w http.ResponseWriter, r *http.Request, req crawler.Request) {
	if s.deps.Runner == nil {
		writeError(w, http.StatusServiceUnavailable, "crawl runner unavailable")
		return
	}
	result, err := s.deps.Runner.Run(r.Context(), req)
	if err != nil {
		var sessErr crawler.SessionError
		switch {
		case errors.As(err, &sessErr):
			s.logger.Error("crawl session failed", zap.String("run_id", req.RunID), zap.Error(err))
			writeJSON(w, http.StatusBadGateway, crawlFailed{RunID: req.RunID, Error: err.Error()})
		case errors.Is(err, crawler.ErrInvalidRequest):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			s.logger.Error("crawl run failed", zap.String("run_id", req.RunID), zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, crawlFailed{RunID: req.RunID, Error: err.Error()})
		}
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) enqueueCrawl(w http.ResponseWriter, r *http.Request, req crawler.Request) {
	if s.deps.Queue == nil {
		writeError(w, http.StatusServiceUnavailable, "async crawls unavailable")
		return
	}
	if s.deps.Tracker != nil {
		s.deps.Tracker.Ensure(req.RunID)
	}
	if err := s.deps.Queue.Enqueue(r.Context(), req); err != nil {
		s.logger.Error("crawl enqueue failed", zap.String("run_id", req.RunID), zap.Error(err))
		if errors.Is(err, crawler.ErrQueueClosed) {
			writeError(w, http.StatusServiceUnavailable, "crawl queue closed")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to enqueue crawl")
		return
	}
	writeJSON(w, http.StatusAccepted, crawlAccepted{RunID: req.RunID, Status: "queued"})
}

// decodeCrawlRequest accepts a JSON body or a multipart form whose "file"
// part is a saved listing page.
func (s *Server) decodeCrawlRequest(w http.ResponseWriter, r *http.Request) (CrawlRequest, []byte, error) {
	var in CrawlRequest
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		limit := int64(s.cfg.Server.MaxUploadMB) << 20
		if limit <= 0 {
			limit = 10 << 20
		}
		r.Body = http.MaxBytesReader(w, r.Body, limit)
		if err := r.ParseMultipartForm(limit); err != nil {
			return in, nil, fmt.Errorf("invalid multipart body: %w", err)
		}
		in.Platform = r.FormValue("platform")
		in.City = r.FormValue("city")
		in.State = r.FormValue("state")
		in.RunID = r.FormValue("run_id")
		in.Targets = r.Form["targets"]
		file, _, err := r.FormFile("file")
		if err != nil {
			if errors.Is(err, http.ErrMissingFile) {
				return in, nil, nil
			}
			return in, nil, fmt.Errorf("read upload: %w", err)
		}
		defer file.Close()
		data, err := io.ReadAll(io.LimitReader(file, limit))
		if err != nil {
			return in, nil, fmt.Errorf("read upload: %w", err)
		}
		return in, data, nil
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		return in, nil, fmt.Errorf("invalid json body: %w", err)
	}
	return in, nil, nil
}

// resolveTargets prefers explicit links, then an uploaded listing page, then
// city/state discovery.
func (s *Server) resolveTargets(ctx context.Context, platform crawler.Platform, in CrawlRequest, upload []byte) ([]crawler.Target, error) {
	if len(in.Targets) > 0 {
		targets := make([]crawler.Target, 0, len(in.Targets))
		for _, link := range in.Targets {
			targets = append(targets, crawler.Target{Link: link, City: in.City, State: in.State})
		}
		targets = crawler.DedupeTargets(targets)
		if len(targets) == 0 {
			return nil, errors.New("targets contain no links")
		}
		return targets, nil
	}
	if upload != nil {
		base := s.deps.BaseURLs[platform]
		if base == "" {
			return nil, fmt.Errorf("no base url configured for %s", platform)
		}
		targets, err := discovery.FromHTML(bytes.NewReader(upload), base)
		if err != nil {
			return nil, err
		}
		return targets, nil
	}
	if in.City != "" || in.State != "" {
		source, ok := s.deps.Locations[platform]
		if !ok || source == nil {
			return nil, fmt.Errorf("city/state discovery is not supported for %s", platform)
		}
		targets, err := source.Discover(ctx, in.City, in.State)
		switch {
		case err == nil:
			return targets, nil
		case errors.Is(err, crawler.ErrInvalidRequest), errors.Is(err, discovery.ErrNoTargets):
			return nil, err
		default:
			return nil, fmt.Errorf("%w: %w", errDiscovery, err)
		}
	}
	return nil, errors.New("one of targets, file, or city/state is required")
}

func (s *Server) newRunID() (string, error) {
	if s.deps.IDs == nil {
		return "", errors.New("no id generator configured")
	}
	return s.deps.IDs.NewID()
}

func (s *Server) now() time.Time {
	if s.deps.Clock == nil {
		return time.Now().UTC()
	}
	return s.deps.Clock.Now()
}
