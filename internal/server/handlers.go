package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mseitzer/pattern-spotting/internal/catalog"
	"github.com/mseitzer/pattern-spotting/internal/imaging"
	"github.com/mseitzer/pattern-spotting/internal/localization"
	"github.com/mseitzer/pattern-spotting/internal/search"
)

// DefaultTopN is the result count of motif_search when neither the call
// nor the server options set one.
const DefaultTopN = 10

// ToolCallParams represents the parameters for a tools/call MCP request.
type ToolCallParams struct {
	// Name is the tool to invoke (e.g., "motif_search").
	Name string `json:"name"`

	// Arguments contains the tool-specific parameters as JSON.
	Arguments json.RawMessage `json:"arguments"`
}

// inputError marks failures caused by the caller's arguments.
type inputError struct {
	err error
}

func (e *inputError) Error() string { return e.err.Error() }
func (e *inputError) Unwrap() error { return e.err }

func invalidArgs(format string, args ...interface{}) error {
	return &inputError{fmt.Errorf(format, args...)}
}

// isInputError reports whether err should be answered with -32602.
func isInputError(err error) bool {
	var ie *inputError
	return errors.As(err, &ie) || search.IsInputError(err)
}

// handleToolsCall processes a tools/call request and executes the specified tool.
//
// The response wraps the tool result in MCP's content format:
//
//	{
//	  "content": [{"type": "text", "text": "<JSON result>"}]
//	}
//
// Invalid arguments return a JSON-RPC error with code -32602, every other
// failure code -32000.
func (s *Server) handleToolsCall(ctx context.Context, req *MCPRequest) *MCPResponse {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return s.errorResponse(req.ID, codeInvalidParams, "Invalid params", err.Error())
	}

	start := time.Now()
	result, err := s.executeTool(ctx, params.Name, params.Arguments)
	log := logrus.WithFields(logrus.Fields{
		"tool":    params.Name,
		"elapsed": time.Since(start),
	})
	if err != nil {
		if isInputError(err) {
			log.WithError(err).Debug("invalid tool arguments")
			return s.errorResponse(req.ID, codeInvalidParams, "Invalid params", err.Error())
		}
		log.WithError(err).Warn("tool failed")
		return s.errorResponse(req.ID, codeToolFailed, "Tool execution failed", err.Error())
	}
	log.Debug("tool done")

	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"content": []map[string]interface{}{
				{
					"type": "text",
					"text": mustMarshalJSON(result),
				},
			},
		},
	}
}

// executeTool dispatches tool execution to the appropriate handler function.
func (s *Server) executeTool(ctx context.Context, name string, args json.RawMessage) (interface{}, error) {
	switch name {
	// Search
	case "motif_search":
		return s.handleMotifSearch(ctx, args)
	case "motif_store_info":
		return s.handleStoreInfo()

	// Result inspection
	case "motif_result_crop":
		return s.handleResultCrop(args)
	case "motif_result_overlay":
		return s.handleResultOverlay(args)
	case "motif_ocr_region":
		return s.handleOCRRegion(args)

	// Query images
	case "image_load":
		return s.handleImageLoad(args)
	case "image_dimensions":
		return s.handleImageDimensions(args)

	default:
		return nil, invalidArgs("unknown tool: %s", name)
	}
}

// errorResponse creates a JSON-RPC error response with the given details.
func (s *Server) errorResponse(id interface{}, code int, message, data string) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &MCPError{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
}

// mustMarshalJSON converts a value to pretty-printed JSON string.
// On marshal failure, returns an empty string.
func mustMarshalJSON(v interface{}) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}

// unmarshalArgs decodes tool arguments; a decoding failure is an input
// error.
func unmarshalArgs(args json.RawMessage, v interface{}) error {
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	if err := json.Unmarshal(args, v); err != nil {
		return &inputError{err}
	}
	return nil
}

func (s *Server) corpus() (Corpus, error) {
	if s.opts.Corpus == nil {
		return nil, errors.New("no corpus loaded")
	}
	return s.opts.Corpus, nil
}

// === Search Handlers ===

type roiArgs struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

type motifSearchArgs struct {
	Path string   `json:"path"`
	URL  string   `json:"url"`
	ROI  *roiArgs `json:"roi"`

	TopN        *int  `json:"top_n"`
	Localize    *bool `json:"localize"`
	LocalizeN   *int  `json:"localize_n"`
	Rerank      *bool `json:"rerank"`
	AvgQE       *bool `json:"avg_qe"`
	QENeighbors *int  `json:"qe_neighbors"`
}

// searchOptions applies the call's overrides to the server defaults.
func (a *motifSearchArgs) searchOptions(defaults search.Options) search.Options {
	opts := defaults
	if opts.TopN == 0 {
		opts.TopN = DefaultTopN
	}
	if a.TopN != nil {
		opts.TopN = *a.TopN
	}
	if a.Localize != nil {
		opts.Localize = *a.Localize
		// Turning localization off also turns off the stage that needs it,
		// unless rerank is asked for explicitly.
		if !opts.Localize && a.Rerank == nil {
			opts.Rerank = false
		}
	}
	if a.LocalizeN != nil {
		opts.LocalizeN = *a.LocalizeN
	}
	if a.Rerank != nil {
		opts.Rerank = *a.Rerank
	}
	if a.AvgQE != nil {
		opts.AvgQE = *a.AvgQE
	}
	if a.QENeighbors != nil {
		opts.QENeighbors = *a.QENeighbors
	}
	return opts
}

// SearchHit is one ranked corpus image.
type SearchHit struct {
	Rank  int     `json:"rank"`
	Index int     `json:"index"`
	Image string  `json:"image"`
	Path  string  `json:"path,omitempty"`
	Score float32 `json:"score"`

	// BBox is the matching area in corpus image pixels.
	BBox *localization.Box `json:"bbox,omitempty"`

	// URL and Date come from the catalog.
	URL  string `json:"url,omitempty"`
	Date string `json:"date,omitempty"`
}

// SearchResponse is the result of motif_search.
type SearchResponse struct {
	Store     string      `json:"store"`
	Query     string      `json:"query"`
	Results   []SearchHit `json:"results"`
	ElapsedMS int64       `json:"elapsed_ms"`
}

func (s *Server) loadQuery(ctx context.Context, a *motifSearchArgs) (image.Image, string, error) {
	switch {
	case a.Path != "":
		img, err := s.cache.Load(a.Path)
		if err != nil {
			return nil, "", &inputError{err}
		}
		return img, a.Path, nil
	case a.URL != "":
		data, err := s.download.fetch(ctx, a.URL)
		if err != nil {
			return nil, "", err
		}
		img, err := s.cache.LoadBytes(a.URL, data)
		if err != nil {
			return nil, "", &inputError{err}
		}
		return img, a.URL, nil
	}
	return nil, "", invalidArgs("either path or url is required")
}

func (s *Server) handleMotifSearch(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a motifSearchArgs
	if err := unmarshalArgs(args, &a); err != nil {
		return nil, err
	}
	corpus, err := s.corpus()
	if err != nil {
		return nil, err
	}

	img, query, err := s.loadQuery(ctx, &a)
	if err != nil {
		return nil, err
	}
	var roi *image.Rectangle
	if a.ROI != nil {
		r, err := imaging.ROI(a.ROI.X1, a.ROI.Y1, a.ROI.X2, a.ROI.Y2)
		if err != nil {
			return nil, &inputError{err}
		}
		roi = &r
	}

	start := time.Now()
	res, err := search.SearchROI(ctx, corpus, img, roi, a.searchOptions(s.opts.Search))
	if err != nil {
		return nil, err
	}

	resp := &SearchResponse{
		Store:     corpus.Name(),
		Query:     query,
		Results:   make([]SearchHit, res.Len()),
		ElapsedMS: time.Since(start).Milliseconds(),
	}
	for i, idx := range res.Indices {
		meta, err := corpus.Metadata(idx)
		if err != nil {
			return nil, err
		}
		hit := SearchHit{
			Rank:  i + 1,
			Index: idx,
			Image: meta.Image,
			Score: res.Similarities[i],
		}
		if p, err := corpus.ImagePath(idx); err == nil {
			hit.Path = p
		}
		if res.Boxes != nil {
			hit.BBox = &res.Boxes[i]
		}
		s.attachSource(&hit)
		resp.Results[i] = hit
	}
	return resp, nil
}

// attachSource fills the catalog fields of hit. Catalog failures only
// cost the link, not the result.
func (s *Server) attachSource(hit *SearchHit) {
	if s.opts.Catalog == nil {
		return
	}
	entry, err := s.opts.Catalog.Get(hit.Image)
	if err != nil {
		if !errors.Is(err, catalog.ErrNotFound) {
			logrus.WithError(err).WithField("image", hit.Image).Warn("catalog lookup failed")
		}
		return
	}
	hit.URL = entry.URL
	hit.Date = entry.Date
}

// StoreInfo is the result of motif_store_info.
type StoreInfo struct {
	Name      string `json:"name"`
	Images    int    `json:"images"`
	Dimension int    `json:"dimension"`
	Whitening bool   `json:"whitening"`
	Catalog   bool   `json:"catalog"`
	OCR       bool   `json:"ocr"`

	// CachedImages counts decoded query and corpus images held in memory.
	CachedImages int `json:"cached_images"`
}

func (s *Server) handleStoreInfo() (interface{}, error) {
	corpus, err := s.corpus()
	if err != nil {
		return nil, err
	}
	return &StoreInfo{
		Name:      corpus.Name(),
		Images:    corpus.Len(),
		Dimension: corpus.Descriptors().Dim,
		Whitening: corpus.Whitening() != nil,
		Catalog:   s.opts.Catalog != nil,
		OCR:       s.opts.OCR != nil,

		CachedImages: s.cache.Len(),
	}, nil
}

// === Result Inspection Handlers ===

// corpusImage loads corpus image index.
func (s *Server) corpusImage(index int) (image.Image, error) {
	corpus, err := s.corpus()
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= corpus.Len() {
		return nil, invalidArgs("index %d out of range [0, %d)", index, corpus.Len())
	}
	p, err := corpus.ImagePath(index)
	if err != nil {
		return nil, err
	}
	return s.cache.Load(p)
}

type resultCropArgs struct {
	Index int               `json:"index"`
	BBox  *localization.Box `json:"bbox"`
	Scale float64           `json:"scale"`
}

func (s *Server) handleResultCrop(args json.RawMessage) (interface{}, error) {
	var a resultCropArgs
	if err := unmarshalArgs(args, &a); err != nil {
		return nil, err
	}
	if a.BBox == nil {
		return nil, invalidArgs("bbox is required")
	}
	if a.Scale == 0 {
		a.Scale = 1.0
	}
	img, err := s.corpusImage(a.Index)
	if err != nil {
		return nil, err
	}
	res, err := imaging.CropBox(img, *a.BBox, a.Scale)
	if err != nil {
		return nil, &inputError{err}
	}
	return res, nil
}

type resultOverlayArgs struct {
	Index     int                `json:"index"`
	Boxes     []localization.Box `json:"boxes"`
	Color     string             `json:"color"`
	Thickness int                `json:"thickness"`
}

func (s *Server) handleResultOverlay(args json.RawMessage) (interface{}, error) {
	var a resultOverlayArgs
	if err := unmarshalArgs(args, &a); err != nil {
		return nil, err
	}
	if a.Thickness == 0 {
		a.Thickness = 3
	}
	img, err := s.corpusImage(a.Index)
	if err != nil {
		return nil, err
	}
	res, err := imaging.DrawBoxes(img, a.Boxes, a.Color, a.Thickness, true)
	if err != nil {
		return nil, &inputError{err}
	}
	return res, nil
}

type ocrRegionArgs struct {
	Index int               `json:"index"`
	BBox  *localization.Box `json:"bbox"`
}

func (s *Server) handleOCRRegion(args json.RawMessage) (interface{}, error) {
	var a ocrRegionArgs
	if err := unmarshalArgs(args, &a); err != nil {
		return nil, err
	}
	if a.BBox == nil {
		return nil, invalidArgs("bbox is required")
	}
	if s.opts.OCR == nil {
		return nil, errors.New("OCR is not enabled")
	}
	img, err := s.corpusImage(a.Index)
	if err != nil {
		return nil, err
	}
	return s.opts.OCR.ReadRegion(img, *a.BBox)
}

// === Query Image Handlers ===

type imageLoadArgs struct {
	Path string `json:"path"`
}

func (s *Server) handleImageLoad(args json.RawMessage) (interface{}, error) {
	var a imageLoadArgs
	if err := unmarshalArgs(args, &a); err != nil {
		return nil, err
	}
	if a.Path == "" {
		return nil, invalidArgs("path is required")
	}
	return imaging.LoadImageInfo(s.cache, a.Path)
}

func (s *Server) handleImageDimensions(args json.RawMessage) (interface{}, error) {
	var a imageLoadArgs
	if err := unmarshalArgs(args, &a); err != nil {
		return nil, err
	}
	if a.Path == "" {
		return nil, invalidArgs("path is required")
	}
	return imaging.GetDimensions(s.cache, a.Path)
}
