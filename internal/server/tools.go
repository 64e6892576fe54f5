package server

// Tool represents an MCP tool definition
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

func integerProp(description string) map[string]interface{} {
	return map[string]interface{}{"type": "integer", "description": description}
}

func boolProp(description string) map[string]interface{} {
	return map[string]interface{}{"type": "boolean", "description": description}
}

// boxSchema describes an inclusive pixel box as returned by motif_search.
var boxSchema = map[string]interface{}{
	"type":        "object",
	"description": "Inclusive pixel box as returned in a search result's bbox",
	"properties": map[string]interface{}{
		"x1": integerProp("Left edge X coordinate (inclusive)"),
		"y1": integerProp("Top edge Y coordinate (inclusive)"),
		"x2": integerProp("Right edge X coordinate (inclusive)"),
		"y2": integerProp("Bottom edge Y coordinate (inclusive)"),
	},
	"required": []string{"x1", "y1", "x2", "y2"},
}

var pathSchema = map[string]interface{}{
	"type":        "string",
	"description": "Absolute path to the image file",
}

var indexSchema = integerProp("Corpus image index from a motif_search result")

// GetToolDefinitions returns all available tools
func GetToolDefinitions() []Tool {
	return []Tool{
		// Search
		{
			Name: "motif_search",
			Description: "Find occurrences of a visual motif in the corpus. The query is an image file or URL, " +
				"optionally restricted to a region of interest. Returns corpus images ranked by similarity, " +
				"each with a pixel bounding box around the matching area when localization is enabled.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathSchema,
					"url": map[string]interface{}{
						"type":        "string",
						"description": "http(s) URL of the query image, used when path is not given (max 16 MiB)",
					},
					"roi": map[string]interface{}{
						"type":        "object",
						"description": "Optional region of the query image to search for; x2 and y2 are exclusive",
						"properties": map[string]interface{}{
							"x1": integerProp("Left edge X coordinate (0-based)"),
							"y1": integerProp("Top edge Y coordinate (0-based)"),
							"x2": integerProp("Right edge X coordinate (exclusive)"),
							"y2": integerProp("Bottom edge Y coordinate (exclusive)"),
						},
						"required": []string{"x1", "y1", "x2", "y2"},
					},
					"top_n":        integerProp("Number of results to return. Default 10"),
					"localize":     boolProp("Find a bounding box in each candidate"),
					"localize_n":   integerProp("Number of candidates to localize"),
					"rerank":       boolProp("Rank localized candidates by the descriptor of their box (requires localize)"),
					"avg_qe":       boolProp("Expand the query with its best candidates and query again"),
					"qe_neighbors": integerProp("Number of candidates used for query expansion"),
				},
			},
		},
		{
			Name:        "motif_store_info",
			Description: "Describe the loaded corpus: store name, number of images, descriptor dimension and whether whitening is applied.",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
		},

		// Result inspection
		{
			Name:        "motif_result_crop",
			Description: "Crop a search result's bounding box from its corpus image and return it as base64-encoded PNG.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"index": indexSchema,
					"bbox":  boxSchema,
					"scale": map[string]interface{}{
						"type":        "number",
						"description": "Optional scale factor (e.g., 2.0 to double size). Default 1.0",
						"default":     1.0,
					},
				},
				"required": []string{"index", "bbox"},
			},
		},
		{
			Name:        "motif_result_overlay",
			Description: "Draw bounding boxes on a corpus image and return it as base64-encoded PNG. Boxes are numbered in the given order.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"index": indexSchema,
					"boxes": map[string]interface{}{
						"type":  "array",
						"items": boxSchema,
					},
					"color": map[string]interface{}{
						"type":        "string",
						"description": "Box color in hex format (e.g., '#FF0000' or '#FF000080'). Default red",
						"default":     "#FF0000",
					},
					"thickness": integerProp("Line width in pixels. Default 3"),
				},
				"required": []string{"index", "boxes"},
			},
		},
		{
			Name:        "motif_ocr_region",
			Description: "Transcribe the text inside a bounding box of a corpus image with Tesseract OCR.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"index": indexSchema,
					"bbox":  boxSchema,
				},
				"required": []string{"index", "bbox"},
			},
		},

		// Query images
		{
			Name:        "image_load",
			Description: "Load a query image and return its dimensions and format.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathSchema,
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "image_dimensions",
			Description: "Get the width and height of an image file.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathSchema,
				},
				"required": []string{"path"},
			},
		},
	}
}

// handleToolsList returns the list of available tools
func (s *Server) handleToolsList(req *MCPRequest) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"tools": GetToolDefinitions(),
		},
	}
}
