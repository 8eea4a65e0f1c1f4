// Package docs is generated from the handler annotations by swaggo/swag:
//
//	swag init -g cmd/analyzer/main.go -o internal/api/docs
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/": {
            "get": {
                "description": "Basic analyzer information and capabilities",
                "produces": ["application/json"],
                "tags": ["health"],
                "summary": "Worker information",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.WorkerInfoResponse"}}
                }
            }
        },
        "/api/health": {
            "get": {
                "description": "Service status, model readiness and storage counters",
                "produces": ["application/json"],
                "tags": ["health"],
                "summary": "Health check",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.HealthResponse"}}
                }
            }
        },
        "/api/analyze": {
            "post": {
                "description": "Upload a match video, detect players and the ball on every frame and return the annotated video and statistics",
                "consumes": ["multipart/form-data"],
                "produces": ["application/json"],
                "tags": ["analysis"],
                "summary": "Analyze a video",
                "parameters": [
                    {"type": "file", "description": "Video file (mp4, avi, mov, mkv, webm)", "name": "video", "in": "formData", "required": true},
                    {"type": "number", "description": "Detection confidence threshold in (0, 1], default 0.5", "name": "confidence", "in": "formData"},
                    {"type": "string", "description": "Client chosen run ID (UUID) for progress and preview subscriptions", "name": "run_id", "in": "formData"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.AnalyzeResponse"}},
                    "400": {"description": "Bad Request", "schema": {"type": "object", "additionalProperties": {"type": "string"}}},
                    "413": {"description": "Request Entity Too Large", "schema": {"type": "object", "additionalProperties": {"type": "string"}}},
                    "500": {"description": "Internal Server Error", "schema": {"type": "object", "additionalProperties": {"type": "string"}}},
                    "503": {"description": "Service Unavailable", "schema": {"type": "object", "additionalProperties": {"type": "string"}}}
                }
            }
        },
        "/api/uploads": {
            "get": {
                "description": "List uploads and results available for download",
                "produces": ["application/json"],
                "tags": ["files"],
                "summary": "List files",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.FilesResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"type": "object", "additionalProperties": {"type": "string"}}}
                }
            }
        },
        "/api/uploads/{filename}": {
            "delete": {
                "description": "Remove a result or an upload by name",
                "produces": ["application/json"],
                "tags": ["files"],
                "summary": "Delete a file",
                "parameters": [
                    {"type": "string", "description": "File name", "name": "filename", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object", "additionalProperties": true}},
                    "400": {"description": "Bad Request", "schema": {"type": "object", "additionalProperties": {"type": "string"}}},
                    "404": {"description": "Not Found", "schema": {"type": "object", "additionalProperties": {"type": "string"}}},
                    "500": {"description": "Internal Server Error", "schema": {"type": "object", "additionalProperties": {"type": "string"}}}
                }
            }
        },
        "/api/runs/{run_id}/preview": {
            "get": {
                "description": "MJPEG stream of the annotated frames of a running analysis. Pass the same run_id to POST /api/analyze to watch it.",
                "produces": ["multipart/x-mixed-replace"],
                "tags": ["analysis"],
                "summary": "Live preview of an analysis",
                "parameters": [
                    {"type": "string", "description": "Run ID (UUID)", "name": "run_id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "file"}},
                    "400": {"description": "Bad Request", "schema": {"type": "object", "additionalProperties": {"type": "string"}}}
                }
            }
        },
        "/api/system/stats": {
            "get": {
                "description": "Process statistics and the number of analyses in progress",
                "produces": ["application/json"],
                "tags": ["system"],
                "summary": "Get system stats",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object", "additionalProperties": true}}
                }
            }
        },
        "/download/{filename}": {
            "get": {
                "description": "Download a processed video, its statistics or an upload. Results are searched first.",
                "produces": ["application/octet-stream"],
                "tags": ["files"],
                "summary": "Download a file",
                "parameters": [
                    {"type": "string", "description": "File name", "name": "filename", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "file"}},
                    "400": {"description": "Bad Request", "schema": {"type": "object", "additionalProperties": {"type": "string"}}},
                    "404": {"description": "Not Found", "schema": {"type": "object", "additionalProperties": {"type": "string"}}}
                }
            }
        }
    },
    "definitions": {
        "artifacts.File": {
            "type": "object",
            "properties": {
                "name": {"type": "string"},
                "path": {"type": "string"},
                "size": {"type": "integer"},
                "type": {"type": "string"}
            }
        },
        "handlers.AnalyzeResponse": {
            "type": "object",
            "properties": {
                "file_size_mb": {"type": "number", "example": 12.5},
                "message": {"type": "string", "example": "Analysis completed successfully"},
                "original_filename": {"type": "string", "example": "final.mp4"},
                "processing_time": {"type": "number", "example": 42.7},
                "run_id": {"type": "string", "example": "4f7c8a1e-2b9d-4c55-9e61-0d8f3a2b7c10"},
                "statistics": {"$ref": "#/definitions/models.RunStatistics"},
                "stats_file": {"type": "string", "example": "processed_final_1a2b3c4d_1700000000.json"},
                "success": {"type": "boolean", "example": true},
                "video_file": {"type": "string", "example": "processed_final_1a2b3c4d_1700000000.mp4"}
            }
        },
        "handlers.FilesResponse": {
            "type": "object",
            "properties": {
                "files": {"type": "array", "items": {"$ref": "#/definitions/artifacts.File"}}
            }
        },
        "handlers.HealthResponse": {
            "type": "object",
            "properties": {
                "model_error": {"type": "string"},
                "model_loaded": {"type": "boolean", "example": true},
                "model_loading": {"type": "boolean", "example": false},
                "model_state": {"type": "string", "example": "ready"},
                "nats_connected": {"type": "boolean", "example": false},
                "result_count": {"type": "integer", "example": 2},
                "results_folder": {"type": "string", "example": "/srv/visao/results"},
                "status": {"type": "string", "example": "healthy"},
                "timestamp": {"type": "integer", "example": 1700000000},
                "upload_count": {"type": "integer", "example": 3},
                "upload_folder": {"type": "string", "example": "/srv/visao/uploads"},
                "worker_id": {"type": "string", "example": "analyzer-1"}
            }
        },
        "handlers.WorkerInfoResponse": {
            "type": "object",
            "properties": {
                "capabilities": {"type": "array", "items": {"type": "string"}},
                "status": {"type": "string", "example": "running"},
                "version": {"type": "string", "example": "1.0.0"},
                "worker_id": {"type": "string", "example": "analyzer-1"}
            }
        },
        "models.RunStatistics": {
            "type": "object",
            "properties": {
                "bolas_detectadas": {"type": "integer"},
                "falhas_deteccao": {"type": "integer"},
                "fps": {"type": "integer"},
                "frames_processados": {"type": "integer"},
                "jogadores_max": {"type": "integer"},
                "jogadores_media": {"type": "number"},
                "resolucao": {"type": "string"},
                "tempo_processamento": {"type": "number"},
                "total_frames": {"type": "integer"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0.0",
	Host:             "localhost:5000",
	BasePath:         "/",
	Schemes:          []string{"http", "https"},
	Title:            "Visao Football Analyzer API",
	Description:      "Uploads match videos, detects players and the ball frame by frame and returns an annotated video with a statistics sidecar",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
